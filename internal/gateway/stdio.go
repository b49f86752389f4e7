package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// ServeStdio runs the stdio MCP frontend to completion: one session spanning
// the lifetime of the process, newline-delimited JSON-RPC messages read from
// in and written to out. It writes the §6 readiness line to stderr once it
// starts reading. ServeStdio returns when in reaches EOF, when a write to
// out fails, or when ctx is done; ctx is checked as each line arrives, so a
// cancellation takes effect at the next input line or EOF.
func ServeStdio(ctx context.Context, srv *Server, in io.Reader, out io.Writer, stderr io.Writer) error {
	var writeMu sync.Mutex
	s := srv.Attach(func(msg []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		if _, err := out.Write(msg); err != nil {
			return err
		}
		_, err := out.Write([]byte("\n"))
		return err
	})
	defer srv.Detach(s)

	if stderr != nil {
		readyLine, _ := json.Marshal(struct {
			Status string `json:"status"`
		}{Status: "ready"})
		_, _ = stderr.Write(append(readyLine, '\n'))
	}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		raw := make([]byte, len(line))
		copy(raw, line)

		resp := srv.HandleMessage(ctx, s, raw)
		if resp == nil {
			continue
		}
		if err := s.send(resp); err != nil {
			return fmt.Errorf("stdio write: %w", err)
		}
	}
	return scanner.Err()
}
