// Package daemon implements the Daemon Controller (C9): process lifecycle,
// the loopback lock-port HTTP surface, the public health/metrics HTTP
// surface, per-backend sync workers, and graceful shutdown.
package daemon

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"goblin/internal/config"
	"goblin/internal/gateway"
	"goblin/internal/metatool"
	"goblin/internal/pool"
	"goblin/internal/registry"
	"goblin/internal/router"
	"goblin/internal/subscription"
	"goblin/pkg/logging"
	"goblin/pkg/metrics"
)

// shutdownGrace bounds how long in-flight requests get to finish once a
// shutdown signal arrives before their contexts are cancelled outright.
const shutdownGrace = 10 * time.Second

// syncInterval is the steady-state re-sync period for backends that never
// push a tools/list_changed notification of their own.
const syncInterval = 5 * time.Minute

// Daemon owns C3, C4, C5, C8 and the per-backend sync workers for the
// lifetime of one gateway process.
type Daemon struct {
	cfg *config.Config
	log *logging.Logger

	reg    *registry.Registry
	pool   *pool.Pool
	subs   *subscription.Manager
	meta   *metatool.Set
	rt     *router.Router
	srv    *gateway.Server
	httpFE *gateway.HTTPHandler
	sink   metrics.Sink

	startTime time.Time

	mu        sync.Mutex
	lockLn    net.Listener
	cancelRun context.CancelFunc
}

// New wires up C3 through C8 from a validated config snapshot.
func New(cfg *config.Config, log *logging.Logger, sink metrics.Sink) *Daemon {
	if sink == nil {
		sink = metrics.Nop{}
	}
	startTime := nowFunc()

	reg := registry.New(log, sink)
	p := pool.New(log, sink)
	subs := subscription.New(log, 0) // unlimited; no per-client subscription cap in spec.md's policies document
	meta := metatool.New(reg, p, backendConfigProvider(cfg), log, startTime)
	rt := router.New(reg, p, meta, backendLookup(cfg), policiesLookup(cfg), log)
	srv := gateway.New(reg, rt, subs, log, sink)

	return &Daemon{
		cfg:       cfg,
		log:       log.With("daemon"),
		reg:       reg,
		pool:      p,
		subs:      subs,
		meta:      meta,
		rt:        rt,
		srv:       srv,
		httpFE:    gateway.NewHTTPHandler(srv),
		sink:      sink,
		startTime: startTime,
	}
}

// nowFunc is overridable in tests.
var nowFunc = time.Now

func backendConfigProvider(cfg *config.Config) metatool.BackendConfigProvider {
	return func() []config.BackendConfig { return cfg.Servers }
}

func backendLookup(cfg *config.Config) router.BackendLookup {
	return func(name string) (config.BackendConfig, bool) {
		for _, b := range cfg.Servers {
			if b.Name == name {
				return b, true
			}
		}
		return config.BackendConfig{}, false
	}
}

func policiesLookup(cfg *config.Config) router.PoliciesLookup {
	return func() config.PoliciesConfig { return cfg.Policies }
}

// Run starts every configured surface and blocks until ctx is cancelled,
// then performs the graceful shutdown sequence of spec.md §4.9.
func (d *Daemon) Run(ctx context.Context, opts RunOptions) error {
	if err := d.meta.Register(); err != nil {
		return fmt.Errorf("daemon: register meta-tools: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	d.mu.Lock()
	d.cancelRun = cancel
	d.mu.Unlock()

	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		d.srv.RunNotificationBridge(gctx)
		return nil
	})

	g.Go(func() error {
		d.runSyncWorkers(gctx)
		return nil
	})

	if opts.LockPort > 0 {
		ln, err := d.bindLockPort(opts.LockPort)
		if err != nil {
			return err
		}
		d.mu.Lock()
		d.lockLn = ln
		d.mu.Unlock()
		g.Go(func() error { return d.serveLockPort(gctx, ln) })
	}

	if opts.PublicAddr != "" {
		srv := d.newPublicServer(opts)
		ln, err := listenerFor("goblin-public", opts.PublicAddr)
		if err != nil {
			return err
		}
		g.Go(func() error { return serveHTTP(gctx, srv, ln) })

		if d.cfg.Gateway.Transport == config.GatewayHTTP || d.cfg.Gateway.Transport == config.GatewayBoth {
			g.Go(func() error {
				d.reapHTTPSessions(gctx)
				return nil
			})
		}
	}

	if opts.EnableStdio {
		g.Go(func() error {
			return gateway.ServeStdio(gctx, d.srv, opts.Stdin, opts.Stdout, opts.Stderr)
		})
	}

	<-runCtx.Done()
	d.shutdown()

	return g.Wait()
}

// RunOptions configures which surfaces a single daemon invocation binds.
type RunOptions struct {
	LockPort    int
	PublicAddr  string
	EnableStdio bool

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// httpReapInterval controls how often idle MCP HTTP sessions are swept.
const httpReapInterval = 5 * time.Minute

func (d *Daemon) reapHTTPSessions(ctx context.Context) {
	ticker := time.NewTicker(httpReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.httpFE.ReapIdleSessions()
		}
	}
}

func serveHTTP(ctx context.Context, srv *http.Server, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// RequestShutdown triggers the same graceful shutdown sequence Run performs
// on context cancellation; used by the lock-port's POST /stop. OS signals
// reach Run through the context cmd/goblind passes in.
func (d *Daemon) RequestShutdown() {
	d.mu.Lock()
	cancel := d.cancelRun
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// shutdown implements spec.md §4.9's ordered teardown: stop accepting new
// channels (closing listeners), cancel in-flight requests after a grace
// period (each server's own http.Server.Shutdown does this for HTTP; stdio's
// single session is cancelled via ctx), close client channels, release every
// pooled transport.
func (d *Daemon) shutdown() {
	d.log.Info("shutdown initiated")

	d.mu.Lock()
	ln := d.lockLn
	d.mu.Unlock()
	if ln != nil {
		_ = ln.Close()
	}

	d.pool.ReleaseAll()
	d.log.Info("shutdown complete")
}
