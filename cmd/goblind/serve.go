package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"goblin/internal/config"
	"goblin/internal/daemon"
	"goblin/pkg/logging"
	"goblin/pkg/metrics"

	promclient "github.com/prometheus/client_golang/prometheus"
)

var (
	serveConfigPath string
	serveLockPort   int
	serveHTTPAddr   string
	serveStdio      bool
	serveLogLevel   string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the goblin gateway daemon",
	Long: `Loads the gateway configuration, connects to every enabled backend,
and serves the aggregated MCP catalog over the configured frontends
(stdio and/or HTTP) until interrupted.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveConfigPath, "config", "goblin.json", "path to the gateway configuration document")
	serveCmd.Flags().IntVar(&serveLockPort, "lock-port", 7030, "loopback lock-port for /status, /ping, /health, /tools, /servers, /stop")
	serveCmd.Flags().StringVar(&serveHTTPAddr, "http-addr", "", "address for the public HTTP surface (/mcp, /health, /ready, /metrics); empty disables it")
	serveCmd.Flags().BoolVar(&serveStdio, "stdio", true, "serve the MCP protocol over stdio")
	serveCmd.Flags().StringVar(&serveLogLevel, "log-level", "info", "log level: debug, info, warn, error")
}

func runServe(cmd *cobra.Command, args []string) error {
	level, err := parseLogLevel(serveLogLevel)
	if err != nil {
		return err
	}
	log := logging.New(os.Stderr, level)

	cfg, err := config.Load(serveConfigPath, log)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	sink := metrics.NewPromSink(promclient.NewRegistry())
	d := daemon.New(cfg, log, sink)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := daemon.RunOptions{
		LockPort:    serveLockPort,
		PublicAddr:  serveHTTPAddr,
		EnableStdio: serveStdio,
		Stdin:       os.Stdin,
		Stdout:      os.Stdout,
		Stderr:      os.Stderr,
	}
	if cfg.Gateway.Transport == config.GatewayHTTP || cfg.Gateway.Transport == config.GatewayBoth {
		if opts.PublicAddr == "" {
			opts.PublicAddr = fmt.Sprintf("%s:%d", cfg.Gateway.Host, cfg.Gateway.Port)
		}
	}
	if cfg.Gateway.Transport == config.GatewayHTTP {
		opts.EnableStdio = false
	}

	return d.Run(ctx, opts)
}

func parseLogLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}
