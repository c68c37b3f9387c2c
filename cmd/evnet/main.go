package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/marmos91/evnet/internal/logger"
	"github.com/marmos91/evnet/pkg/app/blobserver"
	"github.com/marmos91/evnet/pkg/config"
	"github.com/marmos91/evnet/pkg/server"
)

const usage = `evnet - event-driven HTTP/1.1 blob server

Usage:
  evnet <command> [flags]

Commands:
  init    Write a default configuration file
  start   Start the server

Run 'evnet <command> -h' for command flags.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "init":
		err = runInit(os.Args[2:])
	case "start":
		err = runStart(os.Args[2:])
	case "-h", "--help", "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to write the config file (default: $XDG_CONFIG_HOME/evnet/config.yaml)")
	force := fs.Bool("force", false, "Overwrite an existing config file")
	_ = fs.Parse(args)

	path := *configPath
	if path == "" {
		written, err := config.InitConfig(*force)
		if err != nil {
			return err
		}
		path = written
	} else if err := config.InitConfigToPath(path, *force); err != nil {
		return err
	}

	fmt.Printf("Configuration written to %s\n", path)
	return nil
}

func runStart(args []string) error {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file (default: $XDG_CONFIG_HOME/evnet/config.yaml)")
	_ = fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	logger.SetLevel(cfg.Logging.Level)
	logger.SetFormat(cfg.Logging.Format)
	if err := logger.SetOutput(cfg.Logging.Output); err != nil {
		return fmt.Errorf("failed to configure log output: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fmt.Println("evnet - event-driven HTTP/1.1 blob server")
	logger.Info("Log level set to: %s", cfg.Logging.Level)

	metricsResult := config.InitializeMetrics(cfg)

	store, err := config.CreateStore(ctx, &cfg.Store, metricsResult.Store)
	if err != nil {
		return fmt.Errorf("failed to create blob store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close blob store: %v", err)
		}
	}()
	logger.Info("Blob store: %s", cfg.Store.Type)

	var srv *server.Server
	handler := blobserver.New(store, func() any { return srv.Stats() })

	srv, err = server.New(server.Config{
		Reactor:          cfg.Reactor,
		Dispatcher:       cfg.Dispatcher,
		HTTP:             cfg.HTTP,
		ShutdownTimeout:  cfg.Server.ShutdownTimeout,
		StatsLogInterval: cfg.Server.StatsLogInterval,
	}, handler, server.Metrics{
		Dispatcher: metricsResult.Dispatcher,
		Reactor:    metricsResult.Reactor,
	})
	if err != nil {
		return err
	}

	logger.Info("Server configuration:")
	logger.Info("  Address: %s", srv.Addr())
	logger.Info("  Max threads: %d (0 = thread pool capacity)", cfg.Dispatcher.MaxThreads)
	logger.Info("  Max queued: %d", cfg.Dispatcher.MaxQueued)
	logger.Info("  Idle timeout: %v", cfg.Reactor.IdleTimeout)
	logger.Info("  Shutdown timeout: %v", cfg.Server.ShutdownTimeout)

	if metricsResult.Server != nil {
		go func() {
			if err := metricsResult.Server.Start(ctx); err != nil {
				logger.Error("Metrics server error: %v", err)
			}
		}()
	}

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.Serve(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	logger.Info("Server is running on %s. Press Ctrl+C to stop.", srv.Addr())

	select {
	case <-sigChan:
		logger.Info("Shutdown signal received, initiating graceful shutdown...")
		cancel()

		if err := <-serverDone; err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		logger.Info("Server stopped gracefully")

	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		logger.Info("Server stopped")
	}

	return nil
}
