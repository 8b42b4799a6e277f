package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"handoff/internal/config"
	"handoff/internal/events"
	"handoff/internal/hil"
	"handoff/internal/logging"
	"handoff/internal/server"
	"handoff/internal/tools"
	"handoff/internal/tools/builtin"
)

var (
	version    = "dev"
	configPath string
)

func main() {
	root := &cobra.Command{
		Use:     "handoff-server",
		Short:   "Tool execution server with human-in-the-loop rendezvous",
		Long:    "handoff-server executes agent tool calls over HTTP. The human_in_loop tool blocks its request until a person resolves the task through the API, while all other endpoints keep serving.",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
		SilenceUsage: true,
	}
	root.Flags().StringVarP(&configPath, "config", "c", "", "path to config file (optional)")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := logging.NewComponentLogger("server")

	registry := hil.NewRegistry(logging.NewComponentLogger("hil"))
	sweeper := hil.NewSweeper(registry, cfg.SweepInterval, logging.NewComponentLogger("sweeper"))

	emitter := events.NewEmitter(logging.NewComponentLogger("events"))

	colorEnabled := cfg.ColorOutput && term.IsTerminal(int(os.Stdout.Fd()))
	emitter.Register(events.NewConsoleHandler(os.Stdout, colorEnabled))

	var jsonl *events.JSONLStreamHandler
	if cfg.JSONLEnabled {
		out := os.Stdout
		if cfg.JSONLPath != "" {
			f, err := os.OpenFile(cfg.JSONLPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return fmt.Errorf("open jsonl stream %s: %w", cfg.JSONLPath, err)
			}
			defer f.Close()
			out = f
		}
		jsonl = events.NewJSONLStreamHandler(out, logging.NewComponentLogger("jsonl"))
		emitter.Register(jsonl)
	}

	history := events.NewHistoryHandler()
	emitter.Register(history)

	stream := server.NewStreamHub(logging.NewComponentLogger("stream"))
	emitter.Register(stream)

	toolRegistry := tools.NewRegistry()
	if err := toolRegistry.Register(builtin.NewHumanInLoop(registry, logging.NewComponentLogger("hil-tool"))); err != nil {
		return err
	}
	if err := toolRegistry.Register(builtin.NewEcho()); err != nil {
		return err
	}

	gateway := server.NewGateway(toolRegistry, emitter, logging.NewComponentLogger("gateway"))
	api := server.NewAPIHandler(gateway, registry, history, logging.NewComponentLogger("api"))

	health := server.NewHealthChecker()
	health.RegisterProbe(server.NewRegistryProbe(registry))
	health.RegisterProbe(server.NewEmitterProbe(emitter))

	srv := server.New(server.Options{
		Addr:           cfg.Addr(),
		AllowedOrigins: cfg.AllowedOrigins,
	}, api, health, stream, logger)

	if err := sweeper.Start(); err != nil {
		return fmt.Errorf("start sweeper: %w", err)
	}

	logger.Info("Starting tool server on %s (sweep interval %s)", cfg.Addr(), cfg.SweepInterval)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(srv.Run)
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown: %v", err)
		}

		sweeper.Stop()
		stream.Close()
		if jsonl != nil {
			jsonl.Close()
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Server stopped")
	return nil
}
