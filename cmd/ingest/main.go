// Command ingest launches the WebhookHub ingest HTTP server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/webhookhub/webhookhub/config"
	"github.com/webhookhub/webhookhub/internal/infra/broker"
	"github.com/webhookhub/webhookhub/internal/infra/persistence/postgres"
	"github.com/webhookhub/webhookhub/internal/ingest"
	"github.com/webhookhub/webhookhub/internal/observability"
	"github.com/webhookhub/webhookhub/internal/telemetry"
)

const (
	defaultOverridesPath     = "config/webhookhub.yaml"
	serverShutdownTimeout    = 10 * time.Second
	lifecycleShutdownTimeout = 10 * time.Second
	telemetryShutdownTimeout = 5 * time.Second
	dialTimeout              = 60 * time.Second
)

func main() {
	cfgPath := flag.String("config", defaultOverridesPath, "Path to optional configuration overrides file")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := observability.NewStdoutLogger(os.Stdout, "ingest", observability.LevelInfo)
	observability.SetLogger(logger)

	if err := run(ctx, cancel, *cfgPath, logger); err != nil {
		logger.Error("fatal", observability.Err(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cancel context.CancelFunc, cfgPath string, logger observability.Logger) error {
	cfg := config.FromEnv()
	cfg, loadedOverrides, err := config.LoadOverrides(cfg, cfgPath)
	if err != nil {
		return fmt.Errorf("load overrides: %w", err)
	}
	if loadedOverrides {
		logger.Info("configuration overrides loaded", observability.String("path", cfgPath))
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate configuration: %w", err)
	}

	telemetryProvider, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:      cfg.Telemetry.Enabled,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure: cfg.Telemetry.OTLPInsecure,
		ServiceName:  "webhookhub-ingest",
		Environment:  string(cfg.Environment),
	})
	if err != nil {
		return fmt.Errorf("initialize telemetry: %w", err)
	}
	metrics, err := telemetry.NewRelayMetrics(telemetryProvider.Meter("webhookhub.ingest"))
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	pool, err := postgres.NewPool(ctx, cfg.Database.DSN(), cfg.Database.IngestPoolSize, cfg.Database.ConnectTimeout)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	store := postgres.New(pool)
	logger.Info("database connected")

	dialCtx, dialCancel := context.WithTimeout(ctx, dialTimeout)
	conn, err := broker.Dial(dialCtx, cfg.Broker.AMQPURL())
	dialCancel()
	if err != nil {
		store.Close()
		return fmt.Errorf("connect broker: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		store.Close()
		return fmt.Errorf("open broker channel: %w", err)
	}
	if err := broker.DeclareTopology(channel); err != nil {
		// Divergent queue arguments are a configuration error, not a retry case.
		store.Close()
		return fmt.Errorf("declare broker topology: %w", err)
	}
	logger.Info("broker topology declared")

	pipeline := ingest.NewPipeline(store.Sources, store.Capture, broker.NewPublisher(channel), metrics)
	server := ingest.NewServer(cfg.Ingest, pipeline, store.Sources, store.Destinations, store.Events, store.Deliveries)

	httpServer := &http.Server{
		Addr:              cfg.Ingest.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: cfg.Ingest.ReadHeaderTimeout,
	}

	var lifecycle conc.WaitGroup
	lifecycle.Go(func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("ingest server", observability.Err(err))
			cancel()
		}
	})
	logger.Info("ingest listening", observability.String("addr", cfg.Ingest.Addr))

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), serverShutdownTimeout+lifecycleShutdownTimeout+telemetryShutdownTimeout)
	defer shutdownCancel()

	stepErrs := []error{
		shutdownStep(shutdownCtx, logger, "stopping http server", serverShutdownTimeout, httpServer.Shutdown),
		shutdownStep(shutdownCtx, logger, "waiting for lifecycle goroutines", lifecycleShutdownTimeout, func(stepCtx context.Context) error {
			done := make(chan struct{})
			go func() {
				lifecycle.Wait()
				close(done)
			}()
			select {
			case <-done:
				return nil
			case <-stepCtx.Done():
				return stepCtx.Err()
			}
		}),
		shutdownStep(shutdownCtx, logger, "closing broker connection", serverShutdownTimeout, func(context.Context) error {
			return conn.Close()
		}),
		shutdownStep(shutdownCtx, logger, "closing database pool", serverShutdownTimeout, func(context.Context) error {
			store.Close()
			return nil
		}),
		shutdownStep(shutdownCtx, logger, "shutting down telemetry", telemetryShutdownTimeout, telemetryProvider.Shutdown),
	}
	if err := observability.AggregateErrors("shutdown", stepErrs); err != nil {
		return err
	}

	logger.Info("shutdown completed")
	return nil
}

func shutdownStep(ctx context.Context, logger observability.Logger, name string, timeout time.Duration, fn func(context.Context) error) error {
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := fn(stepCtx); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	logger.Info("shutdown step completed", observability.String("step", name))
	return nil
}
