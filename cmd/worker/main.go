// Command worker launches the WebhookHub delivery worker.
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
	"github.com/webhookhub/webhookhub/internal/delivery"
	"github.com/webhookhub/webhookhub/internal/infra/broker"
	"github.com/webhookhub/webhookhub/internal/infra/persistence/postgres"
	"github.com/webhookhub/webhookhub/internal/observability"
	"github.com/webhookhub/webhookhub/internal/telemetry"
	"github.com/webhookhub/webhookhub/internal/worker"
)

const (
	defaultOverridesPath     = "config/webhookhub.yaml"
	healthShutdownTimeout    = 5 * time.Second
	drainShutdownTimeout     = 35 * time.Second
	telemetryShutdownTimeout = 5 * time.Second
	dialTimeout              = 60 * time.Second
)

func main() {
	cfgPath := flag.String("config", defaultOverridesPath, "Path to optional configuration overrides file")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := observability.NewStdoutLogger(os.Stdout, "worker", observability.LevelInfo)
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
		ServiceName:  "webhookhub-worker",
		Environment:  string(cfg.Environment),
	})
	if err != nil {
		return fmt.Errorf("initialize telemetry: %w", err)
	}
	metrics, err := telemetry.NewRelayMetrics(telemetryProvider.Meter("webhookhub.worker"))
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	pool, err := postgres.NewPool(ctx, cfg.Database.DSN(), cfg.Database.WorkerPoolSize, cfg.Database.ConnectTimeout)
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
		store.Close()
		return fmt.Errorf("declare broker topology: %w", err)
	}
	logger.Info("broker topology declared")

	client := delivery.NewClient(delivery.DefaultTimeouts())
	deliveryWorker := worker.New(store.Deliveries, client, broker.NewPublisher(channel), metrics)
	consumer := broker.NewConsumer(channel, cfg.Worker.Prefetch, "webhookhub-worker")

	healthMux := http.NewServeMux()
	healthMux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	healthServer := &http.Server{
		Addr:              cfg.Worker.HealthAddr,
		Handler:           healthMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	var lifecycle conc.WaitGroup
	lifecycle.Go(func() {
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("health server", observability.Err(err))
		}
	})
	lifecycle.Go(func() {
		if err := consumer.Run(ctx, deliveryWorker.HandleMessage); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("consumer stopped", observability.Err(err))
			cancel()
		}
	})

	connClosed := conn.NotifyClose()
	lifecycle.Go(func() {
		select {
		case <-ctx.Done():
		case amqpErr, ok := <-connClosed:
			if ok && amqpErr != nil {
				logger.Error("broker connection lost", observability.Err(amqpErr))
			}
			cancel()
		}
	})

	logger.Info("worker started",
		observability.Int("prefetch", cfg.Worker.Prefetch),
		observability.String("queue", broker.QueueDeliveries),
	)

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), drainShutdownTimeout+healthShutdownTimeout+telemetryShutdownTimeout)
	defer shutdownCancel()

	// Drain in-flight handlers before the connection teardown returns the
	// remaining unacked messages to the broker.
	stepErrs := []error{
		shutdownStep(shutdownCtx, logger, "draining in-flight deliveries", drainShutdownTimeout, func(stepCtx context.Context) error {
			done := make(chan struct{})
			go func() {
				lifecycle.Wait()
				close(done)
			}()
			if err := healthServer.Shutdown(stepCtx); err != nil {
				logger.Error("health server shutdown", observability.Err(err))
			}
			select {
			case <-done:
				return nil
			case <-stepCtx.Done():
				return stepCtx.Err()
			}
		}),
		shutdownStep(shutdownCtx, logger, "closing broker connection", healthShutdownTimeout, func(context.Context) error {
			return conn.Close()
		}),
		shutdownStep(shutdownCtx, logger, "closing http client", healthShutdownTimeout, func(context.Context) error {
			client.Close()
			return nil
		}),
		shutdownStep(shutdownCtx, logger, "closing database pool", healthShutdownTimeout, func(context.Context) error {
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
