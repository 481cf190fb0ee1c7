// Package main is the entry point for the FraudWatch alert distribution
// service.
//
// It loads configuration, builds the in-memory distribution engine (the
// normalizer, both registries, and the router), wires the optional AWS
// collaborators (SQS dead-letter forwarding, CloudWatch metrics) and the
// optional Postgres audit store, mounts the HTTP surface on the core
// chassis, and runs the server alongside the background sweeps under a
// single errgroup.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM):
// the sweeps stop first, then the HTTP server drains, and only then are the
// remaining live connections released.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"fraudwatch/internal/alerts"
	"fraudwatch/internal/api/handlers"
	"fraudwatch/internal/config"
	"fraudwatch/internal/core"
	"fraudwatch/internal/queue"
	"fraudwatch/internal/store"
	"fraudwatch/internal/telemetry"
	"fraudwatch/internal/transport"
	"fraudwatch/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on
// error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("fraudwatch starting",
		"environment", cfg.Environment,
		"service", cfg.Service,
		"port", cfg.Server.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The engine components take the narrow types.Logger interface rather
	// than *slog.Logger directly.
	engineLogger := &slogAdapter{logger: logger}
	clock := types.RealClock{}

	// Build the distribution engine.
	normalizer := alerts.NewNormalizer(clock)
	subs := alerts.NewSubscriptionRegistry(
		cfg.Alerting.QueueCapacity,
		cfg.Alerting.DefaultTTL,
		clock,
		engineLogger.With("component", "subscriptions"),
	)
	conns := alerts.NewConnectionRegistry(
		cfg.Alerting.RetryBufferCapacity,
		cfg.Alerting.MaxDeliveryAttempts,
		cfg.Alerting.StaleConnectionAge,
		clock,
		engineLogger.With("component", "connections"),
	)
	metrics := alerts.NewMetricsAggregator(subs, conns)

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	// Optional Postgres audit store for routed-alert history.
	var audit alerts.AuditRecorder
	if cfg.Feature.EnableAudit {
		pool, err := store.NewPool(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("connecting audit store: %w", err)
		}
		defer pool.Close()

		audit = store.NewAlertAuditRepository(pool)
		srv.HealthProbes = append(srv.HealthProbes, &dbProbe{pool: pool})
		logger.Info("alert audit store enabled")
	}

	// Optional AWS collaborators share one SDK configuration.
	var awsCfg aws.Config
	if cfg.Feature.EnableDeadLetter || cfg.Feature.EnableCloudWatch {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
		if err != nil {
			return fmt.Errorf("loading AWS config: %w", err)
		}
	}

	if cfg.Feature.EnableDeadLetter {
		sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
			if cfg.AWS.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
			}
		})
		dlq := queue.NewDeadLetterQueue(
			sqsClient,
			cfg.AWS.DeadLetterQueueURL,
			clock,
			engineLogger.With("component", "dead_letter"),
		)
		conns.SetDeadLetterPublisher(dlq)
		logger.Info("dead-letter forwarding enabled", "queue_url", cfg.AWS.DeadLetterQueueURL)
	}

	var publisher *telemetry.Publisher
	if cfg.Feature.EnableCloudWatch {
		cwClient := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
			if cfg.AWS.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
			}
		})
		publisher = telemetry.NewPublisher(
			cwClient,
			metrics,
			cfg.AWS.MetricsInterval,
			engineLogger.With("component", "telemetry"),
		)
		logger.Info("cloudwatch metrics enabled", "interval", cfg.AWS.MetricsInterval.String())
	}

	router := alerts.NewAlertRouter(normalizer, subs, conns, audit,
		engineLogger.With("component", "router"))

	// HTTP surface: the distribution API plus the streaming endpoint.
	alertHandler := handlers.NewAlertHandler(normalizer, router, subs, metrics, srv.Validator, logger)
	streamHandler := transport.NewStreamHandler(conns, cfg.Server.StreamWriteTimeout,
		engineLogger.With("component", "stream"))
	webhookHandler := transport.NewWebhookHandler(conns, cfg.Server.WriteTimeout, srv.Validator)

	srv.RouteRegistrars = append(srv.RouteRegistrars,
		alertHandler.RegisterRoutes,
		webhookHandler.RegisterRoutes,
		func(r chi.Router) {
			r.Get("/stream", streamHandler.ServeHTTP)
		},
	)
	srv.MountRoutes()

	sweeper := alerts.NewSweeper(subs, conns,
		cfg.Alerting.SubscriptionSweep,
		cfg.Alerting.ConnectionSweep,
		engineLogger.With("component", "sweeper"),
	)

	// Streaming connections outlive any sane global write timeout, so the
	// server enforces only header-read and idle deadlines; per-write
	// deadlines on stream deliveries are enforced by the sink itself.
	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return sweeper.Run(gctx)
	})

	if publisher != nil {
		g.Go(func() error {
			return publisher.Run(gctx)
		})
	}

	// Shutdown watcher: when the group context is cancelled (signal or a
	// sibling failure) drain the HTTP server with a bounded deadline.
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("initiating graceful shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "error", err)
		}
		return nil
	})

	err = g.Wait()

	// The sweeps are stopped and the server drained; now release the
	// remaining live connections and discard subscription state.
	conns.Shutdown()
	subs.Close()

	if err != nil {
		return err
	}
	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log
// level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: false,
	})
	return slog.New(handler)
}

// slogAdapter wraps *slog.Logger to implement the types.Logger interface
// consumed by the engine components.
type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
func (a *slogAdapter) With(args ...any) types.Logger {
	return &slogAdapter{logger: a.logger.With(args...)}
}

var _ types.Logger = (*slogAdapter)(nil)

// dbProbe reports audit store connectivity to the health endpoint.
type dbProbe struct {
	pool *pgxpool.Pool
}

func (p *dbProbe) Name() string                    { return "audit-store" }
func (p *dbProbe) Check(ctx context.Context) error { return p.pool.Ping(ctx) }

var _ core.HealthProbe = (*dbProbe)(nil)
