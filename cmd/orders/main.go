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

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/joao-fontenele/bookstore-orders/internal/auth"
	"github.com/joao-fontenele/bookstore-orders/internal/cache"
	"github.com/joao-fontenele/bookstore-orders/internal/config"
	"github.com/joao-fontenele/bookstore-orders/internal/messaging"
	"github.com/joao-fontenele/bookstore-orders/internal/orders"
	"github.com/joao-fontenele/bookstore-orders/internal/ratelimit"
	"github.com/joao-fontenele/bookstore-orders/internal/telemetry"
)

const (
	serviceName    = "orders"
	serviceVersion = "0.1.0"
)

func main() {
	_ = godotenv.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := run(logger); err != nil {
		logger.Error("orders service failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, cfg.Telemetry.OTLPEndpoint, serviceName, serviceVersion)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider(serviceName, serviceVersion)
	if err != nil {
		return fmt.Errorf("init meter: %w", err)
	}
	defer func() { _ = shutdownMeter(context.Background()) }()

	db, err := telemetry.OpenDB(ctx, "postgres", cfg.DB.URL())
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer func() { _ = db.Close() }()

	rdb, err := cache.Connect(ctx, cfg.Redis.URL, logger)
	if err != nil {
		return err
	}
	defer func() { _ = rdb.Close() }()

	// The broker must be reachable before the service accepts traffic.
	publisher := messaging.NewPublisher(messaging.PublisherConfig{
		Topic:          cfg.Broker.Topic,
		Attempts:       cfg.Broker.ConnectAttempts,
		RetryDelay:     cfg.Broker.RetryDelay,
		AttemptTimeout: cfg.Broker.ConnectTimeout,
	}, messaging.KafkaConnector(cfg.Broker.Brokers, cfg.Broker.ReplicationFactor), logger)
	if err := publisher.Connect(ctx); err != nil {
		return err
	}
	defer func() { _ = publisher.Close() }()

	repo := orders.NewOrderRepository(db)
	svc := orders.NewService(repo, cache.NewClient(rdb, logger), publisher, cfg.CacheTTL, logger)
	handler := orders.NewHandler(svc, publisher, logger)

	requireAuth := auth.Middleware(auth.NewVerifier(cfg.JWTSecret), logger)
	limiter := ratelimit.New(rdb, cfg.RateLimit.Max, cfg.RateLimit.Window, logger)

	mux := http.NewServeMux()
	handler.Routes(mux, requireAuth, limiter.Middleware)
	mux.Handle("GET /metrics", metricsHandler)

	server := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: otelhttp.NewHandler(mux, serviceName,
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				if r.Pattern != "" {
					return r.Pattern
				}
				return r.Method + " " + r.URL.Path
			}),
		),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting orders service", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
