package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"seisreg/internal/auth/token"
	"seisreg/internal/events"
	kafkasink "seisreg/internal/events/sink/kafka"
	postgressink "seisreg/internal/events/sink/postgres"
	redissink "seisreg/internal/events/sink/redis"
	paymenthandler "seisreg/internal/payment/handler"
	"seisreg/internal/payment/ledger"
	"seisreg/internal/platform/config"
	"seisreg/internal/platform/httpserver"
	"seisreg/internal/platform/metrics"
	"seisreg/internal/platform/postgres"
	"seisreg/internal/platform/redis"
	registryhandler "seisreg/internal/registry/handler"
	registrymetrics "seisreg/internal/registry/metrics"
	"seisreg/internal/registry/service"
	"seisreg/internal/registry/store"
	id "seisreg/pkg/domain"
	"seisreg/pkg/platform/httputil"
	request "seisreg/pkg/platform/middleware/request"
	"seisreg/pkg/platform/middleware/requesttime"
)

// custodyAddress owns the ledger account that escrows purchase funds.
var custodyAddress = id.MustParseAddress("0x5e15000000000000000000000000000000c057d1")

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the registry HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serveRun(cmd.Context(), configFrom(cmd.Context()))
		},
	}
}

func serveRun(ctx context.Context, cfg *config.Config) error {
	log := commonRun(cfg)
	if cfg.UsesDevSigningKey() {
		log.Warn("using the built-in JWT signing key; set SEISREG_JWT_SIGNING_KEY outside development")
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	eventLog := events.NewMemoryLog()
	publisher := events.NewPublisher(eventLog)
	custody := ledger.New(custodyAddress, ledger.WithLogger(log))

	registry, err := service.New(store.NewInMemory(cfg.Admin()), custody, custody,
		service.WithLogger(log),
		service.WithEventPublisher(publisher),
		service.WithMetrics(registrymetrics.New(prometheus.DefaultRegisterer)),
		service.WithTracer(otel.Tracer("seisreg/registry")),
	)
	if err != nil {
		return fmt.Errorf("build registry service: %w", err)
	}

	sinks, closeSinks, err := buildSinks(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeSinks()
	forwarder := events.NewForwarder(eventLog, sinks,
		events.WithBatchSize(cfg.Events.BatchSize),
		events.WithPollInterval(cfg.Events.PollInterval),
		events.WithForwarderLogger(log),
	)

	tokens := token.NewService(cfg.JWTSigningKey, cfg.JWTIssuer)
	httpMetrics := metrics.NewHTTP(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)

	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.Recovery(log))
	r.Use(request.Logger(log))
	r.Use(requesttime.Middleware)
	r.Use(httpMetrics.Middleware)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", httpMetrics.Handler())
	registryhandler.New(registry, publisher, tokens, log).Register(r)
	if cfg.DevAdminToken != "" {
		paymenthandler.New(custody, cfg.DevAdminToken, log).Register(r)
		log.Warn("dev ledger faucet enabled")
	}

	srv := httpserver.New(cfg.Addr, r)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpserver.Run(gctx, srv, cfg.ShutdownTimeout, log)
	})
	g.Go(func() error {
		return forwarder.Run(gctx)
	})
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	log.Info("shutdown complete")
	return nil
}

// buildSinks connects every configured event sink. The returned func closes
// the underlying connections.
func buildSinks(ctx context.Context, cfg *config.Config, log *slog.Logger) ([]events.Sink, func(), error) {
	var (
		sinks   []events.Sink
		closers []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) ([]events.Sink, func(), error) {
		closeAll()
		return nil, func() {}, err
	}

	db, err := postgres.Open(ctx, cfg.Events.DatabaseURL)
	if err != nil {
		return fail(err)
	}
	if db != nil {
		closers = append(closers, func() { closeDB(db, log) })
		sink := postgressink.New(db)
		if err := sink.Migrate(ctx); err != nil {
			return fail(fmt.Errorf("migrate event table: %w", err))
		}
		sinks = append(sinks, sink)
		log.Info("event sink enabled", "sink", sink.Name())
	}

	rdb, err := redis.New(ctx, cfg.Events.RedisURL)
	if err != nil {
		return fail(err)
	}
	if rdb != nil {
		closers = append(closers, func() { _ = rdb.Close() })
		sink := redissink.New(rdb.Client, cfg.Events.RedisStream, 0)
		sinks = append(sinks, sink)
		log.Info("event sink enabled", "sink", sink.Name(), "stream", cfg.Events.RedisStream)
	}

	if len(cfg.Events.KafkaBrokers) > 0 {
		client, err := kafkasink.NewClient(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, client.Close)
		if err := kafkasink.EnsureTopic(ctx, client, cfg.Events.KafkaTopic, 3); err != nil {
			return fail(err)
		}
		sink := kafkasink.New(client, cfg.Events.KafkaTopic)
		sinks = append(sinks, sink)
		log.Info("event sink enabled", "sink", sink.Name(), "topic", cfg.Events.KafkaTopic)
	}

	return sinks, closeAll, nil
}

func closeDB(db *sql.DB, log *slog.Logger) {
	if err := db.Close(); err != nil {
		log.Error("failed to close database", "error", err)
	}
}
