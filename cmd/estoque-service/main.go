// Package main boots the estoque HTTP service.
package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fairyhunter13/estoque-service/internal/cache"
	"github.com/fairyhunter13/estoque-service/internal/config"
	"github.com/fairyhunter13/estoque-service/internal/events"
	"github.com/fairyhunter13/estoque-service/internal/events/kafka"
	"github.com/fairyhunter13/estoque-service/internal/events/rabbitmq"
	httpapi "github.com/fairyhunter13/estoque-service/internal/http"
	"github.com/fairyhunter13/estoque-service/internal/metrics"
	"github.com/fairyhunter13/estoque-service/internal/obs"
	"github.com/fairyhunter13/estoque-service/internal/queue"
	"github.com/fairyhunter13/estoque-service/internal/stock"
	"github.com/fairyhunter13/estoque-service/internal/store"
	"github.com/fairyhunter13/estoque-service/internal/store/postgres"
)

func main() {
	cfg := config.Load()
	obs.InitLogger(cfg.LogLevel)
	defer func() { _ = obs.Logger.Sync() }()
	obs.Logger.Info("service_starting", zap.String("events_driver", cfg.EventsDriver()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := obs.SetupTracing(ctx, obs.TracingConfig{Endpoint: cfg.OtelEndpoint, AuthHeader: cfg.OtelAuthHeader})
	if err != nil {
		obs.Logger.Error("tracing_setup_failed", zap.Error(err))
	}

	var closers []io.Closer
	st := openStore(ctx, cfg)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err := cache.Ping(ctx, rdb); err != nil {
			obs.Logger.Warn("redis_unavailable", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		st = cache.New(st, rdb, cfg.CacheTTL)
		closers = append(closers, rdb)
	}

	m := metrics.New()
	var pub events.Publisher = events.Nop{}
	switch cfg.EventsDriver() {
	case "kafka":
		kp := kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		pub = kp
		closers = append(closers, kp)
	case "rabbitmq":
		conn, ch, err := rabbitmq.SetupConn(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			obs.Logger.Fatal("amqp_setup_failed", zap.Error(err))
		}
		pub = rabbitmq.NewPublisher(ch, cfg.AMQPExchange)
		closers = append(closers, conn)
	}
	dispatcher := queue.NewDispatcher(pub, cfg.DispatchWorkers, cfg.DispatchBuffer, m)
	dispatcher.Start(ctx)

	catalog := stock.NewCatalog(st, dispatcher, m)
	engine := stock.NewEngine(st, dispatcher, m)
	app := httpapi.NewApp(cfg, catalog, engine, m)
	mux := httpapi.NewRouter(app)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		obs.Logger.Info("http_listen", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			obs.Logger.Error("http_server_error", zap.Error(err))
			os.Exit(1)
		}
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	s := <-sigc
	obs.Logger.Info("shutdown_signal", zap.String("signal", s.String()))

	app.StartShutdown()
	ctxSrv, cancelSrv := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelSrv()
	if err := srv.Shutdown(ctxSrv); err != nil {
		obs.Logger.Error("http_shutdown_error", zap.Error(err))
	}

	dispatcher.CloseIntake()
	obs.Logger.Info("shutdown_drain_begin", zap.Uint64("pending_events", dispatcher.Pending()))
	ctxDrain, cancelDrain := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelDrain()
	if drained := dispatcher.DrainUntil(ctxDrain); !drained {
		obs.Logger.Warn("shutdown_drain_timeout", zap.Uint64("pending_events", dispatcher.Pending()))
	} else {
		obs.Logger.Info("shutdown_drain_complete")
	}
	dispatcher.Stop()

	for _, c := range closers {
		if err := c.Close(); err != nil {
			obs.Logger.Warn("close_failed", zap.Error(err))
		}
	}
	ctxTrace, cancelTrace := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelTrace()
	if err := shutdownTracing(ctxTrace); err != nil {
		obs.Logger.Warn("tracing_shutdown_error", zap.Error(err))
	}
	obs.Logger.Info("service_stopped")
}

// openStore returns the Postgres store when DATABASE_URL is set and the in-memory store otherwise.
func openStore(ctx context.Context, cfg config.Config) store.Store {
	if cfg.DatabaseURL == "" {
		obs.Logger.Info("store_selected", zap.String("kind", "memory"))
		return store.NewMemory()
	}
	pool, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.DBConnectTimeout)
	if err != nil {
		obs.Logger.Fatal("db_connect_failed", zap.Error(err))
	}
	pg := postgres.New(pool)
	if err := pg.Migrate(ctx); err != nil {
		pool.Close()
		obs.Logger.Fatal("db_migrate_failed", zap.Error(err))
	}
	obs.Logger.Info("store_selected", zap.String("kind", "postgres"))
	return pg
}
