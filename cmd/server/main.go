package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/streadway/amqp"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/RAHAT11790/RS-ANIME-02-sub000/internal/config"
	"github.com/RAHAT11790/RS-ANIME-02-sub000/internal/consumer"
	"github.com/RAHAT11790/RS-ANIME-02-sub000/internal/dispatch"
	"github.com/RAHAT11790/RS-ANIME-02-sub000/internal/registry"
	"github.com/RAHAT11790/RS-ANIME-02-sub000/internal/repository"
	"github.com/RAHAT11790/RS-ANIME-02-sub000/internal/sender"
	"github.com/RAHAT11790/RS-ANIME-02-sub000/internal/server"
	"github.com/RAHAT11790/RS-ANIME-02-sub000/internal/store"
	"github.com/RAHAT11790/RS-ANIME-02-sub000/pkg/logger"
	"github.com/RAHAT11790/RS-ANIME-02-sub000/pkg/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logr := logger.New(cfg.LogLevel)
	logr.Info("starting notification service", slog.String("app", cfg.AppName))

	var tokenStore store.Store
	if cfg.RedisURL != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisURL})
		tokenStore = store.NewRedisStore(rdb)
	} else {
		logr.Warn("REDIS_URL not set, token registry is process-local")
		tokenStore = store.NewMemoryStore()
	}
	defer tokenStore.Close()

	var audit dispatch.Auditor
	if cfg.DatabaseURL != "" {
		db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
		if err != nil {
			logr.Error("failed to connect database", slog.Any("error", err))
			os.Exit(1)
		}
		auditStore, err := repository.NewAuditStore(db, cfg.AuditTable, logr)
		if err != nil {
			logr.Error("failed to prepare audit table", slog.Any("error", err))
			os.Exit(1)
		}
		audit = auditStore
	}

	metricsCollector := metrics.New()
	reg := registry.New(tokenStore, logr)
	provider := sender.NewHTTPProvider(cfg.PushEndpoint, cfg.PushServerKey, cfg.ProviderTimeout)
	snd := sender.New(provider, metricsCollector, logr)
	engine := dispatch.NewEngine(reg, snd, metricsCollector, audit, logr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	router := server.New(engine, reg, metricsCollector, logr)
	httpSrv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: router,
	}
	go func() {
		logr.Info("http server listening", slog.String("addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Error("http server error", slog.Any("error", err))
		}
	}()

	if cfg.RabbitURL != "" {
		conn, err := amqp.Dial(cfg.RabbitURL)
		if err != nil {
			logr.Error("failed to connect rabbitmq", slog.Any("error", err))
			os.Exit(1)
		}
		defer conn.Close()

		base := consumer.NewBaseConsumer(
			conn,
			cfg.BroadcastQueue,
			cfg.BroadcastDLQ,
			cfg.PrefetchCount,
			cfg.WorkerCount,
			logr,
		)
		broadcast := consumer.NewBroadcastConsumer(base, engine, cfg.SiteOrigin, logr, cfg.MaxDeliveries)
		if err := broadcast.Start(ctx); err != nil {
			logr.Error("broadcast consumer exited", slog.Any("error", err))
		}
	} else {
		<-ctx.Done()
	}

	shutdownHTTP(httpSrv, logr)
	logr.Info("notification service stopped")
}

func shutdownHTTP(srv *http.Server, logr *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logr.Error("failed to shutdown http server", slog.Any("error", err))
	}
}
