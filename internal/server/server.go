package server

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"alert-service/internal/config"
	httphandler "alert-service/internal/handler/http"
	wshandler "alert-service/internal/handler/ws"
	"alert-service/internal/repository"
	"alert-service/internal/router"
	"alert-service/internal/usecase"
	"alert-service/pkg/bus"
	"alert-service/pkg/hub"
)

// NewServer wires the store, hub, bus, usecase and handlers into an HTTP
// server ready to listen.
func NewServer(cfg config.AppConfig) *http.Server {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}

	// --- Store ---
	var store repository.Store
	if cfg.DatabaseURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		store, err = repository.NewPostgresStore(ctx, cfg.DatabaseURL)
		cancel()
		if err != nil {
			log.Fatalf("failed to open postgres store: %v", err)
		}
		logger.Info("using postgres store")
	} else {
		store, err = repository.NewMemoryStore(cfg.SnapshotFile)
		if err != nil {
			log.Fatalf("failed to open memory store: %v", err)
		}
		logger.Info("using in-memory store", zap.String("snapshot", cfg.SnapshotFile))
	}

	// --- Hub ---
	h := hub.New(logger)
	go h.Heartbeat(30 * time.Second)

	// --- Redis + fan-out bus ---
	var rdb *redis.Client
	var eventBus bus.Bus
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPass,
			DB:       0,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = rdb.Ping(ctx).Err()
		cancel()
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		eventBus = bus.NewRedis(rdb, h, logger)
		logger.Info("fan-out via redis", zap.String("addr", cfg.RedisAddr))
	} else {
		eventBus = bus.NewLocal(h)
		logger.Info("fan-out in process")
	}
	go func() {
		if err := eventBus.Start(context.Background()); err != nil && err != context.Canceled {
			logger.Error("event bus stopped", zap.Error(err))
		}
	}()

	// --- Usecase & handlers ---
	uc := usecase.NewAlertUsecase(store, eventBus, logger)
	restHandler := httphandler.NewAlertHandler(uc, logger)
	wsHandler := wshandler.NewWSHandler(h, logger)

	// --- Routes ---
	r := router.SetupRoutes(chi.NewRouter(), restHandler, wsHandler, rdb, cfg.AllowedOrigins, logger)

	return &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}
}
