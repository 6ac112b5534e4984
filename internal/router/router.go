package router

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	httphandler "alert-service/internal/handler/http"
	wshandler "alert-service/internal/handler/ws"
	"alert-service/internal/middleware"
)

// SetupRoutes configures the HTTP routes for the alert service.
func SetupRoutes(
	r chi.Router,
	h *httphandler.AlertHandler,
	wsHandler *wshandler.WSHandler,
	rdb *redis.Client,
	allowedOrigins []string,
	logger *zap.Logger,
) chi.Router {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.Health)

	// Event intake: one route per producer event type, throttled per
	// caller when redis is available.
	r.Route("/events", func(r chi.Router) {
		r.Use(middleware.RateLimit(rdb, 100, time.Minute, "events", logger))

		r.Post("/spec-change", h.SpecChange)
		r.Post("/expiry-soon", h.ExpirySoon)
		r.Post("/substitution", h.Substitution)
		r.Post("/stock-out", h.StockOut)
		r.Post("/prediction", h.Prediction)
	})

	r.Route("/notifications", func(r chi.Router) {
		r.Get("/", h.ListNotifications)
		r.Post("/{id}/ack", h.Acknowledge)
		r.Post("/{id}/resolve", h.Resolve)
	})

	r.Get("/ws", wsHandler.HandleAlerts)

	return r
}
