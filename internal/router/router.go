package router

import (
	"net/http"

	"flashdeal-api/internal/handler"
	"flashdeal-api/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// Config holds the configuration for creating a router.
type Config struct {
	Handler          *handler.Handler
	SeckillHandler   *handler.SeckillHandler
	PromotionHandler *handler.PromotionHandler
	AuthHandler      *handler.AuthHandler
	AuthMiddleware   func(http.Handler) http.Handler
}

// New creates and configures the HTTP router.
func New(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware stack (applies to ALL routes)
	r.Use(middleware.Recovery)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID", "X-Token"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	// PUBLIC routes (no auth required)
	if cfg.Handler != nil {
		r.Get("/api/status", cfg.Handler.Status)
	}

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.Handler != nil {
			r.Get("/health", cfg.Handler.Health)
		}

		if cfg.AuthHandler != nil {
			r.Post("/auth/token", cfg.AuthHandler.GenerateToken)
			r.Post("/auth/revoke", cfg.AuthHandler.RevokeToken)
		}

		if cfg.PromotionHandler != nil {
			r.Get("/promotions/{id}", cfg.PromotionHandler.Get)
			r.Post("/admin/promotions/{id}/warmup", cfg.PromotionHandler.Warmup)
		}

		// AUTHENTICATED routes
		r.Group(func(r chi.Router) {
			if cfg.AuthMiddleware != nil {
				r.Use(cfg.AuthMiddleware)
			}

			if cfg.SeckillHandler != nil {
				r.Post("/seckill/{promotion_id}", cfg.SeckillHandler.Admit)
			}
		})
	})

	return r
}
