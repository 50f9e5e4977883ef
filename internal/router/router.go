package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fornalha-pos/api/internal/config"
	"github.com/fornalha-pos/api/internal/database"
	"github.com/fornalha-pos/api/internal/enum"
	"github.com/fornalha-pos/api/internal/handler"
	mw "github.com/fornalha-pos/api/internal/middleware"
	"github.com/fornalha-pos/api/internal/service"
	"github.com/fornalha-pos/api/internal/ws"
)

// New creates a Chi router with all application routes wired up.
// Applies authentication, store scoping, and role-based middleware as needed.
func New(cfg *config.Config, queries *database.Queries, svc *service.Service, hub *ws.Hub) chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "https://painel.fornalha.app"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	authHandler := handler.NewAuthHandler(queries, cfg.JWTSecret)
	authHandler.RegisterRoutes(r)

	// WebSocket route (handles auth internally via query param)
	r.Get("/ws/stores/{sid}/orders", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, cfg.JWTSecret, w, r)
	})

	// Protected, store-scoped routes
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))

		r.Route("/stores/{sid}", func(r chi.Router) {
			r.Use(mw.RequireStore)

			orderHandler := handler.NewOrderHandler(svc, queries)
			r.Route("/orders", orderHandler.RegisterRoutes)

			kdsHandler := handler.NewKDSHandler(svc, queries)
			r.Route("/kds", kdsHandler.RegisterRoutes)

			// Manual stock adjustments are manager territory.
			r.Group(func(r chi.Router) {
				r.Use(mw.RequireRole(enum.UserRoleOwner, enum.UserRoleManager))
				stockHandler := handler.NewStockHandler(queries)
				r.Route("/stock", stockHandler.RegisterRoutes)
			})
		})
	})

	return r
}
