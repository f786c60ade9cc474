package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/goldenwok-pos/printd/internal/config"
	"github.com/goldenwok-pos/printd/internal/database"
	"github.com/goldenwok-pos/printd/internal/handler"
	mw "github.com/goldenwok-pos/printd/internal/middleware"
	"github.com/goldenwok-pos/printd/internal/ws"
)

// New creates a Chi router with all application routes wired up. Everything
// except health and the websocket upgrade sits behind the shared-secret
// token check.
func New(cfg *config.Config, store *database.Store, hub *ws.Hub) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", mw.TokenHeader},
		AllowCredentials: false,
		MaxAge:           300, // 5 minutes
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","version":"1.0.0"}`))
	})

	// WebSocket route (authenticates via query param)
	r.Get("/ws/jobs", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, cfg.AuthToken, w, r)
	})

	// Protected routes (require the shared token)
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.AuthToken))

		jobHandler := handler.NewJobHandler(store)
		r.Route("/print-jobs", jobHandler.RegisterRoutes)
	})

	return r
}
