package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/komorebi-pos/engine/internal/config"
	"github.com/komorebi-pos/engine/internal/engine"
	"github.com/komorebi-pos/engine/internal/handler"
	mw "github.com/komorebi-pos/engine/internal/middleware"
	"github.com/komorebi-pos/engine/internal/ws"
)

// New creates a Chi router with all application routes wired up.
func New(cfg *config.Config, eng *engine.Engine, hub *ws.Hub, log zerolog.Logger) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","version":"1.0.0"}`))
	})

	// WebSocket route (handles auth internally via query param)
	r.Get("/ws/floors/{floor}/tables", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, cfg.JWTSecret, w, r)
	})

	// Protected routes (require authentication)
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))

		tableHandler := handler.NewTableHandler(eng, log)
		r.Route("/tables", tableHandler.RegisterRoutes)

		takeoutHandler := handler.NewTakeoutHandler(eng, log)
		r.Route("/takeout", takeoutHandler.RegisterRoutes)

		historyHandler := handler.NewHistoryHandler(eng, log)
		r.Route("/history", historyHandler.RegisterRoutes)
	})

	log.Info().Msg("router initialized")
	return r
}
