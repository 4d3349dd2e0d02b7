package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	corslib "github.com/rs/cors"

	"github.com/pitchside/gameweek-engine/internal/api/handler"
	"github.com/pitchside/gameweek-engine/internal/api/respond"
	"github.com/pitchside/gameweek-engine/internal/broadcast"
	"github.com/pitchside/gameweek-engine/internal/cache"
	"github.com/pitchside/gameweek-engine/internal/config"
)

// NewRouter creates and configures the Chi router with all middleware and routes.
func NewRouter(pool *pgxpool.Pool, appCache *cache.Cache, hub *broadcast.Hub, cfg *config.Config) *chi.Mux {
	r := chi.NewRouter()

	// --- Middleware stack ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5)) // gzip

	// CORS
	c := corslib.New(corslib.Options{
		AllowedOrigins:   cfg.CORSAllowOrigins,
		AllowedMethods:   []string{"GET", "HEAD", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Accept-Encoding", "Content-Type", "If-None-Match", "Cache-Control"},
		ExposedHeaders:   []string{"X-Cache", "ETag"},
		AllowCredentials: false,
	})
	r.Use(c.Handler)

	// --- Handler dependencies ---
	h := handler.New(pool, appCache)

	// --- Routes ---

	// Health checks
	r.Route("/health", func(r chi.Router) {
		r.Get("/", h.HealthCheck)
		r.Get("/db", h.HealthCheckDB)
	})

	// Websocket subscription endpoint
	r.Get("/ws", hub.ServeWS)
	r.Get("/ws/stats", func(w http.ResponseWriter, req *http.Request) {
		respond.WriteJSONObject(w, http.StatusOK, hub.Stats())
	})

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/competitions/{competitionID}", h.GetCompetition)
		r.Get("/competitions/{competitionID}/standings", h.GetStandings)
	})

	return r
}
