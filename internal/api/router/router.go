package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/wellness-companion/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/wellness-companion/internal/http/middleware"
	"github.com/wolfman30/wellness-companion/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Companion          *handlers.CompanionHandler
	Papers             *handlers.PapersHandler
	SafetyEvents       *handlers.SafetyEventsHandler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
	AuthSecret         string
	AdminToken         string

	// Per-client chat limits; zero disables limiting.
	RateLimitPerSecond float64
	RateLimitBurst     int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	// Public endpoints
	r.Group(func(public chi.Router) {
		public.Get("/health", cfg.Companion.HealthCheck)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	// Companion API
	r.Route("/v1", func(api chi.Router) {
		api.Use(httpmiddleware.UserJWT(cfg.AuthSecret))
		if cfg.RateLimitPerSecond > 0 && cfg.RateLimitBurst > 0 {
			api.Use(httpmiddleware.RateLimit(cfg.RateLimitPerSecond, cfg.RateLimitBurst))
		}

		api.Get("/chat/stream", cfg.Companion.Stream)
		api.Group(func(rest chi.Router) {
			// Compression would break the WebSocket upgrade, so it stays off the stream route.
			rest.Use(middleware.Compress(5))
			rest.Post("/chat", cfg.Companion.Chat)
			rest.Post("/screening/answers", cfg.Companion.AnswerScreening)
			rest.Post("/screening/{conversationID}/conclude", cfg.Companion.ConcludeScreening)
			rest.Get("/conversations/{conversationID}/turns", cfg.Companion.History)
		})
	})

	// Operator endpoints
	if cfg.Papers != nil || cfg.SafetyEvents != nil {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(requireAdminToken(cfg.AdminToken))
			if cfg.Papers != nil {
				admin.Post("/papers", cfg.Papers.Ingest)
			}
			if cfg.SafetyEvents != nil {
				admin.Get("/safety-events", cfg.SafetyEvents.List)
			}
		})
	}

	return r
}
