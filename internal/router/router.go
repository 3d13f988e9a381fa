package router

import (
	"net/http"
	"time"

	"stall-lottery/internal/handler"
	"stall-lottery/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// Config holds the configuration for creating a router.
type Config struct {
	Handler            *handler.Handler
	LotteryHandler     *handler.LotteryHandler
	ParticipantHandler *handler.ParticipantHandler
	StallClassHandler  *handler.StallClassHandler
	AdminHandler       *handler.AdminHandler
	Realtime           http.Handler
	AuthMiddleware     func(http.Handler) http.Handler
	AllowedOrigins     []string

	// WriteTimeout bounds REST responses. /ws is exempt.
	WriteTimeout time.Duration
}

// New creates and configures the HTTP router.
func New(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	// Global middleware stack (applies to ALL routes)
	r.Use(middleware.Recovery)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID", middleware.LoginKeyHeader},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	writeDeadline := middleware.WriteDeadline(cfg.WriteTimeout)

	// PUBLIC routes
	if cfg.Handler != nil {
		r.With(writeDeadline).Get("/api/status", cfg.Handler.Status)
	}

	// Observers connect here; operator rights come from the login_key query parameter.
	if cfg.Realtime != nil {
		r.Handle("/ws", cfg.Realtime)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(writeDeadline)

		if cfg.Handler != nil {
			r.Get("/health", cfg.Handler.Health)
			r.Get("/ready", cfg.Handler.Ready)
		}

		if cfg.LotteryHandler != nil {
			r.Get("/current", cfg.LotteryHandler.Current)
		}

		if cfg.ParticipantHandler != nil {
			r.Post("/participants/login", cfg.ParticipantHandler.Login)
			r.Post("/categories/{category}/queue", cfg.ParticipantHandler.Queue)
		}

		if cfg.AdminHandler != nil {
			r.Post("/admin/login", cfg.AdminHandler.VerifyLogin)
		}

		// OPERATOR routes (big screen)
		r.Group(func(r chi.Router) {
			if cfg.AuthMiddleware != nil {
				r.Use(cfg.AuthMiddleware)
			}

			if cfg.LotteryHandler != nil {
				r.Get("/session", cfg.LotteryHandler.GetSession)
				r.Put("/session", cfg.LotteryHandler.SetSession)
				r.Get("/session/status", cfg.LotteryHandler.SessionStatus)

				r.Get("/categories/{category}/snapshot", cfg.LotteryHandler.Snapshot)
				r.Get("/categories/{category}/unqueued", cfg.LotteryHandler.Unqueued)
				r.Get("/categories/{category}/default-range", cfg.LotteryHandler.DefaultRange)
				r.Get("/categories/{category}/results", cfg.LotteryHandler.Results)
				r.Get("/categories/{category}/draw/next", cfg.LotteryHandler.NextDrawable)
				r.Post("/categories/{category}/draw", cfg.LotteryHandler.Draw)
			}

			if cfg.StallClassHandler != nil {
				r.Route("/stall-classes", func(r chi.Router) {
					r.Get("/", cfg.StallClassHandler.List)
					r.Post("/", cfg.StallClassHandler.Add)
					r.Put("/", cfg.StallClassHandler.UpdateBatch)
					r.Post("/sync", cfg.StallClassHandler.Sync)
					r.Put("/{id}", cfg.StallClassHandler.Update)
					r.Delete("/{id}", cfg.StallClassHandler.Delete)
				})
			}

			if cfg.ParticipantHandler != nil {
				r.Post("/owners/import", cfg.ParticipantHandler.Import)
			}

			if cfg.AdminHandler != nil {
				r.Get("/admin/stats", cfg.AdminHandler.GetStats)
				r.Get("/admin/health", cfg.AdminHandler.GetHealth)
			}
		})
	})

	return r
}
