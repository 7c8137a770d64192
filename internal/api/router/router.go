package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/wolfman30/briefing-platform/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/briefing-platform/internal/http/middleware"
	"github.com/wolfman30/briefing-platform/pkg/logging"
)

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds router configuration
type Config struct {
	Logger         *logging.Logger
	WhatsApp       *handlers.WhatsAppWebhookHandler
	AdminBriefings *handlers.AdminBriefingsHandler
	AdminJWTSecret string
	MetricsHandler http.Handler
	MetricsToken   string

	// Readiness checks keyed by dependency name (optional)
	Dependencies map[string]Pinger
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Group(func(public chi.Router) {
		public.Get("/health", health(cfg.Dependencies))
		if cfg.MetricsHandler != nil {
			public.With(requireToken(cfg.MetricsToken)).Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.WhatsApp != nil {
			public.Route("/webhooks/whatsapp", func(r chi.Router) {
				r.Get("/", cfg.WhatsApp.Verify)
				r.Post("/", cfg.WhatsApp.Receive)
			})
		}
	})

	// Admin routes are only mounted when a signing secret is configured.
	if cfg.AdminBriefings != nil && cfg.AdminJWTSecret != "" {
		h := cfg.AdminBriefings
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminJWTSecret))
			admin.Route("/briefings", func(b chi.Router) {
				b.Post("/", h.Start)
				b.Get("/", h.List)
				b.Get("/{id}", h.Progress)
				b.Post("/{id}/cancel", h.Cancel)
				b.Get("/{id}/analytics", h.Analytics)
			})
			admin.Get("/analytics", h.RecentAnalytics)
			admin.Post("/templates/{templateID}/revisions", h.PublishRevision)
		})
	}

	return r
}

func health(deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		checks := make(map[string]string, len(deps))
		for name, dep := range deps {
			if err := dep.Ping(ctx); err != nil {
				checks[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			checks[name] = "ok"
		}
		resp := map[string]any{"status": "ok"}
		if status != http.StatusOK {
			resp["status"] = "degraded"
		}
		if len(checks) > 0 {
			resp["checks"] = checks
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
