package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/legacore/legacore/control-plane/internal/api/handlers"
	"github.com/legacore/legacore/control-plane/internal/api/middleware"
	"github.com/legacore/legacore/control-plane/internal/config"
)

const serviceName = "legacore-control-plane"

// NewRouter creates the HTTP router with all API routes.
func NewRouter(cfg *config.Config, h *handlers.Handlers) http.Handler {
	r := chi.NewRouter()

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.UserExtractor)
	r.Use(middleware.Logger)
	r.Use(middleware.Telemetry)
	r.Use(middleware.Metrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-User-Id", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id", "X-Trace-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", healthHandler)
	r.Get("/version", versionHandler(cfg))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/agents", func(r chi.Router) {
			r.Get("/", h.ListAgents)
			r.Get("/categories", h.ListCategories)
			r.Post("/execute", h.ExecuteAgent)
			r.Get("/execute", h.GetExecution)
			r.Route("/{agentId}", func(r chi.Router) {
				r.Get("/", h.GetAgent)
				r.Get("/tools", h.GetAgentTools)
			})
		})

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", h.ListTasks)
			r.Get("/{taskId}", h.GetTask)
		})

		r.Post("/chat", h.Chat)
		r.Get("/ai-status", h.AIStatus)

		r.Route("/threads", func(r chi.Router) {
			r.Post("/", h.CreateThread)
			r.Get("/{threadId}/messages", h.ListMessages)
			r.Post("/{threadId}/messages", h.PostMessage)
		})

		r.Get("/activity", h.ListActivity)
	})

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{
		"status":  "healthy",
		"service": serviceName,
	})
}

func versionHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{
			"version": cfg.Version,
			"service": serviceName,
		})
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
