package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/litgraph/backend/internal/config"
)

// NewRouter wires the API. metricsHandler serves /metrics; pass nil to
// disable the endpoint.
func NewRouter(h *Handler, corsCfg config.CORSConfig, metricsHandler http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsCfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.Health)
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/resolve", h.Submit)
		r.Post("/by-identifier", h.ByIdentifier)

		r.Get("/tasks/{taskID}", h.GetTask)
		r.Delete("/tasks/{taskID}", h.CancelTask)
		r.Get("/tasks/{taskID}/stream", h.StreamTask)

		r.Get("/literatures/{lid}", h.GetLiterature)
		r.Get("/literatures/{lid}/fulltext", h.GetFulltext)
		r.Post("/literatures/batch", h.BatchGet)

		r.Get("/graphs", h.Graph)

		r.Post("/uploads", h.RequestUpload)
		r.Post("/uploads/confirm", h.ConfirmUpload)
	})
	return r
}

// Health pings both stores and reports per-dependency status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	deps := map[string]string{"graph": "ok", "broker": "ok"}
	healthy := true

	if err := h.lits.Ping(ctx); err != nil {
		deps["graph"] = err.Error()
		healthy = false
	}
	if err := h.tasks.Ping(ctx); err != nil {
		deps["broker"] = err.Error()
		healthy = false
	}

	status := http.StatusOK
	state := "healthy"
	if !healthy {
		status = http.StatusServiceUnavailable
		state = "degraded"
	}
	writeJSON(w, status, map[string]any{"status": state, "dependencies": deps})
}
