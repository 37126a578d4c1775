package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/apfabric/apfabric/internal/adapter/otel"
	"github.com/apfabric/apfabric/internal/config"
	"github.com/apfabric/apfabric/internal/logger"
)

// NewRouter builds the API router with the standard middleware stack.
func NewRouter(h *Handlers, cfg config.Server, serviceName string) chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(RequestID)
	r.Use(Logger)
	r.Use(CORS(cfg.CORSOrigin))
	r.Use(otel.HTTPMiddleware(serviceName))

	r.Get("/healthz", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"version": logger.Version})
		})

		r.Post("/invoices/process", h.ProcessInvoice)
		r.Post("/invoices/batch", h.ProcessBatch)
		r.Post("/invoices/intake", h.IntakeInvoice)

		r.Post("/extract", h.ExtractInvoice)
		r.Post("/train", h.Train)
		r.Post("/feedback", h.Feedback)

		r.Get("/history", h.History)
		r.Get("/kpis", h.KPIs)
	})

	return r
}
