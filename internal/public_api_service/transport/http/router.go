package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"

	"github.com/orderpilot/dispatch_services/internal/public_api_service/middleware"
)

// NewRouter assembles the public HTTP surface: bearer-authenticated job
// endpoints and signature-authenticated provider webhooks.
func NewRouter(jobs *JobHandler, webhooks *WebhookHandler, jwtAccessSecret string, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chi_middleware.RequestID)
	r.Use(chi_middleware.RealIP)
	r.Use(chi_middleware.Recoverer)
	r.Use(PrometheusMetricsMiddleware)

	r.Route("/v1/jobs", func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(jwtAccessSecret, logger))
		jobs.Routes(r)
	})

	r.Route("/webhooks", func(r chi.Router) {
		r.Post("/inbound", webhooks.HandleInbound)
		r.Post("/status", webhooks.HandleStatusCallback)
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return r
}
