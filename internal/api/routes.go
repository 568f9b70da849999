package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты HTTP-поверхности (C9).
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
	)

	mux.Handle("GET /health", chain(http.HandlerFunc(h.Health)))
	mux.Handle("GET /health/detailed", chain(http.HandlerFunc(h.HealthDetailed)))

	mux.Handle("POST /webhook", chain(http.HandlerFunc(h.HandleWebhook)))

	mux.Handle("GET /jobs", chain(http.HandlerFunc(h.ListJobs)))
	mux.Handle("GET /jobs/metrics", chain(http.HandlerFunc(h.JobMetrics)))
	mux.Handle("GET /jobs/dead-letter", chain(http.HandlerFunc(h.ListDeadLetter)))
	mux.Handle("GET /jobs/{jobId}/status", chain(http.HandlerFunc(h.GetJobStatus)))
	mux.Handle("POST /jobs/{jobId}/cancel", chain(http.HandlerFunc(h.CancelJob)))
}
