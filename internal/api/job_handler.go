package api

import (
	"net/http"
	"strconv"

	"github.com/sourceforge-bot/jobcore/internal/domain"
	"github.com/sourceforge-bot/jobcore/internal/jobstore"
	"github.com/sourceforge-bot/jobcore/internal/telemetry"
)

// GetJobStatus возвращает запись статуса job.
// GET /jobs/{jobId}/status
func (h *Handler) GetJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("jobId")

	record, found, err := h.jobs.Get(r.Context(), jobID)
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}
	if !found {
		NotFound(w, "job not found")
		return
	}
	Success(w, JobStatusFromDomain(record))
}

// ListJobs возвращает отфильтрованные записи статуса.
// GET /jobs?status=&type=&source=&skip=&take=
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	filter := jobstore.ListFilter{
		Type:   r.URL.Query().Get("type"),
		Source: r.URL.Query().Get("source"),
		Skip:   queryInt(r, "skip", 0),
		Take:   queryInt(r, "take", 50),
	}
	if s := r.URL.Query().Get("status"); s != "" {
		status := domain.JobStatus(s)
		filter.Status = &status
	}

	records, err := h.jobs.List(r.Context(), filter)
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}

	result := make([]JobStatusResponse, len(records))
	for i, record := range records {
		result[i] = JobStatusFromDomain(record)
	}
	List(w, result, len(result))
}

// ListDeadLetter возвращает страницу job'ов в dead-letter.
// GET /jobs/dead-letter?skip=&take=
func (h *Handler) ListDeadLetter(w http.ResponseWriter, r *http.Request) {
	records, err := h.jobs.ListByStatus(r.Context(), domain.JobStatusDeadLetter, queryInt(r, "skip", 0), queryInt(r, "take", 50))
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}

	result := make([]JobStatusResponse, len(records))
	for i, record := range records {
		result[i] = JobStatusFromDomain(record)
	}
	List(w, result, len(result))
}

// JobMetrics возвращает агрегированные метрики Status Store.
// GET /jobs/metrics
func (h *Handler) JobMetrics(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.jobs.Metrics(r.Context(), 0)
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}
	Success(w, MetricsFromDomain(snapshot))
}

// CancelJob сигнализирует кооперативную отмену диспетчеризованного job'а.
// POST /jobs/{jobId}/cancel
func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("jobId")

	if !h.dispatcher.Cancel(jobID) {
		NotFound(w, "job not found or already terminal")
		return
	}

	logger := telemetry.WithJobID(h.logger, jobID)
	logger.Info("job cancellation requested via API")
	Success(w, map[string]string{"jobId": telemetry.StripCRLF(jobID)})
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
