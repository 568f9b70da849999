package api

import (
	"time"

	"github.com/sourceforge-bot/jobcore/internal/domain"
)

// AttemptResponse — одна запись истории попыток в ответе API.
type AttemptResponse struct {
	AttemptNumber   int    `json:"attemptNumber"`
	StartedAt       string `json:"startedAt"`
	CompletedAt     string `json:"completedAt"`
	Succeeded       bool   `json:"succeeded"`
	ErrorMessage    string `json:"errorMessage,omitempty"`
	ExceptionType   string `json:"exceptionType,omitempty"`
	DurationMs      int64  `json:"durationMs"`
	DelayBeforeMs   int64  `json:"delayBeforeMs"`
	BackoffStrategy string `json:"backoffStrategy,omitempty"`
}

// JobStatusResponse — ответ на GET /jobs/{jobId}/status и элемент GET /jobs.
type JobStatusResponse struct {
	JobID          string            `json:"jobId"`
	Type           string            `json:"type"`
	Source         string            `json:"source,omitempty"`
	Status         domain.JobStatus  `json:"status"`
	CreatedAt      time.Time         `json:"createdAt"`
	StartedAt      *time.Time        `json:"startedAt,omitempty"`
	CompletedAt    *time.Time        `json:"completedAt,omitempty"`
	LastError      string            `json:"lastError,omitempty"`
	ExceptionType  string            `json:"exceptionType,omitempty"`
	RetryCount     int               `json:"retryCount"`
	MaxRetries     int               `json:"maxRetries"`
	Attempts       []AttemptResponse `json:"attempts"`
	IdempotencyKey string            `json:"idempotencyKey,omitempty"`
}

// JobStatusFromDomain конвертирует запись хранилища статусов в ответ API.
func JobStatusFromDomain(r *domain.JobStatusRecord) JobStatusResponse {
	attempts := make([]AttemptResponse, len(r.Attempts))
	for i, a := range r.Attempts {
		attempts[i] = AttemptResponse{
			AttemptNumber:   a.AttemptNumber,
			StartedAt:       a.StartedAt.Format(time.RFC3339Nano),
			CompletedAt:     a.CompletedAt.Format(time.RFC3339Nano),
			Succeeded:       a.Succeeded,
			ErrorMessage:    a.ErrorMessage,
			ExceptionType:   a.ExceptionType,
			DurationMs:      a.DurationMs,
			DelayBeforeMs:   a.DelayBeforeMs,
			BackoffStrategy: string(a.BackoffStrategy),
		}
	}
	return JobStatusResponse{
		JobID:          r.JobID,
		Type:           r.Type,
		Source:         r.Source,
		Status:         r.Status,
		CreatedAt:      r.CreatedAt,
		StartedAt:      r.StartedAt,
		CompletedAt:    r.CompletedAt,
		LastError:      r.LastError,
		ExceptionType:  r.ExceptionType,
		RetryCount:     r.RetryCount,
		MaxRetries:     r.MaxRetries,
		Attempts:       attempts,
		IdempotencyKey: r.IdempotencyKey,
	}
}

// DispatchAcceptedResponse — тело 202 Accepted при успешной диспетчеризации
// из /webhook.
type DispatchAcceptedResponse struct {
	JobID     string `json:"jobId"`
	StatusURL string `json:"statusUrl"`
}

// TypeMetricsResponse — метрики одного типа job в ответе /jobs/metrics.
type TypeMetricsResponse struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// MetricsResponse — ответ на GET /jobs/metrics.
type MetricsResponse struct {
	GeneratedAt     time.Time                      `json:"generatedAt"`
	TotalByStatus   map[domain.JobStatus]int       `json:"totalByStatus"`
	DeadLetterTotal int                            `json:"deadLetterTotal"`
	QueueDepth      int                            `json:"queueDepth"`
	ByType          map[string]TypeMetricsResponse `json:"byType"`
}

// MetricsFromDomain конвертирует MetricsSnapshot в ответ API.
func MetricsFromDomain(m domain.MetricsSnapshot) MetricsResponse {
	byType := make(map[string]TypeMetricsResponse, len(m.ByType))
	for k, v := range m.ByType {
		byType[k] = TypeMetricsResponse{Total: v.Total, Succeeded: v.Succeeded, Failed: v.Failed}
	}
	return MetricsResponse{
		GeneratedAt:     m.GeneratedAt,
		TotalByStatus:   m.TotalByStatus,
		DeadLetterTotal: m.DeadLetterTotal,
		QueueDepth:      m.QueueDepth,
		ByType:          byType,
	}
}
