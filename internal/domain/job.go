// Package domain содержит основные сущности jobcore: Job, статусы, Plan и
// AgentTask. Пакет не содержит поведения хранения — только структуры данных
// и их локальные инварианты (переходы статусов, проверки).
package domain

import "time"

// JobStatus — статус выполнения job в очереди фоновых задач.
//
// Жизненный цикл:
//
//	Queued → Processing → Completed       (терминальный)
//	                    ↘ Failed           (терминальный, retry запрещён handler'ом или политикой)
//	                    ↘ Retrying → Queued (остался бюджет retry)
//	                    ↘ DeadLetter        (терминальный, retry исчерпан)
//	Queued/Processing/Retrying → Cancelled (терминальный, по Cancel)
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusRetrying   JobStatus = "retrying"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusDeadLetter JobStatus = "dead_letter"
	JobStatusCancelled  JobStatus = "cancelled"
)

// IsTerminal возвращает true, если статус финальный — дальнейших переходов нет.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusDeadLetter, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// BackoffStrategy — стратегия вычисления задержки перед retry.
type BackoffStrategy string

const (
	BackoffConstant    BackoffStrategy = "constant"
	BackoffLinear      BackoffStrategy = "linear"
	BackoffExponential BackoffStrategy = "exponential"
)

// RetryPolicy — неизменяемая конфигурация retry для процессора.
//
// Применяется процессом целиком; отдельные job'ы её не переопределяют.
type RetryPolicy struct {
	Enabled         bool
	MaxRetries      int
	Strategy        BackoffStrategy
	BaseDelay       time.Duration
	MaxDelay        time.Duration // 0 означает "без ограничения"
	MinJitterFactor float64
	MaxJitterFactor float64
}

// DefaultRetryPolicy возвращает политику по умолчанию из spec §6:
// enabled, maxRetries=3, exponential, base=5s, max=300s, jitter=[0, 0.2].
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Enabled:         true,
		MaxRetries:      3,
		Strategy:        BackoffExponential,
		BaseDelay:       5 * time.Second,
		MaxDelay:        300 * time.Second,
		MinJitterFactor: 0,
		MaxJitterFactor: 0.2,
	}
}

// Job — единица отложенной работы, передаваемая через очередь процессору.
//
// Job неизменяем после диспетчеризации, за исключением RetryCount,
// который инкрементируется процессором при каждом retry.
type Job struct {
	ID             string
	Type           string
	Payload        string
	IdempotencyKey string
	MaxRetries     int
	RetryCount     int
	CreatedAt      time.Time
	Metadata       map[string]string
}

// AttemptRecord — запись об одном выполнении handler'а для job.
//
// Append-only: процессор добавляет ровно одну запись на попытку,
// существующие записи не изменяются.
type AttemptRecord struct {
	AttemptNumber   int
	StartedAt       time.Time
	CompletedAt     time.Time
	Succeeded       bool
	ErrorMessage    string
	ExceptionType   string
	DurationMs      int64
	DelayBeforeMs   int64
	BackoffStrategy BackoffStrategy
}

// JobStatusRecord — изменяемая запись о состоянии job, хранимая в Status Store.
//
// Создаётся при диспетчеризации и обновляется при каждом переходе статуса;
// никогда не удаляется (сохраняется для наблюдаемости).
type JobStatusRecord struct {
	JobID          string
	Type           string
	Source         string
	Status         JobStatus
	CreatedAt      time.Time
	StartedAt      *time.Time
	CompletedAt    *time.Time
	LastError      string
	ExceptionType  string
	RetryCount     int
	MaxRetries     int
	Attempts       []AttemptRecord
	IdempotencyKey string
	Metadata       map[string]string
}

// Clone возвращает глубокую копию записи — Status Store никогда не должен
// отдавать читателям указатель на собственное внутреннее состояние.
func (r *JobStatusRecord) Clone() *JobStatusRecord {
	if r == nil {
		return nil
	}
	cp := *r
	if r.StartedAt != nil {
		t := *r.StartedAt
		cp.StartedAt = &t
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		cp.CompletedAt = &t
	}
	if r.Attempts != nil {
		cp.Attempts = make([]AttemptRecord, len(r.Attempts))
		copy(cp.Attempts, r.Attempts)
	}
	if r.Metadata != nil {
		cp.Metadata = make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

// JobResult — результат одного выполнения handler'а (spec §6 JobHandler port).
type JobResult struct {
	Success       bool
	ErrorMessage  string
	ExceptionType string
	ShouldRetry   bool
}

// MetricsSnapshot — агрегированная выборка из Status Store (C3 Metrics()).
type MetricsSnapshot struct {
	GeneratedAt     time.Time
	TotalByStatus   map[JobStatus]int
	DeadLetterTotal int
	QueueDepth      int
	ByType          map[string]TypeMetrics
}

// TypeMetrics — успехи/неудачи по типу job, исключая DeadLetter (spec §4.3,
// §9 open question: dead-letter считается отдельно на верхнем уровне).
type TypeMetrics struct {
	Total     int
	Succeeded int
	Failed    int
}
