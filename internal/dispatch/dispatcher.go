// Package dispatch реализует C5 — Dispatcher: admission path от job в
// очередь, плюс operator-facing Cancel. Dispatch's шестишаговая
// последовательность admission следует spec §4.5 построчно; фактический
// механизм отмены (токены, таймеры retry) принадлежит internal/processor —
// Dispatcher лишь маршрутизирует Cancel туда через интерфейс Canceller,
// точно так же как worker.Registry у teacher-репозитория разделяется
// между компонентами, которые его населяют и которые его используют.
package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sourceforge-bot/jobcore/internal/dedup"
	"github.com/sourceforge-bot/jobcore/internal/domain"
	"github.com/sourceforge-bot/jobcore/internal/jobstore"
	"github.com/sourceforge-bot/jobcore/internal/ports"
	"github.com/sourceforge-bot/jobcore/internal/queue"
)

// MetadataSourceKey — ключ в Job.Metadata, из которого Dispatcher копирует
// необязательный source-тег записи статуса, если вызывающая сторона его
// проставила (например webhook-обработчик кладёт "webhook").
const MetadataSourceKey = "source"

// Canceller сигнализирует отмену уже диспетчеризованного job'а. Реализуется
// Processor'ом, который один владеет живыми токенами и таймерами retry.
type Canceller interface {
	// Cancel возвращает true, если job был в Queued, Processing или
	// Retrying и отмена была доставлена.
	Cancel(jobID string) bool
}

// Dispatcher — C5.
type Dispatcher struct {
	registry *HandlerRegistry
	queue    *queue.Queue
	dedup    *dedup.Service
	store    jobstore.Store
	logger   *slog.Logger

	canceller Canceller

	now func() time.Time
	id  func() string
}

// New создаёт Dispatcher поверх уже сконструированных Queue/Dedup/Store и
// общего HandlerRegistry (тот же реестр, которым пользуется Processor).
func New(registry *HandlerRegistry, q *queue.Queue, dedupSvc *dedup.Service, store jobstore.Store, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		queue:    q,
		dedup:    dedupSvc,
		store:    store,
		logger:   logger,
		now:      time.Now,
		id:       func() string { return uuid.New().String() },
	}
}

// SetCanceller подключает Processor как Canceller после его конструирования,
// разрывая иначе неизбежный цикл импортов dispatch↔processor.
func (d *Dispatcher) SetCanceller(c Canceller) {
	d.canceller = c
}

// RegisterHandler индексирует handler в разделяемом реестре; повторная
// регистрация одного JobType — ошибка конфигурации.
func (d *Dispatcher) RegisterHandler(handler ports.JobHandler) error {
	return d.registry.Register(handler)
}

// Dispatch реализует шестишаговую admission-последовательность spec §4.5.
// Возвращает (jobID, accepted).
func (d *Dispatcher) Dispatch(ctx context.Context, job domain.Job) (string, bool) {
	if job.ID == "" {
		job.ID = d.id()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = d.now()
	}

	if _, ok := d.registry.Get(job.Type); !ok {
		d.writeFailed(ctx, job, "no handler")
		return job.ID, false
	}

	if job.IdempotencyKey != "" {
		if _, inFlight := d.dedup.GetInFlight(job.IdempotencyKey); inFlight {
			return job.ID, false
		}
		if !d.dedup.Register(job.ID, job.IdempotencyKey) {
			return job.ID, false
		}
	}

	if !d.queue.Offer(job) {
		d.dedup.Unregister(job.ID)
		d.writeFailed(ctx, job, "queue full")
		return job.ID, false
	}

	d.writeQueued(ctx, job)
	return job.ID, true
}

// Cancel делегирует отмену подключённому Canceller (Processor). Возвращает
// false, если ни один Canceller не подключён (misconfiguration) — не должно
// происходить вне тестов, собирающих Dispatcher в изоляции.
func (d *Dispatcher) Cancel(jobID string) bool {
	if d.canceller == nil {
		return false
	}
	return d.canceller.Cancel(jobID)
}

func (d *Dispatcher) writeFailed(ctx context.Context, job domain.Job, reason string) {
	now := d.now()
	record := &domain.JobStatusRecord{
		JobID:       job.ID,
		Type:        job.Type,
		Source:      job.Metadata[MetadataSourceKey],
		Status:      domain.JobStatusFailed,
		CreatedAt:   job.CreatedAt,
		CompletedAt: &now,
		LastError:   reason,
		MaxRetries:  job.MaxRetries,
		Metadata:    job.Metadata,
	}
	if err := d.store.Set(ctx, record); err != nil {
		d.logger.Error("failed to write failed status", "job_id", job.ID, "error", err)
	}
}

func (d *Dispatcher) writeQueued(ctx context.Context, job domain.Job) {
	record := &domain.JobStatusRecord{
		JobID:          job.ID,
		Type:           job.Type,
		Source:         job.Metadata[MetadataSourceKey],
		Status:         domain.JobStatusQueued,
		CreatedAt:      job.CreatedAt,
		MaxRetries:     job.MaxRetries,
		IdempotencyKey: job.IdempotencyKey,
		Metadata:       job.Metadata,
	}
	if err := d.store.Set(ctx, record); err != nil {
		d.logger.Error("failed to write queued status", "job_id", job.ID, "error", err)
	}
}
