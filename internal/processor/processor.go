// Package processor реализует C6 — Processor: пул воркеров, который
// вычерпывает очередь с ограниченным параллелизмом, вызывает
// зарегистрированный handler, применяет retry/dead-letter политику и ведёт
// историю попыток. Жизненный цикл (Start/Stop, sync.WaitGroup,
// флаг started) заимствован у worker.Worker teacher-репозитория;
// здесь poll-fallback и RabbitMQ consumer заменены единственным источником
// работы — internal/queue.Queue, а per-шаговый executor.Registry —
// разделяемым dispatch.HandlerRegistry.
package processor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sourceforge-bot/jobcore/internal/dedup"
	"github.com/sourceforge-bot/jobcore/internal/dispatch"
	"github.com/sourceforge-bot/jobcore/internal/domain"
	"github.com/sourceforge-bot/jobcore/internal/jobstore"
	"github.com/sourceforge-bot/jobcore/internal/ports"
	"github.com/sourceforge-bot/jobcore/internal/queue"
	"github.com/sourceforge-bot/jobcore/internal/retry"
	"github.com/sourceforge-bot/jobcore/internal/telemetry"
)

// jobState отслеживает всё, что процессор держит о job'е между его выходом
// из очереди (в момент Take) и терминальным статусом: живой токен отмены
// пока job выполняется, либо таймер ожидания retry, либо признак того, что
// Cancel пришёл раньше, чем job был взят из очереди.
type jobState struct {
	token           *cancelToken
	timer           *time.Timer
	cancelRequested bool
	pendingDelayMs  int64
}

// Processor — C6.
type Processor struct {
	registry *dispatch.HandlerRegistry
	queue    *queue.Queue
	dedup    *dedup.Service
	store    jobstore.Store
	policy   domain.RetryPolicy
	logger   *slog.Logger

	maxConcurrency int

	rootCtx    context.Context
	cancelRoot context.CancelFunc

	mu     sync.Mutex
	active map[string]*jobState

	wg      sync.WaitGroup
	started bool

	now func() time.Time
}

// Config конфигурирует Processor.
type Config struct {
	Registry       *dispatch.HandlerRegistry
	Queue          *queue.Queue
	Dedup          *dedup.Service
	Store          jobstore.Store
	Policy         domain.RetryPolicy
	MaxConcurrency int
	Logger         *slog.Logger
}

// New создаёт Processor. MaxConcurrency <= 0 приводится к 1.
func New(cfg Config) *Processor {
	maxConcurrency := cfg.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		registry:       cfg.Registry,
		queue:          cfg.Queue,
		dedup:          cfg.Dedup,
		store:          cfg.Store,
		policy:         cfg.Policy,
		logger:         logger,
		maxConcurrency: maxConcurrency,
		active:         make(map[string]*jobState),
		now:            time.Now,
	}
}

// Start запускает MaxConcurrency воркер-циклов. Каждый цикл вызывает
// queue.Take, обрабатывает job, повторяет. Возвращается немедленно —
// воркеры работают в фоне до Stop.
func (p *Processor) Start(ctx context.Context) {
	p.rootCtx, p.cancelRoot = context.WithCancel(ctx)
	p.started = true

	p.logger.Info("starting processor", "max_concurrency", p.maxConcurrency)

	for i := 0; i < p.maxConcurrency; i++ {
		p.wg.Add(1)
		go func(workerID int) {
			defer p.wg.Done()
			p.runWorker(workerID)
		}(i)
	}
}

// Stop останавливает приём новых job'ов, отменяет корневой контекст (чем
// сигнализирует отмену всем живым токенам попыток), отменяет ожидающие
// таймеры retry и блокируется до завершения всех воркеров.
func (p *Processor) Stop() {
	if !p.started {
		return
	}
	p.logger.Info("stopping processor...")

	p.cancelRoot()

	p.mu.Lock()
	for _, state := range p.active {
		if state.timer != nil {
			state.timer.Stop()
		}
	}
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("processor stopped")
}

func (p *Processor) runWorker(workerID int) {
	logger := p.logger.With("worker_id", workerID)
	for {
		job, ok := p.queue.Take(p.rootCtx)
		if !ok {
			logger.Debug("worker exiting, queue drained or shutdown")
			return
		}
		p.processJob(job)
	}
}

// processJob обрабатывает одну попытку выполнения job. Возвращает только
// после того, как попытка завершена и соответствующий переход статуса
// записан (либо job немедленно отменён без вызова handler'а).
func (p *Processor) processJob(job domain.Job) {
	ctx := p.rootCtx
	logger := p.logger.With("job_id", job.ID, "job_type", job.Type)

	p.mu.Lock()
	state, existed := p.active[job.ID]
	if existed && state.cancelRequested {
		delete(p.active, job.ID)
		p.mu.Unlock()
		logger.Info("job cancelled before first attempt")
		p.finalize(ctx, job, domain.JobStatusCancelled, domain.AttemptRecord{}, false)
		return
	}

	var delayBeforeMs int64
	if existed {
		delayBeforeMs = state.pendingDelayMs
	} else {
		state = &jobState{}
		p.active[job.ID] = state
	}

	token := newCancelToken(ctx)
	state.token = token
	state.timer = nil
	state.pendingDelayMs = 0
	p.mu.Unlock()

	startedAt := p.now()
	p.writeProcessing(ctx, job, startedAt)

	handler, ok := p.registry.Get(job.Type)
	result := p.invoke(handler, ok, &job, token)
	completedAt := p.now()
	// Попытка завершена: освобождаем derived context; флаг Cancelled() при
	// этом не меняется — его выставляет только Cancel.
	token.cancel()

	attempt := domain.AttemptRecord{
		AttemptNumber:   job.RetryCount + 1,
		StartedAt:       startedAt,
		CompletedAt:     completedAt,
		Succeeded:       result.Success,
		ErrorMessage:    result.ErrorMessage,
		ExceptionType:   result.ExceptionType,
		DurationMs:      completedAt.Sub(startedAt).Milliseconds(),
		DelayBeforeMs:   delayBeforeMs,
		BackoffStrategy: p.policy.Strategy,
	}

	telemetry.AttemptDurationSeconds.WithLabelValues(job.Type).Observe(completedAt.Sub(startedAt).Seconds())

	// Шаг append истории попыток предшествует публикации перехода статуса
	// отдельным Set — этим намеренно разделены два обновления записи.
	p.appendAttempt(ctx, job.ID, attempt)

	cancelled := token.Cancelled()
	switch {
	case cancelled:
		p.clearActive(job.ID)
		p.finalize(ctx, job, domain.JobStatusCancelled, attempt, true)
		logger.Info("job cancelled mid-attempt")
	case result.Success:
		p.clearActive(job.ID)
		p.finalize(ctx, job, domain.JobStatusCompleted, attempt, true)
		telemetry.JobsProcessedTotal.WithLabelValues(job.Type, "completed").Inc()
	case retry.ShouldRetry(p.policy, job.RetryCount, job.MaxRetries, result.ShouldRetry):
		p.scheduleRetry(ctx, job, attempt)
	case p.policy.Enabled && result.ShouldRetry:
		// Handler просил retry, но бюджет исчерпан.
		p.clearActive(job.ID)
		p.finalize(ctx, job, domain.JobStatusDeadLetter, attempt, true)
		telemetry.JobsProcessedTotal.WithLabelValues(job.Type, "dead_letter").Inc()
		telemetry.DeadLetterTotal.Inc()
		logger.Warn("job moved to dead-letter, retry budget exhausted")
	default:
		p.clearActive(job.ID)
		p.finalize(ctx, job, domain.JobStatusFailed, attempt, true)
		telemetry.JobsProcessedTotal.WithLabelValues(job.Type, "failed").Inc()
	}
}

func (p *Processor) invoke(handler ports.JobHandler, found bool, job *domain.Job, token *cancelToken) (result domain.JobResult) {
	if !found {
		return domain.JobResult{Success: false, ErrorMessage: "no handler registered for job type", ShouldRetry: false}
	}

	defer func() {
		if r := recover(); r != nil {
			result = domain.JobResult{
				Success:       false,
				ErrorMessage:  fmt.Sprintf("panic: %v", r),
				ExceptionType: "panic",
				ShouldRetry:   true,
			}
		}
	}()

	return handler.Execute(job, token)
}

// scheduleRetry увеличивает RetryCount, вычисляет задержку (на основе
// текущего, ещё не увеличенного RetryCount — NextDelay принимает 0-based
// номер попытки retry) и ставит таймер, который вернёт job в очередь без
// блокировки воркера.
func (p *Processor) scheduleRetry(ctx context.Context, job domain.Job, attempt domain.AttemptRecord) {
	delayMs := retry.NextDelay(p.policy, job.RetryCount)
	nextJob := job
	nextJob.RetryCount++

	p.transition(ctx, job.ID, func(r *domain.JobStatusRecord) {
		r.Status = domain.JobStatusRetrying
		r.RetryCount = nextJob.RetryCount
		r.LastError = attempt.ErrorMessage
		r.ExceptionType = attempt.ExceptionType
	})

	p.mu.Lock()
	state, ok := p.active[job.ID]
	if !ok || state.cancelRequested {
		// Отмена успела наступить между append попытки и этим шагом —
		// финализируем как Cancelled вместо постановки таймера.
		delete(p.active, job.ID)
		p.mu.Unlock()
		p.finalize(ctx, job, domain.JobStatusCancelled, attempt, true)
		return
	}
	state.pendingDelayMs = delayMs
	state.token = nil
	state.timer = time.AfterFunc(time.Duration(delayMs)*time.Millisecond, func() {
		p.fireRetry(nextJob)
	})
	p.mu.Unlock()

	telemetry.JobsProcessedTotal.WithLabelValues(job.Type, "retrying").Inc()
	p.logger.Info("job scheduled for retry", "job_id", job.ID, "retry_count", nextJob.RetryCount, "delay_ms", delayMs)
}

func (p *Processor) fireRetry(job domain.Job) {
	p.mu.Lock()
	state, ok := p.active[job.ID]
	if !ok || state.cancelRequested {
		p.mu.Unlock()
		return
	}
	state.timer = nil
	p.mu.Unlock()

	if !p.queue.Offer(job) {
		p.logger.Error("failed to re-offer retrying job, queue full", "job_id", job.ID)
	}
}

// clearActive удаляет bookkeeping-запись job'а — вызывается только на
// терминальных переходах.
func (p *Processor) clearActive(jobID string) {
	p.mu.Lock()
	delete(p.active, jobID)
	p.mu.Unlock()
}

func (p *Processor) writeProcessing(ctx context.Context, job domain.Job, startedAt time.Time) {
	p.transition(ctx, job.ID, func(r *domain.JobStatusRecord) {
		r.Status = domain.JobStatusProcessing
		r.StartedAt = &startedAt
	})
}

func (p *Processor) appendAttempt(ctx context.Context, jobID string, attempt domain.AttemptRecord) {
	p.transition(ctx, jobID, func(r *domain.JobStatusRecord) {
		r.Attempts = append(r.Attempts, attempt)
		r.RetryCount = attempt.AttemptNumber - 1
	})
}

// finalize записывает терминальный статус и освобождает idempotency key.
// Запись статуса видна читателям до освобождения ключа (spec §5
// write-visibility order).
func (p *Processor) finalize(ctx context.Context, job domain.Job, status domain.JobStatus, attempt domain.AttemptRecord, alreadyAppended bool) {
	completedAt := p.now()
	p.transition(ctx, job.ID, func(r *domain.JobStatusRecord) {
		if !alreadyAppended && !attempt.CompletedAt.IsZero() {
			r.Attempts = append(r.Attempts, attempt)
		}
		r.Status = status
		r.CompletedAt = &completedAt
		if attempt.ErrorMessage != "" {
			r.LastError = attempt.ErrorMessage
			r.ExceptionType = attempt.ExceptionType
		}
	})
	p.dedup.Unregister(job.ID)
}

// transition читает текущую запись (или начинает новую, если отсутствует —
// не должно происходить вне гонок с тестами), применяет mutate и сохраняет.
func (p *Processor) transition(ctx context.Context, jobID string, mutate func(*domain.JobStatusRecord)) {
	record, found, err := p.store.Get(ctx, jobID)
	if err != nil {
		p.logger.Error("failed to load status record for transition", "job_id", jobID, "error", err)
	}
	if !found || record == nil {
		record = &domain.JobStatusRecord{JobID: jobID, CreatedAt: p.now()}
	}
	mutate(record)
	if err := p.store.Set(ctx, record); err != nil {
		p.logger.Error("failed to persist status transition", "job_id", jobID, "error", err)
	}
}

// Cancel реализует dispatch.Canceller. Возвращает true только если job
// находился в Queued, Processing или Retrying.
func (p *Processor) Cancel(jobID string) bool {
	record, found, err := p.store.Get(p.backgroundCtx(), jobID)
	if err != nil || !found {
		return false
	}
	switch record.Status {
	case domain.JobStatusQueued, domain.JobStatusProcessing, domain.JobStatusRetrying:
	default:
		return false
	}

	p.mu.Lock()
	state, exists := p.active[jobID]
	if !exists {
		state = &jobState{}
		p.active[jobID] = state
	}
	state.cancelRequested = true

	token := state.token
	timer := state.timer
	isRetryingWithTimer := timer != nil
	p.mu.Unlock()

	if token != nil {
		token.Cancel()
	}
	if isRetryingWithTimer {
		timer.Stop()
		p.clearActive(jobID)
		p.finalize(p.backgroundCtx(), domain.Job{ID: jobID, Type: record.Type}, domain.JobStatusCancelled, domain.AttemptRecord{}, true)
	}

	return true
}

// backgroundCtx возвращает контекст для операций над хранилищем статусов,
// вызываемых вне цикла воркера (Cancel может прийти из HTTP-обработчика в
// произвольный момент, не привязанный к времени жизни попытки).
func (p *Processor) backgroundCtx() context.Context {
	return context.Background()
}
