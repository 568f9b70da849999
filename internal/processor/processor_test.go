package processor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sourceforge-bot/jobcore/internal/dedup"
	"github.com/sourceforge-bot/jobcore/internal/dispatch"
	"github.com/sourceforge-bot/jobcore/internal/domain"
	"github.com/sourceforge-bot/jobcore/internal/jobstore"
	"github.com/sourceforge-bot/jobcore/internal/ports"
	"github.com/sourceforge-bot/jobcore/internal/queue"
)

type fnHandler struct {
	jobType string
	fn      func(job *domain.Job, token ports.CancelToken) domain.JobResult
}

func (h fnHandler) JobType() string { return h.jobType }
func (h fnHandler) Execute(job *domain.Job, token ports.CancelToken) domain.JobResult {
	return h.fn(job, token)
}

const testTimeout = 2 * time.Second
const testTick = 5 * time.Millisecond

func TestProcessor_Success_WritesCompletedAndUnregistersKey(t *testing.T) {
	registry := dispatch.NewHandlerRegistry()
	require.NoError(t, registry.Register(fnHandler{jobType: "echo", fn: func(*domain.Job, ports.CancelToken) domain.JobResult {
		return domain.JobResult{Success: true}
	}}))

	q := queue.New(4)
	store := jobstore.NewMemory()
	dedupSvc := dedup.New()
	require.True(t, dedupSvc.Register("job-1", "key-1"))

	p := New(Config{
		Registry: registry, Queue: q, Dedup: dedupSvc, Store: store,
		Policy: domain.DefaultRetryPolicy(), MaxConcurrency: 1, Logger: discardLogger(),
	})
	p.Start(context.Background())
	defer p.Stop()

	ctx := context.Background()
	require.NoError(t, store.Set(ctx, &domain.JobStatusRecord{JobID: "job-1", Type: "echo", Status: domain.JobStatusQueued, IdempotencyKey: "key-1"}))
	require.True(t, q.Offer(domain.Job{ID: "job-1", Type: "echo", IdempotencyKey: "key-1"}))

	require.Eventually(t, func() bool {
		record, found, _ := store.Get(ctx, "job-1")
		return found && record.Status == domain.JobStatusCompleted
	}, testTimeout, testTick)

	_, inFlight := dedupSvc.GetInFlight("key-1")
	require.False(t, inFlight, "idempotency key must be released on completion")
}

func TestProcessor_TransientFailure_ThenSuccess(t *testing.T) {
	var attempts int32
	registry := dispatch.NewHandlerRegistry()
	require.NoError(t, registry.Register(fnHandler{jobType: "flaky", fn: func(*domain.Job, ports.CancelToken) domain.JobResult {
		if atomic.AddInt32(&attempts, 1) == 1 {
			return domain.JobResult{Success: false, ErrorMessage: "connection reset", ShouldRetry: true}
		}
		return domain.JobResult{Success: true}
	}}))

	q := queue.New(4)
	store := jobstore.NewMemory()
	policy := domain.RetryPolicy{Enabled: true, MaxRetries: 3, Strategy: domain.BackoffConstant, BaseDelay: 5 * time.Millisecond}

	p := New(Config{
		Registry: registry, Queue: q, Dedup: dedup.New(), Store: store,
		Policy: policy, MaxConcurrency: 1, Logger: discardLogger(),
	})
	p.Start(context.Background())
	defer p.Stop()

	ctx := context.Background()
	require.NoError(t, store.Set(ctx, &domain.JobStatusRecord{JobID: "job-2", Type: "flaky", Status: domain.JobStatusQueued, MaxRetries: 3}))
	require.True(t, q.Offer(domain.Job{ID: "job-2", Type: "flaky", MaxRetries: 3}))

	require.Eventually(t, func() bool {
		record, found, _ := store.Get(ctx, "job-2")
		return found && record.Status == domain.JobStatusCompleted
	}, testTimeout, testTick)

	record, _, _ := store.Get(ctx, "job-2")
	require.Len(t, record.Attempts, 2)
	require.Equal(t, 1, record.RetryCount)
	require.False(t, record.Attempts[0].Succeeded)
	require.True(t, record.Attempts[1].Succeeded)
	require.Greater(t, record.Attempts[1].DelayBeforeMs, int64(0), "second attempt must record the delay that preceded it")
}

func TestProcessor_HandlerSaysNoRetry_WritesFailed(t *testing.T) {
	registry := dispatch.NewHandlerRegistry()
	require.NoError(t, registry.Register(fnHandler{jobType: "strict", fn: func(*domain.Job, ports.CancelToken) domain.JobResult {
		return domain.JobResult{Success: false, ErrorMessage: "bad payload", ShouldRetry: false}
	}}))

	q := queue.New(4)
	store := jobstore.NewMemory()

	p := New(Config{
		Registry: registry, Queue: q, Dedup: dedup.New(), Store: store,
		Policy: domain.DefaultRetryPolicy(), MaxConcurrency: 1, Logger: discardLogger(),
	})
	p.Start(context.Background())
	defer p.Stop()

	ctx := context.Background()
	require.NoError(t, store.Set(ctx, &domain.JobStatusRecord{JobID: "job-3", Type: "strict", Status: domain.JobStatusQueued, MaxRetries: 3}))
	require.True(t, q.Offer(domain.Job{ID: "job-3", Type: "strict", MaxRetries: 3}))

	require.Eventually(t, func() bool {
		record, found, _ := store.Get(ctx, "job-3")
		return found && record.Status == domain.JobStatusFailed
	}, testTimeout, testTick)

	record, _, _ := store.Get(ctx, "job-3")
	require.Len(t, record.Attempts, 1)
	require.Equal(t, "bad payload", record.LastError)
}

func TestProcessor_RetriesExhausted_WritesDeadLetter(t *testing.T) {
	registry := dispatch.NewHandlerRegistry()
	require.NoError(t, registry.Register(fnHandler{jobType: "doomed", fn: func(*domain.Job, ports.CancelToken) domain.JobResult {
		return domain.JobResult{Success: false, ErrorMessage: "still broken", ShouldRetry: true}
	}}))

	q := queue.New(4)
	store := jobstore.NewMemory()
	policy := domain.RetryPolicy{Enabled: true, MaxRetries: 1, Strategy: domain.BackoffConstant, BaseDelay: 5 * time.Millisecond}

	p := New(Config{
		Registry: registry, Queue: q, Dedup: dedup.New(), Store: store,
		Policy: policy, MaxConcurrency: 1, Logger: discardLogger(),
	})
	p.Start(context.Background())
	defer p.Stop()

	ctx := context.Background()
	require.NoError(t, store.Set(ctx, &domain.JobStatusRecord{JobID: "job-4", Type: "doomed", Status: domain.JobStatusQueued, MaxRetries: 1}))
	require.True(t, q.Offer(domain.Job{ID: "job-4", Type: "doomed", MaxRetries: 1}))

	require.Eventually(t, func() bool {
		record, found, _ := store.Get(ctx, "job-4")
		return found && record.Status == domain.JobStatusDeadLetter
	}, testTimeout, testTick)

	record, _, _ := store.Get(ctx, "job-4")
	require.Len(t, record.Attempts, 2)
}

func TestProcessor_PanicInHandler_TreatedAsTransientFailure(t *testing.T) {
	var attempts int32
	registry := dispatch.NewHandlerRegistry()
	require.NoError(t, registry.Register(fnHandler{jobType: "flaky-panic", fn: func(*domain.Job, ports.CancelToken) domain.JobResult {
		if atomic.AddInt32(&attempts, 1) == 1 {
			panic("boom")
		}
		return domain.JobResult{Success: true}
	}}))

	q := queue.New(4)
	store := jobstore.NewMemory()
	policy := domain.RetryPolicy{Enabled: true, MaxRetries: 3, Strategy: domain.BackoffConstant, BaseDelay: 5 * time.Millisecond}

	p := New(Config{
		Registry: registry, Queue: q, Dedup: dedup.New(), Store: store,
		Policy: policy, MaxConcurrency: 1, Logger: discardLogger(),
	})
	p.Start(context.Background())
	defer p.Stop()

	ctx := context.Background()
	require.NoError(t, store.Set(ctx, &domain.JobStatusRecord{JobID: "job-5", Type: "flaky-panic", Status: domain.JobStatusQueued, MaxRetries: 3}))
	require.True(t, q.Offer(domain.Job{ID: "job-5", Type: "flaky-panic", MaxRetries: 3}))

	require.Eventually(t, func() bool {
		record, found, _ := store.Get(ctx, "job-5")
		return found && record.Status == domain.JobStatusCompleted
	}, testTimeout, testTick)

	record, _, _ := store.Get(ctx, "job-5")
	require.Equal(t, "panic", record.Attempts[0].ExceptionType)
}

func TestProcessor_CancelQueued_SkipsHandlerEntirely(t *testing.T) {
	var invoked int32
	registry := dispatch.NewHandlerRegistry()
	require.NoError(t, registry.Register(fnHandler{jobType: "untouchable", fn: func(*domain.Job, ports.CancelToken) domain.JobResult {
		atomic.AddInt32(&invoked, 1)
		return domain.JobResult{Success: true}
	}}))

	q := queue.New(4)
	store := jobstore.NewMemory()

	p := New(Config{
		Registry: registry, Queue: q, Dedup: dedup.New(), Store: store,
		Policy: domain.DefaultRetryPolicy(), MaxConcurrency: 1, Logger: discardLogger(),
	})

	ctx := context.Background()
	require.NoError(t, store.Set(ctx, &domain.JobStatusRecord{JobID: "job-6", Type: "untouchable", Status: domain.JobStatusQueued}))
	require.True(t, q.Offer(domain.Job{ID: "job-6", Type: "untouchable"}))

	require.True(t, p.Cancel("job-6"), "cancelling a known queued job must succeed")

	p.Start(ctx)
	defer p.Stop()

	require.Eventually(t, func() bool {
		record, found, _ := store.Get(ctx, "job-6")
		return found && record.Status == domain.JobStatusCancelled
	}, testTimeout, testTick)

	require.EqualValues(t, 0, atomic.LoadInt32(&invoked), "handler must never run for a job cancelled while queued")
}

func TestProcessor_CancelProcessing_MarksCancelledRegardlessOfHandlerOutcome(t *testing.T) {
	started := make(chan struct{})
	registry := dispatch.NewHandlerRegistry()
	require.NoError(t, registry.Register(fnHandler{jobType: "slow", fn: func(_ *domain.Job, token ports.CancelToken) domain.JobResult {
		close(started)
		<-token.Context().Done()
		return domain.JobResult{Success: true}
	}}))

	q := queue.New(4)
	store := jobstore.NewMemory()

	p := New(Config{
		Registry: registry, Queue: q, Dedup: dedup.New(), Store: store,
		Policy: domain.DefaultRetryPolicy(), MaxConcurrency: 1, Logger: discardLogger(),
	})
	p.Start(context.Background())
	defer p.Stop()

	ctx := context.Background()
	require.NoError(t, store.Set(ctx, &domain.JobStatusRecord{JobID: "job-7", Type: "slow", Status: domain.JobStatusQueued}))
	require.True(t, q.Offer(domain.Job{ID: "job-7", Type: "slow"}))

	<-started
	require.True(t, p.Cancel("job-7"))

	require.Eventually(t, func() bool {
		record, found, _ := store.Get(ctx, "job-7")
		return found && record.Status == domain.JobStatusCancelled
	}, testTimeout, testTick)
}

func TestProcessor_CancelUnknownJob_ReturnsFalse(t *testing.T) {
	store := jobstore.NewMemory()
	p := New(Config{
		Registry: dispatch.NewHandlerRegistry(), Queue: queue.New(1), Dedup: dedup.New(), Store: store,
		Policy: domain.DefaultRetryPolicy(), MaxConcurrency: 1, Logger: discardLogger(),
	})
	require.False(t, p.Cancel("does-not-exist"))
}
