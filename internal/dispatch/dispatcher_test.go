package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sourceforge-bot/jobcore/internal/dedup"
	"github.com/sourceforge-bot/jobcore/internal/domain"
	"github.com/sourceforge-bot/jobcore/internal/jobstore"
	"github.com/sourceforge-bot/jobcore/internal/ports"
	"github.com/sourceforge-bot/jobcore/internal/queue"
)

type stubHandler struct{ jobType string }

func (h stubHandler) JobType() string { return h.jobType }
func (h stubHandler) Execute(_ *domain.Job, _ ports.CancelToken) domain.JobResult {
	return domain.JobResult{Success: true}
}

func newTestDispatcher(t *testing.T, capacity int) (*Dispatcher, *queue.Queue, *jobstore.Memory) {
	t.Helper()
	registry := NewHandlerRegistry()
	require.NoError(t, registry.Register(stubHandler{jobType: "plan"}))

	q := queue.New(capacity)
	store := jobstore.NewMemory()
	d := New(registry, q, dedup.New(), store, discardLogger())
	return d, q, store
}

func TestDispatch_NoHandler_WritesFailedWithoutRegisteringKey(t *testing.T) {
	d, _, store := newTestDispatcher(t, 1)
	ctx := context.Background()

	jobID, ok := d.Dispatch(ctx, domain.Job{Type: "unknown", IdempotencyKey: "k1"})
	require.False(t, ok)

	record, found, err := store.Get(ctx, jobID)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, domain.JobStatusFailed, record.Status)
	require.Equal(t, "no handler", record.LastError)

	_, inFlight := d.dedup.GetInFlight("k1")
	require.False(t, inFlight, "idempotency key must not be registered on no-handler failure")
}

func TestDispatch_Success_WritesQueued(t *testing.T) {
	d, q, store := newTestDispatcher(t, 4)
	ctx := context.Background()

	jobID, ok := d.Dispatch(ctx, domain.Job{Type: "plan"})
	require.True(t, ok)
	require.Equal(t, 1, q.Count())

	record, found, err := store.Get(ctx, jobID)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, domain.JobStatusQueued, record.Status)
}

func TestDispatch_DuplicateIdempotencyKey_Rejected(t *testing.T) {
	d, _, _ := newTestDispatcher(t, 4)
	ctx := context.Background()

	_, ok1 := d.Dispatch(ctx, domain.Job{Type: "plan", IdempotencyKey: "plan:t1"})
	require.True(t, ok1)

	_, ok2 := d.Dispatch(ctx, domain.Job{Type: "plan", IdempotencyKey: "plan:t1"})
	require.False(t, ok2, "second dispatch with an in-flight key must be rejected")
}

func TestDispatch_QueueFull_UnregistersKeyAndWritesFailed(t *testing.T) {
	d, q, store := newTestDispatcher(t, 1)
	ctx := context.Background()

	// Fill the queue directly so the next Dispatch's Offer fails.
	require.True(t, q.Offer(domain.Job{ID: "filler", Type: "plan"}))

	jobID, ok := d.Dispatch(ctx, domain.Job{Type: "plan", IdempotencyKey: "plan:t2"})
	require.False(t, ok)

	record, _, _ := store.Get(ctx, jobID)
	require.Equal(t, domain.JobStatusFailed, record.Status)
	require.Equal(t, "queue full", record.LastError)

	_, inFlight := d.dedup.GetInFlight("plan:t2")
	require.False(t, inFlight, "key must be released when Offer fails")
}

func TestCancel_NoCancellerConfigured_ReturnsFalse(t *testing.T) {
	d, _, _ := newTestDispatcher(t, 1)
	require.False(t, d.Cancel("whatever"))
}

type stubCanceller struct{ result bool }

func (c stubCanceller) Cancel(string) bool { return c.result }

func TestCancel_DelegatesToCanceller(t *testing.T) {
	d, _, _ := newTestDispatcher(t, 1)
	d.SetCanceller(stubCanceller{result: true})
	require.True(t, d.Cancel("job-1"))
}
