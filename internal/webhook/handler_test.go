package webhook

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sourceforge-bot/jobcore/internal/dedup"
	"github.com/sourceforge-bot/jobcore/internal/dispatch"
	"github.com/sourceforge-bot/jobcore/internal/domain"
	"github.com/sourceforge-bot/jobcore/internal/jobstore"
	"github.com/sourceforge-bot/jobcore/internal/ports"
	"github.com/sourceforge-bot/jobcore/internal/queue"
	"github.com/sourceforge-bot/jobcore/internal/taskstore"
)

type noopHandler struct{}

func (noopHandler) JobType() string { return JobTypePlan }
func (noopHandler) Execute(_ *domain.Job, _ ports.CancelToken) domain.JobResult {
	return domain.JobResult{Success: true}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubCanceller simulates the slice of Processor behavior the webhook
// cascade depends on: marking a job Cancelled in the status store. The
// real token/timer mechanics are covered by internal/processor's own tests.
type stubCanceller struct {
	jobs jobstore.Store
}

func (c *stubCanceller) Cancel(jobID string) bool {
	record, found, _ := c.jobs.Get(context.Background(), jobID)
	if !found {
		return false
	}
	now := time.Now()
	record.Status = domain.JobStatusCancelled
	record.CompletedAt = &now
	_ = c.jobs.Set(context.Background(), record)
	return true
}

func newTestHandler(t *testing.T) (*Handler, *jobstore.Memory, *taskstore.Memory, *dispatch.Dispatcher) {
	t.Helper()
	registry := dispatch.NewHandlerRegistry()
	require.NoError(t, registry.Register(noopHandler{}))

	jobs := jobstore.NewMemory()
	tasks := taskstore.NewMemory()
	d := dispatch.New(registry, queue.New(16), dedup.New(), jobs, discardLogger())
	d.SetCanceller(&stubCanceller{jobs: jobs})

	h := New(Config{
		Tasks:           tasks,
		Jobs:            jobs,
		Dispatcher:      d,
		ActivationLabel: "agent-go",
		Logger:          discardLogger(),
	})
	return h, jobs, tasks, d
}

const labeledIssuePayload = `{
	"action": "labeled",
	"label": {"name": "agent-go"},
	"issue": {"number": 42, "title": "fix the bug", "body": "steps to reproduce"},
	"repository": {"name": "widget", "owner": {"login": "acme"}},
	"installation": {"id": 7}
}`

func TestHandleEvent_LabeledIssue_CreatesTaskAndDispatchesPlanningJob(t *testing.T) {
	h, _, tasks, _ := newTestHandler(t)
	ctx := context.Background()

	result, err := h.HandleEvent(ctx, "issues", []byte(labeledIssuePayload))
	require.NoError(t, err)
	require.True(t, result.Enqueued)
	require.NotEmpty(t, result.JobID)

	task, found, err := tasks.Get(ctx, "acme/widget/issues/42")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, domain.AgentTaskPendingPlanning, task.Status)
	require.EqualValues(t, 7, task.InstallationID)
}

func TestHandleEvent_LabeledIssue_WrongLabelIgnored(t *testing.T) {
	h, _, tasks, _ := newTestHandler(t)
	ctx := context.Background()

	payload := `{"action":"labeled","label":{"name":"not-the-label"},"issue":{"number":1},"repository":{"name":"w","owner":{"login":"acme"}},"installation":{"id":1}}`
	result, err := h.HandleEvent(ctx, "issues", []byte(payload))
	require.NoError(t, err)
	require.False(t, result.Enqueued)

	_, found, _ := tasks.Get(ctx, "acme/w/issues/1")
	require.False(t, found, "non-matching label must not create a task")
}

func TestHandleEvent_LabeledIssue_OtherActionIgnored(t *testing.T) {
	h, _, _, _ := newTestHandler(t)
	payload := `{"action":"opened","label":{"name":"agent-go"},"issue":{"number":1},"repository":{"name":"w","owner":{"login":"acme"}},"installation":{"id":1}}`
	result, err := h.HandleEvent(context.Background(), "issues", []byte(payload))
	require.NoError(t, err)
	require.False(t, result.Enqueued)
}

func TestHandleEvent_DuplicateLabel_IdempotencyKeyRejectsSecondDispatch(t *testing.T) {
	h, _, _, _ := newTestHandler(t)
	ctx := context.Background()

	_, err := h.HandleEvent(ctx, "issues", []byte(labeledIssuePayload))
	require.NoError(t, err)

	result, err := h.HandleEvent(ctx, "issues", []byte(labeledIssuePayload))
	require.NoError(t, err)
	require.False(t, result.Enqueued, "a still in-flight planning job for the same task must reject a duplicate dispatch")
}

func TestHandleEvent_MalformedIssuesPayload_ReturnsError(t *testing.T) {
	h, _, _, _ := newTestHandler(t)
	_, err := h.HandleEvent(context.Background(), "issues", []byte(`not json`))
	require.ErrorIs(t, err, ErrMalformedPayload)
}

func TestHandleEvent_UnknownEventType_NoOp(t *testing.T) {
	h, _, _, _ := newTestHandler(t)
	result, err := h.HandleEvent(context.Background(), "ping", []byte(`{}`))
	require.NoError(t, err)
	require.Empty(t, result.JobID)
}

// TestHandleEvent_InstallationDeleted_CascadesCancellation реализует
// сценарий 5 из spec §8: T1 (Executing), T2 (Planned), T3 (Completed) для
// installation 7, T4 (Executing) для installation 9. После deleted(7):
// T1, T2 → Cancelled с CompletedAt; T3, T4 не изменяются.
func TestHandleEvent_InstallationDeleted_CascadesCancellation(t *testing.T) {
	h, jobs, tasks, d := newTestHandler(t)
	ctx := context.Background()

	seed := []*domain.AgentTask{
		{ID: "acme/w/issues/1", InstallationID: 7, Status: domain.AgentTaskExecuting, CreatedAt: time.Now()},
		{ID: "acme/w/issues/2", InstallationID: 7, Status: domain.AgentTaskPlanned, CreatedAt: time.Now()},
		{ID: "acme/w/issues/3", InstallationID: 7, Status: domain.AgentTaskCompleted, CreatedAt: time.Now()},
		{ID: "acme/w/issues/4", InstallationID: 9, Status: domain.AgentTaskExecuting, CreatedAt: time.Now()},
	}
	for _, task := range seed {
		require.NoError(t, tasks.Create(ctx, task))
	}

	jobID, ok := d.Dispatch(ctx, domain.Job{
		Type:     JobTypePlan,
		Metadata: map[string]string{MetadataInstallationIDKey: "7"},
	})
	require.True(t, ok)

	payload := `{"action":"deleted","installation":{"id":7}}`
	_, err := h.HandleEvent(ctx, "installation", []byte(payload))
	require.NoError(t, err)

	t1, _, _ := tasks.Get(ctx, "acme/w/issues/1")
	require.Equal(t, domain.AgentTaskCancelled, t1.Status)
	require.NotNil(t, t1.CompletedAt)

	t2, _, _ := tasks.Get(ctx, "acme/w/issues/2")
	require.Equal(t, domain.AgentTaskCancelled, t2.Status)

	t3, _, _ := tasks.Get(ctx, "acme/w/issues/3")
	require.Equal(t, domain.AgentTaskCompleted, t3.Status, "already-terminal tasks must be untouched")

	t4, _, _ := tasks.Get(ctx, "acme/w/issues/4")
	require.Equal(t, domain.AgentTaskExecuting, t4.Status, "tasks from other installations must be untouched")

	record, _, _ := jobs.Get(ctx, jobID)
	require.Equal(t, domain.JobStatusCancelled, record.Status)
}

func TestHandleEvent_InstallationOtherAction_Ignored(t *testing.T) {
	h, _, tasks, _ := newTestHandler(t)
	ctx := context.Background()

	task := &domain.AgentTask{ID: "acme/w/issues/9", InstallationID: 7, Status: domain.AgentTaskExecuting, CreatedAt: time.Now()}
	require.NoError(t, tasks.Create(ctx, task))

	payload := `{"action":"created","installation":{"id":7}}`
	_, err := h.HandleEvent(ctx, "installation", []byte(payload))
	require.NoError(t, err)

	got, _, _ := tasks.Get(ctx, "acme/w/issues/9")
	require.Equal(t, domain.AgentTaskExecuting, got.Status, "non-deleted installation actions must not touch tasks")
}
