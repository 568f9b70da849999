package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sourceforge-bot/jobcore/internal/domain"
)

func TestOffer_FullQueueFails(t *testing.T) {
	q := New(1)
	require.True(t, q.Offer(domain.Job{ID: "a"}))
	require.False(t, q.Offer(domain.Job{ID: "b"}))
	require.Equal(t, 1, q.Count())
}

// TestFIFOAdmission — spec §8 "FIFO admission": job A offered before job B,
// a single taker receives A first.
func TestFIFOAdmission(t *testing.T) {
	q := New(4)
	require.True(t, q.Offer(domain.Job{ID: "a"}))
	require.True(t, q.Offer(domain.Job{ID: "b"}))

	ctx := context.Background()
	first, ok := q.Take(ctx)
	require.True(t, ok)
	require.Equal(t, "a", first.ID)

	second, ok := q.Take(ctx)
	require.True(t, ok)
	require.Equal(t, "b", second.ID)
}

func TestTake_BlocksUntilOffer(t *testing.T) {
	q := New(1)

	type result struct {
		job domain.Job
		ok  bool
	}
	done := make(chan result, 1)
	go func() {
		job, ok := q.Take(context.Background())
		done <- result{job, ok}
	}()

	select {
	case <-done:
		t.Fatal("Take returned before any job was offered")
	case <-time.After(20 * time.Millisecond):
	}

	q.Offer(domain.Job{ID: "late"})

	select {
	case r := <-done:
		require.True(t, r.ok)
		require.Equal(t, "late", r.job.ID)
	case <-time.After(time.Second):
		t.Fatal("Take never woke up after Offer")
	}
}

func TestTake_ContextCancelled(t *testing.T) {
	q := New(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := q.Take(ctx)
	require.False(t, ok)
}

func TestClose_WakesBlockedTakers(t *testing.T) {
	q := New(1)

	done := make(chan bool, 1)
	go func() {
		_, ok := q.Take(context.Background())
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case ok := <-done:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Close did not wake blocked Take")
	}
}

func TestClose_DrainsBufferedJobsBeforeReturningFalse(t *testing.T) {
	q := New(2)
	q.Offer(domain.Job{ID: "a"})
	q.Close()

	job, ok := q.Take(context.Background())
	require.True(t, ok)
	require.Equal(t, "a", job.ID)

	_, ok = q.Take(context.Background())
	require.False(t, ok)
}

func TestOffer_FailsAfterClose(t *testing.T) {
	q := New(2)
	q.Close()
	require.False(t, q.Offer(domain.Job{ID: "a"}))
}
