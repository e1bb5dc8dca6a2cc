package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQueueRejectsBeforeStartAndAfterStop(t *testing.T) {
	q := NewQueue("test", func(context.Context, Job[int]) error { return nil }, QueueConfig{})
	require.ErrorIs(t, q.Enqueue(Job[int]{ID: "1"}), ErrClosed)

	q.Start(context.Background())
	q.Stop()
	require.ErrorIs(t, q.Enqueue(Job[int]{ID: "late"}), ErrClosed)
}

func TestQueueRetriesThenDrops(t *testing.T) {
	var calls int32
	dropped := make(chan Job[string], 1)
	q := NewQueue("test", func(context.Context, Job[string]) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("boom")
	}, QueueConfig{MaxRetries: 2, RetryDelay: time.Millisecond})
	q.OnDrop(func(j Job[string], _ error) { dropped <- j })
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job[string]{ID: "job-1", Payload: "collection.verified"}))

	select {
	case job := <-dropped:
		require.Equal(t, "job-1", job.ID)
		require.Equal(t, "collection.verified", job.Payload)
		require.Equal(t, 3, job.Attempt)
	case <-time.After(time.Second):
		t.Fatal("job was never dropped")
	}
	require.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestQueueEnqueueNeverBlocks(t *testing.T) {
	release := make(chan struct{})
	q := NewQueue("test", func(context.Context, Job[int]) error {
		<-release
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 1})
	q.Start(context.Background())
	defer func() {
		close(release)
		q.Stop()
	}()

	require.NoError(t, q.Enqueue(Job[int]{ID: "busy"}))
	require.Eventually(t, func() bool { return q.Pending() == 0 }, time.Second, time.Millisecond)
	require.NoError(t, q.Enqueue(Job[int]{ID: "buffered"}))
	require.ErrorIs(t, q.Enqueue(Job[int]{ID: "overflow"}), ErrFull)
}

func TestQueueStopDrainsBufferedJobs(t *testing.T) {
	var mu sync.Mutex
	var seen []int
	gate := make(chan struct{})
	q := NewQueue("test", func(_ context.Context, j Job[int]) error {
		<-gate
		mu.Lock()
		seen = append(seen, j.Payload)
		mu.Unlock()
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 8})

	ctx, cancel := context.WithCancel(context.Background())
	q.Start(ctx)
	for i := 1; i <= 4; i++ {
		require.NoError(t, q.Enqueue(Job[int]{Payload: i}))
	}
	cancel()
	close(gate)
	q.Stop()

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []int{1, 2, 3, 4}, seen)
}
