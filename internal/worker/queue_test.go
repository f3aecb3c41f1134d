package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_FIFO(t *testing.T) {
	q := NewQueue()
	q.Enqueue("a")
	q.EnqueueAll([]string{"b", "c"})
	assert.Equal(t, 3, q.Len())

	for _, want := range []string{"a", "b", "c"} {
		got, err := q.Take(context.Background())
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.True(t, q.Empty())
}

func TestQueue_TakeBlocksUntilEnqueue(t *testing.T) {
	q := NewQueue()
	got := make(chan string, 1)
	go func() {
		id, _ := q.Take(context.Background())
		got <- id
	}()

	select {
	case <-got:
		t.Fatal("Take returned before anything was enqueued")
	case <-time.After(20 * time.Millisecond):
	}

	q.Enqueue("P1")
	select {
	case id := <-got:
		assert.Equal(t, "P1", id)
	case <-time.After(time.Second):
		t.Fatal("Take did not return after Enqueue")
	}
}

func TestQueue_TakeCanceled(t *testing.T) {
	q := NewQueue()
	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() {
		_, err := q.Take(ctx)
		errs <- err
	}()
	cancel()

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Take did not observe cancellation")
	}
}

func TestQueue_CanceledWinsOverPending(t *testing.T) {
	q := NewQueue()
	q.Enqueue("P1")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.Take(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, q.Len())
}

func TestQueue_EnqueueAllEmpty(t *testing.T) {
	q := NewQueue()
	q.EnqueueAll(nil)
	assert.True(t, q.Empty())
}
