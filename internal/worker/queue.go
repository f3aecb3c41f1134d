package worker

import (
	"context"
	"sync"
)

// Queue is an unbounded FIFO of product ids with a single blocking consumer.
// Enqueue never blocks.
type Queue struct {
	mu    sync.Mutex
	items []string
	ready chan struct{}
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{ready: make(chan struct{}, 1)}
}

// Enqueue appends id.
func (q *Queue) Enqueue(id string) {
	q.mu.Lock()
	q.items = append(q.items, id)
	q.mu.Unlock()
	q.signal()
}

// EnqueueAll appends ids as one batch; the consumer cannot observe an empty
// queue between them.
func (q *Queue) EnqueueAll(ids []string) {
	if len(ids) == 0 {
		return
	}
	q.mu.Lock()
	q.items = append(q.items, ids...)
	q.mu.Unlock()
	q.signal()
}

func (q *Queue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Take removes and returns the oldest id, blocking until one is available or
// ctx is done. A done ctx wins over pending items.
func (q *Queue) Take(ctx context.Context) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		q.mu.Lock()
		if len(q.items) > 0 {
			id := q.items[0]
			q.items[0] = ""
			q.items = q.items[1:]
			q.mu.Unlock()
			return id, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-q.ready:
		}
	}
}

// Empty reports whether no ids are waiting.
func (q *Queue) Empty() bool {
	return q.Len() == 0
}

// Len returns the number of waiting ids.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
