package worker

import (
	"context"
	"sort"
	"sync"
)

// Factory creates the worker of an owner.
type Factory func(owner string) *Worker

// Registry holds at most one worker per owner. Workers are created and
// started on first use and live until the registry context is canceled.
type Registry struct {
	ctx     context.Context
	factory Factory

	mu      sync.Mutex
	workers map[string]*Worker
}

// NewRegistry creates a registry whose workers run until ctx is canceled.
func NewRegistry(ctx context.Context, factory Factory) *Registry {
	return &Registry{
		ctx:     ctx,
		factory: factory,
		workers: make(map[string]*Worker),
	}
}

// Get returns the worker of owner, creating and starting it if needed. A
// stopped worker is returned as is and never replaced.
func (r *Registry) Get(owner string) *Worker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if w, ok := r.workers[owner]; ok {
		return w
	}
	w := r.factory(owner)
	r.workers[owner] = w
	w.Start(r.ctx)
	return w
}

// Lookup returns the worker of owner without creating one.
func (r *Registry) Lookup(owner string) (*Worker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workers[owner]
	return w, ok
}

// Owners returns the owners with a worker, sorted.
func (r *Registry) Owners() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	owners := make([]string, 0, len(r.workers))
	for o := range r.workers {
		owners = append(owners, o)
	}
	sort.Strings(owners)
	return owners
}

// Wait blocks until every worker has stopped or ctx is done.
func (r *Registry) Wait(ctx context.Context) error {
	r.mu.Lock()
	workers := make([]*Worker, 0, len(r.workers))
	for _, w := range r.workers {
		workers = append(workers, w)
	}
	r.mu.Unlock()

	for _, w := range workers {
		select {
		case <-w.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
