// Package memory is an in-process index used for local development and
// tests. It records writer lifecycle calls so callers can assert on them.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/utafrali/catalog-indexer/internal/document"
	"github.com/utafrali/catalog-indexer/internal/engine"
)

// Stats counts writer lifecycle calls for one owner. CommitOps holds, per
// Commit call, the operations applied through that writer so far, failed
// commits included.
type Stats struct {
	Opens     int
	Commits   int
	Closes    int
	CommitOps []int
}

type ownerIndex struct {
	docs   map[string]*document.Document
	locked bool
	stats  Stats
}

// Store holds committed documents per owner. Thread-safe via sync.Mutex.
type Store struct {
	mu         sync.Mutex
	owners     map[string]*ownerIndex
	openErr    error
	commitErr  error
	closeErr   error
	updateErrs map[string]error
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		owners:     make(map[string]*ownerIndex),
		updateErrs: make(map[string]error),
	}
}

func (s *Store) owner(name string) *ownerIndex {
	o, ok := s.owners[name]
	if !ok {
		o = &ownerIndex{docs: make(map[string]*document.Document)}
		s.owners[name] = o
	}
	return o
}

// FailOpen makes every subsequent Open return err. A nil err clears it.
func (s *Store) FailOpen(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openErr = err
}

// FailCommit makes the next Commit return err and keep its pending
// operations.
func (s *Store) FailCommit(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitErr = err
}

// FailClose makes the next Close return err. The lock is still released and
// pending operations are dropped.
func (s *Store) FailClose(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeErr = err
}

// FailUpdate makes Update of the document id return err. A nil err clears it.
func (s *Store) FailUpdate(id string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.updateErrs, id)
		return
	}
	s.updateErrs[id] = err
}

// Open implements engine.Opener. Only one writer per owner may be open.
func (s *Store) Open(_ context.Context, owner string) (engine.Writer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.openErr != nil {
		return nil, s.openErr
	}
	o := s.owner(owner)
	if o.locked {
		return nil, fmt.Errorf("%s: %w", owner, engine.ErrLocked)
	}
	o.locked = true
	o.stats.Opens++
	return &Writer{store: s, owner: owner, pending: make(map[string]*document.Document)}, nil
}

// Get returns the committed document for id.
func (s *Store) Get(owner, id string) (*document.Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.owner(owner).docs[id]
	return doc, ok
}

// IDs returns the committed document ids of owner in lexical order.
func (s *Store) IDs(owner string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	docs := s.owner(owner).docs
	ids := make([]string, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Stats returns the lifecycle counters of owner.
func (s *Store) Stats(owner string) Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := s.owner(owner).stats
	stats.CommitOps = append([]int(nil), stats.CommitOps...)
	return stats
}

// Locked reports whether a writer is open for owner.
func (s *Store) Locked(owner string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owner(owner).locked
}

// Writer buffers operations until Commit. A nil entry in pending is a
// delete.
type Writer struct {
	store   *Store
	owner   string
	pending map[string]*document.Document
	order   []string
	ops     int
	closed  bool
}

func (w *Writer) stage(id string, doc *document.Document) {
	if _, ok := w.pending[id]; !ok {
		w.order = append(w.order, id)
	}
	w.pending[id] = doc
	w.ops++
}

// Update implements engine.Writer.
func (w *Writer) Update(_ context.Context, doc *document.Document) error {
	if w.closed {
		return engine.ErrClosed
	}
	w.store.mu.Lock()
	err := w.store.updateErrs[doc.ID()]
	w.store.mu.Unlock()
	if err != nil {
		return err
	}
	w.stage(doc.ID(), doc)
	return nil
}

// Delete implements engine.Writer.
func (w *Writer) Delete(_ context.Context, id string) error {
	if w.closed {
		return engine.ErrClosed
	}
	w.stage(id, nil)
	return nil
}

// Commit implements engine.Writer.
func (w *Writer) Commit(_ context.Context) error {
	if w.closed {
		return engine.ErrClosed
	}
	w.store.mu.Lock()
	defer w.store.mu.Unlock()
	stats := &w.store.owner(w.owner).stats
	stats.CommitOps = append(stats.CommitOps, w.ops)
	if err := w.store.commitErr; err != nil {
		w.store.commitErr = nil
		return err
	}
	stats.Commits++
	w.flushLocked()
	return nil
}

func (w *Writer) flushLocked() {
	docs := w.store.owner(w.owner).docs
	for _, id := range w.order {
		if doc := w.pending[id]; doc != nil {
			docs[id] = doc
		} else {
			delete(docs, id)
		}
	}
	w.pending = make(map[string]*document.Document)
	w.order = nil
}

// Close implements engine.Writer. Pending operations are applied but not
// counted as a commit.
func (w *Writer) Close(_ context.Context) error {
	if w.closed {
		return nil
	}
	w.closed = true

	w.store.mu.Lock()
	defer w.store.mu.Unlock()
	o := w.store.owner(w.owner)
	o.locked = false
	o.stats.Closes++
	if err := w.store.closeErr; err != nil {
		w.store.closeErr = nil
		return err
	}
	w.flushLocked()
	return nil
}
