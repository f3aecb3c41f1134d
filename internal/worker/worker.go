// Package worker runs one indexing worker per index owner. A worker drains a
// queue of product ids, builds a document for each and applies it to the
// owner's index writer, committing in batches.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/utafrali/catalog-indexer/internal/assembler"
	"github.com/utafrali/catalog-indexer/internal/engine"
	"github.com/utafrali/catalog-indexer/internal/reindex"
	"github.com/utafrali/catalog-indexer/pkg/logger"
)

// DefaultBatchSize is the number of operations between commits.
const DefaultBatchSize = 100

// State is the lifecycle state of a worker.
type State int32

// Worker states.
const (
	StateIdle State = iota
	StateActive
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Builder builds the search document of one product.
type Builder interface {
	Build(ctx context.Context, productID string) assembler.Result
}

// Config configures a worker.
type Config struct {
	Owner     string
	BatchSize int
}

// Status is a point-in-time view of a worker.
type Status struct {
	Owner    string `json:"owner"`
	State    string `json:"state"`
	QueueLen int    `json:"queue_len"`
}

// Worker owns the index writer of one owner. All builds and writes for the
// owner happen on the worker goroutine.
type Worker struct {
	owner     string
	batchSize int
	queue     *Queue
	builder   Builder
	opener    engine.Opener
	due       reindex.Store
	logger    *slog.Logger

	state   atomic.Int32
	started atomic.Bool
	done    chan struct{}
}

// New creates a worker. due may be nil when reindex-due dates are not recorded.
func New(cfg Config, builder Builder, opener engine.Opener, due reindex.Store, logger *slog.Logger) *Worker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	return &Worker{
		owner:     cfg.Owner,
		batchSize: cfg.BatchSize,
		queue:     NewQueue(),
		builder:   builder,
		opener:    opener,
		due:       due,
		logger:    logger.With(slog.String("owner", cfg.Owner)),
		done:      make(chan struct{}),
	}
}

// Owner returns the index owner served by the worker.
func (w *Worker) Owner() string { return w.owner }

// Start runs the worker loop in a new goroutine until ctx is canceled or the
// writer cannot be opened. Calling Start more than once has no effect.
func (w *Worker) Start(ctx context.Context) {
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.run(ctx)
}

// Enqueue schedules a rebuild of productID. It never blocks and always
// accepts; ids enqueued after the worker stopped are never processed.
func (w *Worker) Enqueue(productID string) bool {
	w.queue.Enqueue(productID)
	QueueDepth.WithLabelValues(w.owner).Set(float64(w.queue.Len()))
	return true
}

// EnqueueAll schedules rebuilds of ids as one batch.
func (w *Worker) EnqueueAll(ids []string) int {
	w.queue.EnqueueAll(ids)
	QueueDepth.WithLabelValues(w.owner).Set(float64(w.queue.Len()))
	return len(ids)
}

// State returns the current lifecycle state.
func (w *Worker) State() State { return State(w.state.Load()) }

// QueueLen returns the number of ids waiting.
func (w *Worker) QueueLen() int { return w.queue.Len() }

// Done is closed when the worker loop exits.
func (w *Worker) Done() <-chan struct{} { return w.done }

// Status returns a snapshot of the worker.
func (w *Worker) Status() Status {
	return Status{Owner: w.owner, State: w.State().String(), QueueLen: w.queue.Len()}
}

func (w *Worker) setState(s State) { w.state.Store(int32(s)) }

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)
	defer w.setState(StateStopped)

	// Builds and writes are not interrupted by cancellation; only the wait
	// for the next id is.
	work := logger.WithOwner(context.WithoutCancel(ctx), w.owner)

	w.logger.Info("index worker started", slog.Int("batch_size", w.batchSize))

	var (
		writer  engine.Writer
		pending int
	)
	for {
		id, err := w.queue.Take(ctx)
		if err != nil {
			if writer != nil {
				w.closeWriter(work, writer)
			}
			w.logger.Info("index worker stopping", slog.Int("abandoned", w.queue.Len()))
			return
		}
		QueueDepth.WithLabelValues(w.owner).Set(float64(w.queue.Len()))

		if writer == nil {
			writer, err = w.opener.Open(work, w.owner)
			if err != nil {
				ErrorsTotal.WithLabelValues(w.owner, stageOpen).Inc()
				w.logger.Error("failed to open index writer, stopping worker",
					slog.String("error", err.Error()),
				)
				return
			}
			WriterOpens.WithLabelValues(w.owner).Inc()
			w.setState(StateActive)
		}

		if err := w.process(work, writer, id); err != nil {
			w.logger.Error("failed to index product",
				slog.String("product_id", id),
				slog.String("error", err.Error()),
			)
			if w.queue.Empty() {
				w.closeWriter(work, writer)
				writer, pending = nil, 0
			}
			continue
		}

		pending++
		if pending >= w.batchSize || w.queue.Empty() {
			w.commit(work, writer, pending)
			pending = 0
		}

		if w.queue.Empty() {
			w.closeWriter(work, writer)
			writer = nil
		}
	}
}

// process builds the document of id and applies it to writer.
func (w *Worker) process(ctx context.Context, writer engine.Writer, id string) error {
	ctx = logger.WithProductID(ctx, id)

	start := time.Now()
	res := w.builder.Build(ctx, id)
	BuildDuration.WithLabelValues(w.owner).Observe(time.Since(start).Seconds())
	if res.Err != nil {
		ErrorsTotal.WithLabelValues(w.owner, stageBuild).Inc()
	}

	if res.Document == nil {
		if err := writer.Delete(ctx, id); err != nil {
			ErrorsTotal.WithLabelValues(w.owner, stageApply).Inc()
			return fmt.Errorf("delete document: %w", err)
		}
		DocumentsDeleted.WithLabelValues(w.owner).Inc()
	} else {
		if err := writer.Update(ctx, res.Document); err != nil {
			ErrorsTotal.WithLabelValues(w.owner, stageApply).Inc()
			return fmt.Errorf("update document: %w", err)
		}
		DocumentsIndexed.WithLabelValues(w.owner).Inc()
	}

	w.recordDue(ctx, res)
	return nil
}

// recordDue stores the next reindex date of a successful build. A failed
// build leaves the previous date in place.
func (w *Worker) recordDue(ctx context.Context, res assembler.Result) {
	if w.due == nil || res.Err != nil {
		return
	}

	var err error
	if res.NextReindex != nil {
		err = w.due.Schedule(ctx, w.owner, res.ProductID, *res.NextReindex)
	} else {
		err = w.due.Clear(ctx, w.owner, res.ProductID)
	}
	if err != nil {
		ErrorsTotal.WithLabelValues(w.owner, stageDue).Inc()
		w.logger.Warn("failed to record reindex date",
			slog.String("product_id", res.ProductID),
			slog.String("error", err.Error()),
		)
	}
}

func (w *Worker) commit(ctx context.Context, writer engine.Writer, ops int) {
	if err := writer.Commit(ctx); err != nil {
		ErrorsTotal.WithLabelValues(w.owner, stageCommit).Inc()
		w.logger.Error("failed to commit index writer",
			slog.Int("operations", ops),
			slog.String("error", err.Error()),
		)
		return
	}
	Commits.WithLabelValues(w.owner).Inc()
	w.logger.Debug("committed index writer", slog.Int("operations", ops))
}

func (w *Worker) closeWriter(ctx context.Context, writer engine.Writer) {
	if err := writer.Close(ctx); err != nil {
		ErrorsTotal.WithLabelValues(w.owner, stageClose).Inc()
		w.logger.Error("failed to close index writer", slog.String("error", err.Error()))
	} else {
		WriterCloses.WithLabelValues(w.owner).Inc()
	}
	w.setState(StateIdle)
}
