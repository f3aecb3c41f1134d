// Package bleve stores product indexes on local disk with bleve.
package bleve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/gofrs/flock"

	"github.com/utafrali/catalog-indexer/internal/document"
	"github.com/utafrali/catalog-indexer/internal/engine"
)

// LockFile is the name of the per-owner writer lock.
const LockFile = "write.lock"

// Opener opens bleve indexes under <root>/<owner>/products.
type Opener struct {
	root   string
	logger *slog.Logger
}

// NewOpener creates an opener rooted at root.
func NewOpener(root string, logger *slog.Logger) *Opener {
	return &Opener{root: root, logger: logger}
}

// Path returns the index directory of owner.
func (o *Opener) Path(owner string) string {
	return filepath.Join(o.root, owner, engine.IndexName)
}

// Open acquires the owner's write lock and opens its index, creating it
// on first use.
func (o *Opener) Open(_ context.Context, owner string) (engine.Writer, error) {
	dir := filepath.Join(o.root, owner)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create index directory %s: %w", dir, err)
	}

	lock := flock.New(filepath.Join(dir, LockFile))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire index lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%s: %w", dir, engine.ErrLocked)
	}

	path := o.Path(owner)
	idx, err := bleve.Open(path)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		o.logger.Info("creating product index", slog.String("owner", owner), slog.String("path", path))
		idx, err = bleve.New(path, indexMapping())
	}
	if err != nil {
		_ = lock.Unlock()
		if errors.Is(err, bleve.ErrorIndexMetaCorrupt) {
			return nil, fmt.Errorf("open index %s: %w: %w", path, engine.ErrCorrupt, err)
		}
		return nil, fmt.Errorf("open index %s: %w", path, err)
	}

	return &Writer{index: idx, lock: lock, batch: idx.NewBatch()}, nil
}

// indexMapping analyzes the known text fields and keeps everything else as
// exact terms. Boosts are kept out of the index.
func indexMapping() *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()
	im.DefaultAnalyzer = keyword.Name
	im.StoreDynamic = false

	doc := bleve.NewDocumentMapping()

	id := bleve.NewKeywordFieldMapping()
	id.Store = true
	doc.AddFieldMappingsAt(document.IDField, id)

	for _, name := range engine.TextFields {
		text := bleve.NewTextFieldMapping()
		text.Analyzer = standard.Name
		text.Store = false
		doc.AddFieldMappingsAt(name, text)
	}

	doc.AddSubDocumentMapping(document.BoostsField, bleve.NewDocumentDisabledMapping())
	im.DefaultMapping = doc
	return im
}

// Writer batches operations against an open bleve index. It holds the
// owner's lock until closed.
type Writer struct {
	index  bleve.Index
	lock   *flock.Flock
	batch  *bleve.Batch
	closed bool
}

// Update implements engine.Writer.
func (w *Writer) Update(_ context.Context, doc *document.Document) error {
	if w.closed {
		return engine.ErrClosed
	}
	if err := w.batch.Index(doc.ID(), doc.ToMap()); err != nil {
		return fmt.Errorf("index document %s: %w", doc.ID(), err)
	}
	return nil
}

// Delete implements engine.Writer.
func (w *Writer) Delete(_ context.Context, id string) error {
	if w.closed {
		return engine.ErrClosed
	}
	w.batch.Delete(id)
	return nil
}

// Commit implements engine.Writer.
func (w *Writer) Commit(_ context.Context) error {
	if w.closed {
		return engine.ErrClosed
	}
	if w.batch.Size() == 0 {
		return nil
	}
	if err := w.index.Batch(w.batch); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	w.batch.Reset()
	return nil
}

// Close implements engine.Writer. The lock is released even when the final
// commit fails.
func (w *Writer) Close(ctx context.Context) error {
	if w.closed {
		return nil
	}
	commitErr := w.Commit(ctx)
	w.closed = true

	var errs []error
	if commitErr != nil {
		errs = append(errs, commitErr)
	}
	if err := w.index.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close index: %w", err))
	}
	if err := w.lock.Unlock(); err != nil {
		errs = append(errs, fmt.Errorf("release index lock: %w", err))
	}
	return errors.Join(errs...)
}
