// Package engine defines the index writer contract implemented by the
// storage backends.
package engine

import (
	"context"
	"errors"

	"github.com/utafrali/catalog-indexer/internal/document"
)

// IndexName is the logical name of the product index.
const IndexName = "products"

var (
	// ErrLocked is returned by Open when another writer holds the index.
	ErrLocked = errors.New("index is locked by another writer")

	// ErrCorrupt is returned by Open when the index metadata is unreadable.
	ErrCorrupt = errors.New("index is corrupt")

	// ErrClosed is returned by operations on a closed writer.
	ErrClosed = errors.New("index writer is closed")
)

// Writer mutates one owner's product index. Operations become visible on
// Commit. A Writer is used by a single goroutine.
type Writer interface {
	// Update replaces the document stored under doc.ID().
	Update(ctx context.Context, doc *document.Document) error

	// Delete removes the document stored under id. Deleting a missing
	// document is not an error.
	Delete(ctx context.Context, id string) error

	// Commit makes pending operations durable and visible.
	Commit(ctx context.Context) error

	// Close commits pending operations and releases the writer.
	Close(ctx context.Context) error
}

// Opener opens the exclusive writer of an owner's index.
type Opener interface {
	Open(ctx context.Context, owner string) (Writer, error)
}

// TextFields are analyzed as full text; every other string field is an
// exact term.
var TextFields = []string{
	"productName",
	"internalName",
	"brandName",
	"description",
	"longDescription",
	"featureDescription",
	"featureAbbreviation",
	"featureCode",
	"attributeName",
	"attributeValue",
	"identificationValue",
	"variantProductId",
	"content",
	"fullText",
}
