package assembler

import (
	"context"
	"fmt"
	"time"

	"github.com/utafrali/catalog-indexer/internal/document"
	"github.com/utafrali/catalog-indexer/internal/domain"
	"github.com/utafrali/catalog-indexer/internal/repository"
	"github.com/utafrali/catalog-indexer/internal/temporal"
)

// Category field names.
const (
	FieldCategory       = "productCategoryId"
	FieldDirectCategory = "directProductCategoryId"
	FieldCatalog        = "prodCatalogId"
)

// Closure resolves the category and catalog closure of one document. The
// visited sets live for the whole build so that every category and catalog
// is emitted at most once, even on cyclic rollup data.
type Closure struct {
	catalog    repository.Catalog
	doc        *document.Document
	now        time.Time
	direct     map[string]struct{}
	categories map[string]struct{}
	catalogs   map[string]struct{}
}

// NewClosure creates an empty closure writing into doc.
func NewClosure(catalog repository.Catalog, doc *document.Document, now time.Time) *Closure {
	return &Closure{
		catalog:    catalog,
		doc:        doc,
		now:        now,
		direct:     make(map[string]struct{}),
		categories: make(map[string]struct{}),
		catalogs:   make(map[string]struct{}),
	}
}

// AddMemberships emits the direct categories of a product and resolves the
// ancestry of each. It returns the earliest pending validity change found.
func (c *Closure) AddMemberships(ctx context.Context, members []domain.CategoryMember) (*time.Time, error) {
	var due *time.Time
	for _, m := range temporal.CurrentlyValid(members, c.now) {
		emit, next := temporal.Admit(m, c.now)
		due = temporal.ReindexAt(next, due)
		if !emit {
			continue
		}

		id := m.ProductCategoryID
		if _, ok := c.direct[id]; !ok {
			c.direct[id] = struct{}{}
			c.doc.AddTerm(FieldDirectCategory, id)
		}
		if !c.visitCategory(id) {
			continue
		}
		c.doc.AddTerm(FieldCategory, id)

		ancestry, err := c.ResolveAncestry(ctx, id)
		if err != nil {
			return nil, err
		}
		due = temporal.ReindexAt(ancestry, due)
	}
	return due, nil
}

// ResolveAncestry emits every catalog containing categoryID and every
// ancestor category reachable through rollups, recursing into each new
// parent. Identifiers already in the closure are skipped.
func (c *Closure) ResolveAncestry(ctx context.Context, categoryID string) (*time.Time, error) {
	links, err := c.catalog.ListCatalogCategories(ctx, categoryID)
	if err != nil {
		return nil, fmt.Errorf("list catalogs of category %s: %w", categoryID, err)
	}

	var due *time.Time
	for _, l := range temporal.CurrentlyValid(links, c.now) {
		emit, next := temporal.Admit(l, c.now)
		due = temporal.ReindexAt(next, due)
		if !emit {
			continue
		}
		if _, ok := c.catalogs[l.ProdCatalogID]; ok {
			continue
		}
		c.catalogs[l.ProdCatalogID] = struct{}{}
		c.doc.AddTerm(FieldCatalog, l.ProdCatalogID)
	}

	rollups, err := c.catalog.ListCategoryRollups(ctx, categoryID)
	if err != nil {
		return nil, fmt.Errorf("list rollups of category %s: %w", categoryID, err)
	}

	for _, r := range temporal.CurrentlyValid(rollups, c.now) {
		emit, next := temporal.Admit(r, c.now)
		due = temporal.ReindexAt(next, due)
		if !emit {
			continue
		}
		parent := r.ParentProductCategoryID
		if !c.visitCategory(parent) {
			continue
		}
		c.doc.AddTerm(FieldCategory, parent)

		ancestry, err := c.ResolveAncestry(ctx, parent)
		if err != nil {
			return nil, err
		}
		due = temporal.ReindexAt(ancestry, due)
	}
	return due, nil
}

// visitCategory marks id visited and reports whether it was new.
func (c *Closure) visitCategory(id string) bool {
	if _, ok := c.categories[id]; ok {
		return false
	}
	c.categories[id] = struct{}{}
	return true
}
