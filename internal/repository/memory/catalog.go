package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/utafrali/catalog-indexer/internal/domain"
	apperrors "github.com/utafrali/catalog-indexer/pkg/errors"
)

// Catalog is an in-memory repository.Catalog. It backs local development
// (CATALOG_SOURCE=memory) and the assembler and worker tests.
type Catalog struct {
	mu sync.RWMutex

	products    map[string]domain.Product
	features    map[string][]domain.FeatureAppl
	groups      map[string][]domain.FeatureGroupAppl
	attributes  map[string][]domain.Attribute
	goodIDs     map[string][]domain.GoodIdentification
	assocs      map[string][]domain.ProductAssoc
	content     map[string][]domain.ProductContent
	members     map[string][]domain.CategoryMember
	rollups     map[string][]domain.CategoryRollup
	catalogs    map[string][]domain.CatalogCategory
	prices      map[string][]domain.Price
	suppliers   map[string][]domain.SupplierProduct
	failLookups map[string]error
}

// NewCatalog returns an empty in-memory catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		products:    make(map[string]domain.Product),
		features:    make(map[string][]domain.FeatureAppl),
		groups:      make(map[string][]domain.FeatureGroupAppl),
		attributes:  make(map[string][]domain.Attribute),
		goodIDs:     make(map[string][]domain.GoodIdentification),
		assocs:      make(map[string][]domain.ProductAssoc),
		content:     make(map[string][]domain.ProductContent),
		members:     make(map[string][]domain.CategoryMember),
		rollups:     make(map[string][]domain.CategoryRollup),
		catalogs:    make(map[string][]domain.CatalogCategory),
		prices:      make(map[string][]domain.Price),
		suppliers:   make(map[string][]domain.SupplierProduct),
		failLookups: make(map[string]error),
	}
}

// PutProduct inserts or replaces a product.
func (c *Catalog) PutProduct(p domain.Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[p.ID] = p
}

// DeleteProduct removes a product. Related rows are left in place.
func (c *Catalog) DeleteProduct(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.products, id)
}

// FailProduct makes GetProduct return err for id until cleared with a nil err.
func (c *Catalog) FailProduct(id string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.failLookups, id)
		return
	}
	c.failLookups[id] = err
}

// AddFeature applies a feature to a product.
func (c *Catalog) AddFeature(f domain.FeatureAppl) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.features[f.ProductID] = append(c.features[f.ProductID], f)
}

// AddFeatureGroup places a feature in a group.
func (c *Catalog) AddFeatureGroup(g domain.FeatureGroupAppl) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.groups[g.ProductFeatureID] = append(c.groups[g.ProductFeatureID], g)
}

// AddAttribute attaches an attribute to a product.
func (c *Catalog) AddAttribute(a domain.Attribute) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attributes[a.ProductID] = append(c.attributes[a.ProductID], a)
}

// AddGoodIdentification attaches an identification code to a product.
func (c *Catalog) AddGoodIdentification(g domain.GoodIdentification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.goodIDs[g.ProductID] = append(c.goodIDs[g.ProductID], g)
}

// AddAssoc links two products. Only PRODUCT_VARIANT links are returned by
// ListVariantAssocs.
func (c *Catalog) AddAssoc(a domain.ProductAssoc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.assocs[a.ProductID] = append(c.assocs[a.ProductID], a)
}

// AddContent attaches content to a product.
func (c *Catalog) AddContent(pc domain.ProductContent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.content[pc.ProductID] = append(c.content[pc.ProductID], pc)
}

// AddCategoryMember places a product in a category.
func (c *Catalog) AddCategoryMember(m domain.CategoryMember) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.members[m.ProductID] = append(c.members[m.ProductID], m)
}

// AddRollup links a category to a parent category.
func (c *Catalog) AddRollup(r domain.CategoryRollup) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollups[r.ProductCategoryID] = append(c.rollups[r.ProductCategoryID], r)
}

// AddCatalogCategory places a category in a catalog.
func (c *Catalog) AddCatalogCategory(cc domain.CatalogCategory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.catalogs[cc.ProductCategoryID] = append(c.catalogs[cc.ProductCategoryID], cc)
}

// AddPrice adds a price row to a product.
func (c *Catalog) AddPrice(p domain.Price) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices[p.ProductID] = append(c.prices[p.ProductID], p)
}

// AddSupplier records a supplier offer for a product.
func (c *Catalog) AddSupplier(s domain.SupplierProduct) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.suppliers[s.ProductID] = append(c.suppliers[s.ProductID], s)
}

// GetProduct implements repository.Catalog.
func (c *Catalog) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err, ok := c.failLookups[id]; ok {
		return nil, err
	}
	p, ok := c.products[id]
	if !ok {
		return nil, apperrors.NotFound("product", id)
	}
	return &p, nil
}

// ListFeatureAppls implements repository.Catalog.
func (c *Catalog) ListFeatureAppls(_ context.Context, productID string) ([]domain.FeatureAppl, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return clone(c.features[productID]), nil
}

// ListFeatureGroupAppls implements repository.Catalog.
func (c *Catalog) ListFeatureGroupAppls(_ context.Context, featureID string) ([]domain.FeatureGroupAppl, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return clone(c.groups[featureID]), nil
}

// ListAttributes implements repository.Catalog.
func (c *Catalog) ListAttributes(_ context.Context, productID string) ([]domain.Attribute, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return clone(c.attributes[productID]), nil
}

// ListGoodIdentifications implements repository.Catalog.
func (c *Catalog) ListGoodIdentifications(_ context.Context, productID string) ([]domain.GoodIdentification, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return clone(c.goodIDs[productID]), nil
}

// ListVariantAssocs implements repository.Catalog.
func (c *Catalog) ListVariantAssocs(_ context.Context, productID string) ([]domain.ProductAssoc, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := []domain.ProductAssoc{}
	for _, a := range c.assocs[productID] {
		if a.AssocTypeID == domain.AssocTypeVariant {
			out = append(out, a)
		}
	}
	return out, nil
}

// ListContent implements repository.Catalog.
func (c *Catalog) ListContent(_ context.Context, productID, contentTypeID string) ([]domain.ProductContent, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := []domain.ProductContent{}
	for _, pc := range c.content[productID] {
		if pc.ContentTypeID == contentTypeID {
			out = append(out, pc)
		}
	}
	return out, nil
}

// ListCategoryMembers implements repository.Catalog.
func (c *Catalog) ListCategoryMembers(_ context.Context, productID string) ([]domain.CategoryMember, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return clone(c.members[productID]), nil
}

// ListCategoryRollups implements repository.Catalog.
func (c *Catalog) ListCategoryRollups(_ context.Context, categoryID string) ([]domain.CategoryRollup, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return clone(c.rollups[categoryID]), nil
}

// ListCatalogCategories implements repository.Catalog.
func (c *Catalog) ListCatalogCategories(_ context.Context, categoryID string) ([]domain.CatalogCategory, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return clone(c.catalogs[categoryID]), nil
}

// ListPrices implements repository.Catalog.
func (c *Catalog) ListPrices(_ context.Context, productID string) ([]domain.Price, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return clone(c.prices[productID]), nil
}

// ListSuppliers implements repository.Catalog.
func (c *Catalog) ListSuppliers(_ context.Context, productID string) ([]domain.SupplierProduct, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return clone(c.suppliers[productID]), nil
}

// ListProductIDs implements repository.Catalog. IDs are sorted.
func (c *Catalog) ListProductIDs(_ context.Context) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.products))
	for id := range c.products {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func clone[T any](in []T) []T {
	out := make([]T, len(in))
	copy(out, in)
	return out
}
