package repository

import (
	"context"

	"github.com/utafrali/catalog-indexer/internal/domain"
)

// Catalog is the read-only view of the relational catalog the document
// assembler traverses. GetProduct returns apperrors.ErrNotFound for a missing
// product; list methods return an empty slice when nothing matches.
type Catalog interface {
	// GetProduct retrieves a product by its identifier.
	GetProduct(ctx context.Context, id string) (*domain.Product, error)

	// ListFeatureAppls returns the features applied to a product.
	ListFeatureAppls(ctx context.Context, productID string) ([]domain.FeatureAppl, error)

	// ListFeatureGroupAppls returns the groups a feature belongs to.
	ListFeatureGroupAppls(ctx context.Context, featureID string) ([]domain.FeatureGroupAppl, error)

	// ListAttributes returns a product's attributes.
	ListAttributes(ctx context.Context, productID string) ([]domain.Attribute, error)

	// ListGoodIdentifications returns a product's alternate identification codes.
	ListGoodIdentifications(ctx context.Context, productID string) ([]domain.GoodIdentification, error)

	// ListVariantAssocs returns the variant associations of a virtual product.
	ListVariantAssocs(ctx context.Context, productID string) ([]domain.ProductAssoc, error)

	// ListContent returns a product's content of the given type.
	ListContent(ctx context.Context, productID, contentTypeID string) ([]domain.ProductContent, error)

	// ListCategoryMembers returns a product's direct category memberships.
	ListCategoryMembers(ctx context.Context, productID string) ([]domain.CategoryMember, error)

	// ListCategoryRollups returns the parent links of a category.
	ListCategoryRollups(ctx context.Context, categoryID string) ([]domain.CategoryRollup, error)

	// ListCatalogCategories returns the catalogs that directly contain a category.
	ListCatalogCategories(ctx context.Context, categoryID string) ([]domain.CatalogCategory, error)

	// ListPrices returns a product's price rows.
	ListPrices(ctx context.Context, productID string) ([]domain.Price, error)

	// ListSuppliers returns a product's supplier offers.
	ListSuppliers(ctx context.Context, productID string) ([]domain.SupplierProduct, error)

	// ListProductIDs returns every product identifier in the catalog.
	ListProductIDs(ctx context.Context) ([]string, error)
}
