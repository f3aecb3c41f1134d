package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/catalog-indexer/internal/domain"
	"github.com/utafrali/catalog-indexer/pkg/database"
	apperrors "github.com/utafrali/catalog-indexer/pkg/errors"
)

// CatalogRepository implements repository.Catalog using PostgreSQL.
type CatalogRepository struct {
	db database.DBTX
}

// NewCatalogRepository creates a new PostgreSQL-backed catalog repository.
func NewCatalogRepository(db database.DBTX) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// queryList runs query and scans every row with scan. It never returns a nil
// slice on success.
func queryList[T any](ctx context.Context, db database.DBTX, op, query string, scan func(pgx.Rows, *T) error, args ...any) (out []T, err error) {
	ctx, end := database.TraceQuery(ctx, op, query)
	defer func() { end(err) }()

	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	for rows.Next() {
		var v T
		if err = scan(rows, &v); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", op, err)
		}
		out = append(out, v)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s rows: %w", op, err)
	}

	if out == nil {
		out = []T{}
	}
	return out, nil
}

// GetProduct retrieves a product by its ID.
func (r *CatalogRepository) GetProduct(ctx context.Context, id string) (_ *domain.Product, err error) {
	query := `
		SELECT product_id, COALESCE(product_name, ''), COALESCE(internal_name, ''), COALESCE(brand_name, ''),
		       COALESCE(description, ''), COALESCE(long_description, ''),
		       introduction_date, sales_discontinuation_date, is_variant, is_virtual
		FROM product
		WHERE product_id = $1`

	ctx, end := database.TraceQuery(ctx, "product.get", query)
	defer func() { end(err) }()

	var p domain.Product
	scanErr := r.db.QueryRow(ctx, query, id).Scan(
		&p.ID,
		&p.ProductName,
		&p.InternalName,
		&p.BrandName,
		&p.Description,
		&p.LongDescription,
		&p.IntroductionDate,
		&p.SalesDiscontinuationDate,
		&p.IsVariant,
		&p.IsVirtual,
	)
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("product", id)
		}
		err = fmt.Errorf("get product: %w", scanErr)
		return nil, err
	}
	return &p, nil
}

// ListFeatureAppls returns the features applied to a product.
func (r *CatalogRepository) ListFeatureAppls(ctx context.Context, productID string) ([]domain.FeatureAppl, error) {
	query := `
		SELECT pfa.product_id, pf.product_feature_id, COALESCE(pf.product_feature_type_id, ''),
		       COALESCE(pf.product_feature_category_id, ''), COALESCE(pf.description, ''),
		       COALESCE(pf.abbrev, ''), COALESCE(pf.id_code, ''), pfa.from_date, pfa.thru_date
		FROM product_feature_appl pfa
		JOIN product_feature pf ON pf.product_feature_id = pfa.product_feature_id
		WHERE pfa.product_id = $1
		ORDER BY pf.product_feature_id, pfa.from_date`

	return queryList(ctx, r.db, "product_feature_appl.list", query, func(rows pgx.Rows, f *domain.FeatureAppl) error {
		return rows.Scan(&f.ProductID, &f.ProductFeatureID, &f.ProductFeatureTypeID, &f.ProductFeatureCategoryID,
			&f.Description, &f.Abbrev, &f.IDCode, &f.FromDate, &f.ThruDate)
	}, productID)
}

// ListFeatureGroupAppls returns the groups a feature belongs to.
func (r *CatalogRepository) ListFeatureGroupAppls(ctx context.Context, featureID string) ([]domain.FeatureGroupAppl, error) {
	query := `
		SELECT product_feature_group_id, product_feature_id, from_date, thru_date
		FROM product_feature_group_appl
		WHERE product_feature_id = $1
		ORDER BY product_feature_group_id`

	return queryList(ctx, r.db, "product_feature_group_appl.list", query, func(rows pgx.Rows, g *domain.FeatureGroupAppl) error {
		return rows.Scan(&g.ProductFeatureGroupID, &g.ProductFeatureID, &g.FromDate, &g.ThruDate)
	}, featureID)
}

// ListAttributes returns a product's attributes.
func (r *CatalogRepository) ListAttributes(ctx context.Context, productID string) ([]domain.Attribute, error) {
	query := `
		SELECT product_id, attr_name, COALESCE(attr_value, '')
		FROM product_attribute
		WHERE product_id = $1
		ORDER BY attr_name`

	return queryList(ctx, r.db, "product_attribute.list", query, func(rows pgx.Rows, a *domain.Attribute) error {
		return rows.Scan(&a.ProductID, &a.AttrName, &a.AttrValue)
	}, productID)
}

// ListGoodIdentifications returns a product's alternate identification codes.
func (r *CatalogRepository) ListGoodIdentifications(ctx context.Context, productID string) ([]domain.GoodIdentification, error) {
	query := `
		SELECT product_id, good_identification_type_id, COALESCE(id_value, '')
		FROM good_identification
		WHERE product_id = $1
		ORDER BY good_identification_type_id`

	return queryList(ctx, r.db, "good_identification.list", query, func(rows pgx.Rows, g *domain.GoodIdentification) error {
		return rows.Scan(&g.ProductID, &g.TypeID, &g.IDValue)
	}, productID)
}

// ListVariantAssocs returns the PRODUCT_VARIANT associations of a product.
func (r *CatalogRepository) ListVariantAssocs(ctx context.Context, productID string) ([]domain.ProductAssoc, error) {
	query := `
		SELECT product_id, product_id_to, product_assoc_type_id, from_date, thru_date
		FROM product_assoc
		WHERE product_id = $1 AND product_assoc_type_id = $2
		ORDER BY product_id_to`

	return queryList(ctx, r.db, "product_assoc.list_variants", query, func(rows pgx.Rows, a *domain.ProductAssoc) error {
		return rows.Scan(&a.ProductID, &a.ProductIDTo, &a.AssocTypeID, &a.FromDate, &a.ThruDate)
	}, productID, domain.AssocTypeVariant)
}

// ListContent returns a product's content of the given type together with
// the data resource to render.
func (r *CatalogRepository) ListContent(ctx context.Context, productID, contentTypeID string) ([]domain.ProductContent, error) {
	query := `
		SELECT pc.product_id, pc.content_id, pc.product_content_type_id,
		       COALESCE(c.data_resource_id, ''), pc.from_date, pc.thru_date
		FROM product_content pc
		JOIN content c ON c.content_id = pc.content_id
		WHERE pc.product_id = $1 AND pc.product_content_type_id = $2
		ORDER BY pc.content_id`

	return queryList(ctx, r.db, "product_content.list", query, func(rows pgx.Rows, c *domain.ProductContent) error {
		return rows.Scan(&c.ProductID, &c.ContentID, &c.ContentTypeID, &c.DataResourceID, &c.FromDate, &c.ThruDate)
	}, productID, contentTypeID)
}

// ListCategoryMembers returns a product's direct category memberships.
func (r *CatalogRepository) ListCategoryMembers(ctx context.Context, productID string) ([]domain.CategoryMember, error) {
	query := `
		SELECT product_id, product_category_id, from_date, thru_date
		FROM product_category_member
		WHERE product_id = $1
		ORDER BY product_category_id`

	return queryList(ctx, r.db, "product_category_member.list", query, func(rows pgx.Rows, m *domain.CategoryMember) error {
		return rows.Scan(&m.ProductID, &m.ProductCategoryID, &m.FromDate, &m.ThruDate)
	}, productID)
}

// ListCategoryRollups returns the parent links of a category.
func (r *CatalogRepository) ListCategoryRollups(ctx context.Context, categoryID string) ([]domain.CategoryRollup, error) {
	query := `
		SELECT product_category_id, parent_product_category_id, from_date, thru_date
		FROM product_category_rollup
		WHERE product_category_id = $1
		ORDER BY parent_product_category_id`

	return queryList(ctx, r.db, "product_category_rollup.list", query, func(rows pgx.Rows, c *domain.CategoryRollup) error {
		return rows.Scan(&c.ProductCategoryID, &c.ParentProductCategoryID, &c.FromDate, &c.ThruDate)
	}, categoryID)
}

// ListCatalogCategories returns the catalogs that directly contain a category.
func (r *CatalogRepository) ListCatalogCategories(ctx context.Context, categoryID string) ([]domain.CatalogCategory, error) {
	query := `
		SELECT prod_catalog_id, product_category_id, from_date, thru_date
		FROM prod_catalog_category
		WHERE product_category_id = $1
		ORDER BY prod_catalog_id`

	return queryList(ctx, r.db, "prod_catalog_category.list", query, func(rows pgx.Rows, c *domain.CatalogCategory) error {
		return rows.Scan(&c.ProdCatalogID, &c.ProductCategoryID, &c.FromDate, &c.ThruDate)
	}, categoryID)
}

// ListPrices returns a product's price rows.
func (r *CatalogRepository) ListPrices(ctx context.Context, productID string) ([]domain.Price, error) {
	query := `
		SELECT product_id, product_price_type_id, product_price_purpose_id, currency_uom_id,
		       product_store_group_id, price::float8, from_date, thru_date
		FROM product_price
		WHERE product_id = $1
		ORDER BY product_price_type_id, product_price_purpose_id, currency_uom_id, product_store_group_id, from_date`

	return queryList(ctx, r.db, "product_price.list", query, func(rows pgx.Rows, p *domain.Price) error {
		return rows.Scan(&p.ProductID, &p.PriceTypeID, &p.PricePurposeID, &p.CurrencyUomID,
			&p.StoreGroupID, &p.Price, &p.FromDate, &p.ThruDate)
	}, productID)
}

// ListSuppliers returns a product's supplier offers.
func (r *CatalogRepository) ListSuppliers(ctx context.Context, productID string) ([]domain.SupplierProduct, error) {
	query := `
		SELECT product_id, party_id, available_from_date, available_thru_date
		FROM supplier_product
		WHERE product_id = $1
		ORDER BY party_id`

	return queryList(ctx, r.db, "supplier_product.list", query, func(rows pgx.Rows, s *domain.SupplierProduct) error {
		return rows.Scan(&s.ProductID, &s.PartyID, &s.AvailableFromDate, &s.AvailableThruDate)
	}, productID)
}

// ListProductIDs returns every product identifier in the catalog.
func (r *CatalogRepository) ListProductIDs(ctx context.Context) ([]string, error) {
	query := `SELECT product_id FROM product ORDER BY product_id`

	return queryList(ctx, r.db, "product.list_ids", query, func(rows pgx.Rows, id *string) error {
		return rows.Scan(id)
	})
}
