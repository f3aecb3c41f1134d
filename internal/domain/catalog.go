package domain

import "time"

// Association and identification type constants used by the indexer.
const (
	AssocTypeVariant = "PRODUCT_VARIANT"
)

// Product is the catalog row a search document is built from.
type Product struct {
	ID                       string     `json:"product_id"`
	ProductName              string     `json:"product_name"`
	InternalName             string     `json:"internal_name"`
	BrandName                string     `json:"brand_name"`
	Description              string     `json:"description"`
	LongDescription          string     `json:"long_description"`
	IntroductionDate         *time.Time `json:"introduction_date,omitempty"`
	SalesDiscontinuationDate *time.Time `json:"sales_discontinuation_date,omitempty"`
	IsVariant                bool       `json:"is_variant"`
	IsVirtual                bool       `json:"is_virtual"`
}

// FeatureAppl is a product feature joined with its application to a product.
type FeatureAppl struct {
	ProductID                string
	ProductFeatureID         string
	ProductFeatureTypeID     string
	ProductFeatureCategoryID string
	Description              string
	Abbrev                   string
	IDCode                   string
	FromDate                 *time.Time
	ThruDate                 *time.Time
}

// Bounds implements temporal.Bounded.
func (f FeatureAppl) Bounds() (*time.Time, *time.Time) { return f.FromDate, f.ThruDate }

// FeatureGroupAppl places a feature inside a feature group.
type FeatureGroupAppl struct {
	ProductFeatureGroupID string
	ProductFeatureID      string
	FromDate              *time.Time
	ThruDate              *time.Time
}

// Bounds implements temporal.Bounded.
func (g FeatureGroupAppl) Bounds() (*time.Time, *time.Time) { return g.FromDate, g.ThruDate }

// Attribute is a free-form name/value pair attached to a product.
type Attribute struct {
	ProductID string
	AttrName  string
	AttrValue string
}

// GoodIdentification is an alternate code (EAN, ISBN, SKU...) for a product.
type GoodIdentification struct {
	ProductID string
	TypeID    string
	IDValue   string
}

// ProductAssoc links two products, e.g. a virtual product to its variants.
type ProductAssoc struct {
	ProductID   string
	ProductIDTo string
	AssocTypeID string
	FromDate    *time.Time
	ThruDate    *time.Time
}

// Bounds implements temporal.Bounded.
func (a ProductAssoc) Bounds() (*time.Time, *time.Time) { return a.FromDate, a.ThruDate }

// ProductContent associates a renderable data resource with a product.
type ProductContent struct {
	ProductID      string
	ContentID      string
	ContentTypeID  string
	DataResourceID string
	FromDate       *time.Time
	ThruDate       *time.Time
}

// Bounds implements temporal.Bounded.
func (c ProductContent) Bounds() (*time.Time, *time.Time) { return c.FromDate, c.ThruDate }

// CategoryMember is a direct membership of a product in a category.
type CategoryMember struct {
	ProductID         string
	ProductCategoryID string
	FromDate          *time.Time
	ThruDate          *time.Time
}

// Bounds implements temporal.Bounded.
func (m CategoryMember) Bounds() (*time.Time, *time.Time) { return m.FromDate, m.ThruDate }

// CategoryRollup is a child to parent link between two categories.
type CategoryRollup struct {
	ProductCategoryID       string
	ParentProductCategoryID string
	FromDate                *time.Time
	ThruDate                *time.Time
}

// Bounds implements temporal.Bounded.
func (r CategoryRollup) Bounds() (*time.Time, *time.Time) { return r.FromDate, r.ThruDate }

// CatalogCategory places a category in a catalog.
type CatalogCategory struct {
	ProdCatalogID     string
	ProductCategoryID string
	FromDate          *time.Time
	ThruDate          *time.Time
}

// Bounds implements temporal.Bounded.
func (c CatalogCategory) Bounds() (*time.Time, *time.Time) { return c.FromDate, c.ThruDate }

// Price is one price row of a product.
type Price struct {
	ProductID      string
	PriceTypeID    string
	PricePurposeID string
	CurrencyUomID  string
	StoreGroupID   string
	Price          float64
	FromDate       *time.Time
	ThruDate       *time.Time
}

// Bounds implements temporal.Bounded.
func (p Price) Bounds() (*time.Time, *time.Time) { return p.FromDate, p.ThruDate }

// FieldName is the dynamic index field the price is stored under.
func (p Price) FieldName() string {
	return p.PriceTypeID + "_" + p.PricePurposeID + "_" + p.CurrencyUomID + "_" + p.StoreGroupID + "_price"
}

// SupplierProduct records a supplier offering a product.
type SupplierProduct struct {
	ProductID         string
	PartyID           string
	AvailableFromDate *time.Time
	AvailableThruDate *time.Time
}

// Bounds implements temporal.Bounded using the availability window.
func (s SupplierProduct) Bounds() (*time.Time, *time.Time) {
	return s.AvailableFromDate, s.AvailableThruDate
}
