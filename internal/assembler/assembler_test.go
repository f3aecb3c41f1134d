package assembler

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/catalog-indexer/internal/content"
	"github.com/utafrali/catalog-indexer/internal/document"
	"github.com/utafrali/catalog-indexer/internal/domain"
	"github.com/utafrali/catalog-indexer/internal/properties"
	"github.com/utafrali/catalog-indexer/internal/repository/memory"
	"github.com/utafrali/catalog-indexer/pkg/logger"
)

var now = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func at(d time.Duration) *time.Time {
	t := now.Add(d)
	return &t
}

const day = 24 * time.Hour

// overlayProps overrides individual prodsearch keys on top of the
// embedded defaults.
type overlayProps struct {
	base      *properties.Properties
	overrides map[string]string
}

func (p *overlayProps) Value(namespace, key, def string) string {
	if v, ok := p.overrides[key]; ok && namespace == document.Namespace {
		return v
	}
	return p.base.Value(namespace, key, def)
}

type fixture struct {
	catalog *memory.Catalog
	props   *overlayProps
	logs    *bytes.Buffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	base, err := properties.Load("")
	require.NoError(t, err)
	return &fixture{
		catalog: memory.NewCatalog(),
		props:   &overlayProps{base: base, overrides: make(map[string]string)},
		logs:    &bytes.Buffer{},
	}
}

func (f *fixture) set(key, value string) {
	f.props.overrides[key] = value
}

func (f *fixture) assembler(r content.Renderer) *Assembler {
	if r == nil {
		r = content.Static{}
	}
	l := slog.New(slog.NewJSONHandler(f.logs, nil))
	return New(f.catalog, r, f.props, l).WithClock(func() time.Time { return now })
}

func (f *fixture) build(t *testing.T, r content.Renderer, id string) Result {
	t.Helper()
	return f.assembler(r).Build(context.Background(), id)
}

func TestBuild_NotFoundIsDeletion(t *testing.T) {
	f := newFixture(t)

	res := f.build(t, nil, "missing")
	assert.Nil(t, res.Document)
	assert.NoError(t, res.Err)
	assert.Equal(t, "missing", res.ProductID)
}

func TestBuild_IgnoresVariants(t *testing.T) {
	f := newFixture(t)
	f.catalog.PutProduct(domain.Product{ID: "VAR-1", IsVariant: true})

	assert.Nil(t, f.build(t, nil, "VAR-1").Document)

	f.set(keyIgnoreVariants, "false")
	res := f.build(t, nil, "VAR-1")
	require.NotNil(t, res.Document)
	assert.Equal(t, []string{"true"}, res.Document.Strings("isVariant"))
}

func TestBuild_ProductFields(t *testing.T) {
	f := newFixture(t)
	f.catalog.PutProduct(domain.Product{
		ID:               "WG-1111",
		ProductName:      "Micro Chrome Widget",
		InternalName:     "widget-1",
		BrandName:        "Acme",
		LongDescription:  "Long form",
		IntroductionDate: at(-10 * day),
	})

	res := f.build(t, nil, "WG-1111")
	require.NoError(t, res.Err)
	doc := res.Document
	require.NotNil(t, doc)

	id := doc.Get(document.IDField)
	require.Len(t, id, 1)
	assert.True(t, id[0].Stored)
	assert.Equal(t, document.KindTerm, id[0].Kind)

	assert.Equal(t, []string{"Micro Chrome Widget"}, doc.Strings("productName"))
	assert.Equal(t, []string{document.NullValue}, doc.Strings("description"))
	assert.Equal(t, 3.0, doc.Boosts()["productName"])
	assert.Equal(t, 2.0, doc.Boosts()["brandName"])
	assert.NotContains(t, doc.Boosts(), "internalName")
	assert.Contains(t, doc.Strings(FullTextField), "Acme")
	assert.Contains(t, doc.Strings(FullTextField), "widget-1")

	intro := doc.Get("introductionDate")
	require.Len(t, intro, 1)
	assert.Equal(t, int64(20244), intro[0].Value())
	assert.Equal(t, int64(0), doc.Get("salesDiscontinuationDate")[0].Value())
	assert.Equal(t, []string{"false"}, doc.Strings("isVariant"))

	assert.Nil(t, res.NextReindex, "past introduction date is not pending")
}

func TestBuild_ZeroWeightDropsField(t *testing.T) {
	f := newFixture(t)
	f.set(keyBrandName, "0")
	f.catalog.PutProduct(domain.Product{ID: "P1", BrandName: "Acme"})

	doc := f.build(t, nil, "P1").Document
	require.NotNil(t, doc)
	assert.Empty(t, doc.Get("brandName"))
	assert.NotContains(t, doc.Strings(FullTextField), "Acme")
}

func TestBuild_FutureDiscontinuationSchedulesReindex(t *testing.T) {
	f := newFixture(t)
	f.catalog.PutProduct(domain.Product{ID: "P1", IntroductionDate: at(5 * day), SalesDiscontinuationDate: at(30 * day)})

	res := f.build(t, nil, "P1")
	require.NotNil(t, res.Document)
	require.NotNil(t, res.NextReindex)
	assert.True(t, res.NextReindex.Equal(*at(5 * day)))
}

func TestBuild_Features(t *testing.T) {
	f := newFixture(t)
	f.catalog.PutProduct(domain.Product{ID: "P1"})
	f.catalog.AddFeature(domain.FeatureAppl{
		ProductID: "P1", ProductFeatureID: "F-RED", ProductFeatureTypeID: "COLOR",
		ProductFeatureCategoryID: "FC-1", Description: "Red", Abbrev: "R", ThruDate: at(20 * day),
	})
	f.catalog.AddFeature(domain.FeatureAppl{ProductID: "P1", ProductFeatureID: "F-SOON", FromDate: at(3 * day)})
	f.catalog.AddFeature(domain.FeatureAppl{ProductID: "P1", ProductFeatureID: "F-OLD", ThruDate: at(-1 * day)})
	f.catalog.AddFeatureGroup(domain.FeatureGroupAppl{ProductFeatureGroupID: "G-COLORS", ProductFeatureID: "F-RED"})
	f.catalog.AddFeatureGroup(domain.FeatureGroupAppl{ProductFeatureGroupID: "G-NEXT", ProductFeatureID: "F-RED", FromDate: at(2 * day)})

	res := f.build(t, nil, "P1")
	doc := res.Document
	require.NotNil(t, doc)

	assert.Equal(t, []string{"F-RED"}, doc.Strings("productFeatureId"))
	assert.Equal(t, []string{"COLOR"}, doc.Strings("productFeatureTypeId"))
	assert.Equal(t, []string{"FC-1"}, doc.Strings("productFeatureCategoryId"))
	assert.Equal(t, []string{"Red"}, doc.Strings("featureDescription"))
	assert.Equal(t, []string{document.NullValue}, doc.Strings("featureCode"))
	assert.Equal(t, []string{"G-COLORS"}, doc.Strings("productFeatureGroupId"))

	require.NotNil(t, res.NextReindex)
	assert.True(t, res.NextReindex.Equal(*at(2 * day)))
}

func TestBuild_FeaturesSkippedWhenAllWeightsZero(t *testing.T) {
	f := newFixture(t)
	for _, k := range []string{keyFeatureDescription, keyFeatureAbbrev, keyFeatureIDCode} {
		f.set(k, "0")
	}
	f.catalog.PutProduct(domain.Product{ID: "P1"})
	f.catalog.AddFeature(domain.FeatureAppl{ProductID: "P1", ProductFeatureID: "F-RED"})

	doc := f.build(t, nil, "P1").Document
	require.NotNil(t, doc)
	assert.Empty(t, doc.Get("productFeatureId"))
}

func TestBuild_AttributesAndIdentifications(t *testing.T) {
	f := newFixture(t)
	f.catalog.PutProduct(domain.Product{ID: "P1"})
	f.catalog.AddAttribute(domain.Attribute{ProductID: "P1", AttrName: "material", AttrValue: "steel"})
	f.catalog.AddGoodIdentification(domain.GoodIdentification{ProductID: "P1", TypeID: "EAN", IDValue: "4006381333931"})

	doc := f.build(t, nil, "P1").Document
	require.NotNil(t, doc)

	assert.Equal(t, []string{"material"}, doc.Strings("attributeName"))
	assert.Equal(t, []string{"steel"}, doc.Strings("attributeValue"))
	assert.Equal(t, []string{"EAN"}, doc.Strings("goodIdentificationTypeId"))
	assert.Equal(t, []string{"4006381333931"}, doc.Strings("goodIdentificationIdValue"))
	assert.Equal(t, []string{"4006381333931"}, doc.Strings("EAN_GoodIdentification"))
	assert.Equal(t, []string{"4006381333931"}, doc.Strings("identificationValue"))
}

func TestBuild_VariantsOnlyForVirtual(t *testing.T) {
	f := newFixture(t)
	f.catalog.PutProduct(domain.Product{ID: "VIRT", IsVirtual: true})
	f.catalog.PutProduct(domain.Product{ID: "PLAIN"})
	for _, id := range []string{"VIRT", "PLAIN"} {
		f.catalog.AddAssoc(domain.ProductAssoc{ProductID: id, ProductIDTo: id + "-A", AssocTypeID: domain.AssocTypeVariant})
		f.catalog.AddAssoc(domain.ProductAssoc{ProductID: id, ProductIDTo: id + "-B", AssocTypeID: domain.AssocTypeVariant, FromDate: at(day)})
	}

	virt := f.build(t, nil, "VIRT")
	assert.Equal(t, []string{"VIRT-A"}, virt.Document.Strings("variantProductId"))
	require.NotNil(t, virt.NextReindex)
	assert.True(t, virt.NextReindex.Equal(*at(day)))

	plain := f.build(t, nil, "PLAIN")
	assert.Empty(t, plain.Document.Get("variantProductId"))
	assert.Nil(t, plain.NextReindex)
}

type failingRenderer struct {
	fail map[string]bool
	text content.Static
}

func (r failingRenderer) RenderAsText(ctx context.Context, id, productID string) (string, error) {
	if r.fail[id] {
		return "", errors.New("template error")
	}
	return r.text.RenderAsText(ctx, id, productID)
}

func TestBuild_Content(t *testing.T) {
	f := newFixture(t)
	f.set(keyContentWeightPrefix+"LONG_DESCRIPTION", "4")
	f.catalog.PutProduct(domain.Product{ID: "P1"})
	f.catalog.AddContent(domain.ProductContent{ProductID: "P1", ContentID: "C1", ContentTypeID: "DESCRIPTION", DataResourceID: "DR-1"})
	f.catalog.AddContent(domain.ProductContent{ProductID: "P1", ContentID: "C2", ContentTypeID: "LONG_DESCRIPTION", DataResourceID: "DR-2"})
	f.catalog.AddContent(domain.ProductContent{ProductID: "P1", ContentID: "C3", ContentTypeID: "LONG_DESCRIPTION", DataResourceID: "DR-BAD"})
	f.catalog.AddContent(domain.ProductContent{ProductID: "P1", ContentID: "C4", ContentTypeID: "WARNINGS", DataResourceID: "DR-4"})

	r := failingRenderer{
		fail: map[string]bool{"DR-BAD": true},
		text: content.Static{"DR-1": "short text", "DR-2": "long text", "DR-4": "not included"},
	}
	doc := f.build(t, r, "P1").Document
	require.NotNil(t, doc)

	assert.Equal(t, []string{"short text", "long text"}, doc.Strings("content"))
	assert.Equal(t, 4.0, doc.Boosts()["content"])
	assert.Contains(t, doc.Strings(FullTextField), "long text")
	assert.Contains(t, f.logs.String(), "failed to render content for indexing")
	assert.Contains(t, f.logs.String(), "DR-BAD")
}

func TestBuild_ContentWeightParseFailureDefaultsToOne(t *testing.T) {
	f := newFixture(t)
	f.set(keyContentWeightPrefix+"DESCRIPTION", "heavy")
	f.catalog.PutProduct(domain.Product{ID: "P1"})
	f.catalog.AddContent(domain.ProductContent{ProductID: "P1", ContentID: "C1", ContentTypeID: "DESCRIPTION", DataResourceID: "DR-1"})

	doc := f.build(t, content.Static{"DR-1": "text"}, "P1").Document
	require.NotNil(t, doc)
	assert.Equal(t, []string{"text"}, doc.Strings("content"))
	assert.NotContains(t, doc.Boosts(), "content")
	assert.Contains(t, f.logs.String(), "could not parse content weight")
}

func TestBuild_PricesAndSuppliers(t *testing.T) {
	f := newFixture(t)
	f.catalog.PutProduct(domain.Product{ID: "P1"})
	f.catalog.AddPrice(domain.Price{ProductID: "P1", PriceTypeID: "LIST_PRICE", PricePurposeID: "PURCHASE", CurrencyUomID: "USD", StoreGroupID: "_NA_", Price: 60})
	f.catalog.AddPrice(domain.Price{ProductID: "P1", PriceTypeID: "DEFAULT_PRICE", PricePurposeID: "PURCHASE", CurrencyUomID: "USD", StoreGroupID: "_NA_", Price: 48, ThruDate: at(-day)})
	f.catalog.AddPrice(domain.Price{ProductID: "P1", PriceTypeID: "PROMO_PRICE", PricePurposeID: "PURCHASE", CurrencyUomID: "USD", StoreGroupID: "_NA_", Price: 40, FromDate: at(7 * day)})
	f.catalog.AddSupplier(domain.SupplierProduct{ProductID: "P1", PartyID: "ZetaSupply"})
	f.catalog.AddSupplier(domain.SupplierProduct{ProductID: "P1", PartyID: "AcmeSupply", AvailableThruDate: at(9 * day)})
	f.catalog.AddSupplier(domain.SupplierProduct{ProductID: "P1", PartyID: "ZetaSupply"})
	f.catalog.AddSupplier(domain.SupplierProduct{ProductID: "P1", PartyID: "LateSupply", AvailableFromDate: at(day)})

	res := f.build(t, nil, "P1")
	doc := res.Document
	require.NotNil(t, doc)

	list := doc.Get("LIST_PRICE_PURCHASE_USD__NA__price")
	require.Len(t, list, 1)
	assert.Equal(t, 60.0, list[0].Value())
	assert.Empty(t, doc.Get("DEFAULT_PRICE_PURCHASE_USD__NA__price"))
	assert.Empty(t, doc.Get("PROMO_PRICE_PURCHASE_USD__NA__price"))

	assert.Equal(t, []string{"AcmeSupply", "ZetaSupply"}, doc.Strings("supplierPartyId"))

	require.NotNil(t, res.NextReindex)
	assert.True(t, res.NextReindex.Equal(*at(day)))
}

type flakyCatalog struct {
	*memory.Catalog
}

func (flakyCatalog) ListPrices(context.Context, string) ([]domain.Price, error) {
	return nil, errors.New("connection reset")
}

func TestBuild_LookupFailureYieldsNoDocument(t *testing.T) {
	f := newFixture(t)
	f.catalog.PutProduct(domain.Product{ID: "P1"})

	var logs bytes.Buffer
	a := New(flakyCatalog{f.catalog}, content.Static{}, f.props, slog.New(slog.NewJSONHandler(&logs, nil)))
	res := a.Build(context.Background(), "P1")

	assert.Nil(t, res.Document)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "list prices")
	assert.Contains(t, logs.String(), "failed to build product document")
	assert.Contains(t, logs.String(), `"product_id":"P1"`)
}

func TestBuild_ProductLookupFailure(t *testing.T) {
	f := newFixture(t)
	f.catalog.FailProduct("P1", errors.New("pool exhausted"))

	res := f.build(t, nil, "P1")
	assert.Nil(t, res.Document)
	assert.ErrorContains(t, res.Err, "pool exhausted")
}

func TestBuild_UsesContextLogger(t *testing.T) {
	f := newFixture(t)
	f.catalog.FailProduct("P1", errors.New("boom"))

	ctx := logger.WithOwner(context.Background(), "tenant-a")
	f.assembler(nil).Build(ctx, "P1")
	assert.Contains(t, f.logs.String(), "tenant-a")
}
