// Package assembler builds product search documents from the relational
// catalog.
package assembler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/utafrali/catalog-indexer/internal/content"
	"github.com/utafrali/catalog-indexer/internal/document"
	"github.com/utafrali/catalog-indexer/internal/repository"
	"github.com/utafrali/catalog-indexer/internal/temporal"
	apperrors "github.com/utafrali/catalog-indexer/pkg/errors"
	"github.com/utafrali/catalog-indexer/pkg/logger"
	"github.com/utafrali/catalog-indexer/pkg/tracing"
)

const tracerName = "github.com/utafrali/catalog-indexer/internal/assembler"

// FullTextField is the catch-all field every weighted text value is copied to.
const FullTextField = "fullText"

// Weight and switch keys in the prodsearch namespace.
const (
	keyIgnoreVariants      = "index.ignore.variants"
	keyContentTypes        = "index.include.ProductContentTypes"
	keyContentWeightPrefix = "index.weight.ProductContent."

	keyProductName     = "index.weight.Product.productName"
	keyInternalName    = "index.weight.Product.internalName"
	keyBrandName       = "index.weight.Product.brandName"
	keyDescription     = "index.weight.Product.description"
	keyLongDescription = "index.weight.Product.longDescription"

	keyFeatureDescription = "index.weight.ProductFeatureAndAppl.description"
	keyFeatureAbbrev      = "index.weight.ProductFeatureAndAppl.abbrev"
	keyFeatureIDCode      = "index.weight.ProductFeatureAndAppl.idCode"

	keyAttrName  = "index.weight.ProductAttribute.attrName"
	keyAttrValue = "index.weight.ProductAttribute.attrValue"

	keyGoodIDValue = "index.weight.GoodIdentification.idValue"
	keyVariantID   = "index.weight.Variant.Product.productId"
)

// Result is the outcome of a document build. A nil Document means the
// product must be removed from the index. Err is set when the build was
// abandoned because of a lookup failure; it has already been logged.
type Result struct {
	ProductID   string
	Document    *document.Document
	NextReindex *time.Time
	Err         error
}

// Assembler builds one search document per product.
type Assembler struct {
	catalog  repository.Catalog
	renderer content.Renderer
	props    document.Source
	emitter  *document.Emitter
	logger   *slog.Logger
	now      func() time.Time
}

// New creates an Assembler.
func New(catalog repository.Catalog, renderer content.Renderer, props document.Source, logger *slog.Logger) *Assembler {
	return &Assembler{
		catalog:  catalog,
		renderer: renderer,
		props:    props,
		emitter:  document.NewEmitter(props, logger),
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock overrides the clock used for effective-date checks.
func (a *Assembler) WithClock(now func() time.Time) *Assembler {
	a.now = now
	return a
}

// Build assembles the document for productID. It never fails: a missing
// product, an ignored variant or a lookup error all yield a nil Document.
func (a *Assembler) Build(ctx context.Context, productID string) Result {
	ctx, span := tracing.Tracer(tracerName).Start(ctx, "assembler.Build")
	ctx = logger.WithProductID(ctx, productID)

	doc, due, err := a.build(ctx, productID, a.now())
	tracing.End(span, err,
		attribute.String("product.id", productID),
		attribute.Bool("document.present", doc != nil),
	)

	if err != nil {
		logger.WithContext(ctx, a.logger).ErrorContext(ctx, "failed to build product document",
			slog.String("error", err.Error()),
		)
		return Result{ProductID: productID, Err: err}
	}
	return Result{ProductID: productID, Document: doc, NextReindex: due}
}

func (a *Assembler) build(ctx context.Context, productID string, now time.Time) (*document.Document, *time.Time, error) {
	product, err := a.catalog.GetProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("get product: %w", err)
	}
	if product.IsVariant && a.props.Value(document.Namespace, keyIgnoreVariants, "") == "true" {
		return nil, nil, nil
	}

	doc := document.New(productID)
	doc.AddStoredTerm(document.IDField, productID)
	a.emitter.Emit(ctx, doc, "productName", product.ProductName, keyProductName, 0, false, FullTextField)
	a.emitter.Emit(ctx, doc, "internalName", product.InternalName, keyInternalName, 0, false, FullTextField)
	a.emitter.Emit(ctx, doc, "brandName", product.BrandName, keyBrandName, 0, false, FullTextField)
	a.emitter.Emit(ctx, doc, "description", product.Description, keyDescription, 0, false, FullTextField)
	a.emitter.Emit(ctx, doc, "longDescription", product.LongDescription, keyLongDescription, 0, false, FullTextField)

	doc.AddDay("introductionDate", temporal.QuantizeDays(product.IntroductionDate))
	doc.AddDay("salesDiscontinuationDate", temporal.QuantizeDays(product.SalesDiscontinuationDate))
	due := temporal.ReindexAt(temporal.Future(product.IntroductionDate, now), nil)
	due = temporal.ReindexAt(temporal.Future(product.SalesDiscontinuationDate, now), due)

	doc.AddTerm("isVariant", strconv.FormatBool(product.IsVariant))

	steps := []func(context.Context, *document.Document, time.Time) (*time.Time, error){
		a.addFeatures,
		a.addAttributes,
		a.addGoodIdentifications,
	}
	if product.IsVirtual {
		steps = append(steps, a.addVariants)
	}
	steps = append(steps, a.addContent, a.addCategories, a.addPrices, a.addSuppliers)

	for _, step := range steps {
		next, err := step(ctx, doc, now)
		if err != nil {
			return nil, nil, err
		}
		due = temporal.ReindexAt(next, due)
	}
	return doc, due, nil
}

func (a *Assembler) addFeatures(ctx context.Context, doc *document.Document, now time.Time) (*time.Time, error) {
	if !a.emitter.Enabled(ctx, keyFeatureDescription, keyFeatureAbbrev, keyFeatureIDCode) {
		return nil, nil
	}
	appls, err := a.catalog.ListFeatureAppls(ctx, doc.ID())
	if err != nil {
		return nil, fmt.Errorf("list features: %w", err)
	}

	var due *time.Time
	for _, f := range temporal.CurrentlyValid(appls, now) {
		emit, next := temporal.Admit(f, now)
		due = temporal.ReindexAt(next, due)
		if !emit {
			continue
		}
		doc.AddTerm("productFeatureId", f.ProductFeatureID)
		doc.AddTerm("productFeatureCategoryId", f.ProductFeatureCategoryID)
		doc.AddTerm("productFeatureTypeId", f.ProductFeatureTypeID)
		a.emitter.Emit(ctx, doc, "featureDescription", f.Description, keyFeatureDescription, 0, false, FullTextField)
		a.emitter.Emit(ctx, doc, "featureAbbreviation", f.Abbrev, keyFeatureAbbrev, 0, false, FullTextField)
		a.emitter.Emit(ctx, doc, "featureCode", f.IDCode, keyFeatureIDCode, 0, false, FullTextField)

		groups, err := a.catalog.ListFeatureGroupAppls(ctx, f.ProductFeatureID)
		if err != nil {
			return nil, fmt.Errorf("list feature groups of %s: %w", f.ProductFeatureID, err)
		}
		for _, g := range temporal.CurrentlyValid(groups, now) {
			emit, next := temporal.Admit(g, now)
			due = temporal.ReindexAt(next, due)
			if emit {
				doc.AddTerm("productFeatureGroupId", g.ProductFeatureGroupID)
			}
		}
	}
	return due, nil
}

func (a *Assembler) addAttributes(ctx context.Context, doc *document.Document, _ time.Time) (*time.Time, error) {
	if !a.emitter.Enabled(ctx, keyAttrName, keyAttrValue) {
		return nil, nil
	}
	attrs, err := a.catalog.ListAttributes(ctx, doc.ID())
	if err != nil {
		return nil, fmt.Errorf("list attributes: %w", err)
	}
	for _, attr := range attrs {
		a.emitter.Emit(ctx, doc, "attributeName", attr.AttrName, keyAttrName, 0, false, FullTextField)
		a.emitter.Emit(ctx, doc, "attributeValue", attr.AttrValue, keyAttrValue, 0, false, FullTextField)
	}
	return nil, nil
}

func (a *Assembler) addGoodIdentifications(ctx context.Context, doc *document.Document, _ time.Time) (*time.Time, error) {
	if !a.emitter.Enabled(ctx, keyGoodIDValue) {
		return nil, nil
	}
	ids, err := a.catalog.ListGoodIdentifications(ctx, doc.ID())
	if err != nil {
		return nil, fmt.Errorf("list good identifications: %w", err)
	}
	for _, g := range ids {
		doc.AddTerm("goodIdentificationTypeId", g.TypeID)
		doc.AddTerm("goodIdentificationIdValue", g.IDValue)
		doc.AddTerm(g.TypeID+"_GoodIdentification", g.IDValue)
		a.emitter.Emit(ctx, doc, "identificationValue", g.IDValue, keyGoodIDValue, 0, false, FullTextField)
	}
	return nil, nil
}

func (a *Assembler) addVariants(ctx context.Context, doc *document.Document, now time.Time) (*time.Time, error) {
	if !a.emitter.Enabled(ctx, keyVariantID) {
		return nil, nil
	}
	assocs, err := a.catalog.ListVariantAssocs(ctx, doc.ID())
	if err != nil {
		return nil, fmt.Errorf("list variants: %w", err)
	}

	var due *time.Time
	for _, v := range temporal.CurrentlyValid(assocs, now) {
		emit, next := temporal.Admit(v, now)
		due = temporal.ReindexAt(next, due)
		if emit {
			a.emitter.Emit(ctx, doc, "variantProductId", v.ProductIDTo, keyVariantID, 0, false, FullTextField)
		}
	}
	return due, nil
}

func (a *Assembler) addContent(ctx context.Context, doc *document.Document, now time.Time) (*time.Time, error) {
	var due *time.Time
	for _, typeID := range a.contentTypes() {
		weight := a.contentWeight(ctx, typeID)

		items, err := a.catalog.ListContent(ctx, doc.ID(), typeID)
		if err != nil {
			return nil, fmt.Errorf("list %s content: %w", typeID, err)
		}
		for _, item := range temporal.CurrentlyValid(items, now) {
			emit, next := temporal.Admit(item, now)
			due = temporal.ReindexAt(next, due)
			if !emit {
				continue
			}
			text, err := a.renderer.RenderAsText(ctx, item.DataResourceID, doc.ID())
			if err != nil {
				logger.WithContext(ctx, a.logger).WarnContext(ctx, "failed to render content for indexing",
					slog.String("content_id", item.ContentID),
					slog.String("data_resource_id", item.DataResourceID),
					slog.String("error", err.Error()),
				)
				continue
			}
			a.emitter.Emit(ctx, doc, "content", text, "", weight, false, FullTextField)
		}
	}
	return due, nil
}

func (a *Assembler) contentTypes() []string {
	raw := a.props.Value(document.Namespace, keyContentTypes, "")
	var types []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			types = append(types, t)
		}
	}
	return types
}

// contentWeight defaults to 1 because listing a type means it is indexed.
func (a *Assembler) contentWeight(ctx context.Context, typeID string) float64 {
	raw := strings.TrimSpace(a.props.Value(document.Namespace, keyContentWeightPrefix+typeID, "1"))
	w, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		a.logger.WarnContext(ctx, "could not parse content weight",
			slog.String("content_type_id", typeID),
			slog.String("value", raw),
			slog.String("error", err.Error()),
		)
		return 1
	}
	return w
}

func (a *Assembler) addCategories(ctx context.Context, doc *document.Document, now time.Time) (*time.Time, error) {
	members, err := a.catalog.ListCategoryMembers(ctx, doc.ID())
	if err != nil {
		return nil, fmt.Errorf("list category members: %w", err)
	}
	due, err := NewClosure(a.catalog, doc, now).AddMemberships(ctx, members)
	if err != nil {
		return nil, fmt.Errorf("resolve categories: %w", err)
	}
	return due, nil
}

func (a *Assembler) addPrices(ctx context.Context, doc *document.Document, now time.Time) (*time.Time, error) {
	prices, err := a.catalog.ListPrices(ctx, doc.ID())
	if err != nil {
		return nil, fmt.Errorf("list prices: %w", err)
	}

	var due *time.Time
	for _, p := range temporal.CurrentlyValid(prices, now) {
		emit, next := temporal.Admit(p, now)
		due = temporal.ReindexAt(next, due)
		if emit {
			doc.AddNumber(p.FieldName(), p.Price)
		}
	}
	return due, nil
}

func (a *Assembler) addSuppliers(ctx context.Context, doc *document.Document, now time.Time) (*time.Time, error) {
	suppliers, err := a.catalog.ListSuppliers(ctx, doc.ID())
	if err != nil {
		return nil, fmt.Errorf("list suppliers: %w", err)
	}

	var due *time.Time
	seen := make(map[string]struct{})
	for _, s := range temporal.CurrentlyValid(suppliers, now) {
		emit, next := temporal.Admit(s, now)
		due = temporal.ReindexAt(next, due)
		if emit {
			seen[s.PartyID] = struct{}{}
		}
	}

	parties := make([]string, 0, len(seen))
	for id := range seen {
		parties = append(parties, id)
	}
	sort.Strings(parties)
	for _, id := range parties {
		doc.AddTerm("supplierPartyId", id)
	}
	return due, nil
}
