package document

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
)

// Namespace is the properties namespace holding indexing weights.
const Namespace = "prodsearch"

// NullValue replaces empty values so that an empty field is distinguishable
// from one that was never emitted.
const NullValue = "NULL"

// Source resolves configuration values.
type Source interface {
	Value(namespace, key, def string) string
}

// Emitter adds text fields to a document according to configured weights.
type Emitter struct {
	props  Source
	logger *slog.Logger
}

// NewEmitter creates an emitter reading weights from props.
func NewEmitter(props Source, logger *slog.Logger) *Emitter {
	return &Emitter{props: props, logger: logger}
}

// Weight resolves the weight stored under key, defaulting to "0". A value
// that does not parse is logged and treated as 0.
func (e *Emitter) Weight(ctx context.Context, key string) float64 {
	raw := strings.TrimSpace(e.props.Value(Namespace, key, "0"))
	w, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		e.logger.WarnContext(ctx, "could not parse field weight",
			slog.String("key", key),
			slog.String("value", raw),
			slog.String("error", err.Error()),
		)
		return 0
	}
	return w
}

// Enabled reports whether any of keys resolves to a non-zero weight.
func (e *Emitter) Enabled(ctx context.Context, keys ...string) bool {
	for _, k := range keys {
		if e.Weight(ctx, k) != 0 {
			return true
		}
	}
	return false
}

// Emit adds value under field. The weight comes from weightKey when set,
// otherwise fallback. A zero weight skips the field unless forceStore is
// set. Weights other than 0 and 1 are carried as a boost. When fullTextField
// is set the value is also appended to that catch-all field.
func (e *Emitter) Emit(ctx context.Context, doc *Document, field, value, weightKey string, fallback float64, forceStore bool, fullTextField string) {
	if field == "" {
		return
	}

	weight := fallback
	if weightKey != "" {
		weight = e.Weight(ctx, weightKey)
	}
	if weight == 0 && !forceStore {
		return
	}

	if value == "" {
		value = NullValue
	}

	var boost float64
	if weight > 0 && weight != 1 {
		boost = weight
	}
	doc.AddText(field, value, boost, forceStore)

	if fullTextField != "" {
		doc.AddText(fullTextField, value, 0, false)
	}
}
