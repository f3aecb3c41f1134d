// Package document holds the denormalized search document handed to index
// writers, and the weighted field emitter that populates it.
package document

// Kind is the value type of a field.
type Kind uint8

// Field kinds.
const (
	KindText Kind = iota
	KindTerm
	KindNumber
	KindDay
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindTerm:
		return "term"
	case KindNumber:
		return "number"
	case KindDay:
		return "day"
	default:
		return "unknown"
	}
}

// IDField names the field carrying the document key.
const IDField = "productId"

// BoostsField holds per-field boosts in the stored representation.
const BoostsField = "fieldBoosts"

// Field is one value of a document field. Text and term values use Text;
// numeric and day values use Number.
type Field struct {
	Name   string
	Kind   Kind
	Text   string
	Number float64
	Boost  float64
	Stored bool
}

// Value returns the field value in its natural Go type.
func (f Field) Value() any {
	switch f.Kind {
	case KindNumber:
		return f.Number
	case KindDay:
		return int64(f.Number)
	default:
		return f.Text
	}
}

// Document is an ordered multimap of field name to values. A field name may
// repeat; insertion order is preserved.
type Document struct {
	id     string
	fields []Field
}

// New creates an empty document keyed by id.
func New(id string) *Document {
	return &Document{id: id}
}

// ID returns the document key.
func (d *Document) ID() string { return d.id }

// Add appends a field.
func (d *Document) Add(f Field) {
	d.fields = append(d.fields, f)
}

// AddText appends an analyzed text value.
func (d *Document) AddText(name, value string, boost float64, stored bool) {
	d.Add(Field{Name: name, Kind: KindText, Text: value, Boost: boost, Stored: stored})
}

// AddTerm appends an exact, non-analyzed value.
func (d *Document) AddTerm(name, value string) {
	d.Add(Field{Name: name, Kind: KindTerm, Text: value})
}

// AddStoredTerm appends an exact value that is also stored.
func (d *Document) AddStoredTerm(name, value string) {
	d.Add(Field{Name: name, Kind: KindTerm, Text: value, Stored: true})
}

// AddNumber appends a numeric value.
func (d *Document) AddNumber(name string, v float64) {
	d.Add(Field{Name: name, Kind: KindNumber, Number: v})
}

// AddDay appends a day-granularity date expressed as days since the epoch.
func (d *Document) AddDay(name string, days int64) {
	d.Add(Field{Name: name, Kind: KindDay, Number: float64(days)})
}

// Fields returns a copy of all fields in insertion order.
func (d *Document) Fields() []Field {
	out := make([]Field, len(d.fields))
	copy(out, d.fields)
	return out
}

// Get returns every value recorded under name.
func (d *Document) Get(name string) []Field {
	var out []Field
	for _, f := range d.fields {
		if f.Name == name {
			out = append(out, f)
		}
	}
	return out
}

// Strings returns the text of every text or term value under name.
func (d *Document) Strings(name string) []string {
	var out []string
	for _, f := range d.fields {
		if f.Name == name && (f.Kind == KindText || f.Kind == KindTerm) {
			out = append(out, f.Text)
		}
	}
	return out
}

// Boosts returns the highest boost recorded per field name. Fields without
// a boost are omitted.
func (d *Document) Boosts() map[string]float64 {
	out := make(map[string]float64)
	for _, f := range d.fields {
		if f.Boost > 0 && f.Boost > out[f.Name] {
			out[f.Name] = f.Boost
		}
	}
	return out
}

// ToMap flattens the document into a JSON-friendly map. Single values stay
// scalar, repeated values become slices in insertion order. Boosts, if any,
// are kept under BoostsField.
func (d *Document) ToMap() map[string]any {
	out := make(map[string]any, len(d.fields)+1)
	for _, f := range d.fields {
		v := f.Value()
		switch cur := out[f.Name].(type) {
		case nil:
			out[f.Name] = v
		case []any:
			out[f.Name] = append(cur, v)
		default:
			out[f.Name] = []any{cur, v}
		}
	}
	if boosts := d.Boosts(); len(boosts) > 0 {
		out[BoostsField] = boosts
	}
	return out
}
