package feature

import "encoding/json"

// Attribute is one key/value pair of a feature's attribute mapping.
type Attribute struct {
	Key   string
	Value Value
}

// Record is one feature: a raw GeoJSON geometry, its geometry type tag and
// the ordered attribute mapping. Records are immutable once built.
type Record struct {
	geometry     json.RawMessage
	geometryType string
	attrs        []Attribute
	index        map[string]int
}

// NewRecord builds a Record. Attribute keys keep first-seen order; a repeated
// key keeps its first position and takes the last value, matching how a JSON
// object decoder resolves duplicates.
func NewRecord(geometry json.RawMessage, geometryType string, attrs []Attribute) Record {
	r := Record{
		geometry:     append(json.RawMessage(nil), geometry...),
		geometryType: geometryType,
		attrs:        make([]Attribute, 0, len(attrs)),
		index:        make(map[string]int, len(attrs)),
	}
	for _, a := range attrs {
		if i, ok := r.index[a.Key]; ok {
			r.attrs[i].Value = a.Value
			continue
		}
		r.index[a.Key] = len(r.attrs)
		r.attrs = append(r.attrs, a)
	}
	return r
}

// Geometry returns the raw geometry object.
func (r Record) Geometry() json.RawMessage { return r.geometry }

// GeometryType returns the geometry type tag, e.g. "Polygon".
func (r Record) GeometryType() string { return r.geometryType }

// Attributes returns a copy of the ordered attribute mapping.
func (r Record) Attributes() []Attribute {
	out := make([]Attribute, len(r.attrs))
	copy(out, r.attrs)
	return out
}

// Get returns the value for key.
func (r Record) Get(key string) (Value, bool) {
	i, ok := r.index[key]
	if !ok {
		return Null(), false
	}
	return r.attrs[i].Value, true
}

// Len returns the number of attributes.
func (r Record) Len() int { return len(r.attrs) }

// WithAttributes returns a copy of r with extra attributes appended (or
// overwritten when the key already exists).
func (r Record) WithAttributes(extra ...Attribute) Record {
	all := make([]Attribute, 0, len(r.attrs)+len(extra))
	all = append(all, r.attrs...)
	all = append(all, extra...)
	return NewRecord(r.geometry, r.geometryType, all)
}
