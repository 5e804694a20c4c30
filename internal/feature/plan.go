package feature

import (
	"fmt"
	"unicode/utf8"
)

// FieldType is the storage type of an output field.
type FieldType string

const (
	FieldText    FieldType = "TEXT"
	FieldInteger FieldType = "INTEGER"
	FieldReal    FieldType = "REAL"
)

// Valid reports whether t is one of the known field types.
func (t FieldType) Valid() bool {
	switch t {
	case FieldText, FieldInteger, FieldReal:
		return true
	}
	return false
}

// DefaultTextLength is the length given to Text fields unless a rule says
// otherwise.
const DefaultTextLength = 255

// FieldSpec plans one output field. Key is the attribute key in the source
// records; Name is the validated field name in the store.
type FieldSpec struct {
	Key    string
	Name   string
	Type   FieldType
	Length int
}

// FieldPlan is the ordered field layout of one region. It is computed once,
// before any insertion, and never revised.
type FieldPlan struct {
	Fields []FieldSpec
}

// Names returns the store field names in plan order.
func (p FieldPlan) Names() []string {
	out := make([]string, len(p.Fields))
	for i, f := range p.Fields {
		out[i] = f.Name
	}
	return out
}

// Validate checks the plan for empty or duplicate names and unknown types.
func (p FieldPlan) Validate() error {
	seen := make(map[string]string, len(p.Fields))
	for _, f := range p.Fields {
		if f.Name == "" {
			return fmt.Errorf("field plan: key %q has empty field name", f.Key)
		}
		if !f.Type.Valid() {
			return fmt.Errorf("field plan: field %q has unknown type %q", f.Name, f.Type)
		}
		if prev, dup := seen[f.Name]; dup {
			return fmt.Errorf("field plan: keys %q and %q both map to field %q", prev, f.Key, f.Name)
		}
		seen[f.Name] = f.Key
	}
	return nil
}

// CoerceStats counts values changed by the coercion policy.
type CoerceStats struct {
	CoercedNull int // values that did not fit the field type and became Null
	Truncated   int // text values cut to the field length
}

// Add accumulates o into s.
func (s *CoerceStats) Add(o CoerceStats) {
	s.CoercedNull += o.CoercedNull
	s.Truncated += o.Truncated
}

// Row maps a record onto the plan: one value per field, in plan order.
// Missing keys become Null. Each value is coerced to its field type.
func (p FieldPlan) Row(rec Record) ([]Value, CoerceStats) {
	var stats CoerceStats
	out := make([]Value, len(p.Fields))
	for i, f := range p.Fields {
		v, _ := rec.Get(f.Key)
		cv, outcome := f.Coerce(v)
		switch outcome {
		case CoercedNull:
			stats.CoercedNull++
		case CoercedTruncated:
			stats.Truncated++
		}
		out[i] = cv
	}
	return out, stats
}

// Outcome reports what Coerce did to a value.
type Outcome uint8

const (
	CoercedNone Outcome = iota
	CoercedNull
	CoercedTruncated
)

// Coerce converts v to the field's type:
//   - Integer accepts integers, integral reals and integer-looking text.
//   - Real accepts any number and numeric text.
//   - Text accepts anything and truncates to Length runes.
//
// Blank text for a numeric field is Null without being counted as a loss.
func (f FieldSpec) Coerce(v Value) (Value, Outcome) {
	if v.IsNull() {
		return v, CoercedNone
	}
	switch f.Type {
	case FieldInteger:
		if i, ok := v.Int(); ok {
			return Integer(i), CoercedNone
		}
		if v.Kind() == KindText {
			if isBlank(v.s) {
				return Null(), CoercedNone
			}
			if i, ok := ParseInteger(v.s); ok {
				return Integer(i), CoercedNone
			}
			if r, ok := ParseReal(v.s); ok {
				if i, ok := Real(r).Int(); ok {
					return Integer(i), CoercedNone
				}
			}
		}
		return Null(), CoercedNull
	case FieldReal:
		if r, ok := v.Float(); ok {
			return Real(r), CoercedNone
		}
		if isBlank(v.s) {
			return Null(), CoercedNone
		}
		if r, ok := ParseReal(v.s); ok {
			return Real(r), CoercedNone
		}
		return Null(), CoercedNull
	default:
		s := v.String()
		if f.Length > 0 && utf8.RuneCountInString(s) > f.Length {
			return Text(truncateRunes(s, f.Length)), CoercedTruncated
		}
		return Text(s), CoercedNone
	}
}

func isBlank(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}

func truncateRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
