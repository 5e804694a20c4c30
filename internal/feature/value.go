// Package feature holds the in-memory model shared by the extractors, the
// schema inferencer, the converter and the feature stores: feature records,
// typed attribute values, field plans and geometry categories.
package feature

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Kind tags the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindText
	KindInteger
	KindReal
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindInteger:
		return "integer"
	case KindReal:
		return "real"
	default:
		return "null"
	}
}

// Value is a typed attribute value: Text, Integer, Real or Null.
// The zero Value is Null.
type Value struct {
	kind Kind
	s    string
	i    int64
	f    float64
}

func Null() Value { return Value{} }
func Text(s string) Value { return Value{kind: KindText, s: s} }
func Integer(i int64) Value { return Value{kind: KindInteger, i: i} }
func Real(f float64) Value { return Value{kind: KindReal, f: f} }
func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

// Int returns the integer payload. Real values with an integral value are
// accepted as well.
func (v Value) Int() (int64, bool) {
	switch v.kind {
	case KindInteger:
		return v.i, true
	case KindReal:
		if v.f == math.Trunc(v.f) && !math.IsInf(v.f, 0) && math.Abs(v.f) < 1<<63 {
			return int64(v.f), true
		}
	}
	return 0, false
}

// Float returns the numeric payload as float64.
func (v Value) Float() (float64, bool) {
	switch v.kind {
	case KindInteger:
		return float64(v.i), true
	case KindReal:
		return v.f, true
	}
	return 0, false
}

// String formats the value as text. Null formats as "".
func (v Value) String() string {
	switch v.kind {
	case KindText:
		return v.s
	case KindInteger:
		return strconv.FormatInt(v.i, 10)
	case KindReal:
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	default:
		return ""
	}
}

// SQL returns the value in a form accepted by database/sql drivers.
func (v Value) SQL() any {
	switch v.kind {
	case KindText:
		return v.s
	case KindInteger:
		return v.i
	case KindReal:
		return v.f
	default:
		return nil
	}
}

// FromRaw converts a decoded JSON value into a Value. Numbers are expected as
// json.Number (decoders run with UseNumber). Strings stay Text even when they
// look numeric; numeric interpretation is the field plan's job. Objects and
// arrays are kept as their compact JSON text.
func FromRaw(raw any) Value {
	switch t := raw.(type) {
	case nil:
		return Null()
	case string:
		return Text(t)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return Integer(i)
		}
		if f, err := t.Float64(); err == nil {
			return Real(f)
		}
		return Text(t.String())
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1<<53 {
			return Integer(int64(t))
		}
		return Real(t)
	case int:
		return Integer(int64(t))
	case int64:
		return Integer(t)
	case bool:
		return Text(strconv.FormatBool(t))
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return Null()
		}
		return Text(string(b))
	}
}

// FromSQL converts a value scanned from database/sql back into a Value.
func FromSQL(raw any) Value {
	switch t := raw.(type) {
	case nil:
		return Null()
	case int64:
		return Integer(t)
	case float64:
		return Real(t)
	case string:
		return Text(t)
	case []byte:
		return Text(string(t))
	default:
		return FromRaw(t)
	}
}

// ParseInteger reports whether s is an integer literal (surrounding space
// allowed).
func ParseInteger(s string) (int64, bool) {
	i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return i, err == nil
}

// ParseReal reports whether s is a floating-point literal. NaN and Inf
// spellings are rejected.
func ParseReal(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
