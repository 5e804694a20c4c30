package schema

import (
	"strconv"
	"strings"
	"unicode"
)

// MaxNameLength is the longest field or collection name a store accepts.
const MaxNameLength = 64

// reserved names are used by the stores for the feature id and geometry.
var reserved = map[string]bool{"fid": true, "shape": true}

// ValidateFieldName turns an attribute key into a usable field name:
// characters other than letters, digits and '_' become '_', a leading digit
// gets an "f_" prefix, reserved names get a "_1" suffix and the result is
// capped at MaxNameLength runes.
func ValidateFieldName(key string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(key) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			b.WriteRune(r)
			continue
		}
		b.WriteByte('_')
	}
	name := b.String()
	if name == "" {
		name = "field"
	}
	if unicode.IsDigit([]rune(name)[0]) {
		name = "f_" + name
	}
	if reserved[strings.ToLower(name)] {
		name += "_1"
	}
	return capRunes(name, MaxNameLength)
}

// CollectionName derives the per-region collection name from an input base
// name. Names always get a "c_" prefix since region identifiers usually start
// with a digit.
func CollectionName(base string) string {
	var b strings.Builder
	b.WriteString("c_")
	for _, r := range base {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			b.WriteRune(r)
			continue
		}
		b.WriteByte('_')
	}
	return capRunes(b.String(), MaxNameLength)
}

// uniqueName appends _1, _2, ... until name is not in taken.
func uniqueName(name string, taken map[string]bool) string {
	if !taken[strings.ToLower(name)] {
		return name
	}
	for i := 1; ; i++ {
		suffix := "_" + strconv.Itoa(i)
		cand := capRunes(name, MaxNameLength-len(suffix)) + suffix
		if !taken[strings.ToLower(cand)] {
			return cand
		}
	}
}

func capRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
