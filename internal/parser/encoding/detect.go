// Package encoding detects the text encoding of a region payload and decodes
// it to UTF-8 before parsing. Attribute values in the source documents are
// frequently Japanese text saved as Shift_JIS (CP932) or EUC-JP instead of
// UTF-8.
package encoding

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/japanese"
	xunicode "golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Name identifiers reported by Decode.
const (
	UTF8     = "UTF-8"
	UTF16LE  = "UTF-16LE"
	UTF16BE  = "UTF-16BE"
	ShiftJIS = "Shift_JIS"
	EUCJP    = "EUC-JP"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ErrUndetectable is returned when no candidate encoding decodes the payload
// cleanly.
var ErrUndetectable = errors.New("encoding: undetectable")

type candidate struct {
	name string
	enc  encoding.Encoding
}

// legacy encodings tried, in preference order, when the payload is not UTF-8.
var legacy = []candidate{
	{ShiftJIS, japanese.ShiftJIS},
	{EUCJP, japanese.EUCJP},
}

// Decode returns b converted to UTF-8 together with the detected encoding
// name. A UTF-8 BOM is stripped. UTF-16 is only recognised with a BOM.
func Decode(b []byte) ([]byte, string, error) {
	switch {
	case bytes.HasPrefix(b, utf8BOM):
		return b[len(utf8BOM):], UTF8, nil
	case bytes.HasPrefix(b, []byte{0xFF, 0xFE}):
		out, err := decodeWith(xunicode.UTF16(xunicode.LittleEndian, xunicode.ExpectBOM), b)
		return out, UTF16LE, err
	case bytes.HasPrefix(b, []byte{0xFE, 0xFF}):
		out, err := decodeWith(xunicode.UTF16(xunicode.BigEndian, xunicode.ExpectBOM), b)
		return out, UTF16BE, err
	case utf8.Valid(b):
		return b, UTF8, nil
	}

	best, bestScore := -1, -1
	var bestOut []byte
	for i, c := range legacy {
		out, err := decodeWith(c.enc, b)
		if err != nil || !clean(out) {
			continue
		}
		if s := score(out); s > bestScore {
			best, bestScore, bestOut = i, s, out
		}
	}
	if best < 0 {
		return nil, "", ErrUndetectable
	}
	return bestOut, legacy[best].name, nil
}

// DecodeAs converts b from the named encoding (an IANA/WHATWG label such as
// "shift_jis" or a Windows code page number such as "932"). An empty name
// falls back to Decode.
func DecodeAs(b []byte, name string) ([]byte, string, error) {
	label := strings.ToLower(strings.TrimSpace(name))
	switch label {
	case "":
		return Decode(b)
	case "932", "cp932", "ms932", "sjis":
		label = "shift_jis"
	case "65001", "utf8":
		label = "utf-8"
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, "", fmt.Errorf("encoding: unknown label %q: %w", name, err)
	}
	canonical, _ := htmlindex.Name(enc)
	if canonical == "utf-8" {
		if !utf8.Valid(b) {
			return nil, "", fmt.Errorf("encoding: payload is not valid %s", name)
		}
		return bytes.TrimPrefix(b, utf8BOM), UTF8, nil
	}
	out, err := decodeWith(enc, b)
	if err != nil {
		return nil, "", err
	}
	return out, canonical, nil
}

func decodeWith(enc encoding.Encoding, b []byte) ([]byte, error) {
	out, _, err := transform.Bytes(enc.NewDecoder(), b)
	if err != nil {
		return nil, fmt.Errorf("encoding: decode: %w", err)
	}
	return out, nil
}

// clean rejects decodings that produced replacement characters or control
// characters other than ordinary whitespace.
func clean(b []byte) bool {
	for _, r := range string(b) {
		if r == utf8.RuneError {
			return false
		}
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return false
		}
	}
	return true
}

// score counts runes that are typical of Japanese text. Half-width katakana
// is excluded: EUC-JP bytes often decode as plausible half-width katakana
// under Shift_JIS.
func score(b []byte) int {
	n := 0
	for _, r := range string(b) {
		if r >= 0xFF61 && r <= 0xFF9F {
			continue
		}
		if unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r) {
			n++
		}
	}
	return n
}
