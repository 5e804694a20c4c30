// Package geojson extracts feature records from one region's GeoJSON
// document.
//
// Extraction is tolerant by design of the inputs it receives:
//
//   - The payload's text encoding is detected before parsing.
//   - A document of the form {"status": 404, ...} is the upstream API's
//     "query returned no data" answer and yields zero records, not an error.
//   - Feature entries without a geometry object, a geometry type or a
//     properties object are skipped and counted; the rest are kept in input
//     order.
package geojson

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/xxh3"

	"farmland/internal/failure"
	"farmland/internal/feature"
	"farmland/internal/parser"
	"farmland/internal/parser/encoding"
)

// noDataStatus is the status code of the "no results" sentinel document.
const noDataStatus = 404

// ExtractFile reads and extracts the document at path.
func ExtractFile(path string) (parser.Extraction, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return parser.Extraction{}, failure.New(failure.DecodeError, "read", path, err)
	}
	return Extract(raw)
}

// Extract decodes raw into feature records.
func Extract(raw []byte) (parser.Extraction, error) {
	ex := parser.Extraction{Checksum: xxh3.Hash(raw)}

	text, enc, err := encoding.Decode(raw)
	if err != nil {
		return ex, failure.New(failure.DecodeError, "detect_encoding", "", err)
	}
	ex.Encoding = enc

	var doc map[string]json.RawMessage
	if err := unmarshalNumber(text, &doc); err != nil {
		return ex, failure.New(failure.DecodeError, "parse_document", "", err)
	}

	if isNoData(doc["status"]) {
		ex.Empty = true
		return ex, nil
	}

	rawFeatures, ok := doc["features"]
	if !ok {
		return ex, failure.Newf(failure.DecodeError, "parse_document", "", "no \"features\" member")
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(rawFeatures, &entries); err != nil {
		return ex, failure.New(failure.DecodeError, "parse_features", "", err)
	}

	ex.Records = make([]feature.Record, 0, len(entries))
	for _, entry := range entries {
		rec, err := parseFeature(entry)
		if err != nil {
			ex.Skipped++
			continue
		}
		ex.Records = append(ex.Records, rec)
	}
	return ex, nil
}

func isNoData(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var n json.Number
	if err := unmarshalNumber(raw, &n); err != nil {
		return false
	}
	i, err := n.Int64()
	return err == nil && i == noDataStatus
}

type geometryHead struct {
	Type string `json:"type"`
}

// parseFeature destructures one entry. Any missing piece is reported as a
// FeatureParseError, which the caller counts and skips.
func parseFeature(entry json.RawMessage) (feature.Record, error) {
	var f map[string]json.RawMessage
	if err := json.Unmarshal(entry, &f); err != nil || f == nil {
		return feature.Record{}, failure.Newf(failure.FeatureParseError, "parse_feature", "", "entry is not an object")
	}

	geom := bytes.TrimSpace(f["geometry"])
	if len(geom) == 0 || geom[0] != '{' {
		return feature.Record{}, failure.Newf(failure.FeatureParseError, "parse_feature", "", "missing geometry")
	}
	var head geometryHead
	if err := json.Unmarshal(geom, &head); err != nil || head.Type == "" {
		return feature.Record{}, failure.Newf(failure.FeatureParseError, "parse_feature", "", "geometry has no type")
	}

	props := bytes.TrimSpace(f["properties"])
	if len(props) == 0 || props[0] != '{' {
		return feature.Record{}, failure.Newf(failure.FeatureParseError, "parse_feature", "", "missing properties")
	}
	attrs, err := orderedAttributes(props)
	if err != nil {
		return feature.Record{}, failure.New(failure.FeatureParseError, "parse_properties", "", err)
	}
	return feature.NewRecord(geom, head.Type, attrs), nil
}

// orderedAttributes decodes a JSON object keeping its key order, which a
// map-based decode would lose.
func orderedAttributes(obj []byte) ([]feature.Attribute, error) {
	dec := json.NewDecoder(bytes.NewReader(obj))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("properties: expected object")
	}

	var attrs []feature.Attribute
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("properties: expected key, got %v", tok)
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("properties: value of %q: %w", key, err)
		}
		attrs = append(attrs, feature.Attribute{Key: key, Value: feature.FromRaw(v)})
	}
	if _, err := dec.Token(); err != nil && err != io.EOF {
		return nil, err
	}
	return attrs, nil
}

func unmarshalNumber(b []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	return dec.Decode(v)
}
