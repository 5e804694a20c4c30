// Package schema infers the output layout of a region from its first feature
// record: the geometry category of the collection, its spatial reference and
// the field plan for its attributes.
//
// Inference is single-sample: later records are mapped onto whatever the
// first record implied, and values that do not fit are handled by the field
// plan's coercion policy at insert time.
package schema

import (
	"strings"

	"farmland/internal/feature"
)

// CategoryFor maps a GeoJSON geometry type tag to an output geometry
// category. warn is set for "FeatureCollection", which should never reach
// this stage and is mapped to POINT.
func CategoryFor(tag string) (cat feature.GeometryCategory, warn bool) {
	switch tag {
	case "Point", "MultiPoint":
		return feature.CategoryPoint, false
	case "LineString", "MultiLineString":
		return feature.CategoryPolyline, false
	case "Polygon", "MultiPolygon":
		return feature.CategoryPolygon, false
	case "FeatureCollection":
		return feature.CategoryPoint, true
	default:
		return feature.GeometryCategory(strings.ToUpper(tag)), false
	}
}
