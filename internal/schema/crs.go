package schema

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"farmland/internal/failure"
)

// crsPath is the member path, inside a geometry object, of the named CRS.
var crsPath = []string{"crs", "properties", "name"}

// ResolveSRID returns the spatial reference code carried by a raw geometry
// object under crs.properties.name, or def when the path is absent at any
// level. The name must look like "<authority>:<code>"; URN forms such as
// "urn:ogc:def:crs:EPSG::6668" resolve through their last segment. Code 0
// means no CRS and also yields def. A name whose code is not a non-negative
// integer is a CrsFormatError.
func ResolveSRID(geometry json.RawMessage, def int) (int, error) {
	name, ok := crsName(geometry)
	if !ok || name == "" {
		return def, nil
	}
	i := strings.LastIndex(name, ":")
	if i < 0 {
		return 0, failure.Newf(failure.CrsFormatError, "resolve_crs", name, "expected <authority>:<code>")
	}
	code, err := strconv.Atoi(strings.TrimSpace(name[i+1:]))
	if err != nil || code < 0 {
		return 0, failure.Newf(failure.CrsFormatError, "resolve_crs", name, "code %q is not numeric", name[i+1:])
	}
	if code == 0 {
		return def, nil
	}
	return code, nil
}

// crsName walks crsPath. Non-object intermediates count as absent; a
// non-string leaf is reported as present so it fails as a format error.
func crsName(geometry json.RawMessage) (string, bool) {
	cur := geometry
	for _, key := range crsPath {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(cur, &obj); err != nil || obj == nil {
			return "", false
		}
		next, ok := obj[key]
		if !ok || string(next) == "null" {
			return "", false
		}
		cur = next
	}
	var name string
	if err := json.Unmarshal(cur, &name); err != nil {
		return string(cur), true
	}
	return strings.TrimSpace(name), true
}

var (
	wktAuthority = regexp.MustCompile(`(?:AUTHORITY|ID)\[\s*"EPSG"\s*,\s*"?(\d+)"?\s*\]`)
	wktName      = regexp.MustCompile(`^\s*(?:PROJCS|GEOGCS|PROJCRS|GEOGCRS|GEODCRS)\[\s*"([^"]*)"`)
	esriZone     = regexp.MustCompile(`^JGD_(2000|2011)_Japan_Zone_(\d{1,2})$`)
)

// esriNames maps ESRI coordinate system names, which carry no AUTHORITY
// clause in a .prj, onto EPSG codes.
var esriNames = map[string]int{
	"GCS_WGS_1984":                           4326,
	"GCS_Tokyo":                              4301,
	"GCS_JGD_2000":                           4612,
	"GCS_JGD_2011":                           6668,
	"WGS_1984_Web_Mercator_Auxiliary_Sphere": 3857,
}

// SRIDFromWKT resolves the EPSG code of a WKT coordinate system definition,
// as found in a shapefile .prj. The outermost AUTHORITY or ID clause wins;
// without one the outermost name is looked up among known ESRI names,
// including the JGD2000 and JGD2011 plane rectangular zones. Anything else
// is a CrsFormatError.
func SRIDFromWKT(wkt string) (int, error) {
	wkt = strings.TrimSpace(strings.TrimPrefix(wkt, "\ufeff"))
	if wkt == "" {
		return 0, failure.Newf(failure.CrsFormatError, "resolve_prj", "", "empty definition")
	}
	if m := wktAuthority.FindAllStringSubmatch(wkt, -1); len(m) > 0 {
		if code, err := strconv.Atoi(m[len(m)-1][1]); err == nil && code > 0 {
			return code, nil
		}
	}
	m := wktName.FindStringSubmatch(wkt)
	if m == nil {
		return 0, failure.Newf(failure.CrsFormatError, "resolve_prj", "", "not a WKT coordinate system")
	}
	name := m[1]
	if code, ok := esriNames[name]; ok {
		return code, nil
	}
	if z := esriZone.FindStringSubmatch(name); z != nil {
		zone, _ := strconv.Atoi(z[2])
		if zone >= 1 && zone <= 19 {
			if z[1] == "2000" {
				return 2443 + zone - 1, nil
			}
			return 6669 + zone - 1, nil
		}
	}
	return 0, failure.Newf(failure.CrsFormatError, "resolve_prj", name, "no EPSG code for coordinate system")
}
