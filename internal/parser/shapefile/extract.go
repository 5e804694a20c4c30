// Package shapefile extracts feature records from a region folder holding
// one or more ESRI shapefiles.
//
// The folder name carries the region identity ("02201青森市2019": code,
// municipality label, year). Every record gets two extra attributes, CITYCODE
// and CITYNAME, taken from it. The DBF header of the first shapefile becomes
// the region's field plan; later files in the same folder are read into the
// same record sequence. A .prj sidecar sets the region SRID; every file in
// the folder must agree on it.
package shapefile

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb/geojson"
	"github.com/zeebo/xxh3"

	"farmland/internal/failure"
	"farmland/internal/feature"
	"farmland/internal/parser"
	"farmland/internal/parser/encoding"
	"farmland/internal/schema"
)

// Names and lengths of the fields derived from the folder name.
const (
	CityCodeField  = "CITYCODE"
	CityNameField  = "CITYNAME"
	cityCodeLength = 5
	cityNameLength = 30
)

// Files lists the .shp files directly inside dir, sorted by name.
func Files(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".shp") {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

// ExtractFolder reads every shapefile in the region folder dir. A folder
// without shapefiles is reported as empty.
func ExtractFolder(dir string) (parser.Extraction, error) {
	var ex parser.Extraction
	region, err := ParseRegionName(filepath.Base(dir))
	if err != nil {
		return ex, failure.New(failure.DecodeError, "parse_region_name", dir, err)
	}
	files, err := Files(dir)
	if err != nil {
		return ex, failure.New(failure.DecodeError, "list", dir, err)
	}
	if len(files) == 0 {
		ex.Empty = true
		return ex, nil
	}

	city := []feature.Attribute{
		{Key: CityCodeField, Value: feature.Text(region.Code)},
		{Key: CityNameField, Value: feature.Text(region.Label)},
	}
	hash := xxh3.New()
	for i, path := range files {
		f, err := readFile(path, hash)
		if err != nil {
			return ex, err
		}
		if i == 0 {
			plan := planFor(f.fields)
			ex.Plan = &plan
			ex.Encoding = f.encoding
			ex.SRID = f.srid
		} else if f.srid != ex.SRID {
			return ex, failure.Newf(failure.CrsFormatError, "resolve_prj", path,
				"declares SRID %d, %s declares %d", f.srid, filepath.Base(files[0]), ex.SRID)
		}
		for _, rec := range f.records {
			ex.Records = append(ex.Records, rec.WithAttributes(city...))
		}
		ex.Skipped += f.skipped
	}
	ex.Checksum = hash.Sum64()
	return ex, nil
}

// planFor maps DBF field descriptors onto a field plan and appends the two
// folder-derived fields.
func planFor(fields []shp.Field) feature.FieldPlan {
	specs := make([]feature.FieldSpec, 0, len(fields)+2)
	for _, f := range fields {
		spec := feature.FieldSpec{Key: f.String()}
		switch f.Fieldtype {
		case 'N':
			if f.Precision == 0 {
				spec.Type = feature.FieldInteger
			} else {
				spec.Type = feature.FieldReal
			}
		case 'F':
			spec.Type = feature.FieldReal
		default:
			spec.Type = feature.FieldText
			spec.Length = int(f.Size)
			if spec.Length == 0 {
				spec.Length = feature.DefaultTextLength
			}
		}
		specs = append(specs, spec)
	}
	specs = append(specs,
		feature.FieldSpec{Key: CityCodeField, Type: feature.FieldText, Length: cityCodeLength},
		feature.FieldSpec{Key: CityNameField, Type: feature.FieldText, Length: cityNameLength},
	)
	return schema.ExplicitPlan(specs)
}

type file struct {
	fields   []shp.Field
	records  []feature.Record
	skipped  int
	encoding string
	srid     int
}

type rawShape struct {
	geometry []byte
	gtype    string
	attrs    []string
}

func readFile(path string, hash io.Writer) (file, error) {
	var out file
	if err := hashFiles(hash, path, sibling(path, ".dbf")); err != nil {
		return out, failure.New(failure.DecodeError, "read", path, err)
	}

	srid, err := readPrj(path)
	if err != nil {
		return out, err
	}
	out.srid = srid

	r, err := shp.Open(path)
	if err != nil {
		return out, failure.New(failure.DecodeError, "open", path, err)
	}
	defer r.Close()

	out.fields = r.Fields()
	var (
		shapes []rawShape
		text   []byte
	)
	for r.Next() {
		n, s := r.Shape()
		g := toOrb(s)
		if g == nil {
			out.skipped++
			continue
		}
		b, err := geojson.NewGeometry(g).MarshalJSON()
		if err != nil {
			out.skipped++
			continue
		}
		rs := rawShape{geometry: b, gtype: g.GeoJSONType(), attrs: make([]string, len(out.fields))}
		for i := range out.fields {
			v := strings.TrimRight(r.ReadAttribute(n, i), " \x00")
			rs.attrs[i] = v
			text = append(text, v...)
			text = append(text, '\n')
		}
		shapes = append(shapes, rs)
	}
	if err := r.Err(); err != nil {
		return out, failure.New(failure.DecodeError, "read_shapes", path, err)
	}

	decode, enc, err := decoderFor(path, text)
	if err != nil {
		return out, failure.New(failure.DecodeError, "detect_encoding", path, err)
	}
	out.encoding = enc

	out.records = make([]feature.Record, 0, len(shapes))
	for _, rs := range shapes {
		attrs := make([]feature.Attribute, len(out.fields))
		for i, f := range out.fields {
			attrs[i] = feature.Attribute{Key: f.String(), Value: attributeValue(f, decode(rs.attrs[i]))}
		}
		out.records = append(out.records, feature.NewRecord(rs.geometry, rs.gtype, attrs))
	}
	return out, nil
}

// readPrj resolves the .prj sidecar of path. A missing sidecar yields 0.
func readPrj(path string) (int, error) {
	prj := sibling(path, ".prj")
	b, err := os.ReadFile(prj)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, failure.New(failure.DecodeError, "read", prj, err)
	}
	srid, err := schema.SRIDFromWKT(string(b))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", prj, err)
	}
	return srid, nil
}

// decoderFor picks the attribute text encoding: the .cpg sidecar when there
// is one, otherwise detection over all attribute bytes of the file at once.
func decoderFor(path string, sample []byte) (func(string) string, string, error) {
	label := ""
	if cpg, err := os.ReadFile(sibling(path, ".cpg")); err == nil {
		label = strings.TrimSpace(string(cpg))
	}
	var enc string
	if label != "" {
		if _, name, err := encoding.DecodeAs(nil, label); err == nil {
			enc = name
		}
	}
	if enc == "" {
		_, name, err := encoding.Decode(sample)
		if err != nil {
			return nil, "", err
		}
		enc = name
	}
	return func(s string) string {
		b, _, err := encoding.DecodeAs([]byte(s), enc)
		if err != nil {
			return s
		}
		return string(b)
	}, enc, nil
}

func attributeValue(f shp.Field, s string) feature.Value {
	s = strings.TrimSpace(s)
	if s == "" {
		return feature.Null()
	}
	switch f.Fieldtype {
	case 'N', 'F':
		if i, ok := feature.ParseInteger(s); ok && f.Precision == 0 {
			return feature.Integer(i)
		}
		if r, ok := feature.ParseReal(s); ok {
			return feature.Real(r)
		}
	}
	return feature.Text(s)
}

func sibling(path, ext string) string {
	base := strings.TrimSuffix(path, filepath.Ext(path))
	for _, cand := range []string{base + ext, base + strings.ToUpper(ext)} {
		if _, err := os.Stat(cand); err == nil {
			return cand
		}
	}
	return base + ext
}

func hashFiles(w io.Writer, paths ...string) error {
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return fmt.Errorf("hash %s: %w", p, err)
		}
		_, err = io.Copy(w, f)
		f.Close()
		if err != nil {
			return fmt.Errorf("hash %s: %w", p, err)
		}
	}
	return nil
}
