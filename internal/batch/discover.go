package batch

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"farmland/internal/convert"
	"farmland/internal/parser"
	"farmland/internal/parser/geojson"
	"farmland/internal/parser/shapefile"
	"farmland/internal/schema"
)

// Input kinds accepted by Discover.
const (
	KindAuto      = "auto"
	KindGeoJSON   = "geojson"
	KindShapefile = "shapefile"
)

// Layout tells Discover where inputs are and where stores go.
type Layout struct {
	InputRoot  string
	OutputRoot string
	// Kind is auto, geojson or shapefile.
	Kind string
	// Pattern matches region document file names.
	Pattern string
	// StoreExt is the store provider's file extension.
	StoreExt string
}

// Discover builds one job per region under l.InputRoot, sorted by region
// name. Document files matching l.Pattern are regions (geojson, auto);
// folders are regions (shapefile; in auto mode only folders holding a .shp).
func Discover(l Layout) ([]convert.Job, error) {
	entries, err := os.ReadDir(l.InputRoot)
	if err != nil {
		return nil, fmt.Errorf("batch: read input root: %w", err)
	}
	kind := l.Kind
	if kind == "" {
		kind = KindAuto
	}

	var jobs []convert.Job
	seen := map[string]string{}
	for _, e := range entries {
		path := filepath.Join(l.InputRoot, e.Name())
		var (
			region  string
			extract parser.Func
		)
		switch {
		case e.IsDir() && kind != KindGeoJSON:
			if kind == KindAuto {
				files, err := shapefile.Files(path)
				if err != nil || len(files) == 0 {
					continue
				}
			}
			region = e.Name()
			extract = shapefile.ExtractFolder
		case !e.IsDir() && kind != KindShapefile:
			ok, err := filepath.Match(l.Pattern, e.Name())
			if err != nil {
				return nil, fmt.Errorf("batch: input pattern %q: %w", l.Pattern, err)
			}
			if !ok {
				continue
			}
			region = strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
			extract = geojson.ExtractFile
		default:
			continue
		}

		storeName := region
		if prev, dup := seen[strings.ToLower(storeName)]; dup {
			return nil, fmt.Errorf("batch: inputs %s and %s map to the same store %s%s", prev, path, storeName, l.StoreExt)
		}
		seen[strings.ToLower(storeName)] = path

		jobs = append(jobs, convert.Job{
			Region:     region,
			Input:      path,
			Extract:    extract,
			Folder:     l.OutputRoot,
			StoreName:  storeName,
			StorePath:  filepath.Join(l.OutputRoot, storeName+l.StoreExt),
			Collection: schema.CollectionName(region),
		})
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Region < jobs[j].Region })
	return jobs, nil
}
