package convert

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"farmland/internal/failure"
	"farmland/internal/feature"
	"farmland/internal/parser"
	"farmland/internal/parser/geojson"
	"farmland/internal/schema"
	"farmland/internal/store"
	"farmland/internal/store/sqlite"
)

const goodFeature = `{"type":"Feature",
 "geometry":{"type":"Polygon","coordinates":[[[140.7,40.8],[140.8,40.8],[140.8,40.9],[140.7,40.8]]]},
 "properties":{"polygon_uuid":"%s","land_type":100,"local_government_cd":"02201","history":"[]","point_lat":40.85}}`

func regionDoc(good int, extra ...string) string {
	entries := make([]string, 0, good+len(extra))
	for i := 0; i < good; i++ {
		entries = append(entries, fmt.Sprintf(goodFeature, fmt.Sprintf("uuid-%d", i)))
	}
	entries = append(entries, extra...)
	return `{"type":"FeatureCollection","features":[` + strings.Join(entries, ",") + `]}`
}

func newJob(t *testing.T, region, doc string) Job {
	t.Helper()
	in := filepath.Join(t.TempDir(), region+".json")
	require.NoError(t, os.WriteFile(in, []byte(doc), 0o644))
	out := t.TempDir()
	return Job{
		Region:     region,
		Input:      in,
		Extract:    geojson.ExtractFile,
		Folder:     out,
		StoreName:  region,
		StorePath:  sqlite.StorePath(out, region),
		Collection: schema.CollectionName(region),
	}
}

func openCollection(t *testing.T, job Job) (store.Store, store.Collection) {
	t.Helper()
	ctx := context.Background()
	st, err := sqlite.NewProvider().OpenStore(ctx, job.StorePath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	c, err := st.OpenCollection(ctx, job.Collection)
	require.NoError(t, err)
	return st, c
}

func TestConvertCreatesStoreAndInserts(t *testing.T) {
	ctx := context.Background()
	job := newJob(t, "02201", regionDoc(3, `{"type":"Feature","geometry":null,"properties":{}}`))
	c := New(sqlite.NewProvider(), zaptest.NewLogger(t))

	res := c.Convert(ctx, job)
	require.True(t, res.OK, res.Message)
	assert.NoError(t, res.Err)
	assert.True(t, res.StoreCreated)
	assert.True(t, res.Produced)
	assert.Equal(t, 3, res.Records)
	assert.EqualValues(t, 3, res.Inserted)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, "converted 3 records", res.Message)

	_, coll := openCollection(t, job)
	assert.Equal(t, "c_02201", coll.Name())
	assert.Equal(t, feature.CategoryPolygon, coll.Category())
	assert.Equal(t, feature.DefaultSRID, coll.SRID())

	n, err := coll.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	fields, err := coll.ListFields(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"polygon_uuid", "land_type", "local_government_cd", "history", "point_lat"}, store.FieldNames(fields))
	cd, _ := store.FindField(fields, "local_government_cd")
	assert.Equal(t, feature.FieldText, cd.Type)
	hist, _ := store.FindField(fields, "history")
	assert.Equal(t, 10000, hist.Length)
	lt, _ := store.FindField(fields, "land_type")
	assert.Equal(t, feature.FieldInteger, lt.Type)
}

func TestConvertNoDataSentinel(t *testing.T) {
	job := newJob(t, "02202", `{"status": 404, "message": "no data"}`)
	res := New(sqlite.NewProvider(), zaptest.NewLogger(t)).Convert(context.Background(), job)

	require.True(t, res.OK)
	assert.Equal(t, "nothing to convert", res.Message)
	assert.True(t, res.Produced)
	assert.Zero(t, res.Inserted)
}

func TestConvertBadCRSFailsRegion(t *testing.T) {
	doc := regionDoc(0, `{"type":"Feature",
 "geometry":{"type":"Point","coordinates":[1,2],"crs":{"properties":{"name":"EPSG:abc"}}},
 "properties":{"a":"b"}}`)
	job := newJob(t, "02203", doc)
	res := New(sqlite.NewProvider(), zaptest.NewLogger(t)).Convert(context.Background(), job)

	assert.False(t, res.OK)
	assert.True(t, failure.Is(res.Err, failure.CrsFormatError), "err = %v", res.Err)
	assert.Contains(t, res.Message, "conversion failed")
	assert.True(t, res.Produced)
}

func TestConvertUndecodablePayload(t *testing.T) {
	job := newJob(t, "02204", "")
	require.NoError(t, os.WriteFile(job.Input, []byte{0x80, 0xFF, 0x80, 0xFF}, 0o644))
	res := New(sqlite.NewProvider(), zaptest.NewLogger(t)).Convert(context.Background(), job)

	assert.False(t, res.OK)
	assert.Equal(t, failure.DecodeError, failure.KindOf(res.Err))
}

func TestConvertUnparseableGeometryBecomesNull(t *testing.T) {
	doc := regionDoc(1, `{"type":"Feature","geometry":{"type":"Polygon","coordinates":"bad"},"properties":{"polygon_uuid":"x"}}`)
	job := newJob(t, "02205", doc)
	res := New(sqlite.NewProvider(), zaptest.NewLogger(t)).Convert(context.Background(), job)

	require.True(t, res.OK, res.Message)
	assert.EqualValues(t, 2, res.Inserted)
	assert.Equal(t, 1, res.NullShape)
}

func TestConvertCountsCoercions(t *testing.T) {
	doc := regionDoc(1, `{"type":"Feature",
 "geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]},
 "properties":{"polygon_uuid":"y","land_type":"not a number"}}`)
	job := newJob(t, "02206", doc)
	res := New(sqlite.NewProvider(), zaptest.NewLogger(t)).Convert(context.Background(), job)

	require.True(t, res.OK, res.Message)
	assert.Equal(t, 1, res.Coerced.CoercedNull)
}

func TestConvertReusesExistingStore(t *testing.T) {
	ctx := context.Background()
	job := newJob(t, "02207", regionDoc(2))
	c := New(sqlite.NewProvider(), zaptest.NewLogger(t))

	first := c.Convert(ctx, job)
	require.True(t, first.OK, first.Message)
	second := c.Convert(ctx, job)
	require.True(t, second.OK, second.Message)
	assert.False(t, second.StoreCreated)

	_, coll := openCollection(t, job)
	n, err := coll.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)
}

type failingProvider struct {
	store.Provider
}

func (failingProvider) StoreExists(context.Context, string) (bool, error) { return false, nil }

func (failingProvider) CreateStore(context.Context, string, string) (store.Store, error) {
	return nil, errors.New("disk full")
}

func TestConvertStoreFailureIsContained(t *testing.T) {
	extracted := false
	job := Job{
		Region:    "02208",
		StorePath: "/nowhere/02208.fsdb",
		Extract: func(string) (parser.Extraction, error) {
			extracted = true
			return parser.Extraction{}, nil
		},
	}
	res := New(failingProvider{}, zaptest.NewLogger(t)).Convert(context.Background(), job)

	assert.False(t, res.OK)
	assert.False(t, res.Produced)
	assert.False(t, extracted)
	assert.Equal(t, failure.StoreOperationError, failure.KindOf(res.Err))
	assert.Contains(t, res.Err.Error(), "disk full")
}

func TestConvertExplicitPlan(t *testing.T) {
	ctx := context.Background()
	rec := feature.NewRecord(
		[]byte(`{"type":"Point","coordinates":[140.7,40.8]}`), "Point",
		[]feature.Attribute{{Key: "CODE", Value: feature.Text("7")}},
	)
	plan := schema.ExplicitPlan([]feature.FieldSpec{{Key: "CODE", Type: feature.FieldText, Length: 5}})
	out := t.TempDir()
	job := Job{
		Region: "pts", Folder: out, StoreName: "pts",
		StorePath:  sqlite.StorePath(out, "pts"),
		Collection: "c_pts",
		Extract: func(string) (parser.Extraction, error) {
			return parser.Extraction{Records: []feature.Record{rec}, Plan: &plan}, nil
		},
	}
	res := New(sqlite.NewProvider(), zaptest.NewLogger(t)).Convert(ctx, job)
	require.True(t, res.OK, res.Message)

	_, coll := openCollection(t, job)
	assert.Equal(t, feature.CategoryPoint, coll.Category())
	fields, err := coll.ListFields(ctx)
	require.NoError(t, err)
	require.Len(t, fields, 1)
	assert.Equal(t, feature.FieldText, fields[0].Type)
}

func TestConvertPrefersDeclaredSRID(t *testing.T) {
	ctx := context.Background()
	rec := feature.NewRecord(
		[]byte(`{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}`), "Polygon",
		[]feature.Attribute{{Key: "NAME", Value: feature.Text("田")}},
	)
	out := t.TempDir()
	job := Job{
		Region: "02201青森市2019", Folder: out, StoreName: "r",
		StorePath:  sqlite.StorePath(out, "r"),
		Collection: "c_r",
		Extract: func(string) (parser.Extraction, error) {
			return parser.Extraction{Records: []feature.Record{rec}, SRID: 6668}, nil
		},
	}
	conv := New(sqlite.NewProvider(), zaptest.NewLogger(t))
	conv.DefaultSRID = 4326
	res := conv.Convert(ctx, job)
	require.True(t, res.OK, res.Message)

	_, coll := openCollection(t, job)
	assert.Equal(t, 6668, coll.SRID())
}
