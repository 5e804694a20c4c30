package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"farmland/internal/failure"
	"farmland/internal/feature"
)

func geometryJSON(t *testing.T, m map[string]any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(m)
	require.NoError(t, err)
	return b
}

func TestCategoryFor(t *testing.T) {
	tests := []struct {
		tag  string
		want feature.GeometryCategory
		warn bool
	}{
		{"Point", feature.CategoryPoint, false},
		{"MultiPoint", feature.CategoryPoint, false},
		{"LineString", feature.CategoryPolyline, false},
		{"MultiLineString", feature.CategoryPolyline, false},
		{"Polygon", feature.CategoryPolygon, false},
		{"MultiPolygon", feature.CategoryPolygon, false},
		{"FeatureCollection", feature.CategoryPoint, true},
		{"GeometryCollection", "GEOMETRYCOLLECTION", false},
		{"Multipatch", "MULTIPATCH", false},
	}
	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			got, warn := CategoryFor(tt.tag)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.warn, warn)
		})
	}
}

func TestResolveSRID(t *testing.T) {
	withName := func(name any) json.RawMessage {
		return geometryJSON(t, map[string]any{
			"type": "Polygon",
			"crs":  map[string]any{"type": "name", "properties": map[string]any{"name": name}},
		})
	}

	got, err := ResolveSRID(withName("EPSG:3857"), 4326)
	require.NoError(t, err)
	assert.Equal(t, 3857, got)

	got, err = ResolveSRID(withName("urn:ogc:def:crs:EPSG::6668"), 4326)
	require.NoError(t, err)
	assert.Equal(t, 6668, got)

	got, err = ResolveSRID(geometryJSON(t, map[string]any{"type": "Point"}), 4326)
	require.NoError(t, err)
	assert.Equal(t, 4326, got, "no crs member keeps the default")

	got, err = ResolveSRID(geometryJSON(t, map[string]any{"type": "Point", "crs": map[string]any{"type": "name"}}), 6668)
	require.NoError(t, err)
	assert.Equal(t, 6668, got, "crs without properties keeps the default")

	got, err = ResolveSRID(withName(""), 4326)
	require.NoError(t, err)
	assert.Equal(t, 4326, got)

	got, err = ResolveSRID(withName("EPSG:0"), 6668)
	require.NoError(t, err)
	assert.Equal(t, 6668, got, "code 0 means no crs")

	for _, bad := range []any{"EPSG:abc", "EPSG", "EPSG:-1", 3857} {
		_, err := ResolveSRID(withName(bad), 4326)
		require.Error(t, err, "%v", bad)
		assert.True(t, failure.Is(err, failure.CrsFormatError), "%v", bad)
	}
}

func TestSRIDFromWKT(t *testing.T) {
	tests := []struct {
		name string
		wkt  string
		want int
	}{
		{"authority", `GEOGCS["JGD2011",DATUM["Japanese_Geodetic_Datum_2011",SPHEROID["GRS 1980",6378137,298.257222101,AUTHORITY["EPSG","7019"]],AUTHORITY["EPSG","1128"]],PRIMEM["Greenwich",0],UNIT["degree",0.0174532925199433],AUTHORITY["EPSG","6668"]]`, 6668},
		{"wkt2 id", `GEOGCRS["WGS 84",DATUM["World Geodetic System 1984",ELLIPSOID["WGS 84",6378137,298.257223563]],CS[ellipsoidal,2],ID["EPSG",4326]]`, 4326},
		{"esri geographic", `GEOGCS["GCS_JGD_2011",DATUM["D_JGD_2011",SPHEROID["GRS_1980",6378137.0,298.257222101]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]]`, 6668},
		{"esri zone 2011", `PROJCS["JGD_2011_Japan_Zone_10",GEOGCS["GCS_JGD_2011",DATUM["D_JGD_2011",SPHEROID["GRS_1980",6378137.0,298.257222101]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]],PROJECTION["Transverse_Mercator"],UNIT["Meter",1.0]]`, 6678},
		{"esri zone 2000", `PROJCS["JGD_2000_Japan_Zone_1",GEOGCS["GCS_JGD_2000"]]`, 2443},
		{"bom", "\ufeff" + `GEOGCS["GCS_WGS_1984"]`, 4326},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SRIDFromWKT(tt.wkt)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, bad := range []string{"", "not wkt", `PROJCS["Local_Grid"]`, `PROJCS["JGD_2011_Japan_Zone_20"]`} {
		_, err := SRIDFromWKT(bad)
		require.Error(t, err, bad)
		assert.True(t, failure.Is(err, failure.CrsFormatError), bad)
	}
}

func TestInferFieldPlan(t *testing.T) {
	rec := feature.NewRecord(nil, "Polygon", []feature.Attribute{
		{Key: "geometry", Value: feature.Text("ignored")},
		{Key: "type", Value: feature.Text("Feature")},
		{Key: "count", Value: feature.Text("123")},
		{Key: "ratio", Value: feature.Text("1.5")},
		{Key: "label", Value: feature.Text("abc")},
		{Key: "local_government_cd", Value: feature.Text("02201")},
		{Key: "history", Value: feature.Text("x")},
		{Key: "land_type", Value: feature.Integer(100)},
		{Key: "point_lng", Value: feature.Real(140.74)},
		{Key: "empty", Value: feature.Null()},
		{Key: "2021 id", Value: feature.Text("old")},
	})

	plan := InferFieldPlan(rec, FarmlandRules)
	require.NoError(t, plan.Validate())

	want := []feature.FieldSpec{
		{Key: "count", Name: "count", Type: feature.FieldInteger},
		{Key: "ratio", Name: "ratio", Type: feature.FieldReal},
		{Key: "label", Name: "label", Type: feature.FieldText, Length: 255},
		{Key: "local_government_cd", Name: "local_government_cd", Type: feature.FieldText, Length: 255},
		{Key: "history", Name: "history", Type: feature.FieldText, Length: 10000},
		{Key: "land_type", Name: "land_type", Type: feature.FieldInteger},
		{Key: "point_lng", Name: "point_lng", Type: feature.FieldReal},
		{Key: "empty", Name: "empty", Type: feature.FieldText, Length: 255},
		{Key: "2021 id", Name: "f_2021_id", Type: feature.FieldText, Length: 255},
	}
	assert.Equal(t, want, plan.Fields)
}

func TestInferFieldPlanLongTextIgnoresValueShape(t *testing.T) {
	rec := feature.NewRecord(nil, "Polygon", []feature.Attribute{
		{Key: "history", Value: feature.Integer(2024)},
	})
	plan := InferFieldPlan(rec, FarmlandRules)
	require.Len(t, plan.Fields, 1)
	assert.Equal(t, feature.FieldText, plan.Fields[0].Type)
	assert.Equal(t, 10000, plan.Fields[0].Length)
}

func TestInferFieldPlanDeduplicatesNames(t *testing.T) {
	rec := feature.NewRecord(nil, "Point", []feature.Attribute{
		{Key: "a-b", Value: feature.Text("x")},
		{Key: "a b", Value: feature.Text("y")},
		{Key: "shape", Value: feature.Text("z")},
	})
	plan := InferFieldPlan(rec, Rules{})
	assert.Equal(t, []string{"a_b", "a_b_1", "shape_1"}, plan.Names())
}

func TestInfer(t *testing.T) {
	geom := geometryJSON(t, map[string]any{
		"type": "MultiPolygon",
		"crs":  map[string]any{"properties": map[string]any{"name": "EPSG:6668"}},
	})
	rec := feature.NewRecord(geom, "MultiPolygon", []feature.Attribute{
		{Key: "polygon_uuid", Value: feature.Text("u-1")},
	})

	inf, err := Infer(rec, feature.DefaultSRID, FarmlandRules)
	require.NoError(t, err)
	assert.Equal(t, feature.CategoryPolygon, inf.Category)
	assert.False(t, inf.CategoryWarning)
	assert.Equal(t, 6668, inf.SRID)
	assert.Equal(t, []string{"polygon_uuid"}, inf.Plan.Names())

	bad := feature.NewRecord(geometryJSON(t, map[string]any{
		"type": "Point",
		"crs":  map[string]any{"properties": map[string]any{"name": "EPSG:x"}},
	}), "Point", nil)
	_, err = Infer(bad, feature.DefaultSRID, FarmlandRules)
	assert.True(t, failure.Is(err, failure.CrsFormatError))
}

func TestValidateFieldName(t *testing.T) {
	tests := map[string]string{
		"polygon_uuid":  "polygon_uuid",
		"point lat":     "point_lat",
		"2021":          "f_2021",
		"":              "field",
		"FID":           "FID_1",
		"耕地の種類":         "耕地の種類",
		"a.b-c":         "a_b_c",
	}
	for in, want := range tests {
		assert.Equal(t, want, ValidateFieldName(in), in)
	}
}

func TestCollectionName(t *testing.T) {
	assert.Equal(t, "c_2024_022012", CollectionName("2024_022012"))
	assert.Equal(t, "c_02201青森市2019_5", CollectionName("02201青森市2019_5"))
	assert.Equal(t, "c_a_b", CollectionName("a-b"))
}
