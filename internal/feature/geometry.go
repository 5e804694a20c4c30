package feature

// GeometryCategory is the geometry kind of an output feature collection.
type GeometryCategory string

const (
	CategoryPoint    GeometryCategory = "POINT"
	CategoryPolyline GeometryCategory = "POLYLINE"
	CategoryPolygon  GeometryCategory = "POLYGON"
)

// DefaultSRID is the spatial reference used when a region carries none.
const DefaultSRID = 4326
