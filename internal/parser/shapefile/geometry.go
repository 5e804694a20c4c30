package shapefile

import (
	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
)

// toOrb converts a shapefile shape. It returns nil for null shapes and for
// shape types with no planar equivalent (MultiPatch).
func toOrb(s shp.Shape) orb.Geometry {
	switch t := s.(type) {
	case *shp.Point:
		return orb.Point{t.X, t.Y}
	case *shp.PointZ:
		return orb.Point{t.X, t.Y}
	case *shp.PointM:
		return orb.Point{t.X, t.Y}
	case *shp.MultiPoint:
		return multiPoint(t.Points)
	case *shp.MultiPointZ:
		return multiPoint(t.Points)
	case *shp.MultiPointM:
		return multiPoint(t.Points)
	case *shp.PolyLine:
		return lines(t.Parts, t.Points)
	case *shp.PolyLineZ:
		return lines(t.Parts, t.Points)
	case *shp.PolyLineM:
		return lines(t.Parts, t.Points)
	case *shp.Polygon:
		return polygons(t.Parts, t.Points)
	case *shp.PolygonZ:
		return polygons(t.Parts, t.Points)
	case *shp.PolygonM:
		return polygons(t.Parts, t.Points)
	}
	return nil
}

func multiPoint(pts []shp.Point) orb.Geometry {
	if len(pts) == 0 {
		return nil
	}
	mp := make(orb.MultiPoint, len(pts))
	for i, p := range pts {
		mp[i] = orb.Point{p.X, p.Y}
	}
	return mp
}

// splitParts cuts the flat point list at the part offsets.
func splitParts(parts []int32, pts []shp.Point) [][]orb.Point {
	out := make([][]orb.Point, 0, len(parts))
	for i, start := range parts {
		end := int32(len(pts))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if start < 0 || start > end || int(end) > len(pts) {
			continue
		}
		part := make([]orb.Point, 0, end-start)
		for _, p := range pts[start:end] {
			part = append(part, orb.Point{p.X, p.Y})
		}
		out = append(out, part)
	}
	return out
}

func lines(parts []int32, pts []shp.Point) orb.Geometry {
	split := splitParts(parts, pts)
	switch len(split) {
	case 0:
		return nil
	case 1:
		return orb.LineString(split[0])
	}
	mls := make(orb.MultiLineString, len(split))
	for i, p := range split {
		mls[i] = orb.LineString(p)
	}
	return mls
}

// polygons groups rings into polygons: a clockwise ring starts a new polygon
// (shapefile outer ring), any other ring is a hole of the polygon before it.
func polygons(parts []int32, pts []shp.Point) orb.Geometry {
	var mp orb.MultiPolygon
	for _, p := range splitParts(parts, pts) {
		ring := orb.Ring(p)
		if ring.Orientation() == orb.CW || len(mp) == 0 {
			mp = append(mp, orb.Polygon{ring})
			continue
		}
		last := len(mp) - 1
		mp[last] = append(mp[last], ring)
	}
	switch len(mp) {
	case 0:
		return nil
	case 1:
		return mp[0]
	}
	return mp
}
