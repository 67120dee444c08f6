// Package geo provides the geometric shapes the index engine queries
// against: points, circles with a great-circle radius, and lat/lon boxes.
package geo

import (
	"fmt"
	"math"
)

const earthRadiusKm = 6371.0

// Point is a WGS84 latitude/longitude coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// NewPoint returns a Point after range-checking the coordinates.
func NewPoint(lat, lon float64) (Point, error) {
	if lat < -90 || lat > 90 {
		return Point{}, fmt.Errorf("latitude %v out of range [-90,90]", lat)
	}
	if lon < -180 || lon > 180 {
		return Point{}, fmt.Errorf("longitude %v out of range [-180,180]", lon)
	}
	return Point{Lat: lat, Lon: lon}, nil
}

// MustPoint is NewPoint for statically known coordinates; it panics on
// invalid input.
func MustPoint(lat, lon float64) Point {
	p, err := NewPoint(lat, lon)
	if err != nil {
		panic(err)
	}
	return p
}

// DistanceKm returns the great-circle (haversine) distance between a and b
// in kilometres.
func DistanceKm(a, b Point) float64 {
	latA := a.Lat * math.Pi / 180
	latB := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(latA)*math.Cos(latB)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}

// ShapeType tags the concrete geometry of a Shape.
type ShapeType int

const (
	ShapePoint ShapeType = iota
	ShapeCircle
	ShapeBox
)

func (t ShapeType) String() string {
	switch t {
	case ShapeCircle:
		return "circle"
	case ShapeBox:
		return "box"
	default:
		return "point"
	}
}

// Shape is a queryable geometry: a point, a circle around a center with a
// radius in kilometres, or a box spanning [SW, NE].
type Shape struct {
	Type     ShapeType `json:"type"`
	Center   Point     `json:"center"`
	RadiusKm float64   `json:"radiusKm,omitempty"`
	SW       Point     `json:"sw,omitempty"`
	NE       Point     `json:"ne,omitempty"`
}

// PointShape wraps a single coordinate as a Shape.
func PointShape(lat, lon float64) Shape {
	return Shape{Type: ShapePoint, Center: MustPoint(lat, lon)}
}

// Circle returns a circular shape centered at (lat, lon) with the given
// radius in kilometres.
func Circle(lat, lon, radiusKm float64) Shape {
	return Shape{Type: ShapeCircle, Center: MustPoint(lat, lon), RadiusKm: radiusKm}
}

// Box returns a rectangular shape spanning the south-west to north-east
// corners.
func Box(swLat, swLon, neLat, neLon float64) Shape {
	return Shape{Type: ShapeBox, SW: MustPoint(swLat, swLon), NE: MustPoint(neLat, neLon)}
}

// Contains reports whether p lies within the shape. For point shapes it is
// coordinate equality.
func (s Shape) Contains(p Point) bool {
	switch s.Type {
	case ShapeCircle:
		return DistanceKm(s.Center, p) <= s.RadiusKm
	case ShapeBox:
		return p.Lat >= s.SW.Lat && p.Lat <= s.NE.Lat &&
			p.Lon >= s.SW.Lon && p.Lon <= s.NE.Lon
	default:
		return s.Center == p
	}
}

// Intersects reports whether the shape and the point share any area. For a
// point argument this coincides with Contains.
func (s Shape) Intersects(p Point) bool {
	return s.Contains(p)
}

func (s Shape) String() string {
	switch s.Type {
	case ShapeCircle:
		return fmt.Sprintf("circle(%v,%v,r=%vkm)", s.Center.Lat, s.Center.Lon, s.RadiusKm)
	case ShapeBox:
		return fmt.Sprintf("box[(%v,%v),(%v,%v)]", s.SW.Lat, s.SW.Lon, s.NE.Lat, s.NE.Lon)
	default:
		return fmt.Sprintf("point(%v,%v)", s.Center.Lat, s.Center.Lon)
	}
}
