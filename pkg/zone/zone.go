// Package zone defines the counting zones drawn over a camera view.
//
// A zone is either a closed polygon, counted by occupancy, or a two-point
// line, counted by crossings. The variant is fixed when the zone is built
// and callers switch on it rather than on the number of points.
package zone

import (
	"errors"
	"fmt"

	"github.com/etesami/people-counting-system/pkg/geometry"
)

var (
	ErrTooFewPoints  = errors.New("zone needs at least 2 points")
	ErrNotArray      = errors.New("zone points must be an array")
	ErrDuplicateName = errors.New("duplicate zone name")
)

// Kind names the counting semantic of a zone.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindLine
	KindPolygon
)

func (k Kind) String() string {
	switch k {
	case KindLine:
		return "line"
	case KindPolygon:
		return "polygon"
	default:
		return "invalid"
	}
}

// Shape is implemented by Polygon and Line only.
type Shape interface {
	Points() []geometry.Point
	isShape()
}

// Polygon is an occupancy zone with three or more vertices.
type Polygon struct {
	Vertices []geometry.Point
}

func (p Polygon) Points() []geometry.Point {
	return append([]geometry.Point(nil), p.Vertices...)
}

func (Polygon) isShape() {}

// Line is a directed crossing barrier from A to B.
type Line struct {
	A, B geometry.Point
}

func (l Line) Points() []geometry.Point {
	return []geometry.Point{l.A, l.B}
}

func (Line) isShape() {}

// Zone is a named counting region.
type Zone struct {
	ID    int
	Name  string
	Shape Shape
}

// New classifies points into a Line (2 points) or a Polygon (3 or more).
// The point slice is copied.
func New(id int, name string, points []geometry.Point) (Zone, error) {
	z := Zone{ID: id, Name: name}
	switch {
	case len(points) == 2:
		z.Shape = Line{A: points[0], B: points[1]}
	case len(points) >= 3:
		z.Shape = Polygon{Vertices: append([]geometry.Point(nil), points...)}
	default:
		return Zone{}, fmt.Errorf("zone %d (%q) has %d points: %w", id, name, len(points), ErrTooFewPoints)
	}
	return z, nil
}

// Kind reports the counting semantic, derived from the shape on every call.
func (z Zone) Kind() Kind {
	switch z.Shape.(type) {
	case Line:
		return KindLine
	case Polygon:
		return KindPolygon
	default:
		return KindInvalid
	}
}

// Points returns a copy of the zone's canonical points.
func (z Zone) Points() []geometry.Point {
	if z.Shape == nil {
		return nil
	}
	return z.Shape.Points()
}
