// Package geometry holds the pixel-space primitives shared by the tracker and
// the zone counters: boxes, IoU, centroids, and the two zone tests.
package geometry

import "math"

// horizontalEps keeps the ray-casting slope finite for horizontal edges.
const horizontalEps = 1e-9

// Point is an integer pixel coordinate. Zone definitions are stored this way.
type Point struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
}

// PointF is a real-valued pixel coordinate, used for centroids.
type PointF struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Box is an axis-aligned bounding box in frame pixels.
//
//	The (X1, Y1) position is at the top left corner,
//	The (X2, Y2) position is at the bottom right corner
type Box struct {
	X1, Y1, X2, Y2 int
}

// Valid reports whether the box has a positive area.
func (b Box) Valid() bool {
	return b.X1 < b.X2 && b.Y1 < b.Y2
}

// Area returns the box area, 0 for degenerate boxes.
func (b Box) Area() float64 {
	if !b.Valid() {
		return 0
	}
	return float64(b.X2-b.X1) * float64(b.Y2-b.Y1)
}

// Centroid returns ((x1+x2)/2, (y1+y2)/2).
func (b Box) Centroid() PointF {
	return PointF{
		X: float64(b.X1+b.X2) / 2.0,
		Y: float64(b.Y1+b.Y2) / 2.0,
	}
}

// IoU calculates the Intersection over Union of two bounding boxes.
// Returns 0.0 if either box is degenerate or if they do not overlap.
func IoU(bb1, bb2 Box) float64 {
	if !bb1.Valid() || !bb2.Valid() {
		return 0.0
	}

	xLeft := max(bb1.X1, bb2.X1)
	yTop := max(bb1.Y1, bb2.Y1)
	xRight := min(bb1.X2, bb2.X2)
	yBottom := min(bb1.Y2, bb2.Y2)

	if xRight <= xLeft || yBottom <= yTop {
		return 0.0
	}

	intersectionArea := float64(xRight-xLeft) * float64(yBottom-yTop)
	unionArea := bb1.Area() + bb2.Area() - intersectionArea
	if unionArea <= 0 {
		return 0.0
	}

	iou := intersectionArea / unionArea
	if iou >= 0.0 && iou <= 1.0 {
		return iou
	}
	return 0.0
}

// PointInPolygon is the ray-casting containment test. Polygons with fewer
// than three vertices contain nothing. Points on an edge get a stable but
// otherwise unspecified answer.
func PointInPolygon(p PointF, polygon []Point) bool {
	n := len(polygon)
	if n < 3 {
		return false
	}

	inside := false
	j := n - 1
	for i := 0; i < n; i++ {
		xi, yi := float64(polygon[i].X), float64(polygon[i].Y)
		xj, yj := float64(polygon[j].X), float64(polygon[j].Y)

		if (yi > p.Y) != (yj > p.Y) &&
			p.X < (xj-xi)*(p.Y-yi)/(yj-yi+horizontalEps)+xi {
			inside = !inside
		}
		j = i
	}
	return inside
}

// SignedSide returns the cross product of a->b and a->p. Its sign tells which
// side of the directed line a->b the point lies on; 0 means on the line.
func SignedSide(a, b Point, p PointF) float64 {
	return float64(b.X-a.X)*(p.Y-float64(a.Y)) - float64(b.Y-a.Y)*(p.X-float64(a.X))
}

// Normalize divides a point by the frame size. Unknown (zero or negative)
// dimensions are treated as 1 so the result is always finite.
func Normalize(p PointF, width, height int) PointF {
	fw := math.Max(1, float64(width))
	fh := math.Max(1, float64(height))
	return PointF{X: p.X / fw, Y: p.Y / fh}
}
