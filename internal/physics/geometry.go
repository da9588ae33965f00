package physics

import "math"

// EPS is the tolerance used by every floating-point comparison in the package.
const EPS = 0.01

// Point is a position on the XZ ground plane.
type Point struct {
	X float64
	Z float64
}

// Sub returns p - q.
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Z: p.Z - q.Z}
}

// LenSquared returns the squared length of p treated as a vector.
func (p Point) LenSquared() float64 {
	return p.X*p.X + p.Z*p.Z
}

// Segment is a slice of trail between two points. Start may equal End.
type Segment struct {
	Start Point
	End   Point
}

// NewSegment creates a segment from raw coordinates.
func NewSegment(startX, startZ, endX, endZ float64) Segment {
	return Segment{
		Start: Point{X: startX, Z: startZ},
		End:   Point{X: endX, Z: endZ},
	}
}

// SegmentFromPositions builds the movement segment between two ticks.
func SegmentFromPositions(prev, curr Point) Segment {
	return Segment{Start: prev, End: curr}
}

// Length returns the segment length.
func (s Segment) Length() float64 {
	return math.Sqrt(s.End.Sub(s.Start).LenSquared())
}

// IsDegenerate reports whether the segment collapses to a point.
func (s Segment) IsDegenerate() bool {
	return s.End.Sub(s.Start).LenSquared() < EPS*EPS
}

// DistanceToSegmentSquared returns the squared distance from p to the closest
// point of s. Degenerate segments are treated as the single point s.Start.
func DistanceToSegmentSquared(p Point, s Segment) float64 {
	dx := s.End.X - s.Start.X
	dz := s.End.Z - s.Start.Z

	lenSq := dx*dx + dz*dz
	if lenSq < EPS*EPS {
		return p.Sub(s.Start).LenSquared()
	}

	// Projection parameter, clamped to the segment
	t := ((p.X-s.Start.X)*dx + (p.Z-s.Start.Z)*dz) / lenSq
	t = math.Max(0, math.Min(1, t))

	closest := Point{X: s.Start.X + t*dx, Z: s.Start.Z + t*dz}
	return p.Sub(closest).LenSquared()
}

// DistanceToSegment returns the distance from p to the closest point of s.
func DistanceToSegment(p Point, s Segment) float64 {
	return math.Sqrt(DistanceToSegmentSquared(p, s))
}

// SegmentsIntersect reports whether a and b cross, touch, or overlap.
//
// Proper crossings need both endpoint pairs strictly on opposite sides of the
// other segment (outside the EPS dead-zone). An endpoint within EPS of the
// other segment's line counts only if it also falls inside that segment's
// EPS-expanded bounding box, which covers shared endpoints and collinear overlap.
func SegmentsIntersect(a, b Segment) bool {
	d1 := direction(b, a.Start)
	d2 := direction(b, a.End)
	d3 := direction(a, b.Start)
	d4 := direction(a, b.End)

	if straddles(d1, d2) && straddles(d3, d4) {
		return true
	}

	switch {
	case math.Abs(d1) < EPS && onSegment(b, a.Start):
		return true
	case math.Abs(d2) < EPS && onSegment(b, a.End):
		return true
	case math.Abs(d3) < EPS && onSegment(a, b.Start):
		return true
	case math.Abs(d4) < EPS && onSegment(a, b.End):
		return true
	}

	return false
}

func straddles(da, db float64) bool {
	return (da > EPS && db < -EPS) || (da < -EPS && db > EPS)
}

// direction is the cross product of (p - s.Start) and (s.End - s.Start).
// Positive and negative values are opposite sides; zero is collinear.
func direction(s Segment, p Point) float64 {
	dx1 := p.X - s.Start.X
	dz1 := p.Z - s.Start.Z
	dx2 := s.End.X - s.Start.X
	dz2 := s.End.Z - s.Start.Z

	return dx1*dz2 - dz1*dx2
}

// onSegment assumes p is collinear with s and checks the bounding box.
func onSegment(s Segment, p Point) bool {
	minX := math.Min(s.Start.X, s.End.X) - EPS
	maxX := math.Max(s.Start.X, s.End.X) + EPS
	minZ := math.Min(s.Start.Z, s.End.Z) - EPS
	maxZ := math.Max(s.Start.Z, s.End.Z) + EPS

	return p.X >= minX && p.X <= maxX && p.Z >= minZ && p.Z <= maxZ
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
