package game

import (
	"math"

	"github.com/lightcycle/server/internal/physics"
)

// Trail is the ordered list of turn points a bike has left behind. The
// segment from the last point to the bike itself is the "head" and is not
// stored. Total stored length never exceeds maxLength; the oldest part of
// the trail is cut first.
type Trail struct {
	OwnerID   string
	points    []physics.Point
	maxLength float64 // <= 0 disables the cap
}

// NewTrail creates an empty trail for the given owner key.
func NewTrail(ownerID string, maxLength float64) *Trail {
	return &Trail{
		OwnerID:   ownerID,
		points:    make([]physics.Point, 0, 16),
		maxLength: maxLength,
	}
}

// Append adds a turn point. Points closer than EPS to the last one are
// dropped.
func (t *Trail) Append(p physics.Point) {
	if n := len(t.points); n > 0 && p.Sub(t.points[n-1]).LenSquared() < physics.EPS*physics.EPS {
		return
	}
	t.points = append(t.points, p)
	t.capLength()
}

// Replace swaps the stored points for a client-reported history.
func (t *Trail) Replace(points []physics.Point) {
	t.points = t.points[:0]
	for _, p := range points {
		t.Append(p)
	}
}

// Points returns a copy of the stored points.
func (t *Trail) Points() []physics.Point {
	out := make([]physics.Point, len(t.points))
	copy(out, t.points)
	return out
}

// Last returns the newest point.
func (t *Trail) Last() (physics.Point, bool) {
	if len(t.points) == 0 {
		return physics.Point{}, false
	}
	return t.points[len(t.points)-1], true
}

// Len is the number of stored points.
func (t *Trail) Len() int {
	return len(t.points)
}

// Length is the summed length of the stored segments.
func (t *Trail) Length() float64 {
	var total float64
	for i := 1; i < len(t.points); i++ {
		total += math.Sqrt(t.points[i].Sub(t.points[i-1]).LenSquared())
	}
	return total
}

// Segments returns the stored segments, oldest first.
func (t *Trail) Segments() []physics.Segment {
	if len(t.points) < 2 {
		return nil
	}
	segs := make([]physics.Segment, 0, len(t.points)-1)
	for i := 1; i < len(t.points); i++ {
		segs = append(segs, physics.SegmentFromPositions(t.points[i-1], t.points[i]))
	}
	return segs
}

// SegmentsWithHead returns the stored segments plus the head segment from
// the newest point to head. This is the wall other bikes can hit.
func (t *Trail) SegmentsWithHead(head physics.Point) []physics.Segment {
	segs := t.Segments()
	if last, ok := t.Last(); ok && head.Sub(last).LenSquared() >= physics.EPS*physics.EPS {
		segs = append(segs, physics.SegmentFromPositions(last, head))
	}
	return segs
}

// SegmentsForSelfCheck returns the segments the owner itself can collide
// with. The head and the newest stored segment touch the bike and are left
// out.
func (t *Trail) SegmentsForSelfCheck() []physics.Segment {
	segs := t.Segments()
	if len(segs) == 0 {
		return nil
	}
	return segs[:len(segs)-1]
}

// Clear drops every point.
func (t *Trail) Clear() {
	t.points = t.points[:0]
}

func (t *Trail) capLength() {
	if t.maxLength <= 0 {
		return
	}

	excess := t.Length() - t.maxLength
	for excess > 0 && len(t.points) >= 2 {
		first, second := t.points[0], t.points[1]
		segLen := math.Sqrt(second.Sub(first).LenSquared())

		if segLen <= excess {
			t.points = t.points[1:]
			excess -= segLen
			continue
		}

		// Move the oldest point along its segment so the total fits exactly.
		f := excess / segLen
		t.points[0] = physics.Point{
			X: first.X + (second.X-first.X)*f,
			Z: first.Z + (second.Z-first.Z)*f,
		}
		excess = 0
	}
}
