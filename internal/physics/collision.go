package physics

import (
	"fmt"
	"math"
)

// PlayerState is the per-check view of a bike. Direction need not be unit length.
type PlayerState struct {
	ID    string
	X     float64
	Z     float64
	DirX  float64
	DirZ  float64
	Alive bool
}

// Position returns the bike position as a Point.
func (p PlayerState) Position() Point {
	return Point{X: p.X, Z: p.Z}
}

// CollisionKind identifies what a bike hit.
type CollisionKind int

const (
	SelfTrail CollisionKind = iota
	OtherTrail
	Wall
)

func (k CollisionKind) String() string {
	switch k {
	case SelfTrail:
		return "SelfTrail"
	case OtherTrail:
		return "OtherTrail"
	case Wall:
		return "Wall"
	default:
		return fmt.Sprintf("CollisionKind(%d)", int(k))
	}
}

// CollisionType is the collision variant. OwnerID is only meaningful for
// OtherTrail and may be empty when the owner is not yet attributed.
type CollisionType struct {
	Kind    CollisionKind
	OwnerID string
}

// SelfTrailCollision returns the SelfTrail variant.
func SelfTrailCollision() CollisionType { return CollisionType{Kind: SelfTrail} }

// OtherTrailCollision returns the OtherTrail variant for the given owner.
func OtherTrailCollision(ownerID string) CollisionType {
	return CollisionType{Kind: OtherTrail, OwnerID: ownerID}
}

// WallCollision returns the Wall variant.
func WallCollision() CollisionType { return CollisionType{Kind: Wall} }

func (t CollisionType) String() string {
	if t.Kind == OtherTrail {
		return fmt.Sprintf("OtherTrail(%q)", t.OwnerID)
	}
	return t.Kind.String()
}

// CollisionResult is the verdict of a collision check.
// Collided implies Type != nil. SegmentIndex is -1 when absent and Distance
// is math.MaxFloat64 when no distance was measured.
type CollisionResult struct {
	Collided     bool
	Type         *CollisionType
	Distance     float64
	SegmentIndex int
}

// NoCollision returns the empty result.
func NoCollision() CollisionResult {
	return CollisionResult{Distance: math.MaxFloat64, SegmentIndex: -1}
}

// HasSegment reports whether the result refers to a segment.
func (r CollisionResult) HasSegment() bool {
	return r.SegmentIndex >= 0
}

// SegmentDistance pairs a segment index with its distance to a point.
type SegmentDistance struct {
	Index    int
	Distance float64
}

// CheckTrailCollision scans segments in order and stops at the first one
// closer than deathRadius. Without a hit, the result still carries the
// closest segment and its distance.
//
// A hit is tagged OtherTrail with no owner; use CheckTrailCollisionWithOwner
// to attribute it.
func CheckTrailCollision(player PlayerState, segments []Segment, deathRadius float64) CollisionResult {
	result := NoCollision()
	if !player.Alive {
		return result
	}

	pos := player.Position()
	deathRadiusSq := deathRadius * deathRadius
	minDistSq := math.MaxFloat64

	for i, seg := range segments {
		distSq := DistanceToSegmentSquared(pos, seg)
		if distSq < deathRadiusSq {
			t := OtherTrailCollision("")
			result.Collided = true
			result.Type = &t
			result.Distance = math.Sqrt(distSq)
			result.SegmentIndex = i
			return result
		}
		if distSq < minDistSq {
			minDistSq = distSq
			result.SegmentIndex = i
		}
	}

	if result.HasSegment() {
		result.Distance = math.Sqrt(minDistSq)
	}
	return result
}

// CheckTrailCollisionWithOwner runs CheckTrailCollision against the trail of
// ownerID and tags a hit as SelfTrail or OtherTrail(ownerID).
func CheckTrailCollisionWithOwner(player PlayerState, ownerID string, segments []Segment, deathRadius float64) CollisionResult {
	result := CheckTrailCollision(player, segments, deathRadius)
	if result.Collided {
		var t CollisionType
		if player.ID == ownerID {
			t = SelfTrailCollision()
		} else {
			t = OtherTrailCollision(ownerID)
		}
		result.Type = &t
	}
	return result
}

// ContinuousCollisionCheck sweeps the movement from prev to curr against the
// segments and reports the first one it intersects. There is no distance
// threshold. The owner is left empty for the caller to attribute.
func ContinuousCollisionCheck(prev, curr Point, segments []Segment) CollisionResult {
	result := NoCollision()
	movement := SegmentFromPositions(prev, curr)

	for i, seg := range segments {
		if SegmentsIntersect(movement, seg) {
			t := OtherTrailCollision("")
			result.Collided = true
			result.Type = &t
			result.SegmentIndex = i
			return result
		}
	}
	return result
}

// CheckArenaBounds returns an OutOfBoundsError when either coordinate exceeds
// arenaSize - wallDist. The bound itself is valid.
func CheckArenaBounds(x, z, arenaSize, wallDist float64) error {
	bound := arenaSize - wallDist
	if math.Abs(x) > bound || math.Abs(z) > bound {
		return &OutOfBoundsError{X: x, Z: z, ArenaSize: arenaSize}
	}
	return nil
}

// CheckWallCollision reports whether the position is at or past
// arenaSize - wallDistance on either axis.
func CheckWallCollision(x, z, arenaSize, wallDistance float64) bool {
	bound := arenaSize - wallDistance
	return math.Abs(x) >= bound || math.Abs(z) >= bound
}

// CheckSlipstream reports whether follower is within maxDistance of leader
// and facing it within a cone of half-angle maxAngle.
func CheckSlipstream(follower, leader PlayerState, maxDistance, maxAngle float64) bool {
	dx := leader.X - follower.X
	dz := leader.Z - follower.Z
	distSq := dx*dx + dz*dz

	if distSq > maxDistance*maxDistance {
		return false
	}

	dist := math.Sqrt(distSq)
	if dist < EPS {
		return false
	}

	dot := follower.DirX*(dx/dist) + follower.DirZ*(dz/dist)
	return dot > math.Cos(maxAngle)
}

// FindClosestSegment returns the segment nearest to p. The second return is
// false when segments is empty. Ties keep the earlier index.
func FindClosestSegment(p Point, segments []Segment) (SegmentDistance, bool) {
	if len(segments) == 0 {
		return SegmentDistance{}, false
	}

	closest := 0
	closestSq := math.MaxFloat64
	for i, seg := range segments {
		if distSq := DistanceToSegmentSquared(p, seg); distSq < closestSq {
			closestSq = distSq
			closest = i
		}
	}

	return SegmentDistance{Index: closest, Distance: math.Sqrt(closestSq)}, true
}

// FindSegmentsWithinDistance returns every segment within maxDistance of p
// (inclusive), in input order.
func FindSegmentsWithinDistance(p Point, segments []Segment, maxDistance float64) []SegmentDistance {
	maxDistSq := maxDistance * maxDistance
	var results []SegmentDistance

	for i, seg := range segments {
		if distSq := DistanceToSegmentSquared(p, seg); distSq <= maxDistSq {
			results = append(results, SegmentDistance{Index: i, Distance: math.Sqrt(distSq)})
		}
	}
	return results
}

// Detector binds the collision checks to a validated CollisionConfig.
type Detector struct {
	cfg CollisionConfig
}

// NewDetector creates a detector. cfg must already have passed Validate.
func NewDetector(cfg CollisionConfig) *Detector {
	return &Detector{cfg: cfg}
}

// Config returns the detector's collision config.
func (d *Detector) Config() CollisionConfig {
	return d.cfg
}

// CheckArenaBounds checks the position against the configured wall distance.
func (d *Detector) CheckArenaBounds(x, z, arenaSize float64) error {
	return CheckArenaBounds(x, z, arenaSize, d.cfg.WallCollisionDist)
}

// CheckWall is the lethal wall test with the configured wall distance.
func (d *Detector) CheckWall(x, z, arenaSize float64) CollisionResult {
	if !CheckWallCollision(x, z, arenaSize, d.cfg.WallCollisionDist) {
		return NoCollision()
	}
	t := WallCollision()
	bound := arenaSize - d.cfg.WallCollisionDist
	return CollisionResult{
		Collided:     true,
		Type:         &t,
		Distance:     math.Max(0, bound-math.Max(math.Abs(x), math.Abs(z))),
		SegmentIndex: -1,
	}
}

// CheckTrail checks player against the trail of ownerID using the death radius.
func (d *Detector) CheckTrail(player PlayerState, ownerID string, segments []Segment) CollisionResult {
	return CheckTrailCollisionWithOwner(player, ownerID, segments, d.cfg.DeathRadius)
}

// CheckSlipstream uses the configured slipstream distance and angle.
func (d *Detector) CheckSlipstream(follower, leader PlayerState) bool {
	return CheckSlipstream(follower, leader, d.cfg.SlipstreamDistance, d.cfg.SlipstreamAngle)
}

// NearbySegments returns segments within the trail warning distance.
func (d *Detector) NearbySegments(p Point, segments []Segment) []SegmentDistance {
	return FindSegmentsWithinDistance(p, segments, d.cfg.TrailCollisionDist)
}
