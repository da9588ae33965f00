package physics

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func alivePlayer(id string, x, z float64) PlayerState {
	return PlayerState{ID: id, X: x, Z: z, DirX: 0, DirZ: 1, Alive: true}
}

func TestCheckTrailCollision(t *testing.T) {
	t.Parallel()

	t.Run("hit reports segment and distance", func(t *testing.T) {
		t.Parallel()
		segs := []Segment{NewSegment(0, 0, 10, 0)}

		res := CheckTrailCollision(alivePlayer("p1", 5, 0.5), segs, 2.0)

		require.True(t, res.Collided)
		require.NotNil(t, res.Type)
		assert.Equal(t, 0, res.SegmentIndex)
		assert.InDelta(t, 0.5, res.Distance, 1e-9)
	})

	t.Run("first hit wins over closest", func(t *testing.T) {
		t.Parallel()
		segs := []Segment{
			NewSegment(0, 1.5, 10, 1.5),
			NewSegment(0, 0.2, 10, 0.2),
		}

		res := CheckTrailCollision(alivePlayer("p1", 5, 0), segs, 2.0)

		require.True(t, res.Collided)
		assert.Equal(t, 0, res.SegmentIndex)
		assert.InDelta(t, 1.5, res.Distance, 1e-9)
	})

	t.Run("miss records nearest segment", func(t *testing.T) {
		t.Parallel()
		segs := []Segment{
			NewSegment(0, 0, 10, 0),
			NewSegment(0, 8, 10, 8),
		}

		res := CheckTrailCollision(alivePlayer("p1", 5, 5), segs, 2.0)

		assert.False(t, res.Collided)
		assert.Nil(t, res.Type)
		assert.Equal(t, 1, res.SegmentIndex)
		assert.InDelta(t, 3.0, res.Distance, 1e-9)
	})

	t.Run("radius is exclusive", func(t *testing.T) {
		t.Parallel()
		segs := []Segment{NewSegment(0, 0, 10, 0)}

		res := CheckTrailCollision(alivePlayer("p1", 5, 2), segs, 2.0)
		assert.False(t, res.Collided)
	})

	t.Run("dead player never collides", func(t *testing.T) {
		t.Parallel()
		p := alivePlayer("p1", 5, 0)
		p.Alive = false

		res := CheckTrailCollision(p, []Segment{NewSegment(0, 0, 10, 0)}, 2.0)

		assert.False(t, res.Collided)
		assert.False(t, res.HasSegment())
		assert.Equal(t, math.MaxFloat64, res.Distance)
	})

	t.Run("no segments", func(t *testing.T) {
		t.Parallel()
		res := CheckTrailCollision(alivePlayer("p1", 0, 0), nil, 2.0)
		assert.Equal(t, NoCollision(), res)
	})
}

func TestCheckTrailCollisionWithOwner(t *testing.T) {
	t.Parallel()

	segs := []Segment{NewSegment(0, 0, 10, 0)}
	p := alivePlayer("p1", 5, 0.5)

	self := CheckTrailCollisionWithOwner(p, "p1", segs, 2.0)
	require.True(t, self.Collided)
	assert.Equal(t, SelfTrailCollision(), *self.Type)

	other := CheckTrailCollisionWithOwner(p, "p2", segs, 2.0)
	require.True(t, other.Collided)
	assert.Equal(t, OtherTrailCollision("p2"), *other.Type)
	assert.Equal(t, `OtherTrail("p2")`, other.Type.String())

	miss := CheckTrailCollisionWithOwner(alivePlayer("p1", 5, 9), "p2", segs, 2.0)
	assert.False(t, miss.Collided)
	assert.Nil(t, miss.Type)
}

func TestContinuousCollisionCheck(t *testing.T) {
	t.Parallel()

	segs := []Segment{
		NewSegment(20, 20, 30, 20),
		NewSegment(0, 0, 10, 0),
	}

	t.Run("sweep through trail", func(t *testing.T) {
		t.Parallel()
		res := ContinuousCollisionCheck(Point{5, -5}, Point{5, 5}, segs)

		require.True(t, res.Collided)
		assert.Equal(t, 1, res.SegmentIndex)
		assert.Equal(t, OtherTrailCollision(""), *res.Type)
	})

	t.Run("no crossing", func(t *testing.T) {
		t.Parallel()
		res := ContinuousCollisionCheck(Point{5, 1}, Point{5, 5}, segs)
		assert.False(t, res.Collided)
		assert.False(t, res.HasSegment())
	})

	t.Run("catches tunnelling missed by proximity", func(t *testing.T) {
		t.Parallel()
		p := alivePlayer("p1", 5, 5)

		assert.False(t, CheckTrailCollision(p, segs, 2.0).Collided)
		assert.True(t, ContinuousCollisionCheck(Point{5, -5}, p.Position(), segs).Collided)
	})
}

func TestCheckArenaBounds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		x, z    float64
		wantErr bool
	}{
		{"inside", 50, 50, false},
		{"near edge", 98, 50, false},
		{"on bound", 99, -99, false},
		{"outside x", 150, 50, true},
		{"outside negative z", 0, -99.5, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckArenaBounds(tt.x, tt.z, 100, DefaultCollisionConfig().WallCollisionDist)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrOutOfBounds))

			var oob *OutOfBoundsError
			require.True(t, errors.As(err, &oob))
			assert.Equal(t, tt.x, oob.X)
			assert.Equal(t, 100.0, oob.ArenaSize)
		})
	}
}

func TestCheckWallCollision(t *testing.T) {
	t.Parallel()

	assert.False(t, CheckWallCollision(50, 50, 100, 5))
	assert.True(t, CheckWallCollision(98, 50, 100, 5))
	assert.True(t, CheckWallCollision(95, 0, 100, 5), "bound is lethal")
	assert.True(t, CheckWallCollision(0, -96, 100, 5))

	// soft and hard thresholds are independent
	assert.NoError(t, CheckArenaBounds(97, 0, 100, 1))
	assert.True(t, CheckWallCollision(97, 0, 100, 5))
}

func TestCheckSlipstream(t *testing.T) {
	t.Parallel()

	follower := alivePlayer("p1", 0, 0)

	t.Run("directly behind", func(t *testing.T) {
		assert.True(t, CheckSlipstream(follower, alivePlayer("p2", 0, 3), 5, 0.3))
	})

	t.Run("too far", func(t *testing.T) {
		assert.False(t, CheckSlipstream(follower, alivePlayer("p2", 0, 10), 5, 0.3))
	})

	t.Run("facing away", func(t *testing.T) {
		sideways := follower
		sideways.DirX, sideways.DirZ = 1, 0
		assert.False(t, CheckSlipstream(sideways, alivePlayer("p2", 0, 3), 5, 0.3))
	})

	t.Run("inside cone", func(t *testing.T) {
		leader := alivePlayer("p2", 3*math.Sin(0.2), 3*math.Cos(0.2))
		assert.True(t, CheckSlipstream(follower, leader, 5, 0.3))
	})

	t.Run("outside cone", func(t *testing.T) {
		leader := alivePlayer("p2", 3*math.Sin(0.5), 3*math.Cos(0.5))
		assert.False(t, CheckSlipstream(follower, leader, 5, 0.3))
	})

	t.Run("same position", func(t *testing.T) {
		assert.False(t, CheckSlipstream(follower, alivePlayer("p2", 0, 0.001), 5, 0.3))
	})
}

func TestFindClosestSegment(t *testing.T) {
	t.Parallel()

	segs := []Segment{
		NewSegment(0, 0, 10, 0),
		NewSegment(0, 10, 10, 10),
	}

	got, ok := FindClosestSegment(Point{5, 1}, segs)
	require.True(t, ok)
	assert.Equal(t, 0, got.Index)
	assert.InDelta(t, 1.0, got.Distance, 1e-9)

	got, ok = FindClosestSegment(Point{5, 7}, segs)
	require.True(t, ok)
	assert.Equal(t, 1, got.Index)
	assert.InDelta(t, 3.0, got.Distance, 1e-9)

	_, ok = FindClosestSegment(Point{}, nil)
	assert.False(t, ok)
}

func TestFindSegmentsWithinDistance(t *testing.T) {
	t.Parallel()

	segs := []Segment{
		NewSegment(0, 0, 10, 0),
		NewSegment(0, 10, 10, 10),
		NewSegment(0, 3, 10, 3),
	}

	got := FindSegmentsWithinDistance(Point{5, 1}, segs, 2)

	require.Len(t, got, 2)
	assert.Equal(t, 0, got[0].Index)
	assert.InDelta(t, 1.0, got[0].Distance, 1e-9)
	assert.Equal(t, 2, got[1].Index)
	assert.InDelta(t, 2.0, got[1].Distance, 1e-9)

	assert.Empty(t, FindSegmentsWithinDistance(Point{5, 1}, segs, 0.5))
}

func TestDetector(t *testing.T) {
	t.Parallel()

	d := NewDetector(DefaultCollisionConfig())

	t.Run("arena bounds", func(t *testing.T) {
		assert.NoError(t, d.CheckArenaBounds(98, 50, 100))
		assert.ErrorIs(t, d.CheckArenaBounds(150, 50, 100), ErrOutOfBounds)
	})

	t.Run("wall", func(t *testing.T) {
		res := d.CheckWall(99.5, 0, 100)
		require.True(t, res.Collided)
		assert.Equal(t, WallCollision(), *res.Type)
		assert.Equal(t, 0.0, res.Distance)

		assert.False(t, d.CheckWall(50, 0, 100).Collided)
	})

	t.Run("trail uses death radius", func(t *testing.T) {
		segs := []Segment{NewSegment(0, 0, 10, 0)}
		assert.True(t, d.CheckTrail(alivePlayer("p1", 5, 1.9), "p1", segs).Collided)
		assert.False(t, d.CheckTrail(alivePlayer("p1", 5, 2.1), "p1", segs).Collided)
	})

	t.Run("nearby segments use trail distance", func(t *testing.T) {
		segs := []Segment{NewSegment(0, 0, 10, 0), NewSegment(0, 6, 10, 6)}
		got := d.NearbySegments(Point{5, 2.4}, segs)
		require.Len(t, got, 1)
		assert.Equal(t, 0, got[0].Index)
	})

	t.Run("slipstream", func(t *testing.T) {
		assert.True(t, d.CheckSlipstream(alivePlayer("p1", 0, 0), alivePlayer("p2", 0, 4)))
	})
}
