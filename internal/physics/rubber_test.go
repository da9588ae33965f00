package physics

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRubberEngine() *RubberEngine {
	return NewRubberEngine(DefaultRubberConfig())
}

func TestRubberStateConstruction(t *testing.T) {
	t.Parallel()
	e := newTestRubberEngine()

	s := e.NewState("player1")
	assert.Equal(t, "player1", s.PlayerID)
	assert.Equal(t, 1.0, s.Rubber)
	assert.Zero(t, s.Malus)
	assert.Zero(t, s.MalusTimer)

	assert.Equal(t, 2.5, e.StateWithRubber("p1", 2.5).Rubber)
	assert.Equal(t, 0.1, e.StateWithRubber("p1", 0).Rubber)
	assert.Equal(t, 5.0, e.StateWithRubber("p1", 10).Rubber)
}

func TestRubberAdoptKeepsMalus(t *testing.T) {
	t.Parallel()
	e := newTestRubberEngine()
	s := e.StateWithRubber("p1", 4)
	e.ApplyMalus(s, 1, 1)
	malus := s.Malus

	casual := NewRubberEngine(NewRubberConfig(1, 3, 3))
	casual.Adopt(s)

	assert.Equal(t, 3.0, s.Rubber)
	assert.Equal(t, malus, s.Malus)
	assert.Equal(t, 1.0, s.MalusTimer)
	assert.True(t, s.MalusActive())
}

func TestRubberUpdate(t *testing.T) {
	t.Parallel()

	t.Run("exponential decay", func(t *testing.T) {
		t.Parallel()
		e := newTestRubberEngine()
		s := e.StateWithRubber("p1", 2)

		got := e.Update(s, 1)
		assert.InDelta(t, 1.9, got, 1e-9)
		assert.Equal(t, got, s.Rubber)
	})

	t.Run("decay is independent of step size", func(t *testing.T) {
		t.Parallel()
		e := newTestRubberEngine()
		once := e.StateWithRubber("p1", 2)
		halves := e.StateWithRubber("p1", 2)

		e.Update(once, 1)
		e.Update(halves, 0.5)
		e.Update(halves, 0.5)

		assert.InDelta(t, once.Rubber, halves.Rubber, 1e-9)
	})

	t.Run("clamps into range", func(t *testing.T) {
		t.Parallel()
		e := newTestRubberEngine()

		high := &RubberState{PlayerID: "p1", Rubber: 6}
		e.Update(high, 0)
		assert.Equal(t, 5.0, high.Rubber)

		low := &RubberState{PlayerID: "p1", Rubber: 0.05}
		e.Update(low, 0)
		assert.Equal(t, 0.1, low.Rubber)

		floor := e.StateWithRubber("p1", 0.1)
		e.Update(floor, 10)
		assert.Equal(t, 0.1, floor.Rubber)
	})

	t.Run("malus held while timer runs", func(t *testing.T) {
		t.Parallel()
		e := newTestRubberEngine()
		s := e.NewState("p1")
		s.Malus, s.MalusTimer = 0.5, 1

		e.Update(s, 0.5)
		assert.InDelta(t, 0.5, s.MalusTimer, 1e-9)
		assert.Equal(t, 0.5, s.Malus)
		assert.True(t, s.MalusActive())

		e.Update(s, 0.6)
		assert.Zero(t, s.MalusTimer)
		assert.Zero(t, s.Malus)
		assert.False(t, s.MalusActive())
	})

	t.Run("non-increasing and bounded", func(t *testing.T) {
		t.Parallel()
		e := newTestRubberEngine()
		cfg := e.Config()
		s := e.StateWithRubber("p1", 4.8)

		prev := s.Rubber
		for i := 0; i < 200; i++ {
			dt := float64(i%7) * 0.05
			got := e.Update(s, dt)
			require.LessOrEqual(t, got, prev)
			require.GreaterOrEqual(t, got, cfg.MinRubber)
			require.LessOrEqual(t, got, cfg.MaxRubber)
			prev = got
		}
	})
}

func TestApplyMalus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		duration  float64
		factor    float64
		wantMalus float64
		wantTimer float64
	}{
		{"basic", 1, 0.5, 0.3, 1},
		{"factor clamped high", 1, 2, 0.6, 1},
		{"factor clamped low", 1, -1, 0, 1},
		{"duration floored to config", 0.1, 0.5, 0.3, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestRubberEngine()
			s := e.StateWithRubber("p1", 2)

			got := e.ApplyMalus(s, tt.duration, tt.factor)

			assert.InDelta(t, tt.wantMalus, got, 1e-9)
			assert.InDelta(t, tt.wantMalus, s.Malus, 1e-9)
			assert.InDelta(t, tt.wantTimer, s.MalusTimer, 1e-9)
		})
	}
}

func TestEffectiveness(t *testing.T) {
	t.Parallel()
	e := newTestRubberEngine()

	assert.InDelta(t, 1.0, e.Effectiveness(e.StateWithRubber("p1", 5)), 1e-9)
	assert.InDelta(t, 0.0, e.Effectiveness(e.StateWithRubber("p1", 0.1)), 1e-9)
	assert.InDelta(t, 0.5, e.Effectiveness(e.StateWithRubber("p1", 2.55)), 1e-9)

	t.Run("malus reduces effectiveness only while active", func(t *testing.T) {
		s := e.StateWithRubber("p1", 2)
		without := e.Effectiveness(s)

		s.Malus, s.MalusTimer = 0.5, 1
		assert.Less(t, e.Effectiveness(s), without)

		s.MalusTimer = 0
		assert.Equal(t, without, e.Effectiveness(s))
	})

	t.Run("always within unit range", func(t *testing.T) {
		for rubber := 0.1; rubber <= 5; rubber += 0.35 {
			for malus := 0.0; malus <= 6; malus += 0.75 {
				s := &RubberState{Rubber: rubber, Malus: malus, MalusTimer: 1}
				got := e.Effectiveness(s)
				require.GreaterOrEqual(t, got, 0.0)
				require.LessOrEqual(t, got, 1.0)
			}
		}
	})
}

func TestSpeedModifier(t *testing.T) {
	t.Parallel()
	e := newTestRubberEngine()

	assert.InDelta(t, 40.0, e.SpeedModifier(e.NewState("p1"), 40), 1e-9)
	assert.InDelta(t, 56.0, e.SpeedModifier(e.StateWithRubber("p1", 2), 40), 1e-9)

	penalised := e.NewState("p1")
	penalised.Malus, penalised.MalusTimer = 5, 1
	assert.InDelta(t, 20.0, e.SpeedModifier(penalised, 40), 1e-9, "floored at half speed")
}

func TestEffectiveRubber(t *testing.T) {
	t.Parallel()
	e := newTestRubberEngine()

	s := e.StateWithRubber("p1", 2)
	s.Malus = 0.5
	assert.InDelta(t, 1.5, e.EffectiveRubber(s), 1e-9)

	s = e.StateWithRubber("p1", 0.2)
	s.Malus = 1
	assert.Equal(t, 0.1, e.EffectiveRubber(s))
}

func TestResetRubber(t *testing.T) {
	t.Parallel()
	e := newTestRubberEngine()

	s := e.StateWithRubber("p1", 3)
	e.ApplyMalus(s, 1, 1)
	e.Reset(s)

	assert.Equal(t, "p1", s.PlayerID)
	assert.Equal(t, 1.0, s.Rubber)
	assert.Zero(t, s.Malus)
	assert.Zero(t, s.MalusTimer)
}

func TestIncreaseForPosition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		start    float64
		position uint32
		total    uint32
		want     float64
	}{
		{"last place gets full bonus", 1, 6, 6, 1.1},
		{"first place gets nothing", 1, 1, 6, 1},
		{"middle", 1, 3, 5, 1.05},
		{"solo player counts as last", 1, 1, 1, 1.1},
		{"zero position ignored", 1, 0, 6, 1},
		{"zero players ignored", 1, 2, 0, 1},
		{"capped at max", 5, 6, 6, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestRubberEngine()
			s := e.StateWithRubber("p1", tt.start)

			got := e.IncreaseForPosition(s, tt.position, tt.total)

			assert.InDelta(t, tt.want, got, 1e-9)
			assert.Equal(t, got, s.Rubber)
		})
	}
}

func TestValidateRubberUsage(t *testing.T) {
	t.Parallel()

	t.Run("boundary passes", func(t *testing.T) {
		assert.NoError(t, ValidateRubberUsage(1.0, 1.1, 0.1))
		assert.NoError(t, ValidateRubberUsage(1.1, 1.0, 0.1))
		assert.NoError(t, ValidateRubberUsage(1.5, 1.55, 0.1))
	})

	t.Run("just over tolerance fails", func(t *testing.T) {
		err := ValidateRubberUsage(1.5, 1.61, 0.1)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrRubberMismatch))

		var mismatch *RubberMismatchError
		require.True(t, errors.As(err, &mismatch))
		assert.Equal(t, 1.5, mismatch.Client)
		assert.Equal(t, 1.61, mismatch.Server)
		assert.Equal(t, 0.1, mismatch.Tolerance)
		assert.Contains(t, err.Error(), "rubber mismatch")
	})

	t.Run("non-finite client value", func(t *testing.T) {
		assert.ErrorIs(t, ValidateRubberUsage(math.NaN(), 1, 0.1), ErrInvalidState)
		assert.ErrorIs(t, ValidateRubberUsage(math.Inf(1), 1, 0.1), ErrInvalidState)
	})

	t.Run("engine uses config tolerance", func(t *testing.T) {
		e := newTestRubberEngine()
		s := e.NewState("p1")

		assert.InDelta(t, 0.49, e.Tolerance(), 1e-9)
		assert.NoError(t, e.Validate(1.4, s))
		assert.ErrorIs(t, e.Validate(1.6, s), ErrRubberMismatch)
	})
}
