package physics

import "math"

// RubberState is the per-player catch-up record. Rubber stays within the
// engine's [MinRubber, MaxRubber]; Malus and MalusTimer are never negative
// and Malus is zero whenever MalusTimer is zero.
type RubberState struct {
	PlayerID   string
	Rubber     float64
	Malus      float64
	MalusTimer float64 // seconds until the malus clears
}

// MalusActive reports whether a malus is currently applied.
func (s *RubberState) MalusActive() bool {
	return s.MalusTimer > 0
}

// RubberEngine applies the catch-up rules of a validated RubberConfig.
type RubberEngine struct {
	cfg RubberConfig
}

// NewRubberEngine creates an engine. cfg must already have passed Validate.
func NewRubberEngine(cfg RubberConfig) *RubberEngine {
	return &RubberEngine{cfg: cfg}
}

// Config returns the engine's rubber config.
func (e *RubberEngine) Config() RubberConfig {
	return e.cfg
}

// NewState creates a state at the base rubber value.
func (e *RubberEngine) NewState(playerID string) *RubberState {
	return &RubberState{PlayerID: playerID, Rubber: e.cfg.BaseRubber}
}

// StateWithRubber creates a state with rubber clamped into range.
func (e *RubberEngine) StateWithRubber(playerID string, rubber float64) *RubberState {
	return &RubberState{PlayerID: playerID, Rubber: e.clampRubber(rubber)}
}

// Adopt clamps an existing state into this engine's rubber range. An active
// malus and its timer are kept.
func (e *RubberEngine) Adopt(s *RubberState) {
	s.Rubber = e.clampRubber(s.Rubber)
}

// Update decays rubber by DecayRate^dt and counts the malus timer down.
// When the timer runs out the malus is cleared in full.
func (e *RubberEngine) Update(s *RubberState, dt float64) float64 {
	s.Rubber = e.clampRubber(s.Rubber * math.Pow(e.cfg.DecayRate, dt))

	if s.MalusTimer > 0 {
		s.MalusTimer -= dt
		if s.MalusTimer <= 0 {
			s.MalusTimer = 0
			s.Malus = 0
		}
	}

	return s.Rubber
}

// ApplyMalus sets a penalty proportional to the current rubber. The timer is
// never shorter than the configured MalusDuration.
func (e *RubberEngine) ApplyMalus(s *RubberState, duration, factor float64) float64 {
	s.Malus = s.Rubber * clamp(factor, 0, 1) * e.cfg.MalusFactor
	s.MalusTimer = math.Max(duration, e.cfg.MalusDuration)
	return s.Malus
}

// Effectiveness maps rubber onto [0,1] across the configured range, reduced
// by the relative malus while it is active.
func (e *RubberEngine) Effectiveness(s *RubberState) float64 {
	eff := (s.Rubber - e.cfg.MinRubber) / (e.cfg.MaxRubber - e.cfg.MinRubber)

	if s.MalusTimer > 0 {
		eff -= s.Malus / math.Max(s.Rubber, e.cfg.MinRubber)
	}

	return clamp(eff, 0, 1)
}

// SpeedModifier returns baseSpeed scaled by the rubber boost minus malus.
// The result never drops below half of baseSpeed.
func (e *RubberEngine) SpeedModifier(s *RubberState, baseSpeed float64) float64 {
	boost := (s.Rubber - e.cfg.BaseRubber) * e.cfg.RubberSpeed * 0.01
	modifier := 1 + boost - s.Malus
	return baseSpeed * math.Max(modifier, 0.5)
}

// EffectiveRubber returns rubber minus malus, floored at MinRubber.
func (e *RubberEngine) EffectiveRubber(s *RubberState) float64 {
	return math.Max(s.Rubber-s.Malus, e.cfg.MinRubber)
}

// Reset restores the state to its initial values, e.g. on respawn.
func (e *RubberEngine) Reset(s *RubberState) {
	s.Rubber = e.cfg.BaseRubber
	s.Malus = 0
	s.MalusTimer = 0
}

// IncreaseForPosition raises rubber by up to 10% for bikes behind the leader.
// position is 1-based; first place gets nothing and last place the full
// bonus. Zero position or zero players leave the state untouched.
func (e *RubberEngine) IncreaseForPosition(s *RubberState, position, totalPlayers uint32) float64 {
	if totalPlayers == 0 || position == 0 {
		return s.Rubber
	}

	var factor float64
	if position >= totalPlayers {
		factor = 1
	} else {
		factor = float64(position-1) / float64(totalPlayers-1)
	}

	s.Rubber = e.clampRubber(s.Rubber + factor*0.1)
	return s.Rubber
}

// Tolerance is the client/server tolerance used by Validate.
func (e *RubberEngine) Tolerance() float64 {
	return e.cfg.ValidationTolerance()
}

// Validate compares a client-reported rubber value with the server state.
func (e *RubberEngine) Validate(clientRubber float64, s *RubberState) error {
	return ValidateRubberUsage(clientRubber, s.Rubber, e.Tolerance())
}

// ValidateRubberUsage is the anti-cheat gate for client rubber values. It
// fails when the values differ by more than tolerance + EPS, so a difference
// of exactly tolerance passes. Non-finite client values are rejected.
func ValidateRubberUsage(clientRubber, serverRubber, tolerance float64) error {
	if !isFinite(clientRubber) {
		return &InvalidStateError{Reason: "client rubber is not finite"}
	}

	if math.Abs(clientRubber-serverRubber) > tolerance+EPS {
		return &RubberMismatchError{
			Client:    clientRubber,
			Server:    serverRubber,
			Tolerance: tolerance,
		}
	}
	return nil
}

func (e *RubberEngine) clampRubber(v float64) float64 {
	return clamp(v, e.cfg.MinRubber, e.cfg.MaxRubber)
}
