package physics

import (
	"math"
	"strings"
)

// PhysicsConfig holds bike movement parameters.
type PhysicsConfig struct {
	BaseSpeed    float64 `json:"base_speed"`    // units per second
	BoostSpeed   float64 `json:"boost_speed"`   // units per second
	BrakeSpeed   float64 `json:"brake_speed"`   // units per second
	TurnSpeed    float64 `json:"turn_speed"`    // radians per second
	TurnDelay    float64 `json:"turn_delay"`    // seconds before turn penalty applies
	TurnPenalty  float64 `json:"turn_penalty"`  // speed fraction lost while turning, 0..1
	Acceleration float64 `json:"acceleration"`  // units per second squared
	Deceleration float64 `json:"deceleration"`  // units per second squared
	MinSpeed     float64 `json:"min_speed"`
	MaxSpeed     float64 `json:"max_speed"`
}

// DefaultPhysicsConfig returns the competitive physics parameters.
func DefaultPhysicsConfig() PhysicsConfig {
	return PhysicsConfig{
		BaseSpeed:    40.0,
		BoostSpeed:   70.0,
		BrakeSpeed:   20.0,
		TurnSpeed:    3.0,
		TurnDelay:    0.08,
		TurnPenalty:  0.05,
		Acceleration: 100.0,
		Deceleration: 80.0,
		MinSpeed:     5.0,
		MaxSpeed:     80.0,
	}
}

// NewPhysicsConfig overrides the speed and turn values of the default config.
func NewPhysicsConfig(baseSpeed, boostSpeed, brakeSpeed, turnSpeed float64) PhysicsConfig {
	c := DefaultPhysicsConfig()
	c.BaseSpeed = baseSpeed
	c.BoostSpeed = boostSpeed
	c.BrakeSpeed = brakeSpeed
	c.TurnSpeed = turnSpeed
	return c
}

// Validate checks the fields in order and reports the first violation.
func (c PhysicsConfig) Validate() error {
	return firstViolation(
		rule{"base_speed", c.BaseSpeed, c.BaseSpeed > 0, "base_speed must be positive"},
		rule{"boost_speed", c.BoostSpeed, c.BoostSpeed > c.BaseSpeed, "boost_speed must be greater than base_speed"},
		rule{"brake_speed", c.BrakeSpeed, c.BrakeSpeed < c.BaseSpeed, "brake_speed must be less than base_speed"},
		rule{"turn_speed", c.TurnSpeed, c.TurnSpeed > 0, "turn_speed must be positive"},
		rule{"turn_delay", c.TurnDelay, c.TurnDelay >= 0, "turn_delay cannot be negative"},
		rule{"turn_penalty", c.TurnPenalty, c.TurnPenalty >= 0 && c.TurnPenalty <= 1, "turn_penalty must be between 0.0 and 1.0"},
		rule{"acceleration", c.Acceleration, c.Acceleration > 0, "acceleration must be positive"},
		rule{"deceleration", c.Deceleration, c.Deceleration > 0, "deceleration must be positive"},
		rule{"min_speed", c.MinSpeed, c.MinSpeed >= 0, "min_speed cannot be negative"},
		rule{"max_speed", c.MaxSpeed, c.MaxSpeed > c.MinSpeed, "max_speed must be greater than min_speed"},
	)
}

// TargetSpeed returns the speed for the current input. Boost wins over brake.
func (c PhysicsConfig) TargetSpeed(boosting, braking bool) float64 {
	switch {
	case boosting:
		return c.BoostSpeed
	case braking:
		return c.BrakeSpeed
	default:
		return c.BaseSpeed
	}
}

// TurnAngle returns the heading change for dt seconds; positive is left.
// Pressing both directions cancels out.
func (c PhysicsConfig) TurnAngle(dt float64, left, right bool) float64 {
	switch {
	case left && !right:
		return c.TurnSpeed * dt
	case right && !left:
		return -c.TurnSpeed * dt
	default:
		return 0
	}
}

// ApplyTurnPenalty scales speed down while turning.
func (c PhysicsConfig) ApplyTurnPenalty(speed float64, turning bool) float64 {
	if !turning {
		return speed
	}
	return speed * (1 - c.TurnPenalty)
}

// CollisionConfig holds collision thresholds.
type CollisionConfig struct {
	DeathRadius        float64 `json:"death_radius"`
	BikeCollisionDist  float64 `json:"bike_collision_dist"`
	TrailCollisionDist float64 `json:"trail_collision_dist"`
	WallCollisionDist  float64 `json:"wall_collision_dist"`
	SlipstreamDistance float64 `json:"slipstream_distance"`
	SlipstreamAngle    float64 `json:"slipstream_angle"` // cone half-angle, radians
}

// DefaultCollisionConfig returns the competitive collision thresholds.
func DefaultCollisionConfig() CollisionConfig {
	return CollisionConfig{
		DeathRadius:        2.0,
		BikeCollisionDist:  3.0,
		TrailCollisionDist: 2.5,
		WallCollisionDist:  1.0,
		SlipstreamDistance: 5.0,
		SlipstreamAngle:    0.3,
	}
}

// NewCollisionConfig overrides the trail thresholds of the default config.
func NewCollisionConfig(deathRadius, trailCollisionDist float64) CollisionConfig {
	c := DefaultCollisionConfig()
	c.DeathRadius = deathRadius
	c.TrailCollisionDist = trailCollisionDist
	return c
}

// Validate checks the fields in order and reports the first violation.
func (c CollisionConfig) Validate() error {
	return firstViolation(
		rule{"death_radius", c.DeathRadius, c.DeathRadius > 0, "death_radius must be positive"},
		rule{"bike_collision_dist", c.BikeCollisionDist, c.BikeCollisionDist > 0, "bike_collision_dist must be positive"},
		rule{"trail_collision_dist", c.TrailCollisionDist, c.TrailCollisionDist > 0, "trail_collision_dist must be positive"},
		rule{"wall_collision_dist", c.WallCollisionDist, c.WallCollisionDist > 0, "wall_collision_dist must be positive"},
		rule{"slipstream_distance", c.SlipstreamDistance, c.SlipstreamDistance > 0, "slipstream_distance must be positive"},
		rule{"slipstream_angle", c.SlipstreamAngle, c.SlipstreamAngle > 0 && c.SlipstreamAngle <= math.Pi/2, "slipstream_angle must be between 0 and PI/2"},
	)
}

// DeathRadiusSquared is used for sqrt-free distance comparisons.
func (c CollisionConfig) DeathRadiusSquared() float64 {
	return c.DeathRadius * c.DeathRadius
}

// TrailCollisionDistSquared is used for sqrt-free distance comparisons.
func (c CollisionConfig) TrailCollisionDistSquared() float64 {
	return c.TrailCollisionDist * c.TrailCollisionDist
}

// RubberConfig holds the catch-up parameters.
//
// ServerRubber and MinDistance are validated but not read by the engine.
type RubberConfig struct {
	BaseRubber             float64 `json:"base_rubber"`
	ServerRubber           float64 `json:"server_rubber"`
	RubberSpeed            float64 `json:"rubber_speed"`
	MinDistance            float64 `json:"min_distance"`
	MalusDuration          float64 `json:"malus_duration"` // seconds
	MalusFactor            float64 `json:"malus_factor"`
	DecayRate              float64 `json:"decay_rate"` // per second, 0..1
	MaxRubber              float64 `json:"max_rubber"`
	MinRubber              float64 `json:"min_rubber"`
	EffectivenessThreshold float64 `json:"effectiveness_threshold"`
}

// DefaultRubberConfig returns the competitive rubber parameters.
func DefaultRubberConfig() RubberConfig {
	return RubberConfig{
		BaseRubber:             1.0,
		ServerRubber:           3.0,
		RubberSpeed:            40.0,
		MinDistance:            0.001,
		MalusDuration:          0.5,
		MalusFactor:            0.3,
		DecayRate:              0.95,
		MaxRubber:              5.0,
		MinRubber:              0.1,
		EffectivenessThreshold: 0.5,
	}
}

// NewRubberConfig overrides the rubber range of the default config.
func NewRubberConfig(baseRubber, serverRubber, maxRubber float64) RubberConfig {
	c := DefaultRubberConfig()
	c.BaseRubber = baseRubber
	c.ServerRubber = serverRubber
	c.MaxRubber = maxRubber
	return c
}

// Validate checks the fields in order and reports the first violation.
func (c RubberConfig) Validate() error {
	return firstViolation(
		rule{"base_rubber", c.BaseRubber, c.BaseRubber > 0, "base_rubber must be positive"},
		rule{"server_rubber", c.ServerRubber, c.ServerRubber > 0, "server_rubber must be positive"},
		rule{"rubber_speed", c.RubberSpeed, c.RubberSpeed > 0, "rubber_speed must be positive"},
		rule{"min_distance", c.MinDistance, c.MinDistance > 0, "min_distance must be positive"},
		rule{"malus_duration", c.MalusDuration, c.MalusDuration > 0, "malus_duration must be positive"},
		rule{"malus_factor", c.MalusFactor, c.MalusFactor >= 0 && c.MalusFactor <= 1, "malus_factor must be between 0.0 and 1.0"},
		rule{"decay_rate", c.DecayRate, c.DecayRate > 0 && c.DecayRate <= 1, "decay_rate must be between 0.0 and 1.0"},
		rule{"max_rubber", c.MaxRubber, c.MaxRubber > c.BaseRubber, "max_rubber must be greater than base_rubber"},
		rule{"min_rubber", c.MinRubber, c.MinRubber > 0 && c.MinRubber < c.BaseRubber, "min_rubber must be positive and less than base_rubber"},
		rule{"effectiveness_threshold", c.EffectivenessThreshold, c.EffectivenessThreshold >= 0 && c.EffectivenessThreshold <= 1, "effectiveness_threshold must be between 0.0 and 1.0"},
	)
}

// ValidationTolerance is the client/server rubber tolerance: 10% of the range.
func (c RubberConfig) ValidationTolerance() float64 {
	return (c.MaxRubber - c.MinRubber) * 0.1
}

// PositionBonus returns the rubber bonus for a race position (1 = first).
// Invalid input yields zero.
func (c RubberConfig) PositionBonus(position, totalPlayers uint32) float64 {
	if totalPlayers == 0 || position == 0 || position > totalPlayers {
		return 0
	}
	factor := float64(totalPlayers-position) / float64(totalPlayers)
	return factor * 0.1
}

// FullPhysicsConfig bundles all three parameter sets.
type FullPhysicsConfig struct {
	Physics   PhysicsConfig   `json:"physics"`
	Collision CollisionConfig `json:"collision"`
	Rubber    RubberConfig    `json:"rubber"`
}

// DefaultFullPhysicsConfig returns the default bundle.
func DefaultFullPhysicsConfig() FullPhysicsConfig {
	return FullPhysicsConfig{
		Physics:   DefaultPhysicsConfig(),
		Collision: DefaultCollisionConfig(),
		Rubber:    DefaultRubberConfig(),
	}
}

// Validate runs physics, collision, then rubber validation and stops at the
// first failure.
func (c FullPhysicsConfig) Validate() error {
	if err := c.Physics.Validate(); err != nil {
		return err
	}
	if err := c.Collision.Validate(); err != nil {
		return err
	}
	return c.Rubber.Validate()
}

// Preset names accepted by Preset.
const (
	PresetCompetitive = "competitive"
	PresetCasual      = "casual"
)

// Competitive is the tournament preset.
func Competitive() FullPhysicsConfig {
	return FullPhysicsConfig{
		Physics: PhysicsConfig{
			BaseSpeed:    40.0,
			BoostSpeed:   70.0,
			BrakeSpeed:   20.0,
			TurnSpeed:    3.0,
			TurnDelay:    0.08,
			TurnPenalty:  0.05,
			Acceleration: 100.0,
			Deceleration: 80.0,
			MinSpeed:     5.0,
			MaxSpeed:     80.0,
		},
		Collision: CollisionConfig{
			DeathRadius:        2.0,
			BikeCollisionDist:  3.0,
			TrailCollisionDist: 2.5,
			WallCollisionDist:  1.0,
			SlipstreamDistance: 5.0,
			SlipstreamAngle:    0.3,
		},
		Rubber: RubberConfig{
			BaseRubber:             1.0,
			ServerRubber:           3.0,
			RubberSpeed:            40.0,
			MinDistance:            0.001,
			MalusDuration:          0.5,
			MalusFactor:            0.3,
			DecayRate:              0.95,
			MaxRubber:              5.0,
			MinRubber:              0.1,
			EffectivenessThreshold: 0.5,
		},
	}
}

// Casual is the forgiving preset: slower bikes, wider margins, more catch-up.
func Casual() FullPhysicsConfig {
	return FullPhysicsConfig{
		Physics: PhysicsConfig{
			BaseSpeed:    35.0,
			BoostSpeed:   60.0,
			BrakeSpeed:   15.0,
			TurnSpeed:    3.5,
			TurnDelay:    0.1,
			TurnPenalty:  0.02,
			Acceleration: 80.0,
			Deceleration: 60.0,
			MinSpeed:     5.0,
			MaxSpeed:     70.0,
		},
		Collision: CollisionConfig{
			DeathRadius:        2.5,
			BikeCollisionDist:  4.0,
			TrailCollisionDist: 3.0,
			WallCollisionDist:  1.5,
			SlipstreamDistance: 6.0,
			SlipstreamAngle:    0.4,
		},
		Rubber: RubberConfig{
			BaseRubber:             1.0,
			ServerRubber:           4.0,
			RubberSpeed:            50.0,
			MinDistance:            0.001,
			MalusDuration:          0.3,
			MalusFactor:            0.2,
			DecayRate:              0.9,
			MaxRubber:              6.0,
			MinRubber:              0.1,
			EffectivenessThreshold: 0.4,
		},
	}
}

// Preset looks up a named preset. Names are case-insensitive.
func Preset(name string) (FullPhysicsConfig, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case PresetCompetitive, "":
		return Competitive(), nil
	case PresetCasual:
		return Casual(), nil
	default:
		return FullPhysicsConfig{}, invalidConfig("unknown preset " + name)
	}
}

// rule is one ordered validation step. The field must be finite before ok
// is consulted.
type rule struct {
	name  string
	value float64
	ok    bool
	msg   string
}

func firstViolation(rules ...rule) error {
	for _, r := range rules {
		if !isFinite(r.value) {
			return invalidConfig(r.name + " must be finite")
		}
		if !r.ok {
			return invalidConfig(r.msg)
		}
	}
	return nil
}
