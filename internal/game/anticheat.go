package game

import (
	"errors"
	"math"

	"github.com/lightcycle/server/config"
	"github.com/lightcycle/server/internal/network"
	"github.com/lightcycle/server/internal/physics"
)

// ValidationResult represents the result of anti-cheat validation
type ValidationResult int

const (
	ValidationValid ValidationResult = iota
	ValidationRubberband
	ValidationExplode
	ValidationKick
	ValidationIgnoreInput
)

func (r ValidationResult) String() string {
	switch r {
	case ValidationValid:
		return "valid"
	case ValidationRubberband:
		return "rubberband"
	case ValidationExplode:
		return "explode"
	case ValidationKick:
		return "kick"
	case ValidationIgnoreInput:
		return "ignore"
	default:
		return "unknown"
	}
}

// SyncVerdict is the outcome of checking one client sync.
type SyncVerdict struct {
	Result      ValidationResult
	Speed       float64 // reported speed, clamped to the allowed maximum
	AcceptTrail bool
	Clean       bool  // no violation was recorded
	Err         error // first physics error found, if any
}

// AntiCheat validates client reports against the room's physics policy.
type AntiCheat struct {
	engine    *physics.Engine
	arenaSize float64
}

// NewAntiCheat creates a new anti-cheat validator
func NewAntiCheat(engine *physics.Engine, arenaSize float64) *AntiCheat {
	return &AntiCheat{engine: engine, arenaSize: arenaSize}
}

// ValidateSync checks a client sync against the player's server state. dt
// is the time since the player's previous accepted sync.
//
// Checks run in order: physics state, distance moved, reported speed,
// rubber, trail points. A broken physics state or an impossible move stops
// the check; the remaining checks only add violations.
func (ac *AntiCheat) ValidateSync(p *Player, msg *network.SyncMessage, dt float64) SyncVerdict {
	x, z := float64(msg.X), float64(msg.Z)
	cfg := ac.engine.Config

	err := physics.ValidatePhysicsState(p.Key(), x, z, ac.arenaSize, cfg.Collision)
	if err == nil && !allFinite(float64(msg.DirX), float64(msg.DirZ), float64(msg.Speed)) {
		err = &physics.InvalidStateError{Reason: "non-finite direction or speed for " + p.Key()}
	}
	if err != nil {
		v := SyncVerdict{Result: ValidationRubberband, Err: err}
		if errors.Is(err, physics.ErrOutOfBounds) {
			v.Result = ValidationExplode
			return v
		}
		v.Result = ac.violation(p, ValidationRubberband)
		return v
	}

	p.mu.RLock()
	moved := math.Hypot(x-p.LastValidX, z-p.LastValidZ)
	p.mu.RUnlock()

	topSpeed := math.Max(cfg.Physics.MaxSpeed, ac.engine.Rubber.SpeedModifier(p.Rubber, cfg.Physics.BoostSpeed))
	if moved > topSpeed*dt*config.SpeedTolerance {
		return SyncVerdict{Result: ac.violation(p, ValidationRubberband)}
	}

	v := SyncVerdict{Result: ValidationValid, Speed: float64(msg.Speed), AcceptTrail: true, Clean: true}

	maxReported := cfg.Physics.MaxSpeed * config.SpeedTolerance
	if math.Abs(v.Speed) > maxReported {
		v.Speed = math.Copysign(cfg.Physics.MaxSpeed, v.Speed)
		v.Clean = false
		v.Result = ac.violation(p, ValidationValid)
	}

	if err := ac.engine.Rubber.Validate(float64(msg.Rubber), p.Rubber); err != nil {
		v.Err = err
		v.Clean = false
		v.Result = worse(v.Result, ac.violation(p, ValidationValid))
	}

	if !ac.trailValid(msg.Trail) {
		v.AcceptTrail = false
		v.Clean = false
		v.Result = worse(v.Result, ac.violation(p, ValidationValid))
	}

	return v
}

// ValidateInputRate checks if player is sending too many syncs this tick
func (ac *AntiCheat) ValidateInputRate(p *Player) ValidationResult {
	count := p.IncrementInputCount()

	if count > config.MaxInputsPerTick {
		return ValidationIgnoreInput
	}

	return ValidationValid
}

// ApplyValidationResult applies the position side of a verdict. Deaths and
// kicks need the room and are handled by the caller.
func (ac *AntiCheat) ApplyValidationResult(p *Player, v SyncVerdict) {
	switch v.Result {
	case ValidationRubberband:
		p.RubberbandToValid()

	case ValidationValid:
		p.SaveValidPosition()
		if v.Clean {
			p.ResetViolations()
		}
	}
}

// trailValid rejects reported turn points that are not finite or lie
// outside the arena.
func (ac *AntiCheat) trailValid(points []network.TrailPoint) bool {
	for _, tp := range points {
		x, z := float64(tp.X), float64(tp.Z)
		if !allFinite(x, z) {
			return false
		}
		if ac.engine.Collision.CheckArenaBounds(x, z, ac.arenaSize) != nil {
			return false
		}
	}
	return true
}

func (ac *AntiCheat) violation(p *Player, otherwise ValidationResult) ValidationResult {
	if p.IncrementViolations() > config.MaxViolations {
		return ValidationKick
	}
	return otherwise
}

func worse(a, b ValidationResult) ValidationResult {
	if b == ValidationKick {
		return b
	}
	return a
}

func allFinite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
