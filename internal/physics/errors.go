package physics

import (
	"errors"
	"fmt"
)

// Error categories. Typed errors below match these with errors.Is.
var (
	ErrRubberMismatch = errors.New("rubber mismatch")
	ErrCollision      = errors.New("collision")
	ErrOutOfBounds    = errors.New("out of bounds")
	ErrInvalidConfig  = errors.New("invalid config")
	ErrInvalidState   = errors.New("invalid state")
)

// RubberMismatchError is returned when a client-reported rubber value
// disagrees with the server value by more than the tolerance.
type RubberMismatchError struct {
	Client    float64
	Server    float64
	Tolerance float64
}

func (e *RubberMismatchError) Error() string {
	return fmt.Sprintf("rubber mismatch: client=%g, server=%g, tolerance=%g", e.Client, e.Server, e.Tolerance)
}

func (e *RubberMismatchError) Is(target error) bool { return target == ErrRubberMismatch }

// CollisionError wraps a detected collision for layers that want a single
// error value. Detection itself reports through CollisionResult.
type CollisionError struct {
	PlayerID string
	Type     CollisionType
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("collision detected for %s: %s", e.PlayerID, e.Type)
}

func (e *CollisionError) Is(target error) bool { return target == ErrCollision }

// OutOfBoundsError reports a position outside the playable arena.
type OutOfBoundsError struct {
	X         float64
	Z         float64
	ArenaSize float64
}

func (e *OutOfBoundsError) Error() string {
	return fmt.Sprintf("out of bounds: (%g, %g) outside arena size %g", e.X, e.Z, e.ArenaSize)
}

func (e *OutOfBoundsError) Is(target error) bool { return target == ErrOutOfBounds }

// InvalidConfigError carries the first violated configuration rule.
type InvalidConfigError struct {
	Reason string
}

func (e *InvalidConfigError) Error() string {
	return "invalid config: " + e.Reason
}

func (e *InvalidConfigError) Is(target error) bool { return target == ErrInvalidConfig }

// InvalidStateError reports input that cannot be evaluated, such as
// non-finite coordinates.
type InvalidStateError struct {
	Reason string
}

func (e *InvalidStateError) Error() string {
	return "invalid state: " + e.Reason
}

func (e *InvalidStateError) Is(target error) bool { return target == ErrInvalidState }

func invalidConfig(reason string) error {
	return &InvalidConfigError{Reason: reason}
}
