// Package physics is the server-authoritative validation core: segment
// geometry, trail and wall collision, rubber-band catch-up and the
// configuration bundles both depend on.
//
// Every function is synchronous and holds no state of its own. Trails,
// players and rubber records belong to the caller. Checks may run in
// parallel across players as long as trail and config snapshots are not
// modified during a tick.
package physics

// ValidatePhysicsState is the position check for a client update. It
// rejects non-finite coordinates and positions outside the arena.
func ValidatePhysicsState(playerID string, x, z, arenaSize float64, cfg CollisionConfig) error {
	if !isFinite(x) || !isFinite(z) {
		return &InvalidStateError{Reason: "non-finite position for " + playerID}
	}
	return CheckArenaBounds(x, z, arenaSize, cfg.WallCollisionDist)
}

// Engine groups a validated bundle with its detector and rubber engine.
type Engine struct {
	Config    FullPhysicsConfig
	Collision *Detector
	Rubber    *RubberEngine
}

// NewEngine validates cfg and builds the engine. An invalid bundle is
// returned as an error and no engine is created.
func NewEngine(cfg FullPhysicsConfig) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		Config:    cfg,
		Collision: NewDetector(cfg.Collision),
		Rubber:    NewRubberEngine(cfg.Rubber),
	}, nil
}
