package game

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/lightcycle/server/internal/network"
	"github.com/lightcycle/server/internal/physics"
)

// PlayerState is a thread-safe snapshot used for broadcasts and stats.
type PlayerState struct {
	ID          uint16
	Name        string
	Color       uint8
	X           float64
	Z           float64
	DirX        float64
	DirZ        float64
	Speed       float64
	Rubber      float64
	MalusActive bool
	Alive       bool
	Ready       bool
	Slipstream  bool
}

// Flags packs the snapshot into network player flags.
func (s PlayerState) Flags() uint8 {
	var flags uint8
	if s.Alive {
		flags |= network.FlagAlive
	}
	if s.Slipstream {
		flags |= network.FlagSlipstream
	}
	if s.MalusActive {
		flags |= network.FlagMalusActive
	}
	if s.Ready {
		flags |= network.FlagReady
	}
	return flags
}

// Player represents a connected player
type Player struct {
	mu sync.RWMutex

	// Identity
	ID         uint16
	SessionID  string
	Name       string
	Color      uint8
	Connection PlayerConnection

	// Bike state as last accepted from the client
	X, Z       float64
	PrevX      float64 // position at the end of the previous physics tick
	PrevZ      float64
	DirX, DirZ float64
	Speed      float64
	Braking    bool
	Boosting   bool
	Alive      bool
	Ready      bool

	Rubber      *physics.RubberState
	Trail       *Trail
	trailDirty  bool
	turnPending bool
	slipstream  bool

	// Race standing
	Distance float64

	// Anti-cheat
	LastValidX     float64
	LastValidZ     float64
	Violations     int
	InputsThisTick int

	// Timing
	ConnectedAt  time.Time
	LastSyncTime time.Time
	DiedAt       time.Time
}

// PlayerConnection interface for network abstraction
type PlayerConnection interface {
	Send(data []byte) error
	Close() error
	RemoteAddr() string
}

// PlayerKey is the string identity used by the physics layer.
func PlayerKey(id uint16) string {
	return fmt.Sprintf("p%d", id)
}

// NewPlayer creates a new player. The player starts dead until placed on
// the spawn circle.
func NewPlayer(id uint16, sessionID, name string, color uint8, conn PlayerConnection, rubber *physics.RubberState, maxTrailLength float64) *Player {
	now := time.Now()
	return &Player{
		ID:           id,
		SessionID:    sessionID,
		Name:         name,
		Color:        color,
		Connection:   conn,
		Ready:        true,
		Rubber:       rubber,
		Trail:        NewTrail(PlayerKey(id), maxTrailLength),
		ConnectedAt:  now,
		LastSyncTime: now,
	}
}

// Key returns the player's physics identity.
func (p *Player) Key() string {
	return PlayerKey(p.ID)
}

// GetState returns a snapshot of player state (thread-safe)
func (p *Player) GetState() PlayerState {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return PlayerState{
		ID:          p.ID,
		Name:        p.Name,
		Color:       p.Color,
		X:           p.X,
		Z:           p.Z,
		DirX:        p.DirX,
		DirZ:        p.DirZ,
		Speed:       p.Speed,
		Rubber:      p.Rubber.Rubber,
		MalusActive: p.Rubber.MalusActive(),
		Alive:       p.Alive,
		Ready:       p.Ready,
		Slipstream:  p.slipstream,
	}
}

// PhysicsState returns the collision-facing view of the bike.
func (p *Player) PhysicsState() physics.PlayerState {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return physics.PlayerState{
		ID:    p.Key(),
		X:     p.X,
		Z:     p.Z,
		DirX:  p.DirX,
		DirZ:  p.DirZ,
		Alive: p.Alive,
	}
}

// IsAlive reports whether the bike is in play.
func (p *Player) IsAlive() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.Alive
}

// ApplySync copies an accepted client report onto the player. speed is the
// already clamped value.
func (p *Player) ApplySync(msg *network.SyncMessage, speed float64, now time.Time, acceptTrail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	x, z := float64(msg.X), float64(msg.Z)
	p.Distance += math.Hypot(x-p.X, z-p.Z)
	p.X, p.Z = x, z
	p.DirX, p.DirZ = float64(msg.DirX), float64(msg.DirZ)
	p.Speed = speed
	p.Braking = msg.Flags&network.SyncBraking != 0
	p.Boosting = msg.Flags&network.SyncBoosting != 0
	if msg.Flags&network.SyncTurnStarted != 0 {
		p.turnPending = true
	}
	p.LastSyncTime = now

	if acceptTrail && len(msg.Trail) > 0 {
		points := make([]physics.Point, len(msg.Trail))
		for i, tp := range msg.Trail {
			points[i] = physics.Point{X: float64(tp.X), Z: float64(tp.Z)}
		}
		p.Trail.Replace(points)
		p.trailDirty = true
	}
}

// TakeTurnPending returns and clears the turn-started marker.
func (p *Player) TakeTurnPending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	pending := p.turnPending
	p.turnPending = false
	return pending
}

// TakeTrailDirty returns the trail points if they changed since the last
// call.
func (p *Player) TakeTrailDirty() ([]network.TrailPoint, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.trailDirty {
		return nil, false
	}
	p.trailDirty = false

	pts := p.Trail.Points()
	out := make([]network.TrailPoint, len(pts))
	for i, pt := range pts {
		out[i] = network.TrailPoint{X: float32(pt.X), Z: float32(pt.Z)}
	}
	return out, true
}

// EndTick records the current position as the start of the next sweep.
func (p *Player) EndTick() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.PrevX, p.PrevZ = p.X, p.Z
}

// SetSlipstream sets the slipstream flag for the next broadcast.
func (p *Player) SetSlipstream(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.slipstream = on
}

// PlaceAt puts the bike back in play at a spawn point with a fresh trail.
func (p *Player) PlaceAt(x, z, dirX, dirZ float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.X, p.Z = x, z
	p.PrevX, p.PrevZ = x, z
	p.LastValidX, p.LastValidZ = x, z
	p.DirX, p.DirZ = dirX, dirZ
	p.Speed = 0
	p.Distance = 0
	p.Alive = true
	p.Braking = false
	p.Boosting = false
	p.turnPending = false
	p.slipstream = false
	p.Violations = 0
	p.LastSyncTime = time.Now()
	p.Trail.Clear()
	p.Trail.Append(physics.Point{X: x, Z: z})
	p.trailDirty = true
}

// Kill marks the bike as dead. Returns false if it was already dead.
func (p *Player) Kill() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.Alive {
		return false
	}

	p.Alive = false
	p.Speed = 0
	p.slipstream = false
	p.DiedAt = time.Now()
	return true
}

// SaveValidPosition stores the current position as the last valid one
func (p *Player) SaveValidPosition() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.LastValidX = p.X
	p.LastValidZ = p.Z
}

// ResetViolations clears the violation counter after a clean sync.
func (p *Player) ResetViolations() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Violations = 0
}

// RubberbandToValid resets position to last valid position
func (p *Player) RubberbandToValid() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.X = p.LastValidX
	p.Z = p.LastValidZ
}

// IncrementViolations adds a violation
func (p *Player) IncrementViolations() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Violations++
	return p.Violations
}

// ResetInputCount resets the input counter for this tick
func (p *Player) ResetInputCount() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.InputsThisTick = 0
}

// IncrementInputCount increments and returns the input count
func (p *Player) IncrementInputCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.InputsThisTick++
	return p.InputsThisTick
}
