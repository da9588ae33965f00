// Package game runs light-cycle rounds: players, trails, anti-cheat and the
// per-room simulation loop.
package game

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lightcycle/server/config"
	"github.com/lightcycle/server/internal/logger"
	"github.com/lightcycle/server/internal/network"
	"github.com/lightcycle/server/internal/physics"
)

// Settings configures a room. Physics must pass Validate.
type Settings struct {
	Physics        physics.FullPhysicsConfig
	ArenaSize      float64
	MaxTrailLength float64
}

// Validate checks the physics bundle and that the arena fits the wire format.
func (s Settings) Validate() error {
	if err := s.Physics.Validate(); err != nil {
		return err
	}
	if math.IsNaN(s.ArenaSize) || s.ArenaSize > network.MaxArenaSize {
		return ErrArenaTooLarge
	}
	return nil
}

// DefaultSettings returns competitive physics on the default arena.
func DefaultSettings() Settings {
	return Settings{
		Physics:        physics.DefaultFullPhysicsConfig(),
		ArenaSize:      config.DefaultArenaSize,
		MaxTrailLength: config.DefaultMaxTrailLength,
	}
}

// Room is one arena with its own round and simulation loop.
//
// Each room has its own:
// - Collision and rubber simulation running at 60Hz
// - Network broadcast running at 20Hz
// - Round clock running at 1Hz
//
// Thread Safety:
// mu guards the player map, the round state and every player's rubber
// state. The physics tick and client syncs take the write lock; broadcasts
// take the read lock.
//
// IMPORTANT: Methods ending in "Unlocked" expect the caller to already
// hold the appropriate lock.
type Room struct {
	mu sync.RWMutex

	ID           string
	players      map[uint16]*Player
	nextPlayerID uint16

	engine         *physics.Engine
	antiCheat      *AntiCheat
	protocol       *network.Protocol
	arenaSize      float64
	maxTrailLength float64
	log            *logger.Logger

	// Round
	phase          uint8
	countdown      uint8
	winnerID       uint16
	finishedAt     time.Time
	standingsTimer float64

	tickCount uint64
	running   atomic.Bool
	stopChan  chan struct{}

	// Callbacks
	onPlayerKick func(player *Player, reason string)
}

// NewRoom creates a room. The room is not started automatically - call
// Start() to begin the game loop.
func NewRoom(id string, settings Settings) (*Room, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	engine, err := physics.NewEngine(settings.Physics)
	if err != nil {
		return nil, err
	}
	if settings.ArenaSize <= 0 {
		settings.ArenaSize = config.DefaultArenaSize
	}

	short := id
	if len(short) > 8 {
		short = short[:8]
	}

	return &Room{
		ID:             id,
		players:        make(map[uint16]*Player),
		nextPlayerID:   1, // 0 means "no player" on the wire
		engine:         engine,
		antiCheat:      NewAntiCheat(engine, settings.ArenaSize),
		protocol:       network.NewProtocol(),
		arenaSize:      settings.ArenaSize,
		maxTrailLength: settings.MaxTrailLength,
		log:            logger.New("room " + short),
		phase:          network.PhaseLobby,
		stopChan:       make(chan struct{}),
	}, nil
}

// Start begins the room's game loop in a separate goroutine.
// Safe to call multiple times - subsequent calls are no-ops.
func (r *Room) Start() {
	if r.running.Swap(true) {
		return
	}

	go r.gameLoop()
	r.log.Printf("Room %s started", r.ID)
}

// Stop stops the room's game loop.
// Safe to call multiple times - subsequent calls are no-ops.
func (r *Room) Stop() {
	if !r.running.Swap(false) {
		return
	}

	close(r.stopChan)
	r.log.Printf("Room %s stopped", r.ID)
}

// AddPlayer adds a new player to the room.
// Returns ErrRoomFull if the room is at capacity.
func (r *Room) AddPlayer(sessionID, name string, color uint8, conn PlayerConnection) (*Player, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.players) >= config.MaxPlayersPerRoom {
		return nil, ErrRoomFull
	}

	id := r.nextPlayerID
	r.nextPlayerID++

	rubber := r.engine.Rubber.NewState(PlayerKey(id))
	player := NewPlayer(id, sessionID, name, color, conn, rubber, r.maxTrailLength)
	r.players[id] = player

	joinMsg := r.protocol.EncodePlayerJoin(id, name, color)
	r.broadcastExceptUnlocked(joinMsg, id)

	roomInfo := r.protocol.EncodeRoomInfo(r.ID, uint8(len(r.players)), config.MaxPlayersPerRoom, id, r.arenaSize)
	player.Connection.Send(roomInfo)
	player.Connection.Send(r.protocol.EncodeRoundState(r.roundStateUnlocked()))

	r.log.Printf("Player %s (ID: %d) joined room %s", name, id, r.ID)

	return player, nil
}

// RemovePlayer removes a player from the room and notifies others.
// Safe to call with non-existent player IDs.
func (r *Room) RemovePlayer(playerID uint16) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.removePlayerUnlocked(playerID)
}

func (r *Room) removePlayerUnlocked(playerID uint16) {
	player, exists := r.players[playerID]
	if !exists {
		return
	}
	delete(r.players, playerID)

	player.Connection.Close()
	r.broadcastUnlocked(r.protocol.EncodePlayerLeave(playerID))
	r.log.Printf("Player %s (ID: %d) left room %s", player.Name, playerID, r.ID)

	if r.phase == network.PhaseActive {
		r.checkWinnerUnlocked()
	}
}

// HandleSync validates a client sync and applies it to the player.
func (r *Room) HandleSync(playerID uint16, msg *network.SyncMessage) {
	r.handleSync(playerID, msg, time.Now())
}

func (r *Room) handleSync(playerID uint16, msg *network.SyncMessage, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	player, exists := r.players[playerID]
	if !exists {
		return
	}

	// Anti-cheat: detect sync flooding
	if r.antiCheat.ValidateInputRate(player) == ValidationIgnoreInput {
		return
	}

	if r.phase != network.PhaseActive || !player.IsAlive() {
		return
	}

	dt := now.Sub(player.LastSyncTime).Seconds()
	dt = math.Min(math.Max(dt, config.PhysicsTickInterval), config.MaxSyncGap)
	verdict := r.antiCheat.ValidateSync(player, msg, dt)
	if verdict.Err != nil {
		r.log.Printf("Player %d sync: %v", playerID, verdict.Err)
	}

	switch verdict.Result {
	case ValidationKick:
		r.kickPlayerUnlocked(player, "Too many anti-cheat violations")

	case ValidationExplode:
		r.killUnlocked(player, physics.WallCollision(), 0)
		r.checkWinnerUnlocked()

	case ValidationRubberband:
		r.antiCheat.ApplyValidationResult(player, verdict)

	case ValidationValid:
		player.ApplySync(msg, verdict.Speed, now, verdict.AcceptTrail)
		r.antiCheat.ApplyValidationResult(player, verdict)
	}
}

// UpdatePhysics swaps the room's physics policy. The bundle is validated
// first; on error the active policy is left untouched.
func (r *Room) UpdatePhysics(cfg physics.FullPhysicsConfig) error {
	engine, err := physics.NewEngine(cfg)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.engine = engine
	r.antiCheat = NewAntiCheat(engine, r.arenaSize)
	for _, p := range r.players {
		engine.Rubber.Adopt(p.Rubber)
	}

	r.log.Printf("Room %s physics updated", r.ID)
	return nil
}

// PhysicsConfig returns the active physics policy.
func (r *Room) PhysicsConfig() physics.FullPhysicsConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.engine.Config
}

// GetPlayerCount returns the current number of players in the room.
func (r *Room) GetPlayerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.players)
}

// IsEmpty returns true if the room has no players.
func (r *Room) IsEmpty() bool {
	return r.GetPlayerCount() == 0
}

// Phase returns the current round phase.
func (r *Room) Phase() uint8 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.phase
}

// Winner returns the winner of the last finished round, 0 if none.
func (r *Room) Winner() uint16 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.winnerID
}

// gameLoop is the main game loop running in its own goroutine.
func (r *Room) gameLoop() {
	physicsTicker := time.NewTicker(time.Second / time.Duration(config.PhysicsTickRate))
	broadcastTicker := time.NewTicker(time.Second / time.Duration(config.NetworkBroadcastRate))
	roundTicker := time.NewTicker(time.Second)
	defer physicsTicker.Stop()
	defer broadcastTicker.Stop()
	defer roundTicker.Stop()

	lastPhysicsTime := time.Now()

	for {
		select {
		case <-r.stopChan:
			return

		case now := <-physicsTicker.C:
			dt := now.Sub(lastPhysicsTime).Seconds()
			lastPhysicsTime = now

			// Cap delta time after stalls
			if dt > config.MaxTickDelta {
				dt = config.MaxTickDelta
			}

			r.Tick(dt)

		case <-broadcastTicker.C:
			r.broadcastState()

		case now := <-roundTicker.C:
			r.TickRound(now)
		}
	}
}

// Tick runs one physics step.
func (r *Room) Tick(dt float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	players := r.sortedPlayersUnlocked()
	for _, p := range players {
		p.ResetInputCount()
	}

	if r.phase == network.PhaseActive {
		r.updatePhysicsUnlocked(players, dt)
	}

	for _, p := range players {
		p.EndTick()
	}
	atomic.AddUint64(&r.tickCount, 1)
}

type pendingDeath struct {
	player *Player
	kind   physics.CollisionType
	killer uint16
}

// updatePhysicsUnlocked advances rubber, detects collisions and applies the
// resulting deaths. Players are processed in ID order and all checks see the
// same positions; deaths are applied once every player has been checked.
func (r *Room) updatePhysicsUnlocked(players []*Player, dt float64) {
	alive := make([]*Player, 0, len(players))
	for _, p := range players {
		if p.IsAlive() {
			alive = append(alive, p)
		}
	}

	for _, p := range alive {
		r.engine.Rubber.Update(p.Rubber, dt)
		if p.TakeTurnPending() {
			r.engine.Rubber.ApplyMalus(p.Rubber, r.engine.Config.Rubber.MalusDuration, config.TurnMalusFactor)
		}
	}

	r.standingsTimer += dt
	if r.standingsTimer >= config.StandingsPeriod {
		r.standingsTimer -= config.StandingsPeriod
		r.applyStandingsUnlocked(alive)
	}

	var deaths []pendingDeath
	for _, p := range alive {
		if d, hit := r.detectCollisionUnlocked(p, alive); hit {
			deaths = append(deaths, d)
		}
	}

	for _, d := range deaths {
		r.killUnlocked(d.player, d.kind, d.killer)
	}

	for _, follower := range alive {
		if !follower.IsAlive() {
			continue
		}
		fs := follower.PhysicsState()
		slip := false
		for _, leader := range alive {
			if leader == follower || !leader.IsAlive() {
				continue
			}
			if r.engine.Collision.CheckSlipstream(fs, leader.PhysicsState()) {
				slip = true
				break
			}
		}
		follower.SetSlipstream(slip)
	}

	if len(deaths) > 0 {
		r.checkWinnerUnlocked()
	}
}

// detectCollisionUnlocked returns the first lethal hit for p: the wall, then
// the swept movement since the last tick, then proximity to each trail.
func (r *Room) detectCollisionUnlocked(p *Player, alive []*Player) (pendingDeath, bool) {
	state := p.PhysicsState()

	if res := r.engine.Collision.CheckWall(state.X, state.Z, r.arenaSize); res.Collided {
		return pendingDeath{player: p, kind: *res.Type}, true
	}

	p.mu.RLock()
	prev := physics.Point{X: p.PrevX, Z: p.PrevZ}
	p.mu.RUnlock()
	curr := state.Position()

	for _, owner := range alive {
		segs := r.trailSegmentsUnlocked(p, owner)
		if len(segs) == 0 {
			continue
		}

		if prev.Sub(curr).LenSquared() >= physics.EPS*physics.EPS {
			if res := physics.ContinuousCollisionCheck(prev, curr, segs); res.Collided {
				return r.trailDeath(p, owner), true
			}
		}

		if res := r.engine.Collision.CheckTrail(state, owner.Key(), segs); res.Collided {
			return r.trailDeath(p, owner), true
		}
	}

	return pendingDeath{}, false
}

// trailSegmentsUnlocked returns the part of owner's trail that p can hit.
func (r *Room) trailSegmentsUnlocked(p, owner *Player) []physics.Segment {
	owner.mu.RLock()
	defer owner.mu.RUnlock()

	if p == owner {
		return owner.Trail.SegmentsForSelfCheck()
	}
	return owner.Trail.SegmentsWithHead(physics.Point{X: owner.X, Z: owner.Z})
}

func (r *Room) trailDeath(p, owner *Player) pendingDeath {
	if p == owner {
		return pendingDeath{player: p, kind: physics.SelfTrailCollision()}
	}
	return pendingDeath{player: p, kind: physics.OtherTrailCollision(owner.Key()), killer: owner.ID}
}

// applyStandingsUnlocked gives bikes behind the leader extra rubber. Standing
// is by distance travelled this round.
func (r *Room) applyStandingsUnlocked(alive []*Player) {
	if len(alive) < 2 {
		return
	}

	ranked := make([]*Player, len(alive))
	copy(ranked, alive)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Distance > ranked[j].Distance
	})

	total := uint32(len(ranked))
	for i, p := range ranked {
		r.engine.Rubber.IncreaseForPosition(p.Rubber, uint32(i+1), total)
	}
}

func (r *Room) killUnlocked(p *Player, kind physics.CollisionType, killer uint16) {
	if !p.Kill() {
		return
	}

	r.log.Printf("Player %s (ID: %d) died: %v", p.Name, p.ID, &physics.CollisionError{PlayerID: p.Key(), Type: kind})

	msg := r.protocol.EncodePlayerDeath(network.PlayerDeathMessage{
		ID:       p.ID,
		Cause:    deathCause(kind.Kind),
		KillerID: killer,
	})
	r.broadcastUnlocked(msg)
}

func deathCause(kind physics.CollisionKind) uint8 {
	switch kind {
	case physics.SelfTrail:
		return network.DeathSelfTrail
	case physics.OtherTrail:
		return network.DeathOtherTrail
	default:
		return network.DeathWall
	}
}

// TickRound advances the round clock. Called once per second.
func (r *Room) TickRound(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ready := r.readyCountUnlocked()

	switch r.phase {
	case network.PhaseLobby:
		if ready >= config.MinPlayersToStart {
			r.respawnUnlocked()
		}

	case network.PhaseCountdown:
		if ready < config.MinPlayersToStart {
			r.setPhaseUnlocked(network.PhaseLobby)
			return
		}
		if r.countdown > 0 {
			r.countdown--
		}
		if r.countdown == 0 {
			r.setPhaseUnlocked(network.PhaseActive)
			return
		}
		r.broadcastRoundStateUnlocked()

	case network.PhaseFinished:
		if now.Sub(r.finishedAt) < config.RespawnDelay {
			return
		}
		if ready >= config.MinPlayersToStart {
			r.respawnUnlocked()
		} else {
			r.setPhaseUnlocked(network.PhaseLobby)
		}
	}
}

// Respawn places every player on the spawn circle and starts a countdown.
func (r *Room) Respawn() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.respawnUnlocked()
}

// respawnUnlocked spreads players evenly on a circle facing the centre,
// resets their rubber and trails, and starts the countdown.
func (r *Room) respawnUnlocked() {
	players := r.sortedPlayersUnlocked()
	radius := math.Min(config.SpawnRadius, r.arenaSize/2)

	for i, p := range players {
		angle := 2 * math.Pi * float64(i) / float64(len(players))
		cos, sin := math.Cos(angle), math.Sin(angle)
		p.PlaceAt(radius*cos, radius*sin, -cos, -sin)
		r.engine.Rubber.Reset(p.Rubber)
	}

	r.winnerID = 0
	r.standingsTimer = 0
	r.countdown = config.CountdownSeconds
	r.setPhaseUnlocked(network.PhaseCountdown)
}

// checkWinnerUnlocked ends an active round once at most one bike is alive.
func (r *Room) checkWinnerUnlocked() {
	if r.phase != network.PhaseActive {
		return
	}

	var alive []*Player
	for _, p := range r.sortedPlayersUnlocked() {
		if p.IsAlive() {
			alive = append(alive, p)
		}
	}
	if len(alive) > 1 {
		return
	}

	r.winnerID = 0
	if len(alive) == 1 {
		r.winnerID = alive[0].ID
		r.log.Printf("Player %s (ID: %d) won the round", alive[0].Name, alive[0].ID)
	}
	r.finishedAt = time.Now()
	r.setPhaseUnlocked(network.PhaseFinished)
}

func (r *Room) setPhaseUnlocked(phase uint8) {
	r.phase = phase
	if phase != network.PhaseCountdown {
		r.countdown = 0
	}
	r.broadcastRoundStateUnlocked()
}

func (r *Room) roundStateUnlocked() network.RoundStateMessage {
	return network.RoundStateMessage{
		Phase:     r.phase,
		Countdown: r.countdown,
		WinnerID:  r.winnerID,
	}
}

func (r *Room) broadcastRoundStateUnlocked() {
	r.broadcastUnlocked(r.protocol.EncodeRoundState(r.roundStateUnlocked()))
}

func (r *Room) readyCountUnlocked() int {
	n := 0
	for _, p := range r.players {
		if p.Ready {
			n++
		}
	}
	return n
}

func (r *Room) sortedPlayersUnlocked() []*Player {
	players := make([]*Player, 0, len(r.players))
	for _, p := range r.players {
		players = append(players, p)
	}
	sort.Slice(players, func(i, j int) bool { return players[i].ID < players[j].ID })
	return players
}

// broadcastState sends positions, flags and changed trails to all players.
func (r *Room) broadcastState() {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.players) == 0 {
		return
	}

	players := r.sortedPlayersUnlocked()
	stateData := make([]network.PlayerStateData, len(players))
	for i, p := range players {
		s := p.GetState()
		stateData[i] = network.ConvertToPlayerStateData(
			s.ID, s.X, s.Z, s.DirX, s.DirZ, s.Speed, s.Rubber, s.Flags(), s.Color,
		)
	}

	tick := uint16(atomic.LoadUint64(&r.tickCount) & 0xFFFF)
	r.broadcastUnlocked(r.protocol.EncodeStateUpdate(tick, stateData))

	for _, p := range players {
		points, dirty := p.TakeTrailDirty()
		if !dirty {
			continue
		}
		msg, err := r.protocol.EncodeTrailUpdate(p.ID, points)
		if err != nil {
			r.log.Printf("Failed to encode trail for player %d: %v", p.ID, err)
			continue
		}
		r.broadcastUnlocked(msg)
	}
}

// broadcastUnlocked sends a message to all players.
// IMPORTANT: Caller must hold the room lock (read or write).
func (r *Room) broadcastUnlocked(data []byte) {
	for _, p := range r.players {
		if err := p.Connection.Send(data); err != nil {
			// Connection cleanup handles disconnects
			r.log.Printf("Failed to send to player %d: %v", p.ID, err)
		}
	}
}

// broadcastExceptUnlocked sends a message to all players except one.
// IMPORTANT: Caller must hold the room lock (read or write).
func (r *Room) broadcastExceptUnlocked(data []byte, exceptID uint16) {
	for id, p := range r.players {
		if id == exceptID {
			continue
		}
		if err := p.Connection.Send(data); err != nil {
			r.log.Printf("Failed to send to player %d: %v", p.ID, err)
		}
	}
}

// kickPlayerUnlocked removes a player due to anti-cheat violations.
// IMPORTANT: Caller must hold the write lock.
func (r *Room) kickPlayerUnlocked(p *Player, reason string) {
	r.log.Printf("Kicking player %s (ID: %d): %s", p.Name, p.ID, reason)

	p.Connection.Send(r.protocol.EncodeError(network.ErrorCodeKicked, reason))
	r.removePlayerUnlocked(p.ID)

	if r.onPlayerKick != nil {
		r.onPlayerKick(p, reason)
	}
}

// SetOnPlayerKick sets a callback function called when a player is kicked.
// The callback runs with the room lock held and must not call back into the
// room.
func (r *Room) SetOnPlayerKick(callback func(player *Player, reason string)) {
	r.onPlayerKick = callback
}

// Error definitions
var (
	ErrRoomFull      = &RoomError{message: "room is full"}
	ErrArenaTooLarge = &RoomError{message: "arena size exceeds the wire limit"}
)

// RoomError represents an error related to room operations.
type RoomError struct {
	message string
}

func (e *RoomError) Error() string {
	return e.message
}
