package matchmaker

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/lightcycle/server/config"
	"github.com/lightcycle/server/internal/game"
	"github.com/lightcycle/server/internal/logger"
	"github.com/lightcycle/server/internal/physics"
)

// Matchmaker handles player matchmaking and room assignment
type Matchmaker struct {
	mu       sync.RWMutex
	rooms    map[string]*game.Room
	settings game.Settings
	log      *logger.Logger

	kicked atomic.Int64 // players kicked by anti-cheat since startup
}

// NewMatchmaker creates a matchmaker whose rooms use settings. Settings are
// validated here so room creation cannot fail on them later.
func NewMatchmaker(settings game.Settings) (*Matchmaker, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &Matchmaker{
		rooms:    make(map[string]*game.Room),
		settings: settings,
		log:      logger.New("matchmaker"),
	}, nil
}

// FindRoom finds an available room or creates a new one. Returns nil when
// the server is full.
func (m *Matchmaker) FindRoom() *game.Room {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, room := range m.rooms {
		if room.GetPlayerCount() < config.MaxPlayersPerRoom {
			return room
		}
	}

	return m.createRoomUnlocked(uuid.NewString())
}

// GetRoomStats returns statistics for a single room.
func (m *Matchmaker) GetRoomStats(roomID string) (RoomStats, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	room, ok := m.rooms[roomID]
	if !ok {
		return RoomStats{}, false
	}
	return roomStats(room), true
}

func (m *Matchmaker) createRoomUnlocked(roomID string) *game.Room {
	if len(m.rooms) >= config.MaxRoomsPerServer {
		return nil
	}

	room, err := game.NewRoom(roomID, m.settings)
	if err != nil {
		m.log.Printf("Failed to create room %s: %v", roomID, err)
		return nil
	}
	room.SetOnPlayerKick(func(p *game.Player, reason string) {
		m.kicked.Add(1)
		m.log.Printf("Session %s (%s) kicked from room %s: %s", p.SessionID, p.Name, roomID, reason)
	})
	m.rooms[roomID] = room
	room.Start()

	return room
}

// CleanupEmptyRooms removes all empty rooms
func (m *Matchmaker) CleanupEmptyRooms() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, room := range m.rooms {
		if room.IsEmpty() {
			room.Stop()
			delete(m.rooms, id)
			removed++
		}
	}

	return removed
}

// UpdatePhysics validates cfg and applies it to every room and to rooms
// created later. Nothing changes if cfg is invalid.
func (m *Matchmaker) UpdatePhysics(cfg physics.FullPhysicsConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.settings.Physics = cfg
	for id, room := range m.rooms {
		if err := room.UpdatePhysics(cfg); err != nil {
			m.log.Printf("Room %s rejected physics update: %v", id, err)
		}
	}
	return nil
}

// PhysicsConfig returns the bundle used for new rooms.
func (m *Matchmaker) PhysicsConfig() physics.FullPhysicsConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings.Physics
}

// GetStats returns matchmaker statistics
func (m *Matchmaker) GetStats() MatchmakerStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := MatchmakerStats{
		TotalRooms:    len(m.rooms),
		KickedPlayers: m.kicked.Load(),
		Rooms:         make([]RoomStats, 0, len(m.rooms)),
	}

	for _, room := range m.rooms {
		rs := roomStats(room)
		stats.TotalPlayers += rs.PlayerCount
		stats.Rooms = append(stats.Rooms, rs)
	}

	return stats
}

func roomStats(room *game.Room) RoomStats {
	return RoomStats{
		ID:          room.ID,
		PlayerCount: room.GetPlayerCount(),
		MaxPlayers:  config.MaxPlayersPerRoom,
		Phase:       room.Phase(),
	}
}

// MatchmakerStats contains matchmaker statistics
type MatchmakerStats struct {
	TotalRooms    int         `json:"rooms"`
	TotalPlayers  int         `json:"players"`
	KickedPlayers int64       `json:"kicked"`
	Rooms         []RoomStats `json:"room_list"`
}

// RoomStats contains room statistics
type RoomStats struct {
	ID          string `json:"id"`
	PlayerCount int    `json:"players"`
	MaxPlayers  int    `json:"max_players"`
	Phase       uint8  `json:"phase"`
}
