package network

// Message types
const (
	// Client -> Server
	MsgTypeSync      uint8 = 0x01
	MsgTypeJoinRoom  uint8 = 0x02
	MsgTypeLeaveRoom uint8 = 0x03
	MsgTypePing      uint8 = 0x04

	// Server -> Client
	MsgTypeStateUpdate uint8 = 0x10
	MsgTypePlayerJoin  uint8 = 0x11
	MsgTypePlayerLeave uint8 = 0x12
	MsgTypePlayerDeath uint8 = 0x13
	MsgTypeRoomInfo    uint8 = 0x14
	MsgTypePong        uint8 = 0x15
	MsgTypeRoundState  uint8 = 0x16
	MsgTypeTrailUpdate uint8 = 0x17
	MsgTypeError       uint8 = 0xFF
)

// Player flags in state updates
const (
	FlagAlive       uint8 = 1 << 0
	FlagSlipstream  uint8 = 1 << 1
	FlagMalusActive uint8 = 1 << 2
	FlagReady       uint8 = 1 << 3
)

// Sync flags (bit field)
const (
	SyncBraking     uint8 = 1 << 0
	SyncTurnLeft    uint8 = 1 << 1
	SyncTurnRight   uint8 = 1 << 2
	SyncTurnStarted uint8 = 1 << 3 // a new turn point was added since the last sync
	SyncBoosting    uint8 = 1 << 4
)

// Death causes, mirror physics.CollisionKind
const (
	DeathSelfTrail  uint8 = 0
	DeathOtherTrail uint8 = 1
	DeathWall       uint8 = 2
)

// Round phases
const (
	PhaseLobby     uint8 = 0
	PhaseCountdown uint8 = 1
	PhaseActive    uint8 = 2
	PhaseFinished  uint8 = 3
)

// Color palette - maps color index to hex
var ColorPalette = []uint32{
	0x00ffff, // Cyan
	0x00ff00, // Green
	0xff0000, // Red
	0xff00ff, // Magenta
	0xffff00, // Yellow
	0xff8800, // Orange
}

// TrailPoint is one turn point of a trail on the XZ plane.
type TrailPoint struct {
	X float32 `msgpack:"x"`
	Z float32 `msgpack:"z"`
}

// SyncMessage from client: bike state, client rubber and trail history.
// Fixed header is 29 bytes, followed by the msgpack trail blob.
type SyncMessage struct {
	MsgType  uint8
	Sequence uint8
	Flags    uint8
	X        float32
	Z        float32
	DirX     float32
	DirZ     float32
	Speed    float32
	Rubber   float32
	Trail    []TrailPoint
}

// JoinMessage from client
type JoinMessage struct {
	MsgType uint8
	Name    string
	Color   uint8
}

// PlayerStateData in state update (14 bytes per player)
type PlayerStateData struct {
	ID     uint16
	X      int16 // Scaled by 10
	Z      int16 // Scaled by 10
	DirX   int8  // Scaled to -127..127
	DirZ   int8  // Scaled to -127..127
	Speed  int16 // Scaled by 10
	Rubber uint16 // Scaled by 1000
	Flags  uint8
	Color  uint8
}

// PlayerDeathMessage to client
type PlayerDeathMessage struct {
	ID       uint16
	Cause    uint8
	KillerID uint16 // 0 when not killed by another trail
}

// RoundStateMessage to client
type RoundStateMessage struct {
	Phase     uint8
	Countdown uint8
	WinnerID  uint16
}

// Error codes
const (
	ErrorCodeInvalidMessage uint8 = 1
	ErrorCodeRoomFull       uint8 = 2
	ErrorCodeKicked         uint8 = 3
	ErrorCodeServerError    uint8 = 4
)
