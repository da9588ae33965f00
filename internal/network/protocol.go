package network

import (
	"encoding/binary"
	"errors"
	"math"
)

var (
	ErrInvalidMessage = errors.New("invalid message")
	ErrBufferTooSmall = errors.New("buffer too small")
)

// syncHeaderSize is type, sequence, flags, six float32 values and the
// trail blob length.
const syncHeaderSize = 3 + 6*4 + 2

// MaxArenaSize is the largest arena half-size whose positions fit the int16
// coordinates of a state update.
const MaxArenaSize = float64(math.MaxInt16) / 10

// Protocol handles binary encoding/decoding
type Protocol struct{}

// NewProtocol creates a new protocol handler
func NewProtocol() *Protocol {
	return &Protocol{}
}

// DecodeSync decodes a client sync message
func (p *Protocol) DecodeSync(data []byte) (*SyncMessage, error) {
	if len(data) < syncHeaderSize {
		return nil, ErrBufferTooSmall
	}

	if data[0] != MsgTypeSync {
		return nil, ErrInvalidMessage
	}

	msg := &SyncMessage{
		MsgType:  data[0],
		Sequence: data[1],
		Flags:    data[2],
		X:        readFloat32(data[3:]),
		Z:        readFloat32(data[7:]),
		DirX:     readFloat32(data[11:]),
		DirZ:     readFloat32(data[15:]),
		Speed:    readFloat32(data[19:]),
		Rubber:   readFloat32(data[23:]),
	}

	trailLen := int(binary.LittleEndian.Uint16(data[27:29]))
	if len(data) < syncHeaderSize+trailLen {
		return nil, ErrBufferTooSmall
	}

	trail, err := DecodeTrail(data[syncHeaderSize : syncHeaderSize+trailLen])
	if err != nil {
		return nil, err
	}
	msg.Trail = trail

	return msg, nil
}

// EncodeSync encodes a sync message. Used by bots and tests.
func (p *Protocol) EncodeSync(msg *SyncMessage) ([]byte, error) {
	var blob []byte
	if len(msg.Trail) > 0 {
		var err error
		if blob, err = EncodeTrail(msg.Trail); err != nil {
			return nil, err
		}
	}
	if len(blob) > math.MaxUint16 {
		return nil, ErrInvalidMessage
	}

	buf := make([]byte, syncHeaderSize+len(blob))
	buf[0] = MsgTypeSync
	buf[1] = msg.Sequence
	buf[2] = msg.Flags
	writeFloat32(buf[3:], msg.X)
	writeFloat32(buf[7:], msg.Z)
	writeFloat32(buf[11:], msg.DirX)
	writeFloat32(buf[15:], msg.DirZ)
	writeFloat32(buf[19:], msg.Speed)
	writeFloat32(buf[23:], msg.Rubber)
	binary.LittleEndian.PutUint16(buf[27:29], uint16(len(blob)))
	copy(buf[syncHeaderSize:], blob)

	return buf, nil
}

// DecodeJoin decodes a join message
func (p *Protocol) DecodeJoin(data []byte) (*JoinMessage, error) {
	if len(data) < 3 {
		return nil, ErrBufferTooSmall
	}

	if data[0] != MsgTypeJoinRoom {
		return nil, ErrInvalidMessage
	}

	nameLen := int(data[1])
	if len(data) < 3+nameLen {
		return nil, ErrBufferTooSmall
	}

	return &JoinMessage{
		MsgType: data[0],
		Name:    string(data[2 : 2+nameLen]),
		Color:   data[2+nameLen],
	}, nil
}

// EncodeStateUpdate encodes a state update message
func (p *Protocol) EncodeStateUpdate(tick uint16, players []PlayerStateData) []byte {
	playerCount := len(players)
	if playerCount > 255 {
		playerCount = 255
	}

	// Header: 4 bytes + 14 bytes per player
	buf := make([]byte, 4+playerCount*14)

	buf[0] = MsgTypeStateUpdate
	binary.LittleEndian.PutUint16(buf[1:3], tick)
	buf[3] = uint8(playerCount)

	offset := 4
	for i := 0; i < playerCount; i++ {
		p.encodePlayerState(buf[offset:], players[i])
		offset += 14
	}

	return buf
}

// encodePlayerState encodes a single player (14 bytes)
func (p *Protocol) encodePlayerState(buf []byte, player PlayerStateData) {
	binary.LittleEndian.PutUint16(buf[0:2], player.ID)
	binary.LittleEndian.PutUint16(buf[2:4], uint16(player.X))
	binary.LittleEndian.PutUint16(buf[4:6], uint16(player.Z))
	buf[6] = uint8(player.DirX)
	buf[7] = uint8(player.DirZ)
	binary.LittleEndian.PutUint16(buf[8:10], uint16(player.Speed))
	binary.LittleEndian.PutUint16(buf[10:12], player.Rubber)
	buf[12] = player.Flags
	buf[13] = player.Color
}

// EncodePlayerJoin encodes a player join message
func (p *Protocol) EncodePlayerJoin(id uint16, name string, color uint8) []byte {
	nameBytes := []byte(name)
	if len(nameBytes) > 255 {
		nameBytes = nameBytes[:255]
	}

	buf := make([]byte, 5+len(nameBytes))
	buf[0] = MsgTypePlayerJoin
	binary.LittleEndian.PutUint16(buf[1:3], id)
	buf[3] = uint8(len(nameBytes))
	copy(buf[4:], nameBytes)
	buf[4+len(nameBytes)] = color

	return buf
}

// EncodePlayerLeave encodes a player leave message
func (p *Protocol) EncodePlayerLeave(id uint16) []byte {
	buf := make([]byte, 3)
	buf[0] = MsgTypePlayerLeave
	binary.LittleEndian.PutUint16(buf[1:3], id)
	return buf
}

// EncodePlayerDeath encodes a player death message
func (p *Protocol) EncodePlayerDeath(msg PlayerDeathMessage) []byte {
	buf := make([]byte, 6)
	buf[0] = MsgTypePlayerDeath
	binary.LittleEndian.PutUint16(buf[1:3], msg.ID)
	buf[3] = msg.Cause
	binary.LittleEndian.PutUint16(buf[4:6], msg.KillerID)
	return buf
}

// DecodePlayerDeath decodes a player death message
func (p *Protocol) DecodePlayerDeath(data []byte) (*PlayerDeathMessage, error) {
	if len(data) < 6 {
		return nil, ErrBufferTooSmall
	}
	if data[0] != MsgTypePlayerDeath {
		return nil, ErrInvalidMessage
	}
	return &PlayerDeathMessage{
		ID:       binary.LittleEndian.Uint16(data[1:3]),
		Cause:    data[3],
		KillerID: binary.LittleEndian.Uint16(data[4:6]),
	}, nil
}

// EncodeRoundState encodes a round state message
func (p *Protocol) EncodeRoundState(msg RoundStateMessage) []byte {
	buf := make([]byte, 5)
	buf[0] = MsgTypeRoundState
	buf[1] = msg.Phase
	buf[2] = msg.Countdown
	binary.LittleEndian.PutUint16(buf[3:5], msg.WinnerID)
	return buf
}

// DecodeRoundState decodes a round state message
func (p *Protocol) DecodeRoundState(data []byte) (*RoundStateMessage, error) {
	if len(data) < 5 {
		return nil, ErrBufferTooSmall
	}
	if data[0] != MsgTypeRoundState {
		return nil, ErrInvalidMessage
	}
	return &RoundStateMessage{
		Phase:     data[1],
		Countdown: data[2],
		WinnerID:  binary.LittleEndian.Uint16(data[3:5]),
	}, nil
}

// EncodeTrailUpdate encodes a player's accepted trail history
func (p *Protocol) EncodeTrailUpdate(id uint16, points []TrailPoint) ([]byte, error) {
	blob, err := EncodeTrail(points)
	if err != nil {
		return nil, err
	}
	if len(blob) > math.MaxUint16 {
		return nil, ErrInvalidMessage
	}

	buf := make([]byte, 5+len(blob))
	buf[0] = MsgTypeTrailUpdate
	binary.LittleEndian.PutUint16(buf[1:3], id)
	binary.LittleEndian.PutUint16(buf[3:5], uint16(len(blob)))
	copy(buf[5:], blob)
	return buf, nil
}

// EncodeRoomInfo encodes room info message
func (p *Protocol) EncodeRoomInfo(roomID string, playerCount, maxPlayers uint8, yourID uint16, arenaSize float64) []byte {
	roomIDBytes := []byte(roomID)
	if len(roomIDBytes) > 255 {
		roomIDBytes = roomIDBytes[:255]
	}

	buf := make([]byte, 8+len(roomIDBytes))
	buf[0] = MsgTypeRoomInfo
	buf[1] = uint8(len(roomIDBytes))
	copy(buf[2:], roomIDBytes)
	offset := 2 + len(roomIDBytes)
	buf[offset] = playerCount
	buf[offset+1] = maxPlayers
	binary.LittleEndian.PutUint16(buf[offset+2:], yourID)
	binary.LittleEndian.PutUint16(buf[offset+4:], uint16(clampFloat(arenaSize, 0, math.MaxUint16)))

	return buf
}

// EncodePong encodes a pong message
func (p *Protocol) EncodePong(timestamp uint64) []byte {
	buf := make([]byte, 9)
	buf[0] = MsgTypePong
	binary.LittleEndian.PutUint64(buf[1:9], timestamp)
	return buf
}

// EncodeError encodes an error message
func (p *Protocol) EncodeError(code uint8, message string) []byte {
	msgBytes := []byte(message)
	if len(msgBytes) > 255 {
		msgBytes = msgBytes[:255]
	}

	buf := make([]byte, 3+len(msgBytes))
	buf[0] = MsgTypeError
	buf[1] = code
	buf[2] = uint8(len(msgBytes))
	copy(buf[3:], msgBytes)

	return buf
}

// ConvertToPlayerStateData converts game state to network format
func ConvertToPlayerStateData(id uint16, x, z, dirX, dirZ, speed, rubber float64, flags, color uint8) PlayerStateData {
	return PlayerStateData{
		ID:     id,
		X:      int16(clampFloat(x*10, math.MinInt16, math.MaxInt16)),
		Z:      int16(clampFloat(z*10, math.MinInt16, math.MaxInt16)),
		DirX:   int8(clampFloat(dirX*127, -127, 127)),
		DirZ:   int8(clampFloat(dirZ*127, -127, 127)),
		Speed:  int16(clampFloat(speed*10, math.MinInt16, math.MaxInt16)),
		Rubber: uint16(clampFloat(rubber*1000, 0, math.MaxUint16)),
		Flags:  flags,
		Color:  color,
	}
}

func readFloat32(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}

func writeFloat32(b []byte, v float32) {
	binary.LittleEndian.PutUint32(b, math.Float32bits(v))
}

func clampFloat(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
