package game

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lightcycle/server/internal/network"
)

type fakeConn struct {
	mu     sync.Mutex
	sent   [][]byte
	closed bool
}

func (c *fakeConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sent = append(c.sent, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	return nil
}

func (c *fakeConn) RemoteAddr() string {
	return "test"
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// messages returns every sent message of the given type.
func (c *fakeConn) messages(msgType uint8) [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out [][]byte
	for _, m := range c.sent {
		if len(m) > 0 && m[0] == msgType {
			out = append(out, m)
		}
	}
	return out
}

func newTestRoom(t *testing.T) *Room {
	t.Helper()

	r, err := NewRoom("test-room", DefaultSettings())
	require.NoError(t, err)
	return r
}

// addPlayers joins n players and returns their connections by player ID.
func addPlayers(t *testing.T, r *Room, n int) map[uint16]*fakeConn {
	t.Helper()

	conns := make(map[uint16]*fakeConn, n)
	for i := 0; i < n; i++ {
		conn := &fakeConn{}
		p, err := r.AddPlayer("session", "rider", uint8(i), conn)
		require.NoError(t, err)
		conns[p.ID] = conn
	}
	return conns
}

// startRound respawns everyone and runs the countdown to an active round.
func startRound(t *testing.T, r *Room) {
	t.Helper()

	r.Respawn()
	for i := 0; i < 3; i++ {
		r.TickRound(time.Now())
	}
	require.Equal(t, network.PhaseActive, r.Phase(), "round should be active")
}
