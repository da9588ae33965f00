// Package main implements the light-cycle arena game server.
//
// Architecture Overview:
// - Uses WebSocket for real-time bidirectional communication with clients
// - Clients simulate their own bikes and sync state; the server validates
// - Each room runs collision and rubber checks at 60Hz
// - State updates are broadcast to clients at 20Hz
//
// Connection Flow:
// 1. Client connects via WebSocket to /ws endpoint
// 2. Client sends JoinRoom message with player name and color
// 3. Server assigns player to a room (creates new one if needed)
// 4. Server sends RoomInfo back to client with assigned player ID
// 5. Client sends Sync messages, server broadcasts StateUpdate messages
package main

import (
	"crypto/subtle"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/lightcycle/server/config"
	"github.com/lightcycle/server/internal/game"
	"github.com/lightcycle/server/internal/matchmaker"
	"github.com/lightcycle/server/internal/network"
	"github.com/lightcycle/server/internal/physics"
)

// maxMessageSize bounds a single client frame. A sync with a full trail
// blob is the largest message.
const maxMessageSize = 32 * 1024

// GameServer is the main server instance that manages all connections and rooms.
// It handles WebSocket upgrades and routes messages to appropriate handlers.
type GameServer struct {
	config     *config.ServerConfig   // Server configuration (host, port, admin token)
	matchmaker *matchmaker.Matchmaker // Manages game rooms and player assignment
	protocol   *network.Protocol      // Binary protocol encoder/decoder
	upgrader   websocket.Upgrader     // HTTP to WebSocket upgrader

	connMu      sync.Mutex
	connections map[*ClientConnection]bool // Active client connections
}

// ClientConnection represents a single connected client.
// Each client has its own goroutines for reading and writing messages.
type ClientConnection struct {
	ws        *websocket.Conn // The underlying WebSocket connection
	server    *GameServer     // Reference to parent server
	sessionID string          // Random ID used in logs and kick reports
	player    *game.Player    // Player instance (nil until joined a room)
	room      *game.Room      // Room instance (nil until joined a room)
	sendChan  chan []byte     // Buffered channel for outgoing messages
	done      chan struct{}   // Closed on shutdown
	closeOnce sync.Once
}

func main() {
	// Include file and line numbers in log output
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// .env first, then the environment overrides the defaults
	if err := config.LoadEnv(); err != nil {
		log.Fatalf("Config error: %v", err)
	}
	cfg := loadConfig()

	// Refuse to start on an invalid physics bundle
	physicsCfg, err := config.LoadPhysics(cfg)
	if err != nil {
		log.Fatalf("Physics config error: %v", err)
	}

	// Create and start the game server
	server, err := NewGameServer(cfg, physicsCfg)
	if err != nil {
		log.Fatalf("Server setup error: %v", err)
	}

	// Print startup banner with configuration
	log.Printf("=================================")
	log.Printf("  Light Cycle Arena Server")
	log.Printf("=================================")
	log.Printf("  Host: %s", cfg.Host)
	log.Printf("  Port: %d", cfg.Port)
	log.Printf("  Physics Preset: %s", cfg.PhysicsPreset)
	log.Printf("  Arena Size: %.0f", cfg.ArenaSize)
	log.Printf("  Physics Rate: %d Hz", config.PhysicsTickRate)
	log.Printf("  Broadcast Rate: %d Hz", config.NetworkBroadcastRate)
	log.Printf("  Max Players/Room: %d", config.MaxPlayersPerRoom)
	log.Printf("  Max Rooms: %d", config.MaxRoomsPerServer)
	log.Printf("=================================")

	// Start the server (blocks until error or shutdown)
	if err := server.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// loadConfig reads configuration from environment variables.
// Falls back to default values if environment variables are not set.
func loadConfig() *config.ServerConfig {
	cfg := config.DefaultServerConfig()

	// Override defaults with environment variables if set
	if host := os.Getenv("HOST"); host != "" {
		cfg.Host = host
	}

	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Port = p
		}
	}

	// CORS can be disabled for production behind a reverse proxy
	if cors := os.Getenv("ENABLE_CORS"); cors == "false" {
		cfg.EnableCORS = false
	}

	if preset := os.Getenv("PHYSICS_PRESET"); preset != "" {
		cfg.PhysicsPreset = preset
	}
	cfg.PhysicsConfigFile = os.Getenv("PHYSICS_CONFIG_FILE")
	// An empty token leaves POST /config disabled
	cfg.AdminToken = os.Getenv("ADMIN_TOKEN")

	if size := os.Getenv("ARENA_SIZE"); size != "" {
		// Positions travel as int16 tenths, so larger arenas cannot be encoded
		if v, err := strconv.ParseFloat(size, 64); err == nil && v > 0 && v <= network.MaxArenaSize {
			cfg.ArenaSize = v
		} else {
			log.Printf("Ignoring ARENA_SIZE=%q, want 0 < size <= %.1f", size, network.MaxArenaSize)
		}
	}

	if length := os.Getenv("MAX_TRAIL_LENGTH"); length != "" {
		if v, err := strconv.ParseFloat(length, 64); err == nil && v >= 0 {
			cfg.MaxTrailLength = v
		}
	}

	return cfg
}

// NewGameServer creates and initializes a new game server instance.
func NewGameServer(cfg *config.ServerConfig, physicsCfg physics.FullPhysicsConfig) (*GameServer, error) {
	mm, err := matchmaker.NewMatchmaker(game.Settings{
		Physics:        physicsCfg,
		ArenaSize:      cfg.ArenaSize,
		MaxTrailLength: cfg.MaxTrailLength,
	})
	if err != nil {
		return nil, err
	}

	return &GameServer{
		config:     cfg,
		matchmaker: mm,
		protocol:   network.NewProtocol(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// CheckOrigin controls CORS for WebSocket connections.
			// In production, consider implementing a whitelist of allowed origins.
			CheckOrigin: func(r *http.Request) bool {
				return cfg.EnableCORS
			},
		},
		connections: make(map[*ClientConnection]bool),
	}, nil
}

// Start begins listening for connections and runs background tasks.
// This method blocks until the server is shut down.
func (s *GameServer) Start() error {
	// Background task: Clean up empty rooms every 30 seconds
	// Stopping them also ends their game loop goroutines
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for range ticker.C {
			removed := s.matchmaker.CleanupEmptyRooms()
			if removed > 0 {
				log.Printf("Cleaned up %d empty rooms", removed)
			}
		}
	}()

	// Background task: Log server statistics every 5 minutes (only when active)
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()

		for range ticker.C {
			stats := s.matchmaker.GetStats()
			if stats.TotalRooms > 0 || stats.TotalPlayers > 0 {
				log.Printf("Stats: %d rooms, %d total players", stats.TotalRooms, stats.TotalPlayers)
			}
		}
	}()

	// Register HTTP endpoints
	http.HandleFunc("/ws", s.handleWebSocket)  // WebSocket game connections
	http.HandleFunc("/health", s.handleHealth) // Health check for load balancers
	http.HandleFunc("/stats", s.handleStats)   // Server statistics endpoint
	http.HandleFunc("/config", s.handleConfig) // Physics config, POST needs ADMIN_TOKEN

	// Start HTTP server
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	log.Printf("Server listening on %s", addr)

	return http.ListenAndServe(addr, nil)
}

// handleHealth responds to health check requests.
// Used by load balancers and container orchestrators.
func (s *GameServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// handleStats returns current server statistics as JSON.
// ?room=<id> narrows the response to a single room.
func (s *GameServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if id := r.URL.Query().Get("room"); id != "" {
		rs, ok := s.matchmaker.GetRoomStats(id)
		if !ok {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, rs)
		return
	}
	writeJSON(w, http.StatusOK, s.matchmaker.GetStats())
}

// handleConfig returns the active physics bundle on GET. POST swaps it:
// ?preset= selects the base and an optional JSON body overrides fields.
// Requires ADMIN_TOKEN; disabled when no token is configured.
func (s *GameServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.matchmaker.PhysicsConfig())
		return
	case http.MethodPost:
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !s.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	cfg, err := physics.Preset(r.URL.Query().Get("preset"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// Optional JSON override on top of the preset
	body, err := io.ReadAll(io.LimitReader(r.Body, 64*1024))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}
	if len(strings.TrimSpace(string(body))) > 0 {
		if cfg, err = config.ApplyPhysicsOverrides(cfg, body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	if err := s.matchmaker.UpdatePhysics(cfg); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	log.Printf("Physics config updated from %s", r.RemoteAddr)
	writeJSON(w, http.StatusOK, cfg)
}

// authorized checks the Bearer token in constant time.
func (s *GameServer) authorized(r *http.Request) bool {
	if s.config.AdminToken == "" {
		return false
	}
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.config.AdminToken)) == 1
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to write response: %v", err)
	}
}

// handleWebSocket upgrades HTTP connections to WebSocket and manages client lifecycle.
// Each client gets two goroutines: one for reading, one for writing.
func (s *GameServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Upgrade HTTP connection to WebSocket
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	// Create new client connection with buffered send channel
	// Buffer size of 256 prevents blocking on slow clients
	conn := &ClientConnection{
		ws:        ws,
		server:    s,
		sessionID: uuid.NewString(),
		sendChan:  make(chan []byte, 256),
		done:      make(chan struct{}),
	}

	// Track connection so cleanup runs exactly once
	s.connMu.Lock()
	s.connections[conn] = true
	s.connMu.Unlock()

	log.Printf("New connection %s from %s", conn.sessionID, ws.RemoteAddr())

	// Start read and write goroutines
	// These run until the connection is closed
	go conn.writePump()
	go conn.readPump()
}

// Send queues data to be sent to the client.
// Non-blocking: drops message if buffer is full (prevents slow clients from blocking server).
func (c *ClientConnection) Send(data []byte) error {
	select {
	case c.sendChan <- data:
		return nil
	case <-c.done:
		return fmt.Errorf("connection closed")
	default:
		// Buffer full - drop message to prevent blocking
		// The next state update supersedes this one
		return nil
	}
}

// Close gracefully shuts down the connection.
// Safe to call multiple times.
func (c *ClientConnection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.ws.Close()
	})
	return err
}

// RemoteAddr returns the client's IP address for logging.
func (c *ClientConnection) RemoteAddr() string {
	return c.ws.RemoteAddr().String()
}

// writePump handles sending messages to the client.
// Runs in its own goroutine. Also sends periodic pings to detect dead connections.
func (c *ClientConnection) writePump() {
	// Ping every 30 seconds to keep connection alive and detect disconnects
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	// Closing the socket ends readPump, which owns cleanup
	defer c.Close()

	for {
		select {
		case <-c.done:
			return

		case message := <-c.sendChan:
			// Set write deadline to prevent hanging on slow/dead connections
			c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.ws.WriteMessage(websocket.BinaryMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			// Send WebSocket ping frame
			c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump handles receiving messages from the client.
// Runs in its own goroutine. Messages are dispatched to appropriate handlers.
func (c *ClientConnection) readPump() {
	defer c.cleanup()

	// Limit message size to prevent memory exhaustion attacks
	c.ws.SetReadLimit(maxMessageSize)
	// Set initial read deadline (extended on each pong)
	c.ws.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	// Main read loop
	for {
		select {
		case <-c.done:
			return
		default:
		}

		_, message, err := c.ws.ReadMessage()
		if err != nil {
			// Only log unexpected errors (not normal disconnects)
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("Read error: %v", err)
			}
			return
		}

		c.handleMessage(message)
	}
}

// handleMessage dispatches incoming messages to appropriate handlers based on message type.
// Message type is always the first byte of the binary message.
func (c *ClientConnection) handleMessage(data []byte) {
	if len(data) == 0 {
		return
	}

	// First byte is always the message type
	switch data[0] {
	case network.MsgTypeJoinRoom:
		c.handleJoin(data)

	case network.MsgTypeSync:
		c.handleSync(data)

	case network.MsgTypePing:
		c.handlePing(data)

	case network.MsgTypeLeaveRoom:
		c.handleLeave()

	default:
		c.Send(c.server.protocol.EncodeError(network.ErrorCodeInvalidMessage, "unknown message type"))
	}
}

// handleJoin processes a player's request to join a game room.
// Validates the player name, finds/creates a room, and sends room info back.
func (c *ClientConnection) handleJoin(data []byte) {
	// Already in a room
	if c.room != nil {
		return
	}

	// Decode the join message
	msg, err := c.server.protocol.DecodeJoin(data)
	if err != nil {
		log.Printf("Invalid join message from %s: %v", c.RemoteAddr(), err)
		return
	}

	// Validate player name (basic sanitization)
	name := strings.TrimSpace(msg.Name)
	if name == "" {
		name = "Rider"
	}
	// Limit name length to prevent abuse
	if len(name) > 20 {
		name = name[:20]
	}
	color := msg.Color % uint8(len(network.ColorPalette))

	// Find an available room or create a new one
	room := c.server.matchmaker.FindRoom()
	if room == nil {
		// Server is at capacity
		c.Send(c.server.protocol.EncodeError(network.ErrorCodeRoomFull, "Server full"))
		return
	}

	// Add player to the room; it sends RoomInfo and the round state
	player, err := room.AddPlayer(c.sessionID, name, color, c)
	if err != nil {
		c.Send(c.server.protocol.EncodeError(network.ErrorCodeRoomFull, err.Error()))
		return
	}

	// Store references for this connection
	c.player = player
	c.room = room
}

// handleSync forwards a client state report to the room's anti-cheat.
// The room validates it before anything is applied.
func (c *ClientConnection) handleSync(data []byte) {
	// Ignore syncs from clients not in a room
	if c.player == nil || c.room == nil {
		return
	}

	msg, err := c.server.protocol.DecodeSync(data)
	if err != nil {
		c.Send(c.server.protocol.EncodeError(network.ErrorCodeInvalidMessage, err.Error()))
		return
	}

	c.room.HandleSync(c.player.ID, msg)
}

// handlePing responds to client ping with a pong containing the same timestamp.
// Used by clients to measure round-trip latency.
func (c *ClientConnection) handlePing(data []byte) {
	// Ping message format: [type:1][timestamp:8]
	if len(data) >= 9 {
		c.Send(c.server.protocol.EncodePong(binary.LittleEndian.Uint64(data[1:9])))
	}
}

// handleLeave processes a player's request to leave the current room.
func (c *ClientConnection) handleLeave() {
	if c.room != nil && c.player != nil {
		c.room.RemovePlayer(c.player.ID)
		c.player = nil
		c.room = nil
	}
}

// cleanup removes the connection from tracking and cleans up resources.
// Called when connection is closed (either gracefully or due to error).
func (c *ClientConnection) cleanup() {
	// Remove from server's connection map
	c.server.connMu.Lock()
	_, tracked := c.server.connections[c]
	delete(c.server.connections, c)
	c.server.connMu.Unlock()

	if !tracked {
		return
	}

	// Remove player from room if they were in one
	if c.room != nil && c.player != nil {
		c.room.RemovePlayer(c.player.ID)
	}

	c.Close()
	log.Printf("Connection closed: %s", c.sessionID)
}
