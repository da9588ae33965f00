package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/lightcycle/server/internal/physics"
)

// Server constants - the physics policy itself lives in physics.FullPhysicsConfig
const (
	// Network
	PhysicsTickRate      = 60 // Hz
	NetworkBroadcastRate = 20 // Hz
	PhysicsTickInterval  = 1.0 / float64(PhysicsTickRate)
	BroadcastInterval    = 1.0 / float64(NetworkBroadcastRate)
	MaxTickDelta         = 0.1 // seconds, caps dt after stalls

	// Arena
	DefaultArenaSize      = 200.0 // half-size, arena spans -size..+size
	DefaultMaxTrailLength = 200.0
	SpawnRadius           = 100.0

	// Room settings
	MaxPlayersPerRoom = 6
	MaxRoomsPerServer = 50
	MinPlayersToStart = 2

	// Round flow
	CountdownSeconds = 3
	RespawnDelay     = 3 * time.Second
	StandingsPeriod  = 1.0 // seconds between position-based rubber increases

	// Anti-cheat
	MaxViolations    = 5
	SpeedTolerance   = 1.1 // 10% tolerance
	MaxInputsPerTick = 3
	MaxSyncGap       = 0.25 // seconds, caps the movement budget of a late sync
	TurnMalusFactor  = 1.0 // malus factor requested on each reported turn
)

// ServerConfig is the process configuration.
type ServerConfig struct {
	Host              string
	Port              int
	EnableCORS        bool
	AdminToken        string
	PhysicsPreset     string
	PhysicsConfigFile string
	ArenaSize         float64
	MaxTrailLength    float64
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Host:           "0.0.0.0",
		Port:           8080,
		EnableCORS:     true,
		PhysicsPreset:  physics.PresetCompetitive,
		ArenaSize:      DefaultArenaSize,
		MaxTrailLength: DefaultMaxTrailLength,
	}
}

// LoadEnv loads a .env file into the process environment if one exists.
func LoadEnv(filenames ...string) error {
	err := godotenv.Load(filenames...)
	if err != nil && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load env: %w", err)
	}
	log.Println("Loaded environment from .env")
	return nil
}

// LoadPhysics resolves the configured preset, applies the optional JSON
// override file on top of it and validates the result.
func LoadPhysics(cfg *ServerConfig) (physics.FullPhysicsConfig, error) {
	full, err := physics.Preset(cfg.PhysicsPreset)
	if err != nil {
		return physics.FullPhysicsConfig{}, err
	}

	if cfg.PhysicsConfigFile != "" {
		data, err := os.ReadFile(cfg.PhysicsConfigFile)
		if err != nil {
			return physics.FullPhysicsConfig{}, fmt.Errorf("read physics config: %w", err)
		}
		if full, err = ApplyPhysicsOverrides(full, data); err != nil {
			return physics.FullPhysicsConfig{}, err
		}
	}

	if err := full.Validate(); err != nil {
		return physics.FullPhysicsConfig{}, err
	}
	return full, nil
}

// ApplyPhysicsOverrides decodes JSON onto base. Fields absent from the
// document keep their base values.
func ApplyPhysicsOverrides(base physics.FullPhysicsConfig, data []byte) (physics.FullPhysicsConfig, error) {
	if err := json.Unmarshal(data, &base); err != nil {
		return physics.FullPhysicsConfig{}, fmt.Errorf("decode physics config: %w", err)
	}
	return base, nil
}
