package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightcycle/server/config"
	"github.com/lightcycle/server/internal/matchmaker"
	"github.com/lightcycle/server/internal/physics"
)

func newTestServer(t *testing.T, token string) *GameServer {
	t.Helper()

	cfg := config.DefaultServerConfig()
	cfg.AdminToken = token
	s, err := NewGameServer(cfg, physics.Competitive())
	require.NoError(t, err)
	return s
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("HOST", "127.0.0.1")
	t.Setenv("PORT", "9000")
	t.Setenv("ENABLE_CORS", "false")
	t.Setenv("PHYSICS_PRESET", "casual")
	t.Setenv("ARENA_SIZE", "150")
	t.Setenv("MAX_TRAIL_LENGTH", "not-a-number")
	t.Setenv("ADMIN_TOKEN", "secret")

	cfg := loadConfig()

	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, 9000, cfg.Port)
	assert.False(t, cfg.EnableCORS)
	assert.Equal(t, "casual", cfg.PhysicsPreset)
	assert.Equal(t, 150.0, cfg.ArenaSize)
	assert.Equal(t, config.DefaultMaxTrailLength, cfg.MaxTrailLength)
	assert.Equal(t, "secret", cfg.AdminToken)
}

func TestLoadConfigArenaSizeBounds(t *testing.T) {
	t.Setenv("ARENA_SIZE", "70000")
	assert.Equal(t, config.DefaultArenaSize, loadConfig().ArenaSize)

	t.Setenv("ARENA_SIZE", "3276")
	assert.Equal(t, 3276.0, loadConfig().ArenaSize)

	t.Setenv("ARENA_SIZE", "-5")
	assert.Equal(t, config.DefaultArenaSize, loadConfig().ArenaSize)
}

func TestHandleConfigGet(t *testing.T) {
	s := newTestServer(t, "")
	rec := httptest.NewRecorder()

	s.handleConfig(rec, httptest.NewRequest(http.MethodGet, "/config", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var got physics.FullPhysicsConfig
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, physics.Competitive(), got)
}

func TestHandleConfigPost(t *testing.T) {
	t.Run("disabled without token", func(t *testing.T) {
		s := newTestServer(t, "")
		rec := httptest.NewRecorder()

		s.handleConfig(rec, httptest.NewRequest(http.MethodPost, "/config?preset=casual", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong token", func(t *testing.T) {
		s := newTestServer(t, "secret")
		req := httptest.NewRequest(http.MethodPost, "/config?preset=casual", nil)
		req.Header.Set("Authorization", "Bearer nope")
		rec := httptest.NewRecorder()

		s.handleConfig(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, physics.Competitive(), s.matchmaker.PhysicsConfig())
	})

	t.Run("unknown preset", func(t *testing.T) {
		s := newTestServer(t, "secret")
		req := httptest.NewRequest(http.MethodPost, "/config?preset=arcade", nil)
		req.Header.Set("Authorization", "Bearer secret")
		rec := httptest.NewRecorder()

		s.handleConfig(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalid override is rejected", func(t *testing.T) {
		s := newTestServer(t, "secret")
		body := strings.NewReader(`{"rubber":{"decay_rate":1.5}}`)
		req := httptest.NewRequest(http.MethodPost, "/config?preset=casual", body)
		req.Header.Set("Authorization", "Bearer secret")
		rec := httptest.NewRecorder()

		s.handleConfig(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, physics.Competitive(), s.matchmaker.PhysicsConfig())
	})

	t.Run("preset with override", func(t *testing.T) {
		s := newTestServer(t, "secret")
		body := strings.NewReader(`{"collision":{"death_radius":3}}`)
		req := httptest.NewRequest(http.MethodPost, "/config?preset=casual", body)
		req.Header.Set("Authorization", "Bearer secret")
		rec := httptest.NewRecorder()

		s.handleConfig(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		want := physics.Casual()
		want.Collision.DeathRadius = 3
		assert.Equal(t, want, s.matchmaker.PhysicsConfig())
	})
}

func TestHandleStatsRoom(t *testing.T) {
	s := newTestServer(t, "")
	room := s.matchmaker.FindRoom()
	require.NotNil(t, room)
	t.Cleanup(room.Stop)

	rec := httptest.NewRecorder()
	s.handleStats(rec, httptest.NewRequest(http.MethodGet, "/stats?room="+room.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got matchmaker.RoomStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, room.ID, got.ID)

	rec = httptest.NewRecorder()
	s.handleStats(rec, httptest.NewRequest(http.MethodGet, "/stats?room=missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
