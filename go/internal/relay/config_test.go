package relay

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "3001", cfg.Port)
	assert.Equal(t, "reject", cfg.DuplicatePolicy)
	assert.Contains(t, cfg.AllowedOrigins, "http://localhost:5173")
	assert.Len(t, cfg.AllowedOrigins, 2)
	assert.Empty(t, cfg.Mirror.URL)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigLayersYAMLAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: "4000"
duplicate_policy: overwrite
allowed_origins:
  - http://board.local
connection:
  ping_interval: 5s
  read_timeout: 15s
mirror:
  url: nats://bus:4222
  publish_ticks: true
`), 0o600))

	t.Setenv("RELAY_PORT", "4100")
	t.Setenv("WS_SEND_BUFFER", "32")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "4100", cfg.Port)
	assert.Equal(t, "overwrite", cfg.DuplicatePolicy)
	assert.Equal(t, []string{"http://board.local"}, cfg.AllowedOrigins)
	assert.Equal(t, 5*time.Second, cfg.Connection.PingInterval)
	assert.Equal(t, 15*time.Second, cfg.Connection.ReadTimeout)
	assert.Equal(t, 10*time.Second, cfg.Connection.WriteTimeout)
	assert.Equal(t, 32, cfg.Connection.SendBufferSize)
	assert.Equal(t, "nats://bus:4222", cfg.Mirror.URL)
	assert.True(t, cfg.Mirror.PublishTicks)
	assert.Equal(t, "TIMERBOARD_EVENTS", cfg.Mirror.StreamName)
}

func TestLoadConfigEnvOrigins(t *testing.T) {
	t.Setenv("ALLOWED_ORIGINS", " http://a:5173, ,http://b:5173 ")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, []string{"http://a:5173", "http://b:5173"}, cfg.AllowedOrigins)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	t.Setenv("DUPLICATE_POLICY", "merge")
	_, err = LoadConfig("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Port = "http"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Connection.PingInterval = cfg.Connection.ReadTimeout
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Connection.SendBufferSize = 0
	assert.Error(t, cfg.Validate())
}

func TestAdvertisedURLs(t *testing.T) {
	urls := AdvertisedURLs("3001")
	require.NotEmpty(t, urls)
	assert.Equal(t, "http://localhost:3001", urls[0])
	for _, u := range urls[1:] {
		assert.NotContains(t, u, "127.0.0.1")
	}
}
