package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load(New())
	require.NoError(t, err)

	assert.Equal(t, ":8081", cfg.Server.Addr)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Empty(t, cfg.Database.URL)
	assert.Equal(t, ":8080", cfg.Agent.Addr)
	assert.Equal(t, "test-doc", cfg.Agent.DocID)
	assert.True(t, cfg.Agent.Discovery)
	assert.Equal(t, 500*time.Millisecond, cfg.Agent.CaptureTimeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "ws://localhost:8081/ws/test-doc", cfg.Agent.DocURL())
}

func TestLoadWithConfigFile(t *testing.T) {
	t.Chdir(t.TempDir())
	content := `
server:
  addr: 0.0.0.0:9000
redis:
  addr: redis:6379
  db: 2
agent:
  doc_id: roadmap
  relay_url: wss://relay.example.com/
  capture_timeout: 1s
  discovery: false
log:
  level: debug
  development: true
`
	require.NoError(t, os.WriteFile("collabtext.yaml", []byte(content), 0o644))

	cfg, err := Load(New())
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Addr)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, time.Second, cfg.Agent.CaptureTimeout)
	assert.False(t, cfg.Agent.Discovery)
	assert.True(t, cfg.Log.Development)
	assert.Equal(t, "wss://relay.example.com/ws/roadmap", cfg.Agent.DocURL())
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("REDIS_ADDR", "cache:6380")
	t.Setenv("DATABASE_URL", "postgres://u:p@db/collabtext")
	t.Setenv("COLLABTEXT_AGENT_DOC_ID", "from-env")

	cfg, err := Load(New())
	require.NoError(t, err)

	assert.Equal(t, "cache:6380", cfg.Redis.Addr)
	assert.Equal(t, "postgres://u:p@db/collabtext", cfg.Database.URL)
	assert.Equal(t, "from-env", cfg.Agent.DocID)
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	cases := map[string]string{
		"log.level":       "verbose",
		"agent.relay_url": "http://relay",
		"agent.doc_id":    "",
		"server.addr":     "",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Chdir(t.TempDir())
			v := New()
			v.Set(key, value)
			_, err := Load(v)
			assert.ErrorContains(t, err, key)
		})
	}
}

func TestOfflineAgentHasNoDocURL(t *testing.T) {
	assert.Empty(t, AgentConfig{DocID: "x"}.DocURL())
}
