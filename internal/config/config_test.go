package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, 5, cfg.ContextWindowSize)
	require.Equal(t, 30, cfg.TopicMaxRunes)
	require.Equal(t, "next_image", cfg.PassPolicy)
	require.Equal(t, 2, cfg.PassThreshold)
	require.Equal(t, 60*time.Second, cfg.GatewayTimeout)
	require.Equal(t, "turn_jobs", cfg.RabbitQueue)
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "think-first.yaml")
	body := []byte("pass_policy: threshold\npass_threshold: 3\ngateway_timeout: 15s\nreasoning_provider: ollama\n")
	require.NoError(t, os.WriteFile(path, body, 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PASS_THRESHOLD", "4")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("CORS_ORIGINS", "http://localhost:5173, https://think.example.com")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "threshold", cfg.PassPolicy)
	require.Equal(t, 4, cfg.PassThreshold)
	require.Equal(t, 15*time.Second, cfg.GatewayTimeout)
	require.Equal(t, "ollama", cfg.ReasoningProvider)
	require.Empty(t, cfg.RedisAddr)
	require.Equal(t, []string{"http://localhost:5173", "https://think.example.com"}, cfg.CORSOrigins)
}

func TestLoad_BadFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := Load()
	require.Error(t, err)
}
