package config

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_CreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docchat.yaml")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	_, err = os.Stat(path)
	require.NoError(t, err, "default config written")

	assert.Equal(t, 8090, cfg.Server.Port)
	assert.Equal(t, "http://localhost:8000/ask", cfg.AskURL())
	assert.Equal(t, "http://localhost:8000/upload-pdf", cfg.UploadURL())
	assert.Equal(t, "123", cfg.Chat.UserID)
	assert.Equal(t, "pdf-server", cfg.Chat.ResponderID)
	assert.True(t, filepath.IsAbs(cfg.Upload.StagingDirectory))

	again, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLoadConfig_FileValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "docchat.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
backend:
  base_url: https://qa.example.com/api/
  upload_url: https://ingest.example.com/upload-pdf
  ask_timeout_seconds: 5
upload:
  drop_directory: drops
  sniff_content: true
`), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "https://qa.example.com/api/ask", cfg.AskURL())
	assert.Equal(t, "https://ingest.example.com/upload-pdf", cfg.UploadURL())
	assert.Equal(t, filepath.Join(dir, "drops"), cfg.Upload.DropDirectory)
	assert.True(t, cfg.Upload.SniffContent)
	assert.Equal(t, 300, cfg.Backend.UploadTimeout, "unset keys keep defaults")
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("DOCCHAT_BACKEND_URL", "http://backend:8000")
	t.Setenv("DOCCHAT_LOG_LEVEL", "debug")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "docchat.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "http://backend:8000/ask", cfg.AskURL())
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadConfig_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docchat.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend: [not, a, map]"), 0644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*AppConfig)
	}{
		{"bad port", func(c *AppConfig) { c.Server.Port = 0 }},
		{"empty base url", func(c *AppConfig) { c.Backend.BaseURL = "" }},
		{"relative base url", func(c *AppConfig) { c.Backend.BaseURL = "localhost" }},
		{"zero ask timeout", func(c *AppConfig) { c.Backend.AskTimeout = 0 }},
		{"negative upload timeout", func(c *AppConfig) { c.Backend.UploadTimeout = -1 }},
		{"same participants", func(c *AppConfig) { c.Chat.ResponderID = c.Chat.UserID }},
		{"bad size", func(c *AppConfig) { c.Upload.MaxFileSize = "lots" }},
	}

	require.NoError(t, DefaultConfig().Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestParseSize(t *testing.T) {
	tests := map[string]int64{
		"":     0,
		"100":  100,
		"4K":   4 << 10,
		"64M":  64 << 20,
		"2G":   2 << 30,
		"10mb": 10 << 20,
	}
	for in, want := range tests {
		got, err := ParseSize(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseSize("-1")
	assert.Error(t, err)
}

func TestRequestBodyLimit(t *testing.T) {
	cfg := DefaultConfig()

	// 50M of PDF is about 67M once base64 encoded.
	limit, err := ParseSize(cfg.RequestBodyLimit())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, limit, int64(base64.StdEncoding.EncodedLen(50<<20)))

	cfg.Server.BodyLimit = "1G"
	assert.Equal(t, "1G", cfg.RequestBodyLimit())

	cfg.Server.BodyLimit = ""
	assert.Empty(t, cfg.RequestBodyLimit())

	cfg.Server.BodyLimit = "64M"
	cfg.Upload.MaxFileSize = ""
	assert.Equal(t, "64M", cfg.RequestBodyLimit())
}

func TestEnsureDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Upload.StagingDirectory = filepath.Join(dir, "staging")
	cfg.Upload.DropDirectory = filepath.Join(dir, "drops")

	require.NoError(t, cfg.EnsureDirectories())
	for _, d := range []string{cfg.Upload.StagingDirectory, cfg.Upload.DropDirectory} {
		info, err := os.Stat(d)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}
