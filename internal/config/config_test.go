package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "127.0.0.1:8080", cfg.Addr())
	assert.Empty(t, cfg.AllowedOrigins)
	assert.NoError(t, cfg.CheckExposure())
	assert.Equal(t, ".parcel", cfg.DataDir)
	assert.Equal(t, 4096, cfg.ChunkSize)
	assert.Equal(t, 1_000_000, cfg.PipeCapacity)
	assert.Equal(t, int64(8<<20), cfg.StreamThreshold)
	assert.Equal(t, 3, cfg.MaxUploads)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, "info", cfg.LogLevel)
	require.NoError(t, cfg.Validate())
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("PARCEL_SERVER", "https://files.example.com/")
	t.Setenv("PARCEL_TOKEN", "tok")
	t.Setenv("PARCEL_PORT", "9090")
	t.Setenv("PARCEL_CHUNK_SIZE", "64KiB")
	t.Setenv("PARCEL_STREAM_THRESHOLD", "1m")
	t.Setenv("PARCEL_TIMEOUT", "2m")
	t.Setenv("PARCEL_LOG_LEVEL", "DEBUG")
	t.Setenv("PARCEL_DEV", "true")
	t.Setenv("PARCEL_UPLOAD_ROOT", "/srv/outbox")
	t.Setenv("PARCEL_PROXY", "socks5://127.0.0.1:1080")
	t.Setenv("PARCEL_HOST", "::1")
	t.Setenv("PARCEL_ALLOWED_ORIGINS", "https://app.example.com, http://localhost:5173,")

	cfg := Load()

	assert.Equal(t, "https://files.example.com", cfg.Server)
	assert.Equal(t, "tok", cfg.Token)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 64<<10, cfg.ChunkSize)
	assert.Equal(t, int64(1<<20), cfg.StreamThreshold)
	assert.Equal(t, 2*time.Minute, cfg.Timeout)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.Dev)
	assert.Equal(t, "/srv/outbox", cfg.UploadRoot)
	assert.Equal(t, "socks5://127.0.0.1:1080", cfg.Proxy)
	assert.Equal(t, "[::1]:9090", cfg.Addr())
	assert.Equal(t, []string{"https://app.example.com", "http://localhost:5173"}, cfg.AllowedOrigins)
	require.NoError(t, cfg.Validate())
	require.NoError(t, cfg.RequireServer())
}

func TestLoad_BadValuesFallBack(t *testing.T) {
	t.Setenv("PARCEL_PORT", "eighty")
	t.Setenv("PARCEL_CHUNK_SIZE", "lots")
	t.Setenv("PARCEL_TIMEOUT", "soon")

	cfg := Load()
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 4096, cfg.ChunkSize)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"bad port", func(c *Config) { c.Port = 0 }, true},
		{"bad server", func(c *Config) { c.Server = "not a url" }, true},
		{"no data dir", func(c *Config) { c.DataDir = "" }, true},
		{"zero chunk", func(c *Config) { c.ChunkSize = 0 }, true},
		{"too many uploads", func(c *Config) { c.MaxUploads = 100 }, true},
		{"unknown level", func(c *Config) { c.LogLevel = "loud" }, true},
		{"bad origin", func(c *Config) { c.AllowedOrigins = []string{"not an origin"} }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load()
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	assert.Error(t, (&Config{}).RequireServer())
}

func TestCheckExposure(t *testing.T) {
	tests := []struct {
		host   string
		apiKey string
		ok     bool
	}{
		{"", "", true},
		{"127.0.0.1", "", true},
		{"localhost", "", true},
		{"::1", "", true},
		{"0.0.0.0", "", false},
		{"192.168.1.10", "", false},
		{"nas.lan", "", false},
		{"0.0.0.0", "k", true},
	}
	for _, tt := range tests {
		c := &Config{Host: tt.host, Port: 8080, APIKey: tt.apiKey}
		if tt.ok {
			assert.NoError(t, c.CheckExposure(), tt.host)
		} else {
			assert.Error(t, c.CheckExposure(), tt.host)
		}
	}
}
