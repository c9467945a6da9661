package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	t.Setenv("DIAGDESK_BACKEND", "https://backend.example.com/")
	yamlContent := `
backend:
  base_url: "${DIAGDESK_BACKEND}"
storage:
  driver: sqlite
  sqlite_path: "/tmp/diagdesk.db"
booking:
  settle_delay_ms: 250
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0o644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "https://backend.example.com", cfg.Backend.BaseURL)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, 250*time.Millisecond, cfg.Booking.SettleDelay())
	assert.Equal(t, 500*time.Millisecond, cfg.Booking.CloseDelay())
	assert.Equal(t, 10, cfg.Booking.PageSize)
	assert.Equal(t, 0, cfg.Backend.TimeoutSeconds)
	assert.Contains(t, cfg.Backend.LabReportURL, "%s")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("backend:\n  base_url: http://localhost:5000\n"))
	require.NoError(t, err)

	assert.Equal(t, "diagdesk", cfg.App.Name)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, 8080, cfg.API.HTTP.Port)
	assert.Equal(t, 8081, cfg.API.GRPC.Port)
	assert.Equal(t, 12, cfg.API.Auth.TokenTTLHours)
	assert.Equal(t, "diagdesk", cfg.API.Auth.Issuer)
	assert.Equal(t, 20, cfg.Bot.RateLimitMessages)
	assert.Equal(t, "exports", cfg.Exports.Path)
}

func TestParse_RejectsReportTemplate(t *testing.T) {
	_, err := Parse([]byte("backend:\n  base_url: http://localhost:5000\n  lab_report_url: https://lab/report\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lab_report_url")
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Backend: BackendConfig{BaseURL: "http://localhost:5000"},
			Storage: StorageConfig{Driver: "memory"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing base url", mutate: func(c *Config) { c.Backend.BaseURL = "" }, wantErr: true},
		{name: "relative base url", mutate: func(c *Config) { c.Backend.BaseURL = "/api" }, wantErr: true},
		{name: "negative timeout", mutate: func(c *Config) { c.Backend.TimeoutSeconds = -1 }, wantErr: true},
		{name: "report url template", mutate: func(c *Config) { c.Backend.LabReportURL = "https://lab/r?TestID=%s&pct=100%%" }},
		{name: "report url without verb", mutate: func(c *Config) { c.Backend.LabReportURL = "https://lab/r?TestID=" }, wantErr: true},
		{name: "report url with two verbs", mutate: func(c *Config) { c.Backend.LabReportURL = "https://lab/%s/r?TestID=%s" }, wantErr: true},
		{name: "report url with other verb", mutate: func(c *Config) { c.Backend.LabReportURL = "https://lab/r?TestID=%s&n=%d" }, wantErr: true},
		{name: "unknown driver", mutate: func(c *Config) { c.Storage.Driver = "etcd" }, wantErr: true},
		{name: "sqlite without path", mutate: func(c *Config) { c.Storage.Driver = "sqlite" }, wantErr: true},
		{name: "redis without address", mutate: func(c *Config) { c.Storage.Driver = "redis" }, wantErr: true},
		{
			name: "redis with address",
			mutate: func(c *Config) {
				c.Storage.Driver = "redis"
				c.Redis.Address = "localhost:6379"
			},
		},
		{name: "negative delay", mutate: func(c *Config) { c.Booking.CloseDelayMS = -5 }, wantErr: true},
		{name: "api without secret", mutate: func(c *Config) { c.API.Enabled = true }, wantErr: true},
		{
			name: "api with secret",
			mutate: func(c *Config) {
				c.API.Enabled = true
				c.API.Auth.JWTSecret = "s3cret"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateBot(t *testing.T) {
	cfg := Config{}
	assert.Error(t, cfg.ValidateBot())
	cfg.Telegram.BotToken = "YOUR_BOT_TOKEN_HERE"
	assert.Error(t, cfg.ValidateBot())
	cfg.Telegram.BotToken = "123:abc"
	assert.NoError(t, cfg.ValidateBot())
}
