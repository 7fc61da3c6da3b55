package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.App.Environment)
	assert.Equal(t, DriverMemory, cfg.Store.Driver)
	assert.Equal(t, 3, cfg.Store.MaxAttempts)
	assert.Equal(t, 90, cfg.Progress.AutoCompleteThreshold)
	assert.Equal(t, 15*time.Second, cfg.App.ShutdownTimeout)
	assert.Equal(t, time.UTC.String(), cfg.App.Location.String())
	assert.Equal(t, []string{"*"}, cfg.HTTP.CORSOrigins)
	assert.Equal(t, "0.0.0.0:8080", cfg.HTTP.Addr())
	assert.False(t, cfg.Redis.Enabled())
}

func TestLoadFrom_Overrides(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"STORE_DRIVER":                     "Postgres",
		"DATABASE_URL":                     "postgres://localhost/learnhub",
		"REDIS_URL":                        "redis://localhost:6379/0",
		"APP_TIMEZONE":                     "+05:00",
		"PROGRESS_AUTO_COMPLETE_THRESHOLD": "80",
		"HTTP_CORS_ORIGINS":                "https://a.example,https://b.example",
	})
	require.NoError(t, err)

	assert.Equal(t, DriverPostgres, cfg.Store.Driver)
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, 80, cfg.Progress.AutoCompleteThreshold)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.HTTP.CORSOrigins)

	_, offset := time.Date(2024, 1, 1, 0, 0, 0, 0, cfg.App.Location).Zone()
	assert.Equal(t, 5*3600, offset)
}

func TestLoadFrom_Invalid(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]string
		want string
	}{
		{"postgres without url", map[string]string{"STORE_DRIVER": "postgres"}, "DATABASE_URL"},
		{"unknown driver", map[string]string{"STORE_DRIVER": "mysql"}, "STORE_DRIVER"},
		{"memory in production", map[string]string{"APP_ENV": "production", "AUTH_JWT_SECRET": "s"}, "not allowed in production"},
		{"secret in production", map[string]string{"APP_ENV": "production", "STORE_DRIVER": "postgres", "DATABASE_URL": "postgres://x"}, "AUTH_JWT_SECRET"},
		{"threshold", map[string]string{"PROGRESS_AUTO_COMPLETE_THRESHOLD": "0"}, "PROGRESS_AUTO_COMPLETE_THRESHOLD"},
		{"bad timezone", map[string]string{"APP_TIMEZONE": "Mars/Olympus"}, "APP_TIMEZONE"},
		{"bad int", map[string]string{"HTTP_PORT": "eighty"}, "parse env"},
		{"otlp without endpoint", map[string]string{"OTEL_ENABLED": "true", "OTEL_EXPORTER": "otlp"}, "OTEL_EXPORTER_OTLP_ENDPOINT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFrom(tt.vars)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
