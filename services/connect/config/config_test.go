package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("BACKEND", "")
	t.Setenv("ADMIN_EMAILS", "")
	t.Setenv("KAFKA_BROKERS", "")

	cfg := Load()

	assert.Equal(t, BackendSQLite, cfg.Backend)
	assert.True(t, cfg.Auth.RequireEmailVerification)
	assert.Equal(t, "2103141", cfg.Demo.StudentID)
	assert.Equal(t, "12345678", cfg.Demo.Password)
	assert.Equal(t, "https://placehold.co/600x400.png", cfg.Upload.PlaceholderImageURL)
	assert.Equal(t, 24*time.Hour, cfg.JWT.TTL)
	assert.Empty(t, cfg.Auth.AdminEmails)
	assert.Empty(t, cfg.Kafka.Brokers)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("BACKEND", BackendFirebase)
	t.Setenv("ADMIN_EMAILS", " admin@ruet.ac.bd, ,mod@ruet.ac.bd ")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("JWT_TTL", "90m")
	t.Setenv("REQUIRE_EMAIL_VERIFICATION", "false")
	t.Setenv("UPLOAD_MAX_BYTES", "not-a-number")
	t.Setenv("ENV", "production")

	cfg := Load()

	assert.Equal(t, BackendFirebase, cfg.Backend)
	assert.Equal(t, []string{"admin@ruet.ac.bd", "mod@ruet.ac.bd"}, cfg.Auth.AdminEmails)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 90*time.Minute, cfg.JWT.TTL)
	assert.False(t, cfg.Auth.RequireEmailVerification)
	assert.Equal(t, 5<<20, cfg.Upload.MaxBytes, "invalid ints fall back to the default")
	assert.True(t, cfg.IsProduction())
}

func TestSlogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		cfg := &Config{Server: ServerConfig{LogLevel: in}}
		assert.Equal(t, want, cfg.SlogLevel(), "LOG_LEVEL=%q", in)
	}
}
