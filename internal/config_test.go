package internal

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, uint16(3000), cfg.Port)
	assert.Equal(t, "cakery", cfg.MetricsNamespace)
	assert.Equal(t, 3, cfg.Checkout.WriteAttempts)
	assert.False(t, cfg.Checkout.AtomicWrites)
	assert.Equal(t, time.Second, cfg.Outbox.PollInterval)
	assert.Equal(t, 50, cfg.Outbox.BatchSize)
	assert.Equal(t, 24*time.Hour, cfg.Redis.IdempotencyTTL)
	assert.Empty(t, cfg.NATS.URL)
	assert.Empty(t, cfg.AllowedOrigins)
}

func TestNewConfig_FromEnvironment(t *testing.T) {
	t.Setenv("ENV", "prod")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("PORT", "8080")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("JWT_ISSUER", "https://id.cakery.test")
	t.Setenv("NATS_URL", "nats://localhost:4222")
	t.Setenv("OUTBOX_POLL_INTERVAL", "250ms")
	t.Setenv("OUTBOX_BATCH_SIZE", "10")
	t.Setenv("CHECKOUT_ATOMIC_WRITES", "true")
	t.Setenv("CHECKOUT_WRITE_ATTEMPTS", "5")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.test, https://b.test,")

	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, "prod", cfg.Env)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, uint16(8080), cfg.Port)
	assert.Equal(t, "https://id.cakery.test", cfg.JWT.Issuer)
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
	assert.Equal(t, 250*time.Millisecond, cfg.Outbox.PollInterval)
	assert.Equal(t, 10, cfg.Outbox.BatchSize)
	assert.True(t, cfg.Checkout.AtomicWrites)
	assert.Equal(t, 5, cfg.Checkout.WriteAttempts)
	assert.Equal(t, []string{"https://a.test", "https://b.test"}, cfg.AllowedOrigins)
}

func TestNewConfig_FallsBackOnInvalidValues(t *testing.T) {
	t.Setenv("ENV", "staging")
	t.Setenv("LOG_LEVEL", "verbose")
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := NewConfig()
	require.NoError(t, err)
	assert.Equal(t, "prod", cfg.Env)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestNewConfig_Rejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "default jwt secret in prod", env: map[string]string{"ENV": "prod"}},
		{name: "zero write attempts", env: map[string]string{"CHECKOUT_WRITE_ATTEMPTS": "0"}},
		{name: "zero batch size", env: map[string]string{"OUTBOX_BATCH_SIZE": "0"}},
		{name: "zero poll interval", env: map[string]string{"OUTBOX_POLL_INTERVAL": "0s"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := NewConfig()
			assert.Error(t, err)
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "prod", "warn")

	logger.Info("hidden")
	logger.Warn("shown", "order_id", "abc")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "shown", line["msg"])
	assert.Equal(t, "abc", line["order_id"])
	assert.Contains(t, line, "time")
}
