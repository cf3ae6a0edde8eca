package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()

	t.Setenv("BOOKSETTLE_DATABASE_URL", "postgres://localhost/booksettle")
	t.Setenv("BOOKSETTLE_SESSION_SECRET", "session")
	t.Setenv("BOOKSETTLE_CONTENT_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("BOOKSETTLE_GATEWAY_BASE_URL", "https://gateway.test")
	t.Setenv("BOOKSETTLE_GATEWAY_SERVER_KEY", "server-key")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, time.Hour, cfg.ReadURLTTL)
	assert.Equal(t, 5*time.Second, cfg.GatewayTimeout)
	assert.Equal(t, uint(3), cfg.GatewayMaxTries)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.Empty(t, cfg.RedisURL)
	assert.Empty(t, cfg.RabbitMQURL)
	assert.Empty(t, cfg.OTELEndpoint)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "missing database url",
			env:     map[string]string{"BOOKSETTLE_DATABASE_URL": ""},
			wantErr: "parse env:",
		},
		{
			name:    "bad duration",
			env:     map[string]string{"BOOKSETTLE_READ_URL_TTL": "soon"},
			wantErr: "parse env:",
		},
		{
			name:    "short content secret",
			env:     map[string]string{"BOOKSETTLE_CONTENT_SECRET": "short"},
			wantErr: "content secret must be at least 32 bytes",
		},
		{
			name:    "non-positive ttl",
			env:     map[string]string{"BOOKSETTLE_READ_URL_TTL": "0s"},
			wantErr: "read url ttl[0s] must be positive",
		},
		{
			name:    "zero tries",
			env:     map[string]string{"BOOKSETTLE_GATEWAY_MAX_TRIES": "0"},
			wantErr: "gateway max tries must be at least 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
