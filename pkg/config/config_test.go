package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"ENVIRONMENT", "STORE_BACKEND", "DEV_TOKENS"} {
		// Setenv restores the original value on cleanup.
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, EnvironmentDevelopment, cfg.Environment)
	assert.Equal(t, BackendFirestore, cfg.StoreBackend)
	assert.False(t, cfg.DevTokens)
	assert.False(t, cfg.AcceptsDevTokens(), "defaults must not trust dev tokens against Firestore")
}

func TestAcceptsDevTokens(t *testing.T) {
	tests := []struct {
		name        string
		environment string
		backend     string
		devTokens   bool
		want        bool
	}{
		{"memory in development", EnvironmentDevelopment, BackendMemory, false, true},
		{"memory in staging", "staging", BackendMemory, false, false},
		{"firestore in development without opt-in", EnvironmentDevelopment, BackendFirestore, false, false},
		{"firestore in development with opt-in", EnvironmentDevelopment, BackendFirestore, true, true},
		{"firestore in staging with opt-in", "staging", BackendFirestore, true, false},
		{"firestore in production with opt-in", "production", BackendFirestore, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Environment: tt.environment, StoreBackend: tt.backend, DevTokens: tt.devTokens}
			assert.Equal(t, tt.want, cfg.AcceptsDevTokens())
		})
	}
}
