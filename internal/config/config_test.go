package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	// Server defaults
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, "stdio", cfg.Server.Mode)

	// Memory defaults
	assert.Equal(t, BackendMemory, cfg.Memory.Backend)
	assert.Equal(t, "system", cfg.Memory.SystemOwner)
	assert.True(t, cfg.Memory.Retry.Enabled)
	assert.True(t, cfg.Memory.CircuitBreaker.Enabled)

	// Conflict defaults
	assert.Equal(t, 100, cfg.Conflict.HighSeveritySize)
	assert.Equal(t, 0.7, cfg.Conflict.HighSeverityDifference)
	assert.Equal(t, 50, cfg.Conflict.MediumSeveritySize)
	assert.Equal(t, 0.4, cfg.Conflict.MediumSeverityDifference)
	assert.Equal(t, 0.1, cfg.Conflict.FrequencyAlpha)
	assert.Equal(t, 100, cfg.Conflict.MaxEditingTimes)
	assert.Equal(t, 5, cfg.Conflict.PreferredCollaboratorFrequency)
	assert.Equal(t, 5, cfg.Conflict.StrategyHistoryThreshold)
	assert.Equal(t, PolicyOverwrite, cfg.Conflict.ResolutionPolicy)

	// Analytics defaults
	assert.Equal(t, 24, cfg.Analytics.SuccessGapHours)
	assert.Equal(t, 5, cfg.Analytics.HotspotLimit)

	require.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:   "valid config",
			mutate: func(*Config) {},
		},
		{
			name:    "invalid server port - too low",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: true,
			errMsg:  "invalid server port",
		},
		{
			name:    "invalid server port - too high",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: true,
			errMsg:  "invalid server port",
		},
		{
			name:    "empty server host",
			mutate:  func(c *Config) { c.Server.Host = "" },
			wantErr: true,
			errMsg:  "server host cannot be empty",
		},
		{
			name:    "unknown mode",
			mutate:  func(c *Config) { c.Server.Mode = "grpc" },
			wantErr: true,
			errMsg:  "invalid server mode",
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Memory.Backend = "mem0" },
			wantErr: true,
			errMsg:  "unknown memory backend",
		},
		{
			name: "redis without address",
			mutate: func(c *Config) {
				c.Memory.Backend = BackendRedis
				c.Redis.Addr = ""
			},
			wantErr: true,
			errMsg:  "redis address cannot be empty",
		},
		{
			name: "qdrant without collection",
			mutate: func(c *Config) {
				c.Memory.Backend = BackendQdrant
				c.Qdrant.Collection = ""
			},
			wantErr: true,
			errMsg:  "qdrant collection cannot be empty",
		},
		{
			name:    "empty system owner",
			mutate:  func(c *Config) { c.Memory.SystemOwner = "" },
			wantErr: true,
			errMsg:  "system owner",
		},
		{
			name:    "difference out of range",
			mutate:  func(c *Config) { c.Conflict.HighSeverityDifference = 1.5 },
			wantErr: true,
			errMsg:  "high severity difference must be between 0 and 1",
		},
		{
			name: "inverted severity sizes",
			mutate: func(c *Config) {
				c.Conflict.HighSeveritySize = 10
			},
			wantErr: true,
			errMsg:  "high severity size",
		},
		{
			name:    "unknown resolution policy",
			mutate:  func(c *Config) { c.Conflict.ResolutionPolicy = "merge" },
			wantErr: true,
			errMsg:  "invalid resolution policy",
		},
		{
			name:   "append history policy",
			mutate: func(c *Config) { c.Conflict.ResolutionPolicy = PolicyAppendHistory },
		},
		{
			name:   "reject policy",
			mutate: func(c *Config) { c.Conflict.ResolutionPolicy = PolicyReject },
		},
		{
			name:    "zero success gap",
			mutate:  func(c *Config) { c.Analytics.SuccessGapHours = 0 },
			wantErr: true,
			errMsg:  "success gap hours must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_LoadYAML(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.LoadYAML([]byte(`
memory:
  backend: redis
  search_limit: "250"
redis:
  addr: cache:6379
conflict:
  resolution_policy: append-history
  high_severity_size: 200
analytics:
  success_gap_hours: 48
`))
	require.NoError(t, err)

	assert.Equal(t, BackendRedis, cfg.Memory.Backend)
	assert.Equal(t, 250, cfg.Memory.SearchLimit)
	assert.Equal(t, "cache:6379", cfg.Redis.Addr)
	assert.Equal(t, PolicyAppendHistory, cfg.Conflict.ResolutionPolicy)
	assert.Equal(t, 200, cfg.Conflict.HighSeveritySize)
	assert.Equal(t, 48, cfg.Analytics.SuccessGapHours)

	// Untouched keys keep their defaults
	assert.Equal(t, "system", cfg.Memory.SystemOwner)
	assert.Equal(t, 0.7, cfg.Conflict.HighSeverityDifference)
}

func TestConfig_LoadYAMLRejectsUnknownKeys(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.LoadYAML([]byte("memory:\n  bakend: redis\n"))
	require.Error(t, err)
}

func TestLoadConfig_FileAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "conflicts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9000\nlogging:\n  level: debug\n"), 0o600))

	t.Setenv("MCP_CONFLICT_CONFIG_FILE", path)
	t.Setenv("MCP_CONFLICT_PORT", "9100")
	t.Setenv("MCP_CONFLICT_RESOLUTION_POLICY", PolicyAppendHistory)
	t.Setenv("QDRANT_HOST", "vectors")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	// Environment wins over file
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, PolicyAppendHistory, cfg.Conflict.ResolutionPolicy)
	assert.Equal(t, "vectors", cfg.Qdrant.Host)
}

func TestLoadConfig_InvalidEnvironment(t *testing.T) {
	t.Setenv("MCP_CONFLICT_BACKEND", "cassandra")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}
