package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Backend names accepted by Memory.Backend
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendQdrant   = "qdrant"
)

// Resolution policies accepted by Conflict.ResolutionPolicy
const (
	PolicyOverwrite     = "overwrite"
	PolicyAppendHistory = "append-history"
	PolicyReject        = "reject"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `json:"server" mapstructure:"server"`
	Memory    MemoryConfig    `json:"memory" mapstructure:"memory"`
	Redis     RedisConfig     `json:"redis" mapstructure:"redis"`
	Postgres  PostgresConfig  `json:"postgres" mapstructure:"postgres"`
	SQLite    SQLiteConfig    `json:"sqlite" mapstructure:"sqlite"`
	Qdrant    QdrantConfig    `json:"qdrant" mapstructure:"qdrant"`
	Conflict  ConflictConfig  `json:"conflict" mapstructure:"conflict"`
	Analytics AnalyticsConfig `json:"analytics" mapstructure:"analytics"`
	Logging   LoggingConfig   `json:"logging" mapstructure:"logging"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Port           int      `json:"port" mapstructure:"port"`
	Host           string   `json:"host" mapstructure:"host"`
	Mode           string   `json:"mode" mapstructure:"mode"`
	ReadTimeout    int      `json:"read_timeout_seconds" mapstructure:"read_timeout_seconds"`
	WriteTimeout   int      `json:"write_timeout_seconds" mapstructure:"write_timeout_seconds"`
	AllowedOrigins []string `json:"allowed_origins" mapstructure:"allowed_origins"`
}

// MemoryConfig selects and tunes the memory backend
type MemoryConfig struct {
	Backend        string               `json:"backend" mapstructure:"backend"`
	SystemOwner    string               `json:"system_owner" mapstructure:"system_owner"`
	SearchLimit    int                  `json:"search_limit" mapstructure:"search_limit"`
	TimeoutSeconds int                  `json:"timeout_seconds" mapstructure:"timeout_seconds"`
	Retry          RetryConfig          `json:"retry" mapstructure:"retry"`
	CircuitBreaker CircuitBreakerConfig `json:"circuit_breaker" mapstructure:"circuit_breaker"`
}

// RetryConfig controls the retry decorator around the backend
type RetryConfig struct {
	Enabled        bool `json:"enabled" mapstructure:"enabled"`
	MaxAttempts    int  `json:"max_attempts" mapstructure:"max_attempts"`
	InitialDelayMs int  `json:"initial_delay_ms" mapstructure:"initial_delay_ms"`
	MaxDelayMs     int  `json:"max_delay_ms" mapstructure:"max_delay_ms"`
}

// CircuitBreakerConfig controls the breaker decorator around the backend
type CircuitBreakerConfig struct {
	Enabled          bool `json:"enabled" mapstructure:"enabled"`
	FailureThreshold int  `json:"failure_threshold" mapstructure:"failure_threshold"`
	SuccessThreshold int  `json:"success_threshold" mapstructure:"success_threshold"`
	TimeoutSeconds   int  `json:"timeout_seconds" mapstructure:"timeout_seconds"`
}

// RedisConfig represents the Redis backend
type RedisConfig struct {
	Addr      string `json:"addr" mapstructure:"addr"`
	Password  string `json:"-" mapstructure:"password"` // Never serialize password
	DB        int    `json:"db" mapstructure:"db"`
	KeyPrefix string `json:"key_prefix" mapstructure:"key_prefix"`
	MaxNotes  int    `json:"max_notes" mapstructure:"max_notes"`
}

// PostgresConfig represents the Postgres backend
type PostgresConfig struct {
	DSN          string `json:"-" mapstructure:"dsn"` // Contains credentials
	MaxOpenConns int    `json:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns int    `json:"max_idle_conns" mapstructure:"max_idle_conns"`
}

// SQLiteConfig represents the embedded SQLite backend
type SQLiteConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

// QdrantConfig represents Qdrant vector database configuration
type QdrantConfig struct {
	Host       string `json:"host" mapstructure:"host"`
	Port       int    `json:"port" mapstructure:"port"`
	APIKey     string `json:"-" mapstructure:"api_key"` // Never serialize API key
	UseTLS     bool   `json:"use_tls" mapstructure:"use_tls"`
	Collection string `json:"collection" mapstructure:"collection"`
}

// ConflictConfig holds the scoring and learning thresholds
type ConflictConfig struct {
	HighSeveritySize               int     `json:"high_severity_size" mapstructure:"high_severity_size"`
	HighSeverityDifference         float64 `json:"high_severity_difference" mapstructure:"high_severity_difference"`
	MediumSeveritySize             int     `json:"medium_severity_size" mapstructure:"medium_severity_size"`
	MediumSeverityDifference       float64 `json:"medium_severity_difference" mapstructure:"medium_severity_difference"`
	FrequencyAlpha                 float64 `json:"frequency_alpha" mapstructure:"frequency_alpha"`
	MaxEditingTimes                int     `json:"max_editing_times" mapstructure:"max_editing_times"`
	PreferredCollaboratorFrequency int     `json:"preferred_collaborator_frequency" mapstructure:"preferred_collaborator_frequency"`
	StrategyHistoryThreshold       int     `json:"strategy_history_threshold" mapstructure:"strategy_history_threshold"`
	DocumentCacheSize              int     `json:"document_cache_size" mapstructure:"document_cache_size"`
	ResolutionPolicy               string  `json:"resolution_policy" mapstructure:"resolution_policy"`
}

// AnalyticsConfig tunes the analytics aggregator
type AnalyticsConfig struct {
	SuccessGapHours int `json:"success_gap_hours" mapstructure:"success_gap_hours"`
	SearchLimit     int `json:"search_limit" mapstructure:"search_limit"`
	HotspotLimit    int `json:"hotspot_limit" mapstructure:"hotspot_limit"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `json:"level" mapstructure:"level"`
	Format string `json:"format" mapstructure:"format"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           8080,
			Host:           "localhost",
			Mode:           "stdio",
			ReadTimeout:    30,
			WriteTimeout:   30,
			AllowedOrigins: []string{},
		},
		Memory: MemoryConfig{
			Backend:        BackendMemory,
			SystemOwner:    "system",
			SearchLimit:    100,
			TimeoutSeconds: 10,
			Retry: RetryConfig{
				Enabled:        true,
				MaxAttempts:    3,
				InitialDelayMs: 100,
				MaxDelayMs:     5000,
			},
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:          true,
				FailureThreshold: 5,
				SuccessThreshold: 2,
				TimeoutSeconds:   30,
			},
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			KeyPrefix: "conflicts",
			MaxNotes:  10000,
		},
		Postgres: PostgresConfig{
			DSN:          "postgres://localhost:5432/conflicts?sslmode=disable",
			MaxOpenConns: 10,
			MaxIdleConns: 5,
		},
		SQLite: SQLiteConfig{
			Path: "./data/conflicts.db",
		},
		Qdrant: QdrantConfig{
			Host:       "localhost",
			Port:       6334,
			Collection: "conflict_memory",
		},
		Conflict: ConflictConfig{
			HighSeveritySize:               100,
			HighSeverityDifference:         0.7,
			MediumSeveritySize:             50,
			MediumSeverityDifference:       0.4,
			FrequencyAlpha:                 0.1,
			MaxEditingTimes:                100,
			PreferredCollaboratorFrequency: 5,
			StrategyHistoryThreshold:       5,
			DocumentCacheSize:              1024,
			ResolutionPolicy:               PolicyOverwrite,
		},
		Analytics: AnalyticsConfig{
			SuccessGapHours: 24,
			SearchLimit:     1000,
			HotspotLimit:    5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadConfig loads configuration from defaults, an optional YAML file, .env and environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		// Don't fail if .env doesn't exist
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := DefaultConfig()

	if path := os.Getenv("MCP_CONFLICT_CONFIG_FILE"); path != "" {
		if err := config.LoadFile(path); err != nil {
			return nil, err
		}
	}

	// Override with environment variables
	loadFromEnv(config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// LoadFile overlays a YAML file on top of the current values. Keys absent from the file keep their value.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // operator supplied path
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return c.LoadYAML(data)
}

// LoadYAML overlays YAML content on top of the current values
func (c *Config) LoadYAML(data []byte) error {
	raw := make(map[string]interface{})
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse config yaml: %w", err)
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           c,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return fmt.Errorf("failed to build config decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return fmt.Errorf("failed to decode config yaml: %w", err)
	}
	return nil
}

// loadFromEnv loads configuration from environment variables
func loadFromEnv(config *Config) {
	loadServerConfig(config)
	loadMemoryConfig(config)
	loadBackendConfigs(config)
	loadConflictConfig(config)
	loadLoggingConfig(config)
}

func envString(key string, target *string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

func envInt(key string, target *int) {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			*target = i
		}
	}
}

func envFloat(key string, target *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*target = f
		}
	}
}

func envBool(key string, target *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*target = b
		}
	}
}

func loadServerConfig(config *Config) {
	envInt("MCP_CONFLICT_PORT", &config.Server.Port)
	envString("MCP_CONFLICT_HOST", &config.Server.Host)
	envString("MCP_CONFLICT_MODE", &config.Server.Mode)
	envInt("MCP_CONFLICT_READ_TIMEOUT_SECONDS", &config.Server.ReadTimeout)
	envInt("MCP_CONFLICT_WRITE_TIMEOUT_SECONDS", &config.Server.WriteTimeout)
	if origins := os.Getenv("MCP_CONFLICT_ALLOWED_ORIGINS"); origins != "" {
		config.Server.AllowedOrigins = strings.Split(origins, ",")
	}
}

func loadMemoryConfig(config *Config) {
	envString("MCP_CONFLICT_BACKEND", &config.Memory.Backend)
	envString("MCP_CONFLICT_SYSTEM_OWNER", &config.Memory.SystemOwner)
	envInt("MCP_CONFLICT_SEARCH_LIMIT", &config.Memory.SearchLimit)
	envInt("MCP_CONFLICT_BACKEND_TIMEOUT_SECONDS", &config.Memory.TimeoutSeconds)
	envBool("MCP_CONFLICT_RETRY_ENABLED", &config.Memory.Retry.Enabled)
	envInt("MCP_CONFLICT_RETRY_MAX_ATTEMPTS", &config.Memory.Retry.MaxAttempts)
	envBool("MCP_CONFLICT_CIRCUIT_BREAKER_ENABLED", &config.Memory.CircuitBreaker.Enabled)
	envInt("MCP_CONFLICT_CIRCUIT_BREAKER_FAILURES", &config.Memory.CircuitBreaker.FailureThreshold)
}

func loadBackendConfigs(config *Config) {
	// Redis, accepting the conventional unprefixed names too
	if v := os.Getenv("MCP_CONFLICT_REDIS_ADDR"); v != "" {
		config.Redis.Addr = v
	} else if v := os.Getenv("REDIS_ADDR"); v != "" {
		config.Redis.Addr = v
	}
	envString("MCP_CONFLICT_REDIS_PASSWORD", &config.Redis.Password)
	envInt("MCP_CONFLICT_REDIS_DB", &config.Redis.DB)
	envString("MCP_CONFLICT_REDIS_KEY_PREFIX", &config.Redis.KeyPrefix)

	if v := os.Getenv("MCP_CONFLICT_POSTGRES_DSN"); v != "" {
		config.Postgres.DSN = v
	} else if v := os.Getenv("DATABASE_URL"); v != "" {
		config.Postgres.DSN = v
	}
	envInt("MCP_CONFLICT_POSTGRES_MAX_OPEN_CONNS", &config.Postgres.MaxOpenConns)

	envString("MCP_CONFLICT_SQLITE_PATH", &config.SQLite.Path)

	if v := os.Getenv("MCP_CONFLICT_QDRANT_HOST"); v != "" {
		config.Qdrant.Host = v
	} else if v := os.Getenv("QDRANT_HOST"); v != "" {
		config.Qdrant.Host = v
	}
	envInt("MCP_CONFLICT_QDRANT_PORT", &config.Qdrant.Port)
	if v := os.Getenv("MCP_CONFLICT_QDRANT_API_KEY"); v != "" {
		config.Qdrant.APIKey = v
	} else if v := os.Getenv("QDRANT_API_KEY"); v != "" {
		config.Qdrant.APIKey = v
	}
	envBool("MCP_CONFLICT_QDRANT_USE_TLS", &config.Qdrant.UseTLS)
	envString("MCP_CONFLICT_QDRANT_COLLECTION", &config.Qdrant.Collection)
}

func loadConflictConfig(config *Config) {
	envInt("MCP_CONFLICT_HIGH_SEVERITY_SIZE", &config.Conflict.HighSeveritySize)
	envFloat("MCP_CONFLICT_HIGH_SEVERITY_DIFFERENCE", &config.Conflict.HighSeverityDifference)
	envInt("MCP_CONFLICT_MEDIUM_SEVERITY_SIZE", &config.Conflict.MediumSeveritySize)
	envFloat("MCP_CONFLICT_MEDIUM_SEVERITY_DIFFERENCE", &config.Conflict.MediumSeverityDifference)
	envInt("MCP_CONFLICT_DOCUMENT_CACHE_SIZE", &config.Conflict.DocumentCacheSize)
	envString("MCP_CONFLICT_RESOLUTION_POLICY", &config.Conflict.ResolutionPolicy)
	envInt("MCP_CONFLICT_SUCCESS_GAP_HOURS", &config.Analytics.SuccessGapHours)
}

func loadLoggingConfig(config *Config) {
	envString("MCP_CONFLICT_LOG_LEVEL", &config.Logging.Level)
	envString("MCP_CONFLICT_LOG_FORMAT", &config.Logging.Format)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	switch c.Server.Mode {
	case "stdio", "http":
	default:
		return fmt.Errorf("invalid server mode: %s", c.Server.Mode)
	}

	if err := c.validateMemory(); err != nil {
		return err
	}

	cc := c.Conflict
	if cc.HighSeveritySize < cc.MediumSeveritySize {
		return fmt.Errorf("high severity size must be at least the medium severity size")
	}
	for name, v := range map[string]float64{
		"high severity difference":   cc.HighSeverityDifference,
		"medium severity difference": cc.MediumSeverityDifference,
		"frequency alpha":            cc.FrequencyAlpha,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be between 0 and 1", name)
		}
	}
	if cc.MaxEditingTimes <= 0 {
		return fmt.Errorf("max editing times must be positive")
	}
	if cc.DocumentCacheSize <= 0 {
		return fmt.Errorf("document cache size must be positive")
	}
	switch cc.ResolutionPolicy {
	case PolicyOverwrite, PolicyAppendHistory, PolicyReject:
	default:
		return fmt.Errorf("invalid resolution policy: %s", cc.ResolutionPolicy)
	}

	if c.Analytics.SuccessGapHours <= 0 {
		return fmt.Errorf("success gap hours must be positive")
	}
	if c.Analytics.HotspotLimit <= 0 {
		return fmt.Errorf("hotspot limit must be positive")
	}

	return nil
}

func (c *Config) validateMemory() error {
	if c.Memory.SystemOwner == "" {
		return fmt.Errorf("memory system owner cannot be empty")
	}
	if c.Memory.SearchLimit <= 0 {
		return fmt.Errorf("memory search limit must be positive")
	}

	switch c.Memory.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis address cannot be empty")
		}
	case BackendPostgres:
		if c.Postgres.DSN == "" {
			return fmt.Errorf("postgres dsn cannot be empty")
		}
	case BackendSQLite:
		if c.SQLite.Path == "" {
			return fmt.Errorf("sqlite path cannot be empty")
		}
	case BackendQdrant:
		if c.Qdrant.Host == "" {
			return fmt.Errorf("qdrant host cannot be empty")
		}
		if c.Qdrant.Port <= 0 {
			return fmt.Errorf("qdrant port must be greater than 0")
		}
		if c.Qdrant.Collection == "" {
			return fmt.Errorf("qdrant collection cannot be empty")
		}
	default:
		return fmt.Errorf("unknown memory backend: %s", c.Memory.Backend)
	}

	if c.Memory.Retry.Enabled && c.Memory.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry max attempts must be at least 1")
	}
	if c.Memory.CircuitBreaker.Enabled && c.Memory.CircuitBreaker.FailureThreshold < 1 {
		return fmt.Errorf("circuit breaker failure threshold must be at least 1")
	}
	return nil
}
