package memory

import (
	"context"
	"fmt"
	"time"

	"lerian-mcp-conflicts/internal/circuitbreaker"
	"lerian-mcp-conflicts/internal/config"
	"lerian-mcp-conflicts/internal/logging"
	"lerian-mcp-conflicts/internal/retry"
)

// New builds the configured backend and wraps it with the enabled resilience decorators.
// The breaker sits outside the retrier so one logical call counts once against it.
func New(ctx context.Context, cfg *config.Config, logger logging.Logger) (Backend, error) {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}

	base, err := newBase(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("Memory backend ready", "backend", cfg.Memory.Backend)

	return Decorate(base, cfg.Memory, logger), nil
}

// Decorate applies the retry and circuit breaker wrappers enabled in cfg
func Decorate(base Backend, cfg config.MemoryConfig, logger logging.Logger) Backend {
	backend := base
	if cfg.Retry.Enabled {
		backend = NewRetryingBackend(backend, &retry.Config{
			MaxAttempts:     cfg.Retry.MaxAttempts,
			InitialDelay:    time.Duration(cfg.Retry.InitialDelayMs) * time.Millisecond,
			MaxDelay:        time.Duration(cfg.Retry.MaxDelayMs) * time.Millisecond,
			Multiplier:      2.0,
			RandomizeFactor: 0.1,
		}, time.Duration(cfg.TimeoutSeconds)*time.Second, logger)
	}
	if cfg.CircuitBreaker.Enabled {
		backend = NewCircuitBreakerBackend(backend, &circuitbreaker.Config{
			Name:             "memory-" + cfg.Backend,
			FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
			SuccessThreshold: cfg.CircuitBreaker.SuccessThreshold,
			Timeout:          time.Duration(cfg.CircuitBreaker.TimeoutSeconds) * time.Second,
		}, logger)
	}
	return backend
}

func newBase(ctx context.Context, cfg *config.Config, logger logging.Logger) (Backend, error) {
	switch cfg.Memory.Backend {
	case config.BackendMemory, "":
		return NewInMemoryBackend(), nil
	case config.BackendRedis:
		return NewRedisBackend(ctx, cfg.Redis, logger)
	case config.BackendPostgres:
		return NewPostgresBackend(ctx, cfg.Postgres, logger)
	case config.BackendSQLite:
		return NewSQLiteBackend(ctx, cfg.SQLite, logger)
	case config.BackendQdrant:
		backend := NewQdrantBackend(cfg.Qdrant, logger)
		if err := backend.Initialize(ctx); err != nil {
			return nil, err
		}
		return backend, nil
	default:
		return nil, fmt.Errorf("unknown memory backend: %s", cfg.Memory.Backend)
	}
}
