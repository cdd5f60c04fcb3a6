package memory

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"lerian-mcp-conflicts/internal/circuitbreaker"
	apperrors "lerian-mcp-conflicts/internal/errors"
	"lerian-mcp-conflicts/internal/logging"
)

// CircuitBreakerBackend wraps a Backend with circuit breaker protection
type CircuitBreakerBackend struct {
	backend Backend
	cb      *circuitbreaker.CircuitBreaker
	logger  logging.Logger
}

// NewCircuitBreakerBackend creates a new circuit breaker wrapped backend
func NewCircuitBreakerBackend(backend Backend, config *circuitbreaker.Config, logger logging.Logger) *CircuitBreakerBackend {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	logger = logger.WithComponent("memory-circuit-breaker")

	if config == nil {
		config = &circuitbreaker.Config{
			Name:             "memory-backend",
			FailureThreshold: 5,
			SuccessThreshold: 2,
			Timeout:          30 * time.Second,
		}
	}
	if config.OnStateChange == nil {
		config.OnStateChange = func(from, to circuitbreaker.State) {
			logger.Warn("Memory backend circuit breaker state changed", "from", from.String(), "to", to.String())
		}
	}
	if config.IsFailure == nil {
		config.IsFailure = countsAgainstBreaker
	}

	return &CircuitBreakerBackend{
		backend: backend,
		cb:      circuitbreaker.New(config),
		logger:  logger,
	}
}

// countsAgainstBreaker ignores caller cancellations and unsupported-operation answers
func countsAgainstBreaker(err error) bool {
	if errors.Is(err, context.Canceled) || isListUnsupported(err) {
		return false
	}
	return true
}

func (c *CircuitBreakerBackend) execute(ctx context.Context, fn func(context.Context) error) error {
	err := c.cb.Execute(ctx, fn)
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyConcurrentRequests) {
		return apperrors.NewBackendUnavailableError("circuit open", err)
	}
	return err
}

func (c *CircuitBreakerBackend) Put(ctx context.Context, key string, value json.RawMessage, owner string) error {
	return c.execute(ctx, func(ctx context.Context) error {
		return c.backend.Put(ctx, key, value, owner)
	})
}

func (c *CircuitBreakerBackend) Get(ctx context.Context, key, owner string) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.execute(ctx, func(ctx context.Context) error {
		var err error
		out, err = c.backend.Get(ctx, key, owner)
		return err
	})
	return out, err
}

// Search degrades to empty results while the backend is failing
func (c *CircuitBreakerBackend) Search(ctx context.Context, query, owner string, limit int) (*SearchResults, error) {
	var out *SearchResults
	err := c.cb.ExecuteWithFallback(ctx,
		func(ctx context.Context) error {
			var err error
			out, err = c.backend.Search(ctx, query, owner, limit)
			return err
		},
		func(ctx context.Context, cbErr error) error {
			c.logger.WarnContext(ctx, "Search fell back to empty results", "error", cbErr)
			out = emptyResults()
			return nil
		},
	)
	return out, err
}

func (c *CircuitBreakerBackend) AppendNote(ctx context.Context, text, owner string) error {
	return c.execute(ctx, func(ctx context.Context) error {
		return c.backend.AppendNote(ctx, text, owner)
	})
}

// ListKeys protects the wrapped lister, or reports ErrListUnsupported
func (c *CircuitBreakerBackend) ListKeys(ctx context.Context, prefix, owner string) ([]string, error) {
	lister, ok := c.backend.(KeyLister)
	if !ok {
		return nil, ErrListUnsupported
	}
	var out []string
	err := c.execute(ctx, func(ctx context.Context) error {
		var err error
		out, err = lister.ListKeys(ctx, prefix, owner)
		return err
	})
	return out, err
}

// State exposes the breaker state for health reporting
func (c *CircuitBreakerBackend) State() circuitbreaker.State {
	return c.cb.GetState()
}

func (c *CircuitBreakerBackend) HealthCheck(ctx context.Context) error {
	if c.cb.GetState() == circuitbreaker.StateOpen {
		return apperrors.NewBackendUnavailableError("health check", circuitbreaker.ErrCircuitOpen)
	}
	return c.backend.HealthCheck(ctx)
}

func (c *CircuitBreakerBackend) Close() error {
	return c.backend.Close()
}
