package memory

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	apperrors "lerian-mcp-conflicts/internal/errors"
	"lerian-mcp-conflicts/internal/logging"
	"lerian-mcp-conflicts/internal/retry"
)

// RetryingBackend wraps a Backend with retry logic and a per-attempt timeout
type RetryingBackend struct {
	backend Backend
	retrier *retry.Retrier
	timeout time.Duration
	logger  logging.Logger
}

// NewRetryingBackend creates a new retrying backend
func NewRetryingBackend(backend Backend, config *retry.Config, timeout time.Duration, logger logging.Logger) *RetryingBackend {
	if config == nil {
		config = defaultRetryConfig()
	}
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &RetryingBackend{
		backend: backend,
		retrier: retry.New(config),
		timeout: timeout,
		logger:  logger.WithComponent("memory-retry"),
	}
}

func defaultRetryConfig() *retry.Config {
	return &retry.Config{
		MaxAttempts:     3,
		InitialDelay:    200 * time.Millisecond,
		MaxDelay:        5 * time.Second,
		Multiplier:      2.0,
		RandomizeFactor: 0.1,
		RetryIf:         retry.DefaultRetryIf,
	}
}

func (r *RetryingBackend) do(ctx context.Context, operation string, op func(ctx context.Context) error) error {
	result := r.retrier.Do(ctx, func(parent context.Context) error {
		if r.timeout <= 0 {
			return op(parent)
		}
		attemptCtx, cancel := context.WithTimeout(parent, r.timeout)
		defer cancel()
		err := op(attemptCtx)
		// an attempt timing out is retryable as long as the caller is still waiting
		if errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil {
			return apperrors.NewBackendUnavailableError(operation, err)
		}
		return err
	})
	if result.Err != nil && result.Attempts > 1 {
		r.logger.WarnContext(ctx, "Memory operation failed after retries",
			"operation", operation,
			"attempts", result.Attempts,
			"duration", result.Duration.String(),
			"error", result.Err)
	}
	return result.Err
}

func (r *RetryingBackend) Put(ctx context.Context, key string, value json.RawMessage, owner string) error {
	return r.do(ctx, "put", func(ctx context.Context) error {
		return r.backend.Put(ctx, key, value, owner)
	})
}

func (r *RetryingBackend) Get(ctx context.Context, key, owner string) (json.RawMessage, error) {
	var out json.RawMessage
	err := r.do(ctx, "get", func(ctx context.Context) error {
		var err error
		out, err = r.backend.Get(ctx, key, owner)
		return err
	})
	return out, err
}

func (r *RetryingBackend) Search(ctx context.Context, query, owner string, limit int) (*SearchResults, error) {
	var out *SearchResults
	err := r.do(ctx, "search", func(ctx context.Context) error {
		var err error
		out, err = r.backend.Search(ctx, query, owner, limit)
		return err
	})
	return out, err
}

func (r *RetryingBackend) AppendNote(ctx context.Context, text, owner string) error {
	return r.do(ctx, "append_note", func(ctx context.Context) error {
		return r.backend.AppendNote(ctx, text, owner)
	})
}

// ListKeys retries the wrapped lister, or reports ErrListUnsupported
func (r *RetryingBackend) ListKeys(ctx context.Context, prefix, owner string) ([]string, error) {
	lister, ok := r.backend.(KeyLister)
	if !ok {
		return nil, ErrListUnsupported
	}
	var out []string
	err := r.do(ctx, "list_keys", func(ctx context.Context) error {
		var err error
		out, err = lister.ListKeys(ctx, prefix, owner)
		if isListUnsupported(err) {
			return &retry.PermanentError{Err: err}
		}
		return err
	})
	if err != nil {
		if isListUnsupported(err) {
			return nil, ErrListUnsupported
		}
		return nil, err
	}
	return out, nil
}

func (r *RetryingBackend) HealthCheck(ctx context.Context) error {
	return r.backend.HealthCheck(ctx)
}

func (r *RetryingBackend) Close() error {
	return r.backend.Close()
}
