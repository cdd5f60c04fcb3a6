package memory

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lerian-mcp-conflicts/internal/circuitbreaker"
	"lerian-mcp-conflicts/internal/config"
	apperrors "lerian-mcp-conflicts/internal/errors"
	"lerian-mcp-conflicts/internal/retry"
)

// flakyBackend fails the first failures calls of every operation
type flakyBackend struct {
	*InMemoryBackend
	failures int32
	calls    atomic.Int32
	err      error
}

func newFlakyBackend(failures int, err error) *flakyBackend {
	return &flakyBackend{InMemoryBackend: NewInMemoryBackend(), failures: int32(failures), err: err}
}

func (f *flakyBackend) fail() error {
	if f.calls.Add(1) <= f.failures {
		return f.err
	}
	return nil
}

func (f *flakyBackend) Put(ctx context.Context, key string, value json.RawMessage, owner string) error {
	if err := f.fail(); err != nil {
		return err
	}
	return f.InMemoryBackend.Put(ctx, key, value, owner)
}

func (f *flakyBackend) Search(ctx context.Context, query, owner string, limit int) (*SearchResults, error) {
	if err := f.fail(); err != nil {
		return nil, err
	}
	return f.InMemoryBackend.Search(ctx, query, owner, limit)
}

// plainBackend hides ListKeys from decorators
type plainBackend struct {
	Backend
}

func fastRetry(attempts int) *retry.Config {
	return &retry.Config{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestRetryingBackend_RecoversFromTransientFailures(t *testing.T) {
	inner := newFlakyBackend(2, errors.New("connection reset"))
	b := NewRetryingBackend(inner, fastRetry(3), time.Second, nil)

	require.NoError(t, b.Put(context.Background(), "conflict-1", json.RawMessage(`{}`), "system"))
	assert.Equal(t, int32(3), inner.calls.Load())
}

func TestRetryingBackend_GivesUp(t *testing.T) {
	inner := newFlakyBackend(10, errors.New("connection reset"))
	b := NewRetryingBackend(inner, fastRetry(3), time.Second, nil)

	err := b.Put(context.Background(), "conflict-1", json.RawMessage(`{}`), "system")
	assert.ErrorContains(t, err, "connection reset")
	assert.Equal(t, int32(3), inner.calls.Load())
}

func TestRetryingBackend_DoesNotRetryValidationErrors(t *testing.T) {
	inner := newFlakyBackend(10, apperrors.NewValidationError("key", "bad key", nil))
	b := NewRetryingBackend(inner, fastRetry(3), time.Second, nil)

	err := b.Put(context.Background(), "conflict-1", json.RawMessage(`{}`), "system")
	require.Error(t, err)
	assert.True(t, apperrors.IsValidationError(err))
	assert.Equal(t, int32(1), inner.calls.Load())
}

func TestRetryingBackend_ListKeysUnsupported(t *testing.T) {
	b := NewRetryingBackend(plainBackend{NewInMemoryBackend()}, fastRetry(3), time.Second, nil)

	_, err := b.ListKeys(context.Background(), "conflict-", "system")
	assert.ErrorIs(t, err, ErrListUnsupported)
}

func TestCircuitBreakerBackend_OpensAfterFailures(t *testing.T) {
	inner := newFlakyBackend(100, errors.New("timeout"))
	b := NewCircuitBreakerBackend(inner, &circuitbreaker.Config{
		Name:             "test",
		FailureThreshold: 2,
		SuccessThreshold: 1,
		Timeout:          time.Minute,
	}, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		assert.Error(t, b.Put(ctx, "k", json.RawMessage(`{}`), "system"))
	}
	assert.Equal(t, circuitbreaker.StateOpen, b.State())

	err := b.Put(ctx, "k", json.RawMessage(`{}`), "system")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorCodeBackendUnavailable, apperrors.CodeOf(err))
	assert.Equal(t, int32(2), inner.calls.Load())

	assert.Error(t, b.HealthCheck(ctx))
}

func TestCircuitBreakerBackend_SearchFallsBackToEmpty(t *testing.T) {
	inner := newFlakyBackend(100, errors.New("timeout"))
	b := NewCircuitBreakerBackend(inner, nil, nil)

	results, err := b.Search(context.Background(), "conflict", "system", 10)
	require.NoError(t, err)
	require.NotNil(t, results)
	assert.Empty(t, results.Results)
}

func TestCircuitBreakerBackend_ListUnsupportedDoesNotTrip(t *testing.T) {
	b := NewCircuitBreakerBackend(NewRetryingBackend(plainBackend{NewInMemoryBackend()}, fastRetry(1), 0, nil),
		&circuitbreaker.Config{Name: "test", FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Minute}, nil)

	for i := 0; i < 3; i++ {
		_, err := b.ListKeys(context.Background(), "conflict-", "system")
		assert.ErrorIs(t, err, ErrListUnsupported)
	}
	assert.Equal(t, circuitbreaker.StateClosed, b.State())
}

func TestNew_UnknownBackend(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Memory.Backend = "cassandra"

	_, err := New(context.Background(), cfg, nil)
	assert.ErrorContains(t, err, "unknown memory backend")
}

func TestNew_InMemoryIsDecorated(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Memory.Backend = config.BackendMemory
	cfg.Memory.CircuitBreaker.Enabled = true

	backend, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	_, ok := backend.(*CircuitBreakerBackend)
	assert.True(t, ok)
}
