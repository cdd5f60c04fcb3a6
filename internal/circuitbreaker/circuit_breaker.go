// Package circuitbreaker provides circuit breaker protection on top of sony/gobreaker
package circuitbreaker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"
)

// State represents the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

func fromGobreaker(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// Config holds circuit breaker configuration
type Config struct {
	// Name identifies the breaker in logs
	Name string
	// FailureThreshold is the number of consecutive failures before opening the circuit
	FailureThreshold int
	// SuccessThreshold is the number of successes in half-open state before closing
	SuccessThreshold int
	// Timeout is the duration the circuit stays open before switching to half-open
	Timeout time.Duration
	// OnStateChange is called when the circuit state changes
	OnStateChange func(from, to State)
	// IsFailure decides whether an error counts against the breaker; nil counts every error
	IsFailure func(err error) bool
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Name:             "memory-backend",
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
	}
}

// Errors returned while the breaker rejects calls
var (
	ErrCircuitOpen               = gobreaker.ErrOpenState
	ErrTooManyConcurrentRequests = gobreaker.ErrTooManyRequests
)

// CircuitBreaker implements the circuit breaker pattern
type CircuitBreaker struct {
	config *Config

	mu      sync.RWMutex
	breaker *gobreaker.CircuitBreaker

	totalRequests   int64
	totalFailures   int64
	totalSuccesses  int64
	totalRejections int64
	lastFailureTime int64
}

// New creates a new circuit breaker
func New(config *Config) *CircuitBreaker {
	if config == nil {
		config = DefaultConfig()
	}
	if config.FailureThreshold < 1 {
		config.FailureThreshold = 1
	}
	if config.SuccessThreshold < 1 {
		config.SuccessThreshold = 1
	}

	cb := &CircuitBreaker{config: config}
	cb.breaker = cb.newBreaker()
	return cb
}

func (cb *CircuitBreaker) newBreaker() *gobreaker.CircuitBreaker {
	threshold := uint32(cb.config.FailureThreshold)
	settings := gobreaker.Settings{
		Name:        cb.config.Name,
		MaxRequests: uint32(cb.config.SuccessThreshold),
		Timeout:     cb.config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			if cb.config.IsFailure != nil {
				return !cb.config.IsFailure(err)
			}
			return false
		},
	}
	if cb.config.OnStateChange != nil {
		settings.OnStateChange = func(_ string, from, to gobreaker.State) {
			cb.config.OnStateChange(fromGobreaker(from), fromGobreaker(to))
		}
	}
	return gobreaker.NewCircuitBreaker(settings)
}

func (cb *CircuitBreaker) current() *gobreaker.CircuitBreaker {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.breaker
}

// Execute runs the given function with circuit breaker protection
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	return cb.ExecuteWithFallback(ctx, fn, nil)
}

// ExecuteWithFallback runs the function with circuit breaker protection and fallback
func (cb *CircuitBreaker) ExecuteWithFallback(ctx context.Context, fn func(context.Context) error, fallback func(context.Context, error) error) error {
	ran := false
	_, err := cb.current().Execute(func() (interface{}, error) {
		ran = true
		atomic.AddInt64(&cb.totalRequests, 1)
		return nil, fn(ctx)
	})

	switch {
	case !ran:
		atomic.AddInt64(&cb.totalRejections, 1)
	case err != nil:
		atomic.AddInt64(&cb.totalFailures, 1)
		atomic.StoreInt64(&cb.lastFailureTime, time.Now().UnixNano())
	default:
		atomic.AddInt64(&cb.totalSuccesses, 1)
	}

	if err != nil && fallback != nil {
		return fallback(ctx, err)
	}
	return err
}

// GetState returns the current state
func (cb *CircuitBreaker) GetState() State {
	return fromGobreaker(cb.current().State())
}

// Stats holds circuit breaker statistics
type Stats struct {
	State             State
	TotalRequests     int64
	TotalFailures     int64
	TotalSuccesses    int64
	TotalRejections   int64
	FailureRate       float64
	LastFailureTime   time.Time
	ConsecutiveErrors int32
}

// GetStats returns current statistics
func (cb *CircuitBreaker) GetStats() Stats {
	requests := atomic.LoadInt64(&cb.totalRequests)
	failures := atomic.LoadInt64(&cb.totalFailures)

	var failureRate float64
	if requests > 0 {
		failureRate = float64(failures) / float64(requests)
	}

	var lastFailureTime time.Time
	if nano := atomic.LoadInt64(&cb.lastFailureTime); nano > 0 {
		lastFailureTime = time.Unix(0, nano)
	}

	breaker := cb.current()
	return Stats{
		State:             fromGobreaker(breaker.State()),
		TotalRequests:     requests,
		TotalFailures:     failures,
		TotalSuccesses:    atomic.LoadInt64(&cb.totalSuccesses),
		TotalRejections:   atomic.LoadInt64(&cb.totalRejections),
		FailureRate:       failureRate,
		LastFailureTime:   lastFailureTime,
		ConsecutiveErrors: int32(breaker.Counts().ConsecutiveFailures), //nolint:gosec // bounded by threshold
	}
}

// Reset returns the breaker to the closed state, discarding its counters
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	cb.breaker = cb.newBreaker()
	cb.mu.Unlock()
	atomic.StoreInt64(&cb.lastFailureTime, 0)
}
