// Package circuit provides per-provider circuit breakers for tool calls.
package circuit

import (
	"fmt"
	"sync"
	"time"
)

// State represents the current state of a circuit breaker.
type State int

// Circuit breaker states.
const (
	Closed   State = iota // Normal operation
	Open                  // Failing, reject requests
	HalfOpen              // Testing whether the provider recovered
)

func (s State) String() string {
	switch s {
	case Closed:
		return "CLOSED"
	case Open:
		return "OPEN"
	case HalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Config defines configuration for circuit breaker behavior.
type Config struct {
	FailureThreshold int           `json:"failure_threshold" yaml:"failure_threshold"` // Consecutive failures before opening
	SuccessThreshold int           `json:"success_threshold" yaml:"success_threshold"` // Consecutive half-open successes to close
	RecoveryTimeout  time.Duration `json:"recovery_timeout" yaml:"recovery_timeout"`   // Time after last failure before a trial call
}

// DefaultConfig provides the default breaker thresholds.
//
//nolint:gochecknoglobals // Sensible default config pattern
var DefaultConfig = Config{
	FailureThreshold: 5,
	SuccessThreshold: 2,
	RecoveryTimeout:  60 * time.Second,
}

// CircuitOpenError is returned when a call is rejected without reaching the provider.
//
//nolint:revive // name mirrors the error taxonomy used across the module
type CircuitOpenError struct {
	Provider   string
	State      State
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker for %s is %s (retry in %s)", e.Provider, e.State, e.RetryAfter.Round(time.Second))
}

// Snapshot is a point-in-time view of a breaker.
type Snapshot struct {
	LastFailure  time.Time `json:"last_failure,omitempty"`
	State        string    `json:"state"`
	FailureCount int       `json:"failure_count"`
	SuccessCount int       `json:"success_count"`
}

// Breaker defines the interface for circuit breaker implementations.
type Breaker interface {
	// Allow checks if a request should be allowed based on current state.
	// An Open breaker past its recovery timeout moves to HalfOpen here.
	// HalfOpen admits at most SuccessThreshold trials in flight.
	Allow() bool

	// Record records the result (success/failure) of a request.
	Record(success bool)

	// Release ends an admitted request without recording an outcome.
	Release()

	// GetState returns the current circuit breaker state.
	GetState() State

	// RetryAfter returns how long until an Open breaker will admit a trial call.
	RetryAfter() time.Duration

	// Snapshot returns the current counters.
	Snapshot() Snapshot

	// Reset manually resets the circuit breaker to closed state.
	Reset()
}

// Option configures a breaker.
type Option func(*breaker)

// WithClock overrides time.Now for tests.
func WithClock(now func() time.Time) Option {
	return func(b *breaker) {
		b.now = now
	}
}

// WithStateChange registers a callback invoked (outside the lock) on every transition.
func WithStateChange(fn func(from, to State)) Option {
	return func(b *breaker) {
		b.onChange = fn
	}
}

//nolint:govet // Logical field grouping preferred over memory alignment
type breaker struct {
	config          Config
	now             func() time.Time
	onChange        func(from, to State)
	mu              sync.Mutex
	state           State
	failureCount    int
	successCount    int
	trials          int
	lastFailureTime time.Time
}

// New creates a new circuit breaker with the given configuration.
func New(config Config, opts ...Option) Breaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = DefaultConfig.FailureThreshold
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = DefaultConfig.SuccessThreshold
	}
	if config.RecoveryTimeout <= 0 {
		config.RecoveryTimeout = DefaultConfig.RecoveryTimeout
	}
	b := &breaker{
		config: config,
		now:    time.Now,
		state:  Closed,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *breaker) Allow() bool {
	b.mu.Lock()
	from := b.state
	allowed := false

	switch b.state {
	case Closed:
		allowed = true
	case HalfOpen:
		if b.trials < b.config.SuccessThreshold {
			b.trials++
			allowed = true
		}
	case Open:
		if b.now().Sub(b.lastFailureTime) >= b.config.RecoveryTimeout {
			b.state = HalfOpen
			b.successCount = 0
			b.trials = 1
			allowed = true
		}
	}
	to := b.state
	b.mu.Unlock()

	b.notify(from, to)
	return allowed
}

func (b *breaker) Record(success bool) {
	b.mu.Lock()
	from := b.state
	if success {
		b.onSuccess()
	} else {
		b.onFailure()
	}
	to := b.state
	b.mu.Unlock()

	b.notify(from, to)
}

func (b *breaker) Release() {
	b.mu.Lock()
	b.endTrial()
	b.mu.Unlock()
}

// endTrial must be called with b.mu held.
func (b *breaker) endTrial() {
	if b.state == HalfOpen && b.trials > 0 {
		b.trials--
	}
}

func (b *breaker) GetState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *breaker) RetryAfter() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != Open {
		return 0
	}
	remaining := b.config.RecoveryTimeout - b.now().Sub(b.lastFailureTime)
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (b *breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		State:        b.state.String(),
		FailureCount: b.failureCount,
		SuccessCount: b.successCount,
		LastFailure:  b.lastFailureTime,
	}
}

func (b *breaker) Reset() {
	b.mu.Lock()
	from := b.state
	b.state = Closed
	b.failureCount = 0
	b.successCount = 0
	b.trials = 0
	b.mu.Unlock()

	b.notify(from, Closed)
}

func (b *breaker) onSuccess() {
	switch b.state {
	case Closed:
		b.failureCount = 0

	case HalfOpen:
		b.endTrial()
		b.successCount++
		if b.successCount >= b.config.SuccessThreshold {
			b.state = Closed
			b.failureCount = 0
			b.successCount = 0
			b.trials = 0
		}
	}
}

func (b *breaker) onFailure() {
	b.failureCount++
	b.lastFailureTime = b.now()

	switch b.state {
	case Closed:
		if b.failureCount >= b.config.FailureThreshold {
			b.state = Open
		}

	case HalfOpen:
		// Any failure while half-open reopens immediately.
		b.state = Open
		b.successCount = 0
		b.trials = 0
	}
}

func (b *breaker) notify(from, to State) {
	if from != to && b.onChange != nil {
		b.onChange(from, to)
	}
}
