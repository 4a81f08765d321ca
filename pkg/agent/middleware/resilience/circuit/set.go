package circuit

import (
	"sort"
	"sync"
	"time"

	"boxonomics/pkg/logx"
)

// Set holds one breaker per provider, created lazily on first use.
// All conversations share a Set so one caller's failures are visible to every other caller.
type Set struct {
	config   Config
	opts     []Option
	breakers map[string]Breaker
	logger   *logx.Logger
	onChange func(provider string, from, to State)
	mu       sync.Mutex
}

// NewSet creates an empty breaker set.
func NewSet(config Config, opts ...Option) *Set {
	return &Set{
		config:   config,
		opts:     opts,
		breakers: make(map[string]Breaker),
		logger:   logx.NewLogger("circuit"),
	}
}

// OnStateChange registers a callback for transitions of any breaker created afterwards.
func (s *Set) OnStateChange(fn func(provider string, from, to State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// Get returns the breaker for provider, creating it if needed.
func (s *Set) Get(provider string) Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.breakers[provider]; ok {
		return b
	}

	onChange := s.onChange
	logger := s.logger
	opts := append([]Option{}, s.opts...)
	opts = append(opts, WithStateChange(func(from, to State) {
		logger.Warn("⚡ Circuit for %s: %s -> %s", provider, from, to)
		if onChange != nil {
			onChange(provider, from, to)
		}
	}))

	b := New(s.config, opts...)
	s.breakers[provider] = b
	return b
}

// Check admits or rejects a call for provider.
func (s *Set) Check(provider string) error {
	b := s.Get(provider)
	if b.Allow() {
		return nil
	}
	return &CircuitOpenError{Provider: provider, State: b.GetState(), RetryAfter: b.RetryAfter()}
}

// States returns a snapshot of every breaker created so far.
func (s *Set) States() map[string]Snapshot {
	s.mu.Lock()
	names := make([]string, 0, len(s.breakers))
	for name := range s.breakers {
		names = append(names, name)
	}
	s.mu.Unlock()
	sort.Strings(names)

	out := make(map[string]Snapshot, len(names))
	for _, name := range names {
		out[name] = s.Get(name).Snapshot()
	}
	return out
}

// Reset closes every breaker.
func (s *Set) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.breakers {
		b.Reset()
	}
}

// RecoveryTimeout exposes the configured cooldown.
func (s *Set) RecoveryTimeout() time.Duration {
	return s.config.RecoveryTimeout
}
