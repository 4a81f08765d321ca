// Package ratelimit keeps outbound tool traffic within each provider's API quota.
package ratelimit

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"boxonomics/pkg/logx"
)

const (
	// refillInterval is how often a bucket receives a tenth of its per-minute budget.
	refillInterval = 6 * time.Second
	pollInterval   = 50 * time.Millisecond
)

// Limiter gates calls to one provider.
type Limiter interface {
	// Acquire blocks until it can take tokens and a concurrency slot together, or ctx is done.
	// The returned release frees the slot and is safe to call more than once.
	Acquire(ctx context.Context, tokens int, caller string) (release func(), err error)
	GetStats() LimiterStats
}

// Config is one provider's quota.
type Config struct {
	RequestsPerMinute int `json:"requests_per_minute" yaml:"requests_per_minute"`
	MaxConcurrency    int `json:"max_concurrency" yaml:"max_concurrency"`
}

type lease struct {
	since  time.Time
	caller string
}

// TokenBucketLimiter pairs a per-minute request bucket with a cap on in-flight calls.
// Leases older than twice the request timeout are assumed leaked and reclaimed
// the next time the limiter is saturated.
type TokenBucketLimiter struct {
	logger   *logx.Logger
	leases   map[uint64]lease
	provider string

	mu       sync.Mutex
	nextID   uint64
	tokens   int
	capacity int
	perFill  int
	slots    int
	leaseTTL time.Duration

	tokenLimitHits  int64
	concurrencyHits int64
}

// LimiterStats is a point-in-time view of a limiter.
type LimiterStats struct {
	Provider            string `json:"provider"`
	AvailableTokens     int    `json:"available_tokens"`
	MaxCapacity         int    `json:"max_capacity"`
	ActiveRequests      int    `json:"active_requests"`
	MaxConcurrency      int    `json:"max_concurrency"`
	TokenLimitHits      int64  `json:"token_limit_hits"`
	ConcurrencyHits     int64  `json:"concurrency_hits"`
	TrackedAcquisitions int    `json:"tracked_acquisitions"`
}

// NewTokenBucketLimiter starts with a full bucket. It does not refill on its own;
// ProviderLimiterMap drives refills.
func NewTokenBucketLimiter(provider string, cfg Config, requestTimeout time.Duration) *TokenBucketLimiter {
	return &TokenBucketLimiter{
		provider: provider,
		tokens:   cfg.RequestsPerMinute,
		capacity: cfg.RequestsPerMinute,
		perFill:  max(cfg.RequestsPerMinute/10, 1),
		slots:    max(cfg.MaxConcurrency, 1),
		leases:   make(map[uint64]lease),
		leaseTTL: 2 * requestTimeout,
		logger:   logx.NewLogger("ratelimit"),
	}
}

// Acquire fails immediately when tokens exceeds the bucket size, since no refill could satisfy it.
// A failed or cancelled Acquire consumes nothing.
func (l *TokenBucketLimiter) Acquire(ctx context.Context, tokens int, caller string) (func(), error) {
	if tokens > l.capacity {
		return nil, fmt.Errorf("rate limit: %s requested %d tokens but capacity is %d", l.provider, tokens, l.capacity)
	}

	for waited := false; ; waited = true {
		id, ok := l.tryAcquire(tokens, caller, !waited)
		if ok {
			var once sync.Once
			return func() { once.Do(func() { l.release(id) }) }, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err() //nolint:wrapcheck // context error propagated as-is
		case <-time.After(pollInterval):
		}
	}
}

// tryAcquire takes tokens and a slot if both are free. The first failed try of an
// Acquire call records which limit blocked it.
func (l *TokenBucketLimiter) tryAcquire(tokens int, caller string, record bool) (uint64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.leases) >= l.slots {
		l.reclaimStale()
	}
	haveTokens := l.tokens >= tokens
	haveSlot := len(l.leases) < l.slots

	if haveTokens && haveSlot {
		l.tokens -= tokens
		l.nextID++
		l.leases[l.nextID] = lease{since: time.Now(), caller: caller}
		return l.nextID, true
	}

	if record {
		if !haveTokens {
			l.tokenLimitHits++
			l.logger.Info("%s request budget exhausted, waiting for refill (need %d, have %d, caller: %s)",
				l.provider, tokens, l.tokens, caller)
		}
		if !haveSlot {
			l.concurrencyHits++
			l.logger.Info("%s at %d/%d in-flight calls, waiting for a slot (caller: %s)",
				l.provider, len(l.leases), l.slots, caller)
		}
	}
	return 0, false
}

// release frees a slot. Tokens are spent, not refunded. A lease already
// reclaimed as stale is ignored.
func (l *TokenBucketLimiter) release(id uint64) {
	l.mu.Lock()
	delete(l.leases, id)
	l.mu.Unlock()
}

// reclaimStale must be called with l.mu held.
func (l *TokenBucketLimiter) reclaimStale() {
	now := time.Now()
	for id, ls := range l.leases {
		if held := now.Sub(ls.since); held > l.leaseTTL {
			delete(l.leases, id)
			l.logger.Error("Force-released %s slot held %v by %s", l.provider, held.Round(time.Millisecond), ls.caller)
		}
	}
}

func (l *TokenBucketLimiter) refill() {
	l.mu.Lock()
	defer l.mu.Unlock()

	before := l.tokens
	l.tokens = min(l.tokens+l.perFill, l.capacity)
	if l.tokens != before {
		l.logger.Debug("%s bucket refilled: %d -> %d (max: %d)", l.provider, before, l.tokens, l.capacity)
	}
}

// GetStats returns a snapshot under the limiter lock.
func (l *TokenBucketLimiter) GetStats() LimiterStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	return LimiterStats{
		Provider:            l.provider,
		AvailableTokens:     l.tokens,
		MaxCapacity:         l.capacity,
		ActiveRequests:      len(l.leases),
		MaxConcurrency:      l.slots,
		TokenLimitHits:      l.tokenLimitHits,
		ConcurrencyHits:     l.concurrencyHits,
		TrackedAcquisitions: len(l.leases),
	}
}

// ProviderLimiterMap holds a limiter per configured provider and refills them all
// from one ticker. Providers without a positive budget are unlimited.
type ProviderLimiterMap struct {
	limiters map[string]*TokenBucketLimiter
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewProviderLimiterMap builds the limiters and starts refilling them until Stop or ctx ends.
func NewProviderLimiterMap(ctx context.Context, configs map[string]Config, requestTimeout time.Duration) *ProviderLimiterMap {
	ctx, cancel := context.WithCancel(ctx)

	m := &ProviderLimiterMap{
		limiters: make(map[string]*TokenBucketLimiter, len(configs)),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	for provider, cfg := range configs {
		if cfg.RequestsPerMinute > 0 {
			m.limiters[provider] = NewTokenBucketLimiter(provider, cfg, requestTimeout)
		}
	}
	go m.refillLoop(ctx)
	return m
}

func (p *ProviderLimiterMap) refillLoop(ctx context.Context) {
	defer close(p.done)
	ticker := time.NewTicker(refillInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, l := range p.limiters {
				l.refill()
			}
		}
	}
}

// Stop halts refills and waits for the refill goroutine to exit.
func (p *ProviderLimiterMap) Stop() {
	p.cancel()
	<-p.done
}

// Get returns the limiter for provider, or nil when it is unlimited.
func (p *ProviderLimiterMap) Get(provider string) Limiter {
	if l, ok := p.limiters[provider]; ok {
		return l
	}
	return nil
}

// Providers lists limited providers in sorted order.
func (p *ProviderLimiterMap) Providers() []string {
	return slices.Sorted(maps.Keys(p.limiters))
}

// GetAllStats snapshots every limiter.
func (p *ProviderLimiterMap) GetAllStats() map[string]LimiterStats {
	stats := make(map[string]LimiterStats, len(p.limiters))
	for provider, limiter := range p.limiters {
		stats[provider] = limiter.GetStats()
	}
	return stats
}
