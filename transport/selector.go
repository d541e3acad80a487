package transport

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"
)

// Strategy is an endpoint selection strategy.
type Strategy string

const (
	// StrategyRoundRobin cycles through the endpoints in order.
	StrategyRoundRobin Strategy = "round_robin"
	// StrategyRandom picks a uniformly random endpoint per selection.
	StrategyRandom Strategy = "random"
	// StrategySticky pins each key to one endpoint, optionally
	// expiring the assignment after a TTL.
	StrategySticky Strategy = "sticky"
)

// Sentinel errors for pool registration and selection.
var (
	// ErrPoolNotFound is returned when selecting from an unknown pool.
	ErrPoolNotFound = errors.New("endpoint pool not found")
	// ErrStickyKeyRequired is returned when a sticky pool is selected
	// without a key.
	ErrStickyKeyRequired = errors.New("sticky selection requires a key")
)

// Pool is a named set of collector endpoints with a selection strategy.
type Pool struct {
	// Name identifies the pool.
	Name string
	// Endpoints are dialable host:port addresses. At least one is
	// required.
	Endpoints []string
	// Strategy controls how an endpoint is chosen. Defaults to
	// round_robin.
	Strategy Strategy
	// StickyTTL expires sticky assignments after this duration. Zero
	// keeps assignments for the selector's lifetime.
	StickyTTL time.Duration
}

// Validate checks the pool definition.
func (p *Pool) Validate() error {
	if p.Name == "" {
		return errors.New("pool name is required")
	}
	if len(p.Endpoints) == 0 {
		return fmt.Errorf("pool %q has no endpoints", p.Name)
	}
	switch p.Strategy {
	case "", StrategyRoundRobin, StrategyRandom, StrategySticky:
		return nil
	default:
		return fmt.Errorf("pool %q: unknown strategy %q", p.Name, p.Strategy)
	}
}

// Selector chooses endpoints from registered pools. Thread-safe.
type Selector struct {
	mu    sync.Mutex
	pools map[string]*poolState
}

// poolState holds runtime selection state for one pool.
type poolState struct {
	pool    *Pool
	rrIndex int64
	sticky  map[string]*stickyEntry
}

// stickyEntry pins a key to an endpoint index with optional expiry.
type stickyEntry struct {
	endpointIdx int
	expiresAt   *time.Time
}

// NewSelector creates an empty selector.
func NewSelector() *Selector {
	return &Selector{pools: make(map[string]*poolState)}
}

// RegisterPool validates and registers a pool. Re-registering a name
// replaces the pool and resets its selection state.
func (s *Selector) RegisterPool(pool *Pool) error {
	if err := pool.Validate(); err != nil {
		return fmt.Errorf("pool validation failed: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pools[pool.Name] = &poolState{
		pool:   pool,
		sticky: make(map[string]*stickyEntry),
	}
	return nil
}

// Select picks an endpoint from the named pool. stickyKey is required
// for sticky pools and ignored otherwise.
func (s *Selector) Select(pool, stickyKey string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.pools[pool]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrPoolNotFound, pool)
	}

	strategy := state.pool.Strategy
	if strategy == "" {
		strategy = StrategyRoundRobin
	}

	switch strategy {
	case StrategyRoundRobin:
		return state.nextRoundRobin(), nil
	case StrategyRandom:
		return state.randomEndpoint()
	case StrategySticky:
		if stickyKey == "" {
			return "", ErrStickyKeyRequired
		}
		return state.stickyEndpoint(stickyKey), nil
	default:
		return "", fmt.Errorf("pool %q: unknown strategy %q", pool, strategy)
	}
}

// nextRoundRobin advances the rotation counter. Caller holds s.mu.
func (p *poolState) nextRoundRobin() string {
	idx := int(p.rrIndex % int64(len(p.pool.Endpoints)))
	p.rrIndex++
	return p.pool.Endpoints[idx]
}

// randomEndpoint picks a uniform random endpoint. Caller holds s.mu.
func (p *poolState) randomEndpoint() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(p.pool.Endpoints))))
	if err != nil {
		return "", fmt.Errorf("random selection failed: %w", err)
	}
	return p.pool.Endpoints[n.Int64()], nil
}

// stickyEndpoint returns the pinned endpoint for key, assigning one
// round-robin when the key is new or its assignment expired. Caller
// holds s.mu.
func (p *poolState) stickyEndpoint(key string) string {
	if entry, ok := p.sticky[key]; ok {
		if entry.expiresAt == nil || time.Now().Before(*entry.expiresAt) {
			return p.pool.Endpoints[entry.endpointIdx]
		}
		delete(p.sticky, key)
	}

	idx := int(p.rrIndex % int64(len(p.pool.Endpoints)))
	p.rrIndex++

	entry := &stickyEntry{endpointIdx: idx}
	if ttl := p.pool.StickyTTL; ttl > 0 {
		expires := time.Now().Add(ttl)
		entry.expiresAt = &expires
	}
	p.sticky[key] = entry
	return p.pool.Endpoints[idx]
}
