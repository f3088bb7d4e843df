package ratelimit

import (
	"context"
	"net/http"
	"sync"
)

// TieredLimiter applies per-identifier custom thresholds before falling
// back to the base limiter's limit. Custom and default checks share the
// base key namespace and window.
type TieredLimiter struct {
	base *Limiter

	mu     sync.RWMutex
	limits map[string]int
}

// NewTiered wraps base with the given identifier → max map.
func NewTiered(base *Limiter, custom map[string]int) *TieredLimiter {
	limits := make(map[string]int, len(custom))
	for id, max := range custom {
		if max > 0 {
			limits[id] = max
		}
	}
	return &TieredLimiter{base: base, limits: limits}
}

// SetLimit installs a custom threshold. A non-positive max removes it.
func (t *TieredLimiter) SetLimit(identifier string, max int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if max <= 0 {
		delete(t.limits, identifier)
		return
	}
	t.limits[identifier] = max
}

// LimitFor returns the threshold effective for identifier.
func (t *TieredLimiter) LimitFor(identifier string) int {
	t.mu.RLock()
	max, ok := t.limits[identifier]
	t.mu.RUnlock()
	if ok {
		return max
	}
	return t.base.Config().MaxRequests
}

// Check resolves the identifier like [Limiter.Check] and applies its tier.
func (t *TieredLimiter) Check(ctx context.Context, r *http.Request, override string) Result {
	if t == nil || t.base == nil {
		return Result{Success: true}
	}
	id := override
	if id == "" && r != nil {
		id = t.base.identify(r)
	}
	return t.CheckIdentifier(ctx, id)
}

// CheckIdentifier admits or rejects one request for identifier.
func (t *TieredLimiter) CheckIdentifier(ctx context.Context, identifier string) Result {
	if t == nil || t.base == nil {
		return Result{Success: true}
	}
	return t.base.check(ctx, t.base.key(identifier), t.LimitFor(identifier))
}
