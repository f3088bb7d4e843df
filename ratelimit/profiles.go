package ratelimit

import (
	"context"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// Profile names a limiter used by one class of endpoint.
type Profile string

const (
	ProfileLogin             Profile = "login"
	ProfileRegistration      Profile = "registration"
	ProfilePasswordReset     Profile = "password_reset"
	ProfileEmailVerification Profile = "email_verification"
	ProfilePasswordChange    Profile = "password_change"
	ProfileAPI               Profile = "api"
)

// DefaultProfiles returns the standard window configuration per profile.
func DefaultProfiles() map[Profile]Config {
	return map[Profile]Config{
		ProfileLogin:             {Prefix: "login", Window: 15 * time.Minute, MaxRequests: 5},
		ProfileRegistration:      {Prefix: "registration", Window: time.Hour, MaxRequests: 3},
		ProfilePasswordReset:     {Prefix: "password_reset", Window: time.Hour, MaxRequests: 3},
		ProfileEmailVerification: {Prefix: "email_verification", Window: time.Hour, MaxRequests: 3},
		ProfilePasswordChange:    {Prefix: "password_change", Window: 15 * time.Minute, MaxRequests: 5},
		ProfileAPI:               {Prefix: "api", Window: 15 * time.Minute, MaxRequests: 100},
	}
}

// Registry holds one limiter per profile. Profiles are independent: a
// request is only checked against the limiter its endpoint selects.
type Registry struct {
	limiters map[Profile]*Limiter
	tiers    map[Profile]*TieredLimiter
}

// NewRegistry builds a limiter per entry of profiles. Missing profiles fall
// back to [DefaultProfiles]. Password reset and email verification limiters
// identify callers by the target email when no override is supplied.
func NewRegistry(redisClient redis.UniversalClient, profiles map[Profile]Config, opts ...Option) *Registry {
	merged := DefaultProfiles()
	for p, cfg := range profiles {
		merged[p] = cfg
	}

	reg := &Registry{
		limiters: make(map[Profile]*Limiter, len(merged)),
		tiers:    make(map[Profile]*TieredLimiter),
	}
	for p, cfg := range merged {
		popts := opts
		if p == ProfilePasswordReset || p == ProfileEmailVerification {
			popts = append([]Option{WithIdentifier(EmailIdentifier("email"))}, opts...)
		}
		reg.limiters[p] = New(redisClient, cfg, popts...)
	}
	return reg
}

// Get returns the limiter for p, or nil when unknown. A nil limiter admits
// every request.
func (r *Registry) Get(p Profile) *Limiter {
	if r == nil {
		return nil
	}
	return r.limiters[p]
}

// WithCustomLimits installs per-identifier thresholds on the named
// profiles. Entries for unregistered profiles are ignored.
func (r *Registry) WithCustomLimits(custom map[Profile]map[string]int) *Registry {
	if r == nil {
		return nil
	}
	for p, limits := range custom {
		base, ok := r.limiters[p]
		if !ok || len(limits) == 0 {
			continue
		}
		r.tiers[p] = NewTiered(base, limits)
	}
	return r
}

// Tier returns the tiered limiter of p, or nil when p has no custom limits.
func (r *Registry) Tier(p Profile) *TieredLimiter {
	if r == nil {
		return nil
	}
	return r.tiers[p]
}

// Checker returns the limiter requests for p should be checked against:
// the tiered limiter when p has custom limits, otherwise the base limiter.
func (r *Registry) Checker(p Profile) Checker {
	if t := r.Tier(p); t != nil {
		return t
	}
	return r.Get(p)
}

// CheckIdentifier admits or rejects one request for identifier under p,
// honouring custom limits. Unknown profiles and a nil registry admit.
func (r *Registry) CheckIdentifier(ctx context.Context, p Profile, identifier string) Result {
	if t := r.Tier(p); t != nil {
		return t.CheckIdentifier(ctx, identifier)
	}
	return r.Get(p).CheckIdentifier(ctx, identifier)
}

// Profiles returns the registered profile names in sorted order.
func (r *Registry) Profiles() []Profile {
	if r == nil {
		return nil
	}
	out := make([]Profile, 0, len(r.limiters))
	for p := range r.limiters {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Sweep runs [Limiter.Sweep] for every profile and returns the total number
// of deleted buckets. It stops at the first error.
func (r *Registry) Sweep(ctx context.Context) (int, error) {
	total := 0
	for _, p := range r.Profiles() {
		n, err := r.limiters[p].Sweep(ctx)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
