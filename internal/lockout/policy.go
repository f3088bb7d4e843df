package lockout

import (
	"errors"
	"time"
)

// Config holds the lockout thresholds and backoff parameters.
type Config struct {
	MaxFailedAttempts int
	ResetWindow       time.Duration
	BaseDuration      time.Duration
	Multiplier        int
	MaxDuration       time.Duration
}

// DefaultConfig returns 5 attempts, a 15 minute reset window and a
// 30m * 2^n backoff capped at 24h.
func DefaultConfig() Config {
	return Config{
		MaxFailedAttempts: 5,
		ResetWindow:       15 * time.Minute,
		BaseDuration:      30 * time.Minute,
		Multiplier:        2,
		MaxDuration:       24 * time.Hour,
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	if c.MaxFailedAttempts <= 0 {
		return errors.New("Lockout MaxFailedAttempts must be > 0")
	}
	if c.ResetWindow <= 0 {
		return errors.New("Lockout ResetWindow must be > 0")
	}
	if c.BaseDuration <= 0 {
		return errors.New("Lockout BaseDuration must be > 0")
	}
	if c.Multiplier < 1 {
		return errors.New("Lockout Multiplier must be >= 1")
	}
	if c.MaxDuration < c.BaseDuration {
		return errors.New("Lockout MaxDuration must be >= BaseDuration")
	}
	return nil
}

// State is the persisted lockout-relevant slice of an account.
type State struct {
	FailedAttempts int
	LockedUntil    *time.Time
	LastUpdated    time.Time
}

// Outcome describes the result of registering one failed login.
type Outcome struct {
	State    State
	Locked   bool
	Duration time.Duration
	Count    int
	WasStale bool
}

// Policy applies a [Config] to account state.
type Policy struct {
	config Config
}

// NewPolicy returns a policy for cfg. Zero-valued fields fall back to
// [DefaultConfig] values.
func NewPolicy(cfg Config) *Policy {
	def := DefaultConfig()
	if cfg.MaxFailedAttempts <= 0 {
		cfg.MaxFailedAttempts = def.MaxFailedAttempts
	}
	if cfg.ResetWindow <= 0 {
		cfg.ResetWindow = def.ResetWindow
	}
	if cfg.BaseDuration <= 0 {
		cfg.BaseDuration = def.BaseDuration
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = def.Multiplier
	}
	if cfg.MaxDuration < cfg.BaseDuration {
		cfg.MaxDuration = def.MaxDuration
		if cfg.MaxDuration < cfg.BaseDuration {
			cfg.MaxDuration = cfg.BaseDuration
		}
	}
	return &Policy{config: cfg}
}

// Config returns the effective configuration.
func (p *Policy) Config() Config {
	return p.config
}

// LockoutCount returns the number of completed lockout cycles that precede
// a lockout triggered at the given attempt count. Below the threshold it is 0.
func (p *Policy) LockoutCount(attempts int) int {
	max := p.config.MaxFailedAttempts
	if attempts < max {
		return 0
	}
	return (attempts - max) / max
}

// Duration returns min(base * multiplier^LockoutCount(attempts), maxDuration).
func (p *Policy) Duration(attempts int) time.Duration {
	d := p.config.BaseDuration
	for i := p.LockoutCount(attempts); i > 0; i-- {
		d *= time.Duration(p.config.Multiplier)
		if d >= p.config.MaxDuration {
			return p.config.MaxDuration
		}
	}
	if d > p.config.MaxDuration {
		return p.config.MaxDuration
	}
	return d
}

// IsLocked reports whether the state carries an unexpired lock at now.
func (p *Policy) IsLocked(s State, now time.Time) bool {
	return s.LockedUntil != nil && now.Before(*s.LockedUntil)
}

// RegisterFailure applies one failed login to s.
//
// If the last update predates now - ResetWindow, prior failures are treated
// as stale and the counter restarts from zero before incrementing. Reaching
// the threshold locks the account for [Policy.Duration]; otherwise any stale
// lock timestamp is cleared so LockedUntil is set only during an active lock.
func (p *Policy) RegisterFailure(s State, now time.Time) Outcome {
	attempts := s.FailedAttempts
	stale := false
	if attempts < 0 {
		attempts = 0
	}
	if !s.LastUpdated.IsZero() && s.LastUpdated.Before(now.Add(-p.config.ResetWindow)) {
		attempts = 0
		stale = true
	}
	attempts++

	out := Outcome{
		State: State{
			FailedAttempts: attempts,
			LastUpdated:    now,
		},
		WasStale: stale,
	}

	if attempts >= p.config.MaxFailedAttempts {
		d := p.Duration(attempts)
		until := now.Add(d)
		out.State.LockedUntil = &until
		out.Locked = true
		out.Duration = d
		out.Count = p.LockoutCount(attempts)
	}

	return out
}

// MinutesRemaining returns the whole minutes, rounded up, until the lock
// expires. Unlocked states return 0.
func MinutesRemaining(lockedUntil *time.Time, now time.Time) int {
	if lockedUntil == nil || !now.Before(*lockedUntil) {
		return 0
	}
	return CeilMinutes(lockedUntil.Sub(now))
}

// CeilMinutes rounds d up to whole minutes.
func CeilMinutes(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	m := int(d / time.Minute)
	if d%time.Minute != 0 {
		m++
	}
	return m
}
