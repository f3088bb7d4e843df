package authshield

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authshield/internal/lockout"
	"github.com/MrEthical07/authshield/password"
	"github.com/MrEthical07/authshield/ratelimit"
	"github.com/MrEthical07/authshield/token"
)

// Config is the complete engine configuration. Start from [DefaultConfig]
// and override fields before passing it to [Builder.WithConfig].
type Config struct {
	Lockout      LockoutConfig
	Tokens       token.Config
	RateLimit    RateLimitConfig
	Password     PasswordConfig
	Registration RegistrationConfig
	Session      SessionConfig
	Events       EventsConfig
	Metrics      MetricsConfig
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig controls the failed-login state machine.
//
// A lockout triggers when the failed-attempt count reaches
// MaxFailedAttempts and lasts min(BaseDuration * Multiplier^n, MaxDuration),
// where n is the number of completed lockout cycles. Failures older than
// ResetWindow are forgiven before counting the next one.
type LockoutConfig struct {
	MaxFailedAttempts int
	ResetWindow       time.Duration
	BaseDuration      time.Duration
	Multiplier        int
	MaxDuration       time.Duration
}

func (c LockoutConfig) policy() lockout.Config {
	return lockout.Config{
		MaxFailedAttempts: c.MaxFailedAttempts,
		ResetWindow:       c.ResetWindow,
		BaseDuration:      c.BaseDuration,
		Multiplier:        c.Multiplier,
		MaxDuration:       c.MaxDuration,
	}
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig holds the named limiter profiles. Profiles missing from
// the map use [ratelimit.DefaultProfiles].
//
// Custom maps a profile to per-identifier thresholds (an IP, email or user
// id, depending on how the profile keys callers) that replace the profile's
// MaxRequests for that identifier.
type RateLimitConfig struct {
	Enabled  bool
	Profiles map[ratelimit.Profile]ratelimit.Config
	Custom   map[ratelimit.Profile]map[string]int
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds hashing cost and strength rules.
type PasswordConfig struct {
	Argon2         password.Config
	Policy         password.Policy
	UpgradeOnLogin bool
	AcceptBcrypt   bool
}

// RegistrationConfig controls account creation.
type RegistrationConfig struct {
	RequireEmailVerification bool
	DefaultRole              Role
	MaxNameLength            int
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls login sessions. An empty SigningKey makes Build
// generate a random per-process key.
type SessionConfig struct {
	TTL         time.Duration
	RedisPrefix string
	SigningKey  []byte
	Issuer      string
}

/*
====================================
EVENTS CONFIG
====================================
*/

// EventsConfig controls security event delivery. With Async disabled every
// event is appended before the operation returns.
type EventsConfig struct {
	Async      bool
	BufferSize int
	DropIfFull bool
	Retention  time.Duration
}

// MetricsConfig toggles the in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULTS
====================================
*/

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Lockout: LockoutConfig{
			MaxFailedAttempts: 5,
			ResetWindow:       15 * time.Minute,
			BaseDuration:      30 * time.Minute,
			Multiplier:        2,
			MaxDuration:       24 * time.Hour,
		},
		Tokens: token.DefaultConfig(),
		RateLimit: RateLimitConfig{
			Enabled:  true,
			Profiles: ratelimit.DefaultProfiles(),
		},
		Password: PasswordConfig{
			Argon2:         password.DefaultConfig(),
			Policy:         password.DefaultPolicy(),
			UpgradeOnLogin: true,
			AcceptBcrypt:   true,
		},
		Registration: RegistrationConfig{
			RequireEmailVerification: true,
			DefaultRole:              RoleUser,
			MaxNameLength:            100,
		},
		Session: SessionConfig{
			TTL:         7 * 24 * time.Hour,
			RedisPrefix: "as",
			Issuer:      "authshield",
		},
		Events: EventsConfig{
			Async:      false,
			BufferSize: 1024,
			DropIfFull: true,
			Retention:  90 * 24 * time.Hour,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	if cfg.RateLimit.Profiles != nil {
		out.RateLimit.Profiles = make(map[ratelimit.Profile]ratelimit.Config, len(cfg.RateLimit.Profiles))
		for k, v := range cfg.RateLimit.Profiles {
			out.RateLimit.Profiles[k] = v
		}
	}
	if cfg.RateLimit.Custom != nil {
		out.RateLimit.Custom = make(map[ratelimit.Profile]map[string]int, len(cfg.RateLimit.Custom))
		for p, limits := range cfg.RateLimit.Custom {
			cp := make(map[string]int, len(limits))
			for id, max := range limits {
				cp[id] = max
			}
			out.RateLimit.Custom[p] = cp
		}
	}
	out.Session.SigningKey = cloneBytes(cfg.Session.SigningKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	if err := c.Lockout.policy().Validate(); err != nil {
		return err
	}
	if err := c.Tokens.Validate(); err != nil {
		return err
	}
	for _, p := range c.RateLimit.Profiles {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	defaults := ratelimit.DefaultProfiles()
	for p, limits := range c.RateLimit.Custom {
		_, known := defaults[p]
		if _, ok := c.RateLimit.Profiles[p]; !known && !ok {
			return fmt.Errorf("RateLimit Custom names unknown profile %q", p)
		}
		for id, max := range limits {
			if id == "" || max <= 0 {
				return fmt.Errorf("RateLimit Custom %s entries need an identifier and a positive limit", p)
			}
		}
	}
	if err := c.Password.Argon2.Validate(); err != nil {
		return err
	}
	if err := c.Password.Policy.Validate(); err != nil {
		return err
	}
	if c.Registration.DefaultRole != RoleUser && c.Registration.DefaultRole != RoleAdmin {
		return errors.New("Registration DefaultRole must be user or admin")
	}
	if c.Registration.MaxNameLength <= 0 {
		return errors.New("Registration MaxNameLength must be > 0")
	}
	if c.Session.TTL < time.Minute {
		return errors.New("Session TTL must be >= 1m")
	}
	if c.Session.RedisPrefix == "" {
		return errors.New("Session RedisPrefix is required")
	}
	if len(c.Session.SigningKey) > 0 && len(c.Session.SigningKey) < 32 {
		return errors.New("Session SigningKey must be >= 32 bytes")
	}
	if c.Events.Async && c.Events.BufferSize <= 0 {
		return errors.New("Events BufferSize must be > 0 when Async is enabled")
	}
	if c.Events.Retention < 0 {
		return errors.New("Events Retention must be >= 0")
	}
	return nil
}
