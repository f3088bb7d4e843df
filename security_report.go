package authshield

import (
	"time"

	"github.com/MrEthical07/authshield/ratelimit"
)

// SecurityReport summarizes the effective security posture of an Engine.
// It carries no secrets.
type SecurityReport struct {
	Lockout                 LockoutReport        `json:"lockout"`
	RateLimitingActive      bool                 `json:"rateLimitingActive"`
	RateLimits              []RateLimitReport    `json:"rateLimits"`
	Argon2                  PasswordConfigReport `json:"argon2"`
	PasswordPolicy          PasswordPolicyReport `json:"passwordPolicy"`
	BcryptAccepted          bool                 `json:"bcryptAccepted"`
	HashUpgradeOnLogin      bool                 `json:"hashUpgradeOnLogin"`
	EmailVerificationActive bool                 `json:"emailVerificationActive"`
	VerificationTokenTTL    time.Duration        `json:"verificationTokenTtlNs"`
	PasswordResetTokenTTL   time.Duration        `json:"passwordResetTokenTtlNs"`
	SessionTTL              time.Duration        `json:"sessionTtlNs"`
	EventsAsync             bool                 `json:"eventsAsync"`
	EventRetention          time.Duration        `json:"eventRetentionNs"`
}

// LockoutReport mirrors [LockoutConfig].
type LockoutReport struct {
	MaxFailedAttempts int           `json:"maxFailedAttempts"`
	ResetWindow       time.Duration `json:"resetWindowNs"`
	BaseDuration      time.Duration `json:"baseDurationNs"`
	Multiplier        int           `json:"multiplier"`
	MaxDuration       time.Duration `json:"maxDurationNs"`
}

// RateLimitReport describes one limiter profile.
type RateLimitReport struct {
	Profile     ratelimit.Profile `json:"profile"`
	MaxRequests int               `json:"maxRequests"`
	Window      time.Duration     `json:"windowNs"`
}

type PasswordConfigReport struct {
	Memory      uint32 `json:"memory"`
	Time        uint32 `json:"time"`
	Parallelism uint8  `json:"parallelism"`
	SaltLength  uint32 `json:"saltLength"`
	KeyLength   uint32 `json:"keyLength"`
}

type PasswordPolicyReport struct {
	MinLength     int  `json:"minLength"`
	MaxLength     int  `json:"maxLength"`
	RequireUpper  bool `json:"requireUpper"`
	RequireLower  bool `json:"requireLower"`
	RequireDigit  bool `json:"requireDigit"`
	RequireSymbol bool `json:"requireSymbol"`
}

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}
	cfg := e.config

	var limits []RateLimitReport
	if e.limiters != nil {
		for _, p := range e.limiters.Profiles() {
			l := e.limiters.Get(p)
			if l == nil {
				continue
			}
			c := l.Config()
			limits = append(limits, RateLimitReport{Profile: p, MaxRequests: c.MaxRequests, Window: c.Window})
		}
	}

	return SecurityReport{
		Lockout: LockoutReport{
			MaxFailedAttempts: cfg.Lockout.MaxFailedAttempts,
			ResetWindow:       cfg.Lockout.ResetWindow,
			BaseDuration:      cfg.Lockout.BaseDuration,
			Multiplier:        cfg.Lockout.Multiplier,
			MaxDuration:       cfg.Lockout.MaxDuration,
		},
		RateLimitingActive: cfg.RateLimit.Enabled && len(limits) > 0,
		RateLimits:         limits,
		Argon2: PasswordConfigReport{
			Memory:      cfg.Password.Argon2.Memory,
			Time:        cfg.Password.Argon2.Time,
			Parallelism: cfg.Password.Argon2.Parallelism,
			SaltLength:  cfg.Password.Argon2.SaltLength,
			KeyLength:   cfg.Password.Argon2.KeyLength,
		},
		PasswordPolicy: PasswordPolicyReport{
			MinLength:     cfg.Password.Policy.MinLength,
			MaxLength:     cfg.Password.Policy.MaxLength,
			RequireUpper:  cfg.Password.Policy.RequireUpper,
			RequireLower:  cfg.Password.Policy.RequireLower,
			RequireDigit:  cfg.Password.Policy.RequireDigit,
			RequireSymbol: cfg.Password.Policy.RequireSymbol,
		},
		BcryptAccepted:          cfg.Password.AcceptBcrypt,
		HashUpgradeOnLogin:      cfg.Password.UpgradeOnLogin,
		EmailVerificationActive: cfg.Registration.RequireEmailVerification,
		VerificationTokenTTL:    cfg.Tokens.EmailVerification.TTL,
		PasswordResetTokenTTL:   cfg.Tokens.PasswordReset.TTL,
		SessionTTL:              cfg.Session.TTL,
		EventsAsync:             cfg.Events.Async,
		EventRetention:          cfg.Events.Retention,
	}
}
