package authshield_test

import (
	"testing"
	"time"

	"github.com/MrEthical07/authshield"
	"github.com/MrEthical07/authshield/ratelimit"
	"github.com/MrEthical07/authshield/token"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*authshield.Config)
		wantValid bool
	}{
		{
			name:      "defaults valid",
			mutate:    func(c *authshield.Config) {},
			wantValid: true,
		},
		{
			name: "lockout max attempts invalid",
			mutate: func(c *authshield.Config) {
				c.Lockout.MaxFailedAttempts = 0
			},
			wantValid: false,
		},
		{
			name: "lockout multiplier one valid",
			mutate: func(c *authshield.Config) {
				c.Lockout.Multiplier = 1
			},
			wantValid: true,
		},
		{
			name: "lockout multiplier invalid",
			mutate: func(c *authshield.Config) {
				c.Lockout.Multiplier = 0
			},
			wantValid: false,
		},
		{
			name: "lockout max below base invalid",
			mutate: func(c *authshield.Config) {
				c.Lockout.BaseDuration = time.Hour
				c.Lockout.MaxDuration = time.Minute
			},
			wantValid: false,
		},
		{
			name: "token bytes invalid",
			mutate: func(c *authshield.Config) {
				c.Tokens.PasswordReset.Bytes = 16
			},
			wantValid: false,
		},
		{
			name: "token encoding valid",
			mutate: func(c *authshield.Config) {
				c.Tokens.EmailVerification.Encoding = token.Base64URL
			},
			wantValid: true,
		},
		{
			name: "rate limit window invalid",
			mutate: func(c *authshield.Config) {
				p := c.RateLimit.Profiles[ratelimit.ProfileLogin]
				p.Window = 500 * time.Millisecond
				c.RateLimit.Profiles[ratelimit.ProfileLogin] = p
			},
			wantValid: false,
		},
		{
			name: "rate limit max requests invalid",
			mutate: func(c *authshield.Config) {
				p := c.RateLimit.Profiles[ratelimit.ProfileAPI]
				p.MaxRequests = 0
				c.RateLimit.Profiles[ratelimit.ProfileAPI] = p
			},
			wantValid: false,
		},
		{
			name: "argon2 memory invalid",
			mutate: func(c *authshield.Config) {
				c.Password.Argon2.Memory = 1024
			},
			wantValid: false,
		},
		{
			name: "password policy lengths invalid",
			mutate: func(c *authshield.Config) {
				c.Password.Policy.MinLength = 12
				c.Password.Policy.MaxLength = 10
			},
			wantValid: false,
		},
		{
			name: "default role admin valid",
			mutate: func(c *authshield.Config) {
				c.Registration.DefaultRole = authshield.RoleAdmin
			},
			wantValid: true,
		},
		{
			name: "default role invalid",
			mutate: func(c *authshield.Config) {
				c.Registration.DefaultRole = authshield.Role("owner")
			},
			wantValid: false,
		},
		{
			name: "session ttl invalid",
			mutate: func(c *authshield.Config) {
				c.Session.TTL = 30 * time.Second
			},
			wantValid: false,
		},
		{
			name: "session signing key short invalid",
			mutate: func(c *authshield.Config) {
				c.Session.SigningKey = []byte("short")
			},
			wantValid: false,
		},
		{
			name: "session signing key valid",
			mutate: func(c *authshield.Config) {
				c.Session.SigningKey = []byte("0123456789abcdef0123456789abcdef")
			},
			wantValid: true,
		},
		{
			name: "async events without buffer invalid",
			mutate: func(c *authshield.Config) {
				c.Events.Async = true
				c.Events.BufferSize = 0
			},
			wantValid: false,
		},
		{
			name: "event retention negative invalid",
			mutate: func(c *authshield.Config) {
				c.Events.Retention = -time.Hour
			},
			wantValid: false,
		},
		{
			name: "custom limits on known profile valid",
			mutate: func(c *authshield.Config) {
				c.RateLimit.Custom = map[ratelimit.Profile]map[string]int{
					ratelimit.ProfileAPI: {"10.0.0.1": 1000},
				}
			},
			wantValid: true,
		},
		{
			name: "custom limits on unknown profile invalid",
			mutate: func(c *authshield.Config) {
				c.RateLimit.Custom = map[ratelimit.Profile]map[string]int{
					"uploads": {"10.0.0.1": 1000},
				}
			},
			wantValid: false,
		},
		{
			name: "custom limit non-positive invalid",
			mutate: func(c *authshield.Config) {
				c.RateLimit.Custom = map[ratelimit.Profile]map[string]int{
					ratelimit.ProfileLogin: {"10.0.0.1": 0},
				}
			},
			wantValid: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := authshield.DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantValid && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
			if !tc.wantValid && err == nil {
				t.Fatal("expected invalid config, got nil")
			}
		})
	}
}
