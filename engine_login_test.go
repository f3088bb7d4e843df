package authshield_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/authshield"
	"github.com/MrEthical07/authshield/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginSuccessCreatesSession(t *testing.T) {
	h := newHarness(t)
	h.seedUser(t, "u1", "alice@example.com", true)
	ctx := ipCtx("203.0.113.7")

	res, err := h.engine.Login(ctx, "  Alice@Example.com ", testPassword)
	require.NoError(t, err)
	assert.Equal(t, "u1", res.User.ID)
	assert.NotEmpty(t, res.SessionID)
	assert.NotEmpty(t, res.SessionToken)
	assert.Equal(t, h.clock.Now().Add(7*24*time.Hour), res.ExpiresAt)

	info, err := h.engine.ValidateSession(ctx, res.SessionToken)
	require.NoError(t, err)
	assert.Equal(t, res.SessionID, info.SessionID)
	assert.Equal(t, "u1", info.UserID)

	u := h.user(t, "u1")
	require.NotNil(t, u.LastLoginAt)
	assert.Equal(t, "203.0.113.7", u.LastLoginIP)

	evs, total, err := h.events.Query(context.Background(), authshield.EventFilter{
		Types:   []authshield.EventType{authshield.EventLoginAttempt},
		Success: authshield.BoolPtr(true),
	})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, "203.0.113.7", evs[0].IP)
	assert.Equal(t, "test-agent", evs[0].UserAgent)
}

func TestLoginUnknownEmailAndWrongPasswordLookIdentical(t *testing.T) {
	h := newHarness(t)
	h.seedUser(t, "u1", "alice@example.com", true)
	ctx := ipCtx("198.51.100.1")

	_, errUnknown := h.engine.Login(ctx, "nobody@example.com", testPassword)
	_, errWrong := h.engine.Login(ctx, "alice@example.com", "Wrong-Horse9")

	a := requireCode(t, errUnknown, authshield.CodeInvalidCredentials)
	b := requireCode(t, errWrong, authshield.CodeInvalidCredentials)
	assert.Equal(t, a.Message, b.Message)
	assert.Equal(t, "Invalid credentials", a.Message)
}

func TestLoginMissingPasswordHashIsInvalidCredentials(t *testing.T) {
	h := newHarness(t)
	h.seedUser(t, "u1", "sso@example.com", true, func(u *authshield.UserAccount) {
		u.PasswordHash = ""
	})

	_, err := h.engine.Login(ipCtx("198.51.100.2"), "sso@example.com", testPassword)
	requireCode(t, err, authshield.CodeInvalidCredentials)
	assert.Zero(t, h.hasher.verifies.Load())
}

func TestLoginLockoutThreshold(t *testing.T) {
	h := newHarness(t)
	h.seedUser(t, "u1", "bob@example.com", true)
	ctx := ipCtx("198.51.100.3")

	for i := 1; i <= 4; i++ {
		_, err := h.engine.Login(ctx, "bob@example.com", "Wrong-Horse9")
		requireCode(t, err, authshield.CodeInvalidCredentials)
		u := h.user(t, "u1")
		assert.Equal(t, i, u.FailedLoginAttempts)
		assert.Nil(t, u.AccountLockedUntil, "attempt %d", i)
	}

	_, err := h.engine.Login(ctx, "bob@example.com", "Wrong-Horse9")
	ae := requireCode(t, err, authshield.CodeAccountLocked)
	assert.True(t, errors.Is(err, authshield.ErrAccountLocked))
	assert.Equal(t, 30, ae.LockoutMinutes)
	assert.Equal(t, 30*60, ae.RetryAfter)

	u := h.user(t, "u1")
	assert.Equal(t, 5, u.FailedLoginAttempts)
	require.NotNil(t, u.AccountLockedUntil)
	assert.Equal(t, h.clock.Now().Add(30*time.Minute), *u.AccountLockedUntil)

	assert.Len(t, h.notifier.byKind("lockout"), 1)
	assert.Equal(t, 1, h.events.Count(authshield.EventAccountLockout))

	verifies := h.hasher.verifies.Load()
	h.clock.Advance(10 * time.Minute)
	_, err = h.engine.Login(ctx, "bob@example.com", testPassword)
	ae = requireCode(t, err, authshield.CodeAccountLocked)
	assert.Equal(t, 20, ae.LockoutMinutes)
	assert.Equal(t, verifies, h.hasher.verifies.Load(), "locked account must not reach password verification")
	assert.Equal(t, 5, h.user(t, "u1").FailedLoginAttempts)
}

func TestLoginSecondTrancheDoublesLockout(t *testing.T) {
	h := newHarness(t)
	h.seedUser(t, "u1", "carol@example.com", true, func(u *authshield.UserAccount) {
		u.FailedLoginAttempts = 9
		u.UpdatedAt = u.UpdatedAt.Add(-time.Minute)
	})

	_, err := h.engine.Login(ipCtx("198.51.100.4"), "carol@example.com", "Wrong-Horse9")
	ae := requireCode(t, err, authshield.CodeAccountLocked)
	assert.Equal(t, 60, ae.LockoutMinutes)

	u := h.user(t, "u1")
	assert.Equal(t, 10, u.FailedLoginAttempts)
	require.NotNil(t, u.AccountLockedUntil)
	assert.Equal(t, h.clock.Now().Add(time.Hour), *u.AccountLockedUntil)
}

func TestLoginResetWindowAmnesty(t *testing.T) {
	h := newHarness(t)
	h.seedUser(t, "u1", "dave@example.com", true, func(u *authshield.UserAccount) {
		u.FailedLoginAttempts = 4
		u.UpdatedAt = u.UpdatedAt.Add(-16 * time.Minute)
	})

	_, err := h.engine.Login(ipCtx("198.51.100.5"), "dave@example.com", "Wrong-Horse9")
	requireCode(t, err, authshield.CodeInvalidCredentials)

	u := h.user(t, "u1")
	assert.Equal(t, 1, u.FailedLoginAttempts)
	assert.Nil(t, u.AccountLockedUntil)
}

func TestLoginSuccessResetsLockoutState(t *testing.T) {
	h := newHarness(t)
	h.seedUser(t, "u1", "erin@example.com", true, func(u *authshield.UserAccount) {
		expired := u.UpdatedAt.Add(-time.Minute)
		u.FailedLoginAttempts = 7
		u.AccountLockedUntil = &expired
	})

	_, err := h.engine.Login(ipCtx("198.51.100.6"), "erin@example.com", testPassword)
	require.NoError(t, err)

	u := h.user(t, "u1")
	assert.Zero(t, u.FailedLoginAttempts)
	assert.Nil(t, u.AccountLockedUntil)
}

func TestLoginLockExpiresThenRelocksInSameTranche(t *testing.T) {
	h := newHarness(t)
	h.seedUser(t, "u1", "frank@example.com", true)
	ctx := ipCtx("198.51.100.7")

	for i := 0; i < 5; i++ {
		h.engine.Login(ctx, "frank@example.com", "Wrong-Horse9")
	}
	require.NotNil(t, h.user(t, "u1").AccountLockedUntil)

	// Clear the lapsed lock with a fresh update so the next failure falls
	// inside the reset window and continues the count.
	h.clock.Advance(31 * time.Minute)
	h.users.UpdateLockout(context.Background(), "u1", 5, nil, h.clock.Now())

	// Attempt 6 is still tranche 0: (6-5)/5 == 0, so the base duration.
	_, err := h.engine.Login(ctx, "frank@example.com", "Wrong-Horse9")
	ae := requireCode(t, err, authshield.CodeAccountLocked)
	assert.Equal(t, 30, ae.LockoutMinutes)

	for i := 0; i < 3; i++ {
		_, err := h.engine.Login(ctx, "frank@example.com", "Wrong-Horse9")
		requireCode(t, err, authshield.CodeAccountLocked)
	}
	u := h.user(t, "u1")
	assert.Equal(t, 6, u.FailedLoginAttempts)
	require.NotNil(t, u.AccountLockedUntil)
	assert.Equal(t, h.clock.Now().Add(30*time.Minute), *u.AccountLockedUntil)
}

func TestLoginUnverifiedEmail(t *testing.T) {
	h := newHarness(t)
	h.seedUser(t, "u1", "gina@example.com", false)

	_, err := h.engine.Login(ipCtx("198.51.100.8"), "gina@example.com", testPassword)
	requireCode(t, err, authshield.CodeEmailNotVerified)
	assert.Zero(t, h.user(t, "u1").FailedLoginAttempts)
}

func TestLoginRateLimitedBeforeCredentialCheck(t *testing.T) {
	h := newHarness(t, func(cfg *authshield.Config) {
		cfg.RateLimit.Profiles = ratelimit.DefaultProfiles()
	})
	h.seedUser(t, "u1", "hank@example.com", true)
	ctx := ipCtx("192.0.2.10")

	for i := 0; i < 5; i++ {
		_, err := h.engine.Login(ctx, "hank@example.com", testPassword)
		require.NoError(t, err, "attempt %d", i+1)
	}
	verifies := h.hasher.verifies.Load()

	_, err := h.engine.Login(ctx, "hank@example.com", testPassword)
	ae := requireCode(t, err, authshield.CodeRateLimited)
	assert.Equal(t, 900, ae.RetryAfter)
	assert.Equal(t, verifies, h.hasher.verifies.Load())

	_, err = h.engine.Login(ipCtx("192.0.2.11"), "hank@example.com", testPassword)
	require.NoError(t, err, "other IPs keep their own budget")

	h.clock.Advance(15*time.Minute + time.Second)
	_, err = h.engine.Login(ctx, "hank@example.com", testPassword)
	require.NoError(t, err)
}

func TestLoginCustomLimitForIdentifier(t *testing.T) {
	h := newHarness(t, func(cfg *authshield.Config) {
		cfg.RateLimit.Profiles = ratelimit.DefaultProfiles()
		cfg.RateLimit.Custom = map[ratelimit.Profile]map[string]int{
			ratelimit.ProfileLogin: {"203.0.113.50": 8},
		}
	})
	h.seedUser(t, "u1", "ivy@example.com", true)
	office := ipCtx("203.0.113.50")

	for i := 0; i < 8; i++ {
		_, err := h.engine.Login(office, "ivy@example.com", testPassword)
		require.NoError(t, err, "attempt %d", i+1)
	}
	_, err := h.engine.Login(office, "ivy@example.com", testPassword)
	requireCode(t, err, authshield.CodeRateLimited)

	other := ipCtx("203.0.113.51")
	for i := 0; i < 5; i++ {
		_, err := h.engine.Login(other, "ivy@example.com", testPassword)
		require.NoError(t, err, "attempt %d", i+1)
	}
	_, err = h.engine.Login(other, "ivy@example.com", testPassword)
	requireCode(t, err, authshield.CodeRateLimited)
}

func TestLoginValidation(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.Login(ipCtx("192.0.2.12"), "", "")
	ae := requireCode(t, err, authshield.CodeValidation)
	assert.Contains(t, ae.Fields, "email")
	assert.Contains(t, ae.Fields, "password")
}

func TestLoginStoreFailureFailsClosed(t *testing.T) {
	h := newHarness(t)
	h.mr.Close()

	h.seedUser(t, "u1", "ivan@example.com", true)
	_, err := h.engine.Login(ipCtx("192.0.2.13"), "ivan@example.com", testPassword)
	ae := requireCode(t, err, authshield.CodeServiceUnavailable)
	assert.Equal(t, "Service temporarily unavailable, please try again", ae.Message)
	assert.NotZero(t, h.engine.MetricsSnapshot().Counters[authshield.MetricRateLimitFailOpen])
}

func TestLogoutInvalidatesSession(t *testing.T) {
	h := newHarness(t)
	h.seedUser(t, "u1", "jane@example.com", true)
	ctx := ipCtx("192.0.2.14")

	res, err := h.engine.Login(ctx, "jane@example.com", testPassword)
	require.NoError(t, err)

	require.NoError(t, h.engine.Logout(ctx, res.SessionToken))
	_, err = h.engine.ValidateSession(ctx, res.SessionToken)
	requireCode(t, err, authshield.CodeSessionInvalid)

	require.NoError(t, h.engine.Logout(ctx, res.SessionToken))
	require.NoError(t, h.engine.Logout(ctx, "garbage"))
	assert.Equal(t, 1, h.events.Count(authshield.EventLogout))
}

func TestValidateSessionRejectsExpired(t *testing.T) {
	h := newHarness(t, func(cfg *authshield.Config) {
		cfg.Session.TTL = time.Hour
	})
	h.seedUser(t, "u1", "kate@example.com", true)
	ctx := ipCtx("192.0.2.15")

	res, err := h.engine.Login(ctx, "kate@example.com", testPassword)
	require.NoError(t, err)

	h.clock.Advance(2 * time.Hour)
	_, err = h.engine.ValidateSession(ctx, res.SessionToken)
	requireCode(t, err, authshield.CodeSessionInvalid)
}

func TestNilEngine(t *testing.T) {
	var e *authshield.Engine
	_, err := e.Login(context.Background(), "a@b.co", "x")
	assert.ErrorIs(t, err, authshield.ErrEngineNotReady)
	assert.Zero(t, e.EventsDropped())
}
