package authshield_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/authshield"
	"github.com/MrEthical07/authshield/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lockedFor(d time.Duration, attempts int, now time.Time) func(*authshield.UserAccount) {
	return func(u *authshield.UserAccount) {
		until := now.Add(d)
		u.FailedLoginAttempts = attempts
		u.AccountLockedUntil = &until
	}
}

func TestLockoutStatus(t *testing.T) {
	h := newHarness(t)
	now := h.clock.Now()
	h.seedUser(t, "fresh", "fresh@example.com", true, func(u *authshield.UserAccount) {
		u.FailedLoginAttempts = 2
	})
	h.seedUser(t, "locked", "locked@example.com", true, lockedFor(25*time.Minute+10*time.Second, 5, now))
	h.seedUser(t, "second", "second@example.com", true, lockedFor(time.Hour, 10, now))

	ctx := context.Background()

	st, err := h.engine.GetAccountLockoutStatus(ctx, "fresh")
	require.NoError(t, err)
	assert.False(t, st.IsLocked)
	assert.Equal(t, 2, st.FailedAttempts)
	assert.Equal(t, 5, st.MaxAttempts)
	assert.Equal(t, 3, st.RemainingAttempts)
	assert.Zero(t, st.LockoutNumber)
	assert.Equal(t, 30, st.NextLockoutMinutes)

	st, err = h.engine.GetAccountLockoutStatus(ctx, "locked")
	require.NoError(t, err)
	assert.True(t, st.IsLocked)
	assert.Equal(t, 1, st.LockoutNumber)
	assert.Equal(t, 26, st.MinutesRemaining)
	assert.Zero(t, st.RemainingAttempts)
	require.NotNil(t, st.LockedUntil)

	st, err = h.engine.GetAccountLockoutStatus(ctx, "second")
	require.NoError(t, err)
	assert.Equal(t, 2, st.LockoutNumber)
	assert.Equal(t, 60, st.MinutesRemaining)
	assert.Equal(t, 60, st.NextLockoutMinutes)

	_, err = h.engine.GetAccountLockoutStatus(ctx, "missing")
	assert.ErrorIs(t, err, authshield.ErrUserNotFound)
}

type brokenUsers struct {
	*memory.Users
}

func (brokenUsers) GetUserByID(context.Context, string) (*authshield.UserAccount, error) {
	return nil, errors.New("connection reset by peer")
}

func TestLockoutStatusStoreErrorIsUnlockedDefault(t *testing.T) {
	h := newHarness(t)
	engine, err := authshield.New().
		WithRedis(newRedisClient(t, h)).
		WithUserStore(brokenUsers{Users: h.users}).
		WithClock(h.clock.Now).
		Build()
	require.NoError(t, err)
	defer engine.Close()

	st, err := engine.GetAccountLockoutStatus(context.Background(), "u1")
	require.NoError(t, err)
	assert.False(t, st.IsLocked)
	assert.Equal(t, 5, st.MaxAttempts)
	assert.Equal(t, 5, st.RemainingAttempts)
	assert.Equal(t, 30, st.NextLockoutMinutes)
}

func TestUnlockAccount(t *testing.T) {
	h := newHarness(t)
	now := h.clock.Now()
	h.seedUser(t, "admin", "admin@example.com", true, func(u *authshield.UserAccount) {
		u.Role = authshield.RoleAdmin
	})
	h.seedUser(t, "member", "member@example.com", true)
	h.seedUser(t, "victim", "victim@example.com", true, lockedFor(30*time.Minute, 5, now))
	ctx := ipCtx("10.0.0.1")

	_, err := h.engine.UnlockAccount(ctx, "victim", "member", "please")
	requireCode(t, err, authshield.CodePermissionDenied)
	_, err = h.engine.UnlockAccount(ctx, "does-not-exist", "member", "")
	requireCode(t, err, authshield.CodePermissionDenied)

	_, err = h.engine.UnlockAccount(ctx, "does-not-exist", "admin", "")
	requireCode(t, err, authshield.CodeUserNotFound)

	_, err = h.engine.UnlockAccount(ctx, "member", "admin", "")
	requireCode(t, err, authshield.CodeAccountNotLocked)

	view, err := h.engine.UnlockAccount(ctx, "victim", "admin", "verified by phone")
	require.NoError(t, err)
	assert.Equal(t, "victim", view.ID)

	u := h.user(t, "victim")
	assert.Zero(t, u.FailedLoginAttempts)
	assert.Nil(t, u.AccountLockedUntil)

	evs, _, err := h.events.Query(ctx, authshield.EventFilter{Types: []authshield.EventType{authshield.EventAccountUnlock}})
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, "admin", evs[0].Details[authshield.DetailAdminID])
	assert.Equal(t, "verified by phone", evs[0].Details[authshield.DetailReason])

	_, err = h.engine.Login(ctx, "victim@example.com", testPassword)
	require.NoError(t, err)
}

func TestUnlockAccountWithExpiredLockButHighCount(t *testing.T) {
	h := newHarness(t)
	h.seedUser(t, "admin", "admin@example.com", true, func(u *authshield.UserAccount) {
		u.Role = authshield.RoleAdmin
	})
	h.seedUser(t, "lapsed", "lapsed@example.com", true, lockedFor(-time.Minute, 5, h.clock.Now()))

	_, err := h.engine.UnlockAccount(context.Background(), "lapsed", "admin", "")
	require.NoError(t, err)
	assert.Zero(t, h.user(t, "lapsed").FailedLoginAttempts)
}

func TestGetLockedAccounts(t *testing.T) {
	h := newHarness(t)
	now := h.clock.Now()
	h.seedUser(t, "admin", "admin@example.com", true, func(u *authshield.UserAccount) {
		u.Role = authshield.RoleAdmin
	})
	h.seedUser(t, "a", "a@example.com", true, lockedFor(10*time.Minute, 5, now))
	h.seedUser(t, "b", "b@example.com", true, lockedFor(-time.Minute, 6, now))
	h.seedUser(t, "c", "c@example.com", true, func(u *authshield.UserAccount) {
		u.FailedLoginAttempts = 2
	})

	_, err := h.engine.GetLockedAccounts(context.Background(), "a", 10, 0)
	requireCode(t, err, authshield.CodePermissionDenied)

	page, err := h.engine.GetLockedAccounts(context.Background(), "admin", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, 20, page.Limit)
	require.Len(t, page.Accounts, 2)

	byID := map[string]authshield.LockedAccount{}
	for _, row := range page.Accounts {
		byID[row.User.ID] = row
	}
	assert.True(t, byID["a"].IsLocked)
	assert.Equal(t, 10, byID["a"].MinutesRemaining)
	assert.False(t, byID["b"].IsLocked)
	assert.Zero(t, byID["b"].MinutesRemaining)

	page, err = h.engine.GetLockedAccounts(context.Background(), "admin", 500, 1)
	require.NoError(t, err)
	assert.Equal(t, 100, page.Limit)
	assert.Len(t, page.Accounts, 1)
}
