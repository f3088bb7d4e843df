package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/authshield"
	"github.com/MrEthical07/authshield/store/memory"
	"github.com/MrEthical07/authshield/token"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestUsersIsolation(t *testing.T) {
	ctx := context.Background()
	users := memory.NewUsers()
	require.NoError(t, users.CreateUser(ctx, &authshield.UserAccount{ID: "u1", Email: "Ada@Example.com"}))
	assert.ErrorIs(t, users.CreateUser(ctx, &authshield.UserAccount{ID: "u2", Email: "ada@example.com "}), authshield.ErrAccountExists)

	u, err := users.GetUserByEmail(ctx, "ADA@example.com")
	require.NoError(t, err)
	u.FailedLoginAttempts = 99

	again, err := users.GetUserByID(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, again.FailedLoginAttempts, "returned records are copies")

	_, err = users.GetUserByID(ctx, "ghost")
	assert.ErrorIs(t, err, authshield.ErrUserNotFound)
	assert.ErrorIs(t, users.UpdatePassword(ctx, "ghost", "h", now), authshield.ErrUserNotFound)
}

func TestUsersListLockedAccounts(t *testing.T) {
	ctx := context.Background()
	users := memory.NewUsers()
	until := now.Add(time.Hour)
	users.Put(&authshield.UserAccount{ID: "a", Email: "a@example.com", FailedLoginAttempts: 6})
	users.Put(&authshield.UserAccount{ID: "b", Email: "b@example.com", FailedLoginAttempts: 2, AccountLockedUntil: &until})
	users.Put(&authshield.UserAccount{ID: "c", Email: "c@example.com", FailedLoginAttempts: 11})
	users.Put(&authshield.UserAccount{ID: "d", Email: "d@example.com", FailedLoginAttempts: 1})

	page, total, err := users.ListLockedAccounts(ctx, now, 5, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page, 2)
	assert.Equal(t, "c", page[0].ID)
	assert.Equal(t, "a", page[1].ID)

	page, _, err = users.ListLockedAccounts(ctx, now, 5, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "b", page[0].ID)

	page, total, err = users.ListLockedAccounts(ctx, now, 5, 2, 10)
	require.NoError(t, err)
	assert.Empty(t, page)
	assert.Equal(t, 3, total)
}

func TestUsersTokenStore(t *testing.T) {
	ctx := context.Background()
	users := memory.NewUsers()
	users.Put(&authshield.UserAccount{ID: "u1", Email: "u1@example.com"})

	require.NoError(t, users.SaveToken(ctx, token.PasswordReset, "u1", "tok", now.Add(time.Hour)))
	rec, err := users.FindToken(ctx, token.PasswordReset, "tok")
	require.NoError(t, err)
	assert.Equal(t, "u1", rec.UserID)

	_, err = users.FindToken(ctx, token.EmailVerification, "tok")
	assert.ErrorIs(t, err, token.ErrNotFound, "kinds do not cross")

	ok, err := users.ConsumeToken(ctx, token.PasswordReset, "tok", now)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = users.ConsumeToken(ctx, token.PasswordReset, "tok", now)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, users.SaveToken(ctx, token.EmailVerification, "u1", "v", now.Add(-time.Minute)))
	n, err := users.ClearExpiredTokens(ctx, token.EmailVerification, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	assert.ErrorIs(t, users.SaveToken(ctx, token.PasswordReset, "ghost", "x", now), authshield.ErrUserNotFound)
}

func TestEventsQueryAndRetention(t *testing.T) {
	ctx := context.Background()
	log := memory.NewEvents()
	for i := 0; i < 5; i++ {
		require.NoError(t, log.Append(ctx, &authshield.SecurityEvent{
			ID:        string(rune('a' + i)),
			Type:      authshield.EventLoginAttempt,
			Success:   i%2 == 0,
			IP:        "192.0.2.1",
			CreatedAt: now.Add(time.Duration(i) * time.Minute),
		}))
	}

	got, total, err := log.Query(ctx, authshield.EventFilter{Success: authshield.BoolPtr(true), Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, got, 2)
	assert.Equal(t, "e", got[0].ID)
	assert.Equal(t, "c", got[1].ID)

	n, err := log.DeleteBefore(ctx, now.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Len(t, log.All(), 3)
	assert.Equal(t, 3, log.Count(authshield.EventLoginAttempt))
}
