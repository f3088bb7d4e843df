package authshield

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/authshield/internal/lockout"
	"go.uber.org/zap"
)

const (
	defaultLockedPageSize = 20
	maxLockedPageSize     = 100
)

// GetAccountLockoutStatus returns the lockout projection of userID.
//
// It returns ErrUserNotFound when the account does not exist. Any other
// store failure yields an unlocked projection and a nil error so status
// pages keep rendering while the store is degraded.
func (e *Engine) GetAccountLockoutStatus(ctx context.Context, userID string) (*LockoutStatus, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	cfg := e.lockout.Config()

	user, err := e.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, errUserNotFound()
		}
		e.logger.Warn("lockout status read failed",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return &LockoutStatus{
			MaxAttempts:        cfg.MaxFailedAttempts,
			RemainingAttempts:  cfg.MaxFailedAttempts,
			NextLockoutMinutes: lockout.CeilMinutes(e.lockout.Duration(cfg.MaxFailedAttempts)),
		}, nil
	}

	now := e.now()
	attempts := user.FailedLoginAttempts
	status := &LockoutStatus{
		FailedAttempts:     attempts,
		MaxAttempts:        cfg.MaxFailedAttempts,
		NextLockoutMinutes: lockout.CeilMinutes(e.lockout.Duration(attempts + 1)),
	}
	if remaining := cfg.MaxFailedAttempts - attempts; remaining > 0 {
		status.RemainingAttempts = remaining
	}
	if attempts >= cfg.MaxFailedAttempts {
		status.LockoutNumber = e.lockout.LockoutCount(attempts) + 1
	}
	if user.AccountLockedUntil != nil && now.Before(*user.AccountLockedUntil) {
		until := *user.AccountLockedUntil
		status.IsLocked = true
		status.LockedUntil = &until
		status.MinutesRemaining = lockout.MinutesRemaining(&until, now)
	}
	return status, nil
}

// UnlockAccount clears the lockout state of userID on behalf of adminID.
//
// A non-admin caller gets ErrPermissionDenied before the target is looked
// up. An account with no failures and no active lock yields
// ErrAccountNotLocked.
func (e *Engine) UnlockAccount(ctx context.Context, userID, adminID, reasonText string) (*UserView, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if err := e.requireAdmin(ctx, adminID); err != nil {
		return nil, err
	}

	user, err := e.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, errUserNotFound()
		}
		return nil, e.unavailable("unlock.lookup", err, zap.String("user_id", userID))
	}

	now := e.now()
	locked := user.AccountLockedUntil != nil && now.Before(*user.AccountLockedUntil)
	if user.FailedLoginAttempts == 0 && !locked {
		return nil, errAccountNotLocked()
	}

	if err := e.users.UpdateLockout(ctx, user.ID, 0, nil, now); err != nil {
		return nil, e.unavailable("unlock.update", err, zap.String("user_id", userID))
	}
	previous := user.FailedLoginAttempts
	user.FailedLoginAttempts = 0
	user.AccountLockedUntil = nil
	user.UpdatedAt = now

	reasonText = strings.TrimSpace(reasonText)
	if reasonText == "" {
		reasonText = "administrative unlock"
	}
	e.metrics.Inc(MetricAccountUnlocked)
	e.emit(ctx, EventAccountUnlock, true, user.ID, user.Email, map[string]any{
		DetailAdminID:        adminID,
		DetailReason:         reasonText,
		DetailFailedAttempts: previous,
	})
	e.logger.Info("account unlocked",
		zap.String("user_id", user.ID),
		zap.String("admin_id", adminID),
	)
	return user.View(), nil
}

// GetLockedAccounts lists accounts that are locked now or whose failure
// count is at or above the threshold. limit defaults to 20 and is capped
// at 100.
func (e *Engine) GetLockedAccounts(ctx context.Context, adminID string, limit, offset int) (*LockedAccountsPage, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if err := e.requireAdmin(ctx, adminID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultLockedPageSize
	}
	if limit > maxLockedPageSize {
		limit = maxLockedPageSize
	}
	if offset < 0 {
		offset = 0
	}

	now := e.now()
	users, total, err := e.users.ListLockedAccounts(ctx, now, e.lockout.Config().MaxFailedAttempts, limit, offset)
	if err != nil {
		return nil, e.unavailable("locked.list", err)
	}

	page := &LockedAccountsPage{
		Accounts: make([]LockedAccount, 0, len(users)),
		Total:    total,
		Limit:    limit,
		Offset:   offset,
	}
	for _, u := range users {
		row := LockedAccount{
			User:           u.View(),
			FailedAttempts: u.FailedLoginAttempts,
			LockedUntil:    u.AccountLockedUntil,
		}
		if u.AccountLockedUntil != nil && now.Before(*u.AccountLockedUntil) {
			row.IsLocked = true
			row.MinutesRemaining = lockout.MinutesRemaining(u.AccountLockedUntil, now)
		}
		page.Accounts = append(page.Accounts, row)
	}
	return page, nil
}

// requireAdmin resolves adminID and checks its role. Missing principals and
// store failures are both reported as permission denied.
func (e *Engine) requireAdmin(ctx context.Context, adminID string) error {
	if adminID == "" {
		return errPermissionDenied()
	}
	admin, err := e.users.GetUserByID(ctx, adminID)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			e.logger.Warn("admin lookup failed", zap.String("admin_id", adminID), zap.Error(err))
		}
		return errPermissionDenied()
	}
	if admin.Role != RoleAdmin {
		return errPermissionDenied()
	}
	return nil
}
