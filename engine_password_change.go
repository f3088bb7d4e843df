package authshield

import (
	"context"
	"errors"

	"github.com/MrEthical07/authshield/ratelimit"
	"go.uber.org/zap"
)

// ChangePassword replaces the password of the account behind sessionHandle.
//
// Attempts are limited per account by the password_change profile before
// the current password is checked. The current password must verify. The
// new password must satisfy the policy and differ from the current one.
// Every other session of the account is revoked; the calling session stays
// valid.
func (e *Engine) ChangePassword(ctx context.Context, sessionHandle, currentPassword, newPassword string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	info, err := e.ValidateSession(ctx, sessionHandle)
	if err != nil {
		return err
	}
	if res := e.checkLimit(ctx, ratelimit.ProfilePasswordChange, info.UserID); !res.Success {
		e.metrics.Inc(MetricPasswordChangeFailure)
		e.emit(ctx, EventPasswordChange, false, info.UserID, info.Email, reason("rate_limited"))
		return errRateLimited(res.RetryAfter)
	}

	if currentPassword == "" || newPassword == "" {
		fields := map[string]string{}
		if currentPassword == "" {
			fields["currentPassword"] = "is required"
		}
		if newPassword == "" {
			fields["newPassword"] = "is required"
		}
		return errValidation(fields)
	}

	user, err := e.users.GetUserByID(ctx, info.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return errSessionInvalid()
		}
		return e.unavailable("change.lookup", err, zap.String("user_id", info.UserID))
	}

	ok, err := e.hasher.Verify(currentPassword, user.PasswordHash)
	if err != nil || !ok {
		e.metrics.Inc(MetricPasswordChangeFailure)
		e.emit(ctx, EventPasswordChange, false, user.ID, user.Email, reason("invalid_current_password"))
		return errInvalidCredentials()
	}
	if currentPassword == newPassword {
		e.metrics.Inc(MetricPasswordChangeFailure)
		return errPasswordReuse()
	}
	if perr := e.checkPasswordPolicy(newPassword, user.Email); perr != nil {
		e.metrics.Inc(MetricPasswordChangeFailure)
		return perr
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return e.unavailable("change.hash", err, zap.String("user_id", user.ID))
	}
	now := e.now()
	if err := e.users.UpdatePassword(ctx, user.ID, hash, now); err != nil {
		return e.unavailable("change.update", err, zap.String("user_id", user.ID))
	}

	e.revokeSessions(ctx, user.ID, info.SessionID)

	err = e.notifier.SendPasswordChangedNotification(ctx, user.Email, user.Name, now)
	e.notifyFailed("password_changed", user.ID, err)

	e.metrics.Inc(MetricPasswordChangeSuccess)
	e.emit(ctx, EventPasswordChange, true, user.ID, user.Email, nil)
	return nil
}
