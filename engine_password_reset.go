package authshield

import (
	"context"
	"errors"

	"github.com/MrEthical07/authshield/ratelimit"
	"github.com/MrEthical07/authshield/token"
	"go.uber.org/zap"
)

// PasswordResetRequestedMessage is the response to every accepted
// password reset request, whether or not the email belongs to an account.
const PasswordResetRequestedMessage = "If an account with that email exists, a password reset link has been sent."

// RequestPasswordReset starts a password reset for email.
//
// The reset limiter is keyed by the target email. A token is issued and
// mailed only when the account exists and its email is verified; every
// other outcome returns the same nil error so callers cannot probe which
// emails are registered. Store failures during the lookup are logged and
// also answered generically.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	email = NormalizeEmail(email)
	if !validEmail(email) {
		return errValidation(map[string]string{"email": "must be a valid email address"})
	}

	if res := e.checkLimit(ctx, ratelimit.ProfilePasswordReset, email); !res.Success {
		e.metrics.Inc(MetricPasswordResetRateLimited)
		e.emit(ctx, EventPasswordResetRequest, false, "", email, reason("rate_limited"))
		return errRateLimited(res.RetryAfter)
	}
	e.metrics.Inc(MetricPasswordResetRequest)

	user, err := e.users.GetUserByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			e.metrics.Inc(MetricServiceUnavailable)
			e.logger.Error("password reset lookup failed", zap.Error(err))
		}
		e.emit(ctx, EventPasswordResetRequest, false, "", email, reason("unknown_email"))
		return nil
	}
	if user.EmailVerifiedAt == nil {
		e.emit(ctx, EventPasswordResetRequest, false, user.ID, email, reason("email_not_verified"))
		return nil
	}

	tok, err := e.tokens.Generate(ctx, token.PasswordReset, user.ID)
	if err != nil {
		e.logger.Error("password reset token not issued",
			zap.String("user_id", user.ID),
			zap.Error(err),
		)
		e.emit(ctx, EventPasswordResetRequest, false, user.ID, email, reason("token_error"))
		return nil
	}
	e.tokenGenerated(ctx, user, token.PasswordReset)

	err = e.notifier.SendPasswordResetEmail(ctx, user.Email, user.Name, tok.Value, tok.ExpiresAt)
	e.notifyFailed("password_reset", user.ID, err)

	e.emit(ctx, EventPasswordResetRequest, true, user.ID, email, nil)
	return nil
}

// ResetPassword redeems a password reset token and sets newPassword.
//
// Redemptions share the password_reset profile with requests, keyed by
// client IP here. On success the lockout state is cleared, every session of
// the account is revoked and a password-changed notification is sent.
func (e *Engine) ResetPassword(ctx context.Context, value, newPassword string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if res := e.checkLimit(ctx, ratelimit.ProfilePasswordReset, rateLimitIPKey(ctx)); !res.Success {
		e.metrics.Inc(MetricPasswordResetRateLimited)
		e.emit(ctx, EventPasswordResetComplete, false, "", "", reason("rate_limited"))
		return errRateLimited(res.RetryAfter)
	}
	if value == "" || newPassword == "" {
		fields := map[string]string{}
		if value == "" {
			fields["token"] = "is required"
		}
		if newPassword == "" {
			fields["password"] = "is required"
		}
		return errValidation(fields)
	}

	v, err := e.tokens.Validate(ctx, token.PasswordReset, value)
	if err != nil {
		return e.unavailable("reset.validate", err)
	}
	if rerr := e.rejectToken(ctx, token.PasswordReset, v); rerr != nil {
		e.metrics.Inc(MetricPasswordResetFailure)
		e.emit(ctx, EventPasswordResetComplete, false, v.UserID, "", reason(string(rerr.Code)))
		return rerr
	}

	user, err := e.users.GetUserByID(ctx, v.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.metrics.Inc(MetricPasswordResetFailure)
			return errTokenInvalid()
		}
		return e.unavailable("reset.lookup", err, zap.String("user_id", v.UserID))
	}
	if perr := e.checkPasswordPolicy(newPassword, user.Email); perr != nil {
		e.metrics.Inc(MetricPasswordResetFailure)
		return perr
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return e.unavailable("reset.hash", err, zap.String("user_id", user.ID))
	}

	// The token is spent before the write so a concurrent redemption of the
	// same value loses here.
	spent, err := e.tokens.Invalidate(ctx, token.PasswordReset, value)
	if err != nil {
		return e.unavailable("reset.consume", err, zap.String("user_id", user.ID))
	}
	if !spent {
		e.metrics.Inc(MetricPasswordResetFailure)
		return errTokenInvalid()
	}
	e.tokenUsed(ctx, user, token.PasswordReset)

	now := e.now()
	if err := e.users.UpdatePassword(ctx, user.ID, hash, now); err != nil {
		return e.unavailable("reset.update", err, zap.String("user_id", user.ID))
	}
	if user.FailedLoginAttempts != 0 || user.AccountLockedUntil != nil {
		if err := e.users.UpdateLockout(ctx, user.ID, 0, nil, now); err != nil {
			e.logger.Warn("lockout not cleared after reset", zap.String("user_id", user.ID), zap.Error(err))
		}
	}

	e.revokeSessions(ctx, user.ID, "")

	err = e.notifier.SendPasswordChangedNotification(ctx, user.Email, user.Name, now)
	e.notifyFailed("password_changed", user.ID, err)

	e.metrics.Inc(MetricPasswordResetComplete)
	e.emit(ctx, EventPasswordResetComplete, true, user.ID, user.Email, nil)
	return nil
}

// revokeSessions deletes every session of userID except the one named.
// Failures are logged; the password write has already succeeded.
func (e *Engine) revokeSessions(ctx context.Context, userID, except string) {
	n, err := e.sessions.DeleteAllForUser(ctx, userID, except)
	if err != nil {
		e.logger.Warn("session revocation failed", zap.String("user_id", userID), zap.Error(err))
		return
	}
	for i := 0; i < n; i++ {
		e.metrics.Inc(MetricSessionRevoked)
	}
}
