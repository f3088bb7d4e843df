package authshield

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/authshield/internal/lockout"
	"github.com/MrEthical07/authshield/ratelimit"
	"github.com/MrEthical07/authshield/session"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Login authenticates email and password.
//
// The login limiter is consulted first and no credential check happens
// when it rejects. Unknown emails and wrong passwords both yield
// ErrInvalidCredentials. An active lock is reported with the minutes
// remaining before the password is verified. A failed verification
// advances the lockout state machine and may lock the account. A correct
// password on an unverified account yields ErrEmailNotVerified and leaves
// the failure counter untouched.
func (e *Engine) Login(ctx context.Context, email, plaintext string) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	defer func() { e.metrics.Observe(MetricLoginLatency, time.Since(start)) }()

	email = NormalizeEmail(email)

	if res := e.checkLimit(ctx, ratelimit.ProfileLogin, rateLimitIPKey(ctx)); !res.Success {
		e.metrics.Inc(MetricLoginRateLimited)
		e.emit(ctx, EventLoginAttempt, false, "", email, reason("rate_limited"))
		return nil, errRateLimited(res.RetryAfter)
	}

	if email == "" || plaintext == "" {
		fields := map[string]string{}
		if email == "" {
			fields["email"] = "is required"
		}
		if plaintext == "" {
			fields["password"] = "is required"
		}
		return nil, errValidation(fields)
	}

	user, err := e.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.metrics.Inc(MetricLoginFailure)
			e.emit(ctx, EventLoginAttempt, false, "", email, reason("unknown_email"))
			return nil, errInvalidCredentials()
		}
		return nil, e.unavailable("login.lookup", err)
	}
	if user.PasswordHash == "" {
		e.metrics.Inc(MetricLoginFailure)
		e.emit(ctx, EventLoginAttempt, false, user.ID, email, reason("no_password"))
		return nil, errInvalidCredentials()
	}

	now := e.now()
	if user.AccountLockedUntil != nil && now.Before(*user.AccountLockedUntil) {
		minutes := lockout.MinutesRemaining(user.AccountLockedUntil, now)
		e.metrics.Inc(MetricLoginLocked)
		e.emit(ctx, EventLoginAttempt, false, user.ID, email, map[string]any{
			DetailReason:         "account_locked",
			DetailLockoutMinutes: minutes,
		})
		return nil, errAccountLocked(minutes)
	}

	ok, err := e.hasher.Verify(plaintext, user.PasswordHash)
	if err != nil {
		e.logger.Error("stored password hash unreadable",
			zap.String("user_id", user.ID),
			zap.Error(err),
		)
		e.metrics.Inc(MetricLoginFailure)
		e.emit(ctx, EventLoginAttempt, false, user.ID, email, reason("hash_unreadable"))
		return nil, errInvalidCredentials()
	}
	if !ok {
		return nil, e.failLogin(ctx, user, now)
	}

	if user.EmailVerifiedAt == nil && e.config.Registration.RequireEmailVerification {
		e.metrics.Inc(MetricLoginUnverified)
		e.emit(ctx, EventLoginAttempt, false, user.ID, email, reason("email_not_verified"))
		return nil, errEmailNotVerified()
	}

	ip := clientIPFromContext(ctx)
	if err := e.users.RecordLogin(ctx, user.ID, ip, now); err != nil {
		return nil, e.unavailable("login.record", err, zap.String("user_id", user.ID))
	}
	user.FailedLoginAttempts = 0
	user.AccountLockedUntil = nil
	user.LastLoginAt = &now
	user.LastLoginIP = ip

	e.maybeUpgradeHash(ctx, user, plaintext, now)

	sess := &session.Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Email:     user.Email,
		Role:      string(user.Role),
		IP:        ip,
		UserAgent: userAgentFromContext(ctx),
		CreatedAt: now,
		ExpiresAt: now.Add(e.config.Session.TTL),
	}
	if err := e.sessions.Create(ctx, sess); err != nil {
		return nil, e.unavailable("login.session", err, zap.String("user_id", user.ID))
	}
	handle, err := e.signer.Sign(sess)
	if err != nil {
		return nil, e.unavailable("login.sign", err, zap.String("user_id", user.ID))
	}
	e.metrics.Inc(MetricSessionCreated)

	e.metrics.Inc(MetricLoginSuccess)
	e.emit(ctx, EventLoginAttempt, true, user.ID, email, nil)

	return &LoginResult{
		User:         user.View(),
		SessionID:    sess.ID,
		SessionToken: handle,
		ExpiresAt:    sess.ExpiresAt,
	}, nil
}

// failLogin applies one failed attempt to user and returns the error the
// caller should see.
func (e *Engine) failLogin(ctx context.Context, user *UserAccount, now time.Time) error {
	out := e.lockout.RegisterFailure(lockout.State{
		FailedAttempts: user.FailedLoginAttempts,
		LockedUntil:    user.AccountLockedUntil,
		LastUpdated:    user.UpdatedAt,
	}, now)

	if err := e.users.UpdateLockout(ctx, user.ID, out.State.FailedAttempts, out.State.LockedUntil, now); err != nil {
		return e.unavailable("login.lockout", err, zap.String("user_id", user.ID))
	}
	user.FailedLoginAttempts = out.State.FailedAttempts
	user.AccountLockedUntil = out.State.LockedUntil
	user.UpdatedAt = now

	e.metrics.Inc(MetricLoginFailure)
	e.emit(ctx, EventLoginAttempt, false, user.ID, user.Email, map[string]any{
		DetailReason:         "invalid_password",
		DetailFailedAttempts: out.State.FailedAttempts,
	})

	if !out.Locked {
		return errInvalidCredentials()
	}

	minutes := lockout.CeilMinutes(out.Duration)
	e.metrics.Inc(MetricLockoutTriggered)
	e.emit(ctx, EventAccountLockout, true, user.ID, user.Email, map[string]any{
		DetailFailedAttempts: out.State.FailedAttempts,
		DetailLockoutMinutes: minutes,
		DetailLockoutNumber:  out.Count + 1,
		"lockedUntil":        out.State.LockedUntil.UTC().Format(time.RFC3339),
	})
	e.logger.Info("account locked",
		zap.String("user_id", user.ID),
		zap.Int("failed_attempts", out.State.FailedAttempts),
		zap.Duration("duration", out.Duration),
	)

	err := e.notifier.SendLockoutNotification(ctx, user.Email, user.Name, *out.State.LockedUntil, out.Duration)
	e.notifyFailed("lockout", user.ID, err)

	return errAccountLocked(minutes)
}

func (e *Engine) maybeUpgradeHash(ctx context.Context, user *UserAccount, plaintext string, now time.Time) {
	if !e.config.Password.UpgradeOnLogin {
		return
	}
	needs, err := e.hasher.NeedsUpgrade(user.PasswordHash)
	if err != nil || !needs {
		return
	}
	hash, err := e.hasher.Hash(plaintext)
	if err != nil {
		e.logger.Warn("password rehash failed", zap.String("user_id", user.ID), zap.Error(err))
		return
	}
	if err := e.users.UpdatePassword(ctx, user.ID, hash, now); err != nil {
		e.logger.Warn("password rehash not persisted", zap.String("user_id", user.ID), zap.Error(err))
		return
	}
	user.PasswordHash = hash
}
