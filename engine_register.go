package authshield

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/MrEthical07/authshield/ratelimit"
	"github.com/MrEthical07/authshield/token"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Register creates an account.
//
// The registration limiter is keyed by client IP. When email verification
// is required a verification token is issued and mailed; a failed send
// does not fail the registration and is reported through
// RegisterResult.VerificationSent.
func (e *Engine) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	email := NormalizeEmail(in.Email)
	name := strings.TrimSpace(in.Name)

	if res := e.checkLimit(ctx, ratelimit.ProfileRegistration, rateLimitIPKey(ctx)); !res.Success {
		e.metrics.Inc(MetricRegistrationRateLimited)
		e.emit(ctx, EventRegistration, false, "", email, reason("rate_limited"))
		return nil, errRateLimited(res.RetryAfter)
	}

	fields := map[string]string{}
	if !validEmail(email) {
		fields["email"] = "must be a valid email address"
	}
	if name == "" {
		fields["name"] = "is required"
	} else if utf8.RuneCountInString(name) > e.config.Registration.MaxNameLength {
		fields["name"] = "is too long"
	}
	if in.Password == "" {
		fields["password"] = "is required"
	}
	if len(fields) > 0 {
		e.emit(ctx, EventRegistration, false, "", email, reason("validation"))
		return nil, errValidation(fields)
	}
	if perr := e.checkPasswordPolicy(in.Password, email); perr != nil {
		e.emit(ctx, EventRegistration, false, "", email, reason("password_policy"))
		return nil, perr
	}

	hash, err := e.hasher.Hash(in.Password)
	if err != nil {
		return nil, e.unavailable("register.hash", err)
	}

	now := e.now()
	user := &UserAccount{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Role:         e.config.Registration.DefaultRole,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if !e.config.Registration.RequireEmailVerification {
		user.EmailVerifiedAt = &now
	}

	if err := e.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, ErrAccountExists) {
			e.metrics.Inc(MetricRegistrationDuplicate)
			e.emit(ctx, EventRegistration, false, "", email, reason("duplicate_email"))
			return nil, errAccountExists()
		}
		return nil, e.unavailable("register.create", err)
	}

	e.metrics.Inc(MetricRegistrationSuccess)
	e.emit(ctx, EventRegistration, true, user.ID, email, nil)
	e.logger.Info("account registered", zap.String("user_id", user.ID))

	result := &RegisterResult{User: user.View()}
	if e.config.Registration.RequireEmailVerification {
		result.VerificationSent = e.sendVerification(ctx, user)
	}
	return result, nil
}

// ResendVerification issues a fresh verification token for email. The
// response is identical whether or not the account exists or is already
// verified.
func (e *Engine) ResendVerification(ctx context.Context, email string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	email = NormalizeEmail(email)
	if !validEmail(email) {
		return errValidation(map[string]string{"email": "must be a valid email address"})
	}

	if res := e.checkLimit(ctx, ratelimit.ProfileEmailVerification, email); !res.Success {
		e.emit(ctx, EventEmailVerification, false, "", email, reason("rate_limited"))
		return errRateLimited(res.RetryAfter)
	}

	user, err := e.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.emit(ctx, EventEmailVerification, false, "", email, reason("resend_unknown_email"))
			return nil
		}
		return e.unavailable("resend.lookup", err)
	}
	if user.EmailVerifiedAt != nil {
		e.emit(ctx, EventEmailVerification, false, user.ID, email, reason("resend_already_verified"))
		return nil
	}

	e.metrics.Inc(MetricVerificationResend)
	e.sendVerification(ctx, user)
	return nil
}

// sendVerification issues a verification token and mails it. It reports
// whether the email was handed to the notifier successfully.
func (e *Engine) sendVerification(ctx context.Context, user *UserAccount) bool {
	tok, err := e.tokens.Generate(ctx, token.EmailVerification, user.ID)
	if err != nil {
		e.logger.Error("verification token not issued",
			zap.String("user_id", user.ID),
			zap.Error(err),
		)
		return false
	}
	e.tokenGenerated(ctx, user, token.EmailVerification)

	err = e.notifier.SendVerificationEmail(ctx, user.Email, user.Name, tok.Value, tok.ExpiresAt)
	e.notifyFailed("verification", user.ID, err)
	return err == nil
}

func (e *Engine) tokenGenerated(ctx context.Context, user *UserAccount, kind token.Kind) {
	e.metrics.Inc(MetricTokenGenerated)
	e.emit(ctx, EventTokenGenerated, true, user.ID, user.Email, map[string]any{
		DetailTokenKind: kind.String(),
	})
}
