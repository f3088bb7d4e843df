package authshield

import (
	"context"
	"errors"

	"github.com/MrEthical07/authshield/ratelimit"
	"github.com/MrEthical07/authshield/token"
	"go.uber.org/zap"
)

// VerifyEmail redeems an email verification token and returns the verified
// account. Unknown and already used tokens yield ErrTokenInvalid; expired
// tokens yield ErrTokenExpired so the caller can offer a new link.
func (e *Engine) VerifyEmail(ctx context.Context, value string) (*UserView, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	if res := e.checkLimit(ctx, ratelimit.ProfileEmailVerification, rateLimitIPKey(ctx)); !res.Success {
		e.emit(ctx, EventEmailVerification, false, "", "", reason("rate_limited"))
		return nil, errRateLimited(res.RetryAfter)
	}

	v, err := e.tokens.Consume(ctx, token.EmailVerification, value)
	if err != nil {
		return nil, e.unavailable("verify.consume", err)
	}
	if rerr := e.rejectToken(ctx, token.EmailVerification, v); rerr != nil {
		e.metrics.Inc(MetricEmailVerificationFailure)
		return nil, rerr
	}

	user, err := e.users.GetUserByID(ctx, v.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.metrics.Inc(MetricEmailVerificationFailure)
			return nil, errTokenInvalid()
		}
		return nil, e.unavailable("verify.lookup", err, zap.String("user_id", v.UserID))
	}

	e.tokenUsed(ctx, user, token.EmailVerification)
	e.metrics.Inc(MetricEmailVerificationSuccess)
	e.emit(ctx, EventEmailVerification, true, user.ID, user.Email, nil)
	return user.View(), nil
}

// rejectToken maps a non-valid validation to its client error and records
// the failed redemption as an unsuccessful token_used event. It returns nil
// for valid tokens.
func (e *Engine) rejectToken(ctx context.Context, kind token.Kind, v token.Validation) *Error {
	switch v.Status {
	case token.StatusValid:
		return nil
	case token.StatusExpired:
		e.emit(ctx, EventTokenUsed, false, v.UserID, "", map[string]any{
			DetailReason:    "token_expired",
			DetailTokenKind: kind.String(),
		})
		return errTokenExpired()
	default:
		e.emit(ctx, EventTokenUsed, false, "", "", map[string]any{
			DetailReason:    "token_invalid",
			DetailTokenKind: kind.String(),
		})
		return errTokenInvalid()
	}
}

func (e *Engine) tokenUsed(ctx context.Context, user *UserAccount, kind token.Kind) {
	e.metrics.Inc(MetricTokenUsed)
	e.emit(ctx, EventTokenUsed, true, user.ID, user.Email, map[string]any{
		DetailTokenKind: kind.String(),
	})
}
