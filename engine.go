package authshield

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/MrEthical07/authshield/internal/lockout"
	"github.com/MrEthical07/authshield/password"
	"github.com/MrEthical07/authshield/ratelimit"
	"github.com/MrEthical07/authshield/session"
	"github.com/MrEthical07/authshield/token"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Engine is the authentication service. It is safe for concurrent use
// after [Builder.Build].
type Engine struct {
	config   Config
	users    UserStore
	tokens   *token.Service
	limiters *ratelimit.Registry
	lockout  *lockout.Policy
	sessions *session.Store
	signer   *session.Signer
	hasher   password.Hasher
	notifier Notifier
	events   *eventDispatcher
	metrics  *Metrics
	logger   *zap.Logger
	now      func() time.Time
}

// Close drains pending async security events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.events.Close()
}

// EventsDropped returns the number of security events discarded because
// the async buffer was full.
func (e *Engine) EventsDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.events.Dropped()
}

// MetricsSnapshot returns a copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Limiter returns the limiter of profile p, or nil when rate limiting is
// disabled. A nil limiter admits every request.
func (e *Engine) Limiter(p ratelimit.Profile) *ratelimit.Limiter {
	if e == nil {
		return nil
	}
	return e.limiters.Get(p)
}

// RateChecker returns what HTTP middleware should check profile p against,
// including any custom per-identifier limits. It admits everything when
// rate limiting is disabled.
func (e *Engine) RateChecker(p ratelimit.Profile) ratelimit.Checker {
	return e.RateLimits().Checker(p)
}

// RateLimits returns the limiter registry, or nil when disabled.
func (e *Engine) RateLimits() *ratelimit.Registry {
	if e == nil {
		return nil
	}
	return e.limiters
}

// LockoutConfig returns the effective lockout configuration.
func (e *Engine) LockoutConfig() LockoutConfig {
	c := e.lockout.Config()
	return LockoutConfig{
		MaxFailedAttempts: c.MaxFailedAttempts,
		ResetWindow:       c.ResetWindow,
		BaseDuration:      c.BaseDuration,
		Multiplier:        c.Multiplier,
		MaxDuration:       c.MaxDuration,
	}
}

func (e *Engine) checkLimit(ctx context.Context, p ratelimit.Profile, identifier string) ratelimit.Result {
	return e.limiters.CheckIdentifier(ctx, p, identifier)
}

func (e *Engine) emit(ctx context.Context, typ EventType, success bool, userID, email string, details map[string]any) {
	e.events.Emit(ctx, &SecurityEvent{
		ID:        uuid.NewString(),
		Type:      typ,
		Success:   success,
		UserID:    userID,
		Email:     email,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Details:   details,
		CreatedAt: e.now(),
	})
}

func reason(r string) map[string]any {
	return map[string]any{DetailReason: r}
}

// unavailable logs the full infrastructure failure and returns the generic
// client error.
func (e *Engine) unavailable(op string, err error, fields ...zap.Field) *Error {
	e.metrics.Inc(MetricServiceUnavailable)
	e.logger.Error("authentication backend failure",
		append([]zap.Field{zap.String("op", op), zap.Error(err)}, fields...)...,
	)
	return errUnavailable()
}

func (e *Engine) notifyFailed(kind string, userID string, err error) {
	if err == nil {
		return
	}
	e.metrics.Inc(MetricNotificationFailed)
	e.logger.Warn("notification failed",
		zap.String("kind", kind),
		zap.String("user_id", userID),
		zap.Error(err),
	)
}

// NormalizeEmail lowercases and trims an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	if email == "" || len(email) > 254 {
		return false
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return false
	}
	at := strings.LastIndexByte(email, '@')
	return at > 0 && strings.Contains(email[at+1:], ".")
}

func (e *Engine) checkPasswordPolicy(candidate, email string) *Error {
	if err := e.config.Password.Policy.Check(candidate, email); err != nil {
		var perr *password.PolicyError
		if errors.As(err, &perr) {
			return errPasswordPolicy(strings.Join(perr.Reasons, "; "))
		}
		return errPasswordPolicy(err.Error())
	}
	return nil
}

// Events returns the security event log the engine appends to, or nil.
func (e *Engine) Events() EventLog {
	if e == nil {
		return nil
	}
	return e.events.Log()
}
