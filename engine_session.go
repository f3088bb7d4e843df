package authshield

import (
	"context"
	"errors"

	"github.com/MrEthical07/authshield/session"
	"go.uber.org/zap"
)

// ValidateSession verifies a session handle and confirms the session is
// still live in the shared store. Logout and password changes take effect
// immediately because the store record is authoritative.
func (e *Engine) ValidateSession(ctx context.Context, handle string) (*SessionInfo, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	claims, err := e.signer.Parse(handle)
	if err != nil {
		return nil, errSessionInvalid()
	}

	sess, err := e.sessions.Get(ctx, claims.SID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) || errors.Is(err, session.ErrCorrupt) {
			return nil, errSessionInvalid()
		}
		return nil, e.unavailable("session.get", err)
	}
	if sess.UserID != claims.UID {
		e.logger.Warn("session owner mismatch", zap.String("session_id", claims.SID))
		return nil, errSessionInvalid()
	}

	info := toSessionInfo(sess)
	return &info, nil
}

// Logout deletes the session behind handle. Logging out an already
// invalid session succeeds.
func (e *Engine) Logout(ctx context.Context, handle string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	claims, err := e.signer.Parse(handle)
	if err != nil {
		return nil
	}
	sess, err := e.sessions.Get(ctx, claims.SID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) || errors.Is(err, session.ErrCorrupt) {
			return nil
		}
		return e.unavailable("logout.get", err)
	}
	if err := e.sessions.Delete(ctx, sess.ID); err != nil {
		return e.unavailable("logout.delete", err)
	}

	e.metrics.Inc(MetricLogout)
	e.metrics.Inc(MetricSessionRevoked)
	e.emit(ctx, EventLogout, true, sess.UserID, sess.Email, nil)
	return nil
}

// LogoutAll revokes every session of the account behind handle.
func (e *Engine) LogoutAll(ctx context.Context, handle string) (int, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}
	info, err := e.ValidateSession(ctx, handle)
	if err != nil {
		return 0, err
	}
	n, err := e.sessions.DeleteAllForUser(ctx, info.UserID, "")
	if err != nil {
		return 0, e.unavailable("logout.all", err, zap.String("user_id", info.UserID))
	}
	for i := 0; i < n; i++ {
		e.metrics.Inc(MetricSessionRevoked)
	}
	e.metrics.Inc(MetricLogout)
	e.emit(ctx, EventLogout, true, info.UserID, info.Email, map[string]any{"sessions": n})
	return n, nil
}
