package authshield

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/MrEthical07/authshield/session"
)

// HealthStatus is an on-demand backend health result.
type HealthStatus struct {
	RedisAvailable bool          `json:"redisAvailable"`
	RedisLatency   time.Duration `json:"redisLatencyNs"`
	EventsDropped  uint64        `json:"eventsDropped"`
}

// Health pings Redis. It never returns an error; an unreachable store is
// reported in the result.
func (e *Engine) Health(ctx context.Context) HealthStatus {
	if e == nil || e.sessions == nil {
		return HealthStatus{}
	}

	latency, err := e.sessions.Ping(ctx)
	return HealthStatus{
		RedisAvailable: err == nil,
		RedisLatency:   latency,
		EventsDropped:  e.EventsDropped(),
	}
}

// ListSessions returns the live sessions of the account behind handle,
// newest first. Index entries whose session has expired are skipped.
func (e *Engine) ListSessions(ctx context.Context, handle string) ([]SessionInfo, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	info, err := e.ValidateSession(ctx, handle)
	if err != nil {
		return nil, err
	}

	ids, err := e.sessions.ActiveSessionIDs(ctx, info.UserID)
	if err != nil {
		return nil, e.unavailable("sessions.list", err)
	}

	out := make([]SessionInfo, 0, len(ids))
	for _, id := range ids {
		sess, err := e.sessions.Get(ctx, id)
		if err != nil {
			if errors.Is(err, session.ErrNotFound) || errors.Is(err, session.ErrCorrupt) {
				continue
			}
			return nil, e.unavailable("sessions.get", err)
		}
		out = append(out, toSessionInfo(sess))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func toSessionInfo(sess *session.Session) SessionInfo {
	return SessionInfo{
		SessionID: sess.ID,
		UserID:    sess.UserID,
		Email:     sess.Email,
		Role:      Role(sess.Role),
		CreatedAt: sess.CreatedAt,
		ExpiresAt: sess.ExpiresAt,
	}
}
