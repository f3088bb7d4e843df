package authshield

import (
	"context"
	"time"
)

// EventType classifies a security event.
type EventType string

const (
	EventLoginAttempt          EventType = "login_attempt"
	EventLogout                EventType = "logout"
	EventRegistration          EventType = "registration"
	EventPasswordResetRequest  EventType = "password_reset_request"
	EventPasswordResetComplete EventType = "password_reset_complete"
	EventPasswordChange        EventType = "password_change"
	EventEmailVerification     EventType = "email_verification"
	EventAccountLockout        EventType = "account_lockout"
	EventAccountUnlock         EventType = "account_unlock"
	EventTokenGenerated        EventType = "token_generated"
	EventTokenUsed             EventType = "token_used"
	EventSuspiciousActivity    EventType = "suspicious_activity"
)

// SecurityEvent is one immutable entry of the security event log.
type SecurityEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Success   bool           `json:"success"`
	UserID    string         `json:"userId,omitempty"`
	Email     string         `json:"email,omitempty"`
	IP        string         `json:"ip,omitempty"`
	UserAgent string         `json:"userAgent,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// EventFilter selects events from an [EventLog]. Zero fields do not
// filter. Limit 0 returns every match.
type EventFilter struct {
	UserID  string
	Email   string
	Types   []EventType
	Success *bool
	IP      string
	Since   time.Time
	Until   time.Time
	Limit   int
	Offset  int
}

// Matches reports whether ev satisfies every set field of f. Stores that
// filter in memory use it directly.
func (f EventFilter) Matches(ev *SecurityEvent) bool {
	if f.UserID != "" && ev.UserID != f.UserID {
		return false
	}
	if f.Email != "" && ev.Email != f.Email {
		return false
	}
	if f.IP != "" && ev.IP != f.IP {
		return false
	}
	if f.Success != nil && ev.Success != *f.Success {
		return false
	}
	if !f.Since.IsZero() && ev.CreatedAt.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && ev.CreatedAt.After(f.Until) {
		return false
	}
	if len(f.Types) > 0 {
		found := false
		for _, t := range f.Types {
			if ev.Type == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// EventLog is the durable append-only security event store. Query returns
// matches newest first with the total match count.
type EventLog interface {
	Append(ctx context.Context, ev *SecurityEvent) error
	Query(ctx context.Context, f EventFilter) ([]*SecurityEvent, int, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// Detail keys used across events.
const (
	DetailReason         = "reason"
	DetailTokenKind      = "tokenKind"
	DetailFailedAttempts = "failedAttempts"
	DetailLockoutMinutes = "lockoutMinutes"
	DetailLockoutNumber  = "lockoutNumber"
	DetailAdminID        = "adminId"
	DetailPattern        = "pattern"
	DetailSeverity       = "severity"
)

// BoolPtr returns a pointer to b for [EventFilter.Success].
func BoolPtr(b bool) *bool {
	return &b
}
