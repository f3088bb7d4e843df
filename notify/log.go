package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/authshield"
	"github.com/MrEthical07/authshield/monitor"
)

var (
	_ authshield.Notifier   = (*LogNotifier)(nil)
	_ monitor.AlertNotifier = (*LogNotifier)(nil)
)

// LogNotifier writes notifications to a zap logger instead of sending
// them. Token values are logged only when RevealTokens is set.
type LogNotifier struct {
	logger       *zap.Logger
	revealTokens bool
}

// NewLogNotifier returns a LogNotifier. revealTokens is meant for local
// development where no mail server exists.
func NewLogNotifier(logger *zap.Logger, revealTokens bool) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger.Named("notify"), revealTokens: revealTokens}
}

func (n *LogNotifier) tokenField(value string) zap.Field {
	if n.revealTokens {
		return zap.String("token", value)
	}
	return zap.Skip()
}

func (n *LogNotifier) SendVerificationEmail(_ context.Context, to, name, value string, expiresAt time.Time) error {
	n.logger.Info("verification email",
		zap.String("to", to),
		zap.String("name", name),
		n.tokenField(value),
		zap.Time("expires_at", expiresAt),
	)
	return nil
}

func (n *LogNotifier) SendPasswordResetEmail(_ context.Context, to, name, value string, expiresAt time.Time) error {
	n.logger.Info("password reset email",
		zap.String("to", to),
		zap.String("name", name),
		n.tokenField(value),
		zap.Time("expires_at", expiresAt),
	)
	return nil
}

func (n *LogNotifier) SendLockoutNotification(_ context.Context, to, name string, lockedUntil time.Time, d time.Duration) error {
	n.logger.Info("lockout notification",
		zap.String("to", to),
		zap.String("name", name),
		zap.Time("locked_until", lockedUntil),
		zap.Int("minutes", minutes(d)),
	)
	return nil
}

func (n *LogNotifier) SendPasswordChangedNotification(_ context.Context, to, name string, at time.Time) error {
	n.logger.Info("password changed notification",
		zap.String("to", to),
		zap.String("name", name),
		zap.Time("at", at),
	)
	return nil
}

func (n *LogNotifier) SendSecurityAlert(_ context.Context, a *monitor.Alert) error {
	n.logger.Warn("security alert",
		zap.String("alert_id", a.ID),
		zap.String("severity", string(a.Severity)),
		zap.String("kind", a.Kind),
		zap.String("title", a.Title),
		zap.String("message", a.Message),
		zap.String("ip", a.IP),
		zap.Int("event_count", a.EventCount),
	)
	return nil
}
