package monitor

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// AlertNotifier delivers alerts to operators.
type AlertNotifier interface {
	SendSecurityAlert(ctx context.Context, a *Alert) error
}

// Dispatcher forwards alerts to an AlertNotifier at a bounded rate.
// Alerts over the rate are dropped from delivery only; they stay in the
// alert store.
type Dispatcher struct {
	notifier AlertNotifier
	limiter  *rate.Limiter
	logger   *zap.Logger
	now      func() time.Time
}

// NewDispatcher allows burst deliveries at once and one more every
// interval. A nil notifier yields a dispatcher that delivers nothing.
func NewDispatcher(notifier AlertNotifier, interval time.Duration, burst int, logger *zap.Logger, now func() time.Time) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Dispatcher{
		notifier: notifier,
		limiter:  rate.NewLimiter(limit, burst),
		logger:   logger,
		now:      now,
	}
}

// Dispatch reports whether a was handed to the notifier without error.
func (d *Dispatcher) Dispatch(ctx context.Context, a *Alert) bool {
	if d == nil || d.notifier == nil || a == nil {
		return false
	}
	if !d.limiter.AllowN(d.now(), 1) {
		d.logger.Warn("alert notification throttled",
			zap.String("alert_id", a.ID),
			zap.String("kind", a.Kind),
			zap.String("severity", string(a.Severity)),
		)
		return false
	}
	if err := d.notifier.SendSecurityAlert(ctx, a); err != nil {
		d.logger.Error("alert notification failed",
			zap.String("alert_id", a.ID),
			zap.Error(err),
		)
		return false
	}
	return true
}
