package monitor

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authshield"
)

// Threshold raises an alert when at least Count events of EventType occur
// within Window. FailuresOnly restricts the count to unsuccessful events.
type Threshold struct {
	Name         string               `json:"name"`
	EventType    authshield.EventType `json:"eventType"`
	FailuresOnly bool                 `json:"failuresOnly"`
	Count        int                  `json:"count"`
	Window       time.Duration        `json:"window"`
	Severity     Severity             `json:"severity"`
}

// Validate reports the first invalid field.
func (t Threshold) Validate() error {
	if t.Name == "" {
		return errors.New("Threshold Name is required")
	}
	if t.EventType == "" {
		return fmt.Errorf("Threshold %s EventType is required", t.Name)
	}
	if t.Count <= 0 {
		return fmt.Errorf("Threshold %s Count must be > 0", t.Name)
	}
	if t.Window <= 0 {
		return fmt.Errorf("Threshold %s Window must be > 0", t.Name)
	}
	switch t.Severity {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
	default:
		return fmt.Errorf("Threshold %s Severity is invalid", t.Name)
	}
	return nil
}

// DefaultThresholds returns the standard per-event-type thresholds.
func DefaultThresholds() []Threshold {
	return []Threshold{
		{Name: "failed_logins", EventType: authshield.EventLoginAttempt, FailuresOnly: true, Count: 100, Window: 15 * time.Minute, Severity: SeverityHigh},
		{Name: "account_lockouts", EventType: authshield.EventAccountLockout, Count: 10, Window: time.Hour, Severity: SeverityHigh},
		{Name: "password_reset_requests", EventType: authshield.EventPasswordResetRequest, Count: 50, Window: time.Hour, Severity: SeverityMedium},
		{Name: "registrations", EventType: authshield.EventRegistration, Count: 100, Window: time.Hour, Severity: SeverityMedium},
		{Name: "failed_token_redemptions", EventType: authshield.EventTokenUsed, FailuresOnly: true, Count: 50, Window: time.Hour, Severity: SeverityHigh},
		{Name: "suspicious_activity", EventType: authshield.EventSuspiciousActivity, Count: 5, Window: time.Hour, Severity: SeverityCritical},
	}
}

func maxWindow(ts []Threshold) time.Duration {
	var w time.Duration
	for _, t := range ts {
		if t.Window > w {
			w = t.Window
		}
	}
	return w
}

// evaluate returns one alert per tripped threshold.
func evaluate(ts []Threshold, events []*authshield.SecurityEvent, now time.Time) []*Alert {
	var alerts []*Alert
	for _, t := range ts {
		start := now.Add(-t.Window)
		count := 0
		for _, ev := range events {
			if ev.Type != t.EventType || ev.CreatedAt.Before(start) || ev.CreatedAt.After(now) {
				continue
			}
			if t.FailuresOnly && ev.Success {
				continue
			}
			count++
		}
		if count < t.Count {
			continue
		}
		alerts = append(alerts, &Alert{
			ID:          newAlertID(now),
			Source:      SourceThreshold,
			Kind:        t.Name,
			Severity:    t.Severity,
			Title:       "Threshold exceeded: " + t.Name,
			Message:     fmt.Sprintf("%d %s events in the last %s (threshold %d)", count, t.EventType, t.Window, t.Count),
			EventCount:  count,
			WindowStart: start,
			WindowEnd:   now,
			Details: map[string]any{
				"threshold": t.Count,
				"eventType": string(t.EventType),
			},
			CreatedAt: now,
		})
	}
	return alerts
}
