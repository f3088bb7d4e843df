package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MrEthical07/authshield"
)

var (
	// ErrAlreadyRunning is returned by RunNow while another run is in flight.
	ErrAlreadyRunning = errors.New("monitor run already in progress")
	// ErrAlreadyStarted is returned by Start on a started monitor.
	ErrAlreadyStarted = errors.New("monitor already started")
)

// Config controls a [Monitor].
type Config struct {
	// Window is the trailing period pattern detection looks at.
	Window     time.Duration
	Detector   DetectorConfig
	Thresholds []Threshold
	// AlertCapacity bounds the in-memory alert store.
	AlertCapacity int
	// NotifyInterval and NotifyBurst bound alert deliveries.
	NotifyInterval time.Duration
	NotifyBurst    int
}

// DefaultConfig returns a one hour window with the default detectors and
// thresholds.
func DefaultConfig() Config {
	return Config{
		Window:         time.Hour,
		Detector:       DefaultDetectorConfig(),
		Thresholds:     DefaultThresholds(),
		AlertCapacity:  500,
		NotifyInterval: time.Minute,
		NotifyBurst:    5,
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	if c.Window <= 0 {
		return errors.New("Monitor Window must be > 0")
	}
	if err := c.Detector.Validate(); err != nil {
		return err
	}
	for _, t := range c.Thresholds {
		if err := t.Validate(); err != nil {
			return err
		}
	}
	if c.AlertCapacity <= 0 {
		return errors.New("Monitor AlertCapacity must be > 0")
	}
	if c.NotifyInterval < 0 {
		return errors.New("Monitor NotifyInterval must be >= 0")
	}
	return nil
}

// Option customizes a [Monitor].
type Option func(*Monitor)

// WithLogger sets the operational logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Monitor) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		if now != nil {
			m.now = now
		}
	}
}

// WithNotifier sets where alerts are delivered.
func WithNotifier(n AlertNotifier) Option {
	return func(m *Monitor) {
		m.notifier = n
	}
}

// WithConfig replaces [DefaultConfig].
func WithConfig(cfg Config) Option {
	return func(m *Monitor) {
		m.cfg = cfg
	}
}

// RunReport summarizes one monitoring pass.
type RunReport struct {
	StartedAt time.Time `json:"startedAt"`
	Events    int       `json:"events"`
	Patterns  []Pattern `json:"patterns"`
	Alerts    []*Alert  `json:"alerts"`
	Notified  int       `json:"notified"`
}

// Monitor periodically scans the security event log for attack patterns
// and threshold breaches and raises alerts for them.
type Monitor struct {
	log      authshield.EventLog
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time
	notifier AlertNotifier

	alerts     *AlertStore
	dispatcher *Dispatcher

	mu         sync.RWMutex
	thresholds []Threshold

	running atomic.Bool

	lifecycle sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
}

// New returns a monitor reading from log.
func New(log authshield.EventLog, opts ...Option) (*Monitor, error) {
	if log == nil {
		return nil, errors.New("monitor: event log is required")
	}
	m := &Monitor{
		log:    log,
		cfg:    DefaultConfig(),
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if err := m.cfg.Validate(); err != nil {
		return nil, err
	}

	alerts, err := NewAlertStore(m.cfg.AlertCapacity)
	if err != nil {
		return nil, err
	}
	m.alerts = alerts
	m.dispatcher = NewDispatcher(m.notifier, m.cfg.NotifyInterval, m.cfg.NotifyBurst, m.logger, m.now)
	m.thresholds = append([]Threshold(nil), m.cfg.Thresholds...)
	return m, nil
}

// Detect runs pattern detection over the trailing window without raising
// alerts.
func (m *Monitor) Detect(ctx context.Context) ([]Pattern, error) {
	now := m.now()
	events, _, err := m.log.Query(ctx, authshield.EventFilter{Since: now.Add(-m.cfg.Window), Until: now})
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	return Detect(events, m.cfg.Detector), nil
}

// RunNow performs one monitoring pass: detect patterns, record each as a
// suspicious_activity event, raise alerts, evaluate thresholds and notify.
func (m *Monitor) RunNow(ctx context.Context) (*RunReport, error) {
	if !m.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}
	defer m.running.Store(false)

	now := m.now()
	windowStart := now.Add(-m.cfg.Window)
	thresholds := m.GetThresholds()

	since := windowStart
	if w := maxWindow(thresholds); w > m.cfg.Window {
		since = now.Add(-w)
	}
	events, _, err := m.log.Query(ctx, authshield.EventFilter{Since: since, Until: now})
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}

	inWindow := make([]*authshield.SecurityEvent, 0, len(events))
	for _, ev := range events {
		if !ev.CreatedAt.Before(windowStart) {
			inWindow = append(inWindow, ev)
		}
	}

	report := &RunReport{
		StartedAt: now,
		Events:    len(inWindow),
		Patterns:  Detect(inWindow, m.cfg.Detector),
	}

	for _, p := range report.Patterns {
		ev := suspiciousEvent(p, now)
		if err := m.log.Append(ctx, ev); err != nil {
			m.logger.Error("suspicious activity append failed",
				zap.String("pattern", string(p.Type)),
				zap.String("ip", p.IP),
				zap.Error(err),
			)
		} else {
			events = append(events, ev)
		}
		report.Alerts = append(report.Alerts, patternAlert(p, windowStart, now))
	}
	report.Alerts = append(report.Alerts, evaluate(thresholds, events, now)...)

	for _, a := range report.Alerts {
		m.alerts.Add(a)
		m.logger.Warn("security alert raised",
			zap.String("alert_id", a.ID),
			zap.String("kind", a.Kind),
			zap.String("severity", string(a.Severity)),
			zap.String("ip", a.IP),
			zap.Int("event_count", a.EventCount),
		)
		if m.dispatcher.Dispatch(ctx, a) {
			report.Notified++
		}
	}
	return report, nil
}

func suspiciousEvent(p Pattern, now time.Time) *authshield.SecurityEvent {
	details := map[string]any{
		authshield.DetailPattern:  string(p.Type),
		authshield.DetailSeverity: string(p.Severity),
		"eventCount":              p.EventCount,
	}
	if p.DistinctEmails > 0 {
		details["distinctEmails"] = p.DistinctEmails
	}
	return &authshield.SecurityEvent{
		ID:        uuid.NewString(),
		Type:      authshield.EventSuspiciousActivity,
		Success:   false,
		IP:        p.IP,
		Details:   details,
		CreatedAt: now,
	}
}

// Start runs RunNow every interval until ctx is done or Stop is called.
func (m *Monitor) Start(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return errors.New("monitor: interval must be > 0")
	}
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	if m.cancel != nil {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.loop(ctx, interval, m.done)
	return nil
}

func (m *Monitor) loop(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := m.RunNow(ctx)
			switch {
			case errors.Is(err, ErrAlreadyRunning):
				m.logger.Debug("monitor pass skipped, previous pass still running")
			case err != nil:
				m.logger.Error("monitor pass failed", zap.Error(err))
			default:
				m.logger.Debug("monitor pass complete",
					zap.Int("events", report.Events),
					zap.Int("patterns", len(report.Patterns)),
					zap.Int("alerts", len(report.Alerts)),
				)
			}
		}
	}
}

// Stop halts a started monitor and waits for the loop to exit. Stop on a
// monitor that was never started is a no-op.
func (m *Monitor) Stop() {
	m.lifecycle.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.lifecycle.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// ActiveAlerts returns unacknowledged alerts newest first.
func (m *Monitor) ActiveAlerts() []*Alert {
	return m.alerts.List(true)
}

// Alerts returns every retained alert newest first.
func (m *Monitor) Alerts() []*Alert {
	return m.alerts.List(false)
}

// Acknowledge marks an alert as handled by by.
func (m *Monitor) Acknowledge(id, by string) (*Alert, error) {
	return m.alerts.Acknowledge(id, by, m.now())
}

// GetThresholds returns a copy of the active thresholds.
func (m *Monitor) GetThresholds() []Threshold {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Threshold(nil), m.thresholds...)
}

// SetThresholds replaces the active thresholds after validating each.
func (m *Monitor) SetThresholds(ts []Threshold) error {
	for _, t := range ts {
		if err := t.Validate(); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.thresholds = append([]Threshold(nil), ts...)
	m.mu.Unlock()
	return nil
}
