package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/MrEthical07/authshield"
	"github.com/MrEthical07/authshield/store/memory"
)

type recordingAlerts struct {
	mu   sync.Mutex
	sent []*Alert
	err  error
}

func (r *recordingAlerts) SendSecurityAlert(_ context.Context, a *Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, a)
	return nil
}

func (r *recordingAlerts) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func seedFailures(t *testing.T, log *memory.Events, ip string, n int, at time.Time) {
	t.Helper()
	for i := 0; i < n; i++ {
		ev := failedLogin(ip, fmt.Sprintf("user%d@example.com", i%3), at.Add(time.Duration(i)*time.Second))
		require.NoError(t, log.Append(context.Background(), ev))
	}
}

func newTestMonitor(t *testing.T, log authshield.EventLog, opts ...Option) *Monitor {
	t.Helper()
	base := []Option{WithClock(func() time.Time { return t0 })}
	m, err := New(log, append(base, opts...)...)
	require.NoError(t, err)
	return m
}

func TestRunNowRaisesPatternAlerts(t *testing.T) {
	log := memory.NewEvents()
	seedFailures(t, log, "203.0.113.1", 12, t0.Add(-10*time.Minute))
	seedFailures(t, log, "203.0.113.2", 40, t0.Add(-2*time.Hour))
	notifier := &recordingAlerts{}
	m := newTestMonitor(t, log, WithNotifier(notifier))

	report, err := m.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, report.Events)
	require.Len(t, report.Patterns, 1)
	assert.Equal(t, PatternBruteForce, report.Patterns[0].Type)
	assert.Equal(t, "203.0.113.1", report.Patterns[0].IP)

	require.Len(t, report.Alerts, 1)
	a := report.Alerts[0]
	assert.Regexp(t, `^alert_\d+_[0-9a-f]{9}$`, a.ID)
	assert.Equal(t, SourcePattern, a.Source)
	assert.Equal(t, SeverityMedium, a.Severity)
	assert.Equal(t, t0.Add(-time.Hour), a.WindowStart)
	assert.Equal(t, 1, report.Notified)
	assert.Equal(t, 1, notifier.count())

	require.Equal(t, 1, log.Count(authshield.EventSuspiciousActivity))
	for _, ev := range log.All() {
		if ev.Type == authshield.EventSuspiciousActivity {
			assert.Equal(t, "brute_force", ev.Details[authshield.DetailPattern])
			assert.Equal(t, "medium", ev.Details[authshield.DetailSeverity])
			assert.Equal(t, "203.0.113.1", ev.IP)
		}
	}

	active := m.ActiveAlerts()
	require.Len(t, active, 1)
	assert.Equal(t, a.ID, active[0].ID)
}

func TestRunNowDoesNotDeduplicate(t *testing.T) {
	log := memory.NewEvents()
	seedFailures(t, log, "203.0.113.3", 10, t0.Add(-5*time.Minute))
	m := newTestMonitor(t, log)

	_, err := m.RunNow(context.Background())
	require.NoError(t, err)
	_, err = m.RunNow(context.Background())
	require.NoError(t, err)

	assert.Len(t, m.Alerts(), 2)
	assert.Equal(t, 2, log.Count(authshield.EventSuspiciousActivity))
}

func TestThresholdAlerts(t *testing.T) {
	log := memory.NewEvents()
	seedFailures(t, log, "203.0.113.4", 6, t0.Add(-3*time.Minute))
	m := newTestMonitor(t, log)

	require.Error(t, m.SetThresholds([]Threshold{{Name: "bad", EventType: authshield.EventLoginAttempt}}))
	require.NoError(t, m.SetThresholds([]Threshold{{
		Name:         "failed_logins",
		EventType:    authshield.EventLoginAttempt,
		FailuresOnly: true,
		Count:        5,
		Window:       5 * time.Minute,
		Severity:     SeverityHigh,
	}}))
	assert.Len(t, m.GetThresholds(), 1)

	report, err := m.RunNow(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Patterns)
	require.Len(t, report.Alerts, 1)
	a := report.Alerts[0]
	assert.Equal(t, SourceThreshold, a.Source)
	assert.Equal(t, "failed_logins", a.Kind)
	assert.Equal(t, 6, a.EventCount)
	assert.Equal(t, t0.Add(-5*time.Minute), a.WindowStart)
}

func TestThresholdWindowWiderThanDetection(t *testing.T) {
	log := memory.NewEvents()
	for i := 0; i < 3; i++ {
		ev := event(authshield.EventAccountLockout, "203.0.113.5", true, t0.Add(-90*time.Minute))
		require.NoError(t, log.Append(context.Background(), ev))
	}
	m := newTestMonitor(t, log)
	require.NoError(t, m.SetThresholds([]Threshold{{
		Name: "lockouts", EventType: authshield.EventAccountLockout, Count: 3, Window: 2 * time.Hour, Severity: SeverityMedium,
	}}))

	report, err := m.RunNow(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Events)
	require.Len(t, report.Alerts, 1)
	assert.Equal(t, 3, report.Alerts[0].EventCount)
}

func TestNotificationsAreThrottled(t *testing.T) {
	log := memory.NewEvents()
	seedFailures(t, log, "203.0.113.6", 10, t0.Add(-time.Minute))
	seedFailures(t, log, "203.0.113.7", 10, t0.Add(-time.Minute))
	seedFailures(t, log, "203.0.113.8", 10, t0.Add(-time.Minute))

	core, logs := observer.New(zap.WarnLevel)
	notifier := &recordingAlerts{}
	cfg := DefaultConfig()
	cfg.NotifyInterval = time.Hour
	cfg.NotifyBurst = 1
	m := newTestMonitor(t, log, WithConfig(cfg), WithNotifier(notifier), WithLogger(zap.New(core)))

	report, err := m.RunNow(context.Background())
	require.NoError(t, err)
	assert.Len(t, report.Alerts, 3)
	assert.Equal(t, 1, report.Notified)
	assert.Equal(t, 1, notifier.count())
	assert.Len(t, m.ActiveAlerts(), 3, "throttled alerts are still stored")
	assert.Equal(t, 2, logs.FilterMessage("alert notification throttled").Len())
}

func TestNotifierFailureKeepsAlert(t *testing.T) {
	log := memory.NewEvents()
	seedFailures(t, log, "203.0.113.9", 10, t0.Add(-time.Minute))
	m := newTestMonitor(t, log, WithNotifier(&recordingAlerts{err: errors.New("smtp down")}))

	report, err := m.RunNow(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Notified)
	assert.Len(t, m.ActiveAlerts(), 1)
}

func TestAcknowledge(t *testing.T) {
	log := memory.NewEvents()
	seedFailures(t, log, "203.0.113.10", 10, t0.Add(-time.Minute))
	m := newTestMonitor(t, log)
	report, err := m.RunNow(context.Background())
	require.NoError(t, err)
	id := report.Alerts[0].ID

	_, err = m.Acknowledge("alert_0_missing", "admin")
	assert.ErrorIs(t, err, ErrAlertNotFound)

	a, err := m.Acknowledge(id, "admin-1")
	require.NoError(t, err)
	assert.True(t, a.Acknowledged)
	assert.Equal(t, "admin-1", a.AcknowledgedBy)
	require.NotNil(t, a.AcknowledgedAt)
	assert.Equal(t, t0, *a.AcknowledgedAt)

	_, err = m.Acknowledge(id, "admin-2")
	assert.ErrorIs(t, err, ErrAlreadyAcknowledged)
	assert.Empty(t, m.ActiveAlerts())
	assert.Len(t, m.Alerts(), 1)
}

func TestAlertStoreEvictsOldest(t *testing.T) {
	s, err := NewAlertStore(2)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		s.Add(&Alert{ID: fmt.Sprintf("a%d", i), CreatedAt: t0.Add(time.Duration(i) * time.Second)})
	}
	assert.Equal(t, 2, s.Len())
	_, ok := s.Get("a0")
	assert.False(t, ok)

	list := s.List(false)
	require.Len(t, list, 2)
	assert.Equal(t, "a2", list[0].ID)
}

// blockingLog parks Query until release is closed.
type blockingLog struct {
	*memory.Events
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingLog) Query(ctx context.Context, f authshield.EventFilter) ([]*authshield.SecurityEvent, int, error) {
	b.once.Do(func() { close(b.entered) })
	<-b.release
	return b.Events.Query(ctx, f)
}

func TestRunNowRejectsOverlap(t *testing.T) {
	log := &blockingLog{Events: memory.NewEvents(), entered: make(chan struct{}), release: make(chan struct{})}
	m := newTestMonitor(t, log)

	errs := make(chan error, 1)
	go func() {
		_, err := m.RunNow(context.Background())
		errs <- err
	}()
	<-log.entered

	_, err := m.RunNow(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	close(log.release)
	require.NoError(t, <-errs)

	_, err = m.RunNow(context.Background())
	assert.NoError(t, err)
}

func TestStartStop(t *testing.T) {
	log := memory.NewEvents()
	seedFailures(t, log, "203.0.113.11", 10, t0.Add(-time.Minute))
	m := newTestMonitor(t, log)

	require.Error(t, m.Start(context.Background(), 0))
	require.NoError(t, m.Start(context.Background(), 5*time.Millisecond))
	assert.ErrorIs(t, m.Start(context.Background(), time.Second), ErrAlreadyStarted)

	require.Eventually(t, func() bool { return len(m.Alerts()) > 0 }, 2*time.Second, 5*time.Millisecond)
	m.Stop()
	m.Stop()

	n := len(m.Alerts())
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, n, len(m.Alerts()))

	require.NoError(t, m.Start(context.Background(), time.Hour))
	m.Stop()
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)

	cfg := DefaultConfig()
	cfg.Window = 0
	_, err = New(memory.NewEvents(), WithConfig(cfg))
	require.Error(t, err)
}

func TestMonitorDetect(t *testing.T) {
	log := memory.NewEvents()
	seedFailures(t, log, "203.0.113.12", 25, t0.Add(-30*time.Minute))
	m := newTestMonitor(t, log)

	patterns, err := m.Detect(context.Background())
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, SeverityHigh, patterns[0].Severity)
	assert.Zero(t, log.Count(authshield.EventSuspiciousActivity))
	assert.Empty(t, m.Alerts())
}
