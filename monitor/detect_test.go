package monitor

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/authshield"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func failedLogin(ip, email string, at time.Time) *authshield.SecurityEvent {
	return &authshield.SecurityEvent{Type: authshield.EventLoginAttempt, IP: ip, Email: email, CreatedAt: at}
}

func event(typ authshield.EventType, ip string, success bool, at time.Time) *authshield.SecurityEvent {
	return &authshield.SecurityEvent{Type: typ, IP: ip, Success: success, CreatedAt: at}
}

func byType(ps []Pattern) map[PatternType]Pattern {
	out := make(map[PatternType]Pattern, len(ps))
	for _, p := range ps {
		out[p.Type] = p
	}
	return out
}

func TestBruteForceSeverity(t *testing.T) {
	cases := []struct {
		failures int
		want     Severity
		detected bool
	}{
		{9, "", false},
		{10, SeverityMedium, true},
		{24, SeverityMedium, true},
		{25, SeverityHigh, true},
		{50, SeverityCritical, true},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprint(tc.failures), func(t *testing.T) {
			var events []*authshield.SecurityEvent
			for i := 0; i < tc.failures; i++ {
				events = append(events, failedLogin("198.51.100.1", "victim@example.com", t0.Add(time.Duration(i)*time.Second)))
			}
			p, ok := byType(Detect(events, DefaultDetectorConfig()))[PatternBruteForce]
			require.Equal(t, tc.detected, ok)
			if ok {
				assert.Equal(t, tc.want, p.Severity)
				assert.Equal(t, tc.failures, p.EventCount)
				assert.Equal(t, 1, p.DistinctEmails)
			}
		})
	}
}

func TestSuccessfulLoginsAreNotFailures(t *testing.T) {
	var events []*authshield.SecurityEvent
	for i := 0; i < 30; i++ {
		events = append(events, event(authshield.EventLoginAttempt, "198.51.100.2", true, t0))
	}
	assert.Empty(t, Detect(events, DefaultDetectorConfig()))
}

func TestCredentialStuffing(t *testing.T) {
	var events []*authshield.SecurityEvent
	for i := 0; i < 20; i++ {
		email := fmt.Sprintf("user%d@example.com", i)
		events = append(events,
			failedLogin("198.51.100.3", email, t0.Add(time.Duration(i)*time.Second)),
			failedLogin("198.51.100.3", email, t0.Add(time.Duration(i)*time.Second+time.Millisecond)),
		)
	}
	found := byType(Detect(events, DefaultDetectorConfig()))
	p, ok := found[PatternCredentialStuffing]
	require.True(t, ok)
	assert.Equal(t, SeverityHigh, p.Severity)
	assert.Equal(t, 20, p.DistinctEmails)
	assert.Contains(t, found, PatternBruteForce)
	assert.NotContains(t, found, PatternPasswordSpraying, "span under thirty minutes")
}

func TestCredentialStuffingNeedsLowAttemptsPerEmail(t *testing.T) {
	var events []*authshield.SecurityEvent
	for i := 0; i < 20; i++ {
		for j := 0; j < 4; j++ {
			events = append(events, failedLogin("198.51.100.4", fmt.Sprintf("user%d@example.com", i), t0))
		}
	}
	assert.NotContains(t, byType(Detect(events, DefaultDetectorConfig())), PatternCredentialStuffing)
}

func TestPasswordSpraying(t *testing.T) {
	var events []*authshield.SecurityEvent
	for i := 0; i < 10; i++ {
		events = append(events, failedLogin("198.51.100.5", fmt.Sprintf("user%d@example.com", i), t0.Add(time.Duration(i)*4*time.Minute)))
	}
	found := byType(Detect(events, DefaultDetectorConfig()))
	p, ok := found[PatternPasswordSpraying]
	require.True(t, ok)
	assert.Equal(t, SeverityHigh, p.Severity)
	assert.Equal(t, 36, p.Details["spanMinutes"])

	// exactly thirty minutes is not enough
	events = events[:0]
	for i := 0; i < 10; i++ {
		events = append(events, failedLogin("198.51.100.5", fmt.Sprintf("user%d@example.com", i), t0.Add(time.Duration(i)*time.Minute*30/9)))
	}
	assert.NotContains(t, byType(Detect(events, DefaultDetectorConfig())), PatternPasswordSpraying)
}

func TestAccountEnumeration(t *testing.T) {
	var resets, both []*authshield.SecurityEvent
	for i := 0; i < 20; i++ {
		resets = append(resets, event(authshield.EventPasswordResetRequest, "198.51.100.6", true, t0))
	}
	both = append(both, resets...)
	for i := 0; i < 15; i++ {
		both = append(both, event(authshield.EventRegistration, "198.51.100.6", false, t0))
	}

	p, ok := byType(Detect(resets, DefaultDetectorConfig()))[PatternAccountEnumeration]
	require.True(t, ok)
	assert.Equal(t, SeverityMedium, p.Severity)

	p, ok = byType(Detect(both, DefaultDetectorConfig()))[PatternAccountEnumeration]
	require.True(t, ok)
	assert.Equal(t, SeverityHigh, p.Severity)
	assert.Equal(t, 35, p.EventCount)

	assert.Empty(t, Detect(resets[:19], DefaultDetectorConfig()))
}

func TestRapidRegistration(t *testing.T) {
	regs := func(n int, gap time.Duration) []*authshield.SecurityEvent {
		var out []*authshield.SecurityEvent
		for i := 0; i < n; i++ {
			out = append(out, event(authshield.EventRegistration, "198.51.100.7", true, t0.Add(time.Duration(i)*gap)))
		}
		return out
	}

	p, ok := byType(Detect(regs(3, 10*time.Second), DefaultDetectorConfig()))[PatternRapidRegistration]
	require.True(t, ok, "three inside one minute is three per minute")
	assert.Equal(t, SeverityMedium, p.Severity)

	p, ok = byType(Detect(regs(5, 5*time.Second), DefaultDetectorConfig()))[PatternRapidRegistration]
	require.True(t, ok)
	assert.Equal(t, SeverityHigh, p.Severity)

	assert.Empty(t, Detect(regs(2, time.Second), DefaultDetectorConfig()))
	assert.Empty(t, Detect(regs(4, time.Minute), DefaultDetectorConfig()), "four over three minutes")
}

func TestTokenAbuse(t *testing.T) {
	var events []*authshield.SecurityEvent
	for i := 0; i < 20; i++ {
		events = append(events, event(authshield.EventTokenUsed, "198.51.100.8", false, t0))
		events = append(events, event(authshield.EventTokenUsed, "198.51.100.8", true, t0))
	}
	p, ok := byType(Detect(events, DefaultDetectorConfig()))[PatternTokenAbuse]
	require.True(t, ok)
	assert.Equal(t, 20, p.Details["failedRedemptions"])

	events = events[:0]
	for i := 0; i < 50; i++ {
		events = append(events, event(authshield.EventTokenGenerated, "198.51.100.9", true, t0))
	}
	assert.Contains(t, byType(Detect(events, DefaultDetectorConfig())), PatternTokenAbuse)
}

func TestDetectIgnoresEventsWithoutIP(t *testing.T) {
	var events []*authshield.SecurityEvent
	for i := 0; i < 60; i++ {
		events = append(events, failedLogin("", "victim@example.com", t0), nil)
	}
	assert.Empty(t, Detect(events, DefaultDetectorConfig()))
}

func TestDetectorConfigValidate(t *testing.T) {
	require.NoError(t, DefaultDetectorConfig().Validate())

	cfg := DefaultDetectorConfig()
	cfg.BruteForceHigh = 5
	assert.Error(t, cfg.Validate())

	cfg = DefaultDetectorConfig()
	cfg.SprayingMinSpan = 0
	assert.Error(t, cfg.Validate())
}
