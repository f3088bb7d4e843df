package monitor

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/MrEthical07/authshield"
)

// PatternType names a detected attack signature.
type PatternType string

const (
	PatternBruteForce         PatternType = "brute_force"
	PatternCredentialStuffing PatternType = "credential_stuffing"
	PatternPasswordSpraying   PatternType = "password_spraying"
	PatternAccountEnumeration PatternType = "account_enumeration"
	PatternRapidRegistration  PatternType = "rapid_registration"
	PatternTokenAbuse         PatternType = "token_abuse"
)

// Severity ranks patterns and alerts.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Pattern is one detected signature attributed to a source IP.
type Pattern struct {
	Type           PatternType    `json:"type"`
	Severity       Severity       `json:"severity"`
	IP             string         `json:"ip"`
	EventCount     int            `json:"eventCount"`
	DistinctEmails int            `json:"distinctEmails,omitempty"`
	FirstSeen      time.Time      `json:"firstSeen"`
	LastSeen       time.Time      `json:"lastSeen"`
	Description    string         `json:"description"`
	Details        map[string]any `json:"details,omitempty"`
}

// DetectorConfig holds the detector thresholds.
type DetectorConfig struct {
	BruteForceFailures int
	BruteForceHigh     int
	BruteForceCritical int

	StuffingEmails      int
	StuffingMaxPerEmail float64

	SprayingEmails      int
	SprayingMaxPerEmail float64
	SprayingMinSpan     time.Duration

	EnumerationResets        int
	EnumerationRegistrations int

	RapidRegistrationMin       int
	RapidRegistrationPerMinute float64

	TokenAbuseGenerated int
	TokenAbuseFailed    int
}

// DefaultDetectorConfig returns the standard thresholds.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		BruteForceFailures: 10,
		BruteForceHigh:     25,
		BruteForceCritical: 50,

		StuffingEmails:      20,
		StuffingMaxPerEmail: 3,

		SprayingEmails:      10,
		SprayingMaxPerEmail: 2,
		SprayingMinSpan:     30 * time.Minute,

		EnumerationResets:        20,
		EnumerationRegistrations: 15,

		RapidRegistrationMin:       3,
		RapidRegistrationPerMinute: 2,

		TokenAbuseGenerated: 50,
		TokenAbuseFailed:    20,
	}
}

// Validate reports the first invalid threshold.
func (c DetectorConfig) Validate() error {
	if c.BruteForceFailures <= 0 || c.BruteForceHigh < c.BruteForceFailures || c.BruteForceCritical < c.BruteForceHigh {
		return errors.New("Detector BruteForce thresholds must be > 0 and ascending")
	}
	if c.StuffingEmails <= 0 || c.StuffingMaxPerEmail <= 0 {
		return errors.New("Detector Stuffing thresholds must be > 0")
	}
	if c.SprayingEmails <= 0 || c.SprayingMaxPerEmail <= 0 || c.SprayingMinSpan <= 0 {
		return errors.New("Detector Spraying thresholds must be > 0")
	}
	if c.EnumerationResets <= 0 || c.EnumerationRegistrations <= 0 {
		return errors.New("Detector Enumeration thresholds must be > 0")
	}
	if c.RapidRegistrationMin <= 0 || c.RapidRegistrationPerMinute <= 0 {
		return errors.New("Detector RapidRegistration thresholds must be > 0")
	}
	if c.TokenAbuseGenerated <= 0 || c.TokenAbuseFailed <= 0 {
		return errors.New("Detector TokenAbuse thresholds must be > 0")
	}
	return nil
}

// ipActivity aggregates the events of one source IP.
type ipActivity struct {
	ip string

	loginFailures  int
	failedByEmail  map[string]int
	firstFailure   time.Time
	lastFailure    time.Time
	resetRequests  int
	registrations  int
	registered     int
	firstRegister  time.Time
	lastRegister   time.Time
	tokensIssued   int
	tokensRejected int
	first, last    time.Time
}

func (a *ipActivity) seen(at time.Time) {
	if a.first.IsZero() || at.Before(a.first) {
		a.first = at
	}
	if at.After(a.last) {
		a.last = at
	}
}

func spanOf(first, last *time.Time, at time.Time) {
	if first.IsZero() || at.Before(*first) {
		*first = at
	}
	if at.After(*last) {
		*last = at
	}
}

func aggregate(events []*authshield.SecurityEvent) []*ipActivity {
	byIP := make(map[string]*ipActivity)
	for _, ev := range events {
		if ev == nil || ev.IP == "" {
			continue
		}
		a, ok := byIP[ev.IP]
		if !ok {
			a = &ipActivity{ip: ev.IP, failedByEmail: make(map[string]int)}
			byIP[ev.IP] = a
		}
		a.seen(ev.CreatedAt)

		switch ev.Type {
		case authshield.EventLoginAttempt:
			if ev.Success {
				continue
			}
			a.loginFailures++
			if ev.Email != "" {
				a.failedByEmail[ev.Email]++
			}
			spanOf(&a.firstFailure, &a.lastFailure, ev.CreatedAt)
		case authshield.EventPasswordResetRequest:
			a.resetRequests++
		case authshield.EventRegistration:
			a.registrations++
			if ev.Success {
				a.registered++
				spanOf(&a.firstRegister, &a.lastRegister, ev.CreatedAt)
			}
		case authshield.EventTokenGenerated:
			a.tokensIssued++
		case authshield.EventTokenUsed:
			if !ev.Success {
				a.tokensRejected++
			}
		}
	}

	out := make([]*ipActivity, 0, len(byIP))
	for _, a := range byIP {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ip < out[j].ip })
	return out
}

// Detect runs every detector over events. Events without an IP are
// ignored. The result is ordered by IP, then by detector.
func Detect(events []*authshield.SecurityEvent, cfg DetectorConfig) []Pattern {
	var patterns []Pattern
	for _, a := range aggregate(events) {
		if p, ok := bruteForce(a, cfg); ok {
			patterns = append(patterns, p)
		}
		if p, ok := credentialStuffing(a, cfg); ok {
			patterns = append(patterns, p)
		}
		if p, ok := passwordSpraying(a, cfg); ok {
			patterns = append(patterns, p)
		}
		if p, ok := accountEnumeration(a, cfg); ok {
			patterns = append(patterns, p)
		}
		if p, ok := rapidRegistration(a, cfg); ok {
			patterns = append(patterns, p)
		}
		if p, ok := tokenAbuse(a, cfg); ok {
			patterns = append(patterns, p)
		}
	}
	return patterns
}

func bruteForce(a *ipActivity, cfg DetectorConfig) (Pattern, bool) {
	if a.loginFailures < cfg.BruteForceFailures {
		return Pattern{}, false
	}
	sev := SeverityMedium
	switch {
	case a.loginFailures >= cfg.BruteForceCritical:
		sev = SeverityCritical
	case a.loginFailures >= cfg.BruteForceHigh:
		sev = SeverityHigh
	}
	return Pattern{
		Type:           PatternBruteForce,
		Severity:       sev,
		IP:             a.ip,
		EventCount:     a.loginFailures,
		DistinctEmails: len(a.failedByEmail),
		FirstSeen:      a.firstFailure,
		LastSeen:       a.lastFailure,
		Description:    fmt.Sprintf("%d failed logins from %s", a.loginFailures, a.ip),
	}, true
}

func perEmail(a *ipActivity) float64 {
	if len(a.failedByEmail) == 0 {
		return 0
	}
	return float64(a.loginFailures) / float64(len(a.failedByEmail))
}

func credentialStuffing(a *ipActivity, cfg DetectorConfig) (Pattern, bool) {
	emails := len(a.failedByEmail)
	ratio := perEmail(a)
	if emails < cfg.StuffingEmails || ratio > cfg.StuffingMaxPerEmail {
		return Pattern{}, false
	}
	return Pattern{
		Type:           PatternCredentialStuffing,
		Severity:       SeverityHigh,
		IP:             a.ip,
		EventCount:     a.loginFailures,
		DistinctEmails: emails,
		FirstSeen:      a.firstFailure,
		LastSeen:       a.lastFailure,
		Description:    fmt.Sprintf("%d accounts targeted from %s with %.1f attempts each", emails, a.ip, ratio),
		Details:        map[string]any{"attemptsPerEmail": ratio},
	}, true
}

func passwordSpraying(a *ipActivity, cfg DetectorConfig) (Pattern, bool) {
	emails := len(a.failedByEmail)
	ratio := perEmail(a)
	span := a.lastFailure.Sub(a.firstFailure)
	if emails < cfg.SprayingEmails || ratio > cfg.SprayingMaxPerEmail || span <= cfg.SprayingMinSpan {
		return Pattern{}, false
	}
	return Pattern{
		Type:           PatternPasswordSpraying,
		Severity:       SeverityHigh,
		IP:             a.ip,
		EventCount:     a.loginFailures,
		DistinctEmails: emails,
		FirstSeen:      a.firstFailure,
		LastSeen:       a.lastFailure,
		Description:    fmt.Sprintf("%d accounts sprayed from %s over %s", emails, a.ip, span.Round(time.Minute)),
		Details: map[string]any{
			"attemptsPerEmail": ratio,
			"spanMinutes":      int(span / time.Minute),
		},
	}, true
}

func accountEnumeration(a *ipActivity, cfg DetectorConfig) (Pattern, bool) {
	resets := a.resetRequests >= cfg.EnumerationResets
	regs := a.registrations >= cfg.EnumerationRegistrations
	if !resets && !regs {
		return Pattern{}, false
	}
	sev := SeverityMedium
	if resets && regs {
		sev = SeverityHigh
	}
	return Pattern{
		Type:        PatternAccountEnumeration,
		Severity:    sev,
		IP:          a.ip,
		EventCount:  a.resetRequests + a.registrations,
		FirstSeen:   a.first,
		LastSeen:    a.last,
		Description: fmt.Sprintf("%d reset requests and %d registration attempts from %s", a.resetRequests, a.registrations, a.ip),
		Details: map[string]any{
			"resetRequests":        a.resetRequests,
			"registrationAttempts": a.registrations,
		},
	}, true
}

func rapidRegistration(a *ipActivity, cfg DetectorConfig) (Pattern, bool) {
	if a.registered < cfg.RapidRegistrationMin {
		return Pattern{}, false
	}
	minutes := a.lastRegister.Sub(a.firstRegister).Minutes()
	if minutes < 1 {
		minutes = 1
	}
	perMinute := float64(a.registered) / minutes
	if perMinute <= cfg.RapidRegistrationPerMinute {
		return Pattern{}, false
	}
	sev := SeverityMedium
	if perMinute > 2*cfg.RapidRegistrationPerMinute {
		sev = SeverityHigh
	}
	return Pattern{
		Type:        PatternRapidRegistration,
		Severity:    sev,
		IP:          a.ip,
		EventCount:  a.registered,
		FirstSeen:   a.firstRegister,
		LastSeen:    a.lastRegister,
		Description: fmt.Sprintf("%d registrations from %s at %.1f per minute", a.registered, a.ip, perMinute),
		Details:     map[string]any{"perMinute": perMinute},
	}, true
}

func tokenAbuse(a *ipActivity, cfg DetectorConfig) (Pattern, bool) {
	issued := a.tokensIssued >= cfg.TokenAbuseGenerated
	rejected := a.tokensRejected >= cfg.TokenAbuseFailed
	if !issued && !rejected {
		return Pattern{}, false
	}
	return Pattern{
		Type:        PatternTokenAbuse,
		Severity:    SeverityHigh,
		IP:          a.ip,
		EventCount:  a.tokensIssued + a.tokensRejected,
		FirstSeen:   a.first,
		LastSeen:    a.last,
		Description: fmt.Sprintf("%d tokens issued and %d failed redemptions from %s", a.tokensIssued, a.tokensRejected, a.ip),
		Details: map[string]any{
			"tokensGenerated":   a.tokensIssued,
			"failedRedemptions": a.tokensRejected,
		},
	}, true
}
