package internaldefs

import (
	"github.com/MrEthical07/authshield"
)

// CounterDef names one engine counter for export.
type CounterDef struct {
	ID   authshield.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for export.
type HistogramDef struct {
	ID   authshield.MetricID
	Name string
	Help string
}

// EventsDroppedName is the counter for security events lost to a full
// async buffer.
const EventsDroppedName = "authshield_events_dropped_total"

// EventsDroppedHelp describes [EventsDroppedName].
const EventsDroppedHelp = "Security events dropped due to event buffer backpressure."

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: authshield.MetricLoginSuccess, Name: "authshield_login_success_total", Help: "Successful logins."},
	{ID: authshield.MetricLoginFailure, Name: "authshield_login_failure_total", Help: "Logins rejected for bad credentials."},
	{ID: authshield.MetricLoginLocked, Name: "authshield_login_locked_total", Help: "Logins rejected because the account was locked."},
	{ID: authshield.MetricLoginRateLimited, Name: "authshield_login_rate_limited_total", Help: "Rate-limited login attempts."},
	{ID: authshield.MetricLoginUnverified, Name: "authshield_login_unverified_total", Help: "Logins rejected for an unverified email."},
	{ID: authshield.MetricLockoutTriggered, Name: "authshield_lockout_triggered_total", Help: "Account lockouts imposed."},
	{ID: authshield.MetricAccountUnlocked, Name: "authshield_account_unlocked_total", Help: "Administrative unlocks."},
	{ID: authshield.MetricRegistrationSuccess, Name: "authshield_registration_success_total", Help: "Accounts created."},
	{ID: authshield.MetricRegistrationDuplicate, Name: "authshield_registration_duplicate_total", Help: "Registrations rejected as duplicate."},
	{ID: authshield.MetricRegistrationRateLimited, Name: "authshield_registration_rate_limited_total", Help: "Rate-limited registrations."},
	{ID: authshield.MetricPasswordResetRequest, Name: "authshield_password_reset_request_total", Help: "Password reset requests accepted."},
	{ID: authshield.MetricPasswordResetRateLimited, Name: "authshield_password_reset_rate_limited_total", Help: "Rate-limited password reset requests."},
	{ID: authshield.MetricPasswordResetComplete, Name: "authshield_password_reset_complete_total", Help: "Completed password resets."},
	{ID: authshield.MetricPasswordResetFailure, Name: "authshield_password_reset_failure_total", Help: "Failed password reset redemptions."},
	{ID: authshield.MetricPasswordChangeSuccess, Name: "authshield_password_change_success_total", Help: "Successful password changes."},
	{ID: authshield.MetricPasswordChangeFailure, Name: "authshield_password_change_failure_total", Help: "Rejected password changes."},
	{ID: authshield.MetricEmailVerificationSuccess, Name: "authshield_email_verification_success_total", Help: "Verified email addresses."},
	{ID: authshield.MetricEmailVerificationFailure, Name: "authshield_email_verification_failure_total", Help: "Failed email verifications."},
	{ID: authshield.MetricVerificationResend, Name: "authshield_verification_resend_total", Help: "Verification emails resent."},
	{ID: authshield.MetricTokenGenerated, Name: "authshield_token_generated_total", Help: "Single-use tokens issued."},
	{ID: authshield.MetricTokenUsed, Name: "authshield_token_used_total", Help: "Single-use tokens redeemed."},
	{ID: authshield.MetricRateLimitFailOpen, Name: "authshield_rate_limit_fail_open_total", Help: "Rate-limit checks admitted because the store was unavailable."},
	{ID: authshield.MetricEventDropped, Name: "authshield_event_dropped_total", Help: "Security events not recorded."},
	{ID: authshield.MetricEventAppendFailed, Name: "authshield_event_append_failed_total", Help: "Security event appends that failed."},
	{ID: authshield.MetricNotificationFailed, Name: "authshield_notification_failed_total", Help: "Notification deliveries that failed."},
	{ID: authshield.MetricSessionCreated, Name: "authshield_session_created_total", Help: "Sessions created."},
	{ID: authshield.MetricSessionRevoked, Name: "authshield_session_revoked_total", Help: "Sessions revoked."},
	{ID: authshield.MetricLogout, Name: "authshield_logout_total", Help: "Logout operations."},
	{ID: authshield.MetricServiceUnavailable, Name: "authshield_service_unavailable_total", Help: "Operations failed on backend errors."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: authshield.MetricLoginLatency, Name: "authshield_login_latency_seconds", Help: "Login latency."},
}

// HistogramBounds are the upper bounds in seconds, matching the engine's
// eight latency buckets.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundValues are [HistogramBounds] as numbers without +Inf.
var HistogramBoundValues = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix are [HistogramBounds] safe for instrument names.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed eight-bucket array.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
