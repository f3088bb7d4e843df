// Package authshield is the authentication-security core of a web service:
// account lockout with exponential backoff, sliding-window rate limiting,
// single-use email verification and password reset tokens, and a security
// event log that feeds attack-pattern detection in package monitor.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Collaborators
//
// The engine owns no persistence. It consumes a [UserStore] (relational
// user records), a Redis client shared by every rate-limit profile and the
// session store, a [Notifier] for outbound email and an [EventLog] for
// durable security events. Implementations live in store/memory,
// store/postgres and notify.
//
// # Failure policy
//
// Rate limiting fails open: when Redis is unreachable requests are
// admitted and a warning is logged. Authentication fails closed: store
// errors surface as [ErrServiceUnavailable] with a generic message and the
// detail goes to the operational log only. Notifier and event log failures
// never fail the calling operation.
//
// # Lockout
//
// Every wrong password increments the account's failure counter. Failures
// older than the reset window are forgiven first. Reaching the threshold
// locks the account for min(base * multiplier^n, max) where n counts the
// completed lockout cycles. A locked account is rejected before its
// password is verified.
package authshield
