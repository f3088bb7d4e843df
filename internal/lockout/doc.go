// Package lockout implements the account-lockout state machine used by the
// authshield engine: failure counting with a reset window and exponential
// backoff for successive lockouts.
//
// # State
//
// The package is pure: it never touches storage. Callers read the account's
// persisted counter and lock timestamp, call [Policy.RegisterFailure], and
// persist the returned [State]. The relational store remains the single
// source of truth; nothing here caches lockout state.
//
// # Lockout count
//
// One definition is used everywhere, both for the backoff duration and for
// user-facing "lockout #N" messaging: the number of completed lockout cycles
// before the current one, floor((attempts - threshold) / threshold).
package lockout
