// Package ratelimit provides a Redis-backed sliding-window rate limiter.
//
// # Window semantics
//
// Each identifier owns a sorted set keyed "<prefix>:<identifier>" whose
// members are "<unixMillis>-<uuid>" scored by their timestamp. A check runs
// one MULTI/EXEC transaction: evict members older than now-window, add a
// provisional member, count, and refresh the key TTL. When the count exceeds
// the limit the provisional member is removed again, so rejected requests
// never occupy budget. Because the transaction is serialized by Redis, N
// concurrent checks against a limit of K admit exactly K.
//
// # Failure policy
//
// Store errors fail open: the request is allowed and a warning is logged.
// Login availability is preferred over strict limiting when Redis is down.
//
// # Profiles
//
//   - login              5 / 15m per IP
//   - registration       3 / 1h per IP
//   - password_reset     3 / 1h per target email
//   - email_verification 3 / 1h per target email
//   - api                100 / 15m per IP
//
// All limiters are nil-safe: a nil *Limiter admits every request.
package ratelimit
