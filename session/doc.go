// Package session provides Redis-backed login sessions and the signed
// handles clients present to resume them.
//
// # Storage
//
// A session is stored as JSON under "<prefix>:<sid>" with a TTL equal to its
// remaining lifetime. The per-user index "<prefix>u:<uid>" is a set of session
// ids used for revoke-all on password reset and password change.
//
// # Handles
//
// [Signer] issues HS256 JWTs carrying the session and user id. A handle is
// only accepted when its signature verifies and the referenced session still
// exists in Redis, so revocation takes effect immediately.
//
// This package does not import authshield and makes no policy decisions.
package session
