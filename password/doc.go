// Package password hashes and verifies passwords and enforces strength rules.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Argon2.NeedsUpgrade] reports hashes produced with weaker parameters so the
// caller can re-hash after the next successful login. [Migrating] also
// accepts legacy bcrypt hashes and always reports them as needing upgrade.
//
// # Policy
//
// [Policy.Check] collects every failed rule into a [PolicyError] so callers
// can surface field-level detail.
//
// This package never stores passwords and never logs plaintext or hashes.
package password
