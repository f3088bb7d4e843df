// Package token issues and redeems single-use capability tokens for email
// verification and password reset.
//
// Tokens are 32+ bytes from crypto/rand. Email verification tokens are hex
// encoded and live 24h; password reset tokens are base64url (no padding) and
// live 1h. A user holds at most one live token per kind: [Service.Generate]
// clears the previous one before storing the new value.
//
// # What this package must NOT do
//
//   - Distinguish "never existed" from "already used" in validation results.
//   - Look up malformed tokens in the store.
package token
