package password

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Hasher hashes new passwords and verifies stored hashes.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
	NeedsUpgrade(encodedHash string) (bool, error)
}

// Migrating hashes with Argon2id and additionally verifies legacy bcrypt
// hashes, which always report NeedsUpgrade so callers re-hash them after
// the next successful login.
type Migrating struct {
	*Argon2
}

// NewMigrating wraps an Argon2 hasher with bcrypt verification.
func NewMigrating(a *Argon2) *Migrating {
	return &Migrating{Argon2: a}
}

// Verify dispatches on the hash prefix.
func (m *Migrating) Verify(password, encodedHash string) (bool, error) {
	if !isBcrypt(encodedHash) {
		return m.Argon2.Verify(password, encodedHash)
	}
	if len(password) > m.config.MaxPasswordBytes {
		return false, ErrPasswordTooLong
	}
	err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, err
	}
}

// NeedsUpgrade is true for every bcrypt hash.
func (m *Migrating) NeedsUpgrade(encodedHash string) (bool, error) {
	if isBcrypt(encodedHash) {
		return true, nil
	}
	return m.Argon2.NeedsUpgrade(encodedHash)
}

func isBcrypt(encodedHash string) bool {
	return strings.HasPrefix(encodedHash, "$2a$") ||
		strings.HasPrefix(encodedHash, "$2b$") ||
		strings.HasPrefix(encodedHash, "$2y$")
}
