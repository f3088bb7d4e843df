package token

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io"
	"time"
)

// Kind identifies the purpose of a token.
type Kind uint8

const (
	// EmailVerification tokens confirm ownership of an email address.
	EmailVerification Kind = iota + 1
	// PasswordReset tokens authorize a single password reset.
	PasswordReset
)

func (k Kind) String() string {
	switch k {
	case EmailVerification:
		return "email_verification"
	case PasswordReset:
		return "password_reset"
	default:
		return "unknown"
	}
}

// Kinds lists every supported kind in cleanup order.
var Kinds = []Kind{EmailVerification, PasswordReset}

// Encoding is the textual encoding applied to the random bytes.
type Encoding uint8

const (
	// Hex encodes with lowercase hexadecimal.
	Hex Encoding = iota
	// Base64URL encodes with the URL-safe alphabet and no padding.
	Base64URL
)

// MinBytes is the smallest accepted random length.
const MinBytes = 32

// KindConfig holds per-kind generation parameters.
type KindConfig struct {
	Bytes    int
	TTL      time.Duration
	Encoding Encoding
}

// Config holds the generation parameters for every kind.
type Config struct {
	EmailVerification KindConfig
	PasswordReset     KindConfig
}

// DefaultConfig returns 32-byte tokens: hex/24h for verification and
// base64url/1h for reset.
func DefaultConfig() Config {
	return Config{
		EmailVerification: KindConfig{Bytes: 32, TTL: 24 * time.Hour, Encoding: Hex},
		PasswordReset:     KindConfig{Bytes: 32, TTL: time.Hour, Encoding: Base64URL},
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	for _, kc := range []KindConfig{c.EmailVerification, c.PasswordReset} {
		if kc.Bytes < MinBytes {
			return errors.New("Tokens Bytes must be >= 32")
		}
		if kc.TTL <= 0 {
			return errors.New("Tokens TTL must be > 0")
		}
		if kc.Encoding != Hex && kc.Encoding != Base64URL {
			return errors.New("Tokens Encoding is invalid")
		}
	}
	return nil
}

func (c Config) forKind(k Kind) (KindConfig, bool) {
	switch k {
	case EmailVerification:
		return c.EmailVerification, true
	case PasswordReset:
		return c.PasswordReset, true
	default:
		return KindConfig{}, false
	}
}

func newValue(r io.Reader, kc KindConfig) (string, error) {
	if r == nil {
		r = rand.Reader
	}
	raw := make([]byte, kc.Bytes)
	if _, err := io.ReadFull(r, raw); err != nil {
		return "", err
	}

	switch kc.Encoding {
	case Base64URL:
		return base64.RawURLEncoding.EncodeToString(raw), nil
	default:
		return hex.EncodeToString(raw), nil
	}
}

// wellFormed checks length and alphabet without decoding.
func wellFormed(value string, kc KindConfig) bool {
	switch kc.Encoding {
	case Base64URL:
		if len(value) != base64.RawURLEncoding.EncodedLen(kc.Bytes) {
			return false
		}
		for i := 0; i < len(value); i++ {
			c := value[i]
			switch {
			case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-', c == '_':
			default:
				return false
			}
		}
		return true
	default:
		if len(value) != hex.EncodedLen(kc.Bytes) {
			return false
		}
		for i := 0; i < len(value); i++ {
			c := value[i]
			if !(c >= '0' && c <= '9') && !(c >= 'a' && c <= 'f') {
				return false
			}
		}
		return true
	}
}
