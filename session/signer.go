package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidHandle is returned for handles that fail signature or claim checks.
var ErrInvalidHandle = errors.New("invalid session handle")

// SignerConfig configures handle signing.
type SignerConfig struct {
	Key    []byte
	Issuer string
	Leeway time.Duration
}

// Claims are carried by a session handle.
type Claims struct {
	UID string `json:"uid"`
	SID string `json:"sid"`
	jwt.RegisteredClaims
}

// Signer issues and verifies HS256 session handles.
type Signer struct {
	config SignerConfig
	now    func() time.Time
}

// NewSigner validates cfg and returns a [Signer]. The key must be at least
// 32 bytes.
func NewSigner(cfg SignerConfig) (*Signer, error) {
	if len(cfg.Key) < 32 {
		return nil, errors.New("session signing key must be >= 32 bytes")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	return &Signer{config: cfg, now: time.Now}, nil
}

// WithClock returns a copy of s using now for issue and expiry checks.
func (s *Signer) WithClock(now func() time.Time) *Signer {
	cp := *s
	if now != nil {
		cp.now = now
	}
	return &cp
}

// Sign returns a handle for sess expiring with it.
func (s *Signer) Sign(sess *Session) (string, error) {
	if sess == nil {
		return "", errors.New("nil session")
	}
	claims := Claims{
		UID: sess.UserID,
		SID: sess.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(s.now()),
			Issuer:    s.config.Issuer,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.config.Key)
}

// Parse verifies handle and returns its claims.
func (s *Signer) Parse(handle string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	}
	if s.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(s.config.Leeway))
	}
	if s.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(s.config.Issuer))
	}

	token, err := jwt.NewParser(options...).ParseWithClaims(handle, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return s.config.Key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHandle, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.SID == "" || claims.UID == "" {
		return nil, ErrInvalidHandle
	}
	return claims, nil
}
