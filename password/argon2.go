package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	argon2idPrefix        = "$argon2id$"
)

// DefaultMaxPasswordBytes caps hashing input when Config.MaxPasswordBytes is zero.
const DefaultMaxPasswordBytes = 1024

var (
	// ErrEmptyPassword is returned when Hash is called with an empty password.
	ErrEmptyPassword = errors.New("password is empty")
	// ErrPasswordTooLong is returned for input above the configured byte cap.
	ErrPasswordTooLong = errors.New("password exceeds maximum length")
	// ErrMalformedHash wraps every failure to decode a stored hash.
	ErrMalformedHash = errors.New("malformed password hash")
)

// Config holds Argon2id cost parameters.
type Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32

	MaxPasswordBytes int
}

// DefaultConfig returns 64 MiB, 3 passes, parallelism 2, 16-byte salt and
// 32-byte key.
func DefaultConfig() Config {
	return Config{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Validate reports the first parameter below the accepted floor.
func (c Config) Validate() error {
	switch {
	case c.Memory < minMemoryKB:
		return fmt.Errorf("Password Argon2 Memory must be >= %d KB", minMemoryKB)
	case c.Time < minTimeCost:
		return errors.New("Password Argon2 Time must be >= 1")
	case c.Parallelism < minParallelism:
		return errors.New("Password Argon2 Parallelism must be >= 1")
	case c.SaltLength < minSaltLength:
		return fmt.Errorf("Password Argon2 SaltLength must be >= %d", minSaltLength)
	case c.KeyLength < minKeyLength:
		return fmt.Errorf("Password Argon2 KeyLength must be >= %d", minKeyLength)
	}
	return nil
}

// phc is one decoded $argon2id$ string.
type phc struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func (p phc) String() string {
	return fmt.Sprintf("%sv=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2idPrefix, argon2.Version,
		p.memory, p.time, p.parallelism,
		base64.RawStdEncoding.EncodeToString(p.salt),
		base64.RawStdEncoding.EncodeToString(p.key),
	)
}

func (p phc) derive(plaintext string, keyLen uint32) []byte {
	return argon2.IDKey([]byte(plaintext), p.salt, p.time, p.memory, p.parallelism, keyLen)
}

func malformed(what string) error {
	return fmt.Errorf("%w: %s", ErrMalformedHash, what)
}

// decodeB64 accepts padded and unpadded standard base64.
func decodeB64(s string) ([]byte, error) {
	if b, err := base64.RawStdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.StdEncoding.DecodeString(s)
}

func parsePHC(encoded string) (phc, error) {
	var p phc
	if !strings.HasPrefix(encoded, argon2idPrefix) {
		return p, malformed("not argon2id")
	}
	fields := strings.Split(strings.TrimPrefix(encoded, argon2idPrefix), "$")
	if len(fields) != 4 {
		return p, malformed("expected version, params, salt and key")
	}

	var version int
	if _, err := fmt.Sscanf(fields[0], "v=%d", &version); err != nil {
		return p, malformed("version")
	}
	if version != argon2.Version {
		return p, malformed(fmt.Sprintf("unsupported version %d", version))
	}

	var parallelism uint32
	n, err := fmt.Sscanf(fields[1], "m=%d,t=%d,p=%d", &p.memory, &p.time, &parallelism)
	if err != nil || n != 3 || fmt.Sprintf("m=%d,t=%d,p=%d", p.memory, p.time, parallelism) != fields[1] {
		return p, malformed("parameters")
	}
	if p.memory < minMemoryKB || p.time < minTimeCost || parallelism < uint32(minParallelism) || parallelism > 255 {
		return p, malformed("parameters out of range")
	}
	p.parallelism = uint8(parallelism)

	if p.salt, err = decodeB64(fields[2]); err != nil || len(p.salt) < int(minSaltLength) {
		return p, malformed("salt")
	}
	if p.key, err = decodeB64(fields[3]); err != nil || len(p.key) == 0 {
		return p, malformed("key")
	}
	return p, nil
}

// Argon2 hashes and verifies passwords in PHC format.
type Argon2 struct {
	config Config
	rand   io.Reader
}

// NewArgon2 validates cfg and returns a hasher.
func NewArgon2(cfg Config) (*Argon2, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.MaxPasswordBytes <= 0 {
		cfg.MaxPasswordBytes = DefaultMaxPasswordBytes
	}
	return &Argon2{config: cfg, rand: rand.Reader}, nil
}

func (a *Argon2) checkLength(plaintext string) error {
	if len(plaintext) > a.config.MaxPasswordBytes {
		return ErrPasswordTooLong
	}
	return nil
}

// Hash returns a PHC-encoded Argon2id hash with a fresh random salt.
// Strength rules are enforced by [Policy], not here.
func (a *Argon2) Hash(plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrEmptyPassword
	}
	if err := a.checkLength(plaintext); err != nil {
		return "", err
	}

	p := phc{
		memory:      a.config.Memory,
		time:        a.config.Time,
		parallelism: a.config.Parallelism,
		salt:        make([]byte, a.config.SaltLength),
	}
	if _, err := io.ReadFull(a.rand, p.salt); err != nil {
		return "", fmt.Errorf("read salt: %w", err)
	}
	p.key = p.derive(plaintext, a.config.KeyLength)
	return p.String(), nil
}

// Verify reports whether plaintext matches encoded in constant time.
// Undecodable hashes return an error wrapping [ErrMalformedHash].
func (a *Argon2) Verify(plaintext, encoded string) (bool, error) {
	if err := a.checkLength(plaintext); err != nil {
		return false, err
	}
	p, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(p.derive(plaintext, uint32(len(p.key))), p.key) == 1, nil
}

// NeedsUpgrade reports whether encoded was produced with weaker parameters
// than the current configuration, or a different key length.
func (a *Argon2) NeedsUpgrade(encoded string) (bool, error) {
	p, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}
	c := a.config
	weaker := p.memory < c.Memory || p.time < c.Time || p.parallelism < c.Parallelism
	return weaker || uint32(len(p.key)) != c.KeyLength, nil
}
