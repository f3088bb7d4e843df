package token

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned by [Store] implementations when no record
	// carries the requested token.
	ErrNotFound = errors.New("token not found")
	// ErrInvalidUserID is returned when Generate is called without a user.
	ErrInvalidUserID = errors.New("token user id required")
	// ErrInvalidKind is returned for unknown kinds.
	ErrInvalidKind = errors.New("invalid token kind")
	// ErrGeneration indicates the secure random source failed.
	ErrGeneration = errors.New("token generation failed")
	// ErrPersistence indicates the token store rejected a write.
	ErrPersistence = errors.New("token persistence failed")
	// ErrLookup indicates the token store failed a read.
	ErrLookup = errors.New("token lookup failed")
)

// Record is the stored token state of one user.
type Record struct {
	UserID    string
	ExpiresAt *time.Time
}

// Store persists token and expiry fields on the owning user record.
type Store interface {
	SaveToken(ctx context.Context, kind Kind, userID, value string, expiresAt time.Time) error
	ClearUserToken(ctx context.Context, kind Kind, userID string) error
	FindToken(ctx context.Context, kind Kind, value string) (*Record, error)
	// ConsumeToken clears the token only if it still matches value and
	// reports whether a record changed. Email verification consumption
	// also stamps the verified timestamp with at.
	ConsumeToken(ctx context.Context, kind Kind, value string, at time.Time) (bool, error)
	ClearExpiredTokens(ctx context.Context, kind Kind, before time.Time) (int64, error)
}

// Token is a freshly generated capability.
type Token struct {
	Kind      Kind
	Value     string
	UserID    string
	ExpiresAt time.Time
}

// Status is the outcome of a validation.
type Status uint8

const (
	// StatusNotFound covers malformed, unknown, and already-used tokens.
	StatusNotFound Status = iota
	// StatusExpired means the token exists but is past its expiry.
	StatusExpired
	// StatusValid means the token may be redeemed.
	StatusValid
)

func (s Status) String() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusExpired:
		return "expired"
	default:
		return "not_found"
	}
}

// Validation is returned by [Service.Validate].
type Validation struct {
	Status    Status
	UserID    string
	ExpiresAt time.Time
}

// Valid reports whether the token may be redeemed.
func (v Validation) Valid() bool {
	return v.Status == StatusValid
}

// Option customizes a [Service].
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRandom overrides the secure random source.
func WithRandom(r io.Reader) Option {
	return func(s *Service) {
		if r != nil {
			s.rand = r
		}
	}
}

// Service generates, validates and consumes tokens.
type Service struct {
	store  Store
	config Config
	now    func() time.Time
	rand   io.Reader
}

// NewService returns a token service over store.
func NewService(store Store, cfg Config, opts ...Option) *Service {
	s := &Service{
		store:  store,
		config: cfg,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TTL returns the configured lifetime for kind.
func (s *Service) TTL(kind Kind) time.Duration {
	kc, _ := s.config.forKind(kind)
	return kc.TTL
}

// Generate invalidates the user's current token of kind and stores a new one.
func (s *Service) Generate(ctx context.Context, kind Kind, userID string) (*Token, error) {
	kc, ok := s.config.forKind(kind)
	if !ok {
		return nil, ErrInvalidKind
	}
	if strings.TrimSpace(userID) == "" {
		return nil, ErrInvalidUserID
	}

	if err := s.store.ClearUserToken(ctx, kind, userID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	value, err := newValue(s.rand, kc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	expiresAt := s.now().Add(kc.TTL)
	if err := s.store.SaveToken(ctx, kind, userID, value, expiresAt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	return &Token{
		Kind:      kind,
		Value:     value,
		UserID:    userID,
		ExpiresAt: expiresAt,
	}, nil
}

// Validate classifies value without consuming it. Malformed values are
// rejected before any store lookup. A missing expiry counts as expired.
func (s *Service) Validate(ctx context.Context, kind Kind, value string) (Validation, error) {
	kc, ok := s.config.forKind(kind)
	if !ok {
		return Validation{}, ErrInvalidKind
	}
	if !wellFormed(value, kc) {
		return Validation{Status: StatusNotFound}, nil
	}

	rec, err := s.store.FindToken(ctx, kind, value)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Validation{Status: StatusNotFound}, nil
		}
		return Validation{}, fmt.Errorf("%w: %v", ErrLookup, err)
	}
	if rec == nil {
		return Validation{Status: StatusNotFound}, nil
	}

	if rec.ExpiresAt == nil {
		return Validation{Status: StatusExpired, UserID: rec.UserID}, nil
	}
	if !s.now().Before(*rec.ExpiresAt) {
		return Validation{Status: StatusExpired, UserID: rec.UserID, ExpiresAt: *rec.ExpiresAt}, nil
	}

	return Validation{Status: StatusValid, UserID: rec.UserID, ExpiresAt: *rec.ExpiresAt}, nil
}

// Invalidate clears value and reports whether any record was updated.
// False means the token was already consumed or never existed.
func (s *Service) Invalidate(ctx context.Context, kind Kind, value string) (bool, error) {
	if _, ok := s.config.forKind(kind); !ok {
		return false, ErrInvalidKind
	}
	if value == "" {
		return false, nil
	}

	updated, err := s.store.ConsumeToken(ctx, kind, value, s.now())
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return updated, nil
}

// Consume validates and invalidates value in one step. When a concurrent
// caller wins the invalidation, the loser observes StatusNotFound.
func (s *Service) Consume(ctx context.Context, kind Kind, value string) (Validation, error) {
	v, err := s.Validate(ctx, kind, value)
	if err != nil || !v.Valid() {
		return v, err
	}

	updated, err := s.Invalidate(ctx, kind, value)
	if err != nil {
		return Validation{}, err
	}
	if !updated {
		return Validation{Status: StatusNotFound}, nil
	}
	return v, nil
}

// CleanupExpired clears expired token pairs of every kind and returns the
// number of records cleaned.
func (s *Service) CleanupExpired(ctx context.Context) (int64, error) {
	now := s.now()
	var total int64
	for _, kind := range Kinds {
		n, err := s.store.ClearExpiredTokens(ctx, kind, now)
		if err != nil {
			return total, fmt.Errorf("%w: %v", ErrPersistence, err)
		}
		total += n
	}
	return total, nil
}
