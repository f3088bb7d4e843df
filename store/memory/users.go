package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/MrEthical07/authshield"
	"github.com/MrEthical07/authshield/token"
)

// Users is an in-memory authshield.UserStore. Records are copied on the way
// in and out so callers never share state with the store.
type Users struct {
	mu      sync.RWMutex
	byID    map[string]*authshield.UserAccount
	byEmail map[string]string
}

// NewUsers returns an empty store.
func NewUsers() *Users {
	return &Users{
		byID:    make(map[string]*authshield.UserAccount),
		byEmail: make(map[string]string),
	}
}

func cloneUser(u *authshield.UserAccount) *authshield.UserAccount {
	c := *u
	c.EmailVerifiedAt = cloneTime(u.EmailVerifiedAt)
	c.AccountLockedUntil = cloneTime(u.AccountLockedUntil)
	c.LastLoginAt = cloneTime(u.LastLoginAt)
	c.EmailVerificationExpires = cloneTime(u.EmailVerificationExpires)
	c.PasswordResetExpires = cloneTime(u.PasswordResetExpires)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// Put inserts or replaces u without uniqueness checks. Tests use it to seed
// arbitrary account state.
func (s *Users) Put(u *authshield.UserAccount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.byID[u.ID]; ok {
		delete(s.byEmail, authshield.NormalizeEmail(old.Email))
	}
	s.byID[u.ID] = cloneUser(u)
	s.byEmail[authshield.NormalizeEmail(u.Email)] = u.ID
}

// Len returns the number of stored accounts.
func (s *Users) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

func (s *Users) GetUserByID(_ context.Context, id string) (*authshield.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, authshield.ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (s *Users) GetUserByEmail(_ context.Context, email string) (*authshield.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[authshield.NormalizeEmail(email)]
	if !ok {
		return nil, authshield.ErrUserNotFound
	}
	return cloneUser(s.byID[id]), nil
}

func (s *Users) CreateUser(_ context.Context, u *authshield.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	email := authshield.NormalizeEmail(u.Email)
	if _, ok := s.byEmail[email]; ok {
		return authshield.ErrAccountExists
	}
	s.byID[u.ID] = cloneUser(u)
	s.byEmail[email] = u.ID
	return nil
}

// update applies fn to the stored record of userID under the write lock.
func (s *Users) update(userID string, at time.Time, fn func(u *authshield.UserAccount)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[userID]
	if !ok {
		return authshield.ErrUserNotFound
	}
	fn(u)
	u.UpdatedAt = at
	return nil
}

func (s *Users) UpdateLockout(_ context.Context, userID string, failed int, lockedUntil *time.Time, at time.Time) error {
	return s.update(userID, at, func(u *authshield.UserAccount) {
		u.FailedLoginAttempts = failed
		u.AccountLockedUntil = cloneTime(lockedUntil)
	})
}

func (s *Users) RecordLogin(_ context.Context, userID, ip string, at time.Time) error {
	return s.update(userID, at, func(u *authshield.UserAccount) {
		u.FailedLoginAttempts = 0
		u.AccountLockedUntil = nil
		u.LastLoginAt = &at
		u.LastLoginIP = ip
	})
}

func (s *Users) UpdatePassword(_ context.Context, userID, hash string, at time.Time) error {
	return s.update(userID, at, func(u *authshield.UserAccount) {
		u.PasswordHash = hash
	})
}

func (s *Users) ListLockedAccounts(_ context.Context, now time.Time, threshold, limit, offset int) ([]*authshield.UserAccount, int, error) {
	s.mu.RLock()
	matches := make([]*authshield.UserAccount, 0)
	for _, u := range s.byID {
		locked := u.AccountLockedUntil != nil && now.Before(*u.AccountLockedUntil)
		if locked || u.FailedLoginAttempts >= threshold {
			matches = append(matches, cloneUser(u))
		}
	}
	s.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].FailedLoginAttempts != matches[j].FailedLoginAttempts {
			return matches[i].FailedLoginAttempts > matches[j].FailedLoginAttempts
		}
		return matches[i].ID < matches[j].ID
	})
	return page(matches, limit, offset), len(matches), nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// tokenFields returns pointers to the value and expiry fields of kind.
func tokenFields(u *authshield.UserAccount, kind token.Kind) (*string, **time.Time, bool) {
	switch kind {
	case token.EmailVerification:
		return &u.EmailVerificationToken, &u.EmailVerificationExpires, true
	case token.PasswordReset:
		return &u.PasswordResetToken, &u.PasswordResetExpires, true
	default:
		return nil, nil, false
	}
}

func (s *Users) SaveToken(_ context.Context, kind token.Kind, userID, value string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[userID]
	if !ok {
		return authshield.ErrUserNotFound
	}
	v, exp, ok := tokenFields(u, kind)
	if !ok {
		return token.ErrInvalidKind
	}
	*v = value
	*exp = &expiresAt
	return nil
}

func (s *Users) ClearUserToken(_ context.Context, kind token.Kind, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[userID]
	if !ok {
		return nil
	}
	v, exp, ok := tokenFields(u, kind)
	if !ok {
		return token.ErrInvalidKind
	}
	*v = ""
	*exp = nil
	return nil
}

func (s *Users) findToken(kind token.Kind, value string) *authshield.UserAccount {
	for _, u := range s.byID {
		v, _, ok := tokenFields(u, kind)
		if ok && *v != "" && *v == value {
			return u
		}
	}
	return nil
}

func (s *Users) FindToken(_ context.Context, kind token.Kind, value string) (*token.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u := s.findToken(kind, value)
	if u == nil {
		return nil, token.ErrNotFound
	}
	_, exp, _ := tokenFields(u, kind)
	return &token.Record{UserID: u.ID, ExpiresAt: cloneTime(*exp)}, nil
}

func (s *Users) ConsumeToken(_ context.Context, kind token.Kind, value string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.findToken(kind, value)
	if u == nil {
		return false, nil
	}
	v, exp, _ := tokenFields(u, kind)
	*v = ""
	*exp = nil
	if kind == token.EmailVerification {
		u.EmailVerifiedAt = &at
	}
	u.UpdatedAt = at
	return true, nil
}

func (s *Users) ClearExpiredTokens(_ context.Context, kind token.Kind, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, u := range s.byID {
		v, exp, ok := tokenFields(u, kind)
		if !ok {
			return 0, token.ErrInvalidKind
		}
		if *v != "" && *exp != nil && (*exp).Before(before) {
			*v = ""
			*exp = nil
			n++
		}
	}
	return n, nil
}
