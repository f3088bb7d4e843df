package authshield

import (
	"context"
	"time"

	"github.com/MrEthical07/authshield/token"
)

// Role is the authorization role of an account.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// UserAccount is the persisted identity and credential state of one user.
//
// AccountLockedUntil is set only while a lockout is active.
// FailedLoginAttempts returns to zero on successful login and on
// administrative unlock. Only Engine methods mutate lockout fields.
type UserAccount struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	Role         Role

	EmailVerifiedAt *time.Time

	FailedLoginAttempts int
	AccountLockedUntil  *time.Time
	LastLoginAt         *time.Time
	LastLoginIP         string

	EmailVerificationToken   string
	EmailVerificationExpires *time.Time
	PasswordResetToken       string
	PasswordResetExpires     *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// View returns the minimal projection safe to hand to callers.
func (u *UserAccount) View() *UserView {
	if u == nil {
		return nil
	}
	return &UserView{
		ID:            u.ID,
		Email:         u.Email,
		Name:          u.Name,
		Role:          u.Role,
		EmailVerified: u.EmailVerifiedAt != nil,
		LastLoginAt:   u.LastLoginAt,
	}
}

// UserView is the caller-facing user projection. It never carries
// credential or token material.
type UserView struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	Name          string     `json:"name"`
	Role          Role       `json:"role"`
	EmailVerified bool       `json:"emailVerified"`
	LastLoginAt   *time.Time `json:"lastLoginAt,omitempty"`
}

// UserStore is the relational user record contract. Lookups of missing
// records return ErrUserNotFound. Every write stamps UpdatedAt with the
// supplied time.
type UserStore interface {
	token.Store

	GetUserByID(ctx context.Context, id string) (*UserAccount, error)
	// GetUserByEmail matches the normalized (lowercase, trimmed) email.
	GetUserByEmail(ctx context.Context, email string) (*UserAccount, error)
	// CreateUser returns ErrAccountExists when the email is taken.
	CreateUser(ctx context.Context, u *UserAccount) error
	UpdateLockout(ctx context.Context, userID string, failedAttempts int, lockedUntil *time.Time, at time.Time) error
	// RecordLogin zeroes failed attempts, clears the lock and stamps the
	// last login.
	RecordLogin(ctx context.Context, userID, ip string, at time.Time) error
	UpdatePassword(ctx context.Context, userID, passwordHash string, at time.Time) error
	// ListLockedAccounts returns accounts locked at now or with at least
	// threshold failed attempts, plus the total match count.
	ListLockedAccounts(ctx context.Context, now time.Time, threshold, limit, offset int) ([]*UserAccount, int, error)
}

// Notifier delivers user-facing email. Failures are logged by the engine
// and never fail the calling operation.
type Notifier interface {
	SendVerificationEmail(ctx context.Context, to, name, token string, expiresAt time.Time) error
	SendPasswordResetEmail(ctx context.Context, to, name, token string, expiresAt time.Time) error
	SendLockoutNotification(ctx context.Context, to, name string, lockedUntil time.Time, duration time.Duration) error
	SendPasswordChangedNotification(ctx context.Context, to, name string, at time.Time) error
}

// NoopNotifier discards every notification.
type NoopNotifier struct{}

func (NoopNotifier) SendVerificationEmail(context.Context, string, string, string, time.Time) error {
	return nil
}

func (NoopNotifier) SendPasswordResetEmail(context.Context, string, string, string, time.Time) error {
	return nil
}

func (NoopNotifier) SendLockoutNotification(context.Context, string, string, time.Time, time.Duration) error {
	return nil
}

func (NoopNotifier) SendPasswordChangedNotification(context.Context, string, string, time.Time) error {
	return nil
}

// LoginResult is returned by a successful [Engine.Login].
type LoginResult struct {
	User         *UserView `json:"user"`
	SessionID    string    `json:"sessionId"`
	SessionToken string    `json:"sessionToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// RegisterInput is the payload of [Engine.Register].
type RegisterInput struct {
	Email    string
	Password string
	Name     string
}

// RegisterResult is returned by a successful [Engine.Register].
type RegisterResult struct {
	User             *UserView `json:"user"`
	VerificationSent bool      `json:"verificationSent"`
}

// SessionInfo describes a validated session.
type SessionInfo struct {
	SessionID string    `json:"sessionId"`
	UserID    string    `json:"userId"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// LockoutStatus is the read-only lockout projection of one account.
//
// LockoutNumber is 1 for the first lockout, 2 for the second tranche and
// so on; 0 when the threshold has not been reached. NextLockoutMinutes is
// the duration one more failure would impose.
type LockoutStatus struct {
	IsLocked           bool       `json:"isLocked"`
	FailedAttempts     int        `json:"failedAttempts"`
	MaxAttempts        int        `json:"maxAttempts"`
	RemainingAttempts  int        `json:"remainingAttempts"`
	LockoutNumber      int        `json:"lockoutNumber"`
	LockedUntil        *time.Time `json:"lockedUntil,omitempty"`
	MinutesRemaining   int        `json:"minutesRemaining"`
	NextLockoutMinutes int        `json:"nextLockoutMinutes"`
}

// LockedAccount is one row of [Engine.GetLockedAccounts].
type LockedAccount struct {
	User             *UserView  `json:"user"`
	FailedAttempts   int        `json:"failedAttempts"`
	LockedUntil      *time.Time `json:"lockedUntil,omitempty"`
	IsLocked         bool       `json:"isLocked"`
	MinutesRemaining int        `json:"minutesRemaining"`
}

// LockedAccountsPage is a page of locked accounts.
type LockedAccountsPage struct {
	Accounts []LockedAccount `json:"accounts"`
	Total    int             `json:"total"`
	Limit    int             `json:"limit"`
	Offset   int             `json:"offset"`
}
