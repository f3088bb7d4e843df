package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/MrEthical07/authshield"
	"github.com/MrEthical07/authshield/token"
)

const userColumns = `id, email, name, password_hash, role, email_verified_at,
	failed_login_attempts, account_locked_until, last_login_at, COALESCE(last_login_ip, ''),
	COALESCE(email_verification_token, ''), email_verification_expires,
	COALESCE(password_reset_token, ''), password_reset_expires,
	created_at, updated_at`

// Users is a PostgreSQL authshield.UserStore.
type Users struct {
	db DB
}

// NewUsers returns a store backed by db.
func NewUsers(db DB) *Users {
	return &Users{db: db}
}

func scanUser(row pgx.Row, extra ...any) (*authshield.UserAccount, error) {
	var (
		u    authshield.UserAccount
		role string
	)
	dest := []any{
		&u.ID, &u.Email, &u.Name, &u.PasswordHash, &role, &u.EmailVerifiedAt,
		&u.FailedLoginAttempts, &u.AccountLockedUntil, &u.LastLoginAt, &u.LastLoginIP,
		&u.EmailVerificationToken, &u.EmailVerificationExpires,
		&u.PasswordResetToken, &u.PasswordResetExpires,
		&u.CreatedAt, &u.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	u.Role = authshield.Role(role)
	return &u, nil
}

func (s *Users) getUser(ctx context.Context, op, where string, arg any) (*authshield.UserAccount, error) {
	u, err := scanUser(s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, authshield.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

func (s *Users) GetUserByID(ctx context.Context, id string) (*authshield.UserAccount, error) {
	return s.getUser(ctx, "get user by id", `id = $1`, id)
}

func (s *Users) GetUserByEmail(ctx context.Context, email string) (*authshield.UserAccount, error) {
	return s.getUser(ctx, "get user by email", `email = $1`, authshield.NormalizeEmail(email))
}

func (s *Users) CreateUser(ctx context.Context, u *authshield.UserAccount) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO users (id, email, name, password_hash, role, email_verified_at,
			failed_login_attempts, account_locked_until, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		u.ID, authshield.NormalizeEmail(u.Email), u.Name, u.PasswordHash, string(u.Role), u.EmailVerifiedAt,
		u.FailedLoginAttempts, u.AccountLockedUntil, u.CreatedAt, u.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return authshield.ErrAccountExists
	}
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// updateOne runs an UPDATE keyed by id and maps zero affected rows to
// ErrUserNotFound.
func (s *Users) updateOne(ctx context.Context, op, sql string, args ...any) error {
	tag, err := s.db.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return authshield.ErrUserNotFound
	}
	return nil
}

func (s *Users) UpdateLockout(ctx context.Context, userID string, failed int, lockedUntil *time.Time, at time.Time) error {
	return s.updateOne(ctx, "update lockout",
		`UPDATE users SET failed_login_attempts = $2, account_locked_until = $3, updated_at = $4 WHERE id = $1`,
		userID, failed, lockedUntil, at)
}

func (s *Users) RecordLogin(ctx context.Context, userID, ip string, at time.Time) error {
	return s.updateOne(ctx, "record login",
		`UPDATE users SET failed_login_attempts = 0, account_locked_until = NULL,
			last_login_at = $2, last_login_ip = $3, updated_at = $2 WHERE id = $1`,
		userID, at, nullable(ip))
}

func (s *Users) UpdatePassword(ctx context.Context, userID, hash string, at time.Time) error {
	return s.updateOne(ctx, "update password",
		`UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`,
		userID, hash, at)
}

func (s *Users) ListLockedAccounts(ctx context.Context, now time.Time, threshold, limit, offset int) ([]*authshield.UserAccount, int, error) {
	var lim any
	if limit > 0 {
		lim = limit
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+userColumns+`, COUNT(*) OVER()
		FROM users
		WHERE account_locked_until > $1 OR failed_login_attempts >= $2
		ORDER BY failed_login_attempts DESC, id
		LIMIT $3 OFFSET $4`,
		now, threshold, lim, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list locked accounts: %w", err)
	}
	defer rows.Close()

	users := make([]*authshield.UserAccount, 0)
	total := 0
	for rows.Next() {
		u, err := scanUser(rows, &total)
		if err != nil {
			return nil, 0, fmt.Errorf("list locked accounts: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list locked accounts: %w", err)
	}

	// A page past the end carries no window count.
	if len(users) == 0 && offset > 0 {
		err := s.db.QueryRow(ctx,
			`SELECT COUNT(*) FROM users WHERE account_locked_until > $1 OR failed_login_attempts >= $2`,
			now, threshold).Scan(&total)
		if err != nil {
			return nil, 0, fmt.Errorf("count locked accounts: %w", err)
		}
	}
	return users, total, nil
}

// tokenColumns returns the value and expiry columns of kind.
func tokenColumns(kind token.Kind) (string, string, error) {
	switch kind {
	case token.EmailVerification:
		return "email_verification_token", "email_verification_expires", nil
	case token.PasswordReset:
		return "password_reset_token", "password_reset_expires", nil
	default:
		return "", "", token.ErrInvalidKind
	}
}

func (s *Users) SaveToken(ctx context.Context, kind token.Kind, userID, value string, expiresAt time.Time) error {
	col, exp, err := tokenColumns(kind)
	if err != nil {
		return err
	}
	return s.updateOne(ctx, "save token",
		`UPDATE users SET `+col+` = $2, `+exp+` = $3 WHERE id = $1`,
		userID, value, expiresAt)
}

func (s *Users) ClearUserToken(ctx context.Context, kind token.Kind, userID string) error {
	col, exp, err := tokenColumns(kind)
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(ctx, `UPDATE users SET `+col+` = NULL, `+exp+` = NULL WHERE id = $1`, userID); err != nil {
		return fmt.Errorf("clear token: %w", err)
	}
	return nil
}

func (s *Users) FindToken(ctx context.Context, kind token.Kind, value string) (*token.Record, error) {
	col, exp, err := tokenColumns(kind)
	if err != nil {
		return nil, err
	}
	var rec token.Record
	err = s.db.QueryRow(ctx, `SELECT id, `+exp+` FROM users WHERE `+col+` = $1`, value).Scan(&rec.UserID, &rec.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, token.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find token: %w", err)
	}
	return &rec, nil
}

func (s *Users) ConsumeToken(ctx context.Context, kind token.Kind, value string, at time.Time) (bool, error) {
	col, exp, err := tokenColumns(kind)
	if err != nil {
		return false, err
	}
	set := col + ` = NULL, ` + exp + ` = NULL, updated_at = $2`
	if kind == token.EmailVerification {
		set += `, email_verified_at = $2`
	}
	tag, err := s.db.Exec(ctx, `UPDATE users SET `+set+` WHERE `+col+` = $1`, value, at)
	if err != nil {
		return false, fmt.Errorf("consume token: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Users) ClearExpiredTokens(ctx context.Context, kind token.Kind, before time.Time) (int64, error) {
	col, exp, err := tokenColumns(kind)
	if err != nil {
		return 0, err
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE users SET `+col+` = NULL, `+exp+` = NULL WHERE `+col+` IS NOT NULL AND `+exp+` < $1`,
		before)
	if err != nil {
		return 0, fmt.Errorf("clear expired tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}
