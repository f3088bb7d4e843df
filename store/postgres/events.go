package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/authshield"
)

// Events is a PostgreSQL authshield.EventLog. Details are stored as JSONB.
type Events struct {
	db DB
}

// NewEvents returns a log backed by db.
func NewEvents(db DB) *Events {
	return &Events{db: db}
}

func (l *Events) Append(ctx context.Context, ev *authshield.SecurityEvent) error {
	var details []byte
	if len(ev.Details) > 0 {
		b, err := json.Marshal(ev.Details)
		if err != nil {
			return fmt.Errorf("append event: encode details: %w", err)
		}
		details = b
	}
	_, err := l.db.Exec(ctx, `
		INSERT INTO security_events (id, type, success, user_id, email, ip, user_agent, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		ev.ID, string(ev.Type), ev.Success, nullable(ev.UserID), nullable(ev.Email),
		nullable(ev.IP), nullable(ev.UserAgent), details, ev.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// where renders the WHERE clause of f and its positional arguments.
func where(f authshield.EventFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, strings.ReplaceAll(cond, "?", "$"+strconv.Itoa(len(args))))
	}
	if f.UserID != "" {
		add("user_id = ?", f.UserID)
	}
	if f.Email != "" {
		add("email = ?", f.Email)
	}
	if f.IP != "" {
		add("ip = ?", f.IP)
	}
	if f.Success != nil {
		add("success = ?", *f.Success)
	}
	if !f.Since.IsZero() {
		add("created_at >= ?", f.Since)
	}
	if !f.Until.IsZero() {
		add("created_at <= ?", f.Until)
	}
	if len(f.Types) > 0 {
		types := make([]string, len(f.Types))
		for i, t := range f.Types {
			types[i] = string(t)
		}
		add("type = ANY(?)", types)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (l *Events) Query(ctx context.Context, f authshield.EventFilter) ([]*authshield.SecurityEvent, int, error) {
	clause, args := where(f)
	var lim any
	if f.Limit > 0 {
		lim = f.Limit
	}
	args = append(args, lim, f.Offset)
	sql := `SELECT id, type, success, COALESCE(user_id, ''), COALESCE(email, ''), COALESCE(ip, ''),
		COALESCE(user_agent, ''), details, created_at, COUNT(*) OVER()
		FROM security_events` + clause + `
		ORDER BY created_at DESC, id DESC
		LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := l.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := make([]*authshield.SecurityEvent, 0)
	total := 0
	for rows.Next() {
		var (
			ev      authshield.SecurityEvent
			typ     string
			details []byte
		)
		if err := rows.Scan(&ev.ID, &typ, &ev.Success, &ev.UserID, &ev.Email, &ev.IP,
			&ev.UserAgent, &details, &ev.CreatedAt, &total); err != nil {
			return nil, 0, fmt.Errorf("query events: %w", err)
		}
		ev.Type = authshield.EventType(typ)
		if len(details) > 0 {
			if err := json.Unmarshal(details, &ev.Details); err != nil {
				return nil, 0, fmt.Errorf("query events: decode details: %w", err)
			}
		}
		events = append(events, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("query events: %w", err)
	}
	return events, total, nil
}

func (l *Events) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := l.db.Exec(ctx, `DELETE FROM security_events WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("delete events: %w", err)
	}
	return tag.RowsAffected(), nil
}
