package session

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

func nowUTC() time.Time { return time.Now().UTC() }

// Repository persists attendance sessions in Postgres. The partial unique
// index on (class_schedule_id, session_date) WHERE status='active' is what
// makes InsertActive race-safe.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const sessionColumns = `id, class_schedule_id, session_date, week_number, token, opened_at, expires_at, extended_minutes, status`

func scanSession(row interface{ Scan(...any) error }) (*Session, error) {
	var s Session
	err := row.Scan(&s.ID, &s.ClassScheduleID, &s.Date, &s.WeekNumber, &s.Token,
		&s.OpenedAt, &s.ExpiresAt, &s.ExtendedMinutes, &s.Status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// InsertActive writes the session unless the meeting already has an
// active one; the loser of the race gets the winner's row back.
func (r *Repository) InsertActive(ctx context.Context, s Session) (bool, *Session, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_sessions (`+sessionColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (class_schedule_id, session_date) WHERE status = 'active' DO NOTHING
	`, s.ID, s.ClassScheduleID, s.Date, s.WeekNumber, s.Token, s.OpenedAt, s.ExpiresAt, s.ExtendedMinutes, s.Status)
	if err != nil {
		return false, nil, err
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return true, nil, nil
	}
	existing, err := scanSession(r.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+` FROM attendance_sessions
		WHERE class_schedule_id = $1 AND session_date = $2 AND status = 'active'
	`, s.ClassScheduleID, s.Date))
	return false, existing, err
}

// Get loads one session by id.
func (r *Repository) Get(ctx context.Context, id string) (*Session, error) {
	return scanSession(r.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+` FROM attendance_sessions WHERE id = $1
	`, id))
}

// GetByToken resolves the unique token index.
func (r *Repository) GetByToken(ctx context.Context, token string) (*Session, error) {
	return scanSession(r.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+` FROM attendance_sessions WHERE token = $1
	`, token))
}

// Extend pushes expires_at forward from its stored value in one guarded
// update; state and cumulative cap are enforced by the WHERE clause so
// concurrent extends cannot overshoot.
func (r *Repository) Extend(ctx context.Context, id string, minutes, maxTotal int) (*Session, error) {
	updated, err := scanSession(r.db.QueryRowContext(ctx, `
		UPDATE attendance_sessions
		SET expires_at = expires_at + make_interval(mins => $2),
		    extended_minutes = extended_minutes + $2
		WHERE id = $1 AND status = 'active' AND expires_at > NOW()
		  AND extended_minutes + $2 <= $3
		RETURNING `+sessionColumns+`
	`, id, minutes, maxTotal))
	if err != nil {
		return nil, err
	}
	if updated != nil {
		return updated, nil
	}
	// Guard refused; figure out why.
	current, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch {
	case current == nil:
		return nil, ErrNotFound
	case current.Status != StatusActive, current.ExpiredAt(nowUTC()):
		return nil, ErrNotActive
	default:
		return nil, ErrExtensionLimit
	}
}

// Close marks the session closed regardless of current state.
func (r *Repository) Close(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE attendance_sessions SET status = 'closed' WHERE id = $1
	`, id)
	return err
}

// MarkExpired retires a single stale active row.
func (r *Repository) MarkExpired(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE attendance_sessions SET status = 'expired' WHERE id = $1 AND status = 'active'
	`, id)
	return err
}

// SweepExpired retires every active session whose window has passed.
// Housekeeping only: validation never trusts the status column alone.
func (r *Repository) SweepExpired(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE attendance_sessions SET status = 'expired'
		WHERE status = 'active' AND expires_at < NOW()
	`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
