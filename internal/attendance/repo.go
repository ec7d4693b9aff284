package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Record is one student's mark for one class meeting. Unique on
// (class_schedule_id, session_date, student_id); a second verified
// attempt is a no-op, never a second row.
type Record struct {
	ID              string     `json:"id"`
	ClassScheduleID int64      `json:"class_schedule_id"`
	SessionDate     time.Time  `json:"session_date"`
	StudentID       string     `json:"student_id"`
	SessionID       string     `json:"session_id,omitempty"`
	Status          string     `json:"status"`
	MarkedAt        time.Time  `json:"marked_at"`
	AmendedBy       *string    `json:"amended_by,omitempty"`
	AmendedAt       *time.Time `json:"amended_at,omitempty"`
}

// Statuses an instructor may set through the amendment path.
var validStatuses = map[string]bool{"present": true, "absent": true, "excused": true, "late": true}

// Repository persists attendance records in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// MarkPresent is the race-safe insert-if-absent the verification gate
// relies on. It reports whether a new row was written; false means the
// student was already marked for this meeting.
func (r *Repository) MarkPresent(ctx context.Context, scheduleID int64, date time.Time, studentID, sessionID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_records (id, class_schedule_id, session_date, student_id, session_id, status, marked_at)
		VALUES ($1,$2,$3,$4,$5,'present',$6)
		ON CONFLICT (class_schedule_id, session_date, student_id) DO NOTHING
	`, uuid.NewString(), scheduleID, date, studentID, sessionID, time.Now().UTC())
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// Get returns a single record by id.
func (r *Repository) Get(ctx context.Context, id string) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, class_schedule_id, session_date, student_id, COALESCE(session_id,''), status, marked_at, amended_by, amended_at
		FROM attendance_records WHERE id = $1
	`, id)
	var rec Record
	if err := row.Scan(&rec.ID, &rec.ClassScheduleID, &rec.SessionDate, &rec.StudentID, &rec.SessionID,
		&rec.Status, &rec.MarkedAt, &rec.AmendedBy, &rec.AmendedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// Amend is the separate, audited instructor correction path; the
// verification gate never updates an existing record.
func (r *Repository) Amend(ctx context.Context, id, status, actor string) error {
	if !validStatuses[status] {
		return fmt.Errorf("invalid status %q", status)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE attendance_records
		SET status = $2, amended_by = $3, amended_at = $4
		WHERE id = $1
	`, id, status, actor, time.Now().UTC())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// List returns records with basic filters.
func (r *Repository) List(ctx context.Context, scheduleID int64, date *time.Time, studentID string, limit, offset int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	query := `SELECT id, class_schedule_id, session_date, student_id, COALESCE(session_id,''), status, marked_at, amended_by, amended_at FROM attendance_records`
	args := []any{}
	clauses := []string{}
	if scheduleID != 0 {
		args = append(args, scheduleID)
		clauses = append(clauses, fmt.Sprintf("class_schedule_id = $%d", len(args)))
	}
	if date != nil {
		args = append(args, *date)
		clauses = append(clauses, fmt.Sprintf("session_date = $%d", len(args)))
	}
	if studentID != "" {
		args = append(args, studentID)
		clauses = append(clauses, fmt.Sprintf("student_id = $%d", len(args)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + joinClauses(clauses, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY marked_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.ClassScheduleID, &rec.SessionDate, &rec.StudentID, &rec.SessionID,
			&rec.Status, &rec.MarkedAt, &rec.AmendedBy, &rec.AmendedAt); err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

func joinClauses(parts []string, sep string) string {
	if len(parts) == 0 {
		return ""
	}
	out := parts[0]
	for i := 1; i < len(parts); i++ {
		out += sep + parts[i]
	}
	return out
}
