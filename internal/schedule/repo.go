package schedule

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"
)

// Repository persists schedules, slots and semesters in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// candidates loads existing bookings matching one conflict dimension,
// grouped per schedule. excludeID filters the schedule being updated.
func candidates(ctx context.Context, q querier, column, key, day string, excludeID int64) ([]Candidate, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT s.id, t.start_minute, t.end_minute
		FROM class_schedules s
		JOIN time_slots t ON t.class_schedule_id = s.id
		WHERE s.`+column+` = $1 AND s.day_of_week = $2 AND s.id <> $3
		ORDER BY s.id, t.id
	`, key, day, excludeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var id int64
		var iv Interval
		if err := rows.Scan(&id, &iv.Start, &iv.End); err != nil {
			return nil, err
		}
		if n := len(out); n > 0 && out[n-1].ScheduleID == id {
			out[n-1].Intervals = append(out[n-1].Intervals, iv)
		} else {
			out = append(out, Candidate{ScheduleID: id, Intervals: []Interval{iv}})
		}
	}
	return out, rows.Err()
}

// RoomCandidates and LecturerCandidates back the read-only check surface.
func (r *Repository) RoomCandidates(ctx context.Context, room, day string, excludeID int64) ([]Candidate, error) {
	return candidates(ctx, r.db, "room", room, day, excludeID)
}

func (r *Repository) LecturerCandidates(ctx context.Context, lecturerID, day string, excludeID int64) ([]Candidate, error) {
	return candidates(ctx, r.db, "lecturer_id", lecturerID, day, excludeID)
}

// lockKeys serializes concurrent writers touching the same room+day or
// lecturer+day. Keys are taken in sorted order so two writers sharing
// both keys cannot deadlock.
func lockKeys(ctx context.Context, tx *sql.Tx, keys ...string) error {
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, k); err != nil {
			return err
		}
	}
	return nil
}

// CreateChecked inserts a schedule and its slots inside one transaction,
// re-running the conflict check under advisory locks so two concurrent
// creates cannot both pass and both write.
func (r *Repository) CreateChecked(ctx context.Context, cs ClassSchedule) (ClassSchedule, Result, error) {
	return r.writeChecked(ctx, cs, 0)
}

// UpdateChecked replaces a schedule and its slots, checking against all
// other schedules.
func (r *Repository) UpdateChecked(ctx context.Context, cs ClassSchedule) (ClassSchedule, Result, error) {
	if cs.ID == 0 {
		return ClassSchedule{}, Result{}, errors.New("schedule id required")
	}
	return r.writeChecked(ctx, cs, cs.ID)
}

func (r *Repository) writeChecked(ctx context.Context, cs ClassSchedule, excludeID int64) (ClassSchedule, Result, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return ClassSchedule{}, Result{}, err
	}
	defer tx.Rollback()

	if err := lockKeys(ctx, tx,
		"sched:room:"+cs.Room+":"+cs.DayOfWeek,
		"sched:lect:"+cs.LecturerID+":"+cs.DayOfWeek,
	); err != nil {
		return ClassSchedule{}, Result{}, err
	}

	roomCands, err := candidates(ctx, tx, "room", cs.Room, cs.DayOfWeek, excludeID)
	if err != nil {
		return ClassSchedule{}, Result{}, err
	}
	lectCands, err := candidates(ctx, tx, "lecturer_id", cs.LecturerID, cs.DayOfWeek, excludeID)
	if err != nil {
		return ClassSchedule{}, Result{}, err
	}
	res, err := Detect(cs.Slots, roomCands, lectCands)
	if err != nil {
		return ClassSchedule{}, Result{}, err
	}
	if res.Conflict {
		return ClassSchedule{}, res, nil
	}

	now := time.Now().UTC()
	if excludeID == 0 {
		row := tx.QueryRowContext(ctx, `
			INSERT INTO class_schedules (course, room, day_of_week, lecturer_id, semester_id, created_at, updated_at)
			VALUES ($1,$2,$3,$4,NULLIF($5,''),$6,$6)
			RETURNING id, created_at
		`, cs.Course, cs.Room, cs.DayOfWeek, cs.LecturerID, cs.SemesterID, now)
		if err := row.Scan(&cs.ID, &cs.CreatedAt); err != nil {
			return ClassSchedule{}, Result{}, err
		}
	} else {
		res, err := tx.ExecContext(ctx, `
			UPDATE class_schedules
			SET course=$2, room=$3, day_of_week=$4, lecturer_id=$5, semester_id=NULLIF($6,''), updated_at=$7
			WHERE id=$1
		`, cs.ID, cs.Course, cs.Room, cs.DayOfWeek, cs.LecturerID, cs.SemesterID, now)
		if err != nil {
			return ClassSchedule{}, Result{}, err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ClassSchedule{}, Result{}, sql.ErrNoRows
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM time_slots WHERE class_schedule_id = $1`, cs.ID); err != nil {
			return ClassSchedule{}, Result{}, err
		}
	}
	cs.UpdatedAt = now

	for _, iv := range cs.Slots {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO time_slots (class_schedule_id, start_minute, end_minute)
			VALUES ($1,$2,$3)
		`, cs.ID, iv.Start, iv.End); err != nil {
			return ClassSchedule{}, Result{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return ClassSchedule{}, Result{}, err
	}
	return cs, Result{}, nil
}

// Get returns a schedule with its slots.
func (r *Repository) Get(ctx context.Context, id int64) (*ClassSchedule, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, course, room, day_of_week, lecturer_id, COALESCE(semester_id,''), created_at, updated_at
		FROM class_schedules WHERE id = $1
	`, id)
	var cs ClassSchedule
	if err := row.Scan(&cs.ID, &cs.Course, &cs.Room, &cs.DayOfWeek, &cs.LecturerID, &cs.SemesterID, &cs.CreatedAt, &cs.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT start_minute, end_minute FROM time_slots WHERE class_schedule_id = $1 ORDER BY id
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var iv Interval
		if err := rows.Scan(&iv.Start, &iv.End); err != nil {
			return nil, err
		}
		cs.Slots = append(cs.Slots, iv)
	}
	return &cs, rows.Err()
}

// Delete removes a schedule; owned slots go with it via ON DELETE CASCADE.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM class_schedules WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetActiveSemester deactivates every semester then activates the target,
// all in one transaction. The active semester is always a query, never
// cached process state.
func (r *Repository) SetActiveSemester(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `UPDATE semesters SET is_active = FALSE WHERE is_active`); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE semesters SET is_active = TRUE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return tx.Commit()
}

// ActiveSemester returns the currently active semester, if any.
func (r *Repository) ActiveSemester(ctx context.Context) (*Semester, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, name, is_active FROM semesters WHERE is_active LIMIT 1`)
	var s Semester
	if err := row.Scan(&s.ID, &s.Name, &s.IsActive); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}
