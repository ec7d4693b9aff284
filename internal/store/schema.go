package store

import (
	"context"
	"database/sql"
	"log"
)

// Migrate applies the schema. Statements are idempotent so the runner can
// be executed on every startup.
func Migrate(ctx context.Context, db *sql.DB) error {
	log.Println("running database migrations...")
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	log.Println("database migrations completed")
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS semesters (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		is_active   BOOLEAN NOT NULL DEFAULT FALSE,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS students (
		id              TEXT PRIMARY KEY,
		name            TEXT NOT NULL,
		email           TEXT,
		face_registered BOOLEAN NOT NULL DEFAULT FALSE,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS class_schedules (
		id          BIGSERIAL PRIMARY KEY,
		course      TEXT NOT NULL,
		room        TEXT NOT NULL,
		day_of_week TEXT NOT NULL,
		lecturer_id TEXT NOT NULL,
		semester_id TEXT REFERENCES semesters(id),
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	// Slots are owned by their schedule and go with it.
	`CREATE TABLE IF NOT EXISTS time_slots (
		id                BIGSERIAL PRIMARY KEY,
		class_schedule_id BIGINT NOT NULL REFERENCES class_schedules(id) ON DELETE CASCADE,
		start_minute      INT NOT NULL,
		end_minute        INT NOT NULL,
		CHECK (start_minute < end_minute)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_time_slots_schedule ON time_slots (class_schedule_id)`,
	`CREATE INDEX IF NOT EXISTS idx_schedules_room_day ON class_schedules (room, day_of_week)`,
	`CREATE INDEX IF NOT EXISTS idx_schedules_lecturer_day ON class_schedules (lecturer_id, day_of_week)`,

	`CREATE TABLE IF NOT EXISTS face_templates (
		id         TEXT PRIMARY KEY,
		student_id TEXT NOT NULL REFERENCES students(id),
		embedding  JSONB NOT NULL,
		is_active  BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	// Exactly one active template per student.
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_face_templates_active
		ON face_templates (student_id) WHERE is_active`,

	`CREATE TABLE IF NOT EXISTS face_template_images (
		id          TEXT PRIMARY KEY,
		template_id TEXT NOT NULL REFERENCES face_templates(id) ON DELETE CASCADE,
		image_path  TEXT NOT NULL,
		position    INT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS attendance_sessions (
		id                TEXT PRIMARY KEY,
		class_schedule_id BIGINT NOT NULL REFERENCES class_schedules(id),
		session_date      DATE NOT NULL,
		week_number       INT NOT NULL,
		token             TEXT NOT NULL UNIQUE,
		opened_at         TIMESTAMPTZ NOT NULL,
		expires_at        TIMESTAMPTZ NOT NULL,
		extended_minutes  INT NOT NULL DEFAULT 0,
		status            TEXT NOT NULL DEFAULT 'active'
	)`,
	// At most one active session per class meeting.
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_sessions_active_meeting
		ON attendance_sessions (class_schedule_id, session_date) WHERE status = 'active'`,

	`CREATE TABLE IF NOT EXISTS attendance_records (
		id                TEXT PRIMARY KEY,
		class_schedule_id BIGINT NOT NULL REFERENCES class_schedules(id),
		session_date      DATE NOT NULL,
		student_id        TEXT NOT NULL REFERENCES students(id),
		session_id        TEXT REFERENCES attendance_sessions(id),
		status            TEXT NOT NULL DEFAULT 'present',
		marked_at         TIMESTAMPTZ NOT NULL,
		amended_by        TEXT,
		amended_at        TIMESTAMPTZ,
		UNIQUE (class_schedule_id, session_date, student_id)
	)`,

	`CREATE TABLE IF NOT EXISTS audit_events (
		id          TEXT PRIMARY KEY,
		occurred_at TIMESTAMPTZ NOT NULL,
		actor       TEXT NOT NULL,
		action      TEXT NOT NULL,
		subject     TEXT NOT NULL,
		code        TEXT,
		detail      TEXT
	)`,
}
