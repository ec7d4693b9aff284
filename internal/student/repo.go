package student

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Student is a registered student.
type Student struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Email          *string   `json:"email,omitempty"`
	FaceRegistered bool      `json:"face_registered"`
	CreatedAt      time.Time `json:"created_at"`
}

// Template is the single canonical face embedding for a student, plus the
// enrollment images it was averaged from.
type Template struct {
	ID         string    `json:"id"`
	StudentID  string    `json:"student_id"`
	Embedding  []float64 `json:"embedding"`
	ImagePaths []string  `json:"image_paths"`
	CreatedAt  time.Time `json:"created_at"`
}

// Repository persists students and face templates in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Get returns a student by id, nil when absent.
func (r *Repository) Get(ctx context.Context, id string) (*Student, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, email, face_registered, created_at FROM students WHERE id = $1
	`, id)
	var s Student
	if err := row.Scan(&s.ID, &s.Name, &s.Email, &s.FaceRegistered, &s.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// Upsert creates or updates a student.
func (r *Repository) Upsert(ctx context.Context, id, name string, email *string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO students (id, name, email)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			email = COALESCE(EXCLUDED.email, students.email)
	`, id, name, email)
	return err
}

// ActiveTemplate returns the student's active template, nil when the face
// is not registered.
func (r *Repository) ActiveTemplate(ctx context.Context, studentID string) (*Template, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, student_id, embedding, created_at
		FROM face_templates WHERE student_id = $1 AND is_active
	`, studentID)
	var t Template
	var raw []byte
	if err := row.Scan(&t.ID, &t.StudentID, &raw, &t.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(raw, &t.Embedding); err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT image_path FROM face_template_images WHERE template_id = $1 ORDER BY position
	`, t.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		t.ImagePaths = append(t.ImagePaths, p)
	}
	return &t, rows.Err()
}

// ReplaceTemplate swaps the active template and flips face_registered in
// one transaction, so the flag and the template are always observed
// together. The prior template is deactivated, never mutated.
func (r *Repository) ReplaceTemplate(ctx context.Context, studentID string, embedding []float64, imagePaths []string) (*Template, error) {
	raw, err := json.Marshal(embedding)
	if err != nil {
		return nil, err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		UPDATE face_templates SET is_active = FALSE WHERE student_id = $1 AND is_active
	`, studentID); err != nil {
		return nil, err
	}

	t := Template{
		ID:         uuid.NewString(),
		StudentID:  studentID,
		Embedding:  embedding,
		ImagePaths: imagePaths,
		CreatedAt:  time.Now().UTC(),
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO face_templates (id, student_id, embedding, is_active, created_at)
		VALUES ($1,$2,$3,TRUE,$4)
	`, t.ID, studentID, raw, t.CreatedAt); err != nil {
		return nil, err
	}
	for i, p := range imagePaths {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO face_template_images (id, template_id, image_path, position)
			VALUES ($1,$2,$3,$4)
		`, uuid.NewString(), t.ID, p, i); err != nil {
			return nil, err
		}
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE students SET face_registered = TRUE WHERE id = $1
	`, studentID)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, sql.ErrNoRows
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &t, nil
}
