// Package verification implements the attendance verification gate: a
// token plus a live image either becomes exactly one attendance record or
// a coded rejection, never partial state.
package verification

import (
	"context"
	"log"
	"time"

	"github.com/satianferdy/academic-attendance-system-app-sub002/internal/apperr"
	"github.com/satianferdy/academic-attendance-system-app-sub002/internal/faceclient"
	"github.com/satianferdy/academic-attendance-system-app-sub002/internal/imagecheck"
	"github.com/satianferdy/academic-attendance-system-app-sub002/internal/metrics"
	"github.com/satianferdy/academic-attendance-system-app-sub002/internal/queue"
	"github.com/satianferdy/academic-attendance-system-app-sub002/internal/session"
	"github.com/satianferdy/academic-attendance-system-app-sub002/internal/student"
)

// TokenValidator resolves a presented session token.
type TokenValidator interface {
	Validate(ctx context.Context, token string) (*session.Session, error)
}

// StudentDirectory resolves students and their active templates.
type StudentDirectory interface {
	Get(ctx context.Context, id string) (*student.Student, error)
	ActiveTemplate(ctx context.Context, id string) (*student.Template, error)
}

// Recorder performs the race-safe insert-if-absent attendance write.
type Recorder interface {
	MarkPresent(ctx context.Context, scheduleID int64, date time.Time, studentID, sessionID string) (bool, error)
}

// Result is a successful verification. AlreadyMarked means this attempt
// was an idempotent repeat.
type Result struct {
	SessionID       string    `json:"session_id"`
	ClassScheduleID int64     `json:"class_schedule_id"`
	Date            time.Time `json:"date"`
	StudentID       string    `json:"student_id"`
	AlreadyMarked   bool      `json:"already_marked"`
}

// Gate runs the verification pipeline.
type Gate struct {
	sessions   TokenValidator
	students   StudentDirectory
	records    Recorder
	recognizer faceclient.Recognizer
	audit      queue.Queue // may be nil
	maxImage   int64
}

// NewGate wires the gate. The recognizer is always the abstract
// capability; callers decide which implementation stands behind it.
func NewGate(sessions TokenValidator, students StudentDirectory, records Recorder, recognizer faceclient.Recognizer, audit queue.Queue, maxImage int64) *Gate {
	return &Gate{
		sessions:   sessions,
		students:   students,
		records:    records,
		recognizer: recognizer,
		audit:      audit,
		maxImage:   maxImage,
	}
}

// Verify admits one attendance mark. Every step is a hard gate: image
// constraints, token freshness, student and template presence, external
// match, then the idempotent write. No external call happens before the
// local gates pass, and no state changes on failure.
func (g *Gate) Verify(ctx context.Context, token string, image []byte, filename, studentID string) (*Result, error) {
	if err := imagecheck.Check(image, g.maxImage); err != nil {
		return nil, g.reject(ctx, studentID, "", err)
	}

	sess, err := g.sessions.Validate(ctx, token)
	if err != nil {
		return nil, g.reject(ctx, studentID, "", err)
	}
	subject := meetingKey(sess)

	stu, err := g.students.Get(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if stu == nil {
		return nil, g.reject(ctx, studentID, subject,
			apperr.New(apperr.NotFound, apperr.CodeStudentNotFound, "student not found"))
	}
	if !stu.FaceRegistered {
		return nil, g.reject(ctx, studentID, subject,
			apperr.New(apperr.Conflict, apperr.CodeFaceNotRegistered, "student has no registered face"))
	}
	tmpl, err := g.students.ActiveTemplate(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if tmpl == nil {
		return nil, g.reject(ctx, studentID, subject,
			apperr.New(apperr.Conflict, apperr.CodeFaceNotRegistered, "student has no registered face"))
	}

	match, err := g.recognizer.VerifyFace(ctx, image, filename, sess.ClassScheduleID, studentID)
	if err != nil {
		// Dependency failure: retryable by the caller, never auto-retried
		// here to avoid duplicate calls against a failing service.
		return nil, g.reject(ctx, studentID, subject, err)
	}
	if !match.Match {
		return nil, g.reject(ctx, studentID, subject,
			apperr.New(apperr.Validation, match.Code, match.Message))
	}

	inserted, err := g.records.MarkPresent(ctx, sess.ClassScheduleID, sess.Date, studentID, sess.ID)
	if err != nil {
		return nil, err
	}

	res := &Result{
		SessionID:       sess.ID,
		ClassScheduleID: sess.ClassScheduleID,
		Date:            sess.Date,
		StudentID:       studentID,
		AlreadyMarked:   !inserted,
	}
	code := "ok"
	if res.AlreadyMarked {
		code = apperr.CodeAlreadyMarked
	}
	metrics.Verifications.WithLabelValues(code).Inc()
	g.publish(ctx, studentID, subject, code, "attendance marked")
	return res, nil
}

func meetingKey(s *session.Session) string {
	return s.Date.Format("2006-01-02") + "/" + s.ID
}

// reject records the outcome for audit and metrics, then returns err.
func (g *Gate) reject(ctx context.Context, studentID, subject string, err error) error {
	code := apperr.CodeOf(err)
	if code == "" {
		code = apperr.CodeServiceError
	}
	metrics.Verifications.WithLabelValues(code).Inc()
	g.publish(ctx, studentID, subject, code, err.Error())
	return err
}

func (g *Gate) publish(ctx context.Context, actor, subject, code, detail string) {
	if g.audit == nil {
		return
	}
	evt := queue.Event{
		OccurredAt: time.Now().UTC(),
		Actor:      actor,
		Action:     "attendance.verify",
		Subject:    subject,
		Code:       code,
		Detail:     detail,
	}
	if err := g.audit.Publish(ctx, evt); err != nil {
		log.Printf("audit publish failed: %v", err)
	}
}
