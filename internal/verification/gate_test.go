package verification

import (
	"context"
	"testing"
	"time"

	"github.com/satianferdy/academic-attendance-system-app-sub002/internal/apperr"
	"github.com/satianferdy/academic-attendance-system-app-sub002/internal/faceclient"
	"github.com/satianferdy/academic-attendance-system-app-sub002/internal/session"
	"github.com/satianferdy/academic-attendance-system-app-sub002/internal/student"
)

var jpegImage = append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, make([]byte, 64)...)

type fakeValidator struct {
	sess *session.Session
	err  error
}

func (f *fakeValidator) Validate(context.Context, string) (*session.Session, error) {
	return f.sess, f.err
}

type fakeStudents struct {
	stu  *student.Student
	tmpl *student.Template
}

func (f *fakeStudents) Get(context.Context, string) (*student.Student, error) {
	return f.stu, nil
}

func (f *fakeStudents) ActiveTemplate(context.Context, string) (*student.Template, error) {
	return f.tmpl, nil
}

type fakeRecorder struct {
	marked map[string]bool
	calls  int
}

func (f *fakeRecorder) MarkPresent(_ context.Context, scheduleID int64, date time.Time, studentID, _ string) (bool, error) {
	f.calls++
	key := date.Format("2006-01-02") + "/" + studentID
	if f.marked == nil {
		f.marked = make(map[string]bool)
	}
	if f.marked[key] {
		return false, nil
	}
	f.marked[key] = true
	return true, nil
}

type fakeRecognizer struct {
	result *faceclient.VerifyResult
	err    error
	calls  int
}

func (f *fakeRecognizer) ProcessFace(context.Context, []byte, string, string) ([]float64, error) {
	f.calls++
	return nil, f.err
}

func (f *fakeRecognizer) VerifyFace(context.Context, []byte, string, int64, string) (*faceclient.VerifyResult, error) {
	f.calls++
	return f.result, f.err
}

func (f *fakeRecognizer) ValidateQuality(context.Context, []byte, string) error {
	f.calls++
	return f.err
}

func activeSession() *session.Session {
	return &session.Session{
		ID:              "sess-1",
		ClassScheduleID: 42,
		Date:            time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		Token:           "tok",
		Status:          session.StatusActive,
		ExpiresAt:       time.Now().Add(10 * time.Minute),
	}
}

func registeredStudent() *fakeStudents {
	return &fakeStudents{
		stu:  &student.Student{ID: "s-1", Name: "A", FaceRegistered: true},
		tmpl: &student.Template{ID: "t-1", StudentID: "s-1", Embedding: []float64{1, 2}},
	}
}

func TestVerifySuccessWritesOneRecord(t *testing.T) {
	recorder := &fakeRecorder{}
	recognizer := &fakeRecognizer{result: &faceclient.VerifyResult{Match: true}}
	gate := NewGate(&fakeValidator{sess: activeSession()}, registeredStudent(), recorder, recognizer, nil, 1<<20)

	res, err := gate.Verify(context.Background(), "tok", jpegImage, "a.jpg", "s-1")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if res.AlreadyMarked {
		t.Fatal("first success must not report AlreadyMarked")
	}
	if res.ClassScheduleID != 42 || res.SessionID != "sess-1" {
		t.Fatalf("result %+v", res)
	}
	if recorder.calls != 1 {
		t.Fatalf("recorder calls = %d", recorder.calls)
	}
}

func TestVerifyTwiceIsIdempotent(t *testing.T) {
	recorder := &fakeRecorder{}
	recognizer := &fakeRecognizer{result: &faceclient.VerifyResult{Match: true}}
	gate := NewGate(&fakeValidator{sess: activeSession()}, registeredStudent(), recorder, recognizer, nil, 1<<20)

	ctx := context.Background()
	if _, err := gate.Verify(ctx, "tok", jpegImage, "a.jpg", "s-1"); err != nil {
		t.Fatalf("first verify: %v", err)
	}
	res, err := gate.Verify(ctx, "tok", jpegImage, "a.jpg", "s-1")
	if err != nil {
		t.Fatalf("second verify must succeed, got %v", err)
	}
	if !res.AlreadyMarked {
		t.Fatal("second verify must report AlreadyMarked")
	}
	if len(recorder.marked) != 1 {
		t.Fatalf("records = %d, want exactly 1", len(recorder.marked))
	}
}

func TestVerifyExpiredTokenSkipsExternalCall(t *testing.T) {
	recognizer := &fakeRecognizer{result: &faceclient.VerifyResult{Match: true}}
	validator := &fakeValidator{err: apperr.New(apperr.Validation, apperr.CodeExpiredToken, "session window has expired")}
	recorder := &fakeRecorder{}
	gate := NewGate(validator, registeredStudent(), recorder, recognizer, nil, 1<<20)

	_, err := gate.Verify(context.Background(), "tok", jpegImage, "a.jpg", "s-1")
	if !apperr.IsCode(err, apperr.CodeExpiredToken) {
		t.Fatalf("want ExpiredToken, got %v", err)
	}
	if recognizer.calls != 0 {
		t.Fatal("no external call may happen after an expired token")
	}
	if recorder.calls != 0 {
		t.Fatal("no record may be written after an expired token")
	}
}

func TestVerifyBadImageSkipsEverything(t *testing.T) {
	recognizer := &fakeRecognizer{result: &faceclient.VerifyResult{Match: true}}
	validator := &fakeValidator{sess: activeSession()}
	gate := NewGate(validator, registeredStudent(), &fakeRecorder{}, recognizer, nil, 1<<20)

	_, err := gate.Verify(context.Background(), "tok", []byte("not an image"), "a.txt", "s-1")
	if !apperr.IsCode(err, apperr.CodeInvalidImage) {
		t.Fatalf("want InvalidImage, got %v", err)
	}
	if recognizer.calls != 0 {
		t.Fatal("image validation must precede any external call")
	}
}

func TestVerifyStudentGates(t *testing.T) {
	recognizer := &fakeRecognizer{result: &faceclient.VerifyResult{Match: true}}
	validator := &fakeValidator{sess: activeSession()}

	t.Run("unknown student", func(t *testing.T) {
		gate := NewGate(validator, &fakeStudents{}, &fakeRecorder{}, recognizer, nil, 1<<20)
		_, err := gate.Verify(context.Background(), "tok", jpegImage, "a.jpg", "ghost")
		if !apperr.IsCode(err, apperr.CodeStudentNotFound) {
			t.Fatalf("want StudentNotFound, got %v", err)
		}
	})

	t.Run("face not registered", func(t *testing.T) {
		students := &fakeStudents{stu: &student.Student{ID: "s-1", FaceRegistered: false}}
		gate := NewGate(validator, students, &fakeRecorder{}, recognizer, nil, 1<<20)
		_, err := gate.Verify(context.Background(), "tok", jpegImage, "a.jpg", "s-1")
		if !apperr.IsCode(err, apperr.CodeFaceNotRegistered) {
			t.Fatalf("want FaceNotRegistered, got %v", err)
		}
	})
}

func TestVerifyForwardsServiceReasonCodes(t *testing.T) {
	for _, code := range []string{
		apperr.CodeNoFaceDetected,
		apperr.CodeMultipleFaces,
		apperr.CodeLowQualityImage,
		apperr.CodeFaceMismatch,
	} {
		recorder := &fakeRecorder{}
		recognizer := &fakeRecognizer{result: &faceclient.VerifyResult{Match: false, Code: code, Message: "rejected"}}
		gate := NewGate(&fakeValidator{sess: activeSession()}, registeredStudent(), recorder, recognizer, nil, 1<<20)

		_, err := gate.Verify(context.Background(), "tok", jpegImage, "a.jpg", "s-1")
		if !apperr.IsCode(err, code) {
			t.Errorf("want %s, got %v", code, err)
		}
		if recorder.calls != 0 {
			t.Errorf("%s: negative match must not write a record", code)
		}
	}
}

func TestVerifyDependencyFailureNotRetried(t *testing.T) {
	recognizer := &fakeRecognizer{err: apperr.New(apperr.Dependency, apperr.CodeServiceError, "timeout")}
	recorder := &fakeRecorder{}
	gate := NewGate(&fakeValidator{sess: activeSession()}, registeredStudent(), recorder, recognizer, nil, 1<<20)

	_, err := gate.Verify(context.Background(), "tok", jpegImage, "a.jpg", "s-1")
	if !apperr.IsCode(err, apperr.CodeServiceError) {
		t.Fatalf("want VerificationServiceError, got %v", err)
	}
	if recognizer.calls != 1 {
		t.Fatalf("recognizer calls = %d, the gate must not auto-retry", recognizer.calls)
	}
	if recorder.calls != 0 {
		t.Fatal("no record may be written on a dependency failure")
	}
}
