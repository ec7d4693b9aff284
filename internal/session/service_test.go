package session

import (
	"context"
	"testing"
	"time"

	"github.com/satianferdy/academic-attendance-system-app-sub002/internal/apperr"
)

// fakeStore mirrors the repository semantics in memory.
type fakeStore struct {
	byID map[string]*Session
	now  func() time.Time
}

func newFakeStore(now func() time.Time) *fakeStore {
	return &fakeStore{byID: make(map[string]*Session), now: now}
}

func (f *fakeStore) activeFor(scheduleID int64, date time.Time) *Session {
	for _, s := range f.byID {
		if s.ClassScheduleID == scheduleID && s.Date.Equal(date) && s.Status == StatusActive {
			return s
		}
	}
	return nil
}

func (f *fakeStore) InsertActive(_ context.Context, s Session) (bool, *Session, error) {
	if existing := f.activeFor(s.ClassScheduleID, s.Date); existing != nil {
		cp := *existing
		return false, &cp, nil
	}
	cp := s
	f.byID[s.ID] = &cp
	return true, nil, nil
}

func (f *fakeStore) Get(_ context.Context, id string) (*Session, error) {
	if s, ok := f.byID[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeStore) GetByToken(_ context.Context, token string) (*Session, error) {
	for _, s := range f.byID {
		if s.Token == token {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) Extend(_ context.Context, id string, minutes, maxTotal int) (*Session, error) {
	s, ok := f.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	if s.Status != StatusActive || s.ExpiredAt(f.now()) {
		return nil, ErrNotActive
	}
	if s.ExtendedMinutes+minutes > maxTotal {
		return nil, ErrExtensionLimit
	}
	s.ExpiresAt = s.ExpiresAt.Add(time.Duration(minutes) * time.Minute)
	s.ExtendedMinutes += minutes
	cp := *s
	return &cp, nil
}

func (f *fakeStore) MarkExpired(_ context.Context, id string) error {
	if s, ok := f.byID[id]; ok && s.Status == StatusActive {
		s.Status = StatusExpired
	}
	return nil
}

func (f *fakeStore) Close(_ context.Context, id string) error {
	if s, ok := f.byID[id]; ok {
		s.Status = StatusClosed
	}
	return nil
}

func testClock(start time.Time) (func() time.Time, func(time.Duration)) {
	current := start
	return func() time.Time { return current }, func(d time.Duration) { current = current.Add(d) }
}

func newTestService(t *testing.T) (*Service, *fakeStore, func(time.Duration)) {
	t.Helper()
	now, advance := testClock(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	store := newFakeStore(now)
	svc := NewService(store, nil, 15*time.Minute, 60).WithClock(now)
	return svc, store, advance
}

var meetingDate = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func TestOpenSecondCallGetsAlreadyActive(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.Open(ctx, 1, meetingDate)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if first.Token == "" || first.Status != StatusActive {
		t.Fatalf("unexpected session %+v", first)
	}

	second, err := svc.Open(ctx, 1, meetingDate)
	if !apperr.IsCode(err, apperr.CodeAlreadyActive) {
		t.Fatalf("want AlreadyActive, got %v", err)
	}
	if second == nil || second.Token != first.Token {
		t.Fatal("second caller must receive the first session's token")
	}
}

func TestOpenRetiresStaleActiveSession(t *testing.T) {
	svc, store, advance := newTestService(t)
	ctx := context.Background()

	first, err := svc.Open(ctx, 1, meetingDate)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	advance(16 * time.Minute) // past the window, sweeper has not run

	second, err := svc.Open(ctx, 1, meetingDate)
	if err != nil {
		t.Fatalf("open after expiry: %v", err)
	}
	if second.Token == first.Token {
		t.Fatal("tokens must never be reused across sessions")
	}
	if got, _ := store.Get(ctx, first.ID); got.Status != StatusExpired {
		t.Fatalf("stale session status = %s, want expired", got.Status)
	}
}

func TestExtendAddsToCurrentExpiryNotNow(t *testing.T) {
	svc, _, advance := newTestService(t)
	ctx := context.Background()

	sess, err := svc.Open(ctx, 1, meetingDate)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	baseExpiry := sess.ExpiresAt

	// Ten minutes of the window already elapsed; extension must still be
	// measured from the stored expiry.
	advance(10 * time.Minute)
	extended, err := svc.Extend(ctx, sess.ID, 20)
	if err != nil {
		t.Fatalf("extend: %v", err)
	}
	if want := baseExpiry.Add(20 * time.Minute); !extended.ExpiresAt.Equal(want) {
		t.Fatalf("expires_at = %v, want %v", extended.ExpiresAt, want)
	}
	if extended.ExtendedMinutes != 20 {
		t.Fatalf("extended_minutes = %d, want 20", extended.ExtendedMinutes)
	}
}

func TestExtendRejectsInvalidStep(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	sess, _ := svc.Open(ctx, 1, meetingDate)

	for _, minutes := range []int{0, 5, 15, 40, -10} {
		if _, err := svc.Extend(ctx, sess.ID, minutes); apperr.KindOf(err) != apperr.Validation {
			t.Errorf("Extend(%d): want validation error, got %v", minutes, err)
		}
	}
}

func TestExtendCumulativeCap(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	sess, _ := svc.Open(ctx, 1, meetingDate)

	for i := 0; i < 2; i++ {
		if _, err := svc.Extend(ctx, sess.ID, 30); err != nil {
			t.Fatalf("extend %d: %v", i, err)
		}
	}
	_, err := svc.Extend(ctx, sess.ID, 10)
	if !apperr.IsCode(err, apperr.CodeExtensionLimit) {
		t.Fatalf("want ExtensionLimit, got %v", err)
	}
}

func TestExtendAfterExpiryIsNotActive(t *testing.T) {
	svc, _, advance := newTestService(t)
	ctx := context.Background()
	sess, _ := svc.Open(ctx, 1, meetingDate)

	advance(16 * time.Minute)
	_, err := svc.Extend(ctx, sess.ID, 10)
	if !apperr.IsCode(err, apperr.CodeNotActive) {
		t.Fatalf("want NotActive, got %v", err)
	}
}

func TestValidateToken(t *testing.T) {
	svc, _, advance := newTestService(t)
	ctx := context.Background()
	sess, _ := svc.Open(ctx, 1, meetingDate)

	got, err := svc.Validate(ctx, sess.Token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if got.ID != sess.ID || got.ClassScheduleID != 1 {
		t.Fatalf("resolved %+v", got)
	}

	if _, err := svc.Validate(ctx, "no-such-token"); !apperr.IsCode(err, apperr.CodeInvalidToken) {
		t.Fatalf("unknown token: want InvalidToken, got %v", err)
	}

	// The instant after expiry already fails.
	advance(15*time.Minute + time.Nanosecond)
	if _, err := svc.Validate(ctx, sess.Token); !apperr.IsCode(err, apperr.CodeExpiredToken) {
		t.Fatalf("expired token: want ExpiredToken, got %v", err)
	}
}

func TestValidateClosedToken(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	sess, _ := svc.Open(ctx, 1, meetingDate)

	if err := svc.Close(ctx, sess.ID); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := svc.Validate(ctx, sess.Token); !apperr.IsCode(err, apperr.CodeInvalidToken) {
		t.Fatalf("closed token: want InvalidToken, got %v", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	sess, _ := svc.Open(ctx, 1, meetingDate)

	if err := svc.Close(ctx, sess.ID); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := svc.Close(ctx, sess.ID); err != nil {
		t.Fatalf("second close must be a no-op success, got %v", err)
	}
	got, _ := store.Get(ctx, sess.ID)
	if got.Status != StatusClosed {
		t.Fatalf("status = %s, want closed", got.Status)
	}
}

func TestNewTokenIsOpaqueAndUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 64; i++ {
		tok, err := NewToken()
		if err != nil {
			t.Fatalf("NewToken: %v", err)
		}
		if len(tok) < 40 {
			t.Fatalf("token too short: %q", tok)
		}
		if seen[tok] {
			t.Fatal("duplicate token")
		}
		seen[tok] = true
	}
}
