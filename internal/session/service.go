package session

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/satianferdy/academic-attendance-system-app-sub002/internal/apperr"
)

// Store is the persistence needed by the token manager.
type Store interface {
	// InsertActive writes s unless an active session already exists for
	// the same (schedule, date); then it reports the existing one.
	InsertActive(ctx context.Context, s Session) (inserted bool, existing *Session, err error)
	Get(ctx context.Context, id string) (*Session, error)
	GetByToken(ctx context.Context, token string) (*Session, error)
	// Extend atomically pushes expires_at forward from its current value,
	// guarded by state and the cumulative cap.
	Extend(ctx context.Context, id string, minutes, maxTotal int) (*Session, error)
	// MarkExpired moves an active, past-expiry session to expired.
	MarkExpired(ctx context.Context, id string) error
	Close(ctx context.Context, id string) error
}

// TokenIndex is the O(1) token lookup cache. Entries are written on open
// and extend, and removed on close; expiry is still evaluated against the
// stored instant, never against cache TTL alone.
type TokenIndex interface {
	Put(ctx context.Context, s Session) error
	Get(ctx context.Context, token string) (*Session, bool)
	Del(ctx context.Context, token string) error
}

// Service is the attendance session token manager.
type Service struct {
	store     Store
	index     TokenIndex // may be nil when redis is unavailable
	window    time.Duration
	maxExtend int
	now       func() time.Time
}

// NewService creates the manager. window is the base attendance window,
// maxExtend the cumulative extension cap in minutes.
func NewService(store Store, index TokenIndex, window time.Duration, maxExtend int) *Service {
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &Service{store: store, index: index, window: window, maxExtend: maxExtend, now: time.Now}
}

// Open creates the active session for (scheduleID, date). When one is
// already active and unexpired, the existing session is returned together
// with an AlreadyActive error so the caller can surface its token.
func (s *Service) Open(ctx context.Context, scheduleID int64, date time.Time) (*Session, error) {
	if scheduleID == 0 {
		return nil, apperr.New(apperr.Validation, apperr.CodeNotFound, "class schedule required")
	}
	token, err := NewToken()
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	_, week := date.ISOWeek()
	sess := Session{
		ID:              uuid.NewString(),
		ClassScheduleID: scheduleID,
		Date:            date,
		WeekNumber:      week,
		Token:           token,
		OpenedAt:        now,
		ExpiresAt:       now.Add(s.window),
		Status:          StatusActive,
	}

	for attempt := 0; attempt < 2; attempt++ {
		inserted, existing, err := s.store.InsertActive(ctx, sess)
		if err != nil {
			return nil, err
		}
		if inserted {
			s.indexPut(ctx, sess)
			return &sess, nil
		}
		if existing == nil {
			return nil, errors.New("insert lost race but no existing session found")
		}
		if !existing.ExpiredAt(now) {
			return existing, apperr.Newf(apperr.Conflict, apperr.CodeAlreadyActive,
				"session already active until %s", existing.ExpiresAt.Format(time.RFC3339))
		}
		// Stale active row the sweeper has not reached yet; retire it and retry once.
		if err := s.store.MarkExpired(ctx, existing.ID); err != nil {
			return nil, err
		}
		s.indexDel(ctx, existing.Token)
	}
	return nil, errors.New("could not open session")
}

// Extend adds minutes to the current expiry (never to now). Only 10, 20
// or 30 are accepted, and the cumulative total is capped.
func (s *Service) Extend(ctx context.Context, sessionID string, minutes int) (*Session, error) {
	if !AllowedExtensions[minutes] {
		return nil, apperr.Newf(apperr.Validation, apperr.CodeInvalidInterval, "extension must be 10, 20 or 30 minutes, got %d", minutes)
	}
	sess, err := s.store.Extend(ctx, sessionID, minutes, s.maxExtend)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil, apperr.New(apperr.NotFound, apperr.CodeNotFound, "session not found")
	case errors.Is(err, ErrNotActive):
		return nil, apperr.New(apperr.Conflict, apperr.CodeNotActive, "session is expired or closed")
	case errors.Is(err, ErrExtensionLimit):
		return nil, apperr.Newf(apperr.Conflict, apperr.CodeExtensionLimit, "cumulative extension may not exceed %d minutes", s.maxExtend)
	case err != nil:
		return nil, err
	}
	s.indexPut(ctx, *sess)
	return sess, nil
}

// Validate resolves a presented token. Unknown or closed tokens are
// InvalidToken; a known token past its expiry is ExpiredToken.
func (s *Service) Validate(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, apperr.New(apperr.Validation, apperr.CodeInvalidToken, "token required")
	}
	sess, ok := s.indexGet(ctx, token)
	if !ok {
		var err error
		sess, err = s.store.GetByToken(ctx, token)
		if err != nil {
			return nil, err
		}
		if sess == nil {
			return nil, apperr.New(apperr.Validation, apperr.CodeInvalidToken, "unknown token")
		}
		if sess.Status == StatusActive {
			s.indexPut(ctx, *sess)
		}
	}
	if sess.Status != StatusActive {
		return nil, apperr.New(apperr.Validation, apperr.CodeInvalidToken, "session is closed")
	}
	if sess.ExpiredAt(s.now().UTC()) {
		return nil, apperr.New(apperr.Validation, apperr.CodeExpiredToken, "session window has expired")
	}
	return sess, nil
}

// Close transitions a session to closed. Closing an already closed or
// expired session is a no-op success.
func (s *Service) Close(ctx context.Context, sessionID string) error {
	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess == nil {
		return apperr.New(apperr.NotFound, apperr.CodeNotFound, "session not found")
	}
	if err := s.store.Close(ctx, sessionID); err != nil {
		return err
	}
	s.indexDel(ctx, sess.Token)
	return nil
}

// Get loads one session.
func (s *Service) Get(ctx context.Context, sessionID string) (*Session, error) {
	return s.store.Get(ctx, sessionID)
}

// Index writes are best-effort: the DB row stays authoritative and the
// unique token index makes the fallback lookup O(1) as well.
func (s *Service) indexPut(ctx context.Context, sess Session) {
	if s.index == nil {
		return
	}
	if err := s.index.Put(ctx, sess); err != nil {
		log.Printf("token index put failed: %v", err)
	}
}

func (s *Service) indexGet(ctx context.Context, token string) (*Session, bool) {
	if s.index == nil {
		return nil, false
	}
	return s.index.Get(ctx, token)
}

func (s *Service) indexDel(ctx context.Context, token string) {
	if s.index == nil {
		return
	}
	if err := s.index.Del(ctx, token); err != nil {
		log.Printf("token index del failed: %v", err)
	}
}

// WithClock overrides the service clock. Test hook.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}
