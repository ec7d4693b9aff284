package session

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"
)

// Session states.
const (
	StatusActive  = "active"
	StatusClosed  = "closed"
	StatusExpired = "expired" // set by housekeeping; expiry itself is wall-clock
)

// Extension steps an instructor may request, in minutes.
var AllowedExtensions = map[int]bool{10: true, 20: true, 30: true}

// Session is one concrete meeting occurrence of a class schedule with its
// attendance window. The token is opaque and never reused across sessions.
type Session struct {
	ID              string    `json:"id"`
	ClassScheduleID int64     `json:"class_schedule_id"`
	Date            time.Time `json:"date"`
	WeekNumber      int       `json:"week_number"`
	Token           string    `json:"token"`
	OpenedAt        time.Time `json:"opened_at"`
	ExpiresAt       time.Time `json:"expires_at"`
	ExtendedMinutes int       `json:"extended_minutes"`
	Status          string    `json:"status"`
}

// ExpiredAt reports whether the window has passed at the given instant.
func (s Session) ExpiredAt(now time.Time) bool { return now.After(s.ExpiresAt) }

// Store-level sentinels mapped to taxonomy errors by the service.
var (
	ErrNotFound       = errors.New("session not found")
	ErrNotActive      = errors.New("session not active")
	ErrExtensionLimit = errors.New("extension limit reached")
)

// NewToken mints a cryptographically random URL-safe opaque token.
func NewToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
