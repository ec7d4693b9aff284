package schedule

import (
	"fmt"
	"time"

	"github.com/satianferdy/academic-attendance-system-app-sub002/internal/apperr"
)

// Interval is a half-open [Start, End) time range within one day,
// expressed in minutes from midnight. Touching endpoints do not overlap.
type Interval struct {
	Start int `json:"start_minute"`
	End   int `json:"end_minute"`
}

// ParseInterval builds an Interval from "HH:MM" strings.
func ParseInterval(start, end string) (Interval, error) {
	s, err := parseClock(start)
	if err != nil {
		return Interval{}, err
	}
	e, err := parseClock(end)
	if err != nil {
		return Interval{}, err
	}
	return Interval{Start: s, End: e}, nil
}

func parseClock(v string) (int, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, apperr.Newf(apperr.Validation, apperr.CodeInvalidInterval, "invalid time %q, want HH:MM", v)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// String renders an interval as HH:MM-HH:MM for messages.
func (iv Interval) String() string {
	return fmt.Sprintf("%02d:%02d-%02d:%02d", iv.Start/60, iv.Start%60, iv.End/60, iv.End%60)
}

// Weekdays accepted on schedules.
var weekdays = map[string]bool{
	"Monday": true, "Tuesday": true, "Wednesday": true, "Thursday": true,
	"Friday": true, "Saturday": true, "Sunday": true,
}

// ValidWeekday reports whether day names a weekday.
func ValidWeekday(day string) bool { return weekdays[day] }

// ClassSchedule is a recurring weekly class booking.
type ClassSchedule struct {
	ID         int64      `json:"id"`
	Course     string     `json:"course"`
	Room       string     `json:"room"`
	DayOfWeek  string     `json:"day_of_week"`
	LecturerID string     `json:"lecturer_id"`
	SemesterID string     `json:"semester_id,omitempty"`
	Slots      []Interval `json:"slots"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Semester is a term; exactly one is active at a time.
type Semester struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
}
