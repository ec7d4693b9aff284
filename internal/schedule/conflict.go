package schedule

import (
	"sort"

	"github.com/satianferdy/academic-attendance-system-app-sub002/internal/apperr"
)

// Candidate is an existing booking the proposal is compared against.
type Candidate struct {
	ScheduleID int64
	Intervals  []Interval
}

// Result is the outcome of a conflict check.
type Result struct {
	Conflict   bool   `json:"conflict"`
	ScheduleID int64  `json:"schedule_id,omitempty"`
	Dimension  string `json:"dimension,omitempty"` // "room" or "lecturer"
}

// Overlaps reports whether two half-open intervals intersect.
// Touching endpoints (a.End == b.Start) are not a conflict.
func Overlaps(a, b Interval) bool {
	return a.Start < b.End && b.Start < a.End
}

// ValidateIntervals rejects empty proposals, zero or negative durations,
// and proposals that overlap themselves.
func ValidateIntervals(proposed []Interval) error {
	if len(proposed) == 0 {
		return apperr.New(apperr.Validation, apperr.CodeInvalidInterval, "at least one time slot required")
	}
	for _, iv := range proposed {
		if iv.Start >= iv.End {
			return apperr.Newf(apperr.Validation, apperr.CodeInvalidInterval, "slot %s must start before it ends", iv)
		}
		if iv.Start < 0 || iv.End > 24*60 {
			return apperr.Newf(apperr.Validation, apperr.CodeInvalidInterval, "slot %s outside the day", iv)
		}
	}
	for i := 0; i < len(proposed); i++ {
		for j := i + 1; j < len(proposed); j++ {
			if Overlaps(proposed[i], proposed[j]) {
				return apperr.Newf(apperr.Validation, apperr.CodeSelfOverlap,
					"slots %s and %s overlap each other", proposed[i], proposed[j])
			}
		}
	}
	return nil
}

// FirstConflict runs the pairwise half-open overlap test against every
// slot of every candidate and returns the lowest conflicting schedule id.
// Candidates carrying the excluded id must be filtered by the caller.
func FirstConflict(proposed []Interval, candidates []Candidate) (int64, bool) {
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].ScheduleID < candidates[j].ScheduleID
	})
	for _, cand := range candidates {
		for _, existing := range cand.Intervals {
			for _, p := range proposed {
				if Overlaps(existing, p) {
					return cand.ScheduleID, true
				}
			}
		}
	}
	return 0, false
}

// Detect validates the proposal and evaluates both conflict dimensions
// independently; either one rejects. roomCands and lecturerCands are the
// existing bookings sharing the proposal's room+day and lecturer+day.
func Detect(proposed []Interval, roomCands, lecturerCands []Candidate) (Result, error) {
	if err := ValidateIntervals(proposed); err != nil {
		return Result{}, err
	}
	if id, hit := FirstConflict(proposed, roomCands); hit {
		return Result{Conflict: true, ScheduleID: id, Dimension: "room"}, nil
	}
	if id, hit := FirstConflict(proposed, lecturerCands); hit {
		return Result{Conflict: true, ScheduleID: id, Dimension: "lecturer"}, nil
	}
	return Result{}, nil
}
