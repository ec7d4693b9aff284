package schedule

import (
	"errors"
	"testing"

	"github.com/satianferdy/academic-attendance-system-app-sub002/internal/apperr"
)

func mustInterval(t *testing.T, start, end string) Interval {
	t.Helper()
	iv, err := ParseInterval(start, end)
	if err != nil {
		t.Fatalf("ParseInterval(%s, %s): %v", start, end, err)
	}
	return iv
}

func TestOverlaps(t *testing.T) {
	cases := []struct {
		name string
		a, b Interval
		want bool
	}{
		{"disjoint", Interval{540, 600}, Interval{660, 720}, false},
		{"touching endpoints", Interval{540, 600}, Interval{600, 660}, false},
		{"touching reversed", Interval{600, 660}, Interval{540, 600}, false},
		{"partial overlap", Interval{540, 600}, Interval{570, 630}, true},
		{"contained", Interval{540, 720}, Interval{600, 660}, true},
		{"identical", Interval{540, 600}, Interval{540, 600}, true},
		{"one minute overlap", Interval{540, 601}, Interval{600, 660}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Overlaps(tc.a, tc.b); got != tc.want {
				t.Errorf("Overlaps(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
			// Overlap is symmetric.
			if got := Overlaps(tc.b, tc.a); got != tc.want {
				t.Errorf("Overlaps(%v, %v) = %v, want %v", tc.b, tc.a, got, tc.want)
			}
		})
	}
}

func TestValidateIntervals(t *testing.T) {
	cases := []struct {
		name     string
		slots    []Interval
		wantCode string
	}{
		{"empty proposal", nil, apperr.CodeInvalidInterval},
		{"zero duration", []Interval{{600, 600}}, apperr.CodeInvalidInterval},
		{"inverted", []Interval{{660, 600}}, apperr.CodeInvalidInterval},
		{"past midnight", []Interval{{1400, 1500}}, apperr.CodeInvalidInterval},
		{"self overlap", []Interval{{540, 600}, {570, 630}}, apperr.CodeSelfOverlap},
		{"valid single", []Interval{{540, 600}}, ""},
		{"valid multi touching", []Interval{{540, 600}, {600, 660}}, ""},
		{"valid multi disjoint", []Interval{{480, 540}, {660, 720}}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateIntervals(tc.slots)
			if tc.wantCode == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if got := apperr.CodeOf(err); got != tc.wantCode {
				t.Fatalf("code = %q, want %q (err: %v)", got, tc.wantCode, err)
			}
		})
	}
}

func TestFirstConflictDeterministicOrder(t *testing.T) {
	proposed := []Interval{{570, 630}}
	// Both candidates collide; the lowest schedule id must win even when
	// presented out of order.
	candidates := []Candidate{
		{ScheduleID: 9, Intervals: []Interval{{540, 600}}},
		{ScheduleID: 3, Intervals: []Interval{{600, 660}, {540, 600}}},
	}
	id, hit := FirstConflict(proposed, candidates)
	if !hit {
		t.Fatal("expected a conflict")
	}
	if id != 3 {
		t.Fatalf("conflicting id = %d, want 3", id)
	}
}

func TestDetectRoomScenario(t *testing.T) {
	// Room 101, Monday, existing schedule 09:00-10:00.
	existing := []Candidate{{ScheduleID: 7, Intervals: []Interval{mustInterval(t, "09:00", "10:00")}}}

	t.Run("touching boundary is free", func(t *testing.T) {
		res, err := Detect([]Interval{mustInterval(t, "10:00", "11:00")}, existing, nil)
		if err != nil {
			t.Fatalf("Detect: %v", err)
		}
		if res.Conflict {
			t.Fatalf("unexpected conflict with %+v", res)
		}
	})

	t.Run("half hour overlap collides", func(t *testing.T) {
		res, err := Detect([]Interval{mustInterval(t, "09:30", "10:30")}, existing, nil)
		if err != nil {
			t.Fatalf("Detect: %v", err)
		}
		if !res.Conflict || res.ScheduleID != 7 || res.Dimension != "room" {
			t.Fatalf("got %+v, want conflict with schedule 7 on room", res)
		}
	})
}

func TestDetectLecturerDimensionIndependent(t *testing.T) {
	proposed := []Interval{mustInterval(t, "13:00", "14:00")}
	lecturer := []Candidate{{ScheduleID: 12, Intervals: []Interval{mustInterval(t, "13:30", "15:00")}}}

	res, err := Detect(proposed, nil, lecturer)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if !res.Conflict || res.Dimension != "lecturer" || res.ScheduleID != 12 {
		t.Fatalf("got %+v, want lecturer conflict with schedule 12", res)
	}
}

func TestDetectMultiSlotPairwise(t *testing.T) {
	// A two-slot proposal must clear every slot of every candidate.
	proposed := []Interval{
		mustInterval(t, "08:00", "09:00"),
		mustInterval(t, "10:00", "11:00"),
	}
	room := []Candidate{
		{ScheduleID: 2, Intervals: []Interval{mustInterval(t, "09:00", "10:00")}},
		{ScheduleID: 5, Intervals: []Interval{
			mustInterval(t, "12:00", "13:00"),
			mustInterval(t, "10:30", "11:30"),
		}},
	}
	res, err := Detect(proposed, room, nil)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if !res.Conflict || res.ScheduleID != 5 {
		t.Fatalf("got %+v, want conflict with schedule 5", res)
	}
}

func TestDetectRejectsBeforeComparing(t *testing.T) {
	// Invalid input must fail validation even when no candidate exists.
	_, err := Detect([]Interval{{600, 600}}, nil, nil)
	var ae *apperr.Error
	if !errors.As(err, &ae) || ae.Kind != apperr.Validation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestParseInterval(t *testing.T) {
	iv, err := ParseInterval("09:05", "10:30")
	if err != nil {
		t.Fatalf("ParseInterval: %v", err)
	}
	if iv.Start != 9*60+5 || iv.End != 10*60+30 {
		t.Fatalf("got %+v", iv)
	}
	if _, err := ParseInterval("9am", "10:00"); err == nil {
		t.Fatal("expected error for malformed clock value")
	}
}
