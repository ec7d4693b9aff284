package schedule

import (
	"context"
	"database/sql"
	"errors"

	"github.com/satianferdy/academic-attendance-system-app-sub002/internal/apperr"
	"github.com/satianferdy/academic-attendance-system-app-sub002/internal/metrics"
)

// Service coordinates conflict checking and schedule writes.
type Service struct {
	repo *Repository
}

// NewService creates a service backed by a repository.
func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

func validateProposal(cs ClassSchedule) error {
	if cs.Course == "" || cs.Room == "" || cs.LecturerID == "" {
		return apperr.New(apperr.Validation, apperr.CodeInvalidInterval, "course, room and lecturer required")
	}
	if !ValidWeekday(cs.DayOfWeek) {
		return apperr.Newf(apperr.Validation, apperr.CodeInvalidInterval, "unknown weekday %q", cs.DayOfWeek)
	}
	return ValidateIntervals(cs.Slots)
}

func conflictErr(res Result) error {
	metrics.ScheduleConflicts.WithLabelValues(res.Dimension).Inc()
	return apperr.Newf(apperr.Conflict, apperr.CodeScheduleConflict,
		"overlaps schedule %d on %s", res.ScheduleID, res.Dimension)
}

// Check is the pure decision surface: no locks, no writes.
func (s *Service) Check(ctx context.Context, room, day string, slots []Interval, lecturerID string, excludeID int64) (Result, error) {
	if !ValidWeekday(day) {
		return Result{}, apperr.Newf(apperr.Validation, apperr.CodeInvalidInterval, "unknown weekday %q", day)
	}
	roomCands, err := s.repo.RoomCandidates(ctx, room, day, excludeID)
	if err != nil {
		return Result{}, err
	}
	lectCands, err := s.repo.LecturerCandidates(ctx, lecturerID, day, excludeID)
	if err != nil {
		return Result{}, err
	}
	return Detect(slots, roomCands, lectCands)
}

// Create checks and inserts a schedule as one atomic unit.
func (s *Service) Create(ctx context.Context, cs ClassSchedule) (ClassSchedule, error) {
	if err := validateProposal(cs); err != nil {
		return ClassSchedule{}, err
	}
	created, res, err := s.repo.CreateChecked(ctx, cs)
	if err != nil {
		return ClassSchedule{}, err
	}
	if res.Conflict {
		return ClassSchedule{}, conflictErr(res)
	}
	return created, nil
}

// Update revalidates an existing schedule against all other schedules.
func (s *Service) Update(ctx context.Context, cs ClassSchedule) (ClassSchedule, error) {
	if err := validateProposal(cs); err != nil {
		return ClassSchedule{}, err
	}
	updated, res, err := s.repo.UpdateChecked(ctx, cs)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ClassSchedule{}, apperr.Newf(apperr.NotFound, apperr.CodeNotFound, "schedule %d not found", cs.ID)
		}
		return ClassSchedule{}, err
	}
	if res.Conflict {
		return ClassSchedule{}, conflictErr(res)
	}
	return updated, nil
}

// Delete removes a schedule and its slots.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.Newf(apperr.NotFound, apperr.CodeNotFound, "schedule %d not found", id)
		}
		return err
	}
	return nil
}

// Get loads one schedule.
func (s *Service) Get(ctx context.Context, id int64) (*ClassSchedule, error) {
	return s.repo.Get(ctx, id)
}

// SetActiveSemester switches the single active semester transactionally.
func (s *Service) SetActiveSemester(ctx context.Context, id string) error {
	if err := s.repo.SetActiveSemester(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.Newf(apperr.NotFound, apperr.CodeNotFound, "semester %s not found", id)
		}
		return err
	}
	return nil
}
