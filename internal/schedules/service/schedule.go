package service

import (
	"context"
	"errors"
	"sync"

	scheduleerrors "clinicbook/internal/schedules/errors"
	"clinicbook/internal/schedules/repository"
	"clinicbook/internal/schedules/validator"
	"clinicbook/pkg/clinictime"
	"clinicbook/pkg/config"
	apperrors "clinicbook/pkg/errors"
	"clinicbook/pkg/model"

	"go.mongodb.org/mongo-driver/mongo"
)

type ScheduleService interface {
	Create(ctx context.Context, sc *model.Schedule) error
	GetByID(ctx context.Context, id string) (*model.Schedule, error)
	GetByDoctor(ctx context.Context, doctorID string) ([]*model.Schedule, error)
	GetAll(ctx context.Context, limit int, offset int64) ([]*model.Schedule, int64, error)
	Update(ctx context.Context, id string, updates *model.ScheduleUpdate) error
	Delete(ctx context.Context, id string) error
}

type scheduleService struct {
	repo      repository.ScheduleRepository
	validator *validator.ScheduleValidator
	cfg       *config.Config
}

func NewScheduleService(
	repo repository.ScheduleRepository,
	validator *validator.ScheduleValidator,
	cfg *config.Config,
) ScheduleService {
	return &scheduleService{
		repo:      repo,
		validator: validator,
		cfg:       cfg,
	}
}

func (s *scheduleService) Create(ctx context.Context, sc *model.Schedule) error {
	if err := s.validator.Validate(sc); err != nil {
		s.cfg.Log.Warn("Schedule validation failed",
			"doctor_id", sc.DoctorID,
			"weekday", sc.Weekday,
			"error", err,
		)
		return apperrors.Validation("Schedule validation failed", map[string]any{
			"error": err.Error(),
		})
	}

	err := s.repo.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		existing, err := s.repo.FindByDoctorAndWeekday(sessCtx, sc.DoctorID, sc.Weekday)
		if err != nil {
			return apperrors.Internal("Failed to check for existing schedules", err)
		}
		if err := checkScheduleConflicts(sc, existing, ""); err != nil {
			return err
		}
		return s.repo.Create(sessCtx, sc)
	})
	if err != nil {
		s.cfg.Log.Error("Failed to create schedule",
			"doctor_id", sc.DoctorID,
			"weekday", sc.Weekday,
			"error", err,
		)
		return err
	}

	s.cfg.Log.Info("Schedule created successfully",
		"id", sc.ID,
		"doctor_id", sc.DoctorID,
		"weekday", sc.Weekday,
		"start_time", sc.StartTime,
		"end_time", sc.EndTime,
	)
	return nil
}

// checkScheduleConflicts rejects an exact duplicate and any overlapping range
// on the same doctor and weekday. excludeID skips the schedule being updated.
func checkScheduleConflicts(sc *model.Schedule, existing []*model.Schedule, excludeID string) error {
	start, _ := clinictime.MinutesOfDay(sc.StartTime)
	end, _ := clinictime.MinutesOfDay(sc.EndTime)

	for _, e := range existing {
		if excludeID != "" && e.ID == excludeID {
			continue
		}
		if e.StartTime == sc.StartTime && e.EndTime == sc.EndTime {
			return apperrors.Conflict("An identical schedule already exists for this doctor and weekday")
		}
		eStart, _ := clinictime.MinutesOfDay(e.StartTime)
		eEnd, _ := clinictime.MinutesOfDay(e.EndTime)
		if start < eEnd && end > eStart {
			return apperrors.Conflict("Schedule overlaps an existing schedule for this doctor and weekday")
		}
	}
	return nil
}

func (s *scheduleService) GetByID(ctx context.Context, id string) (*model.Schedule, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Schedule ID cannot be empty")
	}

	sc, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, scheduleerrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Schedule", id)
		}
		if errors.Is(err, scheduleerrors.ErrInvalidID) {
			return nil, apperrors.InvalidInput("Invalid schedule ID format")
		}
		s.cfg.Log.Error("Failed to get schedule by ID", "id", id, "error", err)
		return nil, apperrors.Internal("Failed to retrieve schedule", err)
	}

	return sc, nil
}

func (s *scheduleService) GetByDoctor(ctx context.Context, doctorID string) ([]*model.Schedule, error) {
	if doctorID == "" {
		return nil, apperrors.InvalidInput("Doctor ID cannot be empty")
	}

	schedules, err := s.repo.FindByDoctor(ctx, doctorID)
	if err != nil {
		s.cfg.Log.Error("Failed to get schedules by doctor", "doctor_id", doctorID, "error", err)
		return nil, apperrors.Internal("Failed to retrieve schedules", err)
	}
	return schedules, nil
}

func (s *scheduleService) GetAll(ctx context.Context, limit int, offset int64) ([]*model.Schedule, int64, error) {
	limit = config.NormalizePaginationLimit(limit)
	offset = config.NormalizeOffset(offset)

	// Shared context so a timeout cancels both queries together.
	sharedCtx, cancel := context.WithTimeout(ctx, s.cfg.ReadTimeout)
	defer cancel()

	var count int64
	var schedules []*model.Schedule
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		var err error
		count, err = s.repo.Count(sharedCtx)
		if err != nil {
			s.cfg.Log.Error("Failed to count schedules", "error", err)
			errCount = apperrors.Internal("Failed to count schedules", err)
		}
	}()

	go func() {
		defer wg.Done()
		var err error
		schedules, err = s.repo.FindAll(sharedCtx, limit, offset)
		if err != nil {
			s.cfg.Log.Error("Failed to get all schedules",
				"limit", limit,
				"offset", offset,
				"error", err,
			)
			errFind = apperrors.Internal("Failed to retrieve schedules", err)
		}
	}()

	wg.Wait()
	if errCount != nil {
		return nil, 0, errCount
	}
	if errFind != nil {
		return nil, 0, errFind
	}
	return schedules, count, nil
}

func (s *scheduleService) Update(ctx context.Context, id string, updates *model.ScheduleUpdate) error {
	if id == "" {
		return apperrors.InvalidInput("Schedule ID cannot be empty")
	}

	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, scheduleerrors.ErrNotFound) {
			return apperrors.NotFoundWithID("Schedule", id)
		}
		if errors.Is(err, scheduleerrors.ErrInvalidID) {
			return apperrors.InvalidInput("Invalid schedule ID format")
		}
		return apperrors.Internal("Failed to check schedule existence", err)
	}

	merged := mergeScheduleUpdates(existing, updates)
	if err := s.validator.Validate(merged); err != nil {
		s.cfg.Log.Warn("Schedule validation failed",
			"id", id,
			"doctor_id", merged.DoctorID,
			"error", err,
		)
		return apperrors.Validation("Schedule validation failed", map[string]any{
			"error": err.Error(),
		})
	}

	err = s.repo.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		siblings, err := s.repo.FindByDoctorAndWeekday(sessCtx, merged.DoctorID, merged.Weekday)
		if err != nil {
			return apperrors.Internal("Failed to check for conflicting schedules", err)
		}
		if err := checkScheduleConflicts(merged, siblings, id); err != nil {
			return err
		}
		if _, err := s.repo.Update(sessCtx, id, merged); err != nil {
			s.cfg.Log.Error("Failed to update schedule", "id", id, "error", err)
			return apperrors.Internal("Failed to update schedule", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.cfg.Log.Info("Schedule updated successfully", "id", id, "doctor_id", merged.DoctorID)
	return nil
}

func (s *scheduleService) Delete(ctx context.Context, id string) error {
	if id == "" {
		return apperrors.InvalidInput("Schedule ID cannot be empty")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, scheduleerrors.ErrNotFound) {
			return apperrors.NotFoundWithID("Schedule", id)
		}
		if errors.Is(err, scheduleerrors.ErrInvalidID) {
			return apperrors.InvalidInput("Invalid schedule ID format")
		}
		s.cfg.Log.Error("Failed to delete schedule", "id", id, "error", err)
		return apperrors.Internal("Failed to delete schedule", err)
	}

	s.cfg.Log.Info("Schedule deleted successfully", "id", id)
	return nil
}

func mergeScheduleUpdates(existing *model.Schedule, updates *model.ScheduleUpdate) *model.Schedule {
	merged := *existing

	if updates.Weekday != "" {
		merged.Weekday = updates.Weekday
	}
	if updates.StartTime != "" {
		merged.StartTime = updates.StartTime
	}
	if updates.EndTime != "" {
		merged.EndTime = updates.EndTime
	}

	merged.ID = existing.ID
	merged.DoctorID = existing.DoctorID
	merged.CreatedAt = existing.CreatedAt
	return &merged
}
