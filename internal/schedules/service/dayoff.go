package service

import (
	"context"
	"errors"

	directoryrepo "clinicbook/internal/directory/repository"
	scheduleerrors "clinicbook/internal/schedules/errors"
	"clinicbook/internal/schedules/repository"
	"clinicbook/internal/schedules/validator"
	"clinicbook/pkg/config"
	apperrors "clinicbook/pkg/errors"
	"clinicbook/pkg/model"
	"clinicbook/pkg/sanitizer"
)

type DayOffService interface {
	Request(ctx context.Context, d *model.DayOff, actor model.Actor) error
	Review(ctx context.Context, id string, status model.DayOffStatus, actor model.Actor) error
	ListByDoctor(ctx context.Context, doctorID string) ([]*model.DayOff, error)
	Remove(ctx context.Context, id string, actor model.Actor) error
}

type dayOffService struct {
	repo      repository.DayOffRepository
	directory directoryrepo.DirectoryRepository
	validator *validator.ScheduleValidator
	cfg       *config.Config
}

func NewDayOffService(
	repo repository.DayOffRepository,
	directory directoryrepo.DirectoryRepository,
	validator *validator.ScheduleValidator,
	cfg *config.Config,
) DayOffService {
	return &dayOffService{
		repo:      repo,
		directory: directory,
		validator: validator,
		cfg:       cfg,
	}
}

// Request files a pending day off for a doctor. Doctors may only file for
// themselves; admins may file on behalf of any doctor.
func (s *dayOffService) Request(ctx context.Context, d *model.DayOff, actor model.Actor) error {
	if !actor.IsAdmin() {
		if actor.Role != model.RoleDoctor || actor.SubjectID != d.DoctorID {
			return apperrors.Unauthorized("Only the doctor or an admin can request a day off")
		}
	}

	d.Status = model.DayOffPending
	d.Reason = sanitizer.NormalizeReason(d.Reason)

	if err := s.validator.ValidateDayOff(d); err != nil {
		s.cfg.Log.Warn("Day off validation failed",
			"doctor_id", d.DoctorID,
			"date", d.Date,
			"error", err,
		)
		return apperrors.Validation("Day off validation failed", map[string]any{
			"error": err.Error(),
		})
	}

	if _, err := s.directory.FindDoctorByID(ctx, d.DoctorID); err != nil {
		if errors.Is(err, directoryrepo.ErrNotFound) {
			return apperrors.NotFoundWithID("Doctor", d.DoctorID)
		}
		if errors.Is(err, directoryrepo.ErrInvalidID) {
			return apperrors.InvalidInput("Invalid doctor ID format")
		}
		return apperrors.Internal("Failed to verify doctor", err)
	}

	if err := s.repo.Create(ctx, d); err != nil {
		if errors.Is(err, scheduleerrors.ErrDuplicateDayOff) {
			return apperrors.Conflict("A day off is already requested for this date")
		}
		s.cfg.Log.Error("Failed to create day off",
			"doctor_id", d.DoctorID,
			"date", d.Date,
			"error", err,
		)
		return apperrors.Internal("Failed to create day off", err)
	}

	s.cfg.Log.Info("Day off requested", "id", d.ID, "doctor_id", d.DoctorID, "date", d.Date)
	return nil
}

// Review confirms or rejects a pending request. Admin only.
func (s *dayOffService) Review(ctx context.Context, id string, status model.DayOffStatus, actor model.Actor) error {
	if !actor.IsAdmin() {
		return apperrors.Unauthorized("Only admins can review day off requests")
	}
	if status != model.DayOffConfirmed && status != model.DayOffRejected {
		return apperrors.InvalidInput("Review status must be 'confirmed' or 'rejected'")
	}

	existing, err := s.findByID(ctx, id)
	if err != nil {
		return err
	}
	if existing.Status != model.DayOffPending {
		return apperrors.Conflict("Only pending day off requests can be reviewed")
	}

	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		if errors.Is(err, scheduleerrors.ErrDayOffNotFound) {
			return apperrors.NotFoundWithID("Day off", id)
		}
		s.cfg.Log.Error("Failed to review day off", "id", id, "status", status, "error", err)
		return apperrors.Internal("Failed to review day off", err)
	}

	s.cfg.Log.Info("Day off reviewed", "id", id, "doctor_id", existing.DoctorID, "status", status)
	return nil
}

func (s *dayOffService) ListByDoctor(ctx context.Context, doctorID string) ([]*model.DayOff, error) {
	if doctorID == "" {
		return nil, apperrors.InvalidInput("Doctor ID cannot be empty")
	}

	dayOffs, err := s.repo.FindByDoctor(ctx, doctorID)
	if err != nil {
		s.cfg.Log.Error("Failed to list day offs", "doctor_id", doctorID, "error", err)
		return nil, apperrors.Internal("Failed to retrieve day offs", err)
	}
	return dayOffs, nil
}

// Remove deletes a request. The owning doctor or an admin may remove it.
func (s *dayOffService) Remove(ctx context.Context, id string, actor model.Actor) error {
	existing, err := s.findByID(ctx, id)
	if err != nil {
		return err
	}

	if !actor.IsAdmin() {
		if actor.Role != model.RoleDoctor || actor.SubjectID != existing.DoctorID {
			return apperrors.Unauthorized("Only the doctor or an admin can remove a day off")
		}
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, scheduleerrors.ErrDayOffNotFound) {
			return apperrors.NotFoundWithID("Day off", id)
		}
		s.cfg.Log.Error("Failed to remove day off", "id", id, "error", err)
		return apperrors.Internal("Failed to remove day off", err)
	}

	s.cfg.Log.Info("Day off removed", "id", id, "doctor_id", existing.DoctorID)
	return nil
}

func (s *dayOffService) findByID(ctx context.Context, id string) (*model.DayOff, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Day off ID cannot be empty")
	}

	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, scheduleerrors.ErrDayOffNotFound) {
			return nil, apperrors.NotFoundWithID("Day off", id)
		}
		if errors.Is(err, scheduleerrors.ErrInvalidID) {
			return nil, apperrors.InvalidInput("Invalid day off ID format")
		}
		return nil, apperrors.Internal("Failed to retrieve day off", err)
	}
	return existing, nil
}
