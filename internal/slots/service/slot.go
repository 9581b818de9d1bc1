package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	directoryrepo "clinicbook/internal/directory/repository"
	scheduleerrors "clinicbook/internal/schedules/errors"
	schedulerepo "clinicbook/internal/schedules/repository"
	sloterrors "clinicbook/internal/slots/errors"
	"clinicbook/internal/slots/repository"
	"clinicbook/internal/slots/validator"
	"clinicbook/pkg/clinictime"
	"clinicbook/pkg/config"
	apperrors "clinicbook/pkg/errors"
	"clinicbook/pkg/model"

	"go.mongodb.org/mongo-driver/mongo"
)

type SlotService interface {
	Generate(ctx context.Context, req *model.GenerateSlotsRequest) ([]*model.AppointmentSlot, error)
	List(ctx context.Context, doctorID string, date string) ([]*model.AppointmentSlot, error)
	SetActive(ctx context.Context, id string, active bool) error
	Delete(ctx context.Context, id string) error
}

type slotService struct {
	repo      repository.SlotRepository
	schedules schedulerepo.ScheduleRepository
	dayOffs   schedulerepo.DayOffRepository
	directory directoryrepo.DirectoryRepository
	validator *validator.SlotValidator
	cfg       *config.Config
	loc       *time.Location
}

func NewSlotService(
	repo repository.SlotRepository,
	schedules schedulerepo.ScheduleRepository,
	dayOffs schedulerepo.DayOffRepository,
	directory directoryrepo.DirectoryRepository,
	validator *validator.SlotValidator,
	cfg *config.Config,
) SlotService {
	loc, err := clinictime.LoadZone(cfg.ClinicTimeZone)
	if err != nil {
		cfg.Log.Fatal("Invalid clinic timezone", "timezone", cfg.ClinicTimeZone, "error", err)
	}
	return &slotService{
		repo:      repo,
		schedules: schedules,
		dayOffs:   dayOffs,
		directory: directory,
		validator: validator,
		cfg:       cfg,
		loc:       loc,
	}
}

// Generate tiles every (schedule, service) pair across the requested date.
// The whole batch is written in one transaction; the first failure aborts
// everything, so a rerun after fixing the input starts clean.
func (s *slotService) Generate(ctx context.Context, req *model.GenerateSlotsRequest) ([]*model.AppointmentSlot, error) {
	if err := s.validator.ValidateGenerateRequest(req); err != nil {
		s.cfg.Log.Warn("Slot generation validation failed", "error", err)
		return nil, apperrors.Validation("Slot generation validation failed", map[string]any{
			"error": err.Error(),
		})
	}

	day, err := clinictime.ParseDate(req.Date, s.loc)
	if err != nil {
		return nil, apperrors.InvalidInput(fmt.Sprintf("Invalid date: %s", req.Date))
	}
	weekday := model.WeekdayOf(day)

	services := make([]*model.Service, 0, len(req.ServiceIDs))
	for _, serviceID := range req.ServiceIDs {
		svc, err := s.directory.FindServiceByID(ctx, serviceID)
		if err != nil {
			if errors.Is(err, directoryrepo.ErrNotFound) {
				return nil, apperrors.NotFoundWithID("Service", serviceID)
			}
			if errors.Is(err, directoryrepo.ErrInvalidID) {
				return nil, apperrors.InvalidInput("Invalid service ID format")
			}
			return nil, apperrors.Internal("Failed to load service", err)
		}
		if svc.DurationMinutes <= 0 {
			return nil, apperrors.InvalidInput(fmt.Sprintf("Service %s has a non-positive duration", serviceID))
		}
		services = append(services, svc)
	}

	schedules := make([]*model.Schedule, 0, len(req.ScheduleIDs))
	checkedDoctors := make(map[string]bool)
	for _, scheduleID := range req.ScheduleIDs {
		sched, err := s.schedules.FindByID(ctx, scheduleID)
		if err != nil {
			if errors.Is(err, scheduleerrors.ErrNotFound) {
				return nil, apperrors.NotFoundWithID("Schedule", scheduleID)
			}
			if errors.Is(err, scheduleerrors.ErrInvalidID) {
				return nil, apperrors.InvalidInput("Invalid schedule ID format")
			}
			return nil, apperrors.Internal("Failed to load schedule", err)
		}
		if sched.Weekday != weekday {
			return nil, apperrors.InvalidInput(fmt.Sprintf(
				"Schedule %s is for %s but %s falls on %s", scheduleID, sched.Weekday, req.Date, weekday))
		}

		if !checkedDoctors[sched.DoctorID] {
			blocked, err := s.dayOffs.HasConfirmed(ctx, sched.DoctorID, req.Date)
			if err != nil {
				return nil, apperrors.Internal("Failed to check day off", err)
			}
			if blocked {
				return nil, apperrors.Conflict(fmt.Sprintf(
					"Doctor %s has a confirmed day off on %s", sched.DoctorID, req.Date))
			}
			checkedDoctors[sched.DoctorID] = true
		}
		schedules = append(schedules, sched)
	}

	var candidates []*model.AppointmentSlot
	for _, sched := range schedules {
		for _, svc := range services {
			tiled, err := tileSchedule(sched, svc, day)
			if err != nil {
				return nil, apperrors.Internal("Failed to tile schedule", err)
			}
			candidates = append(candidates, tiled...)
		}
	}

	err = s.repo.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		for _, slot := range candidates {
			exists, err := s.repo.ExistsDuplicate(sessCtx, slot.ScheduleID, slot.ServiceID, slot.StartTime)
			if err != nil {
				return apperrors.Internal("Failed to check for duplicate slot", err)
			}
			if exists {
				return apperrors.Conflict(fmt.Sprintf(
					"Slot already exists for schedule %s at %s", slot.ScheduleID, slot.StartTime.Format(time.RFC3339)))
			}
			if err := s.repo.Create(sessCtx, slot); err != nil {
				if errors.Is(err, sloterrors.ErrDuplicateSlot) {
					return apperrors.Conflict(err.Error())
				}
				return apperrors.Internal("Failed to create slot", err)
			}
		}
		return nil
	})
	if err != nil {
		s.cfg.Log.Error("Slot generation failed",
			"date", req.Date,
			"schedules", len(req.ScheduleIDs),
			"services", len(req.ServiceIDs),
			"error", err,
		)
		return nil, err
	}

	s.cfg.Log.Info("Slots generated",
		"date", req.Date,
		"count", len(candidates),
		"schedules", len(req.ScheduleIDs),
		"services", len(req.ServiceIDs),
	)
	return candidates, nil
}

// tileSchedule lays service-duration windows end to end across the schedule's
// working range on the given day. A trailing remainder shorter than the
// service is dropped.
func tileSchedule(sched *model.Schedule, svc *model.Service, day time.Time) ([]*model.AppointmentSlot, error) {
	start, err := clinictime.At(day, sched.StartTime)
	if err != nil {
		return nil, err
	}
	end, err := clinictime.At(day, sched.EndTime)
	if err != nil {
		return nil, err
	}

	duration := time.Duration(svc.DurationMinutes) * time.Minute

	var slots []*model.AppointmentSlot
	for cursor := start; !cursor.Add(duration).After(end); cursor = cursor.Add(duration) {
		slots = append(slots, &model.AppointmentSlot{
			ScheduleID: sched.ID,
			ServiceID:  svc.ID,
			DoctorID:   sched.DoctorID,
			StartTime:  cursor,
			EndTime:    cursor.Add(duration),
			IsBooked:   false,
			IsActive:   true,
		})
	}
	return slots, nil
}

// List returns slots with is_booked recomputed from live appointments rather
// than the stored display flag.
func (s *slotService) List(ctx context.Context, doctorID string, date string) ([]*model.AppointmentSlot, error) {
	var from, to time.Time
	if date != "" {
		day, err := clinictime.ParseDate(date, s.loc)
		if err != nil {
			return nil, apperrors.InvalidInput(fmt.Sprintf("Invalid date: %s", date))
		}
		from = day
		to = day.AddDate(0, 0, 1)
	}

	slots, err := s.repo.Find(ctx, doctorID, from, to)
	if err != nil {
		s.cfg.Log.Error("Failed to list slots", "doctor_id", doctorID, "date", date, "error", err)
		return nil, apperrors.Internal("Failed to retrieve slots", err)
	}
	if len(slots) == 0 {
		return slots, nil
	}

	live, err := s.repo.LiveAppointments(ctx, doctorID, from, to)
	if err != nil {
		s.cfg.Log.Error("Failed to load live appointments", "doctor_id", doctorID, "error", err)
		return nil, apperrors.Internal("Failed to compute slot availability", err)
	}

	for _, slot := range slots {
		slot.IsBooked = false
		for _, appt := range live {
			if appt.DoctorID == slot.DoctorID && slot.Overlaps(appt.StartTime, appt.EndTime) {
				slot.IsBooked = true
				break
			}
		}
	}
	return slots, nil
}

func (s *slotService) SetActive(ctx context.Context, id string, active bool) error {
	if id == "" {
		return apperrors.InvalidInput("Slot ID cannot be empty")
	}

	if err := s.repo.SetActive(ctx, id, active); err != nil {
		if errors.Is(err, sloterrors.ErrNotFound) {
			return apperrors.NotFoundWithID("Slot", id)
		}
		if errors.Is(err, sloterrors.ErrInvalidID) {
			return apperrors.InvalidInput("Invalid slot ID format")
		}
		s.cfg.Log.Error("Failed to update slot activation", "id", id, "active", active, "error", err)
		return apperrors.Internal("Failed to update slot", err)
	}

	s.cfg.Log.Info("Slot activation updated", "id", id, "active", active)
	return nil
}

// Delete refuses to remove a slot that a live appointment still references.
func (s *slotService) Delete(ctx context.Context, id string) error {
	if id == "" {
		return apperrors.InvalidInput("Slot ID cannot be empty")
	}

	referenced, err := s.repo.HasLiveAppointmentForSlot(ctx, id)
	if err != nil {
		s.cfg.Log.Error("Failed to check slot references", "id", id, "error", err)
		return apperrors.Internal("Failed to check slot references", err)
	}
	if referenced {
		return apperrors.Conflict("Slot is referenced by a pending or confirmed appointment")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sloterrors.ErrNotFound) {
			return apperrors.NotFoundWithID("Slot", id)
		}
		if errors.Is(err, sloterrors.ErrInvalidID) {
			return apperrors.InvalidInput("Invalid slot ID format")
		}
		s.cfg.Log.Error("Failed to delete slot", "id", id, "error", err)
		return apperrors.Internal("Failed to delete slot", err)
	}

	s.cfg.Log.Info("Slot deleted", "id", id)
	return nil
}
