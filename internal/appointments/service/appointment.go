package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	appointmenterrors "clinicbook/internal/appointments/errors"
	"clinicbook/internal/appointments/repository"
	"clinicbook/internal/appointments/validator"
	directoryrepo "clinicbook/internal/directory/repository"
	"clinicbook/pkg/config"
	apperrors "clinicbook/pkg/errors"
	"clinicbook/pkg/model"
)

type AppointmentService interface {
	Book(ctx context.Context, req *model.BookRequest, actor model.Actor) (*model.Appointment, error)
	UpdateStatus(ctx context.Context, id string, target model.AppointmentStatus, actor model.Actor) error
	Reschedule(ctx context.Context, id string, newSlotID string, actor model.Actor) (*model.Appointment, error)
	List(ctx context.Context, actor model.Actor, status model.AppointmentStatus, patientID string, limit int, offset int64) ([]*model.Appointment, int64, error)
	GetByID(ctx context.Context, id string, actor model.Actor) (*model.Appointment, error)
	ExpireOverdue(ctx context.Context) (int, error)
}

type appointmentService struct {
	repo      repository.AppointmentRepository
	lockRepo  repository.DoctorLockRepository
	directory directoryrepo.DirectoryRepository
	validator *validator.AppointmentValidator
	publisher EventPublisher
	cfg       *config.Config
}

func NewAppointmentService(
	repo repository.AppointmentRepository,
	lockRepo repository.DoctorLockRepository,
	directory directoryrepo.DirectoryRepository,
	validator *validator.AppointmentValidator,
	publisher EventPublisher,
	cfg *config.Config,
) AppointmentService {
	return &appointmentService{
		repo:      repo,
		lockRepo:  lockRepo,
		directory: directory,
		validator: validator,
		publisher: publisher,
		cfg:       cfg,
	}
}

// lockDoctors acquires the advisory locks for every given doctor, always in
// ascending id order so two concurrent multi-doctor operations can never
// deadlock each other. A contended lock is retried until DoctorLockWait runs
// out, then surfaces as a conflict.
func (s *appointmentService) lockDoctors(ctx context.Context, doctorIDs ...string) (func(), error) {
	seen := make(map[string]bool, len(doctorIDs))
	ids := make([]string, 0, len(doctorIDs))
	for _, id := range doctorIDs {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	deadline := time.Now().Add(s.cfg.DoctorLockWait)
	var acquired []string

	release := func() {
		// Locks are released even when the caller's context is gone.
		releaseCtx, cancel := context.WithTimeout(context.Background(), s.cfg.WriteTimeout)
		defer cancel()
		for i := len(acquired) - 1; i >= 0; i-- {
			if err := s.lockRepo.Release(releaseCtx, acquired[i]); err != nil {
				s.cfg.Log.Warn("Failed to release doctor lock", "doctor_id", acquired[i], "error", err)
			}
		}
	}

	for _, id := range ids {
		for {
			err := s.lockRepo.Acquire(ctx, id, s.cfg.DoctorLockTTL)
			if err == nil {
				acquired = append(acquired, id)
				break
			}
			if !errors.Is(err, appointmenterrors.ErrLockHeld) {
				release()
				return nil, apperrors.Internal("Failed to acquire doctor lock", err)
			}
			if time.Now().After(deadline) {
				release()
				return nil, apperrors.Conflict("The doctor's calendar is busy with another request. Please try again.")
			}
			select {
			case <-ctx.Done():
				release()
				return nil, apperrors.Conflict("The doctor's calendar is busy with another request. Please try again.")
			case <-time.After(s.cfg.DoctorLockRetryDelay):
			}
		}
	}

	return release, nil
}

func (s *appointmentService) List(ctx context.Context, actor model.Actor, status model.AppointmentStatus, patientID string, limit int, offset int64) ([]*model.Appointment, int64, error) {
	if status != "" && !status.Valid() {
		return nil, 0, apperrors.InvalidInput("Unknown appointment status filter")
	}

	filter := repository.Filter{Status: status}
	switch actor.Role {
	case model.RolePatient:
		filter.PatientID = actor.SubjectID
	case model.RoleDoctor:
		filter.DoctorID = actor.SubjectID
	case model.RoleAdmin, model.RoleSuperAdmin:
		filter.PatientID = patientID
	default:
		return nil, 0, apperrors.Unauthorized("Unknown actor role")
	}

	limit = config.NormalizePaginationLimit(limit)
	offset = config.NormalizeOffset(offset)

	var count int64
	var appointments []*model.Appointment
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		count, errCount = s.repo.Count(ctx, filter)
		if errCount != nil {
			s.cfg.Log.Error("Failed to count appointments", "error", errCount)
			errCount = apperrors.Internal("Failed to count appointments", errCount)
		}
	}()

	go func() {
		defer wg.Done()
		appointments, errFind = s.repo.Find(ctx, filter, limit, offset)
		if errFind != nil {
			s.cfg.Log.Error("Failed to list appointments", "error", errFind)
			errFind = apperrors.Internal("Failed to retrieve appointments", errFind)
		}
	}()

	wg.Wait()
	if errCount != nil {
		return nil, 0, errCount
	}
	if errFind != nil {
		return nil, 0, errFind
	}
	return appointments, count, nil
}

func (s *appointmentService) GetByID(ctx context.Context, id string, actor model.Actor) (*model.Appointment, error) {
	appt, err := s.findByID(ctx, id)
	if err != nil {
		return nil, err
	}

	switch actor.Role {
	case model.RolePatient:
		if appt.PatientID != actor.SubjectID {
			return nil, apperrors.Unauthorized("Patients can only view their own appointments")
		}
	case model.RoleDoctor:
		if appt.DoctorID != actor.SubjectID {
			return nil, apperrors.Unauthorized("Doctors can only view their own appointments")
		}
	case model.RoleAdmin, model.RoleSuperAdmin:
	default:
		return nil, apperrors.Unauthorized("Unknown actor role")
	}

	return appt, nil
}

func (s *appointmentService) findByID(ctx context.Context, id string) (*model.Appointment, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Appointment ID cannot be empty")
	}

	appt, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, appointmenterrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Appointment", id)
		}
		if errors.Is(err, appointmenterrors.ErrInvalidID) {
			return nil, apperrors.InvalidInput("Invalid appointment ID format")
		}
		s.cfg.Log.Error("Failed to get appointment by ID", "id", id, "error", err)
		return nil, apperrors.Internal("Failed to retrieve appointment", err)
	}
	return appt, nil
}
