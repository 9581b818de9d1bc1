package service

import (
	"context"
	"errors"
	"fmt"

	appointmenterrors "clinicbook/internal/appointments/errors"
	directoryrepo "clinicbook/internal/directory/repository"
	apperrors "clinicbook/pkg/errors"
	"clinicbook/pkg/model"
	"clinicbook/pkg/sanitizer"

	"go.mongodb.org/mongo-driver/mongo"
)

// Book claims a slot for the calling patient. The decision runs under the
// doctor's advisory lock and inside one transaction: the overlap set is
// re-derived from live appointments, never from the is_booked cache, so two
// racing requests for the same doctor time produce exactly one winner.
func (s *appointmentService) Book(ctx context.Context, req *model.BookRequest, actor model.Actor) (*model.Appointment, error) {
	if actor.Role != model.RolePatient {
		return nil, apperrors.Unauthorized("Only patients can book appointments")
	}

	req.Note = sanitizer.NormalizeNote(req.Note)
	if err := s.validator.ValidateBook(req); err != nil {
		s.cfg.Log.Warn("Booking validation failed", "slot_id", req.SlotID, "error", err)
		return nil, apperrors.Validation("Booking validation failed", map[string]any{
			"error": err.Error(),
		})
	}

	// The slot is loaded once before locking to learn which doctor to lock;
	// everything decision-relevant is re-checked inside the transaction.
	slot, err := s.loadSlot(ctx, req.SlotID)
	if err != nil {
		return nil, err
	}

	patient, err := s.directory.FindPatientByID(ctx, actor.SubjectID)
	if err != nil {
		if errors.Is(err, directoryrepo.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Patient", actor.SubjectID)
		}
		if errors.Is(err, directoryrepo.ErrInvalidID) {
			return nil, apperrors.InvalidInput("Invalid patient ID format")
		}
		return nil, apperrors.Internal("Failed to verify patient", err)
	}

	service, err := s.directory.FindServiceByID(ctx, slot.ServiceID)
	if err != nil {
		if errors.Is(err, directoryrepo.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Service", slot.ServiceID)
		}
		return nil, apperrors.Internal("Failed to load service", err)
	}

	release, err := s.lockDoctors(ctx, slot.DoctorID)
	if err != nil {
		return nil, err
	}
	defer release()

	appt := &model.Appointment{
		SlotID:    slot.ID,
		PatientID: patient.ID,
		DoctorID:  slot.DoctorID,
		StartTime: slot.StartTime,
		EndTime:   slot.EndTime,
		Status:    model.AppointmentPending,
		Note:      req.Note,
		Price:     service.Price,
	}

	err = s.repo.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		current, err := s.repo.FindSlotByID(sessCtx, req.SlotID)
		if err != nil {
			if errors.Is(err, appointmenterrors.ErrSlotNotFound) {
				return apperrors.NotFoundWithID("Slot", req.SlotID)
			}
			return apperrors.Internal("Failed to load slot", err)
		}
		if !current.IsActive {
			return apperrors.Conflict("Slot is not open for booking")
		}

		live, err := s.repo.FindLiveByDoctorWindow(sessCtx, current.DoctorID, current.StartTime, current.EndTime, "")
		if err != nil {
			return apperrors.Internal("Failed to check for conflicting appointments", err)
		}
		if len(live) > 0 {
			return apperrors.Conflict(fmt.Sprintf(
				"The doctor already has an appointment between %s and %s",
				live[0].StartTime.Format("15:04"),
				live[0].EndTime.Format("15:04"),
			))
		}

		if err := s.repo.Create(sessCtx, appt); err != nil {
			return apperrors.Internal("Failed to create appointment", err)
		}
		return s.markWindowBooked(sessCtx, current.DoctorID, appt, true)
	})
	if err != nil {
		s.cfg.Log.Error("Failed to book appointment",
			"slot_id", req.SlotID,
			"patient_id", actor.SubjectID,
			"error", err,
		)
		return nil, err
	}

	s.cfg.Log.Info("Appointment booked",
		"id", appt.ID,
		"slot_id", appt.SlotID,
		"patient_id", appt.PatientID,
		"doctor_id", appt.DoctorID,
		"start_time", appt.StartTime,
	)
	s.publishEvent(ctx, EventAppointmentCreated, appt)
	return appt, nil
}

func (s *appointmentService) loadSlot(ctx context.Context, slotID string) (*model.AppointmentSlot, error) {
	slot, err := s.repo.FindSlotByID(ctx, slotID)
	if err != nil {
		if errors.Is(err, appointmenterrors.ErrSlotNotFound) {
			return nil, apperrors.NotFoundWithID("Slot", slotID)
		}
		if errors.Is(err, appointmenterrors.ErrInvalidID) {
			return nil, apperrors.InvalidInput("Invalid slot ID format")
		}
		return nil, apperrors.Internal("Failed to load slot", err)
	}
	return slot, nil
}

// markWindowBooked rewrites the is_booked display cache across the doctor's
// slots intersecting the appointment's window.
func (s *appointmentService) markWindowBooked(ctx context.Context, doctorID string, appt *model.Appointment, booked bool) error {
	if err := s.repo.SetSlotsBooked(ctx, doctorID, appt.StartTime, appt.EndTime, booked); err != nil {
		return apperrors.Internal("Failed to update slot booking flags", err)
	}
	return nil
}
