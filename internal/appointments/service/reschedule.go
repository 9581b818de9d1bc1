package service

import (
	"context"
	"errors"
	"fmt"

	appointmenterrors "clinicbook/internal/appointments/errors"
	apperrors "clinicbook/pkg/errors"
	"clinicbook/pkg/model"

	"go.mongodb.org/mongo-driver/mongo"
)

// Reschedule moves a live appointment onto a new slot. Both doctors' locks
// are taken (ascending order via lockDoctors) because the old interval is
// released and the new one claimed in the same transaction. The appointment's
// own claim is excluded from the conflict set so moving within the same
// doctor's day works. On any failure the appointment is left untouched.
func (s *appointmentService) Reschedule(ctx context.Context, id string, newSlotID string, actor model.Actor) (*model.Appointment, error) {
	req := &model.RescheduleRequest{NewSlotID: newSlotID}
	if err := s.validator.ValidateReschedule(req); err != nil {
		return nil, apperrors.Validation("Reschedule validation failed", map[string]any{
			"error": err.Error(),
		})
	}

	appt, err := s.findByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.authorizeReschedule(appt, actor); err != nil {
		return nil, err
	}

	if appt.Status.Terminal() {
		return nil, apperrors.InvalidTransition(string(appt.Status), string(model.AppointmentPending))
	}

	newSlot, err := s.loadSlot(ctx, newSlotID)
	if err != nil {
		return nil, err
	}
	if newSlot.ID == appt.SlotID {
		return nil, apperrors.InvalidInput("Appointment is already on this slot")
	}

	release, err := s.lockDoctors(ctx, appt.DoctorID, newSlot.DoctorID)
	if err != nil {
		return nil, err
	}
	defer release()

	oldDoctorID := appt.DoctorID
	oldStart, oldEnd := appt.StartTime, appt.EndTime

	updated := *appt
	updated.SlotID = newSlot.ID
	updated.DoctorID = newSlot.DoctorID
	updated.StartTime = newSlot.StartTime
	updated.EndTime = newSlot.EndTime
	updated.Status = model.AppointmentPending

	err = s.repo.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		current, err := s.repo.FindSlotByID(sessCtx, newSlotID)
		if err != nil {
			if errors.Is(err, appointmenterrors.ErrSlotNotFound) {
				return apperrors.NotFoundWithID("Slot", newSlotID)
			}
			return apperrors.Internal("Failed to load slot", err)
		}
		if !current.IsActive {
			return apperrors.Conflict("Slot is not open for booking")
		}

		live, err := s.repo.FindLiveByDoctorWindow(sessCtx, current.DoctorID, current.StartTime, current.EndTime, appt.ID)
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

		// Conditional on the status read before the locks: if the
		// appointment was cancelled or confirmed in the meantime, the write
		// matches nothing and the transaction aborts.
		if err := s.repo.Reassign(sessCtx, id, appt.Status, &updated); err != nil {
			if errors.Is(err, appointmenterrors.ErrStatusChanged) {
				return apperrors.Conflict("Appointment status changed concurrently")
			}
			return apperrors.Internal("Failed to reassign appointment", err)
		}

		// Release the old interval, then claim the new one.
		if err := s.repo.SetSlotsBooked(sessCtx, oldDoctorID, oldStart, oldEnd, false); err != nil {
			return apperrors.Internal("Failed to release previous interval", err)
		}
		return s.markWindowBooked(sessCtx, updated.DoctorID, &updated, true)
	})
	if err != nil {
		s.cfg.Log.Error("Failed to reschedule appointment",
			"id", id,
			"new_slot_id", newSlotID,
			"error", err,
		)
		return nil, err
	}

	s.cfg.Log.Info("Appointment rescheduled",
		"id", id,
		"old_slot_id", appt.SlotID,
		"new_slot_id", updated.SlotID,
		"doctor_id", updated.DoctorID,
		"start_time", updated.StartTime,
	)
	s.publishEvent(ctx, EventAppointmentRescheduled, &updated)
	return &updated, nil
}

func (s *appointmentService) authorizeReschedule(appt *model.Appointment, actor model.Actor) error {
	if actor.IsAdmin() {
		return nil
	}

	switch actor.Role {
	case model.RolePatient:
		if appt.PatientID != actor.SubjectID {
			return apperrors.Unauthorized("Patients can only reschedule their own appointments")
		}
	case model.RoleDoctor:
		if appt.DoctorID != actor.SubjectID {
			return apperrors.Unauthorized("Doctors can only reschedule their own appointments")
		}
	default:
		return apperrors.Unauthorized("Unknown actor role")
	}
	return nil
}
