package service

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	apperrors "clinicbook/pkg/errors"
	"clinicbook/pkg/model"
)

// ExpireOverdue cancels every pending appointment whose end time has already
// passed. Appointments are grouped per doctor and each group is swept under
// that doctor's advisory lock in a single transaction, so a sweep can never
// race a booking on the same calendar. Returns the number of appointments
// cancelled.
func (s *appointmentService) ExpireOverdue(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	overdue, err := s.repo.FindExpiredPending(ctx, now)
	if err != nil {
		return 0, apperrors.Internal("Failed to find expired appointments", err)
	}
	if len(overdue) == 0 {
		return 0, nil
	}

	byDoctor := make(map[string][]*model.Appointment)
	for _, appt := range overdue {
		byDoctor[appt.DoctorID] = append(byDoctor[appt.DoctorID], appt)
	}

	expired := 0
	for doctorID, appts := range byDoctor {
		n, err := s.expireDoctorGroup(ctx, doctorID, appts, now)
		if err != nil {
			// Other doctors' groups are still swept; the failed group is
			// retried on the next run.
			s.cfg.Log.Warn("Failed to expire appointments for doctor",
				"doctor_id", doctorID,
				"count", len(appts),
				"error", err,
			)
			continue
		}
		expired += n
	}

	return expired, nil
}

func (s *appointmentService) expireDoctorGroup(ctx context.Context, doctorID string, appts []*model.Appointment, now time.Time) (int, error) {
	release, err := s.lockDoctors(ctx, doctorID)
	if err != nil {
		return 0, err
	}
	defer release()

	// The scan ran before the lock, so each candidate is re-read inside the
	// transaction. Anything confirmed or rescheduled since the scan is left
	// alone; the conditional write backs that up.
	var cancelled []*model.Appointment
	err = s.repo.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		cancelled = cancelled[:0]
		for _, appt := range appts {
			current, err := s.repo.FindByID(sessCtx, appt.ID)
			if err != nil {
				return err
			}
			if current.Status != model.AppointmentPending ||
				current.DoctorID != doctorID ||
				!current.EndTime.Before(now) {
				continue
			}
			if err := s.repo.UpdateStatus(sessCtx, current.ID, model.AppointmentPending, model.AppointmentCancelled); err != nil {
				return err
			}
			if err := s.markWindowBooked(sessCtx, doctorID, current, false); err != nil {
				return err
			}
			cancelled = append(cancelled, current)
		}
		return nil
	})
	if err != nil {
		return 0, apperrors.Internal("Failed to expire appointments", err)
	}

	for _, appt := range cancelled {
		appt.Status = model.AppointmentCancelled
		s.publishEvent(ctx, EventAppointmentExpired, appt)
	}

	return len(cancelled), nil
}
