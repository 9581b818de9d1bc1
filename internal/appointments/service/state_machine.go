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

// allowedTransitions is the complete appointment state machine. Statuses not
// present as keys are terminal.
var allowedTransitions = map[model.AppointmentStatus]map[model.AppointmentStatus]bool{
	model.AppointmentPending: {
		model.AppointmentConfirmed: true,
		model.AppointmentCancelled: true,
		model.AppointmentRejected:  true,
	},
	model.AppointmentConfirmed: {
		model.AppointmentCompleted: true,
		model.AppointmentCancelled: true,
	},
}

// CanTransition reports whether the edge from -> to exists in the state
// machine, independent of who is asking.
func CanTransition(from, to model.AppointmentStatus) bool {
	return allowedTransitions[from][to]
}

// roleTargets lists the statuses each non-admin role may request. Admin roles
// may request any target; edge legality still applies to everyone.
var roleTargets = map[model.Role]map[model.AppointmentStatus]bool{
	model.RolePatient: {
		model.AppointmentCancelled: true,
	},
	model.RoleDoctor: {
		model.AppointmentCompleted: true,
	},
}

// UpdateStatus drives one state machine edge. Permission is decided before
// edge legality: an actor who may not request the target at all gets an
// authorization error, while a permitted actor on an illegal edge gets an
// invalid-transition error. A doctor completing their own pending
// appointment therefore sees invalid transition, not permission denied.
func (s *appointmentService) UpdateStatus(ctx context.Context, id string, target model.AppointmentStatus, actor model.Actor) error {
	if !target.Valid() {
		return apperrors.InvalidInput("Unknown appointment status")
	}

	appt, err := s.findByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.authorizeTransition(appt, target, actor); err != nil {
		return err
	}

	if !CanTransition(appt.Status, target) {
		return apperrors.InvalidTransition(string(appt.Status), string(target))
	}

	// Every transition runs under the doctor lock and re-reads the
	// appointment inside the transaction. The status read above can be stale
	// by write time, and a stale edge could resurrect a cancelled
	// appointment over an interval another booking has since claimed.
	release, err := s.lockDoctors(ctx, appt.DoctorID)
	if err != nil {
		return err
	}
	defer release()

	from := appt.Status
	err = s.repo.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		current, err := s.findByID(sessCtx, id)
		if err != nil {
			return err
		}
		if current.DoctorID != appt.DoctorID {
			// Rescheduled onto another calendar; we hold the wrong lock.
			return apperrors.Conflict("Appointment moved to another doctor, try again")
		}
		if !CanTransition(current.Status, target) {
			return apperrors.Conflict(fmt.Sprintf(
				"Appointment moved to %s while the request was in flight", current.Status))
		}
		from = current.Status

		if err := s.repo.UpdateStatus(sessCtx, id, current.Status, target); err != nil {
			if errors.Is(err, appointmenterrors.ErrStatusChanged) {
				return apperrors.Conflict("Appointment status changed concurrently")
			}
			return apperrors.Internal("Failed to update appointment status", err)
		}

		if target == model.AppointmentCancelled || target == model.AppointmentRejected {
			return s.markWindowBooked(sessCtx, current.DoctorID, current, false)
		}
		return nil
	})
	if err != nil {
		s.cfg.Log.Error("Failed to update appointment status", "id", id, "target", target, "error", err)
		return err
	}

	s.cfg.Log.Info("Appointment status updated",
		"id", id,
		"from", from,
		"to", target,
		"actor_role", actor.Role,
	)

	appt.Status = target
	s.publishEvent(ctx, EventAppointmentStatusChanged, appt)
	return nil
}

func (s *appointmentService) authorizeTransition(appt *model.Appointment, target model.AppointmentStatus, actor model.Actor) error {
	if actor.IsAdmin() {
		return nil
	}

	targets, ok := roleTargets[actor.Role]
	if !ok {
		return apperrors.Unauthorized("Unknown actor role")
	}
	if !targets[target] {
		return apperrors.Unauthorized("Actor role may not request this status")
	}

	switch actor.Role {
	case model.RolePatient:
		if appt.PatientID != actor.SubjectID {
			return apperrors.Unauthorized("Patients can only cancel their own appointments")
		}
	case model.RoleDoctor:
		if appt.DoctorID != actor.SubjectID {
			return apperrors.Unauthorized("Doctors can only complete their own appointments")
		}
	}
	return nil
}
