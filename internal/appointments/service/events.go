package service

import (
	"context"
	"time"

	"clinicbook/pkg/kafka"
	"clinicbook/pkg/model"
)

// Appointment lifecycle event types.
const (
	EventAppointmentCreated       = "appointment.created"
	EventAppointmentStatusChanged = "appointment.status_changed"
	EventAppointmentRescheduled   = "appointment.rescheduled"
	EventAppointmentExpired       = "appointment.expired"

	EventSource        = "appointments"
	EventSchemaVersion = "1"
)

// EventPublisher is satisfied by *kafka.Producer. A nil publisher disables
// event emission; write-path behavior must never depend on it.
type EventPublisher interface {
	Publish(ctx context.Context, msg kafka.Message) error
}

// AppointmentEvent is the payload published on every lifecycle change.
type AppointmentEvent struct {
	EventType     string                  `json:"event_type"`
	AppointmentID string                  `json:"appointment_id"`
	SlotID        string                  `json:"slot_id"`
	PatientID     string                  `json:"patient_id"`
	DoctorID      string                  `json:"doctor_id"`
	Status        model.AppointmentStatus `json:"status"`
	StartTime     time.Time               `json:"start_time"`
	EndTime       time.Time               `json:"end_time"`
	OccurredAt    time.Time               `json:"occurred_at"`
}

// publishEvent emits one lifecycle event keyed by doctor id so all
// events for a doctor's calendar stay in partition order. Publish failures are
// logged, never propagated: the state change has already committed.
func (s *appointmentService) publishEvent(ctx context.Context, eventType string, appt *model.Appointment) {
	if s.publisher == nil {
		return
	}

	event := AppointmentEvent{
		EventType:     eventType,
		AppointmentID: appt.ID,
		SlotID:        appt.SlotID,
		PatientID:     appt.PatientID,
		DoctorID:      appt.DoctorID,
		Status:        appt.Status,
		StartTime:     appt.StartTime,
		EndTime:       appt.EndTime,
		OccurredAt:    time.Now().UTC(),
	}

	msg := kafka.NewMessage().
		WithKey(appt.DoctorID).
		WithValue(event).
		WithEventType(eventType).
		WithSource(EventSource).
		WithSchemaVersion(EventSchemaVersion).
		Build()

	if err := s.publisher.Publish(ctx, msg); err != nil {
		s.cfg.Log.Warn("Failed to publish appointment event",
			"event_type", eventType,
			"appointment_id", appt.ID,
			"error", err,
		)
	}
}
