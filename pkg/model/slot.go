package model

import "time"

// AppointmentSlot is the unit of booking: one service-duration window carved
// out of a schedule on a concrete date. DoctorID is denormalized from the
// parent schedule so the overlap set for a doctor is a single indexed query.
//
// IsBooked is a display cache rewritten on every claim and release. Conflict
// decisions never read it; they re-derive truth from live non-terminal
// appointments over the overlapping window.
type AppointmentSlot struct {
	ID         string    `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	ScheduleID string    `json:"schedule_id" bson:"schedule_id" validate:"required,mongodb"`
	ServiceID  string    `json:"service_id" bson:"service_id" validate:"required,mongodb"`
	DoctorID   string    `json:"doctor_id" bson:"doctor_id" validate:"required,mongodb"`
	StartTime  time.Time `json:"start_time" bson:"start_time" validate:"required"`
	EndTime    time.Time `json:"end_time" bson:"end_time" validate:"required,gtfield=StartTime"`
	IsBooked   bool      `json:"is_booked" bson:"is_booked"`
	IsActive   bool      `json:"is_active" bson:"is_active"`
	CreatedAt  time.Time `json:"created_at" bson:"created_at" validate:"omitempty"`
}

// Overlaps reports whether the slot's window intersects [start, end).
func (s *AppointmentSlot) Overlaps(start, end time.Time) bool {
	return s.StartTime.Before(end) && s.EndTime.After(start)
}

// GenerateSlotsRequest is the operator input for slot generation.
type GenerateSlotsRequest struct {
	ScheduleIDs []string `json:"schedule_ids" validate:"required,min=1,dive,mongodb"`
	ServiceIDs  []string `json:"service_ids" validate:"required,min=1,dive,mongodb"`
	Date        string   `json:"date" validate:"required,datetime=2006-01-02"`
}
