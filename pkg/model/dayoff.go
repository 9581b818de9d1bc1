package model

import "time"

type DayOffStatus string

const (
	DayOffPending   DayOffStatus = "pending"
	DayOffConfirmed DayOffStatus = "confirmed"
	DayOffRejected  DayOffStatus = "rejected"
)

// DayOff is a doctor-declared exception date. Unique per (doctor_id, date);
// only a confirmed day off blocks slot generation and booking.
type DayOff struct {
	ID        string       `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	DoctorID  string       `json:"doctor_id" bson:"doctor_id" validate:"required,mongodb"`
	Date      string       `json:"date" bson:"date" validate:"required,datetime=2006-01-02"`
	Status    DayOffStatus `json:"status" bson:"status" validate:"required,oneof=pending confirmed rejected"`
	Reason    string       `json:"reason,omitempty" bson:"reason,omitempty" validate:"omitempty,max=500"`
	CreatedAt time.Time    `json:"created_at" bson:"created_at" validate:"omitempty"`
}
