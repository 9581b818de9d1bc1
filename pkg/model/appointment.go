package model

import "time"

type AppointmentStatus string

const (
	AppointmentPending   AppointmentStatus = "pending"
	AppointmentConfirmed AppointmentStatus = "confirmed"
	AppointmentCompleted AppointmentStatus = "completed"
	AppointmentCancelled AppointmentStatus = "cancelled"
	AppointmentRejected  AppointmentStatus = "rejected"
)

func (st AppointmentStatus) Valid() bool {
	switch st {
	case AppointmentPending, AppointmentConfirmed, AppointmentCompleted,
		AppointmentCancelled, AppointmentRejected:
		return true
	}
	return false
}

// Terminal statuses accept no further transitions and no longer occupy
// doctor time.
func (st AppointmentStatus) Terminal() bool {
	switch st {
	case AppointmentCompleted, AppointmentCancelled, AppointmentRejected:
		return true
	}
	return false
}

// Appointment is a claimed slot. DoctorID, StartTime, EndTime, and Price are
// snapshotted from the slot and its service at booking time, so later edits
// to either cannot change what was agreed.
type Appointment struct {
	ID        string            `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	SlotID    string            `json:"slot_id" bson:"slot_id" validate:"required,mongodb"`
	PatientID string            `json:"patient_id" bson:"patient_id" validate:"required,mongodb"`
	DoctorID  string            `json:"doctor_id" bson:"doctor_id" validate:"required,mongodb"`
	StartTime time.Time         `json:"start_time" bson:"start_time" validate:"required"`
	EndTime   time.Time         `json:"end_time" bson:"end_time" validate:"required,gtfield=StartTime"`
	Status    AppointmentStatus `json:"status" bson:"status" validate:"required,oneof=pending confirmed completed cancelled rejected"`
	Note      string            `json:"note,omitempty" bson:"note,omitempty" validate:"omitempty,max=1000"`
	Price     float64           `json:"price" bson:"price" validate:"gte=0"`
	CreatedAt time.Time         `json:"created_at" bson:"created_at" validate:"omitempty"`
}

type BookRequest struct {
	SlotID string `json:"slot_id" validate:"required,mongodb"`
	Note   string `json:"note,omitempty" validate:"omitempty,max=1000"`
}

type UpdateStatusRequest struct {
	Status AppointmentStatus `json:"status" validate:"required,oneof=pending confirmed completed cancelled rejected"`
}

type RescheduleRequest struct {
	NewSlotID string `json:"new_slot_id" validate:"required,mongodb"`
}
