package model

import "time"

// Schedule is a doctor's recurring weekly availability template. For a given
// doctor and weekday, [StartTime, EndTime) ranges must not overlap.
type Schedule struct {
	ID        string    `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	DoctorID  string    `json:"doctor_id" bson:"doctor_id" validate:"required,mongodb"`
	Weekday   Weekday   `json:"weekday" bson:"weekday" validate:"required,oneof=Sunday Monday Tuesday Wednesday Thursday Friday Saturday"`
	StartTime string    `json:"start_time" bson:"start_time" validate:"required,hhmm_time"`
	EndTime   string    `json:"end_time" bson:"end_time" validate:"required,hhmm_time"`
	CreatedAt time.Time `json:"created_at" bson:"created_at" validate:"omitempty"`
}

type ScheduleUpdate struct {
	Weekday   Weekday `json:"weekday,omitempty" validate:"omitempty,oneof=Sunday Monday Tuesday Wednesday Thursday Friday Saturday"`
	StartTime string  `json:"start_time,omitempty" validate:"omitempty,hhmm_time"`
	EndTime   string  `json:"end_time,omitempty" validate:"omitempty,hhmm_time"`
}
