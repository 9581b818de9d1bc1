package model

// Doctor, Patient, and Service records are owned by the profile-management
// side of the platform. The booking engine reads them, never writes them.

type Doctor struct {
	ID          string `json:"id,omitempty" bson:"_id,omitempty"`
	Name        string `json:"name" bson:"name"`
	SpecialtyID string `json:"specialty_id,omitempty" bson:"specialty_id,omitempty"`
}

type Patient struct {
	ID   string `json:"id,omitempty" bson:"_id,omitempty"`
	Name string `json:"name" bson:"name"`
}

// Service fixes the slot duration; its price is copied into the appointment
// at booking time, not re-read live.
type Service struct {
	ID              string  `json:"id,omitempty" bson:"_id,omitempty"`
	Name            string  `json:"name" bson:"name"`
	DurationMinutes int     `json:"duration_minutes" bson:"duration_minutes"`
	Price           float64 `json:"price" bson:"price"`
}
