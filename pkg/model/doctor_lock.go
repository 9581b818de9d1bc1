package model

import "time"

// DoctorLock is an advisory lock over one doctor's time. Uniqueness of the
// _id is the mutex: whoever inserts the document holds the lock until it is
// deleted or expires. ExpiresAt guards against crashed holders.
type DoctorLock struct {
	ID        string    `bson:"_id" json:"id"`
	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}
