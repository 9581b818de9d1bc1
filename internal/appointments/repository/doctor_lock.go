package repository

import (
	"context"
	"fmt"
	"time"

	appointmentserrors "clinicbook/internal/appointments/errors"
	"clinicbook/pkg/config"
	"clinicbook/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const (
	LockCollectionName = "Doctor_locks"

	lockIDPrefix = "doctor:"
)

// DoctorLockRepository provides advisory locks over a doctor's calendar.
// The unique _id is the mutex: the insert either wins or hits a duplicate
// key. A TTL index on expires_at reaps locks left by crashed holders.
type DoctorLockRepository interface {
	Acquire(ctx context.Context, doctorID string, ttl time.Duration) error
	Release(ctx context.Context, doctorID string) error
}

type mongoDoctorLockRepository struct {
	collection *mongo.Collection
}

func NewMongoDoctorLockRepository(cfg *config.Config) DoctorLockRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoDoctorLockRepository{
		collection: db.Collection(LockCollectionName),
	}
}

func LockID(doctorID string) string {
	return lockIDPrefix + doctorID
}

func (r *mongoDoctorLockRepository) Acquire(ctx context.Context, doctorID string, ttl time.Duration) error {
	now := time.Now()
	lock := &model.DoctorLock{
		ID:        LockID(doctorID),
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}

	_, err := r.collection.InsertOne(ctx, lock)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: doctor %s", appointmentserrors.ErrLockHeld, doctorID)
		}
		return fmt.Errorf("failed to acquire doctor lock: %w", err)
	}
	return nil
}

func (r *mongoDoctorLockRepository) Release(ctx context.Context, doctorID string) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"_id": LockID(doctorID)})
	if err != nil {
		return fmt.Errorf("failed to release doctor lock: %w", err)
	}
	return nil
}
