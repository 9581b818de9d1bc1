package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	scheduleserrors "clinicbook/internal/schedules/errors"
	"clinicbook/pkg/config"
	"clinicbook/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	DayOffCollectionName = "Day_offs"
)

type DayOffRepository interface {
	Create(ctx context.Context, d *model.DayOff) error
	FindByID(ctx context.Context, id string) (*model.DayOff, error)
	FindByDoctor(ctx context.Context, doctorID string) ([]*model.DayOff, error)
	UpdateStatus(ctx context.Context, id string, status model.DayOffStatus) error
	Delete(ctx context.Context, id string) error
	HasConfirmed(ctx context.Context, doctorID string, date string) (bool, error)
}

type mongoDayOffRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoDayOffRepository(cfg *config.Config) DayOffRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoDayOffRepository{
		cfg:        cfg,
		collection: db.Collection(DayOffCollectionName),
	}
}

func (r *mongoDayOffRepository) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.(mongo.SessionContext); ok {
		return ctx, func() {}
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

// Create relies on the unique (doctor_id, date) index; a duplicate key error
// is translated to ErrDuplicateDayOff.
func (r *mongoDayOffRepository) Create(ctx context.Context, d *model.DayOff) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	d.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	result, err := r.collection.InsertOne(ctx, d)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: doctor %s on %s", scheduleserrors.ErrDuplicateDayOff, d.DoctorID, d.Date)
		}
		return fmt.Errorf("failed to create day off: %w", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		d.ID = oid.Hex()
	}
	return nil
}

func (r *mongoDayOffRepository) FindByID(ctx context.Context, id string) (*model.DayOff, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", scheduleserrors.ErrInvalidID, id)
	}

	var d model.DayOff
	err = r.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&d)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: %s", scheduleserrors.ErrDayOffNotFound, id)
		}
		return nil, fmt.Errorf("failed to find day off: %w", err)
	}

	return &d, nil
}

func (r *mongoDayOffRepository) FindByDoctor(ctx context.Context, doctorID string) ([]*model.DayOff, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "date", Value: 1}})

	cursor, err := r.collection.Find(ctx, bson.M{"doctor_id": doctorID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query day offs: %w", err)
	}
	defer cursor.Close(ctx)

	var dayOffs []*model.DayOff
	if err = cursor.All(ctx, &dayOffs); err != nil {
		return nil, fmt.Errorf("failed to decode day offs: %w", err)
	}
	return dayOffs, nil
}

func (r *mongoDayOffRepository) UpdateStatus(ctx context.Context, id string, status model.DayOffStatus) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", scheduleserrors.ErrInvalidID, id)
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": objectID}, bson.M{"$set": bson.M{"status": status}})
	if err != nil {
		return fmt.Errorf("failed to update day off status: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", scheduleserrors.ErrDayOffNotFound, id)
	}
	return nil
}

func (r *mongoDayOffRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", scheduleserrors.ErrInvalidID, id)
	}

	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": objectID})
	if err != nil {
		return fmt.Errorf("failed to delete day off: %w", err)
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("%w: %s", scheduleserrors.ErrDayOffNotFound, id)
	}
	return nil
}

// HasConfirmed reports whether the doctor has a confirmed day off on the
// given clinic date. Pending and rejected requests never block.
func (r *mongoDayOffRepository) HasConfirmed(ctx context.Context, doctorID string, date string) (bool, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, bson.M{
		"doctor_id": doctorID,
		"date":      date,
		"status":    model.DayOffConfirmed,
	})
	if err != nil {
		return false, fmt.Errorf("failed to check day off: %w", err)
	}
	return count > 0, nil
}
