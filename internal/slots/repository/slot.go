package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	slotserrors "clinicbook/internal/slots/errors"
	"clinicbook/pkg/config"
	mongotx "clinicbook/pkg/db/mongo"
	"clinicbook/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CollectionName            = "Appointment_slots"
	AppointmentCollectionName = "Appointments"
)

type SlotRepository interface {
	Create(ctx context.Context, slot *model.AppointmentSlot) error
	FindByID(ctx context.Context, id string) (*model.AppointmentSlot, error)
	Find(ctx context.Context, doctorID string, from, to time.Time) ([]*model.AppointmentSlot, error)
	ExistsDuplicate(ctx context.Context, scheduleID, serviceID string, start time.Time) (bool, error)
	SetActive(ctx context.Context, id string, active bool) error
	Delete(ctx context.Context, id string) error
	LiveAppointments(ctx context.Context, doctorID string, from, to time.Time) ([]*model.Appointment, error)
	HasLiveAppointmentForSlot(ctx context.Context, slotID string) (bool, error)
	ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error
}

type mongoSlotRepository struct {
	cfg          *config.Config
	collection   *mongo.Collection
	appointments *mongo.Collection
	txManager    mongotx.TransactionManager
}

func NewMongoSlotRepository(cfg *config.Config) SlotRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoSlotRepository{
		cfg:          cfg,
		collection:   db.Collection(CollectionName),
		appointments: db.Collection(AppointmentCollectionName),
		txManager:    mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}

func (r *mongoSlotRepository) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.(mongo.SessionContext); ok {
		return ctx, func() {}
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

func (r *mongoSlotRepository) Create(ctx context.Context, slot *model.AppointmentSlot) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	slot.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	result, err := r.collection.InsertOne(ctx, slot)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: schedule %s at %s", slotserrors.ErrDuplicateSlot, slot.ScheduleID, slot.StartTime)
		}
		return fmt.Errorf("failed to create slot: %w", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		slot.ID = oid.Hex()
	}
	return nil
}

func (r *mongoSlotRepository) FindByID(ctx context.Context, id string) (*model.AppointmentSlot, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", slotserrors.ErrInvalidID, id)
	}

	var slot model.AppointmentSlot
	err = r.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&slot)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: %s", slotserrors.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to find slot: %w", err)
	}

	return &slot, nil
}

// Find returns slots ordered by start time. doctorID and the [from, to)
// window are each optional.
func (r *mongoSlotRepository) Find(ctx context.Context, doctorID string, from, to time.Time) ([]*model.AppointmentSlot, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{}
	if doctorID != "" {
		filter["doctor_id"] = doctorID
	}
	if !from.IsZero() || !to.IsZero() {
		window := bson.M{}
		if !from.IsZero() {
			window["$gte"] = from
		}
		if !to.IsZero() {
			window["$lt"] = to
		}
		filter["start_time"] = window
	}

	opts := options.Find().SetSort(bson.D{{Key: "start_time", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query slots: %w", err)
	}
	defer cursor.Close(ctx)

	var slots []*model.AppointmentSlot
	if err = cursor.All(ctx, &slots); err != nil {
		return nil, fmt.Errorf("failed to decode slots: %w", err)
	}
	return slots, nil
}

func (r *mongoSlotRepository) ExistsDuplicate(ctx context.Context, scheduleID, serviceID string, start time.Time) (bool, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, bson.M{
		"schedule_id": scheduleID,
		"service_id":  serviceID,
		"start_time":  start,
	})
	if err != nil {
		return false, fmt.Errorf("failed to check for duplicate slot: %w", err)
	}
	return count > 0, nil
}

func (r *mongoSlotRepository) SetActive(ctx context.Context, id string, active bool) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", slotserrors.ErrInvalidID, id)
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": objectID}, bson.M{"$set": bson.M{"is_active": active}})
	if err != nil {
		return fmt.Errorf("failed to update slot: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", slotserrors.ErrNotFound, id)
	}
	return nil
}

func (r *mongoSlotRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", slotserrors.ErrInvalidID, id)
	}

	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": objectID})
	if err != nil {
		return fmt.Errorf("failed to delete slot: %w", err)
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("%w: %s", slotserrors.ErrNotFound, id)
	}
	return nil
}

// LiveAppointments returns non-terminal appointments intersecting [from, to),
// optionally narrowed to one doctor. Used to recompute the is_booked display
// flag from the authoritative source.
func (r *mongoSlotRepository) LiveAppointments(ctx context.Context, doctorID string, from, to time.Time) ([]*model.Appointment, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{
		"status": bson.M{"$in": []model.AppointmentStatus{model.AppointmentPending, model.AppointmentConfirmed}},
	}
	if doctorID != "" {
		filter["doctor_id"] = doctorID
	}
	if !from.IsZero() {
		filter["end_time"] = bson.M{"$gt": from}
	}
	if !to.IsZero() {
		filter["start_time"] = bson.M{"$lt": to}
	}

	cursor, err := r.appointments.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query live appointments: %w", err)
	}
	defer cursor.Close(ctx)

	var appointments []*model.Appointment
	if err = cursor.All(ctx, &appointments); err != nil {
		return nil, fmt.Errorf("failed to decode appointments: %w", err)
	}
	return appointments, nil
}

func (r *mongoSlotRepository) HasLiveAppointmentForSlot(ctx context.Context, slotID string) (bool, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.appointments.CountDocuments(ctx, bson.M{
		"slot_id": slotID,
		"status":  bson.M{"$in": []model.AppointmentStatus{model.AppointmentPending, model.AppointmentConfirmed}},
	})
	if err != nil {
		return false, fmt.Errorf("failed to check appointments for slot: %w", err)
	}
	return count > 0, nil
}

func (r *mongoSlotRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}
