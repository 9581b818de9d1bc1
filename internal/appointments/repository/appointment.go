package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	appointmentserrors "clinicbook/internal/appointments/errors"
	"clinicbook/pkg/config"
	mongotx "clinicbook/pkg/db/mongo"
	"clinicbook/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CollectionName     = "Appointments"
	SlotCollectionName = "Appointment_slots"
)

// Filter narrows appointment listings. Empty fields are ignored.
type Filter struct {
	PatientID string
	DoctorID  string
	Status    model.AppointmentStatus
}

type AppointmentRepository interface {
	Create(ctx context.Context, appt *model.Appointment) error
	FindByID(ctx context.Context, id string) (*model.Appointment, error)
	Find(ctx context.Context, filter Filter, limit int, offset int64) ([]*model.Appointment, error)
	Count(ctx context.Context, filter Filter) (int64, error)
	FindLiveByDoctorWindow(ctx context.Context, doctorID string, start, end time.Time, excludeID string) ([]*model.Appointment, error)
	FindExpiredPending(ctx context.Context, now time.Time) ([]*model.Appointment, error)
	UpdateStatus(ctx context.Context, id string, from, to model.AppointmentStatus) error
	Reassign(ctx context.Context, id string, from model.AppointmentStatus, appt *model.Appointment) error
	FindSlotByID(ctx context.Context, slotID string) (*model.AppointmentSlot, error)
	SetSlotsBooked(ctx context.Context, doctorID string, start, end time.Time, booked bool) error
	ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error
}

type mongoAppointmentRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
	slots      *mongo.Collection
	txManager  mongotx.TransactionManager
}

func NewMongoAppointmentRepository(cfg *config.Config) AppointmentRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoAppointmentRepository{
		cfg:        cfg,
		collection: db.Collection(CollectionName),
		slots:      db.Collection(SlotCollectionName),
		txManager:  mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}

func (r *mongoAppointmentRepository) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.(mongo.SessionContext); ok {
		return ctx, func() {}
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

func (r *mongoAppointmentRepository) Create(ctx context.Context, appt *model.Appointment) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	appt.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	result, err := r.collection.InsertOne(ctx, appt)
	if err != nil {
		return fmt.Errorf("failed to create appointment: %w", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		appt.ID = oid.Hex()
	}
	return nil
}

func (r *mongoAppointmentRepository) FindByID(ctx context.Context, id string) (*model.Appointment, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", appointmentserrors.ErrInvalidID, id)
	}

	var appt model.Appointment
	err = r.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&appt)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: %s", appointmentserrors.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to find appointment: %w", err)
	}

	return &appt, nil
}

func buildFilter(f Filter) bson.M {
	filter := bson.M{}
	if f.PatientID != "" {
		filter["patient_id"] = f.PatientID
	}
	if f.DoctorID != "" {
		filter["doctor_id"] = f.DoctorID
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	return filter
}

func (r *mongoAppointmentRepository) Find(ctx context.Context, filter Filter, limit int, offset int64) ([]*model.Appointment, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetLimit(int64(limit)).
		SetSkip(offset).
		SetSort(bson.D{{Key: "start_time", Value: -1}})

	cursor, err := r.collection.Find(ctx, buildFilter(filter), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query appointments: %w", err)
	}
	defer cursor.Close(ctx)

	var appointments []*model.Appointment
	if err = cursor.All(ctx, &appointments); err != nil {
		return nil, fmt.Errorf("failed to decode appointments: %w", err)
	}
	return appointments, nil
}

func (r *mongoAppointmentRepository) Count(ctx context.Context, filter Filter) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, buildFilter(filter))
	if err != nil {
		return 0, fmt.Errorf("failed to count appointments: %w", err)
	}
	return count, nil
}

// FindLiveByDoctorWindow is the authoritative conflict query: pending or
// confirmed appointments for the doctor whose window intersects [start, end).
// excludeID, when set, skips the appointment being rescheduled.
func (r *mongoAppointmentRepository) FindLiveByDoctorWindow(ctx context.Context, doctorID string, start, end time.Time, excludeID string) ([]*model.Appointment, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{
		"doctor_id":  doctorID,
		"status":     bson.M{"$in": []model.AppointmentStatus{model.AppointmentPending, model.AppointmentConfirmed}},
		"start_time": bson.M{"$lt": end},
		"end_time":   bson.M{"$gt": start},
	}
	if excludeID != "" {
		objectID, err := primitive.ObjectIDFromHex(excludeID)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", appointmentserrors.ErrInvalidID, excludeID)
		}
		filter["_id"] = bson.M{"$ne": objectID}
	}

	cursor, err := r.collection.Find(ctx, filter)
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

func (r *mongoAppointmentRepository) FindExpiredPending(ctx context.Context, now time.Time) ([]*model.Appointment, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	cursor, err := r.collection.Find(ctx, bson.M{
		"status":   model.AppointmentPending,
		"end_time": bson.M{"$lt": now},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query expired appointments: %w", err)
	}
	defer cursor.Close(ctx)

	var appointments []*model.Appointment
	if err = cursor.All(ctx, &appointments); err != nil {
		return nil, fmt.Errorf("failed to decode appointments: %w", err)
	}
	return appointments, nil
}

// UpdateStatus is a compare-and-set: the write matches only while the
// appointment is still in the from status. Returns ErrStatusChanged when the
// status moved between the caller's read and this write.
func (r *mongoAppointmentRepository) UpdateStatus(ctx context.Context, id string, from, to model.AppointmentStatus) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", appointmentserrors.ErrInvalidID, id)
	}

	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": objectID, "status": from},
		bson.M{"$set": bson.M{"status": to}},
	)
	if err != nil {
		return fmt.Errorf("failed to update appointment status: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", appointmentserrors.ErrStatusChanged, id)
	}
	return nil
}

// Reassign rewrites the slot binding and snapshot fields during a reschedule.
// Conditional on the from status, same as UpdateStatus.
func (r *mongoAppointmentRepository) Reassign(ctx context.Context, id string, from model.AppointmentStatus, appt *model.Appointment) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", appointmentserrors.ErrInvalidID, id)
	}

	update := bson.M{
		"$set": bson.M{
			"slot_id":    appt.SlotID,
			"doctor_id":  appt.DoctorID,
			"start_time": appt.StartTime,
			"end_time":   appt.EndTime,
			"status":     appt.Status,
		},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": objectID, "status": from}, update)
	if err != nil {
		return fmt.Errorf("failed to reassign appointment: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", appointmentserrors.ErrStatusChanged, id)
	}
	return nil
}

func (r *mongoAppointmentRepository) FindSlotByID(ctx context.Context, slotID string) (*model.AppointmentSlot, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(slotID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", appointmentserrors.ErrInvalidID, slotID)
	}

	var slot model.AppointmentSlot
	err = r.slots.FindOne(ctx, bson.M{"_id": objectID}).Decode(&slot)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: %s", appointmentserrors.ErrSlotNotFound, slotID)
		}
		return nil, fmt.Errorf("failed to find slot: %w", err)
	}

	return &slot, nil
}

// SetSlotsBooked rewrites the is_booked display cache for every slot of the
// doctor intersecting [start, end). Conflict decisions never read this flag.
func (r *mongoAppointmentRepository) SetSlotsBooked(ctx context.Context, doctorID string, start, end time.Time, booked bool) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	_, err := r.slots.UpdateMany(ctx,
		bson.M{
			"doctor_id":  doctorID,
			"start_time": bson.M{"$lt": end},
			"end_time":   bson.M{"$gt": start},
		},
		bson.M{"$set": bson.M{"is_booked": booked}},
	)
	if err != nil {
		return fmt.Errorf("failed to update slot booking flags: %w", err)
	}
	return nil
}

func (r *mongoAppointmentRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}
