package repository

import (
	"context"
	"errors"
	"fmt"

	"clinicbook/pkg/config"
	"clinicbook/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// Doctors, patients, and services are owned by the profile-management side
// of the platform. These repositories only read them.

const (
	DoctorCollectionName  = "Doctors"
	PatientCollectionName = "Patients"
	ServiceCollectionName = "Services"
)

var (
	ErrNotFound  = errors.New("directory record not found")
	ErrInvalidID = errors.New("invalid directory ID format")
)

type DirectoryRepository interface {
	FindDoctorByID(ctx context.Context, id string) (*model.Doctor, error)
	FindPatientByID(ctx context.Context, id string) (*model.Patient, error)
	FindServiceByID(ctx context.Context, id string) (*model.Service, error)
}

type mongoDirectoryRepository struct {
	cfg      *config.Config
	doctors  *mongo.Collection
	patients *mongo.Collection
	services *mongo.Collection
}

func NewMongoDirectoryRepository(cfg *config.Config) DirectoryRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoDirectoryRepository{
		cfg:      cfg,
		doctors:  db.Collection(DoctorCollectionName),
		patients: db.Collection(PatientCollectionName),
		services: db.Collection(ServiceCollectionName),
	}
}

func (r *mongoDirectoryRepository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.(mongo.SessionContext); ok {
		return ctx, func() {}
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.cfg.ReadTimeout)
}

func (r *mongoDirectoryRepository) findOne(ctx context.Context, coll *mongo.Collection, id string, out any) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidID, id)
	}

	err = coll.FindOne(ctx, bson.M{"_id": objectID}).Decode(out)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return fmt.Errorf("failed to find %s record: %w", coll.Name(), err)
	}
	return nil
}

func (r *mongoDirectoryRepository) FindDoctorByID(ctx context.Context, id string) (*model.Doctor, error) {
	var d model.Doctor
	if err := r.findOne(ctx, r.doctors, id, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *mongoDirectoryRepository) FindPatientByID(ctx context.Context, id string) (*model.Patient, error) {
	var p model.Patient
	if err := r.findOne(ctx, r.patients, id, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *mongoDirectoryRepository) FindServiceByID(ctx context.Context, id string) (*model.Service, error) {
	var s model.Service
	if err := r.findOne(ctx, r.services, id, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
