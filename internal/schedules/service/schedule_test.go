package service

import (
	"context"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"clinicbook/internal/schedules/validator"
	"clinicbook/pkg/config"
	mongotx "clinicbook/pkg/db/mongo"
	apperrors "clinicbook/pkg/errors"
	"clinicbook/pkg/logger"
	"clinicbook/pkg/model"
)

const (
	testDoctorID   = "64c0000000000000000000c1"
	testScheduleID = "64c0000000000000000000a1"
)

type mockScheduleRepository struct {
	createFunc                 func(ctx context.Context, sc *model.Schedule) error
	findByIDFunc               func(ctx context.Context, id string) (*model.Schedule, error)
	findByDoctorAndWeekdayFunc func(ctx context.Context, doctorID string, weekday model.Weekday) ([]*model.Schedule, error)
	countFunc                  func(ctx context.Context) (int64, error)
	findAllFunc                func(ctx context.Context, limit int, offset int64) ([]*model.Schedule, error)
}

func (m *mockScheduleRepository) Create(ctx context.Context, sc *model.Schedule) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, sc)
	}
	return nil
}

func (m *mockScheduleRepository) FindByID(ctx context.Context, id string) (*model.Schedule, error) {
	if m.findByIDFunc != nil {
		return m.findByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockScheduleRepository) FindByDoctor(ctx context.Context, doctorID string) ([]*model.Schedule, error) {
	return []*model.Schedule{}, nil
}

func (m *mockScheduleRepository) FindByDoctorAndWeekday(ctx context.Context, doctorID string, weekday model.Weekday) ([]*model.Schedule, error) {
	if m.findByDoctorAndWeekdayFunc != nil {
		return m.findByDoctorAndWeekdayFunc(ctx, doctorID, weekday)
	}
	return []*model.Schedule{}, nil
}

func (m *mockScheduleRepository) FindAll(ctx context.Context, limit int, offset int64) ([]*model.Schedule, error) {
	if m.findAllFunc != nil {
		return m.findAllFunc(ctx, limit, offset)
	}
	return []*model.Schedule{}, nil
}

func (m *mockScheduleRepository) Update(ctx context.Context, id string, sc *model.Schedule) (*mongo.UpdateResult, error) {
	return &mongo.UpdateResult{MatchedCount: 1}, nil
}

func (m *mockScheduleRepository) Delete(ctx context.Context, id string) error {
	return nil
}

func (m *mockScheduleRepository) Count(ctx context.Context) (int64, error) {
	if m.countFunc != nil {
		return m.countFunc(ctx)
	}
	return 0, nil
}

func (m *mockScheduleRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return fn(nil)
}

func testConfig() *config.Config {
	log := logger.New(logger.Config{
		Level:   "error",
		Format:  logger.JSON,
		Service: "test",
	})
	return &config.Config{
		Log:         log,
		ReadTimeout: 5 * time.Second,
	}
}

func newTestScheduleService(repo *mockScheduleRepository) *scheduleService {
	cfg := testConfig()
	return &scheduleService{
		repo:      repo,
		validator: validator.NewScheduleValidator(cfg.Log),
		cfg:       cfg,
	}
}

func validSchedule() *model.Schedule {
	return &model.Schedule{
		DoctorID:  testDoctorID,
		Weekday:   model.Monday,
		StartTime: "09:00",
		EndTime:   "17:00",
	}
}

func TestCreate_Success(t *testing.T) {
	created := false
	repo := &mockScheduleRepository{
		createFunc: func(ctx context.Context, sc *model.Schedule) error {
			created = true
			return nil
		},
	}
	svc := newTestScheduleService(repo)

	if err := svc.Create(context.Background(), validSchedule()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created {
		t.Errorf("expected the schedule to be written")
	}
}

func TestCreate_RejectsEndBeforeStart(t *testing.T) {
	svc := newTestScheduleService(&mockScheduleRepository{})

	sc := validSchedule()
	sc.StartTime = "17:00"
	sc.EndTime = "09:00"

	err := svc.Create(context.Background(), sc)
	if !apperrors.IsCode(err, apperrors.CodeValidation) {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}
}

func TestCreate_RejectsExactDuplicate(t *testing.T) {
	repo := &mockScheduleRepository{
		findByDoctorAndWeekdayFunc: func(ctx context.Context, doctorID string, weekday model.Weekday) ([]*model.Schedule, error) {
			return []*model.Schedule{
				{ID: testScheduleID, DoctorID: doctorID, Weekday: weekday, StartTime: "09:00", EndTime: "17:00"},
			}, nil
		},
	}
	svc := newTestScheduleService(repo)

	err := svc.Create(context.Background(), validSchedule())
	if !apperrors.IsCode(err, apperrors.CodeConflict) {
		t.Fatalf("expected CONFLICT for an identical schedule, got %v", err)
	}
}

func TestCreate_RejectsOverlap(t *testing.T) {
	repo := &mockScheduleRepository{
		findByDoctorAndWeekdayFunc: func(ctx context.Context, doctorID string, weekday model.Weekday) ([]*model.Schedule, error) {
			return []*model.Schedule{
				{ID: testScheduleID, DoctorID: doctorID, Weekday: weekday, StartTime: "13:00", EndTime: "18:00"},
			}, nil
		},
	}
	svc := newTestScheduleService(repo)

	err := svc.Create(context.Background(), validSchedule())
	if !apperrors.IsCode(err, apperrors.CodeConflict) {
		t.Fatalf("expected CONFLICT for an overlapping schedule, got %v", err)
	}
}

func TestCreate_AllowsAdjacentRanges(t *testing.T) {
	repo := &mockScheduleRepository{
		findByDoctorAndWeekdayFunc: func(ctx context.Context, doctorID string, weekday model.Weekday) ([]*model.Schedule, error) {
			// Ends exactly where the new one starts.
			return []*model.Schedule{
				{ID: testScheduleID, DoctorID: doctorID, Weekday: weekday, StartTime: "07:00", EndTime: "09:00"},
			}, nil
		},
	}
	svc := newTestScheduleService(repo)

	if err := svc.Create(context.Background(), validSchedule()); err != nil {
		t.Fatalf("adjacent ranges should not conflict: %v", err)
	}
}

func TestCheckScheduleConflicts_ExcludesSelfOnUpdate(t *testing.T) {
	sc := validSchedule()
	sc.ID = testScheduleID
	existing := []*model.Schedule{
		{ID: testScheduleID, StartTime: "09:00", EndTime: "17:00"},
	}

	if err := checkScheduleConflicts(sc, existing, testScheduleID); err != nil {
		t.Fatalf("a schedule must not conflict with itself during update: %v", err)
	}
}

func TestGetAll_NormalizesPagination(t *testing.T) {
	var seenLimit int
	repo := &mockScheduleRepository{
		findAllFunc: func(ctx context.Context, limit int, offset int64) ([]*model.Schedule, error) {
			seenLimit = limit
			return []*model.Schedule{}, nil
		},
		countFunc: func(ctx context.Context) (int64, error) {
			return 0, nil
		},
	}
	svc := newTestScheduleService(repo)

	if _, _, err := svc.GetAll(context.Background(), -5, -1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seenLimit <= 0 {
		t.Errorf("negative limit should be normalized to a positive default, got %d", seenLimit)
	}
}
