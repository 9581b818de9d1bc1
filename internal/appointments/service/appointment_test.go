package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	appointmenterrors "clinicbook/internal/appointments/errors"
	"clinicbook/internal/appointments/repository"
	"clinicbook/internal/appointments/validator"
	"clinicbook/pkg/config"
	mongotx "clinicbook/pkg/db/mongo"
	apperrors "clinicbook/pkg/errors"
	"clinicbook/pkg/kafka"
	"clinicbook/pkg/logger"
	"clinicbook/pkg/model"
)

const (
	testDoctorID    = "64b0000000000000000000c1"
	testDoctorID2   = "64b0000000000000000000c2"
	testPatientID   = "64b0000000000000000000f1"
	testServiceID   = "64b0000000000000000000b1"
	testSlotID      = "64b0000000000000000000d1"
	testSlotID2     = "64b0000000000000000000d2"
	testApptID      = "64b0000000000000000000e1"
	otherPatientID  = "64b0000000000000000000f2"
)

type mockAppointmentRepository struct {
	createFunc                 func(ctx context.Context, appt *model.Appointment) error
	findByIDFunc               func(ctx context.Context, id string) (*model.Appointment, error)
	findFunc                   func(ctx context.Context, filter repository.Filter, limit int, offset int64) ([]*model.Appointment, error)
	countFunc                  func(ctx context.Context, filter repository.Filter) (int64, error)
	findLiveByDoctorWindowFunc func(ctx context.Context, doctorID string, start, end time.Time, excludeID string) ([]*model.Appointment, error)
	findExpiredPendingFunc     func(ctx context.Context, now time.Time) ([]*model.Appointment, error)
	updateStatusFunc           func(ctx context.Context, id string, from, to model.AppointmentStatus) error
	reassignFunc               func(ctx context.Context, id string, from model.AppointmentStatus, appt *model.Appointment) error
	findSlotByIDFunc           func(ctx context.Context, slotID string) (*model.AppointmentSlot, error)
	setSlotsBookedFunc         func(ctx context.Context, doctorID string, start, end time.Time, booked bool) error
}

func (m *mockAppointmentRepository) Create(ctx context.Context, appt *model.Appointment) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, appt)
	}
	appt.ID = testApptID
	return nil
}

func (m *mockAppointmentRepository) FindByID(ctx context.Context, id string) (*model.Appointment, error) {
	if m.findByIDFunc != nil {
		return m.findByIDFunc(ctx, id)
	}
	return nil, appointmenterrors.ErrNotFound
}

func (m *mockAppointmentRepository) Find(ctx context.Context, filter repository.Filter, limit int, offset int64) ([]*model.Appointment, error) {
	if m.findFunc != nil {
		return m.findFunc(ctx, filter, limit, offset)
	}
	return []*model.Appointment{}, nil
}

func (m *mockAppointmentRepository) Count(ctx context.Context, filter repository.Filter) (int64, error) {
	if m.countFunc != nil {
		return m.countFunc(ctx, filter)
	}
	return 0, nil
}

func (m *mockAppointmentRepository) FindLiveByDoctorWindow(ctx context.Context, doctorID string, start, end time.Time, excludeID string) ([]*model.Appointment, error) {
	if m.findLiveByDoctorWindowFunc != nil {
		return m.findLiveByDoctorWindowFunc(ctx, doctorID, start, end, excludeID)
	}
	return []*model.Appointment{}, nil
}

func (m *mockAppointmentRepository) FindExpiredPending(ctx context.Context, now time.Time) ([]*model.Appointment, error) {
	if m.findExpiredPendingFunc != nil {
		return m.findExpiredPendingFunc(ctx, now)
	}
	return []*model.Appointment{}, nil
}

func (m *mockAppointmentRepository) UpdateStatus(ctx context.Context, id string, from, to model.AppointmentStatus) error {
	if m.updateStatusFunc != nil {
		return m.updateStatusFunc(ctx, id, from, to)
	}
	return nil
}

func (m *mockAppointmentRepository) Reassign(ctx context.Context, id string, from model.AppointmentStatus, appt *model.Appointment) error {
	if m.reassignFunc != nil {
		return m.reassignFunc(ctx, id, from, appt)
	}
	return nil
}

func (m *mockAppointmentRepository) FindSlotByID(ctx context.Context, slotID string) (*model.AppointmentSlot, error) {
	if m.findSlotByIDFunc != nil {
		return m.findSlotByIDFunc(ctx, slotID)
	}
	return nil, appointmenterrors.ErrSlotNotFound
}

func (m *mockAppointmentRepository) SetSlotsBooked(ctx context.Context, doctorID string, start, end time.Time, booked bool) error {
	if m.setSlotsBookedFunc != nil {
		return m.setSlotsBookedFunc(ctx, doctorID, start, end, booked)
	}
	return nil
}

func (m *mockAppointmentRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return fn(nil)
}

type mockDoctorLockRepository struct {
	mu       sync.Mutex
	held     map[string]bool
	acquired []string
	released []string

	acquireFunc func(ctx context.Context, doctorID string, ttl time.Duration) error
}

func newMockDoctorLockRepository() *mockDoctorLockRepository {
	return &mockDoctorLockRepository{held: map[string]bool{}}
}

func (m *mockDoctorLockRepository) Acquire(ctx context.Context, doctorID string, ttl time.Duration) error {
	if m.acquireFunc != nil {
		return m.acquireFunc(ctx, doctorID, ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[doctorID] {
		return appointmenterrors.ErrLockHeld
	}
	m.held[doctorID] = true
	m.acquired = append(m.acquired, doctorID)
	return nil
}

func (m *mockDoctorLockRepository) Release(ctx context.Context, doctorID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.held, doctorID)
	m.released = append(m.released, doctorID)
	return nil
}

type mockDirectory struct {
	findPatientFunc func(ctx context.Context, id string) (*model.Patient, error)
	findServiceFunc func(ctx context.Context, id string) (*model.Service, error)
}

func (m *mockDirectory) FindDoctorByID(ctx context.Context, id string) (*model.Doctor, error) {
	return &model.Doctor{ID: id}, nil
}

func (m *mockDirectory) FindPatientByID(ctx context.Context, id string) (*model.Patient, error) {
	if m.findPatientFunc != nil {
		return m.findPatientFunc(ctx, id)
	}
	return &model.Patient{ID: id}, nil
}

func (m *mockDirectory) FindServiceByID(ctx context.Context, id string) (*model.Service, error) {
	if m.findServiceFunc != nil {
		return m.findServiceFunc(ctx, id)
	}
	return &model.Service{ID: id, DurationMinutes: 30, Price: 250}, nil
}

type capturingPublisher struct {
	mu       sync.Mutex
	messages []kafka.Message
}

func (p *capturingPublisher) Publish(ctx context.Context, msg kafka.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
	return nil
}

func (p *capturingPublisher) eventTypes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, len(p.messages))
	for i, msg := range p.messages {
		types[i] = msg.GetEventType()
	}
	return types
}

func testConfig() *config.Config {
	log := logger.New(logger.Config{
		Level:   "error",
		Format:  logger.JSON,
		Service: "test",
	})
	return &config.Config{
		Log:                  log,
		ReadTimeout:          5 * time.Second,
		WriteTimeout:         5 * time.Second,
		DoctorLockTTL:        time.Second,
		DoctorLockRetryDelay: time.Millisecond,
		DoctorLockWait:       50 * time.Millisecond,
	}
}

func newTestService(
	repo *mockAppointmentRepository,
	locks *mockDoctorLockRepository,
	directory *mockDirectory,
	publisher EventPublisher,
) *appointmentService {
	cfg := testConfig()
	return &appointmentService{
		repo:      repo,
		lockRepo:  locks,
		directory: directory,
		validator: validator.NewAppointmentValidator(cfg.Log),
		publisher: publisher,
		cfg:       cfg,
	}
}

func openSlot() *model.AppointmentSlot {
	start := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	return &model.AppointmentSlot{
		ID:         testSlotID,
		ScheduleID: "64b0000000000000000000a1",
		ServiceID:  testServiceID,
		DoctorID:   testDoctorID,
		StartTime:  start,
		EndTime:    start.Add(30 * time.Minute),
		IsActive:   true,
	}
}

func patientActor() model.Actor {
	return model.Actor{Role: model.RolePatient, SubjectID: testPatientID}
}

func TestBook_Success(t *testing.T) {
	slot := openSlot()
	var bookedWindow []bool
	repo := &mockAppointmentRepository{
		findSlotByIDFunc: func(ctx context.Context, slotID string) (*model.AppointmentSlot, error) {
			return slot, nil
		},
		setSlotsBookedFunc: func(ctx context.Context, doctorID string, start, end time.Time, booked bool) error {
			bookedWindow = append(bookedWindow, booked)
			return nil
		},
	}
	locks := newMockDoctorLockRepository()
	publisher := &capturingPublisher{}
	svc := newTestService(repo, locks, &mockDirectory{}, publisher)

	appt, err := svc.Book(context.Background(), &model.BookRequest{SlotID: testSlotID}, patientActor())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if appt.Status != model.AppointmentPending {
		t.Errorf("new appointment status = %s, want pending", appt.Status)
	}
	if appt.Price != 250 {
		t.Errorf("price should be snapshotted from the service, got %v", appt.Price)
	}
	if appt.DoctorID != testDoctorID || !appt.StartTime.Equal(slot.StartTime) {
		t.Errorf("appointment should copy the slot's doctor and window")
	}
	if len(bookedWindow) != 1 || !bookedWindow[0] {
		t.Errorf("expected one is_booked=true rewrite, got %v", bookedWindow)
	}
	if len(locks.acquired) != 1 || locks.acquired[0] != testDoctorID {
		t.Errorf("expected the doctor's lock to be taken, got %v", locks.acquired)
	}
	if len(locks.released) != 1 {
		t.Errorf("expected the doctor's lock to be released, got %v", locks.released)
	}

	types := publisher.eventTypes()
	if len(types) != 1 || types[0] != EventAppointmentCreated {
		t.Errorf("expected one %s event, got %v", EventAppointmentCreated, types)
	}
}

func TestBook_OnlyPatients(t *testing.T) {
	svc := newTestService(&mockAppointmentRepository{}, newMockDoctorLockRepository(), &mockDirectory{}, nil)

	for _, role := range []model.Role{model.RoleDoctor, model.RoleAdmin, model.RoleSuperAdmin} {
		_, err := svc.Book(context.Background(), &model.BookRequest{SlotID: testSlotID}, model.Actor{Role: role, SubjectID: testDoctorID})
		if !apperrors.IsCode(err, apperrors.CodeUnauthorized) {
			t.Errorf("role %s: expected UNAUTHORIZED, got %v", role, err)
		}
	}
}

func TestBook_InactiveSlot(t *testing.T) {
	slot := openSlot()
	slot.IsActive = false
	repo := &mockAppointmentRepository{
		findSlotByIDFunc: func(ctx context.Context, slotID string) (*model.AppointmentSlot, error) {
			return slot, nil
		},
	}
	svc := newTestService(repo, newMockDoctorLockRepository(), &mockDirectory{}, nil)

	_, err := svc.Book(context.Background(), &model.BookRequest{SlotID: testSlotID}, patientActor())
	if !apperrors.IsCode(err, apperrors.CodeConflict) {
		t.Fatalf("expected CONFLICT for an inactive slot, got %v", err)
	}
}

func TestBook_OverlappingLiveAppointment(t *testing.T) {
	slot := openSlot()
	created := 0
	repo := &mockAppointmentRepository{
		findSlotByIDFunc: func(ctx context.Context, slotID string) (*model.AppointmentSlot, error) {
			return slot, nil
		},
		findLiveByDoctorWindowFunc: func(ctx context.Context, doctorID string, start, end time.Time, excludeID string) ([]*model.Appointment, error) {
			return []*model.Appointment{
				{ID: "existing", StartTime: slot.StartTime, EndTime: slot.EndTime, Status: model.AppointmentConfirmed},
			}, nil
		},
		createFunc: func(ctx context.Context, appt *model.Appointment) error {
			created++
			return nil
		},
	}
	svc := newTestService(repo, newMockDoctorLockRepository(), &mockDirectory{}, nil)

	_, err := svc.Book(context.Background(), &model.BookRequest{SlotID: testSlotID}, patientActor())
	if !apperrors.IsCode(err, apperrors.CodeConflict) {
		t.Fatalf("expected CONFLICT when the window is taken, got %v", err)
	}
	if created != 0 {
		t.Errorf("no appointment should be created on conflict")
	}
}

func TestBook_LockContentionTimesOut(t *testing.T) {
	slot := openSlot()
	repo := &mockAppointmentRepository{
		findSlotByIDFunc: func(ctx context.Context, slotID string) (*model.AppointmentSlot, error) {
			return slot, nil
		},
	}
	locks := newMockDoctorLockRepository()
	locks.acquireFunc = func(ctx context.Context, doctorID string, ttl time.Duration) error {
		return appointmenterrors.ErrLockHeld
	}
	svc := newTestService(repo, locks, &mockDirectory{}, nil)

	_, err := svc.Book(context.Background(), &model.BookRequest{SlotID: testSlotID}, patientActor())
	if !apperrors.IsCode(err, apperrors.CodeConflict) {
		t.Fatalf("expected CONFLICT after lock wait expires, got %v", err)
	}
}

func TestCanTransition_Totality(t *testing.T) {
	statuses := []model.AppointmentStatus{
		model.AppointmentPending,
		model.AppointmentConfirmed,
		model.AppointmentCompleted,
		model.AppointmentCancelled,
		model.AppointmentRejected,
	}

	allowed := map[[2]model.AppointmentStatus]bool{
		{model.AppointmentPending, model.AppointmentConfirmed}:   true,
		{model.AppointmentPending, model.AppointmentCancelled}:   true,
		{model.AppointmentPending, model.AppointmentRejected}:    true,
		{model.AppointmentConfirmed, model.AppointmentCompleted}: true,
		{model.AppointmentConfirmed, model.AppointmentCancelled}: true,
	}

	for _, from := range statuses {
		for _, to := range statuses {
			want := allowed[[2]model.AppointmentStatus{from, to}]
			if got := CanTransition(from, to); got != want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func pendingAppointment() *model.Appointment {
	start := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	return &model.Appointment{
		ID:        testApptID,
		SlotID:    testSlotID,
		PatientID: testPatientID,
		DoctorID:  testDoctorID,
		StartTime: start,
		EndTime:   start.Add(30 * time.Minute),
		Status:    model.AppointmentPending,
	}
}

func repoWithAppointment(appt *model.Appointment) *mockAppointmentRepository {
	return &mockAppointmentRepository{
		findByIDFunc: func(ctx context.Context, id string) (*model.Appointment, error) {
			copy := *appt
			return &copy, nil
		},
	}
}

func TestUpdateStatus_DoctorCompletingPendingIsInvalidTransition(t *testing.T) {
	// The doctor owns the appointment and may request completed, so
	// authorization passes and the missing pending->completed edge is what
	// gets reported.
	repo := repoWithAppointment(pendingAppointment())
	svc := newTestService(repo, newMockDoctorLockRepository(), &mockDirectory{}, nil)

	err := svc.UpdateStatus(context.Background(), testApptID, model.AppointmentCompleted,
		model.Actor{Role: model.RoleDoctor, SubjectID: testDoctorID})
	if !apperrors.IsCode(err, apperrors.CodeInvalidTransition) {
		t.Fatalf("expected INVALID_TRANSITION, got %v", err)
	}
}

func TestUpdateStatus_PatientMayOnlyCancel(t *testing.T) {
	repo := repoWithAppointment(pendingAppointment())
	svc := newTestService(repo, newMockDoctorLockRepository(), &mockDirectory{}, nil)

	err := svc.UpdateStatus(context.Background(), testApptID, model.AppointmentConfirmed, patientActor())
	if !apperrors.IsCode(err, apperrors.CodeUnauthorized) {
		t.Fatalf("expected UNAUTHORIZED for patient confirming, got %v", err)
	}
}

func TestUpdateStatus_PatientCannotCancelOthers(t *testing.T) {
	repo := repoWithAppointment(pendingAppointment())
	svc := newTestService(repo, newMockDoctorLockRepository(), &mockDirectory{}, nil)

	err := svc.UpdateStatus(context.Background(), testApptID, model.AppointmentCancelled,
		model.Actor{Role: model.RolePatient, SubjectID: otherPatientID})
	if !apperrors.IsCode(err, apperrors.CodeUnauthorized) {
		t.Fatalf("expected UNAUTHORIZED, got %v", err)
	}
}

func TestUpdateStatus_CancelReleasesWindow(t *testing.T) {
	var releasedBooked []bool
	repo := repoWithAppointment(pendingAppointment())
	repo.setSlotsBookedFunc = func(ctx context.Context, doctorID string, start, end time.Time, booked bool) error {
		releasedBooked = append(releasedBooked, booked)
		return nil
	}
	locks := newMockDoctorLockRepository()
	publisher := &capturingPublisher{}
	svc := newTestService(repo, locks, &mockDirectory{}, publisher)

	err := svc.UpdateStatus(context.Background(), testApptID, model.AppointmentCancelled, patientActor())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(releasedBooked) != 1 || releasedBooked[0] {
		t.Errorf("cancelling should rewrite the window to unbooked, got %v", releasedBooked)
	}
	if len(locks.acquired) != 1 {
		t.Errorf("releasing a window must run under the doctor lock")
	}

	types := publisher.eventTypes()
	if len(types) != 1 || types[0] != EventAppointmentStatusChanged {
		t.Errorf("expected %s event, got %v", EventAppointmentStatusChanged, types)
	}
}

func TestUpdateStatus_ConfirmDoesNotTouchSlots(t *testing.T) {
	slotWrites := 0
	repo := repoWithAppointment(pendingAppointment())
	repo.setSlotsBookedFunc = func(ctx context.Context, doctorID string, start, end time.Time, booked bool) error {
		slotWrites++
		return nil
	}
	locks := newMockDoctorLockRepository()
	svc := newTestService(repo, locks, &mockDirectory{}, nil)

	err := svc.UpdateStatus(context.Background(), testApptID, model.AppointmentConfirmed,
		model.Actor{Role: model.RoleAdmin})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if slotWrites != 0 {
		t.Errorf("confirming keeps the window claimed, no slot rewrite expected")
	}
	if len(locks.acquired) != 1 || len(locks.released) != 1 {
		t.Errorf("every transition runs under the doctor lock, acquired=%v released=%v",
			locks.acquired, locks.released)
	}
}

func TestUpdateStatus_StaleConfirmAfterCancelConflicts(t *testing.T) {
	// A confirm that read pending can lose the race with a cancel committing
	// under the doctor lock. The re-read inside the transaction sees
	// cancelled, and the confirm must not resurrect the appointment over an
	// interval another booking may have claimed.
	reads := 0
	statusWrites := 0
	repo := &mockAppointmentRepository{
		findByIDFunc: func(ctx context.Context, id string) (*model.Appointment, error) {
			reads++
			appt := pendingAppointment()
			if reads > 1 {
				appt.Status = model.AppointmentCancelled
			}
			return appt, nil
		},
		updateStatusFunc: func(ctx context.Context, id string, from, to model.AppointmentStatus) error {
			statusWrites++
			return nil
		},
	}
	publisher := &capturingPublisher{}
	svc := newTestService(repo, newMockDoctorLockRepository(), &mockDirectory{}, publisher)

	err := svc.UpdateStatus(context.Background(), testApptID, model.AppointmentConfirmed,
		model.Actor{Role: model.RoleAdmin})
	if !apperrors.IsCode(err, apperrors.CodeConflict) {
		t.Fatalf("expected CONFLICT for a stale transition, got %v", err)
	}
	if statusWrites != 0 {
		t.Errorf("a stale transition must not write, got %d status writes", statusWrites)
	}
	if len(publisher.messages) != 0 {
		t.Errorf("a rejected transition must not publish events")
	}
}

func TestUpdateStatus_ConditionalWriteMissConflicts(t *testing.T) {
	// Belt for the re-read: even if the in-transaction read raced, the
	// compare-and-set write matches nothing and the transaction aborts.
	repo := repoWithAppointment(pendingAppointment())
	repo.updateStatusFunc = func(ctx context.Context, id string, from, to model.AppointmentStatus) error {
		if from != model.AppointmentPending || to != model.AppointmentConfirmed {
			t.Errorf("expected a pending->confirmed conditional write, got %s->%s", from, to)
		}
		return fmt.Errorf("%w: %s", appointmenterrors.ErrStatusChanged, id)
	}
	svc := newTestService(repo, newMockDoctorLockRepository(), &mockDirectory{}, nil)

	err := svc.UpdateStatus(context.Background(), testApptID, model.AppointmentConfirmed,
		model.Actor{Role: model.RoleAdmin})
	if !apperrors.IsCode(err, apperrors.CodeConflict) {
		t.Fatalf("expected CONFLICT when the conditional write misses, got %v", err)
	}
}

func TestUpdateStatus_UnknownStatus(t *testing.T) {
	svc := newTestService(&mockAppointmentRepository{}, newMockDoctorLockRepository(), &mockDirectory{}, nil)

	err := svc.UpdateStatus(context.Background(), testApptID, "archived", model.Actor{Role: model.RoleAdmin})
	if !apperrors.IsCode(err, apperrors.CodeInvalidInput) {
		t.Fatalf("expected INVALID_INPUT for unknown status, got %v", err)
	}
}

func TestReschedule_Success(t *testing.T) {
	appt := pendingAppointment()
	appt.Status = model.AppointmentConfirmed

	newStart := time.Date(2026, 1, 6, 14, 0, 0, 0, time.UTC)
	newSlot := &model.AppointmentSlot{
		ID:        testSlotID2,
		DoctorID:  testDoctorID2,
		StartTime: newStart,
		EndTime:   newStart.Add(30 * time.Minute),
		IsActive:  true,
	}

	type slotWrite struct {
		doctorID string
		booked   bool
	}
	var writes []slotWrite
	var excludeSeen string
	var reassigned *model.Appointment
	var reassignFrom model.AppointmentStatus

	repo := repoWithAppointment(appt)
	repo.findSlotByIDFunc = func(ctx context.Context, slotID string) (*model.AppointmentSlot, error) {
		return newSlot, nil
	}
	repo.findLiveByDoctorWindowFunc = func(ctx context.Context, doctorID string, start, end time.Time, excludeID string) ([]*model.Appointment, error) {
		excludeSeen = excludeID
		return []*model.Appointment{}, nil
	}
	repo.reassignFunc = func(ctx context.Context, id string, from model.AppointmentStatus, updated *model.Appointment) error {
		reassignFrom = from
		reassigned = updated
		return nil
	}
	repo.setSlotsBookedFunc = func(ctx context.Context, doctorID string, start, end time.Time, booked bool) error {
		writes = append(writes, slotWrite{doctorID: doctorID, booked: booked})
		return nil
	}

	locks := newMockDoctorLockRepository()
	publisher := &capturingPublisher{}
	svc := newTestService(repo, locks, &mockDirectory{}, publisher)

	updated, err := svc.Reschedule(context.Background(), testApptID, testSlotID2, patientActor())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if updated.Status != model.AppointmentPending {
		t.Errorf("rescheduled appointment should return to pending, got %s", updated.Status)
	}
	if updated.DoctorID != testDoctorID2 || updated.SlotID != testSlotID2 {
		t.Errorf("appointment should move to the new slot's doctor and id")
	}
	if excludeSeen != testApptID {
		t.Errorf("conflict check must exclude the appointment's own claim, got %q", excludeSeen)
	}
	if reassigned == nil {
		t.Fatalf("expected a reassign write")
	}
	if reassignFrom != model.AppointmentConfirmed {
		t.Errorf("reassign must be conditional on the status read before the locks, got %s", reassignFrom)
	}

	if len(writes) != 2 {
		t.Fatalf("expected old release and new claim, got %v", writes)
	}
	if writes[0].doctorID != testDoctorID || writes[0].booked {
		t.Errorf("first write should release the old doctor's window, got %+v", writes[0])
	}
	if writes[1].doctorID != testDoctorID2 || !writes[1].booked {
		t.Errorf("second write should claim the new doctor's window, got %+v", writes[1])
	}

	// Both doctors' locks, ascending.
	if len(locks.acquired) != 2 || locks.acquired[0] != testDoctorID || locks.acquired[1] != testDoctorID2 {
		t.Errorf("expected both doctor locks in ascending order, got %v", locks.acquired)
	}

	types := publisher.eventTypes()
	if len(types) != 1 || types[0] != EventAppointmentRescheduled {
		t.Errorf("expected %s event, got %v", EventAppointmentRescheduled, types)
	}
}

func TestReschedule_OccupiedTargetLeavesAppointmentUntouched(t *testing.T) {
	appt := pendingAppointment()
	newSlot := &model.AppointmentSlot{
		ID:        testSlotID2,
		DoctorID:  testDoctorID2,
		StartTime: time.Date(2026, 1, 6, 14, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2026, 1, 6, 14, 30, 0, 0, time.UTC),
		IsActive:  true,
	}

	reassigns, slotWrites := 0, 0
	repo := repoWithAppointment(appt)
	repo.findSlotByIDFunc = func(ctx context.Context, slotID string) (*model.AppointmentSlot, error) {
		return newSlot, nil
	}
	repo.findLiveByDoctorWindowFunc = func(ctx context.Context, doctorID string, start, end time.Time, excludeID string) ([]*model.Appointment, error) {
		return []*model.Appointment{{ID: "other", Status: model.AppointmentPending}}, nil
	}
	repo.reassignFunc = func(ctx context.Context, id string, from model.AppointmentStatus, updated *model.Appointment) error {
		reassigns++
		return nil
	}
	repo.setSlotsBookedFunc = func(ctx context.Context, doctorID string, start, end time.Time, booked bool) error {
		slotWrites++
		return nil
	}
	svc := newTestService(repo, newMockDoctorLockRepository(), &mockDirectory{}, nil)

	_, err := svc.Reschedule(context.Background(), testApptID, testSlotID2, patientActor())
	if !apperrors.IsCode(err, apperrors.CodeConflict) {
		t.Fatalf("expected CONFLICT, got %v", err)
	}
	if reassigns != 0 || slotWrites != 0 {
		t.Errorf("failed reschedule must not write anything, reassigns=%d slotWrites=%d", reassigns, slotWrites)
	}
}

func TestReschedule_TerminalAppointment(t *testing.T) {
	appt := pendingAppointment()
	appt.Status = model.AppointmentCompleted
	svc := newTestService(repoWithAppointment(appt), newMockDoctorLockRepository(), &mockDirectory{}, nil)

	_, err := svc.Reschedule(context.Background(), testApptID, testSlotID2, patientActor())
	if !apperrors.IsCode(err, apperrors.CodeInvalidTransition) {
		t.Fatalf("expected INVALID_TRANSITION for a terminal appointment, got %v", err)
	}
}

func TestReschedule_SameSlot(t *testing.T) {
	appt := pendingAppointment()
	repo := repoWithAppointment(appt)
	repo.findSlotByIDFunc = func(ctx context.Context, slotID string) (*model.AppointmentSlot, error) {
		return &model.AppointmentSlot{ID: testSlotID, DoctorID: testDoctorID, IsActive: true}, nil
	}
	svc := newTestService(repo, newMockDoctorLockRepository(), &mockDirectory{}, nil)

	_, err := svc.Reschedule(context.Background(), testApptID, testSlotID, patientActor())
	if !apperrors.IsCode(err, apperrors.CodeInvalidInput) {
		t.Fatalf("expected INVALID_INPUT for same-slot reschedule, got %v", err)
	}
}

func TestReschedule_StatusChangedUnderneathConflicts(t *testing.T) {
	// The appointment was cancelled between the pre-lock read and the
	// transaction; the conditional reassign misses and nothing else writes.
	slotWrites := 0
	repo := repoWithAppointment(pendingAppointment())
	repo.findSlotByIDFunc = func(ctx context.Context, slotID string) (*model.AppointmentSlot, error) {
		return &model.AppointmentSlot{
			ID:        testSlotID2,
			DoctorID:  testDoctorID2,
			StartTime: time.Date(2026, 1, 6, 14, 0, 0, 0, time.UTC),
			EndTime:   time.Date(2026, 1, 6, 14, 30, 0, 0, time.UTC),
			IsActive:  true,
		}, nil
	}
	repo.reassignFunc = func(ctx context.Context, id string, from model.AppointmentStatus, updated *model.Appointment) error {
		return fmt.Errorf("%w: %s", appointmenterrors.ErrStatusChanged, id)
	}
	repo.setSlotsBookedFunc = func(ctx context.Context, doctorID string, start, end time.Time, booked bool) error {
		slotWrites++
		return nil
	}
	svc := newTestService(repo, newMockDoctorLockRepository(), &mockDirectory{}, nil)

	_, err := svc.Reschedule(context.Background(), testApptID, testSlotID2, patientActor())
	if !apperrors.IsCode(err, apperrors.CodeConflict) {
		t.Fatalf("expected CONFLICT, got %v", err)
	}
	if slotWrites != 0 {
		t.Errorf("a missed reassign must not touch slots, got %d writes", slotWrites)
	}
}

func TestList_ScopesByRole(t *testing.T) {
	var captured repository.Filter
	repo := &mockAppointmentRepository{
		findFunc: func(ctx context.Context, filter repository.Filter, limit int, offset int64) ([]*model.Appointment, error) {
			captured = filter
			return []*model.Appointment{}, nil
		},
	}
	svc := newTestService(repo, newMockDoctorLockRepository(), &mockDirectory{}, nil)

	if _, _, err := svc.List(context.Background(), patientActor(), "", otherPatientID, 10, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if captured.PatientID != testPatientID {
		t.Errorf("patients must be scoped to their own appointments, got %q", captured.PatientID)
	}

	doctor := model.Actor{Role: model.RoleDoctor, SubjectID: testDoctorID}
	if _, _, err := svc.List(context.Background(), doctor, "", "", 10, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if captured.DoctorID != testDoctorID {
		t.Errorf("doctors must be scoped to their own appointments, got %q", captured.DoctorID)
	}

	admin := model.Actor{Role: model.RoleAdmin}
	if _, _, err := svc.List(context.Background(), admin, "", otherPatientID, 10, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if captured.PatientID != otherPatientID {
		t.Errorf("admins may filter by any patient, got %q", captured.PatientID)
	}
}

func TestGetByID_RoleScoping(t *testing.T) {
	svc := newTestService(repoWithAppointment(pendingAppointment()), newMockDoctorLockRepository(), &mockDirectory{}, nil)

	if _, err := svc.GetByID(context.Background(), testApptID, patientActor()); err != nil {
		t.Errorf("owner patient should see the appointment: %v", err)
	}

	_, err := svc.GetByID(context.Background(), testApptID, model.Actor{Role: model.RolePatient, SubjectID: otherPatientID})
	if !apperrors.IsCode(err, apperrors.CodeUnauthorized) {
		t.Errorf("foreign patient should be rejected, got %v", err)
	}

	if _, err := svc.GetByID(context.Background(), testApptID, model.Actor{Role: model.RoleAdmin}); err != nil {
		t.Errorf("admin should see any appointment: %v", err)
	}
}

// overdueAppointment builds a pending appointment whose window ended well
// before the sweep's notion of now.
func overdueAppointment(id, doctorID string) *model.Appointment {
	end := time.Now().UTC().Add(-2 * time.Hour)
	return &model.Appointment{
		ID:        id,
		SlotID:    testSlotID,
		PatientID: testPatientID,
		DoctorID:  doctorID,
		StartTime: end.Add(-30 * time.Minute),
		EndTime:   end,
		Status:    model.AppointmentPending,
	}
}

// expireRepo serves FindByID from the given appointments so the sweep's
// in-transaction re-read sees their current state.
func expireRepo(appts ...*model.Appointment) *mockAppointmentRepository {
	byID := make(map[string]*model.Appointment, len(appts))
	for _, appt := range appts {
		byID[appt.ID] = appt
	}
	return &mockAppointmentRepository{
		findExpiredPendingFunc: func(ctx context.Context, now time.Time) ([]*model.Appointment, error) {
			out := make([]*model.Appointment, len(appts))
			for i, appt := range appts {
				copy := *appt
				out[i] = &copy
			}
			return out, nil
		},
		findByIDFunc: func(ctx context.Context, id string) (*model.Appointment, error) {
			appt, ok := byID[id]
			if !ok {
				return nil, appointmenterrors.ErrNotFound
			}
			copy := *appt
			return &copy, nil
		},
	}
}

func TestExpireOverdue_CancelsAndReleases(t *testing.T) {
	first := overdueAppointment(testApptID, testDoctorID)
	second := overdueAppointment("64b0000000000000000000e2", testDoctorID2)

	var cancelledIDs []string
	released := 0
	repo := expireRepo(first, second)
	repo.updateStatusFunc = func(ctx context.Context, id string, from, to model.AppointmentStatus) error {
		if from != model.AppointmentPending || to != model.AppointmentCancelled {
			t.Errorf("expired appointments should move pending->cancelled, got %s->%s", from, to)
		}
		cancelledIDs = append(cancelledIDs, id)
		return nil
	}
	repo.setSlotsBookedFunc = func(ctx context.Context, doctorID string, start, end time.Time, booked bool) error {
		if booked {
			t.Errorf("expiration must release windows, not claim them")
		}
		released++
		return nil
	}
	locks := newMockDoctorLockRepository()
	publisher := &capturingPublisher{}
	svc := newTestService(repo, locks, &mockDirectory{}, publisher)

	expired, err := svc.ExpireOverdue(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if expired != 2 {
		t.Errorf("expected 2 expirations, got %d", expired)
	}
	if len(cancelledIDs) != 2 {
		t.Errorf("expected both appointments cancelled, got %v", cancelledIDs)
	}
	if released != 2 {
		t.Errorf("expected both windows released, got %d", released)
	}
	if len(locks.acquired) != 2 {
		t.Errorf("each doctor group needs its own lock, got %v", locks.acquired)
	}

	types := publisher.eventTypes()
	if len(types) != 2 {
		t.Fatalf("expected 2 expired events, got %v", types)
	}
	for _, typ := range types {
		if typ != EventAppointmentExpired {
			t.Errorf("expected %s events, got %v", EventAppointmentExpired, types)
		}
	}
}

func TestExpireOverdue_SkipsAppointmentsConfirmedSinceScan(t *testing.T) {
	// The second candidate was confirmed between the overdue scan and the
	// locked transaction. The re-read sees the new status and the sweep must
	// leave it and its window alone.
	stillPending := overdueAppointment(testApptID, testDoctorID)
	confirmedMeanwhile := overdueAppointment("64b0000000000000000000e2", testDoctorID)
	confirmedMeanwhile.Status = model.AppointmentConfirmed

	scanned := *confirmedMeanwhile
	scanned.Status = model.AppointmentPending

	var cancelledIDs []string
	released := 0
	repo := expireRepo(stillPending, confirmedMeanwhile)
	repo.findExpiredPendingFunc = func(ctx context.Context, now time.Time) ([]*model.Appointment, error) {
		pendingCopy := *stillPending
		return []*model.Appointment{&pendingCopy, &scanned}, nil
	}
	repo.updateStatusFunc = func(ctx context.Context, id string, from, to model.AppointmentStatus) error {
		cancelledIDs = append(cancelledIDs, id)
		return nil
	}
	repo.setSlotsBookedFunc = func(ctx context.Context, doctorID string, start, end time.Time, booked bool) error {
		released++
		return nil
	}
	publisher := &capturingPublisher{}
	svc := newTestService(repo, newMockDoctorLockRepository(), &mockDirectory{}, publisher)

	expired, err := svc.ExpireOverdue(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if expired != 1 {
		t.Errorf("expected 1 expiration, got %d", expired)
	}
	if len(cancelledIDs) != 1 || cancelledIDs[0] != testApptID {
		t.Errorf("only the still-pending appointment should be cancelled, got %v", cancelledIDs)
	}
	if released != 1 {
		t.Errorf("the confirmed appointment's window must stay claimed, got %d releases", released)
	}
	if len(publisher.messages) != 1 {
		t.Errorf("expected one expired event, got %d", len(publisher.messages))
	}
}

func TestExpireOverdue_NothingToDo(t *testing.T) {
	publisher := &capturingPublisher{}
	locks := newMockDoctorLockRepository()
	svc := newTestService(&mockAppointmentRepository{}, locks, &mockDirectory{}, publisher)

	expired, err := svc.ExpireOverdue(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if expired != 0 {
		t.Errorf("expected no expirations, got %d", expired)
	}
	if len(locks.acquired) != 0 || len(publisher.messages) != 0 {
		t.Errorf("an empty sweep must not lock or publish")
	}
}
