package sweeper

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"clinicbook/pkg/config"
	"clinicbook/pkg/logger"
	"clinicbook/pkg/model"
)

type mockAppointmentService struct {
	expireCalls atomic.Int64
	expireFunc  func(ctx context.Context) (int, error)
}

func (m *mockAppointmentService) Book(ctx context.Context, req *model.BookRequest, actor model.Actor) (*model.Appointment, error) {
	return nil, nil
}

func (m *mockAppointmentService) UpdateStatus(ctx context.Context, id string, target model.AppointmentStatus, actor model.Actor) error {
	return nil
}

func (m *mockAppointmentService) Reschedule(ctx context.Context, id string, newSlotID string, actor model.Actor) (*model.Appointment, error) {
	return nil, nil
}

func (m *mockAppointmentService) List(ctx context.Context, actor model.Actor, status model.AppointmentStatus, patientID string, limit int, offset int64) ([]*model.Appointment, int64, error) {
	return nil, 0, nil
}

func (m *mockAppointmentService) GetByID(ctx context.Context, id string, actor model.Actor) (*model.Appointment, error) {
	return nil, nil
}

func (m *mockAppointmentService) ExpireOverdue(ctx context.Context) (int, error) {
	m.expireCalls.Add(1)
	if m.expireFunc != nil {
		return m.expireFunc(ctx)
	}
	return 0, nil
}

func testConfig(interval time.Duration) *config.Config {
	return &config.Config{
		Log: logger.New(logger.Config{
			Level:   "error",
			Format:  logger.JSON,
			Service: "test",
		}),
		SweepInterval: interval,
	}
}

func TestSweeper_RunsImmediatelyOnStart(t *testing.T) {
	svc := &mockAppointmentService{}
	s := NewSweeper(svc, testConfig(time.Hour))
	s.Start()
	defer s.Stop()

	deadline := time.Now().Add(time.Second)
	for svc.expireCalls.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("expected an immediate sweep on start")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSweeper_SweepsOnInterval(t *testing.T) {
	svc := &mockAppointmentService{}
	s := NewSweeper(svc, testConfig(5*time.Millisecond))
	s.Start()

	deadline := time.Now().Add(time.Second)
	for svc.expireCalls.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("expected repeated sweeps, got %d", svc.expireCalls.Load())
		}
		time.Sleep(time.Millisecond)
	}
	s.Stop()
}

func TestSweeper_StopHaltsLoop(t *testing.T) {
	svc := &mockAppointmentService{}
	s := NewSweeper(svc, testConfig(5*time.Millisecond))
	s.Start()
	s.Stop()

	after := svc.expireCalls.Load()
	time.Sleep(30 * time.Millisecond)
	if svc.expireCalls.Load() != after {
		t.Errorf("no sweeps should run after Stop")
	}
}
