// Package sweeper runs the periodic expiration pass that cancels pending
// appointments whose time window has already passed.
package sweeper

import (
	"context"
	"time"

	"clinicbook/internal/appointments/service"
	"clinicbook/pkg/config"
)

// A sweep holds doctor locks sequentially, so it needs far more headroom
// than a single request.
const sweepTimeout = 5 * time.Minute

type Sweeper struct {
	service service.AppointmentService
	cfg     *config.Config
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewSweeper(service service.AppointmentService, cfg *config.Config) *Sweeper {
	return &Sweeper{
		service: service,
		cfg:     cfg,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start launches the sweep loop. The first pass runs immediately so a
// restarted service catches up on anything that expired while it was down.
func (s *Sweeper) Start() {
	go s.run()
}

func (s *Sweeper) run() {
	defer close(s.doneCh)

	s.sweep()

	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopCh:
			return
		}
	}
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	expired, err := s.service.ExpireOverdue(ctx)
	if err != nil {
		s.cfg.Log.Error("Appointment expiration sweep failed", "error", err)
		return
	}
	if expired > 0 {
		s.cfg.Log.Info("Expired overdue appointments", "count", expired)
	}
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	close(s.stopCh)
	<-s.doneCh
}
