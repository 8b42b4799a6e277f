package hil

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"handoff/internal/logging"
)

// DefaultSweepInterval is how often the sweeper scans for overdue tasks when
// no interval is configured.
const DefaultSweepInterval = time.Second

// Sweeper periodically transitions overdue waiting tasks to timeout. It goes
// through the registry's guarded mutation path, so it can never double-resolve
// a record that Complete or Cancel already won.
type Sweeper struct {
	registry *Registry
	cron     *cron.Cron
	interval time.Duration
	logger   logging.Logger
}

// NewSweeper creates a sweeper scanning registry every interval.
func NewSweeper(registry *Registry, interval time.Duration, logger logging.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{
		registry: registry,
		cron:     cron.New(cron.WithSeconds()),
		interval: interval,
		logger:   logging.OrNop(logger),
	}
}

// Start registers the sweep job and starts the scheduler.
func (s *Sweeper) Start() error {
	schedule := fmt.Sprintf("@every %s", s.interval)
	if _, err := s.cron.AddFunc(schedule, s.sweep); err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	s.cron.Start()
	s.logger.Info("Timeout sweeper started, interval=%s", s.interval)
	return nil
}

// Stop stops the scheduler and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Timeout sweeper stopped")
}

func (s *Sweeper) sweep() {
	expired := s.registry.expireOverdue(time.Now())
	for _, id := range expired {
		s.logger.Warn("HIL task timed out: id=%s", id)
	}
}
