package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/paymentflow/core/infrastructure/logging"
)

// SchedulerConfig configures the background retry sweeper.
type SchedulerConfig struct {
	// Interval between retry sweep ticks, translated to a
	// robfig/cron/v3 "@every" expression. Mirrors infrastructure/config's
	// QUEUE_SWEEP_INTERVAL.
	Interval time.Duration
}

// DefaultSchedulerConfig mirrors infrastructure/config's QUEUE_SWEEP_INTERVAL default.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{Interval: 5 * time.Second}
}

// Scheduler drives Sweeper.Tick on a cron/v3 schedule, leaving the retry
// cadence a matter of deployment configuration rather than code.
type Scheduler struct {
	sweeper *Sweeper
	cfg     SchedulerConfig
	clockFn func() time.Time
	logger  *logging.Logger

	cron *cron.Cron
}

// NewScheduler wires a Scheduler around sweeper. clockFn defaults to
// time.Now when nil. Call Start to begin the schedule.
func NewScheduler(sweeper *Sweeper, cfg SchedulerConfig, clockFn func() time.Time, logger *logging.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg = DefaultSchedulerConfig()
	}
	if clockFn == nil {
		clockFn = time.Now
	}
	return &Scheduler{sweeper: sweeper, cfg: cfg, clockFn: clockFn, logger: logger}
}

// Start schedules the retry tick. Stop must be called to release the cron's
// internal goroutine.
func (s *Scheduler) Start() error {
	s.cron = cron.New()
	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.cfg.Interval), func() {
		if err := s.sweeper.Tick(context.Background(), s.clockFn()); err != nil && s.logger != nil {
			s.logger.WithError(err).Error("queue: retry sweep failed")
		}
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the cron schedule, waiting for any in-flight tick to finish.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
	}
}
