package limit

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/paymentflow/core/infrastructure/logging"
)

// SweeperConfig configures the background expiry sweeper.
type SweeperConfig struct {
	// Interval between sweep ticks, translated to a robfig/cron/v3
	// "@every" expression. Mirrors infrastructure/config's
	// LIMIT_SWEEP_INTERVAL so the cadence stays operator-configurable.
	Interval time.Duration
}

// DefaultSweeperConfig mirrors infrastructure/config's LIMIT_SWEEP_INTERVAL default.
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{Interval: time.Minute}
}

// Sweeper drives Engine.ExpireSweep on a cron/v3 schedule, leaving the exact
// cadence a matter of deployment configuration rather than code.
type Sweeper struct {
	engine *Engine
	cfg    SweeperConfig
	logger *logging.Logger

	cron *cron.Cron
}

// NewSweeper wires a Sweeper around engine. Call Start to begin the schedule.
func NewSweeper(engine *Engine, cfg SweeperConfig, logger *logging.Logger) *Sweeper {
	if cfg.Interval <= 0 {
		cfg = DefaultSweeperConfig()
	}
	return &Sweeper{engine: engine, cfg: cfg, logger: logger}
}

// Start schedules the sweep tick. Stop must be called to release the cron's
// internal goroutine.
func (s *Sweeper) Start() error {
	s.cron = cron.New()
	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.cfg.Interval), func() {
		s.Tick(context.Background())
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the cron schedule, waiting for any in-flight tick to finish.
func (s *Sweeper) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
	}
}

// Tick runs one expiry sweep pass. Exposed directly so tests can drive
// deterministic ticks instead of waiting on cron.
func (s *Sweeper) Tick(ctx context.Context) {
	count, err := s.engine.ExpireSweep(ctx)
	if err != nil {
		if s.logger != nil {
			s.logger.WithError(err).Error("limit: expire sweep failed")
		}
		return
	}
	if count > 0 && s.logger != nil {
		s.logger.WithFields(map[string]interface{}{"expired": count}).Info("limit: expire sweep reclaimed reservations")
	}
}
