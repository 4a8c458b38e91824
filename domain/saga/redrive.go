package saga

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/paymentflow/core/infrastructure/logging"
)

// RedriverConfig configures the background redrive sweep.
type RedriverConfig struct {
	// Interval between sweep ticks, translated to a robfig/cron/v3
	// "@every" expression.
	Interval time.Duration
	// BatchSize caps how many active instances one tick loads from the
	// store. 0 means unbounded.
	BatchSize int
}

// DefaultRedriverConfig picks a short cadence: suspended sagas are waiting
// on external clearing responses or lease contention, so redrive should
// notice quickly without hammering the store.
func DefaultRedriverConfig() RedriverConfig {
	return RedriverConfig{Interval: 10 * time.Second, BatchSize: 200}
}

// Redriver periodically calls Orchestrator.Run over every non-terminal saga
// instance, resuming work left suspended by a crashed or timed-out worker.
// A healthy instance already owned by a live worker simply yields
// ErrLeaseHeld on the first Drive call, so redrive and normal progress can
// run concurrently without coordination beyond the lease itself.
type Redriver struct {
	store        Store
	orchestrator *Orchestrator
	cfg          RedriverConfig
	logger       *logging.Logger

	cron *cron.Cron
}

// NewRedriver wires a Redriver around store and orchestrator.
func NewRedriver(store Store, orchestrator *Orchestrator, cfg RedriverConfig, logger *logging.Logger) *Redriver {
	if cfg.Interval <= 0 {
		cfg = DefaultRedriverConfig()
	}
	return &Redriver{store: store, orchestrator: orchestrator, cfg: cfg, logger: logger}
}

// Start schedules the redrive tick. Stop must be called to release the
// cron's internal goroutine.
func (r *Redriver) Start() error {
	r.cron = cron.New()
	_, err := r.cron.AddFunc(fmt.Sprintf("@every %s", r.cfg.Interval), func() {
		r.Tick(context.Background())
	})
	if err != nil {
		return err
	}
	r.cron.Start()
	return nil
}

// Stop halts the cron schedule, waiting for any in-flight tick to finish.
func (r *Redriver) Stop() {
	if r.cron != nil {
		ctx := r.cron.Stop()
		<-ctx.Done()
	}
}

// Tick drives every active instance once. Exposed directly so tests can
// drive deterministic ticks instead of waiting on cron.
func (r *Redriver) Tick(ctx context.Context) {
	instances, err := r.store.ListActive(ctx, r.cfg.BatchSize)
	if err != nil {
		if r.logger != nil {
			r.logger.WithError(err).Error("saga: redrive listing active instances failed")
		}
		return
	}
	redriven := 0
	for _, inst := range instances {
		status, err := r.orchestrator.Run(ctx, inst.SagaID)
		if err != nil {
			if errors.Is(err, ErrLeaseHeld) {
				continue
			}
			if r.logger != nil {
				r.logger.WithSagaID(inst.SagaID).WithError(err).Warn("saga: redrive step failed")
			}
			continue
		}
		if status != inst.Status {
			redriven++
		}
	}
	if redriven > 0 && r.logger != nil {
		r.logger.WithFields(map[string]interface{}{"redriven": redriven, "scanned": len(instances)}).Info("saga: redrive tick advanced instances")
	}
}
