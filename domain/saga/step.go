package saga

import (
	"context"

	"github.com/paymentflow/core/domain/event"
)

// Outcome is what a Step's successful Execute hands back to the driving
// loop: the event to append to the saga's transaction log and whatever
// payload its compensator (if any) will need later.
type Outcome struct {
	EventType event.Type
	Payload   map[string]interface{}
}

// Step is one stage of the saga pipeline. Execute must be idempotent against
// (step name, saga_id) — a redrive after a crash re-runs the same step with
// the same saga instance and must not double-apply.
type Step interface {
	Name() string
	HasCompensator() bool
	Execute(ctx context.Context, inst *Instance) (Outcome, error)
	// Compensate undoes this step's effect using whatever Execute recorded
	// in its Outcome.Payload. Only called if HasCompensator returns true.
	Compensate(ctx context.Context, inst *Instance, payload map[string]interface{}) error
}
