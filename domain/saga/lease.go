package saga

import (
	"context"
	"time"

	"github.com/paymentflow/core/domain/clock"
	"github.com/paymentflow/core/infrastructure/state"
)

// LeaseStore enforces the single-writer-per-saga_id rule on top of
// infrastructure/state.PersistentState's lease row: Acquire either claims a
// fresh lease or steals one whose TTL has elapsed, via compare-and-swap, so
// two workers racing to drive the same saga can never both believe they
// hold it.
type LeaseStore struct {
	state *state.PersistentState
	clock clock.Clock
}

func NewLeaseStore(s *state.PersistentState, c clock.Clock) *LeaseStore {
	return &LeaseStore{state: s, clock: c}
}

// Acquire claims the lease for sagaID under owner for ttl, returning false
// (no error) if another owner currently holds an unexpired lease.
func (l *LeaseStore) Acquire(ctx context.Context, sagaID, owner string, ttl time.Duration) (bool, error) {
	return l.state.AcquireLease(ctx, sagaID, owner, ttl, l.clock.Now())
}

// Release drops the lease if owner still holds it, so the next Acquire by
// any worker does not have to wait out the TTL.
func (l *LeaseStore) Release(ctx context.Context, sagaID, owner string) error {
	return l.state.ReleaseLease(ctx, sagaID, owner)
}
