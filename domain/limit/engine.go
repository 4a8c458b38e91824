// Package limit implements the Limit Reservation Engine (C4): multi-level
// daily, monthly, per-payment-type, and per-count reserve/consume/release
// semantics with strict concurrency guarantees and daily/monthly resets.
package limit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	svcerrors "github.com/paymentflow/core/infrastructure/errors"
	"github.com/paymentflow/core/infrastructure/metrics"
	"github.com/paymentflow/core/domain/clock"
)

// ErrDuplicateReservation is returned by Reserve when a non-terminal
// reservation already exists for the payment_id.
var ErrDuplicateReservation = errors.New("limit: a non-terminal reservation already exists for this payment")

// DefaultReservationTTL is the default hold duration before a pending
// reservation is eligible for the expiry sweep.
const DefaultReservationTTL = 30 * time.Minute

// ConfigResolver resolves the per-customer limit configuration. Production
// wiring backs this by a tenant-scoped configuration table; tests use a
// fixed map.
type ConfigResolver interface {
	Resolve(ctx context.Context, tenantID, customerID string) (Config, error)
}

// StaticConfigResolver returns the same Config for every customer, useful
// for tests and for tenants without per-customer overrides.
type StaticConfigResolver struct {
	Config Config
}

func (r StaticConfigResolver) Resolve(ctx context.Context, tenantID, customerID string) (Config, error) {
	return r.Config, nil
}

// CheckResult is the pure read-only projection of whether a reservation
// would currently succeed, without reserving anything.
type CheckResult struct {
	Sufficient     bool
	DailyAvail     int64
	MonthlyAvail   int64
	PerTypeAvail   int64
	CountRemaining int64
}

// Engine is the Limit Reservation Engine.
type Engine struct {
	store    Store
	cfg      ConfigResolver
	clock    clock.Clock
	locks    *lockTable
	loc      *time.Location
	metrics  *metrics.Metrics
}

// New constructs an Engine. loc is the local time zone buckets reset
// against (daily at 00:00 local, monthly on the 1st); pass time.UTC if the
// deployment has no other preference.
func New(store Store, cfg ConfigResolver, c clock.Clock, loc *time.Location, m *metrics.Metrics) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{store: store, cfg: cfg, clock: c, locks: newLockTable(), loc: loc, metrics: m}
}

// Check is a pure read: it reports whether amount would currently fit within
// every configured bucket, without reserving anything.
func (e *Engine) Check(ctx context.Context, tenantID, customerID string, amountMinor int64, paymentType string) (CheckResult, error) {
	cfg, err := e.cfg.Resolve(ctx, tenantID, customerID)
	if err != nil {
		return CheckResult{}, err
	}
	now := e.clock.Now()

	daily, err := e.store.GetCounter(ctx, DailyKey(tenantID, customerID, now, e.loc))
	if err != nil {
		return CheckResult{}, err
	}
	monthly, err := e.store.GetCounter(ctx, MonthlyKey(tenantID, customerID, now, e.loc))
	if err != nil {
		return CheckResult{}, err
	}
	perType, err := e.store.GetCounter(ctx, PerTypeKey(tenantID, customerID, paymentType, now, e.loc))
	if err != nil {
		return CheckResult{}, err
	}
	countDay, err := e.store.GetCounter(ctx, CountDayKey(tenantID, customerID, now, e.loc))
	if err != nil {
		return CheckResult{}, err
	}

	dailyAvail := cfg.DailyLimitMinor - daily.UsedMinor
	monthlyAvail := cfg.MonthlyLimitMinor - monthly.UsedMinor
	perTypeLimit, hasPerType := cfg.PerTypeLimitMinor[paymentType]
	perTypeAvail := int64(1) << 62
	if hasPerType {
		perTypeAvail = perTypeLimit - perType.UsedMinor
	}
	countRemaining := int64(1) << 62
	if cfg.CountDayLimit > 0 {
		countRemaining = cfg.CountDayLimit - countDay.UsedCount
	}

	sufficient := amountMinor <= dailyAvail && amountMinor <= monthlyAvail &&
		amountMinor <= perTypeAvail && countRemaining >= 1

	return CheckResult{
		Sufficient:     sufficient,
		DailyAvail:     dailyAvail,
		MonthlyAvail:   monthlyAvail,
		PerTypeAvail:   perTypeAvail,
		CountRemaining: countRemaining,
	}, nil
}

// Reserve atomically reserves amountMinor against every applicable bucket
// for paymentID, serialized per-customer via lockTable so two concurrent
// reserves that would together exceed a limit cannot both succeed.
func (e *Engine) Reserve(ctx context.Context, tenantID, customerID, paymentID string, amountMinor int64, currency, paymentType string, ttl time.Duration) (string, error) {
	if amountMinor <= 0 {
		return "", svcerrors.Validation("amount", "reservation amount must be greater than zero")
	}
	if ttl <= 0 {
		ttl = DefaultReservationTTL
	}

	lock := e.locks.For(tenantID, customerID)
	lock.Acquire(paymentID)
	defer lock.Release()

	existing, found, err := e.store.GetReservation(ctx, tenantID, paymentID)
	if err != nil {
		return "", err
	}
	if found && existing != nil {
		return "", ErrDuplicateReservation
	}

	cfg, err := e.cfg.Resolve(ctx, tenantID, customerID)
	if err != nil {
		return "", err
	}
	now := e.clock.Now()

	dailyKey := DailyKey(tenantID, customerID, now, e.loc)
	monthlyKey := MonthlyKey(tenantID, customerID, now, e.loc)
	typeKey := PerTypeKey(tenantID, customerID, paymentType, now, e.loc)
	countKey := CountDayKey(tenantID, customerID, now, e.loc)

	daily, err := e.store.GetCounter(ctx, dailyKey)
	if err != nil {
		return "", err
	}
	if daily.UsedMinor+amountMinor > cfg.DailyLimitMinor {
		e.recordOutcome("rejected")
		return "", svcerrors.LimitExceeded(string(DimensionDaily))
	}

	monthly, err := e.store.GetCounter(ctx, monthlyKey)
	if err != nil {
		return "", err
	}
	if monthly.UsedMinor+amountMinor > cfg.MonthlyLimitMinor {
		e.recordOutcome("rejected")
		return "", svcerrors.LimitExceeded(string(DimensionMonthly))
	}

	if perTypeLimit, ok := cfg.PerTypeLimitMinor[paymentType]; ok {
		perType, err := e.store.GetCounter(ctx, typeKey)
		if err != nil {
			return "", err
		}
		if perType.UsedMinor+amountMinor > perTypeLimit {
			e.recordOutcome("rejected")
			return "", svcerrors.LimitExceeded(string(DimensionPerType))
		}
	}

	if cfg.CountDayLimit > 0 {
		countDay, err := e.store.GetCounter(ctx, countKey)
		if err != nil {
			return "", err
		}
		if countDay.UsedCount+1 > cfg.CountDayLimit {
			e.recordOutcome("rejected")
			return "", svcerrors.LimitExceeded(string(DimensionCount))
		}
	}

	// All buckets have room: commit. Each AddToCounter call is independent,
	// but they are only reached after every check above passed while holding
	// the per-customer lock, so no other Reserve call for this customer can
	// have mutated a bucket in between.
	if _, err := e.store.AddToCounter(ctx, dailyKey, amountMinor, 0); err != nil {
		return "", err
	}
	if _, err := e.store.AddToCounter(ctx, monthlyKey, amountMinor, 0); err != nil {
		return "", err
	}
	buckets := []BucketKey{dailyKey, monthlyKey}
	if _, ok := cfg.PerTypeLimitMinor[paymentType]; ok {
		if _, err := e.store.AddToCounter(ctx, typeKey, amountMinor, 0); err != nil {
			return "", err
		}
		buckets = append(buckets, typeKey)
	}
	if cfg.CountDayLimit > 0 {
		if _, err := e.store.AddToCounter(ctx, countKey, 0, 1); err != nil {
			return "", err
		}
		buckets = append(buckets, countKey)
	}

	reservationID := uuid.New().String()
	r := Reservation{
		ReservationID: reservationID,
		TenantID:      tenantID,
		CustomerID:    customerID,
		PaymentID:     paymentID,
		AmountMinor:   amountMinor,
		Currency:      currency,
		PaymentType:   paymentType,
		Status:        ReservationReserved,
		ReservedAt:    now,
		ExpiresAt:     now.Add(ttl),
		Buckets:       buckets,
	}
	if err := e.store.PutReservation(ctx, r); err != nil {
		return "", err
	}
	e.recordOutcome("reserved")
	return reservationID, nil
}

// Consume marks a RESERVED reservation CONSUMED, permanently adding its
// amount to the relevant counters. Because Reserve already applied the
// amount to the counters (reservation inflates usage immediately, the way a
// hold inflates a bank balance's "available" figure), Consume only needs to
// flip the reservation's status — replaying it any number of times must not
// re-apply the amount, so a non-RESERVED reservation is a no-op.
func (e *Engine) Consume(ctx context.Context, tenantID, paymentID string) error {
	r, found, err := e.getAnyReservation(ctx, tenantID, paymentID)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	if r.Status != ReservationReserved {
		return nil
	}
	r.Status = ReservationConsumed
	if err := e.store.PutReservation(ctx, *r); err != nil {
		return err
	}
	e.recordOutcome("consumed")
	return nil
}

// Release returns a RESERVED reservation's capacity to its buckets and marks
// it RELEASED. Calling Release on a CONSUMED or EXPIRED reservation is a
// documented no-op.
func (e *Engine) Release(ctx context.Context, tenantID, paymentID, reason string) error {
	r, found, err := e.getAnyReservation(ctx, tenantID, paymentID)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	if r.Status != ReservationReserved {
		return nil
	}

	for _, b := range r.Buckets {
		if b.Kind == BucketCountDay {
			if _, err := e.store.AddToCounter(ctx, b, 0, -1); err != nil {
				return err
			}
			continue
		}
		if _, err := e.store.AddToCounter(ctx, b, -r.AmountMinor, 0); err != nil {
			return err
		}
	}
	r.Status = ReservationReleased
	if err := e.store.PutReservation(ctx, *r); err != nil {
		return err
	}
	e.recordOutcome("released")
	return nil
}

// ExpireSweep returns capacity for every RESERVED reservation whose TTL has
// elapsed, transitioning each to EXPIRED. Intended to be driven by a
// cron/v3 schedule (infrastructure-level wiring); exposed here as a single
// sweep pass so the cadence itself stays configurable by the caller.
func (e *Engine) ExpireSweep(ctx context.Context) (int, error) {
	now := e.clock.Now()
	expired, err := e.store.ListExpired(ctx, now, 0)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, r := range expired {
		for _, b := range r.Buckets {
			if b.Kind == BucketCountDay {
				_, _ = e.store.AddToCounter(ctx, b, 0, -1)
				continue
			}
			_, _ = e.store.AddToCounter(ctx, b, -r.AmountMinor, 0)
		}
		r.Status = ReservationExpired
		if err := e.store.PutReservation(ctx, r); err != nil {
			return count, err
		}
		count++
	}
	if e.metrics != nil && count > 0 {
		e.metrics.RecordLimitReservation("expired")
	}
	return count, nil
}

func (e *Engine) getAnyReservation(ctx context.Context, tenantID, paymentID string) (*Reservation, bool, error) {
	// GetReservation only returns non-terminal rows by contract; Consume and
	// Release both need to see terminal ones too (to no-op idempotently), so
	// they use GetReservationAny, which returns the payment's row whatever
	// its status, and branch on Status themselves.
	return e.store.GetReservationAny(ctx, tenantID, paymentID)
}

func (e *Engine) recordOutcome(outcome string) {
	if e.metrics != nil {
		e.metrics.RecordLimitReservation(outcome)
	}
}
