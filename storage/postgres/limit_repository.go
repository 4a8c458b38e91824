package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/paymentflow/core/domain/limit"
)

// LimitRepository implements limit.Store on limit_reservations and
// limit_counters. AddToCounter uses a single atomic UPSERT rather than a
// read-then-write round trip. The UPSERT adds unconditionally; the overflow
// check is limit.Engine's, made against GetCounter under its in-process
// lockTable, so it does not cover reserves running in other processes.
type LimitRepository struct {
	db *sqlx.DB
}

// NewLimitRepository wires a LimitRepository over db.
func NewLimitRepository(db *sqlx.DB) *LimitRepository {
	return &LimitRepository{db: db}
}

type reservationRow struct {
	ReservationID string    `db:"reservation_id"`
	TenantID      string    `db:"tenant_id"`
	CustomerID    string    `db:"customer_id"`
	PaymentID     string    `db:"payment_id"`
	AmountMinor   int64     `db:"amount_minor"`
	Currency      string    `db:"currency"`
	PaymentType   string    `db:"payment_type"`
	Status        string    `db:"status"`
	Buckets       []byte    `db:"buckets"`
	ReservedAt    time.Time `db:"reserved_at"`
	ExpiresAt     time.Time `db:"expires_at"`
}

func toReservationRow(r limit.Reservation) (reservationRow, error) {
	buckets, err := json.Marshal(r.Buckets)
	if err != nil {
		return reservationRow{}, fmt.Errorf("postgres: encoding reservation buckets: %w", err)
	}
	return reservationRow{
		ReservationID: r.ReservationID, TenantID: r.TenantID, CustomerID: r.CustomerID,
		PaymentID: r.PaymentID, AmountMinor: r.AmountMinor, Currency: r.Currency,
		PaymentType: r.PaymentType, Status: string(r.Status), Buckets: buckets,
		ReservedAt: r.ReservedAt, ExpiresAt: r.ExpiresAt,
	}, nil
}

func (row reservationRow) toReservation() (limit.Reservation, error) {
	var buckets []limit.BucketKey
	if err := json.Unmarshal(row.Buckets, &buckets); err != nil {
		return limit.Reservation{}, fmt.Errorf("postgres: decoding reservation buckets: %w", err)
	}
	return limit.Reservation{
		ReservationID: row.ReservationID, TenantID: row.TenantID, CustomerID: row.CustomerID,
		PaymentID: row.PaymentID, AmountMinor: row.AmountMinor, Currency: row.Currency,
		PaymentType: row.PaymentType, Status: limit.ReservationStatus(row.Status), Buckets: buckets,
		ReservedAt: row.ReservedAt, ExpiresAt: row.ExpiresAt,
	}, nil
}

// GetReservation returns the current RESERVED reservation for paymentID, if
// any non-terminal one exists.
func (r *LimitRepository) GetReservation(ctx context.Context, tenantID, paymentID string) (*limit.Reservation, bool, error) {
	var row reservationRow
	err := r.db.GetContext(ctx, &row, `
		SELECT reservation_id, tenant_id, customer_id, payment_id, amount_minor, currency,
		       payment_type, status, buckets, reserved_at, expires_at
		FROM limit_reservations WHERE tenant_id = $1 AND payment_id = $2 AND status = 'RESERVED'
	`, tenantID, paymentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("postgres: loading reservation for payment %s: %w", paymentID, err)
	}
	res, err := row.toReservation()
	if err != nil {
		return nil, false, err
	}
	return &res, true, nil
}

// GetReservationAny returns the reservation for paymentID regardless of its
// terminal status, so Consume/Release can recognize replay and no-op.
func (r *LimitRepository) GetReservationAny(ctx context.Context, tenantID, paymentID string) (*limit.Reservation, bool, error) {
	var row reservationRow
	err := r.db.GetContext(ctx, &row, `
		SELECT reservation_id, tenant_id, customer_id, payment_id, amount_minor, currency,
		       payment_type, status, buckets, reserved_at, expires_at
		FROM limit_reservations WHERE tenant_id = $1 AND payment_id = $2
	`, tenantID, paymentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("postgres: loading reservation for payment %s: %w", paymentID, err)
	}
	res, err := row.toReservation()
	if err != nil {
		return nil, false, err
	}
	return &res, true, nil
}

// PutReservation upserts r, keyed by (tenant_id, payment_id). The schema's
// unique index on that pair is what enforces "at most one non-terminal
// reservation per payment_id" at the storage layer.
func (r *LimitRepository) PutReservation(ctx context.Context, res limit.Reservation) error {
	row, err := toReservationRow(res)
	if err != nil {
		return err
	}
	_, err = r.db.NamedExecContext(ctx, `
		INSERT INTO limit_reservations (
			reservation_id, tenant_id, customer_id, payment_id, amount_minor, currency,
			payment_type, status, buckets, reserved_at, expires_at
		) VALUES (
			:reservation_id, :tenant_id, :customer_id, :payment_id, :amount_minor, :currency,
			:payment_type, :status, :buckets, :reserved_at, :expires_at
		)
		ON CONFLICT (tenant_id, payment_id) DO UPDATE SET
			status = EXCLUDED.status, buckets = EXCLUDED.buckets
	`, row)
	if err != nil {
		return fmt.Errorf("postgres: upserting reservation %s: %w", res.ReservationID, err)
	}
	return nil
}

// GetCounter returns key's current value, or a zero Counter if the bucket
// has not been touched yet — a fresh window on first access, per §3.
func (r *LimitRepository) GetCounter(ctx context.Context, key limit.BucketKey) (limit.Counter, error) {
	var used struct {
		UsedMinor int64 `db:"used_minor"`
		UsedCount int64 `db:"used_count"`
	}
	err := r.db.GetContext(ctx, &used, `
		SELECT used_minor, used_count FROM limit_counters
		WHERE tenant_id = $1 AND customer_id = $2 AND kind = $3 AND window_key = $4 AND payment_type = $5
	`, key.TenantID, key.CustomerID, string(key.Kind), key.Window, key.PaymentType)
	if errors.Is(err, sql.ErrNoRows) {
		return limit.Counter{Key: key}, nil
	}
	if err != nil {
		return limit.Counter{}, fmt.Errorf("postgres: loading counter %s: %w", key.String(), err)
	}
	return limit.Counter{Key: key, UsedMinor: used.UsedMinor, UsedCount: used.UsedCount}, nil
}

// AddToCounter atomically adds the deltas to key's bucket in one UPSERT
// statement and returns the post-update value. limit.Engine does not use the
// returned value; its overflow check reads GetCounter before the add.
func (r *LimitRepository) AddToCounter(ctx context.Context, key limit.BucketKey, deltaAmount, deltaCount int64) (limit.Counter, error) {
	var used struct {
		UsedMinor int64 `db:"used_minor"`
		UsedCount int64 `db:"used_count"`
	}
	err := r.db.GetContext(ctx, &used, `
		INSERT INTO limit_counters (tenant_id, customer_id, kind, window_key, payment_type, used_minor, used_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tenant_id, customer_id, kind, window_key, payment_type) DO UPDATE SET
			used_minor = limit_counters.used_minor + EXCLUDED.used_minor,
			used_count = limit_counters.used_count + EXCLUDED.used_count
		RETURNING used_minor, used_count
	`, key.TenantID, key.CustomerID, string(key.Kind), key.Window, key.PaymentType, deltaAmount, deltaCount)
	if err != nil {
		return limit.Counter{}, fmt.Errorf("postgres: updating counter %s: %w", key.String(), err)
	}
	return limit.Counter{Key: key, UsedMinor: used.UsedMinor, UsedCount: used.UsedCount}, nil
}

// ListExpired returns RESERVED reservations whose ExpiresAt has passed, feeding
// the expire_sweep background job.
func (r *LimitRepository) ListExpired(ctx context.Context, now time.Time, limitN int) ([]limit.Reservation, error) {
	if limitN <= 0 {
		limitN = 500
	}
	var rows []reservationRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT reservation_id, tenant_id, customer_id, payment_id, amount_minor, currency,
		       payment_type, status, buckets, reserved_at, expires_at
		FROM limit_reservations
		WHERE status = 'RESERVED' AND expires_at <= $1
		LIMIT $2
	`, now, limitN)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing expired reservations: %w", err)
	}
	out := make([]limit.Reservation, 0, len(rows))
	for _, row := range rows {
		res, err := row.toReservation()
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

var _ limit.Store = (*LimitRepository)(nil)
