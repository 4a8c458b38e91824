package limit

import (
	"fmt"
	"time"
)

// BucketKind identifies which dimension of spend a bucket accumulates.
type BucketKind string

const (
	BucketDaily     BucketKind = "daily"
	BucketMonthly   BucketKind = "monthly"
	BucketPerType   BucketKind = "type"
	BucketCountDay  BucketKind = "count_day"
)

// BucketKey is the natural key a LimitCounter is addressed by:
// (tenant_id, customer_id, bucket) where bucket encodes the time window and,
// for per-type buckets, the payment type.
type BucketKey struct {
	TenantID   string
	CustomerID string
	Kind       BucketKind
	// Window is the bucket's time-key component, e.g. "2026-07-31" for a
	// daily bucket or "2026-07" for a monthly one. PaymentType is set only
	// for BucketKind == BucketPerType.
	Window      string
	PaymentType string
}

// String renders the key the way it is stored/looked up, matching the
// bucket examples ("daily:YYYY-MM-DD", "monthly:YYYY-MM",
// "type:YYYY-MM-DD:paymentType", "count_day:YYYY-MM-DD").
func (k BucketKey) String() string {
	switch k.Kind {
	case BucketPerType:
		return fmt.Sprintf("%s:%s:%s:%s:%s", k.TenantID, k.CustomerID, k.Kind, k.Window, k.PaymentType)
	default:
		return fmt.Sprintf("%s:%s:%s:%s", k.TenantID, k.CustomerID, k.Kind, k.Window)
	}
}

// DailyKey returns the daily spend bucket key for now, local to loc.
func DailyKey(tenantID, customerID string, now time.Time, loc *time.Location) BucketKey {
	return BucketKey{TenantID: tenantID, CustomerID: customerID, Kind: BucketDaily, Window: now.In(loc).Format("2006-01-02")}
}

// MonthlyKey returns the monthly spend bucket key for now.
func MonthlyKey(tenantID, customerID string, now time.Time, loc *time.Location) BucketKey {
	return BucketKey{TenantID: tenantID, CustomerID: customerID, Kind: BucketMonthly, Window: now.In(loc).Format("2006-01")}
}

// PerTypeKey returns the per-payment-type daily bucket key for now.
func PerTypeKey(tenantID, customerID, paymentType string, now time.Time, loc *time.Location) BucketKey {
	return BucketKey{TenantID: tenantID, CustomerID: customerID, Kind: BucketPerType, Window: now.In(loc).Format("2006-01-02"), PaymentType: paymentType}
}

// CountDayKey returns the daily transaction-count bucket key for now.
func CountDayKey(tenantID, customerID string, now time.Time, loc *time.Location) BucketKey {
	return BucketKey{TenantID: tenantID, CustomerID: customerID, Kind: BucketCountDay, Window: now.In(loc).Format("2006-01-02")}
}

// Counter is one (tenant_id, customer_id, bucket) accumulator. A new window
// produces a fresh Counter on first access — Store implementations never
// mutate a Counter whose Window differs from the current one; they create a
// new row instead, so historical buckets remain immutable for
// reconciliation.
type Counter struct {
	Key        BucketKey
	UsedMinor  int64
	UsedCount  int64
}
