package limit

// Config holds the configured ceilings for one customer's buckets. In
// production this is resolved per (tenant_id, customer_id) from a
// configuration table; tests construct it directly.
type Config struct {
	DailyLimitMinor   int64
	MonthlyLimitMinor int64
	// PerTypeLimitMinor maps a payment type to its own daily ceiling. A type
	// absent from this map has no per-type ceiling (only daily/monthly apply).
	PerTypeLimitMinor map[string]int64
	// CountDayLimit caps the number of payments per day regardless of amount.
	// Zero means unlimited.
	CountDayLimit int64
}

// Dimension identifies which bucket rejected a reservation, used to
// construct svcerrors.LimitExceeded(dimension).
type Dimension string

const (
	DimensionDaily    Dimension = "daily"
	DimensionMonthly  Dimension = "monthly"
	DimensionPerType  Dimension = "per_type"
	DimensionCount    Dimension = "count"
)
