package limit

import "time"

// ReservationStatus is a reservation's lifecycle state:
// RESERVED transitions only to CONSUMED, RELEASED, or EXPIRED.
type ReservationStatus string

const (
	ReservationReserved ReservationStatus = "RESERVED"
	ReservationConsumed ReservationStatus = "CONSUMED"
	ReservationReleased ReservationStatus = "RELEASED"
	ReservationExpired  ReservationStatus = "EXPIRED"
)

var reservationTransitions = map[ReservationStatus]map[ReservationStatus]bool{
	ReservationReserved: {ReservationConsumed: true, ReservationReleased: true, ReservationExpired: true},
	ReservationConsumed: {},
	ReservationReleased: {},
	ReservationExpired:  {},
}

// Reservation is a 30-minute hold on customer spend (FundsHold's limit-side
// analog). At most one non-terminal Reservation may exist per PaymentID.
type Reservation struct {
	ReservationID string
	TenantID      string
	CustomerID    string
	PaymentID     string
	AmountMinor   int64
	Currency      string
	PaymentType   string
	Status        ReservationStatus
	ReservedAt    time.Time
	ExpiresAt     time.Time

	// Buckets is the set of bucket keys this reservation contributed to, so
	// consume/release can reverse exactly what reserve applied.
	Buckets []BucketKey
}

// IsExpired reports whether the reservation's TTL has elapsed as of now. A
// reservation whose expires_at equals now is treated as expired.
func (r Reservation) IsExpired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}
