// Package clock provides the orchestration core's time and identity source.
// Every saga step, reservation, and event timestamp flows through a Clock so
// tests can substitute a FixedClock without touching wall-clock state. The
// account adapter's snapshot-cache and offline-queue timestamps are the
// exception: domain/account reads time.Now directly for those.
package clock

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Clock is the time source injected into every component that needs "now".
type Clock interface {
	Now() time.Time
}

// SystemClock returns the real wall-clock time, in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always returns the same instant. Used by tests that assert on
// exact expiry/deadline boundaries.
type FixedClock struct {
	At time.Time
}

func (f FixedClock) Now() time.Time { return f.At }

// OffsetClock returns the system time shifted by a fixed offset, useful for
// simulating "a bucket reset just happened" or "the deadline is in the past"
// without freezing time entirely.
type OffsetClock struct {
	Offset time.Duration
}

func (o OffsetClock) Now() time.Time { return time.Now().UTC().Add(o.Offset) }

// crockford32 is the Crockford base32 alphabet used by ULID-style encodings:
// no I, L, O, U, to avoid visual confusion and accidental profanity.
const crockford32 = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// IDService generates sortable, unique identifiers for sagas, payments, and
// events. IDs are ULID-shaped: a 48-bit big-endian millisecond timestamp
// prefix followed by 80 bits of randomness, both Crockford base32 encoded —
// the result sorts lexicographically by creation time, which raw
// github.com/google/uuid v4 values do not.
type IDService struct {
	clock Clock

	mu       sync.Mutex
	lastSeq  map[string]int64
}

// NewIDService creates an IDService driven by clock.
func NewIDService(c Clock) *IDService {
	return &IDService{clock: c, lastSeq: make(map[string]int64)}
}

// NewSagaID returns a new sortable saga/payment identifier. Payment IDs and
// saga IDs share the same ID space (saga_id = payment_id per the data model).
func (s *IDService) NewSagaID() string {
	return s.newULID()
}

// NewCorrelationID returns a new sortable correlation identifier, used when a
// causation chain needs an ID that is not itself a saga or payment.
func (s *IDService) NewCorrelationID() string {
	return s.newULID()
}

// NewEventID returns a new sortable event identifier.
func (s *IDService) NewEventID() string {
	return s.newULID()
}

func (s *IDService) newULID() string {
	ms := s.clock.Now().UnixMilli()
	var buf [16]byte
	buf[0] = byte(ms >> 40)
	buf[1] = byte(ms >> 32)
	buf[2] = byte(ms >> 24)
	buf[3] = byte(ms >> 16)
	buf[4] = byte(ms >> 8)
	buf[5] = byte(ms)

	randPart := randomBytes(10)
	copy(buf[6:], randPart)

	return encodeCrockford(buf[:])
}

func randomBytes(n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand failing is fatal-grade unusual; fall back to a uuid's
		// random bytes rather than panic, to keep ID generation available.
		id := uuid.New()
		copy(b, id[:])
	}
	return b
}

func encodeCrockford(data []byte) string {
	var sb strings.Builder
	sb.Grow(26)

	// 16 bytes = 128 bits; emitted 5 bits at a time = 26 symbols (130 bits,
	// the last symbol's low 2 bits are zero padding).
	var bitBuf uint64
	var bitCount uint
	byteIdx := 0

	for sb.Len() < 26 {
		for bitCount < 5 && byteIdx < len(data) {
			bitBuf = (bitBuf << 8) | uint64(data[byteIdx])
			bitCount += 8
			byteIdx++
		}
		if bitCount < 5 {
			bitBuf <<= 5 - bitCount
			bitCount = 5
		}
		shift := bitCount - 5
		idx := (bitBuf >> shift) & 0x1F
		sb.WriteByte(crockford32[idx])
		bitCount -= 5
		bitBuf &= (1 << bitCount) - 1
	}
	return sb.String()
}

// NewEventSeq is a strictly-increasing per-saga sequence generator for
// processes that mint sequence numbers outside of a database identity
// column (e.g. in-memory fakes used by orchestrator-level tests). The
// production outbox repository instead uses a Postgres sequence scoped to
// saga_id; this in-process counter exists so the same Clock/IDService pair
// can drive tests without a database.
func (s *IDService) NewEventSeq(sagaID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeq[sagaID]++
	return s.lastSeq[sagaID]
}
