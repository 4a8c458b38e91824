// Package account implements the Account Adapter (C5): a uniform surface for
// get_account, place_hold, capture_hold, release_hold, credit, and debit
// over eight heterogeneous external core-banking systems, each guarded by
// the resiliency kernel (infrastructure/resilience) and routed from an
// account reference to a backend through a table-driven registry.
package account

import (
	"crypto/hmac"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// Op identifies one of the uniform account operations every backend speaks.
type Op string

const (
	OpGetAccount   Op = "get_account"
	OpPlaceHold    Op = "place_hold"
	OpCaptureHold  Op = "capture_hold"
	OpReleaseHold  Op = "release_hold"
	OpCredit       Op = "credit"
	OpDebit        Op = "debit"
)

// IdempotentOps is the declared list of operations that are safe to enqueue
// for offline replay: each carries an Idempotency-Key and a repeat call must
// not double-apply.
var IdempotentOps = map[Op]bool{
	OpPlaceHold:   true,
	OpCaptureHold: true,
	OpReleaseHold: true,
	OpCredit:      true,
	OpDebit:       true,
}

// ResponseStatus is the abstract status code every backend normalizes to;
// HTTP codes (if a backend happens to speak HTTP) are an encoding detail
// translated at the backend adapter boundary, never surfaced past it.
type ResponseStatus string

const (
	StatusOK                ResponseStatus = "OK"
	StatusNotSupported      ResponseStatus = "NOT_SUPPORTED"
	StatusInsufficientFunds ResponseStatus = "INSUFFICIENT_FUNDS"
	StatusAccountClosed     ResponseStatus = "ACCOUNT_CLOSED"
	StatusError             ResponseStatus = "ERROR"
)

// Request is the uniform shape every backend receives.
type Request struct {
	Op             Op
	AccountRef     string
	AmountMinor    int64
	Currency       string
	IdempotencyKey string
	Reason         string
	PaymentID      string
	HoldRef        string // required for capture_hold/release_hold
}

// Response is the uniform shape every backend returns.
type Response struct {
	Status  ResponseStatus
	HoldRef string
	Balance int64
	Error   string
}

// AccountSnapshot is the cached "last known good" copy of an account used as
// the get_account fallback. Fund-affecting ops never read from this cache —
// only get_account does, and only within its staleness budget.
type AccountSnapshot struct {
	AccountRef string
	Balance    int64
	Currency   string
	Status     string
}

// idempotencyHMACKey is the fixed key the keyed blake2b hash uses to derive
// idempotency keys. It does not need to be secret (the key merely needs to
// be fixed so the same (payment_id, op) always hashes to the same value);
// it is not used for authentication, only for deterministic key derivation.
var idempotencyHMACKey = []byte("paymentflow-core-idempotency-key-v1")

// DeriveIdempotencyKey computes a stable Idempotency-Key for (payment_id, op)
// using a keyed blake2b-256 hash, so repeat calls for the same logical
// operation always carry the same key regardless of process restarts.
func DeriveIdempotencyKey(paymentID string, op Op) string {
	h, err := blake2b.New256(idempotencyHMACKey)
	if err != nil {
		// blake2b.New256 only errors on an oversized key, which
		// idempotencyHMACKey never is; a panic here would indicate the
		// constant above was edited to violate that, which is a build-time
		// mistake, not a runtime condition to recover from.
		panic(fmt.Sprintf("account: blake2b key init failed: %v", err))
	}
	h.Write([]byte(paymentID))
	h.Write([]byte{0})
	h.Write([]byte(op))
	sum := h.Sum(nil)
	return fmt.Sprintf("%x", sum)
}

// VerifyIdempotencyKey reports whether key was indeed derived from
// (paymentID, op), used by backend stubs that want to assert the caller
// supplied the expected key rather than an arbitrary string.
func VerifyIdempotencyKey(key, paymentID string, op Op) bool {
	expected := DeriveIdempotencyKey(paymentID, op)
	return hmac.Equal([]byte(key), []byte(expected))
}
