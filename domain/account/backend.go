package account

import (
	"context"
	"strings"
	"time"

	"github.com/paymentflow/core/infrastructure/resilience"
)

// Backend is one external core-banking system. Implementations perform the
// actual network call (or, for the async backend, enqueue work); the
// Adapter wraps every call with the resiliency kernel.
type Backend interface {
	ID() string
	// Capabilities reports which ops this backend supports; an op absent
	// from the set returns OperationNotSupported without a round trip.
	Capabilities() map[Op]bool
	// Async reports whether this backend is only reachable through the
	// offline queue (no synchronous call path at all).
	Async() bool
	Execute(ctx context.Context, req Request) (Response, error)
}

// BackendConfig is the table-driven routing entry: account_ref → backend,
// plus the backend's own resiliency policy.
type BackendConfig struct {
	BackendID   string
	BaseURL     string
	Timeout     time.Duration
	CBConfig    resilience.Config
	RetryConfig resilience.RetryConfig
	Bulkhead    int
}

// Registry maps an account reference to a backend via a prefix table —
// production deployments resolve this from a configuration row keyed by
// account_ref range/prefix; this implementation keeps the same shape with a
// simple longest-prefix match, sufficient for the stub backends below.
type Registry struct {
	backends map[string]Backend
	prefixes []prefixEntry
}

type prefixEntry struct {
	prefix    string
	backendID string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{backends: make(map[string]Backend)}
}

// Register adds a backend and its account_ref prefix to the routing table.
func (r *Registry) Register(b Backend, accountRefPrefix string) {
	r.backends[b.ID()] = b
	r.prefixes = append(r.prefixes, prefixEntry{prefix: accountRefPrefix, backendID: b.ID()})
}

// Resolve returns the backend responsible for accountRef, using the longest
// matching prefix so more specific ranges win over catch-alls.
func (r *Registry) Resolve(accountRef string) (Backend, bool) {
	best := prefixEntry{}
	found := false
	for _, e := range r.prefixes {
		if strings.HasPrefix(accountRef, e.prefix) && len(e.prefix) >= len(best.prefix) {
			best = e
			found = true
		}
	}
	if !found {
		return nil, false
	}
	return r.backends[best.backendID], true
}

// allOps is a convenience set listing every operation; backends that
// support everything (the six "synchronous HTTP-style" stubs) start from
// this set.
func allOps() map[Op]bool {
	return map[Op]bool{
		OpGetAccount: true, OpPlaceHold: true, OpCaptureHold: true,
		OpReleaseHold: true, OpCredit: true, OpDebit: true,
	}
}

// stubBackend is a generic in-memory backend simulating a synchronous
// core-banking system: it tracks a balance and active holds per account and
// applies operations directly, instead of performing a real network call.
// Production wiring replaces Execute's body with an HTTP client call shaped
// by BaseURL/Timeout; the uniform Request/Response contract is unchanged.
type stubBackend struct {
	id           string
	capabilities map[Op]bool
	async        bool

	balances map[string]int64
	holds    map[string]Request // hold_ref -> original request
	applied  map[string]Response // idempotency_key -> prior response
}

// NewSyncBackend constructs one of the six synchronous HTTP-shaped stub
// backends (all ops supported).
func NewSyncBackend(id string, openingBalance int64) Backend {
	return &stubBackend{
		id:           id,
		capabilities: allOps(),
		balances:     map[string]int64{"*": openingBalance},
		holds:        make(map[string]Request),
		applied:      make(map[string]Response),
	}
}

// NewLoanBackend constructs the loan-only backend: it supports only credit,
// modeling a core-banking system that allows disbursement but never a
// synchronous hold or debit.
func NewLoanBackend(id string) Backend {
	return &stubBackend{
		id:           id,
		capabilities: map[Op]bool{OpCredit: true},
		balances:     map[string]int64{"*": 0},
		holds:        make(map[string]Request),
		applied:      make(map[string]Response),
	}
}

// NewAsyncBackend constructs the batch/ACH-style backend reachable only
// through the offline queue: every operation it claims to support still
// returns a transient/unavailable response from Execute, forcing the
// Adapter to enqueue it (simulating a batch core-banking system with no
// synchronous call path).
func NewAsyncBackend(id string) Backend {
	return &stubBackend{
		id:           id,
		capabilities: allOps(),
		async:        true,
		balances:     map[string]int64{"*": 0},
		holds:        make(map[string]Request),
		applied:      make(map[string]Response),
	}
}

func (b *stubBackend) ID() string                    { return b.id }
func (b *stubBackend) Capabilities() map[Op]bool     { return b.capabilities }
func (b *stubBackend) Async() bool                   { return b.async }

func (b *stubBackend) Execute(ctx context.Context, req Request) (Response, error) {
	if !b.capabilities[req.Op] {
		return Response{Status: StatusNotSupported}, nil
	}
	if prior, ok := b.applied[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		return prior, nil
	}
	if b.async {
		// No synchronous call path: every attempt fails transiently so the
		// Adapter always falls through to the offline queue for this
		// backend, exactly like a batch core-banking system with no
		// real-time API. ApplyOffline is what the queue sweeper's Redriver
		// actually calls.
		return Response{}, errAsyncBackendUnreachable
	}

	resp := b.apply(req)
	if req.IdempotencyKey != "" {
		b.applied[req.IdempotencyKey] = resp
	}
	return resp, nil
}

// ApplyOffline performs the operation unconditionally, bypassing the
// synchronous-path guard above. It is what a queue.Redriver calls when
// replaying a QueuedMessage against an async backend — the batch system is
// reachable, just not inline with the original request.
func (b *stubBackend) ApplyOffline(ctx context.Context, req Request) (Response, error) {
	if !b.capabilities[req.Op] {
		return Response{Status: StatusNotSupported}, nil
	}
	if prior, ok := b.applied[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		return prior, nil
	}
	resp := b.apply(req)
	if req.IdempotencyKey != "" {
		b.applied[req.IdempotencyKey] = resp
	}
	return resp, nil
}

func (b *stubBackend) apply(req Request) Response {
	switch req.Op {
	case OpGetAccount:
		return Response{Status: StatusOK, Balance: b.balances["*"]}
	case OpPlaceHold:
		if b.balances["*"] < req.AmountMinor {
			return Response{Status: StatusInsufficientFunds}
		}
		b.balances["*"] -= req.AmountMinor
		holdRef := req.PaymentID + ":" + string(req.Op)
		b.holds[holdRef] = req
		return Response{Status: StatusOK, HoldRef: holdRef}
	case OpCaptureHold:
		if _, ok := b.holds[req.HoldRef]; !ok {
			return Response{Status: StatusError, Error: "hold not found"}
		}
		delete(b.holds, req.HoldRef)
		return Response{Status: StatusOK}
	case OpReleaseHold:
		if held, ok := b.holds[req.HoldRef]; ok {
			b.balances["*"] += held.AmountMinor
			delete(b.holds, req.HoldRef)
		}
		return Response{Status: StatusOK}
	case OpCredit:
		b.balances["*"] += req.AmountMinor
		return Response{Status: StatusOK, Balance: b.balances["*"]}
	case OpDebit:
		if b.balances["*"] < req.AmountMinor {
			return Response{Status: StatusInsufficientFunds}
		}
		b.balances["*"] -= req.AmountMinor
		return Response{Status: StatusOK, Balance: b.balances["*"]}
	default:
		return Response{Status: StatusNotSupported}
	}
}

// OfflineApplier is implemented by backends that can apply an operation
// outside the synchronous call path (currently only the async stub
// backend). The Adapter type-asserts for it when redriving queued messages.
type OfflineApplier interface {
	ApplyOffline(ctx context.Context, req Request) (Response, error)
}

var errAsyncBackendUnreachable = asyncUnreachableError{}

type asyncUnreachableError struct{}

func (asyncUnreachableError) Error() string {
	return "account: backend has no synchronous call path"
}
