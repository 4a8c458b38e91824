package account

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	svcerrors "github.com/paymentflow/core/infrastructure/errors"
	"github.com/paymentflow/core/infrastructure/resilience"
	"github.com/paymentflow/core/domain/queue"
)

// OperationNotSupported is returned when a backend doesn't implement the
// requested op; the Adapter never makes a network round trip for it.
var OperationNotSupported = fmt.Errorf("account: operation not supported by backend")

// breakerKey scopes a circuit breaker to (service_name, tenant_id): a
// backend having a bad day for one tenant must not trip every tenant's
// calls to it.
func breakerKey(backendID, tenantID string) string { return backendID + "/" + tenantID }

// Adapter is the uniform C5 surface. Every call is guarded by the
// backend's own circuit breaker (resilience.Config) and, when one is
// registered, its bulkhead. The Adapter does not retry a failed call and
// applies no timeout of its own; ctx is passed through to the backend.
// get_account additionally falls back to a bounded LRU cache of
// the last-known snapshot within a staleness budget, while fund-affecting
// ops are never served from cache.
type Adapter struct {
	registry *Registry

	breakers  map[string]*resilience.CircuitBreaker
	bulkheads map[string]*resilience.Bulkhead

	snapshotCache   *lru.Cache[string, cachedSnapshot]
	snapshotMaxAge  time.Duration
	queueStore      queue.Store
	queueBase       time.Duration
	queueMax        time.Duration
	queueTTL        time.Duration
	queueMaxRetries int
}

type cachedSnapshot struct {
	snapshot AccountSnapshot
	cachedAt time.Time
}

// NewAdapter wires an Adapter over registry. snapshotCacheSize bounds the
// get_account LRU cache; snapshotMaxAge is its staleness budget.
func NewAdapter(registry *Registry, snapshotCacheSize int, snapshotMaxAge time.Duration, queueStore queue.Store) (*Adapter, error) {
	cache, err := lru.New[string, cachedSnapshot](snapshotCacheSize)
	if err != nil {
		return nil, err
	}
	return &Adapter{
		registry:        registry,
		breakers:        make(map[string]*resilience.CircuitBreaker),
		bulkheads:       make(map[string]*resilience.Bulkhead),
		snapshotCache:   cache,
		snapshotMaxAge:  snapshotMaxAge,
		queueStore:      queueStore,
		queueBase:       time.Second,
		queueMax:        5 * time.Minute,
		queueTTL:        24 * time.Hour,
		queueMaxRetries: 10,
	}, nil
}

// RegisterPolicy installs the resiliency policy for a backend. Call once per
// backend during wiring.
func (a *Adapter) RegisterPolicy(backendID string, tenantID string, cbCfg resilience.Config, bulkheadSize int) {
	a.breakers[breakerKey(backendID, tenantID)] = resilience.New(cbCfg)
	if bulkheadSize > 0 {
		a.bulkheads[breakerKey(backendID, tenantID)] = resilience.NewBulkhead(bulkheadSize)
	}
}

func (a *Adapter) breakerFor(backendID, tenantID string) *resilience.CircuitBreaker {
	key := breakerKey(backendID, tenantID)
	cb, ok := a.breakers[key]
	if !ok {
		cb = resilience.New(resilience.DefaultConfig())
		a.breakers[key] = cb
	}
	return cb
}

// Execute routes req to the backend owning req.AccountRef, applying the
// resiliency kernel, then (for get_account) the cache fallback, and finally
// the offline queue fallback for idempotent fund-affecting ops.
func (a *Adapter) Execute(ctx context.Context, tenantID string, req Request) (Response, error) {
	backend, ok := a.registry.Resolve(req.AccountRef)
	if !ok {
		return Response{}, fmt.Errorf("account: no backend for account_ref %q", req.AccountRef)
	}
	if !backend.Capabilities()[req.Op] {
		return Response{Status: StatusNotSupported}, OperationNotSupported
	}

	key := breakerKey(backend.ID(), tenantID)
	cb := a.breakerFor(backend.ID(), tenantID)
	bulkhead := a.bulkheads[key]

	var resp Response
	call := func() error {
		var err error
		resp, err = backend.Execute(ctx, req)
		return err
	}

	var err error
	if bulkhead != nil {
		err = bulkhead.Do(func() error {
			return cb.Execute(ctx, call)
		})
	} else {
		err = cb.Execute(ctx, call)
	}

	if err == nil {
		if req.Op == OpGetAccount {
			a.cacheSnapshot(req.AccountRef, resp)
		}
		return resp, nil
	}

	return a.handleFailure(ctx, backend, tenantID, req, err)
}

func (a *Adapter) handleFailure(ctx context.Context, backend Backend, tenantID string, req Request, callErr error) (Response, error) {
	if req.Op == OpGetAccount {
		if snap, ok := a.cachedSnapshotWithin(req.AccountRef, a.snapshotMaxAge); ok {
			return Response{Status: StatusOK, Balance: snap.Balance}, nil
		}
		return Response{}, svcerrors.ServiceUnavailable(backend.ID(), callErr)
	}

	// Fund-affecting ops are never served from cache. If the op is
	// idempotent, enqueue it for offline replay instead of failing the
	// saga step outright.
	if IdempotentOps[req.Op] && a.queueStore != nil {
		if qErr := a.enqueue(ctx, backend, tenantID, req); qErr != nil {
			return Response{}, svcerrors.ServiceUnavailable(backend.ID(), qErr)
		}
		return Response{}, svcerrors.ServiceUnavailable(backend.ID(), callErr)
	}

	return Response{}, svcerrors.ServiceUnavailable(backend.ID(), callErr)
}

func (a *Adapter) enqueue(ctx context.Context, backend Backend, tenantID string, req Request) error {
	now := time.Now().UTC()
	msg := queue.Message{
		MessageID:      req.IdempotencyKey + ":" + string(req.Op),
		TenantID:       tenantID,
		ServiceName:    backend.ID(),
		Endpoint:       string(req.Op),
		Method:         "POST",
		Payload: map[string]interface{}{
			"account_ref":  req.AccountRef,
			"amount_minor": req.AmountMinor,
			"currency":     req.Currency,
			"payment_id":   req.PaymentID,
			"hold_ref":     req.HoldRef,
			"op":           string(req.Op),
		},
		Status:         queue.StatusPending,
		RetryCount:     0,
		MaxRetries:     a.queueMaxRetries,
		NextRetryAt:    now,
		ExpiresAt:      now.Add(a.queueTTL),
		IdempotencyKey: req.IdempotencyKey,
		CreatedAt:      now,
	}
	return a.queueStore.Enqueue(ctx, msg)
}

// Redriver builds a queue.Redriver that replays a QueuedMessage against the
// given backend via its OfflineApplier (or Execute, for backends reachable
// synchronously but temporarily unavailable when the message was enqueued).
func Redriver(backend Backend) queue.Redriver {
	return func(ctx context.Context, m queue.Message) error {
		req := Request{
			Op:             Op(m.Payload["op"].(string)),
			AccountRef:     m.Payload["account_ref"].(string),
			IdempotencyKey: m.IdempotencyKey,
			PaymentID:      m.Payload["payment_id"].(string),
		}
		if v, ok := m.Payload["amount_minor"].(int64); ok {
			req.AmountMinor = v
		}
		if v, ok := m.Payload["currency"].(string); ok {
			req.Currency = v
		}
		if v, ok := m.Payload["hold_ref"].(string); ok {
			req.HoldRef = v
		}

		var resp Response
		var err error
		if applier, ok := backend.(OfflineApplier); ok {
			resp, err = applier.ApplyOffline(ctx, req)
		} else {
			resp, err = backend.Execute(ctx, req)
		}
		if err != nil {
			return err
		}
		if resp.Status != StatusOK {
			return fmt.Errorf("account: redrive returned status %s", resp.Status)
		}
		return nil
	}
}

func (a *Adapter) cacheSnapshot(accountRef string, resp Response) {
	a.snapshotCache.Add(accountRef, cachedSnapshot{
		snapshot: AccountSnapshot{AccountRef: accountRef, Balance: resp.Balance},
		cachedAt: time.Now().UTC(),
	})
}

func (a *Adapter) cachedSnapshotWithin(accountRef string, maxAge time.Duration) (AccountSnapshot, bool) {
	entry, ok := a.snapshotCache.Get(accountRef)
	if !ok {
		return AccountSnapshot{}, false
	}
	if time.Since(entry.cachedAt) > maxAge {
		return AccountSnapshot{}, false
	}
	return entry.snapshot, true
}
