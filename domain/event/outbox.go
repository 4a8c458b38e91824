package event

import (
	"context"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/paymentflow/core/infrastructure/logging"
	"github.com/paymentflow/core/infrastructure/metrics"
	"github.com/paymentflow/core/infrastructure/resilience"
)

// Store is the persistence contract for the outbox table. Append must be
// called inside the same transactional unit as the business mutation it
// accompanies — this package does not manage that transaction itself, it is
// invoked by repository code that already holds one (see
// storage/postgres.SagaRepository for the call site).
type Store interface {
	// Append persists ev. Implementations must enforce (saga_id, seq)
	// uniqueness and that seq is strictly increasing for the saga.
	Append(ctx context.Context, ev TransactionEvent) error
	// ListUnpublished returns unpublished (or due-for-retry) events in
	// (saga_id, seq) order, up to limit rows, for the given tenant scope
	// sweep (a publisher may sweep all tenants in a single-tenant-process
	// deployment, or per-tenant in a sharded one).
	ListUnpublished(ctx context.Context, limit int) ([]TransactionEvent, error)
	// MarkPublished transitions an event to PUBLISHED.
	MarkPublished(ctx context.Context, eventID string) error
	// MarkAttempt records a failed publish attempt, incrementing the
	// attempt counter; once attempts reach maxAttempts the implementation
	// transitions the event to POISON instead of leaving it retryable.
	MarkAttempt(ctx context.Context, eventID string, maxAttempts int) error
}

// Sink delivers a published event to external consumers (notification
// services, analytics, audit trails). Sink implementations must tolerate
// duplicate delivery — the outbox guarantees at-least-once, not exactly-once.
type Sink interface {
	Publish(ctx context.Context, ev TransactionEvent) error
}

// MemoryStore is an in-process Store used by tests and by deployments small
// enough to run the saga driver and publisher in one process without
// Postgres. It enforces the same (saga_id, seq) monotonicity invariant the
// Postgres-backed implementation does.
type MemoryStore struct {
	mu       sync.Mutex
	events   []TransactionEvent
	byID     map[string]int
	lastSeq  map[string]int64
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]int), lastSeq: make(map[string]int64)}
}

func (m *MemoryStore) Append(ctx context.Context, ev TransactionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ev.Seq <= m.lastSeq[ev.SagaID] {
		return errEventOutOfOrder
	}
	m.lastSeq[ev.SagaID] = ev.Seq
	m.byID[ev.EventID] = len(m.events)
	m.events = append(m.events, ev)
	return nil
}

func (m *MemoryStore) ListUnpublished(ctx context.Context, limit int) ([]TransactionEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []TransactionEvent
	for _, ev := range m.events {
		if ev.Status == StatusUnpublished {
			out = append(out, ev)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *MemoryStore) MarkPublished(ctx context.Context, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx, ok := m.byID[eventID]
	if !ok {
		return errEventNotFound
	}
	m.events[idx].Status = StatusPublished
	return nil
}

func (m *MemoryStore) MarkAttempt(ctx context.Context, eventID string, maxAttempts int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx, ok := m.byID[eventID]
	if !ok {
		return errEventNotFound
	}
	m.events[idx].PublishAttempt++
	if m.events[idx].PublishAttempt >= maxAttempts {
		m.events[idx].Status = StatusPoison
	}
	return nil
}

// AllEvents returns every event ever appended, in append order. Test helper.
func (m *MemoryStore) AllEvents() []TransactionEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TransactionEvent, len(m.events))
	copy(out, m.events)
	return out
}

var (
	errEventOutOfOrder = storeError("event: seq is not strictly increasing for saga")
	errEventNotFound    = storeError("event: not found")
)

type storeError string

func (e storeError) Error() string { return string(e) }

// PublisherConfig configures the background outbox publisher.
type PublisherConfig struct {
	// Schedule is a robfig/cron/v3 expression; default every 2s.
	Schedule    string
	BatchSize   int
	MaxAttempts int
	Retry       resilience.RetryConfig
}

// DefaultPublisherConfig mirrors infrastructure/config's OUTBOX_PUBLISH_INTERVAL default.
func DefaultPublisherConfig() PublisherConfig {
	return PublisherConfig{
		Schedule:    "@every 2s",
		BatchSize:   100,
		MaxAttempts: 20,
		Retry:       resilience.DefaultRetryConfig(),
	}
}

// Publisher polls Store for unpublished events on a cron/v3 schedule and
// dispatches them to Sink with at-least-once semantics. A publish failure
// never rolls back the business state that accompanied the event — it is
// retried with exponential backoff, bounded by MaxAttempts, after which the
// event is marked POISON for operator attention.
type Publisher struct {
	store  Store
	sink   Sink
	cfg    PublisherConfig
	logger *logging.Logger
	metrics *metrics.Metrics

	cron *cron.Cron
}

// NewPublisher wires a Publisher. Call Start to begin the cron schedule.
func NewPublisher(store Store, sink Sink, cfg PublisherConfig, logger *logging.Logger, m *metrics.Metrics) *Publisher {
	if cfg.Schedule == "" {
		cfg = DefaultPublisherConfig()
	}
	return &Publisher{store: store, sink: sink, cfg: cfg, logger: logger, metrics: m}
}

// Start schedules the publish tick. Stop must be called to release the
// cron's internal goroutine.
func (p *Publisher) Start() error {
	p.cron = cron.New()
	_, err := p.cron.AddFunc(p.cfg.Schedule, func() {
		p.Tick(context.Background())
	})
	if err != nil {
		return err
	}
	p.cron.Start()
	return nil
}

// Stop halts the cron schedule, waiting for any in-flight tick to finish.
func (p *Publisher) Stop() {
	if p.cron != nil {
		ctx := p.cron.Stop()
		<-ctx.Done()
	}
}

// Tick runs one publish pass: every unpublished event is dispatched to Sink,
// retried per Retry policy, and marked PUBLISHED or POISON. Exposed directly
// so tests can drive deterministic ticks instead of waiting on cron.
func (p *Publisher) Tick(ctx context.Context) {
	events, err := p.store.ListUnpublished(ctx, p.cfg.BatchSize)
	if err != nil {
		if p.logger != nil {
			p.logger.WithError(err).Error("outbox: list unpublished failed")
		}
		return
	}
	for _, ev := range events {
		p.publishOne(ctx, ev)
	}
}

func (p *Publisher) publishOne(ctx context.Context, ev TransactionEvent) {
	err := resilience.Retry(ctx, p.cfg.Retry, func() error {
		return p.sink.Publish(ctx, ev)
	})
	if err != nil {
		if markErr := p.store.MarkAttempt(ctx, ev.EventID, p.cfg.MaxAttempts); markErr != nil && p.logger != nil {
			p.logger.WithError(markErr).Error("outbox: mark attempt failed")
		}
		if p.metrics != nil {
			p.metrics.RecordRetry("outbox_publish", "failed")
		}
		if p.logger != nil {
			p.logger.WithError(err).WithFields(map[string]interface{}{
				"saga_id": ev.SagaID, "seq": ev.Seq, "type": string(ev.Type),
			}).Warn("outbox: publish attempt failed")
		}
		return
	}
	if err := p.store.MarkPublished(ctx, ev.EventID); err != nil && p.logger != nil {
		p.logger.WithError(err).Error("outbox: mark published failed")
	}
	if p.metrics != nil {
		p.metrics.RecordRetry("outbox_publish", "succeeded")
	}
}
