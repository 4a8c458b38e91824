// Package queue implements the offline message queue (part of C3): any
// failed external call that is idempotent is persisted as a QueuedMessage
// and redriven by a background sweep until it succeeds, expires, or exhausts
// its retry budget.
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Status is a QueuedMessage's position in the retry state machine. The
// allowed transitions form a DAG:
// PENDING→PROCESSING→{PROCESSED|FAILED}; FAILED→RETRY when attempts remain;
// RETRY→PROCESSING on due time; PROCESSING→EXPIRED on expiry; any→CANCELLED.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusProcessed  Status = "PROCESSED"
	StatusFailed     Status = "FAILED"
	StatusRetry      Status = "RETRY"
	StatusExpired    Status = "EXPIRED"
	StatusCancelled  Status = "CANCELLED"
)

var transitions = map[Status]map[Status]bool{
	StatusPending:    {StatusProcessing: true, StatusCancelled: true},
	StatusProcessing: {StatusProcessed: true, StatusFailed: true, StatusExpired: true, StatusCancelled: true},
	StatusFailed:     {StatusRetry: true, StatusExpired: true, StatusCancelled: true},
	StatusRetry:      {StatusProcessing: true, StatusExpired: true, StatusCancelled: true},
	StatusProcessed:  {},
	StatusExpired:    {},
	StatusCancelled:  {},
}

// CanTransition reports whether the state machine permits from→to.
func CanTransition(from, to Status) bool {
	return transitions[from][to]
}

// Message is a durable retry record for an external call that could not
// complete inline.
type Message struct {
	MessageID   string
	TenantID    string
	ServiceName string
	Endpoint    string
	Method      string
	Payload     map[string]interface{}
	Headers     map[string]string

	Status      Status
	RetryCount  int
	MaxRetries  int
	NextRetryAt time.Time
	ExpiresAt   time.Time

	IdempotencyKey string
	CreatedAt      time.Time
	LastAttemptAt  time.Time
}

// NextBackoff computes next_retry_at = last_attempt + min(base*2^retry_count, max_backoff).
func NextBackoff(lastAttempt time.Time, retryCount int, base, maxBackoff time.Duration) time.Time {
	delay := base
	for i := 0; i < retryCount; i++ {
		delay *= 2
		if delay >= maxBackoff {
			delay = maxBackoff
			break
		}
	}
	if delay > maxBackoff {
		delay = maxBackoff
	}
	return lastAttempt.Add(delay)
}

// Transition moves m to to, validating the DAG and stamping bookkeeping
// fields. It returns an error rather than silently no-opping on an illegal
// transition — queue state corruption must surface immediately.
func (m *Message) Transition(to Status, now time.Time) error {
	if !CanTransition(m.Status, to) {
		return fmt.Errorf("queue: illegal transition %s -> %s for message %s", m.Status, to, m.MessageID)
	}
	m.Status = to
	if to == StatusProcessing {
		m.LastAttemptAt = now
	}
	return nil
}

// Store is the persistence contract for queued messages.
type Store interface {
	Enqueue(ctx context.Context, m Message) error
	// DueForRetry returns messages in RETRY or PENDING status whose
	// NextRetryAt has passed, up to limit rows.
	DueForRetry(ctx context.Context, now time.Time, limit int) ([]Message, error)
	Update(ctx context.Context, m Message) error
	Get(ctx context.Context, messageID string) (Message, error)
}

// Redriver performs the actual external call a QueuedMessage represents. A
// nil error is treated as PROCESSED; any error is treated as a failed
// attempt subject to the retry/backoff policy.
type Redriver func(ctx context.Context, m Message) error

// CompletionSink receives a notification when a queued message reaches
// PROCESSED, so the saga orchestrator can resume a saga suspended waiting on
// it.
type CompletionSink interface {
	QueuedMessageCompleted(ctx context.Context, m Message) error
}

// Sweeper drives the retry loop: on each tick it loads due messages, invokes
// the matching Redriver, and advances each message's state per the DAG.
type Sweeper struct {
	store     Store
	redrivers map[string]Redriver
	sink      CompletionSink
	baseDelay time.Duration
	maxDelay  time.Duration

	mu sync.Mutex
}

// NewSweeper constructs a Sweeper. Redrivers are registered per service_name
// via RegisterRedriver before Tick is called.
func NewSweeper(store Store, sink CompletionSink, baseDelay, maxDelay time.Duration) *Sweeper {
	return &Sweeper{
		store:     store,
		redrivers: make(map[string]Redriver),
		sink:      sink,
		baseDelay: baseDelay,
		maxDelay:  maxDelay,
	}
}

// RegisterRedriver associates a service_name with the function that replays
// its queued calls.
func (s *Sweeper) RegisterRedriver(serviceName string, fn Redriver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.redrivers[serviceName] = fn
}

// Tick loads every due message and attempts redelivery.
func (s *Sweeper) Tick(ctx context.Context, now time.Time) error {
	due, err := s.store.DueForRetry(ctx, now, 0)
	if err != nil {
		return err
	}
	for _, m := range due {
		s.redriveOne(ctx, m, now)
	}
	return nil
}

func (s *Sweeper) redriveOne(ctx context.Context, m Message, now time.Time) {
	if now.After(m.ExpiresAt) || now.Equal(m.ExpiresAt) {
		_ = m.Transition(StatusExpired, now)
		_ = s.store.Update(ctx, m)
		return
	}

	s.mu.Lock()
	redrive, ok := s.redrivers[m.ServiceName]
	s.mu.Unlock()
	if !ok {
		return
	}

	if err := m.Transition(StatusProcessing, now); err != nil {
		return
	}
	_ = s.store.Update(ctx, m)

	callErr := redrive(ctx, m)
	if callErr == nil {
		_ = m.Transition(StatusProcessed, now)
		_ = s.store.Update(ctx, m)
		if s.sink != nil {
			_ = s.sink.QueuedMessageCompleted(ctx, m)
		}
		return
	}

	m.RetryCount++
	if m.RetryCount >= m.MaxRetries {
		_ = m.Transition(StatusFailed, now)
		_ = s.store.Update(ctx, m)
		return
	}
	_ = m.Transition(StatusFailed, now)
	_ = m.Transition(StatusRetry, now)
	m.NextRetryAt = NextBackoff(now, m.RetryCount, s.baseDelay, s.maxDelay)
	_ = s.store.Update(ctx, m)
}

// MemoryStore is an in-process Store implementation for tests and
// single-process deployments.
type MemoryStore struct {
	mu       sync.Mutex
	messages map[string]Message
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{messages: make(map[string]Message)}
}

func (s *MemoryStore) Enqueue(ctx context.Context, m Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[m.MessageID] = m
	return nil
}

func (s *MemoryStore) DueForRetry(ctx context.Context, now time.Time, limit int) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Message
	for _, m := range s.messages {
		if (m.Status == StatusPending || m.Status == StatusRetry) && !m.NextRetryAt.After(now) {
			out = append(out, m)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (s *MemoryStore) Update(ctx context.Context, m Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[m.MessageID] = m
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, messageID string) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[messageID]
	if !ok {
		return Message{}, fmt.Errorf("queue: message %s not found", messageID)
	}
	return m, nil
}
