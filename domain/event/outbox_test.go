package event

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paymentflow/core/infrastructure/logging"
	"github.com/paymentflow/core/infrastructure/metrics"
	"github.com/paymentflow/core/infrastructure/resilience"
)

func newEvent(sagaID string, seq int64) TransactionEvent {
	return New(fmt.Sprintf("%s-%d", sagaID, seq), sagaID, seq, TypePaymentInitiated, nil, time.Now(), "", "", "tenant-1", "bu-1")
}

func TestMemoryStore_AppendEnforcesMonotonicSeq(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Append(context.Background(), newEvent("saga-1", 1)))
	require.NoError(t, store.Append(context.Background(), newEvent("saga-1", 2)))

	err := store.Append(context.Background(), newEvent("saga-1", 2))
	assert.ErrorIs(t, err, errEventOutOfOrder)

	err = store.Append(context.Background(), newEvent("saga-1", 1))
	assert.ErrorIs(t, err, errEventOutOfOrder)
}

func TestMemoryStore_ListUnpublishedRespectsLimit(t *testing.T) {
	store := NewMemoryStore()
	for i := int64(1); i <= 5; i++ {
		require.NoError(t, store.Append(context.Background(), newEvent("saga-1", i)))
	}

	events, err := store.ListUnpublished(context.Background(), 3)
	require.NoError(t, err)
	assert.Len(t, events, 3)
}

func TestMemoryStore_MarkPublished(t *testing.T) {
	store := NewMemoryStore()
	ev := newEvent("saga-1", 1)
	require.NoError(t, store.Append(context.Background(), ev))

	require.NoError(t, store.MarkPublished(context.Background(), ev.EventID))

	unpublished, err := store.ListUnpublished(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, unpublished)

	assert.ErrorIs(t, store.MarkPublished(context.Background(), "missing"), errEventNotFound)
}

func TestMemoryStore_MarkAttemptTransitionsToPoison(t *testing.T) {
	store := NewMemoryStore()
	ev := newEvent("saga-1", 1)
	require.NoError(t, store.Append(context.Background(), ev))

	require.NoError(t, store.MarkAttempt(context.Background(), ev.EventID, 2))
	all := store.AllEvents()
	require.Len(t, all, 1)
	assert.Equal(t, 1, all[0].PublishAttempt)
	assert.Equal(t, StatusUnpublished, all[0].Status)

	require.NoError(t, store.MarkAttempt(context.Background(), ev.EventID, 2))
	all = store.AllEvents()
	assert.Equal(t, StatusPoison, all[0].Status)
}

type fakeSink struct {
	published []TransactionEvent
	failUntil int
	calls     int
}

func (f *fakeSink) Publish(ctx context.Context, ev TransactionEvent) error {
	f.calls++
	if f.calls <= f.failUntil {
		return fmt.Errorf("sink: transient failure")
	}
	f.published = append(f.published, ev)
	return nil
}

func TestPublisher_TickPublishesUnpublishedEvents(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Append(context.Background(), newEvent("saga-1", 1)))
	require.NoError(t, store.Append(context.Background(), newEvent("saga-1", 2)))

	sink := &fakeSink{}
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry("test-service", reg)
	logger := logging.New("test", "error", "json")

	cfg := DefaultPublisherConfig()
	cfg.Retry = resilience.RetryConfig{MaxAttempts: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
	publisher := NewPublisher(store, sink, cfg, logger, m)

	publisher.Tick(context.Background())

	assert.Len(t, sink.published, 2)
	unpublished, err := store.ListUnpublished(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, unpublished)
}

func TestPublisher_TickMarksAttemptOnFailure(t *testing.T) {
	store := NewMemoryStore()
	ev := newEvent("saga-1", 1)
	require.NoError(t, store.Append(context.Background(), ev))

	sink := &fakeSink{failUntil: 100}
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry("test-service", reg)
	logger := logging.New("test", "error", "json")

	cfg := PublisherConfig{
		BatchSize:   10,
		MaxAttempts: 5,
		Retry:       resilience.RetryConfig{MaxAttempts: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1},
	}
	publisher := NewPublisher(store, sink, cfg, logger, m)

	publisher.Tick(context.Background())

	all := store.AllEvents()
	require.Len(t, all, 1)
	assert.Equal(t, 1, all[0].PublishAttempt)
	assert.Equal(t, StatusUnpublished, all[0].Status)
}
