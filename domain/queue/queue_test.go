package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweeper_TickRedrivesDueMessage(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)

	msg := Message{
		MessageID:   "m1",
		ServiceName: "payments-core",
		Status:      StatusPending,
		MaxRetries:  3,
		NextRetryAt: now.Add(-time.Second),
		ExpiresAt:   now.Add(time.Hour),
	}
	require.NoError(t, store.Enqueue(ctx, msg))

	sweeper := NewSweeper(store, nil, time.Second, time.Minute)
	var redriven bool
	sweeper.RegisterRedriver("payments-core", func(ctx context.Context, m Message) error {
		redriven = true
		return nil
	})

	require.NoError(t, sweeper.Tick(ctx, now))

	assert.True(t, redriven)
	got, err := store.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, StatusProcessed, got.Status)
}

func TestSweeper_TickSchedulesRetryOnFailure(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)

	msg := Message{
		MessageID:   "m1",
		ServiceName: "payments-core",
		Status:      StatusPending,
		MaxRetries:  3,
		NextRetryAt: now.Add(-time.Second),
		ExpiresAt:   now.Add(time.Hour),
	}
	require.NoError(t, store.Enqueue(ctx, msg))

	sweeper := NewSweeper(store, nil, time.Second, time.Minute)
	sweeper.RegisterRedriver("payments-core", func(ctx context.Context, m Message) error {
		return errors.New("upstream unavailable")
	})

	require.NoError(t, sweeper.Tick(ctx, now))

	got, err := store.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, StatusRetry, got.Status)
	assert.Equal(t, 1, got.RetryCount)
	assert.True(t, got.NextRetryAt.After(now))
}

func TestScheduler_StartStop(t *testing.T) {
	store := NewMemoryStore()
	sweeper := NewSweeper(store, nil, time.Second, time.Minute)
	sched := NewScheduler(sweeper, SchedulerConfig{Interval: 50 * time.Millisecond}, nil, nil)

	require.NoError(t, sched.Start())
	sched.Stop()
}
