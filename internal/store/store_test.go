package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"blocktix/internal/status"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Retry Tests

func TestRetryOnConflict_SucceedsAfterConflicts(t *testing.T) {
	calls := 0
	err := RetryOnConflict(context.Background(), 5, func() error {
		calls++
		if calls < 3 {
			return status.ErrConflict
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryOnConflict_Exhausted(t *testing.T) {
	calls := 0
	err := RetryOnConflict(context.Background(), 3, func() error {
		calls++
		return status.ErrConflict
	})

	assert.ErrorIs(t, err, status.ErrConflict)
	assert.Equal(t, 3, calls)
}

func TestRetryOnConflict_OtherErrorsReturnImmediately(t *testing.T) {
	calls := 0
	err := RetryOnConflict(context.Background(), 5, func() error {
		calls++
		return status.ErrInsufficientCapacity
	})

	assert.ErrorIs(t, err, status.ErrInsufficientCapacity)
	assert.Equal(t, 1, calls)
}

func TestRetryOnConflict_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RetryOnConflict(ctx, 5, func() error {
		return status.ErrConflict
	})

	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRetryOnConflict_NoWaitAfterLastAttempt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := RetryOnConflict(ctx, 1, func() error {
		calls++
		return status.ErrConflict
	})

	// a wait after the final attempt would surface the cancelled context
	assert.ErrorIs(t, err, status.ErrConflict)
	assert.False(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, calls)
}

// Hub Tests

func TestHub_SubscribeReceivesInitialSnapshot(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	initial := []Document{{ID: "a", Rev: 1}}
	ch := hub.Subscribe(context.Background(), Events, initial)

	snap := <-ch
	assert.Equal(t, initial, snap)
}

func TestHub_LatestSnapshotWins(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	ch := hub.Subscribe(context.Background(), Events, nil)

	hub.Publish(Events, []Document{{ID: "a", Rev: 1}})
	hub.Publish(Events, []Document{{ID: "a", Rev: 2}})

	snap := <-ch
	require.Len(t, snap, 1)
	assert.Equal(t, int64(2), snap[0].Rev)

	select {
	case extra := <-ch:
		t.Fatalf("unexpected snapshot %v", extra)
	default:
	}
}

func TestHub_PublishIsScopedToCollection(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	events := hub.Subscribe(context.Background(), Events, nil)
	<-events

	hub.Publish(Tickets, []Document{{ID: "t"}})

	select {
	case snap := <-events:
		t.Fatalf("events subscriber got tickets snapshot %v", snap)
	default:
	}
}

func TestHub_ContextCancelClosesChannel(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch := hub.Subscribe(ctx, Events, nil)
	<-ch

	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
	assert.Eventually(t, func() bool { return hub.Subscribers(Events) == 0 }, time.Second, 10*time.Millisecond)
}

func TestHub_CloseClosesSubscribers(t *testing.T) {
	hub := NewHub()

	ch := hub.Subscribe(context.Background(), Events, nil)
	<-ch
	hub.Close()

	_, ok := <-ch
	assert.False(t, ok)

	late := hub.Subscribe(context.Background(), Events, nil)
	<-late
	_, ok = <-late
	assert.False(t, ok)
}
