package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novelmaze/novelmaze/internal/metrics"
	"github.com/novelmaze/novelmaze/pkg/logger"
)

func TestBus_DeliversToAllSubscribers(t *testing.T) {
	bus := NewBus(logger.Nop())

	var mu sync.Mutex
	var received []Event
	record := func(_ context.Context, evt Event) error {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, evt)
		return nil
	}

	bus.Subscribe(KindUserCompletedStory, "first", record)
	bus.Subscribe(KindUserCompletedStory, "second", record)
	bus.Subscribe(KindUserLoggedIn, "login", record)

	bus.EmitUserCompletedStory(context.Background(), "user-1", "story-1")
	bus.Wait()

	require.Len(t, received, 2)
	for _, evt := range received {
		assert.Equal(t, KindUserCompletedStory, evt.Kind)
		assert.Equal(t, "user-1", evt.UserID)
		assert.Equal(t, "story-1", evt.StoryID)
		assert.False(t, evt.OccurredAt.IsZero())
	}
}

func TestBus_HandlerFailuresAreIsolated(t *testing.T) {
	metrics.EventHandlerFailuresTotal.Reset()
	bus := NewBus(logger.Nop())

	var healthy atomic.Int32
	bus.Subscribe(KindUserLoggedIn, "panics", func(context.Context, Event) error {
		panic("boom")
	})
	bus.Subscribe(KindUserLoggedIn, "fails", func(context.Context, Event) error {
		return errors.New("nope")
	})
	bus.Subscribe(KindUserLoggedIn, "healthy", func(context.Context, Event) error {
		healthy.Add(1)
		return nil
	})

	bus.EmitUserLoggedIn(context.Background(), "user-1")
	assert.NotPanics(t, bus.Wait)

	assert.Equal(t, int32(1), healthy.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(
		metrics.EventHandlerFailuresTotal.WithLabelValues(string(KindUserLoggedIn), "panics", "panic")))
	assert.Equal(t, 1.0, testutil.ToFloat64(
		metrics.EventHandlerFailuresTotal.WithLabelValues(string(KindUserLoggedIn), "fails", "error")))
}

func TestBus_PublishReturnsBeforeHandlersFinish(t *testing.T) {
	bus := NewBus(logger.Nop())

	release := make(chan struct{})
	done := make(chan struct{})
	bus.Subscribe(KindUserLoggedIn, "slow", func(context.Context, Event) error {
		<-release
		close(done)
		return nil
	})

	bus.EmitUserLoggedIn(context.Background(), "user-1")

	select {
	case <-done:
		t.Fatal("handler finished before being released")
	default:
	}

	close(release)
	bus.Wait()
	<-done
}

func TestBus_HandlersOutliveCanceledContext(t *testing.T) {
	bus := NewBus(logger.Nop())

	var ctxErr error
	bus.Subscribe(KindUserLoggedIn, "ctx", func(ctx context.Context, _ Event) error {
		ctxErr = ctx.Err()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	bus.EmitUserLoggedIn(ctx, "user-1")
	bus.Wait()

	assert.NoError(t, ctxErr)
}

func TestBus_NoSubscribers(t *testing.T) {
	bus := NewBus(logger.Nop())

	assert.Equal(t, 0, bus.HandlerCount(KindUserLoggedIn))
	assert.NotPanics(t, func() {
		bus.EmitUserLoggedIn(context.Background(), "user-1")
		bus.Wait()
	})
}
