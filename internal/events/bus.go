// Package events implements the in-process domain event bus.
package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	"github.com/novelmaze/novelmaze/internal/metrics"
	"github.com/novelmaze/novelmaze/pkg/logger"
)

// Kind identifies a domain event type.
type Kind string

// Event kinds.
const (
	KindUserCompletedStory Kind = "USER_COMPLETED_STORY"
	KindUserLoggedIn       Kind = "USER_LOGGED_IN"
)

// Event is a domain event. StoryID is only set for KindUserCompletedStory.
type Event struct {
	Kind       Kind      `json:"type"`
	UserID     string    `json:"userId"`
	StoryID    string    `json:"storyId,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Handler processes one event.
type Handler func(ctx context.Context, evt Event) error

type subscription struct {
	name    string
	handler Handler
}

// Bus dispatches events to subscribers asynchronously. Each handler runs in its
// own goroutine; a failing or panicking handler does not affect the others.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Kind][]subscription
	inflight conc.WaitGroup
	log      *logger.Logger
}

// NewBus creates an empty bus.
func NewBus(log *logger.Logger) *Bus {
	return &Bus{
		handlers: make(map[Kind][]subscription),
		log:      log.Component("events"),
	}
}

// Subscribe registers handler for kind under a name used in logs and metrics.
func (b *Bus) Subscribe(kind Kind, name string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[kind] = append(b.handlers[kind], subscription{name: name, handler: handler})
	b.log.Debug().Str("kind", string(kind)).Str("handler", name).Msg("Handler subscribed")
}

// HandlerCount returns the number of handlers subscribed to kind.
func (b *Bus) HandlerCount(kind Kind) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[kind])
}

// Publish dispatches evt to every subscriber of its kind and returns without
// waiting for them. Handlers receive a context detached from ctx's cancellation
// so that they outlive the request that produced the event.
func (b *Bus) Publish(ctx context.Context, evt Event) {
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now()
	}

	b.mu.RLock()
	subs := append([]subscription(nil), b.handlers[evt.Kind]...)
	b.mu.RUnlock()

	metrics.RecordEventPublished(string(evt.Kind))

	if len(subs) == 0 {
		b.log.Debug().Str("kind", string(evt.Kind)).Msg("No handlers for event")
		return
	}

	detached := context.WithoutCancel(ctx)
	for _, sub := range subs {
		b.inflight.Go(func() {
			b.dispatch(detached, sub, evt)
		})
	}
}

func (b *Bus) dispatch(ctx context.Context, sub subscription, evt Event) {
	var err error
	var catcher panics.Catcher
	catcher.Try(func() {
		err = sub.handler(ctx, evt)
	})

	if recovered := catcher.Recovered(); recovered != nil {
		metrics.RecordEventHandlerFailure(string(evt.Kind), sub.name, "panic")
		b.log.Error().
			Str("kind", string(evt.Kind)).
			Str("handler", sub.name).
			Str("user_id", evt.UserID).
			Str("panic", fmt.Sprint(recovered.Value)).
			Str("stack", string(recovered.Stack)).
			Msg("Event handler panicked")
		return
	}
	if err != nil {
		metrics.RecordEventHandlerFailure(string(evt.Kind), sub.name, "error")
		b.log.Error().
			Err(err).
			Str("kind", string(evt.Kind)).
			Str("handler", sub.name).
			Str("user_id", evt.UserID).
			Msg("Event handler failed")
	}
}

// Wait blocks until every dispatched handler has returned.
func (b *Bus) Wait() {
	b.inflight.Wait()
}

// EmitUserCompletedStory publishes a USER_COMPLETED_STORY event.
func (b *Bus) EmitUserCompletedStory(ctx context.Context, userID, storyID string) {
	b.Publish(ctx, Event{Kind: KindUserCompletedStory, UserID: userID, StoryID: storyID})
}

// EmitUserLoggedIn publishes a USER_LOGGED_IN event.
func (b *Bus) EmitUserLoggedIn(ctx context.Context, userID string) {
	b.Publish(ctx, Event{Kind: KindUserLoggedIn, UserID: userID})
}
