package appmodel

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"
)

// Event is a lifecycle notification published by the host.
type Event interface {
	EventName() string
}

// BeforeStartEvent is published before the host touches any resource.
type BeforeStartEvent struct {
	App *Application
}

func (BeforeStartEvent) EventName() string { return "before-start" }

// AfterEndpointsAllocatedEvent is published once every endpoint has a host
// port and before any container is started.
type AfterEndpointsAllocatedEvent struct {
	App *Application
}

func (AfterEndpointsAllocatedEvent) EventName() string { return "after-endpoints-allocated" }

// AfterResourcesCreatedEvent is published once every container is running.
type AfterResourcesCreatedEvent struct {
	App *Application
}

func (AfterResourcesCreatedEvent) EventName() string { return "after-resources-created" }

// Subscription is a registered handler. Each subscription fires at most once.
type Subscription struct {
	event string
	fn    func(ctx context.Context, e Event) error

	once  sync.Once
	fired atomic.Bool
}

// Fired reports whether the handler has run.
func (s *Subscription) Fired() bool {
	return s.fired.Load()
}

// Eventing dispatches lifecycle events to their subscribers.
type Eventing struct {
	mu   sync.Mutex
	subs map[string][]*Subscription
}

// NewEventing returns an empty dispatcher.
func NewEventing() *Eventing {
	return &Eventing{subs: make(map[string][]*Subscription)}
}

// Subscribe registers a one-shot handler for events of type E.
func Subscribe[E Event](ev *Eventing, handler func(ctx context.Context, e E) error) *Subscription {
	var zero E
	sub := &Subscription{
		event: zero.EventName(),
		fn: func(ctx context.Context, e Event) error {
			return handler(ctx, e.(E))
		},
	}

	ev.mu.Lock()
	defer ev.mu.Unlock()

	ev.subs[sub.event] = append(ev.subs[sub.event], sub)
	return sub
}

// Unsubscribe removes a handler that has not fired yet.
func (ev *Eventing) Unsubscribe(sub *Subscription) {
	ev.mu.Lock()
	defer ev.mu.Unlock()

	list := ev.subs[sub.event]
	for i, s := range list {
		if s == sub {
			ev.subs[sub.event] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// Publish runs every subscriber of e that has not fired yet, sequentially
// and in subscription order. All handlers run even if one fails; their
// errors are combined.
func (ev *Eventing) Publish(ctx context.Context, e Event) error {
	ev.mu.Lock()
	list := make([]*Subscription, len(ev.subs[e.EventName()]))
	copy(list, ev.subs[e.EventName()])
	ev.mu.Unlock()

	var result *multierror.Error
	for _, sub := range list {
		sub.once.Do(func() {
			sub.fired.Store(true)
			if err := sub.fn(ctx, e); err != nil {
				result = multierror.Append(result, err)
			}
		})
	}

	return result.ErrorOrNil()
}

// Count returns the number of subscribers for an event name.
func (ev *Eventing) Count(event string) int {
	ev.mu.Lock()
	defer ev.mu.Unlock()

	return len(ev.subs[event])
}
