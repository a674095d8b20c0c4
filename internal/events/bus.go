// Package events implements the in-process publish/subscribe hub every engine
// component reports state changes through.
package events

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/domain"
	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/observability"
)

const (
	// Wildcard subscribes to every event name.
	Wildcard Name = "*"

	defaultHistorySize = 1000
)

// Config contains event bus settings.
type Config struct {
	HistorySize int `env:"EVENT_HISTORY_SIZE" envDefault:"1000"`
}

// Event is the unit of bus traffic.
type Event struct {
	ID        string    `json:"id"`
	Name      Name      `json:"name"`
	Data      Payload   `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Handler receives published events.
type Handler func(ctx context.Context, evt Event)

// Unsubscribe removes a subscription. Calling it more than once is safe.
type Unsubscribe func()

// Publisher is the producer side of the bus.
type Publisher interface {
	// Publish delivers payload to all current subscribers of its event name.
	Publish(ctx context.Context, payload Payload)
}

// Stats reports bus counters.
type Stats struct {
	Published     uint64 `json:"published"`
	Dropped       uint64 `json:"dropped"`
	HandlerPanics uint64 `json:"handlerPanics"`
	Subscribers   int    `json:"subscribers"`
	HistorySize   int    `json:"historySize"`
}

type subscription struct {
	id      uint64
	name    Name
	owner   string
	handler Handler
}

// Bus is a synchronous, typed publish/subscribe hub.
type Bus struct {
	mu          sync.RWMutex
	started     bool
	subscribers map[Name][]*subscription
	history     []Event
	historySize int
	nextID      uint64

	published atomic.Uint64
	dropped   atomic.Uint64
	panics    atomic.Uint64
}

// New creates a stopped bus. Call Start before publishing.
func New(cfg Config) *Bus {
	size := cfg.HistorySize
	if size <= 0 {
		size = defaultHistorySize
	}

	return &Bus{
		subscribers: make(map[Name][]*subscription),
		history:     make([]Event, 0, size),
		historySize: size,
	}
}

// Start enables delivery.
func (b *Bus) Start() {
	b.mu.Lock()
	b.started = true
	b.mu.Unlock()
}

// Stop disables delivery; later publishes are dropped.
func (b *Bus) Stop() {
	b.mu.Lock()
	b.started = false
	b.mu.Unlock()
}

// Started reports whether the bus delivers events.
func (b *Bus) Started() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.started
}

// Publish delivers payload synchronously to subscribers of its name and to
// wildcard subscribers. A panicking handler is logged and skipped.
func (b *Bus) Publish(ctx context.Context, payload Payload) {
	if payload == nil {
		return
	}

	b.mu.Lock()
	if !b.started {
		b.mu.Unlock()
		b.dropped.Add(1)
		return
	}

	evt := Event{
		ID:        uuid.NewString(),
		Name:      payload.EventName(),
		Data:      payload,
		Timestamp: time.Now(),
	}
	b.appendHistory(evt)

	targets := make([]*subscription, 0, len(b.subscribers[evt.Name])+len(b.subscribers[Wildcard]))
	targets = append(targets, b.subscribers[evt.Name]...)
	if evt.Name != Wildcard {
		targets = append(targets, b.subscribers[Wildcard]...)
	}
	b.mu.Unlock()

	b.published.Add(1)

	for _, sub := range targets {
		b.dispatch(ctx, sub, evt)
	}
}

func (b *Bus) dispatch(ctx context.Context, sub *subscription, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			b.panics.Add(1)
			observability.FromContext(ctx).Error("event handler panicked",
				observability.String("event", string(evt.Name)),
				observability.String("owner", sub.owner),
				observability.Any("panic", r))
		}
	}()

	sub.handler(ctx, evt)
}

// appendHistory must be called with b.mu held.
func (b *Bus) appendHistory(evt Event) {
	if len(b.history) >= b.historySize {
		copy(b.history, b.history[1:])
		b.history = b.history[:len(b.history)-1]
	}
	b.history = append(b.history, evt)
}

// Subscribe registers handler for name. owner tags the subscription so
// UnsubscribeModule can tear down everything a component registered.
func (b *Bus) Subscribe(name Name, handler Handler, owner string) Unsubscribe {
	b.mu.Lock()
	b.nextID++
	sub := &subscription{
		id:      b.nextID,
		name:    name,
		owner:   owner,
		handler: handler,
	}
	b.subscribers[name] = append(b.subscribers[name], sub)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(sub) })
	}
}

// SubscribeAll registers handler for every event.
func (b *Bus) SubscribeAll(handler Handler, owner string) Unsubscribe {
	return b.Subscribe(Wildcard, handler, owner)
}

// UnsubscribeModule removes all subscriptions tagged with owner and returns how many were removed.
func (b *Bus) UnsubscribeModule(owner string) int {
	if owner == "" {
		return 0
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	removed := 0
	for name, subs := range b.subscribers {
		kept := subs[:0]
		for _, sub := range subs {
			if sub.owner == owner {
				removed++
				continue
			}
			kept = append(kept, sub)
		}
		if len(kept) == 0 {
			delete(b.subscribers, name)
		} else {
			b.subscribers[name] = kept
		}
	}

	return removed
}

func (b *Bus) remove(target *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[target.name]
	for i, sub := range subs {
		if sub.id != target.id {
			continue
		}
		// Copy so a concurrent Publish iterating the old slice is unaffected.
		next := make([]*subscription, 0, len(subs)-1)
		next = append(next, subs[:i]...)
		next = append(next, subs[i+1:]...)
		if len(next) == 0 {
			delete(b.subscribers, target.name)
		} else {
			b.subscribers[target.name] = next
		}
		return
	}
}

// WaitFor blocks until the next event named name is published, timeout
// elapses (domain.ErrTimeout) or ctx ends. The listener is always removed.
func (b *Bus) WaitFor(ctx context.Context, name Name, timeout time.Duration) (Event, error) {
	received := make(chan Event, 1)
	unsubscribe := b.Subscribe(name, func(_ context.Context, evt Event) {
		select {
		case received <- evt:
		default:
		}
	}, "")
	defer unsubscribe()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case evt := <-received:
		return evt, nil
	case <-timer.C:
		return Event{}, fmt.Errorf("waiting for %s after %s: %w", name, timeout, domain.ErrTimeout)
	case <-ctx.Done():
		return Event{}, fmt.Errorf("waiting for %s: %w", name, ctx.Err())
	}
}

// ListenerCount returns the number of handlers subscribed to name.
func (b *Bus) ListenerCount(name Name) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[name])
}

// History returns a copy of retained events, oldest first.
func (b *Bus) History() []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Event, len(b.history))
	copy(out, b.history)
	return out
}

// Stats returns bus counters.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	subscribers := 0
	for _, subs := range b.subscribers {
		subscribers += len(subs)
	}
	historySize := len(b.history)
	b.mu.RUnlock()

	return Stats{
		Published:     b.published.Load(),
		Dropped:       b.dropped.Load(),
		HandlerPanics: b.panics.Load(),
		Subscribers:   subscribers,
		HistorySize:   historySize,
	}
}

// On subscribes a typed handler; the event name is taken from T.
func On[T Payload](b *Bus, owner string, fn func(ctx context.Context, payload T)) Unsubscribe {
	var zero T
	return b.Subscribe(zero.EventName(), func(ctx context.Context, evt Event) {
		if payload, ok := evt.Data.(T); ok {
			fn(ctx, payload)
		}
	}, owner)
}
