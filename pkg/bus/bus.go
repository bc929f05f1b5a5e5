package bus

import (
	"fmt"
	"sync"

	"github.com/lokutor-ai/assist-core/pkg/logging"
)

// Handler receives events a subscriber registered for. It must not block
// indefinitely; the bus delivers to each subscriber from a single dedicated
// goroutine, so a slow handler only delays its own subscriber, never others
// (spec §4.1, §8 property 3).
type Handler interface {
	Handle(event Event)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(Event)

func (f HandlerFunc) Handle(e Event) { f(e) }

// Subscription is returned from Subscribe and can be used to unregister.
type Subscription struct {
	bus     *Bus
	typ     EventType
	handler Handler
}

// Unsubscribe stops delivery to this subscription; events still waiting in
// its queue are discarded.
func (s *Subscription) Unsubscribe() {
	s.bus.unsubscribe(s.typ, s.handler)
}

type subscriber struct {
	handler Handler
	roles   map[Role]struct{} // nil/empty means "accepts every role"
	queue   chan Event
	done    chan struct{}
}

func (s *subscriber) accepts(role Role) bool {
	if len(s.roles) == 0 || role == "" {
		return true
	}
	_, ok := s.roles[role]
	return ok
}

// Bus is a typed, in-process publish/subscribe hub. Each subscriber has its
// own ordered queue and consumer goroutine, so publish order is preserved
// per (subscriber, type) pair regardless of how many goroutines call
// Publish concurrently.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]*subscriber
	index       map[EventType]map[Handler]*subscriber
	logger      logging.Logger
}

// NewBus constructs an empty Bus. A nil logger defaults to logging.NoOp.
func NewBus(logger logging.Logger) *Bus {
	if logger == nil {
		logger = logging.NoOp{}
	}
	return &Bus{
		subscribers: make(map[EventType][]*subscriber),
		index:       make(map[EventType]map[Handler]*subscriber),
		logger:      logger,
	}
}

// Subscribe registers handler for events of typ. It is idempotent per
// (typ, handler) pair: re-subscribing the same handler value is a no-op.
// When roles is non-empty, only events whose Role is in the set (or unset)
// are delivered.
func (b *Bus) Subscribe(typ EventType, handler Handler, roles ...Role) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.index[typ] == nil {
		b.index[typ] = make(map[Handler]*subscriber)
	}
	if existing, ok := b.index[typ][handler]; ok {
		_ = existing
		return &Subscription{bus: b, typ: typ, handler: handler}
	}

	sub := &subscriber{
		handler: handler,
		queue:   make(chan Event, 256),
		done:    make(chan struct{}),
	}
	if len(roles) > 0 {
		sub.roles = make(map[Role]struct{}, len(roles))
		for _, r := range roles {
			sub.roles[r] = struct{}{}
		}
	}

	b.subscribers[typ] = append(b.subscribers[typ], sub)
	b.index[typ][handler] = sub

	go b.drain(typ, sub)

	return &Subscription{bus: b, typ: typ, handler: handler}
}

func (b *Bus) unsubscribe(typ EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.index[typ][handler]
	if !ok {
		return
	}
	delete(b.index[typ], handler)

	subs := b.subscribers[typ]
	for i, s := range subs {
		if s == sub {
			b.subscribers[typ] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	close(sub.done)
}

// drain delivers queued events to a single subscriber, one at a time, in
// the order Publish enqueued them. Handler panics/errors never escape it.
func (b *Bus) drain(typ EventType, sub *subscriber) {
	for {
		select {
		case event, ok := <-sub.queue:
			if !ok {
				return
			}
			b.dispatch(typ, sub, event)
		case <-sub.done:
			return
		}
	}
}

func (b *Bus) dispatch(typ EventType, sub *subscriber, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.reportError(typ, sub.handler, fmt.Sprintf("%v", r))
		}
	}()
	sub.handler.Handle(event)
}

// reportError publishes an ERROR event naming the original event type, the
// panicking handler (spec §4.1 handler identity), and the recovered reason.
func (b *Bus) reportError(originalType EventType, handler Handler, reason string) {
	handlerID := fmt.Sprintf("%T", handler)
	errEvent := Event{
		Type: ErrorEvent,
		Data: map[string]any{
			"original_type": string(originalType),
			"handler":       handlerID,
			"reason":        reason,
		},
	}
	b.logger.Error("event handler failed", "type", string(originalType), "handler", handlerID, "reason", reason)
	// A failing ERROR handler is only logged, not re-published, so error
	// reporting never recurses back into itself.
	if originalType == ErrorEvent {
		return
	}
	// Deliver directly to ERROR subscribers.
	b.publishNow(errEvent)
}

// Publish hands event off for delivery to every current subscriber of its
// type whose role filter accepts it. It returns once the event has been
// enqueued on each matching subscriber's queue — it does not wait for
// handlers to run.
func (b *Bus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event = New(event.Type, event.Data)
	}
	b.publishNow(event)
}

func (b *Bus) publishNow(event Event) {
	b.mu.RLock()
	subs := append([]*subscriber(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	for _, sub := range subs {
		if !sub.accepts(event.Role) {
			continue
		}
		select {
		case sub.queue <- event:
		default:
			// Subscriber responsible for bounding its own work (spec §4.1);
			// a full 256-event queue here means it fell far behind. Drop
			// rather than block the publisher.
			b.logger.Warn("subscriber queue full, dropping event", "type", string(event.Type))
		}
	}
}
