package bus

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Bus is an in-process publish/subscribe event bus with namespace filtering.
// It is the broadcast channel that decouples the realtime bridge from the stores.
type Bus struct {
	mu      sync.RWMutex
	subs    map[int]*subscription
	next    int
	logger  *zap.Logger
	dropped atomic.Uint64
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger reports events missed by a full subscriber on logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *Bus) {
		if l != nil {
			b.logger = l.Named("bus")
		}
	}
}

type subscription struct {
	namespace string
	ch        chan Event
}

// New creates a new event bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		subs:   make(map[int]*subscription),
		logger: zap.NewNop(),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Publish sends an event to all subscribers whose namespace is a prefix of evt.Kind.
// Delivery never blocks: a subscriber with a full buffer misses the event, which
// is counted and logged.
func (b *Bus) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if !strings.HasPrefix(evt.Kind, sub.namespace) {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			n := b.dropped.Add(1)
			b.logger.Warn("event dropped, subscriber full",
				zap.String("kind", evt.Kind),
				zap.String("namespace", sub.namespace),
				zap.Uint64("dropped_total", n))
		}
	}
}

// Emit is shorthand for publishing kind with payload stamped at the current time.
// Safe to call on a nil Bus.
func (b *Bus) Emit(kind string, payload any) {
	if b == nil {
		return
	}
	b.Publish(Event{Kind: kind, Timestamp: time.Now(), Payload: payload})
}

// Subscribe returns a channel that receives events matching the given namespace prefix.
// bufSize controls the channel buffer. Returns the channel and an unsubscribe function;
// calling the unsubscribe function more than once is harmless.
func (b *Bus) Subscribe(namespace string, bufSize int) (<-chan Event, func()) {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = &subscription{namespace: namespace, ch: ch}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Dropped returns how many deliveries were skipped because a subscriber's
// buffer was full.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Subscribers returns the number of active subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
