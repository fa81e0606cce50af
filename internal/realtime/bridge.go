package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rainergb/omni-chat-app-sub001/internal/bus"
	"github.com/rainergb/omni-chat-app-sub001/internal/status"
	"go.uber.org/zap"
)

var (
	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("realtime bridge already started")
	// ErrNotConnected is returned by Emit while no link is established.
	ErrNotConnected = errors.New("realtime channel not connected")
)

// DefaultBackoff is the reconnect policy used when none is configured.
func DefaultBackoff() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 500 * time.Millisecond
	eb.MaxInterval = 30 * time.Second
	eb.MaxElapsedTime = 0
	return eb
}

// DefaultStableAfter is how long a link must stay up before the reconnect
// policy starts over.
const DefaultStableAfter = 5 * time.Second

// Option configures a Bridge.
type Option func(*Bridge)

// WithBackoff overrides the reconnect policy.
func WithBackoff(f func() backoff.BackOff) Option {
	return func(b *Bridge) { b.newBackoff = f }
}

// WithStableAfter overrides DefaultStableAfter.
func WithStableAfter(d time.Duration) Option {
	return func(b *Bridge) { b.stableAfter = d }
}

// WithMachine shares an existing state machine instead of creating one.
func WithMachine(m *status.Machine) Option {
	return func(b *Bridge) { b.machine = m }
}

// link is one established connection. Its Close runs once no matter how many
// paths try to tear it down.
type link struct {
	conn Conn
	once sync.Once
}

func (l *link) close() {
	l.once.Do(func() { _ = l.conn.Close() })
}

// Bridge owns the realtime channel of a session. It keeps the link alive,
// translates inbound frames into bus events and carries outbound events.
type Bridge struct {
	transport   Transport
	bus         *bus.Bus
	machine     *status.Machine
	logger      *zap.Logger
	newBackoff  func() backoff.BackOff
	stableAfter time.Duration

	mu      sync.Mutex
	started bool
	current *link
	lastErr error
	cancel  context.CancelFunc
	done    chan struct{}

	stopOnce sync.Once
}

// New creates a bridge over t. b and logger may be nil.
func New(t Transport, b *bus.Bus, logger *zap.Logger, opts ...Option) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	br := &Bridge{
		transport:   t,
		bus:         b,
		logger:      logger.Named("realtime"),
		newBackoff:  DefaultBackoff,
		stableAfter: DefaultStableAfter,
	}
	for _, o := range opts {
		o(br)
	}
	if br.machine == nil {
		br.machine = status.NewMachine(b)
	}
	return br
}

// Machine returns the channel state machine.
func (b *Bridge) Machine() *status.Machine {
	return b.machine
}

// Start begins connecting in the background. It returns immediately; progress
// is reported on the bus.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return ErrAlreadyStarted
	}
	b.started = true
	ctx, b.cancel = context.WithCancel(ctx)
	b.done = make(chan struct{})
	go b.run(ctx)
	return nil
}

// Stop tears the channel down and waits for the background loop to exit.
// Only the first call has any effect.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		// Cancel under the lock so run either sees the cancellation in attach
		// or has already published the link we close here.
		b.mu.Lock()
		b.started = true
		done, l := b.done, b.current
		if b.cancel != nil {
			b.cancel()
		}
		b.mu.Unlock()

		if done == nil {
			b.transition(status.Closed)
			return
		}
		if l != nil {
			l.close()
		}
		<-done
		b.transition(status.Closed)
		b.logger.Info("realtime bridge stopped")
	})
}

// Connected reports whether a link is currently established.
func (b *Bridge) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current != nil
}

// LastError returns the most recent connection error, cleared on establish.
func (b *Bridge) LastError() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastErr
}

// Emit sends event with data over the established link. While disconnected the
// event is dropped and ErrNotConnected returned.
func (b *Bridge) Emit(ctx context.Context, event string, data any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	l := b.current
	b.mu.Unlock()
	if l == nil {
		b.logger.Warn("dropping event while disconnected", zap.String("event", event))
		return ErrNotConnected
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	if err := l.conn.WriteFrame(Frame{Event: event, Data: raw}); err != nil {
		return fmt.Errorf("write %s: %w", event, err)
	}
	return nil
}

func (b *Bridge) run(ctx context.Context) {
	defer close(b.done)
	bo := b.newBackoff()
	// fastUsed is set once a server close got an immediate redial; it clears
	// only after a link stays up for stableAfter, so a server that accepts and
	// drops every link is retried on the backoff schedule.
	fastUsed := false

	for {
		if ctx.Err() != nil {
			return
		}
		b.transition(status.Connecting)
		conn, err := b.transport.Dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			b.setError(err)
			b.logger.Warn("realtime connect failed", zap.Error(err))
			b.bus.Emit(bus.RealtimeError, err)
			b.transition(status.Reconnecting)
			if !sleep(ctx, next(bo)) {
				return
			}
			continue
		}

		l := &link{conn: conn}
		if !b.attach(ctx, l) {
			l.close()
			return
		}
		b.transition(status.Connected)
		b.logger.Info("realtime channel established")
		b.bus.Emit(bus.RealtimeConnected, nil)
		upAt := time.Now()

		err = b.readLoop(l)
		b.detach(l)
		l.close()

		if ctx.Err() != nil {
			b.bus.Emit(bus.RealtimeDisconnected, Disconnect{Reason: "stopped"})
			return
		}
		server := IsServerClose(err)
		b.logger.Warn("realtime channel lost", zap.Bool("server_initiated", server), zap.Error(err))
		b.bus.Emit(bus.RealtimeDisconnected, Disconnect{ServerInitiated: server, Reason: errString(err)})
		b.transition(status.Reconnecting)
		if time.Since(upAt) >= b.stableAfter {
			bo.Reset()
			fastUsed = false
		}
		if server && !fastUsed {
			fastUsed = true
			continue
		}
		if !sleep(ctx, next(bo)) {
			return
		}
	}
}

// attach installs l as the current link unless the bridge is stopping.
func (b *Bridge) attach(ctx context.Context, l *link) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ctx.Err() != nil {
		return false
	}
	b.current = l
	b.lastErr = nil
	return true
}

func (b *Bridge) detach(l *link) {
	b.mu.Lock()
	if b.current == l {
		b.current = nil
	}
	b.mu.Unlock()
}

func (b *Bridge) setError(err error) {
	b.mu.Lock()
	b.lastErr = err
	b.mu.Unlock()
}

func (b *Bridge) readLoop(l *link) error {
	for {
		f, err := l.conn.ReadFrame()
		if err != nil {
			return err
		}
		b.dispatch(f)
	}
}

func (b *Bridge) dispatch(f Frame) {
	switch f.Event {
	case EventMessage:
		var p MessagePayload
		if err := json.Unmarshal(f.Data, &p); err != nil {
			b.logger.Warn("malformed message event", zap.Error(err))
			return
		}
		b.bus.Emit(bus.RealtimeMessage, p)
	case EventConnected, EventDisconnected, EventStatusSession:
		var p StatusPayload
		if err := json.Unmarshal(f.Data, &p); err != nil {
			b.logger.Warn("malformed status event", zap.String("event", f.Event), zap.Error(err))
			return
		}
		p.Event = f.Event
		b.bus.Emit(bus.RealtimeStatus, p)
	default:
		b.logger.Debug("ignoring realtime event", zap.String("event", f.Event))
	}
}

func (b *Bridge) transition(to status.State) {
	if b.machine.Is(to) {
		return
	}
	if err := b.machine.Transition(to); err != nil {
		b.logger.Debug("state transition skipped", zap.Error(err))
	}
}

func next(bo backoff.BackOff) time.Duration {
	d := bo.NextBackOff()
	if d == backoff.Stop {
		bo.Reset()
		d = bo.NextBackOff()
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
