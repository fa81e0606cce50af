package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rainergb/omni-chat-app-sub001/internal/bus"
	"github.com/rainergb/omni-chat-app-sub001/internal/chat"
	"github.com/rainergb/omni-chat-app-sub001/internal/instance"
	"go.uber.org/zap"
)

// DefaultFlushInterval is how often dirty stores are written out.
const DefaultFlushInterval = 2 * time.Second

// Hydrate loads the cached snapshot into empty stores. It runs before the
// realtime bridge starts, so a fresh listing or event always wins over it.
func Hydrate(ctx context.Context, db *DB, instances *instance.Store, chats *chat.Store) error {
	list, err := db.LoadInstances(ctx)
	if err != nil {
		return fmt.Errorf("load instances: %w", err)
	}
	snap, err := db.LoadChats(ctx)
	if err != nil {
		return fmt.Errorf("load chats: %w", err)
	}
	if len(list) > 0 {
		instances.ReplaceAll(list)
	}
	if len(snap.Chats) > 0 {
		chats.SetChats(snap.Chats)
	}
	for chatID, msgs := range snap.Messages {
		chats.SetMessages(chatID, msgs)
	}
	return nil
}

// Persister writes store snapshots to the cache whenever instance or chat
// events mark them dirty. Writes are batched on a ticker and flushed on Stop.
type Persister struct {
	db        *DB
	instances *instance.Store
	chats     *chat.Store
	bus       *bus.Bus
	logger    *zap.Logger
	interval  time.Duration

	instancesDirty atomic.Bool
	chatsDirty     atomic.Bool
	flushMu        sync.Mutex

	cancel context.CancelFunc
	done   chan struct{}
}

// NewPersister creates a persister. interval <= 0 selects DefaultFlushInterval.
func NewPersister(db *DB, instances *instance.Store, chats *chat.Store, b *bus.Bus, logger *zap.Logger, interval time.Duration) *Persister {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	return &Persister{
		db:        db,
		instances: instances,
		chats:     chats,
		bus:       b,
		logger:    logger.Named("cache"),
		interval:  interval,
	}
}

// Start subscribes to store events and begins the flush loop.
func (p *Persister) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	instCh, unsubInst := p.bus.Subscribe("instance.", 256)
	chatCh, unsubChat := p.bus.Subscribe("chat.", 256)

	go func() {
		defer close(p.done)
		defer unsubInst()
		defer unsubChat()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case evt := <-instCh:
				p.mark(evt)
			case evt := <-chatCh:
				p.mark(evt)
			case <-ticker.C:
				p.Flush(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop ends the loop and writes a final full snapshot.
func (p *Persister) Stop() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
	// Events still buffered in the subscriptions are covered by the snapshot.
	p.instancesDirty.Store(true)
	p.chatsDirty.Store(true)
	p.Flush(context.Background())
}

func (p *Persister) mark(evt bus.Event) {
	switch {
	case strings.HasPrefix(evt.Kind, "instance."):
		if evt.Kind != bus.InstanceSelected {
			p.instancesDirty.Store(true)
		}
	case strings.HasPrefix(evt.Kind, "chat."):
		if evt.Kind != bus.ChatSelected && evt.Kind != bus.ChatTyping {
			p.chatsDirty.Store(true)
		}
	}
}

// Flush writes the dirty stores now.
func (p *Persister) Flush(ctx context.Context) {
	p.flushMu.Lock()
	defer p.flushMu.Unlock()

	if p.instancesDirty.Swap(false) {
		if err := p.db.SaveInstances(ctx, p.instances.List()); err != nil {
			p.instancesDirty.Store(true)
			p.logger.Error("failed to persist instances", zap.Error(err))
		}
	}
	if p.chatsDirty.Swap(false) {
		if err := p.db.SaveChats(ctx, p.chats.Snapshot()); err != nil {
			p.chatsDirty.Store(true)
			p.logger.Error("failed to persist chats", zap.Error(err))
		}
	}
}
