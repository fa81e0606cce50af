package sync

import (
	"context"
	"errors"
	gosync "sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rainergb/omni-chat-app-sub001/internal/bus"
	"github.com/rainergb/omni-chat-app-sub001/internal/chat"
	"github.com/rainergb/omni-chat-app-sub001/internal/gateway"
	"github.com/rainergb/omni-chat-app-sub001/internal/instance"
	"github.com/rainergb/omni-chat-app-sub001/internal/model"
	"github.com/rainergb/omni-chat-app-sub001/internal/realtime"
	"github.com/rainergb/omni-chat-app-sub001/internal/wa"
	"go.uber.org/zap"
)

// ErrUnknownInstance is returned for operations on an id the store does not hold.
var ErrUnknownInstance = errors.New("unknown instance")

// Gateway is the remote instance service.
type Gateway interface {
	ListInstances(ctx context.Context) ([]model.Instance, error)
	CreateInstance(ctx context.Context, canal string, sendDelay int) (gateway.CreateResponse, error)
	UpdateInstance(ctx context.Context, id string, patch model.InstancePatch) (model.InstancePatch, error)
	DeleteInstance(ctx context.Context, id string) error
	DisconnectInstance(ctx context.Context, id string) error
	ReloadInstance(ctx context.Context, id string) error
	GetQRCode(ctx context.Context, id string) (string, error)
}

// MessageSender delivers an outgoing chat message.
type MessageSender interface {
	Send(ctx context.Context, chatID, content string) (model.Message, error)
}

// Options tunes the engine. Zero values pick the defaults.
type Options struct {
	// StaleAfter is how long a listing stays fresh. Defaults to 5 minutes.
	StaleAfter time.Duration
	// MaxRetries bounds retries of a failed remote call. Client errors are never retried.
	MaxRetries int
	Backoff    func() backoff.BackOff

	// OptimisticCreate shows a provisional record while a create is in flight.
	OptimisticCreate bool
}

// eventBuffer bounds the realtime events queued for the engine. Overflow is
// counted and logged by the bus.
const eventBuffer = 1024

// Notification is the payload of notify.error.
type Notification struct {
	Op         string
	InstanceID string
	Message    string
}

// Engine reconciles the local stores with the remote service and the realtime
// channel. It subscribes to "rt.*" events on the bus and runs every remote
// mutation as an optimistic change that is committed or reverted.
type Engine struct {
	gw        Gateway
	instances *instance.Store
	chats     *chat.Store
	sender    MessageSender
	bus       *bus.Bus
	logger    *zap.Logger

	staleAfter       time.Duration
	maxRetries       int
	newBackoff       func() backoff.BackOff
	optimisticCreate bool
	now              func() time.Time

	refreshMu   gosync.Mutex
	mu          gosync.Mutex
	lastRefresh time.Time

	stopped atomic.Bool
	cancel  context.CancelFunc
	wg      gosync.WaitGroup
}

// NewEngine creates a new sync engine. sender may be nil when the engine is
// not used to send messages.
func NewEngine(gw Gateway, instances *instance.Store, chats *chat.Store, sender MessageSender, b *bus.Bus, logger *zap.Logger, opts Options) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 5 * time.Minute
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.Backoff == nil {
		opts.Backoff = func() backoff.BackOff {
			eb := backoff.NewExponentialBackOff()
			eb.InitialInterval = 300 * time.Millisecond
			eb.MaxInterval = 5 * time.Second
			return eb
		}
	}
	return &Engine{
		gw:               gw,
		instances:        instances,
		chats:            chats,
		sender:           sender,
		bus:              b,
		logger:           logger.Named("sync"),
		staleAfter:       opts.StaleAfter,
		maxRetries:       opts.MaxRetries,
		newBackoff:       opts.Backoff,
		optimisticCreate: opts.OptimisticCreate,
		now:              time.Now,
	}
}

// Start subscribes to realtime events on the bus.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	ch, unsub := e.bus.Subscribe("rt.", eventBuffer)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer unsub()
		for {
			select {
			case evt := <-ch:
				e.handleEvent(ctx, evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the engine. Remote responses arriving afterwards are dropped.
func (e *Engine) Stop() {
	e.stopped.Store(true)
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
}

func (e *Engine) handleEvent(ctx context.Context, evt bus.Event) {
	switch evt.Kind {
	case bus.RealtimeStatus:
		p, ok := evt.Payload.(realtime.StatusPayload)
		if !ok {
			return
		}
		e.applyStatus(ctx, p)
	case bus.RealtimeMessage:
		p, ok := evt.Payload.(realtime.MessagePayload)
		if !ok {
			return
		}
		e.ingest(ctx, p)
	case bus.RealtimeConnected:
		// Events may have been missed while the channel was down.
		e.refreshAsync(ctx)
	}
}

func (e *Engine) applyStatus(ctx context.Context, p realtime.StatusPayload) {
	st := p.Resolve()
	at := p.Timestamp.Time()
	if at.IsZero() {
		at = e.now()
	}
	patch := model.InstancePatch{Status: &st, LastActivity: &at}
	if st == model.StatusConnected {
		patch.QRCode = model.Ptr("")
	}
	if !e.instances.Update(p.InstanceID, patch) {
		e.logger.Info("status for unknown instance, refreshing", zap.String("instance_id", p.InstanceID))
		e.refreshAsync(ctx)
	}
}

func (e *Engine) ingest(ctx context.Context, p realtime.MessagePayload) {
	in, err := wa.ParseInbound(p)
	if err != nil {
		e.logger.Warn("dropping realtime message", zap.Error(err), zap.String("instance_id", p.InstanceID))
		return
	}
	if !e.chats.IngestMessage(in) {
		return
	}
	at := in.Message.Timestamp
	if at.IsZero() {
		at = e.now()
	}
	if !e.instances.AddMessages(in.Chat.InstanceID, 1, at) {
		e.refreshAsync(ctx)
	}
}

func (e *Engine) refreshAsync(ctx context.Context) {
	if e.stopped.Load() {
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		_ = e.RefreshInstances(ctx, true)
	}()
}

// RefreshInstances reloads the instance listing and replaces the store with
// it. Without force, a listing younger than the staleness window is kept.
func (e *Engine) RefreshInstances(ctx context.Context, force bool) error {
	e.refreshMu.Lock()
	defer e.refreshMu.Unlock()

	if !force && !e.isStale() {
		return nil
	}

	var list []model.Instance
	err := e.retry(ctx, func() error {
		var err error
		list, err = e.gw.ListInstances(ctx)
		return err
	})
	if e.stopped.Load() {
		return nil
	}
	if err != nil {
		e.notify(gateway.OpList, "", err)
		return err
	}
	e.instances.ReplaceAll(list)

	e.mu.Lock()
	e.lastRefresh = e.now()
	e.mu.Unlock()
	e.logger.Debug("instances refreshed", zap.Int("count", len(list)))
	return nil
}

func (e *Engine) isStale() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastRefresh.IsZero() || e.now().Sub(e.lastRefresh) >= e.staleAfter
}

// RunRefreshLoop refreshes once, then again whenever the listing goes stale,
// until ctx is cancelled.
func (e *Engine) RunRefreshLoop(ctx context.Context) {
	_ = e.RefreshInstances(ctx, true)
	ticker := time.NewTicker(e.staleAfter)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_ = e.RefreshInstances(ctx, false)
		case <-ctx.Done():
			return
		}
	}
}

// CreateInstance registers an instance remotely and inserts it once the
// server has assigned its id. With OptimisticCreate a provisional record is
// shown meanwhile and removed again on failure. Creation is not retried since
// it is not idempotent.
func (e *Engine) CreateInstance(ctx context.Context, draft model.InstanceDraft, sendDelay int) (model.Instance, error) {
	if e.optimisticCreate {
		return e.createOptimistic(ctx, draft, sendDelay)
	}
	resp, err := e.gw.CreateInstance(ctx, draft.Name, sendDelay)
	if e.stopped.Load() {
		return model.Instance{}, context.Canceled
	}
	if err != nil {
		e.notify(gateway.OpCreate, "", err)
		return model.Instance{}, err
	}
	inst := e.instances.Insert(e.createdRecord(resp.ID, draft))
	e.logger.Info("instance created", zap.String("instance_id", inst.ID), zap.String("name", inst.Name))
	return inst, nil
}

func (e *Engine) createOptimistic(ctx context.Context, draft model.InstanceDraft, sendDelay int) (model.Instance, error) {
	p, tmp := e.instances.ApplyCreate(draft)
	resp, err := e.gw.CreateInstance(ctx, draft.Name, sendDelay)
	if e.stopped.Load() {
		return model.Instance{}, context.Canceled
	}
	if err != nil {
		e.instances.Revert(p)
		e.notify(gateway.OpCreate, "", err)
		return model.Instance{}, err
	}
	rec := e.createdRecord(resp.ID, draft)
	rec.CreatedAt = tmp.CreatedAt
	e.instances.Commit(p, &rec)
	inst, ok := e.instances.Get(resp.ID)
	if !ok {
		inst = rec
	}
	e.logger.Info("instance created", zap.String("instance_id", inst.ID), zap.String("provisional_id", tmp.ID))
	return inst, nil
}

func (e *Engine) createdRecord(id string, draft model.InstanceDraft) model.Instance {
	status := draft.Status
	if status == "" {
		status = model.StatusDisconnected
	}
	typ := draft.Type
	if typ == "" {
		typ = model.PlatformWhatsApp
	}
	now := e.now()
	return model.Instance{
		ID:            id,
		Name:          draft.Name,
		Type:          typ,
		Status:        status,
		LastActivity:  now,
		MessagesCount: draft.MessagesCount,
		CreatedAt:     now,
		WebhookURL:    draft.WebhookURL,
		Avatar:        draft.Avatar,
	}
}

// UpdateInstance applies patch locally, then remotely. A remote failure
// reverts the local change.
func (e *Engine) UpdateInstance(ctx context.Context, id string, patch model.InstancePatch) error {
	p, ok := e.instances.Apply(id, patch)
	if !ok {
		return ErrUnknownInstance
	}
	var echo model.InstancePatch
	err := e.retry(ctx, func() error {
		var err error
		echo, err = e.gw.UpdateInstance(ctx, id, patch)
		return err
	})
	if e.stopped.Load() {
		return nil
	}
	if err != nil {
		e.instances.Revert(p)
		e.notify(gateway.OpUpdate, id, err)
		return err
	}
	// The echo may be partial or a bare acknowledgement.
	e.instances.CommitPatch(p, echo)
	return nil
}

// DeleteInstance removes id locally, then remotely. A remote failure puts the
// record back at its former position.
func (e *Engine) DeleteInstance(ctx context.Context, id string) error {
	p, ok := e.instances.ApplyDelete(id)
	if !ok {
		return ErrUnknownInstance
	}
	return e.resolve(ctx, p, gateway.OpDelete, id, func() error { return e.gw.DeleteInstance(ctx, id) })
}

// DisconnectInstance marks id disconnected locally, then ends its session remotely.
func (e *Engine) DisconnectInstance(ctx context.Context, id string) error {
	st := model.StatusDisconnected
	p, ok := e.instances.Apply(id, model.InstancePatch{Status: &st, QRCode: model.Ptr("")})
	if !ok {
		return ErrUnknownInstance
	}
	return e.resolve(ctx, p, gateway.OpDisconnect, id, func() error { return e.gw.DisconnectInstance(ctx, id) })
}

// ReloadInstance marks id connecting locally, then restarts its session remotely.
func (e *Engine) ReloadInstance(ctx context.Context, id string) error {
	st := model.StatusConnecting
	p, ok := e.instances.Apply(id, model.InstancePatch{Status: &st})
	if !ok {
		return ErrUnknownInstance
	}
	return e.resolve(ctx, p, gateway.OpReload, id, func() error { return e.gw.ReloadInstance(ctx, id) })
}

func (e *Engine) resolve(ctx context.Context, p instance.Pending, op, id string, call func() error) error {
	err := e.retry(ctx, call)
	if e.stopped.Load() {
		return nil
	}
	if err != nil {
		e.instances.Revert(p)
		e.notify(op, id, err)
		return err
	}
	e.instances.Commit(p, nil)
	return nil
}

// FetchQRCode retrieves the pairing code of id and stores it on the instance,
// which moves to connecting.
func (e *Engine) FetchQRCode(ctx context.Context, id string) (string, error) {
	var qr string
	err := e.retry(ctx, func() error {
		var err error
		qr, err = e.gw.GetQRCode(ctx, id)
		return err
	})
	if e.stopped.Load() {
		return "", context.Canceled
	}
	if err != nil {
		e.notify(gateway.OpQRCode, id, err)
		return "", err
	}
	st := model.StatusConnecting
	e.instances.Update(id, model.InstancePatch{QRCode: &qr, Status: &st})
	return qr, nil
}

// SendMessage sends content to chatID through the outbox and counts it on the
// owning instance.
func (e *Engine) SendMessage(ctx context.Context, chatID, content string) (model.Message, error) {
	if e.sender == nil {
		return model.Message{}, errors.New("sending is not configured")
	}
	msg, err := e.sender.Send(ctx, chatID, content)
	if err != nil {
		e.notify("enviar mensagem", "", err)
		return msg, err
	}
	if c, ok := e.chats.Chat(chatID); ok {
		e.instances.AddMessages(c.InstanceID, 1, msg.Timestamp)
	}
	return msg, nil
}

// retry runs fn until it succeeds, fails with a client error, or exhausts
// MaxRetries further attempts.
func (e *Engine) retry(ctx context.Context, fn func() error) error {
	bo := backoff.WithContext(backoff.WithMaxRetries(e.newBackoff(), uint64(e.maxRetries)), ctx)
	return backoff.Retry(func() error {
		err := fn()
		if err != nil && gateway.IsClientError(err) {
			return backoff.Permanent(err)
		}
		return err
	}, bo)
}

func (e *Engine) notify(op, id string, err error) {
	if e.stopped.Load() {
		return
	}
	fields := []zap.Field{zap.String("op", op), zap.Error(err)}
	if id != "" {
		fields = append(fields, zap.String("instance_id", id))
	}
	var gerr *gateway.Error
	if errors.As(err, &gerr) {
		fields = append(fields, zap.Int("status", gerr.StatusCode), zap.NamedError("cause", gerr.Cause()))
	}
	e.logger.Error("remote operation failed", fields...)
	e.bus.Emit(bus.NotifyError, Notification{Op: op, InstanceID: id, Message: err.Error()})
}
