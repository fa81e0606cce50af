package daemon

import (
	"context"

	"github.com/rainergb/omni-chat-app-sub001/internal/bus"
	"github.com/rainergb/omni-chat-app-sub001/internal/cache"
	"github.com/rainergb/omni-chat-app-sub001/internal/chat"
	"github.com/rainergb/omni-chat-app-sub001/internal/config"
	"github.com/rainergb/omni-chat-app-sub001/internal/gateway"
	"github.com/rainergb/omni-chat-app-sub001/internal/instance"
	"github.com/rainergb/omni-chat-app-sub001/internal/lock"
	"github.com/rainergb/omni-chat-app-sub001/internal/logging"
	"github.com/rainergb/omni-chat-app-sub001/internal/outbox"
	"github.com/rainergb/omni-chat-app-sub001/internal/realtime"
	"github.com/rainergb/omni-chat-app-sub001/internal/session"
	intsync "github.com/rainergb/omni-chat-app-sub001/internal/sync"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// LockOwner is recorded in the session lock while omnid holds it.
const LockOwner = "omnid"

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	SocketPath  string // optional override for testing; empty = use default
	Debug       bool
	// Config skips loading config.toml when set.
	Config *config.Config
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideLock,
			provideCache,
			provideInstances,
			provideChats,
			provideGateway,
			provideBridge,
			provideSender,
			provideSyncEngine,
			providePersister,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	if p.Config != nil {
		return p.Config, nil
	}
	return config.Resolve(session.ConfigPath())
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName, p.Debug)
}

func provideBus(logger *zap.Logger) *bus.Bus {
	return bus.New(bus.WithLogger(logger))
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.LockPath(p.SessionName), LockOwner)
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

func provideCache(p Params, _ *lock.Lock, logger *zap.Logger) (*cache.DB, error) {
	dbPath := session.CachePath(p.SessionName)
	db, err := cache.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("cache initialized", zap.String("path", dbPath))
	return db, nil
}

func provideInstances(b *bus.Bus) *instance.Store {
	return instance.New(b)
}

func provideChats(b *bus.Bus) *chat.Store {
	return chat.New(b)
}

func provideGateway(cfg *config.Config, logger *zap.Logger) *gateway.Client {
	return gateway.New(gateway.Options{
		BaseURL:     cfg.APIURL,
		WebhookBase: cfg.WebhookURL,
		Timeout:     cfg.RequestTimeout.Duration,
	}, logger)
}

func provideBridge(cfg *config.Config, b *bus.Bus, logger *zap.Logger) *realtime.Bridge {
	return realtime.New(&realtime.WSTransport{URL: cfg.RealtimeURL}, b, logger)
}

func provideSender(chats *chat.Store, bridge *realtime.Bridge, b *bus.Bus, logger *zap.Logger) *outbox.Sender {
	return outbox.NewSender(chats, bridge, b, logger)
}

func provideSyncEngine(cfg *config.Config, gw *gateway.Client, instances *instance.Store, chats *chat.Store, sender *outbox.Sender, b *bus.Bus, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(gw, instances, chats, sender, b, logger, intsync.Options{
		StaleAfter:       cfg.StaleAfter.Duration,
		MaxRetries:       cfg.Retries(),
		OptimisticCreate: cfg.OptimisticCreate,
	})
}

func providePersister(cfg *config.Config, db *cache.DB, instances *instance.Store, chats *chat.Store, b *bus.Bus, logger *zap.Logger) *cache.Persister {
	return cache.NewPersister(db, instances, chats, b, logger, cfg.FlushInterval.Duration)
}

type lifecycleDeps struct {
	fx.In

	Server    *Server
	Lock      *lock.Lock
	DB        *cache.DB
	Instances *instance.Store
	Chats     *chat.Store
	Bridge    *realtime.Bridge
	Engine    *intsync.Engine
	Persister *cache.Persister
	Bus       *bus.Bus
	Logger    *zap.Logger
}

func registerLifecycle(lc fx.Lifecycle, d lifecycleDeps) {
	// Background work outlives the OnStart context, which fx cancels once
	// startup completes.
	ctx, cancel := context.WithCancel(context.Background())
	loopDone := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(startCtx context.Context) error {
			// The cache goes in first so events from the bridge override it.
			if err := cache.Hydrate(startCtx, d.DB, d.Instances, d.Chats); err != nil {
				d.Logger.Warn("cache hydrate failed", zap.Error(err))
			}
			d.Persister.Start(ctx)
			d.Engine.Start(ctx)
			d.Server.Track(ctx, d.Bus)

			go func() {
				if err := d.Server.Start(); err != nil {
					d.Logger.Error("gRPC server error", zap.Error(err))
				}
			}()

			if err := d.Bridge.Start(ctx); err != nil {
				return err
			}
			go func() {
				defer close(loopDone)
				d.Engine.RunRefreshLoop(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			d.Bridge.Stop()
			d.Engine.Stop()
			cancel()
			select {
			case <-loopDone:
			case <-stopCtx.Done():
			}
			d.Persister.Stop()
			d.Server.Stop(stopCtx)
			if err := d.DB.Close(); err != nil {
				d.Logger.Warn("error closing cache", zap.Error(err))
			}
			if err := d.Lock.Release(); err != nil {
				d.Logger.Warn("error releasing lock", zap.Error(err))
			}
			d.Logger.Info("daemon stopped")
			_ = d.Logger.Sync()
			return nil
		},
	})
}
