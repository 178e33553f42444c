// Package app composes the daemon from fx providers: configuration, logging,
// the profile lock, the local cache, the remote backend and the
// synchronizers. Nothing in here is a singleton; every component is
// constructed once by fx and passed explicitly.
package app

import (
	"context"
	"errors"
	"io/fs"

	"github.com/matheus3301/sendme/internal/bus"
	"github.com/matheus3301/sendme/internal/chatlist"
	"github.com/matheus3301/sendme/internal/config"
	"github.com/matheus3301/sendme/internal/lock"
	"github.com/matheus3301/sendme/internal/logging"
	"github.com/matheus3301/sendme/internal/membership"
	"github.com/matheus3301/sendme/internal/names"
	"github.com/matheus3301/sendme/internal/outbox"
	"github.com/matheus3301/sendme/internal/push"
	"github.com/matheus3301/sendme/internal/session"
	"github.com/matheus3301/sendme/internal/status"
	"github.com/matheus3301/sendme/internal/store"
	"github.com/matheus3301/sendme/internal/unread"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved profile name passed to the fx module.
type Params struct {
	ProfileName string
}

// Module returns the fx module for the daemon, composing all providers and
// lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("app",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideConfig,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideBackend,
			provideNameCache,
			provideAccountant,
			provideMutator,
			provideNotifier,
			provideSender,
			provideChatList,
			provideTimelines,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.ProfileName), p.ProfileName)
}

// provideConfig loads the profile configuration. A missing file is a first
// run: the daemon starts on the memory backend with no identity and waits in
// AUTH_REQUIRED.
func provideConfig(p Params) (*config.Profile, error) {
	cfg, err := config.LoadProfile(session.ProfileConfigPath(p.ProfileName))
	if errors.Is(err, fs.ErrNotExist) {
		return &config.Profile{Backend: config.BackendMemory}, nil
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.ProfileName); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.ProfileName))
	l, err := lock.Acquire(session.Dir(p.ProfileName))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.CacheDBPath(p.ProfileName)
	db, err := store.Open(dbPath)
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
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideNameCache(be Backend, db *store.DB, logger *zap.Logger) *names.Cache {
	c := names.NewCache(be.Profiles, logger)
	c.MirrorTo(db)
	return c
}

func provideAccountant(be Backend, logger *zap.Logger) *unread.Accountant {
	return unread.NewAccountant(be.Chats, logger)
}

func provideMutator(be Backend, logger *zap.Logger) *membership.Mutator {
	return membership.NewMutator(be.Chats, be.Membership, logger)
}

// provideNotifier returns nil when push is disabled; the sender treats a nil
// notifier as "skip".
func provideNotifier(cfg *config.Profile, be Backend, nameCache *names.Cache, logger *zap.Logger) *push.Notifier {
	if !cfg.PushEnabled {
		return nil
	}
	return push.NewNotifier(be.Push, nameCache, logger)
}

func provideSender(cfg *config.Profile, db *store.DB, be Backend, acct *unread.Accountant, notifier *push.Notifier, b *bus.Bus, logger *zap.Logger) *outbox.Sender {
	return outbox.NewSender(cfg.UserID, db, be.Chats, acct, notifier, b, logger)
}

func provideChatList(cfg *config.Profile, be Backend, nameCache *names.Cache, db *store.DB, b *bus.Bus, logger *zap.Logger) *chatlist.Synchronizer {
	return chatlist.New(cfg.UserID, be.Chats, be.Membership, be.Profiles, nameCache, db, b, logger)
}

func provideTimelines(cfg *config.Profile, be Backend, acct *unread.Accountant, sender *outbox.Sender, db *store.DB, b *bus.Bus, logger *zap.Logger) *Timelines {
	return NewTimelines(cfg.UserID, be, acct, sender, db, b, logger)
}

func registerLifecycle(lc fx.Lifecycle, cfg *config.Profile, lk *lock.Lock, db *store.DB, sender *outbox.Sender, chats *chatlist.Synchronizer, timelines *Timelines, machine *status.Machine, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			if cfg.UserID == "" {
				logger.Info("no user id configured, auth required")
				_ = machine.Transition(status.AuthRequired)
				return nil
			}

			_ = machine.Transition(status.Connecting)
			sender.Start(context.Background())

			_ = machine.Transition(status.Syncing)
			if err := chats.Start(context.Background()); err != nil {
				_ = machine.Transition(status.Error)
				return err
			}

			_ = machine.Transition(status.Ready)
			logger.Info("daemon ready", zap.String("uid", cfg.UserID), zap.String("backend", cfg.Backend))
			return nil
		},
		OnStop: func(_ context.Context) error {
			timelines.CloseAll()
			chats.Close()
			sender.Stop()
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
