package engine

import (
	"context"
	"fmt"

	"github.com/pe2pia/chatsync/internal/bus"
	"github.com/pe2pia/chatsync/internal/config"
	"github.com/pe2pia/chatsync/internal/lock"
	"github.com/pe2pia/chatsync/internal/logging"
	"github.com/pe2pia/chatsync/internal/pipeline"
	"github.com/pe2pia/chatsync/internal/profile"
	"github.com/pe2pia/chatsync/internal/store"
	intsync "github.com/pe2pia/chatsync/internal/sync"
	"github.com/pe2pia/chatsync/internal/transport"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	ProfileName string
}

// Module returns the fx module for the engine, composing all providers and
// lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("engine",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideConfig,
			provideBus,
			provideLock,
			provideTransport,
			provideMessageStore,
			provideConversationStore,
			provideSender,
			provideCoordinator,
			provideRoster,
			New,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(profile.LogPath(p.ProfileName), p.ProfileName)
}

func provideConfig(logger *zap.Logger) (*config.Config, error) {
	path := profile.ConfigPath()
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	if cfg.API.BaseURL == "" {
		return nil, fmt.Errorf("config %s: api.base_url is required", path)
	}
	if cfg.API.UserID == "" {
		return nil, fmt.Errorf("config %s: api.user_id is required", path)
	}
	logger.Info("config loaded", zap.String("path", path))
	return cfg, nil
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.ProfileName); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.ProfileName))
	l, err := lock.Acquire(profile.Dir(p.ProfileName))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

func provideTransport(cfg *config.Config, logger *zap.Logger) transport.Client {
	return transport.NewHTTPClient(cfg.API.BaseURL, cfg.API.AuthToken, cfg.APITimeout(), logger)
}

func provideMessageStore() *store.MessageStore {
	return store.NewMessageStore()
}

func provideConversationStore() *store.ConversationStore {
	return store.NewConversationStore()
}

func provideSender(st *store.MessageStore, client transport.Client, b *bus.Bus, logger *zap.Logger) *pipeline.Sender {
	return pipeline.NewSender(st, client, b, logger)
}

func provideCoordinator(st *store.MessageStore, client transport.Client, b *bus.Bus, logger *zap.Logger, cfg *config.Config) *intsync.Coordinator {
	return intsync.NewCoordinator(st, client, b, logger, cfg.MessageInterval())
}

func provideRoster(st *store.ConversationStore, client transport.Client, b *bus.Bus, logger *zap.Logger, cfg *config.Config) *intsync.Roster {
	return intsync.NewRoster(st, client, b, logger, cfg.ConversationInterval())
}

func registerLifecycle(lc fx.Lifecycle, e *Engine, lk *lock.Lock, coordinator *intsync.Coordinator, roster *intsync.Roster, cfg *config.Config, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Conversation-list polling runs for the whole session; message
			// polling starts when a conversation is opened.
			roster.Start(cfg.API.UserID)
			logger.Info("engine started", zap.String("user_id", cfg.API.UserID))
			return nil
		},
		OnStop: func(_ context.Context) error {
			coordinator.Stop()
			roster.Stop()
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("engine stopped")
			return nil
		},
	})
}
