package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	stdhttp "net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/gdscnexus/nexus-chat/internal/auth"
	"github.com/gdscnexus/nexus-chat/internal/config"
	"github.com/gdscnexus/nexus-chat/internal/core"
	"github.com/gdscnexus/nexus-chat/internal/directory"
	"github.com/gdscnexus/nexus-chat/internal/media"
	"github.com/gdscnexus/nexus-chat/internal/relay"
	"github.com/gdscnexus/nexus-chat/internal/store"
	"github.com/gdscnexus/nexus-chat/internal/store/postgres"
	"github.com/gdscnexus/nexus-chat/internal/store/sqlite"
	transporthttp "github.com/gdscnexus/nexus-chat/internal/transport/http"
)

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	store           store.Store
	relay           *relay.RedisRelay
	closers         []io.Closer
	log             *zerolog.Logger
}

// OpenStore opens the message store selected by cfg.Database.
func OpenStore(ctx context.Context, cfg config.DatabaseConfig) (store.Store, error) {
	switch cfg.Driver {
	case "", "sqlite":
		st, err := sqlite.New(cfg.Path)
		if err != nil {
			return nil, err
		}
		return st, nil
	case "postgres":
		st, err := postgres.New(ctx, cfg.URL)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// JWTConfig converts the configured token settings.
func JWTConfig(cfg config.JWTConfig) *auth.JWTConfig {
	return &auth.JWTConfig{
		Secret:   []byte(cfg.Secret),
		Issuer:   cfg.Issuer,
		Audience: cfg.Audience,
		TTL:      cfg.TTL,
	}
}

// New constructs the application with provided configuration.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := OpenStore(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("driver", cfg.Database.Driver).Msg("database initialized")

	a := &App{
		shutdownTimeout: cfg.ShutdownTimeout,
		store:           st,
		log:             logger,
	}

	backend, err := a.mediaBackend(ctx, cfg.Uploads)
	if err != nil {
		a.cleanup()
		return nil, fmt.Errorf("init media: %w", err)
	}

	authService := auth.NewService(st, JWTConfig(cfg.JWT))
	dir := directory.New(st, st)

	opts := []core.Option{
		core.WithLogger(logger),
		core.WithTypingTimeout(cfg.Chat.TypingTimeout),
		core.WithMaxTextLength(cfg.Chat.MaxTextLength),
		core.WithStoreTimeout(cfg.Chat.StoreTimeout),
	}
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.closers = append(a.closers, client)
		a.relay = relay.New(client, cfg.Redis.Channel, logger)
		opts = append(opts, core.WithRelay(a.relay))
		logger.Info().Str("redis_addr", cfg.Redis.Addr).Msg("redis relay enabled")
	}
	a.hub = core.NewHub(st, dir, opts...)

	a.server = transporthttp.NewServer(transporthttp.Services{
		Hub:       a.hub,
		Auth:      authService,
		Directory: dir,
		Store:     st,
		Media:     media.NewService(backend, cfg.Uploads.PublicBaseURL, cfg.Uploads.MaxBytes),
	}, cfg, logger)

	return a, nil
}

func (a *App) mediaBackend(ctx context.Context, cfg config.UploadsConfig) (media.Backend, error) {
	switch cfg.Backend {
	case "", "local":
		a.log.Info().Str("dir", cfg.Dir).Msg("media stored on disk")
		return media.NewLocalBackend(cfg.Dir)
	case "nats":
		backend, err := media.NewJetStreamBackend(ctx, cfg.NATSURL, cfg.Bucket)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, backend)
		a.log.Info().Str("nats_url", cfg.NATSURL).Str("bucket", cfg.Bucket).Msg("media stored in jetstream")
		return backend, nil
	default:
		return nil, fmt.Errorf("unknown uploads backend %q", cfg.Backend)
	}
}

// Run starts the hub, relay and HTTP server and blocks until ctx is canceled
// or one of them fails.
func (a *App) Run(ctx context.Context) error {
	defer a.cleanup()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.hub.Run(gctx)
		return nil
	})

	if a.relay != nil {
		g.Go(func() error {
			return a.relay.Run(gctx, a.hub)
		})
	}

	g.Go(func() error {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		return a.server.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	<-a.hub.Done()
	return err
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close resource")
		}
	}
	a.closers = nil

	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
		a.store = nil
	}
}
