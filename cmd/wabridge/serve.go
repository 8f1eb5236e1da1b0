package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/stafflink/wabridge/internal/account"
	"github.com/stafflink/wabridge/internal/candidate"
	"github.com/stafflink/wabridge/internal/config"
	"github.com/stafflink/wabridge/internal/conversation"
	"github.com/stafflink/wabridge/internal/db"
	"github.com/stafflink/wabridge/internal/handlers"
	"github.com/stafflink/wabridge/internal/logger"
	"github.com/stafflink/wabridge/internal/media"
	"github.com/stafflink/wabridge/internal/message"
	"github.com/stafflink/wabridge/internal/server"
	"github.com/stafflink/wabridge/internal/storage/providers/localfs"
	"github.com/stafflink/wabridge/internal/webhook"
	"github.com/stafflink/wabridge/internal/whatsapp"
)

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideDBConn,
			provideQuerier,
			provideStorageProvider,
			provideGraphClient,
			account.NewService,
			candidate.NewService,
			provideConversationService,
			message.NewService,
			provideMediaService,
			whatsapp.NewParser,
			provideProcessor,
			handlers.NewPingHandler,
			provideWebhookHandler,
			provideConversationsHandler,
			provideServer,
		),
		fx.Invoke(startServer),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideConfig() (config.Config, error) {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideDBConn(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	conn, err := db.Open(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { conn.Close(); return nil }})
	return conn, nil
}

func provideQuerier(conn *pgxpool.Pool) db.Querier { return conn }

func provideStorageProvider(cfg config.Config) (*localfs.Provider, error) {
	provider, err := localfs.New(cfg.Media.DataRoot, cfg.Server.PublicBaseURL)
	if err != nil {
		return nil, fmt.Errorf("init media provider: %w", err)
	}
	return provider, nil
}

func provideGraphClient(log *slog.Logger, cfg config.Config) *whatsapp.Client {
	return whatsapp.NewClient(log, cfg.WhatsApp)
}

func provideConversationService(log *slog.Logger, q db.Querier, candidates *candidate.Service) *conversation.Service {
	return conversation.NewService(log, q, candidates)
}

func provideMediaService(log *slog.Logger, q db.Querier, client *whatsapp.Client, provider *localfs.Provider) *media.Service {
	return media.NewService(log, q, client, provider)
}

func provideProcessor(
	log *slog.Logger,
	accounts *account.Service,
	conversations *conversation.Service,
	messages *message.Service,
	mediaService *media.Service,
) *webhook.Processor {
	return webhook.NewProcessor(log, accounts, conversations, messages, mediaService)
}

func provideWebhookHandler(log *slog.Logger, cfg config.Config, parser *whatsapp.Parser, processor *webhook.Processor) *handlers.WebhookHandler {
	return handlers.NewWebhookHandler(log, cfg.WhatsApp, parser, processor)
}

func provideConversationsHandler(log *slog.Logger, conversations *conversation.Service, messages *message.Service) *handlers.ConversationsHandler {
	return handlers.NewConversationsHandler(log, conversations, messages)
}

func provideServer(
	log *slog.Logger,
	cfg config.Config,
	provider *localfs.Provider,
	pingHandler *handlers.PingHandler,
	webhookHandler *handlers.WebhookHandler,
	conversationsHandler *handlers.ConversationsHandler,
) *server.Server {
	return server.NewServer(log, cfg.Server.Addr, provider.MediaDir(), pingHandler, webhookHandler, conversationsHandler)
}

func startServer(lc fx.Lifecycle, log *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
