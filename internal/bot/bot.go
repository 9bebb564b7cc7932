// Package bot wires the Telegram client, the HTTP server and the scheduler
// together and runs them until shutdown.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	tgbot "github.com/go-telegram/bot"
	"golang.org/x/sync/errgroup"

	"github.com/edgard/cardbot/internal/config"
	"github.com/edgard/cardbot/internal/httpserver"
	"github.com/edgard/cardbot/internal/telegram"
)

// Bot owns the long-running components of the service.
type Bot struct {
	logger    *slog.Logger
	cfg       *config.Config
	tgBot     *tgbot.Bot
	scheduler *Scheduler
	http      *httpserver.Server
}

// NewBot creates the orchestrator. http may be nil when no listener is
// wanted (polling without health endpoint).
func NewBot(logger *slog.Logger, cfg *config.Config, tgBot *tgbot.Bot, scheduler *Scheduler, http *httpserver.Server) *Bot {
	return &Bot{
		logger:    logger.With("component", "bot_orchestrator"),
		cfg:       cfg,
		tgBot:     tgBot,
		scheduler: scheduler,
		http:      http,
	}
}

// Run starts every component and blocks until ctx is cancelled or one of
// them fails.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info("Starting bot orchestrator", "webhook", b.cfg.Telegram.WebhookEnabled())

	if err := b.configureUpdates(ctx); err != nil {
		return err
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if b.cfg.Telegram.WebhookEnabled() {
			b.logger.Info("Starting Telegram webhook processor")
			b.tgBot.StartWebhook(gCtx)
		} else {
			b.logger.Info("Starting Telegram long polling")
			b.tgBot.Start(gCtx)
		}
		b.logger.Info("Telegram update processing stopped")

		if gCtx.Err() == nil {
			return fmt.Errorf("telegram listener stopped unexpectedly")
		}
		return nil
	})

	if b.http != nil {
		g.Go(func() error {
			return b.http.Run(gCtx)
		})
	}

	g.Go(func() error {
		if _, err := b.scheduler.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}

		<-gCtx.Done()
		b.logger.Info("Shutdown signal received, stopping scheduler")
		if err := b.scheduler.Stop(); err != nil {
			b.logger.Error("Error stopping scheduler", "error", err)
		}
		return nil
	})

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		b.logger.Error("Bot orchestrator stopped due to error", "error", err)
		return err
	}

	b.logger.Info("Bot orchestrator stopped gracefully")
	return nil
}

// configureUpdates registers the webhook, or removes a stale one so that
// long polling receives updates.
func (b *Bot) configureUpdates(ctx context.Context) error {
	tg := b.cfg.Telegram
	if tg.WebhookEnabled() {
		if err := telegram.SetWebhook(ctx, b.tgBot, tg.WebhookEndpoint(), tg.WebhookSecret); err != nil {
			return err
		}
		b.logger.Info("Webhook registered", "url", tg.WebhookEndpoint())
		return nil
	}
	if err := telegram.DeleteWebhook(ctx, b.tgBot); err != nil {
		return err
	}
	return nil
}
