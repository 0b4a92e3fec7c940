// Package bot implements the core bot lifecycle and component
// orchestration: the Telegram listener, the task scheduler, the CRM
// sync dispatcher, and the webhook server.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	tgbot "github.com/go-telegram/bot"
	"golang.org/x/sync/errgroup"

	"github.com/oxbridge-edu/admissions-bot/internal/config"
	"github.com/oxbridge-edu/admissions-bot/internal/crm"
	"github.com/oxbridge-edu/admissions-bot/internal/webhook"
)

// Bot represents the main application and manages the lifecycle of its
// components. Dispatcher and Webhook may be nil when the corresponding
// integration is disabled.
type Bot struct {
	logger     *slog.Logger
	cfg        *config.Config
	tgBot      *tgbot.Bot
	scheduler  *Scheduler
	dispatcher *crm.Dispatcher
	webhook    *webhook.Server
}

// NewBot creates the orchestrator with all required components.
func NewBot(
	logger *slog.Logger,
	cfg *config.Config,
	tgBot *tgbot.Bot,
	scheduler *Scheduler,
	dispatcher *crm.Dispatcher,
	webhookServer *webhook.Server,
) *Bot {
	return &Bot{
		logger:     logger.With("component", "bot_orchestrator"),
		cfg:        cfg,
		tgBot:      tgBot,
		scheduler:  scheduler,
		dispatcher: dispatcher,
		webhook:    webhookServer,
	}
}

// Run starts all components and blocks until the context is cancelled
// or a component fails.
func (b *Bot) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		b.logger.Info("starting telegram listener")
		b.tgBot.Start(gCtx)
		if gCtx.Err() == nil {
			return fmt.Errorf("telegram listener stopped unexpectedly")
		}
		return nil
	})

	g.Go(func() error {
		if err := b.scheduler.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		<-gCtx.Done()
		if err := b.scheduler.Stop(); err != nil {
			b.logger.Error("error stopping scheduler", "error", err)
		}
		return nil
	})

	if b.dispatcher != nil {
		g.Go(func() error {
			b.logger.Info("starting crm sync dispatcher")
			return b.dispatcher.Run(gCtx)
		})
	}

	if b.webhook != nil {
		g.Go(func() error {
			b.logger.Info("starting webhook server", "addr", b.cfg.Webhook.Addr)
			return b.webhook.Run(gCtx)
		})
	}

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	b.logger.Info("bot stopped gracefully")
	return nil
}
