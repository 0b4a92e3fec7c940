// Package main contains the entrypoint for the admissions bot.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/oxbridge-edu/admissions-bot/internal/bot"
	"github.com/oxbridge-edu/admissions-bot/internal/bot/handlers"
	"github.com/oxbridge-edu/admissions-bot/internal/bot/tasks"
	"github.com/oxbridge-edu/admissions-bot/internal/config"
	"github.com/oxbridge-edu/admissions-bot/internal/crm"
	"github.com/oxbridge-edu/admissions-bot/internal/database"
	"github.com/oxbridge-edu/admissions-bot/internal/funnel"
	"github.com/oxbridge-edu/admissions-bot/internal/i18n"
	"github.com/oxbridge-edu/admissions-bot/internal/logger"
	"github.com/oxbridge-edu/admissions-bot/internal/telegram"
	"github.com/oxbridge-edu/admissions-bot/internal/webhook"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run initializes all application components, starts the bot, and
// returns an exit code.
func run(ctx context.Context) int {
	configPath := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.New(cfg.Log.Level, cfg.Log.JSON)
	slog.SetDefault(log)

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Error("failed to open database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer database.CloseDB(db)
	store := database.NewStore(db, log)

	catalog, err := i18n.NewCatalog()
	if err != nil {
		log.Error("failed to load message catalog", "error", err)
		return 1
	}

	// CRM sync is optional: without a base URL every sync command is
	// discarded and the funnel runs standalone.
	var syncer crm.Syncer = crm.NopSyncer{}
	var dispatcher *crm.Dispatcher
	if cfg.CRM.BaseURL != "" {
		api := crm.NewClient(cfg.CRM, log)
		dispatcher = crm.NewDispatcher(api, store, cfg.CRM, log)
		syncer = dispatcher
	} else {
		log.Warn("crm base url not configured, sync disabled")
	}

	// The default handler needs the engine, and the engine's messenger
	// needs the bot instance, so the handler is bound after wiring.
	// No updates arrive before tg.Start.
	var updateHandler tgbot.HandlerFunc
	botOpts := []tgbot.Option{
		tgbot.WithMiddlewares(logger.Middleware(log)),
		tgbot.WithDefaultHandler(func(ctx context.Context, b *tgbot.Bot, update *models.Update) {
			if updateHandler != nil {
				updateHandler(ctx, b, update)
			}
		}),
	}
	tg, err := telegram.NewTelegramBot(cfg.Telegram.Token, log, botOpts...)
	if err != nil {
		log.Error("failed to create telegram bot", "error", err)
		return 1
	}

	msgr := telegram.NewBotMessenger(tg)
	engine := funnel.NewEngine(store, msgr, catalog, syncer, cfg, log)

	hDeps := handlers.HandlerDeps{
		Logger: log,
		Config: cfg,
		Store:  store,
		Engine: engine,
	}
	updateHandler = handlers.NewUpdateHandler(hDeps)

	cmdHandlers := handlers.RegisterAllCommands(hDeps)
	if err := telegram.RegisterHandlers(tg, log, cmdHandlers); err != nil {
		log.Error("failed to register telegram handlers", "error", err)
		return 1
	}

	tDeps := tasks.TaskDeps{
		Logger:    log,
		Store:     store,
		Messenger: msgr,
		Catalog:   catalog,
		Config:    cfg,
	}
	sched, err := bot.NewScheduler(log, &cfg.Scheduler, tasks.RegisterAllTasks(tDeps))
	if err != nil {
		log.Error("failed to create scheduler", "error", err)
		return 1
	}

	var webhookServer *webhook.Server
	if cfg.Webhook.Enabled {
		webhookServer = webhook.NewServer(cfg, store, msgr, log)
	}

	app := bot.NewBot(log, cfg, tg, sched, dispatcher, webhookServer)

	log.Info("starting bot")
	runErr := app.Run(ctx)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("bot stopped due to error", "error", runErr)
		time.Sleep(time.Second)
		return 1
	}

	log.Info("bot stopped gracefully")
	return 0
}
