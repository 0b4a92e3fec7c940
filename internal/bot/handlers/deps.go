package handlers

import (
	"log/slog"

	"github.com/oxbridge-edu/admissions-bot/internal/config"
	"github.com/oxbridge-edu/admissions-bot/internal/database"
	"github.com/oxbridge-edu/admissions-bot/internal/funnel"
)

// HandlerDeps provides dependencies for Telegram command handlers.
type HandlerDeps struct {
	Logger *slog.Logger
	Config *config.Config
	Store  database.Store
	Engine *funnel.Engine
}
