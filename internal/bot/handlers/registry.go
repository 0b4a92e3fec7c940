package handlers

import (
	tgbot "github.com/go-telegram/bot"

	"github.com/oxbridge-edu/admissions-bot/internal/telegram"
)

// RegisterAllCommands initializes and returns a map of all available
// bot commands keyed by their slash form.
func RegisterAllCommands(deps HandlerDeps) map[string]telegram.RegisteredHandler {
	handlers := make(map[string]telegram.RegisteredHandler)

	handlers["/start"] = telegram.RegisteredHandler{
		HandlerType: tgbot.HandlerTypeMessageText,
		Pattern:     "start",
		Handler:     NewStartHandler(deps),
		MatchType:   tgbot.MatchTypeCommandStartOnly,
	}
	handlers["/menu"] = telegram.RegisteredHandler{
		HandlerType: tgbot.HandlerTypeMessageText,
		Pattern:     "menu",
		Handler:     NewMenuHandler(deps),
		MatchType:   tgbot.MatchTypeCommandStartOnly,
	}
	handlers["/getid"] = telegram.RegisteredHandler{
		HandlerType: tgbot.HandlerTypeMessageText,
		Pattern:     "getid",
		Handler:     NewGetIDHandler(deps),
		MatchType:   tgbot.MatchTypeCommandStartOnly,
	}

	adminMiddleware := []tgbot.Middleware{AdminOnly(deps)}

	handlers["/stats79"] = telegram.RegisteredHandler{
		HandlerType: tgbot.HandlerTypeMessageText,
		Pattern:     "stats79",
		Handler:     NewStatsHandler(deps),
		MatchType:   tgbot.MatchTypeCommandStartOnly,
		Middleware:  adminMiddleware,
	}
	handlers["/broadcast"] = telegram.RegisteredHandler{
		HandlerType: tgbot.HandlerTypeMessageText,
		Pattern:     "broadcast",
		Handler:     NewBroadcastHandler(deps),
		MatchType:   tgbot.MatchTypeCommandStartOnly,
		Middleware:  adminMiddleware,
	}

	return handlers
}
