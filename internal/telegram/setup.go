package telegram

import (
	"fmt"
	"log/slog"

	"github.com/go-telegram/bot"
)

// RegisteredHandler represents a command handler with its match rule
// and middleware.
type RegisteredHandler struct {
	HandlerType bot.HandlerType
	Pattern     string
	Handler     bot.HandlerFunc
	Middleware  []bot.Middleware
	MatchType   bot.MatchType
}

// NewTelegramBot creates a Telegram bot instance with the given options.
func NewTelegramBot(token string, logger *slog.Logger, opts ...bot.Option) (*bot.Bot, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token cannot be empty")
	}
	log := logger.With("component", "telegram_bot")

	b, err := bot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	log.Info("telegram bot instance created")
	return b, nil
}

// applyMiddleware wraps a handler with a slice of middleware. Middleware
// are applied in reverse order so the first one is the outermost.
func applyMiddleware(handler bot.HandlerFunc, mw []bot.Middleware) bot.HandlerFunc {
	for i := len(mw) - 1; i >= 0; i-- {
		handler = mw[i](handler)
	}
	return handler
}

// RegisterHandlers registers command handlers with the bot instance,
// applying each handler's middleware.
func RegisterHandlers(b *bot.Bot, logger *slog.Logger, registeredHandlers map[string]RegisteredHandler) error {
	if b == nil {
		return fmt.Errorf("bot instance cannot be nil")
	}
	log := logger.With("component", "handler_registry")

	for name, regHandler := range registeredHandlers {
		if regHandler.Handler == nil {
			log.Warn("skipping registration for nil handler", "command", name)
			continue
		}

		finalHandler := applyMiddleware(regHandler.Handler, regHandler.Middleware)
		b.RegisterHandler(regHandler.HandlerType, regHandler.Pattern, regHandler.MatchType, finalHandler)
		log.Debug("registered handler", "command", name, "middleware_count", len(regHandler.Middleware))
	}

	log.Info("registered telegram handlers", "count", len(registeredHandlers))
	return nil
}
