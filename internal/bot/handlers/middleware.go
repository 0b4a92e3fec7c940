// Package handlers contains Telegram bot command and message handlers,
// along with their registration logic and middleware.
package handlers

import (
	"context"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// AdminOnly creates a middleware that checks if the message sender is
// a configured admin. Non-admins are dropped silently so the commands
// stay invisible.
func AdminOnly(deps HandlerDeps) tgbot.Middleware {
	return func(next tgbot.HandlerFunc) tgbot.HandlerFunc {
		return func(ctx context.Context, bot *tgbot.Bot, update *models.Update) {
			if update.Message == nil || update.Message.From == nil {
				return
			}

			if !deps.Config.IsAdmin(update.Message.From.ID) {
				deps.Logger.WarnContext(ctx, "unauthorized admin command",
					"user_id", update.Message.From.ID, "chat_id", update.Message.Chat.ID)
				return
			}

			next(ctx, bot, update)
		}
	}
}
