package logger

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// Middleware returns a bot middleware that logs every incoming update
// with its type, chat, and processing duration.
func Middleware(log *slog.Logger) bot.Middleware {
	return func(next bot.HandlerFunc) bot.HandlerFunc {
		return func(ctx context.Context, b *bot.Bot, update *models.Update) {
			start := time.Now()

			logEntry := log.With("update_id", update.ID)

			switch {
			case update.Message != nil:
				logEntry = logEntry.With(
					"update_type", "message",
					"chat_id", update.Message.Chat.ID,
					"text_preview", truncateString(update.Message.Text, 50),
				)
			case update.CallbackQuery != nil:
				logEntry = logEntry.With(
					"update_type", "callback_query",
					"user_id", update.CallbackQuery.From.ID,
					"data", update.CallbackQuery.Data,
				)
				if update.CallbackQuery.Message.Message != nil {
					logEntry = logEntry.With("chat_id", update.CallbackQuery.Message.Message.Chat.ID)
				}
			default:
				logEntry = logEntry.With("update_type", "other")
			}

			next(ctx, b, update)

			logEntry.DebugContext(ctx, "processed update", "duration", time.Since(start))
		}
	}
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return "..."
	}
	return s[:maxLen-3] + "..."
}
