package handlers

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewStatsHandler returns a handler for the /stats79 command.
func NewStatsHandler(deps HandlerDeps) bot.HandlerFunc {
	return statsHandler{deps}.Handle
}

type statsHandler struct {
	deps HandlerDeps
}

func (h statsHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "stats")

	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID

	total, err := h.deps.Store.CountUsers(ctx)
	if err != nil {
		log.ErrorContext(ctx, "failed to count users", "error", err)
		return
	}

	text := fmt.Sprintf("Total users: %d", total)
	if _, err := b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text}); err != nil {
		log.ErrorContext(ctx, "failed to send stats", "error", err, "chat_id", chatID)
	}
}
