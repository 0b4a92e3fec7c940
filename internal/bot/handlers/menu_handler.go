package handlers

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewMenuHandler returns a handler for the /menu command.
func NewMenuHandler(deps HandlerDeps) bot.HandlerFunc {
	return menuHandler{deps}.Handle
}

type menuHandler struct {
	deps HandlerDeps
}

func (h menuHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}

	chatID := update.Message.Chat.ID
	if err := h.deps.Engine.Menu(ctx, chatID, update.Message.From.Username); err != nil {
		h.deps.Logger.ErrorContext(ctx, "failed to send menu", "error", err, "chat_id", chatID)
	}
}
