package handlers

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewStartHandler returns a handler for the /start command.
func NewStartHandler(deps HandlerDeps) bot.HandlerFunc {
	return startHandler{deps}.Handle
}

type startHandler struct {
	deps HandlerDeps
}

func (h startHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "start")

	if update.Message == nil || update.Message.From == nil {
		return
	}

	chatID := update.Message.Chat.ID
	log.InfoContext(ctx, "handling /start", "chat_id", chatID)

	if err := h.deps.Engine.Start(ctx, chatID, update.Message.From.Username); err != nil {
		log.ErrorContext(ctx, "failed to start conversation", "error", err, "chat_id", chatID)
	}
}
