package handlers

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewGetIDHandler returns a handler for the /getid command, used when
// configuring the admissions group chat.
func NewGetIDHandler(deps HandlerDeps) bot.HandlerFunc {
	return getIDHandler{deps}.Handle
}

type getIDHandler struct {
	deps HandlerDeps
}

func (h getIDHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	chat := update.Message.Chat
	title := chat.Title
	if title == "" {
		title = "Private"
	}

	text := fmt.Sprintf("🆔 Chat Info:\n\nID: %d\nType: %s\nTitle: %s", chat.ID, chat.Type, title)
	if _, err := b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chat.ID, Text: text}); err != nil {
		h.deps.Logger.ErrorContext(ctx, "failed to send chat info", "error", err, "chat_id", chat.ID)
	}
}
