package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewBroadcastHandler returns a handler for the /broadcast command.
// The rest of the message after the command is sent to every known
// chat.
func NewBroadcastHandler(deps HandlerDeps) bot.HandlerFunc {
	return broadcastHandler{deps}.Handle
}

type broadcastHandler struct {
	deps HandlerDeps
}

func (h broadcastHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "broadcast")

	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID

	_, message, _ := strings.Cut(update.Message.Text, " ")
	message = strings.TrimSpace(message)
	if message == "" {
		h.reply(ctx, b, chatID, "Usage: /broadcast <message>")
		return
	}

	chatIDs, err := h.deps.Store.AllChatIDs(ctx)
	if err != nil {
		log.ErrorContext(ctx, "failed to list chats", "error", err)
		return
	}

	h.reply(ctx, b, chatID, fmt.Sprintf("🚀 Starting broadcast to %d users...", len(chatIDs)))

	var sent, failed int
	for _, target := range chatIDs {
		_, err := b.SendMessage(ctx, &bot.SendMessageParams{ChatID: target, Text: message})
		if err != nil {
			log.WarnContext(ctx, "failed to deliver broadcast", "chat_id", target, "error", err)
			failed++
			continue
		}
		sent++
	}

	h.reply(ctx, b, chatID, fmt.Sprintf("✅ Broadcast complete.\nSent: %d\nFailed: %d", sent, failed))
	log.InfoContext(ctx, "broadcast finished", "sent", sent, "failed", failed)
}

func (h broadcastHandler) reply(ctx context.Context, b *bot.Bot, chatID int64, text string) {
	if _, err := b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text}); err != nil {
		h.deps.Logger.ErrorContext(ctx, "failed to send broadcast status", "error", err, "chat_id", chatID)
	}
}
