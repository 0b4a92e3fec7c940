package handlers

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewUpdateHandler returns the default handler for updates that match
// no registered command: free text, shared contacts, and inline
// keyboard callbacks, all routed into the conversation engine.
func NewUpdateHandler(deps HandlerDeps) bot.HandlerFunc {
	return updateHandler{deps}.Handle
}

type updateHandler struct {
	deps HandlerDeps
}

func (h updateHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	switch {
	case update.CallbackQuery != nil:
		h.handleCallback(ctx, b, update.CallbackQuery)
	case update.Message != nil:
		h.handleMessage(ctx, update.Message)
	}
}

func (h updateHandler) handleCallback(ctx context.Context, b *bot.Bot, query *models.CallbackQuery) {
	log := h.deps.Logger.With("handler", "callback")

	// Stop the client-side spinner regardless of the outcome.
	if _, err := b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: query.ID,
	}); err != nil {
		log.WarnContext(ctx, "failed to answer callback query", "error", err)
	}

	if query.Message.Message == nil {
		return
	}
	chatID := query.Message.Message.Chat.ID

	if err := h.deps.Engine.HandleCallback(ctx, chatID, query.Data); err != nil {
		log.ErrorContext(ctx, "failed to handle callback",
			"error", err, "chat_id", chatID, "data", query.Data)
	}
}

func (h updateHandler) handleMessage(ctx context.Context, msg *models.Message) {
	log := h.deps.Logger.With("handler", "message")
	chatID := msg.Chat.ID

	if msg.Contact != nil {
		if err := h.deps.Engine.HandleContact(ctx, chatID, msg.Contact.PhoneNumber); err != nil {
			log.ErrorContext(ctx, "failed to handle contact", "error", err, "chat_id", chatID)
		}
		return
	}

	if msg.Text == "" {
		return
	}
	if err := h.deps.Engine.HandleText(ctx, chatID, msg.Text); err != nil {
		log.ErrorContext(ctx, "failed to handle text", "error", err, "chat_id", chatID)
	}
}
