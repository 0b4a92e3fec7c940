// Package telegram adapts outbound messaging onto the Telegram Bot API.
package telegram

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// Button is one inline keyboard button. Exactly one of Data and URL
// should be set.
type Button struct {
	Label string
	Data  string
	URL   string
}

// Outbound is a message to deliver to a chat. Keyboard attaches an
// inline keyboard, ContactRequest attaches a one-time reply keyboard
// with a share-contact button, and RemoveKeyboard clears any reply
// keyboard on the recipient side.
type Outbound struct {
	ChatID         int64
	Text           string
	Keyboard       [][]Button
	ContactRequest string
	RemoveKeyboard bool
}

// Messenger delivers messages to chats. It exists so the funnel and
// scheduled tasks can be tested without a live bot.
type Messenger interface {
	Send(ctx context.Context, msg Outbound) error
}

// BotMessenger implements Messenger on top of a running Telegram bot.
type BotMessenger struct {
	bot *bot.Bot
}

// NewBotMessenger wraps an initialized Telegram bot.
func NewBotMessenger(b *bot.Bot) *BotMessenger {
	return &BotMessenger{bot: b}
}

// Send delivers the message via the Bot API.
func (m *BotMessenger) Send(ctx context.Context, msg Outbound) error {
	params := &bot.SendMessageParams{
		ChatID: msg.ChatID,
		Text:   msg.Text,
	}

	switch {
	case len(msg.Keyboard) > 0:
		params.ReplyMarkup = inlineMarkup(msg.Keyboard)
	case msg.ContactRequest != "":
		params.ReplyMarkup = &models.ReplyKeyboardMarkup{
			Keyboard: [][]models.KeyboardButton{
				{{Text: msg.ContactRequest, RequestContact: true}},
			},
			ResizeKeyboard:  true,
			OneTimeKeyboard: true,
		}
	case msg.RemoveKeyboard:
		params.ReplyMarkup = &models.ReplyKeyboardRemove{RemoveKeyboard: true}
	}

	if _, err := m.bot.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("failed to send message to chat %d: %w", msg.ChatID, err)
	}
	return nil
}

func inlineMarkup(rows [][]Button) *models.InlineKeyboardMarkup {
	markup := &models.InlineKeyboardMarkup{
		InlineKeyboard: make([][]models.InlineKeyboardButton, 0, len(rows)),
	}
	for _, row := range rows {
		buttons := make([]models.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			buttons = append(buttons, models.InlineKeyboardButton{
				Text:         btn.Label,
				CallbackData: btn.Data,
				URL:          btn.URL,
			})
		}
		markup.InlineKeyboard = append(markup.InlineKeyboard, buttons)
	}
	return markup
}
