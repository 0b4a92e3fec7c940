package funnel

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/oxbridge-edu/admissions-bot/internal/database"
	"github.com/oxbridge-edu/admissions-bot/internal/telegram"
)

// Staff notifications are best effort: a delivery failure is logged
// and never fails the user-facing transition.

func (e *Engine) notifyNewLead(ctx context.Context, user *database.User) {
	if e.cfg.Telegram.AdmissionsChatID == 0 {
		return
	}

	text := fmt.Sprintf(`🆕 New Lead from Telegram Bot

👤 Username: %s
📞 Phone: %s
🌐 Language: %s
👶 Children: %d
📅 Ages: %s
📚 Program: %s

💬 Chat ID: %d
⏰ Time: %s

📋 Action: Call within 1 hour`,
		usernameOrNA(user.Username),
		user.Phone.String,
		user.Language,
		user.ChildrenCount.Int64,
		strings.Join(user.AgesList(), ", "),
		user.Program.String,
		user.ChatID,
		e.now().Format("2006-01-02 15:04"),
	)
	e.notifyStaff(ctx, text)
}

func (e *Engine) notifyTourBooked(ctx context.Context, user *database.User, campusName, formattedDate, slot string) {
	if e.cfg.Telegram.AdmissionsChatID == 0 {
		return
	}

	text := fmt.Sprintf(`📅 New Tour Booking

👤 Username: %s
Phone: %s
Campus: %s
Date: %s
Time: %s
Language: %s`,
		usernameOrNA(user.Username),
		user.Phone.String,
		campusName,
		formattedDate,
		slot,
		user.Language,
	)
	e.notifyStaff(ctx, text)
}

func (e *Engine) notifyContactRequest(ctx context.Context, user *database.User) {
	if e.cfg.Telegram.AdmissionsChatID == 0 {
		return
	}

	phone := user.Phone.String
	if phone == "" {
		phone = "Not provided"
	}
	text := fmt.Sprintf(`💬 User wants to contact manager

👤 Username: %s
Phone: %s
Chat ID: %d
Language: %s
Time: %s`,
		usernameOrNA(user.Username),
		phone,
		user.ChatID,
		user.Language,
		e.now().Format("2006-01-02 15:04"),
	)
	e.notifyStaff(ctx, text)
}

func (e *Engine) notifyTourChange(ctx context.Context, user *database.User, tour *database.Tour, action string) {
	if e.cfg.Telegram.AdmissionsChatID == 0 {
		return
	}

	kind := "Cancellation"
	if action == "reschedule" {
		kind = "Reschedule"
	}
	text := fmt.Sprintf(`🔄 Tour %s

👤 Username: %s
Phone: %s
Tour: %s %s
Campus: %s`,
		kind,
		usernameOrNA(user.Username),
		user.Phone.String,
		tour.Date,
		tour.Time,
		tour.Campus,
	)
	e.notifyStaff(ctx, text)
}

func (e *Engine) notifyStaff(ctx context.Context, text string) {
	err := e.msgr.Send(ctx, telegram.Outbound{
		ChatID: e.cfg.Telegram.AdmissionsChatID,
		Text:   text,
	})
	if err != nil {
		e.logger.Error("failed to notify admissions chat", "error", err)
	}
}

func usernameOrNA(username string) string {
	if username == "" {
		return "N/A"
	}
	return "@" + username
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: true}
}

func nullInt(n int64) sql.NullInt64 {
	return sql.NullInt64{Int64: n, Valid: true}
}
