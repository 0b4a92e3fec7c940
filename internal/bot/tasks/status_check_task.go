package tasks

import (
	"context"
	"fmt"

	"github.com/oxbridge-edu/admissions-bot/internal/telegram"
)

// newTourStatusCheckTask returns a task that asks the admissions chat
// to record the outcome of yesterday's tours still marked as booked.
// Tours are not marked here, so an unanswered check repeats daily
// until someone taps a status button.
func newTourStatusCheckTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "tour_status_check")

	return func(ctx context.Context) error {
		if deps.Config.Telegram.AdmissionsChatID == 0 {
			return nil
		}

		yesterday := deps.now().AddDate(0, 0, -1).Format("2006-01-02")

		tours, err := deps.Store.ToursNeedingStatusCheck(ctx, yesterday)
		if err != nil {
			return err
		}

		sent := 0
		for _, tour := range tours {
			keyboard := [][]telegram.Button{
				{
					{Label: "✅ Attended", Data: fmt.Sprintf("admin_status_%d_attended", tour.ID)},
					{Label: "❌ No-Show", Data: fmt.Sprintf("admin_status_%d_noshow", tour.ID)},
				},
				{
					{Label: "🔄 Rescheduled", Data: fmt.Sprintf("admin_status_%d_rescheduled", tour.ID)},
				},
			}
			text := fmt.Sprintf(
				"📋 Tour Status Check\n\nLead: %s\nTour: Yesterday (%s)\nTime: %s\nCampus: %s\n\nDid they attend?",
				tour.Phone, yesterday, tour.Time, tour.Campus,
			)

			err := deps.Messenger.Send(ctx, telegram.Outbound{
				ChatID:   deps.Config.Telegram.AdmissionsChatID,
				Text:     text,
				Keyboard: keyboard,
			})
			if err != nil {
				log.ErrorContext(ctx, "failed to send status check", "tour_id", tour.ID, "error", err)
				continue
			}
			sent++
		}

		log.InfoContext(ctx, "tour status checks sent", "count", sent, "date", yesterday)
		return nil
	}
}
