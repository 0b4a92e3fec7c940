package tasks

import (
	"context"
	"time"

	"github.com/oxbridge-edu/admissions-bot/internal/i18n"
	"github.com/oxbridge-edu/admissions-bot/internal/telegram"
)

// newTourRemindersTask returns a task that sends a reminder with
// confirm/reschedule/cancel buttons for every booked tour happening
// tomorrow that has not been reminded yet.
func newTourRemindersTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "tour_reminders")

	return func(ctx context.Context) error {
		tomorrow := deps.now().AddDate(0, 0, 1).Format("2006-01-02")

		tours, err := deps.Store.ToursNeedingReminder(ctx, tomorrow)
		if err != nil {
			return err
		}

		sent := 0
		for _, tour := range tours {
			campus := deps.Config.School.Campuses[tour.Campus]

			date, err := time.Parse("2006-01-02", tour.Date)
			if err != nil {
				log.ErrorContext(ctx, "tour has malformed date", "tour_id", tour.ID, "date", tour.Date)
				continue
			}

			subs := map[string]string{
				"campus":  campus.Name(tour.Language),
				"date":    i18n.FormatDayMonth(date, tour.Language),
				"time":    tour.Time,
				"address": campus.Address,
				"map":     campus.MapURL,
			}
			keyboard := [][]telegram.Button{
				{
					{Label: deps.Catalog.Lookup("reminder_button.confirm", tour.Language, nil), Data: "reminder_confirm"},
					{Label: deps.Catalog.Lookup("reminder_button.reschedule", tour.Language, nil), Data: "reminder_reschedule"},
				},
				{
					{Label: deps.Catalog.Lookup("reminder_button.cancel", tour.Language, nil), Data: "reminder_cancel"},
				},
			}

			err = deps.Messenger.Send(ctx, telegram.Outbound{
				ChatID:   tour.ChatID,
				Text:     deps.Catalog.Lookup("tour_reminder", tour.Language, subs),
				Keyboard: keyboard,
			})
			if err != nil {
				log.ErrorContext(ctx, "failed to send reminder", "tour_id", tour.ID, "error", err)
				continue
			}

			marked, err := deps.Store.MarkReminderSent(ctx, tour.ID)
			if err != nil {
				log.ErrorContext(ctx, "failed to mark reminder sent", "tour_id", tour.ID, "error", err)
				continue
			}
			if marked {
				sent++
			}
		}

		log.InfoContext(ctx, "tour reminders sent", "count", sent, "date", tomorrow)
		return nil
	}
}
