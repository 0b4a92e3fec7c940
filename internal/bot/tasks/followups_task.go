package tasks

import (
	"context"

	"github.com/oxbridge-edu/admissions-bot/internal/telegram"
)

// newTourFollowupsTask returns a task that messages everyone who
// attended a tour yesterday and has not received a follow-up yet.
func newTourFollowupsTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "tour_followups")

	return func(ctx context.Context) error {
		yesterday := deps.now().AddDate(0, 0, -1).Format("2006-01-02")

		tours, err := deps.Store.ToursForFollowup(ctx, yesterday)
		if err != nil {
			return err
		}

		sent := 0
		for _, tour := range tours {
			keyboard := [][]telegram.Button{{
				{
					Label: deps.Catalog.Lookup("contact_manager_button", tour.Language, nil),
					Data:  "menu_contact_manager",
				},
			}}

			err := deps.Messenger.Send(ctx, telegram.Outbound{
				ChatID:   tour.ChatID,
				Text:     deps.Catalog.Lookup("post_tour_followup", tour.Language, nil),
				Keyboard: keyboard,
			})
			if err != nil {
				log.ErrorContext(ctx, "failed to send follow-up", "tour_id", tour.ID, "error", err)
				continue
			}

			marked, err := deps.Store.MarkFollowupSent(ctx, tour.ID)
			if err != nil {
				log.ErrorContext(ctx, "failed to mark follow-up sent", "tour_id", tour.ID, "error", err)
				continue
			}
			if marked {
				sent++
			}
		}

		log.InfoContext(ctx, "post-tour follow-ups sent", "count", sent, "date", yesterday)
		return nil
	}
}
