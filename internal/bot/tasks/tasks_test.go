package tasks_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxbridge-edu/admissions-bot/internal/bot/tasks"
	"github.com/oxbridge-edu/admissions-bot/internal/config"
	"github.com/oxbridge-edu/admissions-bot/internal/database"
	"github.com/oxbridge-edu/admissions-bot/internal/i18n"
	"github.com/oxbridge-edu/admissions-bot/internal/logger"
	"github.com/oxbridge-edu/admissions-bot/internal/telegram"
)

const admissionsChatID = int64(-2000)

type fakeMessenger struct {
	sent []telegram.Outbound
}

func (m *fakeMessenger) Send(_ context.Context, msg telegram.Outbound) error {
	m.sent = append(m.sent, msg)
	return nil
}

func newTestDeps(t *testing.T) (tasks.TaskDeps, database.Store, *fakeMessenger) {
	t.Helper()

	db, err := database.NewDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.CloseDB(db) })
	store := database.NewStore(db, nil)

	catalog, err := i18n.NewCatalog()
	require.NoError(t, err)

	msgr := &fakeMessenger{}
	deps := tasks.TaskDeps{
		Logger:    logger.New("error", false),
		Store:     store,
		Messenger: msgr,
		Catalog:   catalog,
		Config: &config.Config{
			Telegram: config.TelegramConfig{AdmissionsChatID: admissionsChatID},
			School: config.SchoolConfig{
				TourTimes: []string{"10:00", "14:00", "16:00"},
				Campuses: map[string]config.Campus{
					"mu": {
						Names:   map[string]string{"en": "MU Campus"},
						Address: "Mirzo Ulugbek District",
						MapURL:  "https://maps.example/mu",
					},
				},
			},
		},
		Now: func() time.Time {
			return time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
		},
	}
	return deps, store, msgr
}

func seedTour(t *testing.T, store database.Store, chatID int64, date, status string) *database.Tour {
	t.Helper()

	ctx := context.Background()
	tour := &database.Tour{
		ChatID: chatID, Phone: "+998901234567", Campus: "mu",
		Date: date, Time: "10:00", Language: "en",
		Status: database.TourStatusBooked,
	}
	require.NoError(t, store.CreateTour(ctx, tour))
	if status != database.TourStatusBooked {
		require.NoError(t, store.SetTourStatus(ctx, tour.ID, status))
	}
	return tour
}

func TestTourRemindersSentOnce(t *testing.T) {
	t.Parallel()

	deps, store, msgr := newTestDeps(t)
	ctx := context.Background()

	// Tomorrow relative to the fixed clock is 2026-09-02.
	due := seedTour(t, store, 1, "2026-09-02", database.TourStatusBooked)
	seedTour(t, store, 2, "2026-09-03", database.TourStatusBooked)
	seedTour(t, store, 3, "2026-09-02", database.TourStatusCancelled)

	task := tasks.RegisterAllTasks(deps)["tour_reminders"]
	require.NoError(t, task(ctx))

	require.Len(t, msgr.sent, 1)
	assert.Equal(t, due.ChatID, msgr.sent[0].ChatID)
	assert.NotEmpty(t, msgr.sent[0].Keyboard)
	assert.Equal(t, "reminder_confirm", msgr.sent[0].Keyboard[0][0].Data)

	// A second run finds nothing new to send.
	require.NoError(t, task(ctx))
	assert.Len(t, msgr.sent, 1)
}

func TestTourFollowupsOnlyForAttended(t *testing.T) {
	t.Parallel()

	deps, store, msgr := newTestDeps(t)
	ctx := context.Background()

	// Yesterday relative to the fixed clock is 2026-08-31.
	attended := seedTour(t, store, 1, "2026-08-31", database.TourStatusAttended)
	seedTour(t, store, 2, "2026-08-31", database.TourStatusNoShow)
	seedTour(t, store, 3, "2026-09-01", database.TourStatusAttended)

	task := tasks.RegisterAllTasks(deps)["tour_followups"]
	require.NoError(t, task(ctx))

	require.Len(t, msgr.sent, 1)
	assert.Equal(t, attended.ChatID, msgr.sent[0].ChatID)

	require.NoError(t, task(ctx))
	assert.Len(t, msgr.sent, 1)
}

func TestStatusCheckRepeatsUntilAnswered(t *testing.T) {
	t.Parallel()

	deps, store, msgr := newTestDeps(t)
	ctx := context.Background()

	tour := seedTour(t, store, 1, "2026-08-31", database.TourStatusBooked)
	seedTour(t, store, 2, "2026-08-31", database.TourStatusAttended)

	task := tasks.RegisterAllTasks(deps)["tour_status_check"]
	require.NoError(t, task(ctx))

	require.Len(t, msgr.sent, 1)
	assert.Equal(t, admissionsChatID, msgr.sent[0].ChatID)
	assert.Contains(t, msgr.sent[0].Text, "Tour Status Check")

	// Nothing is marked, so an unanswered check repeats on the next
	// run until staff picks a status.
	require.NoError(t, task(ctx))
	require.Len(t, msgr.sent, 2)

	require.NoError(t, store.SetTourStatus(ctx, tour.ID, database.TourStatusNoShow))
	require.NoError(t, task(ctx))
	assert.Len(t, msgr.sent, 2)
}
