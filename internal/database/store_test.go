package database_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxbridge-edu/admissions-bot/internal/database"
)

func newTestStore(t *testing.T) database.Store {
	t.Helper()

	db, err := database.NewDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.CloseDB(db) })

	return database.NewStore(db, nil)
}

func TestCreateUserResetsProgress(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	user, err := store.CreateUser(ctx, 100, "parent_one")
	require.NoError(t, err)
	assert.Equal(t, "start", user.State)

	user.Language = "uz"
	user.State = "awaiting_program"
	user.Name.String, user.Name.Valid = "Aziza", true
	user.Phone.String, user.Phone.Valid = "+998901112233", true
	user.SetAgesList([]string{"3-6"})
	require.NoError(t, store.SaveUser(ctx, user))

	// Restarting keeps identity and language but clears funnel answers.
	again, err := store.CreateUser(ctx, 100, "parent_one")
	require.NoError(t, err)
	assert.Equal(t, "start", again.State)
	assert.Equal(t, "uz", again.Language)
	assert.False(t, again.Name.Valid)
	assert.False(t, again.Phone.Valid)
	assert.Empty(t, again.AgesList())
}

func TestGetOrCreateUserKeepsExistingState(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	user, err := store.GetOrCreateUser(ctx, 200, "first")
	require.NoError(t, err)

	user.State = "awaiting_phone"
	require.NoError(t, store.SaveUser(ctx, user))

	same, err := store.GetOrCreateUser(ctx, 200, "second")
	require.NoError(t, err)
	assert.Equal(t, "awaiting_phone", same.State)
	assert.Equal(t, "first", same.Username)
}

func TestGetUserMissing(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	user, err := store.GetUser(context.Background(), 999)
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestCreateTourSupersedesPriorBooking(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	first := &database.Tour{
		ChatID: 300, Phone: "+998901112233", Campus: "mu",
		Date: "2026-09-07", Time: "10:00", Language: "ru",
		Status: database.TourStatusBooked,
	}
	require.NoError(t, store.CreateTour(ctx, first))
	require.NotZero(t, first.ID)

	second := &database.Tour{
		ChatID: 300, Phone: "+998901112233", Campus: "yashnobod",
		Date: "2026-09-09", Time: "14:00", Language: "ru",
		Status: database.TourStatusBooked,
	}
	require.NoError(t, store.CreateTour(ctx, second))

	old, err := store.GetTour(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, database.TourStatusRescheduled, old.Status)

	active, err := store.ActiveTourForChat(ctx, 300)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, second.ID, active.ID)
}

func TestMarkReminderSentIsConditional(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	tour := &database.Tour{
		ChatID: 400, Phone: "+998900000000", Campus: "mu",
		Date: "2026-09-07", Time: "10:00", Language: "en",
		Status: database.TourStatusBooked,
	}
	require.NoError(t, store.CreateTour(ctx, tour))

	marked, err := store.MarkReminderSent(ctx, tour.ID)
	require.NoError(t, err)
	assert.True(t, marked)

	// Second mark is a no-op.
	marked, err = store.MarkReminderSent(ctx, tour.ID)
	require.NoError(t, err)
	assert.False(t, marked)

	// A cancelled tour cannot be marked.
	other := &database.Tour{
		ChatID: 401, Phone: "+998900000001", Campus: "mu",
		Date: "2026-09-07", Time: "10:00", Language: "en",
		Status: database.TourStatusBooked,
	}
	require.NoError(t, store.CreateTour(ctx, other))
	require.NoError(t, store.SetTourStatus(ctx, other.ID, database.TourStatusCancelled))

	marked, err = store.MarkReminderSent(ctx, other.ID)
	require.NoError(t, err)
	assert.False(t, marked)
}

func TestReminderBatchSelection(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	mk := func(chatID int64, date, status string) *database.Tour {
		tour := &database.Tour{
			ChatID: chatID, Phone: "+998900000000", Campus: "mu",
			Date: date, Time: "10:00", Language: "en", Status: database.TourStatusBooked,
		}
		require.NoError(t, store.CreateTour(ctx, tour))
		if status != database.TourStatusBooked {
			require.NoError(t, store.SetTourStatus(ctx, tour.ID, status))
		}
		return tour
	}

	due := mk(1, "2026-09-08", database.TourStatusBooked)
	mk(2, "2026-09-09", database.TourStatusBooked)             // wrong date
	mk(3, "2026-09-08", database.TourStatusCancelled)          // wrong status
	reminded := mk(4, "2026-09-08", database.TourStatusBooked) // already reminded
	_, err := store.MarkReminderSent(ctx, reminded.ID)
	require.NoError(t, err)

	tours, err := store.ToursNeedingReminder(ctx, "2026-09-08")
	require.NoError(t, err)
	require.Len(t, tours, 1)
	assert.Equal(t, due.ID, tours[0].ID)
}

func TestFollowupBatchSelection(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	attended := &database.Tour{
		ChatID: 10, Phone: "+998900000000", Campus: "mu",
		Date: "2026-09-07", Time: "10:00", Language: "ru", Status: database.TourStatusBooked,
	}
	require.NoError(t, store.CreateTour(ctx, attended))
	require.NoError(t, store.SetTourStatus(ctx, attended.ID, database.TourStatusAttended))

	booked := &database.Tour{
		ChatID: 11, Phone: "+998900000001", Campus: "mu",
		Date: "2026-09-07", Time: "10:00", Language: "ru", Status: database.TourStatusBooked,
	}
	require.NoError(t, store.CreateTour(ctx, booked))

	followups, err := store.ToursForFollowup(ctx, "2026-09-07")
	require.NoError(t, err)
	require.Len(t, followups, 1)
	assert.Equal(t, attended.ID, followups[0].ID)

	// The still-booked tour shows up for the staff status check instead.
	checks, err := store.ToursNeedingStatusCheck(ctx, "2026-09-07")
	require.NoError(t, err)
	require.Len(t, checks, 1)
	assert.Equal(t, booked.ID, checks[0].ID)
}

func TestLeadLinks(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveLeadLink(ctx, 500, 7001, 9001))

	link, err := store.GetLeadLink(ctx, 500)
	require.NoError(t, err)
	require.NotNil(t, link)
	assert.Equal(t, int64(9001), link.LeadID)

	// Upsert replaces the lead, not duplicates the row.
	require.NoError(t, store.SaveLeadLink(ctx, 500, 7001, 9002))

	chatID, err := store.ChatIDByLead(ctx, 9002)
	require.NoError(t, err)
	assert.Equal(t, int64(500), chatID)

	chatID, err = store.ChatIDByLead(ctx, 9001)
	require.NoError(t, err)
	assert.Zero(t, chatID)
}

func TestCountUsersAndAllChatIDs(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	for _, id := range []int64{1, 2, 3} {
		_, err := store.GetOrCreateUser(ctx, id, "")
		require.NoError(t, err)
	}

	total, err := store.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	ids, err := store.AllChatIDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{1, 2, 3}, ids)
}
