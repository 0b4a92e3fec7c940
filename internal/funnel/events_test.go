package funnel_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/oxbridge-edu/admissions-bot/internal/funnel"
)

func TestParseCallback(t *testing.T) {
	t.Parallel()

	tests := []struct {
		data string
		want funnel.Event
	}{
		{"lang_ru", funnel.Event{Kind: funnel.EventLanguage, Value: "ru"}},
		{"children_2", funnel.Event{Kind: funnel.EventChildrenCount, Value: "2"}},
		{"age_3-6", funnel.Event{Kind: funnel.EventChildAge, Value: "3-6"}},
		{"age_15-18", funnel.Event{Kind: funnel.EventChildAge, Value: "15-18"}},
		{"program_kindergarten", funnel.Event{Kind: funnel.EventProgram, Value: "kindergarten"}},
		{"enroll_this_sem", funnel.Event{Kind: funnel.EventEnrollment, Value: "this_sem"}},
		{"campus_yashnobod", funnel.Event{Kind: funnel.EventCampus, Value: "yashnobod"}},
		{"date_2026-09-07", funnel.Event{Kind: funnel.EventDate, Value: "2026-09-07"}},
		{"date_next_week", funnel.Event{Kind: funnel.EventNextWeek}},
		{"time_14:00", funnel.Event{Kind: funnel.EventTime, Value: "14:00"}},
		{"menu_book_tour", funnel.Event{Kind: funnel.EventMenu, Value: "book_tour"}},
		{"menu_contact_manager", funnel.Event{Kind: funnel.EventMenu, Value: "contact_manager"}},
		{"reminder_confirm", funnel.Event{Kind: funnel.EventReminder, Value: "confirm"}},
		{"admin_status_12_attended", funnel.Event{Kind: funnel.EventAdminStatus, Value: "attended", TourID: 12}},
		{"admin_status_7_noshow", funnel.Event{Kind: funnel.EventAdminStatus, Value: "no_show", TourID: 7}},
		{"admin_status_9_rescheduled", funnel.Event{Kind: funnel.EventAdminStatus, Value: "rescheduled", TourID: 9}},
		{"admin_status_abc_attended", funnel.Event{Kind: funnel.EventUnknown}},
		{"something_else", funnel.Event{Kind: funnel.EventUnknown}},
		{"", funnel.Event{Kind: funnel.EventUnknown}},
	}

	for _, tc := range tests {
		t.Run(tc.data, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, funnel.ParseCallback(tc.data))
		})
	}
}
