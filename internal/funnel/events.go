package funnel

import (
	"strconv"
	"strings"
)

// EventKind classifies an inline keyboard callback.
type EventKind int

// Callback event kinds.
const (
	EventUnknown EventKind = iota
	EventLanguage
	EventChildrenCount
	EventChildAge
	EventProgram
	EventEnrollment
	EventCampus
	EventDate
	EventNextWeek
	EventTime
	EventMenu
	EventReminder
	EventAdminStatus
)

// Event is a decoded callback. Value carries the kind-specific token:
// a language code, children count, age range, program, enrollment key,
// campus key, tour date or time, menu action, reminder action, or tour
// status. TourID is set for admin status events only.
type Event struct {
	Kind   EventKind
	Value  string
	TourID int64
}

// ParseCallback decodes callback data into a typed event. Unrecognized
// data yields EventUnknown.
func ParseCallback(data string) Event {
	switch {
	case strings.HasPrefix(data, "admin_status_"):
		rest := strings.TrimPrefix(data, "admin_status_")
		idStr, status, ok := strings.Cut(rest, "_")
		if !ok {
			return Event{Kind: EventUnknown}
		}
		tourID, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			return Event{Kind: EventUnknown}
		}
		// Button tokens use "noshow", the stored status is "no_show".
		if status == "noshow" {
			status = "no_show"
		}
		return Event{Kind: EventAdminStatus, Value: status, TourID: tourID}

	case strings.HasPrefix(data, "lang_"):
		return Event{Kind: EventLanguage, Value: strings.TrimPrefix(data, "lang_")}

	case strings.HasPrefix(data, "children_"):
		return Event{Kind: EventChildrenCount, Value: strings.TrimPrefix(data, "children_")}

	case strings.HasPrefix(data, "age_"):
		return Event{Kind: EventChildAge, Value: strings.TrimPrefix(data, "age_")}

	case strings.HasPrefix(data, "program_"):
		return Event{Kind: EventProgram, Value: strings.TrimPrefix(data, "program_")}

	case strings.HasPrefix(data, "enroll_"):
		return Event{Kind: EventEnrollment, Value: strings.TrimPrefix(data, "enroll_")}

	case strings.HasPrefix(data, "campus_"):
		return Event{Kind: EventCampus, Value: strings.TrimPrefix(data, "campus_")}

	case data == "date_next_week":
		return Event{Kind: EventNextWeek}

	case strings.HasPrefix(data, "date_"):
		return Event{Kind: EventDate, Value: strings.TrimPrefix(data, "date_")}

	case strings.HasPrefix(data, "time_"):
		return Event{Kind: EventTime, Value: strings.TrimPrefix(data, "time_")}

	case strings.HasPrefix(data, "menu_"):
		return Event{Kind: EventMenu, Value: strings.TrimPrefix(data, "menu_")}

	case strings.HasPrefix(data, "reminder_"):
		return Event{Kind: EventReminder, Value: strings.TrimPrefix(data, "reminder_")}
	}

	return Event{Kind: EventUnknown}
}
