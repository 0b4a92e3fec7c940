// Package funnel implements the admissions conversation state machine:
// qualification questions, tour booking, reminder responses, and the
// handoff to the admissions team.
package funnel

// Conversation states persisted per chat.
const (
	StateStart              = "start"
	StateAwaitingName       = "awaiting_name"
	StateAwaitingPhone      = "awaiting_phone"
	StateAwaitingChildren   = "awaiting_children_count"
	StateAwaitingChildAge   = "awaiting_child_age"
	StateAwaitingProgram    = "awaiting_program"
	StateAwaitingEnrollment = "awaiting_enrollment"
	StateReady              = "ready"
	StateBookingCampus      = "booking_tour_campus"
	StateBookingDate        = "booking_tour_date"
	StateBookingTime        = "booking_tour_time"
)
