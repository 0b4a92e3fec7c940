package database

import (
	"database/sql"
	"encoding/json"
	"time"
)

// Tour status values. Status only changes through the transitions in
// the funnel, the batch tasks, and staff updates.
const (
	TourStatusBooked      = "booked"
	TourStatusConfirmed   = "confirmed"
	TourStatusCancelled   = "cancelled"
	TourStatusAttended    = "attended"
	TourStatusNoShow      = "no_show"
	TourStatusRescheduled = "rescheduled"
)

// User is one conversant. ChatID is the Telegram chat identifier and
// primary key. State names the next input the funnel expects; the
// answer columns fill in monotonically as the user progresses and are
// only cleared by an explicit restart.
type User struct {
	ChatID    int64     `db:"chat_id"`
	Username  string    `db:"username"`
	Language  string    `db:"language"`
	State     string    `db:"state"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`

	Name          sql.NullString `db:"name"`
	Phone         sql.NullString `db:"phone"`
	ChildrenCount sql.NullInt64  `db:"children_count"`
	CurrentChild  sql.NullInt64  `db:"current_child"`
	ChildrenAges  sql.NullString `db:"children_ages"` // JSON array of age ranges
	Program       sql.NullString `db:"program"`
	Enrollment    sql.NullString `db:"enrollment"`
	TourCampus    sql.NullString `db:"tour_campus"`
	TourDate      sql.NullString `db:"tour_date"`
	TourTime      sql.NullString `db:"tour_time"`
}

// AgesList decodes the accumulated child age ranges in submission order.
func (u *User) AgesList() []string {
	if !u.ChildrenAges.Valid || u.ChildrenAges.String == "" {
		return nil
	}
	var ages []string
	if err := json.Unmarshal([]byte(u.ChildrenAges.String), &ages); err != nil {
		return nil
	}
	return ages
}

// SetAgesList encodes the child age ranges back into the JSON column.
func (u *User) SetAgesList(ages []string) {
	if ages == nil {
		ages = []string{}
	}
	raw, err := json.Marshal(ages)
	if err != nil {
		return
	}
	u.ChildrenAges = sql.NullString{String: string(raw), Valid: true}
}

// Tour is one scheduled campus visit. Tours are never deleted; their
// history lives in status transitions.
type Tour struct {
	ID           int64     `db:"id"`
	ChatID       int64     `db:"chat_id"`
	Phone        string    `db:"phone"`
	Campus       string    `db:"campus"`
	Date         string    `db:"date"` // YYYY-MM-DD
	Time         string    `db:"time"` // HH:MM
	Language     string    `db:"language"`
	Status       string    `db:"status"`
	ReminderSent bool      `db:"reminder_sent"`
	FollowupSent bool      `db:"followup_sent"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// LeadLink maps a chat to its CRM contact and lead, written once when
// qualification completes and lead creation succeeds.
type LeadLink struct {
	ChatID    int64     `db:"chat_id"`
	ContactID int64     `db:"contact_id"`
	LeadID    int64     `db:"lead_id"`
	CreatedAt time.Time `db:"created_at"`
}
