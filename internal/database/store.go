package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// Store defines the data access operations for users, tours, and lead
// links. Methods accept context.Context for cancellation and timeouts.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// GetUser retrieves a user by chat ID. Returns nil, nil if not found.
	GetUser(ctx context.Context, chatID int64) (*User, error)

	// CreateUser creates the user record, or restarts an existing one:
	// state returns to start and all accumulated answers are cleared.
	CreateUser(ctx context.Context, chatID int64, username string) (*User, error)

	// GetOrCreateUser retrieves a user, lazily creating the record with
	// defaults on first contact. Unlike CreateUser it never resets an
	// existing record.
	GetOrCreateUser(ctx context.Context, chatID int64, username string) (*User, error)

	// SaveUser persists the full user row (state and answers).
	SaveUser(ctx context.Context, user *User) error

	// CountUsers returns the total number of user records.
	CountUsers(ctx context.Context) (int, error)

	// AllChatIDs returns every known chat ID, for broadcasts.
	AllChatIDs(ctx context.Context) ([]int64, error)

	// CreateTour inserts a new tour with status booked. Any prior booked
	// tour for the same chat is superseded to rescheduled in the same
	// transaction, so at most one booked tour exists per user.
	CreateTour(ctx context.Context, tour *Tour) error

	// GetTour retrieves a tour by ID. Returns nil, nil if not found.
	GetTour(ctx context.Context, tourID int64) (*Tour, error)

	// ActiveTourForChat returns the chat's booked tour, or nil, nil when
	// the user has none.
	ActiveTourForChat(ctx context.Context, chatID int64) (*Tour, error)

	// SetTourStatus sets a tour's status directly (reminder responses and
	// staff updates).
	SetTourStatus(ctx context.Context, tourID int64, status string) error

	// MarkReminderSent flips reminder_sent, but only while the tour is
	// still booked and unflagged. Reports whether the row changed.
	MarkReminderSent(ctx context.Context, tourID int64) (bool, error)

	// MarkFollowupSent flips followup_sent, but only while the tour is
	// still attended and unflagged. Reports whether the row changed.
	MarkFollowupSent(ctx context.Context, tourID int64) (bool, error)

	// ToursNeedingReminder selects tours on the given date that are
	// booked and have not been reminded.
	ToursNeedingReminder(ctx context.Context, date string) ([]*Tour, error)

	// ToursForFollowup selects tours on the given date that were attended
	// and have not received a follow-up.
	ToursForFollowup(ctx context.Context, date string) ([]*Tour, error)

	// ToursNeedingStatusCheck selects tours on the given date still in
	// booked status, i.e. staff never resolved them.
	ToursNeedingStatusCheck(ctx context.Context, date string) ([]*Tour, error)

	// SaveLeadLink records the CRM contact and lead IDs for a chat.
	SaveLeadLink(ctx context.Context, chatID, contactID, leadID int64) error

	// GetLeadLink retrieves the lead link for a chat. Returns nil, nil if
	// the chat has no lead yet.
	GetLeadLink(ctx context.Context, chatID int64) (*LeadLink, error)

	// ChatIDByLead resolves a CRM lead ID back to its chat. Returns 0,
	// nil when the lead is unknown.
	ChatIDByLead(ctx context.Context, leadID int64) (int64, error)
}

// sqlxStore implements Store using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a Store backed by sqlx. It requires a connected
// sqlx.DB instance and a logger.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const userColumns = `chat_id, username, language, state, created_at, updated_at,
	name, phone, children_count, current_child, children_ages,
	program, enrollment, tour_campus, tour_date, tour_time`

func (s *sqlxStore) GetUser(ctx context.Context, chatID int64) (*User, error) {
	var user User
	query := `SELECT ` + userColumns + ` FROM users WHERE chat_id = ?`

	err := s.db.GetContext(ctx, &user, query, chatID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("failed to get user %d: %w", chatID, err)
	}
	return &user, nil
}

func (s *sqlxStore) CreateUser(ctx context.Context, chatID int64, username string) (*User, error) {
	now := time.Now().UTC()
	user := &User{
		ChatID:    chatID,
		Username:  username,
		Language:  "ru",
		State:     "start",
		CreatedAt: now,
		UpdatedAt: now,
	}

	// Restart semantics: an existing record keeps its language and
	// created_at but loses state progress and answers.
	query := `
		INSERT INTO users (chat_id, username, language, state, created_at, updated_at)
		VALUES (:chat_id, :username, :language, :state, :created_at, :updated_at)
		ON CONFLICT (chat_id) DO UPDATE SET
			username = excluded.username,
			state = excluded.state,
			name = NULL, phone = NULL,
			children_count = NULL, current_child = NULL, children_ages = NULL,
			program = NULL, enrollment = NULL,
			tour_campus = NULL, tour_date = NULL, tour_time = NULL,
			updated_at = excluded.updated_at
	`
	if _, err := s.db.NamedExecContext(ctx, query, user); err != nil {
		return nil, fmt.Errorf("failed to create user %d: %w", chatID, err)
	}

	s.logger.DebugContext(ctx, "User record created or restarted", "chat_id", chatID)
	return s.GetUser(ctx, chatID)
}

func (s *sqlxStore) GetOrCreateUser(ctx context.Context, chatID int64, username string) (*User, error) {
	user, err := s.GetUser(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if user != nil {
		return user, nil
	}

	now := time.Now().UTC()
	user = &User{
		ChatID:    chatID,
		Username:  username,
		Language:  "ru",
		State:     "start",
		CreatedAt: now,
		UpdatedAt: now,
	}
	query := `
		INSERT INTO users (chat_id, username, language, state, created_at, updated_at)
		VALUES (:chat_id, :username, :language, :state, :created_at, :updated_at)
		ON CONFLICT (chat_id) DO NOTHING
	`
	if _, err := s.db.NamedExecContext(ctx, query, user); err != nil {
		return nil, fmt.Errorf("failed to lazily create user %d: %w", chatID, err)
	}
	return s.GetUser(ctx, chatID)
}

func (s *sqlxStore) SaveUser(ctx context.Context, user *User) error {
	if user == nil {
		return fmt.Errorf("cannot save nil user")
	}
	user.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE users SET
			username = :username,
			language = :language,
			state = :state,
			name = :name,
			phone = :phone,
			children_count = :children_count,
			current_child = :current_child,
			children_ages = :children_ages,
			program = :program,
			enrollment = :enrollment,
			tour_campus = :tour_campus,
			tour_date = :tour_date,
			tour_time = :tour_time,
			updated_at = :updated_at
		WHERE chat_id = :chat_id
	`
	result, err := s.db.NamedExecContext(ctx, query, user)
	if err != nil {
		return fmt.Errorf("failed to save user %d: %w", user.ChatID, err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected != 1 {
		s.logger.WarnContext(ctx, "Unexpected number of rows affected when saving user",
			"chat_id", user.ChatID, "affected", affected)
	}
	return nil
}

func (s *sqlxStore) CountUsers(ctx context.Context) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM users`); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

func (s *sqlxStore) AllChatIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	if err := s.db.SelectContext(ctx, &ids, `SELECT chat_id FROM users ORDER BY chat_id`); err != nil {
		return nil, fmt.Errorf("failed to list chat ids: %w", err)
	}
	return ids, nil
}

func (s *sqlxStore) CreateTour(ctx context.Context, tour *Tour) error {
	if tour == nil {
		return fmt.Errorf("cannot create nil tour")
	}
	now := time.Now().UTC()
	tour.Status = TourStatusBooked
	tour.CreatedAt = now
	tour.UpdatedAt = now

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				s.logger.WarnContext(ctx, "Error rolling back transaction", "error", rollbackErr)
			}
		}
	}()

	// At most one booked tour per user: any earlier booked tour is
	// superseded by the new booking.
	superseded, err := tx.ExecContext(ctx,
		`UPDATE tours SET status = ?, updated_at = ? WHERE chat_id = ? AND status = ?`,
		TourStatusRescheduled, now, tour.ChatID, TourStatusBooked)
	if err != nil {
		return fmt.Errorf("failed to supersede prior tours for chat %d: %w", tour.ChatID, err)
	}
	if n, err := superseded.RowsAffected(); err == nil && n > 0 {
		s.logger.InfoContext(ctx, "Superseded prior booked tours", "chat_id", tour.ChatID, "count", n)
	}

	query := `
		INSERT INTO tours (chat_id, phone, campus, date, time, language, status,
			reminder_sent, followup_sent, created_at, updated_at)
		VALUES (:chat_id, :phone, :campus, :date, :time, :language, :status,
			:reminder_sent, :followup_sent, :created_at, :updated_at)
	`
	result, err := tx.NamedExecContext(ctx, query, tour)
	if err != nil {
		return fmt.Errorf("failed to create tour for chat %d: %w", tour.ChatID, err)
	}
	if id, err := result.LastInsertId(); err == nil {
		tour.ID = id
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit tour creation: %w", err)
	}
	tx = nil

	s.logger.DebugContext(ctx, "Tour created", "tour_id", tour.ID, "chat_id", tour.ChatID, "date", tour.Date)
	return nil
}

const tourColumns = `id, chat_id, phone, campus, date, time, language, status,
	reminder_sent, followup_sent, created_at, updated_at`

func (s *sqlxStore) GetTour(ctx context.Context, tourID int64) (*Tour, error) {
	var tour Tour
	query := `SELECT ` + tourColumns + ` FROM tours WHERE id = ?`

	err := s.db.GetContext(ctx, &tour, query, tourID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("failed to get tour %d: %w", tourID, err)
	}
	return &tour, nil
}

func (s *sqlxStore) ActiveTourForChat(ctx context.Context, chatID int64) (*Tour, error) {
	var tour Tour
	query := `SELECT ` + tourColumns + ` FROM tours
		WHERE chat_id = ? AND status = ? ORDER BY id LIMIT 1`

	err := s.db.GetContext(ctx, &tour, query, chatID, TourStatusBooked)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("failed to get active tour for chat %d: %w", chatID, err)
	}
	return &tour, nil
}

func (s *sqlxStore) SetTourStatus(ctx context.Context, tourID int64, status string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE tours SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC(), tourID)
	if err != nil {
		return fmt.Errorf("failed to set tour %d status to %s: %w", tourID, status, err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("tour %d not found", tourID)
	}
	s.logger.DebugContext(ctx, "Tour status updated", "tour_id", tourID, "status", status)
	return nil
}

func (s *sqlxStore) MarkReminderSent(ctx context.Context, tourID int64) (bool, error) {
	// Conditional update: a tour cancelled or reminded concurrently is
	// skipped, which prevents double-sending.
	result, err := s.db.ExecContext(ctx,
		`UPDATE tours SET reminder_sent = 1, updated_at = ?
		 WHERE id = ? AND status = ? AND reminder_sent = 0`,
		time.Now().UTC(), tourID, TourStatusBooked)
	if err != nil {
		return false, fmt.Errorf("failed to mark reminder sent for tour %d: %w", tourID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows for tour %d: %w", tourID, err)
	}
	return affected == 1, nil
}

func (s *sqlxStore) MarkFollowupSent(ctx context.Context, tourID int64) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE tours SET followup_sent = 1, updated_at = ?
		 WHERE id = ? AND status = ? AND followup_sent = 0`,
		time.Now().UTC(), tourID, TourStatusAttended)
	if err != nil {
		return false, fmt.Errorf("failed to mark follow-up sent for tour %d: %w", tourID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows for tour %d: %w", tourID, err)
	}
	return affected == 1, nil
}

func (s *sqlxStore) selectTours(ctx context.Context, query string, args ...any) ([]*Tour, error) {
	var tours []*Tour
	if err := s.db.SelectContext(ctx, &tours, query, args...); err != nil {
		return nil, err
	}
	return tours, nil
}

func (s *sqlxStore) ToursNeedingReminder(ctx context.Context, date string) ([]*Tour, error) {
	tours, err := s.selectTours(ctx,
		`SELECT `+tourColumns+` FROM tours
		 WHERE date = ? AND status = ? AND reminder_sent = 0 ORDER BY id`,
		date, TourStatusBooked)
	if err != nil {
		return nil, fmt.Errorf("failed to select tours needing reminder: %w", err)
	}
	return tours, nil
}

func (s *sqlxStore) ToursForFollowup(ctx context.Context, date string) ([]*Tour, error) {
	tours, err := s.selectTours(ctx,
		`SELECT `+tourColumns+` FROM tours
		 WHERE date = ? AND status = ? AND followup_sent = 0 ORDER BY id`,
		date, TourStatusAttended)
	if err != nil {
		return nil, fmt.Errorf("failed to select tours for follow-up: %w", err)
	}
	return tours, nil
}

func (s *sqlxStore) ToursNeedingStatusCheck(ctx context.Context, date string) ([]*Tour, error) {
	tours, err := s.selectTours(ctx,
		`SELECT `+tourColumns+` FROM tours
		 WHERE date = ? AND status = ? ORDER BY id`,
		date, TourStatusBooked)
	if err != nil {
		return nil, fmt.Errorf("failed to select tours needing status check: %w", err)
	}
	return tours, nil
}

func (s *sqlxStore) SaveLeadLink(ctx context.Context, chatID, contactID, leadID int64) error {
	query := `
		INSERT INTO lead_links (chat_id, contact_id, lead_id, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (chat_id) DO UPDATE SET
			contact_id = excluded.contact_id,
			lead_id = excluded.lead_id
	`
	if _, err := s.db.ExecContext(ctx, query, chatID, contactID, leadID, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to save lead link for chat %d: %w", chatID, err)
	}
	s.logger.DebugContext(ctx, "Lead link saved", "chat_id", chatID, "lead_id", leadID)
	return nil
}

func (s *sqlxStore) GetLeadLink(ctx context.Context, chatID int64) (*LeadLink, error) {
	var link LeadLink
	query := `SELECT chat_id, contact_id, lead_id, created_at FROM lead_links WHERE chat_id = ?`

	err := s.db.GetContext(ctx, &link, query, chatID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("failed to get lead link for chat %d: %w", chatID, err)
	}
	return &link, nil
}

func (s *sqlxStore) ChatIDByLead(ctx context.Context, leadID int64) (int64, error) {
	var chatID int64
	err := s.db.GetContext(ctx, &chatID, `SELECT chat_id FROM lead_links WHERE lead_id = ?`, leadID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("failed to resolve lead %d: %w", leadID, err)
	}
	return chatID, nil
}
