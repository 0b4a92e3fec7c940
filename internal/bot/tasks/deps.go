// Package tasks implements the scheduled batch jobs: tour reminders,
// post-tour follow-ups, and staff status checks.
package tasks

import (
	"log/slog"
	"time"

	"github.com/oxbridge-edu/admissions-bot/internal/config"
	"github.com/oxbridge-edu/admissions-bot/internal/database"
	"github.com/oxbridge-edu/admissions-bot/internal/i18n"
	"github.com/oxbridge-edu/admissions-bot/internal/telegram"
)

// TaskDeps contains all dependencies required by scheduled tasks.
// Now is injectable so the date window logic is testable.
type TaskDeps struct {
	Logger    *slog.Logger
	Store     database.Store
	Messenger telegram.Messenger
	Catalog   *i18n.Catalog
	Config    *config.Config
	Now       func() time.Time
}

func (d TaskDeps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}
