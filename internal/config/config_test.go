package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxbridge-edu/admissions-bot/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BOT_TELEGRAM_TOKEN", "test-token")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "test-token", cfg.Telegram.Token)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "storage.db", cfg.Database.Path)

	assert.Equal(t, 64, cfg.CRM.QueueSize)
	assert.Equal(t, uint64(4), cfg.CRM.MaxRetries)
	assert.Equal(t, "tg:", cfg.CRM.ReplyMarker)
	assert.Empty(t, cfg.CRM.BaseURL)

	assert.False(t, cfg.Webhook.Enabled)
	assert.Equal(t, ":8000", cfg.Webhook.Addr)

	assert.Equal(t, []string{"10:00", "14:00", "16:00"}, cfg.School.TourTimes)
	assert.Contains(t, cfg.School.Campuses, "mu")
	assert.Contains(t, cfg.School.Campuses, "yashnobod")

	require.Contains(t, cfg.Scheduler.Tasks, "tour_reminders")
	assert.Equal(t, "0 10 * * *", cfg.Scheduler.Tasks["tour_reminders"].Schedule)
	assert.True(t, cfg.Scheduler.Tasks["tour_reminders"].Enabled)
	assert.Equal(t, "0 11 * * *", cfg.Scheduler.Tasks["tour_followups"].Schedule)
	assert.Equal(t, "0 12 * * *", cfg.Scheduler.Tasks["tour_status_check"].Schedule)
}

func TestLoadMissingTokenFails(t *testing.T) {
	t.Setenv("BOT_TELEGRAM_TOKEN", "")

	_, err := config.Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation")
}

func TestLoadFromFileOverridesDefaults(t *testing.T) {
	t.Setenv("BOT_TELEGRAM_TOKEN", "test-token")

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
log:
  level: debug
webhook:
  enabled: true
  addr: ":9090"
school:
  tour_times: ["11:00"]
  campuses:
    downtown:
      names:
        en: Downtown Campus
        ru: Центральный кампус
      address: "1 Main St"
      map_url: "https://maps.example.com/downtown"
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Webhook.Enabled)
	assert.Equal(t, ":9090", cfg.Webhook.Addr)
	assert.Equal(t, []string{"11:00"}, cfg.School.TourTimes)

	require.Contains(t, cfg.School.Campuses, "downtown")
	campus := cfg.School.Campuses["downtown"]
	assert.Equal(t, "Downtown Campus", campus.Name("en"))
	assert.Equal(t, "Центральный кампус", campus.Name("ru"))
	// Locales without a translation fall back to English.
	assert.Equal(t, "Downtown Campus", campus.Name("uz"))
}

func TestLoadMissingExplicitFileFails(t *testing.T) {
	t.Setenv("BOT_TELEGRAM_TOKEN", "test-token")

	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestIsAdmin(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.Telegram.AdminIDs = []int64{10, 20}

	assert.True(t, cfg.IsAdmin(10))
	assert.True(t, cfg.IsAdmin(20))
	assert.False(t, cfg.IsAdmin(30))
}
