// Package config manages application configuration from config.yaml,
// BOT_* environment variables, and default values.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config defines the application configuration for all components.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Database  DatabaseConfig  `mapstructure:"database"`
	CRM       CRMConfig       `mapstructure:"crm"`
	Webhook   WebhookConfig   `mapstructure:"webhook"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	School    SchoolConfig    `mapstructure:"school"`
}

// LogConfig controls logging level and output format.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// TelegramConfig holds bot credentials and staff chat routing.
type TelegramConfig struct {
	Token            string  `mapstructure:"token"              validate:"required"`
	AdmissionsChatID int64   `mapstructure:"admissions_chat_id"`
	AdminIDs         []int64 `mapstructure:"admin_ids"`
}

// DatabaseConfig holds the SQLite database location.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// CRMConfig holds Kommo (amoCRM) API credentials and sync settings.
// An empty BaseURL disables outbound synchronization.
type CRMConfig struct {
	BaseURL      string `mapstructure:"base_url"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	AccessToken  string `mapstructure:"access_token"`
	RefreshToken string `mapstructure:"refresh_token"`
	PipelineID   int64  `mapstructure:"pipeline_id"`
	StatusID     int64  `mapstructure:"status_id"`
	QueueSize    int    `mapstructure:"queue_size"  validate:"min=1"`
	MaxRetries   uint64 `mapstructure:"max_retries"`
	ReplyMarker  string `mapstructure:"reply_marker"`
}

// WebhookConfig holds the inbound CRM webhook HTTP server settings.
type WebhookConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr" validate:"required"`
}

// SchedulerConfig maps task names to their cron schedules.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks"`
}

// TaskConfig enables a named scheduled task with a cron expression.
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}

// Campus describes one school campus offered for tours. Names is keyed
// by locale.
type Campus struct {
	Names   map[string]string `mapstructure:"names"`
	Address string            `mapstructure:"address"`
	MapURL  string            `mapstructure:"map_url"`
}

// Name returns the campus display name for a locale, falling back to
// English and then to any available name.
func (c Campus) Name(locale string) string {
	if name, ok := c.Names[locale]; ok {
		return name
	}
	if name, ok := c.Names["en"]; ok {
		return name
	}
	for _, name := range c.Names {
		return name
	}
	return ""
}

// SchoolConfig holds school-specific funnel content: campuses, tour
// time slots, and contact points.
type SchoolConfig struct {
	ContactPhone string            `mapstructure:"contact_phone"`
	ChannelLink  string            `mapstructure:"channel_link"`
	TourTimes    []string          `mapstructure:"tour_times" validate:"min=1"`
	Campuses     map[string]Campus `mapstructure:"campuses"   validate:"min=1"`
}

// IsAdmin reports whether the given chat belongs to a configured admin.
func (c *Config) IsAdmin(chatID int64) bool {
	for _, id := range c.Telegram.AdminIDs {
		if id == chatID {
			return true
		}
	}
	return false
}

// Load reads configuration from the given file (optional), overlays
// BOT_* environment variables, applies defaults, and validates the
// result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("BOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Missing config file is fine, defaults plus env apply.
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if len(cfg.School.Campuses) == 0 {
		cfg.School.Campuses = defaultCampuses()
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)

	// Secrets usually arrive through BOT_* env vars; registering the
	// keys makes viper consult the environment for them on unmarshal.
	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.admissions_chat_id", 0)

	v.SetDefault("database.path", "storage.db")

	v.SetDefault("crm.base_url", "")
	v.SetDefault("crm.client_id", "")
	v.SetDefault("crm.client_secret", "")
	v.SetDefault("crm.access_token", "")
	v.SetDefault("crm.refresh_token", "")
	v.SetDefault("crm.pipeline_id", 0)
	v.SetDefault("crm.status_id", 0)
	v.SetDefault("crm.queue_size", 64)
	v.SetDefault("crm.max_retries", 4)
	v.SetDefault("crm.reply_marker", "tg:")

	v.SetDefault("webhook.enabled", false)
	v.SetDefault("webhook.addr", ":8000")

	v.SetDefault("school.contact_phone", "+998 XX XXX XX XX")
	v.SetDefault("school.channel_link", "https://t.me/oxbridge_news")
	v.SetDefault("school.tour_times", []string{"10:00", "14:00", "16:00"})

	v.SetDefault("scheduler.tasks.tour_reminders.enabled", true)
	v.SetDefault("scheduler.tasks.tour_reminders.schedule", "0 10 * * *")
	v.SetDefault("scheduler.tasks.tour_followups.enabled", true)
	v.SetDefault("scheduler.tasks.tour_followups.schedule", "0 11 * * *")
	v.SetDefault("scheduler.tasks.tour_status_check.enabled", true)
	v.SetDefault("scheduler.tasks.tour_status_check.schedule", "0 12 * * *")
}

func defaultCampuses() map[string]Campus {
	return map[string]Campus{
		"mu": {
			Names: map[string]string{
				"ru": "MU Campus - Мирзо Улугбек",
				"uz": "MU Campus - Mirzo Ulugbek",
				"en": "MU Campus - Mirzo Ulugbek",
				"tr": "MU Campus - Mirzo Ulugbek",
			},
			Address: "Mirzo Ulugbek District, Tashkent",
			MapURL:  "https://maps.google.com",
		},
		"yashnobod": {
			Names: map[string]string{
				"ru": "Yashnobod - Яшнабад",
				"uz": "Yashnobod",
				"en": "Yashnobod Campus",
				"tr": "Yashnobod Kampüsü",
			},
			Address: "Yashnobod District, Tashkent",
			MapURL:  "https://maps.google.com",
		},
	}
}
