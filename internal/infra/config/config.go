// internal/infra/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"

	"health_notification_bot/internal/domain/settings"
)

const (
	ChannelWebhook  = "webhook"
	ChannelTelegram = "telegram"

	BackendFile     = "file"
	BackendPostgres = "postgres"
)

// AppConfig holds all configuration for the application
type AppConfig struct {
	OuraAccessToken string `env:"OURA_ACCESS_TOKEN"`
	OuraBaseURL     string `env:"OURA_BASE_URL" envDefault:"https://api.ouraring.com/v2/usercollection"`

	DeliveryChannel     string `env:"DELIVERY_CHANNEL" envDefault:"webhook"`
	DiscordWebhookURL   string `env:"DISCORD_WEBHOOK_URL"`
	DiscordUsername     string `env:"DISCORD_USERNAME" envDefault:"Oura Ring Bot"`
	DiscordAvatarURL    string `env:"DISCORD_AVATAR_URL"`
	DiscordWebhookDebug bool   `env:"DISCORD_WEBHOOK_DEBUG"`
	TelegramToken       string `env:"TELEGRAM_TOKEN"`
	TelegramChatID      int64  `env:"TELEGRAM_CHAT_ID"`

	// Overrides applied on top of the settings document when set.
	StepsGoalOverride      *int   `env:"DAILY_STEPS_GOAL"`
	TargetWakeTimeOverride string `env:"TARGET_WAKE_TIME"`

	TimeZone          string        `env:"TIME_ZONE" envDefault:"Asia/Tokyo"`
	MorningAt         string        `env:"MORNING_AT" envDefault:"07:30"`
	NoonAt            string        `env:"NOON_AT" envDefault:"13:00"`
	NightAt           string        `env:"NIGHT_AT" envDefault:"21:30"`
	NightDayOffset    int           `env:"NIGHT_DAY_OFFSET" envDefault:"0"`
	ManualNightCutoff string        `env:"MANUAL_NIGHT_CUTOFF" envDefault:"04:00"`
	FireWindow        time.Duration `env:"FIRE_WINDOW" envDefault:"30m"`
	CronSpecTick      string        `env:"CRON_SPEC_TICK" envDefault:"* * * * *"`
	CronSpecGoalCheck string        `env:"CRON_SPEC_GOAL_CHECK" envDefault:"*/15 * * * *"`

	SettingsBackend string `env:"SETTINGS_BACKEND" envDefault:"file"`
	SettingsFile    string `env:"SETTINGS_FILE" envDefault:"data/settings.json"`
	DatabaseURL     string `env:"DATABASE_URL"`

	HTTPTimeout          time.Duration `env:"HTTP_TIMEOUT" envDefault:"10s"`
	RetryMaxAttempts     int           `env:"RETRY_MAX_ATTEMPTS" envDefault:"3"`
	RetryBaseDelay       time.Duration `env:"RETRY_BASE_DELAY" envDefault:"1s"`
	RetryMaxDelay        time.Duration `env:"RETRY_MAX_DELAY" envDefault:"30s"`
	RateLimitDefaultWait time.Duration `env:"RATE_LIMIT_DEFAULT_WAIT" envDefault:"5s"`
	RateLimitMaxRetries  int           `env:"RATE_LIMIT_MAX_RETRIES" envDefault:"5"`

	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := &AppConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.Environment = strings.ToLower(cfg.Environment)
	cfg.DeliveryChannel = strings.ToLower(cfg.DeliveryChannel)
	cfg.SettingsBackend = strings.ToLower(cfg.SettingsBackend)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) validate() error {
	if _, err := time.LoadLocation(c.TimeZone); err != nil {
		return fmt.Errorf("invalid TIME_ZONE %q: %w", c.TimeZone, err)
	}
	for name, v := range map[string]string{
		"MORNING_AT":          c.MorningAt,
		"NOON_AT":             c.NoonAt,
		"NIGHT_AT":            c.NightAt,
		"MANUAL_NIGHT_CUTOFF": c.ManualNightCutoff,
	} {
		if _, err := settings.ParseTimeOfDay(v); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}
	if c.StepsGoalOverride != nil && *c.StepsGoalOverride < 0 {
		return fmt.Errorf("DAILY_STEPS_GOAL must not be negative")
	}
	if c.TargetWakeTimeOverride != "" {
		if _, err := settings.ParseTimeOfDay(c.TargetWakeTimeOverride); err != nil {
			return fmt.Errorf("invalid TARGET_WAKE_TIME: %w", err)
		}
	}
	switch c.DeliveryChannel {
	case ChannelWebhook, ChannelTelegram:
	default:
		return fmt.Errorf("invalid DELIVERY_CHANNEL %q (want webhook or telegram)", c.DeliveryChannel)
	}
	switch c.SettingsBackend {
	case BackendFile:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is not set (required by SETTINGS_BACKEND=postgres)")
		}
	default:
		return fmt.Errorf("invalid SETTINGS_BACKEND %q (want file or postgres)", c.SettingsBackend)
	}
	if c.FireWindow <= 0 {
		return fmt.Errorf("FIRE_WINDOW must be positive")
	}
	if c.RetryMaxAttempts < 1 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be at least 1")
	}
	return nil
}

// StepsGoal returns the DAILY_STEPS_GOAL override, or -1 when it is unset.
func (c *AppConfig) StepsGoal() int {
	if c.StepsGoalOverride == nil {
		return -1
	}
	return *c.StepsGoalOverride
}

// RequireHealth checks settings needed to talk to the health provider.
func (c *AppConfig) RequireHealth() error {
	if c.OuraAccessToken == "" {
		return fmt.Errorf("OURA_ACCESS_TOKEN is not set")
	}
	return nil
}

// RequireDelivery checks settings needed by the configured delivery channel.
func (c *AppConfig) RequireDelivery() error {
	switch c.DeliveryChannel {
	case ChannelTelegram:
		if c.TelegramToken == "" || c.TelegramChatID == 0 {
			return fmt.Errorf("TELEGRAM_TOKEN and TELEGRAM_CHAT_ID must be set for DELIVERY_CHANNEL=telegram")
		}
	default:
		if c.DiscordWebhookURL == "" {
			return fmt.Errorf("DISCORD_WEBHOOK_URL is not set")
		}
	}
	return nil
}

// Location returns the reference time zone. validate has already checked it.
func (c *AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}
