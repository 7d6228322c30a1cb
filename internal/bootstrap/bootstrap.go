// Package bootstrap builds the object graph shared by the long-running bot and the one-shot runner.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"

	"health_notification_bot/internal/app"
	"health_notification_bot/internal/domain/notification"
	"health_notification_bot/internal/domain/settings"
	"health_notification_bot/internal/infra/config"
	idb "health_notification_bot/internal/infra/database"
	"health_notification_bot/internal/infra/discord"
	"health_notification_bot/internal/infra/logger"
	"health_notification_bot/internal/infra/oura"
	"health_notification_bot/internal/infra/retry"
	"health_notification_bot/internal/infra/settingsstore"
	"health_notification_bot/internal/infra/telegram"
)

const settingsDocumentName = "default"

// Components is the wired application.
type Components struct {
	Config   *config.AppConfig
	Location *time.Location
	Store    *settingsstore.Store
	Health   *oura.Client
	Sender   notification.Sender
	Notifier *app.NotificationService
	Resolver app.DateResolver

	// Bot and Telegram are set when TELEGRAM_TOKEN is configured.
	Bot      *telebot.Bot
	Telegram *telegram.TelebotAdapter

	db *sql.DB
}

// New wires every component from cfg. It does not start any background work.
func New(ctx context.Context, cfg *config.AppConfig) (*Components, error) {
	c := &Components{Config: cfg, Location: cfg.Location()}

	cutoff, err := settings.ParseTimeOfDay(cfg.ManualNightCutoff)
	if err != nil {
		return nil, fmt.Errorf("invalid MANUAL_NIGHT_CUTOFF: %w", err)
	}
	c.Resolver = app.DateResolver{Location: c.Location, NightCutoff: cutoff}

	backend, err := c.settingsBackend(ctx)
	if err != nil {
		return nil, err
	}
	c.Store, err = settingsstore.Open(ctx, backend, settingsstore.Options{
		StepsGoalOverride:      cfg.StepsGoal(),
		TargetWakeTimeOverride: cfg.TargetWakeTimeOverride,
	}, logger.Component("settings"))
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("opening settings store: %w", err)
	}

	c.Health = oura.NewClient(cfg.OuraBaseURL, cfg.OuraAccessToken, cfg.HTTPTimeout,
		retry.NewRunner(policy(cfg), retry.Sleep, logger.Component("oura_retry")), c.Location, logger.Component("oura"))

	if cfg.TelegramToken != "" {
		c.Bot, err = telebot.NewBot(telebot.Settings{
			Token:  cfg.TelegramToken,
			Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
			OnError: func(err error, tc telebot.Context) {
				entry := logger.Component("telebot").WithError(err)
				if tc != nil && tc.Chat() != nil {
					entry = entry.WithField("chat_id", tc.Chat().ID)
				}
				entry.Error("Unhandled bot error")
			},
		})
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("could not create Telegram bot: %w", err)
		}
		c.Telegram = telegram.NewTelebotAdapter(c.Bot, cfg.TelegramChatID,
			retry.NewRunner(policy(cfg), retry.Sleep, logger.Component("telegram_retry")), logger.Component("telegram"))
	}

	switch cfg.DeliveryChannel {
	case config.ChannelTelegram:
		if c.Telegram == nil {
			c.Close()
			return nil, fmt.Errorf("DELIVERY_CHANNEL=telegram requires TELEGRAM_TOKEN")
		}
		c.Sender = c.Telegram
	default:
		c.Sender = discord.NewWebhook(cfg.DiscordWebhookURL, discord.Options{
			Username:  cfg.DiscordUsername,
			AvatarURL: cfg.DiscordAvatarURL,
			Timeout:   cfg.HTTPTimeout,
			Debug:     cfg.DiscordWebhookDebug,
		}, retry.NewRunner(policy(cfg), retry.Sleep, logger.Component("discord_retry")), logger.Component("discord"))
	}

	c.Notifier = app.NewNotificationService(c.Health, c.Sender, c.Store, c.Location, time.Now, logger.Component("pipeline"))
	return c, nil
}

func (c *Components) settingsBackend(ctx context.Context) (settingsstore.Backend, error) {
	if c.Config.SettingsBackend != config.BackendPostgres {
		return settingsstore.NewFileBackend(c.Config.SettingsFile), nil
	}
	db, err := idb.NewPostgresConnection(ctx, c.Config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}
	c.db = db
	backend := idb.NewPostgresSettingsBackend(db, settingsDocumentName)
	if err := backend.EnsureSchema(ctx); err != nil {
		c.Close()
		return nil, err
	}
	logger.Log.Info("Database connection established successfully.")
	return backend, nil
}

// Commands builds the chat command service.
func (c *Components) Commands() *app.CommandService {
	return app.NewCommandService(c.Health, c.Store, c.Notifier, c.Resolver, time.Now)
}

// Close releases the database connection, if any.
func (c *Components) Close() {
	if c.db != nil {
		if err := c.db.Close(); err != nil {
			logger.Log.WithError(err).Warn("Closing database connection")
		}
		c.db = nil
	}
}

func policy(cfg *config.AppConfig) retry.Policy {
	return retry.Policy{
		MaxAttempts:          cfg.RetryMaxAttempts,
		BaseDelay:            cfg.RetryBaseDelay,
		MaxDelay:             cfg.RetryMaxDelay,
		DefaultRateLimitWait: cfg.RateLimitDefaultWait,
		MaxRateLimitRetries:  cfg.RateLimitMaxRetries,
	}
}

// Fields summarises the configuration for the startup log line.
func Fields(cfg *config.AppConfig) logrus.Fields {
	return logrus.Fields{
		"log_level":        cfg.LogLevel,
		"environment":      cfg.Environment,
		"time_zone":        cfg.TimeZone,
		"delivery_channel": cfg.DeliveryChannel,
		"settings_backend": cfg.SettingsBackend,
	}
}
