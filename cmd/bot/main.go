package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"health_notification_bot/internal/bootstrap"
	"health_notification_bot/internal/domain/settings"
	"health_notification_bot/internal/infra/config"
	"health_notification_bot/internal/infra/logger"
	"health_notification_bot/internal/infra/scheduler"
	"health_notification_bot/internal/infra/telegram"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Log.WithError(err).Fatal("Could not load application configuration")
	}
	log := logger.Init(cfg)
	log.WithFields(bootstrap.Fields(cfg)).Info("Health notification bot starting...")

	if err := cfg.RequireHealth(); err != nil {
		log.WithError(err).Fatal("Invalid configuration")
	}
	if err := cfg.RequireDelivery(); err != nil {
		log.WithError(err).Fatal("Invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("Could not initialise application")
	}
	defer c.Close()

	if cfg.SettingsBackend == config.BackendFile {
		if err := c.Store.Watch(ctx, cfg.SettingsFile); err != nil {
			log.WithError(err).Warn("External edits to the settings file will not be picked up")
		}
	}

	slots := scheduler.DefaultSlots(mustTime(cfg.MorningAt), mustTime(cfg.NoonAt), mustTime(cfg.NightAt), cfg.NightDayOffset)
	notifScheduler := scheduler.NewNotificationScheduler(c.Notifier, c.Store, scheduler.SystemClock, c.Location, scheduler.Options{
		Slots:         slots,
		FireWindow:    cfg.FireWindow,
		MaxAttempts:   cfg.RetryMaxAttempts,
		TickSpec:      cfg.CronSpecTick,
		GoalCheckSpec: cfg.CronSpecGoalCheck,
	}, logger.Component("scheduler"))
	if err := notifScheduler.Start(); err != nil {
		log.WithError(err).Fatal("Could not start scheduler")
	}

	if c.Bot != nil {
		telegram.RegisterBotCommands(c.Bot, c.Commands(), c.Telegram, cfg.TelegramChatID, logger.Component("telegram"))
		if err := c.Bot.SetCommands(telegram.Commands); err != nil {
			log.WithError(err).Warn("Could not publish the command menu")
		}
		go c.Bot.Start()
		log.Info("Telegram command handlers registered.")
	}

	log.Info("Application setup complete.")
	<-ctx.Done()

	log.Info("Shutting down application...")
	if c.Bot != nil {
		c.Bot.Stop()
	}
	notifScheduler.Stop()
	log.Info("Application shut down gracefully.")
}

// mustTime parses a time of day that config.Load has already validated.
func mustTime(s string) settings.TimeOfDay {
	t, err := settings.ParseTimeOfDay(s)
	if err != nil {
		logger.Log.WithError(err).Fatal("Invalid time of day")
	}
	return t
}
