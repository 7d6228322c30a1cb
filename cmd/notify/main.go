// Command notify sends one notification outside the scheduler.
//
//	notify --type morning|noon|night [--date YYYY-MM-DD]
//	notify --test
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"health_notification_bot/internal/app"
	"health_notification_bot/internal/bootstrap"
	"health_notification_bot/internal/domain/health"
	"health_notification_bot/internal/domain/notification"
	"health_notification_bot/internal/infra/config"
	"health_notification_bot/internal/infra/logger"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

var errUsage = errors.New("usage")

type options struct {
	kind string
	date string
	test bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

func run(args []string, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintln(stderr, err)
		return exitUsage
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitFailure
	}
	log := logger.Init(cfg)
	if err := cfg.RequireDelivery(); err != nil {
		log.WithError(err).Error("Invalid configuration")
		return exitFailure
	}
	if !opts.test {
		if err := cfg.RequireHealth(); err != nil {
			log.WithError(err).Error("Invalid configuration")
			return exitFailure
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.WithError(err).Error("Could not initialise application")
		return exitFailure
	}
	defer c.Close()

	if opts.test {
		if err := c.Notifier.SendTest(ctx); err != nil {
			log.WithError(err).WithField("error_kind", app.ErrorKind(err)).Error("Test notification failed")
			return exitFailure
		}
		log.Info("Test notification sent")
		return exitOK
	}

	job, err := buildJob(opts, c.Resolver, time.Now())
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}
	outcome, err := c.Notifier.RunManual(ctx, job)
	if err != nil {
		return exitFailure
	}
	log.WithFields(logrus.Fields{"job": job.String(), "outcome": outcome}).Info("Manual run finished")
	return exitOK
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("notify", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.kind, "type", "", "notification type: morning, noon or night")
	fs.StringVar(&opts.date, "date", "", "target date YYYY-MM-DD (default: resolved from the current time)")
	fs.BoolVar(&opts.test, "test", false, "send a test message through the delivery channel only")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if fs.NArg() > 0 {
		return opts, fmt.Errorf("%w: unexpected arguments %v", errUsage, fs.Args())
	}
	if opts.test {
		if opts.kind != "" || opts.date != "" {
			return opts, fmt.Errorf("%w: --test cannot be combined with --type or --date", errUsage)
		}
		return opts, nil
	}
	if opts.kind == "" {
		return opts, fmt.Errorf("%w: one of --type or --test is required", errUsage)
	}
	if _, err := notification.ParseType(opts.kind); err != nil {
		return opts, fmt.Errorf("%w: %v", errUsage, err)
	}
	return opts, nil
}

func buildJob(opts options, resolver app.DateResolver, now time.Time) (notification.Job, error) {
	t, err := notification.ParseType(opts.kind)
	if err != nil {
		return notification.Job{}, err
	}
	job := notification.Job{Type: t, TargetDate: resolver.Resolve(t, now), Attempt: 1}
	if opts.date != "" {
		day, err := time.ParseInLocation(health.DateLayout, opts.date, resolver.Location)
		if err != nil {
			return notification.Job{}, fmt.Errorf("%w: --date must be YYYY-MM-DD", errUsage)
		}
		job.TargetDate = day
	}
	return job, nil
}
