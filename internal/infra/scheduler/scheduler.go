package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"health_notification_bot/internal/app"
	"health_notification_bot/internal/domain/health"
	"health_notification_bot/internal/domain/notification"
	"health_notification_bot/internal/domain/settings"
)

// Clock is the scheduler's time source.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock reads the wall clock.
var SystemClock Clock = systemClock{}

// Pipeline is the work the scheduler dispatches.
type Pipeline interface {
	Run(ctx context.Context, job notification.Job) (app.Outcome, error)
	SendReminder(ctx context.Context, r settings.Reminder) error
	CheckGoal(ctx context.Context, now time.Time) error
}

// Store is the part of the settings store the scheduler needs.
type Store interface {
	settings.FlagStore
	Snapshot() *settings.Document
	MarkReminderSent(ctx context.Context, id, date string) error
}

// Slot is one notification type's daily fire time.
type Slot struct {
	Type   notification.Type
	FireAt settings.TimeOfDay
	// DayOffset is added to the scheduling day to get the job's target date.
	DayOffset int
}

// DefaultSlots builds the morning, noon and night slots.
func DefaultSlots(morning, noon, night settings.TimeOfDay, nightOffset int) []Slot {
	return []Slot{
		{Type: notification.TypeMorning, FireAt: morning},
		{Type: notification.TypeNoon, FireAt: noon},
		{Type: notification.TypeNight, FireAt: night, DayOffset: nightOffset},
	}
}

type State string

const (
	StateIdle    State = "idle"
	StateDue     State = "due"
	StateSending State = "sending"
	StateSent    State = "sent"
	StateFailed  State = "failed"
	StateSkipped State = "skipped"
)

type Options struct {
	Slots         []Slot
	FireWindow    time.Duration
	MaxAttempts   int // per (type, date) within the fire window
	JobTimeout    time.Duration
	TickSpec      string
	GoalCheckSpec string
}

type jobKey struct {
	kind string // notification type, or "reminder:<id>"
	date string
}

type result struct {
	key      jobKey
	job      notification.Job
	reminder *settings.Reminder
	outcome  app.Outcome
	err      error
}

type entry struct {
	state    State
	attempts int
}

type NotificationScheduler struct {
	cronEngine *cron.Cron
	pipeline   Pipeline
	store      Store
	clock      Clock
	loc        *time.Location
	opts       Options
	logger     *logrus.Entry

	mu       sync.Mutex
	states   map[jobKey]*entry
	results  chan result
	inflight sync.WaitGroup
	quit     chan struct{}
	done     chan struct{}
}

func NewNotificationScheduler(pipeline Pipeline, store Store, clock Clock, loc *time.Location, opts Options, logger *logrus.Entry) *NotificationScheduler {
	if clock == nil {
		clock = SystemClock
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = 5 * time.Minute
	}
	return &NotificationScheduler{
		cronEngine: cron.New(cron.WithLocation(loc), cron.WithLogger(cron.PrintfLogger(logger))),
		pipeline:   pipeline,
		store:      store,
		clock:      clock,
		loc:        loc,
		opts:       opts,
		logger:     logger,
		states:     make(map[jobKey]*entry),
		results:    make(chan result),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start registers the cron jobs, starts the result consumer and evaluates once immediately.
func (s *NotificationScheduler) Start() error {
	s.logger.Info("Starting notification scheduler...")

	if _, err := s.cronEngine.AddFunc(s.opts.TickSpec, func() { s.Tick(context.Background()) }); err != nil {
		return fmt.Errorf("could not add tick cron job %q: %w", s.opts.TickSpec, err)
	}
	if s.opts.GoalCheckSpec != "" {
		_, err := s.cronEngine.AddFunc(s.opts.GoalCheckSpec, func() {
			ctx, cancel := context.WithTimeout(context.Background(), s.opts.JobTimeout)
			defer cancel()
			if err := s.pipeline.CheckGoal(ctx, s.clock.Now()); err != nil {
				s.logger.WithError(err).Error("Error during steps goal check")
			}
		})
		if err != nil {
			return fmt.Errorf("could not add goal check cron job %q: %w", s.opts.GoalCheckSpec, err)
		}
	}

	go s.consume()
	s.cronEngine.Start()
	s.Tick(context.Background())

	s.logger.WithFields(logrus.Fields{
		"slots":       len(s.opts.Slots),
		"fire_window": s.opts.FireWindow,
		"tick":        s.opts.TickSpec,
	}).Info("Notification scheduler started with jobs.")
	return nil
}

// Stop halts the cron engine, waits for in-flight jobs and their bookkeeping, then stops the consumer.
func (s *NotificationScheduler) Stop() {
	s.logger.Info("Stopping notification scheduler...")
	<-s.cronEngine.Stop().Done()
	s.inflight.Wait()
	close(s.quit)
	<-s.done
	s.logger.Info("Notification scheduler gracefully stopped.")
}

// State reports the in-memory state of one (type, date) pair.
func (s *NotificationScheduler) State(t notification.Type, date string) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.states[jobKey{kind: string(t), date: date}]; ok {
		return e.state
	}
	return StateIdle
}

// WaitIdle blocks until every dispatched job has been recorded.
func (s *NotificationScheduler) WaitIdle() {
	s.inflight.Wait()
}

// Tick evaluates every slot and reminder against the current time and dispatches what is due.
func (s *NotificationScheduler) Tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	now := s.clock.Now().In(s.loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	doc := s.store.Snapshot()
	if !doc.NotificationsEnabled {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.forget(today)

	for _, slot := range s.opts.Slots {
		if !s.inWindow(now, slot.FireAt.On(today, s.loc)) {
			continue
		}
		target := today.AddDate(0, 0, slot.DayOffset)
		key := jobKey{kind: string(slot.Type), date: target.Format(health.DateLayout)}
		e := s.eligible(key, s.store.IsSent(key.kind, key.date))
		if e == nil {
			continue
		}
		job := notification.Job{Type: slot.Type, TargetDate: target, Attempt: e.attempts}
		s.dispatch(result{key: key, job: job})
	}

	todayKey := today.Format(health.DateLayout)
	for i := range doc.Reminders {
		r := doc.Reminders[i]
		if !r.Enabled {
			continue
		}
		at, err := settings.ParseTimeOfDay(r.Time)
		if err != nil || !s.inWindow(now, at.On(today, s.loc)) {
			continue
		}
		key := jobKey{kind: "reminder:" + r.ID, date: todayKey}
		if e := s.eligible(key, doc.ReminderLog[r.ID] == todayKey); e != nil {
			s.dispatch(result{key: key, reminder: &r})
		}
	}
}

func (s *NotificationScheduler) inWindow(now, fire time.Time) bool {
	return !now.Before(fire) && now.Before(fire.Add(s.opts.FireWindow))
}

// eligible moves key to Due and returns its entry, or returns nil when it must not fire. Callers hold mu.
func (s *NotificationScheduler) eligible(key jobKey, sent bool) *entry {
	e, ok := s.states[key]
	if !ok {
		e = &entry{state: StateIdle}
		s.states[key] = e
	}
	if sent {
		e.state = StateSent
		return nil
	}
	switch e.state {
	case StateSending, StateSent, StateSkipped:
		return nil
	case StateFailed:
		if e.attempts >= s.opts.MaxAttempts {
			return nil
		}
	}
	e.state = StateDue
	e.attempts++
	return e
}

// dispatch runs one due job off the scheduling path. Callers hold mu.
func (s *NotificationScheduler) dispatch(r result) {
	s.states[r.key].state = StateSending
	s.inflight.Add(1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.JobTimeout)
		defer cancel()
		if r.reminder != nil {
			r.err = s.pipeline.SendReminder(ctx, *r.reminder)
			if r.err == nil {
				r.outcome = app.OutcomeDelivered
			}
		} else {
			r.outcome, r.err = s.pipeline.Run(ctx, r.job)
		}
		s.results <- r
	}()
}

func (s *NotificationScheduler) consume() {
	defer close(s.done)
	for {
		select {
		case r := <-s.results:
			s.complete(r)
		case <-s.quit:
			return
		}
	}
}

// complete applies the result of one job. It is the only place flags are set by the scheduler.
func (s *NotificationScheduler) complete(r result) {
	defer s.inflight.Done()
	logCtx := s.logger.WithFields(logrus.Fields{"job": r.key.kind, "date": r.key.date})

	next := StateSent
	switch {
	case r.err != nil:
		next = StateFailed
		logCtx.WithError(r.err).WithField("error_kind", app.ErrorKind(r.err)).Error("Scheduled job failed; day left unflagged")
	case r.outcome == app.OutcomeSkipped:
		next = StateSkipped
	default:
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.JobTimeout)
		var err error
		if r.reminder != nil {
			err = s.store.MarkReminderSent(ctx, r.reminder.ID, r.key.date)
		} else {
			err = s.store.MarkSent(ctx, r.key.kind, r.key.date)
		}
		cancel()
		if err != nil {
			// The in-memory Sent state still prevents a resend from this process.
			logCtx.WithError(err).Error("Delivered but failed to persist the sent flag")
		}
	}

	s.mu.Lock()
	if e, ok := s.states[r.key]; ok {
		e.state = next
	}
	s.mu.Unlock()
}

// forget drops in-memory state for dates well before today. Callers hold mu.
func (s *NotificationScheduler) forget(today time.Time) {
	cutoff := today.AddDate(0, 0, -2).Format(health.DateLayout)
	for k, e := range s.states {
		if k.date < cutoff && e.state != StateSending {
			delete(s.states, k)
		}
	}
}
