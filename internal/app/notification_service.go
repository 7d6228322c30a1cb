// internal/app/notification_service.go
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"health_notification_bot/internal/domain/health"
	"health_notification_bot/internal/domain/notification"
	"health_notification_bot/internal/domain/settings"
	"health_notification_bot/internal/infra/retry"
)

// Outcome is the result of a successful pipeline run.
type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeSkipped   Outcome = "skipped" // nothing worth sending; not a delivery
)

var typeLabels = map[notification.Type]string{
	notification.TypeMorning: "朝",
	notification.TypeNoon:    "昼",
	notification.TypeNight:   "夜",
}

// NotificationService fetches health data, composes a report and delivers it.
type NotificationService struct {
	health health.Client
	sender notification.Sender
	store  settings.Store
	loc    *time.Location
	now    func() time.Time
	logger *logrus.Entry
}

func NewNotificationService(hc health.Client, sender notification.Sender, store settings.Store, loc *time.Location, now func() time.Time, logger *logrus.Entry) *NotificationService {
	if now == nil {
		now = time.Now
	}
	return &NotificationService{health: hc, sender: sender, store: store, loc: loc, now: now, logger: logger}
}

// Run executes one job: fetch, compose, send. A failure is reported through the
// sender as a best-effort error notification and returned.
func (s *NotificationService) Run(ctx context.Context, job notification.Job) (Outcome, error) {
	logCtx := s.logger.WithFields(logrus.Fields{
		"type":        job.Type,
		"target_date": job.DateKey(),
		"attempt":     job.Attempt,
		"manual":      job.Manual,
	})

	summary, send, err := s.compose(ctx, job)
	if err != nil {
		logCtx.WithError(err).WithField("error_kind", ErrorKind(err)).Error("Failed to prepare notification")
		s.reportFailure(ctx, job, err, logCtx)
		return "", err
	}
	if !send {
		logCtx.Info("Nothing to send for this job")
		return OutcomeSkipped, nil
	}

	if err := s.sender.SendStructured(ctx, summary); err != nil {
		logCtx.WithError(err).WithFields(logrus.Fields{
			"error_kind": ErrorKind(err),
			"retryable":  notification.Retryable(err),
			"partial":    notification.Partial(err),
		}).Error("Failed to deliver notification")
		s.reportFailure(ctx, job, err, logCtx)
		return "", err
	}
	logCtx.Info("Notification delivered")
	return OutcomeDelivered, nil
}

// RunManual runs a job outside the scheduler. The daily flag is not consulted
// but is set after a delivery so the scheduler does not repeat it.
func (s *NotificationService) RunManual(ctx context.Context, job notification.Job) (Outcome, error) {
	job.Manual = true
	outcome, err := s.Run(ctx, job)
	if err != nil || outcome != OutcomeDelivered {
		return outcome, err
	}
	if err := s.store.MarkSent(ctx, string(job.Type), job.DateKey()); err != nil {
		s.logger.WithError(err).WithField("job", job.String()).Error("Delivered but failed to record the daily flag")
		return outcome, fmt.Errorf("recording daily flag: %w", err)
	}
	return outcome, nil
}

// Compose builds the report for job without sending it.
func (s *NotificationService) Compose(ctx context.Context, job notification.Job) (notification.Summary, bool, error) {
	return s.compose(ctx, job)
}

func (s *NotificationService) compose(ctx context.Context, job notification.Job) (notification.Summary, bool, error) {
	day := job.TargetDate
	switch job.Type {
	case notification.TypeMorning:
		rec, err := s.fetchOptional(ctx, day)
		if err != nil {
			return notification.Summary{}, false, err
		}
		if rec == nil {
			// Sleep may not have synced yet; fall back to the previous day.
			if rec, err = s.fetchOptional(ctx, day.AddDate(0, 0, -1)); err != nil {
				return notification.Summary{}, false, err
			}
		}
		return MorningReport(day, rec, s.weekBefore(ctx, day)), true, nil

	case notification.TypeNoon:
		rec, err := s.fetchOptional(ctx, day)
		if err != nil || rec == nil {
			return notification.Summary{}, false, err
		}
		summary, behind := NoonReport(rec, s.store.StepsGoal(), s.paceHour(day))
		return summary, behind || (job.Manual && rec.Steps.Valid), nil

	case notification.TypeNight:
		rec, err := s.fetchOptional(ctx, day)
		if err != nil {
			return notification.Summary{}, false, err
		}
		wake, err := settings.ParseTimeOfDay(s.store.TargetWakeTime())
		if err != nil {
			wake, _ = settings.ParseTimeOfDay(settings.DefaultTargetWakeTime)
		}
		return NightReport(rec, s.store.StepsGoal(), wake), true, nil
	}
	return notification.Summary{}, false, fmt.Errorf("unknown notification type %q", job.Type)
}

// fetchOptional treats NotFound as an absent record.
func (s *NotificationService) fetchOptional(ctx context.Context, day time.Time) (*health.Record, error) {
	rec, err := s.health.FetchDay(ctx, day)
	if errors.Is(err, health.ErrNotFound) {
		return nil, nil
	}
	return rec, err
}

// weekBefore is best effort: a failure only drops the weekly section.
func (s *NotificationService) weekBefore(ctx context.Context, day time.Time) *health.Summary {
	records, err := s.health.FetchRange(ctx, day.AddDate(0, 0, -7), day.AddDate(0, 0, -1))
	if err != nil {
		s.logger.WithError(err).Warn("Weekly averages unavailable")
		return nil
	}
	summary := health.Summarize(records)
	return &summary
}

// paceHour is the current local hour for today, or the end of the active day for past dates.
func (s *NotificationService) paceHour(day time.Time) int {
	now := s.now().In(s.loc)
	if now.Format(health.DateLayout) == day.Format(health.DateLayout) {
		return now.Hour()
	}
	return activeDayStartHour + activeDayHours
}

func (s *NotificationService) reportFailure(ctx context.Context, job notification.Job, cause error, logCtx *logrus.Entry) {
	body := fmt.Sprintf(":x: **%s通知エラー** (%s)\n```%s: %s```", typeLabels[job.Type], job.DateKey(), ErrorKind(cause), retry.Truncate(cause.Error(), 1500))
	if err := s.sender.SendText(ctx, body); err != nil {
		logCtx.WithError(err).Error("Failed to send error notification")
	}
}

// SendReminder delivers a user reminder.
func (s *NotificationService) SendReminder(ctx context.Context, r settings.Reminder) error {
	return s.sender.SendText(ctx, ReminderMessage(r))
}

// CheckGoal sends the goal-achieved message once per day when enabled.
func (s *NotificationService) CheckGoal(ctx context.Context, now time.Time) error {
	doc := s.store.Snapshot()
	today := now.In(s.loc)
	key := today.Format(health.DateLayout)
	if !doc.GoalNotification.Enabled || doc.GoalNotification.AchievedOn == key || doc.StepsGoal <= 0 {
		return nil
	}

	day := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, s.loc)
	rec, err := s.fetchOptional(ctx, day)
	if err != nil {
		return fmt.Errorf("checking steps goal: %w", err)
	}
	if rec == nil || !rec.Steps.Valid {
		return nil
	}
	if ratio, ok := StepsProgress(rec.Steps.V, doc.StepsGoal); !ok || ratio < 1 {
		return nil
	}
	if err := s.sender.SendText(ctx, GoalAchievedMessage(rec.Steps.V, doc.StepsGoal)); err != nil {
		return fmt.Errorf("sending goal notification: %w", err)
	}
	return s.store.MarkGoalAchieved(ctx, key)
}

// SendTest exercises the delivery channel with a canned payload.
func (s *NotificationService) SendTest(ctx context.Context) error {
	return s.sender.SendText(ctx, ":white_check_mark: **テスト送信**\n通知の送信設定は正常です。")
}

// ErrorKind names the failure class for logs and error notifications.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, health.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, health.ErrNotFound):
		return "not_found"
	case errors.Is(err, health.ErrRateLimited), errors.Is(err, notification.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, health.ErrUnavailable), errors.Is(err, notification.ErrUnavailable):
		return "unavailable"
	case errors.Is(err, notification.ErrRejected):
		return "rejected"
	case errors.Is(err, health.ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, settings.ErrCorruptState):
		return "corrupt_state"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "unknown"
	}
}
