// internal/app/command_service.go
package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"health_notification_bot/internal/domain/health"
	"health_notification_bot/internal/domain/notification"
	"health_notification_bot/internal/domain/settings"
)

// ErrUsage marks bad command input; its message is safe to show to the user.
var ErrUsage = errors.New("invalid command usage")

func usage(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrUsage, fmt.Sprintf(format, args...))
}

// CommandService answers on-demand chat commands.
type CommandService struct {
	health   health.Client
	store    settings.Store
	notifier *NotificationService
	resolver DateResolver
	now      func() time.Time
}

func NewCommandService(hc health.Client, store settings.Store, notifier *NotificationService, resolver DateResolver, now func() time.Time) *CommandService {
	if now == nil {
		now = time.Now
	}
	return &CommandService{health: hc, store: store, notifier: notifier, resolver: resolver, now: now}
}

// ParseDate accepts YYYY-MM-DD, today/yesterday, or an empty string for today.
func (s *CommandService) ParseDate(arg string) (time.Time, error) {
	today := s.resolver.Today(s.now())
	switch strings.ToLower(strings.TrimSpace(arg)) {
	case "", "today", "今日":
		return today, nil
	case "yesterday", "昨日":
		return today.AddDate(0, 0, -1), nil
	}
	d, err := time.ParseInLocation(health.DateLayout, strings.TrimSpace(arg), s.resolver.Location)
	if err != nil {
		return time.Time{}, usage("日付は YYYY-MM-DD、today、yesterday のいずれかで指定してください")
	}
	if d.After(today) {
		return time.Time{}, usage("未来の日付は指定できません")
	}
	return d, nil
}

// Metric renders one metric section (sleep, readiness or activity) for a day.
func (s *CommandService) Metric(ctx context.Context, metric, dateArg string) (string, error) {
	day, err := s.ParseDate(dateArg)
	if err != nil {
		return "", err
	}
	rec, err := s.notifier.fetchOptional(ctx, day)
	if err != nil {
		return "", err
	}
	var sec notification.Section
	switch metric {
	case "sleep":
		sec = SleepSection(rec)
	case "readiness":
		sec = ReadinessSection(rec)
	case "activity":
		sec = ActivitySection(rec, s.store.StepsGoal())
	default:
		return "", usage("unknown metric %q", metric)
	}
	return day.Format(health.DateLayout) + "\n" + sec.Text(), nil
}

// Report composes a morning, noon or night report on demand without touching daily flags.
func (s *CommandService) Report(ctx context.Context, args []string) (string, error) {
	if len(args) == 0 {
		return "", usage("/report morning|noon|night [日付]")
	}
	t, err := notification.ParseType(strings.ToLower(args[0]))
	if err != nil {
		return "", usage("/report morning|noon|night [日付]")
	}
	day := s.resolver.Resolve(t, s.now())
	if len(args) > 1 {
		if day, err = s.ParseDate(args[1]); err != nil {
			return "", err
		}
	}
	summary, _, err := s.notifier.Compose(ctx, notification.Job{Type: t, TargetDate: day, Manual: true})
	if err != nil {
		return "", err
	}
	if len(summary.Sections) == 0 {
		return day.Format(health.DateLayout) + " の活動データがありません", nil
	}
	return summary.Text(), nil
}

// Range renders averages for the last n days ending yesterday.
func (s *CommandService) Range(ctx context.Context, days int, title string) (string, error) {
	end := s.resolver.Today(s.now()).AddDate(0, 0, -1)
	start := end.AddDate(0, 0, -(days - 1))
	records, err := s.health.FetchRange(ctx, start, end)
	if err != nil {
		return "", err
	}
	sec, ok := WeeklySection(title, health.Summarize(records))
	if !ok {
		return fmt.Sprintf("%s〜%s のデータがありません", start.Format(health.DateLayout), end.Format(health.DateLayout)), nil
	}
	return sec.Text(), nil
}

// Goal shows the steps goal, or sets it when arg is given.
func (s *CommandService) Goal(ctx context.Context, arg string) (string, error) {
	if strings.TrimSpace(arg) == "" {
		return fmt.Sprintf(":dart: 現在の歩数目標: %s 歩", FormatSteps(s.store.StepsGoal())), nil
	}
	goal, err := strconv.Atoi(strings.ReplaceAll(strings.TrimSpace(arg), ",", ""))
	if err != nil || goal <= 0 || goal > 100000 {
		return "", usage("歩数目標は 1〜100000 の整数で指定してください")
	}
	if err := s.store.SetStepsGoal(ctx, goal); err != nil {
		return "", err
	}
	return fmt.Sprintf(":white_check_mark: 歩数目標を %s 歩に設定しました", FormatSteps(goal)), nil
}

// Wake shows or sets the target wake time.
func (s *CommandService) Wake(ctx context.Context, arg string) (string, error) {
	if strings.TrimSpace(arg) == "" {
		wake, err := settings.ParseTimeOfDay(s.store.TargetWakeTime())
		if err != nil {
			return "", err
		}
		return fmt.Sprintf(":alarm_clock: 目標起床: %s / 目標就寝: %s", wake, TargetBedtime(wake)), nil
	}
	if err := s.store.SetTargetWakeTime(ctx, strings.TrimSpace(arg)); err != nil {
		if errors.Is(err, settings.ErrInvalidTime) {
			return "", usage("時刻は HH:MM 形式で指定してください")
		}
		return "", err
	}
	wake, _ := settings.ParseTimeOfDay(strings.TrimSpace(arg))
	return fmt.Sprintf(":white_check_mark: 目標起床を %s に設定しました（目標就寝 %s）", wake, TargetBedtime(wake)), nil
}

// Reminder handles "add HH:MM text", "list" and "remove <id>".
func (s *CommandService) Reminder(ctx context.Context, args []string) (string, error) {
	const help = "/reminder add HH:MM メッセージ | /reminder list | /reminder remove <id>"
	if len(args) == 0 {
		return "", usage(help)
	}
	switch strings.ToLower(args[0]) {
	case "add":
		if len(args) < 3 {
			return "", usage(help)
		}
		r, err := s.store.AddReminder(ctx, args[1], strings.Join(args[2:], " "))
		if errors.Is(err, settings.ErrInvalidTime) {
			return "", usage("時刻は HH:MM 形式で指定してください")
		}
		if err != nil {
			return "", err
		}
		return fmt.Sprintf(":white_check_mark: リマインダーを追加しました [%s] %s %s", shortID(r.ID), r.Time, r.Message), nil
	case "list":
		reminders := s.store.Reminders()
		if len(reminders) == 0 {
			return "リマインダーはありません", nil
		}
		lines := make([]string, 0, len(reminders)+1)
		lines = append(lines, ":bell: リマインダー一覧")
		for _, r := range reminders {
			state := ""
			if !r.Enabled {
				state = " (無効)"
			}
			lines = append(lines, fmt.Sprintf("[%s] %s %s%s", shortID(r.ID), r.Time, r.Message, state))
		}
		return strings.Join(lines, "\n"), nil
	case "remove", "delete":
		if len(args) < 2 {
			return "", usage(help)
		}
		if err := s.store.RemoveReminder(ctx, args[1]); err != nil {
			if errors.Is(err, settings.ErrNotFound) {
				return "", usage("ID %s のリマインダーが見つかりません", args[1])
			}
			return "", err
		}
		return ":wastebasket: リマインダーを削除しました", nil
	}
	return "", usage(help)
}

// GoalNotification turns the goal-achieved message on or off.
func (s *CommandService) GoalNotification(ctx context.Context, arg string) (string, error) {
	var enabled bool
	switch strings.ToLower(strings.TrimSpace(arg)) {
	case "on":
		enabled = true
	case "off":
		enabled = false
	default:
		return "", usage("/goal_notification on|off")
	}
	if err := s.store.SetGoalNotification(ctx, enabled); err != nil {
		return "", err
	}
	if enabled {
		return ":white_check_mark: 目標達成通知をオンにしました", nil
	}
	return ":no_bell: 目標達成通知をオフにしました", nil
}

// Settings summarises the current document.
func (s *CommandService) Settings() string {
	doc := s.store.Snapshot()
	goalNotice := "オフ"
	if doc.GoalNotification.Enabled {
		goalNotice = "オン"
	}
	return strings.Join([]string{
		":gear: **現在の設定**",
		"歩数目標: " + FormatSteps(doc.StepsGoal) + " 歩",
		"目標起床: " + doc.TargetWakeTime,
		"目標達成通知: " + goalNotice,
		fmt.Sprintf("リマインダー: %d 件", len(doc.Reminders)),
	}, "\n")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
