// internal/domain/settings/repository.go
package settings

import "context"

// FlagStore is the idempotency primitive consumed by the scheduler and pipeline.
type FlagStore interface {
	IsSent(kind, date string) bool
	MarkSent(ctx context.Context, kind, date string) error
}

// Store is the full settings API. Every mutation is persisted before it returns.
type Store interface {
	FlagStore

	Snapshot() *Document
	StepsGoal() int
	SetStepsGoal(ctx context.Context, goal int) error
	TargetWakeTime() string
	SetTargetWakeTime(ctx context.Context, hhmm string) error

	Reminders() []Reminder
	AddReminder(ctx context.Context, hhmm, message string) (Reminder, error)
	RemoveReminder(ctx context.Context, id string) error
	MarkReminderSent(ctx context.Context, id, date string) error

	SetGoalNotification(ctx context.Context, enabled bool) error
	MarkGoalAchieved(ctx context.Context, date string) error
}
