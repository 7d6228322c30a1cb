// internal/app/target_date.go
package app

import (
	"time"

	"health_notification_bot/internal/domain/notification"
	"health_notification_bot/internal/domain/settings"
)

// DateResolver decides which calendar day a job reports on.
type DateResolver struct {
	Location *time.Location
	// NightCutoff: a night job triggered before this local time reports on the previous day.
	NightCutoff settings.TimeOfDay
}

// Today returns midnight of now's date in the reference zone.
func (r DateResolver) Today(now time.Time) time.Time {
	local := now.In(r.Location)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, r.Location)
}

// Resolve returns the target date for a manually triggered job of type t at now.
func (r DateResolver) Resolve(t notification.Type, now time.Time) time.Time {
	today := r.Today(now)
	if t == notification.TypeNight && now.In(r.Location).Before(r.NightCutoff.On(today, r.Location)) {
		return today.AddDate(0, 0, -1)
	}
	return today
}
