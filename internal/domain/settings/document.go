// internal/domain/settings/document.go
package settings

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultStepsGoal      = 8000
	DefaultTargetWakeTime = "07:00"
	FlagRetentionDays     = 31
)

var (
	ErrCorruptState = errors.New("settings document is corrupt")
	ErrNotFound     = errors.New("reminder not found")
	ErrInvalidTime  = errors.New("time of day must be HH:MM")
	ErrInvalidGoal  = errors.New("steps goal must be a positive integer")
)

var timeOfDayPattern = regexp.MustCompile(`^\d{1,2}:\d{2}$`)

// Document is the durable state root.
type Document struct {
	StepsGoal            int                        `json:"steps_goal"`
	TargetWakeTime       string                     `json:"target_wake_time"`
	NotificationsEnabled bool                       `json:"notifications_enabled"`
	Reminders            []Reminder                 `json:"reminders"`
	GoalNotification     GoalNotification           `json:"goal_notification"`
	DailyFlags           map[string]map[string]bool `json:"daily_flags"`  // date -> type -> sent
	ReminderLog          map[string]string          `json:"reminder_log"` // reminder id -> last sent date
	UpdatedAt            time.Time                  `json:"updated_at"`
}

// Reminder is a user-defined daily message.
type Reminder struct {
	ID      string `json:"id"`
	Time    string `json:"time"`
	Message string `json:"message"`
	Enabled bool   `json:"enabled"`
}

// GoalNotification controls the once-a-day "steps goal reached" message.
type GoalNotification struct {
	Enabled    bool   `json:"enabled"`
	AchievedOn string `json:"achieved_on,omitempty"`
}

// Default returns a fresh document.
func Default() *Document {
	return &Document{
		StepsGoal:            DefaultStepsGoal,
		TargetWakeTime:       DefaultTargetWakeTime,
		NotificationsEnabled: true,
		Reminders:            []Reminder{},
		DailyFlags:           map[string]map[string]bool{},
		ReminderLog:          map[string]string{},
	}
}

// Clone returns a deep copy.
func (d *Document) Clone() *Document {
	c := *d
	c.Reminders = slices.Clone(d.Reminders)
	if c.Reminders == nil {
		c.Reminders = []Reminder{}
	}
	c.DailyFlags = make(map[string]map[string]bool, len(d.DailyFlags))
	for date, flags := range d.DailyFlags {
		inner := make(map[string]bool, len(flags))
		for k, v := range flags {
			inner[k] = v
		}
		c.DailyFlags[date] = inner
	}
	c.ReminderLog = make(map[string]string, len(d.ReminderLog))
	for k, v := range d.ReminderLog {
		c.ReminderLog[k] = v
	}
	return &c
}

// IsSent reports the daily flag for (kind, date).
func (d *Document) IsSent(kind, date string) bool {
	return d.DailyFlags[date][kind]
}

// MarkSent sets the daily flag and reports whether the document changed.
func (d *Document) MarkSent(kind, date string) bool {
	if d.IsSent(kind, date) {
		return false
	}
	if d.DailyFlags == nil {
		d.DailyFlags = map[string]map[string]bool{}
	}
	if d.DailyFlags[date] == nil {
		d.DailyFlags[date] = map[string]bool{}
	}
	d.DailyFlags[date][kind] = true
	return true
}

// PruneFlags drops flags for dates older than keepDays before today.
func (d *Document) PruneFlags(today time.Time, keepDays int) {
	cutoff := today.AddDate(0, 0, -keepDays).Format("2006-01-02")
	for date := range d.DailyFlags {
		if date < cutoff {
			delete(d.DailyFlags, date)
		}
	}
}

// FindReminder returns the index of the reminder with id, or -1.
func (d *Document) FindReminder(id string) int {
	return slices.IndexFunc(d.Reminders, func(r Reminder) bool { return r.ID == id })
}

// DropInvalidReminders removes reminders with a missing or duplicated ID or an
// unparsable time, along with their log entries, and returns what it removed.
func (d *Document) DropInvalidReminders() []Reminder {
	var dropped []Reminder
	kept := d.Reminders[:0:0]
	seen := make(map[string]bool, len(d.Reminders))
	for _, r := range d.Reminders {
		_, err := ParseTimeOfDay(r.Time)
		if r.ID == "" || seen[r.ID] || err != nil {
			dropped = append(dropped, r)
			continue
		}
		seen[r.ID] = true
		kept = append(kept, r)
	}
	for _, r := range dropped {
		if !seen[r.ID] {
			delete(d.ReminderLog, r.ID)
		}
	}
	d.Reminders = kept
	return dropped
}

// Validate checks structural constraints on a loaded document.
func (d *Document) Validate() error {
	if d.StepsGoal < 0 {
		return fmt.Errorf("%w: steps_goal %d", ErrCorruptState, d.StepsGoal)
	}
	if _, err := ParseTimeOfDay(d.TargetWakeTime); err != nil {
		return fmt.Errorf("%w: target_wake_time: %v", ErrCorruptState, err)
	}
	seen := make(map[string]bool, len(d.Reminders))
	for _, r := range d.Reminders {
		if r.ID == "" || seen[r.ID] {
			return fmt.Errorf("%w: reminder id %q missing or duplicated", ErrCorruptState, r.ID)
		}
		seen[r.ID] = true
		if _, err := ParseTimeOfDay(r.Time); err != nil {
			return fmt.Errorf("%w: reminder %s: %v", ErrCorruptState, r.ID, err)
		}
	}
	return nil
}

// TimeOfDay is an hour and minute with no date or zone.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "H:MM" or "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	if !timeOfDayPattern.MatchString(s) {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	hh, mm, _ := strings.Cut(s, ":")
	h, _ := strconv.Atoi(hh)
	m, _ := strconv.Atoi(mm)
	if h > 23 || m > 59 {
		return TimeOfDay{}, fmt.Errorf("%w: %q out of range", ErrInvalidTime, s)
	}
	return TimeOfDay{Hour: h, Minute: m}, nil
}

// On returns the instant of t on the given day in loc.
func (t TimeOfDay) On(day time.Time, loc *time.Location) time.Time {
	y, m, d := day.In(loc).Date()
	return time.Date(y, m, d, t.Hour, t.Minute, 0, 0, loc)
}

// Sub returns the time of day shifted back by d, wrapping around midnight.
func (t TimeOfDay) Sub(d time.Duration) TimeOfDay {
	total := (t.Hour*60 + t.Minute - int(d/time.Minute)) % (24 * 60)
	if total < 0 {
		total += 24 * 60
	}
	return TimeOfDay{Hour: total / 60, Minute: total % 60}
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}
