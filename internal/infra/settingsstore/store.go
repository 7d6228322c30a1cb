// internal/infra/settingsstore/store.go
package settingsstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"health_notification_bot/internal/domain/settings"
)

// Options are applied on top of the persisted document at load time.
type Options struct {
	StepsGoalOverride      int    // negative means unset
	TargetWakeTimeOverride string // empty means unset
	Now                    func() time.Time
}

// Store is the durable settings document. Mutations are serialized and each
// one is persisted before the in-memory copy is swapped.
type Store struct {
	backend Backend
	opts    Options
	logger  *logrus.Entry

	writeMu sync.Mutex // single writer

	mu          sync.RWMutex // guards doc and lastWritten
	doc         *settings.Document
	lastWritten []byte
}

var _ settings.Store = (*Store)(nil)

// Open loads the document from backend. A corrupt document is preserved and
// replaced by the default; only backend I/O failures are returned.
func Open(ctx context.Context, backend Backend, opts Options, logger *logrus.Entry) (*Store, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Store{backend: backend, opts: opts, logger: logger}
	if _, err := s.Load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Load (re)reads the persisted document and returns a copy of it.
func (s *Store) Load(ctx context.Context) (*settings.Document, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	data, err := s.backend.Read(ctx)
	if err != nil {
		return nil, err
	}

	doc := settings.Default()
	recovered := false
	if data != nil {
		parsed, dropped, err := decode(data)
		switch {
		case err != nil:
			s.recoverCorrupt(ctx, data, err)
			recovered = true
		case len(dropped) > 0:
			s.recoverReminders(ctx, data, dropped)
			doc, recovered = parsed, true
		default:
			doc = parsed
		}
	}

	s.mu.Lock()
	s.doc = doc
	s.lastWritten = data
	s.mu.Unlock()

	if err := s.applyOverrides(ctx, recovered); err != nil {
		return nil, err
	}
	return s.Snapshot(), nil
}

func (s *Store) recoverCorrupt(ctx context.Context, data []byte, cause error) {
	logCtx := s.logger.WithError(cause)
	location, err := s.backend.Quarantine(ctx, data, s.opts.Now())
	if err != nil {
		logCtx.WithField("quarantine_error", err.Error()).Error("Settings document is corrupt and could not be preserved, using defaults")
		return
	}
	logCtx.WithField("recovery", location).Error("Settings document is corrupt, preserved it and using defaults")
}

// recoverReminders preserves a document that held invalid reminders; the rest of it stays live.
func (s *Store) recoverReminders(ctx context.Context, data []byte, dropped []settings.Reminder) {
	ids := make([]string, 0, len(dropped))
	for _, r := range dropped {
		ids = append(ids, fmt.Sprintf("%q@%q", r.ID, r.Time))
	}
	logCtx := s.logger.WithField("dropped_reminders", strings.Join(ids, ","))
	location, err := s.backend.Quarantine(ctx, data, s.opts.Now())
	if err != nil {
		logCtx.WithError(err).Error("Dropped invalid reminders and could not preserve the original document")
		return
	}
	logCtx.WithField("recovery", location).Warn("Dropped invalid reminders, preserved the original document")
}

// applyOverrides persists env overrides; force writes the document even when unchanged.
func (s *Store) applyOverrides(ctx context.Context, force bool) error {
	return s.mutateLocked(ctx, func(d *settings.Document) (bool, error) {
		changed := force
		if g := s.opts.StepsGoalOverride; g >= 0 && d.StepsGoal != g {
			d.StepsGoal = g
			changed = true
		}
		if w := s.opts.TargetWakeTimeOverride; w != "" && d.TargetWakeTime != w {
			d.TargetWakeTime = w
			changed = true
		}
		return changed, nil
	})
}

// decode parses and validates a document. Invalid reminders are removed and returned
// rather than failing the whole document.
func decode(data []byte) (*settings.Document, []settings.Reminder, error) {
	doc := settings.Default()
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", settings.ErrCorruptState, err)
	}
	if doc.Reminders == nil {
		doc.Reminders = []settings.Reminder{}
	}
	if doc.DailyFlags == nil {
		doc.DailyFlags = map[string]map[string]bool{}
	}
	if doc.ReminderLog == nil {
		doc.ReminderLog = map[string]string{}
	}
	dropped := doc.DropInvalidReminders()
	if err := doc.Validate(); err != nil {
		return nil, nil, err
	}
	return doc, dropped, nil
}

func encode(doc *settings.Document) ([]byte, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding settings: %w", err)
	}
	return append(data, '\n'), nil
}

// mutate applies fn to a copy of the document and persists it when fn reports a change.
func (s *Store) mutate(ctx context.Context, fn func(d *settings.Document) (bool, error)) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.mutateLocked(ctx, fn)
}

func (s *Store) mutateLocked(ctx context.Context, fn func(d *settings.Document) (bool, error)) error {
	s.mu.RLock()
	next := s.doc.Clone()
	s.mu.RUnlock()

	changed, err := fn(next)
	if err != nil || !changed {
		return err
	}
	next.UpdatedAt = s.opts.Now().UTC()

	data, err := encode(next)
	if err != nil {
		return err
	}
	if err := s.backend.Write(ctx, data); err != nil {
		return fmt.Errorf("persisting settings: %w", err)
	}

	s.mu.Lock()
	s.doc = next
	s.lastWritten = data
	s.mu.Unlock()
	return nil
}

// Snapshot returns a deep copy of the current document.
func (s *Store) Snapshot() *settings.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.Clone()
}

func (s *Store) IsSent(kind, date string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.IsSent(kind, date)
}

// MarkSent sets the (kind, date) flag. Calling it again is a no-op.
func (s *Store) MarkSent(ctx context.Context, kind, date string) error {
	return s.mutate(ctx, func(d *settings.Document) (bool, error) {
		if !d.MarkSent(kind, date) {
			return false, nil
		}
		d.PruneFlags(s.opts.Now(), settings.FlagRetentionDays)
		return true, nil
	})
}

func (s *Store) StepsGoal() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.StepsGoal
}

func (s *Store) SetStepsGoal(ctx context.Context, goal int) error {
	if goal <= 0 {
		return fmt.Errorf("%w: %d", settings.ErrInvalidGoal, goal)
	}
	return s.mutate(ctx, func(d *settings.Document) (bool, error) {
		if d.StepsGoal == goal {
			return false, nil
		}
		d.StepsGoal = goal
		return true, nil
	})
}

func (s *Store) TargetWakeTime() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.TargetWakeTime
}

func (s *Store) SetTargetWakeTime(ctx context.Context, hhmm string) error {
	t, err := settings.ParseTimeOfDay(hhmm)
	if err != nil {
		return err
	}
	return s.mutate(ctx, func(d *settings.Document) (bool, error) {
		if d.TargetWakeTime == t.String() {
			return false, nil
		}
		d.TargetWakeTime = t.String()
		return true, nil
	})
}

func (s *Store) Reminders() []settings.Reminder {
	return s.Snapshot().Reminders
}

// AddReminder appends a reminder with a fresh identifier.
func (s *Store) AddReminder(ctx context.Context, hhmm, message string) (settings.Reminder, error) {
	t, err := settings.ParseTimeOfDay(hhmm)
	if err != nil {
		return settings.Reminder{}, err
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return settings.Reminder{}, fmt.Errorf("reminder message must not be empty")
	}
	r := settings.Reminder{ID: uuid.NewString(), Time: t.String(), Message: message, Enabled: true}
	err = s.mutate(ctx, func(d *settings.Document) (bool, error) {
		d.Reminders = append(d.Reminders, r)
		return true, nil
	})
	if err != nil {
		return settings.Reminder{}, err
	}
	return r, nil
}

// RemoveReminder deletes by full id or by a unique id prefix.
func (s *Store) RemoveReminder(ctx context.Context, id string) error {
	return s.mutate(ctx, func(d *settings.Document) (bool, error) {
		idx := d.FindReminder(id)
		if idx < 0 {
			idx = uniquePrefix(d.Reminders, id)
		}
		if idx < 0 {
			return false, fmt.Errorf("%w: %s", settings.ErrNotFound, id)
		}
		delete(d.ReminderLog, d.Reminders[idx].ID)
		d.Reminders = append(d.Reminders[:idx], d.Reminders[idx+1:]...)
		return true, nil
	})
}

func uniquePrefix(reminders []settings.Reminder, prefix string) int {
	found := -1
	if len(prefix) < 4 {
		return found
	}
	for i, r := range reminders {
		if strings.HasPrefix(r.ID, prefix) {
			if found >= 0 {
				return -1
			}
			found = i
		}
	}
	return found
}

func (s *Store) MarkReminderSent(ctx context.Context, id, date string) error {
	return s.mutate(ctx, func(d *settings.Document) (bool, error) {
		if d.FindReminder(id) < 0 {
			return false, fmt.Errorf("%w: %s", settings.ErrNotFound, id)
		}
		if d.ReminderLog[id] == date {
			return false, nil
		}
		d.ReminderLog[id] = date
		return true, nil
	})
}

func (s *Store) SetGoalNotification(ctx context.Context, enabled bool) error {
	return s.mutate(ctx, func(d *settings.Document) (bool, error) {
		if d.GoalNotification.Enabled == enabled {
			return false, nil
		}
		d.GoalNotification.Enabled = enabled
		return true, nil
	})
}

func (s *Store) MarkGoalAchieved(ctx context.Context, date string) error {
	return s.mutate(ctx, func(d *settings.Document) (bool, error) {
		if d.GoalNotification.AchievedOn == date {
			return false, nil
		}
		d.GoalNotification.AchievedOn = date
		return true, nil
	})
}
