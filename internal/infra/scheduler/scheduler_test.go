package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"health_notification_bot/internal/app"
	"health_notification_bot/internal/domain/health"
	"health_notification_bot/internal/domain/notification"
	"health_notification_bot/internal/domain/settings"
	"health_notification_bot/internal/infra/logger"
	"health_notification_bot/internal/infra/settingsstore"
)

var tokyo, _ = time.LoadLocation("Asia/Tokyo")

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type fakePipeline struct {
	mu        sync.Mutex
	jobs      []notification.Job
	reminders []string
	err       error
	outcome   app.Outcome
}

func (p *fakePipeline) Run(_ context.Context, job notification.Job) (app.Outcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.jobs = append(p.jobs, job)
	if p.err != nil {
		return "", p.err
	}
	if p.outcome != "" {
		return p.outcome, nil
	}
	return app.OutcomeDelivered, nil
}

func (p *fakePipeline) SendReminder(_ context.Context, r settings.Reminder) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reminders = append(p.reminders, r.Message)
	return p.err
}

func (p *fakePipeline) CheckGoal(context.Context, time.Time) error { return nil }

func (p *fakePipeline) runs() []notification.Job {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]notification.Job(nil), p.jobs...)
}

func at(day string, hh, mm int) time.Time {
	d, _ := time.ParseInLocation(health.DateLayout, day, tokyo)
	return d.Add(time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute)
}

func openStore(t *testing.T, path string, clock Clock) *settingsstore.Store {
	t.Helper()
	s, err := settingsstore.Open(context.Background(), settingsstore.NewFileBackend(path),
		settingsstore.Options{StepsGoalOverride: -1, Now: clock.Now}, logger.Discard())
	require.NoError(t, err)
	return s
}

func newScheduler(t *testing.T, p Pipeline, store Store, clock Clock, nightOffset int) *NotificationScheduler {
	t.Helper()
	slots := DefaultSlots(
		settings.TimeOfDay{Hour: 7, Minute: 30},
		settings.TimeOfDay{Hour: 13},
		settings.TimeOfDay{Hour: 21, Minute: 30},
		nightOffset,
	)
	s := NewNotificationScheduler(p, store, clock, tokyo, Options{
		Slots:       slots,
		FireWindow:  30 * time.Minute,
		MaxAttempts: 2,
		TickSpec:    "* * * * *",
	}, logger.Discard())
	go s.consume()
	t.Cleanup(s.Stop)
	return s
}

func TestFiresOnceWithinWindow(t *testing.T) {
	clock := &fakeClock{now: at("2026-10-14", 7, 29)}
	store := openStore(t, filepath.Join(t.TempDir(), "settings.json"), clock)
	p := &fakePipeline{}
	s := newScheduler(t, p, store, clock, 0)
	ctx := context.Background()

	s.Tick(ctx)
	s.WaitIdle()
	assert.Empty(t, p.runs(), "not yet due")

	for _, m := range []int{30, 31, 45} {
		clock.Set(at("2026-10-14", 7, m))
		s.Tick(ctx)
		s.WaitIdle()
	}

	runs := p.runs()
	require.Len(t, runs, 1)
	assert.Equal(t, notification.TypeMorning, runs[0].Type)
	assert.Equal(t, "2026-10-14", runs[0].DateKey())
	assert.True(t, store.IsSent("morning", "2026-10-14"))
	assert.Equal(t, StateSent, s.State(notification.TypeMorning, "2026-10-14"))
}

func TestAtMostOnceAcrossRestarts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	clock := &fakeClock{now: at("2026-10-14", 13, 5)}
	ctx := context.Background()

	first := &fakePipeline{}
	s1 := newScheduler(t, first, openStore(t, path, clock), clock, 0)
	s1.Tick(ctx)
	s1.WaitIdle()
	require.Len(t, first.runs(), 1)

	// A new process over the same file sees the flag.
	second := &fakePipeline{}
	s2 := newScheduler(t, second, openStore(t, path, clock), clock, 0)
	clock.Set(at("2026-10-14", 13, 10))
	s2.Tick(ctx)
	s2.WaitIdle()
	assert.Empty(t, second.runs())
	assert.Equal(t, StateSent, s2.State(notification.TypeNoon, "2026-10-14"))
}

func TestLateStartDoesNotReplay(t *testing.T) {
	clock := &fakeClock{now: at("2026-10-14", 18, 0)}
	store := openStore(t, filepath.Join(t.TempDir(), "settings.json"), clock)
	p := &fakePipeline{}
	s := newScheduler(t, p, store, clock, 0)

	s.Tick(context.Background())
	s.WaitIdle()
	assert.Empty(t, p.runs(), "morning and noon windows have passed")
	assert.False(t, store.IsSent("morning", "2026-10-14"))
	assert.False(t, store.IsSent("morning", "2026-10-13"))
}

func TestFailureLeavesDayUnflagged(t *testing.T) {
	clock := &fakeClock{now: at("2026-10-14", 21, 30)}
	store := openStore(t, filepath.Join(t.TempDir(), "settings.json"), clock)
	p := &fakePipeline{err: errors.New("provider down")}
	s := newScheduler(t, p, store, clock, 0)
	ctx := context.Background()

	for m := 30; m < 40; m++ {
		clock.Set(at("2026-10-14", 21, m))
		s.Tick(ctx)
		s.WaitIdle()
	}

	runs := p.runs()
	require.Len(t, runs, 2, "bounded by MaxAttempts")
	assert.Equal(t, 1, runs[0].Attempt)
	assert.Equal(t, 2, runs[1].Attempt)
	assert.False(t, store.IsSent("night", "2026-10-14"))
	assert.Equal(t, StateFailed, s.State(notification.TypeNight, "2026-10-14"))

	// The next day proceeds independently.
	p.mu.Lock()
	p.err = nil
	p.mu.Unlock()
	clock.Set(at("2026-10-15", 21, 31))
	s.Tick(ctx)
	s.WaitIdle()
	assert.True(t, store.IsSent("night", "2026-10-15"))
	assert.False(t, store.IsSent("night", "2026-10-14"))
}

func TestSkippedIsNotFlagged(t *testing.T) {
	clock := &fakeClock{now: at("2026-10-14", 13, 0)}
	store := openStore(t, filepath.Join(t.TempDir(), "settings.json"), clock)
	p := &fakePipeline{outcome: app.OutcomeSkipped}
	s := newScheduler(t, p, store, clock, 0)

	for m := 0; m < 3; m++ {
		clock.Set(at("2026-10-14", 13, m))
		s.Tick(context.Background())
		s.WaitIdle()
	}
	assert.Len(t, p.runs(), 1)
	assert.False(t, store.IsSent("noon", "2026-10-14"))
	assert.Equal(t, StateSkipped, s.State(notification.TypeNoon, "2026-10-14"))
}

func TestNightDayOffset(t *testing.T) {
	clock := &fakeClock{now: at("2026-10-14", 21, 30)}
	store := openStore(t, filepath.Join(t.TempDir(), "settings.json"), clock)
	p := &fakePipeline{}
	s := newScheduler(t, p, store, clock, -1)

	s.Tick(context.Background())
	s.WaitIdle()
	runs := p.runs()
	require.Len(t, runs, 1)
	assert.Equal(t, "2026-10-13", runs[0].DateKey())
	assert.True(t, store.IsSent("night", "2026-10-13"))
}

func TestRemindersFireOncePerDay(t *testing.T) {
	clock := &fakeClock{now: at("2026-10-14", 9, 0)}
	store := openStore(t, filepath.Join(t.TempDir(), "settings.json"), clock)
	ctx := context.Background()
	r, err := store.AddReminder(ctx, "10:00", "水を飲む")
	require.NoError(t, err)

	p := &fakePipeline{}
	s := newScheduler(t, p, store, clock, 0)
	for _, m := range []int{0, 1, 2} {
		clock.Set(at("2026-10-14", 10, m))
		s.Tick(ctx)
		s.WaitIdle()
	}
	assert.Equal(t, []string{"水を飲む"}, p.reminders)
	assert.Equal(t, "2026-10-14", store.Snapshot().ReminderLog[r.ID])
}

func TestDisabledNotificationsDoNothing(t *testing.T) {
	clock := &fakeClock{now: at("2026-10-14", 7, 30)}
	p := &fakePipeline{}
	s := newScheduler(t, p, disabledStore{}, clock, 0)

	s.Tick(context.Background())
	s.WaitIdle()
	assert.Empty(t, p.runs())
}

type disabledStore struct{}

func (disabledStore) IsSent(string, string) bool                             { return false }
func (disabledStore) MarkSent(context.Context, string, string) error         { return nil }
func (disabledStore) MarkReminderSent(context.Context, string, string) error { return nil }
func (disabledStore) Snapshot() *settings.Document {
	d := settings.Default()
	d.NotificationsEnabled = false
	return d
}
