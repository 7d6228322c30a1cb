package app

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"health_notification_bot/internal/domain/health"
	"health_notification_bot/internal/domain/notification"
	"health_notification_bot/internal/infra/logger"
	"health_notification_bot/internal/infra/settingsstore"
)

var (
	tokyo, _ = time.LoadLocation("Asia/Tokyo")
	fixedNow = time.Date(2026, 10, 14, 14, 0, 0, 0, tokyo)
)

func date(s string) time.Time {
	d, err := time.ParseInLocation(health.DateLayout, s, tokyo)
	if err != nil {
		panic(err)
	}
	return d
}

type fakeHealth struct {
	mu       sync.Mutex
	days     map[string]health.Record
	err      error
	rangeErr error
	calls    []string
}

func (f *fakeHealth) FetchDay(_ context.Context, day time.Time) (*health.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := day.Format(health.DateLayout)
	f.calls = append(f.calls, key)
	if f.err != nil {
		return nil, f.err
	}
	rec, ok := f.days[key]
	if !ok {
		return nil, health.ErrNotFound
	}
	return &rec, nil
}

func (f *fakeHealth) FetchRange(_ context.Context, start, end time.Time) ([]health.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rangeErr != nil {
		return nil, f.rangeErr
	}
	var out []health.Record
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if rec, ok := f.days[d.Format(health.DateLayout)]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

type fakeSender struct {
	mu        sync.Mutex
	texts     []string
	summaries []notification.Summary
	structErr error
	textErr   error
}

func (f *fakeSender) SendText(_ context.Context, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.textErr != nil {
		return f.textErr
	}
	f.texts = append(f.texts, body)
	return nil
}

func (f *fakeSender) SendStructured(_ context.Context, s notification.Summary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.structErr != nil {
		return f.structErr
	}
	f.summaries = append(f.summaries, s)
	return nil
}

func newStore(t *testing.T) *settingsstore.Store {
	t.Helper()
	s, err := settingsstore.Open(context.Background(),
		settingsstore.NewFileBackend(filepath.Join(t.TempDir(), "settings.json")),
		settingsstore.Options{StepsGoalOverride: -1, Now: func() time.Time { return fixedNow }}, logger.Discard())
	require.NoError(t, err)
	return s
}

func newService(t *testing.T, hc *fakeHealth, sender *fakeSender, now time.Time) (*NotificationService, *settingsstore.Store) {
	t.Helper()
	store := newStore(t)
	return NewNotificationService(hc, sender, store, tokyo, func() time.Time { return now }, logger.Discard()), store
}
