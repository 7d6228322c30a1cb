package app

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"health_notification_bot/internal/domain/health"
	"health_notification_bot/internal/domain/notification"
)

func TestMorningFallsBackToPreviousDay(t *testing.T) {
	hc := &fakeHealth{days: map[string]health.Record{
		"2026-10-13": {Day: date("2026-10-13"), SleepScore: health.Some(88), ReadinessScore: health.Some(90)},
	}}
	sender := &fakeSender{}
	svc, _ := newService(t, hc, sender, fixedNow)

	outcome, err := svc.Run(context.Background(), notification.Job{Type: notification.TypeMorning, TargetDate: date("2026-10-14")})
	require.NoError(t, err)
	assert.Equal(t, OutcomeDelivered, outcome)
	assert.Equal(t, []string{"2026-10-14", "2026-10-13"}, hc.calls)

	require.Len(t, sender.summaries, 1)
	text := sender.summaries[0].Text()
	assert.Contains(t, text, "2026-10-14")
	assert.Contains(t, text, "**スコア: 88**")
	assert.Contains(t, text, "攻める")
}

func TestMorningSurvivesWeeklyFailure(t *testing.T) {
	hc := &fakeHealth{
		days:     map[string]health.Record{"2026-10-14": {SleepScore: health.Some(75)}},
		rangeErr: health.ErrUnavailable,
	}
	sender := &fakeSender{}
	svc, _ := newService(t, hc, sender, fixedNow)

	_, err := svc.Run(context.Background(), notification.Job{Type: notification.TypeMorning, TargetDate: date("2026-10-14")})
	require.NoError(t, err)
	require.Len(t, sender.summaries, 1)
	assert.Len(t, sender.summaries[0].Sections, 3)
}

func TestFetchFailureSendsErrorNotification(t *testing.T) {
	hc := &fakeHealth{err: fmt.Errorf("%w: token rejected", health.ErrUnauthorized)}
	sender := &fakeSender{}
	svc, store := newService(t, hc, sender, fixedNow)

	_, err := svc.Run(context.Background(), notification.Job{Type: notification.TypeMorning, TargetDate: date("2026-10-14")})
	require.ErrorIs(t, err, health.ErrUnauthorized)
	assert.Equal(t, "unauthorized", ErrorKind(err))

	assert.Empty(t, sender.summaries)
	require.Len(t, sender.texts, 1)
	assert.Contains(t, sender.texts[0], "朝通知エラー")
	assert.Contains(t, sender.texts[0], "unauthorized")
	assert.False(t, store.IsSent("morning", "2026-10-14"))
}

func TestDeliveryFailureIsReturned(t *testing.T) {
	hc := &fakeHealth{days: map[string]health.Record{}}
	sender := &fakeSender{structErr: &notification.DeliveryError{Kind: notification.KindTransport, Total: 1, Err: notification.ErrUnavailable}}
	svc, _ := newService(t, hc, sender, fixedNow)

	_, err := svc.Run(context.Background(), notification.Job{Type: notification.TypeNight, TargetDate: date("2026-10-14")})
	require.ErrorIs(t, err, notification.ErrUnavailable)
	require.Len(t, sender.texts, 1)
	assert.Contains(t, sender.texts[0], "夜通知エラー")
}

func TestNoonSkipsWhenOnPace(t *testing.T) {
	hc := &fakeHealth{days: map[string]health.Record{"2026-10-14": {Steps: health.Some(5000)}}}
	sender := &fakeSender{}
	svc, _ := newService(t, hc, sender, fixedNow) // 14:00, default goal 8000

	outcome, err := svc.Run(context.Background(), notification.Job{Type: notification.TypeNoon, TargetDate: date("2026-10-14")})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)
	assert.Empty(t, sender.summaries)
}

func TestNoonSkipsWithoutData(t *testing.T) {
	sender := &fakeSender{}
	svc, _ := newService(t, &fakeHealth{days: map[string]health.Record{}}, sender, fixedNow)

	outcome, err := svc.Run(context.Background(), notification.Job{Type: notification.TypeNoon, TargetDate: date("2026-10-14")})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)
	assert.Empty(t, sender.texts)
}

func TestNoonSentWhenBehind(t *testing.T) {
	hc := &fakeHealth{days: map[string]health.Record{"2026-10-14": {Steps: health.Some(1200)}}}
	sender := &fakeSender{}
	svc, _ := newService(t, hc, sender, fixedNow)

	outcome, err := svc.Run(context.Background(), notification.Job{Type: notification.TypeNoon, TargetDate: date("2026-10-14")})
	require.NoError(t, err)
	assert.Equal(t, OutcomeDelivered, outcome)
	require.Len(t, sender.summaries, 1)
	assert.Contains(t, sender.summaries[0].Text(), "1,200 / 8,000 歩")
}

func TestRunManualMarksSent(t *testing.T) {
	hc := &fakeHealth{days: map[string]health.Record{"2026-10-14": {Steps: health.Some(9000)}}}
	sender := &fakeSender{}
	svc, store := newService(t, hc, sender, fixedNow)

	job := notification.Job{Type: notification.TypeNoon, TargetDate: date("2026-10-14")}
	outcome, err := svc.RunManual(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDelivered, outcome, "manual noon runs send even when on pace")
	assert.True(t, store.IsSent("noon", "2026-10-14"))

	// A flag already set does not block a manual run.
	_, err = svc.RunManual(context.Background(), job)
	require.NoError(t, err)
	assert.Len(t, sender.summaries, 2)
}

func TestNightUsesConfiguredWakeTime(t *testing.T) {
	sender := &fakeSender{}
	svc, store := newService(t, &fakeHealth{days: map[string]health.Record{}}, sender, fixedNow)
	require.NoError(t, store.SetTargetWakeTime(context.Background(), "06:30"))

	_, err := svc.Run(context.Background(), notification.Job{Type: notification.TypeNight, TargetDate: date("2026-10-14")})
	require.NoError(t, err)
	require.Len(t, sender.summaries, 1)
	text := sender.summaries[0].Text()
	assert.Contains(t, text, "22:30")
	assert.Contains(t, text, "21:00")
}

func TestCheckGoalSendsOncePerDay(t *testing.T) {
	hc := &fakeHealth{days: map[string]health.Record{"2026-10-14": {Steps: health.Some(8500)}}}
	sender := &fakeSender{}
	svc, store := newService(t, hc, sender, fixedNow)
	ctx := context.Background()

	require.NoError(t, svc.CheckGoal(ctx, fixedNow))
	assert.Empty(t, sender.texts, "disabled by default")

	require.NoError(t, store.SetGoalNotification(ctx, true))
	require.NoError(t, svc.CheckGoal(ctx, fixedNow))
	require.NoError(t, svc.CheckGoal(ctx, fixedNow.Add(time.Hour)))
	require.Len(t, sender.texts, 1)
	assert.Contains(t, sender.texts[0], "8,500 歩")
	assert.Equal(t, "2026-10-14", store.Snapshot().GoalNotification.AchievedOn)
}

func TestCheckGoalBelowTarget(t *testing.T) {
	hc := &fakeHealth{days: map[string]health.Record{"2026-10-14": {Steps: health.Some(7999)}}}
	sender := &fakeSender{}
	svc, store := newService(t, hc, sender, fixedNow)
	require.NoError(t, store.SetGoalNotification(context.Background(), true))

	require.NoError(t, svc.CheckGoal(context.Background(), fixedNow))
	assert.Empty(t, sender.texts)
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, "rate_limited", ErrorKind(fmt.Errorf("x: %w", notification.ErrRateLimited)))
	assert.Equal(t, "rejected", ErrorKind(notification.ErrRejected))
	assert.Equal(t, "cancelled", ErrorKind(context.Canceled))
	assert.Equal(t, "unknown", ErrorKind(fmt.Errorf("boom")))
}
