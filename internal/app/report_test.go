package app

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"health_notification_bot/internal/domain/health"
	"health_notification_bot/internal/domain/settings"
)

func TestStepsProgressZeroGoalShortCircuits(t *testing.T) {
	ratio, ok := StepsProgress(5000, 0)
	assert.False(t, ok)
	assert.Zero(t, ratio)

	ratio, ok = StepsProgress(4000, 8000)
	assert.True(t, ok)
	assert.InDelta(t, 0.5, ratio, 1e-9)

	assert.False(t, BehindPace(0, 0, 13))
	assert.False(t, BehindPace(0, -5, 13))
}

func TestExpectedStepsAndPace(t *testing.T) {
	assert.Equal(t, 0, ExpectedSteps(9000, 6))
	assert.Equal(t, 3000, ExpectedSteps(9000, 13))
	assert.Equal(t, 9000, ExpectedSteps(9000, 23))
	assert.Equal(t, 9000, ExpectedSteps(9000, 24))

	assert.True(t, BehindPace(2000, 9000, 13))  // threshold 2100
	assert.False(t, BehindPace(2100, 9000, 13)) // exactly at threshold
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "7時間5分", FormatDuration(425))
	assert.Equal(t, "45分", FormatDuration(45))
	assert.Equal(t, "8,000", FormatSteps(8000))
	assert.Equal(t, "1,234,567", FormatSteps(1234567))
	assert.Equal(t, "-1,100", FormatSteps(-1100))
	assert.Equal(t, "999", FormatSteps(999))

	assert.Equal(t, ":green_circle:", ScoreEmoji(85))
	assert.Equal(t, ":yellow_circle:", ScoreEmoji(70))
	assert.Equal(t, ":red_circle:", ScoreEmoji(69))
	assert.Equal(t, "まずまず", ScoreLabel(60))
	assert.Equal(t, "要注意", ScoreLabel(59))
}

func TestBedtimeFromWakeTime(t *testing.T) {
	wake, _ := settings.ParseTimeOfDay("07:00")
	assert.Equal(t, "23:00", TargetBedtime(wake).String())
	assert.Equal(t, "21:30", WindDownStart(wake).String())

	early, _ := settings.ParseTimeOfDay("5:15")
	assert.Equal(t, "21:15", TargetBedtime(early).String())
}

func TestSleepSectionOmitsAbsentValues(t *testing.T) {
	rec := &health.Record{
		Day:               date("2026-10-14"),
		SleepScore:        health.Some(0), // present zero is a real score
		TotalSleepMinutes: health.Some(400),
	}
	text := SleepSection(rec).Text()

	assert.Contains(t, text, "**スコア: 0**")
	assert.Contains(t, text, "6時間40分")
	assert.NotContains(t, text, "深い睡眠")
	assert.NotContains(t, text, "HRV")
	assert.NotContains(t, text, "就寝 → 起床")

	assert.Contains(t, SleepSection(nil).Text(), "データがありません")
}

func TestMorningPolicyDefaultsWhenReadinessAbsent(t *testing.T) {
	s := MorningReport(date("2026-10-14"), &health.Record{SleepScore: health.Some(80)}, nil)
	assert.Len(t, s.Sections, 3)
	assert.Contains(t, s.Sections[2].Title, "維持")

	s = MorningReport(date("2026-10-14"), &health.Record{ReadinessScore: health.Some(90)}, &health.Summary{})
	assert.Contains(t, s.Sections[2].Title, "攻める")
	assert.Len(t, s.Sections, 3, "an empty week adds nothing")
}

func TestNoonReportDecision(t *testing.T) {
	_, send := NoonReport(nil, 8000, 13)
	assert.False(t, send)

	_, send = NoonReport(&health.Record{ActivityScore: health.Some(50)}, 8000, 13)
	assert.False(t, send, "no steps means nothing to compare")

	s, send := NoonReport(&health.Record{Steps: health.Some(1000)}, 9000, 13)
	assert.True(t, send)
	assert.Contains(t, s.Sections[0].Description, "1,000 / 9,000 歩")

	_, send = NoonReport(&health.Record{Steps: health.Some(1000)}, 0, 13)
	assert.False(t, send)
}

func TestNightReportWindDown(t *testing.T) {
	wake, _ := settings.ParseTimeOfDay("07:00")

	low := NightReport(&health.Record{ReadinessScore: health.Some(60), Steps: health.Some(5000)}, 8000, wake)
	a := assert.New(t)
	a.Len(low.Sections, 2)
	a.Contains(low.Sections[1].Description, "早めに就寝")
	a.Contains(low.Sections[1].Description, "23:00")
	a.False(strings.Contains(low.Sections[1].Description, "昨夜の睡眠"), "absent sleep score is not printed")

	calm := NightReport(nil, 8000, wake)
	a.Len(calm.Sections, 1)
	a.Contains(calm.Sections[0].Title, "21:30")
	a.Contains(calm.Sections[0].Description, "コンディション良好")
}

func TestWeeklySection(t *testing.T) {
	_, ok := WeeklySection("week", health.Summary{})
	assert.False(t, ok)

	sum := health.Summarize([]health.Record{
		{SleepScore: health.Some(80), Steps: health.Some(6000)},
		{SleepScore: health.Some(70)},
	})
	sec, ok := WeeklySection("week", sum)
	assert.True(t, ok)
	text := sec.Text()
	assert.Contains(t, text, "平均 75 (最小 70 / 最大 80)")
	assert.Contains(t, text, "平均 6,000 歩")
	assert.NotContains(t, text, "Readiness")
}
