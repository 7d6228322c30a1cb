// internal/app/report.go
package app

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"health_notification_bot/internal/domain/health"
	"health_notification_bot/internal/domain/notification"
	"health_notification_bot/internal/domain/settings"
)

const (
	colorGood    = 0x00FF00
	colorFair    = 0xFFFF00
	colorPoor    = 0xFF0000
	colorNoData  = 0x808080
	colorNoon    = 0xFF9900
	colorResults = 0x3498DB
	colorRest    = 0xFF6B6B
	colorCalm    = 0x9B59B6

	activeDayStartHour = 8  // 08:00
	activeDayHours     = 15 // until 23:00
	behindPaceRatio    = 0.7
	targetSleep        = 8 * time.Hour
	windDownLead       = 90 * time.Minute

	noData = "データがありません"
)

func ScoreEmoji(score int) string {
	switch {
	case score >= 85:
		return ":green_circle:"
	case score >= 70:
		return ":yellow_circle:"
	default:
		return ":red_circle:"
	}
}

func ScoreLabel(score int) string {
	switch {
	case score >= 85:
		return "優秀"
	case score >= 70:
		return "良好"
	case score >= 60:
		return "まずまず"
	default:
		return "要注意"
	}
}

func scoreColor(score int) int {
	switch {
	case score >= 85:
		return colorGood
	case score >= 70:
		return colorFair
	default:
		return colorPoor
	}
}

// FormatDuration renders minutes as "X時間Y分".
func FormatDuration(minutes int) string {
	if minutes >= 60 {
		return fmt.Sprintf("%d時間%d分", minutes/60, minutes%60)
	}
	return fmt.Sprintf("%d分", minutes)
}

// FormatSteps renders n with thousands separators.
func FormatSteps(n int) string {
	s := fmt.Sprintf("%d", n)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}

// StepsProgress returns steps/goal. ok is false when goal is not positive, in which case ratio is 0.
func StepsProgress(steps, goal int) (ratio float64, ok bool) {
	if goal <= 0 {
		return 0, false
	}
	return float64(steps) / float64(goal), true
}

// ExpectedSteps is the goal prorated over the 08:00-23:00 active day at the given hour.
func ExpectedSteps(goal, hour int) int {
	elapsed := hour - activeDayStartHour
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed > activeDayHours {
		elapsed = activeDayHours
	}
	return goal * elapsed / activeDayHours
}

// BehindPace reports whether steps are under 70% of the expected pace. A non-positive goal is never behind.
func BehindPace(steps, goal, hour int) bool {
	if goal <= 0 {
		return false
	}
	return float64(steps) < float64(ExpectedSteps(goal, hour))*behindPaceRatio
}

// TargetBedtime back-computes bedtime from the wake time.
func TargetBedtime(wake settings.TimeOfDay) settings.TimeOfDay {
	return wake.Sub(targetSleep)
}

// WindDownStart is when to start winding down before bedtime.
func WindDownStart(wake settings.TimeOfDay) settings.TimeOfDay {
	return TargetBedtime(wake).Sub(windDownLead)
}

type dayPolicy struct {
	title, message string
	color          int
}

func policyFor(readiness sql.Null[int]) dayPolicy {
	score := 70
	if readiness.Valid {
		score = readiness.V
	}
	switch {
	case score >= 85:
		return dayPolicy{":fire: 攻める", "コンディション良好！今日は積極的に動こう", colorGood}
	case score >= 70:
		return dayPolicy{":arrows_counterclockwise: 維持", "いつも通りのペースで過ごそう", colorFair}
	default:
		return dayPolicy{":battery: 回復", "無理せず休息を優先しよう", colorPoor}
	}
}

func scoreLine(score sql.Null[int]) string {
	return fmt.Sprintf("**スコア: %d** %s (%s)", score.V, ScoreEmoji(score.V), ScoreLabel(score.V))
}

// SleepSection lists only the values the provider reported.
func SleepSection(rec *health.Record) notification.Section {
	sec := notification.Section{Title: ":zzz: 睡眠"}
	if rec == nil || (!rec.SleepScore.Valid && !rec.TotalSleepMinutes.Valid) {
		sec.Description, sec.Color = noData, colorNoData
		return sec
	}
	sec.Color = colorNoData
	if rec.SleepScore.Valid {
		sec.Description = scoreLine(rec.SleepScore)
		sec.Color = scoreColor(rec.SleepScore.V)
	}
	if rec.BedTime.Valid && rec.WakeTime.Valid {
		sec.Fields = append(sec.Fields, notification.Field{Name: ":clock10: 就寝 → 起床",
			Value: rec.BedTime.Time.Format("15:04") + " → " + rec.WakeTime.Time.Format("15:04"), Inline: true})
	}
	addMinutes := func(name string, v sql.Null[int]) {
		if v.Valid {
			sec.Fields = append(sec.Fields, notification.Field{Name: name, Value: FormatDuration(v.V), Inline: true})
		}
	}
	addMinutes(":bed: 総睡眠時間", rec.TotalSleepMinutes)
	addMinutes(":new_moon: 深い睡眠", rec.DeepSleepMinutes)
	addMinutes(":crescent_moon: レム睡眠", rec.REMSleepMinutes)
	if rec.LowestHeartRate.Valid {
		sec.Fields = append(sec.Fields, notification.Field{Name: ":heart: 最低心拍数", Value: fmt.Sprintf("%d bpm", rec.LowestHeartRate.V), Inline: true})
	}
	if rec.AverageHRV.Valid {
		sec.Fields = append(sec.Fields, notification.Field{Name: ":chart_with_upwards_trend: 平均HRV", Value: fmt.Sprintf("%.0f ms", rec.AverageHRV.V), Inline: true})
	}
	return sec
}

func ReadinessSection(rec *health.Record) notification.Section {
	sec := notification.Section{Title: ":zap: Readiness（準備度）"}
	if rec == nil || !rec.ReadinessScore.Valid {
		sec.Description, sec.Color = noData, colorNoData
		return sec
	}
	sec.Description = scoreLine(rec.ReadinessScore)
	sec.Color = scoreColor(rec.ReadinessScore.V)
	if rec.TemperatureDeviation.Valid {
		sec.Fields = append(sec.Fields, notification.Field{Name: ":thermometer: 体温偏差", Value: fmt.Sprintf("%+.1f°C", rec.TemperatureDeviation.V), Inline: true})
	}
	if rec.Stress.Valid && rec.Stress.V.HighMinutes.Valid {
		sec.Fields = append(sec.Fields, notification.Field{Name: ":face_with_spiral_eyes: 高ストレス", Value: FormatDuration(rec.Stress.V.HighMinutes.V), Inline: true})
	}
	return sec
}

func ActivitySection(rec *health.Record, goal int) notification.Section {
	sec := notification.Section{Title: ":footprints: 活動", Color: colorResults}
	if rec == nil || (!rec.ActivityScore.Valid && !rec.Steps.Valid) {
		sec.Description, sec.Color = noData, colorNoData
		return sec
	}
	if rec.ActivityScore.Valid {
		sec.Description = fmt.Sprintf("**活動スコア: %d** %s", rec.ActivityScore.V, ScoreEmoji(rec.ActivityScore.V))
	}
	if rec.Steps.Valid {
		value := FormatSteps(rec.Steps.V) + " 歩"
		if ratio, ok := StepsProgress(rec.Steps.V, goal); ok {
			value += fmt.Sprintf(" (%.0f%%)", ratio*100)
		}
		sec.Fields = append(sec.Fields, notification.Field{Name: ":footprints: 歩数", Value: value, Inline: true})
	}
	if rec.ActiveCalories.Valid {
		sec.Fields = append(sec.Fields, notification.Field{Name: ":fire: アクティブカロリー", Value: FormatSteps(rec.ActiveCalories.V) + " kcal", Inline: true})
	}
	return sec
}

// WeeklySection summarises averages; ok is false when the week has no data.
func WeeklySection(title string, s health.Summary) (notification.Section, bool) {
	if s.Days == 0 {
		return notification.Section{}, false
	}
	sec := notification.Section{Title: title, Color: colorResults, Footer: fmt.Sprintf("%d日分のデータ", s.Days)}
	add := func(name string, a health.Aggregate, unit string) {
		if a.Count == 0 {
			return
		}
		sec.Fields = append(sec.Fields, notification.Field{
			Name:   name,
			Value:  fmt.Sprintf("平均 %s%s (最小 %s / 最大 %s)", FormatSteps(int(a.Average+0.5)), unit, FormatSteps(a.Min), FormatSteps(a.Max)),
			Inline: false,
		})
	}
	add(":zzz: 睡眠", s.Sleep, "")
	add(":zap: Readiness", s.Readiness, "")
	add(":runner: 活動", s.Activity, "")
	add(":footprints: 歩数", s.Steps, " 歩")
	return sec, true
}

// MorningReport covers last night's sleep, readiness and the day policy.
func MorningReport(day time.Time, rec *health.Record, week *health.Summary) notification.Summary {
	readiness := sql.Null[int]{}
	if rec != nil {
		readiness = rec.ReadinessScore
	}
	policy := policyFor(readiness)
	s := notification.Summary{
		Title: fmt.Sprintf(":sunrise: **おはようございます！** (%s)", day.Format(health.DateLayout)),
		Sections: []notification.Section{
			SleepSection(rec),
			ReadinessSection(rec),
			{Title: ":dart: 今日の方針: " + policy.title, Description: policy.message, Color: policy.color},
		},
	}
	if week != nil {
		if sec, ok := WeeklySection(":calendar: 過去7日間", *week); ok {
			s.Sections = append(s.Sections, sec)
		}
	}
	return s
}

// NoonReport is sent only when steps lag the expected pace; send reports that decision.
func NoonReport(rec *health.Record, goal, hour int) (summary notification.Summary, send bool) {
	if rec == nil || !rec.Steps.Valid {
		return notification.Summary{}, false
	}
	steps := rec.Steps.V
	expected := ExpectedSteps(goal, hour)
	ratio, _ := StepsProgress(steps, goal)
	filled := int(ratio * 10)
	if filled > 10 {
		filled = 10
	}
	if filled < 0 {
		filled = 0
	}
	bar := strings.Repeat("█", filled) + strings.Repeat("░", 10-filled)

	summary = notification.Summary{
		Title: ":walking: **活動リマインダー**",
		Sections: []notification.Section{{
			Title:       ":footprints: 歩数の進捗",
			Description: fmt.Sprintf("**%s / %s 歩** (%.0f%%)\n`%s`", FormatSteps(steps), FormatSteps(goal), ratio*100, bar),
			Color:       colorNoon,
			Fields: []notification.Field{
				{Name: ":chart_with_downwards_trend: 目標ペース", Value: FormatSteps(expected) + " 歩", Inline: true},
				{Name: ":warning: 差分", Value: FormatSteps(steps-expected) + " 歩", Inline: true},
				{Name: ":bulb: 今すぐできること", Value: "10分歩く（約1,000歩）"},
			},
		}},
	}
	return summary, BehindPace(steps, goal, hour)
}

// NightReport covers the day's results and a wind-down reminder tied to the wake time.
func NightReport(rec *health.Record, goal int, wake settings.TimeOfDay) notification.Summary {
	s := notification.Summary{Title: ":night_with_stars: **おつかれさまでした！**"}
	if rec != nil && (rec.ActivityScore.Valid || rec.Steps.Valid) {
		sec := ActivitySection(rec, goal)
		sec.Title = ":bar_chart: 今日の結果"
		if rec.ReadinessScore.Valid {
			sec.Fields = append(sec.Fields, notification.Field{Name: ":zap: Readiness", Value: fmt.Sprintf("%d", rec.ReadinessScore.V), Inline: true})
		}
		s.Sections = append(s.Sections, sec)
	}

	bedtime := TargetBedtime(wake)
	low := rec != nil && ((rec.ReadinessScore.Valid && rec.ReadinessScore.V < 70) || (rec.SleepScore.Valid && rec.SleepScore.V < 70))
	reminder := notification.Section{Title: fmt.Sprintf(":bed: 減速開始（就寝90分前 %s）", WindDownStart(wake))}
	if low {
		var scores []string
		if rec.ReadinessScore.Valid {
			scores = append(scores, fmt.Sprintf("Readiness: %d", rec.ReadinessScore.V))
		}
		if rec.SleepScore.Valid {
			scores = append(scores, fmt.Sprintf("昨夜の睡眠: %d", rec.SleepScore.V))
		}
		reminder.Description = ":warning: **今日は早めに就寝を推奨**\n└ " + strings.Join(scores, " / ") +
			"\n\n:moon: **今すぐやること**\n1. スマホ・PCをオフ\n2. 照明を暗くする\n3. 目標就寝: **" + bedtime.String() + "**"
		reminder.Color = colorRest
	} else {
		reminder.Description = ":sparkles: コンディション良好です\n\n:moon: **減速開始のルーティン**\n1. スマホ・PCをオフ\n2. 照明を暗くする\n3. 目標就寝: " + bedtime.String()
		reminder.Color = colorCalm
	}
	s.Sections = append(s.Sections, reminder)
	return s
}

// GoalAchievedMessage congratulates on reaching the steps goal.
func GoalAchievedMessage(steps, goal int) string {
	return fmt.Sprintf(":tada: **歩数目標達成！**\n%s 歩 / 目標 %s 歩", FormatSteps(steps), FormatSteps(goal))
}

// ReminderMessage renders a user reminder.
func ReminderMessage(r settings.Reminder) string {
	return ":bell: **リマインダー** (" + r.Time + ")\n" + r.Message
}
