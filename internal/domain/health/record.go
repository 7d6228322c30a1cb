// internal/domain/health/record.go
package health

import (
	"database/sql"
	"time"
)

// DateLayout is the provider's day key format.
const DateLayout = "2006-01-02"

// Record is one calendar day's biometric summary as reported by the provider.
// Every provider field is optional; an invalid sql.Null means the provider had no value.
type Record struct {
	Day time.Time // Calendar date at midnight in the reference zone

	SleepScore     sql.Null[int]
	ReadinessScore sql.Null[int]
	ActivityScore  sql.Null[int]
	Steps          sql.Null[int]
	ActiveCalories sql.Null[int]

	BedTime  sql.NullTime
	WakeTime sql.NullTime

	TotalSleepMinutes    sql.Null[int]
	DeepSleepMinutes     sql.Null[int]
	REMSleepMinutes      sql.Null[int]
	AverageHRV           sql.Null[float64]
	LowestHeartRate      sql.Null[int]
	TemperatureDeviation sql.Null[float64]

	// Stress is fetched separately and may be absent even when the rest is present.
	Stress sql.Null[Stress]
}

// Stress is the optional secondary metric for a day.
type Stress struct {
	HighMinutes     sql.Null[int]
	RecoveryMinutes sql.Null[int]
	Summary         string // "restored", "normal", "stressful" or empty
}

// HasData reports whether any daily source contributed a value to the record.
func (r Record) HasData() bool {
	return r.SleepScore.Valid || r.ReadinessScore.Valid || r.ActivityScore.Valid ||
		r.Steps.Valid || r.BedTime.Valid || r.TotalSleepMinutes.Valid
}

// DayKey returns the record's day in provider key format.
func (r Record) DayKey() string {
	return r.Day.Format(DateLayout)
}

// Some wraps a present value.
func Some[T any](v T) sql.Null[T] {
	return sql.Null[T]{V: v, Valid: true}
}
