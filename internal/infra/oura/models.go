// internal/infra/oura/models.go
package oura

// page is the envelope shared by every usercollection endpoint.
type page[T any] struct {
	Data      []T     `json:"data"`
	NextToken *string `json:"next_token"`
}

type dailySleep struct {
	Day   string `json:"day"`
	Score *int   `json:"score"`
}

type dailyReadiness struct {
	Day                  string   `json:"day"`
	Score                *int     `json:"score"`
	TemperatureDeviation *float64 `json:"temperature_deviation"`
}

type dailyActivity struct {
	Day            string `json:"day"`
	Score          *int   `json:"score"`
	Steps          *int   `json:"steps"`
	ActiveCalories *int   `json:"active_calories"`
}

// sleepPeriod durations are seconds.
type sleepPeriod struct {
	Day                string   `json:"day"`
	Type               string   `json:"type"`
	BedtimeStart       *string  `json:"bedtime_start"`
	BedtimeEnd         *string  `json:"bedtime_end"`
	TotalSleepDuration *int     `json:"total_sleep_duration"`
	DeepSleepDuration  *int     `json:"deep_sleep_duration"`
	RemSleepDuration   *int     `json:"rem_sleep_duration"`
	AverageHRV         *float64 `json:"average_hrv"`
	LowestHeartRate    *int     `json:"lowest_heart_rate"`
}

// dailyStress durations are seconds.
type dailyStress struct {
	Day          string  `json:"day"`
	StressHigh   *int    `json:"stress_high"`
	RecoveryHigh *int    `json:"recovery_high"`
	DaySummary   *string `json:"day_summary"`
}

const longSleep = "long_sleep"
