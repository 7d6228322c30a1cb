// internal/domain/health/stats.go
package health

import "database/sql"

// Aggregate summarises one metric over a range of records.
// Only present values are counted.
type Aggregate struct {
	Count   int
	Average float64
	Min     int
	Max     int
}

// Summary holds aggregates over a range, typically a week or a month.
type Summary struct {
	Days      int // days in the range with any data
	Sleep     Aggregate
	Readiness Aggregate
	Activity  Aggregate
	Steps     Aggregate
}

// Summarize builds aggregates from records.
func Summarize(records []Record) Summary {
	s := Summary{Days: len(records)}
	for _, r := range records {
		s.Sleep.add(r.SleepScore)
		s.Readiness.add(r.ReadinessScore)
		s.Activity.add(r.ActivityScore)
		s.Steps.add(r.Steps)
	}
	return s
}

func (a *Aggregate) add(v sql.Null[int]) {
	if !v.Valid {
		return
	}
	if a.Count == 0 || v.V < a.Min {
		a.Min = v.V
	}
	if a.Count == 0 || v.V > a.Max {
		a.Max = v.V
	}
	a.Average = (a.Average*float64(a.Count) + float64(v.V)) / float64(a.Count+1)
	a.Count++
}
