// internal/domain/notification/job.go
package notification

import (
	"fmt"
	"time"
)

// Type identifies a scheduled report.
type Type string

const (
	TypeMorning Type = "morning"
	TypeNoon    Type = "noon"
	TypeNight   Type = "night"
)

// Types lists every report type in firing order.
var Types = []Type{TypeMorning, TypeNoon, TypeNight}

// ParseType validates a report type name.
func ParseType(s string) (Type, error) {
	switch t := Type(s); t {
	case TypeMorning, TypeNoon, TypeNight:
		return t, nil
	}
	return "", fmt.Errorf("unknown notification type %q (want morning, noon or night)", s)
}

// Job is one delivery attempt for a report type and target date.
type Job struct {
	Type       Type
	TargetDate time.Time
	Attempt    int  // for logging only
	Manual     bool // triggered outside the scheduler
}

// DateKey returns the target date in YYYY-MM-DD form.
func (j Job) DateKey() string {
	return j.TargetDate.Format("2006-01-02")
}

func (j Job) String() string {
	return fmt.Sprintf("%s/%s", j.Type, j.DateKey())
}
