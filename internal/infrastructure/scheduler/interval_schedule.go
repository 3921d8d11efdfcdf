package scheduler

import (
	"fmt"
	"time"
)

// IntervalSchedule runs a job a fixed time after its previous run.
type IntervalSchedule struct {
	Interval time.Duration
}

// Every returns an IntervalSchedule. Non-positive intervals become one
// minute.
func Every(interval time.Duration) *IntervalSchedule {
	if interval <= 0 {
		interval = time.Minute
	}
	return &IntervalSchedule{Interval: interval}
}

func (s *IntervalSchedule) Next(t time.Time) time.Time {
	return t.Add(s.Interval)
}

func (s *IntervalSchedule) String() string {
	return fmt.Sprintf("@every %s", s.Interval)
}
