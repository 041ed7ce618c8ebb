package scheduler

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// StrategyRule describes recurring windows in which the oldest pending
// draft may be published automatically. Hours are evaluated at a fixed UTC
// offset with no daylight saving.
type StrategyRule struct {
	OffsetHours  int
	DriftMinutes int
	DailyHours   []int
	WeeklyDays   []time.Weekday
	WeeklyHours  []int
}

// DefaultStrategy is 08:00 and 14:00 every day plus 00:00, 01:00 and 02:00
// on Monday, Tuesday and Friday, at UTC-6, within the first five minutes.
func DefaultStrategy() StrategyRule {
	return StrategyRule{
		OffsetHours:  -6,
		DriftMinutes: 5,
		DailyHours:   []int{8, 14},
		WeeklyDays:   []time.Weekday{time.Monday, time.Tuesday, time.Friday},
		WeeklyHours:  []int{0, 1, 2},
	}
}

// IsStrategySlot applies the default rule.
func IsStrategySlot(now time.Time) bool {
	return DefaultStrategy().Contains(now)
}

// IsZero reports whether the rule has no fields set.
func (r StrategyRule) IsZero() bool {
	return r.OffsetHours == 0 && r.DriftMinutes == 0 &&
		len(r.DailyHours) == 0 && len(r.WeeklyDays) == 0 && len(r.WeeklyHours) == 0
}

// Contains reports whether now falls inside a slot.
func (r StrategyRule) Contains(now time.Time) bool {
	local := now.In(time.FixedZone(fmt.Sprintf("UTC%+d", r.OffsetHours), r.OffsetHours*3600))

	if local.Minute() >= r.DriftMinutes {
		return false
	}
	if slices.Contains(r.DailyHours, local.Hour()) {
		return true
	}
	return slices.Contains(r.WeeklyDays, local.Weekday()) && slices.Contains(r.WeeklyHours, local.Hour())
}

// Validate checks the rule's ranges.
func (r StrategyRule) Validate() error {
	if r.OffsetHours < -12 || r.OffsetHours > 14 {
		return fmt.Errorf("strategy offset_hours %d out of range [-12, 14]", r.OffsetHours)
	}
	if r.DriftMinutes < 1 || r.DriftMinutes > 60 {
		return fmt.Errorf("strategy drift_minutes %d out of range [1, 60]", r.DriftMinutes)
	}
	for _, h := range append(slices.Clone(r.DailyHours), r.WeeklyHours...) {
		if h < 0 || h > 23 {
			return fmt.Errorf("strategy hour %d out of range [0, 23]", h)
		}
	}
	return nil
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

// ParseWeekdays converts names like "mon" or "Friday" to weekdays.
func ParseWeekdays(names []string) ([]time.Weekday, error) {
	days := make([]time.Weekday, 0, len(names))
	for _, name := range names {
		day, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q", name)
		}
		days = append(days, day)
	}
	return days, nil
}
