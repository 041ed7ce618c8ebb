package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsStrategySlot(t *testing.T) {
	tests := []struct {
		name string
		at   string
		want bool
	}{
		{"monday midnight local", "2026-02-02T06:00:00Z", true},
		{"monday 01:00 local", "2026-02-02T07:00:00Z", true},
		{"monday 02:04 local", "2026-02-02T08:04:59Z", true},
		{"monday 03:00 local", "2026-02-02T09:00:00Z", false},
		{"wednesday midnight local", "2026-02-04T06:00:00Z", false},
		{"daily 08:00 local", "2026-02-04T14:00:00Z", true},
		{"daily 14:00 local", "2026-02-04T20:00:00Z", true},
		{"within drift", "2026-02-04T14:02:00Z", true},
		{"beyond drift", "2026-02-04T14:06:00Z", false},
		{"exactly five minutes", "2026-02-04T14:05:00Z", false},
		{"sunday midnight local", "2026-02-01T06:00:00Z", false},
		{"sunday 23:59 local", "2026-02-02T05:59:00Z", false},
		{"friday 02:00 local", "2026-02-06T08:00:00Z", true},
		{"tuesday 00:00 local", "2026-02-03T06:00:00Z", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now, err := time.Parse(time.RFC3339, tt.at)
			require.NoError(t, err)
			assert.Equal(t, tt.want, IsStrategySlot(now))
		})
	}
}

func TestStrategyRule_IgnoresInputZone(t *testing.T) {
	utc := time.Date(2026, 2, 4, 14, 0, 0, 0, time.UTC)
	tokyo := utc.In(time.FixedZone("JST", 9*3600))
	assert.True(t, IsStrategySlot(tokyo))
}

func TestStrategyRule_Custom(t *testing.T) {
	rule := StrategyRule{
		OffsetHours:  0,
		DriftMinutes: 10,
		DailyHours:   []int{12},
		WeeklyDays:   []time.Weekday{time.Saturday},
		WeeklyHours:  []int{9},
	}
	require.NoError(t, rule.Validate())

	assert.True(t, rule.Contains(time.Date(2026, 2, 4, 12, 9, 0, 0, time.UTC)))
	assert.False(t, rule.Contains(time.Date(2026, 2, 4, 12, 10, 0, 0, time.UTC)))
	assert.True(t, rule.Contains(time.Date(2026, 2, 7, 9, 0, 0, 0, time.UTC)))
	assert.False(t, rule.Contains(time.Date(2026, 2, 8, 9, 0, 0, 0, time.UTC)))
}

func TestStrategyRule_Validate(t *testing.T) {
	require.NoError(t, DefaultStrategy().Validate())

	bad := DefaultStrategy()
	bad.OffsetHours = 15
	assert.Error(t, bad.Validate())

	bad = DefaultStrategy()
	bad.DriftMinutes = 0
	assert.Error(t, bad.Validate())

	bad = DefaultStrategy()
	bad.WeeklyHours = []int{24}
	assert.Error(t, bad.Validate())
}

func TestStrategyRule_IsZero(t *testing.T) {
	assert.True(t, StrategyRule{}.IsZero())
	assert.False(t, DefaultStrategy().IsZero())
}

func TestParseWeekdays(t *testing.T) {
	days, err := ParseWeekdays([]string{"mon", "Tuesday", " FRI "})
	require.NoError(t, err)
	assert.Equal(t, []time.Weekday{time.Monday, time.Tuesday, time.Friday}, days)

	_, err = ParseWeekdays([]string{"someday"})
	assert.Error(t, err)
}
