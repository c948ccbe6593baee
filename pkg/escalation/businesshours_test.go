package escalation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func businessHoursRule() EscalationRule {
	r := testRule("bh")
	r.BusinessHoursOnly = true
	r.BusinessHoursStart = "09:00"
	r.BusinessHoursEnd = "17:00"
	r.WorkingDays = []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}
	return r
}

func TestWithinBusinessHours(t *testing.T) {
	rule := businessHoursRule()

	// 2026-03-09 is a Monday.
	monday := func(h, m int) time.Time {
		return time.Date(2026, 3, 9, h, m, 0, 0, time.UTC)
	}

	cases := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"just before opening", monday(8, 59), false},
		{"opening minute", monday(9, 0), true},
		{"midday", monday(12, 30), true},
		{"closing minute is inclusive", monday(17, 0), true},
		{"just after closing", monday(17, 1), false},
		{"saturday", time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC), false},
		{"sunday", time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, WithinBusinessHours(rule, tc.now))
		})
	}
}

func TestBusinessHoursUnrestricted(t *testing.T) {
	rule := testRule("r1")
	sundayNight := time.Date(2026, 3, 15, 3, 0, 0, 0, time.UTC)
	assert.True(t, WithinBusinessHours(rule, sundayNight))
}

func TestBusinessHoursUnparsableClockFailsClosed(t *testing.T) {
	rule := businessHoursRule()
	rule.BusinessHoursStart = "nine"
	monday := time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)
	assert.False(t, WithinBusinessHours(rule, monday))

	rule = businessHoursRule()
	rule.BusinessHoursEnd = "17:61"
	assert.False(t, WithinBusinessHours(rule, monday))
}
