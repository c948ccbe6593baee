package escalation

import (
	"slices"
	"time"
)

// WithinBusinessHours reports whether now falls inside the rule's operating
// window. Rules without the business-hours restriction always pass. The
// window comparison is inclusive on both ends; the weekday must be in the
// rule's working-day set. Pure, no I/O.
func WithinBusinessHours(rule EscalationRule, now time.Time) bool {
	if !rule.BusinessHoursOnly {
		return true
	}
	if !slices.Contains(rule.WorkingDays, now.Weekday()) {
		return false
	}
	start, err := ParseClock(rule.BusinessHoursStart)
	if err != nil {
		return false
	}
	end, err := ParseClock(rule.BusinessHoursEnd)
	if err != nil {
		return false
	}
	minuteOfDay := now.Hour()*60 + now.Minute()
	return minuteOfDay >= start && minuteOfDay <= end
}
