package escalation

import (
	"time"

	"go.uber.org/zap"
)

// CustomElapsedFunc is the pluggable measurement hook for rules with the
// custom time condition. It returns the elapsed minutes and whether the
// hook handled the rule; unhandled rules fall back to resolution-time
// semantics.
type CustomElapsedFunc func(rule EscalationRule, ticket TicketSnapshot, now time.Time) (int, bool)

// TimeCalculator converts a rule's time condition into an elapsed-minutes
// measurement against a ticket snapshot. Pure apart from the optional
// custom hook; never fails and clamps clock-skew negatives to zero.
type TimeCalculator struct {
	custom CustomElapsedFunc
	log    *zap.SugaredLogger
}

func NewTimeCalculator(custom CustomElapsedFunc, log *zap.SugaredLogger) *TimeCalculator {
	return &TimeCalculator{custom: custom, log: log}
}

func (c *TimeCalculator) getLogger() *zap.SugaredLogger {
	if c.log != nil {
		return c.log
	}
	return zap.S()
}

// ElapsedMinutes measures how long the rule's time condition has been
// accumulating for the ticket.
func (c *TimeCalculator) ElapsedMinutes(rule EscalationRule, ticket TicketSnapshot, now time.Time) int {
	switch rule.TimeCondition {
	case TimeNoResponse:
		since := ticket.CreatedAt
		if ticket.LastCommentAt != nil {
			since = *ticket.LastCommentAt
		}
		return clampMinutes(now.Sub(since))
	case TimeCustom:
		if c.custom != nil {
			if minutes, ok := c.custom(rule, ticket, now); ok {
				if minutes < 0 {
					return 0
				}
				return minutes
			}
		}
		c.getLogger().Debugw("No custom elapsed hook for rule, measuring from creation",
			"rule", rule.ID, "ticket", ticket.ID)
		return clampMinutes(now.Sub(ticket.CreatedAt))
	default:
		// Unassigned and resolution time both measure from creation.
		return clampMinutes(now.Sub(ticket.CreatedAt))
	}
}

func clampMinutes(d time.Duration) int {
	if d < 0 {
		return 0
	}
	return int(d / time.Minute)
}
