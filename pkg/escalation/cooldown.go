package escalation

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// CooldownGuard suppresses re-firing of a (rule, ticket) pair within the
// rule's repeat interval by consulting the execution log. The check is
// advisory: two overlapping batch runs can both pass it before either
// writes a log row. The log store's unique window key catches that race
// (see ErrDuplicateFiring).
type CooldownGuard struct {
	logs LogStore
	log  *zap.SugaredLogger
}

func NewCooldownGuard(logs LogStore, log *zap.SugaredLogger) *CooldownGuard {
	return &CooldownGuard{logs: logs, log: log}
}

func (g *CooldownGuard) getLogger() *zap.SugaredLogger {
	if g.log != nil {
		return g.log
	}
	return zap.S()
}

// MayFire reports whether the rule may fire for the ticket at the given
// instant. With no prior successful firing it always may. With repeats
// disabled a prior success permanently suppresses the pair. With repeats
// enabled it fires once the repeat interval has fully elapsed and the
// rule's repeat budget is not exhausted.
func (g *CooldownGuard) MayFire(ctx context.Context, rule EscalationRule, ticketID string, now time.Time) (bool, error) {
	last, err := g.logs.MostRecentSuccess(ctx, rule.ID, ticketID)
	if err != nil {
		return false, errors.Wrapf(err, "cooldown lookup for rule %s ticket %s", rule.ID, ticketID)
	}
	if last == nil {
		return true, nil
	}
	if !rule.RepeatEscalation {
		g.getLogger().Debugw("Rule already fired for ticket and repeats are disabled",
			"rule", rule.ID, "ticket", ticketID, "lastFired", last.TriggeredAt)
		return false, nil
	}
	if rule.MaxRepeats > 0 {
		count, err := g.logs.CountSuccesses(ctx, rule.ID, ticketID)
		if err != nil {
			return false, errors.Wrapf(err, "repeat count for rule %s ticket %s", rule.ID, ticketID)
		}
		if count >= rule.MaxRepeats {
			g.getLogger().Debugw("Rule exhausted its repeat budget for ticket",
				"rule", rule.ID, "ticket", ticketID, "fired", count, "maxRepeats", rule.MaxRepeats)
			return false, nil
		}
	}
	elapsed := now.Sub(last.TriggeredAt)
	return elapsed >= time.Duration(rule.RepeatIntervalMinutes)*time.Minute, nil
}
