package escalation

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/helpdesk/escalation-engine/pkg/metrics"
	"github.com/helpdesk/escalation-engine/pkg/system"
)

// SkipReason explains why a rule did not fire for a ticket. Skips are not
// errors and are not persisted; only fired attempts produce log rows.
type SkipReason string

const (
	SkipInvalidRule          SkipReason = "invalid_rule"
	SkipOutsideBusinessHours SkipReason = "outside_business_hours"
	SkipConditionsNotMet     SkipReason = "conditions_not_met"
	SkipTimeNotExceeded      SkipReason = "time_not_exceeded"
	SkipRecentlyExecuted     SkipReason = "recently_executed"
)

// Outcome is the result of evaluating one (rule, ticket) pair.
type Outcome struct {
	RuleID         string     `json:"ruleID"`
	RuleName       string     `json:"ruleName"`
	TicketID       string     `json:"ticketID"`
	Fired          bool       `json:"fired"`
	SkipReason     SkipReason `json:"skipReason,omitempty"`
	Success        bool       `json:"success"`
	ElapsedMinutes int        `json:"elapsedMinutes"`
	Errors         []string   `json:"errors,omitempty"`
}

// RuleEvaluator runs the gate chain for one (rule, ticket) pair and, on
// firing, drives the action executor and writes the audit row. The gating
// checks short-circuit in a fixed order: force override, business hours,
// static conditions, time threshold, cooldown.
type RuleEvaluator struct {
	calc  *TimeCalculator
	guard *CooldownGuard
	exec  *ActionExecutor
	logs  LogStore
	vocab StatusVocabulary
	log   *zap.SugaredLogger
	now   func() time.Time
}

func NewRuleEvaluator(calc *TimeCalculator, guard *CooldownGuard, exec *ActionExecutor,
	logs LogStore, vocab StatusVocabulary, log *zap.SugaredLogger,
) *RuleEvaluator {
	return &RuleEvaluator{
		calc:  calc,
		guard: guard,
		exec:  exec,
		logs:  logs,
		vocab: vocab,
		log:   log,
		now:   time.Now,
	}
}

// WithClock overrides the evaluator's time source.
func (e *RuleEvaluator) WithClock(now func() time.Time) *RuleEvaluator {
	e.now = now
	return e
}

func (e *RuleEvaluator) getLogger() *zap.SugaredLogger {
	if e.log != nil {
		return e.log
	}
	return zap.S()
}

func skipped(rule EscalationRule, ticket TicketSnapshot, reason SkipReason, elapsed int) Outcome {
	metrics.RulesSkipped.WithLabelValues(string(reason)).Inc()
	return Outcome{
		RuleID:         rule.ID,
		RuleName:       rule.Name,
		TicketID:       ticket.ID,
		SkipReason:     reason,
		ElapsedMinutes: elapsed,
	}
}

// Evaluate gates and possibly fires the rule for the ticket. When force is
// set all gating is bypassed and the actions run unconditionally. Every
// firing attempt is recorded through the log store, with the log's success
// mirroring the ticket-write outcome; action errors never turn a firing
// back into a skip.
func (e *RuleEvaluator) Evaluate(ctx context.Context, rule EscalationRule, ticket TicketSnapshot, force bool) (Outcome, error) {
	log := e.getLogger().With(system.RuleTicketFields(rule.ID, ticket.ID)...)
	now := e.now()

	if err := rule.Validate(); err != nil {
		log.Warnw("Skipping malformed rule", "error", err)
		return skipped(rule, ticket, SkipInvalidRule, 0), nil
	}

	elapsed := e.calc.ElapsedMinutes(rule, ticket, now)

	if !force {
		if !WithinBusinessHours(rule, now) {
			return skipped(rule, ticket, SkipOutsideBusinessHours, elapsed), nil
		}
		if !ConditionsMatch(rule.Conditions, ticket, e.vocab) {
			return skipped(rule, ticket, SkipConditionsNotMet, elapsed), nil
		}
		if elapsed < rule.ThresholdMinutes() {
			return skipped(rule, ticket, SkipTimeNotExceeded, elapsed), nil
		}
		mayFire, err := e.guard.MayFire(ctx, rule, ticket.ID, now)
		if err != nil {
			return Outcome{RuleID: rule.ID, RuleName: rule.Name, TicketID: ticket.ID, ElapsedMinutes: elapsed},
				errors.Wrap(err, "cooldown check")
		}
		if !mayFire {
			return skipped(rule, ticket, SkipRecentlyExecuted, elapsed), nil
		}
	}

	log.Infow("Escalation rule firing", "elapsedMinutes", elapsed, "forced", force)
	success, actionErrs := e.exec.Apply(ctx, rule, ticket)

	outcome := Outcome{
		RuleID:         rule.ID,
		RuleName:       rule.Name,
		TicketID:       ticket.ID,
		Fired:          true,
		Success:        success,
		ElapsedMinutes: elapsed,
		Errors:         actionErrs,
	}
	metrics.RulesFired.WithLabelValues(rule.ID).Inc()

	bucket := BucketFor(rule, now)
	if force {
		// An operator override bypasses the cooldown, so its row must not
		// collide with the window of a regular firing. Bucketing by the
		// firing instant keeps every forced attempt on its own key.
		bucket = now.UnixNano()
	}
	entry := EscalationLog{
		ID:                 uuid.NewString(),
		RuleID:             rule.ID,
		TicketID:           ticket.ID,
		EscalationType:     string(rule.TimeCondition),
		TimeElapsedMinutes: elapsed,
		ConditionsSnapshot: snapshotJSON(rule.Conditions),
		ActionsSnapshot:    snapshotJSON(rule.Actions),
		Success:            success,
		ErrorMessage:       strings.Join(actionErrs, "; "),
		TriggeredAt:        now,
		WindowBucket:       bucket,
	}
	if err := e.logs.Append(ctx, entry); err != nil {
		if errors.Is(err, ErrDuplicateFiring) {
			// A concurrent run won the window; keep the firing outcome but
			// record that the audit row was deduplicated.
			log.Warnw("Concurrent firing detected for cooldown window, audit row deduplicated")
			metrics.DuplicateFirings.Inc()
			return outcome, nil
		}
		log.Errorw("Failed to append escalation log", "error", err)
		outcome.Errors = append(outcome.Errors, "append escalation log: "+err.Error())
		return outcome, nil
	}
	return outcome, nil
}
