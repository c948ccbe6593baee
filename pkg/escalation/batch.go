package escalation

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/helpdesk/escalation-engine/pkg/metrics"
)

const (
	DefaultBatchLimit  = 100
	DefaultWorkerCount = 4
	DefaultRunDeadline = 2 * time.Minute
)

// DefaultStatusFilter selects the ticket statuses a batch inspects when the
// caller does not narrow them.
var DefaultStatusFilter = []string{"open", "in_progress", "pending"}

// BatchRequest parameterizes one orchestrator invocation.
type BatchRequest struct {
	Limit        int      `json:"limit,omitempty"`
	StatusFilter []string `json:"statusFilter,omitempty"`
	Force        bool     `json:"force,omitempty"`
}

// TicketResult is the per-ticket detail of a batch run.
type TicketResult struct {
	TicketID string    `json:"ticketID"`
	Outcomes []Outcome `json:"outcomes"`
	Error    string    `json:"error,omitempty"`
}

// BatchReport aggregates one batch run. Failures of individual tickets or
// rules are attributed here instead of aborting the run.
type BatchReport struct {
	StartedAt        time.Time      `json:"startedAt"`
	Duration         time.Duration  `json:"duration"`
	TicketsProcessed int            `json:"ticketsProcessed"`
	RulesEvaluated   int            `json:"rulesEvaluated"`
	RulesFired       int            `json:"rulesFired"`
	Truncated        bool           `json:"truncated"` // run deadline stopped ticket pickup
	Errors           []string       `json:"errors,omitempty"`
	Tickets          []TicketResult `json:"tickets,omitempty"`
}

// Orchestrator pages through eligible tickets and runs every active rule
// against each. It owns no timer; an external trigger (HTTP endpoint or
// scheduler) calls RunBatch once per desired interval.
//
// Tickets are evaluated concurrently on a bounded worker pool. Rules within
// one ticket stay sequential in ascending priority order against the same
// snapshot; an earlier rule's action can leave that snapshot stale for a
// later rule in the same pass. That approximation is accepted instead of
// re-reading the ticket after every action-producing rule.
type Orchestrator struct {
	rules     RuleStore
	tickets   TicketStore
	evaluator *RuleEvaluator
	log       *zap.SugaredLogger

	workers     int
	limit       int
	runDeadline time.Duration
}

func NewOrchestrator(rules RuleStore, tickets TicketStore, evaluator *RuleEvaluator, log *zap.SugaredLogger) *Orchestrator {
	return &Orchestrator{
		rules:       rules,
		tickets:     tickets,
		evaluator:   evaluator,
		log:         log,
		workers:     DefaultWorkerCount,
		limit:       DefaultBatchLimit,
		runDeadline: DefaultRunDeadline,
	}
}

// WithTunables overrides worker count, default batch limit and per-run
// deadline. Non-positive values keep the defaults.
func (o *Orchestrator) WithTunables(workers, limit int, deadline time.Duration) *Orchestrator {
	if workers > 0 {
		o.workers = workers
	}
	if limit > 0 {
		o.limit = limit
	}
	if deadline > 0 {
		o.runDeadline = deadline
	}
	return o
}

func (o *Orchestrator) getLogger() *zap.SugaredLogger {
	if o.log != nil {
		return o.log
	}
	return zap.S()
}

// RunBatch fetches up to the requested limit of eligible tickets, oldest
// created first, and evaluates all active rules for each. Rule-store or
// ticket-store fetch failures abort the run; everything after that is
// attributed per ticket and per rule. Once the run deadline passes, no new
// tickets are picked up but in-flight evaluations finish, and the partial
// report is returned with Truncated set.
func (o *Orchestrator) RunBatch(ctx context.Context, req BatchRequest) (BatchReport, error) {
	log := o.getLogger()
	started := time.Now()
	report := BatchReport{StartedAt: started}
	metrics.BatchRuns.Inc()

	limit := req.Limit
	if limit <= 0 {
		limit = o.limit
	}
	statusFilter := req.StatusFilter
	if len(statusFilter) == 0 {
		statusFilter = DefaultStatusFilter
	}

	rules, err := o.rules.FetchActiveRules(ctx)
	if err != nil {
		metrics.BatchErrors.Inc()
		return report, errors.Wrap(err, "fetch active rules")
	}
	slices.SortStableFunc(rules, func(a, b EscalationRule) int { return a.Priority - b.Priority })

	tickets, err := o.tickets.FetchEligibleTickets(ctx, statusFilter, limit)
	if err != nil {
		metrics.BatchErrors.Inc()
		return report, errors.Wrap(err, "fetch eligible tickets")
	}

	log.Infow("Starting escalation batch",
		"tickets", len(tickets), "rules", len(rules),
		"statusFilter", statusFilter, "force", req.Force, "workers", o.workers)

	if len(tickets) == 0 || len(rules) == 0 {
		report.Duration = time.Since(started)
		log.Infow("Escalation batch finished with nothing to do", "duration", report.Duration)
		return report, nil
	}

	cutoff := started.Add(o.runDeadline)
	var mu sync.Mutex
	results := make([]TicketResult, 0, len(tickets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)

	scheduled := 0
	for _, ticket := range tickets {
		// Workers still append to results here, so the remaining count is
		// derived from the scheduling position, not the results slice.
		if time.Now().After(cutoff) {
			log.Warnw("Run deadline reached, not picking up remaining tickets",
				"remaining", len(tickets)-scheduled)
			report.Truncated = true
			break
		}
		if gctx.Err() != nil {
			report.Truncated = true
			break
		}
		g.Go(func() error {
			// In-flight evaluations run against the caller's context, not
			// the deadline, so a cutoff mid-ticket never half-applies
			// actions.
			result := o.evaluateTicket(ctx, rules, ticket, req.Force)
			mu.Lock()
			results = append(results, result)
			mu.Unlock()
			return nil
		})
		scheduled++
	}
	_ = g.Wait()

	for _, r := range results {
		report.TicketsProcessed++
		if r.Error != "" {
			report.Errors = append(report.Errors, fmt.Sprintf("ticket %s: %s", r.TicketID, r.Error))
		}
		for _, out := range r.Outcomes {
			report.RulesEvaluated++
			if out.Fired {
				report.RulesFired++
			}
			for _, e := range out.Errors {
				report.Errors = append(report.Errors, fmt.Sprintf("ticket %s rule %s: %s", r.TicketID, out.RuleID, e))
			}
		}
	}
	report.Tickets = results
	report.Duration = time.Since(started)

	metrics.TicketsProcessed.Add(float64(report.TicketsProcessed))
	log.Infow("Escalation batch finished",
		"ticketsProcessed", report.TicketsProcessed,
		"rulesEvaluated", report.RulesEvaluated,
		"rulesFired", report.RulesFired,
		"errors", len(report.Errors),
		"truncated", report.Truncated,
		"duration", report.Duration)
	return report, nil
}

// evaluateTicket runs the rule chain for one ticket. Rules are already in
// ascending priority order; all of them see the snapshot as fetched at the
// start of the pass.
func (o *Orchestrator) evaluateTicket(ctx context.Context, rules []EscalationRule, ticket TicketSnapshot, force bool) TicketResult {
	result := TicketResult{TicketID: ticket.ID}
	var failures []string
	for _, rule := range rules {
		outcome, err := o.evaluator.Evaluate(ctx, rule, ticket, force)
		if err != nil {
			o.getLogger().Errorw("Rule evaluation failed",
				"rule", rule.ID, "ticket", ticket.ID, "error", err)
			failures = append(failures, fmt.Sprintf("rule %s: %v", rule.ID, err))
			continue
		}
		result.Outcomes = append(result.Outcomes, outcome)
	}
	if len(failures) > 0 {
		result.Error = fmt.Sprintf("%d rule evaluation(s) failed: %v", len(failures), failures)
	}
	return result
}
