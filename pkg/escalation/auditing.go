package escalation

import (
	"context"

	"github.com/helpdesk/escalation-engine/pkg/audit"
)

// AuditedRunner decorates a BatchRunner with audit trail emission. Audit
// failures never influence the run result.
type AuditedRunner struct {
	inner    BatchRunner
	recorder *audit.Recorder
}

func NewAuditedRunner(inner BatchRunner, recorder *audit.Recorder) *AuditedRunner {
	return &AuditedRunner{inner: inner, recorder: recorder}
}

// RunBatch delegates to the wrapped runner and mirrors the run into the
// audit trail: one batch event pair plus one event per fired or skipped rule.
func (a *AuditedRunner) RunBatch(ctx context.Context, req BatchRequest) (BatchReport, error) {
	a.recorder.RecordBatchStarted(ctx, req.Limit, req.Force)

	report, err := a.inner.RunBatch(ctx, req)
	if err != nil {
		a.recorder.RecordBatchFailed(ctx, err.Error())
		return report, err
	}

	for _, ticket := range report.Tickets {
		for _, out := range ticket.Outcomes {
			if out.Fired {
				a.recorder.RecordRuleFired(ctx, out.RuleID, out.TicketID, out.ElapsedMinutes, out.Success)
			} else {
				a.recorder.RecordRuleSkipped(ctx, out.RuleID, out.TicketID, string(out.SkipReason))
			}
		}
	}
	a.recorder.RecordBatchCompleted(ctx, report.TicketsProcessed, report.RulesEvaluated,
		report.RulesFired, report.Truncated, report.Duration)
	return report, nil
}
