package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Recorder builds well-formed audit events and hands them to a Sink.
// A nil Recorder is safe to use and drops every event.
type Recorder struct {
	sink   Sink
	logger *zap.SugaredLogger
}

// NewRecorder creates a Recorder writing to the given sink.
func NewRecorder(sink Sink, logger *zap.SugaredLogger) *Recorder {
	return &Recorder{sink: sink, logger: logger}
}

// Record emits a single event of the given type. Emission failures are
// logged but never propagated so auditing cannot block the engine.
func (r *Recorder) Record(ctx context.Context, eventType EventType, ruleID, ticketID string, details map[string]interface{}) {
	if r == nil || r.sink == nil {
		return
	}

	event := &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Severity:  SeverityForEventType(eventType),
		Timestamp: time.Now().UTC(),
		RuleID:    ruleID,
		TicketID:  ticketID,
		Details:   details,
	}

	if err := r.sink.Write(ctx, event); err != nil && r.logger != nil {
		r.logger.Warnw("failed to emit audit event",
			"event_type", eventType, "error", err.Error())
	}
}

// RecordBatchStarted emits a batch.started event.
func (r *Recorder) RecordBatchStarted(ctx context.Context, limit int, force bool) {
	r.Record(ctx, EventBatchStarted, "", "", map[string]interface{}{
		"limit": limit,
		"force": force,
	})
}

// RecordBatchCompleted emits batch.completed, plus batch.truncated when the
// run hit its deadline before draining the ticket set.
func (r *Recorder) RecordBatchCompleted(ctx context.Context, processed, evaluated, fired int, truncated bool, duration time.Duration) {
	r.Record(ctx, EventBatchCompleted, "", "", map[string]interface{}{
		"tickets_processed": processed,
		"rules_evaluated":   evaluated,
		"rules_fired":       fired,
		"duration_ms":       duration.Milliseconds(),
	})
	if truncated {
		r.Record(ctx, EventBatchTruncated, "", "", map[string]interface{}{
			"tickets_processed": processed,
		})
	}
}

// RecordBatchFailed emits a batch.failed event.
func (r *Recorder) RecordBatchFailed(ctx context.Context, reason string) {
	r.Record(ctx, EventBatchFailed, "", "", map[string]interface{}{
		"reason": reason,
	})
}

// RecordRuleFired emits a rule.fired event.
func (r *Recorder) RecordRuleFired(ctx context.Context, ruleID, ticketID string, elapsedMinutes int, success bool) {
	r.Record(ctx, EventRuleFired, ruleID, ticketID, map[string]interface{}{
		"elapsed_minutes": elapsedMinutes,
		"success":         success,
	})
}

// RecordRuleSkipped emits a rule.skipped event with the skip reason.
func (r *Recorder) RecordRuleSkipped(ctx context.Context, ruleID, ticketID, reason string) {
	r.Record(ctx, EventRuleSkipped, ruleID, ticketID, map[string]interface{}{
		"reason": reason,
	})
}

// RecordDuplicateFiring emits a firing.deduplicated event.
func (r *Recorder) RecordDuplicateFiring(ctx context.Context, ruleID, ticketID string) {
	r.Record(ctx, EventDuplicateFiring, ruleID, ticketID, nil)
}

// RecordStartup emits a system.startup event.
func (r *Recorder) RecordStartup(ctx context.Context, version string) {
	r.Record(ctx, EventSystemStartup, "", "", map[string]interface{}{
		"version": version,
	})
}

// RecordShutdown emits a system.shutdown event.
func (r *Recorder) RecordShutdown(ctx context.Context) {
	r.Record(ctx, EventSystemShutdown, "", "", nil)
}
