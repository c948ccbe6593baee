package escalation

import (
	"encoding/json"
	"time"
)

// EscalationLog is the append-only audit record of one firing attempt.
// Every evaluation that reaches the "should execute" decision produces
// exactly one row, whether or not the actions succeed.
type EscalationLog struct {
	ID                 string    `json:"id"`
	RuleID             string    `json:"ruleID"`
	TicketID           string    `json:"ticketID"`
	EscalationType     string    `json:"escalationType"` // the matched time condition
	TimeElapsedMinutes int       `json:"timeElapsedMinutes"`
	ConditionsSnapshot string    `json:"conditionsSnapshot,omitempty"`
	ActionsSnapshot    string    `json:"actionsSnapshot,omitempty"`
	Success            bool      `json:"success"`
	ErrorMessage       string    `json:"errorMessage,omitempty"`
	TriggeredAt        time.Time `json:"triggeredAt"`

	// WindowBucket partitions time by the rule's repeat interval so the log
	// store can enforce at-most-one successful firing per cooldown window
	// with a unique key on (ruleID, ticketID, windowBucket). Zero for
	// non-repeating rules, which may only ever fire once per pair.
	WindowBucket int64 `json:"windowBucket"`
}

// BucketFor computes the cooldown window bucket for a firing at the given
// instant. Non-repeating rules always bucket to zero.
func BucketFor(rule EscalationRule, at time.Time) int64 {
	if !rule.RepeatEscalation || rule.RepeatIntervalMinutes <= 0 {
		return 0
	}
	return at.Unix() / int64(rule.RepeatIntervalMinutes*60)
}

// snapshotJSON renders a conditions or actions value for the audit row.
// Marshal failures degrade to an empty snapshot rather than blocking the
// log write.
func snapshotJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
