package audit

import (
	"time"
)

// EventType represents the type of audit event.
type EventType string

const (
	// === Batch lifecycle events ===
	EventBatchStarted   EventType = "batch.started"
	EventBatchCompleted EventType = "batch.completed"
	EventBatchFailed    EventType = "batch.failed"
	EventBatchTruncated EventType = "batch.truncated"

	// === Rule evaluation events ===
	EventRuleFired     EventType = "rule.fired"
	EventRuleSkipped   EventType = "rule.skipped"
	EventRuleMalformed EventType = "rule.malformed"

	// === Action events ===
	EventTicketUpdated      EventType = "ticket.updated"
	EventTicketUpdateFailed EventType = "ticket.update_failed"
	EventCommentAdded       EventType = "comment.added"
	EventNotificationSent   EventType = "notification.sent"
	EventNotificationFailed EventType = "notification.failed"
	EventDuplicateFiring    EventType = "firing.deduplicated"

	// === System events ===
	EventSystemStartup  EventType = "system.startup"
	EventSystemShutdown EventType = "system.shutdown"
	EventAuditDropped   EventType = "audit.dropped"
)

// Severity represents the severity level of an audit event
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Event represents a single audit event
type Event struct {
	// ID is a unique identifier for this event
	ID string `json:"id"`

	// Type is the type of event
	Type EventType `json:"type"`

	// Severity indicates the importance of the event
	Severity Severity `json:"severity"`

	// Timestamp is when the event occurred
	Timestamp time.Time `json:"timestamp"`

	// RuleID is the escalation rule involved, when applicable
	RuleID string `json:"ruleID,omitempty"`

	// TicketID is the ticket involved, when applicable
	TicketID string `json:"ticketID,omitempty"`

	// Details contains event-specific information
	Details map[string]interface{} `json:"details,omitempty"`
}

// SeverityForEventType returns the default severity for an event type
func SeverityForEventType(eventType EventType) Severity {
	switch eventType {
	case EventBatchFailed, EventAuditDropped:
		return SeverityCritical
	case EventTicketUpdateFailed, EventNotificationFailed, EventRuleMalformed,
		EventBatchTruncated, EventDuplicateFiring:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}
