package escalation

import (
	"context"

	"github.com/pkg/errors"
)

// ErrDuplicateFiring is returned by LogStore.Append when a successful row
// for the same (rule, ticket, cooldown window) already exists. Two
// overlapping batch runs can both pass the advisory cooldown check; the
// store's uniqueness key turns that race into this error, which the
// evaluator treats as a normal "already fired" outcome.
var ErrDuplicateFiring = errors.New("duplicate firing for cooldown window")

// TicketStore is the external system of record for tickets.
type TicketStore interface {
	// FetchEligibleTickets returns up to limit tickets whose status is in
	// statusFilter, oldest created first.
	FetchEligibleTickets(ctx context.Context, statusFilter []string, limit int) ([]TicketSnapshot, error)
	// UpdateTicketFields applies the coalesced field writes of one firing.
	UpdateTicketFields(ctx context.Context, ticketID string, fields TicketFieldUpdate) error
}

// RuleStore is the external store of escalation rules.
type RuleStore interface {
	// FetchActiveRules returns all active rules. Callers order them by
	// ascending evaluation priority.
	FetchActiveRules(ctx context.Context) ([]EscalationRule, error)
}

// LogStore persists escalation audit rows. The engine is the sole writer.
type LogStore interface {
	Append(ctx context.Context, entry EscalationLog) error
	MostRecentSuccess(ctx context.Context, ruleID, ticketID string) (*EscalationLog, error)
	CountSuccesses(ctx context.Context, ruleID, ticketID string) (int, error)
	ListByTicket(ctx context.Context, ticketID string) ([]EscalationLog, error)
}

// CommentSink appends internal-only comments to a ticket.
type CommentSink interface {
	AddInternalComment(ctx context.Context, ticketID, authorID, text string) error
}

// NotificationDispatch describes a single outbound notification: one
// recipient on one channel. The engine hands these to a NotificationSink
// and does not persist them itself.
type NotificationDispatch struct {
	ID        string    `json:"id"`
	TicketID  string    `json:"ticketID"`
	RuleID    string    `json:"ruleID"`
	Recipient Recipient `json:"recipient"`
	Channel   Channel   `json:"channel"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
}

// Recipient identifies a notification target. Email may be empty for
// in-app-only users; UserID may be empty for raw email recipients.
type Recipient struct {
	UserID string `json:"userID,omitempty"`
	Email  string `json:"email,omitempty"`
}

// NotificationSink delivers one dispatch per recipient per channel.
// Failures are per-dispatch; the caller decides how to aggregate them.
type NotificationSink interface {
	Dispatch(ctx context.Context, d NotificationDispatch) error
}

// User is a directory entry used for assignment and recipient resolution.
type User struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Email string   `json:"email"`
	Roles []string `json:"roles,omitempty"`
}

// DirectoryResolver resolves users for auto-assignment and role-based
// notification fan-out ("all supervisors", "all managers").
type DirectoryResolver interface {
	UserByID(ctx context.Context, id string) (*User, error)
	UsersByRole(ctx context.Context, role string) ([]User, error)
	// NextAssignee picks the auto-assign target for a ticket category,
	// typically round-robin over the eligible agents.
	NextAssignee(ctx context.Context, category string) (*User, error)
}
