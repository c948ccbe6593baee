package escalation

import "time"

// Priority is the ticket priority on the fixed total order
// low < medium < high < critical.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

var priorityRank = map[Priority]int{
	PriorityLow:      0,
	PriorityMedium:   1,
	PriorityHigh:     2,
	PriorityCritical: 3,
}

// Valid reports whether p is one of the known priority values.
func (p Priority) Valid() bool {
	_, ok := priorityRank[p]
	return ok
}

// Next returns the next step on the priority ladder. Critical is the
// ceiling and returns itself; unknown values also return themselves so a
// bad stored priority never escalates into a different bad one.
func (p Priority) Next() Priority {
	switch p {
	case PriorityLow:
		return PriorityMedium
	case PriorityMedium:
		return PriorityHigh
	case PriorityHigh:
		return PriorityCritical
	default:
		return p
	}
}

// TicketSnapshot is an immutable point-in-time read of a ticket, fetched
// once per batch pass. Actions write back through the TicketStore and never
// mutate the snapshot; sibling rules in the same pass observe the same view.
type TicketSnapshot struct {
	ID            string     `json:"id"`
	Status        string     `json:"status"` // internal status code of the ticket store
	Priority      Priority   `json:"priority"`
	Category      string     `json:"category"`
	AssignedTo    *string    `json:"assignedTo,omitempty"`
	CreatedBy     string     `json:"createdBy"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
	LastCommentAt *time.Time `json:"lastCommentAt,omitempty"`
}

// Assigned reports whether the ticket currently has an assignee.
func (t TicketSnapshot) Assigned() bool {
	return t.AssignedTo != nil && *t.AssignedTo != ""
}

// TicketFieldUpdate is the coalesced set of field writes produced by one
// rule's actions. Nil pointers leave the field untouched; at most one
// UpdateTicketFields call is issued per (rule, ticket) evaluation.
type TicketFieldUpdate struct {
	Priority   *Priority `json:"priority,omitempty"`
	AssignedTo *string   `json:"assignedTo,omitempty"`
	Status     *string   `json:"status,omitempty"`
}

// Empty reports whether the update would write nothing.
func (u TicketFieldUpdate) Empty() bool {
	return u.Priority == nil && u.AssignedTo == nil && u.Status == nil
}
