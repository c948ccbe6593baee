package escalation

import "slices"

// ConditionsMatch evaluates a rule's static predicates against a ticket
// snapshot. All populated predicates are ANDed; an empty condition set
// matches unconditionally. Status values from the rule are normalized
// through the injected vocabulary before comparison so human-readable rule
// slugs tolerate the ticket store's internal codes. Pure, no I/O.
func ConditionsMatch(c RuleConditions, ticket TicketSnapshot, vocab StatusVocabulary) bool {
	if len(c.Status) > 0 && !statusMatches(c.Status, ticket.Status, vocab) {
		return false
	}
	if len(c.Priority) > 0 && !slices.Contains(c.Priority, ticket.Priority) {
		return false
	}
	if len(c.Category) > 0 && !slices.Contains(c.Category, ticket.Category) {
		return false
	}
	if c.AssignedTo != nil {
		if c.AssignedTo.Unassigned {
			if ticket.Assigned() {
				return false
			}
		} else {
			if !ticket.Assigned() || *ticket.AssignedTo != c.AssignedTo.UserID {
				return false
			}
		}
	}
	return true
}

func statusMatches(slugs []string, ticketStatus string, vocab StatusVocabulary) bool {
	for _, slug := range slugs {
		code := slug
		if vocab != nil {
			code, _ = vocab.Normalize(slug)
		}
		if code == ticketStatus {
			return true
		}
	}
	return false
}
