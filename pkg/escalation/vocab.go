package escalation

import "strings"

// StatusVocabulary maps human-readable rule status slugs onto the ticket
// store's internal status codes. The table is supplied by the operator, not
// inferred, so vocabulary changes in the ticket store never require engine
// changes.
type StatusVocabulary interface {
	// Normalize returns the internal code for a slug. The second return
	// reports whether the slug was found in the table; unknown slugs pass
	// through unchanged so exact internal codes keep working in rules.
	Normalize(slug string) (string, bool)
}

// TableVocabulary is a fixed, case-insensitive lookup table implementation
// of StatusVocabulary.
type TableVocabulary struct {
	table map[string]string
}

// NewTableVocabulary builds a vocabulary from slug -> internal-code pairs.
func NewTableVocabulary(table map[string]string) *TableVocabulary {
	normalized := make(map[string]string, len(table))
	for slug, code := range table {
		normalized[strings.ToLower(strings.TrimSpace(slug))] = code
	}
	return &TableVocabulary{table: normalized}
}

func (v *TableVocabulary) Normalize(slug string) (string, bool) {
	if v != nil {
		if code, ok := v.table[strings.ToLower(strings.TrimSpace(slug))]; ok {
			return code, true
		}
	}
	return slug, false
}

// DefaultVocabulary covers the common helpdesk synonyms between rule slugs
// and internal status codes. Deployments with their own vocabulary inject a
// replacement table.
func DefaultVocabulary() *TableVocabulary {
	return NewTableVocabulary(map[string]string{
		"open":        "open",
		"new":         "open",
		"in progress": "in_progress",
		"in-progress": "in_progress",
		"inprogress":  "in_progress",
		"pending":     "pending",
		"on hold":     "pending",
		"resolved":    "resolved",
		"closed":      "closed",
	})
}
