package escalation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConditionsMatchEmptySetMatchesAll(t *testing.T) {
	ticket := testTicket("t1", time.Now())
	assert.True(t, ConditionsMatch(RuleConditions{}, ticket, DefaultVocabulary()))
}

func TestConditionsMatchStatus(t *testing.T) {
	vocab := DefaultVocabulary()
	ticket := testTicket("t1", time.Now())
	ticket.Status = "in_progress"

	assert.True(t, ConditionsMatch(RuleConditions{Status: []string{"in progress"}}, ticket, vocab),
		"rule slugs normalize through the vocabulary")
	assert.True(t, ConditionsMatch(RuleConditions{Status: []string{"in_progress"}}, ticket, vocab),
		"exact internal codes pass through unknown slugs")
	assert.True(t, ConditionsMatch(RuleConditions{Status: []string{"closed", "In-Progress"}}, ticket, vocab),
		"any listed status suffices, case-insensitively")
	assert.False(t, ConditionsMatch(RuleConditions{Status: []string{"open", "pending"}}, ticket, vocab))

	assert.True(t, ConditionsMatch(RuleConditions{Status: []string{"in_progress"}}, ticket, nil),
		"nil vocabulary compares raw values")
}

func TestConditionsMatchPriorityAndCategory(t *testing.T) {
	ticket := testTicket("t1", time.Now())

	assert.True(t, ConditionsMatch(RuleConditions{Priority: []Priority{PriorityMedium, PriorityHigh}}, ticket, nil))
	assert.False(t, ConditionsMatch(RuleConditions{Priority: []Priority{PriorityCritical}}, ticket, nil))

	assert.True(t, ConditionsMatch(RuleConditions{Category: []string{"billing"}}, ticket, nil))
	assert.False(t, ConditionsMatch(RuleConditions{Category: []string{"technical"}}, ticket, nil))
}

func TestConditionsMatchAssignee(t *testing.T) {
	unassigned := testTicket("t1", time.Now())
	agent := "agent-1"
	assigned := testTicket("t2", time.Now())
	assigned.AssignedTo = &agent

	wantUnassigned := RuleConditions{AssignedTo: &AssigneeCondition{Unassigned: true}}
	assert.True(t, ConditionsMatch(wantUnassigned, unassigned, nil))
	assert.False(t, ConditionsMatch(wantUnassigned, assigned, nil))

	wantAgent := RuleConditions{AssignedTo: &AssigneeCondition{UserID: "agent-1"}}
	assert.True(t, ConditionsMatch(wantAgent, assigned, nil))
	assert.False(t, ConditionsMatch(wantAgent, unassigned, nil))

	wantOther := RuleConditions{AssignedTo: &AssigneeCondition{UserID: "agent-2"}}
	assert.False(t, ConditionsMatch(wantOther, assigned, nil))

	// An empty assignee string counts as unassigned.
	empty := ""
	blank := testTicket("t3", time.Now())
	blank.AssignedTo = &empty
	assert.True(t, ConditionsMatch(wantUnassigned, blank, nil))
}

func TestConditionsMatchAreANDed(t *testing.T) {
	ticket := testTicket("t1", time.Now())

	both := RuleConditions{
		Status:   []string{"open"},
		Priority: []Priority{PriorityMedium},
	}
	assert.True(t, ConditionsMatch(both, ticket, DefaultVocabulary()))

	both.Priority = []Priority{PriorityCritical}
	assert.False(t, ConditionsMatch(both, ticket, DefaultVocabulary()),
		"one failing predicate fails the whole set")
}

func TestTableVocabulary(t *testing.T) {
	vocab := NewTableVocabulary(map[string]string{"  On Hold ": "pending"})

	code, ok := vocab.Normalize("on hold")
	assert.True(t, ok)
	assert.Equal(t, "pending", code)

	code, ok = vocab.Normalize("ON HOLD")
	assert.True(t, ok)
	assert.Equal(t, "pending", code)

	code, ok = vocab.Normalize("escalated")
	assert.False(t, ok)
	assert.Equal(t, "escalated", code, "unknown slugs pass through")
}
