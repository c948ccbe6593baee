package escalation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helpdesk/escalation-engine/pkg/system"
)

func recordSuccess(t *testing.T, logs *fakeLogStore, ruleID, ticketID string, at time.Time) {
	t.Helper()
	require.NoError(t, logs.Append(context.Background(), EscalationLog{
		ID: "log-" + at.Format("150405"), RuleID: ruleID, TicketID: ticketID,
		Success: true, TriggeredAt: at,
	}))
}

func TestMayFireNeverFiredBefore(t *testing.T) {
	guard := NewCooldownGuard(&fakeLogStore{}, system.NewTestLogger())
	ok, err := guard.MayFire(context.Background(), testRule("r1"), "t1", time.Now())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMayFireRepeatsDisabled(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	logs := &fakeLogStore{}
	recordSuccess(t, logs, "r1", "t1", now.Add(-48*time.Hour))

	guard := NewCooldownGuard(logs, system.NewTestLogger())
	ok, err := guard.MayFire(context.Background(), testRule("r1"), "t1", now)
	require.NoError(t, err)
	assert.False(t, ok, "a one-shot rule never fires twice for the same ticket")

	// The suppression is per pair, not per rule.
	ok, err = guard.MayFire(context.Background(), testRule("r1"), "t2", now)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMayFireRepeatInterval(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	rule := testRule("r1")
	rule.RepeatEscalation = true
	rule.RepeatIntervalMinutes = 60

	logs := &fakeLogStore{}
	recordSuccess(t, logs, "r1", "t1", now.Add(-30*time.Minute))
	guard := NewCooldownGuard(logs, system.NewTestLogger())

	ok, err := guard.MayFire(context.Background(), rule, "t1", now)
	require.NoError(t, err)
	assert.False(t, ok, "half the interval has elapsed")

	ok, err = guard.MayFire(context.Background(), rule, "t1", now.Add(30*time.Minute))
	require.NoError(t, err)
	assert.True(t, ok, "exactly one interval satisfies the cooldown")

	ok, err = guard.MayFire(context.Background(), rule, "t1", now.Add(90*time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMayFireConsultsMostRecentSuccess(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	rule := testRule("r1")
	rule.RepeatEscalation = true
	rule.RepeatIntervalMinutes = 60

	logs := &fakeLogStore{}
	recordSuccess(t, logs, "r1", "t1", now.Add(-3*time.Hour))
	recordSuccess(t, logs, "r1", "t1", now.Add(-10*time.Minute))
	guard := NewCooldownGuard(logs, system.NewTestLogger())

	ok, err := guard.MayFire(context.Background(), rule, "t1", now)
	require.NoError(t, err)
	assert.False(t, ok, "the newest success drives the cooldown")
}

func TestMayFireMaxRepeats(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	rule := testRule("r1")
	rule.RepeatEscalation = true
	rule.RepeatIntervalMinutes = 60
	rule.MaxRepeats = 2

	logs := &fakeLogStore{}
	recordSuccess(t, logs, "r1", "t1", now.Add(-5*time.Hour))
	guard := NewCooldownGuard(logs, system.NewTestLogger())

	ok, err := guard.MayFire(context.Background(), rule, "t1", now)
	require.NoError(t, err)
	assert.True(t, ok, "one success leaves budget")

	recordSuccess(t, logs, "r1", "t1", now.Add(-3*time.Hour))
	ok, err = guard.MayFire(context.Background(), rule, "t1", now)
	require.NoError(t, err)
	assert.False(t, ok, "budget of two is exhausted even though the interval elapsed")
}

func TestMayFireLookupErrorPropagates(t *testing.T) {
	logs := &fakeLogStore{lookupErr: errContext("store down")}
	guard := NewCooldownGuard(logs, system.NewTestLogger())

	ok, err := guard.MayFire(context.Background(), testRule("r1"), "t1", time.Now())
	require.Error(t, err)
	assert.False(t, ok)
	assert.Contains(t, err.Error(), "cooldown lookup")
}
