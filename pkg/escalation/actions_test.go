package escalation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helpdesk/escalation-engine/pkg/system"
)

func newTestExecutor(tickets *fakeTicketStore, comments *fakeCommentSink,
	notifier *fakeNotifier, directory *fakeDirectory,
) *ActionExecutor {
	return NewActionExecutor(tickets, comments, notifier, directory, DefaultVocabulary(), system.NewTestLogger())
}

func TestApplyCoalescesFieldWrites(t *testing.T) {
	tickets := newFakeTicketStore()
	agent := User{ID: "agent-7", Email: "agent7@example.com"}
	directory := &fakeDirectory{next: &agent}
	x := newTestExecutor(tickets, &fakeCommentSink{}, &fakeNotifier{}, directory)

	rule := testRule("r1")
	rule.Actions.IncreasePriority = true
	rule.Actions.AutoAssign = true
	rule.Actions.SetStatus = "in progress"

	ticket := testTicket("t1", time.Now())
	success, errs := x.Apply(context.Background(), rule, ticket)
	assert.True(t, success)
	assert.Empty(t, errs)

	updates := tickets.updatesFor("t1")
	require.Len(t, updates, 1, "all field actions coalesce into one write")
	update := updates[0]
	require.NotNil(t, update.Priority)
	assert.Equal(t, PriorityHigh, *update.Priority)
	require.NotNil(t, update.AssignedTo)
	assert.Equal(t, "agent-7", *update.AssignedTo)
	require.NotNil(t, update.Status)
	assert.Equal(t, "in_progress", *update.Status, "status action normalizes through the vocabulary")
}

func TestApplyPriorityCeilingIsNoop(t *testing.T) {
	tickets := newFakeTicketStore()
	x := newTestExecutor(tickets, &fakeCommentSink{}, &fakeNotifier{}, &fakeDirectory{})

	rule := testRule("r1")
	rule.Actions.IncreasePriority = true

	ticket := testTicket("t1", time.Now())
	ticket.Priority = PriorityCritical

	success, errs := x.Apply(context.Background(), rule, ticket)
	assert.True(t, success)
	assert.Empty(t, errs)
	assert.Empty(t, tickets.updatesFor("t1"), "no write when nothing changes")
}

func TestApplyUnchangedFieldsNotWritten(t *testing.T) {
	tickets := newFakeTicketStore()
	x := newTestExecutor(tickets, &fakeCommentSink{}, &fakeNotifier{}, &fakeDirectory{})

	rule := testRule("r1")
	rule.Actions.SetStatus = "open" // ticket is already open

	success, errs := x.Apply(context.Background(), rule, testTicket("t1", time.Now()))
	assert.True(t, success)
	assert.Empty(t, errs)
	assert.Empty(t, tickets.updatesFor("t1"))
}

func TestApplyTicketWriteFailureFlipsSuccess(t *testing.T) {
	tickets := newFakeTicketStore()
	tickets.updateErr = errContext("store unavailable")
	comments := &fakeCommentSink{}
	x := newTestExecutor(tickets, comments, &fakeNotifier{}, &fakeDirectory{})

	rule := testRule("r1")
	rule.Actions.IncreasePriority = true
	rule.Actions.AddComment = "escalated"

	success, errs := x.Apply(context.Background(), rule, testTicket("t1", time.Now()))
	assert.False(t, success)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "update ticket fields")
	require.Len(t, comments.comments, 1, "later actions still run after a failed write")
}

func TestApplyCommentFailureDoesNotFlipSuccess(t *testing.T) {
	tickets := newFakeTicketStore()
	comments := &fakeCommentSink{err: errContext("comment store down")}
	x := newTestExecutor(tickets, comments, &fakeNotifier{}, &fakeDirectory{})

	rule := testRule("r1")
	rule.Actions.IncreasePriority = true
	rule.Actions.AddComment = "escalated"

	success, errs := x.Apply(context.Background(), rule, testTicket("t1", time.Now()))
	assert.True(t, success, "only the ticket write decides success")
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "add internal comment")
	require.Len(t, tickets.updatesFor("t1"), 1)
}

func TestApplyAddsSystemComment(t *testing.T) {
	comments := &fakeCommentSink{}
	x := newTestExecutor(newFakeTicketStore(), comments, &fakeNotifier{}, &fakeDirectory{})

	rule := testRule("r1")
	rule.Actions.AddComment = "SLA breached, escalating"

	success, errs := x.Apply(context.Background(), rule, testTicket("t1", time.Now()))
	assert.True(t, success)
	assert.Empty(t, errs)
	require.Len(t, comments.comments, 1)
	assert.Equal(t, SystemAuthorID, comments.comments[0].authorID)
	assert.Equal(t, "SLA breached, escalating", comments.comments[0].text)
}

func TestApplyAssignToUnresolvableUser(t *testing.T) {
	tickets := newFakeTicketStore()
	directory := &fakeDirectory{users: map[string]User{}}
	x := newTestExecutor(tickets, &fakeCommentSink{}, &fakeNotifier{}, directory)

	rule := testRule("r1")
	rule.Actions.AssignTo = "ghost"

	success, errs := x.Apply(context.Background(), rule, testTicket("t1", time.Now()))
	assert.True(t, success, "a skipped assignment leaves nothing to write")
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "assignee ghost not resolvable")
	assert.Empty(t, tickets.updatesFor("t1"))
}

func TestApplyAutoAssignNoAgents(t *testing.T) {
	tickets := newFakeTicketStore()
	directory := &fakeDirectory{nextErr: errContext("no agents available")}
	x := newTestExecutor(tickets, &fakeCommentSink{}, &fakeNotifier{}, directory)

	rule := testRule("r1")
	rule.Actions.AutoAssign = true

	success, errs := x.Apply(context.Background(), rule, testTicket("t1", time.Now()))
	assert.True(t, success)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "auto assign for category")
	assert.Empty(t, tickets.updatesFor("t1"))
}

func TestApplyAlreadyAssignedToTarget(t *testing.T) {
	tickets := newFakeTicketStore()
	directory := &fakeDirectory{users: map[string]User{"agent-1": {ID: "agent-1"}}}
	x := newTestExecutor(tickets, &fakeCommentSink{}, &fakeNotifier{}, directory)

	rule := testRule("r1")
	rule.Actions.AssignTo = "agent-1"

	agent := "agent-1"
	ticket := testTicket("t1", time.Now())
	ticket.AssignedTo = &agent

	success, errs := x.Apply(context.Background(), rule, ticket)
	assert.True(t, success)
	assert.Empty(t, errs)
	assert.Empty(t, tickets.updatesFor("t1"))
}

func TestApplyNotificationFanOut(t *testing.T) {
	notifier := &fakeNotifier{}
	directory := &fakeDirectory{
		byRole: map[string][]User{
			RoleSupervisor: {{ID: "sup-1", Email: "sup1@example.com"}},
			RoleManager:    {{ID: "mgr-1", Email: "mgr1@example.com"}},
			RoleAdmin:      {{ID: "adm-1", Email: "adm1@example.com"}},
		},
	}
	x := newTestExecutor(newFakeTicketStore(), &fakeCommentSink{}, notifier, directory)

	rule := testRule("r1")
	rule.Name = "first response overdue"
	rule.Actions.NotifySupervisor = true
	rule.Actions.EscalateToManagement = true
	rule.Actions.EmailRecipients = []string{"oncall@example.com"}
	rule.Actions.Channels = []Channel{ChannelEmail}

	success, errs := x.Apply(context.Background(), rule, testTicket("t1", time.Now()))
	assert.True(t, success)
	assert.Empty(t, errs)

	sent := notifier.sent()
	require.Len(t, sent, 4, "one dispatch per recipient per channel")
	for _, d := range sent {
		assert.Equal(t, ChannelEmail, d.Channel)
		assert.Equal(t, "t1", d.TicketID)
		assert.Equal(t, "r1", d.RuleID)
		assert.Contains(t, d.Subject, `escalated by rule "first response overdue"`)
		assert.Contains(t, d.Body, "Priority: medium")
	}
	// Dispatch order is sorted by user id then email.
	assert.Equal(t, "oncall@example.com", sent[0].Recipient.Email)
	assert.Equal(t, "adm-1", sent[1].Recipient.UserID)
	assert.Equal(t, "mgr-1", sent[2].Recipient.UserID)
	assert.Equal(t, "sup-1", sent[3].Recipient.UserID)
}

func TestApplyRecipientsDeduped(t *testing.T) {
	notifier := &fakeNotifier{}
	boss := User{ID: "boss", Email: "boss@example.com"}
	directory := &fakeDirectory{
		byRole: map[string][]User{
			RoleSupervisor: {boss},
			RoleManager:    {boss},
		},
	}
	x := newTestExecutor(newFakeTicketStore(), &fakeCommentSink{}, notifier, directory)

	rule := testRule("r1")
	rule.Actions.NotifySupervisor = true
	rule.Actions.EscalateToManagement = true
	rule.Actions.Channels = []Channel{ChannelInApp}

	_, errs := x.Apply(context.Background(), rule, testTicket("t1", time.Now()))
	assert.Empty(t, errs)
	assert.Len(t, notifier.sent(), 1, "a user holding both roles is notified once")
}

func TestApplyChannelFailureCollected(t *testing.T) {
	notifier := &fakeNotifier{failChannel: ChannelEmail}
	directory := &fakeDirectory{byRole: map[string][]User{
		RoleSupervisor: {{ID: "sup-1", Email: "sup1@example.com"}},
	}}
	x := newTestExecutor(newFakeTicketStore(), &fakeCommentSink{}, notifier, directory)

	rule := testRule("r1")
	rule.Actions.NotifySupervisor = true
	// Default channels: inapp and email.

	success, errs := x.Apply(context.Background(), rule, testTicket("t1", time.Now()))
	assert.True(t, success, "notification failures never flip success")
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "via email")

	sent := notifier.sent()
	require.Len(t, sent, 1, "the in-app dispatch still goes out")
	assert.Equal(t, ChannelInApp, sent[0].Channel)
}

func TestApplySkipsChannelsRecipientCannotReceive(t *testing.T) {
	notifier := &fakeNotifier{}
	x := newTestExecutor(newFakeTicketStore(), &fakeCommentSink{}, notifier, &fakeDirectory{})

	rule := testRule("r1")
	rule.Actions.EmailRecipients = []string{"oncall@example.com"}
	// Default channels are in-app and email; a raw address has no user id
	// for the in-app row.

	success, errs := x.Apply(context.Background(), rule, testTicket("t1", time.Now()))
	assert.True(t, success)
	assert.Empty(t, errs, "no guaranteed failure for the unusable channel")

	sent := notifier.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, ChannelEmail, sent[0].Channel)
	assert.Equal(t, "oncall@example.com", sent[0].Recipient.Email)
}

func TestApplyNotificationsWithoutRecipients(t *testing.T) {
	notifier := &fakeNotifier{}
	directory := &fakeDirectory{byRole: map[string][]User{}}
	x := newTestExecutor(newFakeTicketStore(), &fakeCommentSink{}, notifier, directory)

	rule := testRule("r1")
	rule.Actions.NotifySupervisor = true

	success, errs := x.Apply(context.Background(), rule, testTicket("t1", time.Now()))
	assert.True(t, success)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "resolved no recipients")
	assert.Empty(t, notifier.sent())
}

func TestApplyRoleResolutionFailureReported(t *testing.T) {
	notifier := &fakeNotifier{}
	directory := &fakeDirectory{roleErr: errContext("directory timeout")}
	x := newTestExecutor(newFakeTicketStore(), &fakeCommentSink{}, notifier, directory)

	rule := testRule("r1")
	rule.Actions.NotifySupervisor = true
	rule.Actions.EmailRecipients = []string{"oncall@example.com"}
	rule.Actions.Channels = []Channel{ChannelEmail}

	success, errs := x.Apply(context.Background(), rule, testTicket("t1", time.Now()))
	assert.True(t, success)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "resolve supervisors")
	assert.Len(t, notifier.sent(), 1, "raw email recipients still get notified")
}
