package escalation

import (
	"context"
	"sync"
	"time"
)

// Shared in-memory collaborator fakes for the package tests. They are
// mutex-guarded because the orchestrator exercises them concurrently.

type fakeTicketStore struct {
	mu        sync.Mutex
	tickets   []TicketSnapshot
	updates   map[string][]TicketFieldUpdate
	fetchErr  error
	updateErr error
	fetchWait time.Duration
}

func newFakeTicketStore(tickets ...TicketSnapshot) *fakeTicketStore {
	return &fakeTicketStore{tickets: tickets, updates: map[string][]TicketFieldUpdate{}}
}

func (f *fakeTicketStore) FetchEligibleTickets(_ context.Context, statusFilter []string, limit int) ([]TicketSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	allowed := map[string]bool{}
	for _, s := range statusFilter {
		allowed[s] = true
	}
	var out []TicketSnapshot
	for _, t := range f.tickets {
		if allowed[t.Status] && len(out) < limit {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeTicketStore) UpdateTicketFields(_ context.Context, ticketID string, fields TicketFieldUpdate) error {
	if f.fetchWait > 0 {
		time.Sleep(f.fetchWait)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updates[ticketID] = append(f.updates[ticketID], fields)
	return nil
}

func (f *fakeTicketStore) updatesFor(ticketID string) []TicketFieldUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updates[ticketID]
}

type fakeRuleStore struct {
	rules []EscalationRule
	err   error
}

func (f *fakeRuleStore) FetchActiveRules(context.Context) ([]EscalationRule, error) {
	if f.err != nil {
		return nil, f.err
	}
	return append([]EscalationRule(nil), f.rules...), nil
}

type fakeLogStore struct {
	mu            sync.Mutex
	entries       []EscalationLog
	appendErr     error
	lookupErr     error
	enforceWindow bool
	hideSuccesses bool
	appendWait    time.Duration
}

func (f *fakeLogStore) Append(_ context.Context, entry EscalationLog) error {
	if f.appendWait > 0 {
		time.Sleep(f.appendWait)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	if f.enforceWindow && entry.Success {
		for _, e := range f.entries {
			if e.Success && e.RuleID == entry.RuleID && e.TicketID == entry.TicketID && e.WindowBucket == entry.WindowBucket {
				return ErrDuplicateFiring
			}
		}
	}
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeLogStore) MostRecentSuccess(_ context.Context, ruleID, ticketID string) (*EscalationLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	if f.hideSuccesses {
		return nil, nil
	}
	var best *EscalationLog
	for i := range f.entries {
		e := f.entries[i]
		if e.Success && e.RuleID == ruleID && e.TicketID == ticketID {
			if best == nil || e.TriggeredAt.After(best.TriggeredAt) {
				best = &f.entries[i]
			}
		}
	}
	return best, nil
}

func (f *fakeLogStore) CountSuccesses(_ context.Context, ruleID, ticketID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lookupErr != nil {
		return 0, f.lookupErr
	}
	n := 0
	for _, e := range f.entries {
		if e.Success && e.RuleID == ruleID && e.TicketID == ticketID {
			n++
		}
	}
	return n, nil
}

func (f *fakeLogStore) ListByTicket(_ context.Context, ticketID string) ([]EscalationLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []EscalationLog
	for _, e := range f.entries {
		if e.TicketID == ticketID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeLogStore) all() []EscalationLog {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]EscalationLog(nil), f.entries...)
}

type comment struct {
	ticketID string
	authorID string
	text     string
}

type fakeCommentSink struct {
	mu       sync.Mutex
	comments []comment
	err      error
}

func (f *fakeCommentSink) AddInternalComment(_ context.Context, ticketID, authorID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.comments = append(f.comments, comment{ticketID, authorID, text})
	return nil
}

type fakeNotifier struct {
	mu          sync.Mutex
	dispatches  []NotificationDispatch
	failChannel Channel
	err         error
}

func (f *fakeNotifier) Dispatch(_ context.Context, d NotificationDispatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.failChannel != "" && d.Channel == f.failChannel {
		return errContext("channel unavailable")
	}
	f.dispatches = append(f.dispatches, d)
	return nil
}

func (f *fakeNotifier) sent() []NotificationDispatch {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]NotificationDispatch(nil), f.dispatches...)
}

type errContext string

func (e errContext) Error() string { return string(e) }

type fakeDirectory struct {
	users   map[string]User
	byRole  map[string][]User
	next    *User
	nextErr error
	roleErr error
}

func (f *fakeDirectory) UserByID(_ context.Context, id string) (*User, error) {
	if u, ok := f.users[id]; ok {
		return &u, nil
	}
	return nil, nil
}

func (f *fakeDirectory) UsersByRole(_ context.Context, role string) ([]User, error) {
	if f.roleErr != nil {
		return nil, f.roleErr
	}
	return f.byRole[role], nil
}

func (f *fakeDirectory) NextAssignee(context.Context, string) (*User, error) {
	if f.nextErr != nil {
		return nil, f.nextErr
	}
	return f.next, nil
}

// testRule returns a valid always-matching rule that fires after two hours
// of resolution time.
func testRule(id string) EscalationRule {
	return EscalationRule{
		ID:            id,
		Name:          "test rule " + id,
		Active:        true,
		TimeCondition: TimeResolution,
		TimeThreshold: 2,
		TimeUnit:      UnitHours,
	}
}

// testTicket returns an open medium ticket created at the given instant.
func testTicket(id string, createdAt time.Time) TicketSnapshot {
	return TicketSnapshot{
		ID:        id,
		Status:    "open",
		Priority:  PriorityMedium,
		Category:  "billing",
		CreatedBy: "customer-1",
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}
