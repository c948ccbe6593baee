package escalation

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/helpdesk/escalation-engine/pkg/metrics"
	"github.com/helpdesk/escalation-engine/pkg/system"
)

// SystemAuthorID is the author recorded on comments the engine injects.
const SystemAuthorID = "escalation-engine"

// ActionExecutor applies a firing rule's ordered action set against the
// ticket-store, comment and notification collaborators. Actions are
// independent and best-effort: one failure never blocks the next. Field
// writes are coalesced into a single ticket update, and only that write
// decides the overall success of the batch of actions.
type ActionExecutor struct {
	tickets   TicketStore
	comments  CommentSink
	notifier  NotificationSink
	directory DirectoryResolver
	vocab     StatusVocabulary
	log       *zap.SugaredLogger
}

func NewActionExecutor(tickets TicketStore, comments CommentSink, notifier NotificationSink,
	directory DirectoryResolver, vocab StatusVocabulary, log *zap.SugaredLogger,
) *ActionExecutor {
	return &ActionExecutor{
		tickets:   tickets,
		comments:  comments,
		notifier:  notifier,
		directory: directory,
		vocab:     vocab,
		log:       log,
	}
}

func (x *ActionExecutor) getLogger() *zap.SugaredLogger {
	if x.log != nil {
		return x.log
	}
	return zap.S()
}

// Apply runs the rule's actions for the ticket. The returned success flag
// reflects only the coalesced ticket-field write; comment and notification
// failures are reported in errs but never flip it.
func (x *ActionExecutor) Apply(ctx context.Context, rule EscalationRule, ticket TicketSnapshot) (success bool, errs []string) {
	log := x.getLogger().With(system.RuleTicketFields(rule.ID, ticket.ID)...)
	success = true

	update := x.buildFieldUpdate(ctx, rule, ticket, &errs)
	if !update.Empty() {
		if err := x.tickets.UpdateTicketFields(ctx, ticket.ID, update); err != nil {
			log.Errorw("Ticket field write failed", "error", err)
			metrics.ActionFailures.WithLabelValues("ticket_write").Inc()
			errs = append(errs, fmt.Sprintf("update ticket fields: %v", err))
			success = false
		} else {
			log.Infow("Ticket fields updated",
				"priorityChanged", update.Priority != nil,
				"assigneeChanged", update.AssignedTo != nil,
				"statusChanged", update.Status != nil)
			metrics.TicketWrites.Inc()
		}
	}

	if rule.Actions.AddComment != "" {
		if x.comments == nil {
			errs = append(errs, "add comment: no comment sink configured")
		} else if err := x.comments.AddInternalComment(ctx, ticket.ID, SystemAuthorID, rule.Actions.AddComment); err != nil {
			log.Errorw("Internal comment write failed", "error", err)
			metrics.ActionFailures.WithLabelValues("comment").Inc()
			errs = append(errs, fmt.Sprintf("add internal comment: %v", err))
		} else {
			metrics.CommentsAdded.Inc()
		}
	}

	errs = append(errs, x.dispatchNotifications(ctx, rule, ticket)...)
	return success, errs
}

// buildFieldUpdate resolves the priority, assignment and status actions
// into one coalesced write. Fields are only written when they actually
// change.
func (x *ActionExecutor) buildFieldUpdate(ctx context.Context, rule EscalationRule, ticket TicketSnapshot, errs *[]string) TicketFieldUpdate {
	log := x.getLogger().With(system.RuleTicketFields(rule.ID, ticket.ID)...)
	var update TicketFieldUpdate

	if rule.Actions.IncreasePriority {
		next := ticket.Priority.Next()
		if next != ticket.Priority {
			update.Priority = &next
		} else {
			log.Debugw("Priority already at ceiling", "priority", ticket.Priority)
		}
	}

	if target := x.resolveAssignee(ctx, rule, ticket, errs); target != "" {
		if !ticket.Assigned() || *ticket.AssignedTo != target {
			update.AssignedTo = &target
		}
	}

	if rule.Actions.SetStatus != "" {
		code := rule.Actions.SetStatus
		if x.vocab != nil {
			code, _ = x.vocab.Normalize(rule.Actions.SetStatus)
		}
		if code != ticket.Status {
			update.Status = &code
		}
	}

	return update
}

func (x *ActionExecutor) resolveAssignee(ctx context.Context, rule EscalationRule, ticket TicketSnapshot, errs *[]string) string {
	switch {
	case rule.Actions.AssignTo != "":
		if x.directory != nil {
			user, err := x.directory.UserByID(ctx, rule.Actions.AssignTo)
			if err != nil || user == nil {
				metrics.ActionFailures.WithLabelValues("assign").Inc()
				*errs = append(*errs, fmt.Sprintf("assignee %s not resolvable: %v", rule.Actions.AssignTo, err))
				return ""
			}
		}
		return rule.Actions.AssignTo
	case rule.Actions.AutoAssign:
		if x.directory == nil {
			*errs = append(*errs, "auto assign: no directory resolver configured")
			return ""
		}
		user, err := x.directory.NextAssignee(ctx, ticket.Category)
		if err != nil || user == nil {
			metrics.ActionFailures.WithLabelValues("auto_assign").Inc()
			*errs = append(*errs, fmt.Sprintf("auto assign for category %q: %v", ticket.Category, err))
			return ""
		}
		return user.ID
	}
	return ""
}

// dispatchNotifications fans one dispatch per recipient per enabled channel
// out to the notification sink. Channel failures are collected individually
// and abort nothing.
func (x *ActionExecutor) dispatchNotifications(ctx context.Context, rule EscalationRule, ticket TicketSnapshot) []string {
	actions := rule.Actions
	if !actions.NotifySupervisor && !actions.EscalateToManagement && len(actions.EmailRecipients) == 0 {
		return nil
	}

	recipients, errs := resolveRecipients(ctx, x.directory, actions)
	if len(recipients) == 0 {
		if len(errs) == 0 {
			errs = append(errs, fmt.Sprintf("rule %s: notification actions resolved no recipients", rule.ID))
		}
		return errs
	}
	// Stable dispatch order keeps logs and tests deterministic.
	sort.Slice(recipients, func(i, j int) bool {
		if recipients[i].UserID != recipients[j].UserID {
			return recipients[i].UserID < recipients[j].UserID
		}
		return recipients[i].Email < recipients[j].Email
	})

	if x.notifier == nil {
		return append(errs, "notifications enabled but no sink configured")
	}

	subject, body := composeNotification(rule, ticket)
	for _, recipient := range recipients {
		for _, channel := range rule.NotificationChannels() {
			if !canReceive(recipient, channel) {
				continue
			}
			d := NotificationDispatch{
				ID:        uuid.NewString(),
				TicketID:  ticket.ID,
				RuleID:    rule.ID,
				Recipient: recipient,
				Channel:   channel,
				Subject:   subject,
				Body:      body,
			}
			if err := x.notifier.Dispatch(ctx, d); err != nil {
				x.getLogger().Warnw("Notification dispatch failed",
					"rule", rule.ID, "ticket", ticket.ID,
					"channel", channel, "recipient", recipient.UserID+recipient.Email, "error", err)
				metrics.NotificationsFailed.WithLabelValues(string(channel)).Inc()
				errs = append(errs, fmt.Sprintf("notify %s via %s: %v", recipient.Email, channel, err))
				continue
			}
			metrics.NotificationsDispatched.WithLabelValues(string(channel)).Inc()
		}
	}
	return errs
}

// canReceive reports whether the recipient can be addressed on the channel.
// Raw email recipients have no user id for in-app rows, and in-app-only
// users have no address for mail; such combinations are skipped instead of
// producing a guaranteed dispatch failure.
func canReceive(r Recipient, channel Channel) bool {
	switch channel {
	case ChannelInApp:
		return r.UserID != ""
	case ChannelEmail:
		return r.Email != ""
	default:
		return true
	}
}

func composeNotification(rule EscalationRule, ticket TicketSnapshot) (subject, body string) {
	subject = fmt.Sprintf("Ticket %s escalated by rule %q", ticket.ID, rule.Name)
	assignee := "unassigned"
	if ticket.Assigned() {
		assignee = *ticket.AssignedTo
	}
	body = fmt.Sprintf(
		"Escalation rule %q fired for ticket %s.\n\nStatus: %s\nPriority: %s\nCategory: %s\nAssignee: %s\nCreated: %s",
		rule.Name, ticket.ID, ticket.Status, ticket.Priority, ticket.Category, assignee,
		ticket.CreatedAt.Format("2006-01-02 15:04 MST"),
	)
	return subject, body
}
