// Package sqlite is the bundled store adapter. It implements the engine's
// ticket, rule, log, comment, directory and in-app notification ports on a
// single SQLite database, mainly for self-contained deployments and tests;
// production setups usually adapt the ports to their own ticket system.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/helpdesk/escalation-engine/pkg/escalation"
)

// Store holds the database handle. One Store serves all ports.
type Store struct {
	db  *sql.DB
	log *zap.SugaredLogger
}

// Open opens (and creates if needed) the database at path and applies the
// schema. Use ":memory:" for an ephemeral test database.
func Open(path string, log *zap.SugaredLogger) (*Store, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, errors.Wrapf(err, "create database directory %s", dir)
			}
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, errors.Wrapf(err, "open database %s", path)
	}
	// A single connection sidesteps SQLITE_BUSY under the concurrent worker
	// pool; sqlite serializes writers anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "initialize schema")
	}

	return &Store{db: db, log: log}, nil
}

func (s *Store) getLogger() *zap.SugaredLogger {
	if s.log != nil {
		return s.log
	}
	return zap.S()
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// --- TicketStore ---

// FetchEligibleTickets returns up to limit tickets in the given statuses,
// oldest created first.
func (s *Store) FetchEligibleTickets(ctx context.Context, statusFilter []string, limit int) ([]escalation.TicketSnapshot, error) {
	if len(statusFilter) == 0 {
		return nil, errors.New("status filter must not be empty")
	}
	placeholders := strings.Repeat("?,", len(statusFilter))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]interface{}, 0, len(statusFilter)+1)
	for _, st := range statusFilter {
		args = append(args, st)
	}
	args = append(args, limit)

	query := fmt.Sprintf(`SELECT id, status, priority, category, assigned_to, created_by,
		created_at, updated_at, last_comment_at
		FROM tickets WHERE status IN (%s) ORDER BY created_at ASC LIMIT ?`, placeholders)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query eligible tickets")
	}
	defer func() { _ = rows.Close() }()

	var tickets []escalation.TicketSnapshot
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

func scanTicket(rows *sql.Rows) (escalation.TicketSnapshot, error) {
	var t escalation.TicketSnapshot
	var assignedTo sql.NullString
	var lastComment sql.NullTime
	err := rows.Scan(&t.ID, &t.Status, &t.Priority, &t.Category, &assignedTo,
		&t.CreatedBy, &t.CreatedAt, &t.UpdatedAt, &lastComment)
	if err != nil {
		return t, errors.Wrap(err, "scan ticket row")
	}
	if assignedTo.Valid && assignedTo.String != "" {
		t.AssignedTo = &assignedTo.String
	}
	if lastComment.Valid {
		lc := lastComment.Time
		t.LastCommentAt = &lc
	}
	return t, nil
}

// UpdateTicketFields applies the coalesced field writes of one firing.
func (s *Store) UpdateTicketFields(ctx context.Context, ticketID string, fields escalation.TicketFieldUpdate) error {
	if fields.Empty() {
		return nil
	}

	set := []string{"updated_at = ?"}
	args := []interface{}{time.Now().UTC()}
	if fields.Priority != nil {
		set = append(set, "priority = ?")
		args = append(args, string(*fields.Priority))
	}
	if fields.AssignedTo != nil {
		set = append(set, "assigned_to = ?")
		args = append(args, *fields.AssignedTo)
	}
	if fields.Status != nil {
		set = append(set, "status = ?")
		args = append(args, *fields.Status)
	}
	args = append(args, ticketID)

	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE tickets SET %s WHERE id = ?", strings.Join(set, ", ")), args...)
	if err != nil {
		return errors.Wrapf(err, "update ticket %s", ticketID)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if affected == 0 {
		return errors.Errorf("ticket %s not found", ticketID)
	}
	return nil
}

// SaveTicket inserts or replaces a ticket row. Used by seeding and tests;
// the engine itself only reads and field-updates tickets.
func (s *Store) SaveTicket(ctx context.Context, t escalation.TicketSnapshot) error {
	var assignedTo interface{}
	if t.AssignedTo != nil && *t.AssignedTo != "" {
		assignedTo = *t.AssignedTo
	}
	var lastComment interface{}
	if t.LastCommentAt != nil {
		lastComment = t.LastCommentAt.UTC()
	}
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO tickets
		(id, status, priority, category, assigned_to, created_by, created_at, updated_at, last_comment_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Status, string(t.Priority), t.Category, assignedTo, t.CreatedBy,
		t.CreatedAt.UTC(), t.UpdatedAt.UTC(), lastComment)
	return errors.Wrapf(err, "save ticket %s", t.ID)
}

// GetTicket fetches one ticket by id.
func (s *Store) GetTicket(ctx context.Context, id string) (*escalation.TicketSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, status, priority, category, assigned_to,
		created_by, created_at, updated_at, last_comment_at FROM tickets WHERE id = ?`, id)
	if err != nil {
		return nil, errors.Wrapf(err, "query ticket %s", id)
	}
	defer func() { _ = rows.Close() }()
	if !rows.Next() {
		return nil, rows.Err()
	}
	t, err := scanTicket(rows)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// --- CommentSink ---

// AddInternalComment appends an internal-only comment and advances the
// ticket's last-comment timestamp.
func (s *Store) AddInternalComment(ctx context.Context, ticketID, authorID, text string) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ticket_comments (ticket_id, author_id, body, internal, created_at) VALUES (?, ?, ?, 1, ?)`,
		ticketID, authorID, text, now)
	if err != nil {
		return errors.Wrapf(err, "add comment to ticket %s", ticketID)
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE tickets SET last_comment_at = ?, updated_at = ? WHERE id = ?`, now, now, ticketID)
	return errors.Wrapf(err, "touch ticket %s after comment", ticketID)
}

// --- RuleStore ---

// FetchActiveRules returns all active rules, unordered. Rule bodies live as
// JSON in the definition column; the indexed columns only exist for listing
// and filtering.
func (s *Store) FetchActiveRules(ctx context.Context) ([]escalation.EscalationRule, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT definition FROM escalation_rules WHERE active = 1`)
	if err != nil {
		return nil, errors.Wrap(err, "query active rules")
	}
	defer func() { _ = rows.Close() }()

	var rules []escalation.EscalationRule
	for rows.Next() {
		var definition string
		if err := rows.Scan(&definition); err != nil {
			return nil, errors.Wrap(err, "scan rule row")
		}
		var rule escalation.EscalationRule
		if err := json.Unmarshal([]byte(definition), &rule); err != nil {
			// A corrupt definition must not take down the whole batch.
			s.getLogger().Errorw("Skipping undecodable rule definition", "error", err)
			continue
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// SaveRule inserts or replaces a rule.
func (s *Store) SaveRule(ctx context.Context, rule escalation.EscalationRule) error {
	definition, err := json.Marshal(rule)
	if err != nil {
		return errors.Wrapf(err, "marshal rule %s", rule.ID)
	}
	active := 0
	if rule.Active {
		active = 1
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO escalation_rules (id, name, active, priority, definition) VALUES (?, ?, ?, ?, ?)`,
		rule.ID, rule.Name, active, rule.Priority, string(definition))
	return errors.Wrapf(err, "save rule %s", rule.ID)
}

// --- LogStore ---

// Append inserts one escalation log row. A successful row that collides with
// the cooldown window key of an earlier success maps to ErrDuplicateFiring.
func (s *Store) Append(ctx context.Context, entry escalation.EscalationLog) error {
	success := 0
	if entry.Success {
		success = 1
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO escalation_logs
		(id, rule_id, ticket_id, escalation_type, time_elapsed_minutes,
		 conditions_snapshot, actions_snapshot, success, error_message, triggered_at, window_bucket)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.RuleID, entry.TicketID, entry.EscalationType, entry.TimeElapsedMinutes,
		entry.ConditionsSnapshot, entry.ActionsSnapshot, success, entry.ErrorMessage,
		entry.TriggeredAt.UTC(), entry.WindowBucket)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return escalation.ErrDuplicateFiring
		}
		return errors.Wrapf(err, "append escalation log for ticket %s", entry.TicketID)
	}
	return nil
}

// MostRecentSuccess returns the newest successful firing of a rule on a
// ticket, or nil when it never fired.
func (s *Store) MostRecentSuccess(ctx context.Context, ruleID, ticketID string) (*escalation.EscalationLog, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, rule_id, ticket_id, escalation_type,
		time_elapsed_minutes, conditions_snapshot, actions_snapshot, success, error_message,
		triggered_at, window_bucket
		FROM escalation_logs WHERE rule_id = ? AND ticket_id = ? AND success = 1
		ORDER BY triggered_at DESC LIMIT 1`, ruleID, ticketID)
	if err != nil {
		return nil, errors.Wrap(err, "query most recent success")
	}
	defer func() { _ = rows.Close() }()
	if !rows.Next() {
		return nil, rows.Err()
	}
	entry, err := scanLog(rows)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// CountSuccesses counts successful firings of a rule on a ticket.
func (s *Store) CountSuccesses(ctx context.Context, ruleID, ticketID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM escalation_logs WHERE rule_id = ? AND ticket_id = ? AND success = 1`,
		ruleID, ticketID).Scan(&n)
	return n, errors.Wrap(err, "count successes")
}

// ListByTicket returns all log rows of a ticket, newest first.
func (s *Store) ListByTicket(ctx context.Context, ticketID string) ([]escalation.EscalationLog, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, rule_id, ticket_id, escalation_type,
		time_elapsed_minutes, conditions_snapshot, actions_snapshot, success, error_message,
		triggered_at, window_bucket
		FROM escalation_logs WHERE ticket_id = ? ORDER BY triggered_at DESC`, ticketID)
	if err != nil {
		return nil, errors.Wrap(err, "query logs by ticket")
	}
	defer func() { _ = rows.Close() }()

	var entries []escalation.EscalationLog
	for rows.Next() {
		entry, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func scanLog(rows *sql.Rows) (escalation.EscalationLog, error) {
	var entry escalation.EscalationLog
	var success int
	err := rows.Scan(&entry.ID, &entry.RuleID, &entry.TicketID, &entry.EscalationType,
		&entry.TimeElapsedMinutes, &entry.ConditionsSnapshot, &entry.ActionsSnapshot,
		&success, &entry.ErrorMessage, &entry.TriggeredAt, &entry.WindowBucket)
	if err != nil {
		return entry, errors.Wrap(err, "scan log row")
	}
	entry.Success = success == 1
	return entry, nil
}

// --- DirectoryResolver ---

// UserByID fetches one user, nil when unknown.
func (s *Store) UserByID(ctx context.Context, id string) (*escalation.User, error) {
	var u escalation.User
	var roles string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, email, roles FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Name, &u.Email, &roles)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "query user %s", id)
	}
	u.Roles = splitRoles(roles)
	return &u, nil
}

// UsersByRole returns all users carrying the given role.
func (s *Store) UsersByRole(ctx context.Context, role string) ([]escalation.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, email, roles FROM users ORDER BY id`)
	if err != nil {
		return nil, errors.Wrap(err, "query users")
	}
	defer func() { _ = rows.Close() }()

	var users []escalation.User
	for rows.Next() {
		var u escalation.User
		var roles string
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &roles); err != nil {
			return nil, errors.Wrap(err, "scan user row")
		}
		u.Roles = splitRoles(roles)
		for _, r := range u.Roles {
			if r == role {
				users = append(users, u)
				break
			}
		}
	}
	return users, rows.Err()
}

// NextAssignee picks the auto-assign target: the agent with the fewest
// currently assigned unresolved tickets, ties broken by id. Category is
// accepted for future routing but not used by the bundled directory.
func (s *Store) NextAssignee(ctx context.Context, category string) (*escalation.User, error) {
	agents, err := s.UsersByRole(ctx, escalation.RoleAgent)
	if err != nil {
		return nil, err
	}
	if len(agents) == 0 {
		return nil, errors.New("no agents available for auto-assignment")
	}

	var best *escalation.User
	bestLoad := -1
	for i := range agents {
		var load int
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM tickets WHERE assigned_to = ? AND status NOT IN ('resolved', 'closed')`,
			agents[i].ID).Scan(&load)
		if err != nil {
			return nil, errors.Wrapf(err, "count load of agent %s", agents[i].ID)
		}
		if bestLoad < 0 || load < bestLoad {
			best = &agents[i]
			bestLoad = load
		}
	}
	return best, nil
}

// SaveUser inserts or replaces a directory entry.
func (s *Store) SaveUser(ctx context.Context, u escalation.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO users (id, name, email, roles) VALUES (?, ?, ?, ?)`,
		u.ID, u.Name, u.Email, strings.Join(u.Roles, ","))
	return errors.Wrapf(err, "save user %s", u.ID)
}

func splitRoles(roles string) []string {
	if roles == "" {
		return nil
	}
	parts := strings.Split(roles, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// --- notify.InAppStore ---

// SaveNotification persists an in-app notification row.
func (s *Store) SaveNotification(ctx context.Context, d escalation.NotificationDispatch) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO notifications
		(id, ticket_id, rule_id, user_id, subject, body, read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?)`,
		d.ID, d.TicketID, d.RuleID, d.Recipient.UserID, d.Subject, d.Body, time.Now().UTC())
	return errors.Wrapf(err, "save notification for user %s", d.Recipient.UserID)
}

// UnreadNotifications lists a user's unread in-app notifications, newest
// first.
func (s *Store) UnreadNotifications(ctx context.Context, userID string) ([]escalation.NotificationDispatch, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, ticket_id, rule_id, user_id, subject, body
		FROM notifications WHERE user_id = ? AND read = 0 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "query unread notifications")
	}
	defer func() { _ = rows.Close() }()

	var out []escalation.NotificationDispatch
	for rows.Next() {
		var d escalation.NotificationDispatch
		if err := rows.Scan(&d.ID, &d.TicketID, &d.RuleID, &d.Recipient.UserID, &d.Subject, &d.Body); err != nil {
			return nil, errors.Wrap(err, "scan notification row")
		}
		d.Channel = escalation.ChannelInApp
		out = append(out, d)
	}
	return out, rows.Err()
}
