package sqlite

// schemaSQL is the complete schema for a fresh database. Statements are
// idempotent so Open can run them unconditionally.
//
// The partial unique index on escalation_logs is load-bearing: two
// overlapping batch runs can both pass the advisory cooldown check, and the
// index turns the second successful insert for the same cooldown window into
// a constraint violation the engine treats as "already fired".
const schemaSQL = `
CREATE TABLE IF NOT EXISTS tickets (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	priority TEXT NOT NULL CHECK(priority IN ('low', 'medium', 'high', 'critical')),
	category TEXT NOT NULL DEFAULT '',
	assigned_to TEXT,
	created_by TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	last_comment_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_tickets_status_created ON tickets(status, created_at);

CREATE TABLE IF NOT EXISTS ticket_comments (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ticket_id TEXT NOT NULL,
	author_id TEXT NOT NULL,
	body TEXT NOT NULL,
	internal INTEGER NOT NULL DEFAULT 1,
	created_at DATETIME NOT NULL,
	FOREIGN KEY (ticket_id) REFERENCES tickets(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS escalation_rules (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	active INTEGER NOT NULL DEFAULT 1,
	priority INTEGER NOT NULL DEFAULT 0,
	definition TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS escalation_logs (
	id TEXT PRIMARY KEY,
	rule_id TEXT NOT NULL,
	ticket_id TEXT NOT NULL,
	escalation_type TEXT NOT NULL,
	time_elapsed_minutes INTEGER NOT NULL,
	conditions_snapshot TEXT NOT NULL DEFAULT '',
	actions_snapshot TEXT NOT NULL DEFAULT '',
	success INTEGER NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	triggered_at DATETIME NOT NULL,
	window_bucket INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_escalation_logs_ticket ON escalation_logs(ticket_id, triggered_at);
CREATE INDEX IF NOT EXISTS idx_escalation_logs_pair ON escalation_logs(rule_id, ticket_id, triggered_at);
CREATE UNIQUE INDEX IF NOT EXISTS idx_escalation_logs_window
	ON escalation_logs(rule_id, ticket_id, window_bucket) WHERE success = 1;

CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	email TEXT NOT NULL DEFAULT '',
	roles TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS notifications (
	id TEXT PRIMARY KEY,
	ticket_id TEXT NOT NULL,
	rule_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	subject TEXT NOT NULL DEFAULT '',
	body TEXT NOT NULL DEFAULT '',
	read INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, created_at);
`
