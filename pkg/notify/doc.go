// Package notify delivers escalation notifications to their channels:
// in-app rows, e-mail via the mail queue, and outbound webhooks. A Router
// fans dispatches out to the sink registered for each channel.
package notify
