// Package metrics defines Prometheus metrics for the escalation engine,
// covering batch runs, rule firings and skips, executed actions,
// notification dispatch, audit sinks, and mail delivery.
package metrics
