// Package audit emits the engine's operational audit trail (batch runs,
// rule firings and skips, action failures) to pluggable sinks: structured
// logs, an HTTP webhook, or a Kafka topic.
package audit
