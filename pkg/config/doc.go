// Package config loads the escalation engine's own tunables from a YAML
// file. Rule semantics (thresholds, working hours, recipients) live in
// escalation rule rows, not here.
package config
