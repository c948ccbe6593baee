package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Server struct {
	ListenAddress  string   `yaml:"listenAddress"`
	TLSCertFile    string   `yaml:"tlsCertFile"`
	TLSKeyFile     string   `yaml:"tlsKeyFile"`
	TrustedProxies []string `yaml:"trustedProxies"` // IPs/CIDRs to trust for X-Forwarded-For headers
}

// Engine holds the orchestrator tunables. Everything rule-specific stays in
// the rule store.
type Engine struct {
	// BatchLimit caps how many tickets one run inspects.
	BatchLimit int `yaml:"batchLimit"`
	// Workers bounds the ticket-level worker pool.
	Workers int `yaml:"workers"`
	// RunDeadline is the wall-clock budget of one run (e.g. "2m"). Past it
	// the orchestrator stops picking up tickets and returns partial results.
	RunDeadline string `yaml:"runDeadline"`
	// RunInterval enables the built-in interval trigger when non-empty
	// (e.g. "5m"). Leave empty when an external scheduler calls the run
	// endpoint instead.
	RunInterval string `yaml:"runInterval"`
	// StatusFilter overrides the default eligible ticket statuses.
	StatusFilter []string `yaml:"statusFilter"`
	// StatusVocabulary maps human-readable rule status slugs onto the
	// ticket store's internal codes.
	StatusVocabulary map[string]string `yaml:"statusVocabulary"`
}

type Mail struct {
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	User               string `yaml:"user"`
	Password           string `yaml:"password"`
	SenderAddress      string `yaml:"senderAddress"`
	SenderName         string `yaml:"senderName"`
	InsecureSkipVerify bool   `yaml:"insecureSkipVerify"`
	RetryCount         int    `yaml:"retryCount"`
	RetryBackoffMs     int    `yaml:"retryBackoffMs"`
	QueueSize          int    `yaml:"queueSize"`
	QueueMaxRetries    int    `yaml:"queueMaxRetries"`
	QueueBackoffMs     int    `yaml:"queueBackoffMs"`
}

// Enabled reports whether a mail host is configured at all.
func (m Mail) Enabled() bool {
	return m.Host != ""
}

type AuditWebhook struct {
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
	Timeout string            `yaml:"timeout"`
}

type AuditKafka struct {
	Brokers            []string `yaml:"brokers"`
	Topic              string   `yaml:"topic"`
	BatchSize          int      `yaml:"batchSize"`
	TLSEnabled         bool     `yaml:"tlsEnabled"`
	InsecureSkipVerify bool     `yaml:"insecureSkipVerify"`
	SASLMechanism      string   `yaml:"saslMechanism"`
	SASLUsername       string   `yaml:"saslUsername"`
	SASLPassword       string   `yaml:"saslPassword"`
}

type Audit struct {
	Webhook *AuditWebhook `yaml:"webhook"`
	Kafka   *AuditKafka   `yaml:"kafka"`
}

type NotifyWebhook struct {
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
}

type Store struct {
	// SQLitePath is the database file backing tickets, rules, logs and
	// users in the bundled store adapter.
	SQLitePath string `yaml:"sqlitePath"`
}

type Config struct {
	Server        Server         `yaml:"server"`
	Engine        Engine         `yaml:"engine"`
	Mail          Mail           `yaml:"mail"`
	Audit         Audit          `yaml:"audit"`
	NotifyWebhook *NotifyWebhook `yaml:"notifyWebhook"`
	Store         Store          `yaml:"store"`
}

// RunDeadlineDuration parses Engine.RunDeadline, returning fallback when
// unset or unparsable.
func (c Config) RunDeadlineDuration(fallback time.Duration) time.Duration {
	if c.Engine.RunDeadline == "" {
		return fallback
	}
	d, err := time.ParseDuration(c.Engine.RunDeadline)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// RunIntervalDuration parses Engine.RunInterval; zero means the interval
// trigger is disabled.
func (c Config) RunIntervalDuration() time.Duration {
	if c.Engine.RunInterval == "" {
		return 0
	}
	d, err := time.ParseDuration(c.Engine.RunInterval)
	if err != nil || d <= 0 {
		return 0
	}
	return d
}

// Load loads the engine configuration from a file path.
// If configPath is empty, defaults to "./config.yaml".
// The config file path can also be overridden via the ESCALATION_CONFIG_PATH
// environment variable.
func Load(configPath ...string) (Config, error) {
	var path string

	if len(configPath) > 0 && configPath[0] != "" {
		path = configPath[0]
	} else if env := os.Getenv("ESCALATION_CONFIG_PATH"); env != "" {
		path = env
	} else {
		path = "./config.yaml"
	}

	var config Config

	content, err := os.ReadFile(path)
	if err != nil {
		return config, fmt.Errorf("trying to open escalation config file %s: %v", path, err)
	}

	err = yaml.Unmarshal(content, &config)
	if err != nil {
		return config, fmt.Errorf("error unmarshaling YAML %s: %v", path, err)
	}
	return config, nil
}
