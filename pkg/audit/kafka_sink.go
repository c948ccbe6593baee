package audit

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"
	"go.uber.org/zap"

	"github.com/helpdesk/escalation-engine/pkg/metrics"
)

// KafkaSinkConfig configures a KafkaSink.
type KafkaSinkConfig struct {
	// Name is the identifier for this sink instance.
	Name string

	// Brokers is the list of Kafka broker addresses.
	Brokers []string

	// Topic is the Kafka topic to write audit events to.
	Topic string

	// BatchSize is the number of messages to batch before flushing.
	// Default: 100
	BatchSize int

	// BatchTimeout is the maximum time to wait before flushing a batch.
	// Default: 1 second
	BatchTimeout time.Duration

	// WriteTimeout is the timeout for writing messages.
	// Default: 10 seconds
	WriteTimeout time.Duration

	// TLSEnabled turns on TLS for the broker connection.
	TLSEnabled bool

	// InsecureSkipVerify skips server certificate verification.
	// WARNING: Only use for testing.
	InsecureSkipVerify bool

	// SASLMechanism selects authentication: "", "PLAIN", "SCRAM-SHA-256",
	// "SCRAM-SHA-512".
	SASLMechanism string

	// SASLUsername for SASL authentication.
	SASLUsername string

	// SASLPassword for SASL authentication.
	SASLPassword string
}

// KafkaSink writes audit events to a Kafka topic.
type KafkaSink struct {
	name          string
	writer        *kafka.Writer
	logger        *zap.Logger
	eventsWritten atomic.Int64
	eventsFailed  atomic.Int64
}

// NewKafkaSink creates a KafkaSink from the configuration.
func NewKafkaSink(cfg KafkaSinkConfig, logger *zap.Logger) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka sink requires at least one broker")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka sink requires a topic")
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = time.Second
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}

	mechanism, err := saslMechanism(cfg)
	if err != nil {
		return nil, err
	}

	transport := &kafka.Transport{SASL: mechanism}
	if cfg.TLSEnabled || cfg.InsecureSkipVerify {
		transport.TLS = &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify} // #nosec G402 -- operator opt-in for test clusters
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    batchSize,
		BatchTimeout: batchTimeout,
		WriteTimeout: writeTimeout,
		RequiredAcks: kafka.RequireAll,
		Transport:    transport,
	}

	sink := &KafkaSink{
		name:   cfg.Name,
		writer: writer,
		logger: logger.Named("kafka-sink"),
	}

	sink.logger.Info("Kafka audit sink created",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic", cfg.Topic),
		zap.Int("batchSize", batchSize),
		zap.Duration("batchTimeout", batchTimeout))

	return sink, nil
}

func saslMechanism(cfg KafkaSinkConfig) (sasl.Mechanism, error) {
	switch strings.ToUpper(cfg.SASLMechanism) {
	case "":
		return nil, nil
	case "PLAIN":
		return plain.Mechanism{Username: cfg.SASLUsername, Password: cfg.SASLPassword}, nil
	case "SCRAM-SHA-256":
		return scram.Mechanism(scram.SHA256, cfg.SASLUsername, cfg.SASLPassword)
	case "SCRAM-SHA-512":
		return scram.Mechanism(scram.SHA512, cfg.SASLUsername, cfg.SASLPassword)
	default:
		return nil, fmt.Errorf("unsupported SASL mechanism %q", cfg.SASLMechanism)
	}
}

// Write publishes the audit event to the topic, keyed by ticket id so all
// events of one ticket land in the same partition.
func (s *KafkaSink) Write(ctx context.Context, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		s.eventsFailed.Add(1)
		metrics.AuditEventsFailed.WithLabelValues(s.Name()).Inc()
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}

	key := event.TicketID
	if key == "" {
		key = event.ID
	}

	err = s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: body,
		Time:  event.Timestamp,
	})
	if err != nil {
		s.eventsFailed.Add(1)
		metrics.AuditEventsFailed.WithLabelValues(s.Name()).Inc()
		s.logger.Debug("kafka write failed",
			zap.String("event_id", event.ID),
			zap.String("error", err.Error()))
		return fmt.Errorf("failed to write audit event to kafka: %w", err)
	}

	s.eventsWritten.Add(1)
	metrics.AuditEventsEmitted.WithLabelValues(s.Name()).Inc()
	return nil
}

// Stats returns the sink's write counters.
func (s *KafkaSink) Stats() (written, failed int64) {
	return s.eventsWritten.Load(), s.eventsFailed.Load()
}

// Close flushes and closes the underlying writer.
func (s *KafkaSink) Close() error {
	s.logger.Info("closing kafka audit sink",
		zap.Int64("events_written", s.eventsWritten.Load()),
		zap.Int64("events_failed", s.eventsFailed.Load()))
	return s.writer.Close()
}

// Name returns the sink identifier.
func (s *KafkaSink) Name() string {
	if s.name != "" {
		return s.name
	}
	return "kafka"
}
