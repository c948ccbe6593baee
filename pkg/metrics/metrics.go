package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Batch orchestration metrics
	BatchRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "escalation_batch_runs_total",
		Help: "Total number of escalation batch runs triggered",
	})
	BatchErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "escalation_batch_errors_total",
		Help: "Total number of escalation batch runs aborted by a fatal store error",
	})
	TicketsProcessed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "escalation_tickets_processed_total",
		Help: "Total number of tickets evaluated across all batch runs",
	})

	// Rule evaluation metrics
	RulesFired = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "escalation_rules_fired_total",
		Help: "Total number of rule firings",
	}, []string{"rule"})
	RulesSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "escalation_rules_skipped_total",
		Help: "Total number of rule evaluations that did not fire, by reason",
	}, []string{"reason"})
	DuplicateFirings = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "escalation_duplicate_firings_total",
		Help: "Total number of firings deduplicated by the log store's cooldown window key",
	})

	// Action metrics
	TicketWrites = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "escalation_ticket_writes_total",
		Help: "Total number of coalesced ticket field writes",
	})
	CommentsAdded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "escalation_comments_added_total",
		Help: "Total number of internal comments injected by rule actions",
	})
	ActionFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "escalation_action_failures_total",
		Help: "Total number of failed rule actions, by action kind",
	}, []string{"action"})

	// Notification metrics
	NotificationsDispatched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "escalation_notifications_dispatched_total",
		Help: "Total number of notifications handed to a sink, by channel",
	}, []string{"channel"})
	NotificationsFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "escalation_notifications_failed_total",
		Help: "Total number of notification dispatches that failed, by channel",
	}, []string{"channel"})

	// Audit trail metrics
	AuditEventsEmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "escalation_audit_events_emitted_total",
		Help: "Total number of audit events written, by sink",
	}, []string{"sink"})
	AuditEventsFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "escalation_audit_events_failed_total",
		Help: "Total number of audit events a sink failed to write",
	}, []string{"sink"})

	// Mail metrics
	MailSendSuccess = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "escalation_mail_send_success_total",
		Help: "Total number of successful mail sends",
	}, []string{"host"})
	MailSendFailure = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "escalation_mail_send_failure_total",
		Help: "Total number of failed mail sends",
	}, []string{"host"})
	MailQueued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "escalation_mail_queued_total",
		Help: "Total number of mails enqueued for asynchronous delivery",
	}, []string{"host"})
	MailQueueDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "escalation_mail_queue_dropped_total",
		Help: "Total number of mails dropped because the queue was full or shutting down",
	}, []string{"host"})
	MailSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "escalation_mail_sent_total",
		Help: "Total number of queued mails delivered",
	}, []string{"host"})
	MailFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "escalation_mail_failed_total",
		Help: "Total number of queued mails that exhausted their retries",
	}, []string{"host"})
	MailRetryScheduled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "escalation_mail_retry_scheduled_total",
		Help: "Total number of mail delivery retries scheduled",
	}, []string{"host"})

	// API metrics
	APIEndpointRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "escalation_api_requests_total",
		Help: "Total number of API requests, by endpoint",
	}, []string{"endpoint"})
	APIEndpointErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "escalation_api_errors_total",
		Help: "Total number of API errors, by endpoint and status",
	}, []string{"endpoint", "status"})
	APIEndpointDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "escalation_api_request_duration_seconds",
		Help:    "API request latency, by endpoint",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})
)

func init() {
	prometheus.MustRegister(BatchRuns)
	prometheus.MustRegister(BatchErrors)
	prometheus.MustRegister(TicketsProcessed)
	prometheus.MustRegister(RulesFired)
	prometheus.MustRegister(RulesSkipped)
	prometheus.MustRegister(DuplicateFirings)
	prometheus.MustRegister(TicketWrites)
	prometheus.MustRegister(CommentsAdded)
	prometheus.MustRegister(ActionFailures)
	prometheus.MustRegister(NotificationsDispatched)
	prometheus.MustRegister(NotificationsFailed)
	prometheus.MustRegister(AuditEventsEmitted)
	prometheus.MustRegister(AuditEventsFailed)
	prometheus.MustRegister(MailSendSuccess)
	prometheus.MustRegister(MailSendFailure)
	prometheus.MustRegister(MailQueued)
	prometheus.MustRegister(MailQueueDropped)
	prometheus.MustRegister(MailSent)
	prometheus.MustRegister(MailFailed)
	prometheus.MustRegister(MailRetryScheduled)
	prometheus.MustRegister(APIEndpointRequests)
	prometheus.MustRegister(APIEndpointErrors)
	prometheus.MustRegister(APIEndpointDuration)
}

// MetricsHandler returns an http.Handler exposing Prometheus metrics.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
