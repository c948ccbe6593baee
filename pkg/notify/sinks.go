package notify

import (
	"context"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/helpdesk/escalation-engine/pkg/escalation"
	"github.com/helpdesk/escalation-engine/pkg/mail"
)

// Router dispatches each notification to the sink registered for its
// channel. It implements escalation.NotificationSink.
type Router struct {
	sinks map[escalation.Channel]escalation.NotificationSink
	log   *zap.SugaredLogger
}

func NewRouter(log *zap.SugaredLogger) *Router {
	return &Router{sinks: map[escalation.Channel]escalation.NotificationSink{}, log: log}
}

// Register binds a sink to a channel, replacing any previous binding.
func (r *Router) Register(channel escalation.Channel, sink escalation.NotificationSink) *Router {
	r.sinks[channel] = sink
	return r
}

func (r *Router) Dispatch(ctx context.Context, d escalation.NotificationDispatch) error {
	sink, ok := r.sinks[d.Channel]
	if !ok {
		return errors.Errorf("no sink registered for channel %q", d.Channel)
	}
	return sink.Dispatch(ctx, d)
}

// InAppStore persists in-app notification rows; the bundled sqlite store
// implements it.
type InAppStore interface {
	SaveNotification(ctx context.Context, d escalation.NotificationDispatch) error
}

// InAppSink writes notifications into the in-app store.
type InAppSink struct {
	store InAppStore
	log   *zap.SugaredLogger
}

func NewInAppSink(store InAppStore, log *zap.SugaredLogger) *InAppSink {
	return &InAppSink{store: store, log: log}
}

func (s *InAppSink) Dispatch(ctx context.Context, d escalation.NotificationDispatch) error {
	if d.Recipient.UserID == "" {
		return errors.Errorf("in-app notification %s has no recipient user id", d.ID)
	}
	if err := s.store.SaveNotification(ctx, d); err != nil {
		return errors.Wrapf(err, "save in-app notification %s", d.ID)
	}
	s.log.Debugw("In-app notification stored", "id", d.ID, "user", d.Recipient.UserID, "ticket", d.TicketID)
	return nil
}

// EmailSink renders a dispatch into the escalation mail template and hands
// it to the asynchronous mail queue.
type EmailSink struct {
	queue        *mail.Queue
	brandingName string
	log          *zap.SugaredLogger
}

func NewEmailSink(queue *mail.Queue, brandingName string, log *zap.SugaredLogger) *EmailSink {
	return &EmailSink{queue: queue, brandingName: brandingName, log: log}
}

func (s *EmailSink) Dispatch(_ context.Context, d escalation.NotificationDispatch) error {
	if d.Recipient.Email == "" {
		return errors.Errorf("email notification %s has no recipient address", d.ID)
	}
	body, err := mail.RenderEscalation(mail.EscalationMailParams{
		TicketID:     d.TicketID,
		Summary:      d.Body,
		BrandingName: s.brandingName,
	})
	if err != nil {
		return errors.Wrapf(err, "render escalation mail %s", d.ID)
	}
	return s.queue.Enqueue(d.ID, []string{d.Recipient.Email}, d.Subject, body)
}

// WebhookSink POSTs each dispatch as JSON to an external endpoint, e.g. a
// chat bridge or an SMS gateway.
type WebhookSink struct {
	client *resty.Client
	url    string
	log    *zap.SugaredLogger
}

func NewWebhookSink(url string, headers map[string]string, log *zap.SugaredLogger) *WebhookSink {
	client := resty.New().SetHeader("Content-Type", "application/json")
	for k, v := range headers {
		client.SetHeader(k, v)
	}
	return &WebhookSink{client: client, url: url, log: log}
}

func (s *WebhookSink) Dispatch(ctx context.Context, d escalation.NotificationDispatch) error {
	resp, err := s.client.R().SetContext(ctx).SetBody(d).Post(s.url)
	if err != nil {
		return errors.Wrapf(err, "post notification %s to %s", d.ID, s.url)
	}
	if resp.IsError() {
		return errors.Errorf("webhook %s returned status %d for notification %s", s.url, resp.StatusCode(), d.ID)
	}
	s.log.Debugw("Webhook notification delivered", "id", d.ID, "status", resp.StatusCode())
	return nil
}

// DropSink acknowledges dispatches without delivering them. It backs
// channels that are configured off so rule evaluation still succeeds.
type DropSink struct {
	log *zap.SugaredLogger
}

func NewDropSink(log *zap.SugaredLogger) *DropSink { return &DropSink{log: log} }

func (s *DropSink) Dispatch(_ context.Context, d escalation.NotificationDispatch) error {
	s.log.Debugw("Notification channel disabled, dropping dispatch",
		"id", d.ID, "channel", d.Channel, "ticket", d.TicketID)
	return nil
}

var _ escalation.NotificationSink = (*Router)(nil)
var _ escalation.NotificationSink = (*InAppSink)(nil)
var _ escalation.NotificationSink = (*EmailSink)(nil)
var _ escalation.NotificationSink = (*WebhookSink)(nil)
var _ escalation.NotificationSink = (*DropSink)(nil)
