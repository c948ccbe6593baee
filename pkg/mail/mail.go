package mail

import (
	"crypto/tls"
	"log"
	"math"
	"time"

	"gopkg.in/gomail.v2"

	"github.com/helpdesk/escalation-engine/pkg/config"
	"github.com/helpdesk/escalation-engine/pkg/metrics"
)

type Sender interface {
	Send(receivers []string, subject, body string) error
	GetHost() string
	GetPort() int
}

type sender struct {
	dialer         *gomail.Dialer
	senderAddress  string
	senderName     string
	retryCount     int
	retryBackoffMs int
}

func NewSender(cfg config.Mail) Sender {
	log.Printf("[mail] Initializing new mail sender for host: %s, port: %d, user: %s", cfg.Host, cfg.Port, cfg.User)
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password)
	if cfg.InsecureSkipVerify {
		log.Printf("[mail] InsecureSkipVerify is enabled for mail TLS connection")
		d.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	}
	senderAddr := cfg.SenderAddress
	if senderAddr == "" {
		senderAddr = "noreply@helpdesk.local"
	}
	senderName := cfg.SenderName
	if senderName == "" {
		senderName = "Helpdesk Escalations"
	}

	retryCount := cfg.RetryCount
	if retryCount <= 0 {
		retryCount = 3
	}
	retryBackoffMs := cfg.RetryBackoffMs
	if retryBackoffMs <= 0 {
		retryBackoffMs = 100
	}

	log.Printf("[mail] Retry configuration: count=%d, initialBackoffMs=%d", retryCount, retryBackoffMs)

	return &sender{
		dialer:         d,
		senderAddress:  senderAddr,
		senderName:     senderName,
		retryCount:     retryCount,
		retryBackoffMs: retryBackoffMs,
	}
}

func (s *sender) Send(receivers []string, subject, body string) error {
	log.Printf("[mail] Preparing to send mail to %d receivers. Subject: %s", len(receivers), subject)
	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", s.senderAddress, s.senderName)
	msg.SetHeader("Bcc", receivers...)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", body)

	var lastErr error
	backoffMs := s.retryBackoffMs

	for attempt := 0; attempt <= s.retryCount; attempt++ {
		err := s.dialer.DialAndSend(msg)
		if err == nil {
			log.Printf("[mail] Mail sent successfully to %d receivers on attempt %d", len(receivers), attempt+1)
			metrics.MailSendSuccess.WithLabelValues(s.GetHost()).Inc()
			return nil
		}

		lastErr = err
		if attempt < s.retryCount {
			log.Printf("[mail] Send attempt %d failed: %v. Retrying in %dms...", attempt+1, err, backoffMs)
			time.Sleep(time.Duration(backoffMs) * time.Millisecond)
			backoffMs = int(math.Min(float64(backoffMs)*2, 32000))
		} else {
			log.Printf("[mail] Failed to send mail after %d attempts: %v", s.retryCount+1, err)
		}
	}

	metrics.MailSendFailure.WithLabelValues(s.GetHost()).Inc()
	return lastErr
}

func (s *sender) GetHost() string {
	return s.dialer.Host
}

func (s *sender) GetPort() int {
	return s.dialer.Port
}
