package main

import (
	"context"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/helpdesk/escalation-engine/pkg/api"
	"github.com/helpdesk/escalation-engine/pkg/audit"
	"github.com/helpdesk/escalation-engine/pkg/config"
	"github.com/helpdesk/escalation-engine/pkg/escalation"
	"github.com/helpdesk/escalation-engine/pkg/mail"
	"github.com/helpdesk/escalation-engine/pkg/notify"
	"github.com/helpdesk/escalation-engine/pkg/ratelimit"
	"github.com/helpdesk/escalation-engine/pkg/store/sqlite"
	"github.com/helpdesk/escalation-engine/pkg/system"
)

func main() {
	var configPath string
	var debug bool

	root := &cobra.Command{
		Use:   "escalationd",
		Short: "Helpdesk escalation engine",
		RunE: func(_ *cobra.Command, _ []string) error {
			return run(configPath, debug)
		},
	}
	root.Flags().StringVar(&configPath, "config", "", "Path to config file")
	root.Flags().BoolVar(&debug, "debug", false, "Enable debug level logging")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(configPath string, debug bool) error {
	zl := setupLogger(debug)
	defer func() { _ = zl.Sync() }()
	log := zl.Sugar()
	log.With("version", system.Version).Info("Starting escalation engine")

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Error loading escalation engine config: %v", err)
	}
	if debug {
		log.Infof("%#v", cfg)
	}

	dbPath := cfg.Store.SQLitePath
	if dbPath == "" {
		dbPath = "./escalation.db"
	}
	store, err := sqlite.Open(dbPath, log)
	if err != nil {
		log.Fatalf("Error opening store at %s: %v", dbPath, err)
	}
	defer func() { _ = store.Close() }()

	vocab := escalation.DefaultVocabulary()
	if len(cfg.Engine.StatusVocabulary) > 0 {
		vocab = escalation.NewTableVocabulary(cfg.Engine.StatusVocabulary)
	}

	// Notification channels. Channels without backing config fall back to a
	// drop sink so firings still succeed.
	var mailQueue *mail.Queue
	router := notify.NewRouter(log).
		Register(escalation.ChannelInApp, notify.NewInAppSink(store, log))
	if cfg.Mail.Enabled() {
		mailQueue = mail.NewQueue(mail.NewSender(cfg.Mail), log,
			cfg.Mail.QueueMaxRetries, cfg.Mail.QueueBackoffMs, cfg.Mail.QueueSize)
		mailQueue.Start()
		router.Register(escalation.ChannelEmail, notify.NewEmailSink(mailQueue, cfg.Mail.SenderName, log))
	} else {
		log.Info("Mail not configured, email notifications are dropped")
		router.Register(escalation.ChannelEmail, notify.NewDropSink(log))
	}
	if cfg.NotifyWebhook != nil && cfg.NotifyWebhook.URL != "" {
		router.Register(escalation.ChannelWebhook, notify.NewWebhookSink(cfg.NotifyWebhook.URL, cfg.NotifyWebhook.Headers, log))
	} else {
		router.Register(escalation.ChannelWebhook, notify.NewDropSink(log))
	}

	auditSink, err := buildAuditSink(cfg, zl)
	if err != nil {
		log.Fatalf("Error building audit sinks: %v", err)
	}
	defer func() { _ = auditSink.Close() }()
	recorder := audit.NewRecorder(auditSink, log)

	exec := escalation.NewActionExecutor(store, store, router, store, vocab, log)
	evaluator := escalation.NewRuleEvaluator(
		escalation.NewTimeCalculator(nil, log),
		escalation.NewCooldownGuard(store, log),
		exec, store, vocab, log)
	orchestrator := escalation.NewOrchestrator(store, store, evaluator, log).
		WithTunables(cfg.Engine.Workers, cfg.Engine.BatchLimit,
			cfg.RunDeadlineDuration(escalation.DefaultRunDeadline))
	runner := escalation.NewAuditedRunner(orchestrator, recorder)

	queryLimiter := ratelimit.New(ratelimit.DefaultQueryConfig())
	defer queryLimiter.Stop()
	triggerLimiter := ratelimit.New(ratelimit.DefaultTriggerConfig())
	defer triggerLimiter.Stop()

	server := api.NewServer(zl, cfg, debug)
	err = server.RegisterAll([]api.APIController{
		escalation.NewAPIController(log, runner, store, store).
			WithMiddleware(queryLimiter.Middleware()).
			WithTriggerLimiter(triggerLimiter.Middleware()),
	})
	if err != nil {
		log.Fatalf("Error registering controllers: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if interval := cfg.RunIntervalDuration(); interval > 0 {
		statusFilter := cfg.Engine.StatusFilter
		go intervalRunner(ctx, log, runner, interval, statusFilter)
	} else {
		log.Info("Interval trigger disabled, batches run via POST /api/escalation/run only")
	}

	recorder.RecordStartup(ctx, system.Version)

	// Serve until SIGINT/SIGTERM, then drain.
	errCh := make(chan error, 1)
	go func() { errCh <- server.Listen() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Infow("Shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			log.Errorw("HTTP server failed", "error", err)
		}
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warnw("HTTP server shutdown incomplete", "error", err)
	}
	if mailQueue != nil {
		if err := mailQueue.Stop(shutdownCtx); err != nil {
			log.Warnw("Mail queue shutdown incomplete", "error", err)
		}
	}
	recorder.RecordShutdown(shutdownCtx)
	return nil
}

// intervalRunner triggers a batch on a fixed period. The engine itself owns
// no timer; this is just a built-in convenience scheduler.
func intervalRunner(ctx context.Context, log *zap.SugaredLogger, runner escalation.BatchRunner,
	interval time.Duration, statusFilter []string,
) {
	log.Infow("Interval trigger enabled", "interval", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("Interval trigger stopped")
			return
		case <-ticker.C:
			if _, err := runner.RunBatch(ctx, escalation.BatchRequest{StatusFilter: statusFilter}); err != nil {
				log.Errorw("Scheduled batch run failed", "error", err)
			}
		}
	}
}

func buildAuditSink(cfg config.Config, zl *zap.Logger) (audit.Sink, error) {
	sinks := []audit.Sink{audit.NewLogSink(zl)}

	if wh := cfg.Audit.Webhook; wh != nil && wh.URL != "" {
		timeout, _ := time.ParseDuration(wh.Timeout)
		sinks = append(sinks, audit.NewWebhookSink(audit.WebhookSinkConfig{
			Name:    "webhook",
			URL:     wh.URL,
			Headers: wh.Headers,
			Timeout: timeout,
		}, zl))
	}
	if k := cfg.Audit.Kafka; k != nil && len(k.Brokers) > 0 {
		kafkaSink, err := audit.NewKafkaSink(audit.KafkaSinkConfig{
			Name:               "kafka",
			Brokers:            k.Brokers,
			Topic:              k.Topic,
			BatchSize:          k.BatchSize,
			TLSEnabled:         k.TLSEnabled,
			InsecureSkipVerify: k.InsecureSkipVerify,
			SASLMechanism:      k.SASLMechanism,
			SASLUsername:       k.SASLUsername,
			SASLPassword:       k.SASLPassword,
		}, zl)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, kafkaSink)
	}

	if len(sinks) == 1 {
		return sinks[0], nil
	}
	return audit.NewMultiSink(sinks, zl), nil
}

func setupLogger(debug bool) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.UTC().Format(time.RFC3339))
	}
	cfg.EncoderConfig.TimeKey = "ts"
	logger, err := cfg.Build()
	if err != nil {
		stdlog.Fatalf("failed to set up logger: %v", err)
	}
	return logger
}
