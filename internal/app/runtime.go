package app

import (
	"fmt"

	"feedbackbot/internal/config"
	"feedbackbot/internal/distribute"
	"feedbackbot/internal/httpx"
	"feedbackbot/internal/integrations/email"
	"feedbackbot/internal/integrations/llm"
	"feedbackbot/internal/integrations/notion"
	slackbot "feedbackbot/internal/integrations/slack"
	"feedbackbot/internal/logging"
	"feedbackbot/internal/pipeline"
	"feedbackbot/internal/report"
	"feedbackbot/internal/storage/sqlite"

	"go.uber.org/zap"
)

// runtime holds everything a command needs, wired from one Config.
type runtime struct {
	cfg         config.Config
	logger      *zap.Logger
	store       *sqlite.Store
	pipeline    *pipeline.Orchestrator
	distributor *distribute.Distributor
	job         *report.Job
	llmEnabled  bool
}

func newRuntime(logLevel string) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	httpTimeout := httpx.ConfigureExternalHTTPClient(cfg.ExternalHTTPTimeoutSeconds)
	logger.Info("config loaded",
		zap.String("mode", cfg.Mode),
		zap.String("llm_provider", cfg.LLMProvider),
		zap.String("db_path", cfg.DBPath),
		zap.String("report_cron", cfg.ReportCron),
		zap.String("timezone", cfg.Location.String()),
		zap.Duration("external_http_timeout", httpTimeout),
		zap.Bool("slack", cfg.SlackConfigured()),
		zap.Bool("email", cfg.EmailConfigured()),
		zap.Bool("notion", cfg.NotionConfigured()))

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	reasoner, err := llm.New(cfg, logger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("creating llm client: %w", err)
	}

	orch := pipeline.New(store, pipeline.Options{
		Mode:        cfg.Mode,
		Reasoner:    reasoner,
		MaxAttempts: cfg.LLMMaxAttempts,
		CallTimeout: cfg.LLMCallTimeout(),
		Concurrency: cfg.BatchConcurrency,
		Logger:      logger.Named("pipeline"),
	})
	if !orch.Reasoning() {
		logger.Warn("no reasoning provider configured, running deterministic analysis")
	}

	channels := []distribute.Channel{
		slackbot.New(cfg.SlackBotToken, cfg.SlackChannel, logger.Named("slack")),
		email.New(email.Config{
			Host:       cfg.SMTPHost,
			Port:       cfg.SMTPPort,
			Username:   cfg.SMTPUsername,
			Password:   cfg.SMTPPassword,
			Sender:     cfg.EmailSender,
			Recipients: cfg.EmailRecipients,
		}, logger.Named("email")),
		notion.New(cfg.NotionAPIKey, cfg.NotionDatabaseID, cfg.NotionBaseURL, logger.Named("notion")),
	}
	distributor := distribute.New(cfg.ChannelTimeout(), logger.Named("distribute"), channels...)
	synth := report.NewSynthesizer(reasoner, cfg.LLMCallTimeout(), logger.Named("report"))

	return &runtime{
		cfg:         cfg,
		logger:      logger,
		store:       store,
		pipeline:    orch,
		distributor: distributor,
		job:         report.NewJob(store, synth, distributor, cfg.ReportOutputDir, logger.Named("report")),
		llmEnabled:  orch.Reasoning(),
	}, nil
}

func (r *runtime) Close() {
	if err := r.store.Close(); err != nil {
		r.logger.Warn("closing database", zap.Error(err))
	}
	_ = r.logger.Sync()
}
