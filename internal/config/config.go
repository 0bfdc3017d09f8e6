package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const defaultExternalHTTPTimeout = 90 * time.Second
const defaultExternalHTTPTimeoutSeconds = int(defaultExternalHTTPTimeout / time.Second)

const (
	ModeAuto          = "auto"
	ModeDeterministic = "deterministic"
)

type Config struct {
	// Mode selects the execution path. "deterministic" never calls the
	// reasoning provider; "auto" uses it when one is configured.
	Mode string `yaml:"mode"`

	LLMProvider           string `yaml:"llm_provider"`
	LLMModel              string `yaml:"llm_model"`
	LLMMaxAttempts        int    `yaml:"llm_max_attempts"`
	LLMCallTimeoutSeconds int    `yaml:"llm_call_timeout_seconds"`
	AnthropicAPIKey       string `yaml:"anthropic_api_key"`
	OpenAIAPIKey          string `yaml:"openai_api_key"`
	OpenAIBaseURL         string `yaml:"openai_base_url"`
	GeminiAPIKey          string `yaml:"gemini_api_key"`

	DBPath                     string `yaml:"db_path"`
	ReportOutputDir            string `yaml:"report_output_dir"`
	ReportCron                 string `yaml:"report_cron"`
	Timezone                   string `yaml:"timezone"`
	ListenAddr                 string `yaml:"listen_addr"`
	BatchConcurrency           int    `yaml:"batch_concurrency"`
	ExternalHTTPTimeoutSeconds int    `yaml:"external_http_timeout_seconds"`
	ChannelTimeoutSeconds      int    `yaml:"channel_timeout_seconds"`
	LogLevel                   string `yaml:"log_level"`

	SlackBotToken string `yaml:"slack_bot_token"`
	SlackChannel  string `yaml:"slack_channel"`

	SMTPHost        string   `yaml:"smtp_host"`
	SMTPPort        int      `yaml:"smtp_port"`
	SMTPUsername    string   `yaml:"smtp_username"`
	SMTPPassword    string   `yaml:"smtp_password"`
	EmailSender     string   `yaml:"email_sender"`
	EmailRecipients []string `yaml:"email_recipients"`

	NotionAPIKey     string `yaml:"notion_api_key"`
	NotionDatabaseID string `yaml:"notion_database_id"`
	NotionBaseURL    string `yaml:"notion_base_url"`

	Location *time.Location `yaml:"-"` // computed from Timezone, not from YAML
}

// Load reads config.yaml (or CONFIG_PATH), applies environment overrides and
// defaults, and validates the result. A .env file in the working directory is
// loaded first; it never replaces variables already set in the environment.
func Load() (Config, error) {
	var cfg Config

	_ = godotenv.Load()

	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing %s: %w", configPath, err)
		}
	}

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	envOverride(&cfg.Mode, "MODE")
	if v := os.Getenv("MOCK_MODE"); strings.EqualFold(v, "true") || v == "1" {
		cfg.Mode = ModeDeterministic
	}
	envOverride(&cfg.LLMProvider, "LLM_PROVIDER")
	envOverride(&cfg.LLMModel, "LLM_MODEL")
	collect(envOverrideInt(&cfg.LLMMaxAttempts, "LLM_MAX_ATTEMPTS"))
	collect(envOverrideInt(&cfg.LLMCallTimeoutSeconds, "LLM_CALL_TIMEOUT_SECONDS"))
	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.OpenAIAPIKey, "OPENAI_API_KEY")
	envOverride(&cfg.OpenAIBaseURL, "OPENAI_API_BASE")
	envOverride(&cfg.GeminiAPIKey, "GEMINI_API_KEY")
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverride(&cfg.ReportOutputDir, "REPORT_OUTPUT_DIR")
	envOverride(&cfg.ReportCron, "REPORT_CRON")
	envOverride(&cfg.Timezone, "TIMEZONE")
	envOverride(&cfg.ListenAddr, "LISTEN_ADDR")
	collect(envOverrideInt(&cfg.BatchConcurrency, "BATCH_CONCURRENCY"))
	collect(envOverrideInt(&cfg.ExternalHTTPTimeoutSeconds, "EXTERNAL_HTTP_TIMEOUT_SECONDS"))
	collect(envOverrideInt(&cfg.ChannelTimeoutSeconds, "CHANNEL_TIMEOUT_SECONDS"))
	envOverride(&cfg.LogLevel, "LOG_LEVEL")
	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.SlackChannel, "SLACK_CHANNEL")
	envOverride(&cfg.SMTPHost, "SMTP_SERVER")
	collect(envOverrideInt(&cfg.SMTPPort, "SMTP_PORT"))
	envOverride(&cfg.SMTPUsername, "SMTP_USER")
	envOverride(&cfg.SMTPPassword, "SMTP_PASSWORD")
	envOverride(&cfg.EmailSender, "SENDER_EMAIL")
	envOverrideList(&cfg.EmailRecipients, "EMAIL_RECIPIENTS")
	envOverride(&cfg.NotionAPIKey, "NOTION_API_KEY")
	envOverride(&cfg.NotionDatabaseID, "NOTION_DATABASE_ID")
	envOverride(&cfg.NotionBaseURL, "NOTION_BASE_URL")

	applyDefaults(&cfg)
	collect(cfg.validate())

	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Mode == "" {
		cfg.Mode = ModeAuto
	}
	if cfg.LLMProvider == "" {
		cfg.LLMProvider = inferProvider(*cfg)
	}
	if cfg.LLMMaxAttempts == 0 {
		cfg.LLMMaxAttempts = 3
	}
	if cfg.LLMCallTimeoutSeconds == 0 {
		cfg.LLMCallTimeoutSeconds = 60
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./feedback.db"
	}
	if cfg.ReportOutputDir == "" {
		cfg.ReportOutputDir = "./reports"
	}
	if cfg.ReportCron == "" {
		cfg.ReportCron = "0 9 * * 1"
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Local"
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "127.0.0.1:8000"
	}
	if cfg.BatchConcurrency == 0 {
		cfg.BatchConcurrency = 4
	}
	if cfg.ExternalHTTPTimeoutSeconds == 0 {
		cfg.ExternalHTTPTimeoutSeconds = defaultExternalHTTPTimeoutSeconds
	}
	if cfg.ChannelTimeoutSeconds == 0 {
		cfg.ChannelTimeoutSeconds = 30
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.SlackChannel == "" {
		cfg.SlackChannel = "#feedback-reports"
	}
	if cfg.SMTPHost == "" {
		cfg.SMTPHost = "smtp.gmail.com"
	}
	if cfg.SMTPPort == 0 {
		cfg.SMTPPort = 587
	}
	if cfg.EmailSender == "" {
		cfg.EmailSender = cfg.SMTPUsername
	}
}

// inferProvider picks the first provider that has a key so that setting only
// OPENAI_API_KEY is enough to leave deterministic mode.
func inferProvider(cfg Config) string {
	switch {
	case cfg.AnthropicAPIKey != "":
		return "anthropic"
	case cfg.OpenAIAPIKey != "":
		return "openai"
	case cfg.GeminiAPIKey != "":
		return "gemini"
	}
	return ""
}

func (c *Config) validate() error {
	var errs []error

	switch c.Mode {
	case ModeAuto, ModeDeterministic:
	default:
		errs = append(errs, fmt.Errorf("mode must be '%s' or '%s', got '%s'", ModeAuto, ModeDeterministic, c.Mode))
	}

	switch c.LLMProvider {
	case "":
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			errs = append(errs, errors.New("anthropic_api_key is required when llm_provider=anthropic"))
		}
	case "openai":
		if c.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("openai_api_key is required when llm_provider=openai"))
		}
	case "gemini":
		if c.GeminiAPIKey == "" {
			errs = append(errs, errors.New("gemini_api_key is required when llm_provider=gemini"))
		}
	default:
		errs = append(errs, fmt.Errorf("llm_provider must be 'anthropic', 'openai' or 'gemini', got '%s'", c.LLMProvider))
	}

	if c.LLMMaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("invalid llm_max_attempts '%d': must be >= 1", c.LLMMaxAttempts))
	}
	if c.LLMCallTimeoutSeconds < 1 {
		errs = append(errs, fmt.Errorf("invalid llm_call_timeout_seconds '%d': must be >= 1", c.LLMCallTimeoutSeconds))
	}
	if c.ExternalHTTPTimeoutSeconds < 5 {
		errs = append(errs, fmt.Errorf("invalid external_http_timeout_seconds '%d': must be >= 5", c.ExternalHTTPTimeoutSeconds))
	}
	if c.ChannelTimeoutSeconds < 1 {
		errs = append(errs, fmt.Errorf("invalid channel_timeout_seconds '%d': must be >= 1", c.ChannelTimeoutSeconds))
	}
	if c.BatchConcurrency < 1 {
		errs = append(errs, fmt.Errorf("invalid batch_concurrency '%d': must be >= 1", c.BatchConcurrency))
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(c.ReportCron); err != nil {
		errs = append(errs, fmt.Errorf("invalid report_cron '%s': %w", c.ReportCron, err))
	}

	if strings.EqualFold(c.Timezone, "Local") {
		c.Location = time.Local
	} else {
		loc, err := time.LoadLocation(c.Timezone)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid timezone '%s': %w", c.Timezone, err))
		} else {
			c.Location = loc
		}
	}

	return errors.Join(errs...)
}

// ReasoningEnabled reports whether the pipeline should call a reasoning provider.
func (c Config) ReasoningEnabled() bool {
	return c.Mode != ModeDeterministic && c.LLMProvider != ""
}

func (c Config) SlackConfigured() bool {
	return c.SlackBotToken != ""
}

func (c Config) EmailConfigured() bool {
	return c.SMTPHost != "" && c.EmailSender != "" && len(c.EmailRecipients) > 0
}

func (c Config) NotionConfigured() bool {
	return c.NotionAPIKey != "" && c.NotionDatabaseID != ""
}

func (c Config) LLMCallTimeout() time.Duration {
	return time.Duration(c.LLMCallTimeoutSeconds) * time.Second
}

func (c Config) ChannelTimeout() time.Duration {
	return time.Duration(c.ChannelTimeoutSeconds) * time.Second
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) error {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", envKey, val, err)
		}
		*field = parsed
	}
	return nil
}

func envOverrideList(field *[]string, envKey string) {
	val := os.Getenv(envKey)
	if val == "" {
		return
	}
	*field = nil
	for _, part := range strings.Split(val, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			*field = append(*field, part)
		}
	}
}
