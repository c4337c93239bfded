package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Model providers.
const (
	ProviderGroq      = "groq"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// Config holds the full application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Model      ModelConfig      `yaml:"model" mapstructure:"model"`
	Groq       GroqConfig       `yaml:"groq" mapstructure:"groq"`
	OpenAI     OpenAIConfig     `yaml:"openai" mapstructure:"openai"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Gemini     GeminiConfig     `yaml:"gemini" mapstructure:"gemini"`
	OCR        OCRConfig        `yaml:"ocr" mapstructure:"ocr"`
	Funders    FundersConfig    `yaml:"funders" mapstructure:"funders"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port             int      `yaml:"port" mapstructure:"port"`
	MaxUploadMB      int      `yaml:"max_upload_mb" mapstructure:"max_upload_mb"`
	ScratchDir       string   `yaml:"scratch_dir" mapstructure:"scratch_dir"`
	CORSOrigins      []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	LocalOrigin      string   `yaml:"local_origin" mapstructure:"local_origin"`
	DockerOrigin     string   `yaml:"docker_origin" mapstructure:"docker_origin"`
	ProductionOrigin string   `yaml:"production_origin" mapstructure:"production_origin"`
	ShutdownSecs     int      `yaml:"shutdown_secs" mapstructure:"shutdown_secs"`
}

// AllowedOrigins returns the configured CORS origins with empty and
// duplicate entries removed.
func (s ServerConfig) AllowedOrigins() []string {
	seen := make(map[string]bool)
	var out []string
	candidates := append([]string{s.LocalOrigin, s.DockerOrigin, s.ProductionOrigin}, s.CORSOrigins...)
	for _, o := range candidates {
		o = strings.TrimSpace(o)
		if o == "" || seen[o] {
			continue
		}
		seen[o] = true
		out = append(out, o)
	}
	return out
}

// ModelConfig selects the language model provider and call policy.
type ModelConfig struct {
	Provider                string   `yaml:"provider" mapstructure:"provider"`
	Name                    string   `yaml:"name" mapstructure:"name"`
	MaxTokens               int64    `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature             *float64 `yaml:"temperature" mapstructure:"temperature"`
	TimeoutSecs             int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries              int      `yaml:"max_retries" mapstructure:"max_retries"`
	InitialBackoffMs        int      `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs            int      `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	RateLimitRPS            float64  `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
	CircuitFailureThreshold int      `yaml:"circuit_failure_threshold" mapstructure:"circuit_failure_threshold"`
	CircuitResetSecs        int      `yaml:"circuit_reset_secs" mapstructure:"circuit_reset_secs"`
}

// GroqConfig holds Groq API settings. Groq speaks the OpenAI chat API.
type GroqConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// OpenAIConfig holds OpenAI API settings.
type OpenAIConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// GeminiConfig holds Google Gemini API settings.
type GeminiConfig struct {
	Key string `yaml:"key" mapstructure:"key"`
}

// OCRConfig configures PDF text extraction.
type OCRConfig struct {
	Provider      string `yaml:"provider" mapstructure:"provider"`
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	MistralKey    string `yaml:"mistral_api_key" mapstructure:"mistral_api_key"`
	MistralModel  string `yaml:"mistral_model" mapstructure:"mistral_model"`
}

// FundersConfig locates the funder directory.
type FundersConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// PipelineConfig configures analysis behavior.
type PipelineConfig struct {
	MinGreenScore       int  `yaml:"min_green_score" mapstructure:"min_green_score"`
	StringAwareRecovery bool `yaml:"string_aware_recovery" mapstructure:"string_aware_recovery"`
}

// PricingConfig holds per-model token pricing.
type PricingConfig struct {
	Models map[string]ModelPricing `yaml:"models" mapstructure:"models"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// MonitoringConfig configures in-process analysis metrics and webhook alerts.
type MonitoringConfig struct {
	Enabled              bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	CostThresholdUSD     float64 `yaml:"cost_threshold_usd" mapstructure:"cost_threshold_usd"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level      string `yaml:"level" mapstructure:"level"`
	Format     string `yaml:"format" mapstructure:"format"`
	File       string `yaml:"file" mapstructure:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" mapstructure:"max_age_days"`
}

// Load reads configuration from .env, config file and environment.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("GREENSCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Conventional variable names used by the providers and the frontend.
	bindings := map[string][]string{
		"groq.key":                 {"GREENSCORE_GROQ_KEY", "GROQ_API_KEY"},
		"openai.key":               {"GREENSCORE_OPENAI_KEY", "OPENAI_API_KEY"},
		"anthropic.key":            {"GREENSCORE_ANTHROPIC_KEY", "ANTHROPIC_API_KEY"},
		"gemini.key":               {"GREENSCORE_GEMINI_KEY", "GEMINI_API_KEY"},
		"ocr.mistral_api_key":      {"GREENSCORE_OCR_MISTRAL_API_KEY", "MISTRAL_API_KEY"},
		"server.local_origin":      {"GREENSCORE_SERVER_LOCAL_ORIGIN", "LOCAL_ORIGIN"},
		"server.docker_origin":     {"GREENSCORE_SERVER_DOCKER_ORIGIN", "DOCKER_ORIGIN"},
		"server.production_origin": {"GREENSCORE_SERVER_PRODUCTION_ORIGIN", "PRODUCTION_ORIGIN"},
		"model.temperature":        {"GREENSCORE_MODEL_TEMPERATURE"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, eris.Wrapf(err, "config: bind env %s", key)
		}
	}

	// Defaults
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.max_upload_mb", 20)
	v.SetDefault("server.scratch_dir", "")
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("server.local_origin", "http://localhost:3000")
	v.SetDefault("server.shutdown_secs", 10)
	v.SetDefault("model.provider", ProviderGroq)
	v.SetDefault("model.name", "meta-llama/llama-4-scout-17b-16e-instruct")
	v.SetDefault("model.max_tokens", 2048)
	v.SetDefault("model.timeout_secs", 60)
	v.SetDefault("model.max_retries", 2)
	v.SetDefault("model.initial_backoff_ms", 500)
	v.SetDefault("model.max_backoff_ms", 5000)
	v.SetDefault("model.rate_limit_rps", 0)
	v.SetDefault("model.circuit_failure_threshold", 0)
	v.SetDefault("model.circuit_reset_secs", 30)
	v.SetDefault("groq.base_url", "https://api.groq.com/openai/v1/")
	v.SetDefault("openai.base_url", "")
	v.SetDefault("anthropic.base_url", "")
	v.SetDefault("ocr.provider", "native")
	v.SetDefault("ocr.pdftotext_path", "pdftotext")
	v.SetDefault("ocr.mistral_model", "mistral-ocr-latest")
	v.SetDefault("funders.path", "data/green_vc_funders.csv")
	v.SetDefault("pipeline.min_green_score", 20)
	v.SetDefault("pipeline.string_aware_recovery", false)
	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.cost_threshold_usd", 0)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the selected provider is known and has credentials,
// and that server settings are usable.
func (c *Config) Validate() error {
	var problems []string

	switch c.Model.Provider {
	case ProviderGroq:
		if c.Groq.Key == "" {
			problems = append(problems, "groq.key is required (GROQ_API_KEY)")
		}
	case ProviderOpenAI:
		if c.OpenAI.Key == "" {
			problems = append(problems, "openai.key is required (OPENAI_API_KEY)")
		}
	case ProviderAnthropic:
		if c.Anthropic.Key == "" {
			problems = append(problems, "anthropic.key is required (ANTHROPIC_API_KEY)")
		}
	case ProviderGemini:
		if c.Gemini.Key == "" {
			problems = append(problems, "gemini.key is required (GEMINI_API_KEY)")
		}
	default:
		problems = append(problems, "model.provider must be one of groq, openai, anthropic, gemini")
	}

	if c.Model.Name == "" {
		problems = append(problems, "model.name is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, "server.port must be between 1 and 65535")
	}
	// Zero is the pipeline's "unset" value and would fall back to 20.
	if c.Pipeline.MinGreenScore < 1 || c.Pipeline.MinGreenScore > 100 {
		problems = append(problems, "pipeline.min_green_score must be between 1 and 100")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger. When cfg.File is set, log
// lines are also written to a rotating file.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}

	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(rotator), zapCfg.Level)
		logger = logger.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			return zapcore.NewTee(core, fileCore)
		}))
	}

	zap.ReplaceGlobals(logger)

	return nil
}
