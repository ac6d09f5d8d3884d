package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Extraction ExtractionConfig `yaml:"extraction" mapstructure:"extraction"`
	Providers  map[string]any   `yaml:"providers" mapstructure:"providers"`
	Mapping    MappingConfig    `yaml:"mapping" mapstructure:"mapping"`
	Document   DocumentConfig   `yaml:"document" mapstructure:"document"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// ExtractionConfig configures provider selection and retry pacing.
type ExtractionConfig struct {
	// Providers is the declared provider list. Its order breaks priority ties.
	Providers []string      `yaml:"providers" mapstructure:"providers"`
	Backoff   BackoffConfig `yaml:"backoff" mapstructure:"backoff"`
}

// BackoffConfig configures the delay between retry attempts against one provider.
type BackoffConfig struct {
	InitialMs      int     `yaml:"initial_ms" mapstructure:"initial_ms"`
	MaxMs          int     `yaml:"max_ms" mapstructure:"max_ms"`
	Multiplier     float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// MappingConfig configures the standard metric mapper.
type MappingConfig struct {
	// RulesFile replaces the built-in mapping rules when set.
	RulesFile string `yaml:"rules_file" mapstructure:"rules_file"`
}

// DocumentConfig configures input document loading.
type DocumentConfig struct {
	PDFExtractor  string `yaml:"pdf_extractor" mapstructure:"pdf_extractor"`
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	MistralKey    string `yaml:"mistral_api_key" mapstructure:"mistral_api_key"`
	MistralModel  string `yaml:"mistral_ocr_model" mapstructure:"mistral_ocr_model"`
	MaxBytes      int    `yaml:"max_bytes" mapstructure:"max_bytes"`
}

// BatchConfig configures multi-document extraction.
type BatchConfig struct {
	MaxConcurrentDocuments int `yaml:"max_concurrent_documents" mapstructure:"max_concurrent_documents"`
}

// MonitoringConfig configures extraction metrics and batch alerts.
type MonitoringConfig struct {
	// MetricsTextfile is written in Prometheus text format after each run when set.
	MetricsTextfile      string  `yaml:"metrics_textfile" mapstructure:"metrics_textfile"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	CostThresholdUSD     float64 `yaml:"cost_threshold_usd" mapstructure:"cost_threshold_usd"`
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment. When configFile is
// empty, config.yaml is looked up in the working directory and is optional.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	// Config file
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Environment
	v.SetEnvPrefix("HEALTHMETRICS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("extraction.providers", []string{})
	v.SetDefault("extraction.backoff.initial_ms", 500)
	v.SetDefault("extraction.backoff.max_ms", 10000)
	v.SetDefault("extraction.backoff.multiplier", 2.0)
	v.SetDefault("extraction.backoff.jitter_fraction", 0.25)
	v.SetDefault("mapping.rules_file", "")
	v.SetDefault("document.pdf_extractor", "local")
	v.SetDefault("document.pdftotext_path", "pdftotext")
	v.SetDefault("document.mistral_ocr_model", "mistral-ocr-latest")
	v.SetDefault("document.max_bytes", 200000)
	v.SetDefault("batch.max_concurrent_documents", 4)
	v.SetDefault("monitoring.metrics_textfile", "")
	v.SetDefault("monitoring.failure_rate_threshold", 0.5)
	v.SetDefault("monitoring.cost_threshold_usd", 0)
	v.SetDefault("monitoring.webhook_url", "")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || configFile != "" {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings outside the provider map, which the Resolver
// validates separately.
func (c *Config) Validate() error {
	var errs []string

	switch c.Document.PDFExtractor {
	case "local", "":
	case "mistral":
		if c.Document.MistralKey == "" {
			errs = append(errs, "document.mistral_api_key is required when document.pdf_extractor is mistral")
		}
	default:
		errs = append(errs, fmt.Sprintf("document.pdf_extractor must be local or mistral, got %q", c.Document.PDFExtractor))
	}
	if c.Document.MaxBytes < 0 {
		errs = append(errs, "document.max_bytes must be >= 0")
	}
	if c.Batch.MaxConcurrentDocuments <= 0 {
		errs = append(errs, "batch.max_concurrent_documents must be > 0")
	}
	b := c.Extraction.Backoff
	if b.InitialMs < 0 || b.MaxMs < 0 {
		errs = append(errs, "extraction.backoff durations must be >= 0")
	}
	if b.JitterFraction < 0 || b.JitterFraction > 1 {
		errs = append(errs, "extraction.backoff.jitter_fraction must be between 0 and 1")
	}

	if m := c.Monitoring.FailureRateThreshold; m < 0 || m > 1 {
		errs = append(errs, "monitoring.failure_rate_threshold must be between 0 and 1")
	}
	if c.Monitoring.CostThresholdUSD < 0 {
		errs = append(errs, "monitoring.cost_threshold_usd must be >= 0")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
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
	zap.ReplaceGlobals(logger)

	return nil
}
