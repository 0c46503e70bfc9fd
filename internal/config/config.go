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
	Extract    ExtractConfig    `yaml:"extract" mapstructure:"extract"`
	Mistral    MistralConfig    `yaml:"mistral" mapstructure:"mistral"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Scoring    ScoringConfig    `yaml:"scoring" mapstructure:"scoring"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// ExtractConfig configures PDF text extraction.
type ExtractConfig struct {
	EnableOCR     bool   `yaml:"enable_ocr" mapstructure:"enable_ocr"`
	OCRLanguage   string `yaml:"ocr_language" mapstructure:"ocr_language"`
	OCRProvider   string `yaml:"ocr_provider" mapstructure:"ocr_provider"`
	OCRMaxPages   int    `yaml:"ocr_max_pages" mapstructure:"ocr_max_pages"`
	OCRDPI        int    `yaml:"ocr_dpi" mapstructure:"ocr_dpi"`
	MaxFileSizeMB int    `yaml:"max_file_size_mb" mapstructure:"max_file_size_mb"`
	MinChars      int    `yaml:"min_chars" mapstructure:"min_chars"`
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	PdfToPPMPath  string `yaml:"pdftoppm_path" mapstructure:"pdftoppm_path"`
	TesseractPath string `yaml:"tesseract_path" mapstructure:"tesseract_path"`
}

// MistralConfig holds Mistral OCR API settings, used when
// extract.ocr_provider is "mistral".
type MistralConfig struct {
	Key               string `yaml:"key" mapstructure:"key"`
	Model             string `yaml:"model" mapstructure:"model"`
	BaseURL           string `yaml:"base_url" mapstructure:"base_url"`
	RequestsPerMinute int    `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
	MaxAttempts       int    `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// CacheConfig configures the content-addressed text cache.
type CacheConfig struct {
	Enabled    bool   `yaml:"enabled" mapstructure:"enabled"`
	Dir        string `yaml:"dir" mapstructure:"dir"`
	MaxAgeDays int    `yaml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `yaml:"compress" mapstructure:"compress"`
	Index      string `yaml:"index" mapstructure:"index"`
}

// BatchConfig controls the batch coordinator.
type BatchConfig struct {
	Workers   int     `yaml:"workers" mapstructure:"workers"`
	MinScore  float64 `yaml:"min_score" mapstructure:"min_score"`
	ChunkSize int     `yaml:"chunk_size" mapstructure:"chunk_size"`
}

// ScoringConfig holds relevance scoring weights.
type ScoringConfig struct {
	ContextWeight   float64 `yaml:"context_weight" mapstructure:"context_weight"`
	DensityWeight   float64 `yaml:"density_weight" mapstructure:"density_weight"`
	PositionWeight  float64 `yaml:"position_weight" mapstructure:"position_weight"`
	ActTypeBonus    float64 `yaml:"act_type_bonus" mapstructure:"act_type_bonus"`
	ReviewThreshold float64 `yaml:"review_threshold" mapstructure:"review_threshold"`
	CandidateFactor float64 `yaml:"candidate_factor" mapstructure:"candidate_factor"`
}

// StoreConfig configures the run history backend. An empty driver disables it.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP endpoint for metrics and run history.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	MetricsAddr string   `yaml:"metrics_addr" mapstructure:"metrics_addr"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// MonitoringConfig configures the run health checker started by serve.
type MonitoringConfig struct {
	Enabled                  bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL               string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold     float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	DocumentFailureThreshold float64 `yaml:"document_failure_threshold" mapstructure:"document_failure_threshold"`
	StalledAfterMinutes      int     `yaml:"stalled_after_minutes" mapstructure:"stalled_after_minutes"`
	LookbackWindowHours      int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	CheckIntervalSecs        int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("GAZETTE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("extract.enable_ocr", false)
	v.SetDefault("extract.ocr_language", "por")
	v.SetDefault("extract.ocr_provider", "local")
	v.SetDefault("extract.ocr_max_pages", 10)
	v.SetDefault("extract.ocr_dpi", 300)
	v.SetDefault("extract.max_file_size_mb", 100)
	v.SetDefault("extract.min_chars", 50)
	v.SetDefault("extract.pdftotext_path", "pdftotext")
	v.SetDefault("extract.pdftoppm_path", "pdftoppm")
	v.SetDefault("extract.tesseract_path", "tesseract")
	v.SetDefault("mistral.model", "pixtral-large-latest")
	v.SetDefault("mistral.base_url", "https://api.mistral.ai/v1")
	v.SetDefault("mistral.requests_per_minute", 30)
	v.SetDefault("mistral.max_attempts", 3)
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.dir", ".gazette-cache")
	v.SetDefault("cache.max_age_days", 30)
	v.SetDefault("cache.compress", false)
	v.SetDefault("cache.index", "sqlite")
	v.SetDefault("batch.workers", 0)
	v.SetDefault("batch.min_score", 0.3)
	v.SetDefault("batch.chunk_size", 0)
	v.SetDefault("scoring.context_weight", 0.4)
	v.SetDefault("scoring.density_weight", 0.3)
	v.SetDefault("scoring.position_weight", 0.2)
	v.SetDefault("scoring.act_type_bonus", 0.1)
	v.SetDefault("scoring.review_threshold", 0.6)
	v.SetDefault("scoring.candidate_factor", 0.8)
	v.SetDefault("store.driver", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.document_failure_threshold", 0.10)
	v.SetDefault("monitoring.stalled_after_minutes", 120)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

// Validate checks the settings a command mode depends on. Known modes are
// "scan", "cache", "runs" and "serve".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "scan":
		errs = append(errs, c.validateExtract()...)
		errs = append(errs, c.validateCache()...)
		if c.Batch.Workers < 0 || c.Batch.Workers > 256 {
			errs = append(errs, "batch.workers must be between 0 and 256")
		}
		if c.Batch.MinScore < 0 || c.Batch.MinScore > 1 {
			errs = append(errs, "batch.min_score must be between 0 and 1")
		}
		if c.Batch.ChunkSize < 0 {
			errs = append(errs, "batch.chunk_size must be >= 0")
		}
		if c.Scoring.CandidateFactor <= 0 || c.Scoring.CandidateFactor > 1 {
			errs = append(errs, "scoring.candidate_factor must be in (0, 1]")
		}
	case "cache":
		errs = append(errs, c.validateCache()...)
	case "runs":
		errs = append(errs, c.validateStore()...)
		if c.Store.Driver == "" {
			errs = append(errs, "store.driver is required")
		}
	case "serve":
		errs = append(errs, c.validateStore()...)
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
		if c.Monitoring.Enabled {
			if c.Store.Driver == "" {
				errs = append(errs, "store.driver is required when monitoring is enabled")
			}
			if c.Monitoring.FailureRateThreshold < 0 || c.Monitoring.FailureRateThreshold > 1 {
				errs = append(errs, "monitoring.failure_rate_threshold must be between 0 and 1")
			}
			if c.Monitoring.DocumentFailureThreshold < 0 || c.Monitoring.DocumentFailureThreshold > 1 {
				errs = append(errs, "monitoring.document_failure_threshold must be between 0 and 1")
			}
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateExtract() []string {
	var errs []string
	if c.Extract.MaxFileSizeMB <= 0 {
		errs = append(errs, "extract.max_file_size_mb must be > 0")
	}
	if c.Extract.MinChars < 1 {
		errs = append(errs, "extract.min_chars must be >= 1")
	}
	if c.Extract.EnableOCR {
		switch c.Extract.OCRProvider {
		case "local", "":
			if c.Extract.OCRLanguage == "" {
				errs = append(errs, "extract.ocr_language is required when OCR is enabled")
			}
		case "mistral":
			if c.Mistral.Key == "" {
				errs = append(errs, "mistral.key is required for the mistral OCR provider")
			}
		default:
			errs = append(errs, fmt.Sprintf("extract.ocr_provider %q is not supported", c.Extract.OCRProvider))
		}
	}
	return errs
}

func (c *Config) validateCache() []string {
	var errs []string
	if !c.Cache.Enabled {
		return nil
	}
	if c.Cache.Dir == "" {
		errs = append(errs, "cache.dir is required when the cache is enabled")
	}
	if c.Cache.MaxAgeDays < 0 {
		errs = append(errs, "cache.max_age_days must be >= 0")
	}
	switch c.Cache.Index {
	case "sqlite", "json", "":
	default:
		errs = append(errs, fmt.Sprintf("cache.index %q must be sqlite or json", c.Cache.Index))
	}
	return errs
}

func (c *Config) validateStore() []string {
	switch c.Store.Driver {
	case "", "sqlite":
		return nil
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return []string{"store.database_url is required for postgres"}
		}
		return nil
	default:
		return []string{fmt.Sprintf("store.driver %q must be sqlite or postgres", c.Store.Driver)}
	}
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
