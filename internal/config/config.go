package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"docsheet/internal/logger"
	"docsheet/internal/ocr"
)

// Config is the runtime configuration. Values come from the environment
// (after .env is loaded) and optionally from a config file; the environment wins.
type Config struct {
	// Google Cloud Configuration
	GoogleCloudProject         string        `mapstructure:"GOOGLE_CLOUD_PROJECT"`
	GoogleCloudLocation        string        `mapstructure:"GOOGLE_CLOUD_LOCATION"`
	DocumentAIProcessorID      string        `mapstructure:"DOCUMENT_AI_PROCESSOR_ID"`
	DocumentAIProcessorVersion string        `mapstructure:"DOCUMENT_AI_PROCESSOR_VERSION"`
	OCREngine                  string        `mapstructure:"OCR_ENGINE"`
	OCRTimeout                 time.Duration `mapstructure:"OCR_TIMEOUT"`

	// Google Sheets Configuration
	GoogleSheetURL       string `mapstructure:"GOOGLE_SHEET_URL"`
	GoogleSheetWorksheet string `mapstructure:"GOOGLE_SHEET_WORKSHEET"`

	// HTTP Configuration
	HTTPAddr       string `mapstructure:"HTTP_ADDR"`
	MaxUploadBytes int64  `mapstructure:"MAX_UPLOAD_BYTES"`

	// Batch Configuration
	BatchWorkers int `mapstructure:"BATCH_WORKERS"`

	// Logging Configuration
	LogLevel      string `mapstructure:"LOG_LEVEL"`
	LogFormat     string `mapstructure:"LOG_FORMAT"`
	LogTimeFormat string `mapstructure:"LOG_TIME_FORMAT"`
	LogOutput     string `mapstructure:"LOG_OUTPUT"`
}

var defaults = map[string]any{
	"GOOGLE_CLOUD_PROJECT":          "",
	"GOOGLE_CLOUD_LOCATION":         "us",
	"DOCUMENT_AI_PROCESSOR_ID":      "",
	"DOCUMENT_AI_PROCESSOR_VERSION": "",
	"OCR_ENGINE":                    ocr.EngineVision,
	"OCR_TIMEOUT":                   "300s",
	"GOOGLE_SHEET_URL":              "",
	"GOOGLE_SHEET_WORKSHEET":        "OCR_Import",
	"HTTP_ADDR":                     ":8080",
	"MAX_UPLOAD_BYTES":              int64(ocr.MaxFileSizeBytes),
	"BATCH_WORKERS":                 4,
	"LOG_LEVEL":                     "info",
	"LOG_FORMAT":                    "console",
	"LOG_TIME_FORMAT":               "2006-01-02T15:04:05Z07:00",
	"LOG_OUTPUT":                    "stderr",
}

// Load reads the configuration. configFile may be empty; when set it must exist
// and may be any format viper understands (yaml, toml, json, env).
func Load(configFile string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	config.OCREngine = strings.ToLower(strings.TrimSpace(config.OCREngine))

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate checks settings that would otherwise fail late.
func (c *Config) Validate() error {
	switch c.OCREngine {
	case ocr.EngineVision:
	case ocr.EngineDocumentAI:
		if c.GoogleCloudProject == "" {
			return errors.New("GOOGLE_CLOUD_PROJECT is required for the documentai engine")
		}
		if c.DocumentAIProcessorID == "" {
			return errors.New("DOCUMENT_AI_PROCESSOR_ID is required for the documentai engine")
		}
	default:
		return fmt.Errorf("OCR_ENGINE must be %q or %q, got %q", ocr.EngineVision, ocr.EngineDocumentAI, c.OCREngine)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.MaxUploadBytes)
	}
	if c.BatchWorkers <= 0 {
		return fmt.Errorf("BATCH_WORKERS must be positive, got %d", c.BatchWorkers)
	}
	if c.OCRTimeout <= 0 {
		return fmt.Errorf("OCR_TIMEOUT must be positive, got %s", c.OCRTimeout)
	}
	return nil
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

// GetDocumentAIConfig returns the Document AI settings.
func (c *Config) GetDocumentAIConfig() ocr.DocumentAIConfig {
	return ocr.DocumentAIConfig{
		ProjectID:        c.GoogleCloudProject,
		Location:         c.GoogleCloudLocation,
		ProcessorID:      c.DocumentAIProcessorID,
		ProcessorVersion: c.DocumentAIProcessorVersion,
		Timeout:          c.OCRTimeout,
	}
}
