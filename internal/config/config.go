package config

import (
	"fmt"
	"os"
	"strconv"

	"booktext/internal/logger"
)

type Config struct {
	// Capture settings
	PageTurnDelay   float64 // seconds to wait after each page turn
	ScreenshotDelay float64 // seconds to wait before each screenshot
	PageTurnKey     string  // right, space, pagedown
	CheckInterval   int     // pages between position checks
	SafetyMargin    float64 // inflation applied to estimated totals

	// OCR settings
	OCREngine    string // tesseract, vision
	OCRLanguages string // tesseract language spec, e.g. "jpn+eng"
	Workers      int    // parallel OCR workers (0 = auto)

	// Google Cloud Configuration (vision engine only)
	GoogleCloudProject      string
	GoogleServiceAccountKey string

	// Directories
	InputDir  string
	OutputDir string
	TempDir   string

	// Logging Configuration
	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

func Load() (*Config, error) {
	config := &Config{
		PageTurnDelay:           getEnvFloat("PAGE_TURN_DELAY", 2.0),
		ScreenshotDelay:         getEnvFloat("SCREENSHOT_DELAY", 0.5),
		PageTurnKey:             getEnv("PAGE_TURN_KEY", "right"),
		CheckInterval:           getEnvInt("PROGRESS_CHECK_INTERVAL", 20),
		SafetyMargin:            getEnvFloat("SAFETY_MARGIN", 1.2),
		OCREngine:               getEnv("OCR_ENGINE", "tesseract"),
		OCRLanguages:            getEnv("OCR_LANGUAGES", "jpn+eng"),
		Workers:                 getEnvInt("OCR_WORKERS", 0),
		GoogleCloudProject:      getEnv("GOOGLE_CLOUD_PROJECT", ""),
		GoogleServiceAccountKey: getEnv("GOOGLE_SERVICE_ACCOUNT_KEY", ""),
		InputDir:                getEnv("INPUT_DIR", "input"),
		OutputDir:               getEnv("OUTPUT_DIR", "output"),
		TempDir:                 getEnv("TEMP_DIR", "temp"),
		LogLevel:                getEnv("LOG_LEVEL", "info"),
		LogFormat:               getEnv("LOG_FORMAT", "console"),
		LogTimeFormat:           getEnv("LOG_TIME_FORMAT", "2006-01-02T15:04:05Z07:00"),
		LogOutput:               getEnv("LOG_OUTPUT", "stderr"),
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func (c *Config) validate() error {
	switch c.PageTurnKey {
	case "right", "space", "pagedown":
	default:
		return fmt.Errorf("PAGE_TURN_KEY must be right, space or pagedown, got %q", c.PageTurnKey)
	}
	switch c.OCREngine {
	case "tesseract", "vision":
	default:
		return fmt.Errorf("OCR_ENGINE must be tesseract or vision, got %q", c.OCREngine)
	}
	if c.PageTurnDelay < 0 || c.ScreenshotDelay < 0 {
		return fmt.Errorf("delays must be non-negative")
	}
	if c.CheckInterval <= 0 {
		return fmt.Errorf("PROGRESS_CHECK_INTERVAL must be positive, got %d", c.CheckInterval)
	}
	if c.SafetyMargin < 1.0 {
		return fmt.Errorf("SAFETY_MARGIN must be >= 1.0, got %g", c.SafetyMargin)
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

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
