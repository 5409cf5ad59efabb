/**
 * Configuration for the OCR Text Service
 *
 * Loads configuration from environment variables (optionally seeded from .env)
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Supported OCR engines
const (
	EngineTesseract = "tesseract"
	EngineDoctr     = "doctr"
)

// Config holds service configuration
type Config struct {
	// HTTP server
	HTTPAddr      string
	MaxUploadSize int64

	// OCR engine
	OCREngine      string
	OCRLanguages   []string
	OCRPageSegMode int
	OCRConcurrency int
	DoctrURL       string

	// Document decoding
	PDFRenderDPI int
	PdftoppmPath string
	TempDir      string

	// Processing
	ProcessingTimeout int // milliseconds

	// Redis result cache and async queue (disabled when empty)
	RedisURL          string
	CacheTTL          int // seconds
	QueueName         string
	WorkerConcurrency int

	// PostgreSQL job persistence (disabled when empty)
	DatabaseURL string

	// Logging
	LogLevel  string
	LogFormat string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		HTTPAddr:          getEnvOrDefault("HTTP_ADDR", ":8000"),
		MaxUploadSize:     getEnvAsInt64OrDefault("MAX_UPLOAD_SIZE", 52428800), // 50MB
		OCREngine:         strings.ToLower(getEnvOrDefault("OCR_ENGINE", EngineTesseract)),
		OCRLanguages:      splitList(getEnvOrDefault("OCR_LANGUAGES", "eng")),
		OCRPageSegMode:    getEnvAsIntOrDefault("OCR_PAGE_SEG_MODE", 3), // fully automatic
		OCRConcurrency:    getEnvAsIntOrDefault("OCR_CONCURRENCY", 4),
		DoctrURL:          getEnvOrDefault("DOCTR_URL", ""),
		PDFRenderDPI:      getEnvAsIntOrDefault("PDF_RENDER_DPI", 144),
		PdftoppmPath:      getEnvOrDefault("PDFTOPPM_PATH", "pdftoppm"),
		TempDir:           getEnvOrDefault("TEMP_DIR", os.TempDir()),
		ProcessingTimeout: getEnvAsIntOrDefault("PROCESSING_TIMEOUT", 300000), // 5 minutes
		RedisURL:          getEnvOrDefault("REDIS_URL", ""),
		CacheTTL:          getEnvAsIntOrDefault("CACHE_TTL", 86400),
		QueueName:         getEnvOrDefault("QUEUE_NAME", "ocr:extract"),
		WorkerConcurrency: getEnvAsIntOrDefault("WORKER_CONCURRENCY", 4),
		DatabaseURL:       getEnvOrDefault("DATABASE_URL", ""),
		LogLevel:          getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:         getEnvOrDefault("LOG_FORMAT", "text"),
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.HTTPAddr == "" {
		return fmt.Errorf("HTTP_ADDR is required")
	}

	switch c.OCREngine {
	case EngineTesseract:
		if len(c.OCRLanguages) == 0 {
			return fmt.Errorf("OCR_LANGUAGES must name at least one language")
		}
	case EngineDoctr:
		if c.DoctrURL == "" {
			return fmt.Errorf("DOCTR_URL is required when OCR_ENGINE=%s", EngineDoctr)
		}
	default:
		return fmt.Errorf("OCR_ENGINE must be %q or %q, got %q", EngineTesseract, EngineDoctr, c.OCREngine)
	}

	if c.OCRPageSegMode < 0 || c.OCRPageSegMode > 13 {
		return fmt.Errorf("OCR_PAGE_SEG_MODE must be between 0 and 13, got %d", c.OCRPageSegMode)
	}

	if c.OCRConcurrency < 1 || c.OCRConcurrency > 64 {
		return fmt.Errorf("OCR_CONCURRENCY must be between 1 and 64, got %d", c.OCRConcurrency)
	}

	if c.WorkerConcurrency < 1 || c.WorkerConcurrency > 100 {
		return fmt.Errorf("WORKER_CONCURRENCY must be between 1 and 100, got %d", c.WorkerConcurrency)
	}

	if c.PDFRenderDPI < 72 || c.PDFRenderDPI > 600 {
		return fmt.Errorf("PDF_RENDER_DPI must be between 72 and 600, got %d", c.PDFRenderDPI)
	}

	if c.MaxUploadSize < 1024 || c.MaxUploadSize > 1073741824 { // 1KB to 1GB
		return fmt.Errorf("MAX_UPLOAD_SIZE must be between 1KB and 1GB, got %d", c.MaxUploadSize)
	}

	if c.ProcessingTimeout < 1000 {
		return fmt.Errorf("PROCESSING_TIMEOUT must be at least 1000ms, got %d", c.ProcessingTimeout)
	}

	if c.CacheTTL < 0 {
		return fmt.Errorf("CACHE_TTL must not be negative, got %d", c.CacheTTL)
	}

	return nil
}

// AsyncEnabled reports whether the async queue can run. Queued results are
// only retrievable from the job store, so Redis alone is not enough.
func (c *Config) AsyncEnabled() bool {
	return c.RedisURL != "" && c.DatabaseURL != ""
}

// Timeout returns the per-extraction processing timeout
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.ProcessingTimeout) * time.Millisecond
}

// CacheExpiration returns the result cache TTL
func (c *Config) CacheExpiration() time.Duration {
	return time.Duration(c.CacheTTL) * time.Second
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault gets environment variable as int or returns default
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsInt64OrDefault gets environment variable as int64 or returns default
func getEnvAsInt64OrDefault(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

// splitList splits "eng+deu" or "eng,deu" into language codes
func splitList(value string) []string {
	fields := strings.FieldsFunc(value, func(r rune) bool {
		return r == '+' || r == ',' || r == ' '
	})
	return fields
}
