package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	for _, key := range []string{
		"HTTP_ADDR", "OCR_ENGINE", "OCR_LANGUAGES", "OCR_CONCURRENCY", "PDF_RENDER_DPI",
		"MAX_UPLOAD_SIZE", "PROCESSING_TIMEOUT", "REDIS_URL", "DATABASE_URL", "DOCTR_URL",
	} {
		t.Setenv(key, "")
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.HTTPAddr != ":8000" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.OCREngine != EngineTesseract {
		t.Errorf("OCREngine = %q", cfg.OCREngine)
	}
	if len(cfg.OCRLanguages) != 1 || cfg.OCRLanguages[0] != "eng" {
		t.Errorf("OCRLanguages = %v", cfg.OCRLanguages)
	}
	if cfg.PDFRenderDPI != 144 {
		t.Errorf("PDFRenderDPI = %d", cfg.PDFRenderDPI)
	}
	if cfg.Timeout() != 5*time.Minute {
		t.Errorf("Timeout = %v", cfg.Timeout())
	}
	if cfg.CacheExpiration() != 24*time.Hour {
		t.Errorf("CacheExpiration = %v", cfg.CacheExpiration())
	}
	if cfg.RedisURL != "" || cfg.DatabaseURL != "" {
		t.Errorf("optional backends should default to disabled")
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("OCR_LANGUAGES", "eng+deu,fra")
	t.Setenv("OCR_CONCURRENCY", "8")
	t.Setenv("OCR_ENGINE", "DocTR")
	t.Setenv("DOCTR_URL", "http://doctr:8080")
	t.Setenv("MAX_UPLOAD_SIZE", "not-a-number")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if strings.Join(cfg.OCRLanguages, ",") != "eng,deu,fra" {
		t.Errorf("OCRLanguages = %v", cfg.OCRLanguages)
	}
	if cfg.OCRConcurrency != 8 {
		t.Errorf("OCRConcurrency = %d", cfg.OCRConcurrency)
	}
	if cfg.OCREngine != EngineDoctr {
		t.Errorf("OCREngine = %q", cfg.OCREngine)
	}
	if cfg.MaxUploadSize != 52428800 {
		t.Errorf("invalid number should fall back to default, got %d", cfg.MaxUploadSize)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			HTTPAddr:          ":8000",
			MaxUploadSize:     1 << 20,
			OCREngine:         EngineTesseract,
			OCRLanguages:      []string{"eng"},
			OCRPageSegMode:    3,
			OCRConcurrency:    2,
			PDFRenderDPI:      144,
			ProcessingTimeout: 60000,
			WorkerConcurrency: 2,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"unknown engine", func(c *Config) { c.OCREngine = "paddle" }, "OCR_ENGINE"},
		{"doctr without url", func(c *Config) { c.OCREngine = EngineDoctr }, "DOCTR_URL"},
		{"no languages", func(c *Config) { c.OCRLanguages = nil }, "OCR_LANGUAGES"},
		{"bad psm", func(c *Config) { c.OCRPageSegMode = 14 }, "OCR_PAGE_SEG_MODE"},
		{"zero concurrency", func(c *Config) { c.OCRConcurrency = 0 }, "OCR_CONCURRENCY"},
		{"low dpi", func(c *Config) { c.PDFRenderDPI = 10 }, "PDF_RENDER_DPI"},
		{"tiny upload limit", func(c *Config) { c.MaxUploadSize = 10 }, "MAX_UPLOAD_SIZE"},
		{"short timeout", func(c *Config) { c.ProcessingTimeout = 5 }, "PROCESSING_TIMEOUT"},
		{"negative ttl", func(c *Config) { c.CacheTTL = -1 }, "CACHE_TTL"},
		{"workers", func(c *Config) { c.WorkerConcurrency = 101 }, "WORKER_CONCURRENCY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error mentioning %s, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestAsyncEnabled(t *testing.T) {
	tests := []struct {
		name        string
		redisURL    string
		databaseURL string
		want        bool
	}{
		{"no backends", "", "", false},
		{"redis only", "redis://localhost:6379", "", false},
		{"database only", "", "postgres://localhost/ocr", false},
		{"redis and database", "redis://localhost:6379", "postgres://localhost/ocr", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{RedisURL: tt.redisURL, DatabaseURL: tt.databaseURL}
			if got := cfg.AsyncEnabled(); got != tt.want {
				t.Errorf("AsyncEnabled() = %v, want %v", got, tt.want)
			}
		})
	}
}
