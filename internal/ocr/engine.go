/**
 * OCR Engines - map decoded page images to recognized words
 *
 * An Engine is created once at startup and shared by every request, so
 * implementations must be safe for concurrent Recognize calls.
 *
 * Engines:
 * 1. Tesseract - local, pooled gosseract clients (default)
 * 2. docTR     - remote inference sidecar over HTTP
 */

package ocr

import (
	"context"
	"fmt"
	"time"

	"github.com/adverant/nexus/ocr-text-service/internal/clients"
	"github.com/adverant/nexus/ocr-text-service/internal/config"
	"github.com/adverant/nexus/ocr-text-service/internal/document"
	"github.com/adverant/nexus/ocr-text-service/internal/layout"
	"github.com/adverant/nexus/ocr-text-service/internal/logging"
)

// startupHealthTimeout bounds the sidecar check done by New
const startupHealthTimeout = 10 * time.Second

// Engine recognizes words on every page of a document. Returned pages are
// in document page order with geometry normalized to [0,1].
type Engine interface {
	Name() string
	Recognize(ctx context.Context, doc *document.Document) ([]layout.Page, error)
	Close() error
}

// New builds the engine selected by cfg.OCREngine
func New(cfg *config.Config) (Engine, error) {
	switch cfg.OCREngine {
	case config.EngineTesseract:
		return NewTesseractEngine(&TesseractConfig{
			Languages:   cfg.OCRLanguages,
			PageSegMode: cfg.OCRPageSegMode,
			PoolSize:    cfg.OCRConcurrency,
		})
	case config.EngineDoctr:
		engine := NewRemoteEngine(clients.NewDoctrClient(cfg.DoctrURL), cfg.OCRConcurrency)

		// The sidecar may still be loading its model, so an unhealthy
		// sidecar is logged rather than fatal
		ctx, cancel := context.WithTimeout(context.Background(), startupHealthTimeout)
		defer cancel()
		if err := engine.HealthCheck(ctx); err != nil {
			logging.NewLogger("OCR").Warn("docTR sidecar health check failed", "url", cfg.DoctrURL, "error", err)
		}
		return engine, nil
	default:
		return nil, fmt.Errorf("unknown OCR engine %q", cfg.OCREngine)
	}
}
