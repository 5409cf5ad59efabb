/**
 * Tesseract OCR - local word-level recognition
 *
 * gosseract clients are not safe for concurrent use, so the engine keeps a
 * fixed pool of configured clients and lends one to each page.
 */

package ocr

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/adverant/nexus/ocr-text-service/internal/document"
	"github.com/adverant/nexus/ocr-text-service/internal/layout"
	"github.com/adverant/nexus/ocr-text-service/internal/logging"
	"github.com/otiai10/gosseract/v2"
	"golang.org/x/sync/errgroup"
)

// wordRecognizer is the subset of *gosseract.Client the engine uses
type wordRecognizer interface {
	SetImageFromBytes(data []byte) error
	GetBoundingBoxes(level gosseract.PageIteratorLevel) ([]gosseract.BoundingBox, error)
	Close() error
}

// TesseractConfig holds Tesseract configuration
type TesseractConfig struct {
	Languages   []string
	PageSegMode int
	PoolSize    int
}

// defaultCloseTimeout bounds how long Close waits for lent clients
const defaultCloseTimeout = 30 * time.Second

// TesseractEngine handles OCR using pooled Tesseract clients
type TesseractEngine struct {
	pool         chan wordRecognizer
	size         int
	closeTimeout time.Duration
	logger       *logging.Logger
}

// NewTesseractEngine creates the client pool
func NewTesseractEngine(cfg *TesseractConfig) (*TesseractEngine, error) {
	if len(cfg.Languages) == 0 {
		cfg.Languages = []string{"eng"}
	}

	factory := func() (wordRecognizer, error) {
		client := gosseract.NewClient()
		if err := client.SetLanguage(cfg.Languages...); err != nil {
			client.Close()
			return nil, fmt.Errorf("set languages %v: %w", cfg.Languages, err)
		}
		if err := client.SetPageSegMode(gosseract.PageSegMode(cfg.PageSegMode)); err != nil {
			client.Close()
			return nil, fmt.Errorf("set page segmentation mode %d: %w", cfg.PageSegMode, err)
		}
		return client, nil
	}

	return newTesseractEngine(cfg.PoolSize, factory)
}

func newTesseractEngine(size int, factory func() (wordRecognizer, error)) (*TesseractEngine, error) {
	if size <= 0 {
		size = 1
	}

	e := &TesseractEngine{
		pool:         make(chan wordRecognizer, size),
		size:         size,
		closeTimeout: defaultCloseTimeout,
		logger:       logging.NewLogger("TesseractOCR"),
	}

	for i := 0; i < size; i++ {
		client, err := factory()
		if err != nil {
			_ = e.closeN(i, 0)
			return nil, fmt.Errorf("failed to create tesseract client: %w", err)
		}
		e.pool <- client
	}

	e.logger.Info("Tesseract engine ready", "poolSize", size)
	return e, nil
}

// Name identifies the engine in results and cache keys
func (e *TesseractEngine) Name() string { return "tesseract" }

// Recognize runs pages in parallel, at most one per pooled client
func (e *TesseractEngine) Recognize(ctx context.Context, doc *document.Document) ([]layout.Page, error) {
	startTime := time.Now()
	pages := make([]layout.Page, len(doc.Pages))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.size)

	for i, img := range doc.Pages {
		g.Go(func() error {
			page, err := e.recognizePage(gctx, img)
			if err != nil {
				return fmt.Errorf("page %d: %w", img.Index+1, err)
			}
			pages[i] = page
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	e.logger.Debug("Tesseract recognition complete",
		"filename", doc.Filename, "pages", len(pages), "duration", time.Since(startTime))

	return pages, nil
}

func (e *TesseractEngine) recognizePage(ctx context.Context, img document.PageImage) (layout.Page, error) {
	var client wordRecognizer
	select {
	case client = <-e.pool:
	case <-ctx.Done():
		return layout.Page{}, ctx.Err()
	}
	defer func() { e.pool <- client }()

	if err := client.SetImageFromBytes(img.Data); err != nil {
		return layout.Page{}, fmt.Errorf("failed to set image: %w", err)
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return layout.Page{}, fmt.Errorf("tesseract OCR failed: %w", err)
	}

	return boxesToPage(boxes, img.Width, img.Height), nil
}

// boxesToPage normalizes pixel boxes by the page size. Tesseract does not
// expose its block and line grouping at word level, so all words share one
// block and line.
func boxesToPage(boxes []gosseract.BoundingBox, width, height int) layout.Page {
	w := float64(width)
	h := float64(height)

	words := make([]layout.Word, 0, len(boxes))
	for _, b := range boxes {
		if strings.TrimSpace(b.Word) == "" {
			continue
		}
		words = append(words, layout.Word{
			Value: b.Word,
			Geometry: layout.Geometry{
				{X: float64(b.Box.Min.X) / w, Y: float64(b.Box.Min.Y) / h},
				{X: float64(b.Box.Max.X) / w, Y: float64(b.Box.Max.Y) / h},
			},
			Confidence: b.Confidence / 100.0,
		})
	}

	page := layout.Page{Dimensions: layout.Dimensions{Width: w, Height: h}}
	if len(words) > 0 {
		page.Blocks = []layout.Block{{Lines: []layout.Line{{Words: words}}}}
	}
	return page
}

// Close releases every pooled client. In-flight pages get up to the close
// timeout to return theirs; clients still lent out after that are leaked.
func (e *TesseractEngine) Close() error {
	return e.closeN(e.size, e.closeTimeout)
}

// closeN closes n clients, waiting at most wait for ones not yet in the pool
func (e *TesseractEngine) closeN(n int, wait time.Duration) error {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	var firstErr error
	for i := 0; i < n; i++ {
		var client wordRecognizer
		select {
		case client = <-e.pool:
		default:
			select {
			case client = <-e.pool:
			case <-timer.C:
				e.logger.Warn("Tesseract clients still in use at close", "remaining", n-i, "waited", wait)
				return fmt.Errorf("%d tesseract clients still in use after %v", n-i, wait)
			}
		}
		if err := client.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
