package ocr

import (
	"context"
	"fmt"
	"time"

	"github.com/adverant/nexus/ocr-text-service/internal/clients"
	"github.com/adverant/nexus/ocr-text-service/internal/document"
	"github.com/adverant/nexus/ocr-text-service/internal/layout"
	"github.com/adverant/nexus/ocr-text-service/internal/logging"
	"golang.org/x/sync/errgroup"
)

// predictor is the subset of *clients.DoctrClient the engine uses
type predictor interface {
	PredictFromBytes(ctx context.Context, imageData []byte, format string, pageIndex int) (*clients.DoctrResponse, error)
}

// healthChecker is implemented by predictors that expose a health endpoint
type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

// RemoteEngine delegates recognition to the docTR sidecar, one request per page
type RemoteEngine struct {
	client      predictor
	concurrency int
	logger      *logging.Logger
}

// NewRemoteEngine creates a remote engine sending at most concurrency pages at once
func NewRemoteEngine(client predictor, concurrency int) *RemoteEngine {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &RemoteEngine{
		client:      client,
		concurrency: concurrency,
		logger:      logging.NewLogger("DoctrOCR"),
	}
}

// Name identifies the engine in results and cache keys
func (e *RemoteEngine) Name() string { return "doctr" }

// Recognize sends every page to the sidecar and keeps document order
func (e *RemoteEngine) Recognize(ctx context.Context, doc *document.Document) ([]layout.Page, error) {
	startTime := time.Now()
	pages := make([]layout.Page, len(doc.Pages))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for i, img := range doc.Pages {
		g.Go(func() error {
			resp, err := e.client.PredictFromBytes(gctx, img.Data, img.Format, img.Index)
			if err != nil {
				return fmt.Errorf("page %d: %w", img.Index+1, err)
			}
			pages[i] = responseToPage(resp, img)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	e.logger.Debug("docTR recognition complete",
		"filename", doc.Filename, "pages", len(pages), "duration", time.Since(startTime))

	return pages, nil
}

// responseToPage keeps the predictor's block and line grouping. A response
// without pages yields an empty page sized like the submitted image.
func responseToPage(resp *clients.DoctrResponse, img document.PageImage) layout.Page {
	if resp == nil || len(resp.Pages) == 0 {
		return layout.Page{Dimensions: layout.Dimensions{Width: float64(img.Width), Height: float64(img.Height)}}
	}

	src := resp.Pages[0]
	page := layout.Page{
		Dimensions: layout.Dimensions{Width: src.Dimensions[0], Height: src.Dimensions[1]},
		Blocks:     make([]layout.Block, 0, len(src.Blocks)),
	}

	for _, b := range src.Blocks {
		block := layout.Block{Lines: make([]layout.Line, 0, len(b.Lines))}
		for _, l := range b.Lines {
			line := layout.Line{Words: make([]layout.Word, 0, len(l.Words))}
			for _, w := range l.Words {
				line.Words = append(line.Words, layout.Word{
					Value: w.Value,
					Geometry: layout.Geometry{
						{X: w.Geometry[0][0], Y: w.Geometry[0][1]},
						{X: w.Geometry[1][0], Y: w.Geometry[1][1]},
					},
					Confidence: w.Confidence,
				})
			}
			block.Lines = append(block.Lines, line)
		}
		page.Blocks = append(page.Blocks, block)
	}

	return page
}

// HealthCheck asks the sidecar whether it is up. Predictors without a
// health endpoint are assumed healthy.
func (e *RemoteEngine) HealthCheck(ctx context.Context) error {
	checker, ok := e.client.(healthChecker)
	if !ok {
		return nil
	}
	return checker.HealthCheck(ctx)
}

// Close is a no-op; the sidecar owns the model
func (e *RemoteEngine) Close() error { return nil }
