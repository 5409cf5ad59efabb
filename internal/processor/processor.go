/**
 * Text Extraction Processor
 *
 * Orchestrates one extraction:
 * - Spool the upload to a temp file (always removed)
 * - Serve repeated uploads from the result cache
 * - Decode PDF pages or a single image
 * - Recognize words with the shared OCR engine
 * - Rebuild reading-order text with gap-based spacing
 * - Record the job outcome
 */

package processor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	stderrors "errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/adverant/nexus/ocr-text-service/internal/document"
	"github.com/adverant/nexus/ocr-text-service/internal/errors"
	"github.com/adverant/nexus/ocr-text-service/internal/layout"
	"github.com/adverant/nexus/ocr-text-service/internal/logging"
	"github.com/adverant/nexus/ocr-text-service/internal/ocr"
	"github.com/adverant/nexus/ocr-text-service/internal/storage"
	"github.com/google/uuid"
)

// ExtractorInterface defines the interface for text extraction
type ExtractorInterface interface {
	Extract(ctx context.Context, req *ExtractRequest) (*ExtractResult, error)
	UpdateJobStatus(ctx context.Context, jobID string, status string, metadata map[string]interface{}) error
	GetJob(ctx context.Context, jobID string) (*storage.Job, error)
}

// DocumentLoader turns a file on disk into page images
type DocumentLoader interface {
	Load(ctx context.Context, path, filename string) (*document.Document, error)
}

// JobStore persists job records and cached results
type JobStore interface {
	UpdateJobStatus(ctx context.Context, update *storage.JobUpdate) error
	GetJob(ctx context.Context, jobID string) (*storage.Job, error)
	GetCachedResult(ctx context.Context, key string) (*storage.CachedResult, error)
	CacheResult(ctx context.Context, key string, result *storage.CachedResult) error
}

// ProcessorConfig holds processor configuration
type ProcessorConfig struct {
	Loader  DocumentLoader
	Engine  ocr.Engine
	Store   JobStore // optional
	TempDir string
	Timeout time.Duration
}

// ExtractRequest represents one uploaded file
type ExtractRequest struct {
	JobID    string
	Filename string
	Data     []byte
}

// ExtractResult represents the extraction result
type ExtractResult struct {
	JobID            string   `json:"job_id"`
	Filename         string   `json:"filename"`
	Text             string   `json:"extracted_text"`
	Pages            []string `json:"pages"`
	PageCount        int      `json:"page_count"`
	WordCount        int      `json:"word_count"`
	Confidence       float64  `json:"confidence"`
	Engine           string   `json:"engine"`
	Cached           bool     `json:"cached"`
	ProcessingTimeMs int64    `json:"processing_time_ms"`
}

// Processor runs extractions against a shared engine
type Processor struct {
	loader  DocumentLoader
	engine  ocr.Engine
	store   JobStore
	tempDir string
	timeout time.Duration
	logger  *logging.Logger
}

// NewProcessor creates a new processor
func NewProcessor(cfg *ProcessorConfig) (*Processor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	if cfg.Loader == nil {
		return nil, fmt.Errorf("document loader is required")
	}

	if cfg.Engine == nil {
		return nil, fmt.Errorf("OCR engine is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	return &Processor{
		loader:  cfg.Loader,
		engine:  cfg.Engine,
		store:   cfg.Store,
		tempDir: cfg.TempDir,
		timeout: timeout,
		logger:  logging.NewLogger("Processor"),
	}, nil
}

// Extract runs the full pipeline for one upload
func (p *Processor) Extract(ctx context.Context, req *ExtractRequest) (*ExtractResult, error) {
	startTime := time.Now()

	if req.JobID == "" {
		req.JobID = uuid.New().String()
	}
	logger := p.logger.With("jobId", req.JobID, "filename", req.Filename)

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	logger.Info("Starting text extraction", "size", len(req.Data), "engine", p.engine.Name())

	// Step 1: Result cache
	cacheKey := storage.ResultKey(contentDigest(req.Data), p.engine.Name(), string(decodeMode(req.Filename)))
	if cached := p.lookupCache(ctx, logger, cacheKey); cached != nil {
		result := fromCache(req, cached, time.Since(startTime))
		logger.Info("Served extraction from cache", "pages", result.PageCount)
		p.recordCompleted(ctx, logger, result)
		return result, nil
	}

	// Step 2: Decode
	doc, err := p.decode(ctx, req)
	if err != nil {
		return nil, p.fail(ctx, logger, req, p.classify(ctx, req, err))
	}

	// Step 3: OCR
	pages, err := p.engine.Recognize(ctx, doc)
	if err != nil {
		perr := errors.NewOCRFailedError(req.JobID, p.engine.Name(), err)
		if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
			perr = errors.NewProcessingTimeoutError(req.JobID, p.timeout, err)
		}
		return nil, p.fail(ctx, logger, req, perr)
	}

	// Step 4: Layout reconstruction
	summary := layout.Stats(pages)
	pageTexts := make([]string, len(pages))
	for i, page := range pages {
		pageTexts[i] = strings.Join(layout.ReconstructPage(page), "\n")
	}

	result := &ExtractResult{
		JobID:            req.JobID,
		Filename:         req.Filename,
		Text:             layout.Reconstruct(pages),
		Pages:            pageTexts,
		PageCount:        summary.PageCount,
		WordCount:        summary.WordCount,
		Confidence:       summary.Confidence,
		Engine:           p.engine.Name(),
		ProcessingTimeMs: time.Since(startTime).Milliseconds(),
	}

	logger.Info("Text extraction complete",
		"pages", result.PageCount,
		"words", result.WordCount,
		"confidence", fmt.Sprintf("%.2f", result.Confidence),
		"duration", time.Since(startTime))

	// Step 5: Cache and record
	if p.store != nil {
		if err := p.store.CacheResult(ctx, cacheKey, toCache(result)); err != nil {
			logger.Warn("Failed to cache result", "error", err)
		}
	}
	p.recordCompleted(ctx, logger, result)

	return result, nil
}

// decode spools the upload to a temp file that never outlives the call
func (p *Processor) decode(ctx context.Context, req *ExtractRequest) (*document.Document, error) {
	f, err := os.CreateTemp(p.tempDir, "upload-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.Write(req.Data); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close temp file: %w", err)
	}

	doc, err := p.loader.Load(ctx, path, req.Filename)
	if err != nil {
		return nil, &decodeError{err: err}
	}
	return doc, nil
}

// decodeError marks loader failures apart from temp-file I/O failures
type decodeError struct{ err error }

func (e *decodeError) Error() string { return e.err.Error() }
func (e *decodeError) Unwrap() error { return e.err }

func (p *Processor) classify(ctx context.Context, req *ExtractRequest, err error) *errors.ProcessingError {
	if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errors.NewProcessingTimeoutError(req.JobID, p.timeout, err)
	}
	var de *decodeError
	if stderrors.As(err, &de) {
		return errors.NewUnsupportedFormatError(req.JobID, req.Filename, de.err)
	}
	return errors.NewStorageFailedError(req.JobID, err)
}

func (p *Processor) lookupCache(ctx context.Context, logger *logging.Logger, key string) *storage.CachedResult {
	if p.store == nil {
		return nil
	}
	cached, err := p.store.GetCachedResult(ctx, key)
	if err != nil {
		logger.Warn("Cache lookup failed", "error", err)
		return nil
	}
	return cached
}

// fail records the failure and returns perr
func (p *Processor) fail(ctx context.Context, logger *logging.Logger, req *ExtractRequest, perr *errors.ProcessingError) error {
	logger.Error("Text extraction failed", "code", perr.Code, "error", perr)

	metadata := perr.ToMap()
	metadata["filename"] = req.Filename
	if err := p.UpdateJobStatus(context.WithoutCancel(ctx), req.JobID, storage.StatusFailed, metadata); err != nil {
		logger.Warn("Failed to record job failure", "error", err)
	}
	return perr
}

func (p *Processor) recordCompleted(ctx context.Context, logger *logging.Logger, result *ExtractResult) {
	if p.store == nil {
		return
	}
	err := p.store.UpdateJobStatus(context.WithoutCancel(ctx), &storage.JobUpdate{
		JobID:            result.JobID,
		Status:           storage.StatusCompleted,
		Filename:         result.Filename,
		Engine:           result.Engine,
		PageCount:        result.PageCount,
		WordCount:        result.WordCount,
		Confidence:       result.Confidence,
		ProcessingTimeMs: result.ProcessingTimeMs,
		Text:             result.Text,
		Pages:            result.Pages,
		Metadata:         map[string]interface{}{"cached": result.Cached},
	})
	if err != nil {
		logger.Warn("Failed to record job completion", "error", err)
	}
}

// UpdateJobStatus updates job status in the job store
func (p *Processor) UpdateJobStatus(ctx context.Context, jobID string, status string, metadata map[string]interface{}) error {
	if p.store == nil {
		return nil
	}

	update := &storage.JobUpdate{
		JobID:    jobID,
		Status:   status,
		Metadata: metadata,
	}

	// Extract specific fields from metadata if present
	if metadata != nil {
		if filename, ok := metadata["filename"].(string); ok {
			update.Filename = filename
		}
		if code, ok := metadata["error_code"].(string); ok {
			update.ErrorCode = code
		}
		if msg, ok := metadata["message"].(string); ok && update.ErrorCode != "" {
			update.ErrorMessage = msg
		}
		if errorMsg, ok := metadata["error"].(string); ok {
			if update.ErrorCode == "" {
				update.ErrorCode = "PROCESSING_ERROR"
			}
			update.ErrorMessage = errorMsg
		}
	}

	return p.store.UpdateJobStatus(ctx, update)
}

// GetJob returns a stored job record
func (p *Processor) GetJob(ctx context.Context, jobID string) (*storage.Job, error) {
	if p.store == nil {
		return nil, storage.ErrStoreDisabled
	}
	job, err := p.store.GetJob(ctx, jobID)
	if stderrors.Is(err, storage.ErrJobNotFound) {
		return nil, errors.NewJobNotFoundError(jobID)
	}
	return job, err
}

// decodeMode is the document kind the loader will pick for filename
func decodeMode(filename string) document.Kind {
	if document.IsPDF(filename) {
		return document.KindPDF
	}
	return document.KindImage
}

func contentDigest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func toCache(r *ExtractResult) *storage.CachedResult {
	return &storage.CachedResult{
		Text:       r.Text,
		Pages:      r.Pages,
		PageCount:  r.PageCount,
		WordCount:  r.WordCount,
		Confidence: r.Confidence,
		Engine:     r.Engine,
	}
}

func fromCache(req *ExtractRequest, c *storage.CachedResult, elapsed time.Duration) *ExtractResult {
	return &ExtractResult{
		JobID:            req.JobID,
		Filename:         req.Filename,
		Text:             c.Text,
		Pages:            c.Pages,
		PageCount:        c.PageCount,
		WordCount:        c.WordCount,
		Confidence:       c.Confidence,
		Engine:           c.Engine,
		Cached:           true,
		ProcessingTimeMs: elapsed.Milliseconds(),
	}
}
