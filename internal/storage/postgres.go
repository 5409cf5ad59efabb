/**
 * PostgreSQL Client for the OCR Text Service
 *
 * Persists extraction job records so asynchronous jobs can be polled and
 * synchronous requests leave an audit trail.
 */

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// ErrJobNotFound is returned by GetJob for unknown IDs
var ErrJobNotFound = errors.New("job not found")

// Job statuses
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// PostgresClient handles database operations
type PostgresClient struct {
	db *sql.DB
}

// JobUpdate represents a job status update
type JobUpdate struct {
	JobID            string
	Status           string
	Filename         string
	Engine           string
	PageCount        int
	WordCount        int
	Confidence       float64
	ProcessingTimeMs int64
	Text             string
	Pages            []string
	ErrorCode        string
	ErrorMessage     string
	Metadata         map[string]interface{}
}

// Job is a stored extraction job
type Job struct {
	ID               string                 `json:"id"`
	Status           string                 `json:"status"`
	Filename         string                 `json:"filename"`
	Engine           string                 `json:"engine,omitempty"`
	PageCount        int                    `json:"page_count"`
	WordCount        int                    `json:"word_count"`
	Confidence       float64                `json:"confidence"`
	ProcessingTimeMs int64                  `json:"processing_time_ms"`
	ExtractedText    string                 `json:"extracted_text,omitempty"`
	Pages            []string               `json:"pages,omitempty"`
	ErrorCode        string                 `json:"error_code,omitempty"`
	ErrorMessage     string                 `json:"error_message,omitempty"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at"`
}

const schemaDDL = `
	CREATE SCHEMA IF NOT EXISTS ocr;
	CREATE TABLE IF NOT EXISTS ocr.extraction_jobs (
		id                 UUID PRIMARY KEY,
		status             TEXT NOT NULL,
		filename           TEXT NOT NULL DEFAULT '',
		engine             TEXT,
		page_count         INTEGER NOT NULL DEFAULT 0,
		word_count         INTEGER NOT NULL DEFAULT 0,
		confidence         NUMERIC(5,4),
		processing_time_ms BIGINT,
		extracted_text     TEXT,
		pages              TEXT[],
		error_code         TEXT,
		error_message      TEXT,
		metadata           JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS extraction_jobs_status_idx ON ocr.extraction_jobs (status);
`

// sanitizeConfidence clamps confidence to [0, 1] and rounds it to the
// 4 decimal places the NUMERIC(5,4) column holds.
func sanitizeConfidence(confidence float64) float64 {
	if confidence < 0.0 {
		return 0.0
	}
	if confidence > 1.0 {
		return 1.0
	}
	return float64(int(confidence*10000+0.5)) / 10000
}

// NewPostgresClient creates a new PostgreSQL client
func NewPostgresClient(databaseURL string) (*PostgresClient, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	// Connect to database
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresClient{db: db}, nil
}

// EnsureSchema creates the job table when missing
func (p *PostgresClient) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// UpdateJobStatus upserts the job row. Zero values never overwrite stored ones,
// so a late "processing" update cannot erase a result.
func (p *PostgresClient) UpdateJobStatus(ctx context.Context, update *JobUpdate) error {
	if update.JobID == "" {
		return fmt.Errorf("job ID is required")
	}

	if update.Status == "" {
		return fmt.Errorf("status is required")
	}

	sanitizedConfidence := sanitizeConfidence(update.Confidence)

	// Convert metadata to JSONB
	metadataJSON, err := json.Marshal(update.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	var pages interface{}
	if len(update.Pages) > 0 {
		pages = pq.Array(update.Pages)
	}

	query := `
		INSERT INTO ocr.extraction_jobs (
			id, status, filename, engine, page_count, word_count,
			confidence, processing_time_ms, extracted_text, pages,
			error_code, error_message, metadata, created_at, updated_at
		) VALUES (
			$1::uuid, $2, $3, NULLIF($4, ''), $5, $6,
			NULLIF($7::NUMERIC(5,4), 0), NULLIF($8, 0), NULLIF($9, ''), $10,
			NULLIF($11, ''), NULLIF($12, ''),
			COALESCE(NULLIF($13, 'null')::jsonb, '{}'::jsonb),
			NOW(), NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			filename = COALESCE(NULLIF(EXCLUDED.filename, ''), ocr.extraction_jobs.filename),
			engine = COALESCE(EXCLUDED.engine, ocr.extraction_jobs.engine),
			page_count = GREATEST(EXCLUDED.page_count, ocr.extraction_jobs.page_count),
			word_count = GREATEST(EXCLUDED.word_count, ocr.extraction_jobs.word_count),
			confidence = COALESCE(EXCLUDED.confidence, ocr.extraction_jobs.confidence),
			processing_time_ms = COALESCE(EXCLUDED.processing_time_ms, ocr.extraction_jobs.processing_time_ms),
			extracted_text = COALESCE(EXCLUDED.extracted_text, ocr.extraction_jobs.extracted_text),
			pages = COALESCE(EXCLUDED.pages, ocr.extraction_jobs.pages),
			error_code = EXCLUDED.error_code,
			error_message = EXCLUDED.error_message,
			metadata = ocr.extraction_jobs.metadata || EXCLUDED.metadata,
			updated_at = NOW()
		RETURNING id
	`

	var returnedID string
	err = p.db.QueryRowContext(
		ctx,
		query,
		update.JobID,            // $1
		update.Status,           // $2
		update.Filename,         // $3
		update.Engine,           // $4
		update.PageCount,        // $5
		update.WordCount,        // $6
		sanitizedConfidence,     // $7 - 4 decimals
		update.ProcessingTimeMs, // $8
		update.Text,             // $9
		pages,                   // $10 - TEXT[] or NULL
		update.ErrorCode,        // $11
		update.ErrorMessage,     // $12
		string(metadataJSON),    // $13
	).Scan(&returnedID)

	if err != nil {
		return fmt.Errorf("failed to update job status (job=%s, status=%s, confidence=%.4f): %w",
			update.JobID, update.Status, sanitizedConfidence, err)
	}

	return nil
}

// GetJob retrieves a job by ID
func (p *PostgresClient) GetJob(ctx context.Context, jobID string) (*Job, error) {
	if jobID == "" {
		return nil, fmt.Errorf("job ID is required")
	}

	query := `
		SELECT
			id, status, filename, engine, page_count, word_count,
			confidence, processing_time_ms, extracted_text, pages,
			error_code, error_message, metadata, created_at, updated_at
		FROM ocr.extraction_jobs
		WHERE id = $1::uuid
	`

	var (
		job                                   Job
		engine, text, errorCode, errorMessage sql.NullString
		confidence                            sql.NullFloat64
		processingTimeMs                      sql.NullInt64
		pages                                 pq.StringArray
		metadataJSON                          []byte
	)

	err := p.db.QueryRowContext(ctx, query, jobID).Scan(
		&job.ID, &job.Status, &job.Filename, &engine, &job.PageCount, &job.WordCount,
		&confidence, &processingTimeMs, &text, &pages,
		&errorCode, &errorMessage, &metadataJSON, &job.CreatedAt, &job.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	job.Engine = engine.String
	job.Confidence = confidence.Float64
	job.ProcessingTimeMs = processingTimeMs.Int64
	job.ExtractedText = text.String
	job.Pages = []string(pages)
	job.ErrorCode = errorCode.String
	job.ErrorMessage = errorMessage.String

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &job.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return &job, nil
}

// Ping checks database connectivity
func (p *PostgresClient) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the database connection
func (p *PostgresClient) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// GetStats returns connection pool statistics
func (p *PostgresClient) GetStats() sql.DBStats {
	return p.db.Stats()
}
