/**
 * docTR Client - remote OCR inference
 *
 * Talks to a docTR inference sidecar that wraps a pretrained detection +
 * recognition predictor. The sidecar loads its model once and serves
 * concurrent predictions; this client only moves page images and results.
 *
 * Contract:
 *   POST /ocr     {"image": <base64>, "format": "png", "page_index": 0}
 *              -> {"pages": [{"dimensions": [w, h], "blocks": [...]}], ...}
 *   GET  /health  -> 200
 */

package clients

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/adverant/nexus/ocr-text-service/internal/logging"
	"github.com/google/uuid"
)

// DoctrClient handles communication with the docTR sidecar
type DoctrClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// DoctrRequest represents a request to recognize one page image
type DoctrRequest struct {
	Image     string `json:"image"`  // Base64 encoded image
	Format    string `json:"format"` // "png", "jpeg", ...
	PageIndex int    `json:"page_index"`
}

// DoctrResponse mirrors the predictor's export structure
type DoctrResponse struct {
	Pages          []DoctrPage `json:"pages"`
	Model          string      `json:"model"`
	ProcessingTime int64       `json:"processing_time_ms"`
}

// DoctrPage is one recognized page; Dimensions is [width, height]
type DoctrPage struct {
	Dimensions [2]float64   `json:"dimensions"`
	Blocks     []DoctrBlock `json:"blocks"`
}

// DoctrBlock groups lines
type DoctrBlock struct {
	Lines []DoctrLine `json:"lines"`
}

// DoctrLine groups words
type DoctrLine struct {
	Words []DoctrWord `json:"words"`
}

// DoctrWord is a recognized token with normalized ((x0, y0), (x1, y1)) geometry
type DoctrWord struct {
	Value      string        `json:"value"`
	Confidence float64       `json:"confidence"`
	Geometry   [2][2]float64 `json:"geometry"`
}

// NewDoctrClient creates a new docTR client
func NewDoctrClient(baseURL string) *DoctrClient {
	return &DoctrClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 120 * time.Second, // large scans on CPU take a while
		},
		logger: logging.NewLogger("DoctrClient"),
	}
}

// Predict sends one page image for recognition
func (c *DoctrClient) Predict(ctx context.Context, req *DoctrRequest) (*DoctrResponse, error) {
	endpoint := fmt.Sprintf("%s/ocr", c.baseURL)

	// Marshal request
	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	// Create HTTP request
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Source", "ocr-text-service")
	httpReq.Header.Set("X-Request-ID", uuid.New().String())

	// Execute request
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request to docTR failed: %w", err)
	}
	defer resp.Body.Close()

	// Read response body
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	// Check status code
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("docTR returned error status %d: %s", resp.StatusCode, string(body))
	}

	// Parse response
	var ocrResp DoctrResponse
	if err := json.Unmarshal(body, &ocrResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	c.logger.Debug("docTR prediction complete",
		"model", ocrResp.Model,
		"pages", len(ocrResp.Pages),
		"processingTime", ocrResp.ProcessingTime)

	return &ocrResp, nil
}

// PredictFromBytes is a convenience method that handles base64 encoding
func (c *DoctrClient) PredictFromBytes(ctx context.Context, imageData []byte, format string, pageIndex int) (*DoctrResponse, error) {
	return c.Predict(ctx, &DoctrRequest{
		Image:     base64.StdEncoding.EncodeToString(imageData),
		Format:    format,
		PageIndex: pageIndex,
	})
}

// HealthCheck verifies the docTR sidecar is available
func (c *DoctrClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("docTR health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("docTR health check returned status %d", resp.StatusCode)
	}

	return nil
}
