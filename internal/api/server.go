/**
 * HTTP API for the OCR Text Service
 *
 * Routes:
 *   GET  /health               liveness
 *   GET  /ready                storage backends reachable
 *   POST /extract-text         multipart "file" -> extracted text
 *   POST /extract-text/async   multipart "file" -> queued job ID
 *   GET  /jobs/{id}            stored job record
 */

package api

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/adverant/nexus/ocr-text-service/internal/errors"
	"github.com/adverant/nexus/ocr-text-service/internal/logging"
	"github.com/adverant/nexus/ocr-text-service/internal/processor"
	"github.com/adverant/nexus/ocr-text-service/internal/queue"
	"github.com/adverant/nexus/ocr-text-service/internal/storage"
	"github.com/google/uuid"
)

// unsupportedFormatMessage is the only detail clients get for decode failures
const unsupportedFormatMessage = "Unsupported file format or corrupted file."

// Enqueuer submits asynchronous extractions
type Enqueuer interface {
	EnqueueExtraction(ctx context.Context, payload *queue.ExtractionPayload) (string, error)
}

// Pinger checks the backing services
type Pinger interface {
	Ping(ctx context.Context) error
}

// ServerConfig holds API configuration
type ServerConfig struct {
	Processor     processor.ExtractorInterface
	Enqueuer      Enqueuer // optional; async endpoint answers 503 without it
	Backends      Pinger   // optional; /ready always succeeds without it
	MaxUploadSize int64
}

// Server serves the extraction API
type Server struct {
	processor     processor.ExtractorInterface
	enqueuer      Enqueuer
	backends      Pinger
	maxUploadSize int64
	logger        *logging.Logger
}

// NewServer creates the API server
func NewServer(cfg *ServerConfig) *Server {
	maxUpload := cfg.MaxUploadSize
	if maxUpload <= 0 {
		maxUpload = 50 * 1024 * 1024
	}
	return &Server{
		processor:     cfg.Processor,
		enqueuer:      cfg.Enqueuer,
		backends:      cfg.Backends,
		maxUploadSize: maxUpload,
		logger:        logging.NewLogger("API"),
	}
}

// Handler returns the routed handler with request logging
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.HandleFunc("POST /extract-text", s.handleExtractText)
	mux.HandleFunc("POST /extract-text/async", s.handleExtractTextAsync)
	mux.HandleFunc("GET /jobs/{id}", s.handleGetJob)
	return s.logRequests(mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "API is running fine!",
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.backends != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.backends.Ping(ctx); err != nil {
			s.logger.Warn("Readiness check failed", "error", err)
			respondWithError(w, "storage backends unavailable: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleExtractText(w http.ResponseWriter, r *http.Request) {
	filename, data, status, err := s.readUpload(w, r)
	if err != nil {
		respondWithError(w, uploadErrorMessage(err), status)
		return
	}

	result, err := s.processor.Extract(r.Context(), &processor.ExtractRequest{
		Filename: filename,
		Data:     data,
	})
	if err != nil {
		if errors.HasCode(err, errors.ErrorUnsupportedFormat) {
			respondWithError(w, unsupportedFormatMessage, http.StatusBadRequest)
			return
		}
		respondWithError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"filename":       filename,
		"extracted_text": result.Text,
	})
}

func (s *Server) handleExtractTextAsync(w http.ResponseWriter, r *http.Request) {
	if s.enqueuer == nil {
		respondWithError(w, "asynchronous processing is not configured", http.StatusServiceUnavailable)
		return
	}

	filename, data, status, err := s.readUpload(w, r)
	if err != nil {
		respondWithError(w, uploadErrorMessage(err), status)
		return
	}

	jobID, err := s.enqueuer.EnqueueExtraction(r.Context(), &queue.ExtractionPayload{
		Filename:   filename,
		FileBuffer: data,
	})
	if err != nil {
		respondWithError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id":   jobID,
		"filename": filename,
		"status":   storage.StatusQueued,
	})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if _, err := uuid.Parse(jobID); err != nil {
		respondWithError(w, "job ID must be a UUID", http.StatusBadRequest)
		return
	}

	job, err := s.processor.GetJob(r.Context(), jobID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, job)
	case errors.HasCode(err, errors.ErrorJobNotFound):
		respondWithError(w, fmt.Sprintf("job %s not found", jobID), http.StatusNotFound)
	case stderrors.Is(err, storage.ErrStoreDisabled):
		respondWithError(w, "job storage is not configured", http.StatusServiceUnavailable)
	default:
		respondWithError(w, err.Error(), http.StatusInternalServerError)
	}
}

// readUpload returns the multipart "file" field. On error the returned status
// is the one to answer with.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (string, []byte, int, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadSize)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			return "", nil, http.StatusRequestEntityTooLarge,
				fmt.Errorf("upload exceeds %d bytes", tooLarge.Limit)
		}
		return "", nil, http.StatusBadRequest, errors.NewInvalidRequestError("failed to read file: " + err.Error())
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return "", nil, http.StatusBadRequest, errors.NewInvalidRequestError("failed to read file: " + err.Error())
	}

	return header.Filename, data, http.StatusOK, nil
}

// uploadErrorMessage drops the error code prefix from request errors
func uploadErrorMessage(err error) string {
	var perr *errors.ProcessingError
	if stderrors.As(err, &perr) {
		return perr.Message
	}
	return err.Error()
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func respondWithError(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, statusCode, map[string]string{
		"error": message,
	})
}

// statusWriter captures the response status for logging
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(status int) {
	sw.status = status
	sw.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.logger.Info("Request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration", time.Since(startTime))
	})
}
