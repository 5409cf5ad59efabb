package ocr

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/adverant/nexus/ocr-text-service/internal/config"
)

func TestNew_DoctrChecksSidecarHealth(t *testing.T) {
	var healthHits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			healthHits.Add(1)
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	engine, err := New(&config.Config{
		OCREngine:      config.EngineDoctr,
		DoctrURL:       server.URL,
		OCRConcurrency: 2,
	})
	if err != nil {
		t.Fatalf("an unhealthy sidecar must not fail startup: %v", err)
	}
	defer engine.Close()

	if engine.Name() != "doctr" {
		t.Errorf("unexpected engine %q", engine.Name())
	}
	if healthHits.Load() != 1 {
		t.Errorf("expected one health check, got %d", healthHits.Load())
	}
}

func TestNew_UnknownEngine(t *testing.T) {
	if _, err := New(&config.Config{OCREngine: "paddle"}); err == nil {
		t.Error("expected error for unknown engine")
	}
}
