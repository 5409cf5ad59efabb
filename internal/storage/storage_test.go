package storage

import (
	"context"
	"errors"
	"testing"
)

func TestSanitizeConfidence(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want float64
	}{
		{"negative clamps to zero", -0.3, 0},
		{"above one clamps", 1.7, 1},
		{"float noise rounded", 0.9632000000000001, 0.9632},
		{"rounds to nearest", 0.56789, 0.5679},
		{"zero", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizeConfidence(tt.in); got != tt.want {
				t.Errorf("sanitizeConfidence(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitizeText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"clean text untouched", "Hello  World\nLine 2\tTab", "Hello  World\nLine 2\tTab"},
		{"nul removed", "ab\x00cd", "abcd"},
		{"controls become spaces", "a\x07b\x1fc", "a b c"},
		{"unicode kept", "Größe €", "Größe €"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizeText(tt.in); got != tt.want {
				t.Errorf("sanitizeText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitizeUpdate_LeavesCallerUntouched(t *testing.T) {
	pages := []string{"a\x00b", "c\x07d"}
	update := &JobUpdate{
		JobID:        "job-1",
		Text:         "a\x00b\nc\x07d",
		Pages:        pages,
		ErrorMessage: "bad\x00",
	}

	clean := sanitizeUpdate(update)

	if clean.Text != "ab\nc d" || clean.ErrorMessage != "bad" {
		t.Errorf("unexpected sanitized update %+v", clean)
	}
	if len(clean.Pages) != 2 || clean.Pages[0] != "ab" || clean.Pages[1] != "c d" {
		t.Errorf("unexpected sanitized pages %q", clean.Pages)
	}
	if pages[0] != "a\x00b" || pages[1] != "c\x07d" {
		t.Errorf("caller pages were modified: %q", pages)
	}
	if update.Text != "a\x00b\nc\x07d" || update.ErrorMessage != "bad\x00" {
		t.Errorf("caller update was modified: %+v", update)
	}
	if clean.JobID != "job-1" {
		t.Errorf("expected other fields copied, got %+v", clean)
	}

	if sanitizeUpdate(&JobUpdate{}).Pages != nil {
		t.Error("nil pages must stay nil")
	}
}

func TestResultKey(t *testing.T) {
	got := ResultKey("abc123", "tesseract", "pdf")
	if got != "ocr:result:tesseract:pdf:abc123" {
		t.Errorf("unexpected key %q", got)
	}
	if ResultKey("abc123", "doctr", "pdf") == got {
		t.Error("engines must not share cache keys")
	}
	if ResultKey("abc123", "tesseract", "image") == got {
		t.Error("decode modes must not share cache keys")
	}
}

func TestStorageManager_DisabledBackends(t *testing.T) {
	sm, err := NewStorageManager(context.Background(), Options{})
	if err != nil {
		t.Fatalf("NewStorageManager: %v", err)
	}
	ctx := context.Background()

	if sm.HasJobStore() {
		t.Error("expected no job store")
	}
	if err := sm.UpdateJobStatus(ctx, &JobUpdate{JobID: "x", Status: StatusQueued}); err != nil {
		t.Errorf("UpdateJobStatus: %v", err)
	}
	if _, err := sm.GetJob(ctx, "x"); !errors.Is(err, ErrStoreDisabled) {
		t.Errorf("expected ErrStoreDisabled, got %v", err)
	}

	cached, err := sm.GetCachedResult(ctx, "k")
	if cached != nil || err != nil {
		t.Errorf("expected silent miss, got %v, %v", cached, err)
	}
	if err := sm.CacheResult(ctx, "k", &CachedResult{Text: "x"}); err != nil {
		t.Errorf("CacheResult: %v", err)
	}
	if err := sm.Ping(ctx); err != nil {
		t.Errorf("Ping: %v", err)
	}
	if stats := sm.GetStats(); stats["postgres"] != nil || stats["redis"] != nil {
		t.Errorf("expected empty stats, got %v", stats)
	}
	if err := sm.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestStorageManager_NilSafe(t *testing.T) {
	var sm *StorageManager
	ctx := context.Background()

	if sm.HasJobStore() {
		t.Error("nil manager has no job store")
	}
	if _, err := sm.GetCachedResult(ctx, "k"); err != nil {
		t.Errorf("GetCachedResult: %v", err)
	}
	if err := sm.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestNewRedisCache_BadURL(t *testing.T) {
	if _, err := NewRedisCache("not-a-url://", 0); err == nil {
		t.Error("expected parse error")
	}
}
