package processor

import (
	"context"
	stderrors "errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/adverant/nexus/ocr-text-service/internal/document"
	"github.com/adverant/nexus/ocr-text-service/internal/errors"
	"github.com/adverant/nexus/ocr-text-service/internal/layout"
	"github.com/adverant/nexus/ocr-text-service/internal/storage"
)

type fakeLoader struct {
	err       error
	pdfOnly   bool
	gotPath   string
	gotName   string
	gotData   string
	loadCalls int
}

func (f *fakeLoader) Load(ctx context.Context, path, filename string) (*document.Document, error) {
	f.loadCalls++
	f.gotPath = path
	f.gotName = filename
	data, _ := os.ReadFile(path)
	f.gotData = string(data)
	if f.err != nil {
		return nil, f.err
	}
	if f.pdfOnly && !document.IsPDF(filename) {
		return nil, stderrors.New("image: unknown format")
	}
	return &document.Document{Filename: filename, Pages: []document.PageImage{{Index: 0}}}, nil
}

type fakeEngine struct {
	pages []layout.Page
	err   error
	wait  bool
}

func (f *fakeEngine) Name() string { return "fake" }

func (f *fakeEngine) Recognize(ctx context.Context, doc *document.Document) ([]layout.Page, error) {
	if f.wait {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.pages, f.err
}

func (f *fakeEngine) Close() error { return nil }

type fakeStore struct {
	mu      sync.Mutex
	updates []*storage.JobUpdate
	cache   map[string]*storage.CachedResult
	jobs    map[string]*storage.Job
}

func newFakeStore() *fakeStore {
	return &fakeStore{cache: map[string]*storage.CachedResult{}, jobs: map[string]*storage.Job{}}
}

func (f *fakeStore) UpdateJobStatus(ctx context.Context, update *storage.JobUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, update)
	return nil
}

func (f *fakeStore) GetJob(ctx context.Context, jobID string) (*storage.Job, error) {
	if job, ok := f.jobs[jobID]; ok {
		return job, nil
	}
	return nil, storage.ErrJobNotFound
}

func (f *fakeStore) GetCachedResult(ctx context.Context, key string) (*storage.CachedResult, error) {
	return f.cache[key], nil
}

func (f *fakeStore) CacheResult(ctx context.Context, key string, result *storage.CachedResult) error {
	f.cache[key] = result
	return nil
}

func (f *fakeStore) lastUpdate() *storage.JobUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.updates) == 0 {
		return nil
	}
	return f.updates[len(f.updates)-1]
}

// helloWorldPage is "Hello World" on a 1000x1000 page
func helloWorldPage() layout.Page {
	return layout.Page{
		Dimensions: layout.Dimensions{Width: 1000, Height: 1000},
		Blocks: []layout.Block{{Lines: []layout.Line{{Words: []layout.Word{
			{Value: "Hello", Geometry: layout.Geometry{{X: 0.1, Y: 0.1}, {X: 0.2, Y: 0.12}}, Confidence: 0.9},
			{Value: "World", Geometry: layout.Geometry{{X: 0.21, Y: 0.1}, {X: 0.31, Y: 0.12}}, Confidence: 0.7},
		}}}}},
	}
}

func newTestProcessor(t *testing.T, loader *fakeLoader, engine *fakeEngine, store JobStore) *Processor {
	t.Helper()
	p, err := NewProcessor(&ProcessorConfig{
		Loader:  loader,
		Engine:  engine,
		Store:   store,
		TempDir: t.TempDir(),
		Timeout: time.Second,
	})
	if err != nil {
		t.Fatalf("NewProcessor: %v", err)
	}
	return p
}

func TestNewProcessor_Validation(t *testing.T) {
	if _, err := NewProcessor(nil); err == nil {
		t.Error("expected error for nil config")
	}
	if _, err := NewProcessor(&ProcessorConfig{Engine: &fakeEngine{}}); err == nil {
		t.Error("expected error for missing loader")
	}
	if _, err := NewProcessor(&ProcessorConfig{Loader: &fakeLoader{}}); err == nil {
		t.Error("expected error for missing engine")
	}
}

func TestExtract_Success(t *testing.T) {
	loader := &fakeLoader{}
	store := newFakeStore()
	blank := layout.Page{Dimensions: layout.Dimensions{Width: 10, Height: 10}}
	p := newTestProcessor(t, loader, &fakeEngine{pages: []layout.Page{helloWorldPage(), blank}}, store)

	result, err := p.Extract(context.Background(), &ExtractRequest{Filename: "scan.png", Data: []byte("image-bytes")})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if result.Text != "Hello World" {
		t.Errorf("unexpected text %q", result.Text)
	}
	if len(result.Pages) != 2 || result.Pages[0] != "Hello World" || result.Pages[1] != "" {
		t.Errorf("unexpected pages %q", result.Pages)
	}
	if result.PageCount != 2 || result.WordCount != 2 {
		t.Errorf("unexpected counts: pages=%d words=%d", result.PageCount, result.WordCount)
	}
	if result.Confidence < 0.799 || result.Confidence > 0.801 {
		t.Errorf("expected mean confidence 0.8, got %v", result.Confidence)
	}
	if result.JobID == "" {
		t.Error("expected generated job ID")
	}
	if result.Engine != "fake" || result.Cached {
		t.Errorf("unexpected engine/cached: %s %v", result.Engine, result.Cached)
	}

	if loader.gotName != "scan.png" || loader.gotData != "image-bytes" {
		t.Errorf("loader saw %q with %q", loader.gotName, loader.gotData)
	}
	if _, err := os.Stat(loader.gotPath); !os.IsNotExist(err) {
		t.Errorf("temp file %s was not removed", loader.gotPath)
	}

	update := store.lastUpdate()
	if update == nil || update.Status != storage.StatusCompleted || update.Text != "Hello World" {
		t.Errorf("unexpected job update %+v", update)
	}
}

func TestExtract_CacheHit(t *testing.T) {
	loader := &fakeLoader{}
	store := newFakeStore()
	p := newTestProcessor(t, loader, &fakeEngine{pages: []layout.Page{helloWorldPage()}}, store)

	req := func() *ExtractRequest { return &ExtractRequest{Filename: "a.png", Data: []byte("same")} }

	if _, err := p.Extract(context.Background(), req()); err != nil {
		t.Fatalf("first Extract: %v", err)
	}
	second, err := p.Extract(context.Background(), req())
	if err != nil {
		t.Fatalf("second Extract: %v", err)
	}

	if !second.Cached || second.Text != "Hello World" {
		t.Errorf("expected cached result, got %+v", second)
	}
	if loader.loadCalls != 1 {
		t.Errorf("expected one decode, got %d", loader.loadCalls)
	}
}

func TestExtract_CacheKeyIncludesDecodeMode(t *testing.T) {
	loader := &fakeLoader{pdfOnly: true}
	store := newFakeStore()
	p := newTestProcessor(t, loader, &fakeEngine{pages: []layout.Page{helloWorldPage()}}, store)

	data := []byte("%PDF-1.4 same bytes")
	if _, err := p.Extract(context.Background(), &ExtractRequest{Filename: "doc.pdf", Data: data}); err != nil {
		t.Fatalf("pdf Extract: %v", err)
	}

	result, err := p.Extract(context.Background(), &ExtractRequest{Filename: "doc.png", Data: data})
	if !errors.HasCode(err, errors.ErrorUnsupportedFormat) {
		t.Fatalf("expected UNSUPPORTED_FORMAT for the image upload, got result %+v err %v", result, err)
	}
	if loader.loadCalls != 2 {
		t.Errorf("expected the image upload to be decoded, got %d loads", loader.loadCalls)
	}
	if len(store.cache) != 1 {
		t.Errorf("expected only the pdf result cached, got %d entries", len(store.cache))
	}
}

func TestDecodeMode(t *testing.T) {
	tests := []struct {
		filename string
		want     document.Kind
	}{
		{"doc.pdf", document.KindPDF},
		{"DOC.PDF", document.KindPDF},
		{"doc.png", document.KindImage},
		{"noext", document.KindImage},
	}
	for _, tt := range tests {
		if got := decodeMode(tt.filename); got != tt.want {
			t.Errorf("decodeMode(%q) = %q, want %q", tt.filename, got, tt.want)
		}
	}
}

func TestExtract_DecodeFailure(t *testing.T) {
	loader := &fakeLoader{err: stderrors.New("image: unknown format")}
	store := newFakeStore()
	p := newTestProcessor(t, loader, &fakeEngine{}, store)

	_, err := p.Extract(context.Background(), &ExtractRequest{JobID: "job-1", Filename: "x.png", Data: []byte("junk")})
	if !errors.HasCode(err, errors.ErrorUnsupportedFormat) {
		t.Fatalf("expected UNSUPPORTED_FORMAT, got %v", err)
	}

	if _, statErr := os.Stat(loader.gotPath); !os.IsNotExist(statErr) {
		t.Errorf("temp file %s was not removed on decode failure", loader.gotPath)
	}

	update := store.lastUpdate()
	if update == nil || update.Status != storage.StatusFailed || update.ErrorCode != string(errors.ErrorUnsupportedFormat) {
		t.Errorf("unexpected job update %+v", update)
	}
	if update.JobID != "job-1" {
		t.Errorf("expected caller job ID, got %q", update.JobID)
	}
}

func TestExtract_OCRFailure(t *testing.T) {
	p := newTestProcessor(t, &fakeLoader{}, &fakeEngine{err: stderrors.New("engine crashed")}, nil)

	_, err := p.Extract(context.Background(), &ExtractRequest{Filename: "x.png", Data: []byte("x")})
	if !errors.HasCode(err, errors.ErrorOCRFailed) {
		t.Fatalf("expected OCR_FAILED, got %v", err)
	}
}

func TestExtract_Timeout(t *testing.T) {
	p, err := NewProcessor(&ProcessorConfig{
		Loader:  &fakeLoader{},
		Engine:  &fakeEngine{wait: true},
		TempDir: t.TempDir(),
		Timeout: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewProcessor: %v", err)
	}

	_, err = p.Extract(context.Background(), &ExtractRequest{Filename: "x.pdf", Data: []byte("x")})
	if !errors.HasCode(err, errors.ErrorProcessingTimeout) {
		t.Fatalf("expected PROCESSING_TIMEOUT, got %v", err)
	}
}

func TestExtract_TempDirMissing(t *testing.T) {
	p, err := NewProcessor(&ProcessorConfig{
		Loader:  &fakeLoader{},
		Engine:  &fakeEngine{},
		TempDir: "/nonexistent/ocr-temp",
	})
	if err != nil {
		t.Fatalf("NewProcessor: %v", err)
	}

	_, err = p.Extract(context.Background(), &ExtractRequest{Filename: "x.png", Data: []byte("x")})
	if errors.HasCode(err, errors.ErrorUnsupportedFormat) {
		t.Fatal("temp file failures must not be reported as format errors")
	}
	if !errors.HasCode(err, errors.ErrorStorageFailed) {
		t.Errorf("expected STORAGE_FAILED, got %v", err)
	}
}

func TestGetJob(t *testing.T) {
	store := newFakeStore()
	store.jobs["known"] = &storage.Job{ID: "known", Status: storage.StatusCompleted}
	p := newTestProcessor(t, &fakeLoader{}, &fakeEngine{}, store)

	job, err := p.GetJob(context.Background(), "known")
	if err != nil || job.Status != storage.StatusCompleted {
		t.Errorf("unexpected job %+v, err %v", job, err)
	}

	if _, err := p.GetJob(context.Background(), "missing"); !errors.HasCode(err, errors.ErrorJobNotFound) {
		t.Errorf("expected JOB_NOT_FOUND, got %v", err)
	}

	noStore := newTestProcessor(t, &fakeLoader{}, &fakeEngine{}, nil)
	if _, err := noStore.GetJob(context.Background(), "known"); !stderrors.Is(err, storage.ErrStoreDisabled) {
		t.Errorf("expected ErrStoreDisabled, got %v", err)
	}
}

func TestUpdateJobStatus_MetadataMapping(t *testing.T) {
	store := newFakeStore()
	p := newTestProcessor(t, &fakeLoader{}, &fakeEngine{}, store)

	err := p.UpdateJobStatus(context.Background(), "job-2", storage.StatusFailed, map[string]interface{}{
		"filename": "doc.pdf",
		"error":    "boom",
	})
	if err != nil {
		t.Fatalf("UpdateJobStatus: %v", err)
	}

	update := store.lastUpdate()
	if update.Filename != "doc.pdf" || update.ErrorCode != "PROCESSING_ERROR" || update.ErrorMessage != "boom" {
		t.Errorf("unexpected update %+v", update)
	}
}
