/**
 * Document Decoder - turns an uploaded file into page images for OCR
 *
 * PDF mode is chosen by a case-insensitive ".pdf" filename suffix; every
 * other upload is treated as a single image. PDFs are validated with a
 * pure-Go parser before rasterization so corrupted files fail fast.
 */

package document

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"
	"strings"

	// Image formats accepted in image mode
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/adverant/nexus/ocr-text-service/internal/logging"
	"github.com/ledongthuc/pdf"
)

// Kind distinguishes the two decoding modes
type Kind string

const (
	KindPDF   Kind = "pdf"
	KindImage Kind = "image"
)

// PageImage is one encoded page ready for OCR
type PageImage struct {
	Index  int // zero-based page index
	Data   []byte
	Format string // "png", "jpeg", "tiff", ...
	Width  int
	Height int
}

// Document is a decoded multi-page upload
type Document struct {
	Filename string
	Kind     Kind
	Pages    []PageImage
}

// Decoder loads files into Documents
type Decoder struct {
	rasterizer Rasterizer
	dpi        int
	tempDir    string
	logger     *logging.Logger
}

// DecoderConfig holds decoder configuration
type DecoderConfig struct {
	Rasterizer Rasterizer // defaults to pdftoppm on PATH
	DPI        int        // PDF render resolution, defaults to 144
	TempDir    string     // scratch space for rendered pages
}

// NewDecoder creates a new document decoder
func NewDecoder(cfg *DecoderConfig) *Decoder {
	if cfg == nil {
		cfg = &DecoderConfig{}
	}
	if cfg.Rasterizer == nil {
		cfg.Rasterizer = NewPopplerRasterizer("")
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 144
	}

	return &Decoder{
		rasterizer: cfg.Rasterizer,
		dpi:        cfg.DPI,
		tempDir:    cfg.TempDir,
		logger:     logging.NewLogger("Decoder"),
	}
}

// IsPDF reports whether filename selects PDF mode
func IsPDF(filename string) bool {
	return strings.HasSuffix(strings.ToLower(filename), ".pdf")
}

// Load decodes the file at path. filename is the original upload name and
// only drives mode selection.
func (d *Decoder) Load(ctx context.Context, path, filename string) (*Document, error) {
	if IsPDF(filename) {
		return d.loadPDF(ctx, path, filename)
	}
	return d.loadImage(path, filename)
}

func (d *Decoder) loadImage(path, filename string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image %s: %w", filename, err)
	}

	page, err := decodePage(0, data)
	if err != nil {
		return nil, fmt.Errorf("decode image %s: %w", filename, err)
	}

	d.logger.Debug("Image decoded", "filename", filename, "format", page.Format,
		"width", page.Width, "height", page.Height)

	return &Document{
		Filename: filename,
		Kind:     KindImage,
		Pages:    []PageImage{page},
	}, nil
}

func (d *Decoder) loadPDF(ctx context.Context, path, filename string) (*Document, error) {
	numPages, err := countPDFPages(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %w", filename, err)
	}
	if numPages < 1 {
		return nil, fmt.Errorf("pdf %s has no pages", filename)
	}

	workDir, err := os.MkdirTemp(d.tempDir, "ocr-pages-*")
	if err != nil {
		return nil, fmt.Errorf("create page directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	paths, err := d.rasterizer.Rasterize(ctx, path, workDir, d.dpi)
	if err != nil {
		return nil, fmt.Errorf("rasterize pdf %s: %w", filename, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("rasterize pdf %s: no pages rendered", filename)
	}
	if len(paths) != numPages {
		d.logger.Warn("Rendered page count differs from PDF page tree",
			"filename", filename, "pageTree", numPages, "rendered", len(paths))
	}

	pages := make([]PageImage, 0, len(paths))
	for i, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read rendered page %d: %w", i+1, err)
		}
		page, err := decodePage(i, data)
		if err != nil {
			return nil, fmt.Errorf("decode rendered page %d: %w", i+1, err)
		}
		pages = append(pages, page)
	}

	d.logger.Debug("PDF decoded", "filename", filename, "pages", len(pages), "dpi", d.dpi)

	return &Document{
		Filename: filename,
		Kind:     KindPDF,
		Pages:    pages,
	}, nil
}

// countPDFPages parses the page tree. The parser panics on some malformed
// inputs, so panics are reported as errors.
func countPDFPages(path string) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()

	return r.NumPage(), nil
}

func decodePage(index int, data []byte) (PageImage, error) {
	if len(data) == 0 {
		return PageImage{}, fmt.Errorf("empty image data")
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return PageImage{}, err
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return PageImage{}, fmt.Errorf("invalid image size %dx%d", cfg.Width, cfg.Height)
	}

	return PageImage{
		Index:  index,
		Data:   data,
		Format: format,
		Width:  cfg.Width,
		Height: cfg.Height,
	}, nil
}
