package document

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Rasterizer renders every page of a PDF into PNG files inside outDir and
// returns their paths in page order
type Rasterizer interface {
	Rasterize(ctx context.Context, pdfPath, outDir string, dpi int) ([]string, error)
}

// execCommand builds rasterizer subprocesses. Tests may replace it.
var execCommand = exec.CommandContext

// PopplerRasterizer shells out to poppler's pdftoppm
type PopplerRasterizer struct {
	binary string
}

// NewPopplerRasterizer uses binary, or "pdftoppm" from PATH when empty
func NewPopplerRasterizer(binary string) *PopplerRasterizer {
	if binary == "" {
		binary = "pdftoppm"
	}
	return &PopplerRasterizer{binary: binary}
}

// Rasterize runs `pdftoppm -r <dpi> -png <pdf> <outDir>/page`
func (p *PopplerRasterizer) Rasterize(ctx context.Context, pdfPath, outDir string, dpi int) ([]string, error) {
	prefix := filepath.Join(outDir, "page")

	cmd := execCommand(ctx, p.binary, "-r", strconv.Itoa(dpi), "-png", pdfPath, prefix)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s: %w: %s", p.binary, err, msg)
		}
		return nil, fmt.Errorf("%s: %w", p.binary, err)
	}

	matches, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return nil, err
	}
	return sortPagePaths(matches), nil
}

// sortPagePaths orders "page-2.png" before "page-10.png"
func sortPagePaths(paths []string) []string {
	sorted := append([]string(nil), paths...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return pageNumber(sorted[i]) < pageNumber(sorted[j])
	})
	return sorted
}

func pageNumber(path string) int {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	idx := strings.LastIndex(base, "-")
	if idx < 0 {
		return 0
	}
	n, err := strconv.Atoi(base[idx+1:])
	if err != nil {
		return 0
	}
	return n
}
