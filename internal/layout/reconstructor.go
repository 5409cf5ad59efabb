/**
 * Layout Reconstructor
 *
 * Rebuilds readable text from a flat set of recognized words:
 * - Denormalizes word geometry into page units
 * - Clusters words into visual lines by vertical center
 * - Orders each line left to right
 * - Synthesizes inter-word spacing from horizontal gaps
 *
 * All functions are pure and safe for concurrent use.
 */

package layout

import (
	"math"
	"sort"
	"strings"
)

const (
	// YThreshold is the maximum vertical distance between a word center
	// and the running line estimate for the word to join that line
	YThreshold = 15.0

	// WideGapFactor and GapFactor scale the line's average word width
	WideGapFactor = 3.0
	GapFactor     = 1.5

	wideSeparator   = "    "
	mediumSeparator = "  "
	narrowSeparator = " "
)

// Reconstruct renders all pages as a single newline-joined string.
// Lines of consecutive pages are separated exactly like lines within a page.
func Reconstruct(pages []Page) string {
	var lines []string
	for _, page := range pages {
		lines = append(lines, ReconstructPage(page)...)
	}
	return strings.Join(lines, "\n")
}

// ReconstructPage returns the rendered lines of one page, top to bottom
func ReconstructPage(page Page) []string {
	clusters := ClusterLines(PositionWords(page))

	lines := make([]string, 0, len(clusters))
	for _, cluster := range clusters {
		lines = append(lines, FormatLine(cluster))
	}
	return lines
}

// PositionWords denormalizes every word on the page and sorts the result by
// vertical center, then horizontal center. The sort is stable so ties keep
// the engine's encounter order.
func PositionWords(page Page) []PositionedWord {
	width := page.Dimensions.Width
	height := page.Dimensions.Height

	var words []PositionedWord
	for _, block := range page.Blocks {
		for _, line := range block.Lines {
			for _, w := range line.Words {
				words = append(words, position(w, width, height))
			}
		}
	}

	sort.SliceStable(words, func(i, j int) bool {
		if words[i].YCenter != words[j].YCenter {
			return words[i].YCenter < words[j].YCenter
		}
		return words[i].XCenter < words[j].XCenter
	})

	return words
}

func position(w Word, width, height float64) PositionedWord {
	xLeft := w.Geometry[0].X * width
	xRight := w.Geometry[1].X * width

	return PositionedWord{
		Text:       w.Value,
		Confidence: w.Confidence,
		XLeft:      xLeft,
		XRight:     xRight,
		XCenter:    (xLeft + xRight) / 2,
		YCenter:    (w.Geometry[0].Y + w.Geometry[1].Y) / 2 * height,
		Width:      xRight - xLeft,
	}
}

// ClusterLines groups presorted words into lines in a single pass. The line
// estimate is updated as (estimate + y) / 2, which weights recent words more
// than a true mean would. Each returned line is sorted by horizontal center.
func ClusterLines(words []PositionedWord) [][]PositionedWord {
	var (
		lines    [][]PositionedWord
		current  []PositionedWord
		currentY float64
		hasY     bool
	)

	closeLine := func() {
		sort.SliceStable(current, func(i, j int) bool {
			return current[i].XCenter < current[j].XCenter
		})
		lines = append(lines, current)
	}

	for _, w := range words {
		if !hasY || math.Abs(w.YCenter-currentY) <= YThreshold {
			current = append(current, w)
			if !hasY {
				currentY = w.YCenter
				hasY = true
			} else {
				currentY = (currentY + w.YCenter) / 2
			}
			continue
		}

		closeLine()
		current = []PositionedWord{w}
		currentY = w.YCenter
	}

	if len(current) > 0 {
		closeLine()
	}

	return lines
}

// FormatLine joins the words of one line, widening the separator where the
// gap to the previous word is large relative to the average word width.
// Words must already be in left-to-right order.
func FormatLine(words []PositionedWord) string {
	switch len(words) {
	case 0:
		return ""
	case 1:
		return words[0].Text
	}

	var total float64
	for _, w := range words {
		total += w.Width
	}
	avgWidth := total / float64(len(words))

	var sb strings.Builder
	sb.WriteString(words[0].Text)
	for i := 1; i < len(words); i++ {
		gap := words[i].XLeft - words[i-1].XRight
		sb.WriteString(separator(gap, avgWidth))
		sb.WriteString(words[i].Text)
	}

	return sb.String()
}

func separator(gap, avgWidth float64) string {
	switch {
	case gap > avgWidth*WideGapFactor:
		return wideSeparator
	case gap > avgWidth*GapFactor:
		return mediumSeparator
	default:
		return narrowSeparator
	}
}

// Stats counts words and averages their confidence across all pages
func Stats(pages []Page) Summary {
	summary := Summary{PageCount: len(pages)}

	var total float64
	for _, page := range pages {
		for _, block := range page.Blocks {
			for _, line := range block.Lines {
				for _, w := range line.Words {
					summary.WordCount++
					total += w.Confidence
				}
			}
		}
	}

	if summary.WordCount > 0 {
		summary.Confidence = total / float64(summary.WordCount)
	}

	return summary
}
