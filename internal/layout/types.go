/**
 * Layout Types - Word geometry as delivered by OCR engines
 *
 * Engines hand back pages nested as blocks -> lines -> words with
 * normalized geometry. The reconstructor flattens this structure and
 * recomputes line grouping from raw geometry.
 */

package layout

// Point is a normalized coordinate, each axis a fraction of the page size
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Geometry holds the top-left and bottom-right corners of a word box
type Geometry [2]Point

// Word is a single recognized token
type Word struct {
	Value      string   `json:"value"`
	Geometry   Geometry `json:"geometry"`
	Confidence float64  `json:"confidence"`
}

// Line groups words as the engine saw them
type Line struct {
	Words []Word `json:"words"`
}

// Block groups lines as the engine saw them
type Block struct {
	Lines []Line `json:"lines"`
}

// Dimensions is the page size used to denormalize geometry
type Dimensions struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Page is one recognized page
type Page struct {
	Dimensions Dimensions `json:"dimensions"`
	Blocks     []Block    `json:"blocks"`
}

// PositionedWord is a word projected into page units
type PositionedWord struct {
	Text       string
	Confidence float64
	XLeft      float64
	XRight     float64
	XCenter    float64
	YCenter    float64
	Width      float64
}

// Summary aggregates per-document recognition figures
type Summary struct {
	PageCount  int
	WordCount  int
	Confidence float64 // mean word confidence, 0 when there are no words
}
