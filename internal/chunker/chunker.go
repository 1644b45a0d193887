package chunker

// Chunker splits extracted text into overlapping fragments. Boundaries are
// chosen by separator fallback: paragraph breaks first, then line breaks,
// then sentence-ending punctuation, then word breaks, then a hard rune cut.
// Fragments are exact spans of the input, so concatenating them while
// dropping the declared overlap from every fragment after the first
// reconstructs the original text. The same input and parameters always
// produce the same fragment sequence.
type Chunker struct {
	targetSize int
	overlap    int
}

// separators in descending granularity. Sentence enders cover both Latin-style
// punctuation and CJK full stops.
var separators = [][]rune{
	[]rune("\n\n"),
	[]rune("\n"),
	[]rune("。"),
	[]rune("！"),
	[]rune("？"),
	[]rune(". "),
	[]rune("! "),
	[]rune("? "),
	[]rune(" "),
}

// New creates a chunker. Sizes are in runes. A non-positive target falls back
// to 500; an overlap that does not leave room to progress is clamped to a
// fifth of the target.
func New(targetSize, overlap int) *Chunker {
	if targetSize <= 0 {
		targetSize = 500
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= targetSize {
		overlap = targetSize / 5
	}
	return &Chunker{targetSize: targetSize, overlap: overlap}
}

// TargetSize returns the configured fragment size in runes.
func (c *Chunker) TargetSize() int { return c.targetSize }

// Overlap returns the configured overlap in runes.
func (c *Chunker) Overlap() int { return c.overlap }

// Split cuts text into ordered overlapping fragments. Empty input yields nil.
func (c *Chunker) Split(text string) []string {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}
	if n <= c.targetSize {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < n {
		end := start + c.targetSize
		if end >= n {
			chunks = append(chunks, string(runes[start:n]))
			break
		}

		cut := c.cutPoint(runes, start, end)
		chunks = append(chunks, string(runes[start:cut]))
		start = cut - c.overlap
	}

	return chunks
}

// cutPoint picks the boundary for the fragment starting at start, scanning
// the window for the highest-granularity separator whose end lands after the
// overlap region (so the next fragment always makes progress) and at or
// before the target. Falls back to a hard cut at end.
func (c *Chunker) cutPoint(runes []rune, start, end int) int {
	min := start + c.overlap // boundary must be strictly past this
	for _, sep := range separators {
		if cut := lastBoundary(runes, sep, min, end); cut > 0 {
			return cut
		}
	}
	return end
}

// lastBoundary returns the largest position p in (min, end] such that the
// separator ends exactly at p, or 0 when there is none.
func lastBoundary(runes []rune, sep []rune, min, end int) int {
	for p := end; p > min; p-- {
		if matchesAt(runes, sep, p-len(sep)) {
			return p
		}
	}
	return 0
}

func matchesAt(runes, sep []rune, at int) bool {
	if at < 0 || at+len(sep) > len(runes) {
		return false
	}
	for i, r := range sep {
		if runes[at+i] != r {
			return false
		}
	}
	return true
}
