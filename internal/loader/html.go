package loader

import (
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// HTMLStrategy extracts visible body text from an HTML document. Script and
// style contents are stripped before extraction.
type HTMLStrategy struct{}

func (s *HTMLStrategy) Load(path string) ([]Section, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, &ExtractionError{Path: path, Err: err}
	}
	defer file.Close()

	doc, err := goquery.NewDocumentFromReader(file)
	if err != nil {
		return nil, &ExtractionError{Path: path, Err: err}
	}

	doc.Find("script, style, noscript").Remove()

	title := strings.TrimSpace(doc.Find("title").First().Text())

	body := doc.Find("body")
	if body.Length() == 0 {
		body = doc.Selection
	}

	text := normalizeWhitespace(body.Text())
	if text == "" {
		return nil, nil
	}

	return []Section{{Index: 0, Label: title, Text: text}}, nil
}

// normalizeWhitespace collapses runs of blank lines and trims each line,
// since rendered HTML text tends to carry heavy indentation.
func normalizeWhitespace(text string) string {
	lines := strings.Split(text, "\n")
	var out []string
	blank := false
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
