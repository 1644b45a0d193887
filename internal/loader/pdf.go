package loader

import (
	"fmt"
	"strings"

	"github.com/gen2brain/go-fitz"
)

// PDFStrategy extracts text page by page, preserving page order. One section
// per non-empty page.
type PDFStrategy struct{}

func (s *PDFStrategy) Load(path string) ([]Section, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, &ExtractionError{Path: path, Err: err}
	}
	defer doc.Close()

	var sections []Section
	for i := 0; i < doc.NumPage(); i++ {
		pageText, err := doc.Text(i)
		if err != nil {
			return nil, &ExtractionError{Path: path, Err: fmt.Errorf("page %d: %w", i+1, err)}
		}

		pageText = strings.TrimSpace(pageText)
		if pageText == "" {
			continue
		}

		sections = append(sections, Section{
			Index: len(sections),
			Label: fmt.Sprintf("page %d", i+1),
			Text:  pageText,
		})
	}

	return sections, nil
}
