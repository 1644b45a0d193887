package loader

import (
	"os"
	"strings"
)

// TextStrategy handles flat text formats (plain text, markdown). The whole
// file is one section.
type TextStrategy struct{}

func (s *TextStrategy) Load(path string) ([]Section, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ExtractionError{Path: path, Err: err}
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil, nil
	}

	return []Section{{Index: 0, Text: text}}, nil
}
