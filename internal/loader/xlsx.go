package loader

import (
	"strings"

	"github.com/xuri/excelize/v2"
)

// XLSXStrategy extracts spreadsheet content sheet by sheet, one section per
// non-empty sheet. Cells are joined with tabs, rows with newlines.
type XLSXStrategy struct{}

func (s *XLSXStrategy) Load(path string) ([]Section, error) {
	file, err := excelize.OpenFile(path)
	if err != nil {
		return nil, &ExtractionError{Path: path, Err: err}
	}
	defer file.Close()

	var sections []Section
	for _, sheet := range file.GetSheetList() {
		rows, err := file.GetRows(sheet)
		if err != nil {
			return nil, &ExtractionError{Path: path, Err: err}
		}

		var lines []string
		for _, row := range rows {
			line := strings.TrimSpace(strings.Join(row, "\t"))
			if line != "" {
				lines = append(lines, line)
			}
		}
		if len(lines) == 0 {
			continue
		}

		sections = append(sections, Section{
			Index: len(sections),
			Label: sheet,
			Text:  strings.Join(lines, "\n"),
		})
	}

	return sections, nil
}
