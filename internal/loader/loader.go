package loader

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Section is one ordered piece of extracted text: a PDF page, a spreadsheet
// sheet, or the whole body of a flat file. Label carries the page number or
// sheet name for attribution.
type Section struct {
	Index int
	Label string
	Text  string
}

// Strategy extracts ordered plain-text sections from one file format.
// Implementations are pure reads of the source file.
type Strategy interface {
	Load(path string) ([]Section, error)
}

// UnsupportedTypeError is returned when neither the declared type nor the
// file extension resolves to a registered strategy. Not retryable without
// user action.
type UnsupportedTypeError struct {
	DeclaredType string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("unsupported document type %q", e.DeclaredType)
}

// ExtractionError wraps a decode failure from an underlying format library.
type ExtractionError struct {
	Path string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("failed to extract text from %s: %v", e.Path, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// canonical internal type names
const (
	TypeText     = "text"
	TypeMarkdown = "markdown"
	TypePDF      = "pdf"
	TypeHTML     = "html"
	TypeXLSX     = "xlsx"
)

// extTypes maps file extensions to canonical type names.
var extTypes = map[string]string{
	".txt":  TypeText,
	".log":  TypeText,
	".md":   TypeMarkdown,
	".pdf":  TypePDF,
	".html": TypeHTML,
	".htm":  TypeHTML,
	".xlsx": TypeXLSX,
}

// mimeTypes maps declared MIME types to canonical type names.
var mimeTypes = map[string]string{
	"text/plain":      TypeText,
	"text/markdown":   TypeMarkdown,
	"application/pdf": TypePDF,
	"text/html":       TypeHTML,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": TypeXLSX,
}

// ResolveType reduces "the extension says X" and "the declared MIME type says
// X" to one canonical type name. The declared type wins when it is known; the
// extension is the fallback.
func ResolveType(fileName, declaredType string) (string, error) {
	declared := strings.ToLower(strings.TrimSpace(declaredType))
	if declared != "" {
		if canonical, ok := mimeTypes[declared]; ok {
			return canonical, nil
		}
		// The declared type may already be a canonical name or a bare
		// extension like "pdf".
		if canonical, ok := extTypes["."+declared]; ok {
			return canonical, nil
		}
		for _, canonical := range extTypes {
			if declared == canonical {
				return declared, nil
			}
		}
	}

	if ext := strings.ToLower(filepath.Ext(fileName)); ext != "" {
		if canonical, ok := extTypes[ext]; ok {
			return canonical, nil
		}
	}

	return "", &UnsupportedTypeError{DeclaredType: declaredType}
}

// Registry dispatches a canonical type name to its extraction strategy. New
// formats are added by registering a new strategy, no other changes needed.
type Registry struct {
	strategies map[string]Strategy
}

// NewRegistry returns a registry with all built-in strategies registered.
func NewRegistry() *Registry {
	r := &Registry{strategies: make(map[string]Strategy)}
	text := &TextStrategy{}
	r.Register(TypeText, text)
	r.Register(TypeMarkdown, text)
	r.Register(TypePDF, &PDFStrategy{})
	r.Register(TypeHTML, &HTMLStrategy{})
	r.Register(TypeXLSX, &XLSXStrategy{})
	return r
}

// Register binds a canonical type name to a strategy, replacing any previous
// binding.
func (r *Registry) Register(typeName string, s Strategy) {
	r.strategies[typeName] = s
}

// Load resolves the declared type and extracts ordered text sections.
func (r *Registry) Load(path, declaredType string) ([]Section, error) {
	canonical, err := ResolveType(path, declaredType)
	if err != nil {
		return nil, err
	}

	strategy, ok := r.strategies[canonical]
	if !ok {
		return nil, &UnsupportedTypeError{DeclaredType: declaredType}
	}

	return strategy.Load(path)
}

// PreviewText returns up to maxChars runes of the document's extracted text.
func (r *Registry) PreviewText(path, declaredType string, maxChars int) (string, error) {
	sections, err := r.Load(path, declaredType)
	if err != nil {
		return "", err
	}

	var builder strings.Builder
	remaining := maxChars
	for _, section := range sections {
		if remaining <= 0 {
			break
		}
		runes := []rune(section.Text)
		if len(runes) > remaining {
			runes = runes[:remaining]
		}
		builder.WriteString(string(runes))
		remaining -= len(runes)
	}

	return builder.String(), nil
}

// JoinSections concatenates section texts in order with paragraph breaks
// between them, producing the single stream the chunker consumes.
func JoinSections(sections []Section) string {
	parts := make([]string, 0, len(sections))
	for _, section := range sections {
		if strings.TrimSpace(section.Text) == "" {
			continue
		}
		parts = append(parts, section.Text)
	}
	return strings.Join(parts, "\n\n")
}
