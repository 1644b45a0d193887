package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestResolveType(t *testing.T) {
	tests := []struct {
		name         string
		fileName     string
		declaredType string
		want         string
	}{
		{"extension only", "notes.txt", "", TypeText},
		{"markdown extension", "readme.md", "", TypeMarkdown},
		{"mime type wins", "document.bin", "application/pdf", TypePDF},
		{"bare extension as declared type", "document.bin", "pdf", TypePDF},
		{"canonical name as declared type", "document.bin", "html", TypeHTML},
		{"upper case extension", "REPORT.PDF", "", TypePDF},
		{"htm alias", "page.htm", "", TypeHTML},
		{"spreadsheet mime", "data.bin", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", TypeXLSX},
		{"unknown declared type falls back to extension", "notes.txt", "application/octet-stream", TypeText},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveType(tt.fileName, tt.declaredType)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveTypeUnsupported(t *testing.T) {
	_, err := ResolveType("program.exe", "application/x-msdownload")

	var unsupported *UnsupportedTypeError
	require.ErrorAs(t, err, &unsupported)
	assert.Contains(t, unsupported.Error(), "application/x-msdownload")
}

func TestTextStrategyLoad(t *testing.T) {
	path := writeFile(t, "notes.txt", "  hello world\nsecond line  \n")

	sections, err := (&TextStrategy{}).Load(path)
	require.NoError(t, err)
	require.Len(t, sections, 1)
	assert.Equal(t, "hello world\nsecond line", sections[0].Text)
	assert.Equal(t, 0, sections[0].Index)
}

func TestTextStrategyEmptyFile(t *testing.T) {
	path := writeFile(t, "empty.txt", "   \n  \n")

	sections, err := (&TextStrategy{}).Load(path)
	require.NoError(t, err)
	assert.Empty(t, sections)
}

func TestTextStrategyMissingFile(t *testing.T) {
	_, err := (&TextStrategy{}).Load(filepath.Join(t.TempDir(), "missing.txt"))

	var extraction *ExtractionError
	require.ErrorAs(t, err, &extraction)
}

func TestHTMLStrategyStripsScriptsAndStyles(t *testing.T) {
	path := writeFile(t, "page.html", `<html>
<head><title>Test Page</title><style>body { color: red }</style></head>
<body>
  <script>console.log("ignore me")</script>
  <h1>Heading</h1>
  <p>Paragraph text.</p>
</body>
</html>`)

	sections, err := (&HTMLStrategy{}).Load(path)
	require.NoError(t, err)
	require.Len(t, sections, 1)

	assert.Equal(t, "Test Page", sections[0].Label)
	assert.Contains(t, sections[0].Text, "Heading")
	assert.Contains(t, sections[0].Text, "Paragraph text.")
	assert.NotContains(t, sections[0].Text, "ignore me")
	assert.NotContains(t, sections[0].Text, "color: red")
}

func TestRegistryLoadDispatchesByType(t *testing.T) {
	path := writeFile(t, "doc.md", "# Title\n\nBody text")

	sections, err := NewRegistry().Load(path, "")
	require.NoError(t, err)
	require.Len(t, sections, 1)
	assert.Contains(t, sections[0].Text, "Body text")
}

func TestRegistryLoadUnsupported(t *testing.T) {
	_, err := NewRegistry().Load("file.xyz", "")

	var unsupported *UnsupportedTypeError
	assert.ErrorAs(t, err, &unsupported)
}

func TestPreviewTextTruncates(t *testing.T) {
	path := writeFile(t, "long.txt", "abcdefghijklmnopqrstuvwxyz")

	preview, err := NewRegistry().PreviewText(path, "", 10)
	require.NoError(t, err)
	assert.Equal(t, "abcdefghij", preview)
}

func TestJoinSections(t *testing.T) {
	joined := JoinSections([]Section{
		{Index: 0, Text: "first"},
		{Index: 1, Text: "   "},
		{Index: 2, Text: "second"},
	})
	assert.Equal(t, "first\n\nsecond", joined)
}
