package parser

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"thoth/internal/ingest/errs"
)

func TestFactory_DispatchIsCaseInsensitive(t *testing.T) {
	f := NewFactory()

	p, ok := f.For(".MD")
	require.True(t, ok)
	require.IsType(t, &MarkdownParser{}, p)

	p, ok = f.For(".Txt")
	require.True(t, ok)
	require.IsType(t, &TextParser{}, p)

	_, ok = f.For(".html")
	require.False(t, ok)
}

func TestFactory_ParseUnsupportedExtension(t *testing.T) {
	f := NewFactory()
	_, err := f.Parse("notes.html")
	require.True(t, errs.Is(err, errs.ParseError))
}

func TestFactory_ParseMissingFile(t *testing.T) {
	f := NewFactory()
	_, err := f.Parse(filepath.Join(t.TempDir(), "absent.md"))
	require.True(t, errs.Is(err, errs.FileNotFound))
}

func TestMarkdownParser_Frontmatter(t *testing.T) {
	input := "---\ntitle: \"Getting Started\"\nauthor: 'Ada'\nempty:\n---\n# Hello\n\nbody text\n"
	doc, err := (&MarkdownParser{}).ParseContent([]byte(input), "docs/start.md")
	require.NoError(t, err)

	require.Equal(t, "markdown", doc.Format)
	require.Equal(t, "docs/start.md", doc.SourcePath)
	require.Equal(t, "# Hello\n\nbody text", doc.Content)
	require.Equal(t, "Getting Started", doc.Metadata["title"])
	require.Equal(t, "Ada", doc.Metadata["author"])
	require.Equal(t, "docs/start.md", doc.Metadata["source_path"])
}

func TestMarkdownParser_UnterminatedFrontmatterKept(t *testing.T) {
	input := "---\ntitle: dangling\n\n# Heading\n"
	doc, err := (&MarkdownParser{}).ParseContent([]byte(input), "a.md")
	require.NoError(t, err)
	require.Contains(t, doc.Content, "title: dangling")
	require.NotContains(t, doc.Metadata, "title")
}

func TestMarkdownParser_Latin1Fallback(t *testing.T) {
	// 0xE9 is 'é' in latin-1 but invalid as a standalone UTF-8 byte.
	doc, err := (&MarkdownParser{}).ParseContent([]byte{'c', 'a', 'f', 0xE9}, "menu.md")
	require.NoError(t, err)
	require.Equal(t, "café", doc.Content)
}

func TestTextParser_Counts(t *testing.T) {
	doc, err := (&TextParser{}).ParseContent([]byte("  one\ntwo\nthree  "), "notes.txt")
	require.NoError(t, err)
	require.Equal(t, "text", doc.Format)
	require.Equal(t, "one\ntwo\nthree", doc.Content)
	require.Equal(t, "13", doc.Metadata["char_count"])
	require.Equal(t, "3", doc.Metadata["line_count"])
}

func TestTextParser_ParseReadsFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "note.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	doc, err := (&TextParser{}).Parse(path)
	require.NoError(t, err)
	require.Equal(t, "hello", doc.Content)
	require.Equal(t, path, doc.SourcePath)
}

func buildDocx(t *testing.T, documentXML, coreXML string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(documentXML))
	require.NoError(t, err)
	if coreXML != "" {
		w, err = zw.Create("docProps/core.xml")
		require.NoError(t, err)
		_, err = w.Write([]byte(coreXML))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestDocxParser_ParagraphsAndTables(t *testing.T) {
	documentXML := `<?xml version="1.0"?>
<document>
  <body>
    <p><r><t>First paragraph.</t></r></p>
    <p><r><t>Second </t></r><r><t>paragraph.</t></r></p>
    <p><r><t>   </t></r></p>
    <tbl>
      <tr>
        <tc><p><r><t>Name</t></r></p></tc>
        <tc><p><r><t>Role</t></r></p></tc>
      </tr>
      <tr>
        <tc><p><r><t>Ada</t></r></p></tc>
        <tc><p><r><t>Engineer</t></r></p></tc>
      </tr>
    </tbl>
  </body>
</document>`
	coreXML := `<?xml version="1.0"?>
<coreProperties>
  <title>Team Roster</title>
  <creator>HR</creator>
  <subject>  </subject>
</coreProperties>`

	doc, err := (&DocxParser{}).ParseContent(buildDocx(t, documentXML, coreXML), "roster.docx")
	require.NoError(t, err)

	require.Equal(t, "docx", doc.Format)
	require.Contains(t, doc.Content, "First paragraph.")
	require.Contains(t, doc.Content, "Second paragraph.")
	require.Contains(t, doc.Content, "Name | Role")
	require.Contains(t, doc.Content, "Ada | Engineer")
	require.Equal(t, "2", doc.Metadata["paragraph_count"])
	require.Equal(t, "Team Roster", doc.Metadata["title"])
	require.Equal(t, "HR", doc.Metadata["author"])
	// Whitespace-only core properties are dropped.
	require.NotContains(t, doc.Metadata, "subject")
}

func TestDocxParser_NotAZip(t *testing.T) {
	_, err := (&DocxParser{}).ParseContent([]byte("plain text, not a zip"), "bad.docx")
	require.True(t, errs.Is(err, errs.ParseError))
}

func TestPDFParser_PagesAndInfo(t *testing.T) {
	pdf := strings.Join([]string{
		"%PDF-1.4",
		"1 0 obj",
		"<< /Type /Page /Contents 2 0 R >>",
		"endobj",
		"2 0 obj",
		"<< /Length 40 >>",
		"stream",
		"BT (Hello from the first page.) Tj ET",
		"endstream",
		"endobj",
		"3 0 obj",
		"<< /Type /Page /Contents 4 0 R >>",
		"endobj",
		"4 0 obj",
		"<< /Length 20 >>",
		"stream",
		"BT ( ) Tj ET",
		"endstream",
		"endobj",
		"5 0 obj",
		"<< /Title (Quarterly Report) /Author (Finance) >>",
		"endobj",
	}, "\n")

	doc, err := (&PDFParser{}).ParseContent([]byte(pdf), "report.pdf")
	require.NoError(t, err)

	require.Equal(t, "pdf", doc.Format)
	require.Contains(t, doc.Content, "[Page 1]")
	require.Contains(t, doc.Content, "Hello from the first page.")
	// The second page is whitespace-only and must not appear.
	require.NotContains(t, doc.Content, "[Page 2]")
	require.Equal(t, "2", doc.Metadata["page_count"])
	require.Equal(t, "Quarterly Report", doc.Metadata["title"])
	require.Equal(t, "Finance", doc.Metadata["author"])
}

func TestPDFParser_NoObjects(t *testing.T) {
	_, err := (&PDFParser{}).ParseContent([]byte("not a pdf at all"), "bad.pdf")
	require.True(t, errs.Is(err, errs.ParseError))
}

func TestDecodeTextWithFallback(t *testing.T) {
	s, fellBack := decodeTextWithFallback([]byte("plain ascii"))
	require.False(t, fellBack)
	require.Equal(t, "plain ascii", s)

	s, fellBack = decodeTextWithFallback([]byte{0xFF, 0xFE})
	require.True(t, fellBack)
	require.Equal(t, "ÿþ", s)
}
