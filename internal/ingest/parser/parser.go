// Package parser converts raw file bytes of one of
// {markdown, pdf, text, docx} into a (plain_text, metadata) pair, dispatched
// by lowercase file extension via a factory that caches one parser instance
// per extension.
package parser

import (
	"os"
	"strings"
	"unicode/utf8"

	"thoth/internal/ingest/errs"
)

// ParsedDocument is a parser's output: decoded text plus scalar metadata.
type ParsedDocument struct {
	Content    string
	Metadata   map[string]string
	SourcePath string
	Format     string
}

// DocumentParser is the per-format parsing contract.
type DocumentParser interface {
	// Parse reads path from the local filesystem and parses its bytes.
	Parse(path string) (ParsedDocument, error)
	// ParseContent parses already-read bytes, tagging the result with
	// sourcePath for error messages and the ParsedDocument.SourcePath
	// field. It never fails on well-formed input of the declared format.
	ParseContent(data []byte, sourcePath string) (ParsedDocument, error)
}

// Factory dispatches by lowercase file extension, caching one parser
// instance per extension for the life of the process.
type Factory struct {
	parsers map[string]DocumentParser
}

// NewFactory builds the extension → parser table.
func NewFactory() *Factory {
	md := &MarkdownParser{}
	txt := &TextParser{}
	pdf := &PDFParser{}
	docx := &DocxParser{}
	return &Factory{parsers: map[string]DocumentParser{
		".md":       md,
		".markdown": md,
		".mdown":    md,
		".txt":      txt,
		".text":     txt,
		".pdf":      pdf,
		".docx":     docx,
	}}
}

// For returns the cached parser for the given file extension (case
// insensitive, leading dot required), or false if unsupported.
func (f *Factory) For(ext string) (DocumentParser, bool) {
	p, ok := f.parsers[strings.ToLower(ext)]
	return p, ok
}

// Parse dispatches path to the parser selected by its extension.
func (f *Factory) Parse(path string) (ParsedDocument, error) {
	ext := extOf(path)
	p, ok := f.For(ext)
	if !ok {
		return ParsedDocument{}, errs.New(errs.ParseError, "unsupported file extension "+ext, nil)
	}
	return p.Parse(path)
}

func extOf(path string) string {
	idx := strings.LastIndexByte(path, '.')
	if idx < 0 {
		return ""
	}
	return strings.ToLower(path[idx:])
}

// readFile is shared by every parser's Parse method.
func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.New(errs.FileNotFound, path, err)
		}
		return nil, errs.New(errs.ParseError, "read "+path, err)
	}
	return data, nil
}

// decodeTextWithFallback decodes UTF-8, falling back to a latin-1
// (ISO-8859-1, one byte per rune) interpretation when the bytes are not
// valid UTF-8. Used by the Markdown and plain-text parsers; callers log
// when the fallback fires.
func decodeTextWithFallback(data []byte) (string, bool) {
	if utf8.Valid(data) {
		return string(data), false
	}
	runes := make([]rune, len(data))
	for i, b := range data {
		runes[i] = rune(b)
	}
	return string(runes), true
}
