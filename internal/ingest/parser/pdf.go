package parser

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"thoth/internal/ingest/errs"
)

// PDFParser handles PDF files: per-page text extraction with
// "[Page N]\n{text}" markers, skipping whitespace-only pages, and
// non-empty {title, author, subject, creator, producer} Info-dictionary
// fields as metadata. This walks the PDF object graph directly: it
// inflates FlateDecode content streams and extracts the operands of the
// Tj/TJ text-showing operators. It does not attempt font-encoding-aware
// glyph mapping or CID fonts, and it reads no cross-reference data:
// objects are found by scanning for "N G obj ... endobj", so objects
// packed inside compressed object streams are not seen. This covers the
// common case of text-producing PDF writers but is not a general PDF
// renderer.
type PDFParser struct{}

func (p *PDFParser) Parse(path string) (ParsedDocument, error) {
	data, err := readFile(path)
	if err != nil {
		return ParsedDocument{}, err
	}
	return p.ParseContent(data, path)
}

var objRe = regexp.MustCompile(`(?s)(\d+)\s+(\d+)\s+obj(.*?)endobj`)
var streamRe = regexp.MustCompile(`(?s)stream\r?\n(.*?)endstream`)
var pageRe = regexp.MustCompile(`/Type\s*/Page([^s]|$)`)
var contentsRefRe = regexp.MustCompile(`/Contents\s+(\d+)\s+\d+\s+R`)
var infoDictRe = regexp.MustCompile(`(?s)/(Title|Author|Subject|Creator|Producer)\s*\((.*?[^\\])\)`)

func (p *PDFParser) ParseContent(data []byte, sourcePath string) (ParsedDocument, error) {
	objects := make(map[int][]byte)
	for _, m := range objRe.FindAllSubmatch(data, -1) {
		num, err := strconv.Atoi(string(m[1]))
		if err != nil {
			continue
		}
		objects[num] = m[3]
	}
	if len(objects) == 0 {
		return ParsedDocument{}, errs.New(errs.ParseError, "no PDF objects found in "+sourcePath, nil)
	}

	var pageNums []int
	for num, body := range objects {
		if pageRe.Match(body) {
			pageNums = append(pageNums, num)
		}
	}
	sort.Ints(pageNums)

	var pageTexts []string
	for _, num := range pageNums {
		body := objects[num]
		m := contentsRefRe.FindSubmatch(body)
		var streamData []byte
		if m != nil {
			ref, _ := strconv.Atoi(string(m[1]))
			streamData = extractStream(objects[ref])
		} else {
			streamData = extractStream(body)
		}
		text := extractText(streamData)
		if strings.TrimSpace(text) == "" {
			continue
		}
		pageTexts = append(pageTexts, fmt.Sprintf("[Page %d]\n%s", len(pageTexts)+1, text))
	}

	metadata := map[string]string{
		"source_path": sourcePath,
		"page_count":  strconv.Itoa(len(pageNums)),
	}
	for _, m := range infoDictRe.FindAllSubmatch(data, -1) {
		key := strings.ToLower(string(m[1]))
		val := unescapePDFString(string(m[2]))
		if val != "" {
			metadata[key] = val
		}
	}

	return ParsedDocument{
		Content:    strings.TrimSpace(strings.Join(pageTexts, "\n\n")),
		Metadata:   metadata,
		SourcePath: sourcePath,
		Format:     "pdf",
	}, nil
}

// extractStream returns the (possibly FlateDecode-inflated) bytes of the
// first stream found in an object body.
func extractStream(body []byte) []byte {
	m := streamRe.FindSubmatch(body)
	if m == nil {
		return nil
	}
	raw := bytes.Trim(m[1], "\r\n")
	if bytes.Contains(body, []byte("FlateDecode")) {
		r, err := zlib.NewReader(bytes.NewReader(raw))
		if err == nil {
			defer r.Close()
			if out, err := io.ReadAll(r); err == nil {
				return out
			}
		}
	}
	return raw
}

var tjRe = regexp.MustCompile(`(?s)\((.*?[^\\])\)\s*Tj`)
var tjArrayRe = regexp.MustCompile(`(?s)\[(.*?)\]\s*TJ`)
var tjArrayStringRe = regexp.MustCompile(`(?s)\((.*?[^\\])\)`)

// extractText pulls the operands of the Tj/TJ text-showing operators out
// of a decoded content stream.
func extractText(stream []byte) string {
	var b strings.Builder
	for _, m := range tjRe.FindAllSubmatch(stream, -1) {
		b.WriteString(unescapePDFString(string(m[1])))
		b.WriteByte(' ')
	}
	for _, m := range tjArrayRe.FindAllSubmatch(stream, -1) {
		for _, s := range tjArrayStringRe.FindAllSubmatch(m[1], -1) {
			b.WriteString(unescapePDFString(string(s[1])))
		}
		b.WriteByte(' ')
	}
	return strings.TrimSpace(b.String())
}

func unescapePDFString(s string) string {
	r := strings.NewReplacer(`\(`, "(", `\)`, ")", `\\`, `\`, `\n`, "\n", `\r`, "\r", `\t`, "\t")
	return r.Replace(s)
}
