package parser

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"io"
	"strconv"
	"strings"

	"thoth/internal/ingest/errs"
)

// DocxParser handles Word documents: paragraph text plus flattened
// table cell rows (joined " | "), and non-empty core properties among
// {title, author, subject, keywords}. A .docx is a zip archive of XML
// parts per OOXML, so this reads word/document.xml and docProps/core.xml
// directly with archive/zip and encoding/xml.
type DocxParser struct{}

func (p *DocxParser) Parse(path string) (ParsedDocument, error) {
	data, err := readFile(path)
	if err != nil {
		return ParsedDocument{}, err
	}
	return p.ParseContent(data, path)
}

// docxBody models the subset of word/document.xml needed to recover
// paragraph and table text. Body paragraphs and tables are decoded into
// separate lists, so their relative order in the document is not kept.
type docxBody struct {
	XMLName xml.Name     `xml:"document"`
	Body    docxBodyElem `xml:"body"`
}

type docxBodyElem struct {
	Paragraphs []docxParagraph `xml:"p"`
	Tables     []docxTable     `xml:"tbl"`
}

type docxParagraph struct {
	Runs []docxRun `xml:"r"`
}

type docxRun struct {
	Text []string `xml:"t"`
}

type docxTable struct {
	Rows []docxTableRow `xml:"tr"`
}

type docxTableRow struct {
	Cells []docxTableCell `xml:"tc"`
}

type docxTableCell struct {
	Paragraphs []docxParagraph `xml:"p"`
}

func (pg docxParagraph) text() string {
	var b strings.Builder
	for _, r := range pg.Runs {
		for _, t := range r.Text {
			b.WriteString(t)
		}
	}
	return b.String()
}

type coreProperties struct {
	Title    string `xml:"title"`
	Creator  string `xml:"creator"`
	Subject  string `xml:"subject"`
	Keywords string `xml:"keywords"`
}

func (p *DocxParser) ParseContent(data []byte, sourcePath string) (ParsedDocument, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return ParsedDocument{}, errs.New(errs.ParseError, "not a valid docx archive: "+sourcePath, err)
	}

	docXML, err := readZipEntry(zr, "word/document.xml")
	if err != nil {
		return ParsedDocument{}, errs.New(errs.ParseError, "missing word/document.xml in "+sourcePath, err)
	}

	var body docxBody
	if err := xml.Unmarshal(docXML, &body); err != nil {
		return ParsedDocument{}, errs.New(errs.ParseError, "parse word/document.xml in "+sourcePath, err)
	}

	var parts []string
	paragraphCount := 0
	for _, pg := range body.Body.Paragraphs {
		if t := strings.TrimSpace(pg.text()); t != "" {
			parts = append(parts, t)
			paragraphCount++
		}
	}
	for _, tbl := range body.Body.Tables {
		for _, row := range tbl.Rows {
			var cells []string
			for _, cell := range row.Cells {
				var cellParts []string
				for _, pg := range cell.Paragraphs {
					if t := strings.TrimSpace(pg.text()); t != "" {
						cellParts = append(cellParts, t)
					}
				}
				cells = append(cells, strings.Join(cellParts, " "))
			}
			parts = append(parts, strings.Join(cells, " | "))
		}
	}

	metadata := map[string]string{
		"source_path":     sourcePath,
		"paragraph_count": strconv.Itoa(paragraphCount),
	}
	if coreXML, err := readZipEntry(zr, "docProps/core.xml"); err == nil {
		var props coreProperties
		if xml.Unmarshal(coreXML, &props) == nil {
			addIfNonEmpty(metadata, "title", props.Title)
			addIfNonEmpty(metadata, "author", props.Creator)
			addIfNonEmpty(metadata, "subject", props.Subject)
			addIfNonEmpty(metadata, "keywords", props.Keywords)
		}
	}

	return ParsedDocument{
		Content:    strings.TrimSpace(strings.Join(parts, "\n")),
		Metadata:   metadata,
		SourcePath: sourcePath,
		Format:     "docx",
	}, nil
}

func addIfNonEmpty(m map[string]string, key, val string) {
	if strings.TrimSpace(val) != "" {
		m[key] = val
	}
}

func readZipEntry(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name == name {
			rc, err := f.Open()
			if err != nil {
				return nil, err
			}
			defer rc.Close()
			return io.ReadAll(rc)
		}
	}
	return nil, errs.New(errs.ParseError, "zip entry not found: "+name, nil)
}
