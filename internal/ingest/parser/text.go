package parser

import (
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// TextParser handles plain-text files: UTF-8/latin-1 decoding,
// char_count/line_count metadata, format = "text".
type TextParser struct{}

func (p *TextParser) Parse(path string) (ParsedDocument, error) {
	data, err := readFile(path)
	if err != nil {
		return ParsedDocument{}, err
	}
	return p.ParseContent(data, path)
}

func (p *TextParser) ParseContent(data []byte, sourcePath string) (ParsedDocument, error) {
	text, usedFallback := decodeTextWithFallback(data)
	if usedFallback {
		log.Warn().Str("source_path", sourcePath).Msg("text parser fell back to latin-1 decoding")
	}
	content := strings.TrimSpace(text)

	return ParsedDocument{
		Content: content,
		Metadata: map[string]string{
			"source_path": sourcePath,
			"char_count":  strconv.Itoa(len([]rune(content))),
			"line_count":  strconv.Itoa(strings.Count(content, "\n") + 1),
		},
		SourcePath: sourcePath,
		Format:     "text",
	}, nil
}
