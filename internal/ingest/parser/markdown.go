package parser

import (
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// MarkdownParser handles Markdown files: UTF-8/latin-1 decoding,
// optional `---\n...\n---\n` frontmatter extraction, format = "markdown".
type MarkdownParser struct{}

func (p *MarkdownParser) Parse(path string) (ParsedDocument, error) {
	data, err := readFile(path)
	if err != nil {
		return ParsedDocument{}, err
	}
	return p.ParseContent(data, path)
}

func (p *MarkdownParser) ParseContent(data []byte, sourcePath string) (ParsedDocument, error) {
	text, usedFallback := decodeTextWithFallback(data)
	if usedFallback {
		log.Warn().Str("source_path", sourcePath).Msg("markdown parser fell back to latin-1 decoding")
	}

	content, frontmatter := extractFrontmatter(text)
	metadata := map[string]string{"source_path": sourcePath}
	for k, v := range frontmatter {
		metadata[k] = v
	}

	return ParsedDocument{
		Content:    strings.TrimSpace(content),
		Metadata:   metadata,
		SourcePath: sourcePath,
		Format:     "markdown",
	}, nil
}

// extractFrontmatter strips a leading "---\n...\n---\n" block and parses
// its body as simple "key: value" lines (no full YAML), stripping outer
// quotes from values.
func extractFrontmatter(text string) (string, map[string]string) {
	if !strings.HasPrefix(text, "---\n") {
		return text, nil
	}
	rest := text[len("---\n"):]
	end := strings.Index(rest, "\n---\n")
	if end < 0 {
		return text, nil
	}
	block := rest[:end]
	body := rest[end+len("\n---\n"):]

	meta := make(map[string]string)
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		idx := strings.Index(line, ":")
		if idx < 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		val := strings.TrimSpace(line[idx+1:])
		if unquoted, err := strconv.Unquote(val); err == nil {
			val = unquoted
		} else {
			val = strings.Trim(val, `"'`)
		}
		if key != "" {
			meta[key] = val
		}
	}
	return body, meta
}
