// Package parser turns a text or Markdown file's content into an
// ordered sequence of model.Blocks covering the file without gaps.
package parser

import (
	"strings"
	"unicode/utf8"

	"github.com/maverikod/docanalyzer/internal/errors"
	"github.com/maverikod/docanalyzer/internal/model"
)

// Parser turns file content into an ordered, gapless sequence of
// Blocks.
type Parser interface {
	Parse(path string, content []byte) ([]model.Block, error)
}

// ForExtension returns the Parser registered for a case-insensitive
// file extension (including the leading dot), or nil if none applies.
func ForExtension(ext string) Parser {
	switch strings.ToLower(ext) {
	case ".md", ".markdown":
		return &MarkdownParser{}
	case ".txt":
		return &TextParser{}
	default:
		return nil
	}
}

// decode converts content to a valid UTF-8 string, replacing invalid
// byte sequences rather than failing the whole file — an encoding
// error degrades quality, it does not abort the parse.
func decode(content []byte) string {
	if utf8.Valid(content) {
		return string(content)
	}
	return strings.ToValidUTF8(string(content), "�")
}

// TextParser splits plain text into paragraph Blocks on blank-line
// separators, preserving original byte offsets.
type TextParser struct{}

func (p *TextParser) Parse(path string, content []byte) ([]model.Block, error) {
	text := decode(content)
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	var blocks []model.Block
	ordinal := 0
	lineNo := 1
	pos := 0

	paragraphs := splitParagraphs(text)
	for _, para := range paragraphs {
		start := strings.Index(text[pos:], para.raw) + pos
		trimmed := strings.TrimRight(para.raw, " \t")
		end := start + len(trimmed)

		blocks = append(blocks, model.Block{
			Body:      trimmed,
			Kind:      model.BlockParagraph,
			Start:     start,
			End:       end,
			StartLine: lineNo,
			EndLine:   lineNo + strings.Count(trimmed, "\n"),
			Ordinal:   ordinal,
		})
		ordinal++
		lineNo += strings.Count(para.raw, "\n") + 1 + para.trailingBlankLines
		pos = start + len(para.raw)
	}

	if len(blocks) == 0 {
		return nil, errors.New(errors.KindParseError, "parser.text", "", path, 0, nil)
	}
	return blocks, nil
}

type paragraph struct {
	raw                string
	trailingBlankLines int
}

// splitParagraphs splits text on runs of blank lines, keeping each
// paragraph's original text (including internal newlines) intact.
func splitParagraphs(text string) []paragraph {
	lines := strings.Split(text, "\n")
	var out []paragraph
	var current []string
	blanksAfter := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		out = append(out, paragraph{raw: strings.Join(current, "\n"), trailingBlankLines: blanksAfter})
		current = nil
		blanksAfter = 0
	}

	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			if len(current) > 0 {
				blanksAfter++
			}
			flush()
			continue
		}
		current = append(current, line)
	}
	flush()
	return out
}
