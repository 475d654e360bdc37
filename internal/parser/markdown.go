package parser

import (
	"regexp"
	"strings"

	"github.com/maverikod/docanalyzer/internal/errors"
	"github.com/maverikod/docanalyzer/internal/model"
)

var (
	atxHeadingPattern    = regexp.MustCompile(`^(#{1,6})\s+(.+?)\s*#*\s*$`)
	setextH1Pattern      = regexp.MustCompile(`^=+\s*$`)
	setextH2Pattern      = regexp.MustCompile(`^-+\s*$`)
	horizontalRulePattern = regexp.MustCompile(`^(?:\*\s*){3,}$|^(?:-\s*){3,}$|^(?:_\s*){3,}$`)
	orderedListPattern   = regexp.MustCompile(`^\d+\.\s+`)
	unorderedListPattern = regexp.MustCompile(`^[-*+]\s+`)
	blockquotePattern    = regexp.MustCompile(`^>\s?`)
	fencePattern         = regexp.MustCompile("^(```|~~~)")
)

// MarkdownParser recognizes headings (ATX and setext), paragraphs,
// fenced and indented code blocks, list items, block quotes, and
// horizontal rules. Inline formatting is preserved verbatim.
type MarkdownParser struct{}

func (p *MarkdownParser) Parse(path string, content []byte) ([]model.Block, error) {
	text := decode(content)
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	lines := strings.Split(text, "\n")
	var blocks []model.Block
	ordinal := 0
	pos := 0 // byte offset of the start of lines[i]

	lineOffsets := make([]int, len(lines)+1)
	for i, line := range lines {
		lineOffsets[i] = pos
		pos += len(line)
		if i < len(lines)-1 {
			pos++ // the newline
		}
	}
	lineOffsets[len(lines)] = pos

	emit := func(kind model.BlockKind, startLine, endLine int, title string) {
		start := lineOffsets[startLine]
		end := lineOffsets[endLine+1]
		body := strings.TrimRight(text[start:end], "\n")
		end = start + len(body)
		if strings.TrimSpace(body) == "" {
			return
		}
		attrs := map[string]string{}
		block := model.Block{
			Body:       body,
			Kind:       kind,
			Start:      start,
			End:        end,
			StartLine:  startLine + 1,
			EndLine:    endLine + 1,
			Ordinal:    ordinal,
			Title:      title,
			Attributes: attrs,
		}
		blocks = append(blocks, block)
		ordinal++
	}

	i := 0
	for i < len(lines) {
		line := lines[i]
		trimmed := strings.TrimSpace(line)
		headingMatch := atxHeadingPattern.FindStringSubmatch(line)

		switch {
		case trimmed == "":
			i++

		case fencePattern.MatchString(trimmed):
			fence := trimmed[:3]
			start := i
			i++
			for i < len(lines) && !strings.HasPrefix(strings.TrimSpace(lines[i]), fence) {
				i++
			}
			if i < len(lines) {
				i++ // consume closing fence
			}
			emit(model.BlockCode, start, i-1, "")

		case headingMatch != nil:
			m := headingMatch
			level := len(m[1])
			title := strings.TrimSpace(m[2])
			block := model.Block{
				Body:      strings.TrimRight(line, " \t"),
				Kind:      model.BlockHeading,
				Start:     lineOffsets[i],
				End:       lineOffsets[i] + len(strings.TrimRight(line, " \t")),
				StartLine: i + 1,
				EndLine:   i + 1,
				Ordinal:   ordinal,
				Title:     title,
				Attributes: map[string]string{
					"level": headingLevel(level),
				},
			}
			blocks = append(blocks, block)
			ordinal++
			i++

		case i+1 < len(lines) && trimmed != "" && setextH1Pattern.MatchString(strings.TrimSpace(lines[i+1])):
			block := model.Block{
				Body:      line,
				Kind:      model.BlockHeading,
				Start:     lineOffsets[i],
				End:       lineOffsets[i] + len(line),
				StartLine: i + 1,
				EndLine:   i + 1,
				Ordinal:   ordinal,
				Title:     trimmed,
				Attributes: map[string]string{"level": "1"},
			}
			blocks = append(blocks, block)
			ordinal++
			i += 2

		case i+1 < len(lines) && trimmed != "" && setextH2Pattern.MatchString(strings.TrimSpace(lines[i+1])) && !unorderedListPattern.MatchString(trimmed):
			block := model.Block{
				Body:      line,
				Kind:      model.BlockHeading,
				Start:     lineOffsets[i],
				End:       lineOffsets[i] + len(line),
				StartLine: i + 1,
				EndLine:   i + 1,
				Ordinal:   ordinal,
				Title:     trimmed,
				Attributes: map[string]string{"level": "2"},
			}
			blocks = append(blocks, block)
			ordinal++
			i += 2

		case horizontalRulePattern.MatchString(trimmed):
			emit(model.BlockHorizontal, i, i, "")
			i++

		case blockquotePattern.MatchString(line):
			start := i
			for i < len(lines) && blockquotePattern.MatchString(lines[i]) {
				i++
			}
			emit(model.BlockBlockquote, start, i-1, "")

		case unorderedListPattern.MatchString(trimmed) || orderedListPattern.MatchString(trimmed):
			start := i
			i++
			for i < len(lines) {
				t := strings.TrimSpace(lines[i])
				if t == "" || strings.HasPrefix(lines[i], "  ") || strings.HasPrefix(lines[i], "\t") {
					if t == "" {
						break
					}
					i++
					continue
				}
				break
			}
			emit(model.BlockListItem, start, i-1, "")

		case strings.HasPrefix(line, "    ") || strings.HasPrefix(line, "\t"):
			start := i
			for i < len(lines) && (strings.HasPrefix(lines[i], "    ") || strings.HasPrefix(lines[i], "\t") || strings.TrimSpace(lines[i]) == "") {
				i++
			}
			emit(model.BlockCode, start, i-1, "")

		default:
			start := i
			for i < len(lines) {
				t := strings.TrimSpace(lines[i])
				if t == "" ||
					atxHeadingPattern.MatchString(lines[i]) ||
					horizontalRulePattern.MatchString(t) ||
					fencePattern.MatchString(t) ||
					blockquotePattern.MatchString(lines[i]) ||
					unorderedListPattern.MatchString(t) ||
					orderedListPattern.MatchString(t) {
					break
				}
				// A setext underline on the next line ends the paragraph
				// here, leaving this line for reclassification as a heading.
				if i+1 < len(lines) && (setextH1Pattern.MatchString(strings.TrimSpace(lines[i+1])) || setextH2Pattern.MatchString(strings.TrimSpace(lines[i+1]))) {
					break
				}
				i++
			}
			emit(model.BlockParagraph, start, i-1, "")
		}
	}

	if len(blocks) == 0 {
		return nil, errors.New(errors.KindParseError, "parser.markdown", "", path, 0, nil)
	}
	return blocks, nil
}

func headingLevel(level int) string {
	digits := "0123456789"
	if level < 10 {
		return string(digits[level])
	}
	return "6"
}
