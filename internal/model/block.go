package model

// BlockKind identifies the structural kind of a parsed Block.
type BlockKind string

const (
	BlockParagraph  BlockKind = "paragraph"
	BlockHeading    BlockKind = "heading"
	BlockListItem   BlockKind = "list_item"
	BlockCode       BlockKind = "code"
	BlockBlockquote BlockKind = "blockquote"
	BlockHorizontal BlockKind = "horizontal_rule"
)

// Block is a contiguous region of a source file, produced by a Parser
// and consumed by the Chunking Manager.
type Block struct {
	Body       string
	Kind       BlockKind
	Start      int // byte offset, inclusive
	End        int // byte offset, exclusive
	StartLine  int // 1-indexed
	EndLine    int // 1-indexed, inclusive
	Ordinal    int // strictly increasing from zero within a file
	Title      string
	Attributes map[string]string
}
