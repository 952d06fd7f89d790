package model

// BlockType identifies the structural role of a parsed block.
type BlockType string

const (
	BlockTypeHeading   BlockType = "heading"
	BlockTypeParagraph BlockType = "paragraph"
	BlockTypeTable     BlockType = "table"
	BlockTypeCode      BlockType = "code"
)

// Block is one structural unit extracted by a document parser, in
// document order. Level is only meaningful for headings.
type Block struct {
	Type  BlockType
	Text  string
	Level int
}

// ParsedDocument is the full output of a document parser: the ordered
// block sequence plus document-level metadata.
type ParsedDocument struct {
	Title    string
	FilePath string
	FileType string
	Blocks   []Block
}
