package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/treeline-rag/treeline/model"
)

func testDocument(blocks ...model.Block) *model.ParsedDocument {
	return &model.ParsedDocument{
		Title:    "Test Document",
		FilePath: "/tmp/test.md",
		FileType: "markdown",
		Blocks:   blocks,
	}
}

func TestTreeBuilderBuild(t *testing.T) {
	builder := NewTreeBuilder(model.DefaultChunkingConfig())

	t.Run("Empty document yields only the root chunk", func(t *testing.T) {
		content, err := builder.Build(testDocument())

		require.NoError(t, err)
		require.Len(t, content.Chunks, 1, "Expected only the root chunk")
		root := content.Chunks[0]
		assert.Equal(t, model.ChunkTypeDocument, root.ChunkType)
		assert.Equal(t, int64(0), root.Index)
		assert.Equal(t, model.NoParent, root.ParentID)
		assert.Equal(t, 0, root.Level)
		assert.Contains(t, root.Content, "Test Document", "Expected the root to carry the title")
	})

	t.Run("Nil document is rejected", func(t *testing.T) {
		_, err := builder.Build(nil)
		assert.Error(t, err)
	})

	t.Run("Headings build sections and subsections", func(t *testing.T) {
		content, err := builder.Build(testDocument(
			model.Block{Type: model.BlockTypeHeading, Text: "Intro", Level: 1},
			model.Block{Type: model.BlockTypeParagraph, Text: strings.Repeat("Section paragraph content here. ", 3)},
			model.Block{Type: model.BlockTypeHeading, Text: "Details", Level: 3},
			model.Block{Type: model.BlockTypeParagraph, Text: strings.Repeat("Subsection paragraph content. ", 3)},
		))

		require.NoError(t, err)
		require.Len(t, content.Chunks, 5)

		section := content.Chunks[1]
		assert.Equal(t, model.ChunkTypeSection, section.ChunkType)
		assert.Equal(t, 1, section.Level)
		assert.Equal(t, int64(0), section.ParentID, "Expected sections to hang off the root")

		sectionParagraph := content.Chunks[2]
		assert.Equal(t, model.ChunkTypeParagraph, sectionParagraph.ChunkType)
		assert.Equal(t, 2, sectionParagraph.Level)
		assert.Equal(t, section.Index, sectionParagraph.ParentID)

		subsection := content.Chunks[3]
		assert.Equal(t, model.ChunkTypeSubsection, subsection.ChunkType)
		assert.Equal(t, 2, subsection.Level)
		assert.Equal(t, section.Index, subsection.ParentID)

		subsectionParagraph := content.Chunks[4]
		assert.Equal(t, 3, subsectionParagraph.Level)
		assert.Equal(t, subsection.Index, subsectionParagraph.ParentID)
	})

	t.Run("New section resets the open subsection", func(t *testing.T) {
		content, err := builder.Build(testDocument(
			model.Block{Type: model.BlockTypeHeading, Text: "First", Level: 1},
			model.Block{Type: model.BlockTypeHeading, Text: "Sub", Level: 3},
			model.Block{Type: model.BlockTypeHeading, Text: "Second", Level: 2},
			model.Block{Type: model.BlockTypeParagraph, Text: strings.Repeat("Paragraph after the second section. ", 3)},
		))

		require.NoError(t, err)
		require.Len(t, content.Chunks, 5)

		secondSection := content.Chunks[3]
		require.Equal(t, model.ChunkTypeSection, secondSection.ChunkType)

		paragraph := content.Chunks[4]
		assert.Equal(t, secondSection.Index, paragraph.ParentID, "Expected the paragraph to attach to the new section, not the stale subsection")
		assert.Equal(t, 2, paragraph.Level)
	})

	t.Run("Subsection without a section hangs off the root", func(t *testing.T) {
		content, err := builder.Build(testDocument(
			model.Block{Type: model.BlockTypeHeading, Text: "Standalone", Level: 3},
		))

		require.NoError(t, err)
		require.Len(t, content.Chunks, 2)

		subsection := content.Chunks[1]
		assert.Equal(t, model.ChunkTypeSubsection, subsection.ChunkType)
		assert.Equal(t, int64(0), subsection.ParentID)
		assert.Equal(t, 1, subsection.Level, "Expected a root-attached subsection to sit at level 1")
	})

	t.Run("Document without headings attaches paragraphs to the root", func(t *testing.T) {
		content, err := builder.Build(testDocument(
			model.Block{Type: model.BlockTypeParagraph, Text: strings.Repeat("Plain paragraph without any structure. ", 3)},
		))

		require.NoError(t, err)
		require.Len(t, content.Chunks, 2)
		paragraph := content.Chunks[1]
		assert.Equal(t, int64(0), paragraph.ParentID)
		assert.Equal(t, 1, paragraph.Level)
	})

	t.Run("Headings deeper than level four are skipped", func(t *testing.T) {
		content, err := builder.Build(testDocument(
			model.Block{Type: model.BlockTypeHeading, Text: "Too deep", Level: 5},
		))

		require.NoError(t, err)
		assert.Len(t, content.Chunks, 1, "Expected only the root chunk")
	})

	t.Run("Short paragraphs are dropped", func(t *testing.T) {
		content, err := builder.Build(testDocument(
			model.Block{Type: model.BlockTypeParagraph, Text: "Too short."},
		))

		require.NoError(t, err)
		assert.Len(t, content.Chunks, 1, "Expected the short paragraph to be filtered")
	})

	t.Run("Tables and code bypass the minimum size filter", func(t *testing.T) {
		content, err := builder.Build(testDocument(
			model.Block{Type: model.BlockTypeTable, Text: "a | b"},
			model.Block{Type: model.BlockTypeCode, Text: "x := 1"},
		))

		require.NoError(t, err)
		require.Len(t, content.Chunks, 3)

		table := content.Chunks[1]
		assert.True(t, strings.HasPrefix(table.Content, "[Table 1]"), "Expected the table marker prefix")
		assert.Equal(t, true, table.Metadata["is_table"])

		code := content.Chunks[2]
		assert.Equal(t, true, code.Metadata["is_code"])
	})

	t.Run("Long paragraph splits into sibling chunks", func(t *testing.T) {
		// 600 runes of sentences under one section.
		sentence := strings.Repeat("w", 48) + ". "
		long := strings.Repeat(sentence, 12)
		content, err := builder.Build(testDocument(
			model.Block{Type: model.BlockTypeHeading, Text: "Section", Level: 1},
			model.Block{Type: model.BlockTypeParagraph, Text: long},
			model.Block{Type: model.BlockTypeParagraph, Text: "tiny"},
		))

		require.NoError(t, err)

		section := content.Chunks[1]
		require.Equal(t, model.ChunkTypeSection, section.ChunkType)

		var pieces []*model.Chunk
		for _, chunk := range content.Chunks[2:] {
			assert.Equal(t, model.ChunkTypeParagraph, chunk.ChunkType)
			assert.Equal(t, section.Index, chunk.ParentID, "Expected all pieces to share the section parent")
			pieces = append(pieces, chunk)
		}
		require.Equal(t, 2, len(pieces), "Expected the long paragraph to split in two and the tiny one to be dropped")
		for _, piece := range pieces {
			assert.LessOrEqual(t, len([]rune(piece.Content)), builder.Config().MaxChunkSize)
		}
	})

	t.Run("Children ids mirror parent links", func(t *testing.T) {
		content, err := builder.Build(testDocument(
			model.Block{Type: model.BlockTypeHeading, Text: "Section", Level: 1},
			model.Block{Type: model.BlockTypeParagraph, Text: strings.Repeat("Child paragraph of the section. ", 3)},
		))

		require.NoError(t, err)

		for _, chunk := range content.Chunks {
			for _, childID := range chunk.ChildrenIDs {
				child, ok := content.ChunkTree[childID]
				require.True(t, ok, "Expected every child id to resolve")
				assert.Equal(t, chunk.Index, child.ParentID, "Expected the child to point back at its parent")
			}
		}

		root := content.ChunkTree[0]
		assert.NotEmpty(t, root.ChildrenIDs, "Expected the root to list its section")
	})

	t.Run("Document metadata carries provenance", func(t *testing.T) {
		content, err := builder.Build(testDocument())

		require.NoError(t, err)
		assert.Equal(t, "/tmp/test.md", content.Metadata["file_path"])
		assert.Equal(t, "markdown", content.Metadata["file_type"])
		assert.Equal(t, 1, content.Metadata["total_chunks"])
		assert.Equal(t, 0, content.Metadata["max_level"], "Expected a root-only tree to report max level 0")
	})

	t.Run("Document metadata reports the deepest chunk level", func(t *testing.T) {
		content, err := builder.Build(testDocument(
			model.Block{Type: model.BlockTypeHeading, Text: "Section", Level: 1},
			model.Block{Type: model.BlockTypeHeading, Text: "Subsection", Level: 3},
			model.Block{Type: model.BlockTypeParagraph, Text: strings.Repeat("Deep paragraph under the subsection. ", 3)},
		))

		require.NoError(t, err)
		assert.Equal(t, 3, content.Metadata["max_level"], "Expected the subsection paragraph to set the max level")
	})

	t.Run("Trailing split piece below the minimum is kept", func(t *testing.T) {
		// 10 packed sentences fill one piece exactly, the short closer
		// spills into a second piece. Only whole blocks are filtered by
		// min size; split pieces always survive.
		sentence := strings.Repeat("w", 48) + ". "
		long := strings.Repeat(sentence, 10) + "End."
		content, err := builder.Build(testDocument(
			model.Block{Type: model.BlockTypeParagraph, Text: long},
		))

		require.NoError(t, err)
		require.Len(t, content.Chunks, 3, "Expected the root and two paragraph pieces")
		tail := content.Chunks[2]
		assert.Less(t, len([]rune(tail.Content)), builder.Config().MinChunkSize)
	})
}
