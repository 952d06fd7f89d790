package pipeline

import (
	"fmt"
	"strings"

	"github.com/treeline-rag/treeline/helper"
	"github.com/treeline-rag/treeline/model"
)

// LengthMismatchError reports an encoder returning a vector count that
// does not match its input count.
type LengthMismatchError struct {
	Inputs  int
	Outputs int
}

func (e *LengthMismatchError) Error() string {
	return fmt.Sprintf("encoder returned %d vectors for %d inputs", e.Outputs, e.Inputs)
}

// TreeBuilder assembles parsed documents into hierarchical chunk trees.
// Headings up to level 2 open sections, headings up to level 4 open
// subsections, everything else becomes paragraph chunks attached to the
// nearest open ancestor.
type TreeBuilder struct {
	config model.ChunkingConfig
}

// NewTreeBuilder creates a tree builder with the given chunking configuration.
func NewTreeBuilder(config model.ChunkingConfig) *TreeBuilder {
	return &TreeBuilder{config: config}
}

// Config returns the builder's chunking configuration.
func (b *TreeBuilder) Config() model.ChunkingConfig {
	return b.config
}

// Build turns a parsed document into a chunk tree rooted at a synthetic
// document chunk. Chunk indices are document-local and sequential in
// reading order; the root always has index 0.
func (b *TreeBuilder) Build(doc *model.ParsedDocument) (*model.HierarchicalContent, error) {
	if doc == nil {
		return nil, helper.NewError("build chunk tree", fmt.Errorf("document is nil"))
	}

	content := &model.HierarchicalContent{
		ChunkTree: map[int64]*model.Chunk{},
		Metadata:  model.Metadata{},
	}

	root := &model.Chunk{
		Index:     0,
		Content:   fmt.Sprintf("Document: %s", doc.Title),
		ChunkType: model.ChunkTypeDocument,
		Level:     0,
		ParentID:  model.NoParent,
		Metadata:  model.Metadata{"file_path": doc.FilePath},
	}
	content.Chunks = append(content.Chunks, root)
	content.ChunkTree[root.Index] = root
	content.RootChunks = append(content.RootChunks, root.Index)

	nextIndex := int64(1)
	currentSection := model.NoParent
	currentSubsection := model.NoParent
	tableCount := 0

	attach := func(chunkType model.ChunkType, text string, level int, parentID int64, metadata model.Metadata) *model.Chunk {
		chunk := &model.Chunk{
			Index:     nextIndex,
			Content:   text,
			ChunkType: chunkType,
			Level:     level,
			ParentID:  parentID,
			Metadata:  metadata,
		}
		nextIndex++
		content.Chunks = append(content.Chunks, chunk)
		content.ChunkTree[chunk.Index] = chunk
		if parent, ok := content.ChunkTree[parentID]; ok {
			parent.ChildrenIDs = append(parent.ChildrenIDs, chunk.Index)
		}
		return chunk
	}

	// nearest open ancestor for paragraph-like blocks
	paragraphParent := func() (int64, int) {
		if currentSubsection != model.NoParent {
			return currentSubsection, 3
		}
		if currentSection != model.NoParent {
			return currentSection, 2
		}
		return root.Index, 1
	}

	for _, block := range doc.Blocks {
		text := strings.TrimSpace(block.Text)
		if text == "" {
			continue
		}

		switch {
		case block.Type == model.BlockTypeHeading && block.Level <= 2:
			section := attach(model.ChunkTypeSection, text, 1, root.Index, model.Metadata{
				"heading_level": block.Level,
			})
			currentSection = section.Index
			currentSubsection = model.NoParent

		case block.Type == model.BlockTypeHeading && block.Level <= 4:
			parentID := root.Index
			level := 1
			if currentSection != model.NoParent {
				parentID = currentSection
				level = 2
			}
			subsection := attach(model.ChunkTypeSubsection, text, level, parentID, model.Metadata{
				"heading_level": block.Level,
			})
			currentSubsection = subsection.Index

		case block.Type == model.BlockTypeHeading:
			// deeper headings carry no structure, skip

		case block.Type == model.BlockTypeTable:
			tableCount++
			parentID, level := paragraphParent()
			attach(model.ChunkTypeParagraph, fmt.Sprintf("[Table %d]\n%s", tableCount, text), level, parentID, model.Metadata{
				"is_table":    true,
				"table_index": tableCount,
			})

		case block.Type == model.BlockTypeCode:
			parentID, level := paragraphParent()
			attach(model.ChunkTypeParagraph, text, level, parentID, model.Metadata{
				"is_code": true,
			})

		default:
			if len([]rune(text)) < b.config.MinChunkSize {
				continue
			}
			parentID, level := paragraphParent()
			for _, piece := range SplitLongText(text, b.config) {
				attach(model.ChunkTypeParagraph, piece, level, parentID, model.Metadata{})
			}
		}
	}

	maxLevel := 0
	for _, chunk := range content.Chunks {
		if chunk.Level > maxLevel {
			maxLevel = chunk.Level
		}
	}

	content.Metadata = model.Metadata{
		"file_path":    doc.FilePath,
		"file_type":    doc.FileType,
		"total_chunks": len(content.Chunks),
		"max_level":    maxLevel,
	}

	return content, nil
}
