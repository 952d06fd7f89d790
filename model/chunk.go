package model

// ChunkType classifies a chunk by granularity, document being the coarsest.
type ChunkType string

const (
	ChunkTypeDocument   ChunkType = "document"
	ChunkTypeSection    ChunkType = "section"
	ChunkTypeSubsection ChunkType = "subsection"
	ChunkTypeParagraph  ChunkType = "paragraph"
	ChunkTypeSentence   ChunkType = "sentence"
)

// NoParent marks a chunk without a parent (the document root).
const NoParent int64 = -1

// Chunk is one node in the hierarchical decomposition of a document.
// Parent and children are plain indices resolved through the owning
// HierarchicalContent, never pointers between chunks.
type Chunk struct {
	Index       int64     `json:"index"`
	Content     string    `json:"content"`
	ChunkType   ChunkType `json:"chunk_type"`
	Level       int       `json:"level"`
	ParentID    int64     `json:"parent_id"` // NoParent for the root
	ChildrenIDs []int64   `json:"children_ids,omitempty"`
	Metadata    Metadata  `json:"metadata,omitempty"`
}

// HasParent reports whether the chunk references a parent chunk.
func (c *Chunk) HasParent() bool {
	return c.ParentID != NoParent
}

// HierarchicalContent is the parse result for one document: the flat
// chunk list in traversal order, an index lookup, the root indices and
// document-level metadata. It is immutable once produced by the builder.
type HierarchicalContent struct {
	Chunks     []*Chunk         `json:"chunks"`
	ChunkTree  map[int64]*Chunk `json:"-"`
	RootChunks []int64          `json:"root_chunks"`
	Metadata   Metadata         `json:"metadata"`
}

// GetChunk returns the chunk with the given index, or nil.
func (h *HierarchicalContent) GetChunk(index int64) *Chunk {
	return h.ChunkTree[index]
}

// GetParent returns the parent of the given chunk, or nil for roots
// and unknown indices.
func (h *HierarchicalContent) GetParent(index int64) *Chunk {
	chunk := h.GetChunk(index)
	if chunk == nil || !chunk.HasParent() {
		return nil
	}
	return h.ChunkTree[chunk.ParentID]
}

// GetChildren returns the resolvable children of the given chunk in
// document order.
func (h *HierarchicalContent) GetChildren(index int64) []*Chunk {
	chunk := h.GetChunk(index)
	if chunk == nil {
		return nil
	}
	var children []*Chunk
	for _, cid := range chunk.ChildrenIDs {
		if child, ok := h.ChunkTree[cid]; ok {
			children = append(children, child)
		}
	}
	return children
}

// GetSiblings returns all chunks sharing the given chunk's parent,
// excluding the chunk itself.
func (h *HierarchicalContent) GetSiblings(index int64) []*Chunk {
	parent := h.GetParent(index)
	if parent == nil {
		return nil
	}
	var siblings []*Chunk
	for _, cid := range parent.ChildrenIDs {
		if cid == index {
			continue
		}
		if sibling, ok := h.ChunkTree[cid]; ok {
			siblings = append(siblings, sibling)
		}
	}
	return siblings
}

// GetAncestors returns the chain of ancestors from the given chunk up
// to the root, nearest first.
func (h *HierarchicalContent) GetAncestors(index int64) []*Chunk {
	var ancestors []*Chunk
	chunk := h.GetChunk(index)
	for chunk != nil && chunk.HasParent() {
		parent := h.ChunkTree[chunk.ParentID]
		if parent == nil {
			break
		}
		ancestors = append(ancestors, parent)
		chunk = parent
	}
	return ancestors
}
