package model

import "time"

// Content type tags of persisted records.
const (
	ContentTypeText  = "text"
	ContentTypeImage = "image"
)

// Storage field bounds, kept for compatibility with the collection schema.
const (
	MaxContentBytes  = 65535
	MaxFilePathBytes = 1024
)

// Record is the storage-layer projection of a chunk plus its vector and
// provenance. ID is the store-assigned primary key, distinct from
// ChunkIndex (the tree-local chunk identity).
type Record struct {
	ID          int64     `json:"id"`
	ContentType string    `json:"content_type"`
	Content     string    `json:"content"`
	Embedding   []float32 `json:"embedding,omitempty"`
	FilePath    string    `json:"file_path"`
	FileType    string    `json:"file_type"`
	ChunkIndex  int64     `json:"chunk_index"`
	ParentID    int64     `json:"parent_id"` // NoParent when the chunk has no parent
	ChunkType   string    `json:"chunk_type"`
	Level       int64     `json:"level"`
	Metadata    Metadata  `json:"metadata,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	// Search results only
	Distance float64 `json:"distance,omitempty"`
}

// TruncateContent bounds a content string to MaxContentBytes without
// splitting a UTF-8 sequence.
func TruncateContent(s string) string {
	return truncateUTF8(s, MaxContentBytes)
}

// TruncateFilePath bounds a file path to MaxFilePathBytes.
func TruncateFilePath(s string) string {
	return truncateUTF8(s, MaxFilePathBytes)
}

func truncateUTF8(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	b := []byte(s)[:limit]
	// Back off trailing continuation bytes of a cut rune.
	for len(b) > 0 && b[len(b)-1]&0xC0 == 0x80 {
		b = b[:len(b)-1]
	}
	return string(b)
}
