package model

// SearchResult is one ranked hit returned to the caller. Score is the
// fused relevance score, higher is better.
type SearchResult struct {
	RecordID   int64    `json:"record_id"`
	ChunkIndex int64    `json:"chunk_index"`
	Content    string   `json:"content"`
	ChunkType  string   `json:"chunk_type"`
	Level      int64    `json:"level"`
	ParentID   int64    `json:"parent_id"`
	FilePath   string   `json:"file_path"`
	FileType   string   `json:"file_type"`
	Score      float64  `json:"score"`
	Metadata   Metadata `json:"metadata,omitempty"`
}

// IngestResult reports the outcome of processing one file. A failed
// file never aborts a batch; the failure is carried here instead.
type IngestResult struct {
	Success     bool   `json:"success"`
	FilePath    string `json:"file_path"`
	FileType    string `json:"file_type,omitempty"`
	ChunksCount int    `json:"chunks_count,omitempty"`
	Message     string `json:"message"`
}
