package model

// ChunkingConfig controls the size-bounded splitting performed by the
// chunk tree builder. Sizes are rune counts.
type ChunkingConfig struct {
	MaxChunkSize int `json:"max_chunk_size"`
	MinChunkSize int `json:"min_chunk_size"`
	OverlapSize  int `json:"overlap_size"`
}

// DefaultChunkingConfig returns the default splitting parameters.
func DefaultChunkingConfig() ChunkingConfig {
	return ChunkingConfig{
		MaxChunkSize: 500,
		MinChunkSize: 50,
		OverlapSize:  50,
	}
}

// QueryConfig represents configuration for one retrieval query.
type QueryConfig struct {
	TopK int `json:"top_k"`

	// Fusion weight in [0,1]: 1 is vector-only, 0 is keyword-only.
	Alpha float64 `json:"alpha"`

	// Hierarchical expansion
	Hierarchical    bool `json:"hierarchical"`
	IncludeParent   bool `json:"include_parent"`
	IncludeChildren bool `json:"include_children"`

	// Filtering
	ContentType string `json:"content_type,omitempty"`
	// Filter is a raw boolean expression over scalar record fields,
	// passed through to the store.
	Filter string `json:"filter,omitempty"`
}

// DefaultQueryConfig returns a sensible default configuration
func DefaultQueryConfig() QueryConfig {
	return QueryConfig{
		TopK:            10,
		Alpha:           0.7,
		Hierarchical:    true,
		IncludeParent:   true,
		IncludeChildren: true,
	}
}
