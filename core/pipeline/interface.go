package pipeline

import (
	"context"

	"github.com/treeline-rag/treeline/model"
)

// Encoder turns texts or images into fixed-width float vectors. Inputs
// and outputs correspond by position; implementations must return
// exactly one vector per input.
type Encoder interface {
	EncodeTexts(ctx context.Context, texts []string) ([][]float32, error)
	EncodeImages(ctx context.Context, paths []string) ([][]float32, error)
	// Dimension discovers the vector width, typically by encoding a
	// probe input once. The width is constant for the encoder's lifetime.
	Dimension(ctx context.Context) (int, error)
}

// Pipeline combines the chunk tree builder with an encoder.
type Pipeline struct {
	Builder *TreeBuilder
	Encoder Encoder
}

// NewPipeline creates a new processing pipeline
func NewPipeline(builder *TreeBuilder, encoder Encoder) *Pipeline {
	return &Pipeline{
		Builder: builder,
		Encoder: encoder,
	}
}

// ProcessingResult pairs the chunk tree of one document with the
// vectors of its chunks, in chunk order.
type ProcessingResult struct {
	Content    *model.HierarchicalContent
	Embeddings [][]float32
}

// Process builds the chunk tree for a parsed document and encodes
// every chunk. The vector list matches the chunk list 1:1; a length
// mismatch from the encoder is a fatal error for the document.
func (p *Pipeline) Process(ctx context.Context, doc *model.ParsedDocument) (*ProcessingResult, error) {
	content, err := p.Builder.Build(doc)
	if err != nil {
		return nil, err
	}

	texts := make([]string, len(content.Chunks))
	for i, chunk := range content.Chunks {
		texts[i] = chunk.Content
	}

	embeddings, err := p.Encoder.EncodeTexts(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(embeddings) != len(content.Chunks) {
		return nil, &LengthMismatchError{Inputs: len(content.Chunks), Outputs: len(embeddings)}
	}

	return &ProcessingResult{
		Content:    content,
		Embeddings: embeddings,
	}, nil
}
