package pipeline

import (
	"context"
	"fmt"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"
	"github.com/treeline-rag/treeline/helper"
)

// HugotEncoder encodes text with a local sentence transformer model.
// Uses the all-MiniLM-L6-v2 model which produces 384-dimensional embeddings.
// Image inputs are not supported by this encoder.
type HugotEncoder struct {
	session   *hugot.Session
	pipeline  *pipelines.FeatureExtractionPipeline
	dimension int
}

// NewHugotEncoder downloads the model if needed and initializes the
// hugot session with the Go backend.
func NewHugotEncoder() (*HugotEncoder, error) {
	modelName := "sentence-transformers/all-MiniLM-L6-v2"
	modelPath, err := helper.PrepareModel(modelName)
	if err != nil {
		return nil, err
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create hugot session: %w", err)
	}

	config := hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "encoder-pipeline",
	}
	sentencePipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("failed to create sentence pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("failed to create sentence pipeline: %w", err)
	}

	return &HugotEncoder{
		session:  session,
		pipeline: sentencePipeline,
	}, nil
}

// EncodeTexts generates one embedding per input text.
func (e *HugotEncoder) EncodeTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := e.pipeline.RunPipeline(texts)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, &LengthMismatchError{Inputs: len(texts), Outputs: len(result.Embeddings)}
	}

	return result.Embeddings, nil
}

// EncodeImages is not supported by the local text model.
func (e *HugotEncoder) EncodeImages(ctx context.Context, paths []string) ([][]float32, error) {
	return nil, helper.NewError("encode images", fmt.Errorf("local text encoder does not support images"))
}

// Dimension probes the model once and caches the vector width.
func (e *HugotEncoder) Dimension(ctx context.Context) (int, error) {
	if e.dimension > 0 {
		return e.dimension, nil
	}
	probe, err := e.EncodeTexts(ctx, []string{"dimension probe"})
	if err != nil {
		return 0, err
	}
	if len(probe) == 0 || len(probe[0]) == 0 {
		return 0, helper.NewError("encoder dimension", fmt.Errorf("probe returned no embedding"))
	}
	e.dimension = len(probe[0])
	return e.dimension, nil
}

// Close destroys the hugot session.
func (e *HugotEncoder) Close() error {
	return e.session.Destroy()
}
