package pipeline

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/treeline-rag/treeline/helper"
)

// HTTPEncoder talks to a remote multimodal embedding service over a
// JSON HTTP API. The service embeds texts and images into the same
// vector space, so mixed-modality search works against one collection.
type HTTPEncoder struct {
	baseURL   string
	client    *http.Client
	dimension int
}

// NewHTTPEncoder creates an encoder against the service at baseURL
// (no trailing slash).
func NewHTTPEncoder(baseURL string) *HTTPEncoder {
	return &HTTPEncoder{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

type encodeRequest struct {
	Texts  []string `json:"texts,omitempty"`
	Images []string `json:"images,omitempty"`
}

type encodeResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

func (e *HTTPEncoder) encode(ctx context.Context, request encodeRequest, count int) ([][]float32, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return nil, helper.NewError("encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/encode", bytes.NewReader(body))
	if err != nil {
		return nil, helper.NewError("encode request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, helper.NewError("encode request", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, helper.NewError("encode response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, helper.NewError("encode response", fmt.Errorf("service returned status %d: %s", resp.StatusCode, string(payload)))
	}

	var response encodeResponse
	if err := json.Unmarshal(payload, &response); err != nil {
		return nil, helper.NewError("encode response", err)
	}
	if response.Error != "" {
		return nil, helper.NewError("encode response", fmt.Errorf("%s", response.Error))
	}
	if len(response.Embeddings) != count {
		return nil, &LengthMismatchError{Inputs: count, Outputs: len(response.Embeddings)}
	}

	return response.Embeddings, nil
}

// EncodeTexts generates one embedding per input text.
func (e *HTTPEncoder) EncodeTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	return e.encode(ctx, encodeRequest{Texts: texts}, len(texts))
}

// EncodeImages reads the image files and sends them base64-encoded.
func (e *HTTPEncoder) EncodeImages(ctx context.Context, paths []string) ([][]float32, error) {
	if len(paths) == 0 {
		return [][]float32{}, nil
	}

	images := make([]string, len(paths))
	for i, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, helper.NewError("encode images", err)
		}
		images[i] = base64.StdEncoding.EncodeToString(data)
	}

	return e.encode(ctx, encodeRequest{Images: images}, len(paths))
}

// Dimension probes the service once and caches the vector width.
func (e *HTTPEncoder) Dimension(ctx context.Context) (int, error) {
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
