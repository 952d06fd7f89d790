// Package treeline is a hierarchical retrieval knowledge base. Files
// are parsed into chunk trees, embedded, and persisted to a
// pgvector-backed collection; queries fuse vector similarity with BM25
// keyword relevance and can pull in the tree context of each hit.
package treeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/treeline-rag/treeline/core/pipeline"
	"github.com/treeline-rag/treeline/core/retrieval"
	"github.com/treeline-rag/treeline/database"
	"github.com/treeline-rag/treeline/helper"
	"github.com/treeline-rag/treeline/model"
	"github.com/treeline-rag/treeline/parser"
	loadSql "github.com/treeline-rag/treeline/sql"
)

// Options configures a KnowledgeBase. The zero value selects defaults.
type Options struct {
	// Chunking parameters; defaults to model.DefaultChunkingConfig.
	Chunking *model.ChunkingConfig
	// Encoder overrides encoder selection. When nil, TREELINE_ENCODER_URL
	// selects the remote encoder, otherwise the local hugot model is used.
	Encoder pipeline.Encoder
	// ForceReloadSQL reloads the SQL functions even when they exist.
	ForceReloadSQL bool
	// Logger overrides the default pretty handler on stdout.
	Logger *slog.Logger
}

// KnowledgeBase is the facade over parsing, chunking, embedding,
// storage and retrieval for one collection.
type KnowledgeBase struct {
	db       *helper.Database
	records  *database.RecordsDBHandler
	engine   *retrieval.Engine
	pipeline *pipeline.Pipeline
	logger   *slog.Logger
}

// New connects to the database, probes the encoder dimension, ensures
// the schema and vector index, and returns a ready knowledge base.
func New(ctx context.Context, options *Options) (*KnowledgeBase, error) {
	if options == nil {
		options = &Options{}
	}

	logger := options.Logger
	if logger == nil {
		logger = slog.New(helper.NewPrettyHandler(os.Stdout, helper.PrettyHandlerOptions{}))
	}

	encoder := options.Encoder
	if encoder == nil {
		var err error
		encoder, err = defaultEncoder()
		if err != nil {
			return nil, helper.NewError("create encoder", err)
		}
	}

	dimension, err := encoder.Dimension(ctx)
	if err != nil {
		return nil, helper.NewError("probe encoder dimension", err)
	}

	config, err := helper.NewDatabaseConfiguration()
	if err != nil {
		return nil, err
	}
	db := helper.NewDatabase("treeline", config, logger)

	if err := loadSql.Init(db.Instance); err != nil {
		return nil, helper.NewError("init extensions", err)
	}

	records, err := database.NewRecordsDBHandler(db, dimension, options.ForceReloadSQL)
	if err != nil {
		return nil, err
	}
	if err := records.CreateVectorIndex(ctx); err != nil {
		return nil, err
	}

	chunking := model.DefaultChunkingConfig()
	if options.Chunking != nil {
		chunking = *options.Chunking
	}
	builder := pipeline.NewTreeBuilder(chunking)

	kb := &KnowledgeBase{
		db:       db,
		records:  records,
		engine:   retrieval.NewEngine(records, logger),
		pipeline: pipeline.NewPipeline(builder, encoder),
		logger:   logger,
	}

	logger.Info("Knowledge base ready", slog.Int("embedding_dim", dimension))

	return kb, nil
}

func defaultEncoder() (pipeline.Encoder, error) {
	if url := os.Getenv("TREELINE_ENCODER_URL"); url != "" {
		return pipeline.NewHTTPEncoder(url), nil
	}
	return pipeline.NewHugotEncoder()
}

// AddDocument parses, chunks, embeds and persists one file. Failures
// are reported in the result instead of aborting, so batches can
// continue.
func (kb *KnowledgeBase) AddDocument(ctx context.Context, path string) *model.IngestResult {
	result := &model.IngestResult{FilePath: path}

	fileParser, fileType, err := parser.ForPath(path)
	if err != nil {
		result.Message = err.Error()
		return result
	}
	result.FileType = fileType

	doc, err := fileParser.Parse(path)
	if err != nil {
		result.Message = err.Error()
		return result
	}

	processed, err := kb.pipeline.Process(ctx, doc)
	if err != nil {
		result.Message = err.Error()
		return result
	}

	inserted, err := kb.engine.InsertChunks(processed.Content, processed.Embeddings, model.NewDocument(path, fileType))
	if err != nil {
		result.Message = err.Error()
		return result
	}

	result.Success = true
	result.ChunksCount = int(inserted)
	result.Message = fmt.Sprintf("inserted %d chunks", inserted)
	return result
}

// AddDocuments ingests a batch of files, one result per file. A failed
// file never aborts the batch.
func (kb *KnowledgeBase) AddDocuments(ctx context.Context, paths []string) []*model.IngestResult {
	results := make([]*model.IngestResult, 0, len(paths))
	for _, path := range paths {
		result := kb.AddDocument(ctx, path)
		if !result.Success {
			kb.logger.Warn("Ingestion failed",
				slog.String("file_path", path),
				slog.String("reason", result.Message),
			)
		}
		results = append(results, result)
	}
	return results
}

// AddDirectory ingests every supported file under dir, recursively.
func (kb *KnowledgeBase) AddDirectory(ctx context.Context, dir string) ([]*model.IngestResult, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && parser.IsSupported(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, helper.NewError("walk directory", err)
	}

	return kb.AddDocuments(ctx, paths), nil
}

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".webp": true,
}

// AddImageFolder encodes every image directly inside dir and persists
// them as image records. Image records never join the keyword index.
func (kb *KnowledgeBase) AddImageFolder(ctx context.Context, dir string) (int64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, helper.NewError("read image folder", err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if imageExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	if len(paths) == 0 {
		return 0, nil
	}

	embeddings, err := kb.pipeline.Encoder.EncodeImages(ctx, paths)
	if err != nil {
		return 0, err
	}

	return kb.engine.InsertImages(paths, embeddings)
}

// Query embeds the query text and runs hybrid (optionally
// hierarchical) retrieval. Failures are logged and yield an empty
// result list so callers always get a usable slice.
func (kb *KnowledgeBase) Query(ctx context.Context, query string, config *model.QueryConfig) []*model.SearchResult {
	queryConfig := model.DefaultQueryConfig()
	if config != nil {
		queryConfig = *config
	}

	embeddings, err := kb.pipeline.Encoder.EncodeTexts(ctx, []string{query})
	if err != nil {
		kb.logger.Error("Query embedding failed", slog.Any("error", err))
		return []*model.SearchResult{}
	}
	if len(embeddings) == 0 {
		kb.logger.Error("Encoder returned no embedding for the query")
		return []*model.SearchResult{}
	}

	results, err := kb.engine.HybridSearch(ctx, query, embeddings[0], queryConfig)
	if err != nil {
		kb.logger.Error("Query failed", slog.Any("error", err))
		return []*model.SearchResult{}
	}

	return results
}

// DeleteDocument removes all records ingested from filePath and
// returns the number of deleted records.
func (kb *KnowledgeBase) DeleteDocument(ctx context.Context, filePath string) (int64, error) {
	return kb.engine.DeleteByFilePath(filePath)
}

// ListDocuments returns one summary per ingested source file.
func (kb *KnowledgeBase) ListDocuments() ([]*model.DocumentInfo, error) {
	return kb.engine.ListDocuments()
}

// Stats summarizes the collection.
func (kb *KnowledgeBase) Stats() (*retrieval.Stats, error) {
	return kb.engine.CollectionStats()
}

// RebuildKeywordIndex rebuilds the BM25 corpus from the store now
// instead of on the next query.
func (kb *KnowledgeBase) RebuildKeywordIndex() error {
	return kb.engine.RebuildCorpus()
}

// ChangeIndexType swaps the vector index ("hnsw" or "ivfflat").
func (kb *KnowledgeBase) ChangeIndexType(ctx context.Context, indexType string, params map[string]interface{}) error {
	return kb.records.ChangeIndexType(ctx, indexType, params)
}

// Close releases the database connection and the encoder.
func (kb *KnowledgeBase) Close() error {
	if closer, ok := kb.pipeline.Encoder.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			kb.logger.Warn("Encoder close failed", slog.Any("error", err))
		}
	}
	return kb.db.Instance.Close()
}
