package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/treeline-rag/treeline/helper"
	"github.com/treeline-rag/treeline/model"
)

const (
	// corpusPageSize is the page size used when streaming text records
	// out of the store to rebuild the keyword index.
	corpusPageSize = 16384
	// defaultCandidateMultiplier oversizes the vector candidate fetch
	// relative to top_k so fusion has enough material to rerank.
	defaultCandidateMultiplier = 3
)

// RecordStore is the persistence surface the engine needs. It is
// implemented by database.RecordsDBHandler.
type RecordStore interface {
	InsertRecords(records []*model.Record) error
	SelectRecordByChunkIndex(chunkIndex int64) (*model.Record, error)
	SelectRecordsBySimilarity(embedding []float32, limit int, contentType string, rawFilter string) ([]*model.Record, error)
	SelectTextRecords(limit int, offset int64) ([]*model.Record, error)
	DeleteRecordsByFilePath(filePath string) (int64, error)
	CountRecords() (int64, error)
	MaxChunkIndex() (int64, error)
	ListFilePaths() ([]*model.DocumentInfo, error)
	EnsureVectorIndex(ctx context.Context) error
}

// Engine runs hybrid and hierarchical retrieval over one collection.
// It owns the in-memory keyword index and rebuilds it lazily after the
// collection changes.
type Engine struct {
	store               RecordStore
	logger              *slog.Logger
	retriever           *HybridRetriever
	candidateMultiplier int

	mu          sync.RWMutex
	corpusStale bool
}

// NewEngine creates an engine over the given store. The keyword index
// starts stale and is built on the first search.
func NewEngine(store RecordStore, logger *slog.Logger) *Engine {
	return &Engine{
		store:               store,
		logger:              logger,
		retriever:           NewHybridRetriever(),
		candidateMultiplier: defaultCandidateMultiplier,
		corpusStale:         true,
	}
}

// InsertChunks persists one chunk tree under the given document's
// identity. Document-local chunk indices and parent references are
// remapped to collection-wide indices so trees from different files
// cannot collide. embeddings must match the chunk list 1:1. Returns
// the number of inserted records.
func (e *Engine) InsertChunks(content *model.HierarchicalContent, embeddings [][]float32, doc *model.Document) (int64, error) {
	if content == nil || doc == nil {
		return 0, helper.NewError("insert chunks", fmt.Errorf("content or document is nil"))
	}
	if len(content.Chunks) != len(embeddings) {
		return 0, helper.NewError("insert chunks", fmt.Errorf("got %d embeddings for %d chunks", len(embeddings), len(content.Chunks)))
	}
	if len(content.Chunks) == 0 {
		return 0, nil
	}

	maxIndex, err := e.store.MaxChunkIndex()
	if err != nil {
		return 0, helper.NewError("max chunk index", err)
	}
	base := maxIndex + 1

	records := make([]*model.Record, len(content.Chunks))
	for i, chunk := range content.Chunks {
		parentID := model.NoParent
		if chunk.ParentID != model.NoParent {
			parentID = base + chunk.ParentID
		}

		metadata := model.Metadata{}
		for k, v := range chunk.Metadata {
			metadata[k] = v
		}
		if len(chunk.ChildrenIDs) > 0 {
			children := make([]int64, len(chunk.ChildrenIDs))
			for j, child := range chunk.ChildrenIDs {
				children[j] = base + child
			}
			metadata["children_ids"] = children
		}
		metadata["document_rid"] = doc.RID.String()

		records[i] = &model.Record{
			ContentType: model.ContentTypeText,
			Content:     chunk.Content,
			Embedding:   embeddings[i],
			FilePath:    doc.Source,
			FileType:    doc.FileType,
			ChunkIndex:  base + chunk.Index,
			ParentID:    parentID,
			ChunkType:   string(chunk.ChunkType),
			Level:       int64(chunk.Level),
			Metadata:    metadata,
		}
	}

	if err := e.store.InsertRecords(records); err != nil {
		return 0, helper.NewError("insert records", err)
	}

	e.markStale()
	e.logger.Info("Inserted chunk tree",
		slog.String("file_path", doc.Source),
		slog.String("document_rid", doc.RID.String()),
		slog.Int("chunks", len(records)),
	)

	return int64(len(records)), nil
}

// InsertImages persists image records. The image path doubles as the
// record content; images never join the keyword index.
func (e *Engine) InsertImages(paths []string, embeddings [][]float32) (int64, error) {
	if len(paths) != len(embeddings) {
		return 0, helper.NewError("insert images", fmt.Errorf("got %d embeddings for %d images", len(embeddings), len(paths)))
	}
	if len(paths) == 0 {
		return 0, nil
	}

	maxIndex, err := e.store.MaxChunkIndex()
	if err != nil {
		return 0, helper.NewError("max chunk index", err)
	}
	base := maxIndex + 1

	records := make([]*model.Record, len(paths))
	for i, path := range paths {
		records[i] = &model.Record{
			ContentType: model.ContentTypeImage,
			Content:     path,
			Embedding:   embeddings[i],
			FilePath:    path,
			FileType:    "image",
			ChunkIndex:  base + int64(i),
			ParentID:    model.NoParent,
			ChunkType:   string(model.ChunkTypeParagraph),
			Level:       0,
			Metadata:    model.Metadata{"is_image": true},
		}
	}

	if err := e.store.InsertRecords(records); err != nil {
		return 0, helper.NewError("insert records", err)
	}

	e.logger.Info("Inserted images", slog.Int("count", len(records)))

	return int64(len(records)), nil
}

// DeleteByFilePath removes all records of one source file and marks
// the keyword index stale.
func (e *Engine) DeleteByFilePath(filePath string) (int64, error) {
	deleted, err := e.store.DeleteRecordsByFilePath(filePath)
	if err != nil {
		return 0, helper.NewError("delete records", err)
	}
	if deleted > 0 {
		e.markStale()
	}

	e.logger.Info("Deleted records",
		slog.String("file_path", filePath),
		slog.Int64("deleted", deleted),
	)

	return deleted, nil
}

// RebuildCorpus rebuilds the keyword index from the store immediately
// instead of waiting for the next search.
func (e *Engine) RebuildCorpus() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rebuildCorpusLocked()
}

func (e *Engine) markStale() {
	e.mu.Lock()
	e.corpusStale = true
	e.mu.Unlock()
}

// rebuildCorpusLocked streams all text records out of the store and
// refits BM25. Caller holds the write lock.
func (e *Engine) rebuildCorpusLocked() error {
	var contents []string
	var chunkIndexes []int64

	offset := int64(0)
	for {
		page, err := e.store.SelectTextRecords(corpusPageSize, offset)
		if err != nil {
			return helper.NewError("select text records", err)
		}
		for _, record := range page {
			contents = append(contents, record.Content)
			chunkIndexes = append(chunkIndexes, record.ChunkIndex)
		}
		if len(page) < corpusPageSize {
			break
		}
		offset += int64(len(page))
	}

	if err := e.retriever.IndexDocuments(contents, chunkIndexes); err != nil {
		return err
	}
	e.corpusStale = false

	e.logger.Info("Rebuilt keyword index", slog.Int("chunks", len(contents)))

	return nil
}

// keywordSearch runs the BM25 side, rebuilding the corpus first when
// it is stale.
func (e *Engine) keywordSearch(query string, topK int) ([]KeywordHit, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.corpusStale {
		if err := e.rebuildCorpusLocked(); err != nil {
			return nil, err
		}
	}

	return e.retriever.Search(query, topK), nil
}

// VectorSearch returns the limit nearest records by embedding distance.
func (e *Engine) VectorSearch(ctx context.Context, embedding []float32, limit int, contentType string, rawFilter string) ([]*model.Record, error) {
	if err := e.store.EnsureVectorIndex(ctx); err != nil {
		return nil, err
	}
	return e.store.SelectRecordsBySimilarity(embedding, limit, contentType, rawFilter)
}

// HybridSearch fuses vector similarity and BM25 keyword relevance into
// one ranking. With config.Hierarchical it additionally pulls in the
// parents and children of matched chunks as context. Results are
// sorted by fused score descending and bounded by config.TopK.
func (e *Engine) HybridSearch(ctx context.Context, query string, embedding []float32, config model.QueryConfig) ([]*model.SearchResult, error) {
	topK := config.TopK
	if topK <= 0 {
		topK = model.DefaultQueryConfig().TopK
	}

	if err := e.store.EnsureVectorIndex(ctx); err != nil {
		return nil, err
	}

	candidates := topK * e.candidateMultiplier

	vectorRecords, err := e.store.SelectRecordsBySimilarity(embedding, candidates, config.ContentType, config.Filter)
	if err != nil {
		return nil, helper.NewError("vector search", err)
	}

	vectorHits := make([]VectorHit, len(vectorRecords))
	recordsByChunk := map[int64]*model.Record{}
	for i, record := range vectorRecords {
		vectorHits[i] = VectorHit{ChunkIndex: record.ChunkIndex, Distance: record.Distance}
		recordsByChunk[record.ChunkIndex] = record
	}

	// Images never join the keyword index, so image-only search runs on
	// the vector side alone. The keyword side stays unbounded: min-max
	// normalization spans every positive match, not a truncated page.
	var keywordHits []KeywordHit
	if query != "" && config.ContentType != model.ContentTypeImage {
		keywordHits, err = e.keywordSearch(query, 0)
		if err != nil {
			return nil, err
		}
	}

	fused := Fuse(vectorHits, keywordHits, config.Alpha)

	results := make([]*model.SearchResult, 0, len(fused))
	seen := map[int64]bool{}
	for _, hit := range fused {
		record, err := e.resolveRecord(hit.ChunkIndex, recordsByChunk)
		if err != nil {
			return nil, err
		}
		if record == nil || seen[hit.ChunkIndex] {
			continue
		}
		seen[hit.ChunkIndex] = true
		results = append(results, recordToResult(record, hit.Score))

		if config.Hierarchical {
			expanded, err := e.expand(record, config, recordsByChunk, seen)
			if err != nil {
				return nil, err
			}
			results = append(results, expanded...)
		}
	}

	if config.Hierarchical {
		sortResults(results)
	}
	if len(results) > topK {
		results = results[:topK]
	}

	return results, nil
}

// expand resolves the parent and children of one matched chunk. The
// context chunks carry a sentinel score of 0 so matched chunks always
// rank above pure context. Unresolvable references are skipped.
func (e *Engine) expand(record *model.Record, config model.QueryConfig, cache map[int64]*model.Record, seen map[int64]bool) ([]*model.SearchResult, error) {
	var results []*model.SearchResult

	if config.IncludeParent && record.ParentID != model.NoParent && !seen[record.ParentID] {
		parent, err := e.resolveRecord(record.ParentID, cache)
		if err != nil {
			return nil, err
		}
		if parent != nil {
			seen[parent.ChunkIndex] = true
			results = append(results, recordToResult(parent, 0))
		}
	}

	if config.IncludeChildren {
		for _, childIndex := range record.Metadata.Int64Slice("children_ids") {
			if seen[childIndex] {
				continue
			}
			child, err := e.resolveRecord(childIndex, cache)
			if err != nil {
				return nil, err
			}
			if child == nil {
				continue
			}
			seen[child.ChunkIndex] = true
			results = append(results, recordToResult(child, 0))
		}
	}

	return results, nil
}

func (e *Engine) resolveRecord(chunkIndex int64, cache map[int64]*model.Record) (*model.Record, error) {
	if record, ok := cache[chunkIndex]; ok {
		return record, nil
	}
	record, err := e.store.SelectRecordByChunkIndex(chunkIndex)
	if err != nil {
		return nil, helper.NewError("resolve chunk", err)
	}
	if record != nil {
		cache[chunkIndex] = record
	}
	return record, nil
}

// sortResults orders by score descending, keeping insertion order for
// equal scores.
func sortResults(results []*model.SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
}

func recordToResult(record *model.Record, score float64) *model.SearchResult {
	return &model.SearchResult{
		RecordID:   record.ID,
		ChunkIndex: record.ChunkIndex,
		Content:    record.Content,
		ChunkType:  record.ChunkType,
		Level:      record.Level,
		ParentID:   record.ParentID,
		FilePath:   record.FilePath,
		FileType:   record.FileType,
		Score:      score,
		Metadata:   record.Metadata,
	}
}

// Stats summarizes the collection.
type Stats struct {
	TotalRecords     int64                 `json:"total_records"`
	Documents        []*model.DocumentInfo `json:"documents"`
	KeywordIndexSize int                   `json:"keyword_index_size"`
}

// CollectionStats returns record counts and per-file summaries.
func (e *Engine) CollectionStats() (*Stats, error) {
	total, err := e.store.CountRecords()
	if err != nil {
		return nil, helper.NewError("count records", err)
	}

	documents, err := e.store.ListFilePaths()
	if err != nil {
		return nil, helper.NewError("list file paths", err)
	}

	e.mu.RLock()
	indexSize := e.retriever.Size()
	e.mu.RUnlock()

	return &Stats{
		TotalRecords:     total,
		Documents:        documents,
		KeywordIndexSize: indexSize,
	}, nil
}

// ListDocuments returns the per-file record summaries.
func (e *Engine) ListDocuments() ([]*model.DocumentInfo, error) {
	return e.store.ListFilePaths()
}
