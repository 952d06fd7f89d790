package retrieval

import (
	"fmt"
	"sort"

	"github.com/treeline-rag/treeline/helper"
)

// HybridRetriever owns the keyword side of hybrid search: a BM25 index
// over chunk contents keyed by their collection-wide chunk indexes.
type HybridRetriever struct {
	bm25         *BM25
	chunkIndexes []int64
}

// NewHybridRetriever creates a retriever with an empty keyword index.
func NewHybridRetriever() *HybridRetriever {
	return &HybridRetriever{
		bm25: NewBM25(),
	}
}

// IndexDocuments replaces the keyword index. contents and chunkIndexes
// correspond by position.
func (r *HybridRetriever) IndexDocuments(contents []string, chunkIndexes []int64) error {
	if len(contents) != len(chunkIndexes) {
		return helper.NewError("index documents", fmt.Errorf("got %d contents for %d chunk indexes", len(contents), len(chunkIndexes)))
	}

	r.bm25.Fit(contents)
	r.chunkIndexes = append([]int64(nil), chunkIndexes...)
	return nil
}

// Size returns the number of indexed chunks.
func (r *HybridRetriever) Size() int {
	return r.bm25.Size()
}

// KeywordHit is one BM25 match, identified by chunk index.
type KeywordHit struct {
	ChunkIndex int64
	Score      float64
}

// Search runs the query against the keyword index and returns up to
// topK hits with positive scores, best first. topK <= 0 returns every
// positive match.
func (r *HybridRetriever) Search(query string, topK int) []KeywordHit {
	scored := r.bm25.Search(query, topK)

	hits := make([]KeywordHit, 0, len(scored))
	for _, s := range scored {
		hits = append(hits, KeywordHit{
			ChunkIndex: r.chunkIndexes[s.Index],
			Score:      s.Score,
		})
	}
	return hits
}

// VectorHit is one similarity match, identified by chunk index, with
// its raw distance (smaller is closer).
type VectorHit struct {
	ChunkIndex int64
	Distance   float64
}

// FusedHit is one candidate after score fusion (larger is better).
type FusedHit struct {
	ChunkIndex int64
	Score      float64
}

// Fuse combines vector and keyword hits into one ranking. Distances
// are converted to similarities and min-max normalized, BM25 scores
// are min-max normalized, and the fused score is the alpha-weighted
// sum with 0 for a missing side. Candidates keep a deterministic union
// order (vector hits first, then keyword-only hits) before the final
// stable sort by fused score descending.
func Fuse(vectorHits []VectorHit, keywordHits []KeywordHit, alpha float64) []FusedHit {
	similarities := normalizeDistances(vectorHits)
	keywordScores := normalizeKeywordScores(keywordHits)

	fusedIndex := map[int64]int{}
	var fused []FusedHit

	for i, hit := range vectorHits {
		fusedIndex[hit.ChunkIndex] = len(fused)
		fused = append(fused, FusedHit{
			ChunkIndex: hit.ChunkIndex,
			Score:      alpha * similarities[i],
		})
	}

	for i, hit := range keywordHits {
		if pos, ok := fusedIndex[hit.ChunkIndex]; ok {
			fused[pos].Score += (1 - alpha) * keywordScores[i]
			continue
		}
		fusedIndex[hit.ChunkIndex] = len(fused)
		fused = append(fused, FusedHit{
			ChunkIndex: hit.ChunkIndex,
			Score:      (1 - alpha) * keywordScores[i],
		})
	}

	sort.SliceStable(fused, func(i, j int) bool {
		return fused[i].Score > fused[j].Score
	})

	return fused
}

// normalizeDistances maps L2 distances to similarities in [0, 1],
// 1 being the closest candidate. Equal distances all map to 1.
func normalizeDistances(hits []VectorHit) []float64 {
	if len(hits) == 0 {
		return nil
	}

	minDist, maxDist := hits[0].Distance, hits[0].Distance
	for _, hit := range hits[1:] {
		if hit.Distance < minDist {
			minDist = hit.Distance
		}
		if hit.Distance > maxDist {
			maxDist = hit.Distance
		}
	}

	distRange := maxDist - minDist
	similarities := make([]float64, len(hits))
	for i, hit := range hits {
		if distRange == 0 {
			similarities[i] = 1
			continue
		}
		sim := 1 - (hit.Distance-minDist)/distRange
		if sim < 0 {
			sim = 0
		}
		similarities[i] = sim
	}

	return similarities
}

// normalizeKeywordScores min-max normalizes BM25 scores to [0, 1].
// Equal scores all map to 1.
func normalizeKeywordScores(hits []KeywordHit) []float64 {
	if len(hits) == 0 {
		return nil
	}

	minScore, maxScore := hits[0].Score, hits[0].Score
	for _, hit := range hits[1:] {
		if hit.Score < minScore {
			minScore = hit.Score
		}
		if hit.Score > maxScore {
			maxScore = hit.Score
		}
	}

	scoreRange := maxScore - minScore
	scores := make([]float64, len(hits))
	for i, hit := range hits {
		if scoreRange == 0 {
			scores[i] = 1
			continue
		}
		scores[i] = (hit.Score - minScore) / scoreRange
	}

	return scores
}
