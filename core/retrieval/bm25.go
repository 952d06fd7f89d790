package retrieval

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

// BM25 parameter defaults (Okapi BM25).
const (
	defaultK1 = 1.5
	defaultB  = 0.75
)

// BM25 is an in-memory Okapi BM25 index over a tokenized corpus.
// Fit replaces the whole index; it is not incrementally updatable.
type BM25 struct {
	k1 float64
	b  float64

	termFreqs []map[string]int
	docLens   []int
	avgDocLen float64
	idf       map[string]float64
	size      int
}

// NewBM25 creates an empty index with the default parameters.
func NewBM25() *BM25 {
	return &BM25{
		k1:  defaultK1,
		b:   defaultB,
		idf: map[string]float64{},
	}
}

// Tokenize lowercases the text, replaces punctuation with spaces and
// splits on whitespace.
func Tokenize(text string) []string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, text)
	return strings.Fields(mapped)
}

// Fit builds the index over the corpus, replacing any previous state.
func (m *BM25) Fit(corpus []string) {
	m.size = len(corpus)
	m.termFreqs = make([]map[string]int, len(corpus))
	m.docLens = make([]int, len(corpus))
	m.idf = map[string]float64{}

	df := map[string]int{}
	totalLen := 0

	for i, doc := range corpus {
		tokens := Tokenize(doc)
		m.docLens[i] = len(tokens)
		totalLen += len(tokens)

		tf := map[string]int{}
		for _, token := range tokens {
			tf[token]++
		}
		m.termFreqs[i] = tf

		for token := range tf {
			df[token]++
		}
	}

	if m.size > 0 {
		m.avgDocLen = float64(totalLen) / float64(m.size)
	}

	n := float64(m.size)
	for token, count := range df {
		m.idf[token] = math.Log((n-float64(count)+0.5)/(float64(count)+0.5) + 1)
	}
}

// Size returns the number of indexed documents.
func (m *BM25) Size() int {
	return m.size
}

// Score computes the BM25 score of the query against one document.
func (m *BM25) Score(queryTokens []string, docIndex int) float64 {
	if docIndex < 0 || docIndex >= m.size || m.avgDocLen == 0 {
		return 0
	}

	tf := m.termFreqs[docIndex]
	docLen := float64(m.docLens[docIndex])

	var score float64
	for _, token := range queryTokens {
		freq := float64(tf[token])
		if freq == 0 {
			continue
		}
		idf := m.idf[token]
		score += idf * (freq * (m.k1 + 1)) / (freq + m.k1*(1-m.b+m.b*docLen/m.avgDocLen))
	}

	return score
}

// ScoredDoc pairs a corpus position with its BM25 score.
type ScoredDoc struct {
	Index int
	Score float64
}

// Search scores the query against every indexed document and returns
// the topK documents with strictly positive scores, best first. Ties
// keep corpus order. topK <= 0 returns every positive match.
func (m *BM25) Search(query string, topK int) []ScoredDoc {
	queryTokens := Tokenize(query)
	if len(queryTokens) == 0 || m.size == 0 {
		return nil
	}

	var scored []ScoredDoc
	for i := 0; i < m.size; i++ {
		score := m.Score(queryTokens, i)
		if score > 0 {
			scored = append(scored, ScoredDoc{Index: i, Score: score})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if topK > 0 && len(scored) > topK {
		scored = scored[:topK]
	}

	return scored
}
