package pipeline

import (
	"strings"
	"unicode"

	"github.com/treeline-rag/treeline/model"
)

// sentence-terminal punctuation, Latin and CJK
func isSentenceTerminator(r rune) bool {
	switch r {
	case '。', '！', '？', '.', '!', '?':
		return true
	}
	return false
}

// SplitLongText splits text into pieces of at most MaxChunkSize runes.
// Text at or below the limit is returned as a single piece. Longer text
// is split on sentence-terminal punctuation (terminator retained) and
// sentences are greedily packed; a single sentence above the limit is
// force-split into fixed windows overlapping by OverlapSize runes.
func SplitLongText(text string, config model.ChunkingConfig) []string {
	if len([]rune(text)) <= config.MaxChunkSize {
		return []string{text}
	}

	var pieces []string
	var current []rune

	flush := func() {
		trimmed := strings.TrimSpace(string(current))
		if trimmed != "" {
			pieces = append(pieces, trimmed)
		}
		current = nil
	}

	for _, sentence := range splitSentences(text) {
		if len(current)+len(sentence) <= config.MaxChunkSize {
			current = append(current, sentence...)
			continue
		}

		flush()

		if len(sentence) > config.MaxChunkSize {
			pieces = append(pieces, forceSplit(sentence, config.MaxChunkSize, config.OverlapSize)...)
		} else {
			current = append(current, sentence...)
		}
	}
	flush()

	return pieces
}

// splitSentences cuts text after each sentence terminator, keeping the
// terminator and any trailing whitespace with its sentence.
func splitSentences(text string) [][]rune {
	runes := []rune(text)
	var sentences [][]rune

	start := 0
	i := 0
	for i < len(runes) {
		if isSentenceTerminator(runes[i]) {
			i++
			for i < len(runes) && unicode.IsSpace(runes[i]) {
				i++
			}
			sentences = append(sentences, runes[start:i])
			start = i
			continue
		}
		i++
	}
	if start < len(runes) {
		sentences = append(sentences, runes[start:])
	}

	return sentences
}

// forceSplit windows runes into pieces of at most max runes, advancing
// by max-overlap so consecutive windows share overlap runes.
func forceSplit(runes []rune, max, overlap int) []string {
	step := max - overlap
	if step <= 0 {
		step = max
	}

	var pieces []string
	for i := 0; i < len(runes); i += step {
		end := i + max
		if end > len(runes) {
			end = len(runes)
		}
		piece := strings.TrimSpace(string(runes[i:end]))
		if piece != "" {
			pieces = append(pieces, piece)
		}
		if end == len(runes) {
			break
		}
	}

	return pieces
}
