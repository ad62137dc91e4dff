package embedding

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"unicode"
)

// Tokenizer produces padded token IDs and an attention mask for the model's
// text encoder. Padding makes any input, including the empty string, a valid
// batch of one.
type Tokenizer interface {
	Tokenize(text string, maxTokens int) (inputIDs, attentionMask []int64)
}

const (
	startOfText = "<|startoftext|>"
	endOfText   = "<|endoftext|>"
	endOfWord   = "</w>"
)

type mergePair struct {
	left  string
	right string
}

// BPETokenizer is a CLIP byte-pair-encoding tokenizer loaded from a
// vocab.json and merges.txt pair shipped alongside the model.
type BPETokenizer struct {
	encoder map[string]int64
	ranks   map[mergePair]int
	bosID   int64
	eosID   int64

	mu    sync.Mutex
	cache map[string][]string
}

// NewBPETokenizer loads the vocabulary and merge ranks from disk.
func NewBPETokenizer(vocabPath, mergesPath string) (*BPETokenizer, error) {
	vocabData, err := os.ReadFile(vocabPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read vocab: %w", err)
	}
	var encoder map[string]int64
	if err := json.Unmarshal(vocabData, &encoder); err != nil {
		return nil, fmt.Errorf("failed to parse vocab: %w", err)
	}
	bos, ok := encoder[startOfText]
	if !ok {
		return nil, fmt.Errorf("vocab %s missing %s", vocabPath, startOfText)
	}
	eos, ok := encoder[endOfText]
	if !ok {
		return nil, fmt.Errorf("vocab %s missing %s", vocabPath, endOfText)
	}

	ranks, err := loadMerges(mergesPath)
	if err != nil {
		return nil, err
	}

	return &BPETokenizer{
		encoder: encoder,
		ranks:   ranks,
		bosID:   bos,
		eosID:   eos,
		cache:   make(map[string][]string),
	}, nil
}

// loadMerges parses a merges.txt file: one "left right" pair per line in
// priority order, with an optional "#version" header.
func loadMerges(path string) (map[mergePair]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read merges: %w", err)
	}
	defer f.Close()

	ranks := make(map[mergePair]int)
	scanner := bufio.NewScanner(f)
	rank := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, " ", 2)
		if len(parts) != 2 {
			continue
		}
		ranks[mergePair{parts[0], parts[1]}] = rank
		rank++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan merges: %w", err)
	}
	return ranks, nil
}

// Tokenize lowercases and splits text, applies BPE per word, and returns
// start/end-wrapped token IDs padded to maxTokens with the end token.
// The attention mask is 1 for real tokens and 0 for padding.
func (t *BPETokenizer) Tokenize(text string, maxTokens int) (inputIDs, attentionMask []int64) {
	if maxTokens <= 0 {
		maxTokens = 77
	}
	inputIDs = make([]int64, maxTokens)
	attentionMask = make([]int64, maxTokens)

	ids := []int64{t.bosID}
	for _, word := range splitWords(strings.ToLower(text)) {
		for _, tok := range t.bpe(word) {
			if id, ok := t.encoder[tok]; ok {
				ids = append(ids, id)
			}
		}
	}
	// Truncate to leave room for the end token.
	if len(ids) > maxTokens-1 {
		ids = ids[:maxTokens-1]
	}
	ids = append(ids, t.eosID)

	for i := range inputIDs {
		if i < len(ids) {
			inputIDs[i] = ids[i]
			attentionMask[i] = 1
		} else {
			inputIDs[i] = t.eosID
		}
	}
	return inputIDs, attentionMask
}

// bpe splits a word into subword units by repeatedly merging the adjacent
// pair with the lowest merge rank. The final character carries the
// end-of-word marker.
func (t *BPETokenizer) bpe(word string) []string {
	if word == "" {
		return nil
	}
	t.mu.Lock()
	if cached, ok := t.cache[word]; ok {
		t.mu.Unlock()
		return cached
	}
	t.mu.Unlock()

	runes := []rune(word)
	parts := make([]string, len(runes))
	for i, r := range runes {
		parts[i] = string(r)
	}
	parts[len(parts)-1] += endOfWord

	for len(parts) > 1 {
		best := -1
		bestRank := int(^uint(0) >> 1)
		for i := 0; i < len(parts)-1; i++ {
			if rank, ok := t.ranks[mergePair{parts[i], parts[i+1]}]; ok && rank < bestRank {
				bestRank = rank
				best = i
			}
		}
		if best < 0 {
			break
		}
		merged := append(parts[:best], parts[best]+parts[best+1])
		parts = append(merged, parts[best+2:]...)
	}

	t.mu.Lock()
	t.cache[word] = parts
	t.mu.Unlock()
	return parts
}

// splitWords breaks text into BPE units: runs of letters, single digits, and
// single symbol characters. Whitespace separates only.
func splitWords(text string) []string {
	var words []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			words = append(words, current.String())
			current.Reset()
		}
	}
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			flush()
		case unicode.IsLetter(r):
			current.WriteRune(r)
		case unicode.IsDigit(r):
			flush()
			words = append(words, string(r))
		default:
			flush()
			words = append(words, string(r))
		}
	}
	flush()
	return words
}
