// Package tokenizer implements the binary vocabulary format and BPE
// encode/decode used by the step engine's external collaborator
// contract: a max_token_length header followed by per-token
// {score, len, utf8 bytes} records.
package tokenizer

import (
	"encoding/binary"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

const (
	BOS = int32(1)
	EOS = int32(2)
)

type tokenIndex struct {
	str string
	id  int32
}

// Tokenizer holds the loaded vocabulary and its string-sorted index for
// binary-search lookups during BPE merging.
type Tokenizer struct {
	maxTokenLength int32
	vocab          []string
	scores         []float32
	sorted         []tokenIndex
}

// Load reads the tokenizer binary format: a 32-bit max_token_length,
// then vocabSize records of {float32 score, int32 len, byte[len] utf8}.
func Load(r io.Reader, vocabSize int) (*Tokenizer, error) {
	t := &Tokenizer{
		vocab:  make([]string, vocabSize),
		scores: make([]float32, vocabSize),
	}

	if err := binary.Read(r, binary.LittleEndian, &t.maxTokenLength); err != nil {
		return nil, fmt.Errorf("tokenizer: reading max_token_length: %w", err)
	}

	for i := 0; i < vocabSize; i++ {
		var score float32
		if err := binary.Read(r, binary.LittleEndian, &score); err != nil {
			return nil, fmt.Errorf("tokenizer: reading score[%d]: %w", i, err)
		}
		var length int32
		if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
			return nil, fmt.Errorf("tokenizer: reading len[%d]: %w", i, err)
		}
		buf := make([]byte, length)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("tokenizer: reading bytes[%d]: %w", i, err)
		}
		t.vocab[i] = string(buf)
		t.scores[i] = score
	}

	t.sorted = make([]tokenIndex, vocabSize)
	for i, s := range t.vocab {
		t.sorted[i] = tokenIndex{str: s, id: int32(i)}
	}
	sort.Slice(t.sorted, func(i, j int) bool { return t.sorted[i].str < t.sorted[j].str })

	return t, nil
}

func (t *Tokenizer) lookup(s string) (int32, bool) {
	i := sort.Search(len(t.sorted), func(i int) bool { return t.sorted[i].str >= s })
	if i < len(t.sorted) && t.sorted[i].str == s {
		return t.sorted[i].id, true
	}
	return -1, false
}

// Decode renders a single token as text, expanding raw-byte tokens of
// the form <0xHH> back to their single byte.
func (t *Tokenizer) Decode(token int32) string {
	if int(token) < 0 || int(token) >= len(t.vocab) {
		return ""
	}
	piece := t.vocab[token]
	if len(piece) == 6 && strings.HasPrefix(piece, "<0x") && strings.HasSuffix(piece, ">") {
		if b, err := strconv.ParseUint(piece[3:5], 16, 8); err == nil {
			return string([]byte{byte(b)})
		}
	}
	return piece
}

// Encode tokenizes text with the greedy best-adjacent-pair BPE merge
// loop, optionally prepending BOS and appending EOS.
func (t *Tokenizer) Encode(text string, addBOS, addEOS bool) []int32 {
	var tokens []int32
	if addBOS {
		tokens = append(tokens, BOS)
	}

	// Seed with one token per byte via direct string lookup, falling
	// back to the <0xHH> raw-byte form for bytes with no vocab entry.
	for _, b := range []byte(text) {
		s := string([]byte{b})
		if id, ok := t.lookup(s); ok {
			tokens = append(tokens, id)
		} else {
			raw := fmt.Sprintf("<0x%02X>", b)
			if id, ok := t.lookup(raw); ok {
				tokens = append(tokens, id)
			}
		}
	}

	for {
		bestScore := float32(-1e10)
		bestID := int32(-1)
		bestIdx := -1

		for i := 0; i < len(tokens)-1; i++ {
			merged := t.vocab[tokens[i]] + t.vocab[tokens[i+1]]
			if id, ok := t.lookup(merged); ok && t.scores[id] > bestScore {
				bestScore = t.scores[id]
				bestID = id
				bestIdx = i
			}
		}

		if bestIdx == -1 {
			break
		}

		tokens[bestIdx] = bestID
		tokens = append(tokens[:bestIdx+1], tokens[bestIdx+2:]...)
	}

	if addEOS {
		tokens = append(tokens, EOS)
	}
	return tokens
}
