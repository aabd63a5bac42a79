package runner

import (
	"bytes"
	"encoding/binary"
	"math/rand"
	"testing"
	"time"

	"github.com/pagedkv/llamarunner/model"
	"github.com/pagedkv/llamarunner/request"
	"github.com/pagedkv/llamarunner/scheduler"
	"github.com/pagedkv/llamarunner/tokenizer"
	"gotest.tools/v3/assert"
)

func tinyConfig() model.Config {
	return model.Config{
		Dim:               8,
		HiddenDim:         16,
		NumLayers:         1,
		NumHeads:          2,
		NumKVHeads:        2,
		VocabSize:         12,
		MaxSeqLen:         64,
		RopeTheta:         10000,
		EOSTokenID:        2,
		UsePagedAttention: true,
		BlockSize:         16,
		NumBlocks:         8,
	}
}

func tinyWeights(c model.Config) *model.Weights {
	headDim := c.HeadDim()
	rng := rand.New(rand.NewSource(1))
	fill := func(n int) []float32 {
		buf := make([]float32, n)
		for i := range buf {
			buf[i] = (rng.Float32() - 0.5) * 0.05
		}
		return buf
	}
	w := &model.Weights{
		TokenEmbedding: fill(c.VocabSize * c.Dim),
		Layers:         make([]model.Layer, c.NumLayers),
		RMSFinal:       fill(c.Dim),
	}
	for i := range w.Layers {
		w.Layers[i] = model.Layer{
			RMSAtt: fill(c.Dim),
			WQ:     fill(c.Dim * c.NumHeads * headDim),
			WK:     fill(c.Dim * c.NumKVHeads * headDim),
			WV:     fill(c.Dim * c.NumKVHeads * headDim),
			WO:     fill(c.NumHeads * headDim * c.Dim),
			RMSFFN: fill(c.Dim),
			WGate:  fill(c.Dim * c.HiddenDim),
			WDown:  fill(c.HiddenDim * c.Dim),
			WUp:    fill(c.Dim * c.HiddenDim),
		}
	}
	w.LMHead = w.TokenEmbedding
	w.Shared = true
	return w
}

func tinyTokenizer(t *testing.T, vocabSize int) *tokenizer.Tokenizer {
	t.Helper()
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, int32(4))
	for i := 0; i < vocabSize; i++ {
		word := string(rune('a' + i))
		binary.Write(&buf, binary.LittleEndian, float32(0))
		binary.Write(&buf, binary.LittleEndian, int32(len(word)))
		buf.WriteString(word)
	}
	tok, err := tokenizer.Load(&buf, vocabSize)
	assert.NilError(t, err)
	return tok
}

// TestSmokeSingleRequestTerminatesAndFreesBlocks exercises the S1
// scenario: one request, temperature 0, paging on, expecting a terminal
// status within max_tokens and a fully-freed block pool afterward.
func TestSmokeSingleRequestTerminatesAndFreesBlocks(t *testing.T) {
	cfg := tinyConfig()
	m := model.New(cfg, tinyWeights(cfg))
	tok := tinyTokenizer(t, cfg.VocabSize)
	sched := scheduler.New(scheduler.Config{MaxBatchSize: 4, MaxTokensPerBatch: 64})
	r := New(m, tok, sched)

	intake := scheduler.NewIntake()
	req := request.New(0, "hi", []int32{3, 4}, request.SamplingParams{Temperature: 0, TopP: 0.9, MaxTokens: 16}, cfg.NumLayers)
	intake.Submit(req)
	intake.MarkAllSubmitted()

	r.RunUntilQuiescent(intake, 1)

	assert.Assert(t, req.IsFinished())
	assert.Assert(t, req.FinishedReason == request.Eos || req.FinishedReason == request.MaxTokens)
	assert.Equal(t, m.Pool.FreeCount(), cfg.NumBlocks)
}

func TestStaggeredArrivalBothRequestsComplete(t *testing.T) {
	cfg := tinyConfig()
	m := model.New(cfg, tinyWeights(cfg))
	tok := tinyTokenizer(t, cfg.VocabSize)
	sched := scheduler.New(scheduler.Config{MaxBatchSize: 4, MaxTokensPerBatch: 64})
	r := New(m, tok, sched)

	intake := scheduler.NewIntake()
	reqA := request.New(0, "a", []int32{3}, request.SamplingParams{Temperature: 0, TopP: 0.9, MaxTokens: 8}, cfg.NumLayers)
	reqB := request.New(1, "b", []int32{4}, request.SamplingParams{Temperature: 0, TopP: 0.9, MaxTokens: 8}, cfg.NumLayers)

	intake.Submit(reqA)
	go func() {
		time.Sleep(20 * time.Millisecond)
		intake.Submit(reqB)
		intake.MarkAllSubmitted()
	}()

	r.RunUntilQuiescent(intake, 1)

	assert.Assert(t, reqA.IsFinished())
	assert.Assert(t, reqB.IsFinished())
}
