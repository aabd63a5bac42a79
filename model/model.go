package model

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/pagedkv/llamarunner/kvcache"
	"github.com/pagedkv/llamarunner/request"
)

// RunState is the engine-wide transient scratch space reused across every
// call to Step. Concurrent Step invocations are forbidden: the runner
// must call Step only from its own goroutine.
type RunState struct {
	x, xb, xb2 []float32
	hb, hb2    []float32
	q, k, v    []float32
	logits     []float32
}

func newRunState(c Config) *RunState {
	headDim := c.HeadDim()
	return &RunState{
		x:      make([]float32, c.Dim),
		xb:     make([]float32, c.Dim),
		xb2:    make([]float32, c.NumHeads*headDim),
		hb:     make([]float32, c.HiddenDim),
		hb2:    make([]float32, c.HiddenDim),
		q:      make([]float32, c.NumHeads*headDim),
		k:      make([]float32, c.NumKVHeads*headDim),
		v:      make([]float32, c.NumKVHeads*headDim),
		logits: make([]float32, c.VocabSize),
	}
}

// Model is the transformer step engine: configuration, weights, the
// paged (or contiguous) KV cache, and the single reusable RunState.
type Model struct {
	Config
	Weights *Weights

	Pool   *kvcache.BlockPool
	Paged  *kvcache.PagedStore
	Contig *kvcache.ContiguousStore

	state *RunState
}

// New constructs a Model. When cfg.UsePagedAttention is set it allocates
// the block pool and paged store; otherwise it allocates the degraded
// contiguous comparison cache sized L*S_max*Hkv*headDim per buffer.
func New(cfg Config, weights *Weights) *Model {
	m := &Model{Config: cfg, Weights: weights, state: newRunState(cfg)}
	if cfg.UsePagedAttention {
		m.Pool = kvcache.NewBlockPool(cfg.NumBlocks)
		m.Paged = kvcache.NewPagedStore(cfg.NumLayers, cfg.NumBlocks, cfg.BlockSize, cfg.NumKVHeads, cfg.HeadDim())
	} else {
		m.Contig = kvcache.NewContiguousStore(cfg.NumLayers, cfg.MaxSeqLen, cfg.NumKVHeads, cfg.HeadDim())
	}
	return m
}

// ResetPagedState re-zeroes the paged (or contiguous) buffers and, for
// the paged path, resets the block pool. Must be called before the
// first iteration of a run and never while requests still hold blocks
// they intend to read.
func (m *Model) ResetPagedState() {
	if m.Config.UsePagedAttention {
		m.Pool.Reset()
		m.Paged.Reset()
	} else {
		m.Contig.Reset()
	}
}

// Logits returns the logits produced by the most recent Step call.
func (m *Model) Logits() []float32 { return m.state.logits }

// Step performs one token-position of forward computation for req,
// reading and writing the KV cache through req's per-layer block table
// (paged mode) or directly by position (contiguous mode), and leaves
// the resulting logits available via Logits.
func (m *Model) Step(req *request.Request, inputToken int32, position int) error {
	s := m.state
	c := m.Config
	headDim := c.HeadDim()

	copy(s.x, m.Weights.TokenEmbedding[int(inputToken)*c.Dim:(int(inputToken)+1)*c.Dim])

	for l := 0; l < c.NumLayers; l++ {
		layer := m.Weights.Layers[l]

		rmsNorm(s.xb, s.x, layer.RMSAtt, 1e-5)

		matmul(s.q, s.xb, layer.WQ, c.Dim, c.NumHeads*headDim)
		matmul(s.k, s.xb, layer.WK, c.Dim, c.NumKVHeads*headDim)
		matmul(s.v, s.xb, layer.WV, c.Dim, c.NumKVHeads*headDim)

		applyRoPE(s.q, position, c.NumHeads, headDim, c.RopeTheta)
		applyRoPE(s.k, position, c.NumKVHeads, headDim, c.RopeTheta)

		if c.UsePagedAttention {
			if position%c.BlockSize == 0 {
				blockID, err := m.Pool.AllocateOne(req.ID)
				if err != nil {
					return fmt.Errorf("model: layer %d: %w", l, err)
				}
				req.BlockTables[l] = append(req.BlockTables[l], blockID)
			}

			physicalBlock, blockOffset := m.Paged.Locate(position, req.BlockTables[l])
			m.Paged.WriteKV(l, physicalBlock, blockOffset, s.k, s.v)
			kvcache.PagedAttention(s.xb2, s.q, l, c.NumHeads, c.NumKVHeads, headDim, position, req.BlockTables[l], m.Paged)
		} else {
			m.Contig.WriteKV(l, position, s.k, s.v)
			kvcache.ContiguousAttention(s.xb2, s.q, l, c.NumHeads, c.NumKVHeads, headDim, position, m.Contig)
		}

		matmul(s.xb, s.xb2, layer.WO, c.NumHeads*headDim, c.Dim)
		addInPlace(s.x, s.xb)

		rmsNorm(s.xb, s.x, layer.RMSFFN, 1e-5)
		matmul(s.hb, s.xb, layer.WGate, c.Dim, c.HiddenDim)
		matmul(s.hb2, s.xb, layer.WUp, c.Dim, c.HiddenDim)
		swiglu(s.hb, s.hb, s.hb2)
		matmul(s.xb, s.hb, layer.WDown, c.HiddenDim, c.Dim)
		addInPlace(s.x, s.xb)
	}

	rmsNorm(s.xb, s.x, m.Weights.RMSFinal, 1e-5)
	matmul(s.logits, s.xb, m.Weights.LMHead, c.Dim, c.VocabSize)

	return nil
}

// FreeRequest releases any blocks owned by req in the paged pool. A
// no-op in contiguous mode, since that path owns no pool blocks.
func (m *Model) FreeRequest(id uuid.UUID) {
	if m.Config.UsePagedAttention {
		m.Pool.FreeRequest(id)
	}
}
