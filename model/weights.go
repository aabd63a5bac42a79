package model

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Layer holds one transformer layer's weight matrices, stored row-major
// as out-dim rows of in-dim floats each (matmul's convention).
type Layer struct {
	RMSAtt []float32 // [dim]
	WQ     []float32 // [H*headDim, dim]
	WK     []float32 // [Hkv*headDim, dim]
	WV     []float32 // [Hkv*headDim, dim]
	WO     []float32 // [dim, H*headDim]
	RMSFFN []float32 // [dim]
	WGate  []float32 // [hiddenDim, dim]
	WDown  []float32 // [dim, hiddenDim]
	WUp    []float32 // [hiddenDim, dim]
}

// Weights holds every tensor read from the model weight file.
type Weights struct {
	TokenEmbedding []float32 // [vocab, dim]
	Layers         []Layer
	RMSFinal       []float32 // [dim]
	LMHead         []float32 // [vocab, dim]; aliased to TokenEmbedding if the file has no classifier weights.
	Shared         bool
}

// LoadWeights reads the header and every tensor from r, in the exact
// order pinned by the binary model weight format: a 7xint32 header
// followed by token_embedding, six per-layer tensor kinds
// (rms_att, wq, wk, wv, wo, rms_ffn), three more per-layer kinds
// (w_gate, w_down, w_up), rms_final, and an optional lm_head. If the
// file ends before lm_head is readable, the classifier weights are
// aliased to the embedding table.
func LoadWeights(r io.Reader) (Config, *Weights, error) {
	var header [7]int32
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return Config{}, nil, fmt.Errorf("model: reading header: %w", err)
	}

	cfg := Config{
		Dim:        int(header[0]),
		HiddenDim:  int(header[1]),
		NumLayers:  int(header[2]),
		NumHeads:   int(header[3]),
		NumKVHeads: int(header[4]),
		VocabSize:  int(header[5]),
		MaxSeqLen:  int(header[6]),
		RopeTheta:  10000,
		EOSTokenID: 2,
	}
	headDim := cfg.HeadDim()

	w := &Weights{Layers: make([]Layer, cfg.NumLayers)}

	read := func(n int) ([]float32, error) {
		buf := make([]float32, n)
		if err := binary.Read(r, binary.LittleEndian, buf); err != nil {
			return nil, err
		}
		return buf, nil
	}

	var err error
	if w.TokenEmbedding, err = read(cfg.VocabSize * cfg.Dim); err != nil {
		return Config{}, nil, fmt.Errorf("model: reading token_embedding: %w", err)
	}

	for i := range w.Layers {
		if w.Layers[i].RMSAtt, err = read(cfg.Dim); err != nil {
			return Config{}, nil, fmt.Errorf("model: reading rms_att_weight[%d]: %w", i, err)
		}
	}
	for i := range w.Layers {
		if w.Layers[i].WQ, err = read(cfg.Dim * cfg.NumHeads * headDim); err != nil {
			return Config{}, nil, fmt.Errorf("model: reading wq[%d]: %w", i, err)
		}
	}
	for i := range w.Layers {
		if w.Layers[i].WK, err = read(cfg.Dim * cfg.NumKVHeads * headDim); err != nil {
			return Config{}, nil, fmt.Errorf("model: reading wk[%d]: %w", i, err)
		}
	}
	for i := range w.Layers {
		if w.Layers[i].WV, err = read(cfg.Dim * cfg.NumKVHeads * headDim); err != nil {
			return Config{}, nil, fmt.Errorf("model: reading wv[%d]: %w", i, err)
		}
	}
	for i := range w.Layers {
		if w.Layers[i].WO, err = read(cfg.NumHeads * headDim * cfg.Dim); err != nil {
			return Config{}, nil, fmt.Errorf("model: reading wo[%d]: %w", i, err)
		}
	}
	for i := range w.Layers {
		if w.Layers[i].RMSFFN, err = read(cfg.Dim); err != nil {
			return Config{}, nil, fmt.Errorf("model: reading rms_ffn_weight[%d]: %w", i, err)
		}
	}
	for i := range w.Layers {
		if w.Layers[i].WGate, err = read(cfg.Dim * cfg.HiddenDim); err != nil {
			return Config{}, nil, fmt.Errorf("model: reading w_gate[%d]: %w", i, err)
		}
	}
	for i := range w.Layers {
		if w.Layers[i].WDown, err = read(cfg.HiddenDim * cfg.Dim); err != nil {
			return Config{}, nil, fmt.Errorf("model: reading w_down[%d]: %w", i, err)
		}
	}
	for i := range w.Layers {
		if w.Layers[i].WUp, err = read(cfg.Dim * cfg.HiddenDim); err != nil {
			return Config{}, nil, fmt.Errorf("model: reading w_up[%d]: %w", i, err)
		}
	}

	if w.RMSFinal, err = read(cfg.Dim); err != nil {
		return Config{}, nil, fmt.Errorf("model: reading rms_final_weight: %w", err)
	}

	if lmHead, err := read(cfg.VocabSize * cfg.Dim); err == nil {
		w.LMHead = lmHead
	} else {
		w.LMHead = w.TokenEmbedding
		w.Shared = true
	}

	return cfg, w, nil
}
