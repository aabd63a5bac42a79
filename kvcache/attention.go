package kvcache

import "math"

// PagedAttention computes, for every head, a causal attention output over
// a logical history of length T, translating each logical position to its
// physical (block, offset) coordinates through blockTable. q is laid out
// as H contiguous headDim-length vectors; out is written in the same
// layout and must be pre-sized to H*headDim.
//
// Grouped-query attention: head h reads key/value head h/(H/Hkv).
func PagedAttention(out, q []float32, layer, numHeads, numKVHeads, headDim, t int, blockTable []int, store *PagedStore) {
	groupSize := numHeads / numKVHeads
	scale := float32(1.0 / math.Sqrt(float64(headDim)))
	T := t + 1

	scores := make([]float32, T)
	for h := 0; h < numHeads; h++ {
		kvH := h / groupSize
		qh := q[h*headDim : (h+1)*headDim]

		for pos := 0; pos < T; pos++ {
			pb, off := store.Locate(pos, blockTable)
			k, _ := store.ReadKV(layer, pb, off)
			kh := k[kvH*headDim : (kvH+1)*headDim]
			scores[pos] = dot(qh, kh) * scale
		}

		softmaxInPlace(scores)

		outh := out[h*headDim : (h+1)*headDim]
		for i := range outh {
			outh[i] = 0
		}
		for pos := 0; pos < T; pos++ {
			pb, off := store.Locate(pos, blockTable)
			_, v := store.ReadKV(layer, pb, off)
			vh := v[kvH*headDim : (kvH+1)*headDim]
			p := scores[pos]
			for i, vv := range vh {
				outh[i] += p * vv
			}
		}
	}
}

// ContiguousAttention is the same algorithm over a ContiguousStore,
// addressing positions directly instead of through a block table. Used
// only for the --without-paged-attn comparison path.
func ContiguousAttention(out, q []float32, layer, numHeads, numKVHeads, headDim, t int, store *ContiguousStore) {
	groupSize := numHeads / numKVHeads
	scale := float32(1.0 / math.Sqrt(float64(headDim)))
	T := t + 1

	scores := make([]float32, T)
	for h := 0; h < numHeads; h++ {
		kvH := h / groupSize
		qh := q[h*headDim : (h+1)*headDim]

		for pos := 0; pos < T; pos++ {
			k, _ := store.ReadKV(layer, pos)
			kh := k[kvH*headDim : (kvH+1)*headDim]
			scores[pos] = dot(qh, kh) * scale
		}

		softmaxInPlace(scores)

		outh := out[h*headDim : (h+1)*headDim]
		for i := range outh {
			outh[i] = 0
		}
		for pos := 0; pos < T; pos++ {
			_, v := store.ReadKV(layer, pos)
			vh := v[kvH*headDim : (kvH+1)*headDim]
			p := scores[pos]
			for i, vv := range vh {
				outh[i] += p * vv
			}
		}
	}
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// softmaxInPlace applies a numerically stable softmax over x, summing in
// index order 0..len(x)-1 so float accumulation is deterministic.
func softmaxInPlace(x []float32) {
	max := x[0]
	for _, v := range x[1:] {
		if v > max {
			max = v
		}
	}
	var sum float32
	for i, v := range x {
		e := float32(math.Exp(float64(v - max)))
		x[i] = e
		sum += e
	}
	for i := range x {
		x[i] /= sum
	}
}
