// Package sampler implements temperature/top-p sampling over a logits
// vector, external to the step engine per its pinned contract: argmax
// when temperature is zero, otherwise a softmax followed by an optional
// nucleus (top-p) truncation before the CDF draw.
package sampler

import (
	"math"
	"math/rand"
	"sort"
)

// Sampler draws one token id from a logits vector using its own RNG,
// seeded once at construction so a run is reproducible given a seed.
type Sampler struct {
	rng         *rand.Rand
	temperature float32
	topP        float32
}

// New constructs a Sampler seeded deterministically from seed.
func New(temperature, topP float32, seed int64) *Sampler {
	return &Sampler{
		rng:         rand.New(rand.NewSource(seed)),
		temperature: temperature,
		topP:        topP,
	}
}

// Sample returns the argmax of logits when temperature is zero;
// otherwise it softmaxes logits, truncates to the top-p nucleus when
// 0 < topP < 1 (rescaling by the retained probability mass), and draws
// from the resulting CDF.
func (s *Sampler) Sample(logits []float32) int32 {
	if s.temperature == 0 {
		return argmax(logits)
	}

	probs := make([]float32, len(logits))
	for i, v := range logits {
		probs[i] = v / s.temperature
	}
	softmax(probs)

	if s.topP > 0 && s.topP < 1 {
		return s.sampleTopP(probs)
	}
	return s.sampleCDF(probs)
}

func argmax(x []float32) int32 {
	best := 0
	for i, v := range x {
		if v > x[best] {
			best = i
		}
	}
	return int32(best)
}

func softmax(x []float32) {
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

type indexedProb struct {
	id   int32
	prob float32
}

// sampleTopP sorts probabilities descending, keeps the smallest prefix
// whose cumulative mass exceeds topP (the nucleus), rescales by that
// mass, and walks the resulting CDF.
func (s *Sampler) sampleTopP(probs []float32) int32 {
	sorted := make([]indexedProb, len(probs))
	for i, p := range probs {
		sorted[i] = indexedProb{id: int32(i), prob: p}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].prob > sorted[j].prob })

	var cum float32
	cutoff := len(sorted)
	for i, ip := range sorted {
		cum += ip.prob
		if cum > s.topP {
			cutoff = i + 1
			break
		}
	}
	nucleus := sorted[:cutoff]

	r := s.rng.Float32() * cum
	var running float32
	for _, ip := range nucleus {
		running += ip.prob
		if r < running {
			return ip.id
		}
	}
	return nucleus[len(nucleus)-1].id
}

func (s *Sampler) sampleCDF(probs []float32) int32 {
	r := s.rng.Float32()
	var cum float32
	for i, p := range probs {
		cum += p
		if r < cum {
			return int32(i)
		}
	}
	return int32(len(probs) - 1)
}
