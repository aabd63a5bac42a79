// Package request defines the per-request state tracked across the
// lifetime of a single generation request: prompt, sampling parameters,
// progress cursors, block tables, and outcome.
package request

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a Request.
type Status int

const (
	Pending Status = iota
	Prefilling
	Decoding
	Finished
	Failed
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "PENDING"
	case Prefilling:
		return "PREFILLING"
	case Decoding:
		return "DECODING"
	case Finished:
		return "FINISHED"
	case Failed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// FinishReason explains why a Request reached a terminal status.
type FinishReason int

const (
	None FinishReason = iota
	Eos
	MaxTokens
	MaxSeqLen
	OOM
)

func (r FinishReason) String() string {
	switch r {
	case None:
		return "NONE"
	case Eos:
		return "EOS"
	case MaxTokens:
		return "MAX_TOKENS"
	case MaxSeqLen:
		return "MAX_SEQ_LEN"
	case OOM:
		return "OOM"
	default:
		return "UNKNOWN"
	}
}

// SamplingParams configures how output tokens are drawn from logits.
type SamplingParams struct {
	Temperature float32 `mapstructure:"temperature"`
	TopP        float32 `mapstructure:"top_p"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// DefaultSamplingParams matches the defaults pinned by the JSON ingestion
// format and the CLI flags.
func DefaultSamplingParams() SamplingParams {
	return SamplingParams{Temperature: 1.0, TopP: 0.9, MaxTokens: 256}
}

// Request is a single generation request as it flows from intake through
// the scheduler and runner to a terminal state.
type Request struct {
	ID     uuid.UUID
	Seq    int // order of arrival, for FIFO and deterministic sampler seeding
	Prompt string

	PromptTokens []int32
	Sampling     SamplingParams

	Status Status

	CurrentPos         int
	NumComputedTokens  int
	PrefillCursor      int
	LastToken          int32
	GeneratedTokens    []int32
	OutputText         string
	FinishedReason     FinishReason

	// BlockTables[l] is the ordered list of physical block ids assigned to
	// this request's layer l, growing one entry every B positions.
	BlockTables [][]int

	PrefillTime  time.Duration
	DecodeTime   time.Duration
	ArrivalDelay time.Duration
}

// New creates a pending Request with an assigned id and the given prompt
// tokens and sampling parameters. numLayers sizes the per-layer block
// tables up front so Step never needs to grow the outer slice.
func New(seq int, prompt string, promptTokens []int32, params SamplingParams, numLayers int) *Request {
	r := &Request{
		ID:           uuid.New(),
		Seq:          seq,
		Prompt:       prompt,
		PromptTokens: promptTokens,
		Sampling:     params,
		Status:       Pending,
		BlockTables:  make([][]int, numLayers),
	}
	return r
}

func (r *Request) NumPromptTokens() int { return len(r.PromptTokens) }

func (r *Request) NumGeneratedTokens() int { return len(r.GeneratedTokens) }

func (r *Request) TotalTokens() int { return r.NumPromptTokens() + r.NumGeneratedTokens() }

func (r *Request) IsFinished() bool { return r.Status == Finished || r.Status == Failed }

func (r *Request) CanGenerateMore() bool { return r.NumGeneratedTokens() < r.Sampling.MaxTokens }

// IsPrefill reports whether prompt tokens remain to be consumed.
func (r *Request) IsPrefill() bool { return r.PrefillCursor < r.NumPromptTokens() }

func (r *Request) RemainingPrompt() int { return r.NumPromptTokens() - r.PrefillCursor }

func (r *Request) RemainingTotal() int { return r.TotalTokens() - r.NumComputedTokens }

// Finish transitions the request to a terminal status with the given
// reason. Idempotent: calling it twice leaves the first reason in place.
func (r *Request) Finish(reason FinishReason) {
	if r.IsFinished() {
		return
	}
	r.FinishedReason = reason
	if reason == OOM {
		r.Status = Failed
	} else {
		r.Status = Finished
	}
}
