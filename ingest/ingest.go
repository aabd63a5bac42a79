// Package ingest decodes the JSON request-file format and stages
// requests into an intake, optionally staggering submission by each
// request's arrival delay.
package ingest

import (
	"encoding/json"
	"fmt"
	"io"
	stdsync "sync"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/pagedkv/llamarunner/request"
	"github.com/pagedkv/llamarunner/scheduler"
	"github.com/pagedkv/llamarunner/tokenizer"
)

// rawRequest mirrors one element of the JSON "requests" array.
type rawRequest struct {
	Prompt         string   `json:"prompt"`
	Temperature    *float32 `json:"temperature,omitempty"`
	TopP           *float32 `json:"top_p,omitempty"`
	MaxTokens      *int     `json:"max_tokens,omitempty"`
	ArrivalDelayMS *int     `json:"arrival_delay_ms,omitempty"`
}

type rawFile struct {
	Requests []rawRequest `json:"requests"`
}

// Load decodes the JSON request file from r into Request values,
// assigning ids in array order starting at 0 and applying the pinned
// defaults (temperature=1.0, top_p=0.9, max_tokens=256). An empty
// prompt is rejected.
func Load(r io.Reader, numLayers int) ([]*request.Request, error) {
	var raw rawFile
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("ingest: decoding request file: %w", err)
	}

	reqs := make([]*request.Request, 0, len(raw.Requests))
	for i, rr := range raw.Requests {
		if rr.Prompt == "" {
			return nil, fmt.Errorf("ingest: request %d has an empty prompt", i)
		}

		params := request.DefaultSamplingParams()
		if rr.Temperature != nil {
			params.Temperature = *rr.Temperature
		}
		if rr.TopP != nil {
			params.TopP = *rr.TopP
		}
		if rr.MaxTokens != nil {
			params.MaxTokens = *rr.MaxTokens
		}

		req := request.New(i, rr.Prompt, nil, params, numLayers)
		if rr.ArrivalDelayMS != nil {
			req.ArrivalDelay = time.Duration(*rr.ArrivalDelayMS) * time.Millisecond
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

// Tokenize fills in PromptTokens for every request by encoding its
// prompt text with BOS prepended and no EOS appended.
func Tokenize(reqs []*request.Request, tok *tokenizer.Tokenizer) {
	for _, r := range reqs {
		r.PromptTokens = tok.Encode(r.Prompt, true, false)
	}
}

// SamplingOverrides decodes the string-valued map parsed from the CLI's
// --sampling key=value,... flag into a SamplingParams override, using
// mapstructure's weakly-typed decoding to coerce strings like "0.5" into
// the underlying float32/int fields.
func SamplingOverrides(m map[string]string) (request.SamplingParams, error) {
	params := request.DefaultSamplingParams()
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &params,
	})
	if err != nil {
		return params, fmt.Errorf("ingest: building sampling override decoder: %w", err)
	}
	if err := decoder.Decode(m); err != nil {
		return params, fmt.Errorf("ingest: decoding sampling overrides: %w", err)
	}
	return params, nil
}

// Submit stages every request into intake, honoring ArrivalDelay by
// submitting each on its own timer goroutine relative to start, then
// announcing completion once the last one has been submitted.
func Submit(intake *scheduler.Intake, reqs []*request.Request, start time.Time) {
	if len(reqs) == 0 {
		intake.MarkAllSubmitted()
		return
	}

	var mu stdsync.Mutex
	remaining := len(reqs)
	for _, r := range reqs {
		r := r
		delay := time.Until(start.Add(r.ArrivalDelay))
		go func() {
			if delay > 0 {
				time.Sleep(delay)
			}
			intake.Submit(r)

			mu.Lock()
			remaining--
			done := remaining == 0
			mu.Unlock()

			if done {
				intake.MarkAllSubmitted()
			}
		}()
	}
}
