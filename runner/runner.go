// Package runner implements the batched runner (C8): the iteration loop
// that drains intake, schedules a batch, executes one prefill-or-decode
// step per batch member, samples, updates request cursors, and retires
// finished requests.
package runner

import (
	"log/slog"
	"time"

	"github.com/pagedkv/llamarunner/model"
	"github.com/pagedkv/llamarunner/request"
	"github.com/pagedkv/llamarunner/sampler"
	"github.com/pagedkv/llamarunner/scheduler"
	"github.com/pagedkv/llamarunner/tokenizer"
)

// Runner drives the model through a schedule until both intake and the
// scheduler are quiescent.
type Runner struct {
	Model     *model.Model
	Tokenizer *tokenizer.Tokenizer
	Scheduler *scheduler.Scheduler

	samplers map[string]*sampler.Sampler
	Metrics  Metrics
}

func New(m *model.Model, tok *tokenizer.Tokenizer, sched *scheduler.Scheduler) *Runner {
	return &Runner{
		Model:     m,
		Tokenizer: tok,
		Scheduler: sched,
		samplers:  make(map[string]*sampler.Sampler),
	}
}

// RunUntilQuiescent drains intake every iteration, schedules a batch,
// runs it, and repeats until intake has announced completion and the
// scheduler has no pending or running work.
func (r *Runner) RunUntilQuiescent(intake *scheduler.Intake, seed0 int64) {
	r.Model.ResetPagedState()
	start := time.Now()

	for {
		for _, req := range intake.Drain() {
			r.samplers[req.ID.String()] = sampler.New(req.Sampling.Temperature, req.Sampling.TopP, seed0+int64(req.Seq))
			r.Scheduler.AddRequest(req)
		}

		batch := r.Scheduler.Schedule()
		if batch.Empty() {
			if intake.IsDone() && !r.Scheduler.HasWork() {
				break
			}
			intake.Wait(50 * time.Millisecond)
			continue
		}

		if batch.Kind == scheduler.Prefill {
			r.runPrefillBatch(batch)
		} else {
			r.runDecodeBatch(batch)
		}
	}

	r.Metrics.TotalTime = time.Since(start)
}

func (r *Runner) runPrefillBatch(batch scheduler.Batch) {
	for _, item := range batch.PrefillItems {
		if err := r.runPrefillItem(item); err != nil {
			r.fail(item.Request, err)
		}
	}
}

func (r *Runner) runPrefillItem(item scheduler.PrefillItem) error {
	req := item.Request
	start := time.Now()

	for t := 0; t < item.NumTokens; t++ {
		idx := req.PrefillCursor + t
		if idx >= req.NumPromptTokens() {
			break
		}
		if err := r.Model.Step(req, req.PromptTokens[idx], req.CurrentPos); err != nil {
			return err
		}
		req.CurrentPos++
		req.NumComputedTokens++
	}
	req.PrefillCursor += item.NumTokens
	req.PrefillTime += time.Since(start)

	if !req.IsPrefill() {
		req.LastToken = req.PromptTokens[len(req.PromptTokens)-1]
		req.Status = request.Decoding
		slog.Debug("prefill complete", "request", req.ID, "prompt_tokens", req.NumPromptTokens())
	}
	return nil
}

func (r *Runner) runDecodeBatch(batch scheduler.Batch) {
	for _, req := range batch.Requests {
		start := time.Now()

		if err := r.Model.Step(req, req.LastToken, req.CurrentPos); err != nil {
			r.fail(req, err)
			continue
		}

		next := r.samplers[req.ID.String()].Sample(r.Model.Logits())

		req.GeneratedTokens = append(req.GeneratedTokens, next)
		req.CurrentPos++
		req.NumComputedTokens++
		req.LastToken = next
		req.OutputText += r.Tokenizer.Decode(next)

		req.DecodeTime += time.Since(start)

		switch {
		case next == r.Model.Config.EOSTokenID:
			r.finish(req, request.Eos)
		case !req.CanGenerateMore():
			r.finish(req, request.MaxTokens)
		case req.CurrentPos >= r.Model.Config.MaxSeqLen:
			r.finish(req, request.MaxSeqLen)
		}
	}
}

func (r *Runner) finish(req *request.Request, reason request.FinishReason) {
	req.Finish(reason)
	r.Model.FreeRequest(req.ID)
	r.Scheduler.FinishRequest(req)
	delete(r.samplers, req.ID.String())
	r.Metrics.addRequest(req)
	slog.Debug("request finished", "request", req.ID, "reason", reason, "generated", req.NumGeneratedTokens())
}

func (r *Runner) fail(req *request.Request, err error) {
	slog.Warn("step failed, finishing request with OOM", "request", req.ID, "error", err)
	r.finish(req, request.OOM)
}
