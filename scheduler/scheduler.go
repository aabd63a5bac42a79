// Package scheduler implements continuous-batching admission (the
// Scheduler) and the thread-safe staging queue that feeds it (the
// Intake, in intake.go).
package scheduler

import (
	"github.com/emirpasic/gods/v2/queues/arrayqueue"
	"github.com/emirpasic/gods/v2/sets/hashset"
	"github.com/google/uuid"
	"github.com/pagedkv/llamarunner/request"
	"golang.org/x/sync/semaphore"
)

// Kind tags a Batch as pure-decode or pure-prefill; batches are never
// mixed.
type Kind int

const (
	Decode Kind = iota
	Prefill
)

// PrefillItem is one request's chunked-prefill admission for this
// iteration: it should advance by NumTokens prompt tokens.
type PrefillItem struct {
	Request   *request.Request
	NumTokens int
}

// Batch is what Schedule returns: either a pure-decode batch (Requests
// populated) or a pure-prefill batch (PrefillItems populated).
type Batch struct {
	Kind         Kind
	Requests     []*request.Request
	PrefillItems []PrefillItem
}

func (b Batch) Empty() bool {
	return len(b.Requests) == 0 && len(b.PrefillItems) == 0
}

func (b Batch) Size() int {
	if b.Kind == Decode {
		return len(b.Requests)
	}
	return len(b.PrefillItems)
}

func (b Batch) TotalTokens() int {
	if b.Kind == Decode {
		return len(b.Requests)
	}
	total := 0
	for _, item := range b.PrefillItems {
		total += item.NumTokens
	}
	return total
}

// Config bounds a single scheduling iteration.
type Config struct {
	MaxBatchSize      int
	MaxTokensPerBatch int

	// MaxConcurrent bounds how many requests may be admitted into the
	// running set at once, independent of batch size, mirroring a
	// reference runner's semaphore over concurrently active sequences
	// sharing one KV cache. Zero means unbounded.
	MaxConcurrent int
}

// Scheduler forms the next batch from a FIFO pending queue and an
// unordered set of running requests, under a decode-first, pure-batch,
// chunked-prefill policy.
type Scheduler struct {
	cfg Config

	pending *arrayqueue.Queue[*request.Request]

	// runningSet holds the membership of the running set; runningByID
	// holds the associated values, since a set only tracks membership.
	runningSet  *hashset.Set[uuid.UUID]
	runningByID map[uuid.UUID]*request.Request
	// runningOrder preserves the order requests entered the running set,
	// so decode batches are formed deterministically.
	runningOrder []uuid.UUID

	// sem bounds concurrently admitted requests when cfg.MaxConcurrent
	// is set; nil means unbounded.
	sem *semaphore.Weighted
}

func New(cfg Config) *Scheduler {
	s := &Scheduler{
		cfg:         cfg,
		pending:     arrayqueue.New[*request.Request](),
		runningSet:  hashset.New[uuid.UUID](),
		runningByID: make(map[uuid.UUID]*request.Request),
	}
	if cfg.MaxConcurrent > 0 {
		s.sem = semaphore.NewWeighted(int64(cfg.MaxConcurrent))
	}
	return s
}

// AddRequest admits r into the pending FIFO queue with status Pending.
func (s *Scheduler) AddRequest(r *request.Request) {
	r.Status = request.Pending
	s.pending.Enqueue(r)
}

// Schedule produces the next batch: decode-over-prefill priority, FIFO
// admission within each class, pure-decode or pure-prefill never mixed.
func (s *Scheduler) Schedule() Batch {
	if batch := s.scheduleDecode(); !batch.Empty() {
		return batch
	}
	return s.schedulePrefill()
}

func (s *Scheduler) scheduleDecode() Batch {
	var reqs []*request.Request
	for _, id := range s.runningOrder {
		r, ok := s.runningByID[id]
		if !ok || r.Status != request.Decoding {
			continue
		}
		if len(reqs) >= s.cfg.MaxBatchSize {
			break
		}
		if len(reqs)+1 > s.cfg.MaxTokensPerBatch {
			break
		}
		reqs = append(reqs, r)
	}
	if len(reqs) == 0 {
		return Batch{}
	}
	return Batch{Kind: Decode, Requests: reqs}
}

// schedulePrefill first continues chunked prefill for requests already in
// the running set that didn't finish their prompt in an earlier call (a
// prompt longer than MaxTokensPerBatch spans several Schedule calls), then
// admits fresh requests from pending. A request that has been dequeued
// once must stay reachable until IsPrefill() goes false, since it is never
// re-enqueued.
func (s *Scheduler) schedulePrefill() Batch {
	var items []PrefillItem
	batchTokens := 0

	for _, id := range s.runningOrder {
		if len(items) >= s.cfg.MaxBatchSize {
			break
		}
		r, ok := s.runningByID[id]
		if !ok || r.Status != request.Prefilling || !r.IsPrefill() {
			continue
		}
		budget := s.cfg.MaxTokensPerBatch - batchTokens
		if budget <= 0 {
			break
		}
		n := r.RemainingPrompt()
		if n > budget {
			n = budget
		}
		if n <= 0 {
			continue
		}
		items = append(items, PrefillItem{Request: r, NumTokens: n})
		batchTokens += n
	}

	for !s.pending.Empty() && len(items) < s.cfg.MaxBatchSize {
		head, _ := s.pending.Peek()
		budget := s.cfg.MaxTokensPerBatch - batchTokens
		if budget <= 0 {
			break
		}
		remaining := head.RemainingPrompt()
		n := remaining
		if n > budget {
			n = budget
		}
		if n <= 0 {
			break
		}
		if s.sem != nil && !s.sem.TryAcquire(1) {
			// Concurrency cap reached; leave head pending for a later
			// iteration once a running request frees a slot.
			break
		}

		s.pending.Dequeue()
		head.Status = request.Prefilling
		s.addRunning(head)

		items = append(items, PrefillItem{Request: head, NumTokens: n})
		batchTokens += n
	}

	if len(items) == 0 {
		return Batch{}
	}
	return Batch{Kind: Prefill, PrefillItems: items}
}

func (s *Scheduler) addRunning(r *request.Request) {
	if s.runningSet.Contains(r.ID) {
		return
	}
	s.runningSet.Add(r.ID)
	s.runningByID[r.ID] = r
	s.runningOrder = append(s.runningOrder, r.ID)
}

// FinishRequest marks r's status (already set by the caller via
// request.Finish) and removes it from the running set. The scheduler
// never frees KV blocks; that is the runner's responsibility.
func (s *Scheduler) FinishRequest(r *request.Request) {
	if s.runningSet.Contains(r.ID) && s.sem != nil {
		s.sem.Release(1)
	}
	s.runningSet.Remove(r.ID)
	delete(s.runningByID, r.ID)
	for i, id := range s.runningOrder {
		if id == r.ID {
			s.runningOrder = append(s.runningOrder[:i], s.runningOrder[i+1:]...)
			break
		}
	}
}

func (s *Scheduler) HasPending() bool { return !s.pending.Empty() }
func (s *Scheduler) HasRunning() bool { return !s.runningSet.Empty() }
func (s *Scheduler) HasWork() bool    { return s.HasPending() || s.HasRunning() }

func (s *Scheduler) NumPending() int { return s.pending.Size() }
func (s *Scheduler) NumRunning() int { return s.runningSet.Size() }
