// Package queue implements the Parallel Enrichment Queue (C8): a
// fixed-size worker pool draining a FIFO queue of transaction ids needing
// agentic enrichment. Grounded on the teacher's worker-pool idiom in
// importer/internal/llm/enricher.go (a buffered-channel semaphore bounding
// concurrent provider calls), generalised here into a standalone queue with
// its own lifetime rather than a one-shot batch helper.
//
// Unlike the original system's module-level AgenticEnrichmentQueue /
// get_agentic_queue() singleton, this Queue is constructed fresh per
// orchestrator invocation: see section 5's design notes on avoiding shared
// mutable package state across concurrent enrichment runs.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/banklens/enrichcascade/internal/models"
)

// Workers is the fixed pool size (W=5) from the concurrency model.
const Workers = 5

// Job is a unit of agentic work: a transaction id paired with the function
// that actually performs the enrichment.
type Job struct {
	ID  string
	Run func(ctx context.Context, id string) (models.EnrichedTx, error)
}

// Queue is a per-invocation FIFO worker pool. Zero value is not usable;
// construct with New.
type Queue struct {
	mu        sync.Mutex
	stage     map[string]string
	results   map[string]models.EnrichedTx
	errs      map[string]error
	completed int
	total     int
	startedAt time.Time

	workers int
	jobs    chan Job
	wg      sync.WaitGroup
	done    chan struct{}
	closeIt sync.Once
	cancel  context.CancelFunc
}

// New builds a queue with the default worker count (W=5), ready to accept
// jobs; call Start to spin up workers.
func New() *Queue {
	return NewWithWorkers(Workers)
}

// NewWithWorkers builds a queue with a caller-chosen worker count, for
// deployments that override AGENTIC_QUEUE_WORKERS.
func NewWithWorkers(workers int) *Queue {
	if workers <= 0 {
		workers = Workers
	}
	return &Queue{
		stage:   make(map[string]string),
		results: make(map[string]models.EnrichedTx),
		errs:    make(map[string]error),
		workers: workers,
		jobs:    make(chan Job, 256),
		done:    make(chan struct{}),
	}
}

// Start spins up the worker pool. It must be called once before any job is
// enqueued.
func (q *Queue) Start(ctx context.Context) {
	q.startedAt = time.Now()
	ctx, q.cancel = context.WithCancel(ctx)
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}
}

// Stop cancels the context the workers run jobs with, closes the job
// channel, and waits for all workers to return.
func (q *Queue) Stop() {
	if q.cancel != nil {
		q.cancel()
	}
	q.closeIt.Do(func() {
		close(q.jobs)
	})
	q.wg.Wait()
	select {
	case <-q.done:
	default:
		close(q.done)
	}
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()
	for job := range q.jobs {
		q.mu.Lock()
		q.stage[job.ID] = models.StageAgenticProcessing
		q.mu.Unlock()

		result, err := job.Run(ctx, job.ID)

		q.mu.Lock()
		if err != nil {
			q.errs[job.ID] = err
			q.stage[job.ID] = models.StageFailed
		} else {
			q.results[job.ID] = result
			q.stage[job.ID] = models.StageAgenticDone
		}
		q.completed++
		q.mu.Unlock()
	}
}

// Enqueue adds job to the queue idempotently: an id already tracked in a
// stage other than pending/ntropy_done is refused, since the stage
// invariant only allows the queue to pick up records that have not already
// entered (or completed) agentic enrichment.
func (q *Queue) Enqueue(job Job, currentStage string) bool {
	if currentStage != models.StagePending && currentStage != models.StageNtropyDone {
		return false
	}

	q.mu.Lock()
	if _, tracked := q.stage[job.ID]; tracked {
		q.mu.Unlock()
		return false
	}
	q.stage[job.ID] = models.StageAgenticQueued
	q.total++
	q.mu.Unlock()

	q.jobs <- job
	return true
}

// Progress returns a snapshot of the queue's current state.
func (q *Queue) Progress() models.ProgressSnapshot {
	q.mu.Lock()
	defer q.mu.Unlock()

	elapsedMin := time.Since(q.startedAt).Minutes()
	rate := 0.0
	if elapsedMin > 0 {
		rate = float64(q.completed) / elapsedMin
	}
	remaining := q.total - q.completed
	eta := 0.0
	if rate > 0 {
		eta = (float64(remaining) / rate) * 60.0
	}

	return models.ProgressSnapshot{
		Total:            q.total,
		AgenticQueued:    q.total,
		AgenticCompleted: q.completed,
		QueueDepth:       remaining,
		TxPerMinute:      rate,
		ETASeconds:       eta,
		ElapsedSeconds:   time.Since(q.startedAt).Seconds(),
	}
}

// Result returns the enriched record for id once its stage is
// agentic_done, or ok=false if it is still in flight or was never queued.
func (q *Queue) Result(id string) (models.EnrichedTx, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	tx, ok := q.results[id]
	return tx, ok
}

// Stage returns the current tracked stage for id.
func (q *Queue) Stage(id string) (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	s, ok := q.stage[id]
	return s, ok
}

// WaitUntilDrained blocks until every enqueued id has reached a terminal
// stage (agentic_done or failed) or the timeout elapses, whichever is
// first; it returns the ids still outstanding when it returns.
func (q *Queue) WaitUntilDrained(ctx context.Context, timeout time.Duration) []string {
	deadline := time.After(timeout)
	ticker := time.NewTicker(25 * time.Millisecond)
	defer ticker.Stop()

	for {
		if outstanding := q.outstanding(); len(outstanding) == 0 {
			return nil
		} else {
			select {
			case <-ctx.Done():
				return outstanding
			case <-deadline:
				return outstanding
			case <-ticker.C:
				continue
			}
		}
	}
}

func (q *Queue) outstanding() []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	var ids []string
	for id, stage := range q.stage {
		if stage != models.StageAgenticDone && stage != models.StageFailed {
			ids = append(ids, id)
		}
	}
	return ids
}
