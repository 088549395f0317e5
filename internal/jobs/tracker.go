// Package jobs tracks asynchronous Agentic job API runs
// (create/get/update over models.EnrichmentJob), the lifecycle counterpart
// to the synchronous Ingest and Streaming APIs.
package jobs

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/banklens/enrichcascade/internal/models"
	"github.com/banklens/enrichcascade/internal/orchestrator"
)

// Tracker holds in-flight and completed jobs for the lifetime of one
// process. It is safe for concurrent use.
type Tracker struct {
	mu   sync.RWMutex
	jobs map[string]*models.EnrichmentJob
}

func NewTracker() *Tracker {
	return &Tracker{jobs: make(map[string]*models.EnrichmentJob)}
}

// Create registers a new pending job and returns it.
func (t *Tracker) Create(raws []models.RawTx) *models.EnrichmentJob {
	ids := make([]string, len(raws))
	for i, raw := range raws {
		ids[i] = raw.ID
	}

	job := &models.EnrichmentJob{
		ID:             newJobID(),
		TransactionIDs: ids,
		Total:          len(raws),
		Status:         models.JobPending,
		CreatedAt:      time.Now(),
	}

	t.mu.Lock()
	t.jobs[job.ID] = job
	t.mu.Unlock()

	return job
}

// Get returns a copy of the tracked job for id.
func (t *Tracker) Get(id string) (models.EnrichmentJob, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	job, ok := t.jobs[id]
	if !ok {
		return models.EnrichmentJob{}, false
	}
	return *job, true
}

// Run drives the orchestrator for job jobID to completion, updating its
// tracked status and counts as progress events arrive.
func (t *Tracker) Run(ctx context.Context, orch *orchestrator.Orchestrator, jobID string, req orchestrator.Request) {
	t.update(jobID, func(j *models.EnrichmentJob) {
		now := time.Now()
		j.Status = models.JobRunning
		j.StartedAt = &now
	})

	for ev := range orch.Run(ctx, req) {
		switch ev.Type {
		case "progress":
			if ev.Progress != nil {
				t.update(jobID, func(j *models.EnrichmentJob) {
					j.Completed = ev.Progress.Layer1Completed + ev.Progress.AgenticCompleted
				})
			}
		case "complete":
			t.update(jobID, func(j *models.EnrichmentJob) {
				now := time.Now()
				j.Status = models.JobCompleted
				j.CompletedAt = &now
				if ev.Result != nil {
					j.Results = ev.Result.EnrichedTransactions
					j.Completed = len(ev.Result.EnrichedTransactions)
				}
			})
		case "error":
			t.update(jobID, func(j *models.EnrichmentJob) {
				now := time.Now()
				j.Status = models.JobFailed
				j.CompletedAt = &now
			})
		}
	}
}

func (t *Tracker) update(id string, fn func(*models.EnrichmentJob)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if job, ok := t.jobs[id]; ok {
		fn(job)
	}
}

func newJobID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return "job_" + hex.EncodeToString(buf)
}
