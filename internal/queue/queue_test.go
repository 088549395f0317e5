package queue

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/banklens/enrichcascade/internal/models"
)

func TestEnqueue_RefusesAlreadyAdvancedStage(t *testing.T) {
	q := New()
	q.Start(context.Background())
	defer q.Stop()

	job := Job{ID: "tx-1", Run: func(ctx context.Context, id string) (models.EnrichedTx, error) {
		return models.EnrichedTx{ID: id}, nil
	}}

	if !q.Enqueue(job, models.StagePending) {
		t.Fatal("expected a pending-stage id to be accepted")
	}
	if q.Enqueue(job, models.StageAgenticDone) {
		t.Error("expected an already-completed id to be refused")
	}
}

func TestQueue_ProcessesWithBoundedConcurrency(t *testing.T) {
	q := New()
	ctx := context.Background()
	q.Start(ctx)

	var current, maxSeen int64
	for i := 0; i < 100; i++ {
		id := fmt.Sprintf("tx-%d", i)
		job := Job{ID: id, Run: func(ctx context.Context, id string) (models.EnrichedTx, error) {
			n := atomic.AddInt64(&current, 1)
			for {
				old := atomic.LoadInt64(&maxSeen)
				if n <= old || atomic.CompareAndSwapInt64(&maxSeen, old, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt64(&current, -1)
			return models.EnrichedTx{ID: id}, nil
		}}
		q.Enqueue(job, models.StagePending)
	}

	outstanding := q.WaitUntilDrained(ctx, 5*time.Second)
	if len(outstanding) != 0 {
		t.Fatalf("expected all 100 jobs to drain, %d still outstanding", len(outstanding))
	}
	if maxSeen > Workers {
		t.Errorf("observed concurrency %d, want at most %d", maxSeen, Workers)
	}

	progress := q.Progress()
	if progress.AgenticCompleted != 100 {
		t.Errorf("AgenticCompleted = %d, want 100", progress.AgenticCompleted)
	}
}

func TestWaitUntilDrained_TimesOutWithOutstandingJobs(t *testing.T) {
	q := New()
	ctx := context.Background()
	q.Start(ctx)

	block := make(chan struct{})
	job := Job{ID: "slow-tx", Run: func(ctx context.Context, id string) (models.EnrichedTx, error) {
		<-block
		return models.EnrichedTx{ID: id}, nil
	}}
	q.Enqueue(job, models.StagePending)

	outstanding := q.WaitUntilDrained(ctx, 50*time.Millisecond)
	if len(outstanding) != 1 {
		t.Fatalf("expected the slow job to still be outstanding, got %d", len(outstanding))
	}
	close(block)
}
