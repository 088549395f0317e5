// Package orchestrator implements the Streaming Orchestrator (C9): it drives
// a batch of raw transactions through the full cascade — normalisation,
// transfer-pair detection, Layer 1 merchant enrichment, agentic enrichment
// for the low-confidence remainder, budget classification, and aggregation
// — emitting a progress event after each phase. Grounded on the teacher's
// ProgressTracker and its phase-by-phase channel-based streaming shape.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/banklens/enrichcascade/internal/budget"
	"github.com/banklens/enrichcascade/internal/graph"
	"github.com/banklens/enrichcascade/internal/merchant"
	"github.com/banklens/enrichcascade/internal/models"
	"github.com/banklens/enrichcascade/internal/normalize"
	"github.com/banklens/enrichcascade/internal/providers"
	"github.com/banklens/enrichcascade/internal/queue"
	"github.com/banklens/enrichcascade/internal/receiptingest"
	"github.com/banklens/enrichcascade/internal/transfer"
)

// Phase tokens, in the fixed order the orchestrator advances through.
const (
	PhaseExtracting       = "extracting"
	PhaseDetectingTransfers = "detecting_transfers"
	PhaseEnriching        = "enriching"
	PhaseAgenticEnriching = "agentic_enriching"
	PhaseClassifying      = "classifying"
	PhaseComplete         = "complete"
)

// DefaultAgenticDrainTimeout bounds how long the orchestrator waits for the
// agentic queue to finish before emitting partial results.
const DefaultAgenticDrainTimeout = 120 * time.Second

// BudgetAnalysisWindowMonths is H, the number of trailing complete months
// the budget aggregator analyses.
const BudgetAnalysisWindowMonths = 3

// Dependencies are the orchestrator's external collaborators.
type Dependencies struct {
	MerchantProvider    providers.MerchantEnricher
	AgenticDeps         graph.Dependencies
	ReceiptProvider     receiptingest.Provider
	AgenticDrainTimeout time.Duration
	AgenticQueueWorkers int
}

// Orchestrator runs one enrichment job and streams its progress.
type Orchestrator struct {
	deps Dependencies
}

func New(deps Dependencies) *Orchestrator {
	if deps.AgenticDrainTimeout == 0 {
		deps.AgenticDrainTimeout = DefaultAgenticDrainTimeout
	}
	if deps.ReceiptProvider == nil {
		deps.ReceiptProvider = receiptingest.NoopProvider{}
	}
	return &Orchestrator{deps: deps}
}

// Request is one cascade invocation's input: the raw batch plus the
// user id, connection id, optional holder name, country and mail grant,
// and the analysis-window override.
type Request struct {
	Transactions   []models.RawTx
	UserID         string
	ConnectionID   string
	HolderName     string
	Country        string
	MailGrant      string
	AnalysisMonths int
}

// Run executes the full cascade over req and returns a channel of events;
// the channel is closed once a "complete" or fatal "error" event has been
// sent. The caller is expected to range over it until closed.
func (o *Orchestrator) Run(ctx context.Context, req Request) <-chan models.Event {
	events := make(chan models.Event, 16)

	go func() {
		defer close(events)
		o.run(ctx, req, events)
	}()

	return events
}

func (o *Orchestrator) run(ctx context.Context, req Request, events chan<- models.Event) {
	start := time.Now()
	total := len(req.Transactions)

	emit := func(phase string, snapshot models.ProgressSnapshot) {
		snapshot.ElapsedSeconds = time.Since(start).Seconds()
		events <- models.Event{Type: "progress", Status: phase, Progress: &snapshot, Timestamp: time.Now()}
	}

	if err := o.deps.MerchantProvider.EnsureAccount(ctx, req.UserID, req.HolderName, req.Country); err != nil {
		events <- models.Event{Type: "error", Message: "ensure account: " + err.Error(), Timestamp: time.Now()}
	}

	normTxs, normErrs := normalize.Batch(req.Transactions)
	for _, err := range normErrs {
		events <- models.Event{Type: "error", Message: err.Error(), Timestamp: time.Now()}
	}
	emit(PhaseExtracting, models.ProgressSnapshot{Total: total})

	transferResult := transfer.Detect(normTxs)
	emit(PhaseDetectingTransfers, models.ProgressSnapshot{Total: total})

	var merchantResults []merchant.Result
	remaining := transferResult.Remaining
	for start := 0; start < len(remaining); start += merchant.BatchSize {
		end := start + merchant.BatchSize
		if end > len(remaining) {
			end = len(remaining)
		}
		emit(PhaseEnriching, models.ProgressSnapshot{Total: total, Layer1Completed: len(merchantResults)})
		merchantResults = append(merchantResults, merchant.Enrich(ctx, o.deps.MerchantProvider, remaining[start:end])...)
		emit(PhaseEnriching, models.ProgressSnapshot{Total: total, Layer1Completed: len(merchantResults)})
	}

	enriched := make([]models.EnrichedTx, 0, len(transferResult.Enriched)+len(merchantResults))
	enriched = append(enriched, transferResult.Enriched...)

	var needingAgent []models.EnrichedTx
	for _, r := range merchantResults {
		enriched = append(enriched, r.Enriched)
		if r.NeedsAgent {
			needingAgent = append(needingAgent, r.Enriched)
		}
	}

	if len(needingAgent) > 0 {
		receiptPool, err := o.deps.ReceiptProvider.FetchReceipts(ctx, req.MailGrant)
		if err != nil {
			events <- models.Event{Type: "error", Message: "receipt ingestion: " + err.Error(), Timestamp: time.Now()}
		}
		enriched = o.runAgentic(ctx, enriched, needingAgent, receiptPool, emit)
	}

	emit(PhaseClassifying, models.ProgressSnapshot{Total: total})
	enriched = budget.ApplyAll(enriched)

	windowMonths := BudgetAnalysisWindowMonths
	if req.AnalysisMonths > 0 {
		windowMonths = req.AnalysisMonths
	}
	analysis := budget.Aggregate(enriched, windowMonths, time.Now())

	var debts []models.EnrichedTx
	for _, tx := range enriched {
		if tx.BudgetCategory == models.BudgetDebt {
			debts = append(debts, tx)
		}
	}

	result := models.EnrichResult{
		EnrichedTransactions: enriched,
		BudgetAnalysis:       analysis,
		DetectedDebts:        debts,
		GhostPairsDetected:   len(transferResult.Pairs),
	}

	events <- models.Event{Type: "complete", Status: PhaseComplete, Result: &result, Timestamp: time.Now()}
}

func (o *Orchestrator) runAgentic(ctx context.Context, enriched []models.EnrichedTx, needingAgent []models.EnrichedTx, receiptPool []models.ReceiptRecord, emit func(string, models.ProgressSnapshot)) []models.EnrichedTx {
	q := queue.NewWithWorkers(o.deps.AgenticQueueWorkers)
	q.Start(ctx)

	byID := make(map[string]models.EnrichedTx, len(enriched))
	for _, tx := range enriched {
		byID[tx.ID] = tx
	}

	for _, tx := range needingAgent {
		tx := tx
		tx.Stage = models.StageAgenticQueued
		byID[tx.ID] = tx
		job := queue.Job{ID: tx.ID, Run: func(ctx context.Context, id string) (models.EnrichedTx, error) {
			return graph.Run(ctx, o.deps.AgenticDeps, tx, receiptPool), nil
		}}
		q.Enqueue(job, models.StageNtropyDone)
	}

	emit(PhaseAgenticEnriching, q.Progress())

	timeout := o.deps.AgenticDrainTimeout
	outstanding := q.WaitUntilDrained(ctx, timeout)
	q.Stop()

	for _, tx := range needingAgent {
		if result, ok := q.Result(tx.ID); ok {
			byID[tx.ID] = result
		}
	}
	for _, id := range outstanding {
		tx := byID[id]
		tx.NeedsReview = true
		tx.ReasoningTrace = append(tx.ReasoningTrace, fmt.Sprintf("agentic enrichment did not complete within %s", timeout))
		byID[id] = tx
	}

	emit(PhaseAgenticEnriching, q.Progress())

	out := make([]models.EnrichedTx, 0, len(byID))
	for _, tx := range enriched {
		out = append(out, byID[tx.ID])
	}
	return out
}
