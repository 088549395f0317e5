package graph

import (
	"context"
	"testing"
	"time"

	"github.com/banklens/enrichcascade/internal/models"
	"github.com/banklens/enrichcascade/internal/providers"
	"github.com/banklens/enrichcascade/internal/store"
	"github.com/banklens/enrichcascade/internal/subscription"
)

func baseTx() models.EnrichedTx {
	return models.EnrichedTx{
		ID:                  "tx-1",
		OriginalDescription: "NETFLIX.COM",
		MerchantCleanName:   "Netflix",
		AmountMinor:         1099,
		Currency:            "GBP",
		Direction:           models.DirectionOutgoing,
		Date:                "2026-03-14",
		Stage:               models.StageNtropyDone,
	}
}

func TestRun_SubscriptionMatchDrivesMergeAndTerminal(t *testing.T) {
	cat := store.NewMemoryCatalog()
	ctx := context.Background()
	_ = cat.Upsert(ctx, models.SubscriptionCatalogEntry{
		Merchant: "Netflix", Product: "Standard", AmountMinor: 1099, Currency: "GBP",
		Category: "Entertainment", Verified: true,
	})

	deps := Dependencies{Subscription: subscription.New(cat, providers.NoopWebSearcher{}, nil)}
	out := Run(ctx, deps, baseTx(), nil)

	if out.Stage != models.StageAgenticDone {
		t.Errorf("Stage = %q, want agentic_done", out.Stage)
	}
	if out.AgenticConfidence == nil || *out.AgenticConfidence != 1.0 {
		t.Fatalf("AgenticConfidence = %v, want 1.0 from the verified catalog hit", out.AgenticConfidence)
	}
	if out.NeedsReview {
		t.Error("did not expect needs_review with high confidence evidence")
	}
	if out.BudgetCategory != "Entertainment" {
		t.Errorf("BudgetCategory = %q, want Entertainment", out.BudgetCategory)
	}
}

func TestRun_EmailReceiptBeatsWeakerSubscriptionGuess(t *testing.T) {
	cat := store.NewMemoryCatalog()
	ctx := context.Background()
	deps := Dependencies{Subscription: subscription.New(cat, providers.NoopWebSearcher{}, nil)}

	tx := baseTx()
	receiptPool := []models.ReceiptRecord{{
		ID:                "r-1",
		ExtractedMerchant: "Netflix",
		ExtractedAmount:   1099,
		ReceivedAt:        time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
	}}

	out := Run(ctx, deps, tx, receiptPool)

	if out.AgenticConfidence == nil || *out.AgenticConfidence != EmailReceiptConfidence {
		t.Fatalf("AgenticConfidence = %v, want the fixed email-receipt confidence %v", out.AgenticConfidence, EmailReceiptConfidence)
	}
}

func TestRun_MidConfidenceBelowCascadeThresholdFlagsNeedsReview(t *testing.T) {
	cat := store.NewMemoryCatalog()
	ctx := context.Background()
	_ = cat.Upsert(ctx, models.SubscriptionCatalogEntry{
		Merchant: "Netflix", Product: "Standard", AmountMinor: 1099, Currency: "GBP",
		Category: "Entertainment", Verified: false, Confidence: 0.65,
	})

	deps := Dependencies{Subscription: subscription.New(cat, providers.NoopWebSearcher{}, nil)}
	out := Run(ctx, deps, baseTx(), nil)

	if out.AgenticConfidence == nil || *out.AgenticConfidence != 0.65 {
		t.Fatalf("AgenticConfidence = %v, want 0.65 from the unverified catalog hit", out.AgenticConfidence)
	}
	if !out.NeedsReview {
		t.Error("expected needs_review for a confidence inside the 0.5-0.8 band below the cascade threshold")
	}
}

func TestRun_NoEvidenceAndNoLLMFlagsNeedsReview(t *testing.T) {
	cat := store.NewMemoryCatalog()
	ctx := context.Background()
	deps := Dependencies{Subscription: subscription.New(cat, providers.NoopWebSearcher{}, nil)}

	tx := baseTx()
	tx.MerchantCleanName = "Totally Unknown Merchant"

	out := Run(ctx, deps, tx, nil)

	if !out.NeedsReview {
		t.Error("expected needs_review when no evidence is gathered and no LLM is configured")
	}
	if out.Stage != models.StageAgenticDone {
		t.Errorf("Stage = %q, want agentic_done even when falling through to review", out.Stage)
	}
}
