package transfer

import (
	"testing"

	"github.com/banklens/enrichcascade/internal/models"
)

func TestDetect_GhostPair(t *testing.T) {
	txs := []models.NormTx{
		{ID: "a", AmountMinor: 5000, Direction: models.DirDebit, Date: "2024-01-10", Description: "XFER TO SAVE"},
		{ID: "b", AmountMinor: 5000, Direction: models.DirCredit, Date: "2024-01-11", Description: "XFER FROM CUR"},
	}

	res := Detect(txs)

	if len(res.Pairs) != 1 {
		t.Fatalf("expected 1 pair, got %d", len(res.Pairs))
	}
	if len(res.Enriched) != 2 {
		t.Fatalf("expected 2 enriched records, got %d", len(res.Enriched))
	}
	if len(res.Remaining) != 0 {
		t.Fatalf("expected no remaining records, got %d", len(res.Remaining))
	}

	byID := map[string]models.EnrichedTx{}
	for _, e := range res.Enriched {
		byID[e.ID] = e
	}

	a, b := byID["a"], byID["b"]
	for _, e := range []models.EnrichedTx{a, b} {
		if e.BudgetCategory != models.BudgetTransfer {
			t.Errorf("%s: BudgetCategory = %q, want transfer", e.ID, e.BudgetCategory)
		}
		if !e.ExcludeFromAnalysis {
			t.Errorf("%s: expected ExcludeFromAnalysis", e.ID)
		}
		if e.Source != models.SourceMathBrain {
			t.Errorf("%s: Source = %q, want math_brain", e.ID, e.Source)
		}
		if e.NtropyConfidence != 1.0 {
			t.Errorf("%s: NtropyConfidence = %v, want 1.0", e.ID, e.NtropyConfidence)
		}
	}
	if a.LinkedTransactionID != "b" {
		t.Errorf("a.LinkedTransactionID = %q, want b", a.LinkedTransactionID)
	}
	if b.LinkedTransactionID != "a" {
		t.Errorf("b.LinkedTransactionID = %q, want a", b.LinkedTransactionID)
	}
}

func TestDetect_UnmatchedFallsThrough(t *testing.T) {
	txs := []models.NormTx{
		{ID: "a", AmountMinor: 5000, Direction: models.DirDebit, Date: "2024-01-10"},
		{ID: "b", AmountMinor: 5000, Direction: models.DirDebit, Date: "2024-01-10"},
	}
	res := Detect(txs)
	if len(res.Pairs) != 0 {
		t.Fatalf("same-direction records must not pair, got %d pairs", len(res.Pairs))
	}
	if len(res.Remaining) != 2 {
		t.Fatalf("expected both records to fall through, got %d", len(res.Remaining))
	}
}

func TestDetect_GreedyPairingWithThreeCandidates(t *testing.T) {
	txs := []models.NormTx{
		{ID: "a", AmountMinor: 1000, Direction: models.DirDebit, Date: "2024-01-10"},
		{ID: "b", AmountMinor: 1000, Direction: models.DirCredit, Date: "2024-01-10"},
		{ID: "c", AmountMinor: 1000, Direction: models.DirCredit, Date: "2024-01-10"},
	}
	res := Detect(txs)
	if len(res.Pairs) != 1 {
		t.Fatalf("expected exactly 1 pair from 3 same-amount candidates, got %d", len(res.Pairs))
	}
	if len(res.Remaining) != 1 {
		t.Fatalf("expected 1 unmatched extra, got %d", len(res.Remaining))
	}
}

func TestDetect_DateWindowExceeded(t *testing.T) {
	txs := []models.NormTx{
		{ID: "a", AmountMinor: 1000, Direction: models.DirDebit, Date: "2024-01-01"},
		{ID: "b", AmountMinor: 1000, Direction: models.DirCredit, Date: "2024-01-10"},
	}
	res := Detect(txs)
	if len(res.Pairs) != 0 {
		t.Fatalf("expected no pair beyond the 2-day window, got %d", len(res.Pairs))
	}
}
