package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/banklens/enrichcascade/internal/models"
	"github.com/banklens/enrichcascade/internal/providers"
)

func drain(t *testing.T, events <-chan models.Event) []models.Event {
	t.Helper()
	var all []models.Event
	for ev := range events {
		all = append(all, ev)
	}
	return all
}

func TestRun_EmitsCompleteWithBudgetAnalysis(t *testing.T) {
	raws := []models.RawTx{
		{ID: "tx-1", Description: "NETFLIX.COM", Amount: -10.99, Currency: "GBP", Direction: models.DirDebit, Timestamp: "2026-03-14T09:00:00Z"},
		{ID: "tx-2", Description: "ACME CORP PAYROLL", Amount: 2500.00, Currency: "GBP", Direction: models.DirCredit, Timestamp: "2026-03-01T09:00:00Z"},
	}

	o := New(Dependencies{MerchantProvider: providers.KeywordFallbackEnricher{}})
	events := o.Run(context.Background(), Request{Transactions: raws, UserID: "user-1"})
	all := drain(t, events)

	if len(all) == 0 {
		t.Fatal("expected at least one event")
	}
	last := all[len(all)-1]
	if last.Type != "complete" {
		t.Fatalf("last event type = %q, want complete", last.Type)
	}
	if last.Result == nil {
		t.Fatal("expected a result payload on the complete event")
	}
	if len(last.Result.EnrichedTransactions) != 2 {
		t.Errorf("EnrichedTransactions length = %d, want 2", len(last.Result.EnrichedTransactions))
	}
}

func TestRun_AgenticDrainTimeoutStillProducesResult(t *testing.T) {
	raws := []models.RawTx{
		{ID: "tx-1", Description: "UNKNOWN MERCHANT XYZ", Amount: -5.00, Currency: "GBP", Direction: models.DirDebit, Timestamp: "2026-03-14T09:00:00Z"},
	}

	o := New(Dependencies{
		MerchantProvider:    providers.KeywordFallbackEnricher{},
		AgenticDrainTimeout: 1 * time.Millisecond,
	})
	events := o.Run(context.Background(), Request{Transactions: raws, UserID: "user-1"})
	all := drain(t, events)

	last := all[len(all)-1]
	if last.Type != "complete" {
		t.Fatalf("expected orchestrator to still complete after a drain timeout, got %q", last.Type)
	}
}
