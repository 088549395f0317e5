package subscription

import (
	"context"
	"errors"
	"testing"

	"github.com/banklens/enrichcascade/internal/models"
	"github.com/banklens/enrichcascade/internal/providers"
	"github.com/banklens/enrichcascade/internal/store"
)

func TestMatch_CatalogHitReturnsVerifiedConfidence(t *testing.T) {
	cat := store.NewMemoryCatalog()
	ctx := context.Background()
	_ = cat.Upsert(ctx, models.SubscriptionCatalogEntry{
		Merchant: "Netflix", Product: "Standard", AmountMinor: 1099, Currency: "GBP",
		Recurrence: "Monthly", Category: "Entertainment", Verified: true,
	})

	m := New(cat, providers.NoopWebSearcher{}, nil)
	result := m.Match(ctx, "Netflix", 1099, "GBP", "NETFLIX.COM")

	if !result.IsSubscription {
		t.Fatal("expected catalog hit to report is_subscription=true")
	}
	if result.Confidence != 1.0 {
		t.Errorf("Confidence = %v, want 1.0 for a verified catalog entry", result.Confidence)
	}
	if result.Product != "Standard" {
		t.Errorf("Product = %q, want Standard", result.Product)
	}
}

type erroringSearcher struct{}

func (erroringSearcher) SearchSubscriptionPricing(ctx context.Context, merchant string, amountMajor float64, currency string) ([]providers.SearchResult, error) {
	return nil, errors.New("search backend unavailable")
}

func TestMatch_NoLLMFallsBackToLowConfidence(t *testing.T) {
	cat := store.NewMemoryCatalog()
	ctx := context.Background()

	m := New(cat, providers.NoopWebSearcher{}, nil)
	result := m.Match(ctx, "Unknown Merchant Ltd", 599, "GBP", "UNKNOWN MERCHANT")

	if result.IsSubscription {
		t.Error("expected no LLM to mean no confident subscription determination")
	}
	if result.Confidence != 0.3 {
		t.Errorf("Confidence = %v, want 0.3 when no LLM is configured", result.Confidence)
	}
}

func TestMatch_SearchErrorYieldsZeroConfidence(t *testing.T) {
	cat := store.NewMemoryCatalog()
	ctx := context.Background()

	m := New(cat, erroringSearcher{}, nil)
	result := m.Match(ctx, "Some Merchant", 999, "GBP", "SOME MERCHANT")

	if result.Confidence != 0.0 {
		t.Errorf("Confidence = %v, want 0.0 on a search error", result.Confidence)
	}
}
