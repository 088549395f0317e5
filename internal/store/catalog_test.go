package store

import (
	"context"
	"testing"

	"github.com/banklens/enrichcascade/internal/models"
)

func TestMemoryCatalog_LookupExactAmountReturnsVerifiedEntry(t *testing.T) {
	cat := NewMemoryCatalog()
	ctx := context.Background()

	_ = cat.Upsert(ctx, models.SubscriptionCatalogEntry{Merchant: "Netflix", Product: "Basic", AmountMinor: 1050, Currency: "GBP", Verified: false, Confidence: 0.6})
	_ = cat.Upsert(ctx, models.SubscriptionCatalogEntry{Merchant: "Netflix", Product: "Standard", AmountMinor: 1099, Currency: "GBP", Verified: true, Confidence: 1.0, Recurrence: "Monthly", Category: "Entertainment"})

	hits, err := cat.Lookup(ctx, "netflix", 1099, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 exact hit, got %d", len(hits))
	}
	if !hits[0].Verified {
		t.Error("expected the verified entry to be returned")
	}
}

func TestMemoryCatalog_UpsertIsLastWriterWins(t *testing.T) {
	cat := NewMemoryCatalog()
	ctx := context.Background()

	_ = cat.Upsert(ctx, models.SubscriptionCatalogEntry{Merchant: "Spotify", Product: "Premium", AmountMinor: 1099, Confidence: 0.5})
	_ = cat.Upsert(ctx, models.SubscriptionCatalogEntry{Merchant: "Spotify", Product: "Premium", AmountMinor: 1099, Confidence: 0.95, Verified: true})

	hits, _ := cat.Lookup(ctx, "spotify", 1099, 0)
	if len(hits) != 1 {
		t.Fatalf("expected upsert to replace, not append; got %d entries", len(hits))
	}
	if hits[0].Confidence != 0.95 {
		t.Errorf("Confidence = %v, want 0.95 (last write)", hits[0].Confidence)
	}
}

func TestMemoryCatalog_ToleranceWindow(t *testing.T) {
	cat := NewMemoryCatalog()
	ctx := context.Background()
	_ = cat.Upsert(ctx, models.SubscriptionCatalogEntry{Merchant: "Disney Plus", Product: "Standard", AmountMinor: 799})

	hits, _ := cat.Lookup(ctx, "disney", 820, 50)
	if len(hits) != 1 {
		t.Fatalf("expected tolerance window to include a close price, got %d hits", len(hits))
	}

	none, _ := cat.Lookup(ctx, "disney", 900, 50)
	if len(none) != 0 {
		t.Fatalf("expected no hits beyond tolerance, got %d", len(none))
	}
}
