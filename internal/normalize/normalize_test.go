package normalize

import (
	"testing"

	"github.com/banklens/enrichcascade/internal/apperr"
	"github.com/banklens/enrichcascade/internal/models"
)

func TestOne_BasicFields(t *testing.T) {
	raw := models.RawTx{
		ID:          "tx1",
		Description: "TESCO STORES 1234",
		Amount:      -12.34,
		Currency:    "GBP",
		Direction:   "debit",
		Timestamp:   "2024-03-01T10:15:00Z",
	}

	got, err := One(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.AmountMinor != 1234 {
		t.Errorf("AmountMinor = %d, want 1234", got.AmountMinor)
	}
	if got.Date != "2024-03-01" {
		t.Errorf("Date = %q, want 2024-03-01", got.Date)
	}
	if got.Direction != "DEBIT" {
		t.Errorf("Direction = %q, want DEBIT", got.Direction)
	}
	if got.ID != "tx1" {
		t.Errorf("ID = %q, want tx1", got.ID)
	}
}

func TestOne_DerivesIDFromDescription(t *testing.T) {
	raw := models.RawTx{Description: "SOME PAYEE", Amount: -5, Timestamp: "2024-01-01"}
	got, err := One(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID == "" {
		t.Fatal("expected a derived id, got empty string")
	}

	got2, err := One(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != got2.ID {
		t.Errorf("derived id is not stable: %q vs %q", got.ID, got2.ID)
	}
}

func TestOne_RejectsEmptyRecord(t *testing.T) {
	_, err := One(models.RawTx{})
	if err == nil {
		t.Fatal("expected error for empty record")
	}
	if !apperr.Is(err, apperr.Input) {
		t.Errorf("expected apperr.Input, got %v", err)
	}
}

func TestBatch_DropsBadRecordsAndKeepsGood(t *testing.T) {
	raws := []models.RawTx{
		{ID: "a", Amount: -1, Timestamp: "2024-01-01"},
		{},
		{ID: "b", Amount: 2, Timestamp: "2024-01-02"},
	}
	norms, errs := Batch(raws)
	if len(norms) != 2 {
		t.Fatalf("expected 2 normalised records, got %d", len(norms))
	}
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %d", len(errs))
	}
}
