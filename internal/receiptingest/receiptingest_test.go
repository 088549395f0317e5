package receiptingest

import (
	"context"
	"testing"
	"time"

	"github.com/tmc/langchaingo/llms"
)

type stubFetcher struct {
	emails []RawEmail
}

func (s stubFetcher) FetchReceiptEmails(ctx context.Context, grant string, since time.Time, limit int) ([]RawEmail, error) {
	return s.emails, nil
}

type stubLLM struct {
	content string
}

func (s stubLLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: s.content}}}, nil
}

func TestFetchReceipts_NoGrantReturnsEmpty(t *testing.T) {
	p := NewLLMProvider(stubFetcher{}, stubLLM{})
	got, err := p.FetchReceipts(context.Background(), "")
	if err != nil || len(got) != 0 {
		t.Fatalf("FetchReceipts(no grant) = (%v, %v), want (empty, nil)", got, err)
	}
}

func TestFetchReceipts_ParsesExtractedFields(t *testing.T) {
	fetcher := stubFetcher{emails: []RawEmail{{
		MessageID:   "m-1",
		SenderEmail: "receipts@uber.com",
		Subject:     "Your Uber trip receipt",
		ReceivedAt:  time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
		BodyText:    "Total charged: £18.50",
	}}}
	llm := stubLLM{content: `{"merchant_name": "Uber", "amount_cents": 1850, "currency": "GBP", "confidence": 0.9}`}

	p := NewLLMProvider(fetcher, llm)
	got, err := p.FetchReceipts(context.Background(), "grant-1")
	if err != nil {
		t.Fatalf("FetchReceipts error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 receipt, got %d", len(got))
	}
	r := got[0]
	if r.ExtractedMerchant != "Uber" || r.ExtractedAmount != 1850 || r.Currency != "GBP" {
		t.Errorf("unexpected receipt: %+v", r)
	}
}

func TestFetchReceipts_SkipsLowConfidenceExtraction(t *testing.T) {
	fetcher := stubFetcher{emails: []RawEmail{{MessageID: "m-1", BodyText: "noise"}}}
	llm := stubLLM{content: `{"merchant_name": "", "amount_cents": 0, "confidence": 0}`}

	p := NewLLMProvider(fetcher, llm)
	got, err := p.FetchReceipts(context.Background(), "grant-1")
	if err != nil {
		t.Fatalf("FetchReceipts error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected low-confidence extraction to be skipped, got %d receipts", len(got))
	}
}
