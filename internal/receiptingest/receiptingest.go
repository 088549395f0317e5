// Package receiptingest implements the Receipt Ingestion component (A5): it
// populates the receipt pool the Receipt Matcher (C7) scores against, from
// a narrow, provider-agnostic email collaborator interface. Grounded on the
// original system's email-context hunter (agents/context_hunter.py and
// agents/email_context.py), with the Nylas OAuth/grant-exchange machinery
// itself left unreimplemented: that is SDK mechanics out of scope here, not
// a missing feature, and this package only needs the grant's output (a pool
// of parsed receipts), not its auth flow.
package receiptingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/banklens/enrichcascade/internal/llmclient"
	"github.com/banklens/enrichcascade/internal/models"
	"github.com/tmc/langchaingo/llms"
)

// DefaultLookback is how far back receipts are fetched when a caller does
// not specify a window, matching the original system's 30-day default.
const DefaultLookback = 30 * 24 * time.Hour

// DefaultFetchLimit bounds how many raw emails one ingestion pass pulls.
const DefaultFetchLimit = 50

// RawEmail is one message returned by an EmailFetcher, prior to receipt
// extraction.
type RawEmail struct {
	MessageID   string
	SenderEmail string
	Subject     string
	ReceivedAt  time.Time
	BodyText    string
}

// EmailFetcher is the narrow interface a real mail provider (Nylas, Gmail,
// IMAP) implements to hand over a user's receipt-looking emails for a
// connected mail_grant. No such provider exists in the retrieved dependency
// set, so only NoopEmailFetcher ships here; a real implementation plugs in
// behind this interface without C7 or the rest of the cascade changing.
type EmailFetcher interface {
	FetchReceiptEmails(ctx context.Context, grant string, since time.Time, limit int) ([]RawEmail, error)
}

// NoopEmailFetcher always returns an empty result, used when no mail
// collaborator is configured.
type NoopEmailFetcher struct{}

func (NoopEmailFetcher) FetchReceiptEmails(ctx context.Context, grant string, since time.Time, limit int) ([]RawEmail, error) {
	return nil, nil
}

// Provider is the Receipt Ingestion contract the orchestrator calls: given a
// mail_grant, return the pool of parsed receipts available for matching.
type Provider interface {
	FetchReceipts(ctx context.Context, grant string) ([]models.ReceiptRecord, error)
}

// NoopProvider returns an empty pool; used when no grant is supplied or no
// mail collaborator is wired.
type NoopProvider struct{}

func (NoopProvider) FetchReceipts(ctx context.Context, grant string) ([]models.ReceiptRecord, error) {
	return nil, nil
}

// LLMProvider fetches raw receipt emails via an EmailFetcher and extracts
// structured fields from each with an LLM, mirroring the original system's
// parse_receipt_content.
type LLMProvider struct {
	Fetcher EmailFetcher
	LLM     llms.Model
}

func NewLLMProvider(fetcher EmailFetcher, llm llms.Model) *LLMProvider {
	return &LLMProvider{Fetcher: fetcher, LLM: llm}
}

func (p *LLMProvider) FetchReceipts(ctx context.Context, grant string) ([]models.ReceiptRecord, error) {
	if grant == "" {
		return nil, nil
	}

	emails, err := p.Fetcher.FetchReceiptEmails(ctx, grant, time.Now().Add(-DefaultLookback), DefaultFetchLimit)
	if err != nil {
		return nil, fmt.Errorf("fetch receipt emails: %w", err)
	}

	records := make([]models.ReceiptRecord, 0, len(emails))
	for _, e := range emails {
		record, ok := p.extract(ctx, e)
		if ok {
			records = append(records, record)
		}
	}
	return records, nil
}

type extractedReceipt struct {
	MerchantName string      `json:"merchant_name"`
	AmountCents  json.Number `json:"amount_cents"`
	Currency     string      `json:"currency"`
	Confidence   json.Number `json:"confidence"`
}

// extract asks the LLM to pull merchant/amount/currency out of one email's
// text, skipping it entirely when the call or JSON parse fails, or when the
// extraction has no merchant name or a confidence of zero or less, rather
// than polluting the receipt pool with a guess.
func (p *LLMProvider) extract(ctx context.Context, e RawEmail) (models.ReceiptRecord, bool) {
	if p.LLM == nil {
		return models.ReceiptRecord{}, false
	}

	body := e.BodyText
	if len(body) > 5000 {
		body = body[:5000]
	}

	systemPrompt := `You are a receipt parsing assistant. Extract structured information from this email receipt.
Respond in this exact JSON format:
{"merchant_name": "Merchant name", "amount_cents": 1234, "currency": "GBP", "confidence": 0.85}
If you cannot find a field, use null. Respond with ONLY the JSON object.`
	userPrompt := fmt.Sprintf("Email Subject: %s\nSender: %s\nEmail Body:\n%s", e.Subject, e.SenderEmail, body)

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, userPrompt),
	}

	resp, err := p.LLM.GenerateContent(ctx, messages)
	if err != nil || len(resp.Choices) == 0 {
		return models.ReceiptRecord{}, false
	}

	jsonStr := llmclient.ExtractJSONObject(resp.Choices[0].Content)
	var parsed extractedReceipt
	if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
		return models.ReceiptRecord{}, false
	}

	confidence, _ := strconv.ParseFloat(parsed.Confidence.String(), 64)
	if confidence <= 0 || parsed.MerchantName == "" {
		return models.ReceiptRecord{}, false
	}
	amountCents, _ := strconv.ParseInt(parsed.AmountCents.String(), 10, 64)

	return models.ReceiptRecord{
		ID:                e.MessageID,
		SenderAddress:     e.SenderEmail,
		Subject:           e.Subject,
		ReceivedAt:        e.ReceivedAt,
		ExtractedMerchant: parsed.MerchantName,
		ExtractedAmount:   amountCents,
		Currency:          parsed.Currency,
	}, true
}
