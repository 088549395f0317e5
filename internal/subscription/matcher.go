// Package subscription implements the Subscription Matcher (C6): catalog
// lookup first, then web search plus LLM reasoning on a miss, with an
// upsert back to the catalog on high confidence. Grounded directly on the
// original system's SubscriptionMatcher.match_subscription flow.
package subscription

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/banklens/enrichcascade/internal/llmclient"
	"github.com/banklens/enrichcascade/internal/models"
	"github.com/banklens/enrichcascade/internal/providers"
	"github.com/banklens/enrichcascade/internal/store"
	"github.com/tmc/langchaingo/llms"
)

// UpsertConfidenceThreshold is the confidence at which a match is written
// back to the catalog.
const UpsertConfidenceThreshold = 0.9

// CatalogWriteVerifyTolerance is the tolerance (in minor units) used only
// by the writer-verification path: before upserting a fresh LLM-derived
// entry, checkCatalog's cascade lookup has already run with an exact match
// (tolerance 0), so this wider window exists solely to catch a near-duplicate
// entry already in the catalog (e.g. a small regional price difference) and
// avoid flooding it with near-identical rows. Open Question (a) from the
// design notes resolves this to the same 50-minor-unit window the original
// system used.
const CatalogWriteVerifyTolerance = 50

// MatchResult is the outcome of one subscription-match call.
type MatchResult struct {
	IsSubscription bool
	Product        string
	Confidence     float64
	Recurrence     string
	Category       string
	Trace          []string
}

// Matcher implements C6's match operation.
type Matcher struct {
	catalog store.Catalog
	search  providers.WebSearcher
	llm     llms.Model
}

func New(catalog store.Catalog, search providers.WebSearcher, llm llms.Model) *Matcher {
	return &Matcher{catalog: catalog, search: search, llm: llm}
}

// Match runs the full algorithm from section 4.6.
func (m *Matcher) Match(ctx context.Context, merchant string, amountMinor int64, currency, description string) MatchResult {
	trace := []string{fmt.Sprintf("starting subscription match for merchant=%q amount=%d %s", merchant, amountMinor, currency)}

	if hit, ok := m.checkCatalog(ctx, merchant, amountMinor, &trace); ok {
		return hit
	}

	return m.searchAndAnalyze(ctx, merchant, amountMinor, currency, description, trace)
}

func (m *Matcher) checkCatalog(ctx context.Context, merchant string, amountMinor int64, trace *[]string) (MatchResult, bool) {
	entries, err := m.catalog.Lookup(ctx, merchant, amountMinor, 0)
	if err != nil {
		*trace = append(*trace, "catalog lookup error: "+err.Error())
		return MatchResult{}, false
	}
	if len(entries) == 0 {
		*trace = append(*trace, "no catalog entries found for this merchant")
		return MatchResult{}, false
	}

	best := entries[0]
	confidence := best.Confidence
	if best.Verified && confidence == 0 {
		confidence = 1.0
	}
	*trace = append(*trace, fmt.Sprintf("catalog hit: %s at %d %s (verified=%v)", best.Product, best.AmountMinor, best.Currency, best.Verified))

	return MatchResult{
		IsSubscription: true,
		Product:        best.Product,
		Confidence:     confidence,
		Recurrence:     best.Recurrence,
		Category:       best.Category,
		Trace:          append([]string{}, *trace...),
	}, true
}

func (m *Matcher) searchAndAnalyze(ctx context.Context, merchant string, amountMinor int64, currency, description string, trace []string) MatchResult {
	amountMajor := float64(amountMinor) / 100.0
	trace = append(trace, "no catalog match, searching web for pricing info")

	results, err := m.search.SearchSubscriptionPricing(ctx, merchant, amountMajor, currency)
	if err != nil {
		trace = append(trace, "search error: "+err.Error())
		return MatchResult{Confidence: 0.0, Trace: trace}
	}
	if len(results) == 0 {
		trace = append(trace, "search returned no usable results")
	}

	if m.llm == nil {
		trace = append(trace, "no LLM available, cannot analyze search results")
		return MatchResult{Confidence: 0.3, Trace: trace}
	}

	return m.analyzeWithLLM(ctx, merchant, amountMinor, currency, description, results, trace)
}

func (m *Matcher) analyzeWithLLM(ctx context.Context, merchant string, amountMinor int64, currency, description string, results []providers.SearchResult, trace []string) MatchResult {
	amountMajor := float64(amountMinor) / 100.0

	var summary strings.Builder
	for _, r := range results {
		summary.WriteString("- " + r.Title + ": " + r.Snippet + "\n")
	}

	systemPrompt := `You are a subscription pricing analyst. Your job is to determine if a bank transaction matches a known subscription service.
Respond in this exact JSON format:
{"is_subscription": true, "product_name": "Product name or tier", "confidence": 0.85, "recurrence": "Monthly", "category": "Entertainment", "reasoning": "Brief explanation"}`

	userPrompt := fmt.Sprintf("Merchant: %s\nAmount: %s %.2f\nDescription: %s\nSearch results:\n%s\nDetermine if this transaction is a subscription payment and identify the product/tier.",
		merchant, currency, amountMajor, description, summary.String())

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, userPrompt),
	}

	resp, err := m.llm.GenerateContent(ctx, messages)
	if err != nil {
		trace = append(trace, "LLM analysis error: "+err.Error())
		return MatchResult{Confidence: 0.0, Trace: trace}
	}
	if len(resp.Choices) == 0 {
		trace = append(trace, "LLM returned no choices")
		return MatchResult{Confidence: 0.0, Trace: trace}
	}

	jsonStr := llmclient.ExtractJSONObject(resp.Choices[0].Content)

	var parsed struct {
		IsSubscription bool        `json:"is_subscription"`
		ProductName    string      `json:"product_name"`
		Confidence     json.Number `json:"confidence"`
		Recurrence     string      `json:"recurrence"`
		Category       string      `json:"category"`
		Reasoning      string      `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
		trace = append(trace, "failed to parse LLM response as JSON: "+err.Error())
		return MatchResult{Confidence: 0.2, Trace: trace}
	}

	confidence, _ := strconv.ParseFloat(parsed.Confidence.String(), 64)
	trace = append(trace, "LLM analysis: "+parsed.Reasoning)

	result := MatchResult{
		IsSubscription: parsed.IsSubscription,
		Product:        parsed.ProductName,
		Confidence:     confidence,
		Recurrence:     parsed.Recurrence,
		Category:       parsed.Category,
		Trace:          trace,
	}

	if result.IsSubscription && result.Confidence >= UpsertConfidenceThreshold {
		m.upsertToCatalog(ctx, merchant, amountMinor, currency, result, &result.Trace)
	}

	return result
}

func (m *Matcher) upsertToCatalog(ctx context.Context, merchant string, amountMinor int64, currency string, result MatchResult, trace *[]string) {
	if merchant == "" || result.Product == "" {
		*trace = append(*trace, "missing merchant or product name, skipping catalog upsert")
		return
	}

	if existing, err := m.catalog.Lookup(ctx, merchant, amountMinor, CatalogWriteVerifyTolerance); err == nil && len(existing) > 0 {
		*trace = append(*trace, "a near-duplicate catalog entry already exists, skipping upsert")
		return
	}

	recurrence := result.Recurrence
	if recurrence == "" {
		recurrence = "Monthly"
	}
	entry := models.SubscriptionCatalogEntry{
		Merchant:    merchant,
		Product:     result.Product,
		AmountMinor: amountMinor,
		Currency:    currency,
		Recurrence:  recurrence,
		Category:    result.Category,
		Verified:    false,
		Confidence:  result.Confidence,
	}
	if err := m.catalog.Upsert(ctx, entry); err != nil {
		*trace = append(*trace, "failed to upsert to catalog: "+err.Error())
		return
	}
	*trace = append(*trace, fmt.Sprintf("upserted to subscription catalog: %s - %s", merchant, result.Product))
}
