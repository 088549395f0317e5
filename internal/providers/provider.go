// Package providers defines narrow interfaces for the external collaborators
// the cascade calls out to (the merchant-enrichment SDK and the web-search
// SDK), plus an HTTP-backed implementation of each with the per-call timeout
// from the concurrency model, and a keyword-classifier fallback used when
// the merchant-enrichment provider is unavailable or errors per-record.
package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// CallTimeout is the per-provider-call timeout from the concurrency model
// (section 5): each external call fails per-record without aborting the
// batch it belongs to.
const CallTimeout = 10 * time.Second

// MerchantEnrichment is the raw result of one merchant-enrichment call,
// before Layer-1 confidence derivation.
type MerchantEnrichment struct {
	MerchantName string
	Logo         string
	Website      string
	Labels       []string
	Recurrence   string // "", "recurring", "subscription", "one_off"
}

// MerchantEnricher is the interface the Layer-1 merchant enricher (C3) calls
// against; EnsureAccount idempotently creates the provider account-holder
// record required by section 5 before any transaction enrichment is issued.
type MerchantEnricher interface {
	EnsureAccount(ctx context.Context, userID, holderName, country string) error
	Enrich(ctx context.Context, description string, amountMinor int64, direction string) (MerchantEnrichment, error)
}

// HTTPMerchantEnricher calls a merchant-enrichment HTTP endpoint. It is the
// production MerchantEnricher, grounded on the teacher's signature_resolver
// HTTP-client-with-timeout shape.
type HTTPMerchantEnricher struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

// NewHTTPMerchantEnricher builds a provider client with the standard
// per-call timeout.
func NewHTTPMerchantEnricher(baseURL, apiKey string) *HTTPMerchantEnricher {
	return &HTTPMerchantEnricher{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client:  &http.Client{Timeout: CallTimeout},
	}
}

func (h *HTTPMerchantEnricher) EnsureAccount(ctx context.Context, userID, holderName, country string) error {
	if h.APIKey == "" {
		return fmt.Errorf("merchant provider not configured")
	}
	body, _ := json.Marshal(map[string]string{"id": userID, "name": holderName, "country": country})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.BaseURL+"/v3/accounts", strings.NewReader(string(body)))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+h.APIKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	// A 409 "already exists" response is treated as success.
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	if resp.StatusCode == http.StatusConflict {
		return nil
	}
	return fmt.Errorf("ensure account: unexpected status %d", resp.StatusCode)
}

func (h *HTTPMerchantEnricher) Enrich(ctx context.Context, description string, amountMinor int64, direction string) (MerchantEnrichment, error) {
	if h.APIKey == "" {
		return MerchantEnrichment{}, fmt.Errorf("merchant provider not configured")
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"description": description,
		"amount":      amountMinor,
		"direction":   direction,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.BaseURL+"/v3/transactions/enrich", strings.NewReader(string(payload)))
	if err != nil {
		return MerchantEnrichment{}, err
	}
	req.Header.Set("Authorization", "Bearer "+h.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.Client.Do(req)
	if err != nil {
		return MerchantEnrichment{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return MerchantEnrichment{}, fmt.Errorf("enrich: unexpected status %d", resp.StatusCode)
	}

	var out struct {
		Merchant struct {
			Name    string `json:"name"`
			Logo    string `json:"logo"`
			Website string `json:"website"`
		} `json:"merchant"`
		Labels     []string `json:"labels"`
		Recurrence string   `json:"recurrence"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return MerchantEnrichment{}, fmt.Errorf("decode enrich response: %w", err)
	}

	return MerchantEnrichment{
		MerchantName: out.Merchant.Name,
		Logo:         out.Merchant.Logo,
		Website:      out.Merchant.Website,
		Labels:       out.Labels,
		Recurrence:   out.Recurrence,
	}, nil
}

// KeywordFallbackEnricher is used when no HTTP provider is configured; it
// reports every record as unavailable, so Layer 1 gives each one its
// fallback result (the "uncategorized" label at confidence 0.3).
type KeywordFallbackEnricher struct{}

func (KeywordFallbackEnricher) EnsureAccount(ctx context.Context, userID, holderName, country string) error {
	return nil
}

func (KeywordFallbackEnricher) Enrich(ctx context.Context, description string, amountMinor int64, direction string) (MerchantEnrichment, error) {
	return MerchantEnrichment{}, fmt.Errorf("merchant provider not configured")
}

// SearchResult is one organic hit or knowledge-graph snippet from the web
// search collaborator.
type SearchResult struct {
	Title   string
	Snippet string
}

// WebSearcher is the interface the Subscription Matcher calls for pricing
// research.
type WebSearcher interface {
	SearchSubscriptionPricing(ctx context.Context, merchant string, amountMajor float64, currency string) ([]SearchResult, error)
}

// SerperWebSearcher posts to a Serper-style search endpoint, grounded
// directly on the original system's search_subscription_pricing query
// format: "{merchant} subscription price {currency} {amount}".
type SerperWebSearcher struct {
	APIKey string
	Client *http.Client
}

func NewSerperWebSearcher(apiKey string) *SerperWebSearcher {
	return &SerperWebSearcher{APIKey: apiKey, Client: &http.Client{Timeout: CallTimeout}}
}

func (s *SerperWebSearcher) SearchSubscriptionPricing(ctx context.Context, merchant string, amountMajor float64, currency string) ([]SearchResult, error) {
	if s.APIKey == "" {
		return nil, nil
	}
	query := fmt.Sprintf("%s subscription price %s %.2f", merchant, currency, amountMajor)
	payload, _ := json.Marshal(map[string]string{"q": query, "gl": "gb"})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://google.serper.dev/search", strings.NewReader(string(payload)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-API-KEY", s.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out struct {
		Organic []struct {
			Title   string `json:"title"`
			Snippet string `json:"snippet"`
		} `json:"organic"`
		KnowledgeGraph struct {
			Title       string `json:"title"`
			Description string `json:"description"`
		} `json:"knowledgeGraph"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	results := make([]SearchResult, 0, len(out.Organic)+1)
	for i, o := range out.Organic {
		if i >= 5 {
			break
		}
		results = append(results, SearchResult{Title: o.Title, Snippet: o.Snippet})
	}
	if out.KnowledgeGraph.Title != "" {
		results = append(results, SearchResult{Title: out.KnowledgeGraph.Title, Snippet: out.KnowledgeGraph.Description})
	}
	return results, nil
}

// NoopWebSearcher is used in tests and when no API key is configured; it
// always returns no results, driving the Subscription Matcher to its
// low-confidence path.
type NoopWebSearcher struct{}

func (NoopWebSearcher) SearchSubscriptionPricing(ctx context.Context, merchant string, amountMajor float64, currency string) ([]SearchResult, error) {
	return nil, nil
}

// CachingMerchantEnricher memoizes Enrich calls by (description, amount,
// direction) in an in-memory cache, so a batch with repeated descriptions
// (recurring bill lines, duplicated standing orders) does not re-issue the
// same provider call. Backed by ristretto, whose admission policy keeps the
// cache bounded without an explicit eviction loop.
type CachingMerchantEnricher struct {
	inner MerchantEnricher
	cache *ristretto.Cache[string, MerchantEnrichment]
}

// NewCachingMerchantEnricher wraps inner with a bounded ristretto cache.
func NewCachingMerchantEnricher(inner MerchantEnricher) (*CachingMerchantEnricher, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, MerchantEnrichment]{
		NumCounters: 10_000,
		MaxCost:     1_000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("build merchant enrichment cache: %w", err)
	}
	return &CachingMerchantEnricher{inner: inner, cache: cache}, nil
}

func (c *CachingMerchantEnricher) EnsureAccount(ctx context.Context, userID, holderName, country string) error {
	return c.inner.EnsureAccount(ctx, userID, holderName, country)
}

func (c *CachingMerchantEnricher) Enrich(ctx context.Context, description string, amountMinor int64, direction string) (MerchantEnrichment, error) {
	key := fmt.Sprintf("%s|%d|%s", description, amountMinor, direction)
	if cached, ok := c.cache.Get(key); ok {
		return cached, nil
	}

	result, err := c.inner.Enrich(ctx, description, amountMinor, direction)
	if err != nil {
		return MerchantEnrichment{}, err
	}
	c.cache.Set(key, result, 1)
	c.cache.Wait()
	return result, nil
}
