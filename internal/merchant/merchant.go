// Package merchant implements the Merchant Enricher (Layer 1, C3): calling
// the external merchant-enrichment provider in bounded-concurrency batches
// of 10 and deriving a confidence scalar per the ambiguity-penalty formula.
package merchant

import (
	"context"
	"math"
	"strings"
	"sync"

	"github.com/banklens/enrichcascade/internal/models"
	"github.com/banklens/enrichcascade/internal/providers"
)

// BatchSize and MaxConcurrency match the provider's documented rate cap.
const (
	BatchSize      = 10
	MaxConcurrency = 10
)

var genericLabels = map[string]bool{
	"retail": true, "services": true, "general": true, "other": true,
	"miscellaneous": true, "purchase": true, "payment": true,
	"transfer": true, "unknown": true, "uncategorized": true,
}

var genericMerchants = map[string]bool{
	"amazon": true, "paypal": true, "ebay": true, "tesco": true, "walmart": true, "target": true,
}

// processorTokenPenalty maps a payment-processor token found in the
// *original* description to its penalty factor, applied even when the
// provider cleaned the merchant name, because the processor masks the true
// counterparty.
var processorTokenPenalty = map[string]float64{
	"paypal": 0.5, "amazon": 0.5, "ebay": 0.5,
	"klarna": 0.6, "clearpay": 0.6, "afterpay": 0.6,
}

// Result is one enriched record plus whether it should be enqueued for
// agentic enrichment.
type Result struct {
	Enriched   models.EnrichedTx
	NeedsAgent bool
}

// Enrich runs Layer 1 over a full set of NormTx (excluding transfer-pair
// members, which must have been filtered out by the caller), in batches of
// BatchSize with up to MaxConcurrency in-flight provider calls per batch.
func Enrich(ctx context.Context, provider providers.MerchantEnricher, txs []models.NormTx) []Result {
	results := make([]Result, len(txs))

	for start := 0; start < len(txs); start += BatchSize {
		end := start + BatchSize
		if end > len(txs) {
			end = len(txs)
		}
		enrichBatch(ctx, provider, txs[start:end], results[start:end])
	}

	return results
}

func enrichBatch(ctx context.Context, provider providers.MerchantEnricher, batch []models.NormTx, out []Result) {
	sem := make(chan struct{}, MaxConcurrency)
	var wg sync.WaitGroup

	for i, tx := range batch {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, tx models.NormTx) {
			defer wg.Done()
			defer func() { <-sem }()
			out[i] = enrichOne(ctx, provider, tx)
		}(i, tx)
	}
	wg.Wait()
}

func enrichOne(ctx context.Context, provider providers.MerchantEnricher, tx models.NormTx) Result {
	callCtx, cancel := context.WithTimeout(ctx, providers.CallTimeout)
	defer cancel()

	raw, err := provider.Enrich(callCtx, tx.Description, tx.AmountMinor, tx.Direction)
	if err != nil {
		return fallbackResult(tx, "provider call failed: "+err.Error())
	}

	confidence := deriveConfidence(raw, tx.Description)
	enriched := models.EnrichedTx{
		ID:                  tx.ID,
		OriginalDescription: tx.Description,
		MerchantCleanName:   raw.MerchantName,
		MerchantLogo:        raw.Logo,
		MerchantSite:        raw.Website,
		Labels:              raw.Labels,
		IsRecurring:         isRecurring(raw.Recurrence),
		RecurrencePeriod:    raw.Recurrence,
		AmountMinor:         tx.AmountMinor,
		Currency:            tx.Currency,
		Direction:           directionOf(tx.Direction),
		Date:                tx.Date,
		NtropyConfidence:    confidence,
		Stage:               models.StageNtropyDone,
		ReasoningTrace:      []string{"merchant enrichment provider returned a result; confidence derived from label specificity and ambiguity penalties"},
		TransactionType:     models.TxTypeRegular,
	}

	needsAgent := true
	if confidence >= models.CascadeThreshold {
		enriched.Source = models.SourceNtropy
		needsAgent = false
	}

	return Result{Enriched: enriched, NeedsAgent: needsAgent}
}

func fallbackResult(tx models.NormTx, reason string) Result {
	return Result{
		Enriched: models.EnrichedTx{
			ID:                  tx.ID,
			OriginalDescription: tx.Description,
			Labels:              []string{"uncategorized"},
			AmountMinor:         tx.AmountMinor,
			Currency:            tx.Currency,
			Direction:           directionOf(tx.Direction),
			Date:                tx.Date,
			NtropyConfidence:    0.3,
			Stage:               models.StageNtropyDone,
			ReasoningTrace:      []string{reason},
			TransactionType:     models.TxTypeRegular,
		},
		NeedsAgent: true,
	}
}

// deriveConfidence implements the Layer-1 confidence formula from the
// component design: a base score, additive bonuses capped at 1.0, then a
// multiplicative ambiguity penalty (smallest applicable factor wins).
func deriveConfidence(raw providers.MerchantEnrichment, originalDescription string) float64 {
	score := 0.70

	merchantLower := strings.ToLower(strings.TrimSpace(raw.MerchantName))
	if len(merchantLower) >= 3 {
		score += 0.10
	}

	hasSpecificLabel := false
	for _, label := range raw.Labels {
		if !genericLabels[strings.ToLower(strings.TrimSpace(label))] {
			hasSpecificLabel = true
			break
		}
	}
	if hasSpecificLabel {
		score += 0.10
	}

	if isRecurring(raw.Recurrence) {
		score += 0.10
	}

	// Round away float drift from the 0.10 steps (0.70+0.10 is otherwise
	// 0.7999999999999999, just under the cascade threshold).
	score = math.Round(score*100) / 100

	if score > 1.0 {
		score = 1.0
	}

	penalty := ambiguityPenalty(merchantLower, raw.Labels, originalDescription)
	score *= penalty

	if score > 1.0 {
		score = 1.0
	}
	if score < 0 {
		score = 0
	}
	return score
}

// ambiguityPenalty returns the smallest (most punishing) multiplicative
// factor among all that apply: generic marketplace/processor merchant name,
// generic label, unknown/uncategorized, and processor token found in the
// original (pre-enrichment) description.
func ambiguityPenalty(merchantLower string, labels []string, originalDescription string) float64 {
	factor := 1.0

	if genericMerchants[merchantLower] {
		factor = min(factor, 0.5)
	}

	allGeneric := len(labels) > 0
	anyUnknown := false
	for _, label := range labels {
		l := strings.ToLower(strings.TrimSpace(label))
		if !genericLabels[l] {
			allGeneric = false
		}
		if l == "unknown" || l == "uncategorized" {
			anyUnknown = true
		}
	}
	if len(labels) == 0 {
		anyUnknown = true
	}
	if anyUnknown {
		factor = min(factor, 0.3)
	} else if allGeneric {
		factor = min(factor, 0.6)
	}

	descLower := strings.ToLower(originalDescription)
	for token, p := range processorTokenPenalty {
		if strings.Contains(descLower, token) {
			factor = min(factor, p)
		}
	}

	return factor
}

func isRecurring(token string) bool {
	t := strings.ToLower(token)
	return t == "recurring" || t == "subscription"
}

func directionOf(token string) string {
	if token == models.DirCredit {
		return models.DirectionIncoming
	}
	return models.DirectionOutgoing
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
