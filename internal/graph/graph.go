// Package graph implements the Agentic Sub-Workflow (C5): a fixed node
// chain run over a single low-confidence transaction, threading one shared
// state struct through subscription_match, email_receipt, event_correlation,
// merge, and sherlock, terminating with a stage of agentic_done. Grounded on
// the original system's LangGraph StateGraph wiring in graph.py, realised
// here as a plain Go call chain rather than a graph-execution library, since
// the node order is fixed and never branches.
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/banklens/enrichcascade/internal/llmclient"
	"github.com/banklens/enrichcascade/internal/models"
	"github.com/banklens/enrichcascade/internal/receipts"
	"github.com/banklens/enrichcascade/internal/subscription"
	"github.com/tmc/langchaingo/llms"
)

// NeedsReviewThreshold: a transaction whose final confidence remains below
// this after the full node chain is flagged for manual review, per the
// merge/terminal step. Reuses the cascade threshold itself (tau) rather
// than a separate cutoff.
const NeedsReviewThreshold = models.CascadeThreshold

// EmailReceiptConfidence is the fixed confidence contributed by a matched
// email receipt (redesigned from the original Python's running average,
// per section 5's design notes: a matched receipt is treated as
// near-certain evidence rather than diluted by an average).
const EmailReceiptConfidence = 0.92

// candidateConfidence is an (evidence, confidence) pair gathered from one
// investigative node, prior to the merge step picking the maximum.
type candidateConfidence struct {
	source     string
	product    string
	category   string
	confidence float64
}

// State threads through the node chain for one transaction.
type State struct {
	Transaction models.EnrichedTx
	Receipts    []models.ReceiptRecord

	candidates []candidateConfidence
	Trace      []string
}

// Dependencies are the node chain's external collaborators.
type Dependencies struct {
	Subscription *subscription.Matcher
	LLM          llms.Model
}

// Run executes the fixed node chain over tx and returns the updated record.
// Non-goal: event correlation remains a documented placeholder (no
// calendar/event provider was available in the retrieved stack), matching
// the original system's own PredictHQ-placeholder implementation.
func Run(ctx context.Context, deps Dependencies, tx models.EnrichedTx, receiptPool []models.ReceiptRecord) models.EnrichedTx {
	state := &State{Transaction: tx, Receipts: receiptPool}
	state.Trace = append(state.Trace, "entering agentic sub-workflow")

	subscriptionMatchNode(ctx, deps, state)
	emailReceiptNode(state)
	eventCorrelationNode(state)
	mergeNode(state)
	if state.Transaction.AgenticConfidence == nil || *state.Transaction.AgenticConfidence < CascadeThreshold() {
		sherlockNode(ctx, deps, state)
	}
	terminalNode(state)

	return state.Transaction
}

// CascadeThreshold exposes models.CascadeThreshold for readability at the
// call site above.
func CascadeThreshold() float64 { return models.CascadeThreshold }

func subscriptionMatchNode(ctx context.Context, deps Dependencies, state *State) {
	if deps.Subscription == nil {
		state.Trace = append(state.Trace, "subscription_match: no matcher configured, skipping")
		return
	}
	tx := state.Transaction
	result := deps.Subscription.Match(ctx, tx.MerchantCleanName, tx.AmountMinor, tx.Currency, tx.OriginalDescription)
	state.Trace = append(state.Trace, result.Trace...)

	if result.IsSubscription {
		state.candidates = append(state.candidates, candidateConfidence{
			source:     "subscription_match",
			product:    result.Product,
			category:   result.Category,
			confidence: result.Confidence,
		})
	}
}

func emailReceiptNode(state *State) {
	matches := receipts.FindMatches([]models.EnrichedTx{state.Transaction}, state.Receipts)
	if len(matches) == 0 {
		state.Trace = append(state.Trace, "email_receipt: no matching receipt found")
		return
	}
	m := matches[0]
	state.Trace = append(state.Trace, fmt.Sprintf("email_receipt: matched receipt %s with similarity score %.2f", m.ReceiptID, m.Score))
	state.candidates = append(state.candidates, candidateConfidence{
		source:     "email_receipt",
		confidence: EmailReceiptConfidence,
	})
}

// eventCorrelationNode is a genuine no-op: no calendar/event-history
// provider exists in the retrieved dependency set, matching the original
// system's own explicit placeholder for this node.
func eventCorrelationNode(state *State) {
	state.Trace = append(state.Trace, "event_correlation: no event data source configured, skipping")
}

func mergeNode(state *State) {
	if len(state.candidates) == 0 {
		state.Trace = append(state.Trace, "merge: no candidate evidence gathered")
		return
	}

	best := state.candidates[0]
	for _, c := range state.candidates[1:] {
		if c.confidence > best.confidence {
			best = c
		}
	}

	state.Trace = append(state.Trace, fmt.Sprintf("merge: selected %s evidence with confidence %.2f", best.source, best.confidence))

	conf := best.confidence
	state.Transaction.AgenticConfidence = &conf
	if conf >= models.CascadeThreshold {
		state.Transaction.Source = sourceForCandidate(best.source)
	}
	if best.category != "" {
		state.Transaction.BudgetCategory = best.category
	}
	if best.product != "" {
		state.Transaction.Labels = append(state.Transaction.Labels, best.product)
	}
}

func sourceForCandidate(source string) string {
	switch source {
	case "subscription_match":
		return models.SourceContextHunter
	case "email_receipt":
		return models.SourceContextHunter
	default:
		return models.SourceContextHunter
	}
}

// sherlockResult is the structured shape Sherlock's LLM call is required to
// reply in.
type sherlockResult struct {
	Category   string      `json:"category"`
	Confidence json.Number `json:"confidence"`
	Reasoning  string      `json:"reasoning"`
}

func sherlockNode(ctx context.Context, deps Dependencies, state *State) {
	if deps.LLM == nil {
		state.Trace = append(state.Trace, "sherlock: no LLM configured, leaving prior confidence in place")
		return
	}

	tx := state.Transaction
	systemPrompt := `You are Sherlock, a last-resort transaction classifier. Given a bank transaction with weak prior evidence, infer its most likely budget category.
Respond in this exact JSON format:
{"category": "discretionary", "confidence": 0.65, "reasoning": "Brief explanation"}`
	userPrompt := fmt.Sprintf("Description: %s\nMerchant: %s\nAmount: %s %.2f\nDirection: %s\nPrior reasoning trace:\n%s",
		tx.OriginalDescription, tx.MerchantCleanName, tx.Currency, float64(tx.AmountMinor)/100.0, tx.Direction, joinTrace(state.Trace))

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, userPrompt),
	}

	resp, err := deps.LLM.GenerateContent(ctx, messages)
	if err != nil || len(resp.Choices) == 0 {
		state.Trace = append(state.Trace, "sherlock: LLM call failed, leaving prior confidence in place")
		return
	}

	jsonStr := llmclient.ExtractJSONObject(resp.Choices[0].Content)
	var parsed sherlockResult
	if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
		state.Trace = append(state.Trace, "sherlock: failed to parse LLM response")
		return
	}
	confidence, _ := strconv.ParseFloat(parsed.Confidence.String(), 64)

	state.Trace = append(state.Trace, "sherlock: "+parsed.Reasoning)
	if prior := state.Transaction.AgenticConfidence; prior != nil && confidence <= *prior {
		state.Trace = append(state.Trace, "sherlock: LLM confidence not above prior, leaving prior confidence in place")
		return
	}
	state.Transaction.AgenticConfidence = &confidence
	state.Transaction.Source = models.SourceSherlock
	if parsed.Category != "" {
		state.Transaction.BudgetCategory = parsed.Category
	}
}

func terminalNode(state *State) {
	state.Transaction.Stage = models.StageAgenticDone
	state.Transaction.ReasoningTrace = append(state.Transaction.ReasoningTrace, state.Trace...)

	if state.Transaction.AgenticConfidence == nil || *state.Transaction.AgenticConfidence < NeedsReviewThreshold {
		state.Transaction.NeedsReview = true
	}
}

func joinTrace(trace []string) string {
	out := ""
	for _, t := range trace {
		out += "- " + t + "\n"
	}
	return out
}
