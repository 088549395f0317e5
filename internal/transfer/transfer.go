// Package transfer implements the Transfer-Pair Detector (Layer 0, C2):
// deterministic pairing of internal transfers by amount, opposite direction,
// and a short time window, run once per batch before Layer 1.
package transfer

import (
	"math"
	"time"

	"github.com/banklens/enrichcascade/internal/models"
)

const maxDateDiffDays = 2

// Result holds the ghost pairs detected and the enriched records produced
// for their members, plus the subset of NormTx not claimed by a pair (these
// fall through to Layer 1).
type Result struct {
	Pairs     []models.GhostPair
	Enriched  []models.EnrichedTx
	Remaining []models.NormTx
}

// Detect groups txs by amount-minor and greedily pairs opposite-direction,
// close-in-time members within each bucket, in iteration order.
func Detect(txs []models.NormTx) Result {
	processed := make(map[string]bool, len(txs))
	buckets := make(map[int64][]models.NormTx)
	for _, tx := range txs {
		buckets[tx.AmountMinor] = append(buckets[tx.AmountMinor], tx)
	}

	var res Result

	for _, tx := range txs {
		if processed[tx.ID] {
			continue
		}
		bucket := buckets[tx.AmountMinor]
		for _, candidate := range bucket {
			if candidate.ID == tx.ID || processed[candidate.ID] {
				continue
			}
			if candidate.Direction == tx.Direction {
				continue
			}
			if !withinWindow(tx.Date, candidate.Date, maxDateDiffDays) {
				continue
			}
			processed[tx.ID] = true
			processed[candidate.ID] = true
			res.Pairs = append(res.Pairs, models.GhostPair{A: tx.ID, B: candidate.ID, AmountMinor: tx.AmountMinor})
			res.Enriched = append(res.Enriched, enrichedFor(tx, candidate.ID))
			res.Enriched = append(res.Enriched, enrichedFor(candidate, tx.ID))
			break
		}
	}

	for _, tx := range txs {
		if !processed[tx.ID] {
			res.Remaining = append(res.Remaining, tx)
		}
	}

	return res
}

func enrichedFor(tx models.NormTx, peerID string) models.EnrichedTx {
	return models.EnrichedTx{
		ID:                  tx.ID,
		OriginalDescription: tx.Description,
		Labels:              []string{"transfer", "internal"},
		AmountMinor:         tx.AmountMinor,
		Currency:            tx.Currency,
		Direction:           directionOf(tx.Direction),
		BudgetCategory:      models.BudgetTransfer,
		Date:                tx.Date,
		NtropyConfidence:    1.0,
		Stage:               models.StageComplete,
		Source:              models.SourceMathBrain,
		ExcludeFromAnalysis: true,
		TransactionType:     models.TxTypeTransfer,
		LinkedTransactionID: peerID,
		ReasoningTrace:      []string{"matched as an internal transfer pair by amount, opposite direction, and date proximity"},
	}
}

func directionOf(token string) string {
	switch token {
	case models.DirCredit:
		return models.DirectionIncoming
	default:
		return models.DirectionOutgoing
	}
}

func withinWindow(a, b string, maxDays int) bool {
	ta, errA := time.Parse("2006-01-02", a)
	tb, errB := time.Parse("2006-01-02", b)
	if errA != nil || errB != nil {
		return a == b
	}
	diff := ta.Sub(tb).Hours() / 24
	return math.Abs(diff) <= float64(maxDays)
}
