// Package budget implements the Budget Classifier (C4) and the Budget
// Aggregator (C10): mapping an enriched transaction to one of the five
// budget buckets, and rolling a window of enriched transactions into monthly
// averages and a safe-to-spend figure.
package budget

import (
	"strings"

	"github.com/banklens/enrichcascade/internal/models"
)

var debtTokens = []string{
	"loan", "mortgage", "bnpl", "klarna", "clearpay", "afterpay", "credit card", "overdraft",
}

var fixedCostTokens = []string{
	"utilities", "council tax", "insurance", "subscription", "rent", "broadband",
	"electric", "gas bill", "water bill", "phone bill", "tv licence",
}

// Classify applies the ordered budget-classification rules to an enriched
// transaction that was not already tagged as a transfer by Layer 0.
func Classify(tx models.EnrichedTx) string {
	if tx.TransactionType == models.TxTypeTransfer {
		return models.BudgetTransfer
	}

	haystack := strings.ToLower(strings.Join(tx.Labels, " ") + " " + tx.OriginalDescription)

	for _, token := range debtTokens {
		if strings.Contains(haystack, token) {
			return models.BudgetDebt
		}
	}
	for _, token := range fixedCostTokens {
		if strings.Contains(haystack, token) {
			return models.BudgetFixed
		}
	}
	if tx.IsRecurring && tx.Direction == models.DirectionOutgoing {
		return models.BudgetFixed
	}
	if tx.Direction == models.DirectionOutgoing {
		return models.BudgetDiscretionary
	}
	return models.BudgetIncome
}

// ApplyAll sets BudgetCategory on every non-transfer record in place and
// returns the updated slice.
func ApplyAll(txs []models.EnrichedTx) []models.EnrichedTx {
	for i := range txs {
		if txs[i].TransactionType == models.TxTypeTransfer {
			continue
		}
		txs[i].BudgetCategory = Classify(txs[i])
	}
	return txs
}
