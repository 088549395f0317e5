package budget

import (
	"time"

	"github.com/banklens/enrichcascade/internal/models"
)

// DefaultAnalysisMonths is H, the number of complete calendar months in the
// analysis window (the current partial month is always excluded).
const DefaultAnalysisMonths = 3

// Aggregate rolls enriched transactions into the Budget Aggregator's monthly
// totals and averages, using "now" as the reference point for the window.
func Aggregate(txs []models.EnrichedTx, analysisMonths int, now time.Time) models.BudgetAnalysis {
	if analysisMonths <= 0 {
		analysisMonths = DefaultAnalysisMonths
	}

	windowStart, windowEnd := completeMonthsWindow(now, analysisMonths)

	var analysis models.BudgetAnalysis
	monthsSeen := map[string]bool{}

	for _, tx := range txs {
		if tx.ExcludeFromAnalysis || tx.BudgetCategory == models.BudgetTransfer {
			continue
		}
		d, err := time.Parse("2006-01-02", tx.Date)
		if err != nil {
			continue
		}
		if d.Before(windowStart) || !d.Before(windowEnd) {
			continue
		}
		monthsSeen[d.Format("2006-01")] = true

		switch tx.BudgetCategory {
		case models.BudgetIncome:
			analysis.IncomeTotalMinor += tx.AmountMinor
		case models.BudgetDebt:
			analysis.DebtTotalMinor += tx.AmountMinor
		case models.BudgetFixed:
			analysis.FixedTotalMinor += tx.AmountMinor
		case models.BudgetDiscretionary:
			analysis.DiscretionaryTotalMinor += tx.AmountMinor
		}
	}

	divisor := int64(len(monthsSeen))
	if divisor > int64(analysisMonths) {
		divisor = int64(analysisMonths)
	}
	if divisor < 1 {
		divisor = 1
	}

	analysis.MonthsInWindow = int(divisor)
	analysis.MonthlyIncomeAvg = analysis.IncomeTotalMinor / divisor
	analysis.MonthlyDebtAvg = analysis.DebtTotalMinor / divisor
	analysis.MonthlyFixedAvg = analysis.FixedTotalMinor / divisor
	analysis.MonthlyDiscretionaryAvg = analysis.DiscretionaryTotalMinor / divisor

	safe := analysis.MonthlyIncomeAvg - analysis.MonthlyFixedAvg - analysis.MonthlyDebtAvg
	if safe < 0 {
		safe = 0
	}
	analysis.SafeToSpendMinor = safe

	return analysis
}

// completeMonthsWindow returns [start, end) covering the last n complete
// calendar months before the month containing now; the current partial
// month is excluded.
func completeMonthsWindow(now time.Time, n int) (time.Time, time.Time) {
	currentMonthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	end := currentMonthStart
	start := end.AddDate(0, -n, 0)
	return start, end
}
