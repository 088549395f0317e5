// Package models holds the canonical data types shared across the enrichment
// cascade: raw input records, the normalised intermediate form, the fully
// enriched output record, and the supporting catalog/receipt/job records.
package models

import "time"

// Direction tokens as they arrive from the aggregator.
const (
	DirCredit        = "CREDIT"
	DirDebit         = "DEBIT"
	DirStandingOrder = "STANDING_ORDER"
	DirDirectDebit   = "DIRECT_DEBIT"
	DirFee           = "FEE"
)

// Enriched-record direction, collapsed to two values.
const (
	DirectionIncoming = "incoming"
	DirectionOutgoing = "outgoing"
)

// Budget buckets.
const (
	BudgetDebt          = "debt"
	BudgetFixed         = "fixed"
	BudgetDiscretionary = "discretionary"
	BudgetIncome        = "income"
	BudgetTransfer      = "transfer"
)

// Stage tokens; must only ever advance through this set's order.
const (
	StagePending           = "pending"
	StageNtropyDone        = "ntropy_done"
	StageAgenticQueued     = "agentic_queued"
	StageAgenticProcessing = "agentic_processing"
	StageAgenticDone       = "agentic_done"
	StageComplete          = "complete"
	StageFailed            = "failed"
)

// Source of the final classification.
const (
	SourceMathBrain     = "math_brain"
	SourceNtropy        = "ntropy"
	SourceContextHunter = "context_hunter"
	SourceSherlock      = "sherlock"
)

// Transaction types.
const (
	TxTypeRegular  = "regular"
	TxTypeTransfer = "transfer"
	TxTypeRefund   = "refund"
)

// CascadeThreshold (tau) is the confidence at which a layer stops the cascade.
const CascadeThreshold = 0.80

// RawTx is a single aggregator-delivered record before normalisation.
type RawTx struct {
	ID                      string
	Description             string
	Amount                  float64 // signed, major units
	Currency                string
	Direction               string
	ProviderClassifications []string
	Timestamp               string
}

// NormTx is the canonical intermediate form produced by the Normaliser.
type NormTx struct {
	ID                      string
	Description             string
	AmountMinor             int64
	Currency                string
	Direction               string
	ProviderClassifications []string
	Date                    string // YYYY-MM-DD
}

// EnrichedTx is the terminal output record for one input transaction.
type EnrichedTx struct {
	ID                  string
	OriginalDescription string
	MerchantCleanName   string
	MerchantLogo        string
	MerchantSite        string
	Labels              []string
	IsRecurring         bool
	RecurrencePeriod    string
	AmountMinor         int64
	Currency            string
	Direction           string
	BudgetCategory      string
	Date                string
	NtropyConfidence    float64
	AgenticConfidence   *float64
	Stage               string
	Source              string
	ReasoningTrace      []string
	ContextData         map[string]interface{}
	ExcludeFromAnalysis bool
	TransactionType     string
	LinkedTransactionID string
	NeedsReview         bool
}

// GhostPair records two NormTx ids identified as an internal transfer.
type GhostPair struct {
	A, B        string
	AmountMinor int64
}

// SubscriptionCatalogEntry is a known merchant/product/price combination.
type SubscriptionCatalogEntry struct {
	Merchant    string
	Product     string
	AmountMinor int64
	Currency    string
	Recurrence  string
	Category    string
	Verified    bool
	Confidence  float64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Key returns the composite catalog key: lower(merchant)|lower(product).
// The amount is kept as a separate dimension by callers so near-amount
// lookups (tolerance writes) can still scan entries sharing this key.
func (e SubscriptionCatalogEntry) Key() string {
	return lowerASCII(e.Merchant) + "|" + lowerASCII(e.Product)
}

func lowerASCII(s string) string {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			c = c - 'A' + 'a'
		}
		out[i] = c
	}
	return string(out)
}

// ReceiptRecord is an email receipt ingested from the mail collaborator.
type ReceiptRecord struct {
	ID                string
	SenderAddress     string
	Subject           string
	ReceivedAt        time.Time
	ExtractedMerchant string
	ExtractedAmount   int64
	Currency          string
	Matched           bool
}

// EnrichmentJob tracks an asynchronous agentic enrichment run over a set of
// transaction ids (the Agentic job API in section 6).
type EnrichmentJob struct {
	ID             string
	TransactionIDs []string
	Completed      int
	Total          int
	Results        []EnrichedTx
	Status         string // pending, running, completed, failed
	CreatedAt      time.Time
	StartedAt      *time.Time
	CompletedAt    *time.Time
}

const (
	JobPending   = "pending"
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
)

// ProgressSnapshot is the running state surfaced by both the agentic queue
// and the streaming orchestrator.
type ProgressSnapshot struct {
	Total            int     `json:"total"`
	Layer1Completed  int     `json:"layer1_completed"`
	AgenticQueued    int     `json:"agentic_queued"`
	AgenticCompleted int     `json:"agentic_completed"`
	QueueDepth       int     `json:"queue_depth"`
	TxPerMinute      float64 `json:"tx_per_minute"`
	ETASeconds       float64 `json:"eta_seconds"`
	ElapsedSeconds   float64 `json:"elapsed"`
}

// Event is one message of the streaming orchestrator's event sequence.
type Event struct {
	Type      string            `json:"type"` // progress|complete|error
	Status    string            `json:"status,omitempty"`
	Progress  *ProgressSnapshot `json:"progress,omitempty"`
	Result    *EnrichResult     `json:"result,omitempty"`
	Message   string            `json:"message,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// EnrichResult is the terminal payload of an enrichment run.
type EnrichResult struct {
	EnrichedTransactions []EnrichedTx   `json:"enriched_transactions"`
	BudgetAnalysis       BudgetAnalysis `json:"budget_analysis"`
	DetectedDebts        []EnrichedTx   `json:"detected_debts"`
	GhostPairsDetected   int            `json:"ghost_pairs_detected"`
}

// BudgetAnalysis is the output of the Budget Aggregator (C10).
type BudgetAnalysis struct {
	MonthsInWindow          int   `json:"months_in_window"`
	IncomeTotalMinor        int64 `json:"income_total_minor"`
	DebtTotalMinor          int64 `json:"debt_total_minor"`
	FixedTotalMinor         int64 `json:"fixed_total_minor"`
	DiscretionaryTotalMinor int64 `json:"discretionary_total_minor"`
	MonthlyIncomeAvg        int64 `json:"monthly_income_avg_minor"`
	MonthlyDebtAvg          int64 `json:"monthly_debt_avg_minor"`
	MonthlyFixedAvg         int64 `json:"monthly_fixed_avg_minor"`
	MonthlyDiscretionaryAvg int64 `json:"monthly_discretionary_avg_minor"`
	SafeToSpendMinor        int64 `json:"safe_to_spend_minor"`
}
