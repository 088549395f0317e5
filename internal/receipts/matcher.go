// Package receipts implements the Receipt Matcher (C7): it pairs bank
// transactions against email receipt records using a weighted similarity
// score over merchant name, amount, and date. Grounded on the original
// system's ReceiptMatcher.find_best_match.
//
// No library in the retrieved dependency set provides fuzzy string
// similarity (exhaustively checked across every example repo's go.mod,
// including other_examples/manifests). The Ratcliff/Obershelp-style ratio
// below is implemented directly on the standard library for that reason.
package receipts

import (
	"sort"
	"strings"
	"time"

	"github.com/banklens/enrichcascade/internal/models"
)

// Weights from section 4.7's scoring formula.
const (
	nameWeight   = 0.40
	amountWeight = 0.35
	dateWeight   = 0.25

	// MinMatchScore is the minimum combined score for a receipt to be
	// considered a match at all.
	MinMatchScore = 0.60
)

var merchantNoiseWords = []string{
	"ltd", "limited", "inc", "incorporated", "llc", "corp", "corporation",
	"co", "company", "plc", "gmbh",
	"com", "uk", "gb", "online", "receipt", "order", "purchase", "www",
}

// Match is a transaction paired with its best receipt candidate.
type Match struct {
	TransactionID string
	ReceiptID     string
	Score         float64
}

// FindMatches pairs each transaction against the receipt pool, iterating
// transactions newest-first as required by the Open Question resolution in
// section 4.7 and assigning each receipt to at most one transaction. Ties
// between equally scored receipts go to the most recently received one,
// since the original system does not document a tiebreak and a stable,
// deterministic rule is required.
func FindMatches(txs []models.EnrichedTx, receipts []models.ReceiptRecord) []Match {
	sorted := make([]models.ReceiptRecord, len(receipts))
	copy(sorted, receipts)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ReceivedAt.After(sorted[j].ReceivedAt)
	})

	byDate := make([]models.EnrichedTx, len(txs))
	copy(byDate, txs)
	sort.SliceStable(byDate, func(i, j int) bool {
		return byDate[i].Date > byDate[j].Date
	})

	used := make(map[string]bool, len(sorted))
	var matches []Match

	for _, tx := range byDate {
		txDate, err := time.Parse("2006-01-02", tx.Date)
		if err != nil {
			continue
		}
		best, bestScore, ok := bestCandidate(tx, txDate, sorted, used)
		if !ok {
			continue
		}
		used[best.ID] = true
		matches = append(matches, Match{TransactionID: tx.ID, ReceiptID: best.ID, Score: bestScore})
	}
	return matches
}

func bestCandidate(tx models.EnrichedTx, txDate time.Time, receipts []models.ReceiptRecord, used map[string]bool) (models.ReceiptRecord, float64, bool) {
	var best models.ReceiptRecord
	bestScore := 0.0
	found := false

	for _, r := range receipts {
		if used[r.ID] {
			continue
		}
		score := Score(tx, txDate, r)
		if score < MinMatchScore {
			continue
		}
		if !found || score > bestScore {
			best, bestScore, found = r, score, true
		}
	}
	return best, bestScore, found
}

// Score computes the weighted combined similarity between a transaction
// and a candidate receipt.
func Score(tx models.EnrichedTx, txDate time.Time, r models.ReceiptRecord) float64 {
	name := nameSimilarity(tx.MerchantCleanName, r)
	amount := amountSimilarity(tx.AmountMinor, r.ExtractedAmount)
	date := dateSimilarity(txDate, r.ReceivedAt)
	return nameWeight*name + amountWeight*amount + dateWeight*date
}

// subjectSubstringScore is the score awarded when the normalised merchant
// name appears verbatim inside the receipt's email subject.
const subjectSubstringScore = 0.9

// nameSimilarity takes the best of several signals: the merchant ratio
// against the extracted merchant, against the sender address's local-part
// and domain, and a fixed bonus if the merchant string shows up inside the
// subject line — a receipt can carry strong identifying evidence in any of
// these fields even when the extracted merchant text itself is noisy.
func nameSimilarity(merchant string, r models.ReceiptRecord) float64 {
	normMerchant := normalizeMerchantName(merchant)
	best := ratcliffObershelp(normMerchant, normalizeMerchantName(r.ExtractedMerchant))

	localPart, domain := splitSenderAddress(r.SenderAddress)
	if s := ratcliffObershelp(normMerchant, normalizeMerchantName(localPart)); s > best {
		best = s
	}
	if s := ratcliffObershelp(normMerchant, normalizeMerchantName(domain)); s > best {
		best = s
	}

	if normMerchant != "" && strings.Contains(normalizeMerchantName(r.Subject), normMerchant) {
		if subjectSubstringScore > best {
			best = subjectSubstringScore
		}
	}
	return best
}

// splitSenderAddress splits "receipts@uber.com" into ("receipts", "uber.com").
func splitSenderAddress(address string) (localPart, domain string) {
	at := strings.LastIndex(address, "@")
	if at < 0 {
		return address, ""
	}
	return address[:at], address[at+1:]
}

// normalizeMerchantName lowercases and strips common corporate suffixes,
// punctuation, and extra whitespace so "Uber Eats" and "UBER   EATS INC."
// compare equally.
func normalizeMerchantName(s string) string {
	s = strings.ToLower(s)
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == ' ' {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	words := strings.Fields(b.String())
	out := words[:0]
	for _, w := range words {
		if isNoiseWord(w) {
			continue
		}
		out = append(out, w)
	}
	return strings.Join(out, " ")
}

func isNoiseWord(w string) bool {
	for _, n := range merchantNoiseWords {
		if w == n {
			return true
		}
	}
	return false
}

// ratcliffObershelp computes the Gestalt pattern-matching similarity ratio:
// twice the total length of matched characters divided by the combined
// length of both strings, recursing into the unmatched left and right
// remainders around each longest common substring.
func ratcliffObershelp(a, b string) float64 {
	if a == "" && b == "" {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}
	matched := matchingCharacters(a, b)
	return 2.0 * float64(matched) / float64(len(a)+len(b))
}

func matchingCharacters(a, b string) int {
	aStart, bStart, length := longestCommonSubstring(a, b)
	if length == 0 {
		return 0
	}
	total := length
	total += matchingCharacters(a[:aStart], b[:bStart])
	total += matchingCharacters(a[aStart+length:], b[bStart+length:])
	return total
}

func longestCommonSubstring(a, b string) (aStart, bStart, length int) {
	for i := 0; i < len(a); i++ {
		for j := 0; j < len(b); j++ {
			k := 0
			for i+k < len(a) && j+k < len(b) && a[i+k] == b[j+k] {
				k++
			}
			if k > length {
				aStart, bStart, length = i, j, k
			}
		}
	}
	return
}

// amountSimilarity uses the tiered bands from section 4.7: exact 1.0,
// within 1% 0.95, within 2% 0.85, within 5% 0.70, within 10% 0.50,
// otherwise 0.0.
func amountSimilarity(txMinor, receiptMinor int64) float64 {
	if txMinor == receiptMinor {
		return 1.0
	}
	diff := txMinor - receiptMinor
	if diff < 0 {
		diff = -diff
	}
	base := txMinor
	if base < 0 {
		base = -base
	}
	if base == 0 {
		return 0.0
	}
	ratio := float64(diff) / float64(base)
	switch {
	case ratio <= 0.01:
		return 0.95
	case ratio <= 0.02:
		return 0.85
	case ratio <= 0.05:
		return 0.70
	case ratio <= 0.10:
		return 0.50
	default:
		return 0.0
	}
}

// dateSimilarity uses the signed, whole-day tiered bands from section 4.7,
// measured as days(receipt - transaction): a receipt landing after the
// transaction is expected (the merchant usually emails the receipt once the
// purchase settles) and scores higher than one dated before it.
func dateSimilarity(txDate, receiptDate time.Time) float64 {
	txDay := time.Date(txDate.Year(), txDate.Month(), txDate.Day(), 0, 0, 0, 0, time.UTC)
	receiptDay := time.Date(receiptDate.Year(), receiptDate.Month(), receiptDate.Day(), 0, 0, 0, 0, receiptDate.Location()).UTC()
	days := int(receiptDay.Sub(txDay).Hours() / 24.0)

	switch {
	case days == 0:
		return 1.0
	case days == 1:
		return 0.95
	case days >= 2 && days <= 3:
		return 0.85
	case days >= 4 && days <= 7:
		return 0.70
	case days == -1:
		return 0.80
	case days > 7:
		return 0.30
	default: // days < -1
		return 0.20
	}
}
