// Package normalize implements the Normaliser (C1): converting a RawTx from
// the aggregator into the canonical NormTx intermediate form.
package normalize

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"math"
	"strings"

	"github.com/banklens/enrichcascade/internal/apperr"
	"github.com/banklens/enrichcascade/internal/models"
)

// One converts a single RawTx to a NormTx. It fails with apperr.Input only
// when none of id, description, or amount can be extracted.
func One(raw models.RawTx) (models.NormTx, error) {
	if raw.ID == "" && raw.Description == "" && raw.Amount == 0 {
		return models.NormTx{}, apperr.New(apperr.Input, "normalize", fmt.Errorf("raw transaction has no id, description, or amount"))
	}

	id := raw.ID
	if id == "" {
		id = stableHash(raw.Description)
	}

	date := extractDate(raw.Timestamp)

	currency := raw.Currency
	if currency == "" {
		currency = "GBP"
	}

	return models.NormTx{
		ID:                      id,
		Description:             raw.Description,
		AmountMinor:             roundToMinor(raw.Amount),
		Currency:                currency,
		Direction:               strings.ToUpper(raw.Direction),
		ProviderClassifications: raw.ProviderClassifications,
		Date:                    date,
	}, nil
}

// Batch normalises a slice of RawTx, collecting per-record errors rather than
// aborting: a malformed record is dropped from the output and returned
// separately, matching the Input error taxonomy's non-aborting nature.
func Batch(raws []models.RawTx) ([]models.NormTx, []error) {
	out := make([]models.NormTx, 0, len(raws))
	var errs []error
	for _, raw := range raws {
		norm, err := One(raw)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, norm)
	}
	return out, errs
}

func roundToMinor(amount float64) int64 {
	abs := math.Abs(amount)
	return int64(math.Round(abs * 100))
}

func extractDate(timestamp string) string {
	if timestamp == "" {
		return ""
	}
	if idx := strings.IndexByte(timestamp, 'T'); idx >= 0 {
		timestamp = timestamp[:idx]
	}
	if len(timestamp) >= 10 {
		return timestamp[:10]
	}
	return timestamp
}

func stableHash(description string) string {
	sum := sha1.Sum([]byte(description))
	return "derived-" + hex.EncodeToString(sum[:8])
}
