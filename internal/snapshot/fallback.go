package snapshot

import (
	"fmt"

	"github.com/TheMichaelB/metricsnap/internal/models"
)

// resolvePeriod finds the record for period, trying its fallback chain from
// narrowest to broadest and then the broadest period. It returns the period
// that matched. A matching record without metrics is an error, not a miss.
func resolvePeriod(snap *models.Snapshot, period string, fallbacks map[string][]string, broadest string) (*models.PeriodRecord, string, error) {
	for _, candidate := range fallbackChain(period, fallbacks, broadest) {
		rec, ok := snap.Record(candidate)
		if !ok {
			continue
		}
		if !rec.Valid() {
			return nil, candidate, fmt.Errorf("%w: %s", models.ErrInvalidRecord, candidate)
		}
		return rec, candidate, nil
	}

	return nil, "", &models.PeriodNotFoundError{
		Period:    period,
		Available: snap.Periods(),
	}
}

// fallbackChain lists the periods to try, without duplicates.
func fallbackChain(period string, fallbacks map[string][]string, broadest string) []string {
	chain := make([]string, 0, len(fallbacks[period])+2)
	seen := make(map[string]bool)

	add := func(p string) {
		if p == "" || seen[p] {
			return
		}
		seen[p] = true
		chain = append(chain, p)
	}

	add(period)
	for _, p := range fallbacks[period] {
		add(p)
	}
	add(broadest)

	return chain
}
