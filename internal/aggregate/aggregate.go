package aggregate

import (
	"strings"
	"time"

	"github.com/gurram46/Artha-Agent-sub001/internal/provider"
)

// sectorAliases folds the spellings the provider has been seen to use.
var sectorAliases = map[string]string{
	"it":                     "Information Technology",
	"tech":                   "Information Technology",
	"information technology": "Information Technology",
	"bank":                   "Financials",
	"banking":                "Financials",
	"finance":                "Financials",
	"financials":             "Financials",
	"pharma":                 "Healthcare",
	"healthcare":             "Healthcare",
	"fmcg":                   "Consumer Staples",
	"consumer staples":       "Consumer Staples",
	"auto":                   "Automobile",
	"automobile":             "Automobile",
	"oil & gas":              "Energy",
	"energy":                 "Energy",
}

// NormalizeSector trims s and maps known aliases to their canonical name.
// Unknown values are returned trimmed but otherwise untouched.
func NormalizeSector(s string) string {
	s = strings.TrimSpace(s)
	if norm, ok := sectorAliases[strings.ToLower(s)]; ok {
		return norm
	}
	return s
}

// Normalize shapes a raw ListTop payload into snapshot order.
// Rules:
//   - IDs are trimmed and upper-cased; blank IDs are dropped.
//   - Duplicate IDs collapse to one entry at the position of the first
//     occurrence. The newest UpdatedAt wins; for equal timestamps the later
//     input wins.
//   - Zero UpdatedAt is replaced with now.
func Normalize(quotes []provider.Quote, now time.Time) []provider.Quote {
	out := make([]provider.Quote, 0, len(quotes))
	index := make(map[string]int, len(quotes))

	for _, q := range quotes {
		q.ID = strings.ToUpper(strings.TrimSpace(q.ID))
		if q.ID == "" {
			continue
		}
		q.Name = strings.TrimSpace(q.Name)
		q.Sector = NormalizeSector(q.Sector)
		if q.UpdatedAt.IsZero() {
			q.UpdatedAt = now
		}

		if i, ok := index[q.ID]; ok {
			if !q.UpdatedAt.Before(out[i].UpdatedAt) {
				out[i] = q
			}
			continue
		}
		index[q.ID] = len(out)
		out = append(out, q)
	}
	return out
}
