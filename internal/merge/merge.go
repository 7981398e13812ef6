// Package merge folds per-chunk extractions of one document into a single
// record.
package merge

import (
	"strings"
	"unicode/utf8"

	"github.com/MikeSquared-Agency/enrich/internal/fields"
)

// Placeholder is the literal the model uses for unknown values.
const Placeholder = "N/A"

// Merge picks, for every key, the longest usable value across chunks,
// measured in characters. Values that are blank or the placeholder are
// ignored; on equal length the earlier chunk wins. The bool is false when no key has a usable value, in which case
// the document contributes no record.
func Merge(keys []string, chunks []fields.Record) (fields.Record, bool) {
	out := make(fields.Record, len(keys))
	found := false

	for _, key := range keys {
		best, bestLen := "", 0
		for _, rec := range chunks {
			v := strings.TrimSpace(rec[key])
			if !usable(v) {
				continue
			}
			if n := utf8.RuneCountInString(v); n > bestLen {
				best, bestLen = v, n
			}
		}
		out[key] = best
		if best != "" {
			found = true
		}
	}

	if !found {
		return nil, false
	}
	return out, true
}

func usable(v string) bool {
	return v != "" && !strings.EqualFold(v, Placeholder)
}
