package contacts

import (
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/MikeSquared-Agency/enrich/internal/merge"
	"github.com/MikeSquared-Agency/enrich/internal/tabular"
)

const (
	colIndividualID    = "INDIVIDUAL_ID"
	colName            = "NAME"
	colPrimaryTitle    = "PRIMARY_TITLE"
	colCompanyID       = "COMPANY_ID"
	colConfidence      = "CONFIDENCE_SCORE"
	colManagementLevel = "MANAGEMENT_LEVEL"
)

// RequiredColumns must be present in the input CSV.
var RequiredColumns = []string{colIndividualID, colName, colPrimaryTitle, colCompanyID, colConfidence, colManagementLevel}

// channelColumns are the ways to reach a contact; info_count counts the
// filled ones.
var channelColumns = []string{"EMAIL_ADDRESS", "BEST_FREEMAIL", "MOBILE_PHONE", "PHONE_NUMBER", "LINKEDIN_URL"}

// Clean drops unusable rows, truncates to maxRows (0 means all), fills empty
// required values with N/A and folds every value to ASCII. The table is not
// modified.
func Clean(t *tabular.Table, maxRows int, logger *slog.Logger) []tabular.Row {
	if missing := t.Missing(RequiredColumns...); len(missing) > 0 {
		logger.Warn("input is missing required columns", "columns", missing)
	}

	var rows []tabular.Row
	empty, invalid := 0, 0
	for _, r := range t.Rows {
		if allBlank(r, RequiredColumns) {
			empty++
			continue
		}
		if _, ok := parseScore(r[colConfidence]); !ok {
			invalid++
			continue
		}
		rows = append(rows, r)
	}
	logger.Info("input rows filtered",
		"read", len(t.Rows),
		"dropped_empty", empty,
		"dropped_invalid_confidence", invalid,
		"kept", len(rows),
	)

	if maxRows > 0 && len(rows) > maxRows {
		rows = rows[:maxRows]
	}

	out := make([]tabular.Row, 0, len(rows))
	for _, r := range rows {
		out = append(out, normalizeRow(r, logger))
	}
	return out
}

func normalizeRow(r tabular.Row, logger *slog.Logger) tabular.Row {
	n := make(tabular.Row, len(r)+len(RequiredColumns))
	for k, v := range r {
		n[k] = tabular.ToASCII(v)
	}

	allNA := true
	for _, col := range RequiredColumns {
		if strings.TrimSpace(n[col]) == "" {
			n[col] = merge.Placeholder
		}
		if n[col] != merge.Placeholder {
			allNA = false
		}
	}
	if allNA {
		logger.Warn("all required fields are N/A", "row", n)
	}
	return n
}

func allBlank(r tabular.Row, cols []string) bool {
	for _, c := range cols {
		if strings.TrimSpace(r[c]) != "" {
			return false
		}
	}
	return true
}

func parseScore(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

func infoCount(r tabular.Row) int {
	n := 0
	for _, c := range channelColumns {
		if r[c] != "" {
			n++
		}
	}
	return n
}
