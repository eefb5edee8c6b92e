package reporter

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/opscart/gke-vpa-recommender/pkg/models"
)

// GenerateCSV creates a CSV report with the sink's column set
func GenerateCSV(report *Report, writer io.Writer) error {
	w := csv.NewWriter(writer)

	if err := w.Write(models.RecommendationColumns); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for i := range report.Recommendations {
		if err := w.Write(formatRow(&report.Recommendations[i])); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	w.Flush()
	return w.Error()
}

// formatRow renders a recommendation as strings in column order.
func formatRow(rec *models.Recommendation) []string {
	values := rec.Values()
	out := make([]string, len(values))
	for i, v := range values {
		switch x := v.(type) {
		case time.Time:
			if i == 0 {
				out[i] = x.UTC().Format(time.DateOnly)
			} else {
				out[i] = x.UTC().Format(time.RFC3339)
			}
		case float64:
			out[i] = strconv.FormatFloat(x, 'f', -1, 64)
		case string:
			out[i] = x
		default:
			out[i] = fmt.Sprint(x)
		}
	}
	return out
}
