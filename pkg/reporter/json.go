package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/opscart/gke-vpa-recommender/pkg/models"
)

type jsonReport struct {
	GeneratedAt     time.Time          `json:"generated_at"`
	ContainerCount  int                `json:"container_count"`
	UnsizedCount    int                `json:"unsized_count"`
	ControllerStats []*ControllerStats `json:"controller_stats"`
	Recommendations []map[string]any   `json:"recommendations"`
}

// GenerateJSON writes the report as indented JSON. Recommendation keys are
// the sink column names.
func GenerateJSON(report *Report, writer io.Writer) error {
	out := jsonReport{
		GeneratedAt:     report.GeneratedAt.UTC(),
		ContainerCount:  report.ContainerCount,
		UnsizedCount:    report.UnsizedCount,
		ControllerStats: report.ControllerStats,
		Recommendations: make([]map[string]any, 0, len(report.Recommendations)),
	}

	for i := range report.Recommendations {
		rec := &report.Recommendations[i]
		row := make(map[string]any, len(models.RecommendationColumns))
		for j, v := range rec.Values() {
			if t, ok := v.(time.Time); ok {
				v = t.UTC()
				if j == 0 {
					v = t.UTC().Format(time.DateOnly)
				}
			}
			row[models.RecommendationColumns[j]] = v
		}
		out.Recommendations = append(out.Recommendations, row)
	}

	enc := json.NewEncoder(writer)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("failed to encode JSON report: %w", err)
	}
	return nil
}
