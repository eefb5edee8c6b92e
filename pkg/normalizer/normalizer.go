// Package normalizer flattens raw time series of one metric into keyed rows.
package normalizer

import (
	"fmt"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/opscart/gke-vpa-recommender/pkg/datasource"
	apperrors "github.com/opscart/gke-vpa-recommender/pkg/errors"
	"github.com/opscart/gke-vpa-recommender/pkg/models"
)

var (
	projectLabel   = models.LabelPath{Source: models.LabelSourceResource, Key: "project_id"}
	locationLabel  = models.LabelPath{Source: models.LabelSourceResource, Key: "location"}
	clusterLabel   = models.LabelPath{Source: models.LabelSourceResource, Key: "cluster_name"}
	namespaceLabel = models.LabelPath{Source: models.LabelSourceResource, Key: "namespace_name"}
)

// Normalize flattens series and keys every point by window and dimensions.
// Empty input yields an empty table.
func Normalize(series []datasource.TimeSeries, q models.MetricQuery, namespace string) (models.Table, error) {
	points, err := Flatten(series, q, namespace)
	if err != nil {
		return models.Table{Column: q.Column}, err
	}
	rows, err := ToRows(points, q.Column)
	if err != nil {
		return models.Table{Column: q.Column}, err
	}
	return models.Table{Column: q.Column, Rows: rows}, nil
}

// Flatten emits one point per series point, resolving dimensions through the
// query's label paths. A point without the configured typed value is a DATA error.
func Flatten(series []datasource.TimeSeries, q models.MetricQuery, namespace string) ([]models.TimeSeriesPoint, error) {
	var out []models.TimeSeriesPoint

	for i, ts := range series {
		dims := dimensions(ts, q, namespace)

		for j, p := range ts.Points {
			v, err := pointValue(p.Value, q.ValueType)
			if err != nil {
				return nil, apperrors.WrapWithContext(apperrors.ErrCodeData,
					fmt.Sprintf("series %d point %d of %s", i, j, q.Name), err,
					map[string]any{"dimensions": dims.String()})
			}
			if p.Interval.EndTime.IsZero() {
				return nil, apperrors.New(apperrors.ErrCodeData,
					fmt.Sprintf("series %d point %d of %s has no end time", i, j, q.Name))
			}

			start := p.Interval.StartTime
			if start.IsZero() {
				start = p.Interval.EndTime
			}
			out = append(out, models.TimeSeriesPoint{
				Window:     models.Window{Start: start.UTC(), End: p.Interval.EndTime.UTC()},
				Dimensions: dims,
				Value:      v,
			})
		}
	}

	return out, nil
}

// ToRows keys points by (window, dimensions). Two points with the same key
// break the one-value-per-key contract and the whole metric is rejected.
func ToRows(points []models.TimeSeriesPoint, column models.Column) ([]models.NormalizedRow, error) {
	rows := make([]models.NormalizedRow, 0, len(points))
	seen := make(map[models.Key]struct{}, len(points))

	for _, p := range points {
		key := models.KeyOf(p.Window, p.Dimensions)
		if _, dup := seen[key]; dup {
			log.Warn().
				Str("column", string(column)).
				Str("dimensions", p.Dimensions.String()).
				Time("start", p.Window.Start).
				Time("end", p.Window.End).
				Msg("Duplicate row for dimension tuple")
			return nil, &apperrors.StructuredError{
				Code:    apperrors.ErrCodeData,
				Message: fmt.Sprintf("duplicate %s row for %s", column, p.Dimensions),
				Context: map[string]any{"start": p.Window.Start, "end": p.Window.End},
			}
		}
		seen[key] = struct{}{}

		rows = append(rows, models.NormalizedRow{
			Key:    key,
			Column: column,
			Value:  p.Value.Float64(),
		})
	}

	return rows, nil
}

func dimensions(ts datasource.TimeSeries, q models.MetricQuery, namespace string) models.Dimensions {
	label := func(p models.LabelPath) string {
		v, _ := ts.Label(p)
		return v
	}

	d := models.Dimensions{
		ProjectID:      label(projectLabel),
		Location:       label(locationLabel),
		Cluster:        label(clusterLabel),
		Namespace:      label(namespaceLabel),
		ControllerName: label(q.ControllerLabel),
		ControllerType: label(q.ControllerKind),
		ContainerName:  label(q.ContainerLabel),
	}
	if d.Namespace == "" {
		d.Namespace = namespace
	}
	return d
}

func pointValue(v datasource.TypedValue, vt models.ValueType) (models.Value, error) {
	switch vt {
	case models.ValueTypeDouble:
		if v.DoubleValue != nil {
			if math.IsNaN(*v.DoubleValue) || math.IsInf(*v.DoubleValue, 0) {
				return models.Value{}, fmt.Errorf("non-finite double value")
			}
			return models.Value{Type: vt, Double: *v.DoubleValue}, nil
		}
		// Some double metrics are reported as int64 by the API.
		if v.Int64Value != nil {
			return models.Value{Type: vt, Double: float64(*v.Int64Value)}, nil
		}
	case models.ValueTypeInt64:
		if v.Int64Value != nil {
			return models.Value{Type: vt, Int64: int64(*v.Int64Value)}, nil
		}
		if v.DoubleValue != nil {
			return models.Value{Type: models.ValueTypeDouble, Double: *v.DoubleValue}, nil
		}
	}
	return models.Value{}, fmt.Errorf("missing %s", vt)
}
