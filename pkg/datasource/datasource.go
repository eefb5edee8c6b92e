// Package datasource reads aggregated time series from the metrics API.
package datasource

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/opscart/gke-vpa-recommender/pkg/models"
)

// MetricSource lists the aggregated time series of one metric for one namespace.
type MetricSource interface {
	ListTimeSeries(ctx context.Context, req Request) ([]TimeSeries, error)
	Name() string
}

// Request is everything needed to query one metric for one namespace.
type Request struct {
	ProjectID         string
	Namespace         string
	Query             models.MetricQuery
	Window            models.QueryWindow
	ExcludeContainers []string
}

// TimeSeries is one series as returned by projects.timeSeries.list.
type TimeSeries struct {
	Metric     Metric            `json:"metric"`
	Resource   MonitoredResource `json:"resource"`
	Metadata   Metadata          `json:"metadata"`
	MetricKind string            `json:"metricKind,omitempty"`
	ValueType  string            `json:"valueType,omitempty"`
	Points     []Point           `json:"points"`
}

type Metric struct {
	Type   string            `json:"type"`
	Labels map[string]string `json:"labels,omitempty"`
}

type MonitoredResource struct {
	Type   string            `json:"type"`
	Labels map[string]string `json:"labels,omitempty"`
}

// Metadata carries system labels, whose values may be strings, booleans or lists.
type Metadata struct {
	SystemLabels map[string]any `json:"systemLabels,omitempty"`
}

type Point struct {
	Interval Interval   `json:"interval"`
	Value    TypedValue `json:"value"`
}

type Interval struct {
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
}

type TypedValue struct {
	DoubleValue *float64 `json:"doubleValue,omitempty"`
	Int64Value  *Int64   `json:"int64Value,omitempty"`
}

// Int64 decodes both the string form the API uses for int64 values and a
// plain JSON number.
type Int64 int64

func (i *Int64) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid int64 value %s: %w", b, err)
	}
	*i = Int64(n)
	return nil
}

func (i Int64) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.FormatInt(int64(i), 10))
}

// Label resolves a label path against the series. System label values that
// are not strings are formatted with fmt.
func (ts TimeSeries) Label(p models.LabelPath) (string, bool) {
	switch p.Source {
	case models.LabelSourceResource:
		v, ok := ts.Resource.Labels[p.Key]
		return v, ok
	case models.LabelSourceMetric:
		v, ok := ts.Metric.Labels[p.Key]
		return v, ok
	case models.LabelSourceSystem:
		v, ok := ts.Metadata.SystemLabels[p.Key]
		if !ok || v == nil {
			return "", false
		}
		if s, isString := v.(string); isString {
			return s, true
		}
		return fmt.Sprint(v), true
	}
	return "", false
}

type listResponse struct {
	TimeSeries    []TimeSeries `json:"timeSeries"`
	NextPageToken string       `json:"nextPageToken"`
}
