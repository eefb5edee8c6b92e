package normalizer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opscart/gke-vpa-recommender/pkg/datasource"
	apperrors "github.com/opscart/gke-vpa-recommender/pkg/errors"
	"github.com/opscart/gke-vpa-recommender/pkg/models"
)

var (
	windowStart = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	windowEnd   = time.Date(2024, 5, 14, 0, 0, 0, 0, time.UTC)
)

func usageQuery() models.MetricQuery {
	return models.MetricQuery{
		Name:            "memory_usage",
		Column:          models.ColumnMemoryUsedBytes,
		ValueType:       models.ValueTypeInt64,
		ContainerLabel:  models.LabelPath{Source: models.LabelSourceResource, Key: "container_name"},
		ControllerLabel: models.LabelPath{Source: models.LabelSourceSystem, Key: "top_level_controller_name"},
		ControllerKind:  models.LabelPath{Source: models.LabelSourceSystem, Key: "top_level_controller_type"},
	}
}

func scaleQuery() models.MetricQuery {
	return models.MetricQuery{
		Name:            "vpa_cpu_recommendation",
		Column:          models.ColumnCPURecommendedCores,
		ValueType:       models.ValueTypeDouble,
		ContainerLabel:  models.LabelPath{Source: models.LabelSourceMetric, Key: "container_name"},
		ControllerLabel: models.LabelPath{Source: models.LabelSourceResource, Key: "controller_name"},
		ControllerKind:  models.LabelPath{Source: models.LabelSourceResource, Key: "controller_kind"},
	}
}

func int64Ptr(v int64) *datasource.Int64 {
	i := datasource.Int64(v)
	return &i
}

func float64Ptr(v float64) *float64 { return &v }

func point(v datasource.TypedValue) datasource.Point {
	return datasource.Point{
		Interval: datasource.Interval{StartTime: windowStart, EndTime: windowEnd},
		Value:    v,
	}
}

func usageSeries(container string, bytes int64) datasource.TimeSeries {
	return datasource.TimeSeries{
		Resource: datasource.MonitoredResource{
			Type: "k8s_container",
			Labels: map[string]string{
				"project_id":     "proj",
				"location":       "us-central1",
				"cluster_name":   "prod",
				"namespace_name": "shop",
				"container_name": container,
			},
		},
		Metadata: datasource.Metadata{SystemLabels: map[string]any{
			"top_level_controller_name": "web",
			"top_level_controller_type": "Deployment",
		}},
		Points: []datasource.Point{point(datasource.TypedValue{Int64Value: int64Ptr(bytes)})},
	}
}

func TestNormalizeUsageSeries(t *testing.T) {
	table, err := Normalize([]datasource.TimeSeries{
		usageSeries("app", 256<<20),
		usageSeries("sidecar", 64<<20),
	}, usageQuery(), "shop")
	require.NoError(t, err)

	assert.Equal(t, models.ColumnMemoryUsedBytes, table.Column)
	require.Len(t, table.Rows, 2)

	row := table.Rows[0]
	assert.Equal(t, float64(256<<20), row.Value)
	assert.Equal(t, models.ColumnMemoryUsedBytes, row.Column)
	assert.Equal(t, models.Dimensions{
		ProjectID:      "proj",
		Location:       "us-central1",
		Cluster:        "prod",
		Namespace:      "shop",
		ControllerName: "web",
		ControllerType: "Deployment",
		ContainerName:  "app",
	}, row.Key.Dimensions)
	assert.Equal(t, models.Window{Start: windowStart, End: windowEnd}, row.Key.Window())
}

func TestNormalizeScaleSeriesUsesMetricLabels(t *testing.T) {
	series := datasource.TimeSeries{
		Metric: datasource.Metric{Labels: map[string]string{"container_name": "app"}},
		Resource: datasource.MonitoredResource{Labels: map[string]string{
			"project_id":      "proj",
			"location":        "us-central1",
			"cluster_name":    "prod",
			"controller_name": "web",
			"controller_kind": "Deployment",
		}},
		Points: []datasource.Point{point(datasource.TypedValue{DoubleValue: float64Ptr(0.25)})},
	}

	table, err := Normalize([]datasource.TimeSeries{series}, scaleQuery(), "shop")
	require.NoError(t, err)
	require.Len(t, table.Rows, 1)

	d := table.Rows[0].Key.Dimensions
	assert.Equal(t, "app", d.ContainerName)
	assert.Equal(t, "web", d.ControllerName)
	assert.Equal(t, "Deployment", d.ControllerType)
	assert.Equal(t, "shop", d.Namespace, "falls back to the requested namespace")
	assert.Equal(t, 0.25, table.Rows[0].Value)
}

func TestNormalizeScaleAndUsageShareKey(t *testing.T) {
	usage, err := Normalize([]datasource.TimeSeries{usageSeries("app", 1)}, usageQuery(), "shop")
	require.NoError(t, err)

	scale := datasource.TimeSeries{
		Metric: datasource.Metric{Labels: map[string]string{"container_name": "app"}},
		Resource: datasource.MonitoredResource{Labels: map[string]string{
			"project_id": "proj", "location": "us-central1", "cluster_name": "prod",
			"namespace_name": "shop", "controller_name": "web", "controller_kind": "Deployment",
		}},
		Points: []datasource.Point{point(datasource.TypedValue{DoubleValue: float64Ptr(0.5)})},
	}
	rec, err := Normalize([]datasource.TimeSeries{scale}, scaleQuery(), "shop")
	require.NoError(t, err)

	assert.Equal(t, usage.Rows[0].Key, rec.Rows[0].Key)
}

func TestNormalizeEmpty(t *testing.T) {
	table, err := Normalize(nil, usageQuery(), "shop")
	require.NoError(t, err)
	assert.Empty(t, table.Rows)
	assert.Equal(t, models.ColumnMemoryUsedBytes, table.Column)
}

func TestNormalizeRejectsDuplicates(t *testing.T) {
	_, err := Normalize([]datasource.TimeSeries{
		usageSeries("app", 1),
		usageSeries("app", 2),
	}, usageQuery(), "shop")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeData))
}

func TestFlattenMissingValue(t *testing.T) {
	s := usageSeries("app", 1)
	s.Points[0].Value = datasource.TypedValue{}

	_, err := Flatten([]datasource.TimeSeries{s}, usageQuery(), "shop")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeData))
}

func TestFlattenMissingEndTime(t *testing.T) {
	s := usageSeries("app", 1)
	s.Points[0].Interval = datasource.Interval{}

	_, err := Flatten([]datasource.TimeSeries{s}, usageQuery(), "shop")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeData))
}

func TestFlattenGaugePointWithoutStart(t *testing.T) {
	s := usageSeries("app", 1)
	s.Points[0].Interval.StartTime = time.Time{}

	points, err := Flatten([]datasource.TimeSeries{s}, usageQuery(), "shop")
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, windowEnd, points[0].Window.Start)
}

func TestFlattenValueTypeFallback(t *testing.T) {
	s := usageSeries("app", 0)
	s.Points[0].Value = datasource.TypedValue{DoubleValue: float64Ptr(1.5)}

	points, err := Flatten([]datasource.TimeSeries{s}, usageQuery(), "shop")
	require.NoError(t, err)
	assert.Equal(t, 1.5, points[0].Value.Float64())
}

func TestToRowsDistinctWindowsAreNotDuplicates(t *testing.T) {
	d := models.Dimensions{Namespace: "shop", ContainerName: "app"}
	points := []models.TimeSeriesPoint{
		{Window: models.Window{Start: windowStart, End: windowEnd}, Dimensions: d, Value: models.Value{Type: models.ValueTypeDouble, Double: 1}},
		{Window: models.Window{Start: windowEnd, End: windowEnd.Add(24 * time.Hour)}, Dimensions: d, Value: models.Value{Type: models.ValueTypeDouble, Double: 2}},
	}

	rows, err := ToRows(points, models.ColumnCPUUsageCores)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}
