package config

import (
	"fmt"

	apperrors "github.com/opscart/gke-vpa-recommender/pkg/errors"
	"github.com/opscart/gke-vpa-recommender/pkg/models"
)

// QuerySpec is the declarative, uncompiled form of a metric query as it
// appears in configuration.
type QuerySpec struct {
	Name                string   `mapstructure:"name" json:"name"`
	Metric              string   `mapstructure:"metric" json:"metric"`
	OutputColumn        string   `mapstructure:"output_column" json:"output_column"`
	ResourceType        string   `mapstructure:"resource_type" json:"resource_type"`
	PerSeriesAligner    string   `mapstructure:"per_series_aligner" json:"per_series_aligner"`
	CrossSeriesReducer  string   `mapstructure:"cross_series_reducer" json:"cross_series_reducer"`
	ValueType           string   `mapstructure:"value_type" json:"value_type"`
	ContainerLabel      string   `mapstructure:"container_label" json:"container_label"`
	ControllerNameLabel string   `mapstructure:"controller_name_label" json:"controller_name_label"`
	ControllerTypeLabel string   `mapstructure:"controller_type_label" json:"controller_type_label"`
	GroupByFields       []string `mapstructure:"group_by_fields" json:"group_by_fields"`
}

var containerGroupBy = []string{
	`resource.label."location"`,
	`resource.label."project_id"`,
	`resource.label."cluster_name"`,
	`resource.label."controller_name"`,
	`resource.label."namespace_name"`,
	`resource.label."container_name"`,
	`metadata.system_labels."top_level_controller_name"`,
	`metadata.system_labels."top_level_controller_type"`,
}

var scaleGroupBy = []string{
	`resource.label."location"`,
	`resource.label."project_id"`,
	`resource.label."cluster_name"`,
	`resource.label."namespace_name"`,
	`metric.label."container_name"`,
	`resource.label."controller_kind"`,
	`resource.label."controller_name"`,
}

func containerQuery(name, metric string, column models.Column, aligner, reducer, valueType string) QuerySpec {
	return QuerySpec{
		Name:                name,
		Metric:              metric,
		OutputColumn:        string(column),
		ResourceType:        "k8s_container",
		PerSeriesAligner:    aligner,
		CrossSeriesReducer:  reducer,
		ValueType:           valueType,
		ContainerLabel:      "resource.labels.container_name",
		ControllerNameLabel: "metadata.systemLabels.top_level_controller_name",
		ControllerTypeLabel: "metadata.systemLabels.top_level_controller_type",
		GroupByFields:       append([]string(nil), containerGroupBy...),
	}
}

func scaleQuery(name, metric string, column models.Column, aligner, reducer, valueType string) QuerySpec {
	return QuerySpec{
		Name:                name,
		Metric:              metric,
		OutputColumn:        string(column),
		ResourceType:        "k8s_scale",
		PerSeriesAligner:    aligner,
		CrossSeriesReducer:  reducer,
		ValueType:           valueType,
		ContainerLabel:      "metric.labels.container_name",
		ControllerNameLabel: "resource.labels.controller_name",
		ControllerTypeLabel: "resource.labels.controller_kind",
		GroupByFields:       append([]string(nil), scaleGroupBy...),
	}
}

// DefaultQuerySpecs returns the built-in catalog: container usage, requests
// and limits, plus the two autoscaler per-replica recommendations.
func DefaultQuerySpecs() []QuerySpec {
	return []QuerySpec{
		containerQuery("cpu_usage", "kubernetes.io/container/cpu/core_usage_time",
			models.ColumnCPUUsageCores, "ALIGN_RATE", "REDUCE_PERCENTILE_95", "value.doubleValue"),
		containerQuery("cpu_requested_cores", "kubernetes.io/container/cpu/request_cores",
			models.ColumnCPURequestCores, "ALIGN_MEAN", "REDUCE_MEAN", "value.doubleValue"),
		containerQuery("cpu_limit_cores", "kubernetes.io/container/cpu/limit_cores",
			models.ColumnCPULimitCores, "ALIGN_MEAN", "REDUCE_MEAN", "value.doubleValue"),
		containerQuery("memory_usage", "kubernetes.io/container/memory/used_bytes",
			models.ColumnMemoryUsedBytes, "ALIGN_MAX", "REDUCE_MAX", "value.int64Value"),
		containerQuery("memory_requested_bytes", "kubernetes.io/container/memory/request_bytes",
			models.ColumnMemoryRequestBytes, "ALIGN_MEAN", "REDUCE_MEAN", "value.doubleValue"),
		containerQuery("memory_limit_bytes", "kubernetes.io/container/memory/limit_bytes",
			models.ColumnMemoryLimitBytes, "ALIGN_MEAN", "REDUCE_MEAN", "value.doubleValue"),
		scaleQuery("vpa_memory_recommendation",
			"kubernetes.io/autoscaler/container/memory/per_replica_recommended_request_bytes",
			models.ColumnMemoryRecommendedBytes, "ALIGN_MAX", "REDUCE_MAX", "value.int64Value"),
		scaleQuery("vpa_cpu_recommendation",
			"kubernetes.io/autoscaler/container/cpu/per_replica_recommended_request_cores",
			models.ColumnCPURecommendedCores, "ALIGN_MEAN", "REDUCE_PERCENTILE_95", "value.doubleValue"),
	}
}

// Catalog is the immutable set of compiled metric queries.
type Catalog struct {
	queries []models.MetricQuery
}

// Queries returns a copy of the compiled queries.
func (c *Catalog) Queries() []models.MetricQuery {
	return append([]models.MetricQuery(nil), c.queries...)
}

// Len returns the number of queries.
func (c *Catalog) Len() int {
	return len(c.queries)
}

// CompileQueries parses label paths and value types once and checks that
// every query writes to a distinct known column.
func CompileQueries(specs []QuerySpec) (*Catalog, error) {
	if len(specs) == 0 {
		return nil, apperrors.New(apperrors.ErrCodeConfig, "no metric queries configured")
	}

	seenColumns := make(map[models.Column]string, len(specs))
	seenNames := make(map[string]bool, len(specs))
	out := make([]models.MetricQuery, 0, len(specs))

	for i, s := range specs {
		q, err := compile(s)
		if err != nil {
			return nil, apperrors.WrapWithContext(apperrors.ErrCodeConfig,
				fmt.Sprintf("invalid query #%d %q", i, s.Name), err,
				map[string]any{"query": s.Name})
		}
		if seenNames[q.Name] {
			return nil, apperrors.New(apperrors.ErrCodeConfig, fmt.Sprintf("duplicate query name %q", q.Name))
		}
		if other, ok := seenColumns[q.Column]; ok {
			return nil, apperrors.New(apperrors.ErrCodeConfig,
				fmt.Sprintf("queries %q and %q both write column %q", other, q.Name, q.Column))
		}
		seenNames[q.Name] = true
		seenColumns[q.Column] = q.Name
		out = append(out, q)
	}

	return &Catalog{queries: out}, nil
}

func compile(s QuerySpec) (models.MetricQuery, error) {
	if s.Name == "" || s.Metric == "" || s.ResourceType == "" {
		return models.MetricQuery{}, fmt.Errorf("name, metric and resource_type are required")
	}
	if s.PerSeriesAligner == "" || s.CrossSeriesReducer == "" {
		return models.MetricQuery{}, fmt.Errorf("per_series_aligner and cross_series_reducer are required")
	}
	column, err := models.ParseColumn(s.OutputColumn)
	if err != nil {
		return models.MetricQuery{}, err
	}
	valueType, err := models.ParseValueType(s.ValueType)
	if err != nil {
		return models.MetricQuery{}, err
	}
	container, err := models.ParseLabelPath(s.ContainerLabel)
	if err != nil {
		return models.MetricQuery{}, fmt.Errorf("container_label: %w", err)
	}
	controller, err := models.ParseLabelPath(s.ControllerNameLabel)
	if err != nil {
		return models.MetricQuery{}, fmt.Errorf("controller_name_label: %w", err)
	}
	kind, err := models.ParseLabelPath(s.ControllerTypeLabel)
	if err != nil {
		return models.MetricQuery{}, fmt.Errorf("controller_type_label: %w", err)
	}

	return models.NewMetricQuery(models.MetricQuery{
		Name:               s.Name,
		Metric:             s.Metric,
		Column:             column,
		ResourceType:       s.ResourceType,
		PerSeriesAligner:   s.PerSeriesAligner,
		CrossSeriesReducer: s.CrossSeriesReducer,
		ValueType:          valueType,
		ContainerLabel:     container,
		ControllerLabel:    controller,
		ControllerKind:     kind,
	}, s.GroupByFields), nil
}
