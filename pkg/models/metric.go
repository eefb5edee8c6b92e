package models

import (
	"fmt"
	"strings"
)

// Column names a metric value column in the merged table.
type Column string

const (
	ColumnCPUUsageCores          Column = "cpu_core_usage_time"
	ColumnCPURequestCores        Column = "cpu_request_cores"
	ColumnCPULimitCores          Column = "cpu_limit_cores"
	ColumnMemoryUsedBytes        Column = "memory_used_bytes"
	ColumnMemoryRequestBytes     Column = "memory_request_bytes"
	ColumnMemoryLimitBytes       Column = "memory_limit_bytes"
	ColumnMemoryRecommendedBytes Column = "memory_per_replica_recommended_request_bytes"
	ColumnCPURecommendedCores    Column = "cpu_per_replica_recommended_request_cores"
)

// Columns lists every column a MetricQuery may write to.
var Columns = []Column{
	ColumnCPUUsageCores,
	ColumnCPURequestCores,
	ColumnCPULimitCores,
	ColumnMemoryUsedBytes,
	ColumnMemoryRequestBytes,
	ColumnMemoryLimitBytes,
	ColumnMemoryRecommendedBytes,
	ColumnCPURecommendedCores,
}

// ParseColumn validates a configured output column name.
func ParseColumn(s string) (Column, error) {
	for _, c := range Columns {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown output column %q", s)
}

// LabelSource is the section of a time series a label is read from.
type LabelSource int

const (
	LabelSourceResource LabelSource = iota + 1
	LabelSourceMetric
	LabelSourceSystem
)

func (s LabelSource) String() string {
	switch s {
	case LabelSourceResource:
		return "resource.labels"
	case LabelSourceMetric:
		return "metric.labels"
	case LabelSourceSystem:
		return "metadata.systemLabels"
	default:
		return "unknown"
	}
}

// LabelPath locates a dimension label inside a time series.
type LabelPath struct {
	Source LabelSource
	Key    string
}

func (p LabelPath) String() string {
	return p.Source.String() + "." + p.Key
}

// ParseLabelPath parses paths such as "resource.labels.container_name",
// "metric.labels.container_name" or "metadata.systemLabels.top_level_controller_name".
func ParseLabelPath(s string) (LabelPath, error) {
	for _, src := range []LabelSource{LabelSourceResource, LabelSourceMetric, LabelSourceSystem} {
		prefix := src.String() + "."
		if key, ok := strings.CutPrefix(s, prefix); ok {
			if key == "" || strings.Contains(key, ".") {
				return LabelPath{}, fmt.Errorf("invalid label key in path %q", s)
			}
			return LabelPath{Source: src, Key: key}, nil
		}
	}
	return LabelPath{}, fmt.Errorf("unsupported label path %q", s)
}

// ValueType selects which typed field of a point value carries the metric.
type ValueType int

const (
	ValueTypeDouble ValueType = iota + 1
	ValueTypeInt64
)

func (v ValueType) String() string {
	switch v {
	case ValueTypeDouble:
		return "value.doubleValue"
	case ValueTypeInt64:
		return "value.int64Value"
	default:
		return "unknown"
	}
}

// ParseValueType accepts "value.doubleValue"/"doubleValue" and the int64 equivalents.
func ParseValueType(s string) (ValueType, error) {
	switch strings.TrimPrefix(s, "value.") {
	case "doubleValue":
		return ValueTypeDouble, nil
	case "int64Value":
		return ValueTypeInt64, nil
	}
	return 0, fmt.Errorf("unsupported value type %q", s)
}

// MetricQuery is one compiled metric fetched per namespace. Values are
// produced once by config.CompileQueries and never mutated afterwards.
type MetricQuery struct {
	Name               string
	Metric             string
	Column             Column
	ResourceType       string
	PerSeriesAligner   string
	CrossSeriesReducer string
	ValueType          ValueType
	ContainerLabel     LabelPath
	ControllerLabel    LabelPath
	ControllerKind     LabelPath

	groupBy []string
}

// NewMetricQuery copies groupBy so the caller cannot mutate the query later.
func NewMetricQuery(q MetricQuery, groupBy []string) MetricQuery {
	q.groupBy = append([]string(nil), groupBy...)
	return q
}

// GroupByFields returns a copy of the group-by fields sent to the API.
func (q MetricQuery) GroupByFields() []string {
	return append([]string(nil), q.groupBy...)
}

// Value is a typed scalar read from a point.
type Value struct {
	Type   ValueType
	Double float64
	Int64  int64
}

// Float64 returns the value as a float regardless of its type.
func (v Value) Float64() float64 {
	if v.Type == ValueTypeInt64 {
		return float64(v.Int64)
	}
	return v.Double
}

// TimeSeriesPoint is a single flattened point with its dimension tuple.
type TimeSeriesPoint struct {
	Window     Window
	Dimensions Dimensions
	Value      Value
}

// NormalizedRow is one metric value keyed by window and dimensions.
type NormalizedRow struct {
	Key    Key
	Column Column
	Value  float64
}

// Table is the normalized output of one metric for one namespace.
type Table struct {
	Column Column
	Rows   []NormalizedRow
}

// MergedRow is the outer join of every metric table on Key. A nil field
// means the metric had no row for this key.
type MergedRow struct {
	Key Key

	CPUUsageCores          *float64
	CPURequestCores        *float64
	CPULimitCores          *float64
	MemoryUsedBytes        *float64
	MemoryRequestBytes     *float64
	MemoryLimitBytes       *float64
	MemoryRecommendedBytes *float64
	CPURecommendedCores    *float64
}

// Set stores v in the field backing column c.
func (r *MergedRow) Set(c Column, v float64) error {
	p := r.field(c)
	if p == nil {
		return fmt.Errorf("unknown column %q", c)
	}
	*p = &v
	return nil
}

// Get returns the value for column c, or nil when absent.
func (r *MergedRow) Get(c Column) *float64 {
	if p := r.field(c); p != nil {
		return *p
	}
	return nil
}

func (r *MergedRow) field(c Column) **float64 {
	switch c {
	case ColumnCPUUsageCores:
		return &r.CPUUsageCores
	case ColumnCPURequestCores:
		return &r.CPURequestCores
	case ColumnCPULimitCores:
		return &r.CPULimitCores
	case ColumnMemoryUsedBytes:
		return &r.MemoryUsedBytes
	case ColumnMemoryRequestBytes:
		return &r.MemoryRequestBytes
	case ColumnMemoryLimitBytes:
		return &r.MemoryLimitBytes
	case ColumnMemoryRecommendedBytes:
		return &r.MemoryRecommendedBytes
	case ColumnCPURecommendedCores:
		return &r.CPURecommendedCores
	}
	return nil
}
