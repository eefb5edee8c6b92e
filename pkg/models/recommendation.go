package models

import "time"

// Recommendation is one sizing row written to the sink. CPU values are in
// millicores and memory values in MiB.
type Recommendation struct {
	RunDate       time.Time
	StartDatetime time.Time
	EndDatetime   time.Time

	Dimensions

	CPUUsageMCores     float64
	CPURequestedMCores float64
	CPULimitMCores     float64

	MemoryUsageMaxMiB  float64
	MemoryRequestedMiB float64
	MemoryLimitMiB     float64

	CPURequestUtilization    float64
	MemoryRequestUtilization float64

	CPURequestedRecommendation    float64
	CPULimitRecommendation        float64
	MemoryRequestedRecommendation float64
	MemoryLimitRecommendation     float64

	Priority float64
}

// RecommendationColumns is the sink column set, in write order.
var RecommendationColumns = []string{
	"run_date",
	"start_datetime",
	"end_datetime",
	"project_id",
	"location",
	"cluster_name",
	"namespace_name",
	"controller_name",
	"controller_type",
	"container_name",
	"cpu_mcore_usage",
	"cpu_requested_mcores",
	"cpu_limit_mcores",
	"memory_mib_usage_max",
	"memory_requested_mib",
	"memory_limit_mib",
	"cpu_request_utilization",
	"memory_request_utilization",
	"cpu_requested_recommendation",
	"cpu_limit_recommendation",
	"memory_requested_recommendation",
	"memory_limit_recommendation",
	"priority",
}

// Values returns the row in RecommendationColumns order.
func (r *Recommendation) Values() []any {
	return []any{
		r.RunDate,
		r.StartDatetime,
		r.EndDatetime,
		r.ProjectID,
		r.Location,
		r.Cluster,
		r.Namespace,
		r.ControllerName,
		r.ControllerType,
		r.ContainerName,
		r.CPUUsageMCores,
		r.CPURequestedMCores,
		r.CPULimitMCores,
		r.MemoryUsageMaxMiB,
		r.MemoryRequestedMiB,
		r.MemoryLimitMiB,
		r.CPURequestUtilization,
		r.MemoryRequestUtilization,
		r.CPURequestedRecommendation,
		r.CPULimitRecommendation,
		r.MemoryRequestedRecommendation,
		r.MemoryLimitRecommendation,
		r.Priority,
	}
}

// ScanTargets returns pointers in RecommendationColumns order.
func (r *Recommendation) ScanTargets() []any {
	return []any{
		&r.RunDate,
		&r.StartDatetime,
		&r.EndDatetime,
		&r.ProjectID,
		&r.Location,
		&r.Cluster,
		&r.Namespace,
		&r.ControllerName,
		&r.ControllerType,
		&r.ContainerName,
		&r.CPUUsageMCores,
		&r.CPURequestedMCores,
		&r.CPULimitMCores,
		&r.MemoryUsageMaxMiB,
		&r.MemoryRequestedMiB,
		&r.MemoryLimitMiB,
		&r.CPURequestUtilization,
		&r.MemoryRequestUtilization,
		&r.CPURequestedRecommendation,
		&r.CPULimitRecommendation,
		&r.MemoryRequestedRecommendation,
		&r.MemoryLimitRecommendation,
		&r.Priority,
	}
}
