// Package recommender turns merged metric rows into sizing recommendations.
package recommender

import (
	"math"
	"time"

	"github.com/opscart/gke-vpa-recommender/pkg/models"
)

const (
	// DeploymentController is the only controller type whose recommendations
	// come from the autoscaler; all others pass observed values through.
	DeploymentController = "Deployment"

	// CPULimitFactor scales the recommended CPU request into a CPU limit.
	CPULimitFactor = 2.5

	// PriorityCPUWeight weighs CPU utilization against memory utilization.
	PriorityCPUWeight = 7.5

	// ZeroRequestUtilization is reported when nothing is requested, so that
	// unsized containers rank as fully utilized.
	ZeroRequestUtilization = 1.0

	millicoresPerCore = 1000.0
	bytesPerMiB       = 1 << 20
)

// Calculator computes recommendations. run_date is stamped from its clock.
type Calculator struct {
	now func() time.Time
}

func New() *Calculator {
	return &Calculator{now: time.Now}
}

// NewWithClock uses now instead of the wall clock to stamp run_date.
func NewWithClock(now func() time.Time) *Calculator {
	return &Calculator{now: now}
}

// Compute returns one recommendation per merged row. window is written as
// the start and end of every row.
func (c *Calculator) Compute(rows []models.MergedRow, window models.Window) []models.Recommendation {
	runDate := models.RunDate(c.now())

	out := make([]models.Recommendation, 0, len(rows))
	for i := range rows {
		out = append(out, c.Recommend(&rows[i], runDate, window))
	}
	return out
}

// Recommend computes the recommendation for a single row.
func (c *Calculator) Recommend(row *models.MergedRow, runDate time.Time, window models.Window) models.Recommendation {
	cpuUsage := value(row.CPUUsageCores)
	cpuRequest := value(row.CPURequestCores)
	cpuLimit := value(row.CPULimitCores)
	memUsed := value(row.MemoryUsedBytes)
	memRequest := value(row.MemoryRequestBytes)
	memLimit := value(row.MemoryLimitBytes)
	vpaMemory := value(row.MemoryRecommendedBytes)
	vpaCPU := value(row.CPURecommendedCores)

	rec := models.Recommendation{
		RunDate:       runDate,
		StartDatetime: window.Start,
		EndDatetime:   window.End,
		Dimensions:    row.Key.Dimensions,

		CPUUsageMCores:     cpuUsage * millicoresPerCore,
		CPURequestedMCores: cpuRequest * millicoresPerCore,
		CPULimitMCores:     cpuLimit * millicoresPerCore,

		MemoryUsageMaxMiB:  memUsed / bytesPerMiB,
		MemoryRequestedMiB: memRequest / bytesPerMiB,
		MemoryLimitMiB:     memLimit / bytesPerMiB,
	}

	rec.CPURequestUtilization = utilization(rec.CPUUsageMCores, rec.CPURequestedMCores)
	rec.MemoryRequestUtilization = utilization(memUsed, memRequest)

	if rec.ControllerType == DeploymentController {
		rec.CPURequestedRecommendation = vpaCPU * millicoresPerCore
		rec.CPULimitRecommendation = rec.CPURequestedRecommendation * CPULimitFactor
		// Request and limit collapse to the same autoscaler value.
		rec.MemoryRequestedRecommendation = vpaMemory / bytesPerMiB
		rec.MemoryLimitRecommendation = rec.MemoryRequestedRecommendation
	} else {
		rec.CPURequestedRecommendation = rec.CPURequestedMCores
		rec.CPULimitRecommendation = rec.CPULimitMCores
		rec.MemoryRequestedRecommendation = rec.MemoryRequestedMiB
		rec.MemoryLimitRecommendation = rec.MemoryLimitMiB
	}

	rec.Priority = Priority(rec.CPURequestUtilization, rec.MemoryRequestUtilization)
	return rec
}

// Priority ranks rows for triage; higher means more CPU-constrained relative
// to memory.
func Priority(cpuUtilization, memoryUtilization float64) float64 {
	return cpuUtilization*PriorityCPUWeight - memoryUtilization
}

func utilization(usage, request float64) float64 {
	if request == 0 {
		return ZeroRequestUtilization
	}
	return usage / request
}

// value coerces absent and non-finite values to zero.
func value(p *float64) float64 {
	if p == nil || math.IsNaN(*p) || math.IsInf(*p, 0) {
		return 0
	}
	return *p
}
