// Package reporter renders recommendation rows for humans and other tools.
package reporter

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/opscart/gke-vpa-recommender/pkg/models"
	"github.com/opscart/gke-vpa-recommender/pkg/recommender"
)

// ReportFormat represents the output format
type ReportFormat string

const (
	FormatTable ReportFormat = "table"
	FormatCSV   ReportFormat = "csv"
	FormatJSON  ReportFormat = "json"
	FormatHTML  ReportFormat = "html"
)

// ParseFormat validates an --output value.
func ParseFormat(s string) (ReportFormat, error) {
	switch f := ReportFormat(s); f {
	case FormatTable, FormatCSV, FormatJSON, FormatHTML:
		return f, nil
	}
	return "", fmt.Errorf("unknown output format %q (want table, csv, json or html)", s)
}

// Report contains all data for generating reports
type Report struct {
	GeneratedAt     time.Time
	Recommendations []models.Recommendation
	ContainerCount  int
	// UnsizedCount counts containers without a CPU or memory request.
	UnsizedCount    int
	ControllerStats []*ControllerStats
}

// ControllerStats holds statistics per controller type
type ControllerStats struct {
	ControllerType       string  `json:"controller_type"`
	Containers           int     `json:"containers"`
	AvgCPUUtilization    float64 `json:"avg_cpu_request_utilization"`
	AvgMemoryUtilization float64 `json:"avg_memory_request_utilization"`
	MaxPriority          float64 `json:"max_priority"`
}

// Reporter generates recommendation reports
type Reporter struct {
	format ReportFormat
	now    func() time.Time
}

// New creates a new reporter
func New(format ReportFormat) *Reporter {
	return &Reporter{format: format, now: time.Now}
}

// Generate builds a report with recommendations ordered by descending priority.
func (r *Reporter) Generate(recs []models.Recommendation) *Report {
	sorted := append([]models.Recommendation(nil), recs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority > sorted[j].Priority })

	report := &Report{
		GeneratedAt:     r.now(),
		Recommendations: sorted,
	}
	r.calculateStats(report)
	return report
}

// calculateStats computes all statistics for the report
func (r *Reporter) calculateStats(report *Report) {
	byType := make(map[string]*ControllerStats)

	for _, rec := range report.Recommendations {
		report.ContainerCount++
		if rec.CPURequestedMCores == 0 || rec.MemoryRequestedMiB == 0 {
			report.UnsizedCount++
		}

		kind := rec.ControllerType
		if kind == "" {
			kind = "unknown"
		}
		stat, ok := byType[kind]
		if !ok {
			stat = &ControllerStats{ControllerType: kind, MaxPriority: rec.Priority}
			byType[kind] = stat
		}
		stat.Containers++
		stat.AvgCPUUtilization += rec.CPURequestUtilization
		stat.AvgMemoryUtilization += rec.MemoryRequestUtilization
		if rec.Priority > stat.MaxPriority {
			stat.MaxPriority = rec.Priority
		}
	}

	for _, stat := range byType {
		stat.AvgCPUUtilization /= float64(stat.Containers)
		stat.AvgMemoryUtilization /= float64(stat.Containers)
		report.ControllerStats = append(report.ControllerStats, stat)
	}
	sort.Slice(report.ControllerStats, func(i, j int) bool {
		a, b := report.ControllerStats[i], report.ControllerStats[j]
		if a.ControllerType == recommender.DeploymentController {
			return b.ControllerType != recommender.DeploymentController
		}
		if b.ControllerType == recommender.DeploymentController {
			return false
		}
		return a.ControllerType < b.ControllerType
	})
}

// Write renders report in the reporter's format.
func (r *Reporter) Write(w io.Writer, report *Report) error {
	switch r.format {
	case FormatCSV:
		return GenerateCSV(report, w)
	case FormatJSON:
		return GenerateJSON(report, w)
	case FormatHTML:
		return GenerateHTML(report, w)
	default:
		return GenerateTable(report, w)
	}
}
