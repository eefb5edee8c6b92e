package recommender

import (
	"math"
	"testing"
	"time"

	"github.com/opscart/gke-vpa-recommender/pkg/models"
)

var (
	testNow    = time.Date(2024, 5, 15, 22, 30, 0, 0, time.UTC)
	testWindow = models.Window{
		Start: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 5, 14, 0, 0, 0, 0, time.UTC),
	}
)

func ptr(v float64) *float64 { return &v }

func row(controllerType string) models.MergedRow {
	return models.MergedRow{
		Key: models.KeyOf(testWindow, models.Dimensions{
			ProjectID:      "proj",
			Location:       "us-central1",
			Cluster:        "prod",
			Namespace:      "shop",
			ControllerName: "web",
			ControllerType: controllerType,
			ContainerName:  "app",
		}),
		CPUUsageCores:          ptr(0.25),
		CPURequestCores:        ptr(0.5),
		CPULimitCores:          ptr(1),
		MemoryUsedBytes:        ptr(128 << 20),
		MemoryRequestBytes:     ptr(256 << 20),
		MemoryLimitBytes:       ptr(512 << 20),
		MemoryRecommendedBytes: ptr(192 << 20),
		CPURecommendedCores:    ptr(0.3),
	}
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestNew(t *testing.T) {
	c := New()
	if c == nil || c.now == nil {
		t.Fatal("New() returned calculator without clock")
	}
}

func TestDeploymentRecommendation(t *testing.T) {
	c := NewWithClock(func() time.Time { return testNow })
	r := row("Deployment")

	recs := c.Compute([]models.MergedRow{r}, testWindow)
	if len(recs) != 1 {
		t.Fatalf("Expected 1 recommendation, got %d", len(recs))
	}
	rec := recs[0]

	if !rec.RunDate.Equal(time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Expected run date 2024-05-15, got %v", rec.RunDate)
	}
	if !rec.StartDatetime.Equal(testWindow.Start) || !rec.EndDatetime.Equal(testWindow.End) {
		t.Errorf("Expected window %v, got %v - %v", testWindow, rec.StartDatetime, rec.EndDatetime)
	}
	if rec.Dimensions != r.Key.Dimensions {
		t.Errorf("Expected dimensions %v, got %v", r.Key.Dimensions, rec.Dimensions)
	}

	checks := []struct {
		name      string
		got, want float64
	}{
		{"cpu usage mcores", rec.CPUUsageMCores, 250},
		{"cpu requested mcores", rec.CPURequestedMCores, 500},
		{"cpu limit mcores", rec.CPULimitMCores, 1000},
		{"memory usage MiB", rec.MemoryUsageMaxMiB, 128},
		{"memory requested MiB", rec.MemoryRequestedMiB, 256},
		{"memory limit MiB", rec.MemoryLimitMiB, 512},
		{"cpu utilization", rec.CPURequestUtilization, 0.5},
		{"memory utilization", rec.MemoryRequestUtilization, 0.5},
		{"cpu request recommendation", rec.CPURequestedRecommendation, 300},
		{"cpu limit recommendation", rec.CPULimitRecommendation, 750},
		{"memory request recommendation", rec.MemoryRequestedRecommendation, 192},
		{"memory limit recommendation", rec.MemoryLimitRecommendation, 192},
		{"priority", rec.Priority, 0.5*7.5 - 0.5},
	}
	for _, tc := range checks {
		if !approx(tc.got, tc.want) {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, tc.got)
		}
	}
}

func TestNonDeploymentPassesObservedValuesThrough(t *testing.T) {
	c := NewWithClock(func() time.Time { return testNow })

	for _, kind := range []string{"StatefulSet", "DaemonSet", "Job", ""} {
		r := row(kind)
		rec := c.Compute([]models.MergedRow{r}, testWindow)[0]

		if rec.CPURequestedRecommendation != rec.CPURequestedMCores {
			t.Errorf("%s: cpu request recommendation %v != observed %v", kind, rec.CPURequestedRecommendation, rec.CPURequestedMCores)
		}
		if rec.CPULimitRecommendation != rec.CPULimitMCores {
			t.Errorf("%s: cpu limit recommendation %v != observed %v", kind, rec.CPULimitRecommendation, rec.CPULimitMCores)
		}
		if rec.MemoryRequestedRecommendation != rec.MemoryRequestedMiB {
			t.Errorf("%s: memory request recommendation %v != observed %v", kind, rec.MemoryRequestedRecommendation, rec.MemoryRequestedMiB)
		}
		if rec.MemoryLimitRecommendation != rec.MemoryLimitMiB {
			t.Errorf("%s: memory limit recommendation %v != observed %v", kind, rec.MemoryLimitRecommendation, rec.MemoryLimitMiB)
		}

		// Changing the autoscaler inputs must not affect the result.
		r.CPURecommendedCores = ptr(42)
		r.MemoryRecommendedBytes = nil
		again := c.Compute([]models.MergedRow{r}, testWindow)[0]
		if again != rec {
			t.Errorf("%s: recommendation depends on autoscaler metrics", kind)
		}
	}
}

func TestZeroUsageZeroRequest(t *testing.T) {
	c := NewWithClock(func() time.Time { return testNow })
	r := models.MergedRow{
		Key:                models.KeyOf(testWindow, models.Dimensions{ControllerType: "Deployment"}),
		CPUUsageCores:      ptr(0),
		CPURequestCores:    ptr(0),
		MemoryUsedBytes:    ptr(0),
		MemoryRequestBytes: ptr(0),
	}

	rec := c.Compute([]models.MergedRow{r}, testWindow)[0]

	if rec.CPURequestUtilization != 1.0 {
		t.Errorf("Expected cpu utilization 1.0, got %v", rec.CPURequestUtilization)
	}
	if rec.MemoryRequestUtilization != 1.0 {
		t.Errorf("Expected memory utilization 1.0, got %v", rec.MemoryRequestUtilization)
	}
	if rec.Priority != 6.5 {
		t.Errorf("Expected priority 6.5, got %v", rec.Priority)
	}
}

func TestMissingValuesCoercedToZero(t *testing.T) {
	c := NewWithClock(func() time.Time { return testNow })
	r := models.MergedRow{
		Key:                models.KeyOf(testWindow, models.Dimensions{ControllerType: "Deployment"}),
		CPUUsageCores:      ptr(0.2),
		CPURequestCores:    ptr(0.4),
		MemoryUsedBytes:    ptr(100),
		MemoryRequestBytes: ptr(math.NaN()),
	}

	rec := c.Compute([]models.MergedRow{r}, testWindow)[0]

	if rec.CPURequestUtilization != 0.5 {
		t.Errorf("Expected cpu utilization 0.5, got %v", rec.CPURequestUtilization)
	}
	if rec.MemoryRequestUtilization != 1.0 {
		t.Errorf("Expected sentinel memory utilization for NaN request, got %v", rec.MemoryRequestUtilization)
	}
	for name, v := range map[string]float64{
		"cpu request recommendation":    rec.CPURequestedRecommendation,
		"cpu limit recommendation":      rec.CPULimitRecommendation,
		"memory request recommendation": rec.MemoryRequestedRecommendation,
		"memory limit recommendation":   rec.MemoryLimitRecommendation,
		"cpu limit mcores":              rec.CPULimitMCores,
	} {
		if v != 0 {
			t.Errorf("%s: expected 0 without autoscaler data, got %v", name, v)
		}
	}
}

func TestUtilizationNeverInfinite(t *testing.T) {
	c := NewWithClock(func() time.Time { return testNow })
	rows := []models.MergedRow{
		{CPUUsageCores: ptr(3), MemoryUsedBytes: ptr(1 << 30)},
		{CPUUsageCores: ptr(math.Inf(1)), CPURequestCores: ptr(1)},
		{},
	}

	for i, rec := range c.Compute(rows, testWindow) {
		for _, v := range []float64{rec.CPURequestUtilization, rec.MemoryRequestUtilization, rec.Priority} {
			if math.IsInf(v, 0) || math.IsNaN(v) {
				t.Errorf("row %d: non-finite value %v", i, v)
			}
		}
		if rec.CPURequestedMCores == 0 && rec.CPURequestUtilization != 1.0 {
			t.Errorf("row %d: zero request must report utilization 1.0", i)
		}
	}
}

func TestRunDateIsProcessingDay(t *testing.T) {
	late := time.Date(2024, 5, 15, 23, 59, 59, 0, time.FixedZone("UTC-5", -5*3600))
	c := NewWithClock(func() time.Time { return late })

	rec := c.Compute([]models.MergedRow{row("Deployment")}, testWindow)[0]
	want := time.Date(2024, 5, 16, 0, 0, 0, 0, time.UTC)
	if !rec.RunDate.Equal(want) {
		t.Errorf("Expected run date %v, got %v", want, rec.RunDate)
	}
}

func TestComputeEmpty(t *testing.T) {
	if recs := New().Compute(nil, testWindow); len(recs) != 0 {
		t.Errorf("Expected no recommendations, got %d", len(recs))
	}
}
