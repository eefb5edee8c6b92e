package reporter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opscart/gke-vpa-recommender/pkg/models"
)

func sampleRecommendations() []models.Recommendation {
	base := models.Recommendation{
		RunDate:       time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC),
		StartDatetime: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		EndDatetime:   time.Date(2024, 5, 14, 0, 0, 0, 0, time.UTC),
		Dimensions: models.Dimensions{
			ProjectID: "proj", Location: "us-central1", Cluster: "prod",
			Namespace: "shop", ControllerName: "web", ControllerType: "Deployment", ContainerName: "app",
		},
		CPUUsageMCores:                250,
		CPURequestedMCores:            500,
		CPULimitMCores:                1000,
		MemoryUsageMaxMiB:             128,
		MemoryRequestedMiB:            256,
		MemoryLimitMiB:                512,
		CPURequestUtilization:         0.5,
		MemoryRequestUtilization:      0.5,
		CPURequestedRecommendation:    300,
		CPULimitRecommendation:        750,
		MemoryRequestedRecommendation: 192,
		MemoryLimitRecommendation:     192,
		Priority:                      3.25,
	}

	unsized := base
	unsized.ControllerName = "db"
	unsized.ControllerType = "StatefulSet"
	unsized.ContainerName = "postgres"
	unsized.CPURequestedMCores = 0
	unsized.CPURequestUtilization = 1
	unsized.Priority = 6.5

	return []models.Recommendation{base, unsized}
}

func fixedReporter(format ReportFormat) *Reporter {
	r := New(format)
	r.now = func() time.Time { return time.Date(2024, 5, 15, 8, 0, 0, 0, time.UTC) }
	return r
}

func TestParseFormat(t *testing.T) {
	for _, s := range []string{"table", "csv", "json", "html"} {
		f, err := ParseFormat(s)
		require.NoError(t, err)
		assert.Equal(t, ReportFormat(s), f)
	}
	_, err := ParseFormat("yaml")
	assert.Error(t, err)
}

func TestGenerateStats(t *testing.T) {
	report := fixedReporter(FormatTable).Generate(sampleRecommendations())

	assert.Equal(t, 2, report.ContainerCount)
	assert.Equal(t, 1, report.UnsizedCount)
	assert.Equal(t, "postgres", report.Recommendations[0].ContainerName, "highest priority first")

	require.Len(t, report.ControllerStats, 2)
	assert.Equal(t, "Deployment", report.ControllerStats[0].ControllerType)
	assert.Equal(t, "StatefulSet", report.ControllerStats[1].ControllerType)
	assert.Equal(t, 6.5, report.ControllerStats[1].MaxPriority)
}

func TestGenerateCSV(t *testing.T) {
	r := fixedReporter(FormatCSV)
	var buf bytes.Buffer
	require.NoError(t, r.Write(&buf, r.Generate(sampleRecommendations())))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, models.RecommendationColumns, records[0])

	row := records[2]
	assert.Equal(t, "2024-05-15", row[0])
	assert.Equal(t, "2024-05-01T00:00:00Z", row[1])
	assert.Equal(t, "Deployment", row[8])
	assert.Equal(t, "750", row[19])
	assert.Equal(t, "3.25", row[22])
}

func TestGenerateJSON(t *testing.T) {
	r := fixedReporter(FormatJSON)
	var buf bytes.Buffer
	require.NoError(t, r.Write(&buf, r.Generate(sampleRecommendations())))

	var out struct {
		ContainerCount  int              `json:"container_count"`
		Recommendations []map[string]any `json:"recommendations"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, 2, out.ContainerCount)
	require.Len(t, out.Recommendations, 2)
	assert.Equal(t, "2024-05-15", out.Recommendations[0]["run_date"])
	assert.Equal(t, "postgres", out.Recommendations[0]["container_name"])
	assert.Equal(t, 6.5, out.Recommendations[0]["priority"])
}

func TestGenerateTable(t *testing.T) {
	r := fixedReporter(FormatTable)
	var buf bytes.Buffer
	require.NoError(t, r.Write(&buf, r.Generate(sampleRecommendations())))

	out := buf.String()
	assert.Contains(t, out, "NAMESPACE")
	assert.Contains(t, out, "Deployment/web")
	assert.Contains(t, out, "300m")
	assert.Contains(t, out, "192Mi")
	assert.True(t, strings.HasSuffix(out, "2 containers, 1 without requests\n"))
}

func TestGenerateHTML(t *testing.T) {
	r := fixedReporter(FormatHTML)
	var buf bytes.Buffer
	require.NoError(t, r.Write(&buf, r.Generate(sampleRecommendations())))

	out := buf.String()
	assert.Contains(t, out, "<title>GKE VPA Recommendations - 2024-05-15</title>")
	assert.Contains(t, out, "StatefulSet/db")
	assert.Contains(t, out, `class="hot"`)
}

func TestQuantityFormatting(t *testing.T) {
	assert.Equal(t, "250m", millicores(250))
	assert.Equal(t, "2", millicores(2000))
	assert.Equal(t, "0", millicores(0))
	assert.Equal(t, "128Mi", mebibytes(128))
	assert.Equal(t, "1Gi", mebibytes(1024))
}
