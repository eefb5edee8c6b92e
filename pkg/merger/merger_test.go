package merger

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/opscart/gke-vpa-recommender/pkg/errors"
	"github.com/opscart/gke-vpa-recommender/pkg/models"
)

var testWindow = models.Window{
	Start: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	End:   time.Date(2024, 5, 14, 0, 0, 0, 0, time.UTC),
}

func key(container string) models.Key {
	return models.KeyOf(testWindow, models.Dimensions{
		ProjectID:      "proj",
		Namespace:      "shop",
		ControllerName: "web",
		ControllerType: "Deployment",
		ContainerName:  container,
	})
}

func table(c models.Column, values map[string]float64) models.Table {
	t := models.Table{Column: c}
	for container, v := range values {
		t.Rows = append(t.Rows, models.NormalizedRow{Key: key(container), Column: c, Value: v})
	}
	return t
}

func TestMergeOuterJoin(t *testing.T) {
	rows, err := Merge(
		table(models.ColumnCPUUsageCores, map[string]float64{"app": 0.5, "db": 0.2}),
		table(models.ColumnCPURequestCores, map[string]float64{"app": 1}),
		table(models.ColumnMemoryUsedBytes, map[string]float64{"cache": 1024}),
		models.Table{Column: models.ColumnCPURecommendedCores},
	)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "app", rows[0].Key.ContainerName)
	assert.Equal(t, 0.5, *rows[0].CPUUsageCores)
	assert.Equal(t, 1.0, *rows[0].CPURequestCores)
	assert.Nil(t, rows[0].MemoryUsedBytes)
	assert.Nil(t, rows[0].CPURecommendedCores)

	assert.Equal(t, "cache", rows[1].Key.ContainerName)
	assert.Nil(t, rows[1].CPUUsageCores)
	assert.Equal(t, 1024.0, *rows[1].MemoryUsedBytes)

	assert.Equal(t, "db", rows[2].Key.ContainerName)
	assert.Nil(t, rows[2].CPURequestCores)
}

func TestMergeDifferentWindowsStayApart(t *testing.T) {
	later := models.Window{Start: testWindow.End, End: testWindow.End.Add(24 * time.Hour)}
	a := table(models.ColumnCPUUsageCores, map[string]float64{"app": 1})
	b := models.Table{Column: models.ColumnCPURequestCores, Rows: []models.NormalizedRow{{
		Key:    models.KeyOf(later, key("app").Dimensions),
		Column: models.ColumnCPURequestCores,
		Value:  2,
	}}}

	rows, err := Merge(a, b)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestMergeRowCountEqualsDistinctKeys(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	containers := []string{"a", "b", "c", "d", "e", "f", "g", "h"}

	for iter := 0; iter < 50; iter++ {
		distinct := map[models.Key]bool{}
		var tables []models.Table
		for _, c := range models.Columns {
			values := map[string]float64{}
			for _, name := range containers {
				if rng.Intn(2) == 0 {
					values[name] = rng.Float64()
					distinct[key(name)] = true
				}
			}
			tables = append(tables, table(c, values))
		}

		rows, err := Merge(tables...)
		require.NoError(t, err)
		assert.Len(t, rows, len(distinct))
	}
}

func TestMergeEmpty(t *testing.T) {
	rows, err := Merge()
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestMergeRejectsDuplicateKeyWithinTable(t *testing.T) {
	dup := models.Table{Column: models.ColumnCPUUsageCores, Rows: []models.NormalizedRow{
		{Key: key("app"), Column: models.ColumnCPUUsageCores, Value: 1},
		{Key: key("app"), Column: models.ColumnCPUUsageCores, Value: 2},
	}}

	_, err := Merge(dup)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeData))
}

func TestMergeRejectsRepeatedColumn(t *testing.T) {
	_, err := Merge(
		table(models.ColumnCPUUsageCores, map[string]float64{"app": 1}),
		table(models.ColumnCPUUsageCores, map[string]float64{"db": 1}),
	)
	require.Error(t, err)
}
