package datasource

import (
	"fmt"
	"strings"

	"github.com/opscart/gke-vpa-recommender/pkg/models"
)

// BuildFilter renders the monitoring filter for a metric in one namespace,
// excluding the given container names.
func BuildFilter(q models.MetricQuery, namespace string, excludeContainers []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `metric.type=%q AND resource.type=%q AND resource.labels.namespace_name=%q`,
		q.Metric, q.ResourceType, namespace)
	for _, c := range excludeContainers {
		if c == "" {
			continue
		}
		fmt.Fprintf(&b, ` AND %s!=%q`, filterLabel(q.ContainerLabel), c)
	}
	return b.String()
}

// filterLabel maps a response label path to its filter syntax.
func filterLabel(p models.LabelPath) string {
	switch p.Source {
	case models.LabelSourceMetric:
		return "metric.labels." + p.Key
	case models.LabelSourceSystem:
		return "metadata.system_labels." + p.Key
	default:
		return "resource.labels." + p.Key
	}
}
