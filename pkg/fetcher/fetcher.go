// Package fetcher retrieves metric time series with bounded retries and fans
// the configured queries out concurrently for a namespace.
package fetcher

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/opscart/gke-vpa-recommender/pkg/datasource"
	"github.com/opscart/gke-vpa-recommender/pkg/models"
	"github.com/opscart/gke-vpa-recommender/pkg/normalizer"
	"github.com/opscart/gke-vpa-recommender/pkg/retry"
)

// Fetcher fetches one metric for one namespace at a time.
type Fetcher struct {
	source            datasource.MetricSource
	policy            retry.Policy
	projectID         string
	excludeContainers []string
}

// New creates a Fetcher over source.
func New(source datasource.MetricSource, projectID string, policy retry.Policy, excludeContainers []string) *Fetcher {
	return &Fetcher{
		source:            source,
		policy:            policy,
		projectID:         projectID,
		excludeContainers: append([]string(nil), excludeContainers...),
	}
}

// Fetch lists and flattens every page of q for namespace. Each attempt is
// bounded by the policy's timeout; transport, timeout and malformed-data
// failures are retried with linear backoff. The error of the final attempt
// is returned once retries are exhausted.
func (f *Fetcher) Fetch(ctx context.Context, namespace string, q models.MetricQuery, window models.QueryWindow) ([]models.TimeSeriesPoint, error) {
	logger := zerolog.Ctx(ctx).With().Str("query", q.Name).Logger()
	req := datasource.Request{
		ProjectID:         f.projectID,
		Namespace:         namespace,
		Query:             q,
		Window:            window,
		ExcludeContainers: f.excludeContainers,
	}

	start := time.Now()
	defer func() {
		fetchDuration.WithLabelValues(q.Name).Observe(time.Since(start).Seconds())
	}()

	var points []models.TimeSeriesPoint
	err := f.policy.Do(ctx, func(actx context.Context) error {
		series, err := f.source.ListTimeSeries(actx, req)
		if err == nil {
			points, err = normalizer.Flatten(series, q, namespace)
		}
		if err != nil {
			if !datasource.IsRetryable(err) {
				fetchAttempts.WithLabelValues(q.Name, "error").Inc()
				return retry.Permanent(err)
			}
			fetchAttempts.WithLabelValues(q.Name, "retry").Inc()
			return err
		}
		fetchAttempts.WithLabelValues(q.Name, "success").Inc()
		return nil
	}, func(attempt int, err error, wait time.Duration) {
		logger.Warn().Err(err).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Msg("Fetch attempt failed, retrying")
	})
	if err != nil {
		return nil, err
	}

	logger.Debug().Int("points", len(points)).Msg("Fetched metric")
	return points, nil
}

// Result is the outcome of one query for one namespace. Err is set when the
// metric is unavailable; Table is then empty.
type Result struct {
	Query models.MetricQuery
	Table models.Table
	Err   error
}

// FetchAll runs every query for namespace concurrently and waits for all of
// them. A failing query never cancels its siblings. Results keep the order
// of queries.
func (f *Fetcher) FetchAll(ctx context.Context, namespace string, queries []models.MetricQuery, window models.QueryWindow) []Result {
	results := make([]Result, len(queries))

	var g errgroup.Group
	for i, q := range queries {
		g.Go(func() error {
			results[i] = f.fetchTable(ctx, namespace, q, window)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (f *Fetcher) fetchTable(ctx context.Context, namespace string, q models.MetricQuery, window models.QueryWindow) Result {
	res := Result{Query: q, Table: models.Table{Column: q.Column}}

	points, err := f.Fetch(ctx, namespace, q, window)
	if err == nil {
		res.Table.Rows, err = normalizer.ToRows(points, q.Column)
	}
	if err != nil {
		unavailableMetrics.WithLabelValues(q.Name).Inc()
		zerolog.Ctx(ctx).Error().Err(err).
			Str("query", q.Name).
			Msg("Metric unavailable for namespace")
		res.Err = err
		res.Table.Rows = nil
	}
	return res
}
