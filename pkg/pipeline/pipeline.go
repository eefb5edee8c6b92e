// Package pipeline runs the fetch, normalize, merge, compute and write stages
// for every namespace with bounded concurrency.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/opscart/gke-vpa-recommender/pkg/errors"
	"github.com/opscart/gke-vpa-recommender/pkg/fetcher"
	"github.com/opscart/gke-vpa-recommender/pkg/merger"
	"github.com/opscart/gke-vpa-recommender/pkg/models"
	"github.com/opscart/gke-vpa-recommender/pkg/recommender"
	"github.com/opscart/gke-vpa-recommender/pkg/storage"
)

// Status is the final state of one namespace in a run.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// Options wires a Pipeline.
type Options struct {
	Fetcher     *fetcher.Fetcher
	Queries     []models.MetricQuery
	Calculator  *recommender.Calculator
	Guard       *storage.Guard
	Writer      *storage.Writer
	Concurrency int
	WindowDays  int
	// Now defaults to time.Now.
	Now func() time.Time
}

// Pipeline processes namespaces independently; one namespace failing never
// stops the others.
type Pipeline struct {
	fetcher     *fetcher.Fetcher
	queries     []models.MetricQuery
	calculator  *recommender.Calculator
	guard       *storage.Guard
	writer      *storage.Writer
	concurrency int
	windowDays  int
	now         func() time.Time
}

func New(opts Options) *Pipeline {
	p := &Pipeline{
		fetcher:     opts.Fetcher,
		queries:     append([]models.MetricQuery(nil), opts.Queries...),
		calculator:  opts.Calculator,
		guard:       opts.Guard,
		writer:      opts.Writer,
		concurrency: opts.Concurrency,
		windowDays:  opts.WindowDays,
		now:         opts.Now,
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.concurrency < 1 {
		p.concurrency = 1
	}
	return p
}

// NamespaceResult is what one namespace task hands back to the orchestrator.
type NamespaceResult struct {
	Namespace          string
	Status             Status
	Rows               int
	UnavailableMetrics []string
	Err                error
	Recommendations    []models.Recommendation
}

// Summary aggregates a run. Failed lists the namespaces that committed no rows
// because every metric or the sink failed.
type Summary struct {
	RunID     string
	Window    models.QueryWindow
	Succeeded []string
	Failed    []string
	Skipped   []string
	Rows      int
	Results   []NamespaceResult
}

// Run processes namespaces with at most Concurrency in flight. Each task
// returns its own result; the summary is built after all tasks finish.
func (p *Pipeline) Run(ctx context.Context, namespaces []string) Summary {
	start := p.now()
	summary := Summary{
		RunID:  uuid.NewString(),
		Window: models.NewQueryWindow(start, p.windowDays),
	}

	logger := log.With().Str("run_id", summary.RunID).Logger()
	ctx = logger.WithContext(ctx)

	logger.Info().
		Int("namespaces", len(namespaces)).
		Int("metrics", len(p.queries)).
		Int("concurrency", p.concurrency).
		Time("window_start", summary.Window.Start).
		Time("window_end", summary.Window.End).
		Msg("Starting recommendation run")

	results := make([]NamespaceResult, len(namespaces))
	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i, ns := range namespaces {
		g.Go(func() error {
			results[i] = p.processNamespace(ctx, ns, summary.Window)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		switch r.Status {
		case StatusSucceeded:
			summary.Succeeded = append(summary.Succeeded, r.Namespace)
			summary.Rows += r.Rows
		case StatusSkipped:
			summary.Skipped = append(summary.Skipped, r.Namespace)
		default:
			summary.Failed = append(summary.Failed, r.Namespace)
		}
		namespacesProcessed.WithLabelValues(string(r.Status)).Inc()
	}
	summary.Results = results

	recommendationsProduced.Set(float64(summary.Rows))
	lastRunTimestamp.SetToCurrentTime()

	logger.Info().
		Int("succeeded", len(summary.Succeeded)).
		Int("failed", len(summary.Failed)).
		Int("skipped", len(summary.Skipped)).
		Int("rows", summary.Rows).
		Strs("failed_namespaces", summary.Failed).
		Dur("duration", p.now().Sub(start)).
		Msg("Recommendation run finished")

	return summary
}

func (p *Pipeline) processNamespace(ctx context.Context, namespace string, window models.QueryWindow) (res NamespaceResult) {
	logger := zerolog.Ctx(ctx).With().Str("namespace", namespace).Logger()
	ctx = logger.WithContext(ctx)
	res.Namespace = namespace

	start := time.Now()
	defer func() {
		namespaceDuration.Observe(time.Since(start).Seconds())
		if res.Status == StatusFailed {
			logger.Error().Err(res.Err).Msg("Namespace failed")
		}
	}()

	done, err := p.guard.AlreadyProcessed(ctx, namespace)
	if err != nil {
		return failed(res, err)
	}
	if done {
		logger.Info().Msg("Namespace already processed today, skipping")
		res.Status = StatusSkipped
		return res
	}

	fetched := p.fetcher.FetchAll(ctx, namespace, p.queries, window)

	tables := make([]models.Table, 0, len(fetched))
	var errs []error
	for _, f := range fetched {
		if f.Err != nil {
			res.UnavailableMetrics = append(res.UnavailableMetrics, f.Query.Name)
			errs = append(errs, f.Err)
			continue
		}
		tables = append(tables, f.Table)
	}
	if len(tables) == 0 && len(errs) > 0 {
		return failed(res, apperrors.Wrap(apperrors.CodeOf(errs[0]), "all metrics unavailable", errors.Join(errs...)))
	}
	if len(res.UnavailableMetrics) > 0 {
		logger.Warn().
			Strs("unavailable", res.UnavailableMetrics).
			Msg("Continuing with partial metrics")
	}

	rows, err := merger.Merge(tables...)
	if err != nil {
		return failed(res, err)
	}

	recs := p.calculator.Compute(rows, window.Window)
	if len(recs) == 0 {
		logger.Info().Msg("No time series returned, nothing to write")
		res.Status = StatusSucceeded
		return res
	}

	if err := p.writer.Write(ctx, namespace, recs); err != nil {
		return failed(res, err)
	}

	res.Status = StatusSucceeded
	res.Rows = len(recs)
	res.Recommendations = recs
	return res
}

func failed(res NamespaceResult, err error) NamespaceResult {
	res.Status = StatusFailed
	res.Err = err
	return res
}
