package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/opscart/gke-vpa-recommender/pkg/config"
	"github.com/opscart/gke-vpa-recommender/pkg/datasource"
	"github.com/opscart/gke-vpa-recommender/pkg/fetcher"
	"github.com/opscart/gke-vpa-recommender/pkg/logging"
	"github.com/opscart/gke-vpa-recommender/pkg/models"
	"github.com/opscart/gke-vpa-recommender/pkg/namespaces"
	"github.com/opscart/gke-vpa-recommender/pkg/pipeline"
	"github.com/opscart/gke-vpa-recommender/pkg/recommender"
	"github.com/opscart/gke-vpa-recommender/pkg/reporter"
	"github.com/opscart/gke-vpa-recommender/pkg/storage"
)

var (
	// Run flags
	configPath   string
	namespaceArg []string
	dryRun       bool
	verbose      bool
	outputFormat string
	reportOutput string

	// History command vars
	historyLimit   int
	historyRunDate string

	cfg *config.Config
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "vpa-recommender",
		Short: "GKE workload sizing recommendations from Cloud Monitoring",
		Long: `Fetch container usage, requests, limits and VPA recommendations from Cloud Monitoring
for each namespace, compute CPU and memory recommendations and append them to the sink.`,
		PersistentPreRunE: setup,
		RunE:              runRecommend,
		SilenceUsage:      true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format: table, csv, json, html")
	rootCmd.PersistentFlags().StringVar(&reportOutput, "report-output", "", "Write the report to this file instead of stdout")

	rootCmd.Flags().StringSliceVarP(&namespaceArg, "namespace", "n", nil, "Namespaces to process (overrides the namespace file)")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Compute recommendations without writing to the sink")

	historyCmd := &cobra.Command{
		Use:   "history [namespace]",
		Short: "View past recommendations",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runHistory,
	}
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of recommendations to show")
	historyCmd.Flags().StringVar(&historyRunDate, "run-date", "", "Only show rows from this run date (YYYY-MM-DD)")

	latestCmd := &cobra.Command{
		Use:   "latest [namespace]",
		Short: "Show the most recent run date in the sink",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLatest,
	}

	queriesCmd := &cobra.Command{
		Use:   "queries",
		Short: "List the configured metric queries",
		RunE:  runQueries,
	}

	rootCmd.AddCommand(historyCmd, latestCmd, queriesCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func setup(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		return err
	}

	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}
	logging.Setup(level, cfg.Log.Format)
	return nil
}

func runRecommend(cmd *cobra.Command, args []string) error {
	format, err := reporter.ParseFormat(outputFormat)
	if err != nil {
		return err
	}
	if dryRun {
		cfg.Sink.Driver = config.SinkMemory
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	catalog, err := config.CompileQueries(cfg.Queries)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	names, err := namespaceSource().List(ctx)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		log.Warn().Msg("No namespaces to process")
		return nil
	}

	client, err := datasource.NewMonitoringClient(ctx,
		datasource.WithEndpoint(cfg.Monitoring.Endpoint),
		datasource.WithUserAgent(cfg.Monitoring.UserAgent),
		datasource.WithPageSize(cfg.Monitoring.PageSize),
		datasource.WithRateLimit(cfg.Monitoring.QPS, cfg.Monitoring.Burst),
	)
	if err != nil {
		return err
	}

	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	policy := cfg.RetryPolicy()
	p := pipeline.New(pipeline.Options{
		Fetcher:     fetcher.New(client, cfg.ProjectID, policy, cfg.ExcludeContainers),
		Queries:     catalog.Queries(),
		Calculator:  recommender.New(),
		Guard:       storage.NewGuard(store, time.Now),
		Writer:      storage.NewWriter(store, policy),
		Concurrency: cfg.Concurrency,
		WindowDays:  cfg.WindowDays,
	})

	summary := p.Run(ctx, names)
	pushMetrics(summary.RunID)

	if dryRun || cmd.Flags().Changed("output") {
		var recs []models.Recommendation
		for _, r := range summary.Results {
			recs = append(recs, r.Recommendations...)
		}
		if err := writeReport(format, recs); err != nil {
			return err
		}
	}

	fmt.Fprintf(os.Stderr, "Run %s: %d succeeded, %d skipped, %d failed, %d rows\n",
		summary.RunID, len(summary.Succeeded), len(summary.Skipped), len(summary.Failed), summary.Rows)
	if len(summary.Failed) > 0 {
		return fmt.Errorf("%d namespaces failed: %s", len(summary.Failed), strings.Join(summary.Failed, ", "))
	}
	return nil
}

func namespaceSource() namespaces.Source {
	switch {
	case len(namespaceArg) > 0:
		return namespaces.Static(namespaceArg)
	case cfg.Namespaces.FromCluster:
		src, err := namespaces.NewKubeSource(cfg.Namespaces.Kubeconfig, cfg.Namespaces.LabelSelector, cfg.Namespaces.Exclude)
		if err != nil {
			return failingSource{err}
		}
		return src
	default:
		return namespaces.FileSource{Path: cfg.Namespaces.File, Exclude: cfg.Namespaces.Exclude}
	}
}

type failingSource struct{ err error }

func (f failingSource) List(context.Context) ([]string, error) { return nil, f.err }

func openStore(ctx context.Context) (storage.Store, error) {
	return storage.Open(ctx, storage.Config{
		Driver: cfg.Sink.Driver,
		DSN:    cfg.Sink.DSN,
		Table:  cfg.Sink.Table,
	})
}

func pushMetrics(runID string) {
	if cfg.Metrics.PushgatewayURL == "" {
		return
	}
	err := push.New(cfg.Metrics.PushgatewayURL, "vpa_recommender").
		Gatherer(prometheus.DefaultGatherer).
		Grouping("project_id", cfg.ProjectID).
		Push()
	if err != nil {
		log.Warn().Err(err).Str("run_id", runID).Msg("Failed to push metrics")
	}
}

func writeReport(format reporter.ReportFormat, recs []models.Recommendation) error {
	var w io.Writer = os.Stdout
	if reportOutput != "" {
		f, err := os.Create(reportOutput)
		if err != nil {
			return fmt.Errorf("failed to create report file: %w", err)
		}
		defer f.Close()
		w = f
	}

	r := reporter.New(format)
	if err := r.Write(w, r.Generate(recs)); err != nil {
		return err
	}
	if reportOutput != "" {
		log.Info().Str("path", reportOutput).Msg("Report written")
	}
	return nil
}

// sinkOnly validates the settings the read-only commands need.
func sinkOnly() error {
	if cfg.Sink.Driver == config.SinkMemory {
		return fmt.Errorf("the memory sink keeps no history; configure postgres or sqlite")
	}
	check := *cfg
	if check.ProjectID == "" {
		check.ProjectID = "-"
	}
	return check.Validate()
}

func runHistory(cmd *cobra.Command, args []string) error {
	format, err := reporter.ParseFormat(outputFormat)
	if err != nil {
		return err
	}
	if err := sinkOnly(); err != nil {
		return err
	}

	filter := storage.Filter{Limit: historyLimit}
	if len(args) == 1 {
		filter.Namespace = args[0]
	}
	if historyRunDate != "" {
		filter.RunDate, err = time.Parse(time.DateOnly, historyRunDate)
		if err != nil {
			return fmt.Errorf("invalid --run-date: %w", err)
		}
	}

	ctx := cmd.Context()
	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	recs, err := store.ListRecommendations(ctx, filter)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Println("No recommendations found")
		return nil
	}
	return writeReport(format, recs)
}

func runLatest(cmd *cobra.Command, args []string) error {
	if err := sinkOnly(); err != nil {
		return err
	}

	namespace := ""
	if len(args) == 1 {
		namespace = args[0]
	}

	ctx := cmd.Context()
	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	latest, ok, err := store.LatestRunDate(ctx, namespace)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("No runs recorded")
		return nil
	}

	today := ""
	if models.SameDay(latest, time.Now()) {
		today = " (today, next run will skip)"
	}
	fmt.Printf("%s%s\n", latest.Format(time.DateOnly), today)
	return nil
}

func runQueries(cmd *cobra.Command, args []string) error {
	catalog, err := config.CompileQueries(cfg.Queries)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tCOLUMN\tRESOURCE\tALIGNER\tREDUCER\tVALUE\tCONTAINER LABEL\tMETRIC")
	for _, q := range catalog.Queries() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			q.Name, q.Column, q.ResourceType, q.PerSeriesAligner, q.CrossSeriesReducer,
			q.ValueType, q.ContainerLabel, q.Metric)
	}
	return tw.Flush()
}
