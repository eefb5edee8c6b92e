package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	apperrors "github.com/opscart/gke-vpa-recommender/pkg/errors"
	"github.com/opscart/gke-vpa-recommender/pkg/retry"
)

const (
	DefaultUserAgent          = "cloud-solutions/gke-wa-vpa-recommender-v1"
	DefaultMonitoringEndpoint = "https://monitoring.googleapis.com/v3"
	DefaultNamespaceFile      = "/config/namespace.txt"
	DefaultTable              = "gke_vpa_recommendations"
	DefaultWindowDays         = 14
	DefaultConcurrency        = 100

	SinkPostgres = "postgres"
	SinkSQLite   = "sqlite"
	SinkMemory   = "memory"
)

// Config holds application configuration
type Config struct {
	ProjectID         string        `mapstructure:"project_id"`
	WindowDays        int           `mapstructure:"window_days"`
	Concurrency       int           `mapstructure:"concurrency"`
	FetchTimeout      time.Duration `mapstructure:"fetch_timeout"`
	ExcludeContainers []string      `mapstructure:"exclude_containers"`

	Retry      RetryConfig      `mapstructure:"retry"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Sink       SinkConfig       `mapstructure:"sink"`
	Namespaces NamespacesConfig `mapstructure:"namespaces"`
	Log        LogConfig        `mapstructure:"log"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`

	// Queries overrides the built-in metric catalog when non-empty.
	Queries []QuerySpec `mapstructure:"queries"`
}

type RetryConfig struct {
	Attempts  int           `mapstructure:"attempts"`
	BaseDelay time.Duration `mapstructure:"base_delay"`
}

type MonitoringConfig struct {
	Endpoint  string  `mapstructure:"endpoint"`
	UserAgent string  `mapstructure:"user_agent"`
	QPS       float64 `mapstructure:"qps"`
	Burst     int     `mapstructure:"burst"`
	PageSize  int     `mapstructure:"page_size"`
}

type SinkConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
	Table  string `mapstructure:"table"`
}

type NamespacesConfig struct {
	File          string   `mapstructure:"file"`
	FromCluster   bool     `mapstructure:"from_cluster"`
	Kubeconfig    string   `mapstructure:"kubeconfig"`
	LabelSelector string   `mapstructure:"label_selector"`
	Exclude       []string `mapstructure:"exclude"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
}

// Load reads configuration from an optional YAML file and the environment.
// Environment variables use the RECOMMENDER_ prefix (RECOMMENDER_RETRY_ATTEMPTS);
// PROJECT_ID, DEFAULT_WINDOW_DAYS and BIGQUERY_TABLE are honoured as well.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix("RECOMMENDER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	_ = v.BindEnv("project_id", "RECOMMENDER_PROJECT_ID", "PROJECT_ID")
	_ = v.BindEnv("window_days", "RECOMMENDER_WINDOW_DAYS", "DEFAULT_WINDOW_DAYS")
	_ = v.BindEnv("sink.table", "RECOMMENDER_SINK_TABLE", "BIGQUERY_TABLE")

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrCodeConfig,
				fmt.Sprintf("failed to read config file %s", configPath), err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeConfig, "failed to decode config", err)
	}
	if len(cfg.Queries) == 0 {
		cfg.Queries = DefaultQuerySpecs()
	}

	return &cfg, nil
}

// NewConfig returns a configuration populated with defaults only.
func NewConfig() *Config {
	return &Config{
		WindowDays:   DefaultWindowDays,
		Concurrency:  DefaultConcurrency,
		FetchTimeout: retry.DefaultAttemptTimeout,
		Retry: RetryConfig{
			Attempts:  retry.DefaultAttempts,
			BaseDelay: retry.DefaultBaseDelay,
		},
		Monitoring: MonitoringConfig{
			Endpoint:  DefaultMonitoringEndpoint,
			UserAgent: DefaultUserAgent,
			Burst:     1,
		},
		Sink: SinkConfig{
			Driver: SinkPostgres,
			Table:  DefaultTable,
		},
		Namespaces: NamespacesConfig{
			File:    DefaultNamespaceFile,
			Exclude: []string{"kube-system", "kube-public", "kube-node-lease"},
		},
		Log:     LogConfig{Level: "info", Format: "json"},
		Queries: DefaultQuerySpecs(),
	}
}

func setDefaults(v *viper.Viper) {
	d := NewConfig()
	v.SetDefault("project_id", "")
	v.SetDefault("window_days", d.WindowDays)
	v.SetDefault("concurrency", d.Concurrency)
	v.SetDefault("fetch_timeout", d.FetchTimeout)
	v.SetDefault("exclude_containers", []string{})
	v.SetDefault("retry.attempts", d.Retry.Attempts)
	v.SetDefault("retry.base_delay", d.Retry.BaseDelay)
	v.SetDefault("monitoring.endpoint", d.Monitoring.Endpoint)
	v.SetDefault("monitoring.user_agent", d.Monitoring.UserAgent)
	v.SetDefault("monitoring.qps", 0.0)
	v.SetDefault("monitoring.burst", d.Monitoring.Burst)
	v.SetDefault("monitoring.page_size", 0)
	v.SetDefault("sink.driver", d.Sink.Driver)
	v.SetDefault("sink.dsn", "")
	v.SetDefault("sink.table", d.Sink.Table)
	v.SetDefault("namespaces.file", d.Namespaces.File)
	v.SetDefault("namespaces.from_cluster", false)
	v.SetDefault("namespaces.kubeconfig", "")
	v.SetDefault("namespaces.label_selector", "")
	v.SetDefault("namespaces.exclude", d.Namespaces.Exclude)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("metrics.pushgateway_url", "")
}

// RetryPolicy converts the retry settings into a retry.Policy.
func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		Attempts:       c.Retry.Attempts,
		BaseDelay:      c.Retry.BaseDelay,
		AttemptTimeout: c.FetchTimeout,
	}
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return apperrors.New(apperrors.ErrCodeConfig, fmt.Sprintf(format, args...))
	}

	if c.ProjectID == "" {
		return invalid("project_id must be set (PROJECT_ID)")
	}
	if c.WindowDays < 1 {
		return invalid("window_days must be at least 1, got %d", c.WindowDays)
	}
	if c.Concurrency < 1 {
		return invalid("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.FetchTimeout <= 0 {
		return invalid("fetch_timeout must be positive, got %s", c.FetchTimeout)
	}
	if c.Retry.Attempts < 1 {
		return invalid("retry.attempts must be at least 1, got %d", c.Retry.Attempts)
	}
	if c.Retry.BaseDelay < 0 {
		return invalid("retry.base_delay must not be negative, got %s", c.Retry.BaseDelay)
	}
	if c.Monitoring.Endpoint == "" {
		return invalid("monitoring.endpoint must be set")
	}
	if c.Monitoring.QPS < 0 {
		return invalid("monitoring.qps must not be negative")
	}

	switch c.Sink.Driver {
	case SinkPostgres, SinkSQLite:
		if c.Sink.DSN == "" {
			return invalid("sink.dsn must be set for driver %s", c.Sink.Driver)
		}
	case SinkMemory:
	default:
		return invalid("unknown sink.driver %q", c.Sink.Driver)
	}
	if !validTableName(c.Sink.Table) {
		return invalid("invalid sink.table %q", c.Sink.Table)
	}

	if !c.Namespaces.FromCluster && c.Namespaces.File == "" {
		return invalid("namespaces.file must be set unless namespaces.from_cluster is enabled")
	}

	if _, err := CompileQueries(c.Queries); err != nil {
		return err
	}
	return nil
}

func validTableName(s string) bool {
	if s == "" || len(s) > 63 {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
