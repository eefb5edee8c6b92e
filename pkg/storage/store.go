// Package storage persists recommendation rows and answers the idempotency
// question "has this scope already been processed today".
package storage

import (
	"context"
	"embed"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/opscart/gke-vpa-recommender/pkg/errors"
	"github.com/opscart/gke-vpa-recommender/pkg/models"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store defines the interface for persistent storage
type Store interface {
	// EnsureSchema creates the recommendation table if it does not exist.
	EnsureSchema(ctx context.Context) error
	// LatestRunDate returns max(run_date), restricted to namespace unless it
	// is empty. ok is false when no rows match.
	LatestRunDate(ctx context.Context, namespace string) (date time.Time, ok bool, err error)
	// AppendRecommendations commits all rows or none.
	AppendRecommendations(ctx context.Context, recs []models.Recommendation) error
	ListRecommendations(ctx context.Context, filter Filter) ([]models.Recommendation, error)

	Ping(ctx context.Context) error
	Close() error
}

// Filter narrows ListRecommendations. Zero fields match everything.
type Filter struct {
	Namespace string
	RunDate   time.Time
	Limit     int
}

type Config struct {
	Driver string
	DSN    string
	Table  string
}

// Open connects to the store selected by cfg.Driver and ensures its schema.
func Open(ctx context.Context, cfg Config) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.Driver {
	case "postgres":
		s, err = NewPostgresStore(ctx, cfg.DSN, cfg.Table)
	case "sqlite":
		s, err = NewSQLiteStore(ctx, cfg.DSN, cfg.Table)
	case "memory":
		s = NewMemoryStore()
	default:
		return nil, apperrors.New(apperrors.ErrCodeConfig, fmt.Sprintf("unknown sink driver %q", cfg.Driver))
	}
	if err != nil {
		return nil, err
	}

	if err := s.EnsureSchema(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func loadMigration(dialect, table, index string) (string, error) {
	schema, err := migrationsFS.ReadFile(fmt.Sprintf("migrations/001_recommendations.%s.sql", dialect))
	if err != nil {
		return "", fmt.Errorf("failed to read schema: %w", err)
	}
	return strings.NewReplacer("{{table}}", table, "{{index}}", index).Replace(string(schema)), nil
}

func sinkError(op string, err error) error {
	return apperrors.Wrap(apperrors.ErrCodeSink, op, err)
}
