package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/opscart/gke-vpa-recommender/pkg/models"
)

// PostgresStore implements Store interface using PostgreSQL
type PostgresStore struct {
	db    *sql.DB
	table string
}

// NewPostgresStore creates a new PostgreSQL store
func NewPostgresStore(ctx context.Context, dsn, table string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, sinkError("failed to open database", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, sinkError("failed to ping database", err)
	}

	return &PostgresStore{db: db, table: table}, nil
}

// EnsureSchema runs the embedded migration
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	schema, err := loadMigration("postgres",
		pq.QuoteIdentifier(s.table), pq.QuoteIdentifier(s.table+"_namespace_run_date_idx"))
	if err != nil {
		return sinkError("failed to run migrations", err)
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return sinkError("failed to execute schema", err)
	}
	return nil
}

// LatestRunDate returns the most recent run_date for namespace
func (s *PostgresStore) LatestRunDate(ctx context.Context, namespace string) (time.Time, bool, error) {
	query := fmt.Sprintf(`
		SELECT MAX(run_date)
		FROM %s
		WHERE $1 = '' OR namespace_name = $1
	`, pq.QuoteIdentifier(s.table))

	var latest sql.NullTime
	if err := s.db.QueryRowContext(ctx, query, namespace).Scan(&latest); err != nil {
		return time.Time{}, false, sinkError("failed to query latest run date", err)
	}
	if !latest.Valid {
		return time.Time{}, false, nil
	}
	return models.RunDate(latest.Time), true, nil
}

// AppendRecommendations copies the batch in a single transaction
func (s *PostgresStore) AppendRecommendations(ctx context.Context, recs []models.Recommendation) error {
	if len(recs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return sinkError("failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn(s.table, models.RecommendationColumns...))
	if err != nil {
		return sinkError("failed to prepare copy", err)
	}

	for i := range recs {
		if _, err := stmt.ExecContext(ctx, recs[i].Values()...); err != nil {
			_ = stmt.Close()
			return sinkError("failed to copy recommendation", err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		_ = stmt.Close()
		return sinkError("failed to flush copy", err)
	}
	if err := stmt.Close(); err != nil {
		return sinkError("failed to close copy", err)
	}

	if err := tx.Commit(); err != nil {
		return sinkError("failed to commit recommendations", err)
	}
	return nil
}

// ListRecommendations retrieves recommendations, highest priority first
func (s *PostgresStore) ListRecommendations(ctx context.Context, filter Filter) ([]models.Recommendation, error) {
	var (
		where []string
		args  []any
	)
	if filter.Namespace != "" {
		args = append(args, filter.Namespace)
		where = append(where, fmt.Sprintf("namespace_name = $%d", len(args)))
	}
	if !filter.RunDate.IsZero() {
		args = append(args, models.RunDate(filter.RunDate))
		where = append(where, fmt.Sprintf("run_date = $%d", len(args)))
	}

	query := fmt.Sprintf("SELECT %s FROM %s",
		strings.Join(models.RecommendationColumns, ", "), pq.QuoteIdentifier(s.table))
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY run_date DESC, priority DESC, namespace_name, controller_name, container_name"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, sinkError("failed to list recommendations", err)
	}
	defer rows.Close()

	var recs []models.Recommendation
	for rows.Next() {
		var rec models.Recommendation
		if err := rows.Scan(rec.ScanTargets()...); err != nil {
			return nil, sinkError("failed to scan recommendation", err)
		}
		rec.RunDate = models.RunDate(rec.RunDate)
		rec.StartDatetime = rec.StartDatetime.UTC()
		rec.EndDatetime = rec.EndDatetime.UTC()
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, sinkError("failed to list recommendations", err)
	}
	return recs, nil
}

// Ping checks database connectivity
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
