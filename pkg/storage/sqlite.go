package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/opscart/gke-vpa-recommender/pkg/models"
)

// SQLiteStore implements Store on a local SQLite file, for single-node
// deployments and development.
type SQLiteStore struct {
	db    *sql.DB
	table string
}

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(ctx context.Context, path, table string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, sinkError("failed to open database", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, sinkError("failed to ping database", err)
	}

	return &SQLiteStore{db: db, table: table}, nil
}

func (s *SQLiteStore) quotedTable() string {
	return `"` + s.table + `"`
}

func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	schema, err := loadMigration("sqlite", s.quotedTable(), `"`+s.table+`_namespace_run_date_idx"`)
	if err != nil {
		return sinkError("failed to run migrations", err)
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return sinkError("failed to execute schema", err)
	}
	return nil
}

// LatestRunDate returns the most recent run_date for namespace. Aggregates
// lose the column's declared type, so the value is parsed here.
func (s *SQLiteStore) LatestRunDate(ctx context.Context, namespace string) (time.Time, bool, error) {
	query := fmt.Sprintf(`SELECT MAX(run_date) FROM %s WHERE ?1 = '' OR namespace_name = ?1`, s.quotedTable())

	var latest sql.NullString
	if err := s.db.QueryRowContext(ctx, query, namespace).Scan(&latest); err != nil {
		return time.Time{}, false, sinkError("failed to query latest run date", err)
	}
	if !latest.Valid {
		return time.Time{}, false, nil
	}

	t, err := parseSQLiteTime(latest.String)
	if err != nil {
		return time.Time{}, false, sinkError("failed to parse latest run date", err)
	}
	return models.RunDate(t), true, nil
}

func (s *SQLiteStore) AppendRecommendations(ctx context.Context, recs []models.Recommendation) error {
	if len(recs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return sinkError("failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(models.RecommendationColumns)), ", ")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		s.quotedTable(), strings.Join(models.RecommendationColumns, ", "), placeholders))
	if err != nil {
		return sinkError("failed to prepare insert", err)
	}
	defer stmt.Close()

	for i := range recs {
		rec := recs[i]
		rec.RunDate = rec.RunDate.UTC()
		rec.StartDatetime = rec.StartDatetime.UTC()
		rec.EndDatetime = rec.EndDatetime.UTC()
		if _, err := stmt.ExecContext(ctx, rec.Values()...); err != nil {
			return sinkError("failed to insert recommendation", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return sinkError("failed to commit recommendations", err)
	}
	return nil
}

func (s *SQLiteStore) ListRecommendations(ctx context.Context, filter Filter) ([]models.Recommendation, error) {
	var (
		where []string
		args  []any
	)
	if filter.Namespace != "" {
		where = append(where, "namespace_name = ?")
		args = append(args, filter.Namespace)
	}
	if !filter.RunDate.IsZero() {
		where = append(where, "run_date = ?")
		args = append(args, models.RunDate(filter.RunDate))
	}

	query := fmt.Sprintf("SELECT %s FROM %s",
		strings.Join(models.RecommendationColumns, ", "), s.quotedTable())
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY run_date DESC, priority DESC, namespace_name, controller_name, container_name"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
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

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func parseSQLiteTime(v string) (time.Time, error) {
	v = strings.TrimSuffix(v, "Z")
	for _, layout := range append(sqlite3.SQLiteTimestampFormats, time.RFC3339Nano) {
		if t, err := time.ParseInLocation(layout, v, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", v)
}
