package result

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"recon/internal/search/models"
	"recon/pkg/platform/sentinel"
	"recon/pkg/platform/tx"
)

// PostgresStore persists results in PostgreSQL with JSONB payloads.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed result store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, result *models.Result) error {
	if result == nil {
		return fmt.Errorf("result is required")
	}
	data, err := json.Marshal(result.Data)
	if err != nil {
		return fmt.Errorf("encode result data: %w", err)
	}
	_, err = tx.Conn(ctx, s.db).ExecContext(ctx, `
		INSERT INTO search_results (id, search_id, source, data, confidence_score, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		result.ID, result.SearchID, result.Source, data, nullFloat(result.ConfidenceScore),
		result.CreatedAt, result.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return sentinel.ErrConflict
			case "23503":
				return fmt.Errorf("create result: %w", sentinel.ErrNotFound)
			}
		}
		return fmt.Errorf("create result: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListBySearch(ctx context.Context, searchID uuid.UUID) ([]*models.Result, error) {
	rows, err := tx.Conn(ctx, s.db).QueryContext(ctx, `
		SELECT id, search_id, source, data, confidence_score, created_at, updated_at
		FROM search_results
		WHERE search_id = $1
		ORDER BY seq`, searchID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	out := []*models.Result{}
	for rows.Next() {
		var (
			r     models.Result
			data  []byte
			score sql.NullFloat64
		)
		if err := rows.Scan(&r.ID, &r.SearchID, &r.Source, &data, &score, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		if err := json.Unmarshal(data, &r.Data); err != nil {
			return nil, fmt.Errorf("decode result data: %w", err)
		}
		if score.Valid {
			v := score.Float64
			r.ConfidenceScore = &v
		}
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) DeleteBySearch(ctx context.Context, searchID uuid.UUID) (int, error) {
	res, err := tx.Conn(ctx, s.db).ExecContext(ctx, `DELETE FROM search_results WHERE search_id = $1`, searchID)
	if err != nil {
		return 0, fmt.Errorf("delete results: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete results: %w", err)
	}
	return int(n), nil
}

func (s *PostgresStore) StatsBySearch(ctx context.Context, searchID uuid.UUID) (map[string]models.SourceStats, error) {
	rows, err := tx.Conn(ctx, s.db).QueryContext(ctx, `
		SELECT source, COUNT(*), COALESCE(AVG(confidence_score), 0)
		FROM search_results
		WHERE search_id = $1
		GROUP BY source`, searchID)
	if err != nil {
		return nil, fmt.Errorf("result stats: %w", err)
	}
	defer rows.Close()

	out := make(map[string]models.SourceStats)
	for rows.Next() {
		var source string
		var stat models.SourceStats
		if err := rows.Scan(&source, &stat.Count, &stat.AvgConfidence); err != nil {
			return nil, fmt.Errorf("scan result stats: %w", err)
		}
		out[source] = stat
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("result stats: %w", err)
	}
	return out, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
