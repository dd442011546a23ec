package search

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"recon/internal/search/models"
	"recon/pkg/platform/sentinel"
	"recon/pkg/platform/tx"
)

// PostgresStore persists searches in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed search store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const searchColumns = `id, search_type, query, status, results_count, error_message, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, search *models.Search) error {
	if search == nil {
		return fmt.Errorf("search is required")
	}
	_, err := tx.Conn(ctx, s.db).ExecContext(ctx, `
		INSERT INTO searches (`+searchColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		search.ID, string(search.Type), search.Query, string(search.Status),
		search.ResultsCount, nullString(search.ErrorMessage), search.CreatedAt, search.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create search: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Search, error) {
	row := tx.Conn(ctx, s.db).QueryRowContext(ctx, `SELECT `+searchColumns+` FROM searches WHERE id = $1`, id)
	search, err := scanSearch(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find search: %w", err)
	}
	return search, nil
}

// Transition writes the row only while its stored status still equals from.
func (s *PostgresStore) Transition(ctx context.Context, search *models.Search, from models.SearchStatus) error {
	res, err := tx.Conn(ctx, s.db).ExecContext(ctx, `
		UPDATE searches
		SET status = $2, results_count = $3, error_message = $4, updated_at = $5
		WHERE id = $1 AND status = $6`,
		search.ID, string(search.Status), search.ResultsCount, nullString(search.ErrorMessage),
		search.UpdatedAt, string(from),
	)
	if err != nil {
		return fmt.Errorf("update search: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update search: %w", err)
	}
	if affected == 1 {
		return nil
	}
	if _, err := s.FindByID(ctx, search.ID); err != nil {
		return err
	}
	return sentinel.ErrInvalidState
}

func (s *PostgresStore) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := tx.Conn(ctx, s.db).ExecContext(ctx, `DELETE FROM searches WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete search: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete search: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, filter models.ListFilter) (*models.SearchPage, error) {
	filter.Normalize()
	types := make([]string, 0, len(filter.Types))
	for _, t := range filter.Types {
		types = append(types, string(t))
	}
	statuses := make([]string, 0, len(filter.Statuses))
	for _, st := range filter.Statuses {
		statuses = append(statuses, string(st))
	}

	conn := tx.Conn(ctx, s.db)
	const where = `
		WHERE (cardinality($1::text[]) = 0 OR search_type = ANY($1))
		  AND (cardinality($2::text[]) = 0 OR status = ANY($2))`

	var total int
	if err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM searches`+where,
		pq.Array(types), pq.Array(statuses)).Scan(&total); err != nil {
		return nil, fmt.Errorf("count searches: %w", err)
	}

	rows, err := conn.QueryContext(ctx, `SELECT `+searchColumns+` FROM searches`+where+`
		ORDER BY created_at DESC, id
		LIMIT $3 OFFSET $4`,
		pq.Array(types), pq.Array(statuses), filter.Size, filter.Offset())
	if err != nil {
		return nil, fmt.Errorf("list searches: %w", err)
	}
	defer rows.Close()

	page := &models.SearchPage{Total: total, Page: filter.Page, Size: filter.Size, Items: []*models.Search{}}
	for rows.Next() {
		search, err := scanSearch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan search: %w", err)
		}
		page.Items = append(page.Items, search)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list searches: %w", err)
	}
	return page, nil
}

func (s *PostgresStore) Overview(ctx context.Context) (*models.Overview, error) {
	rows, err := tx.Conn(ctx, s.db).QueryContext(ctx,
		`SELECT search_type, status, COUNT(*) FROM searches GROUP BY search_type, status`)
	if err != nil {
		return nil, fmt.Errorf("search overview: %w", err)
	}
	defer rows.Close()

	out := &models.Overview{
		ByStatus: make(map[models.SearchStatus]int),
		ByType:   make(map[models.SearchType]int),
	}
	for rows.Next() {
		var searchType, status string
		var count int
		if err := rows.Scan(&searchType, &status, &count); err != nil {
			return nil, fmt.Errorf("scan overview: %w", err)
		}
		out.Total += count
		out.ByStatus[models.SearchStatus(status)] += count
		out.ByType[models.SearchType(searchType)] += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search overview: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSearch(row scanner) (*models.Search, error) {
	var (
		search       models.Search
		searchType   string
		status       string
		errorMessage sql.NullString
	)
	if err := row.Scan(&search.ID, &searchType, &search.Query, &status, &search.ResultsCount,
		&errorMessage, &search.CreatedAt, &search.UpdatedAt); err != nil {
		return nil, err
	}
	search.Type = models.SearchType(searchType)
	search.Status = models.SearchStatus(status)
	if errorMessage.Valid {
		msg := errorMessage.String
		search.ErrorMessage = &msg
	}
	return &search, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
