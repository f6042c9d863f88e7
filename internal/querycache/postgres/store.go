// Package postgres persists query cache rows in the service database so
// every replica shares one cache.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fleetquery/fleetquery/internal/querycache"
)

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Get returns the live row for a hash and bumps its hit count in the same
// statement, so concurrent hits cannot lose increments.
func (s *Store) Get(ctx context.Context, queryHash string) (querycache.Entry, error) {
	query := `
UPDATE query_cache
SET hit_count = hit_count + 1
WHERE query_hash = $1 AND expires_at > NOW()
RETURNING query_hash, tenant_id, question, answer, sql_query, safety_score, result_data, created_at, expires_at, hit_count`

	var entry querycache.Entry
	err := s.db.QueryRowContext(ctx, query, queryHash).Scan(
		&entry.QueryHash,
		&entry.TenantID,
		&entry.Question,
		&entry.Answer,
		&entry.SQLQuery,
		&entry.SafetyScore,
		&entry.ResultData,
		&entry.CreatedAt,
		&entry.ExpiresAt,
		&entry.HitCount,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return querycache.Entry{}, querycache.ErrNotFound
		}
		return querycache.Entry{}, fmt.Errorf("get cache entry: %w", err)
	}
	return entry, nil
}

func (s *Store) Put(ctx context.Context, entry querycache.Entry) error {
	query := `
INSERT INTO query_cache (query_hash, tenant_id, question, answer, sql_query, safety_score, result_data, created_at, expires_at, hit_count)
VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8, $9, 0)
ON CONFLICT (query_hash) DO UPDATE
SET tenant_id = EXCLUDED.tenant_id,
    question = EXCLUDED.question,
    answer = EXCLUDED.answer,
    sql_query = EXCLUDED.sql_query,
    safety_score = EXCLUDED.safety_score,
    result_data = EXCLUDED.result_data,
    created_at = EXCLUDED.created_at,
    expires_at = EXCLUDED.expires_at,
    hit_count = 0`

	resultData := entry.ResultData
	if len(resultData) == 0 {
		resultData = []byte("null")
	}
	_, err := s.db.ExecContext(ctx, query,
		entry.QueryHash,
		entry.TenantID,
		entry.Question,
		entry.Answer,
		entry.SQLQuery,
		entry.SafetyScore,
		string(resultData),
		entry.CreatedAt,
		entry.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("put cache entry: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, queryHash string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM query_cache WHERE query_hash = $1`, queryHash); err != nil {
		return fmt.Errorf("delete cache entry: %w", err)
	}
	return nil
}

func (s *Store) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM query_cache WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("delete expired cache entries: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count removed cache entries: %w", err)
	}
	return removed, nil
}

func (s *Store) DeleteAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM query_cache`); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	return nil
}

func (s *Store) Stats(ctx context.Context) (querycache.Stats, error) {
	query := `
SELECT COUNT(*),
       COALESCE(SUM(hit_count), 0),
       COALESCE(AVG(hit_count), 0),
       COUNT(*) FILTER (WHERE expires_at <= NOW())
FROM query_cache`

	var stats querycache.Stats
	err := s.db.QueryRowContext(ctx, query).Scan(
		&stats.TotalEntries,
		&stats.TotalHits,
		&stats.AvgHitCount,
		&stats.ExpiredEntries,
	)
	if err != nil {
		return querycache.Stats{}, fmt.Errorf("cache stats: %w", err)
	}
	return stats, nil
}
