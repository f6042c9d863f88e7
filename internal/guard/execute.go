package guard

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres error codes surfaced with policy-level codes so callers never see
// raw driver errors for predictable LLM mistakes.
const (
	pgUndefinedTable  = "42P01"
	pgUndefinedColumn = "42703"
)

// Executor runs a validated SELECT and returns its rows.
type Executor func(ctx context.Context, sqlText string) ([]map[string]any, error)

// ExecuteSafe is the only sanctioned path from candidate SQL to the data
// store: sanitize, validate, score, then execute. Rejected SQL is never
// passed to the executor.
func (p *Policy) ExecuteSafe(ctx context.Context, sqlText string, exec Executor) ([]map[string]any, string, int, error) {
	sanitized := Sanitize(sqlText)
	if err := p.Validate(sanitized); err != nil {
		return nil, sanitized, 0, err
	}

	score := p.SafetyScore(sanitized)
	if score < p.minSafetyScore {
		return nil, sanitized, score, reject(CodeLowSafetyScore,
			fmt.Sprintf("safety score %d is below the minimum %d", score, p.minSafetyScore),
			map[string]any{"score": score, "minimum": p.minSafetyScore})
	}

	rows, err := exec(ctx, sanitized)
	if err != nil {
		return nil, sanitized, score, mapStoreError(err)
	}
	return rows, sanitized, score, nil
}

func mapStoreError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUndefinedTable:
			return reject(CodeTableNotFound, "query references a table that does not exist", nil)
		case pgUndefinedColumn:
			return reject(CodeColumnNotFound, "query references a column that does not exist", nil)
		}
	}
	return err
}
