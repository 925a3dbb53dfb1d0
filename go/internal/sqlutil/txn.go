package sqlutil

import (
	"context"
	"database/sql"
	"fmt"
)

// Run executes fn inside a *sql.Tx and returns its result.
// If fn returns an error the tx rolls back, else it commits.
func Run[Q any, R any](
	ctx context.Context,
	db *sql.DB,
	newQueries func(*sql.Tx) Q,
	fn func(q Q) (R, error),
) (R, error) {
	var zero R
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return zero, fmt.Errorf("begin tx: %w", err)
	}
	result, err := fn(newQueries(tx))
	if err != nil {
		_ = tx.Rollback()
		return zero, err
	}
	if err := tx.Commit(); err != nil {
		return zero, fmt.Errorf("commit tx: %w", err)
	}
	return result, nil
}
