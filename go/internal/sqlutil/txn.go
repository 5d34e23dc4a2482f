package sqlutil

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// Beginner is anything that can open a pgx transaction (pool, conn, or tx)
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Run executes fn inside a pgx.Tx.
// If fn returns an error the tx rolls back, else it commits.
func Run(ctx context.Context, db Beginner, fn func(tx pgx.Tx) error) error {
	tx, err := db.Begin(ctx) // BEGIN
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx) // ROLLBACK
		return err
	}
	return tx.Commit(ctx) // COMMIT
}
