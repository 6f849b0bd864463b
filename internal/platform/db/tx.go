package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNoPool is returned when a transaction is requested without a pool.
var ErrNoPool = errors.New("platform/db: pool not configured")

// SnapshotTxOptions pin every query of a transaction to one read-only snapshot.
var SnapshotTxOptions = pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}

// ReadSnapshot runs fn inside a SnapshotTxOptions transaction. The transaction
// is committed when fn succeeds and rolled back otherwise.
func ReadSnapshot(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	if pool == nil {
		return ErrNoPool
	}
	if err := pgx.BeginTxFunc(ctx, pool, SnapshotTxOptions, fn); err != nil {
		return fmt.Errorf("platform/db: read snapshot: %w", err)
	}
	return nil
}
