package guardrails

import (
	"context"
	"errors"

	"gitpulse/internal/modkit"
	"gitpulse/internal/platform/store"
)

// ErrLeaseHeld signals another process owns the backfill run already.
var ErrLeaseHeld = errors.New("backfill: run lease already held")

// runLeaseKey namespaces the advisory lock shared by every node on one database
const runLeaseKey = int64(0x626b666c6c) // "bkfll"

// MakeRunLease returns a function that serializes whole backfill runs
// across processes sharing a Postgres database. The lock is transaction
// scoped, so the wrapping transaction stays open for the duration of do
// and holds nothing but the lock; the lease releases itself on commit,
// rollback, or a dropped connection. If another process owns the lock it
// returns ErrLeaseHeld and the caller skips the run.
func MakeRunLease(
	deps modkit.Deps,
) func(ctx context.Context, do func(context.Context) error) error {
	return func(ctx context.Context, do func(context.Context) error) error {
		return deps.PG.Tx(ctx, func(q store.RowQuerier) error {
			// the lock holder may idle for the whole run
			_, _ = q.Exec(ctx, "SET LOCAL statement_timeout = 0")
			_, _ = q.Exec(ctx, "SET LOCAL idle_in_transaction_session_timeout = 0")

			var claimed bool
			row := q.QueryRow(ctx, `select pg_try_advisory_xact_lock($1)`, runLeaseKey)
			if err := row.Scan(&claimed); err != nil {
				return err
			}
			if !claimed {
				return ErrLeaseHeld // clean skip
			}
			return do(ctx)
		})
	}
}
