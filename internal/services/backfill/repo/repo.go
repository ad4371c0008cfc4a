// Package repo provides postgres access for the backfill run ledger.
// It assumes the backfill_runs and backfill_run_repos tables exist
package repo

import (
	"context"

	"gitpulse/internal/modkit/repokit"
	"gitpulse/internal/services/backfill/domain"
)

type (
	// PG is a Postgres binder for domain.StorageRepo
	PG      struct{}
	queries struct{ q repokit.Queryer }
)

// NewPG returns a Postgres binder for domain.StorageRepo
func NewPG() repokit.Binder[domain.StorageRepo] { return PG{} }

// Bind implements repokit.Binder
func (PG) Bind(q repokit.Queryer) domain.StorageRepo { return &queries{q: q} }

// StartRun opens a ledger row for a pass over the given number of repos
func (r *queries) StartRun(ctx context.Context, repos int) (int64, error) {
	var id int64
	err := r.q.QueryRow(ctx, `
		INSERT INTO backfill_runs (started_at, status, repos_total)
		VALUES (now(), 'running', $1)
		RETURNING id
	`, repos).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// FinishRun closes the ledger row (idempotent)
func (r *queries) FinishRun(ctx context.Context, runID int64, fin domain.RunFinish) error {
	_, err := r.q.Exec(ctx, `
		UPDATE backfill_runs SET
			finished_at = now(),
			status = $2,
			repos_ok = $3,
			repos_failed = $4,
			submitted = $5,
			elapsed_ms = $6,
			error = NULLIF($7,'')
		WHERE id = $1
	`, runID, fin.Status, fin.ReposOK, fin.ReposFailed, fin.Submitted, fin.ElapsedMS, fin.ErrText)
	return err
}

// RecordRepo upserts one repository outcome under the run (idempotent)
func (r *queries) RecordRepo(ctx context.Context, runID int64, fin domain.RepoFinish) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO backfill_run_repos (
			run_id, repo, status, scanned, submitted, skipped,
			cursor_before, cursor_after, elapsed_ms, error
		)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7,''), NULLIF($8,''), $9, NULLIF($10,''))
		ON CONFLICT (run_id, repo) DO UPDATE SET
			status = EXCLUDED.status,
			scanned = EXCLUDED.scanned,
			submitted = EXCLUDED.submitted,
			skipped = EXCLUDED.skipped,
			cursor_before = EXCLUDED.cursor_before,
			cursor_after = EXCLUDED.cursor_after,
			elapsed_ms = EXCLUDED.elapsed_ms,
			error = EXCLUDED.error
	`, runID, fin.Repo, fin.Status, fin.Scanned, fin.Submitted, fin.Skipped,
		fin.CursorBefore, fin.CursorAfter, fin.ElapsedMS, fin.ErrText)
	return err
}
