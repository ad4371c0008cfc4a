package domain

import (
	"context"

	"gitpulse/internal/adapters/github"
	cursordom "gitpulse/internal/services/cursor/domain"
	nodedom "gitpulse/internal/services/node/domain"
)

// RunnerPort is the public port exposed by the module
type RunnerPort interface {
	// Run reconciles every configured repository
	Run(ctx context.Context) error

	// RunRepos reconciles an explicit subset
	RunRepos(ctx context.Context, repos []RepoRef) error

	// Running reports whether a pass is in flight
	Running() bool
}

// HistoryIter walks one repository's commit history newest first
type HistoryIter interface {
	Next(ctx context.Context) (github.RepoCommit, bool, error)
}

// HistorySource opens provider history scans
// Every Scan starts from the repository tip again
type HistorySource interface {
	Scan(repo RepoRef) HistoryIter
}

// StorageRepo persists the run ledger, callers treat every write as best effort
type StorageRepo interface {
	// StartRun opens a ledger row and returns its id
	StartRun(ctx context.Context, repos int) (int64, error)

	// FinishRun closes the ledger row
	FinishRun(ctx context.Context, runID int64, fin RunFinish) error

	// RecordRepo upserts one repository outcome under the run
	RecordRepo(ctx context.Context, runID int64, fin RepoFinish) error
}

// Ports carries the cross service dependencies the module is built with
type Ports struct {
	// Cursors gates and advances the per repo reconciliation state (required)
	Cursors cursordom.StorePort

	// Processor receives the reconciled commit bundles (required)
	Processor nodedom.ProcessorPort
}
