// Package domain holds cursor store types and ports
package domain

import "context"

// StorePort is the surface other modules use to read and move cursors
// A cursor is the sha of the newest commit already reconciled for a repo
type StorePort interface {
	// Get returns the cursor for a repo full name and whether one exists
	Get(ctx context.Context, repo string) (string, bool)

	// Advance moves the cursor for repo to sha and persists the mapping
	// Persistence failures are returned but the in memory cursor has
	// already moved, callers treat the error as non fatal
	Advance(ctx context.Context, repo, sha string) error

	// Snapshot returns a copy of the full mapping
	Snapshot(ctx context.Context) map[string]string

	// WithRepo runs fn while holding the per repo reconciliation lock
	WithRepo(ctx context.Context, repo string, fn func(ctx context.Context) error) error
}

// StorageRepo persists the cursor mapping wholesale
// Load tolerates a missing backing store by returning an empty mapping
type StorageRepo interface {
	Load(ctx context.Context) (map[string]string, error)
	Save(ctx context.Context, cursors map[string]string) error
}
