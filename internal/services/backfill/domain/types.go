// Package domain holds the core types and ports for the backfill reconciler
package domain

import (
	"strings"

	perr "gitpulse/internal/platform/errors"
)

// RepoRef identifies one monitored repository
type RepoRef struct {
	Owner string
	Name  string
}

// FullName renders the owner/name pair used as the cursor key
func (r RepoRef) FullName() string { return r.Owner + "/" + r.Name }

// ParseRepo splits an owner/name pair, both segments must be non empty
func ParseRepo(full string) (RepoRef, error) {
	owner, name, ok := strings.Cut(strings.TrimSpace(full), "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return RepoRef{}, perr.Newf(perr.ErrorCodeInvalidArgument, "backfill: repo %q is not owner/name", full)
	}
	return RepoRef{Owner: owner, Name: name}, nil
}

// ParseRepos maps ParseRepo over a list, one bad entry rejects the lot
func ParseRepos(fulls []string) ([]RepoRef, error) {
	refs := make([]RepoRef, 0, len(fulls))
	for _, f := range fulls {
		ref, err := ParseRepo(f)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// Ledger statuses for runs and per repo outcomes
const (
	StatusOK      = "ok"
	StatusError   = "error"
	StatusAborted = "aborted"
)

// RepoFinish captures one repository's outcome for the run ledger
type RepoFinish struct {
	Repo         string
	Status       string
	Scanned      int // records buffered ahead of the cursor
	Submitted    int
	Skipped      int // per commit normalize or submit failures
	CursorBefore string
	CursorAfter  string
	ElapsedMS    int
	ErrText      string
}

// RunFinish captures whole run totals for the run ledger
type RunFinish struct {
	Status      string
	ReposOK     int
	ReposFailed int
	Submitted   int
	ElapsedMS   int
	ErrText     string
}
