// Package ingest holds adapter shims for backfill ports.
package ingest

import (
	"gitpulse/internal/adapters/github"
	"gitpulse/internal/modkit"
	"gitpulse/internal/services/backfill/domain"
)

// history implements domain.HistorySource over the GitHub REST client
type history struct {
	client   *github.Client
	pageSize int
}

// NewHistory constructs a domain.HistorySource from config under GITHUB_*.
// This keeps config-reading outside service and avoids passing platform deps into repos
func NewHistory(deps modkit.Deps, pageSize int) domain.HistorySource {
	gh := deps.Cfg.Prefix("GITHUB_")

	client := github.NewClient(github.Options{
		BaseURL:    gh.MayString("API_URL", ""),
		TokensCSV:  gh.MayString("TOKENS", ""),
		Timeout:    gh.MayDuration("HTTP_TIMEOUT", 0),
		MaxRetries: gh.MayInt("RETRIES", 0),
		RetryBase:  gh.MayDuration("RETRY_BASE", 0),
	})
	return &history{client: client, pageSize: pageSize}
}

// Scan implements domain.HistorySource, each call restarts from the tip
func (h *history) Scan(repo domain.RepoRef) domain.HistoryIter {
	return h.client.Commits(repo.Owner, repo.Name, h.pageSize)
}
