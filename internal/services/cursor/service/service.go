// Package service implements the cursor store shared by both commit feeds
package service

import (
	"context"
	"maps"
	"sync"

	perr "gitpulse/internal/platform/errors"
	"gitpulse/internal/platform/logger"
	"gitpulse/internal/services/cursor/domain"
)

// Service keeps the authoritative mapping in memory and writes through
// to one persistence backend
type Service struct {
	log  logger.Logger
	repo domain.StorageRepo

	mu      sync.Mutex
	cursors map[string]string
	locks   map[string]*sync.Mutex

	// saveMu serializes persistence so snapshots land in order
	saveMu sync.Mutex
}

// New loads the persisted mapping once
// A broken backend logs and starts empty, it never blocks boot
func New(ctx context.Context, repo domain.StorageRepo, log logger.Logger) *Service {
	s := &Service{log: log, repo: repo, locks: map[string]*sync.Mutex{}}
	m, err := repo.Load(ctx)
	if err != nil {
		log.Error().Err(err).Msg("cursor load failed starting empty")
		m = map[string]string{}
	}
	if m == nil {
		m = map[string]string{}
	}
	s.cursors = m
	return s
}

// Get returns the cursor for a repo full name
func (s *Service) Get(_ context.Context, repo string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sha, ok := s.cursors[repo]
	return sha, ok
}

// Advance moves the cursor and persists the full mapping
// Same sha is a no op, persistence failure leaves memory advanced
func (s *Service) Advance(ctx context.Context, repo, sha string) error {
	if repo == "" || sha == "" {
		return perr.InvalidArgf("cursor advance needs repo and sha")
	}

	s.mu.Lock()
	if s.cursors[repo] == sha {
		s.mu.Unlock()
		return nil
	}
	s.cursors[repo] = sha
	s.mu.Unlock()

	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	snap := maps.Clone(s.cursors)
	s.mu.Unlock()

	if err := s.repo.Save(ctx, snap); err != nil {
		s.log.Error().Err(err).Str("repo", repo).Str("sha", sha).
			Msg("cursor save failed keeping in memory value")
		return perr.Wrapf(err, perr.ErrorCodeUnavailable, "cursor save for %s", repo)
	}
	return nil
}

// Snapshot returns a copy of the mapping
func (s *Service) Snapshot(_ context.Context) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.cursors)
}

// WithRepo serializes reconciliation per repo so the historical and live
// feeds never interleave on the same cursor
func (s *Service) WithRepo(ctx context.Context, repo string, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	l, ok := s.locks[repo]
	if !ok {
		l = &sync.Mutex{}
		s.locks[repo] = l
	}
	s.mu.Unlock()

	l.Lock()
	defer l.Unlock()
	return fn(ctx)
}
