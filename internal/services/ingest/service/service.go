// Package service reconciles live push notifications into the pipeline
package service

import (
	"context"

	"gitpulse/internal/adapters/github"
	"gitpulse/internal/core/normalize"
	"gitpulse/internal/core/proto"
	"gitpulse/internal/modkit/scope"
	perr "gitpulse/internal/platform/errors"
	"gitpulse/internal/platform/logger"
	cursordom "gitpulse/internal/services/cursor/domain"
	"gitpulse/internal/services/ingest/domain"
	nodedom "gitpulse/internal/services/node/domain"
)

// Service is the live feed: it turns push notifications into canonical
// commit bundles, gated by the shared per repo cursor
type Service struct {
	log       logger.Logger
	cursors   cursordom.StorePort
	processor nodedom.ProcessorPort
	secret    []byte
	monitored map[string]struct{}
}

// New builds the live feed over the shared cursor store and the pipeline.
// An empty secret disables signature verification
func New(cursors cursordom.StorePort, processor nodedom.ProcessorPort, secret string, repos []string, log logger.Logger) *Service {
	s := &Service{
		log:       log,
		cursors:   cursors,
		processor: processor,
		monitored: make(map[string]struct{}, len(repos)),
	}
	if secret != "" {
		s.secret = []byte(secret)
	} else {
		log.Warn().Msg("webhook signature verification disabled, no secret configured")
	}
	for _, r := range repos {
		s.monitored[r] = struct{}{}
	}
	return s
}

// ProcessPush implements domain.FeedPort
// Reconciliation runs under the repo cursor lock so a backfill pass over
// the same repo serializes with the live feed
func (s *Service) ProcessPush(ctx context.Context, push github.PushEvent) (domain.PushResult, error) {
	full := push.Repository.FullName
	owner := push.Repository.OwnerLogin()
	name := push.Repository.Name
	if full == "" || owner == "" || name == "" {
		return domain.PushResult{}, perr.Newf(perr.ErrorCodeValidation, "ingest: push payload missing repository identity")
	}

	res := domain.PushResult{Repo: full}
	if _, ok := s.monitored[full]; !ok {
		s.log.Debug().Str("repo", full).Msg("push for unmonitored repo ignored")
		return res, nil
	}
	res.Monitored = true

	candidates, tip := pushCandidates(push)
	if len(candidates) == 0 {
		s.log.Warn().Str("repo", full).Str("ref", push.Ref).Msg("push carried no commit data")
		return res, nil
	}
	if push.HeadCommit != nil && len(push.Commits) > 0 {
		if last := push.Commits[len(push.Commits)-1].ID; last != "" && last != tip {
			s.log.Warn().
				Str("repo", full).
				Str("head", tip).
				Str("commits_tip", last).
				Msg("head_commit and commits disagree on the push tip, trusting head_commit")
		}
	}
	res.Tip = tip

	err := s.cursors.WithRepo(ctx, full, func(ctx context.Context) error {
		stored, _ := s.cursors.Get(ctx, full)
		for _, c := range candidates {
			if c.ID == "" {
				s.log.Warn().Str("repo", full).Msg("push commit entry missing id, skipping")
				continue
			}
			if c.ID == stored {
				s.log.Debug().Str("repo", full).Str("sha", c.ID).Msg("commit matches cursor, skipping")
				res.Skipped++
				continue
			}
			if err := s.submit(ctx, owner, name, c); err != nil {
				s.log.Warn().Err(err).Str("repo", full).Str("sha", c.ID).Msg("commit submission failed, skipping")
				continue
			}
			res.Submitted++
		}
		if res.Submitted > 0 && tip != "" && tip != stored {
			// memory has already moved when persistence fails, the feeds
			// keep deduping within this process
			if err := s.cursors.Advance(ctx, full, tip); err != nil {
				s.log.Error().Err(err).Str("repo", full).Str("sha", tip).Msg("cursor persist failed")
			}
			res.Advanced = true
		}
		return nil
	})
	if err != nil {
		return res, err
	}

	ev := s.log.Info().
		Str("repo", full).
		Int("submitted", res.Submitted).
		Int("skipped", res.Skipped).
		Bool("advanced", res.Advanced)
	if delivery, ok := scope.Get(ctx, "delivery"); ok {
		ev = ev.Str("delivery", delivery)
	}
	ev.Msg("push reconciled")
	return res, nil
}

// pushCandidates picks the commits to reconcile and the push tip.
// head_commit is authoritative when present, the commits list is the fallback
func pushCandidates(push github.PushEvent) ([]github.PushCommit, string) {
	if push.HeadCommit != nil && push.HeadCommit.ID != "" {
		return []github.PushCommit{*push.HeadCommit}, push.HeadCommit.ID
	}
	if len(push.Commits) == 0 {
		return nil, ""
	}
	return push.Commits, push.Commits[len(push.Commits)-1].ID
}

func (s *Service) submit(ctx context.Context, owner, name string, c github.PushCommit) error {
	raw := normalize.Raw{
		SHA:        c.ID,
		Message:    c.Message,
		AuthorDate: c.Timestamp,
		HTMLURL:    c.URL,
	}
	if c.Author != nil {
		raw.AuthorName = c.Author.Name
		raw.AuthorEmail = c.Author.Email
	}
	if c.Committer != nil {
		raw.CommitterName = c.Committer.Name
		raw.CommitterEmail = c.Committer.Email
	}

	id, commit, err := normalize.Normalize(owner, name, raw)
	if err != nil {
		return err
	}
	bundle, err := proto.NewBundle(id, commit)
	if err != nil {
		return err
	}
	if err := s.processor.HandleBundle(ctx, bundle, nodedom.SourceInternal); err != nil {
		return err
	}
	s.log.Debug().
		Str("rid", id.String()).
		Str("author", commit.Author()).
		Str("summary", commit.Summary()).
		Msg("live commit submitted")
	return nil
}
