// Package service implements the startup backfill reconciler
package service

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"gitpulse/internal/adapters/github"
	"gitpulse/internal/core/normalize"
	"gitpulse/internal/core/proto"
	"gitpulse/internal/modkit/repokit"
	perr "gitpulse/internal/platform/errors"
	"gitpulse/internal/platform/logger"
	"gitpulse/internal/services/backfill/domain"
	"gitpulse/internal/services/backfill/guardrails"
	cursordom "gitpulse/internal/services/cursor/domain"
	nodedom "gitpulse/internal/services/node/domain"
)

// ledgerTimeout bounds each best effort run ledger write
const ledgerTimeout = 5 * time.Second

// Config holds tuning for backfill passes
type Config struct {
	// Workers is the number of repositories scanned in parallel; <=0 -> 1
	Workers int

	// DelayPerRepo is an optional sleep after each repository (per worker)
	DelayPerRepo time.Duration

	// MaxCommits caps how many records one scan may buffer; 0 = unlimited
	MaxCommits int

	// Timeouts applied via guardrails
	ScanTimeout  time.Duration
	FetchTimeout time.Duration

	// Distributed run lease (optional, needs Postgres)
	EnableLeases bool
}

// Service replays provider history into the processor, gated on the
// per repository cursor so replays stay idempotent
type Service struct {
	History   domain.HistorySource
	Cursors   cursordom.StorePort
	Processor nodedom.ProcessorPort
	Repos     []domain.RepoRef
	Cfg       Config

	// Ledger plumbing, a nil DB disables it
	DB     repokit.TxRunner
	Binder repokit.Binder[domain.StorageRepo]

	// Lease(ctx, do) should serialize whole runs across processes
	Lease func(ctx context.Context, do func(context.Context) error) error

	running atomic.Bool
}

// New constructs the backfill service
func New(
	history domain.HistorySource,
	cursors cursordom.StorePort,
	processor nodedom.ProcessorPort,
	repos []domain.RepoRef,
	cfg Config,
	db repokit.TxRunner,
	binder repokit.Binder[domain.StorageRepo],
	lease func(context.Context, func(context.Context) error) error,
) *Service {
	if history == nil {
		panic("backfill.Service requires a non nil HistorySource")
	}
	if cursors == nil {
		panic("backfill.Service requires a non nil cursor StorePort")
	}
	if processor == nil {
		panic("backfill.Service requires a non nil ProcessorPort")
	}
	return &Service{
		History: history, Cursors: cursors, Processor: processor,
		Repos:  repos,
		Cfg:    cfg,
		DB:     db,
		Binder: binder,
		Lease:  lease,
	}
}

// Run reconciles every configured repository
func (s *Service) Run(ctx context.Context) error {
	return s.RunRepos(ctx, s.Repos)
}

// Running reports whether a pass is in flight
func (s *Service) Running() bool { return s.running.Load() }

// RunRepos implements domain.RunnerPort.
// Only one run may be in flight per process, a second trigger conflicts
func (s *Service) RunRepos(ctx context.Context, repos []domain.RepoRef) error {
	if !s.running.CompareAndSwap(false, true) {
		return perr.Conflictf("backfill: a run is already in flight")
	}
	defer s.running.Store(false)

	if len(repos) == 0 {
		logger.C(ctx).Warn().Msg("backfill: no repositories configured, nothing to do")
		return nil
	}

	if s.Lease != nil && s.Cfg.EnableLeases {
		// If another process holds the run, treat as clean skip
		err := s.Lease(ctx, func(ctx context.Context) error { return s.runAll(ctx, repos) })
		if isLeaseHeld(err) {
			logger.C(ctx).Info().Msg("backfill: another process holds the run lease, skipping")
			return nil
		}
		return err
	}
	return s.runAll(ctx, repos)
}

func (s *Service) runAll(ctx context.Context, repos []domain.RepoRef) (retErr error) {
	startWall := time.Now()
	runID := s.startLedger(ctx, len(repos))

	// a rate limited worker poisons the pool through runCtx
	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var (
		wg        sync.WaitGroup
		next      atomic.Int64
		oks       int64
		fails     int64
		submitted int64
	)

	defer func() {
		fin := domain.RunFinish{
			Status:      domain.StatusOK,
			ReposOK:     int(atomic.LoadInt64(&oks)),
			ReposFailed: int(atomic.LoadInt64(&fails)),
			Submitted:   int(atomic.LoadInt64(&submitted)),
			ElapsedMS:   int(time.Since(startWall).Milliseconds()),
		}
		if retErr != nil {
			fin.ErrText = retErr.Error()
			fin.Status = domain.StatusError
			if errors.Is(retErr, context.Canceled) || errors.Is(retErr, context.DeadlineExceeded) ||
				perr.IsCode(retErr, perr.ErrorCodeTooManyRequests) {
				fin.Status = domain.StatusAborted
			}
		}
		s.finishLedger(ctx, runID, fin)
		logger.C(ctx).Info().
			Str("status", fin.Status).
			Int("repos_ok", fin.ReposOK).
			Int("repos_failed", fin.ReposFailed).
			Int("submitted", fin.Submitted).
			Int("elapsed_ms", fin.ElapsedMS).
			Msg("backfill run finished")
	}()

	w := max(s.Cfg.Workers, 1)
	sem := make(chan struct{}, w)

	worker := func() {
		defer func() { <-sem; wg.Done() }()
		for {
			i := int(next.Add(1)) - 1
			if i >= len(repos) {
				return
			}
			ref := repos[i]

			// repos claimed after an abort still get a ledger row
			if runCtx.Err() != nil {
				s.recordRepo(ctx, runID, domain.RepoFinish{
					Repo:    ref.FullName(),
					Status:  domain.StatusAborted,
					ErrText: context.Cause(runCtx).Error(),
				})
				continue
			}

			fin, abort := s.runRepo(runCtx, ref)
			s.recordRepo(ctx, runID, fin)
			atomic.AddInt64(&submitted, int64(fin.Submitted))
			switch fin.Status {
			case domain.StatusOK:
				atomic.AddInt64(&oks, 1)
			case domain.StatusError:
				atomic.AddInt64(&fails, 1)
			}
			if abort != nil {
				// poison the pool, then keep claiming so the rest of the
				// list lands in the ledger as aborted
				cancel(abort)
				continue
			}
			if s.Cfg.DelayPerRepo > 0 {
				_ = sleepCtx(runCtx, s.Cfg.DelayPerRepo)
			}
		}
	}

	// Launch the pool
	for range w {
		select {
		case <-runCtx.Done():
			wg.Wait()
			return context.Cause(runCtx)
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go worker()
	}
	wg.Wait()

	switch {
	case ctx.Err() != nil:
		retErr = ctx.Err()
	case runCtx.Err() != nil:
		retErr = context.Cause(runCtx)
	case atomic.LoadInt64(&fails) > 0:
		retErr = perr.Newf(perr.ErrorCodeUnavailable,
			"backfill: %d of %d repositories failed", atomic.LoadInt64(&fails), len(repos))
	}
	return retErr
}

// runRepo reconciles one repository inside its cursor lock.
// The abort error is non nil only for provider rate limiting, which
// poisons the whole run
func (s *Service) runRepo(ctx context.Context, ref domain.RepoRef) (fin domain.RepoFinish, abort error) {
	start := time.Now()
	full := ref.FullName()
	fin = domain.RepoFinish{Repo: full, Status: domain.StatusOK}

	tos := guardrails.Timeouts{Scan: s.Cfg.ScanTimeout, Fetch: s.Cfg.FetchTimeout}
	scanCtx, scanCancel := guardrails.WithScan(ctx, tos)
	defer scanCancel()

	err := s.Cursors.WithRepo(scanCtx, full, func(ctx context.Context) error {
		stored, _ := s.Cursors.Get(ctx, full)
		fin.CursorBefore = stored
		fin.CursorAfter = stored

		buf, err := s.scan(ctx, ref, stored, tos)
		if err != nil {
			return err
		}
		fin.Scanned = len(buf)

		// replay oldest first so downstream ordering matches history
		slices.Reverse(buf)

		last := ""
		for _, rc := range buf {
			if ctx.Err() != nil {
				break // what landed so far still advances below
			}
			if err := s.submit(ctx, ref, rc); err != nil {
				fin.Skipped++
				logger.C(ctx).Warn().Err(err).
					Str("repo", full).
					Str("sha", rc.SHA).
					Msg("backfill: commit skipped")
				continue
			}
			fin.Submitted++
			last = rc.SHA
		}

		if last != "" && last != stored {
			// the advance must land even when the run is being torn down,
			// what was submitted stays submitted
			if err := s.Cursors.Advance(context.WithoutCancel(ctx), full, last); err != nil {
				logger.C(ctx).Error().Err(err).Str("repo", full).Str("sha", last).Msg("backfill: cursor persist failed")
			}
			fin.CursorAfter = last
		}
		return ctx.Err()
	})

	fin.ElapsedMS = int(time.Since(start).Milliseconds())
	if err != nil {
		fin.ErrText = err.Error()
		switch {
		case perr.IsCode(err, perr.ErrorCodeTooManyRequests):
			fin.Status = domain.StatusError
			abort = err
			logger.C(ctx).Error().Err(err).Str("repo", full).Msg("backfill: provider rate limited, aborting run")
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			fin.Status = domain.StatusAborted
			logger.C(ctx).Warn().Err(err).Str("repo", full).Msg("backfill: repository scan cut short")
		default:
			fin.Status = domain.StatusError
			logger.C(ctx).Error().Err(err).Str("repo", full).Msg("backfill: repository failed, skipping")
		}
		return fin, abort
	}

	logger.C(ctx).Info().
		Str("repo", full).
		Int("scanned", fin.Scanned).
		Int("submitted", fin.Submitted).
		Int("skipped", fin.Skipped).
		Str("cursor", fin.CursorAfter).
		Msg("repository reconciled")
	return fin, nil
}

// scan buffers history newest first until the cursor, the cap, or the end.
// A pagination failure discards the buffer, a gap must never be skipped over
func (s *Service) scan(ctx context.Context, ref domain.RepoRef, stored string, tos guardrails.Timeouts) ([]github.RepoCommit, error) {
	it := s.History.Scan(ref)

	var buf []github.RepoCommit
	for {
		fetchCtx, cancel := guardrails.ForFetch(ctx, tos)
		rc, ok, err := it.Next(fetchCtx)
		cancel()
		if err != nil {
			return nil, err
		}
		if !ok {
			// exhausted history, a fresh repo or a rewritten tip
			return buf, nil
		}
		if stored != "" && rc.SHA == stored {
			return buf, nil
		}
		buf = append(buf, rc)

		if s.Cfg.MaxCommits > 0 && len(buf) >= s.Cfg.MaxCommits {
			if stored != "" {
				return nil, perr.Unavailablef(
					"backfill: %s hit the %d record scan cap before cursor %s, cursor left untouched",
					ref.FullName(), s.Cfg.MaxCommits, stored)
			}
			logger.C(ctx).Warn().
				Str("repo", ref.FullName()).
				Int("cap", s.Cfg.MaxCommits).
				Msg("backfill: bootstrap capped, older history left behind")
			return buf, nil
		}
	}
}

func (s *Service) submit(ctx context.Context, ref domain.RepoRef, rc github.RepoCommit) error {
	raw := normalize.Raw{
		SHA:     rc.SHA,
		Message: rc.Commit.Message,
		HTMLURL: rc.HTMLURL,
		Parents: rc.ParentSHAs(),
	}
	if a := rc.Commit.Author; a != nil {
		raw.AuthorName = a.Name
		raw.AuthorEmail = a.Email
		raw.AuthorDate = a.Date
	}
	if c := rc.Commit.Committer; c != nil {
		raw.CommitterName = c.Name
		raw.CommitterEmail = c.Email
		raw.CommitterDate = c.Date
	}

	id, commit, err := normalize.Normalize(ref.Owner, ref.Name, raw)
	if err != nil {
		return err
	}
	bundle, err := proto.NewBundle(id, commit)
	if err != nil {
		return err
	}
	if err := s.Processor.HandleBundle(ctx, bundle, nodedom.SourceInternal); err != nil {
		return err
	}
	logger.C(ctx).Debug().
		Str("rid", id.String()).
		Str("author", commit.Author()).
		Str("summary", commit.Summary()).
		Msg("backfill commit submitted")
	return nil
}

func (s *Service) startLedger(ctx context.Context, repos int) int64 {
	if s.DB == nil || s.Binder == nil {
		return 0
	}
	dbCtx, cancel := guardrails.ForDB(ctx, guardrails.Timeouts{DB: ledgerTimeout})
	defer cancel()

	var id int64
	err := s.DB.Tx(dbCtx, func(q repokit.Queryer) error {
		applyTxTuning(dbCtx, q)
		var e error
		id, e = s.Binder.Bind(q).StartRun(dbCtx, repos)
		return e
	})
	if err != nil {
		logger.C(ctx).Warn().Err(err).Msg("backfill: run ledger start failed")
		return 0
	}
	return id
}

func (s *Service) recordRepo(ctx context.Context, runID int64, fin domain.RepoFinish) {
	if runID == 0 {
		return
	}
	dbCtx, cancel := guardrails.ForDB(ctx, guardrails.Timeouts{DB: ledgerTimeout})
	defer cancel()

	err := s.DB.Tx(dbCtx, func(q repokit.Queryer) error {
		applyTxTuning(dbCtx, q)
		return s.Binder.Bind(q).RecordRepo(dbCtx, runID, fin)
	})
	if err != nil {
		logger.C(ctx).Warn().Err(err).Str("repo", fin.Repo).Msg("backfill: run ledger repo write failed")
	}
}

func (s *Service) finishLedger(ctx context.Context, runID int64, fin domain.RunFinish) {
	if runID == 0 {
		return
	}
	// the closing row is what records aborts, write it on a detached context
	dbCtx, cancel := guardrails.ForDB(context.WithoutCancel(ctx), guardrails.Timeouts{DB: ledgerTimeout})
	defer cancel()

	err := s.DB.Tx(dbCtx, func(q repokit.Queryer) error {
		applyTxTuning(dbCtx, q)
		return s.Binder.Bind(q).FinishRun(dbCtx, runID, fin)
	})
	if err != nil {
		logger.C(ctx).Warn().Err(err).Msg("backfill: run ledger finish failed")
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SET LOCAL only lives for the duration of the current transaction
func applyTxTuning(ctx context.Context, q repokit.Queryer) {
	_, _ = q.Exec(ctx, "SET LOCAL statement_timeout = 0")
}

// treat "run lease already held" as a contention signal
func isLeaseHeld(err error) bool {
	return errors.Is(err, guardrails.ErrLeaseHeld)
}
