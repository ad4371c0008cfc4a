package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"gitpulse/internal/modkit"
	"gitpulse/internal/modkit/module"
	"gitpulse/internal/platform/config"
	"gitpulse/internal/platform/logger"
	"gitpulse/internal/platform/store"

	"gitpulse/internal/core/rid"
	backfilldom "gitpulse/internal/services/backfill/domain"
	backfillmod "gitpulse/internal/services/backfill/module"
	cursormod "gitpulse/internal/services/cursor/module"
	nodemod "gitpulse/internal/services/node/module"
)

func mustSetEnv(key, val string) {
	if val != "" {
		_ = os.Setenv(key, val)
	}
}

func main() {
	var (
		fRepos      = flag.String("repos", "", "comma separated owner/repo list, overrides GITHUB_REPOS")
		fWorkers    = flag.Int("workers", 0, "worker pool size, 0 keeps CORE_BACKFILL_WORKERS")
		fPageSize   = flag.Int("page-size", 0, "history page size, 0 keeps CORE_BACKFILL_PAGE_SIZE")
		fMaxCommits = flag.Int("max-commits", 0, "cap on walked commits per repo, 0 keeps CORE_BACKFILL_MAX_COMMITS")
		fLeases     = flag.Bool("leases", true, "take the pg run lease when postgres is configured")
	)
	flag.Parse()

	// Surface flags to the modules that read FromConfig
	mustSetEnv("GITHUB_REPOS", *fRepos)
	if *fWorkers > 0 {
		mustSetEnv("CORE_BACKFILL_WORKERS", strconv.Itoa(*fWorkers))
	}
	if *fPageSize > 0 {
		mustSetEnv("CORE_BACKFILL_PAGE_SIZE", strconv.Itoa(*fPageSize))
	}
	if *fMaxCommits > 0 {
		mustSetEnv("CORE_BACKFILL_MAX_COMMITS", strconv.Itoa(*fMaxCommits))
	}
	mustSetEnv("CORE_BACKFILL_LEASES", map[bool]string{true: "1", false: "0"}[*fLeases])

	root := config.New()
	pgCfg := root.Prefix("SERVICE_PGSQL_")
	kvCfg := root.Prefix("SERVICE_BADGER_")

	l := logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// One-shot default is an in memory cache so the pass never contends
	// with a running daemon for the badger dir. Cursors persist through
	// the configured cursor backend either way
	st, err := store.Open(ctx, store.Config{
		AppName: "gitpulse-backfill",
		PG: store.PGConfig{
			Enabled:     pgCfg.MayBool("ENABLED", false),
			URL:         pgCfg.MayString("DBURL", ""),
			MaxConns:    int32(pgCfg.MayInt("MAX_CONNS", 4)),
			SlowQueryMs: pgCfg.MayInt("SLOW_MS", 500),
			LogSQL:      pgCfg.MayBool("LOG_SQL", false),
		},
		KV: store.KVConfig{
			Enabled:    true,
			Dir:        kvCfg.MayString("DIR", "data/kv"),
			InMemory:   kvCfg.MayBool("IN_MEMORY", true),
			SyncWrites: kvCfg.MayBool("SYNC_WRITES", false),
		},
	}, store.WithLogger(*l))
	if err != nil {
		l.Panic().Err(err).Msg("store.Open failed")
	}
	defer func() {
		if err := st.Close(context.Background()); err != nil {
			l.Error().Err(err).Msg("failed to close store")
		}
	}()

	// Shared deps for modules
	deps := modkit.Deps{
		Cfg: root,
		PG:  st.PG,
		KV:  st.KV,
		Log: *l,
	}

	cursors := cursormod.New(deps)
	module.Register(cursors.Name(), cursors.Ports())
	cp := module.MustPortsOf[cursormod.Ports](cursors)

	node := nodemod.New(deps, nodemod.Capabilities{
		Event: []string{rid.NSCommit},
		State: []string{rid.NSCommit},
	})
	module.Register(node.Name(), node.Ports())
	np := module.MustPortsOf[nodemod.Ports](node)

	bf := backfillmod.New(deps, backfilldom.Ports{
		Cursors:   cp.Store,
		Processor: np.Proc,
	})
	module.Register(bf.Name(), bf.Ports())
	bp := module.MustPortsOf[backfillmod.Ports](bf)

	// drive the pipeline while the pass runs so submissions land in the
	// cache and queued deliveries flush, then drain it
	runCtx, cancel := context.WithCancel(ctx)
	runnerDone := make(chan struct{})
	go func() {
		defer close(runnerDone)
		if err := np.Runner.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			l.Error().Err(err).Msg("node runner stopped early")
		}
	}()

	runErr := bp.Runner.Run(ctx)
	cancel()
	<-runnerDone

	if runErr != nil {
		l.Fatal().Err(runErr).Msg("backfill failed")
	}
}
