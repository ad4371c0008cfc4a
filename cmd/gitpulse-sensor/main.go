// @title         GitPulse Sensor API
// @version       1.0
// @description   Commit activity sensor for the gitpulse overlay network

package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"gitpulse/internal/platform/config"
	"gitpulse/internal/platform/logger"
	phttp "gitpulse/internal/platform/net/http"
	"gitpulse/internal/platform/store"

	"gitpulse/internal/modkit/module"
	"gitpulse/internal/services/api"
	backfillmod "gitpulse/internal/services/backfill/module"
	nodemod "gitpulse/internal/services/node/module"
)

func main() {
	// service-scoped config for HTTP etc (CORE_API_*)
	root := config.New()
	apiCfg := root.Prefix("CORE_API_")

	pgCfg := root.Prefix("SERVICE_PGSQL_")  // optional, run ledger + pg cursor backend
	kvCfg := root.Prefix("SERVICE_BADGER_") // bundle cache, always on

	// bring up logging early
	l := logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(
		ctx,
		store.Config{
			AppName: "gitpulse-sensor",
			PG: store.PGConfig{
				Enabled:     pgCfg.MayBool("ENABLED", false),
				URL:         pgCfg.MayString("DBURL", ""),
				MaxConns:    int32(pgCfg.MayInt("MAX_CONNS", 4)),
				SlowQueryMs: pgCfg.MayInt("SLOW_MS", 500),
				LogSQL:      pgCfg.MayBool("LOG_SQL", false),
			},
			KV: store.KVConfig{
				Enabled:      true,
				Dir:          kvCfg.MayString("DIR", "data/kv"),
				InMemory:     kvCfg.MayBool("IN_MEMORY", false),
				SyncWrites:   kvCfg.MayBool("SYNC_WRITES", false),
				GCIntervalMs: kvCfg.MayInt("GC_INTERVAL_MS", 300000),
			},
		},
		store.WithLogger(*l),
	)
	if err != nil {
		l.Panic().Err(err).Msg("store.Open failed")
	}
	defer func() {
		if err := st.Close(context.Background()); err != nil {
			l.Error().Err(err).Msg("failed to close store")
		}
	}()

	// http server (reads CORE_API_API_PORT)
	srv := phttp.NewServer(apiCfg)

	// mount the sensor
	api.Mount(
		srv.Router(),
		api.Options{
			Config:         root,
			Store:          st,
			Logger:         l,
			EnableSwagger:  apiCfg.MayBool("SWAGGER", true),
			EnableProfiler: apiCfg.MayBool("PROFILER", true),
		},
	)

	np, ok := module.PortsAs[nodemod.Ports]("node")
	if !ok {
		l.Panic().Msg("node ports missing from registry")
	}
	bp, ok := module.PortsAs[backfillmod.Ports]("backfill")
	if !ok {
		l.Panic().Msg("backfill ports missing from registry")
	}

	// overlay pipeline: boot handshake, flusher and the processor loop
	runnerDone := make(chan struct{})
	go func() {
		defer close(runnerDone)
		if err := np.Runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			l.Error().Err(err).Msg("node runner stopped")
		}
	}()

	// boot reconciliation pass, concurrent with the serving path
	if bp.OnStart {
		go func() {
			if err := bp.Runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				l.Error().Err(err).Msg("boot backfill failed")
			}
		}()
	}

	// serve until signalled, then drain
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(ctx) }()

	select {
	case <-ctx.Done():
		shctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shctx); err != nil {
			l.Error().Err(err).Msg("http shutdown failed")
		}
		<-errCh
		// the processor finishes its backlog before the store closes
		<-runnerDone
	case err := <-errCh:
		if err != nil {
			l.Panic().Err(err).Msg("http server stopped")
		}
	}
}
