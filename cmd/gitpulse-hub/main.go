package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gitpulse/internal/platform/config"
	"gitpulse/internal/platform/logger"
	phttp "gitpulse/internal/platform/net/http"
	"gitpulse/internal/platform/store"

	"gitpulse/internal/modkit/module"
	"gitpulse/internal/services/api"
	nodemod "gitpulse/internal/services/node/module"
)

func setEnvDefault(key, val string) {
	if os.Getenv(key) == "" {
		_ = os.Setenv(key, val)
	}
}

func main() {
	// hub flavored defaults, deployments override via env
	setEnvDefault("CORE_API_SERVICE_NAME", "gitpulse-hub")
	setEnvDefault("KOI_NODE_NAME", "gitpulse-hub")
	setEnvDefault("KOI_STATE_DIR", "state/hub")

	root := config.New()
	apiCfg := root.Prefix("CORE_API_")
	kvCfg := root.Prefix("SERVICE_BADGER_")

	l := logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// the hub carries no provider feeds, the kv bundle cache is all it needs
	st, err := store.Open(ctx, store.Config{
		AppName: "gitpulse-hub",
		KV: store.KVConfig{
			Enabled:      true,
			Dir:          kvCfg.MayString("DIR", "data/hub-kv"),
			InMemory:     kvCfg.MayBool("IN_MEMORY", false),
			SyncWrites:   kvCfg.MayBool("SYNC_WRITES", false),
			GCIntervalMs: kvCfg.MayInt("GC_INTERVAL_MS", 300000),
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

	srv := phttp.NewServer(apiCfg)

	api.MountHub(
		srv.Router(),
		api.Options{
			Config:         root,
			Store:          st,
			Logger:         l,
			EnableProfiler: apiCfg.MayBool("PROFILER", true),
		},
	)

	np, ok := module.PortsAs[nodemod.Ports]("node")
	if !ok {
		l.Panic().Msg("node ports missing from registry")
	}

	runnerDone := make(chan struct{})
	go func() {
		defer close(runnerDone)
		if err := np.Runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			l.Error().Err(err).Msg("node runner stopped")
		}
	}()

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
		<-runnerDone
	case err := <-errCh:
		if err != nil {
			l.Panic().Err(err).Msg("http server stopped")
		}
	}
}
