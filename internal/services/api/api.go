// Package api assembles the HTTP surface of the gitpulse binaries
package api

import (
	"gitpulse/internal/platform/config"
	"gitpulse/internal/platform/logger"
	phttp "gitpulse/internal/platform/net/http"
	"gitpulse/internal/platform/store"

	"gitpulse/internal/core/rid"
	"gitpulse/internal/modkit"
	"gitpulse/internal/modkit/httpkit"
	"gitpulse/internal/modkit/module"
	"gitpulse/internal/modkit/swaggerkit"

	metamod "gitpulse/internal/services/api/meta/module"
	sensordom "gitpulse/internal/services/api/sensor/domain"
	sensormod "gitpulse/internal/services/api/sensor/module"
	backfilldom "gitpulse/internal/services/backfill/domain"
	backfillmod "gitpulse/internal/services/backfill/module"
	cursormod "gitpulse/internal/services/cursor/module"
	discoverydom "gitpulse/internal/services/discovery/domain"
	discoverymod "gitpulse/internal/services/discovery/module"
	ingestdom "gitpulse/internal/services/ingest/domain"
	ingestmod "gitpulse/internal/services/ingest/module"
	nodemod "gitpulse/internal/services/node/module"
)

// Options are the API options
type Options struct {
	Config         config.Conf
	Store          *store.Store
	Logger         *logger.Logger
	EnableSwagger  bool
	EnableProfiler bool
}

// Mount assembles the sensor node onto the given router.
// Every module registers its ports under its name so the binary can
// pull the runners out of the registry after mounting
func Mount(r phttp.Router, opt Options) {
	// shared deps for modules
	deps := modkit.Deps{
		Log: *opt.Logger,
		Cfg: opt.Config,
		PG:  opt.Store.PG,
		KV:  opt.Store.KV,
	}

	// worker modules first, the ops surface feeds off their ports
	cursors := cursormod.New(deps)
	cp := module.MustPortsOf[cursormod.Ports](cursors)

	node := nodemod.New(deps, nodemod.Capabilities{
		Event: []string{rid.NSCommit},
		State: []string{rid.NSCommit},
	})
	np := module.MustPortsOf[nodemod.Ports](node)

	ing := ingestmod.New(deps, modkit.WithPorts(ingestdom.Ports{
		Cursors:   cp.Store,
		Processor: np.Proc,
	}))

	backfill := backfillmod.New(deps, backfilldom.Ports{
		Cursors:   cp.Store,
		Processor: np.Proc,
	})
	bp := module.MustPortsOf[backfillmod.Ports](backfill)

	disco := discoverymod.New(deps, discoverydom.Ports{
		Processor: np.Proc,
		Graph:     np.Graph,
		Network:   np.Network,
		Cache:     np.Cache,
	})

	sensor := sensormod.New(deps, modkit.WithPorts(sensordom.Ports{
		Cursors: cp.Store,
		Graph:   np.Graph,
		Runner:  bp.Runner,
	}))

	// ops surface, versioned with the common middleware stack
	httpkit.MountAPIV1(r, httpkit.CommonStack(), func(api httpkit.Router) {
		// Swagger + profiler
		swaggerkit.Mount(r, opt.EnableSwagger)
		phttp.MountProfiler(r, "/debug", opt.EnableProfiler)

		for _, m := range []module.Module{metamod.New(deps), sensor} {
			module.Register(m.Name(), m.Ports())
			m.MountRoutes(api)
		}
	})

	// the overlay protocol and provider webhooks are addressed without
	// the /api prefix: peers dial base_url plus /koi-net and GitHub
	// posts to /webhooks/github
	r.Group(func(gr phttp.Router) {
		gr.Use(httpkit.ProtocolStack()...)
		for _, m := range []module.Module{node, ing} {
			module.Register(m.Name(), m.Ports())
			m.MountRoutes(gr)
		}
	})

	// routeless workers, registry only
	for _, m := range []module.Module{cursors, backfill, disco} {
		module.Register(m.Name(), m.Ports())
	}
}

// MountHub assembles the coordinator hub: the overlay protocol with
// node discovery capabilities plus the meta surface. No provider feeds
func MountHub(r phttp.Router, opt Options) {
	deps := modkit.Deps{
		Log: *opt.Logger,
		Cfg: opt.Config,
		PG:  opt.Store.PG,
		KV:  opt.Store.KV,
	}

	node := nodemod.New(deps, nodemod.Capabilities{
		Event: []string{rid.NSNode, rid.NSEdge},
		State: []string{rid.NSNode, rid.NSEdge},
	})
	np := module.MustPortsOf[nodemod.Ports](node)

	disco := discoverymod.NewHub(deps, discoverydom.Ports{
		Processor: np.Proc,
		Graph:     np.Graph,
		Network:   np.Network,
		Cache:     np.Cache,
	})

	httpkit.MountAPIV1(r, httpkit.CommonStack(), func(api httpkit.Router) {
		phttp.MountProfiler(r, "/debug", opt.EnableProfiler)

		meta := metamod.New(deps)
		module.Register(meta.Name(), meta.Ports())
		meta.MountRoutes(api)
	})

	r.Group(func(gr phttp.Router) {
		gr.Use(httpkit.ProtocolStack()...)
		module.Register(node.Name(), node.Ports())
		node.MountRoutes(gr)
	})

	module.Register(disco.Name(), disco.Ports())
}
