// Package module wires the node's knowledge pipeline and protocol surface
package module

import (
	"net/http"
	"strings"

	"gitpulse/internal/core/proto"
	"gitpulse/internal/modkit"
	"gitpulse/internal/modkit/httpkit"
	str "gitpulse/internal/platform/strings"
	"gitpulse/internal/services/node/domain"
	nodehttp "gitpulse/internal/services/node/http"
	"gitpulse/internal/services/node/repo"
	"gitpulse/internal/services/node/service"
)

// Capabilities declares what a node offers the overlay: the namespaces
// it emits events for and the namespaces it serves state for
type Capabilities struct {
	Event []string
	State []string
}

// Ports exposed by the node module
type Ports struct {
	Proc    domain.ProcessorPort
	Cache   domain.CachePort
	Graph   domain.GraphPort
	Network domain.NetworkPort
	Runner  domain.RunnerPort
}

// Module implements the modkit.Module interface
type Module struct {
	deps   modkit.Deps
	name   string
	prefix string

	mws   []func(http.Handler) http.Handler
	ports Ports

	subrouter func(httpkit.Router) httpkit.Router
	register  func(httpkit.Router)
}

// New constructs the node module, minting or loading the node identity
func New(deps modkit.Deps, caps Capabilities, opts ...modkit.Option) *Module {
	b := modkit.Build(append([]modkit.Option{
		modkit.WithName("node"),
		modkit.WithPrefix(proto.Prefix),
	}, opts...)...)

	if deps.KV == nil {
		panic("node module: kv store required for the bundle cache")
	}

	o := FromConfig(deps.Cfg)

	profile := proto.NodeProfile{
		NodeType: proto.NodePartial,
		Provides: proto.Provides{Event: caps.Event, State: caps.State},
	}
	if o.NodeURL != "" {
		profile.BaseURL = strings.TrimRight(o.NodeURL, "/") + proto.Prefix
		profile.NodeType = proto.NodeFull
	}

	ident, err := service.LoadOrCreateIdentity(o.StateDir, o.NodeName, profile, deps.Log)
	if err != nil {
		panic(err)
	}

	cache := repo.NewCache(deps.KV)
	graph := service.NewGraph(ident.RID, cache)
	network := service.NewNetwork(ident, graph, service.NetworkConfig{
		HTTPTimeout:   o.HTTPTimeout,
		QueueCap:      o.QueueCap,
		FlushInterval: o.FlushInterval,
		FirstContact:  o.FirstContact,
	}, deps.Log)
	proc := service.NewProcessor(ident, cache, graph, network, deps.Log)
	runner := service.NewRunner(ident, proc, network, deps.Log)

	m := &Module{
		deps:      deps,
		name:      b.Name,
		prefix:    b.Prefix,
		mws:       b.Mw,
		subrouter: b.Subrouter,
	}
	m.ports = Ports{Proc: proc, Cache: cache, Graph: graph, Network: network, Runner: runner}

	external := b.Register
	m.register = func(r httpkit.Router) {
		nodehttp.Register(r, &nodehttp.Handlers{
			Log:   deps.Log,
			Self:  ident,
			Proc:  proc,
			Net:   network,
			Cache: cache,
		})
		if external != nil {
			external(r)
		}
	}
	return m
}

// MountRoutes implements the modkit.Module interface
func (m *Module) MountRoutes(r httpkit.Router) {
	r.Route(m.prefix, func(rr httpkit.Router) {
		for _, mw := range m.mws {
			rr.Use(mw)
		}
		if m.subrouter != nil {
			rr = m.subrouter(rr)
		}
		if m.register != nil {
			m.register(rr)
		}
	})
}

// Name returns the module name
func (m *Module) Name() string { return str.MustString(m.name, "module name") }

// Prefix returns the module route prefix
func (m *Module) Prefix() string { return str.MustPrefix(m.prefix) }

// Middlewares returns the module middlewares
func (m *Module) Middlewares() []func(http.Handler) http.Handler { return m.mws }

// Ports returns the module ports
func (m *Module) Ports() any { return m.ports }
