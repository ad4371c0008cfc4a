// Package module wires the live feed webhook surface
package module

import (
	"net/http"

	"gitpulse/internal/modkit"
	"gitpulse/internal/modkit/httpkit"
	str "gitpulse/internal/platform/strings"
	"gitpulse/internal/services/ingest/domain"
	ingesthttp "gitpulse/internal/services/ingest/http"
	"gitpulse/internal/services/ingest/service"
)

// Ports exposed by the ingest module
type Ports struct {
	Feed domain.FeedPort
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

// New constructs the ingest module
// Callers pass the cursor store and the knowledge processor via
// WithPorts(ingest/domain.Ports)
func New(deps modkit.Deps, opts ...modkit.Option) *Module {
	b := modkit.Build(append([]modkit.Option{
		modkit.WithName("ingest"),
		modkit.WithPrefix("/webhooks"),
	}, opts...)...)

	ports, ok := b.Ports.(domain.Ports)
	if !ok {
		panic("ingest module: expected WithPorts(ingest/domain.Ports)")
	}
	if ports.Cursors == nil || ports.Processor == nil {
		panic("ingest module: Ports missing Cursors or Processor")
	}

	o := FromConfig(deps.Cfg)
	svc := service.New(ports.Cursors, ports.Processor, o.WebhookSecret, o.Repos, deps.Log)

	m := &Module{
		deps:      deps,
		name:      b.Name,
		prefix:    b.Prefix,
		mws:       b.Mw,
		subrouter: b.Subrouter,
	}
	m.ports = Ports{Feed: svc}

	external := b.Register
	m.register = func(r httpkit.Router) {
		ingesthttp.Register(r, &ingesthttp.Handlers{Log: deps.Log, Feed: svc})
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
