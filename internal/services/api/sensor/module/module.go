// Package module wires the sensor ops endpoints into the API
package module

import (
	"net/http"

	modkit "gitpulse/internal/modkit"
	"gitpulse/internal/modkit/httpkit"
	str "gitpulse/internal/platform/strings"
	"gitpulse/internal/services/api/sensor/domain"
	sensorhttp "gitpulse/internal/services/api/sensor/http"
	sensorsvc "gitpulse/internal/services/api/sensor/service"
)

// Ports exposed by the sensor ops module
type Ports struct {
	Ops domain.ServicePort
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

// New constructs the sensor ops module.
// Callers pass the worker ports via WithPorts(sensor/domain.Ports)
func New(deps modkit.Deps, opts ...modkit.Option) modkit.Module {
	b := modkit.Build(append([]modkit.Option{
		modkit.WithName("sensor"),
		modkit.WithPrefix("/sensor"),
	}, opts...)...)

	ports, ok := b.Ports.(domain.Ports)
	if !ok {
		panic("sensor module: expected WithPorts(sensor/domain.Ports)")
	}

	o := FromConfig(deps.Cfg)
	svc := sensorsvc.New(ports, deps.Log)

	m := &Module{
		deps:      deps,
		name:      b.Name,
		prefix:    b.Prefix,
		mws:       b.Mw,
		subrouter: b.Subrouter,
	}
	m.ports = Ports{Ops: svc}

	external := b.Register
	m.register = func(r httpkit.Router) {
		mount := func(rr httpkit.Router) { sensorhttp.Register(rr, svc) }
		if o.AdminToken != "" {
			httpkit.Protected(r, staticTokenAuth{token: o.AdminToken}, mount)
		} else {
			mount(r)
		}
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

// Name implements the modkit.Module interface
func (m *Module) Name() string { return str.MustString(m.name, "sensor") }

// Prefix implements the modkit.Module interface
func (m *Module) Prefix() string { return str.MustPrefix(m.prefix) }

// Middlewares implements the modkit.Module interface
func (m *Module) Middlewares() []func(http.Handler) http.Handler { return m.mws }

// Ports implements the modkit.Module interface
func (m *Module) Ports() any { return m.ports }
