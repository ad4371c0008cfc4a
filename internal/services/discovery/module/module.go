// Package module wires the handshake handlers into the node pipeline
package module

import (
	"gitpulse/internal/modkit"
	"gitpulse/internal/modkit/httpkit"
	"gitpulse/internal/services/discovery/domain"
	"gitpulse/internal/services/discovery/service"
)

// Ports exposed by the discovery module
type Ports struct {
	Handshake *service.Service
}

// Module implements the modkit.Module interface
type Module struct {
	ports Ports
}

// New constructs the sensor side module: peer discovery plus the
// coordinator edge proposer
func New(deps modkit.Deps, ports domain.Ports) *Module {
	svc := newService(deps, ports)
	svc.Register()
	return &Module{ports: Ports{Handshake: svc}}
}

// NewHub constructs the hub side module: the reverse handshake only
func NewHub(deps modkit.Deps, ports domain.Ports) *Module {
	svc := newService(deps, ports)
	svc.RegisterHub()
	return &Module{ports: Ports{Handshake: svc}}
}

func newService(deps modkit.Deps, ports domain.Ports) *service.Service {
	if ports.Processor == nil || ports.Graph == nil || ports.Network == nil || ports.Cache == nil {
		panic("discovery module: Ports missing node machinery")
	}
	o := FromConfig(deps.Cfg)
	return service.New(ports, o.FetchTimeout, deps.Log)
}

// Name returns the module name
func (m *Module) Name() string { return "discovery" }

// Ports returns the module ports
func (m *Module) Ports() any { return m.ports }

// Prefix returns the module prefix (none)
func (m *Module) Prefix() string { return "" }

// MountRoutes is a no-op as discovery has no routes
func (m *Module) MountRoutes(_ httpkit.Router) {}
