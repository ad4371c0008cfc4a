// Package module provides the cursor module
package module

import (
	"context"
	"net/http"

	"gitpulse/internal/modkit"
	"gitpulse/internal/modkit/httpkit"
	"gitpulse/internal/services/cursor/domain"
	"gitpulse/internal/services/cursor/repo"
	"gitpulse/internal/services/cursor/service"
)

// Ports exposed by the cursor module
type Ports struct {
	Store domain.StorePort
}

// Module implements modkit.Module
type Module struct {
	deps  modkit.Deps
	ports Ports
}

// New constructs the cursor module and loads persisted cursors once
func New(deps modkit.Deps) *Module {
	opts := FromConfig(deps.Cfg)

	var storage domain.StorageRepo
	switch opts.Backend {
	case "badger":
		if deps.KV == nil {
			panic("cursor: badger backend requires the kv store")
		}
		storage = repo.NewBadger(deps.KV)
	case "pg":
		if deps.PG == nil {
			panic("cursor: pg backend requires postgres")
		}
		storage = repo.NewPG(deps.PG)
	default:
		storage = repo.NewFile(opts.FilePath, deps.Log)
	}

	svc := service.New(context.Background(), storage, deps.Log)

	m := &Module{deps: deps}
	m.ports = Ports{Store: svc}
	return m
}

// Name implements modkit.Module
func (m *Module) Name() string { return "cursor" }

// Ports implements modkit.Module
func (m *Module) Ports() any { return m.ports }

// Prefix implements modkit.Module
func (m *Module) Prefix() string { return "" }

// Middlewares implements modkit.Module
func (m *Module) Middlewares() []func(http.Handler) http.Handler { return nil }

// MountRoutes implements modkit.Module
func (m *Module) MountRoutes(r httpkit.Router) {}
