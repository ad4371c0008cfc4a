// Package module provides the backfill module implementation
package module

import (
	"context"

	"gitpulse/internal/modkit"
	"gitpulse/internal/modkit/httpkit"
	"gitpulse/internal/modkit/repokit"
	"gitpulse/internal/services/backfill/domain"
	"gitpulse/internal/services/backfill/guardrails"
	"gitpulse/internal/services/backfill/ingest"
	"gitpulse/internal/services/backfill/repo"
	"gitpulse/internal/services/backfill/service"
)

// Ports defines the backfill module ports
type Ports struct {
	Runner domain.RunnerPort

	// OnStart reports whether a pass should run at boot
	OnStart bool
}

// Module implements the backfill module
type Module struct {
	deps  modkit.Deps
	ports Ports
	opts  Options
}

// New constructs the backfill module.
// It wires the provider history adapter and the service from config under
// deps.Cfg plus the cross service ports. It does not mount any routes.
func New(deps modkit.Deps, ports domain.Ports) *Module {
	if ports.Cursors == nil || ports.Processor == nil {
		panic("backfill module: Ports missing Cursors or Processor")
	}
	opts := FromConfig(deps.Cfg)

	repos, err := domain.ParseRepos(opts.Repos)
	if err != nil {
		panic("backfill module: " + err.Error())
	}

	history := ingest.NewHistory(deps, opts.PageSize)

	// Ledger and lease plumbing only when Postgres is configured
	var (
		db     repokit.TxRunner
		binder repokit.Binder[domain.StorageRepo]
		lease  func(context.Context, func(context.Context) error) error
	)
	if deps.PG != nil {
		db = deps.PG
		binder = repo.NewPG()
		lease = guardrails.MakeRunLease(deps)
	}

	svc := service.New(
		history, ports.Cursors, ports.Processor,
		repos,
		service.Config{
			Workers:      opts.Workers,
			DelayPerRepo: opts.DelayPerRepo,
			MaxCommits:   opts.MaxCommits,
			ScanTimeout:  opts.ScanTimeout,
			FetchTimeout: opts.FetchTimeout,
			EnableLeases: opts.EnableLeases,
		},
		db, binder, lease,
	)

	m := &Module{deps: deps, opts: opts}
	m.ports = Ports{Runner: svc, OnStart: opts.OnStart}
	return m
}

// Name returns the module name
func (m *Module) Name() string { return "backfill" }

// Ports returns the module ports
func (m *Module) Ports() any { return m.ports }

// Prefix returns the module prefix (none)
func (m *Module) Prefix() string { return "" }

// MountRoutes is a no-op as backfill has no routes
func (m *Module) MountRoutes(_ httpkit.Router) {}
