package domain

import (
	"context"

	backfilldom "gitpulse/internal/services/backfill/domain"
	cursordom "gitpulse/internal/services/cursor/domain"
	nodedom "gitpulse/internal/services/node/domain"
)

// ServicePort is consumed by the HTTP handlers
type ServicePort interface {
	// Cursors returns the persisted per repository reconciliation points
	Cursors(ctx context.Context) (CursorsResponse, error)

	// Peers lists the overlay peers cached by the node
	Peers(ctx context.Context) (PeersResponse, error)

	// StartBackfill launches a detached reconciliation pass
	// a second trigger while one runs conflicts
	StartBackfill(ctx context.Context) (BackfillStartedResponse, error)
}

// Ports carries the cross service dependencies the module is built with
type Ports struct {
	// Cursors reads the reconciliation snapshot (required)
	Cursors cursordom.StorePort

	// Graph answers peer queries from the bundle cache (required)
	Graph nodedom.GraphPort

	// Runner triggers backfill passes (required)
	Runner backfilldom.RunnerPort
}
