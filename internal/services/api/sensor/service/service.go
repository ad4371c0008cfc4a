// Package service implements the sensor ops surface over the worker ports
package service

import (
	"context"

	perr "gitpulse/internal/platform/errors"
	"gitpulse/internal/platform/logger"
	"gitpulse/internal/services/api/sensor/domain"
	backfilldom "gitpulse/internal/services/backfill/domain"
	cursordom "gitpulse/internal/services/cursor/domain"
	nodedom "gitpulse/internal/services/node/domain"
)

// Service answers ops queries from the cursor store, the node graph
// and the backfill runner
type Service struct {
	log     logger.Logger
	cursors cursordom.StorePort
	graph   nodedom.GraphPort
	runner  backfilldom.RunnerPort
}

// New constructs the ops service
func New(p domain.Ports, log logger.Logger) *Service {
	if p.Cursors == nil || p.Graph == nil || p.Runner == nil {
		panic("sensor service: ports must be fully wired")
	}
	return &Service{log: log, cursors: p.Cursors, graph: p.Graph, runner: p.Runner}
}

// Cursors returns the persisted per repository reconciliation points
func (s *Service) Cursors(ctx context.Context) (domain.CursorsResponse, error) {
	snap := s.cursors.Snapshot(ctx)
	return domain.CursorsResponse{Cursors: snap, Count: len(snap)}, nil
}

// Peers lists the overlay peers cached by the node.
// Profile details are best effort, a peer with an unreadable bundle
// still shows up by rid
func (s *Service) Peers(ctx context.Context) (domain.PeersResponse, error) {
	peers, err := s.graph.Peers(ctx)
	if err != nil {
		return domain.PeersResponse{}, perr.Wrapf(err, perr.ErrorCodeUnavailable, "sensor: peer listing")
	}

	out := make([]domain.PeerSummary, 0, len(peers))
	for _, p := range peers {
		sum := domain.PeerSummary{RID: p.String()}
		profile, ok, err := s.graph.NodeProfile(ctx, p)
		if err != nil {
			s.log.Warn().Err(err).Str("node", p.String()).Msg("sensor: peer profile read failed")
		} else if ok {
			sum.NodeType = string(profile.NodeType)
			sum.BaseURL = profile.BaseURL
			sum.Events = profile.Provides.Event
			sum.States = profile.Provides.State
		}
		out = append(out, sum)
	}
	return domain.PeersResponse{Peers: out, Count: len(out)}, nil
}

// StartBackfill launches a reconciliation pass detached from the request.
// The runner keeps its own single flight gate, this check only turns the
// common case into a synchronous conflict for the caller
func (s *Service) StartBackfill(_ context.Context) (domain.BackfillStartedResponse, error) {
	if s.runner.Running() {
		return domain.BackfillStartedResponse{}, perr.Conflictf("backfill: a run is already in flight")
	}

	go func() {
		if err := s.runner.Run(context.Background()); err != nil {
			s.log.Error().Err(err).Msg("sensor: triggered backfill failed")
		}
	}()

	return domain.BackfillStartedResponse{Started: true}, nil
}
