// Package service runs the overlay handshake for newly discovered peers
package service

import (
	"context"
	"time"

	"gitpulse/internal/core/proto"
	"gitpulse/internal/core/rid"
	perr "gitpulse/internal/platform/errors"
	"gitpulse/internal/platform/logger"
	"gitpulse/internal/services/discovery/domain"
	nodedom "gitpulse/internal/services/node/domain"
)

const defaultFetchTimeout = 10 * time.Second

// Service reacts to node bundles reaching the end of the pipeline: it
// validates peer capabilities, proposes subscription edges and walks
// peer inventories to learn the rest of the overlay.
// Repeated proposals are not tracked here; the pipeline's manifest dedup
// already keeps a known peer from surfacing as new again
type Service struct {
	log          logger.Logger
	processor    nodedom.ProcessorPort
	graph        nodedom.GraphPort
	network      nodedom.NetworkPort
	cache        nodedom.CachePort
	fetchTimeout time.Duration
}

// New builds the handshake service over the node machinery
func New(ports domain.Ports, fetchTimeout time.Duration, log logger.Logger) *Service {
	if ports.Processor == nil || ports.Graph == nil || ports.Network == nil || ports.Cache == nil {
		panic("discovery: ports must be fully wired")
	}
	if fetchTimeout <= 0 {
		fetchTimeout = defaultFetchTimeout
	}
	return &Service{
		log:          log,
		processor:    ports.Processor,
		graph:        ports.Graph,
		network:      ports.Network,
		cache:        ports.Cache,
		fetchTimeout: fetchTimeout,
	}
}

// Register attaches the sensor side handlers to the pipeline.
// The coordinator proposer registers second so it observes the peer set
// discovery finished mutating
func (s *Service) Register() {
	s.processor.RegisterHandler(rid.NSNode, nodedom.PhaseFinal, s.discoverPeer)
	s.processor.RegisterHandler(rid.NSNode, nodedom.PhaseFinal, s.proposeCoordinatorEdge)
}

// RegisterHub attaches the hub side reverse handshake
func (s *Service) RegisterHub() {
	s.processor.RegisterHandler(rid.NSNode, nodedom.PhaseFinal, s.greetPeer)
}

// discoverPeer handles a peer seen for the first time: require the node
// event capability, subscribe to the peer's node feed and walk its
// inventory for identities this node has never cached
func (s *Service) discoverPeer(ctx context.Context, obj *nodedom.Object) (nodedom.Verdict, error) {
	if obj.EventType != proto.EventNew || obj.RID == s.graph.Self() || obj.Bundle == nil {
		return nodedom.VerdictOK, nil
	}
	log := s.log.With().Str("peer", obj.RID.String()).Logger()

	var profile proto.NodeProfile
	if err := obj.Bundle.Decode(&profile); err != nil {
		log.Warn().Err(err).Msg("peer bundle does not decode as a node profile")
		return nodedom.VerdictSkip, nil
	}
	if !profile.ProvidesEvent(rid.NSNode) {
		log.Debug().Msg("peer does not emit node events, nothing to subscribe to")
		return nodedom.VerdictOK, nil
	}

	if err := s.proposeEdge(ctx, obj.RID, s.graph.Self(), []string{rid.NSNode}); err != nil {
		return nodedom.VerdictFatal, err
	}
	log.Info().Msg("proposed node feed subscription")

	s.syncInventory(ctx, obj.RID, log)
	return nodedom.VerdictOK, nil
}

// proposeCoordinatorEdge offers the commit feed to the first peer this
// node ever sees, taking a lone peer for the overlay coordinator.
// With more than one known peer the proposal is never made
func (s *Service) proposeCoordinatorEdge(ctx context.Context, obj *nodedom.Object) (nodedom.Verdict, error) {
	if obj.EventType != proto.EventNew || obj.RID == s.graph.Self() {
		return nodedom.VerdictOK, nil
	}
	peers, err := s.graph.Peers(ctx)
	if err != nil {
		return nodedom.VerdictOK, perr.Wrapf(err, perr.ErrorCodeUnavailable, "discovery: peer count")
	}
	if len(peers) != 1 || peers[0] != obj.RID {
		return nodedom.VerdictOK, nil
	}

	if err := s.proposeEdge(ctx, s.graph.Self(), obj.RID, []string{rid.NSCommit}); err != nil {
		return nodedom.VerdictFatal, err
	}
	s.log.Info().Str("peer", obj.RID.String()).Msg("lone peer taken for the coordinator, offered the commit feed")
	return nodedom.VerdictOK, nil
}

// greetPeer answers a new node's first contact: the hub pushes its own
// profile back so the peer's discovery handler can finish the handshake,
// then asks to subscribe to the peer's node and edge feeds
func (s *Service) greetPeer(ctx context.Context, obj *nodedom.Object) (nodedom.Verdict, error) {
	if obj.EventType != proto.EventNew || obj.RID == s.graph.Self() {
		return nodedom.VerdictOK, nil
	}
	log := s.log.With().Str("peer", obj.RID.String()).Logger()

	self, ok, err := s.cache.Read(ctx, s.graph.Self())
	if err != nil || !ok {
		log.Warn().Err(err).Msg("own profile not cached yet, cannot greet")
		return nodedom.VerdictOK, nil
	}
	if err := s.network.PushEventTo(ctx, obj.RID, proto.EventFromBundle(proto.EventNew, self)); err != nil {
		log.Warn().Err(err).Msg("greeting push failed")
	} else {
		log.Info().Msg("introduced self to new peer")
	}

	if err := s.proposeEdge(ctx, obj.RID, s.graph.Self(), []string{rid.NSNode, rid.NSEdge}); err != nil {
		return nodedom.VerdictFatal, err
	}
	return nodedom.VerdictOK, nil
}

// proposeEdge mints a proposal and feeds it back through the pipeline
func (s *Service) proposeEdge(ctx context.Context, source, target rid.RID, ridTypes []string) error {
	_, bundle, err := proto.ProposeEdge(source, target, proto.CommWebhook, ridTypes)
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeJSON, "discovery: edge %s -> %s", source, target)
	}
	return s.processor.HandleBundle(ctx, bundle, nodedom.SourceInternal)
}

// syncInventory asks the peer who else it knows and queues a profile
// fetch for every identity missing from the cache. A failed or empty
// answer only ends the walk, the handshake already went through
func (s *Service) syncInventory(ctx context.Context, peer rid.RID, log logger.Logger) {
	fctx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()

	rids, err := s.network.FetchRids(fctx, peer, []string{rid.NSNode})
	if err != nil {
		log.Warn().Err(err).Msg("peer inventory fetch failed")
		return
	}
	if len(rids) == 0 {
		log.Debug().Msg("peer inventory empty")
		return
	}

	queued := 0
	for _, r := range rids {
		if r == s.graph.Self() {
			continue
		}
		known, err := s.cache.Exists(ctx, r)
		if err != nil {
			log.Warn().Err(err).Str("rid", r.String()).Msg("cache probe failed")
			continue
		}
		if known {
			continue
		}
		if err := s.processor.HandleRID(ctx, r, peer); err != nil {
			log.Warn().Err(err).Str("rid", r.String()).Msg("inventory entry rejected")
			continue
		}
		queued++
	}
	log.Info().Int("inventory", len(rids)).Int("queued", queued).Msg("peer inventory walked")
}
