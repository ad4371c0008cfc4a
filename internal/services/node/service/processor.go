package service

import (
	"context"
	"sync"

	"gitpulse/internal/core/proto"
	"gitpulse/internal/core/rid"
	perr "gitpulse/internal/platform/errors"
	"gitpulse/internal/platform/logger"
	"gitpulse/internal/services/node/domain"
)

// Processor drains knowledge objects through the pipeline on a single
// worker goroutine. Handle calls append to an unbounded backlog and
// return immediately, so handlers may re-enter Handle without deadlock
type Processor struct {
	log     logger.Logger
	self    Identity
	cache   domain.CachePort
	graph   domain.GraphPort
	network domain.NetworkPort

	mu      sync.Mutex
	backlog []*domain.Object
	wake    chan struct{}

	hmu      sync.RWMutex
	handlers map[string]map[domain.Phase][]domain.Handler
}

// NewProcessor wires the pipeline and registers the built-in edge handlers
func NewProcessor(self Identity, cache domain.CachePort, graph domain.GraphPort, network domain.NetworkPort, log logger.Logger) *Processor {
	p := &Processor{
		log:      log,
		self:     self,
		cache:    cache,
		graph:    graph,
		network:  network,
		wake:     make(chan struct{}, 1),
		handlers: make(map[string]map[domain.Phase][]domain.Handler),
	}
	p.RegisterHandler(rid.NSEdge, domain.PhaseBundle, p.negotiateEdge)
	p.RegisterHandler(rid.NSEdge, domain.PhaseNetwork, p.edgeTargets)
	return p
}

// RegisterHandler implements domain.ProcessorPort
// Handlers for the same (namespace, phase) run in registration order;
// AnyNamespace handlers run before namespace specific ones within a phase
func (p *Processor) RegisterHandler(ns string, phase domain.Phase, h domain.Handler) {
	p.hmu.Lock()
	defer p.hmu.Unlock()
	byPhase, ok := p.handlers[ns]
	if !ok {
		byPhase = make(map[domain.Phase][]domain.Handler)
		p.handlers[ns] = byPhase
	}
	byPhase[phase] = append(byPhase[phase], h)
}

// HandleBundle implements domain.ProcessorPort
func (p *Processor) HandleBundle(_ context.Context, b proto.Bundle, src domain.Source) error {
	if b.RID().IsZero() {
		return perr.InvalidArgf("processor: bundle has zero RID")
	}
	bc := b
	p.enqueue(&domain.Object{RID: bc.RID(), Bundle: &bc, Source: src})
	return nil
}

// HandleEvent implements domain.ProcessorPort
func (p *Processor) HandleEvent(_ context.Context, ev proto.Event, from rid.RID) error {
	if ev.RID.IsZero() {
		return perr.InvalidArgf("processor: event has zero RID")
	}
	switch ev.EventType {
	case proto.EventNew, proto.EventUpdate, proto.EventForget:
	default:
		return perr.InvalidArgf("processor: unknown event type %q", ev.EventType)
	}
	obj := &domain.Object{RID: ev.RID, EventType: ev.EventType, Source: domain.SourceExternal, From: from}
	if b, ok := ev.Bundle(); ok {
		obj.Bundle = &b
	}
	p.enqueue(obj)
	return nil
}

// HandleRID implements domain.ProcessorPort
func (p *Processor) HandleRID(_ context.Context, r rid.RID, from rid.RID) error {
	if r.IsZero() {
		return perr.InvalidArgf("processor: zero RID")
	}
	p.enqueue(&domain.Object{RID: r, Source: domain.SourceExternal, From: from})
	return nil
}

func (p *Processor) enqueue(obj *domain.Object) {
	p.mu.Lock()
	p.backlog = append(p.backlog, obj)
	p.mu.Unlock()
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Processor) next() (*domain.Object, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.backlog) == 0 {
		return nil, false
	}
	obj := p.backlog[0]
	p.backlog = p.backlog[1:]
	return obj, true
}

// Run processes the backlog until ctx is done, then drains it.
// Objects run on a detached context so cancellation never half-applies
// a cache transition; network calls stay bounded by the client timeout
func (p *Processor) Run(ctx context.Context) error {
	work := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			p.drainBacklog(work)
			return ctx.Err()
		case <-p.wake:
			p.drainBacklog(work)
		}
	}
}

func (p *Processor) drainBacklog(ctx context.Context) {
	for {
		obj, ok := p.next()
		if !ok {
			return
		}
		p.process(ctx, obj)
	}
}

// process runs one object through resolve, dedup, the three handler
// phases, the cache transition, and broadcast. Any step may stop the
// pipeline; nothing here panics out
func (p *Processor) process(ctx context.Context, obj *domain.Object) {
	log := p.log.With().Str("rid", obj.RID.String()).Logger()

	if obj.Bundle == nil && obj.EventType != proto.EventForget {
		if !p.resolve(ctx, obj, log) {
			return
		}
	}
	if obj.Source == domain.SourceExternal && obj.Bundle != nil {
		if err := obj.Bundle.Verify(); err != nil {
			log.Warn().Err(err).Msg("bundle failed verification, dropping")
			return
		}
	}
	if !p.dedup(ctx, obj, log) {
		return
	}

	if !p.runPhase(ctx, obj, domain.PhaseBundle, log) {
		return
	}

	switch obj.EventType {
	case proto.EventForget:
		if err := p.cache.Delete(ctx, obj.RID); err != nil {
			log.Error().Err(err).Msg("cache delete failed")
			return
		}
	default:
		if err := p.cache.Write(ctx, *obj.Bundle); err != nil {
			log.Error().Err(err).Msg("cache write failed")
			return
		}
	}

	p.defaultTargets(ctx, obj, log)
	if !p.runPhase(ctx, obj, domain.PhaseNetwork, log) {
		return
	}
	p.broadcast(ctx, obj, log)

	p.runPhase(ctx, obj, domain.PhaseFinal, log)
}

// resolve fetches the missing bundle, asking the sending peer first and
// falling back to peers that serve state for the namespace
func (p *Processor) resolve(ctx context.Context, obj *domain.Object, log logger.Logger) bool {
	var candidates []rid.RID
	if !obj.From.IsZero() {
		candidates = append(candidates, obj.From)
	}
	peers, err := p.graph.Peers(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("peer lookup failed during resolve")
	}
	ns := obj.RID.Namespace()
	for _, peer := range peers {
		if peer == obj.From {
			continue
		}
		profile, ok, err := p.graph.NodeProfile(ctx, peer)
		if err != nil || !ok {
			continue
		}
		if profile.ProvidesState(ns) {
			candidates = append(candidates, peer)
		}
	}

	for _, peer := range candidates {
		b, ok, err := p.network.FetchBundle(ctx, peer, obj.RID)
		if err != nil {
			log.Warn().Err(err).Str("peer", peer.String()).Msg("bundle fetch failed")
			continue
		}
		if !ok {
			continue
		}
		obj.Bundle = &b
		return true
	}
	log.Warn().Msg("could not resolve bundle, dropping")
	return false
}

// dedup decides the local lifecycle transition against the cache.
// Returns false when the object carries nothing new
func (p *Processor) dedup(ctx context.Context, obj *domain.Object, log logger.Logger) bool {
	cached, ok, err := p.cache.Read(ctx, obj.RID)
	if err != nil {
		log.Error().Err(err).Msg("cache read failed")
		return false
	}

	if obj.EventType == proto.EventForget {
		if !ok {
			log.Debug().Msg("forget for unknown rid, dropping")
			return false
		}
		// hand the last known version to handlers; the broadcast event
		// still carries the RID only
		obj.Bundle = &cached
		return true
	}

	if !ok {
		obj.EventType = proto.EventNew
		return true
	}
	if cached.Manifest.SHA256 == obj.Bundle.Manifest.SHA256 {
		log.Debug().Msg("contents unchanged, dropping")
		return false
	}
	if !obj.Bundle.Manifest.Timestamp.After(cached.Manifest.Timestamp) {
		log.Debug().Msg("manifest not newer than cache, dropping")
		return false
	}
	obj.EventType = proto.EventUpdate
	return true
}

// runPhase returns false when a handler stopped the pipeline
func (p *Processor) runPhase(ctx context.Context, obj *domain.Object, phase domain.Phase, log logger.Logger) bool {
	for _, h := range p.handlersFor(obj.RID.Namespace(), phase) {
		verdict, err := p.invoke(ctx, h, obj)
		switch verdict {
		case domain.VerdictSkip:
			log.Debug().AnErr("cause", err).Str("phase", string(phase)).Msg("handler skipped object")
			return false
		case domain.VerdictFatal:
			log.Error().Err(err).Str("phase", string(phase)).Msg("handler failed")
			return false
		default:
			if err != nil {
				log.Warn().Err(err).Str("phase", string(phase)).Msg("handler error, continuing")
			}
		}
	}
	return true
}

func (p *Processor) handlersFor(ns string, phase domain.Phase) []domain.Handler {
	p.hmu.RLock()
	defer p.hmu.RUnlock()
	var out []domain.Handler
	out = append(out, p.handlers[domain.AnyNamespace][phase]...)
	if ns != domain.AnyNamespace {
		out = append(out, p.handlers[ns][phase]...)
	}
	return out
}

func (p *Processor) invoke(ctx context.Context, h domain.Handler, obj *domain.Object) (v domain.Verdict, err error) {
	defer func() {
		if r := recover(); r != nil {
			v, err = domain.VerdictFatal, perr.PanicErrf("handler panic: %v", r)
		}
	}()
	return h(ctx, obj)
}

func (p *Processor) defaultTargets(ctx context.Context, obj *domain.Object, log logger.Logger) {
	subs, err := p.graph.Subscribers(ctx, obj.RID.Namespace())
	if err != nil {
		log.Warn().Err(err).Msg("subscriber lookup failed")
		return
	}
	for _, s := range subs {
		obj.AddTarget(s)
	}
}

func (p *Processor) broadcast(ctx context.Context, obj *domain.Object, log logger.Logger) {
	if len(obj.Targets) == 0 {
		return
	}
	ev := obj.Event()
	for target := range obj.Targets {
		if target == p.self.RID || target == obj.From {
			continue
		}
		if err := p.network.PushEventTo(ctx, target, ev); err != nil {
			log.Warn().Err(err).Str("target", target.String()).Msg("event push failed")
		}
	}
}

// negotiateEdge approves proposed edges naming this node as source when
// the requested namespaces fall within its event capabilities. The
// approved bundle replaces the proposal, which is never cached.
// Unsatisfiable proposals are discarded
func (p *Processor) negotiateEdge(ctx context.Context, obj *domain.Object) (domain.Verdict, error) {
	if obj.EventType == proto.EventForget || obj.Bundle == nil {
		return domain.VerdictOK, nil
	}
	var edge proto.EdgeProfile
	if err := obj.Bundle.Decode(&edge); err != nil {
		return domain.VerdictSkip, err
	}
	if edge.Status != proto.EdgeProposed || edge.Source != p.self.RID {
		return domain.VerdictOK, nil
	}

	if !p.canProvide(edge.RIDTypes) {
		p.log.Info().
			Str("edge", obj.RID.String()).
			Strs("rid_types", edge.RIDTypes).
			Msg("edge proposal unsatisfiable, discarding")
		return domain.VerdictSkip, nil
	}

	edge.Status = proto.EdgeApproved
	approved, err := proto.NewBundle(obj.RID, edge)
	if err != nil {
		return domain.VerdictFatal, err
	}
	if err := p.HandleBundle(ctx, approved, domain.SourceInternal); err != nil {
		return domain.VerdictFatal, err
	}
	return domain.VerdictSkip, nil
}

// canProvide reports whether every namespace is one this node emits.
// Every node emits its own node and edge lifecycle events
func (p *Processor) canProvide(ridTypes []string) bool {
	for _, ns := range ridTypes {
		if ns == rid.NSNode || ns == rid.NSEdge {
			continue
		}
		if !p.self.Profile.ProvidesEvent(ns) {
			return false
		}
	}
	return true
}

// edgeTargets routes edge objects to the involved counterpart so both
// ends of a negotiation see every status change
func (p *Processor) edgeTargets(_ context.Context, obj *domain.Object) (domain.Verdict, error) {
	if obj.Bundle == nil {
		return domain.VerdictOK, nil
	}
	var edge proto.EdgeProfile
	if err := obj.Bundle.Decode(&edge); err != nil {
		return domain.VerdictOK, err
	}
	for _, node := range []rid.RID{edge.Source, edge.Target} {
		if !node.IsZero() && node != p.self.RID {
			obj.AddTarget(node)
		}
	}
	return domain.VerdictOK, nil
}
