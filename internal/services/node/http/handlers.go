// Package http serves the overlay protocol endpoints
package http

import (
	stdhttp "net/http"

	"gitpulse/internal/core/proto"
	"gitpulse/internal/core/rid"
	"gitpulse/internal/modkit/httpkit"
	"gitpulse/internal/platform/logger"
	"gitpulse/internal/services/node/domain"
	svc "gitpulse/internal/services/node/service"
)

// Handlers serves the protocol surface over the node's ports
type Handlers struct {
	Log   logger.Logger
	Self  svc.Identity
	Proc  domain.ProcessorPort
	Net   domain.NetworkPort
	Cache domain.CachePort
}

// Register mounts the protocol endpoints on the given router
func Register(r httpkit.Router, h *Handlers) {
	httpkit.PostJSON[proto.EventsPayload](r, proto.BroadcastEventsPath, h.broadcast)
	httpkit.PostJSON[proto.PollEvents](r, proto.PollEventsPath, h.poll)
	httpkit.PostJSON[proto.FetchRids](r, proto.FetchRidsPath, h.fetchRids)
	httpkit.PostJSON[proto.FetchManifests](r, proto.FetchManifestsPath, h.fetchManifests)
	httpkit.PostJSON[proto.FetchBundles](r, proto.FetchBundlesPath, h.fetchBundles)
}

// BroadcastAck reports how many events were queued for processing
type BroadcastAck struct {
	Accepted int `json:"accepted"`
}

// swagger:route POST /koi-net/events/broadcast KoiNet broadcastEvents
// @Summary Accept a batch of knowledge events from a peer
// @Tags KoiNet
// @Accept json
// @Produce json
// @Param payload body proto.EventsPayload true "Events"
// @Success 200 {object} BroadcastAck "ok"
// @Router /koi-net/events/broadcast [post]
func (h *Handlers) broadcast(r *stdhttp.Request, in proto.EventsPayload) (any, error) {
	accepted := 0
	for _, ev := range in.Events {
		if err := h.Proc.HandleEvent(r.Context(), ev, rid.RID{}); err != nil {
			h.Log.Warn().Err(err).Str("rid", ev.RID.String()).Msg("rejected broadcast event")
			continue
		}
		accepted++
	}
	return BroadcastAck{Accepted: accepted}, nil
}

// swagger:route POST /koi-net/events/poll KoiNet pollEvents
// @Summary Drain the poll queue held for the calling node
// @Tags KoiNet
// @Accept json
// @Produce json
// @Param payload body proto.PollEvents true "Caller identity and limit"
// @Success 200 {object} proto.EventsPayload "ok"
// @Router /koi-net/events/poll [post]
func (h *Handlers) poll(r *stdhttp.Request, in proto.PollEvents) (any, error) {
	events := h.Net.PollFor(in.RID, in.Limit)
	if events == nil {
		events = []proto.Event{}
	}
	return proto.EventsPayload{Events: events}, nil
}

// swagger:route POST /koi-net/rids/fetch KoiNet fetchRids
// @Summary List cached identities by namespace
// @Tags KoiNet
// @Accept json
// @Produce json
// @Param payload body proto.FetchRids true "Namespace filter"
// @Success 200 {object} proto.RidsPayload "ok"
// @Router /koi-net/rids/fetch [post]
func (h *Handlers) fetchRids(r *stdhttp.Request, in proto.FetchRids) (any, error) {
	rids := []rid.RID{}
	for _, ns := range h.servable(in.RIDTypes) {
		ids, err := h.Cache.List(r.Context(), ns)
		if err != nil {
			return nil, err
		}
		rids = append(rids, ids...)
	}
	return proto.RidsPayload{RIDs: rids}, nil
}

// swagger:route POST /koi-net/manifests/fetch KoiNet fetchManifests
// @Summary Fetch manifests by identity or namespace
// @Tags KoiNet
// @Accept json
// @Produce json
// @Param payload body proto.FetchManifests true "Query"
// @Success 200 {object} proto.ManifestsPayload "ok"
// @Router /koi-net/manifests/fetch [post]
func (h *Handlers) fetchManifests(r *stdhttp.Request, in proto.FetchManifests) (any, error) {
	ids := in.RIDs
	if len(ids) == 0 {
		for _, ns := range h.servable(in.RIDTypes) {
			listed, err := h.Cache.List(r.Context(), ns)
			if err != nil {
				return nil, err
			}
			ids = append(ids, listed...)
		}
	}

	out := proto.ManifestsPayload{Manifests: []proto.Manifest{}}
	for _, id := range ids {
		b, ok, err := h.Cache.Read(r.Context(), id)
		if err != nil {
			return nil, err
		}
		if !ok {
			out.NotFound = append(out.NotFound, id)
			continue
		}
		out.Manifests = append(out.Manifests, b.Manifest)
	}
	return out, nil
}

// swagger:route POST /koi-net/bundles/fetch KoiNet fetchBundles
// @Summary Fetch full bundles by identity
// @Tags KoiNet
// @Accept json
// @Produce json
// @Param payload body proto.FetchBundles true "Identities"
// @Success 200 {object} proto.BundlesPayload "ok"
// @Router /koi-net/bundles/fetch [post]
func (h *Handlers) fetchBundles(r *stdhttp.Request, in proto.FetchBundles) (any, error) {
	out := proto.BundlesPayload{Bundles: []proto.Bundle{}}
	for _, id := range in.RIDs {
		b, ok, err := h.Cache.Read(r.Context(), id)
		if err != nil {
			return nil, err
		}
		if !ok {
			out.NotFound = append(out.NotFound, id)
			continue
		}
		out.Bundles = append(out.Bundles, b)
	}
	return out, nil
}

// servable intersects the requested namespaces with what this node serves:
// its declared state namespaces plus the network native node and edge types
func (h *Handlers) servable(requested []string) []string {
	allowed := map[string]struct{}{
		rid.NSNode: {},
		rid.NSEdge: {},
	}
	for _, ns := range h.Self.Profile.Provides.State {
		allowed[ns] = struct{}{}
	}

	if len(requested) == 0 {
		out := make([]string, 0, len(allowed))
		for ns := range allowed {
			out = append(out, ns)
		}
		return out
	}
	var out []string
	for _, ns := range requested {
		if _, ok := allowed[ns]; ok {
			out = append(out, ns)
		}
	}
	return out
}
