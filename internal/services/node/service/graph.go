package service

import (
	"context"

	"gitpulse/internal/core/proto"
	"gitpulse/internal/core/rid"
	perr "gitpulse/internal/platform/errors"
	"gitpulse/internal/services/node/domain"
)

// Graph is a read view over the cached node and edge bundles.
// It holds no state of its own; the cache is the single source of truth
type Graph struct {
	self  rid.RID
	cache domain.CachePort
}

// NewGraph builds the graph view for the given identity
func NewGraph(self rid.RID, cache domain.CachePort) *Graph {
	return &Graph{self: self, cache: cache}
}

// Self implements domain.GraphPort
func (g *Graph) Self() rid.RID { return g.self }

// NodeProfile implements domain.GraphPort
func (g *Graph) NodeProfile(ctx context.Context, node rid.RID) (proto.NodeProfile, bool, error) {
	b, ok, err := g.cache.Read(ctx, node)
	if err != nil || !ok {
		return proto.NodeProfile{}, false, err
	}
	var p proto.NodeProfile
	if err := b.Decode(&p); err != nil {
		return proto.NodeProfile{}, false, perr.Wrapf(err, perr.ErrorCodeJSON, "graph: profile of %s", node)
	}
	return p, true, nil
}

// Peers implements domain.GraphPort
func (g *Graph) Peers(ctx context.Context) ([]rid.RID, error) {
	nodes, err := g.cache.List(ctx, rid.NSNode)
	if err != nil {
		return nil, err
	}
	peers := nodes[:0]
	for _, n := range nodes {
		if n != g.self {
			peers = append(peers, n)
		}
	}
	return peers, nil
}

// Edges implements domain.GraphPort
func (g *Graph) Edges(ctx context.Context) ([]proto.EdgeProfile, error) {
	ids, err := g.cache.List(ctx, rid.NSEdge)
	if err != nil {
		return nil, err
	}
	out := make([]proto.EdgeProfile, 0, len(ids))
	for _, id := range ids {
		b, ok, err := g.cache.Read(ctx, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		var e proto.EdgeProfile
		if err := b.Decode(&e); err != nil {
			return nil, perr.Wrapf(err, perr.ErrorCodeJSON, "graph: edge %s", id)
		}
		out = append(out, e)
	}
	return out, nil
}

// Subscribers implements domain.GraphPort
func (g *Graph) Subscribers(ctx context.Context, ns string) ([]rid.RID, error) {
	edges, err := g.Edges(ctx)
	if err != nil {
		return nil, err
	}
	var subs []rid.RID
	seen := make(map[rid.RID]struct{})
	for _, e := range edges {
		if e.Status != proto.EdgeApproved || e.Source != g.self || !e.Covers(ns) {
			continue
		}
		if _, dup := seen[e.Target]; dup {
			continue
		}
		seen[e.Target] = struct{}{}
		subs = append(subs, e.Target)
	}
	return subs, nil
}
