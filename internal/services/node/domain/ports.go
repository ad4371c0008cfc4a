package domain

import (
	"context"

	"gitpulse/internal/core/proto"
	"gitpulse/internal/core/rid"
)

// ProcessorPort accepts knowledge objects for the pipeline and takes
// handler registrations. Handle calls enqueue and return; the pipeline
// runs on the processor's own goroutine
type ProcessorPort interface {
	// HandleBundle enqueues a full bundle
	HandleBundle(ctx context.Context, b proto.Bundle, src Source) error

	// HandleEvent enqueues a lifecycle event received from a peer
	HandleEvent(ctx context.Context, ev proto.Event, from rid.RID) error

	// HandleRID enqueues a fetch-details request: the bundle is retrieved
	// from the given peer before the pipeline runs
	HandleRID(ctx context.Context, r rid.RID, from rid.RID) error

	// RegisterHandler attaches a handler to (namespace, phase).
	// Namespace AnyNamespace matches every object. Handlers for the same
	// key run in registration order
	RegisterHandler(ns string, phase Phase, h Handler)
}

// RunnerPort drives the node's background machinery: the pipeline
// worker, the webhook flusher, and the first-contact bootstrap
type RunnerPort interface {
	Run(ctx context.Context) error
}

// CachePort is the durable bundle store
type CachePort interface {
	Write(ctx context.Context, b proto.Bundle) error
	Read(ctx context.Context, r rid.RID) (proto.Bundle, bool, error)
	Exists(ctx context.Context, r rid.RID) (bool, error)
	Delete(ctx context.Context, r rid.RID) error

	// List returns every cached RID in a namespace
	List(ctx context.Context, ns string) ([]rid.RID, error)
}

// GraphPort is a read view over the cached node and edge bundles
type GraphPort interface {
	// Self is this node's identity
	Self() rid.RID

	// NodeProfile decodes the cached profile of a node, ok=false when unknown
	NodeProfile(ctx context.Context, node rid.RID) (proto.NodeProfile, bool, error)

	// Peers lists every known node except self
	Peers(ctx context.Context) ([]rid.RID, error)

	// Edges lists every cached edge profile
	Edges(ctx context.Context) ([]proto.EdgeProfile, error)

	// Subscribers lists targets of approved edges from self covering ns
	Subscribers(ctx context.Context, ns string) ([]rid.RID, error)
}

// NetworkPort moves events and state between this node and its peers
type NetworkPort interface {
	// PushEventTo queues an event for a peer, choosing webhook or poll
	// delivery from the peer's profile
	PushEventTo(ctx context.Context, node rid.RID, ev proto.Event) error

	// PollFor drains up to limit queued events for a polling peer
	PollFor(node rid.RID, limit int) []proto.Event

	// FetchRids asks a peer for its inventory of the given namespaces
	FetchRids(ctx context.Context, node rid.RID, ridTypes []string) ([]rid.RID, error)

	// FetchBundle retrieves one bundle from a peer, ok=false when the peer
	// does not have it
	FetchBundle(ctx context.Context, node rid.RID, r rid.RID) (proto.Bundle, bool, error)
}
