package proto

import (
	"slices"

	"github.com/google/uuid"

	"gitpulse/internal/core/rid"
)

// NodeType describes how a node participates in the overlay
type NodeType string

const (
	// NodeFull serves state and receives webhooks
	NodeFull NodeType = "FULL"
	// NodePartial only polls and cannot be dialed
	NodePartial NodeType = "PARTIAL"
)

// Provides lists the RID namespaces a node can emit events for and
// serve state for
type Provides struct {
	Event []string `json:"event"`
	State []string `json:"state"`
}

// NodeProfile is the self description a node publishes as its bundle contents
type NodeProfile struct {
	BaseURL  string   `json:"base_url"`
	NodeType NodeType `json:"node_type"`
	Provides Provides `json:"provides"`
}

// ProvidesEvent reports whether the node emits events for a namespace
func (p NodeProfile) ProvidesEvent(ns string) bool {
	return slices.Contains(p.Provides.Event, ns)
}

// ProvidesState reports whether the node serves state for a namespace
func (p NodeProfile) ProvidesState(ns string) bool {
	return slices.Contains(p.Provides.State, ns)
}

// Comm is the delivery mode of an edge
type Comm string

const (
	// CommWebhook pushes events to the target as they happen
	CommWebhook Comm = "webhook"
	// CommPoll lets the target drain a queue at its own pace
	CommPoll Comm = "poll"
)

// EdgeStatus tracks edge negotiation
type EdgeStatus string

const (
	EdgeProposed EdgeStatus = "proposed"
	EdgeApproved EdgeStatus = "approved"
)

// EdgeProfile is a directed subscription from source to target
// Only events whose RID namespace is listed in RIDTypes flow across it
type EdgeProfile struct {
	Source   rid.RID    `json:"source"`
	Target   rid.RID    `json:"target"`
	Comm     Comm       `json:"comm"`
	RIDTypes []string   `json:"rid_types"`
	Status   EdgeStatus `json:"status"`
}

// Covers reports whether the edge carries events for a namespace
func (e EdgeProfile) Covers(ns string) bool {
	return slices.Contains(e.RIDTypes, ns)
}

// ProposeEdge mints a fresh edge identity and its proposed profile bundle
func ProposeEdge(source, target rid.RID, comm Comm, ridTypes []string) (rid.RID, Bundle, error) {
	id := rid.Edge(uuid.New())
	b, err := NewBundle(id, EdgeProfile{
		Source:   source,
		Target:   target,
		Comm:     comm,
		RIDTypes: ridTypes,
		Status:   EdgeProposed,
	})
	return id, b, err
}
