package proto

import "gitpulse/internal/core/rid"

// Protocol endpoints, mounted under Prefix
// A node's advertised base URL already includes the prefix
const (
	Prefix = "/koi-net"

	BroadcastEventsPath = "/events/broadcast"
	PollEventsPath      = "/events/poll"
	FetchRidsPath       = "/rids/fetch"
	FetchManifestsPath  = "/manifests/fetch"
	FetchBundlesPath    = "/bundles/fetch"
)

// EventsPayload carries a batch of events, both as a webhook push body
// and as the poll response
type EventsPayload struct {
	Events []Event `json:"events"`
}

// PollEvents asks a peer to drain the poll queue held for the caller
type PollEvents struct {
	RID   rid.RID `json:"rid" validate:"required"`
	Limit int     `json:"limit,omitempty" validate:"gte=0"`
}

// FetchRids asks for the identities a peer holds, optionally filtered
// by namespace
type FetchRids struct {
	RIDTypes []string `json:"rid_types,omitempty"`
}

// FetchManifests asks for manifests by namespace or explicit identity
type FetchManifests struct {
	RIDTypes []string  `json:"rid_types,omitempty"`
	RIDs     []rid.RID `json:"rids,omitempty"`
}

// FetchBundles asks for full bundles by identity
type FetchBundles struct {
	RIDs []rid.RID `json:"rids" validate:"required,min=1"`
}

// RidsPayload answers FetchRids
type RidsPayload struct {
	RIDs []rid.RID `json:"rids"`
}

// ManifestsPayload answers FetchManifests
type ManifestsPayload struct {
	Manifests []Manifest `json:"manifests"`
	NotFound  []rid.RID  `json:"not_found,omitempty"`
}

// BundlesPayload answers FetchBundles
type BundlesPayload struct {
	Bundles  []Bundle  `json:"bundles"`
	NotFound []rid.RID `json:"not_found,omitempty"`
}
