// Package domain holds the sensor ops DTOs and ports
package domain

// CursorsResponse is the reconciliation snapshot payload
type CursorsResponse struct {
	// Cursors maps owner/repo to the last reconciled commit sha
	Cursors map[string]string `json:"cursors"`
	Count   int               `json:"count" example:"2"`
}

// PeerSummary describes one overlay peer from the local graph
type PeerSummary struct {
	RID      string   `json:"rid"                        example:"orn:koi-net.node:hub+8b2c7a1e-93d4-4f7a-9f2a-6f0f0b6f8f10"`
	NodeType string   `json:"node_type,omitempty"        example:"FULL"`
	BaseURL  string   `json:"base_url,omitempty"         example:"http://hub:8000/koi-net"`
	Events   []string `json:"event_namespaces,omitempty" example:"koi-net.node"`
	States   []string `json:"state_namespaces,omitempty" example:"koi-net.node"`
}

// PeersResponse lists the peers the node currently knows
type PeersResponse struct {
	Peers []PeerSummary `json:"peers"`
	Count int           `json:"count" example:"1"`
}

// BackfillStartedResponse acknowledges an asynchronous run
type BackfillStartedResponse struct {
	Started bool `json:"started" example:"true"`
}
