// Package domain defines the live feed contracts
package domain

import (
	"context"

	"gitpulse/internal/adapters/github"
	cursordom "gitpulse/internal/services/cursor/domain"
	nodedom "gitpulse/internal/services/node/domain"
)

// Ports carries the cross module dependencies the live feed needs
type Ports struct {
	Cursors   cursordom.StorePort   // required
	Processor nodedom.ProcessorPort // required
}

// PushResult reports what one push notification amounted to
type PushResult struct {
	Repo      string `json:"repo"`
	Monitored bool   `json:"monitored"`
	Submitted int    `json:"submitted"`
	Skipped   int    `json:"skipped"`
	Tip       string `json:"tip,omitempty"`
	Advanced  bool   `json:"advanced"`
}

// FeedPort is the surface the webhook handler drives
type FeedPort interface {
	// VerifySignature checks the provider signature over the raw body
	VerifySignature(body []byte, signature string) error

	// ProcessPush reconciles one push notification against the repo cursor
	ProcessPush(ctx context.Context, push github.PushEvent) (PushResult, error)
}
