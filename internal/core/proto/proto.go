// Package proto defines the wire vocabulary of the overlay network
//
// Knowledge moves as bundles (manifest plus contents) and as events
// (a lifecycle signal about one RID, optionally carrying the bundle)
package proto

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"gitpulse/internal/core/rid"
)

// EventType is the lifecycle signal attached to an event
type EventType string

const (
	EventNew    EventType = "NEW"
	EventUpdate EventType = "UPDATE"
	EventForget EventType = "FORGET"
)

// Manifest identifies one version of a resource
type Manifest struct {
	RID       rid.RID   `json:"rid"`
	Timestamp time.Time `json:"timestamp"`
	SHA256    string    `json:"sha256_hash"`
}

// Bundle pairs a manifest with the resource contents it describes
type Bundle struct {
	Manifest Manifest        `json:"manifest"`
	Contents json.RawMessage `json:"contents"`
}

// NewBundle marshals contents and stamps a manifest with the current time
func NewBundle(r rid.RID, contents any) (Bundle, error) {
	return NewBundleAt(r, time.Now().UTC(), contents)
}

// NewBundleAt is NewBundle with an explicit manifest timestamp
func NewBundleAt(r rid.RID, ts time.Time, contents any) (Bundle, error) {
	if r.IsZero() {
		return Bundle{}, fmt.Errorf("proto: bundle for zero RID")
	}
	raw, err := json.Marshal(contents)
	if err != nil {
		return Bundle{}, fmt.Errorf("proto: marshal contents for %s: %w", r, err)
	}
	return Bundle{
		Manifest: Manifest{RID: r, Timestamp: ts.UTC(), SHA256: hashHex(raw)},
		Contents: raw,
	}, nil
}

// RID returns the identity the bundle describes
func (b Bundle) RID() rid.RID { return b.Manifest.RID }

// Decode unmarshals the contents into a typed record
func (b Bundle) Decode(into any) error {
	if len(b.Contents) == 0 {
		return fmt.Errorf("proto: bundle %s has no contents", b.Manifest.RID)
	}
	if err := json.Unmarshal(b.Contents, into); err != nil {
		return fmt.Errorf("proto: decode contents of %s: %w", b.Manifest.RID, err)
	}
	return nil
}

// Verify checks that the contents still match the manifest hash
func (b Bundle) Verify() error {
	if got := hashHex(b.Contents); got != b.Manifest.SHA256 {
		return fmt.Errorf("proto: bundle %s contents hash %s does not match manifest %s",
			b.Manifest.RID, got, b.Manifest.SHA256)
	}
	return nil
}

// Equal reports whether two bundles carry the same version of the same RID
func (b Bundle) Equal(o Bundle) bool {
	return b.Manifest.RID == o.Manifest.RID &&
		b.Manifest.SHA256 == o.Manifest.SHA256 &&
		bytes.Equal(b.Contents, o.Contents)
}

// Event is a lifecycle signal about one RID
// Manifest and contents ride along when the sender already has the bundle
type Event struct {
	RID       rid.RID         `json:"rid"`
	EventType EventType       `json:"event_type"`
	Manifest  *Manifest       `json:"manifest,omitempty"`
	Contents  json.RawMessage `json:"contents,omitempty"`
}

// EventFromBundle wraps a bundle as an event of the given type
func EventFromBundle(t EventType, b Bundle) Event {
	m := b.Manifest
	return Event{RID: b.Manifest.RID, EventType: t, Manifest: &m, Contents: b.Contents}
}

// Bundle extracts the carried bundle when the event has one
func (e Event) Bundle() (Bundle, bool) {
	if e.Manifest == nil || len(e.Contents) == 0 {
		return Bundle{}, false
	}
	return Bundle{Manifest: *e.Manifest, Contents: e.Contents}, true
}

func hashHex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
