// Package domain defines the knowledge pipeline contracts for the node service
package domain

import (
	"context"

	"gitpulse/internal/core/proto"
	"gitpulse/internal/core/rid"
)

// Source tells the pipeline where a knowledge object entered
type Source string

const (
	// SourceInternal marks objects produced by this process
	SourceInternal Source = "internal"
	// SourceExternal marks objects received from a peer
	SourceExternal Source = "external"
)

// Phase is a pipeline stage handlers attach to
// The dispatcher runs bundle, then network, then final
type Phase string

const (
	PhaseBundle  Phase = "bundle"
	PhaseNetwork Phase = "network"
	PhaseFinal   Phase = "final"
)

// Verdict is the typed outcome of one handler invocation
type Verdict int

const (
	// VerdictOK continues the pipeline
	VerdictOK Verdict = iota
	// VerdictSkip stops the pipeline for this object quietly
	VerdictSkip
	// VerdictFatal stops the pipeline and logs at error level
	VerdictFatal
)

// AnyNamespace registers a handler for every RID namespace
const AnyNamespace = ""

// Object is one knowledge unit moving through the pipeline.
// EventType is the locally decided lifecycle transition: empty on entry,
// always set by the time phase handlers run.
type Object struct {
	RID       rid.RID
	EventType proto.EventType
	Bundle    *proto.Bundle
	Source    Source

	// From is the peer the object arrived from, zero for internal objects.
	// The resolve step asks it first when the bundle is missing.
	From rid.RID

	// Targets are the broadcast destinations, populated before the network
	// phase; network handlers may add or remove entries
	Targets map[rid.RID]struct{}
}

// AddTarget marks a node for broadcast
func (o *Object) AddTarget(n rid.RID) {
	if o.Targets == nil {
		o.Targets = make(map[rid.RID]struct{})
	}
	o.Targets[n] = struct{}{}
}

// DropTarget removes a node from the broadcast set
func (o *Object) DropTarget(n rid.RID) { delete(o.Targets, n) }

// Event renders the lifecycle event this object broadcasts.
// FORGET events carry the RID only
func (o *Object) Event() proto.Event {
	if o.EventType != proto.EventForget && o.Bundle != nil {
		return proto.EventFromBundle(o.EventType, *o.Bundle)
	}
	return proto.Event{RID: o.RID, EventType: o.EventType}
}

// Handler processes an object during one phase
type Handler func(ctx context.Context, obj *Object) (Verdict, error)
