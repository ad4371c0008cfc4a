package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"gitpulse/internal/core/proto"
	"gitpulse/internal/core/rid"
	"gitpulse/internal/services/node/domain"
	"gitpulse/internal/services/node/repo"
)

var _ domain.ProcessorPort = (*Processor)(nil)

type push struct {
	node rid.RID
	ev   proto.Event
}

type fakeNetwork struct {
	mu      sync.Mutex
	pushes  []push
	bundles map[string]proto.Bundle
	rids    map[string][]rid.RID
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{bundles: make(map[string]proto.Bundle), rids: make(map[string][]rid.RID)}
}

func (f *fakeNetwork) serve(node rid.RID, b proto.Bundle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bundles[node.String()+"|"+b.RID().String()] = b
}

func (f *fakeNetwork) pushed() []push {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]push, len(f.pushes))
	copy(out, f.pushes)
	return out
}

func (f *fakeNetwork) PushEventTo(_ context.Context, node rid.RID, ev proto.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushes = append(f.pushes, push{node: node, ev: ev})
	return nil
}

func (f *fakeNetwork) PollFor(rid.RID, int) []proto.Event { return nil }

func (f *fakeNetwork) FetchRids(_ context.Context, node rid.RID, _ []string) ([]rid.RID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rids[node.String()], nil
}

func (f *fakeNetwork) FetchBundle(_ context.Context, node rid.RID, r rid.RID) (proto.Bundle, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bundles[node.String()+"|"+r.String()]
	return b, ok, nil
}

func newTestProcessor(t *testing.T, provides proto.Provides) (*Processor, *repo.Cache, *fakeNetwork, Identity) {
	t.Helper()
	cache := testCache(t)
	self := Identity{
		RID: mustNode(t, "sensor"),
		Profile: proto.NodeProfile{
			BaseURL:  "http://sensor:8000/koi-net",
			NodeType: proto.NodeFull,
			Provides: provides,
		},
	}
	net := newFakeNetwork()
	p := NewProcessor(self, cache, NewGraph(self.RID, cache), net, zerolog.Nop())
	return p, cache, net, self
}

func commitBundleAt(t *testing.T, sha, payload string, ts time.Time) proto.Bundle {
	t.Helper()
	r, err := rid.Commit("acme", "widgets", sha)
	if err != nil {
		t.Fatalf("commit rid: %v", err)
	}
	b, err := proto.NewBundleAt(r, ts, map[string]string{"sha": sha, "message": payload})
	if err != nil {
		t.Fatalf("bundle: %v", err)
	}
	return b
}

func subscribeTo(t *testing.T, cache *repo.Cache, source, target rid.RID, ns string) {
	t.Helper()
	cacheEdge(t, cache, proto.EdgeProfile{
		Source: source, Target: target, Comm: proto.CommWebhook,
		RIDTypes: []string{ns}, Status: proto.EdgeApproved,
	})
}

func TestProcessCachesAndBroadcastsNewBundle(t *testing.T) {
	p, cache, net, self := newTestProcessor(t, proto.Provides{Event: []string{rid.NSCommit}})
	ctx := context.Background()

	hub := mustNode(t, "hub")
	cacheNode(t, cache, hub, proto.NodeProfile{BaseURL: "http://hub:9000/koi-net", NodeType: proto.NodeFull})
	subscribeTo(t, cache, self.RID, hub, rid.NSCommit)

	b := commitBundleAt(t, "a1b2c3d4", "add thing", time.Now())
	if err := p.HandleBundle(ctx, b, domain.SourceInternal); err != nil {
		t.Fatalf("handle: %v", err)
	}
	p.drainBacklog(ctx)

	if ok, _ := cache.Exists(ctx, b.RID()); !ok {
		t.Fatal("bundle not cached")
	}
	pushes := net.pushed()
	if len(pushes) != 1 {
		t.Fatalf("pushes = %+v", pushes)
	}
	if pushes[0].node != hub {
		t.Fatalf("pushed to %s", pushes[0].node)
	}
	if pushes[0].ev.EventType != proto.EventNew || pushes[0].ev.Manifest.SHA256 != b.Manifest.SHA256 {
		t.Fatalf("event = %+v", pushes[0].ev)
	}
}

func TestProcessDedupByHashAndTimestamp(t *testing.T) {
	p, cache, net, self := newTestProcessor(t, proto.Provides{Event: []string{rid.NSCommit}})
	ctx := context.Background()

	hub := mustNode(t, "hub")
	cacheNode(t, cache, hub, proto.NodeProfile{BaseURL: "http://hub:9000/koi-net", NodeType: proto.NodeFull})
	subscribeTo(t, cache, self.RID, hub, rid.NSCommit)

	base := time.Now()
	b := commitBundleAt(t, "a1b2c3d4", "v1", base)
	_ = p.HandleBundle(ctx, b, domain.SourceInternal)
	p.drainBacklog(ctx)

	// same contents again: dropped even with a newer timestamp
	again := commitBundleAt(t, "a1b2c3d4", "v1", base.Add(time.Hour))
	_ = p.HandleBundle(ctx, again, domain.SourceInternal)
	p.drainBacklog(ctx)
	if got := net.pushed(); len(got) != 1 {
		t.Fatalf("unchanged contents rebroadcast: %+v", got)
	}

	// different contents but older manifest: dropped
	older := commitBundleAt(t, "a1b2c3d4", "v0", base.Add(-time.Hour))
	_ = p.HandleBundle(ctx, older, domain.SourceInternal)
	p.drainBacklog(ctx)
	if got := net.pushed(); len(got) != 1 {
		t.Fatalf("stale manifest rebroadcast: %+v", got)
	}
	cached, _, _ := cache.Read(ctx, b.RID())
	if cached.Manifest.SHA256 != b.Manifest.SHA256 {
		t.Fatal("stale manifest replaced the cached version")
	}

	// newer and different: UPDATE
	newer := commitBundleAt(t, "a1b2c3d4", "v2", base.Add(time.Hour))
	_ = p.HandleBundle(ctx, newer, domain.SourceInternal)
	p.drainBacklog(ctx)
	pushes := net.pushed()
	if len(pushes) != 2 || pushes[1].ev.EventType != proto.EventUpdate {
		t.Fatalf("pushes = %+v", pushes)
	}
}

func TestProcessForget(t *testing.T) {
	p, cache, net, self := newTestProcessor(t, proto.Provides{Event: []string{rid.NSCommit}})
	ctx := context.Background()

	hub := mustNode(t, "hub")
	cacheNode(t, cache, hub, proto.NodeProfile{BaseURL: "http://hub:9000/koi-net", NodeType: proto.NodeFull})
	subscribeTo(t, cache, self.RID, hub, rid.NSCommit)

	b := commitBundleAt(t, "a1b2c3d4", "here today", time.Now())
	_ = p.HandleBundle(ctx, b, domain.SourceInternal)
	p.drainBacklog(ctx)

	if err := p.HandleEvent(ctx, proto.Event{RID: b.RID(), EventType: proto.EventForget}, rid.RID{}); err != nil {
		t.Fatalf("forget: %v", err)
	}
	p.drainBacklog(ctx)

	if ok, _ := cache.Exists(ctx, b.RID()); ok {
		t.Fatal("bundle survived forget")
	}
	pushes := net.pushed()
	if len(pushes) != 2 {
		t.Fatalf("pushes = %+v", pushes)
	}
	last := pushes[1].ev
	if last.EventType != proto.EventForget || last.Manifest != nil || len(last.Contents) != 0 {
		t.Fatalf("forget event = %+v", last)
	}

	// forgetting something never cached goes nowhere
	ghost := commitBundleAt(t, "deadbee1", "gone", time.Now())
	_ = p.HandleEvent(ctx, proto.Event{RID: ghost.RID(), EventType: proto.EventForget}, rid.RID{})
	p.drainBacklog(ctx)
	if got := net.pushed(); len(got) != 2 {
		t.Fatalf("unknown forget broadcast: %+v", got)
	}
}

func TestEdgeNegotiationApprovesOwnProposal(t *testing.T) {
	p, cache, net, self := newTestProcessor(t, proto.Provides{Event: []string{rid.NSCommit}})
	ctx := context.Background()

	hub := mustNode(t, "hub")
	cacheNode(t, cache, hub, proto.NodeProfile{BaseURL: "http://hub:9000/koi-net", NodeType: proto.NodeFull})

	edgeID, proposal, err := proto.ProposeEdge(self.RID, hub, proto.CommWebhook, []string{rid.NSCommit})
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	_ = p.HandleBundle(ctx, proposal, domain.SourceInternal)
	p.drainBacklog(ctx)

	b, ok, err := cache.Read(ctx, edgeID)
	if err != nil || !ok {
		t.Fatalf("edge not cached: ok=%v err=%v", ok, err)
	}
	var edge proto.EdgeProfile
	if err := b.Decode(&edge); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if edge.Status != proto.EdgeApproved {
		t.Fatalf("edge status = %s", edge.Status)
	}

	pushes := net.pushed()
	if len(pushes) != 1 || pushes[0].node != hub {
		t.Fatalf("pushes = %+v", pushes)
	}
	var pushedEdge proto.EdgeProfile
	carried, ok := pushes[0].ev.Bundle()
	if !ok {
		t.Fatalf("event has no bundle: %+v", pushes[0].ev)
	}
	if err := carried.Decode(&pushedEdge); err != nil {
		t.Fatalf("decode pushed: %v", err)
	}
	if pushedEdge.Status != proto.EdgeApproved {
		t.Fatalf("pushed status = %s", pushedEdge.Status)
	}
}

func TestEdgeNegotiationDiscardsUnsatisfiable(t *testing.T) {
	p, cache, net, self := newTestProcessor(t, proto.Provides{Event: []string{rid.NSNode}})
	ctx := context.Background()

	hub := mustNode(t, "hub")
	cacheNode(t, cache, hub, proto.NodeProfile{BaseURL: "http://hub:9000/koi-net", NodeType: proto.NodeFull})

	edgeID, proposal, err := proto.ProposeEdge(self.RID, hub, proto.CommWebhook, []string{rid.NSCommit})
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	_ = p.HandleBundle(ctx, proposal, domain.SourceInternal)
	p.drainBacklog(ctx)

	if ok, _ := cache.Exists(ctx, edgeID); ok {
		t.Fatal("unsatisfiable proposal was cached")
	}
	if got := net.pushed(); len(got) != 0 {
		t.Fatalf("unsatisfiable proposal spread: %+v", got)
	}
}

func TestForeignProposalCachedAndRoutedToCounterpart(t *testing.T) {
	p, cache, net, self := newTestProcessor(t, proto.Provides{Event: []string{rid.NSCommit}})
	ctx := context.Background()

	hub := mustNode(t, "hub")
	cacheNode(t, cache, hub, proto.NodeProfile{BaseURL: "http://hub:9000/koi-net", NodeType: proto.NodeFull})

	// discovery proposes hub -> self; the hub has to approve it
	edgeID, proposal, err := proto.ProposeEdge(hub, self.RID, proto.CommWebhook, []string{rid.NSNode})
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	_ = p.HandleBundle(ctx, proposal, domain.SourceInternal)
	p.drainBacklog(ctx)

	b, ok, _ := cache.Read(ctx, edgeID)
	if !ok {
		t.Fatal("foreign proposal not cached")
	}
	var edge proto.EdgeProfile
	_ = b.Decode(&edge)
	if edge.Status != proto.EdgeProposed {
		t.Fatalf("status = %s", edge.Status)
	}

	pushes := net.pushed()
	if len(pushes) != 1 || pushes[0].node != hub {
		t.Fatalf("pushes = %+v", pushes)
	}
}

func TestPhaseOrderAndAnyNamespace(t *testing.T) {
	p, _, _, _ := newTestProcessor(t, proto.Provides{Event: []string{rid.NSCommit}})
	ctx := context.Background()

	var order []string
	record := func(tag string) domain.Handler {
		return func(context.Context, *domain.Object) (domain.Verdict, error) {
			order = append(order, tag)
			return domain.VerdictOK, nil
		}
	}
	p.RegisterHandler(domain.AnyNamespace, domain.PhaseBundle, record("any-bundle"))
	p.RegisterHandler(rid.NSCommit, domain.PhaseBundle, record("ns-bundle"))
	p.RegisterHandler(domain.AnyNamespace, domain.PhaseNetwork, record("any-network"))
	p.RegisterHandler(rid.NSCommit, domain.PhaseNetwork, record("ns-network"))
	p.RegisterHandler(domain.AnyNamespace, domain.PhaseFinal, record("any-final"))
	p.RegisterHandler(rid.NSCommit, domain.PhaseFinal, record("ns-final"))

	_ = p.HandleBundle(ctx, commitBundleAt(t, "a1b2c3d4", "m", time.Now()), domain.SourceInternal)
	p.drainBacklog(ctx)

	want := []string{"any-bundle", "ns-bundle", "any-network", "ns-network", "any-final", "ns-final"}
	if len(order) != len(want) {
		t.Fatalf("order = %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestSkipStopsPipeline(t *testing.T) {
	p, cache, net, _ := newTestProcessor(t, proto.Provides{Event: []string{rid.NSCommit}})
	ctx := context.Background()

	ranLater := false
	p.RegisterHandler(rid.NSCommit, domain.PhaseBundle, func(context.Context, *domain.Object) (domain.Verdict, error) {
		return domain.VerdictSkip, nil
	})
	p.RegisterHandler(rid.NSCommit, domain.PhaseFinal, func(context.Context, *domain.Object) (domain.Verdict, error) {
		ranLater = true
		return domain.VerdictOK, nil
	})

	b := commitBundleAt(t, "a1b2c3d4", "m", time.Now())
	_ = p.HandleBundle(ctx, b, domain.SourceInternal)
	p.drainBacklog(ctx)

	if ok, _ := cache.Exists(ctx, b.RID()); ok {
		t.Fatal("skipped object was cached")
	}
	if ranLater {
		t.Fatal("final phase ran after skip")
	}
	if got := net.pushed(); len(got) != 0 {
		t.Fatalf("skipped object broadcast: %+v", got)
	}
}

func TestHandlerPanicIsContained(t *testing.T) {
	p, cache, _, _ := newTestProcessor(t, proto.Provides{Event: []string{rid.NSCommit}})
	ctx := context.Background()

	ranLater := false
	p.RegisterHandler(rid.NSCommit, domain.PhaseBundle, func(context.Context, *domain.Object) (domain.Verdict, error) {
		panic("kaboom")
	})
	p.RegisterHandler(rid.NSCommit, domain.PhaseFinal, func(context.Context, *domain.Object) (domain.Verdict, error) {
		ranLater = true
		return domain.VerdictOK, nil
	})

	b := commitBundleAt(t, "a1b2c3d4", "m", time.Now())
	_ = p.HandleBundle(ctx, b, domain.SourceInternal)
	p.drainBacklog(ctx)

	if ok, _ := cache.Exists(ctx, b.RID()); ok {
		t.Fatal("object cached after fatal panic")
	}
	if ranLater {
		t.Fatal("pipeline continued past a panicking handler")
	}
}

func TestResolveFetchesMissingBundle(t *testing.T) {
	p, cache, net, _ := newTestProcessor(t, proto.Provides{Event: []string{rid.NSCommit}})
	ctx := context.Background()

	hub := mustNode(t, "hub")
	cacheNode(t, cache, hub, proto.NodeProfile{BaseURL: "http://hub:9000/koi-net", NodeType: proto.NodeFull})

	b := commitBundleAt(t, "a1b2c3d4", "remote", time.Now())
	net.serve(hub, b)

	if err := p.HandleRID(ctx, b.RID(), hub); err != nil {
		t.Fatalf("handle rid: %v", err)
	}
	p.drainBacklog(ctx)
	if ok, _ := cache.Exists(ctx, b.RID()); !ok {
		t.Fatal("resolved bundle not cached")
	}

	// manifest-only event resolves the same way
	b2 := commitBundleAt(t, "b2c3d4e5", "remote too", time.Now())
	net.serve(hub, b2)
	m := b2.Manifest
	_ = p.HandleEvent(ctx, proto.Event{RID: b2.RID(), EventType: proto.EventNew, Manifest: &m}, hub)
	p.drainBacklog(ctx)
	if ok, _ := cache.Exists(ctx, b2.RID()); !ok {
		t.Fatal("manifest-only event not resolved")
	}
}

func TestResolveFallsBackToStateProviders(t *testing.T) {
	p, cache, net, _ := newTestProcessor(t, proto.Provides{Event: []string{rid.NSCommit}})
	ctx := context.Background()

	hub := mustNode(t, "hub")
	cacheNode(t, cache, hub, proto.NodeProfile{
		BaseURL:  "http://hub:9000/koi-net",
		NodeType: proto.NodeFull,
		Provides: proto.Provides{State: []string{rid.NSCommit}},
	})

	b := commitBundleAt(t, "a1b2c3d4", "somewhere", time.Now())
	net.serve(hub, b)

	// no From peer at all: the state provider gets asked
	_ = p.HandleEvent(ctx, proto.Event{RID: b.RID(), EventType: proto.EventNew}, rid.RID{})
	p.drainBacklog(ctx)
	if ok, _ := cache.Exists(ctx, b.RID()); !ok {
		t.Fatal("state provider fallback did not resolve")
	}
}

func TestUnresolvableObjectDropsQuietly(t *testing.T) {
	p, cache, _, _ := newTestProcessor(t, proto.Provides{Event: []string{rid.NSCommit}})
	ctx := context.Background()

	r, _ := rid.Commit("acme", "widgets", "fffffff")
	if err := p.HandleRID(ctx, r, rid.RID{}); err != nil {
		t.Fatalf("handle rid: %v", err)
	}
	p.drainBacklog(ctx)
	if ok, _ := cache.Exists(ctx, r); ok {
		t.Fatal("unresolvable rid appeared in cache")
	}
}

func TestTamperedExternalBundleRejected(t *testing.T) {
	p, cache, _, _ := newTestProcessor(t, proto.Provides{Event: []string{rid.NSCommit}})
	ctx := context.Background()

	b := commitBundleAt(t, "a1b2c3d4", "honest", time.Now())
	b.Contents = []byte(`{"sha":"a1b2c3d4","message":"forged"}`)

	_ = p.HandleEvent(ctx, proto.EventFromBundle(proto.EventNew, b), rid.RID{})
	p.drainBacklog(ctx)
	if ok, _ := cache.Exists(ctx, b.RID()); ok {
		t.Fatal("tampered bundle was cached")
	}
}

func TestBroadcastSkipsSenderAndSelf(t *testing.T) {
	p, cache, net, self := newTestProcessor(t, proto.Provides{Event: []string{rid.NSCommit}})
	ctx := context.Background()

	hub := mustNode(t, "hub")
	cacheNode(t, cache, hub, proto.NodeProfile{BaseURL: "http://hub:9000/koi-net", NodeType: proto.NodeFull})
	subscribeTo(t, cache, self.RID, hub, rid.NSCommit)
	subscribeTo(t, cache, self.RID, self.RID, rid.NSCommit)

	b := commitBundleAt(t, "a1b2c3d4", "from hub", time.Now())
	_ = p.HandleEvent(ctx, proto.EventFromBundle(proto.EventNew, b), hub)
	p.drainBacklog(ctx)

	if got := net.pushed(); len(got) != 0 {
		t.Fatalf("event echoed back: %+v", got)
	}
	if ok, _ := cache.Exists(ctx, b.RID()); !ok {
		t.Fatal("bundle not cached")
	}
}

func TestRunDrainsBacklogAfterCancel(t *testing.T) {
	p, cache, _, _ := newTestProcessor(t, proto.Provides{Event: []string{rid.NSCommit}})

	shas := []string{"a1b2c3d", "b2c3d4e", "c3d4e5f"}
	for _, sha := range shas {
		_ = p.HandleBundle(context.Background(), commitBundleAt(t, sha, "queued", time.Now()), domain.SourceInternal)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Run(ctx); err != context.Canceled {
		t.Fatalf("run returned %v", err)
	}

	for _, sha := range shas {
		r, _ := rid.Commit("acme", "widgets", sha)
		if ok, _ := cache.Exists(context.Background(), r); !ok {
			t.Fatalf("backlog entry %s not drained", sha)
		}
	}
}
