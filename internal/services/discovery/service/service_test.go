package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"gitpulse/internal/core/proto"
	"gitpulse/internal/core/rid"
	"gitpulse/internal/platform/store/kv"
	"gitpulse/internal/services/discovery/domain"
	nodedom "gitpulse/internal/services/node/domain"
	noderepo "gitpulse/internal/services/node/repo"
	nodesvc "gitpulse/internal/services/node/service"
)

type overlayPush struct {
	node rid.RID
	ev   proto.Event
}

// fakeOverlay stands in for the peer side of the network port
type fakeOverlay struct {
	mu        sync.Mutex
	pushes    []overlayPush
	pushErr   error
	inventory map[rid.RID][]rid.RID
	invErr    error
	bundles   map[string]proto.Bundle

	ridCalls    int
	bundleCalls int
}

func newFakeOverlay() *fakeOverlay {
	return &fakeOverlay{
		inventory: make(map[rid.RID][]rid.RID),
		bundles:   make(map[string]proto.Bundle),
	}
}

func (f *fakeOverlay) serve(node rid.RID, b proto.Bundle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bundles[node.String()+"|"+b.RID().String()] = b
}

func (f *fakeOverlay) pushed() []overlayPush {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]overlayPush, len(f.pushes))
	copy(out, f.pushes)
	return out
}

func (f *fakeOverlay) PushEventTo(_ context.Context, node rid.RID, ev proto.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pushErr != nil {
		return f.pushErr
	}
	f.pushes = append(f.pushes, overlayPush{node: node, ev: ev})
	return nil
}

func (f *fakeOverlay) PollFor(rid.RID, int) []proto.Event { return nil }

func (f *fakeOverlay) FetchRids(_ context.Context, node rid.RID, _ []string) ([]rid.RID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ridCalls++
	if f.invErr != nil {
		return nil, f.invErr
	}
	return f.inventory[node], nil
}

func (f *fakeOverlay) FetchBundle(_ context.Context, node rid.RID, r rid.RID) (proto.Bundle, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bundleCalls++
	b, ok := f.bundles[node.String()+"|"+r.String()]
	return b, ok, nil
}

type harness struct {
	self  nodesvc.Identity
	proc  *nodesvc.Processor
	cache *noderepo.Cache
	graph *nodesvc.Graph
	net   *fakeOverlay
	svc   *Service
}

func newHarness(t *testing.T, name string, provides proto.Provides) *harness {
	t.Helper()
	k, err := kv.Open(kv.Config{InMemory: true}, zerolog.Nop())
	if err != nil {
		t.Fatalf("open kv: %v", err)
	}
	t.Cleanup(func() { _ = k.Close() })

	self := nodesvc.Identity{
		RID: mustNode(t, name),
		Profile: proto.NodeProfile{
			BaseURL:  "http://" + name + ":8000/koi-net",
			NodeType: proto.NodeFull,
			Provides: provides,
		},
	}
	cache := noderepo.NewCache(k)
	graph := nodesvc.NewGraph(self.RID, cache)
	net := newFakeOverlay()
	proc := nodesvc.NewProcessor(self, cache, graph, net, zerolog.Nop())

	h := &harness{self: self, proc: proc, cache: cache, graph: graph, net: net}
	h.svc = New(domain.Ports{Processor: proc, Graph: graph, Network: net, Cache: cache}, time.Second, zerolog.Nop())
	return h
}

// newSensor registers the discovery handlers the sensor runs
func newSensor(t *testing.T) *harness {
	t.Helper()
	h := newHarness(t, "sensor", proto.Provides{Event: []string{rid.NSCommit}})
	h.svc.Register()
	h.publishSelf(t)
	return h
}

// newHub registers the reverse handshake the hub runs
func newHub(t *testing.T) *harness {
	t.Helper()
	h := newHarness(t, "hub", proto.Provides{
		Event: []string{rid.NSNode, rid.NSEdge},
		State: []string{rid.NSNode, rid.NSEdge},
	})
	h.svc.RegisterHub()
	h.publishSelf(t)
	return h
}

// publishSelf runs the node's own bundle through the pipeline the way
// the runner does at boot
func (h *harness) publishSelf(t *testing.T) {
	t.Helper()
	b, err := h.self.Bundle()
	if err != nil {
		t.Fatalf("self bundle: %v", err)
	}
	if err := h.proc.HandleBundle(context.Background(), b, nodedom.SourceInternal); err != nil {
		t.Fatalf("publish self: %v", err)
	}
	h.drain(t)
}

// announce delivers a peer's node bundle as an external NEW event and
// drains the pipeline, recursion included
func (h *harness) announce(t *testing.T, peer rid.RID, profile proto.NodeProfile) {
	t.Helper()
	ev := proto.EventFromBundle(proto.EventNew, nodeBundle(t, peer, profile))
	if err := h.proc.HandleEvent(context.Background(), ev, peer); err != nil {
		t.Fatalf("announce: %v", err)
	}
	h.drain(t)
}

func (h *harness) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := h.proc.Run(ctx); err != context.Canceled {
		t.Fatalf("drain: %v", err)
	}
}

func (h *harness) edges(t *testing.T) []proto.EdgeProfile {
	t.Helper()
	edges, err := h.graph.Edges(context.Background())
	if err != nil {
		t.Fatalf("edges: %v", err)
	}
	return edges
}

func mustNode(t *testing.T, name string) rid.RID {
	t.Helper()
	r, err := rid.Node(name, uuid.New())
	if err != nil {
		t.Fatalf("node rid: %v", err)
	}
	return r
}

func nodeBundle(t *testing.T, node rid.RID, p proto.NodeProfile) proto.Bundle {
	t.Helper()
	b, err := proto.NewBundle(node, p)
	if err != nil {
		t.Fatalf("bundle: %v", err)
	}
	return b
}

func peerProfile(provides proto.Provides) proto.NodeProfile {
	return proto.NodeProfile{
		BaseURL:  "http://peer:9000/koi-net",
		NodeType: proto.NodeFull,
		Provides: provides,
	}
}

func covering(edges []proto.EdgeProfile, ns string) []proto.EdgeProfile {
	var out []proto.EdgeProfile
	for _, e := range edges {
		if e.Covers(ns) {
			out = append(out, e)
		}
	}
	return out
}

func TestLonePeerHandshake(t *testing.T) {
	h := newSensor(t)
	hub := mustNode(t, "hub")

	h.announce(t, hub, peerProfile(proto.Provides{Event: []string{rid.NSNode}, State: []string{rid.NSNode}}))

	if ok, _ := h.cache.Exists(context.Background(), hub); !ok {
		t.Fatal("peer bundle not cached")
	}

	edges := h.edges(t)
	if len(edges) != 2 {
		t.Fatalf("edges = %+v", edges)
	}

	nodeEdges := covering(edges, rid.NSNode)
	if len(nodeEdges) != 1 {
		t.Fatalf("node edges = %+v", nodeEdges)
	}
	if e := nodeEdges[0]; e.Source != hub || e.Target != h.self.RID || e.Status != proto.EdgeProposed || e.Comm != proto.CommWebhook {
		t.Fatalf("node edge = %+v", e)
	}

	commitEdges := covering(edges, rid.NSCommit)
	if len(commitEdges) != 1 {
		t.Fatalf("commit edges = %+v", commitEdges)
	}
	if e := commitEdges[0]; e.Source != h.self.RID || e.Target != hub || e.Status != proto.EdgeApproved {
		t.Fatalf("commit edge = %+v", e)
	}

	if h.net.ridCalls != 1 {
		t.Fatalf("inventory fetched %d times", h.net.ridCalls)
	}
	for _, p := range h.net.pushed() {
		if p.node != hub {
			t.Fatalf("pushed to %s", p.node)
		}
	}
}

func TestPeerWithoutNodeCapabilityGetsNoSubscription(t *testing.T) {
	h := newSensor(t)
	peer := mustNode(t, "mute")

	h.announce(t, peer, peerProfile(proto.Provides{Event: []string{rid.NSCommit}}))

	edges := h.edges(t)
	if got := covering(edges, rid.NSNode); len(got) != 0 {
		t.Fatalf("subscribed to a peer without the capability: %+v", got)
	}
	if h.net.ridCalls != 0 {
		t.Fatal("inventory fetched for an incapable peer")
	}

	// the coordinator heuristic only counts peers, it still fires
	commitEdges := covering(edges, rid.NSCommit)
	if len(commitEdges) != 1 || commitEdges[0].Target != peer {
		t.Fatalf("commit edges = %+v", commitEdges)
	}
}

func TestNodeOnlyPeerAmongOthersGetsExactlyOneEdge(t *testing.T) {
	h := newSensor(t)

	// a previously known peer, written straight to the cache
	scout := mustNode(t, "scout")
	if err := h.cache.Write(context.Background(), nodeBundle(t, scout, peerProfile(proto.Provides{Event: []string{rid.NSNode}}))); err != nil {
		t.Fatalf("seed peer: %v", err)
	}

	hub := mustNode(t, "hub")
	h.announce(t, hub, peerProfile(proto.Provides{Event: []string{rid.NSNode}}))

	edges := h.edges(t)
	if len(edges) != 1 {
		t.Fatalf("edges = %+v", edges)
	}
	e := edges[0]
	if !e.Covers(rid.NSNode) || e.Source != hub || e.Target != h.self.RID {
		t.Fatalf("edge = %+v", e)
	}
	if got := covering(edges, rid.NSCommit); len(got) != 0 {
		t.Fatalf("commit edge proposed with two peers known: %+v", got)
	}
}

func TestInventoryWalkDiscoversPeersTransitively(t *testing.T) {
	h := newSensor(t)
	hub := mustNode(t, "hub")
	scout := mustNode(t, "scout")

	scoutBundle := nodeBundle(t, scout, peerProfile(proto.Provides{Event: []string{rid.NSNode}}))
	h.net.serve(hub, scoutBundle)
	h.net.inventory[hub] = []rid.RID{h.self.RID, hub, scout}

	h.announce(t, hub, peerProfile(proto.Provides{Event: []string{rid.NSNode}, State: []string{rid.NSNode}}))

	if ok, _ := h.cache.Exists(context.Background(), scout); !ok {
		t.Fatal("inventory peer never resolved")
	}
	// self and the already cached hub are filtered before any fetch
	if h.net.bundleCalls != 1 {
		t.Fatalf("bundle fetches = %d", h.net.bundleCalls)
	}
	if h.net.ridCalls != 2 {
		t.Fatalf("inventory fetches = %d", h.net.ridCalls)
	}

	edges := h.edges(t)
	nodeEdges := covering(edges, rid.NSNode)
	if len(nodeEdges) != 2 {
		t.Fatalf("node edges = %+v", nodeEdges)
	}
	sources := map[rid.RID]bool{}
	for _, e := range nodeEdges {
		if e.Target != h.self.RID || e.Status != proto.EdgeProposed {
			t.Fatalf("node edge = %+v", e)
		}
		sources[e.Source] = true
	}
	if !sources[hub] || !sources[scout] {
		t.Fatalf("node edge sources = %v", sources)
	}

	// only the first peer looked like the coordinator
	commitEdges := covering(edges, rid.NSCommit)
	if len(commitEdges) != 1 || commitEdges[0].Target != hub {
		t.Fatalf("commit edges = %+v", commitEdges)
	}
}

func TestInventoryFetchFailureKeepsHandshake(t *testing.T) {
	h := newSensor(t)
	h.net.invErr = errors.New("peer went away")

	hub := mustNode(t, "hub")
	h.announce(t, hub, peerProfile(proto.Provides{Event: []string{rid.NSNode}}))

	edges := h.edges(t)
	if got := covering(edges, rid.NSNode); len(got) != 1 {
		t.Fatalf("node edges = %+v", got)
	}
	if got := covering(edges, rid.NSCommit); len(got) != 1 {
		t.Fatalf("commit edges = %+v", got)
	}
	if h.net.ridCalls != 1 {
		t.Fatalf("inventory fetches = %d", h.net.ridCalls)
	}
}

func TestSecondPeerDoesNotGetCommitEdge(t *testing.T) {
	h := newSensor(t)

	hub := mustNode(t, "hub")
	h.announce(t, hub, peerProfile(proto.Provides{Event: []string{rid.NSNode}}))
	scout := mustNode(t, "scout")
	h.announce(t, scout, peerProfile(proto.Provides{Event: []string{rid.NSNode}}))

	edges := h.edges(t)
	if got := covering(edges, rid.NSNode); len(got) != 2 {
		t.Fatalf("node edges = %+v", got)
	}
	commitEdges := covering(edges, rid.NSCommit)
	if len(commitEdges) != 1 || commitEdges[0].Target != hub {
		t.Fatalf("commit edges = %+v", commitEdges)
	}
}

func TestOwnBundleDoesNotHandshake(t *testing.T) {
	h := newSensor(t)

	if got := h.edges(t); len(got) != 0 {
		t.Fatalf("edges after boot = %+v", got)
	}
	if h.net.ridCalls != 0 || len(h.net.pushed()) != 0 {
		t.Fatalf("boot touched the network: rids=%d pushes=%d", h.net.ridCalls, len(h.net.pushed()))
	}
}

func TestMalformedPeerProfileStopsHandshake(t *testing.T) {
	h := newSensor(t)
	peer := mustNode(t, "garbled")

	b, err := proto.NewBundle(peer, map[string]any{"provides": "nope"})
	if err != nil {
		t.Fatalf("bundle: %v", err)
	}
	if err := h.proc.HandleEvent(context.Background(), proto.EventFromBundle(proto.EventNew, b), peer); err != nil {
		t.Fatalf("announce: %v", err)
	}
	h.drain(t)

	if got := h.edges(t); len(got) != 0 {
		t.Fatalf("edges for a garbled peer = %+v", got)
	}
	if h.net.ridCalls != 0 {
		t.Fatal("inventory fetched for a garbled peer")
	}
}

func TestHubGreetsAndSubscribes(t *testing.T) {
	h := newHub(t)
	sensor := mustNode(t, "sensor")

	h.announce(t, sensor, peerProfile(proto.Provides{Event: []string{rid.NSCommit, rid.NSNode}}))

	selfBundle, ok, err := h.cache.Read(context.Background(), h.self.RID)
	if err != nil || !ok {
		t.Fatalf("own bundle: ok=%v err=%v", ok, err)
	}

	pushes := h.net.pushed()
	if len(pushes) != 2 {
		t.Fatalf("pushes = %+v", pushes)
	}
	greeting := pushes[0]
	if greeting.node != sensor || greeting.ev.EventType != proto.EventNew {
		t.Fatalf("greeting = %+v", greeting)
	}
	if greeting.ev.Manifest == nil || greeting.ev.Manifest.SHA256 != selfBundle.Manifest.SHA256 {
		t.Fatalf("greeting carries %+v, want own profile", greeting.ev.Manifest)
	}

	edges := h.edges(t)
	if len(edges) != 1 {
		t.Fatalf("edges = %+v", edges)
	}
	e := edges[0]
	if e.Source != sensor || e.Target != h.self.RID || e.Status != proto.EdgeProposed {
		t.Fatalf("edge = %+v", e)
	}
	if !e.Covers(rid.NSNode) || !e.Covers(rid.NSEdge) {
		t.Fatalf("edge types = %v", e.RIDTypes)
	}

	if pushes[1].node != sensor {
		t.Fatalf("edge proposal pushed to %s", pushes[1].node)
	}
	if h.net.ridCalls != 0 {
		t.Fatal("hub walked an inventory")
	}
}

func TestHubGreetingPushFailureStillProposesEdge(t *testing.T) {
	h := newHub(t)
	h.net.pushErr = errors.New("sensor unreachable")

	sensor := mustNode(t, "sensor")
	h.announce(t, sensor, peerProfile(proto.Provides{Event: []string{rid.NSCommit}}))

	edges := h.edges(t)
	if len(edges) != 1 || edges[0].Source != sensor || edges[0].Target != h.self.RID {
		t.Fatalf("edges = %+v", edges)
	}
}
