package service

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"gitpulse/internal/core/proto"
	"gitpulse/internal/core/rid"
	perr "gitpulse/internal/platform/errors"
	"gitpulse/internal/platform/logger"
	"gitpulse/internal/services/node/domain"
)

// NetworkConfig tunes outbound delivery
type NetworkConfig struct {
	// HTTPTimeout bounds every outbound call
	HTTPTimeout time.Duration

	// QueueCap bounds each per-peer queue; overflow drops the oldest event
	QueueCap int

	// FlushInterval paces the webhook sweep that retries stuck queues
	FlushInterval time.Duration

	// FirstContact is the base URL (including the protocol prefix) this
	// node introduces itself to when it knows no peers yet
	FirstContact string
}

func (c *NetworkConfig) defaults() {
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 10 * time.Second
	}
	if c.QueueCap <= 0 {
		c.QueueCap = 512
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = time.Second
	}
}

// Network delivers events to peers and queries their state.
// Webhook peers get ordered per-peer queues flushed by Run; polling peers
// get queues drained through PollFor by the poll endpoint
type Network struct {
	log    logger.Logger
	self   Identity
	graph  domain.GraphPort
	client *http.Client
	cfg    NetworkConfig

	mu      sync.Mutex
	webhook map[rid.RID][]proto.Event
	poll    map[rid.RID][]proto.Event
	kick    chan rid.RID
}

// NewNetwork builds the network service for the given identity
func NewNetwork(self Identity, graph domain.GraphPort, cfg NetworkConfig, log logger.Logger) *Network {
	cfg.defaults()
	return &Network{
		log:     log,
		self:    self,
		graph:   graph,
		client:  &http.Client{Timeout: cfg.HTTPTimeout},
		cfg:     cfg,
		webhook: make(map[rid.RID][]proto.Event),
		poll:    make(map[rid.RID][]proto.Event),
		kick:    make(chan rid.RID, 64),
	}
}

// PushEventTo implements domain.NetworkPort
func (n *Network) PushEventTo(ctx context.Context, node rid.RID, ev proto.Event) error {
	profile, ok, err := n.graph.NodeProfile(ctx, node)
	if err != nil {
		return err
	}
	if !ok {
		return perr.NotFoundf("network: no profile for %s", node)
	}

	n.mu.Lock()
	if profile.NodeType == proto.NodeFull && profile.BaseURL != "" {
		n.webhook[node] = n.appendCapped(n.webhook[node], ev, node, "webhook")
		n.mu.Unlock()
		select {
		case n.kick <- node:
		default:
			// sweep will pick it up
		}
		return nil
	}
	n.poll[node] = n.appendCapped(n.poll[node], ev, node, "poll")
	n.mu.Unlock()
	return nil
}

// appendCapped enforces the per-peer cap, dropping the oldest events
// caller holds n.mu
func (n *Network) appendCapped(q []proto.Event, ev proto.Event, node rid.RID, kind string) []proto.Event {
	q = append(q, ev)
	if over := len(q) - n.cfg.QueueCap; over > 0 {
		n.log.Warn().
			Str("node", node.String()).
			Str("queue", kind).
			Int("dropped", over).
			Msg("peer queue over cap, dropping oldest")
		q = q[over:]
	}
	return q
}

// PollFor implements domain.NetworkPort
func (n *Network) PollFor(node rid.RID, limit int) []proto.Event {
	n.mu.Lock()
	defer n.mu.Unlock()

	q := n.poll[node]
	if len(q) == 0 {
		return nil
	}
	if limit <= 0 || limit > len(q) {
		limit = len(q)
	}
	out := make([]proto.Event, limit)
	copy(out, q[:limit])
	rest := q[limit:]
	if len(rest) == 0 {
		delete(n.poll, node)
	} else {
		n.poll[node] = append([]proto.Event(nil), rest...)
	}
	return out
}

// Run flushes webhook queues until ctx is done, then drains what it can
func (n *Network) Run(ctx context.Context) error {
	ticker := time.NewTicker(n.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.cfg.HTTPTimeout)
			n.flushAll(drainCtx)
			cancel()
			return ctx.Err()
		case node := <-n.kick:
			n.flushWebhook(ctx, node)
		case <-ticker.C:
			n.flushAll(ctx)
		}
	}
}

func (n *Network) flushAll(ctx context.Context) {
	n.mu.Lock()
	nodes := make([]rid.RID, 0, len(n.webhook))
	for node, q := range n.webhook {
		if len(q) > 0 {
			nodes = append(nodes, node)
		}
	}
	n.mu.Unlock()
	for _, node := range nodes {
		n.flushWebhook(ctx, node)
	}
}

// flushWebhook posts a peer's queued events in order.
// On failure the batch is requeued at the front and retried by the sweep
func (n *Network) flushWebhook(ctx context.Context, node rid.RID) {
	n.mu.Lock()
	batch := n.webhook[node]
	delete(n.webhook, node)
	n.mu.Unlock()
	if len(batch) == 0 {
		return
	}

	url, err := n.peerURL(ctx, node, proto.BroadcastEventsPath)
	if err == nil {
		err = n.postJSON(ctx, url, proto.EventsPayload{Events: batch}, nil)
	}
	if err == nil {
		n.log.Debug().Str("node", node.String()).Int("events", len(batch)).Msg("webhook flushed")
		return
	}

	n.log.Warn().Err(err).
		Str("node", node.String()).
		Int("events", len(batch)).
		Msg("webhook flush failed, requeueing")
	n.mu.Lock()
	n.webhook[node] = append(batch, n.webhook[node]...)
	n.mu.Unlock()
}

// FetchRids implements domain.NetworkPort
func (n *Network) FetchRids(ctx context.Context, node rid.RID, ridTypes []string) ([]rid.RID, error) {
	url, err := n.peerURL(ctx, node, proto.FetchRidsPath)
	if err != nil {
		return nil, err
	}
	var out proto.RidsPayload
	if err := n.postJSON(ctx, url, proto.FetchRids{RIDTypes: ridTypes}, &out); err != nil {
		return nil, err
	}
	return out.RIDs, nil
}

// FetchBundle implements domain.NetworkPort
func (n *Network) FetchBundle(ctx context.Context, node rid.RID, r rid.RID) (proto.Bundle, bool, error) {
	url, err := n.peerURL(ctx, node, proto.FetchBundlesPath)
	if err != nil {
		return proto.Bundle{}, false, err
	}
	var out proto.BundlesPayload
	if err := n.postJSON(ctx, url, proto.FetchBundles{RIDs: []rid.RID{r}}, &out); err != nil {
		return proto.Bundle{}, false, err
	}
	if len(out.Bundles) == 0 {
		return proto.Bundle{}, false, nil
	}
	return out.Bundles[0], true, nil
}

// FirstContact introduces this node to the configured bootstrap URL by
// broadcasting its own identity bundle. No-op when unconfigured or when
// peers are already known
func (n *Network) FirstContact(ctx context.Context) error {
	if n.cfg.FirstContact == "" {
		return nil
	}
	peers, err := n.graph.Peers(ctx)
	if err != nil {
		return err
	}
	if len(peers) > 0 {
		return nil
	}

	bundle, err := n.self.Bundle()
	if err != nil {
		return err
	}
	url := strings.TrimRight(n.cfg.FirstContact, "/") + proto.BroadcastEventsPath
	payload := proto.EventsPayload{Events: []proto.Event{proto.EventFromBundle(proto.EventNew, bundle)}}
	if err := n.postJSON(ctx, url, payload, nil); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeUnavailable, "network: first contact %s", n.cfg.FirstContact)
	}
	n.log.Info().Str("url", n.cfg.FirstContact).Msg("introduced self to first contact")
	return nil
}

func (n *Network) peerURL(ctx context.Context, node rid.RID, path string) (string, error) {
	profile, ok, err := n.graph.NodeProfile(ctx, node)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", perr.NotFoundf("network: no profile for %s", node)
	}
	if profile.BaseURL == "" {
		return "", perr.Unavailablef("network: %s has no base url", node)
	}
	return strings.TrimRight(profile.BaseURL, "/") + path, nil
}

// postJSON posts a payload and decodes the enveloped response data when
// out is non-nil
func (n *Network) postJSON(ctx context.Context, url string, in, out any) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeJSON, "network: encode request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeInvalidArgument, "network: build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeUnavailable, "network: post %s", url)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return perr.Unavailablef("network: %s returned %d", url, resp.StatusCode)
	}
	if out == nil {
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeUnavailable, "network: read response from %s", url)
	}
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeJSON, "network: decode envelope from %s", url)
	}
	if len(envelope.Data) == 0 {
		return perr.JSONErrf("network: empty envelope from %s", url)
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeJSON, "network: decode response from %s", url)
	}
	return nil
}
