package module

import (
	"strings"
	"time"

	"gitpulse/internal/core/proto"
	"gitpulse/internal/platform/config"
)

// Options configures the node module
type Options struct {
	// NodeName is the display part of the node RID
	NodeName string

	// NodeURL is this node's public base URL, without the protocol prefix.
	// Empty means the node is not dialable and peers must let it poll
	NodeURL string

	// StateDir holds the persisted identity
	StateDir string

	// FirstContact is the peer URL to introduce ourselves to on first boot
	FirstContact string

	QueueCap      int
	HTTPTimeout   time.Duration
	FlushInterval time.Duration
}

// FromConfig reads options from config.Conf under the KOI_ prefix
func FromConfig(cfg config.Conf) Options {
	kc := cfg.Prefix("KOI_")
	return Options{
		NodeName:      kc.MayString("NODE_NAME", "gitpulse-node"),
		NodeURL:       kc.MayString("NODE_URL", ""),
		StateDir:      kc.MayString("STATE_DIR", "state"),
		FirstContact:  normalizeContact(kc.MayString("FIRST_CONTACT", "")),
		QueueCap:      kc.MayInt("QUEUE_CAP", 512),
		HTTPTimeout:   kc.MayDuration("HTTP_TIMEOUT", 10*time.Second),
		FlushInterval: kc.MayDuration("FLUSH_INTERVAL", time.Second),
	}
}

// normalizeContact accepts the bootstrap URL with or without the
// protocol prefix
func normalizeContact(v string) string {
	if v == "" {
		return ""
	}
	v = strings.TrimRight(v, "/")
	if !strings.HasSuffix(v, proto.Prefix) {
		v += proto.Prefix
	}
	return v
}
