package module

import (
	"time"

	"gitpulse/internal/platform/config"
)

// Options configures the discovery module
type Options struct {
	// FetchTimeout bounds the synchronous peer inventory fetch
	FetchTimeout time.Duration
}

// FromConfig reads options from config.Conf under the CORE_DISCOVERY_ prefix
func FromConfig(cfg config.Conf) Options {
	dc := cfg.Prefix("CORE_DISCOVERY_")
	return Options{
		FetchTimeout: dc.MayDuration("FETCH_TIMEOUT", 10*time.Second),
	}
}
