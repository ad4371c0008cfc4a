package module

import (
	"time"

	"gitpulse/internal/platform/config"
)

// Options holds configuration for backfill passes
type Options struct {
	Workers      int
	DelayPerRepo time.Duration
	PageSize     int
	MaxCommits   int
	ScanTimeout  time.Duration
	FetchTimeout time.Duration
	EnableLeases bool
	OnStart      bool
	Repos        []string
}

// FromConfig reads the backfill options from config with CORE_BACKFILL_ prefix.
// The monitored repository list is shared with the live ingester under GITHUB_
func FromConfig(cfg config.Conf) Options {
	bf := cfg.Prefix("CORE_BACKFILL_")
	gh := cfg.Prefix("GITHUB_")
	return Options{
		Workers:      bf.MayInt("WORKERS", 4),
		DelayPerRepo: bf.MayDuration("DELAY", 0),
		PageSize:     bf.MayInt("PAGE_SIZE", 100),
		MaxCommits:   bf.MayInt("MAX_COMMITS", 0),
		ScanTimeout:  bf.MayDuration("SCAN_TIMEOUT", 10*time.Minute),
		FetchTimeout: bf.MayDuration("FETCH_TIMEOUT", 30*time.Second),
		EnableLeases: bf.MayBool("LEASES", true),
		OnStart:      bf.MayBool("ON_START", true),
		Repos:        gh.MayCSV("REPOS", nil),
	}
}
