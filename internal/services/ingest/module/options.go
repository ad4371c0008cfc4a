package module

import "gitpulse/internal/platform/config"

// Options configures the live feed
type Options struct {
	// WebhookSecret keys the delivery signature, empty disables verification
	WebhookSecret string

	// Repos is the monitored set of repo full names (owner/repo)
	Repos []string
}

// FromConfig reads the GITHUB_* keys
func FromConfig(cfg config.Conf) Options {
	gh := cfg.Prefix("GITHUB_")
	return Options{
		WebhookSecret: gh.MayString("WEBHOOK_SECRET", ""),
		Repos:         gh.MayCSV("REPOS", nil),
	}
}
