package module

import "gitpulse/internal/platform/config"

// Options configures the sensor ops module
type Options struct {
	// AdminToken guards the ops endpoints when set, empty leaves them open
	AdminToken string
}

// FromConfig reads module options from the environment
func FromConfig(cfg config.Conf) Options {
	c := cfg.Prefix("CORE_API_")
	return Options{
		AdminToken: c.MayString("ADMIN_TOKEN", ""),
	}
}
