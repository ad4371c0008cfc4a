package module

import (
	"gitpulse/internal/platform/config"
)

// Options configures the cursor module
type Options struct {
	// Backend selects where cursors persist: file, badger, or pg
	Backend string

	// FilePath is the JSON document path for the file backend
	FilePath string
}

// FromConfig reads options from config.Conf
func FromConfig(cfg config.Conf) Options {
	cf := cfg.Prefix("CORE_CURSOR_")
	return Options{
		Backend:  cf.MayEnum("BACKEND", "file", "file", "badger", "pg"),
		FilePath: cf.MayString("FILE", "state/cursors.json"),
	}
}
