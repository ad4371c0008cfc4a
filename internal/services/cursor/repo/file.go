// Package repo provides the cursor persistence backends
package repo

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	perr "gitpulse/internal/platform/errors"
	"gitpulse/internal/platform/logger"
)

// File persists cursors as a single JSON document, the default backend
type File struct {
	path string
	log  logger.Logger
}

// NewFile returns a file backend rooted at path
func NewFile(path string, log logger.Logger) *File {
	return &File{path: path, log: log}
}

// Load reads the whole mapping, a missing file is an empty mapping
func (f *File) Load(_ context.Context) (map[string]string, error) {
	b, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		f.log.Warn().Str("path", f.path).Msg("cursor file not found starting empty")
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeUnavailable, "cursor file read %s", f.path)
	}
	var m map[string]string
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, perr.JSONErrf("cursor file %s is corrupt: %v", f.path, err)
	}
	if m == nil {
		m = map[string]string{}
	}
	return m, nil
}

// Save rewrites the whole document via a temp file rename
func (f *File) Save(_ context.Context, cursors map[string]string) error {
	b, err := json.MarshalIndent(cursors, "", "  ")
	if err != nil {
		return perr.JSONErrf("cursor file marshal: %v", err)
	}
	if dir := filepath.Dir(f.path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return perr.Wrapf(err, perr.ErrorCodeUnavailable, "cursor dir %s", dir)
		}
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeUnavailable, "cursor file write %s", tmp)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeUnavailable, "cursor file rename %s", f.path)
	}
	return nil
}
