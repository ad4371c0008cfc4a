// Package repo persists knowledge bundles in the embedded kv store
package repo

import (
	"context"
	"encoding/json"
	"strings"

	"gitpulse/internal/core/proto"
	"gitpulse/internal/core/rid"
	perr "gitpulse/internal/platform/errors"
	"gitpulse/internal/platform/store"
)

// bundle keys live under their own keyspace so other kv users
// (cursor backend, queue overflow) never collide
const cachePrefix = "bundle/"

// Cache stores bundles keyed by their RID string form
type Cache struct {
	kv store.KV
}

// NewCache builds the bundle cache over an open kv handle
func NewCache(kv store.KV) *Cache {
	return &Cache{kv: kv}
}

func cacheKey(r rid.RID) []byte {
	return []byte(cachePrefix + r.String())
}

// Write stores one bundle, replacing any previous version
func (c *Cache) Write(ctx context.Context, b proto.Bundle) error {
	r := b.RID()
	if r.IsZero() {
		return perr.InvalidArgf("cache: bundle has zero RID")
	}
	raw, err := json.Marshal(b)
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeJSON, "cache: encode bundle %s", r)
	}
	if err := c.kv.Set(ctx, cacheKey(r), raw); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeUnavailable, "cache: write bundle %s", r)
	}
	return nil
}

// Read loads one bundle, ok=false when absent
func (c *Cache) Read(ctx context.Context, r rid.RID) (proto.Bundle, bool, error) {
	raw, ok, err := c.kv.Get(ctx, cacheKey(r))
	if err != nil {
		return proto.Bundle{}, false, perr.Wrapf(err, perr.ErrorCodeUnavailable, "cache: read bundle %s", r)
	}
	if !ok {
		return proto.Bundle{}, false, nil
	}
	var b proto.Bundle
	if err := json.Unmarshal(raw, &b); err != nil {
		return proto.Bundle{}, false, perr.Wrapf(err, perr.ErrorCodeJSON, "cache: decode bundle %s", r)
	}
	return b, true, nil
}

// Exists reports whether a bundle is cached
func (c *Cache) Exists(ctx context.Context, r rid.RID) (bool, error) {
	_, ok, err := c.kv.Get(ctx, cacheKey(r))
	if err != nil {
		return false, perr.Wrapf(err, perr.ErrorCodeUnavailable, "cache: probe bundle %s", r)
	}
	return ok, nil
}

// Delete removes a bundle; deleting an absent bundle is a no-op
func (c *Cache) Delete(ctx context.Context, r rid.RID) error {
	if err := c.kv.Delete(ctx, cacheKey(r)); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeUnavailable, "cache: delete bundle %s", r)
	}
	return nil
}

// List returns every cached RID in a namespace
func (c *Cache) List(ctx context.Context, ns string) ([]rid.RID, error) {
	prefix := cachePrefix + rid.Scheme + ":" + ns + ":"
	var out []rid.RID
	err := c.kv.Scan(ctx, []byte(prefix), func(key, _ []byte) error {
		s := strings.TrimPrefix(string(key), cachePrefix)
		r, err := rid.Parse(s)
		if err != nil {
			// foreign key under our prefix, skip it
			return nil
		}
		out = append(out, r)
		return nil
	})
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeUnavailable, "cache: list namespace %s", ns)
	}
	return out, nil
}
