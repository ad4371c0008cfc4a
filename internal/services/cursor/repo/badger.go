package repo

import (
	"context"
	"strings"

	"gitpulse/internal/platform/store"
)

// badgerPrefix namespaces cursor keys inside the shared node database
const badgerPrefix = "cursor/"

// Badger persists each repo cursor as one key, all writes in one transaction
type Badger struct {
	kv store.KV
}

// NewBadger returns a badger backend over the shared KV seam
func NewBadger(kv store.KV) *Badger {
	return &Badger{kv: kv}
}

// Load scans the cursor prefix into a mapping
func (b *Badger) Load(ctx context.Context) (map[string]string, error) {
	out := map[string]string{}
	err := b.kv.Scan(ctx, []byte(badgerPrefix), func(key, val []byte) error {
		repo := strings.TrimPrefix(string(key), badgerPrefix)
		out[repo] = string(val)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Save upserts every pair in one transaction
func (b *Badger) Save(ctx context.Context, cursors map[string]string) error {
	batch := make(map[string][]byte, len(cursors))
	for repo, sha := range cursors {
		batch[badgerPrefix+repo] = []byte(sha)
	}
	return b.kv.SetBatch(ctx, batch)
}
