// Package kv provides the embedded badger client
package kv

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"gitpulse/internal/platform/logger"
)

// Config controls how the badger database is opened
type Config struct {
	// Dir is the on disk location, ignored when InMemory is set
	Dir string

	// InMemory keeps everything in RAM, used by tests and ephemeral nodes
	InMemory bool

	// SyncWrites fsyncs every commit, slower but durable
	SyncWrites bool

	// GCInterval is how often the value log garbage collector runs
	// zero disables the collector
	GCInterval time.Duration

	// GCDiscardRatio is the rewrite threshold for the collector, default 0.5
	GCDiscardRatio float64
}

// KV wraps one open badger database
type KV struct {
	db   *badger.DB
	log  logger.Logger
	stop chan struct{}
	done chan struct{}
}

// Open opens badger at cfg.Dir, creating the directory when needed
func Open(cfg Config, log logger.Logger) (*KV, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Dir == "" {
			return nil, fmt.Errorf("kv: empty dir")
		}
		if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
			return nil, fmt.Errorf("kv: create dir %s: %w", cfg.Dir, err)
		}
		opts = badger.DefaultOptions(cfg.Dir).WithSyncWrites(cfg.SyncWrites)
	}
	opts = opts.WithLogger(badgerLogger{log})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("kv: open: %w", err)
	}

	k := &KV{db: db, log: log, stop: make(chan struct{}), done: make(chan struct{})}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		ratio := cfg.GCDiscardRatio
		if ratio <= 0 {
			ratio = 0.5
		}
		go k.gcLoop(cfg.GCInterval, ratio)
	} else {
		close(k.done)
	}
	return k, nil
}

// Close stops the collector and closes the database
func (k *KV) Close() error {
	select {
	case <-k.stop:
	default:
		close(k.stop)
	}
	<-k.done
	return k.db.Close()
}

// Ping reports readiness by running an empty read transaction
func (k *KV) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if k.db.IsClosed() {
		return errors.New("kv: closed")
	}
	return k.db.View(func(*badger.Txn) error { return nil })
}

// Get returns the value for key and whether it exists
func (k *KV) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	var out []byte
	err := k.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("kv: get %q: %w", key, err)
	}
	return out, true, nil
}

// Set writes one key in its own transaction
func (k *KV) Set(ctx context.Context, key, val []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := k.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, val)
	})
	if err != nil {
		return fmt.Errorf("kv: set %q: %w", key, err)
	}
	return nil
}

// SetBatch writes all pairs in one transaction
func (k *KV) SetBatch(ctx context.Context, kvs map[string][]byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := k.db.Update(func(txn *badger.Txn) error {
		for key, val := range kvs {
			if err := txn.Set([]byte(key), val); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("kv: set batch of %d: %w", len(kvs), err)
	}
	return nil
}

// Delete removes one key, absent keys are not an error
func (k *KV) Delete(ctx context.Context, key []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := k.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
	if err != nil {
		return fmt.Errorf("kv: delete %q: %w", key, err)
	}
	return nil
}

// Scan visits every key under prefix in lexical order
// fn receives copies it may retain
func (k *KV) Scan(ctx context.Context, prefix []byte, fn func(key, val []byte) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := k.db.View(func(txn *badger.Txn) error {
		io := badger.DefaultIteratorOptions
		io.Prefix = prefix
		it := txn.NewIterator(io)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := fn(item.KeyCopy(nil), val); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("kv: scan %q: %w", prefix, err)
	}
	return nil
}

func (k *KV) gcLoop(interval time.Duration, ratio float64) {
	defer close(k.done)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-k.stop:
			return
		case <-t.C:
			for {
				err := k.db.RunValueLogGC(ratio)
				if err == nil {
					continue
				}
				if !errors.Is(err, badger.ErrNoRewrite) {
					k.log.Debug().Err(err).Msg("kv value log gc")
				}
				break
			}
		}
	}
}

// badgerLogger adapts our logger to badger's
// badger is chatty so info goes to debug and debug to trace
type badgerLogger struct{ log logger.Logger }

func (b badgerLogger) Errorf(f string, args ...any)   { b.log.Error().Msgf(f, args...) }
func (b badgerLogger) Warningf(f string, args ...any) { b.log.Warn().Msgf(f, args...) }
func (b badgerLogger) Infof(f string, args ...any)    { b.log.Debug().Msgf(f, args...) }
func (b badgerLogger) Debugf(f string, args ...any)   { b.log.Trace().Msgf(f, args...) }
