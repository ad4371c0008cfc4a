package kv

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
)

func openTest(t *testing.T) *KV {
	t.Helper()
	k, err := Open(Config{InMemory: true}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = k.Close() })
	return k
}

func TestGetSetDelete(t *testing.T) {
	t.Parallel()

	k := openTest(t)
	ctx := context.Background()

	if _, ok, err := k.Get(ctx, []byte("missing")); err != nil || ok {
		t.Fatalf("missing key: ok=%v err=%v", ok, err)
	}

	if err := k.Set(ctx, []byte("a"), []byte("1")); err != nil {
		t.Fatal(err)
	}
	got, ok, err := k.Get(ctx, []byte("a"))
	if err != nil || !ok || string(got) != "1" {
		t.Fatalf("get a = %q ok=%v err=%v", got, ok, err)
	}

	if err := k.Delete(ctx, []byte("a")); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := k.Get(ctx, []byte("a")); ok {
		t.Fatal("key survived delete")
	}

	// deleting an absent key is fine
	if err := k.Delete(ctx, []byte("a")); err != nil {
		t.Fatal(err)
	}
}

func TestSetBatchAndScan(t *testing.T) {
	t.Parallel()

	k := openTest(t)
	ctx := context.Background()

	err := k.SetBatch(ctx, map[string][]byte{
		"cursor/acme/widgets": []byte("aaa"),
		"cursor/acme/roadmap": []byte("bbb"),
		"bundle/x":            []byte("zzz"),
	})
	if err != nil {
		t.Fatal(err)
	}

	seen := map[string]string{}
	err = k.Scan(ctx, []byte("cursor/"), func(key, val []byte) error {
		seen[string(key)] = string(val)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(seen) != 2 {
		t.Fatalf("scan saw %d keys: %v", len(seen), seen)
	}
	if seen["cursor/acme/widgets"] != "aaa" || seen["cursor/acme/roadmap"] != "bbb" {
		t.Fatalf("scan values wrong: %v", seen)
	}
}

func TestContextCancelShortCircuits(t *testing.T) {
	t.Parallel()

	k := openTest(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := k.Set(ctx, []byte("a"), []byte("1")); err == nil {
		t.Fatal("Set with cancelled ctx did not fail")
	}
	if _, _, err := k.Get(ctx, []byte("a")); err == nil {
		t.Fatal("Get with cancelled ctx did not fail")
	}
}

func TestPing(t *testing.T) {
	t.Parallel()

	k := openTest(t)
	if err := k.Ping(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestCloseIsIdempotentEnough(t *testing.T) {
	t.Parallel()

	k, err := Open(Config{InMemory: true}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if err := k.Close(); err != nil {
		t.Fatal(err)
	}
	if err := k.Ping(context.Background()); err == nil {
		t.Fatal("ping succeeded after close")
	}
}
