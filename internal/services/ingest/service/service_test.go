package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"gitpulse/internal/adapters/github"
	"gitpulse/internal/core/normalize"
	"gitpulse/internal/core/proto"
	"gitpulse/internal/core/rid"
	perr "gitpulse/internal/platform/errors"
	cursorrepo "gitpulse/internal/services/cursor/repo"
	cursorsvc "gitpulse/internal/services/cursor/service"
	"gitpulse/internal/services/ingest/domain"
	nodedom "gitpulse/internal/services/node/domain"
)

var _ domain.FeedPort = (*Service)(nil)

type fakeProcessor struct {
	mu      sync.Mutex
	bundles []proto.Bundle
	fail    bool
}

func (f *fakeProcessor) HandleBundle(_ context.Context, b proto.Bundle, _ nodedom.Source) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return perr.Unavailablef("pipeline down")
	}
	f.bundles = append(f.bundles, b)
	return nil
}

func (f *fakeProcessor) HandleEvent(context.Context, proto.Event, rid.RID) error { return nil }
func (f *fakeProcessor) HandleRID(context.Context, rid.RID, rid.RID) error       { return nil }
func (f *fakeProcessor) RegisterHandler(string, nodedom.Phase, nodedom.Handler)  {}

func (f *fakeProcessor) shas(t *testing.T) []string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.bundles))
	for _, b := range f.bundles {
		var c normalize.Commit
		if err := b.Decode(&c); err != nil {
			t.Fatalf("decode bundle: %v", err)
		}
		out = append(out, c.SHA)
	}
	return out
}

func newTestFeed(t *testing.T, secret string, repos ...string) (*Service, *fakeProcessor, *cursorsvc.Service) {
	t.Helper()
	storage := cursorrepo.NewFile(filepath.Join(t.TempDir(), "cursors.json"), zerolog.Nop())
	cursors := cursorsvc.New(context.Background(), storage, zerolog.Nop())
	proc := &fakeProcessor{}
	return New(cursors, proc, secret, repos, zerolog.Nop()), proc, cursors
}

func pushCommit(sha, msg string) github.PushCommit {
	return github.PushCommit{
		ID:        sha,
		Message:   msg,
		Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		URL:       "https://github.com/acme/widgets/commit/" + sha,
		Author:    &github.PushUser{Name: "Ada", Email: "ada@acme.dev"},
		Committer: &github.PushUser{Name: "Ada", Email: "ada@acme.dev"},
	}
}

func pushEvent(head *github.PushCommit, commits ...github.PushCommit) github.PushEvent {
	return github.PushEvent{
		Ref: "refs/heads/main",
		Repository: github.PushRepository{
			FullName: "acme/widgets",
			Name:     "widgets",
			Owner:    github.PushUser{Login: "acme"},
		},
		HeadCommit: head,
		Commits:    commits,
	}
}

func TestProcessPushSubmitsHeadCommit(t *testing.T) {
	feed, proc, cursors := newTestFeed(t, "", "acme/widgets")
	ctx := context.Background()

	head := pushCommit("a1b2c3d4e5f6a7b", "add feature")
	res, err := feed.ProcessPush(ctx, pushEvent(&head, head))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !res.Monitored || res.Submitted != 1 || !res.Advanced {
		t.Fatalf("result = %+v", res)
	}

	if got := proc.shas(t); len(got) != 1 || got[0] != head.ID {
		t.Fatalf("submitted = %v", got)
	}
	if sha, ok := cursors.Get(ctx, "acme/widgets"); !ok || sha != head.ID {
		t.Fatalf("cursor = %q ok=%v", sha, ok)
	}

	var c normalize.Commit
	if err := proc.bundles[0].Decode(&c); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if c.AuthorName == nil || *c.AuthorName != "Ada" || c.AuthorDate == nil {
		t.Fatalf("commit = %+v", c)
	}
	if c.CommitterDate != nil {
		t.Fatal("push feed invented a committer date")
	}
}

func TestProcessPushDuplicateDeliveryIsNoop(t *testing.T) {
	feed, proc, cursors := newTestFeed(t, "", "acme/widgets")
	ctx := context.Background()

	head := pushCommit("a1b2c3d4e5f6a7b", "add feature")
	ev := pushEvent(&head, head)
	if _, err := feed.ProcessPush(ctx, ev); err != nil {
		t.Fatalf("first: %v", err)
	}
	res, err := feed.ProcessPush(ctx, ev)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if res.Submitted != 0 || res.Skipped != 1 || res.Advanced {
		t.Fatalf("result = %+v", res)
	}
	if got := proc.shas(t); len(got) != 1 {
		t.Fatalf("submitted = %v", got)
	}
	if sha, _ := cursors.Get(ctx, "acme/widgets"); sha != head.ID {
		t.Fatalf("cursor = %q", sha)
	}
}

func TestProcessPushFallsBackToCommitsList(t *testing.T) {
	feed, proc, cursors := newTestFeed(t, "", "acme/widgets")
	ctx := context.Background()

	older := pushCommit("b2c3d4e5f6a7b8c", "one")
	newer := pushCommit("c3d4e5f6a7b8c9d", "two")
	res, err := feed.ProcessPush(ctx, pushEvent(nil, older, newer))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.Submitted != 2 || res.Tip != newer.ID {
		t.Fatalf("result = %+v", res)
	}
	if got := proc.shas(t); len(got) != 2 || got[0] != older.ID || got[1] != newer.ID {
		t.Fatalf("submitted = %v", got)
	}
	if sha, _ := cursors.Get(ctx, "acme/widgets"); sha != newer.ID {
		t.Fatalf("cursor = %q", sha)
	}
}

func TestProcessPushUnmonitoredRepo(t *testing.T) {
	feed, proc, cursors := newTestFeed(t, "", "acme/roadmap")
	ctx := context.Background()

	head := pushCommit("a1b2c3d4e5f6a7b", "drive by")
	res, err := feed.ProcessPush(ctx, pushEvent(&head, head))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.Monitored || res.Submitted != 0 {
		t.Fatalf("result = %+v", res)
	}
	if got := proc.shas(t); len(got) != 0 {
		t.Fatalf("submitted = %v", got)
	}
	if _, ok := cursors.Get(ctx, "acme/widgets"); ok {
		t.Fatal("cursor moved for unmonitored repo")
	}
}

func TestProcessPushMissingRepositoryIdentity(t *testing.T) {
	feed, _, _ := newTestFeed(t, "", "acme/widgets")

	ev := pushEvent(nil)
	ev.Repository.Owner = github.PushUser{}
	_, err := feed.ProcessPush(context.Background(), ev)
	if !perr.IsCode(err, perr.ErrorCodeValidation) {
		t.Fatalf("err = %v", err)
	}
}

func TestProcessPushNoCommitData(t *testing.T) {
	feed, proc, _ := newTestFeed(t, "", "acme/widgets")

	res, err := feed.ProcessPush(context.Background(), pushEvent(nil))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.Submitted != 0 || res.Tip != "" {
		t.Fatalf("result = %+v", res)
	}
	if got := proc.shas(t); len(got) != 0 {
		t.Fatalf("submitted = %v", got)
	}
}

func TestProcessPushBadCommitSkippedOthersSubmitted(t *testing.T) {
	feed, proc, cursors := newTestFeed(t, "", "acme/widgets")
	ctx := context.Background()

	bad := pushCommit("", "no sha")
	good := pushCommit("d4e5f6a7b8c9d0e", "fine")
	res, err := feed.ProcessPush(ctx, pushEvent(nil, bad, good))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.Submitted != 1 {
		t.Fatalf("result = %+v", res)
	}
	if got := proc.shas(t); len(got) != 1 || got[0] != good.ID {
		t.Fatalf("submitted = %v", got)
	}
	if sha, _ := cursors.Get(ctx, "acme/widgets"); sha != good.ID {
		t.Fatalf("cursor = %q", sha)
	}
}

func TestProcessPushPipelineFailureLeavesCursor(t *testing.T) {
	feed, proc, cursors := newTestFeed(t, "", "acme/widgets")
	proc.fail = true

	head := pushCommit("a1b2c3d4e5f6a7b", "lost")
	res, err := feed.ProcessPush(context.Background(), pushEvent(&head, head))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.Submitted != 0 || res.Advanced {
		t.Fatalf("result = %+v", res)
	}
	if _, ok := cursors.Get(context.Background(), "acme/widgets"); ok {
		t.Fatal("cursor advanced past an unsubmitted commit")
	}
}

func TestVerifySignature(t *testing.T) {
	feed, _, _ := newTestFeed(t, "s3cret", "acme/widgets")

	body := []byte(`{"zen":"Keep it logically awesome."}`)
	mac := hmac.New(sha256.New, []byte("s3cret"))
	mac.Write(body)
	good := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	if err := feed.VerifySignature(body, good); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}
	if err := feed.VerifySignature(body, "sha256=deadbeef"); !perr.IsCode(err, perr.ErrorCodeForbidden) {
		t.Fatalf("err = %v", err)
	}
	if err := feed.VerifySignature(body, ""); !perr.IsCode(err, perr.ErrorCodeForbidden) {
		t.Fatalf("missing header err = %v", err)
	}
	if err := feed.VerifySignature(append(body, 'x'), good); !perr.IsCode(err, perr.ErrorCodeForbidden) {
		t.Fatalf("altered body err = %v", err)
	}
}

func TestVerifySignatureDisabledWithoutSecret(t *testing.T) {
	feed, _, _ := newTestFeed(t, "", "acme/widgets")
	if err := feed.VerifySignature([]byte("anything"), ""); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
}
