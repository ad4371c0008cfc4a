package github

import (
	"context"
	json "encoding/json/v2"
	"fmt"
	"io"
	"net/http"
)

const maxPerPage = 100

// ListCommits fetches one page of a repository's commit history, newest first
func (c *Client) ListCommits(ctx context.Context, owner, repo string, page, perPage int) ([]RepoCommit, error) {
	if perPage <= 0 || perPage > maxPerPage {
		perPage = maxPerPage
	}
	if page < 1 {
		page = 1
	}
	path := fmt.Sprintf("/repos/%s/%s/commits?per_page=%d&page=%d", owner, repo, perPage, page)
	resp, err := c.Do(ctx, http.MethodGet, path, "")
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.log.Error().Err(cerr).Str("path", path).Msg("github close body failed")
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, &GHStatusError{Status: resp.StatusCode, Err: fmt.Errorf("list commits %d", resp.StatusCode)}
	}

	var out []RepoCommit
	lim := io.LimitReader(resp.Body, 4<<20)
	b, err := io.ReadAll(lim)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Commits returns a lazy pager over a repository's history, newest first
// The pager is restartable, each call starts from the tip again
func (c *Client) Commits(owner, repo string, perPage int) *CommitPager {
	if perPage <= 0 || perPage > maxPerPage {
		perPage = maxPerPage
	}
	return &CommitPager{c: c, owner: owner, repo: repo, page: 1, perPage: perPage}
}

// CommitPager walks commit pages one record at a time
type CommitPager struct {
	c       *Client
	owner   string
	repo    string
	page    int
	perPage int
	buf     []RepoCommit
	idx     int
	done    bool
}

// Next returns the next commit, ok reports whether one was produced
// A short page marks the end of history
func (p *CommitPager) Next(ctx context.Context) (RepoCommit, bool, error) {
	for {
		if p.idx < len(p.buf) {
			rc := p.buf[p.idx]
			p.idx++
			return rc, true, nil
		}
		if p.done {
			return RepoCommit{}, false, nil
		}
		batch, err := p.c.ListCommits(ctx, p.owner, p.repo, p.page, p.perPage)
		if err != nil {
			return RepoCommit{}, false, err
		}
		p.page++
		p.buf, p.idx = batch, 0
		if len(batch) < p.perPage {
			p.done = true
		}
		if len(batch) == 0 {
			return RepoCommit{}, false, nil
		}
	}
}
