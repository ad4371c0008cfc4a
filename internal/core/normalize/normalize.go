// Package normalize converts raw provider commit records into the canonical
// form shared by the historical and live feeds
package normalize

import (
	"fmt"
	"strings"
	"time"

	"gitpulse/internal/core/rid"
	tim "gitpulse/internal/platform/time"
)

// Commit is the canonical record published for one upstream commit
// Pointer fields are nil when the source feed did not carry the value
type Commit struct {
	SHA            string     `json:"sha"`
	Message        string     `json:"message"`
	AuthorName     *string    `json:"author_name"`
	AuthorEmail    *string    `json:"author_email"`
	AuthorDate     *time.Time `json:"author_date"`
	CommitterName  *string    `json:"committer_name"`
	CommitterEmail *string    `json:"committer_email"`
	CommitterDate  *time.Time `json:"committer_date"`
	HTMLURL        string     `json:"html_url"`
	Parents        []string   `json:"parents"`
}

// Raw is a feed agnostic view of one provider commit record
// Zero fields mean the feed did not carry the value
type Raw struct {
	SHA            string
	Message        string
	AuthorName     string
	AuthorEmail    string
	AuthorDate     time.Time
	CommitterName  string
	CommitterEmail string
	CommitterDate  time.Time
	HTMLURL        string
	Parents        []string
}

// Normalize mints the commit identity and its canonical record
// The only hard requirement on the input is a usable sha, everything
// else degrades to absent markers
func Normalize(owner, repo string, in Raw) (rid.RID, Commit, error) {
	sha := strings.TrimSpace(in.SHA)
	if sha == "" {
		return rid.RID{}, Commit{}, fmt.Errorf("normalize: %s/%s commit record has no sha", owner, repo)
	}
	id, err := rid.Commit(owner, repo, sha)
	if err != nil {
		return rid.RID{}, Commit{}, fmt.Errorf("normalize: %w", err)
	}

	parents := make([]string, 0, len(in.Parents))
	for _, p := range in.Parents {
		if p = strings.TrimSpace(p); p != "" {
			parents = append(parents, p)
		}
	}

	return id, Commit{
		SHA:            sha,
		Message:        in.Message,
		AuthorName:     optStr(in.AuthorName),
		AuthorEmail:    optStr(in.AuthorEmail),
		AuthorDate:     tim.Ptr(in.AuthorDate.UTC()),
		CommitterName:  optStr(in.CommitterName),
		CommitterEmail: optStr(in.CommitterEmail),
		CommitterDate:  tim.Ptr(in.CommitterDate.UTC()),
		HTMLURL:        in.HTMLURL,
		Parents:        parents,
	}, nil
}

// summaryMax caps the log friendly first message line
const summaryMax = 80

// Summary returns the first message line capped for logging
func (c Commit) Summary() string {
	line, _, _ := strings.Cut(c.Message, "\n")
	if len(line) > summaryMax {
		return line[:summaryMax]
	}
	return line
}

// Author renders the author name with a fallback for anonymous records
func (c Commit) Author() string {
	if c.AuthorName != nil && *c.AuthorName != "" {
		return *c.AuthorName
	}
	return "unknown"
}

func optStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
