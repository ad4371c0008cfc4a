package github

import "time"

// CommitIdent is the name, email, date triple inside a commit document
type CommitIdent struct {
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Date  time.Time `json:"date"`
}

// CommitDetail is the git level part of a list commits row
type CommitDetail struct {
	Message   string       `json:"message"`
	Author    *CommitIdent `json:"author"`
	Committer *CommitIdent `json:"committer"`
}

// ParentRef points at a parent commit by sha
type ParentRef struct {
	SHA string `json:"sha"`
}

// RepoCommit is a partial list commits row with the fields we use
type RepoCommit struct {
	SHA     string       `json:"sha"`
	HTMLURL string       `json:"html_url"`
	Commit  CommitDetail `json:"commit"`
	Parents []ParentRef  `json:"parents"`
}

// ParentSHAs flattens the parent references
func (rc RepoCommit) ParentSHAs() []string {
	out := make([]string, 0, len(rc.Parents))
	for _, p := range rc.Parents {
		out = append(out, p.SHA)
	}
	return out
}

// PushUser is a partial author or committer block in a push payload
// Push payloads carry names and emails, not full user documents
type PushUser struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Login string `json:"login"`
}

// PushRepository is the partial repository block in a push payload
type PushRepository struct {
	FullName string   `json:"full_name"`
	Name     string   `json:"name"`
	Owner    PushUser `json:"owner"`
}

// PushCommit is one commit entry in a push payload
// Push payloads use id and url where the REST API uses sha and html_url
type PushCommit struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	URL       string    `json:"url"`
	Author    *PushUser `json:"author"`
	Committer *PushUser `json:"committer"`
}

// PushEvent is a partial push webhook payload with the fields we use
type PushEvent struct {
	Ref        string         `json:"ref"`
	Repository PushRepository `json:"repository"`
	HeadCommit *PushCommit    `json:"head_commit"`
	Commits    []PushCommit   `json:"commits"`
}

// OwnerLogin returns the owner identifier, push payloads may fill either field
func (r PushRepository) OwnerLogin() string {
	if r.Owner.Login != "" {
		return r.Owner.Login
	}
	return r.Owner.Name
}
