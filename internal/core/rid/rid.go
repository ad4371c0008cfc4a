// Package rid defines typed resource identifiers for the overlay network
//
// A RID is rendered as orn:<namespace>:<reference> where the namespace names
// the resource type and the reference is namespace specific
package rid

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Scheme prefixes every rendered RID
const Scheme = "orn"

// Namespaces known to this node
const (
	NSCommit = "github.commit"
	NSNode   = "koi-net.node"
	NSEdge   = "koi-net.edge"
)

// RID is one overlay resource identifier
// The zero value is invalid and reports IsZero
type RID struct {
	ns  string
	ref string
}

// New builds a RID from a namespace and reference
func New(namespace, reference string) (RID, error) {
	if namespace == "" || strings.Contains(namespace, ":") {
		return RID{}, fmt.Errorf("rid: bad namespace %q", namespace)
	}
	if reference == "" {
		return RID{}, fmt.Errorf("rid: empty reference for namespace %q", namespace)
	}
	return RID{ns: namespace, ref: reference}, nil
}

// Parse decodes the orn:<namespace>:<reference> form
func Parse(s string) (RID, error) {
	rest, ok := strings.CutPrefix(s, Scheme+":")
	if !ok {
		return RID{}, fmt.Errorf("rid: %q does not start with %q", s, Scheme+":")
	}
	ns, ref, ok := strings.Cut(rest, ":")
	if !ok {
		return RID{}, fmt.Errorf("rid: %q has no reference part", s)
	}
	return New(ns, ref)
}

// Namespace returns the resource type part
func (r RID) Namespace() string { return r.ns }

// Reference returns the namespace specific part
func (r RID) Reference() string { return r.ref }

// IsZero reports whether r is the zero RID
func (r RID) IsZero() bool { return r.ns == "" }

func (r RID) String() string {
	if r.IsZero() {
		return ""
	}
	return Scheme + ":" + r.ns + ":" + r.ref
}

// MarshalText renders the RID as its string form for JSON and map keys
func (r RID) MarshalText() ([]byte, error) {
	if r.IsZero() {
		return nil, fmt.Errorf("rid: marshal of zero RID")
	}
	return []byte(r.String()), nil
}

// UnmarshalText parses the string form in place
func (r *RID) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// minSHALen is the shortest commit sha accepted anywhere in the node
const minSHALen = 7

// Commit mints the identity of one upstream commit
// Owner and repo must be path safe single segments, sha at least 7 chars
func Commit(owner, repo, sha string) (RID, error) {
	if err := checkSegment("owner", owner); err != nil {
		return RID{}, err
	}
	if err := checkSegment("repo", repo); err != nil {
		return RID{}, err
	}
	if len(sha) < minSHALen {
		return RID{}, fmt.Errorf("rid: commit sha %q shorter than %d chars", sha, minSHALen)
	}
	return RID{ns: NSCommit, ref: owner + "/" + repo + "/" + sha}, nil
}

// SplitCommit recovers owner, repo, and sha from a commit RID
func SplitCommit(r RID) (owner, repo, sha string, err error) {
	if r.ns != NSCommit {
		return "", "", "", fmt.Errorf("rid: %q is not a %s RID", r, NSCommit)
	}
	parts := strings.SplitN(r.ref, "/", 3)
	if len(parts) != 3 {
		return "", "", "", fmt.Errorf("rid: malformed commit reference %q", r.ref)
	}
	owner, repo, sha = parts[0], parts[1], parts[2]
	if err := checkSegment("owner", owner); err != nil {
		return "", "", "", err
	}
	if err := checkSegment("repo", repo); err != nil {
		return "", "", "", err
	}
	if len(sha) < minSHALen {
		return "", "", "", fmt.Errorf("rid: commit sha %q shorter than %d chars", sha, minSHALen)
	}
	return owner, repo, sha, nil
}

// Node mints a node identity from a display name and a unique id
func Node(name string, id uuid.UUID) (RID, error) {
	if name == "" || strings.ContainsAny(name, ":+") {
		return RID{}, fmt.Errorf("rid: bad node name %q", name)
	}
	return RID{ns: NSNode, ref: name + "+" + id.String()}, nil
}

// Edge mints an edge identity from a unique id
func Edge(id uuid.UUID) RID {
	return RID{ns: NSEdge, ref: id.String()}
}

func checkSegment(what, v string) error {
	if v == "" {
		return fmt.Errorf("rid: empty %s", what)
	}
	if strings.Contains(v, "/") {
		return fmt.Errorf("rid: %s %q contains a slash", what, v)
	}
	return nil
}
