// Package prref parses the ways people write down a pull or merge request.
package prref

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ErrInvalidReference is returned for input that names no pull request.
var ErrInvalidReference = errors.New("invalid pull request reference")

// Platform identifies the code review host.
type Platform string

// Supported platforms.
const (
	GitHub Platform = "github"
	GitLab Platform = "gitlab"
)

// Ref is a parsed pull request reference.
// For GitLab, Owner holds the full namespace path ("group/subgroup").
type Ref struct {
	Platform Platform
	Host     string // empty for the public github.com / gitlab.com
	Owner    string
	Repo     string
	Number   int
	FromURL  bool // Host names the instance; shorthand refs leave it to the caller
}

// String renders the reference in its platform's shorthand.
func (r Ref) String() string {
	sep := "#"
	if r.Platform == GitLab {
		sep = "!"
	}
	return fmt.Sprintf("%s/%s%s%d", r.Owner, r.Repo, sep, r.Number)
}

// Parse accepts:
//
//	owner/repo#123
//	group/project!123
//	https://github.com/owner/repo/pull/123[/files...]
//	https://gitlab.example.com/group/sub/project/-/merge_requests/123
func Parse(input string) (Ref, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return Ref{}, fmt.Errorf("%w: empty", ErrInvalidReference)
	}
	if strings.Contains(s, "://") {
		return parseURL(s)
	}
	if i := strings.LastIndexByte(s, '#'); i > 0 {
		return shorthand(GitHub, s[:i], s[i+1:], input)
	}
	if i := strings.LastIndexByte(s, '!'); i > 0 {
		return shorthand(GitLab, s[:i], s[i+1:], input)
	}
	return Ref{}, fmt.Errorf("%w: %q (want owner/repo#N or a URL)", ErrInvalidReference, input)
}

func shorthand(p Platform, path, num, input string) (Ref, error) {
	n, err := parseNumber(num)
	if err != nil {
		return Ref{}, fmt.Errorf("%w: %q: %w", ErrInvalidReference, input, err)
	}
	owner, repo, ok := splitRepo(path, p == GitLab)
	if !ok {
		return Ref{}, fmt.Errorf("%w: %q: repository must be owner/repo", ErrInvalidReference, input)
	}
	return Ref{Platform: p, Owner: owner, Repo: repo, Number: n}, nil
}

func parseURL(s string) (Ref, error) {
	u, err := url.Parse(s)
	if err != nil {
		return Ref{}, fmt.Errorf("%w: %w", ErrInvalidReference, err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return Ref{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidReference, u.Scheme)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	host := strings.ToLower(u.Host)

	// GitLab: <namespace...>/<project>/-/merge_requests/<n>[/...]
	for i := 0; i+2 < len(parts); i++ {
		if parts[i] == "-" && parts[i+1] == "merge_requests" {
			return urlRef(GitLab, host, "gitlab.com", parts[:i], parts[i+2], s)
		}
	}
	// GitHub: <owner>/<repo>/pull/<n>[/...]
	if len(parts) >= 4 && (parts[2] == "pull" || parts[2] == "pulls") {
		return urlRef(GitHub, host, "github.com", parts[:2], parts[3], s)
	}
	return Ref{}, fmt.Errorf("%w: %q is not a pull or merge request URL", ErrInvalidReference, s)
}

func urlRef(p Platform, host, publicHost string, path []string, num, input string) (Ref, error) {
	n, err := parseNumber(num)
	if err != nil {
		return Ref{}, fmt.Errorf("%w: %q: %w", ErrInvalidReference, input, err)
	}
	owner, repo, ok := splitRepo(strings.Join(path, "/"), p == GitLab)
	if !ok {
		return Ref{}, fmt.Errorf("%w: %q: missing owner or repository", ErrInvalidReference, input)
	}
	if host == publicHost || host == "www."+publicHost {
		host = ""
	}
	return Ref{Platform: p, Host: host, Owner: owner, Repo: repo, Number: n, FromURL: true}, nil
}

// splitRepo splits at the last slash. Only GitLab allows nested namespaces.
func splitRepo(path string, nested bool) (owner, repo string, ok bool) {
	i := strings.LastIndexByte(path, '/')
	if i <= 0 || i == len(path)-1 {
		return "", "", false
	}
	owner, repo = path[:i], path[i+1:]
	if !nested && strings.Contains(owner, "/") {
		return "", "", false
	}
	for _, seg := range strings.Split(owner, "/") {
		if seg == "" {
			return "", "", false
		}
	}
	return owner, repo, true
}

func parseNumber(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("number %q is not an integer", s)
	}
	if n <= 0 {
		return 0, fmt.Errorf("number %d must be positive", n)
	}
	return n, nil
}

// ParseRepo parses "owner/repo" for the interactive picker. GitLab accepts nested namespaces.
func ParseRepo(s string, p Platform) (owner, repo string, err error) {
	owner, repo, ok := splitRepo(strings.Trim(strings.TrimSpace(s), "/"), p == GitLab)
	if !ok {
		return "", "", fmt.Errorf("%w: %q (want owner/repo)", ErrInvalidReference, s)
	}
	return owner, repo, nil
}
