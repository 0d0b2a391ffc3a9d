package readiness

import (
	"errors"
	"strings"

	"github.com/codeGROOVE-dev/merge-ready/pkg/types"
)

// ErrNoPullRequest is returned by Extract when the raw snapshot has no pull request metadata.
var ErrNoPullRequest = errors.New("snapshot has no pull request metadata")

// Mergeability is the tri-state conflict signal.
type Mergeability string

// Mergeability values.
const (
	MergeableUnknown     Mergeability = "unknown"
	MergeableClean       Mergeability = "clean"
	MergeableConflicting Mergeability = "conflicting"
)

// Check is a check run with its normalized state.
type Check struct {
	Name       string     `json:"name"`
	Status     string     `json:"status"`
	Conclusion string     `json:"conclusion,omitempty"`
	State      CheckState `json:"state"`
	DetailsURL string     `json:"details_url,omitempty"`
	Completed  bool       `json:"completed"`
}

// Reviewer is a requested or participating reviewer with their latest decision.
// Decision is empty for reviewers who were requested but have not decided yet.
type Reviewer struct {
	Login    string `json:"login"`
	Decision string `json:"decision,omitempty"`
}

// Snapshot is the canonical, immutable signal set for one pull request.
// Build it with Extract; the classifier never modifies it.
type Snapshot struct {
	Title              string
	Author             string
	Mergeable          Mergeability
	RequestedReviewers []string
	Reviewers          []Reviewer
	Checks             []Check
	Files              []types.ChangedFile
	Approvals          int
	RequiredApprovals  int
	ChangedFiles       int
	Additions          int
	Deletions          int
	CommentCount       int
	Draft              bool
}

// Extract normalizes a raw platform snapshot. Missing reviews, checks, files or comments
// degrade to empty; only a snapshot without pull request metadata is an error.
func Extract(raw *types.RawSnapshot) (*Snapshot, error) {
	if raw == nil || raw.PullRequest == nil {
		return nil, ErrNoPullRequest
	}
	pr := raw.PullRequest

	requested := requestedReviewers(pr)
	reviewers, approvals := resolveReviews(requested, raw.Reviews)

	checks := make([]Check, 0, len(raw.CheckRuns))
	for _, run := range raw.CheckRuns {
		checks = append(checks, Check{
			Name:       run.Name,
			Status:     run.Status,
			Conclusion: run.Conclusion,
			State:      NormalizeCheck(run.Status, run.Conclusion),
			DetailsURL: run.DetailsURL,
			Completed:  isCompleted(run.Status),
		})
	}

	files := make([]types.ChangedFile, len(raw.Files))
	copy(files, raw.Files)

	changed := pr.ChangedFiles
	if changed == 0 {
		changed = len(files)
	}

	return &Snapshot{
		Title:              pr.Title,
		Author:             pr.Author,
		Draft:              pr.Draft,
		Mergeable:          mergeability(pr.Mergeable),
		RequestedReviewers: requested,
		Reviewers:          reviewers,
		Approvals:          approvals,
		RequiredApprovals:  max(1, len(requested)),
		Checks:             checks,
		Files:              files,
		ChangedFiles:       changed,
		Additions:          pr.Additions,
		Deletions:          pr.Deletions,
		CommentCount:       len(raw.Comments),
	}, nil
}

func mergeability(m *bool) Mergeability {
	switch {
	case m == nil:
		return MergeableUnknown
	case *m:
		return MergeableClean
	default:
		return MergeableConflicting
	}
}

// requestedReviewers returns the requested users followed by requested teams, without blanks or duplicates.
func requestedReviewers(pr *types.PullRequest) []string {
	seen := make(map[string]bool)
	out := make([]string, 0, len(pr.RequestedReviewers)+len(pr.RequestedTeams))
	for _, name := range append(append([]string{}, pr.RequestedReviewers...), pr.RequestedTeams...) {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// isDecision reports whether a review state replaces the reviewer's earlier decision.
// Comments and pending reviews never override an approval or a change request.
func isDecision(state string) bool {
	switch state {
	case types.ReviewApproved, types.ReviewChangesRequested, types.ReviewDismissed:
		return true
	default:
		return false
	}
}

// resolveReviews keeps the latest decision per reviewer and counts approvals.
// Reviewers are listed requested-first, then in order of first review.
func resolveReviews(requested []string, reviews []types.Review) ([]Reviewer, int) {
	order := make([]string, 0, len(requested)+len(reviews))
	decisions := make(map[string]string)
	known := make(map[string]bool)

	for _, login := range requested {
		known[login] = true
		order = append(order, login)
	}
	for _, r := range reviews {
		login := strings.TrimSpace(r.Reviewer)
		if login == "" {
			continue
		}
		if !known[login] {
			known[login] = true
			order = append(order, login)
		}
		state := strings.ToUpper(strings.TrimSpace(r.State))
		if isDecision(state) {
			decisions[login] = state
		}
	}

	reviewers := make([]Reviewer, 0, len(order))
	approvals := 0
	for _, login := range order {
		decision := decisions[login]
		if decision == types.ReviewApproved {
			approvals++
		}
		reviewers = append(reviewers, Reviewer{Login: login, Decision: decision})
	}
	return reviewers, approvals
}
