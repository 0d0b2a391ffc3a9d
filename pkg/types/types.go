// Package types contains the raw platform data shared by the fetch layers and the readiness engine.
//
//nolint:revive // "types" is a standard Go package name for shared data structures
package types

import (
	"errors"
	"time"
)

// ErrPullRequestNotFound is returned by fetchers when the pull request itself cannot be retrieved.
var ErrPullRequestNotFound = errors.New("pull request not found")

// Review decision strings as reported by the platform.
const (
	ReviewApproved         = "APPROVED"
	ReviewChangesRequested = "CHANGES_REQUESTED"
	ReviewCommented        = "COMMENTED"
	ReviewDismissed        = "DISMISSED"
	ReviewPending          = "PENDING"
)

// PullRequest represents pull request metadata as returned by the platform.
type PullRequest struct {
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
	Mergeable          *bool     `json:"mergeable"` // nil while the platform is still computing mergeability
	Title              string    `json:"title"`
	State              string    `json:"state"`
	Author             string    `json:"author"`
	URL                string    `json:"url"`
	Owner              string    `json:"owner"`
	Repository         string    `json:"repository"`
	HeadSHA            string    `json:"head_sha"`
	MergeableState     string    `json:"mergeable_state"` // "clean", "dirty", "blocked", "unstable", "unknown"
	RequestedReviewers []string  `json:"requested_reviewers"`
	RequestedTeams     []string  `json:"requested_teams"`
	Number             int       `json:"number"`
	Additions          int       `json:"additions"`
	Deletions          int       `json:"deletions"`
	ChangedFiles       int       `json:"changed_files"`
	Draft              bool      `json:"draft"`
}

// Review is a single submitted review.
type Review struct {
	SubmittedAt time.Time `json:"submitted_at"`
	Reviewer    string    `json:"reviewer"`
	State       string    `json:"state"`
}

// CheckRun is one CI or status check reported against the head commit.
type CheckRun struct {
	Name       string `json:"name"`
	Status     string `json:"status"`     // "queued", "in_progress", "completed", ...
	Conclusion string `json:"conclusion"` // only meaningful when Status is "completed"
	DetailsURL string `json:"details_url,omitempty"`
}

// ChangedFile represents a file changed in a pull request.
type ChangedFile struct {
	Filename  string `json:"filename"`
	Status    string `json:"status"` // "added", "modified", "removed", "renamed"
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
}

// Comment is a conversation comment on a pull request.
type Comment struct {
	CreatedAt time.Time `json:"created_at"`
	Author    string    `json:"author"`
	Body      string    `json:"body"`
}

// RawSnapshot is everything fetched for one pull request at one point in time.
// Sub-resources that could not be fetched are left empty and named in Degraded.
type RawSnapshot struct {
	FetchedAt   time.Time     `json:"fetched_at"`
	PullRequest *PullRequest  `json:"pull_request"`
	Reviews     []Review      `json:"reviews"`
	CheckRuns   []CheckRun    `json:"check_runs"`
	Files       []ChangedFile `json:"files"`
	Comments    []Comment     `json:"comments"`
	Degraded    []string      `json:"degraded,omitempty"`
}
