package readiness

import (
	"sort"
	"time"

	"github.com/codeGROOVE-dev/merge-ready/pkg/types"
)

// DefaultTopFiles is how many changed files a report lists when Options.TopFiles is unset.
const DefaultTopFiles = 5

// Options tunes the display part of a report. It never affects the verdict.
type Options struct {
	TopFiles int
}

// CheckCounts summarizes the check list for display.
type CheckCounts struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Passed    int `json:"passed"`
	Failing   int `json:"failing"`
	Pending   int `json:"pending"`
}

// Summary echoes the figures behind a verdict.
type Summary struct {
	PassRatio         *float64            `json:"pass_ratio,omitempty"` // nil when no check has completed
	Mergeable         Mergeability        `json:"mergeable"`
	Reviewers         []Reviewer          `json:"reviewers"`
	Checks            []Check             `json:"checks"`
	TopFiles          []types.ChangedFile `json:"top_files"`
	Degraded          []string            `json:"degraded,omitempty"`
	CheckCounts       CheckCounts         `json:"check_counts"`
	ApprovalRatio     float64             `json:"approval_ratio"`
	Approvals         int                 `json:"approvals"`
	RequiredApprovals int                 `json:"required_approvals"`
	ChangedFiles      int                 `json:"changed_files"`
	Additions         int                 `json:"additions"`
	Deletions         int                 `json:"deletions"`
	Comments          int                 `json:"comments"`
	Draft             bool                `json:"draft"`
}

// PullRequestRef identifies the evaluated pull request.
type PullRequestRef struct {
	Owner      string `json:"owner"`
	Repository string `json:"repository"`
	Title      string `json:"title"`
	Author     string `json:"author"`
	URL        string `json:"url,omitempty"`
	HeadSHA    string `json:"head_sha,omitempty"`
	Number     int    `json:"number"`
}

// Report is a verdict plus everything needed to present it.
type Report struct {
	EvaluatedAt time.Time      `json:"evaluated_at"`
	PullRequest PullRequestRef `json:"pull_request"`
	Summary     Summary        `json:"summary"`
	Verdict
}

// Evaluate extracts, classifies and summarizes a raw snapshot.
func Evaluate(raw *types.RawSnapshot, opts Options) (*Report, error) {
	s, err := Extract(raw)
	if err != nil {
		return nil, err
	}
	pr := raw.PullRequest
	return &Report{
		EvaluatedAt: raw.FetchedAt,
		PullRequest: PullRequestRef{
			Owner:      pr.Owner,
			Repository: pr.Repository,
			Number:     pr.Number,
			Title:      pr.Title,
			Author:     pr.Author,
			URL:        pr.URL,
			HeadSHA:    pr.HeadSHA,
		},
		Verdict: Classify(s),
		Summary: Summarize(s, raw.Degraded, opts),
	}, nil
}

// Summarize computes the display figures for a snapshot.
func Summarize(s *Snapshot, degraded []string, opts Options) Summary {
	counts := CheckCounts{Total: len(s.Checks)}
	for _, c := range s.Checks {
		if c.Completed {
			counts.Completed++
		}
		switch {
		case c.State == CheckSuccess:
			counts.Passed++
		case c.State.Failing():
			counts.Failing++
		default:
			counts.Pending++
		}
	}

	// Only completed checks can pass, so Passed/Completed is the completed pass ratio.
	var passRatio *float64
	if counts.Completed > 0 {
		r := float64(counts.Passed) / float64(counts.Completed)
		passRatio = &r
	}

	approvalRatio := 0.0
	if s.RequiredApprovals > 0 {
		approvalRatio = float64(s.Approvals) / float64(s.RequiredApprovals)
	}

	return Summary{
		Mergeable:         s.Mergeable,
		Draft:             s.Draft,
		Approvals:         s.Approvals,
		RequiredApprovals: s.RequiredApprovals,
		ApprovalRatio:     approvalRatio,
		Reviewers:         s.Reviewers,
		Checks:            s.Checks,
		CheckCounts:       counts,
		PassRatio:         passRatio,
		TopFiles:          topFiles(s.Files, opts.TopFiles),
		ChangedFiles:      s.ChangedFiles,
		Additions:         s.Additions,
		Deletions:         s.Deletions,
		Comments:          s.CommentCount,
		Degraded:          degraded,
	}
}

// topFiles returns the n largest changes, largest first. Ties keep platform order.
func topFiles(files []types.ChangedFile, n int) []types.ChangedFile {
	if n <= 0 {
		n = DefaultTopFiles
	}
	sorted := make([]types.ChangedFile, len(files))
	copy(sorted, files)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Additions+sorted[i].Deletions > sorted[j].Additions+sorted[j].Deletions
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}
