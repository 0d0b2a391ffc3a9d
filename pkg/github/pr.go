package github

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/merge-ready/pkg/cache"
	"github.com/codeGROOVE-dev/merge-ready/pkg/types"
)

const (
	perPageLimit = 100 // GitHub API per_page limit
	maxPages     = 30  // GitHub stops listing PR files at 3000
)

type login struct {
	Login string `json:"login"`
}

// paginate walks ?per_page=100&page=N until a short page or maxPages.
// decode receives the page URL and returns the page's items.
func paginate[T any](ctx context.Context, baseURL string, decode func(ctx context.Context, pageURL string) ([]T, error)) ([]T, error) {
	sep := "?"
	if strings.Contains(baseURL, "?") {
		sep = "&"
	}

	var all []T
	for page := 1; page <= maxPages; page++ {
		items, err := decode(ctx, fmt.Sprintf("%s%sper_page=%d&page=%d", baseURL, sep, perPageLimit, page))
		if err != nil {
			return nil, err
		}
		all = append(all, items...)
		if len(items) < perPageLimit {
			return all, nil
		}
	}
	slog.Warn("Pagination limit reached, results truncated", "component", "api", "url", baseURL, "pages", maxPages)
	return all, nil
}

// listAll paginates an endpoint that returns a bare JSON array.
func listAll[T any](ctx context.Context, c *Client, owner, baseURL string) ([]T, error) {
	return paginate(ctx, baseURL, func(ctx context.Context, pageURL string) ([]T, error) {
		var items []T
		err := c.getJSON(ctx, owner, pageURL, &items)
		return items, err
	})
}

// PullRequest fetches pull request metadata. A missing PR wraps types.ErrPullRequestNotFound.
func (c *Client) PullRequest(ctx context.Context, owner, repo string, number int) (*types.PullRequest, error) {
	slog.Info("Fetching PR metadata", "component", "api", "owner", owner, "repo", repo, "pr", number)

	var data struct {
		CreatedAt          time.Time `json:"created_at"`
		UpdatedAt          time.Time `json:"updated_at"`
		Mergeable          *bool     `json:"mergeable"`
		User               login     `json:"user"`
		Title              string    `json:"title"`
		State              string    `json:"state"`
		HTMLURL            string    `json:"html_url"`
		MergeableState     string    `json:"mergeable_state"`
		RequestedReviewers []login   `json:"requested_reviewers"`
		RequestedTeams     []struct {
			Slug string `json:"slug"`
		} `json:"requested_teams"`
		Head struct {
			SHA string `json:"sha"`
		} `json:"head"`
		Number       int  `json:"number"`
		Additions    int  `json:"additions"`
		Deletions    int  `json:"deletions"`
		ChangedFiles int  `json:"changed_files"`
		Draft        bool `json:"draft"`
	}
	if err := c.getJSON(ctx, owner, c.repoURL(owner, repo, "/pulls/%d", number), &data); err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%s/%s#%d: %w", owner, repo, number, types.ErrPullRequestNotFound)
		}
		return nil, fmt.Errorf("failed to get PR: %w", err)
	}

	pr := &types.PullRequest{
		Number:         data.Number,
		Title:          data.Title,
		State:          data.State,
		Author:         data.User.Login,
		URL:            data.HTMLURL,
		Owner:          owner,
		Repository:     repo,
		HeadSHA:        data.Head.SHA,
		Draft:          data.Draft,
		Mergeable:      data.Mergeable,
		MergeableState: data.MergeableState,
		Additions:      data.Additions,
		Deletions:      data.Deletions,
		ChangedFiles:   data.ChangedFiles,
		CreatedAt:      data.CreatedAt,
		UpdatedAt:      data.UpdatedAt,
	}
	for _, r := range data.RequestedReviewers {
		pr.RequestedReviewers = append(pr.RequestedReviewers, r.Login)
	}
	for _, t := range data.RequestedTeams {
		pr.RequestedTeams = append(pr.RequestedTeams, t.Slug)
	}
	return pr, nil
}

// Reviews fetches every submitted review in chronological order.
func (c *Client) Reviews(ctx context.Context, owner, repo string, number int) ([]types.Review, error) {
	slog.Info("Fetching PR reviews", "component", "api", "owner", owner, "repo", repo, "pr", number)

	type review struct {
		SubmittedAt time.Time `json:"submitted_at"`
		User        *login    `json:"user"` // null for deleted accounts
		State       string    `json:"state"`
	}
	raw, err := listAll[review](ctx, c, owner, c.repoURL(owner, repo, "/pulls/%d/reviews", number))
	if err != nil {
		return nil, err
	}

	reviews := make([]types.Review, 0, len(raw))
	for _, r := range raw {
		if r.User == nil {
			continue
		}
		reviews = append(reviews, types.Review{Reviewer: r.User.Login, State: r.State, SubmittedAt: r.SubmittedAt})
	}
	return reviews, nil
}

// CheckRuns fetches the check runs reported against a commit.
func (c *Client) CheckRuns(ctx context.Context, owner, repo, sha string) ([]types.CheckRun, error) {
	slog.Info("Fetching check runs", "component", "api", "owner", owner, "repo", repo, "sha", sha)

	type checkRun struct {
		Name       string `json:"name"`
		Status     string `json:"status"`
		Conclusion string `json:"conclusion"`
		HTMLURL    string `json:"html_url"`
	}
	raw, err := paginate(ctx, c.repoURL(owner, repo, "/commits/%s/check-runs", sha),
		func(ctx context.Context, pageURL string) ([]checkRun, error) {
			var page struct {
				CheckRuns  []checkRun `json:"check_runs"`
				TotalCount int        `json:"total_count"`
			}
			err := c.getJSON(ctx, owner, pageURL, &page)
			return page.CheckRuns, err
		})
	if err != nil {
		return nil, err
	}

	runs := make([]types.CheckRun, 0, len(raw))
	for _, r := range raw {
		runs = append(runs, types.CheckRun{Name: r.Name, Status: r.Status, Conclusion: r.Conclusion, DetailsURL: r.HTMLURL})
	}
	return runs, nil
}

// CommitStatuses fetches legacy commit statuses and maps them onto check runs.
func (c *Client) CommitStatuses(ctx context.Context, owner, repo, sha string) ([]types.CheckRun, error) {
	slog.Info("Fetching commit statuses", "component", "api", "owner", owner, "repo", repo, "sha", sha)

	var combined struct {
		Statuses []struct {
			Context   string `json:"context"`
			State     string `json:"state"`
			TargetURL string `json:"target_url"`
		} `json:"statuses"`
	}
	apiURL := c.repoURL(owner, repo, "/commits/%s/status?per_page=%d", sha, perPageLimit)
	if err := c.getJSON(ctx, owner, apiURL, &combined); err != nil {
		return nil, err
	}

	runs := make([]types.CheckRun, 0, len(combined.Statuses))
	for _, s := range combined.Statuses {
		status, conclusion := statusToCheck(s.State)
		runs = append(runs, types.CheckRun{Name: s.Context, Status: status, Conclusion: conclusion, DetailsURL: s.TargetURL})
	}
	return runs, nil
}

// statusToCheck maps a commit status state onto check run status and conclusion.
func statusToCheck(state string) (status, conclusion string) {
	switch state {
	case "success", "failure", "error":
		return "completed", state
	default:
		return "in_progress", ""
	}
}

// ChangedFiles fetches the files changed in a PR. Lists are cached by head SHA, which pins their content.
func (c *Client) ChangedFiles(ctx context.Context, owner, repo string, number int, sha string) ([]types.ChangedFile, error) {
	cacheKey := fmt.Sprintf("pr-files:%s/%s:%d:%s", owner, repo, number, sha)
	if sha != "" {
		var files []types.ChangedFile
		if hit := cache.GetJSON(ctx, c.cache, cacheKey, &files); hit != cache.Miss {
			slog.Info("Fetching changed files", "component", "api", "owner", owner, "repo", repo, "pr", number, "cache", hit)
			return files, nil
		}
	}

	slog.Info("Fetching changed files", "component", "api", "owner", owner, "repo", repo, "pr", number, "cache", cache.Miss)
	files, err := listAll[types.ChangedFile](ctx, c, owner, c.repoURL(owner, repo, "/pulls/%d/files", number))
	if err != nil {
		return nil, err
	}
	if sha != "" {
		cache.SetJSON(ctx, c.cache, cacheKey, files, c.filesTTL)
	}
	return files, nil
}

// Comments fetches the PR conversation comments.
func (c *Client) Comments(ctx context.Context, owner, repo string, number int) ([]types.Comment, error) {
	slog.Info("Fetching PR comments", "component", "api", "owner", owner, "repo", repo, "pr", number)

	type comment struct {
		CreatedAt time.Time `json:"created_at"`
		User      *login    `json:"user"`
		Body      string    `json:"body"`
	}
	raw, err := listAll[comment](ctx, c, owner, c.repoURL(owner, repo, "/issues/%d/comments", number))
	if err != nil {
		return nil, err
	}

	comments := make([]types.Comment, 0, len(raw))
	for _, cm := range raw {
		author := ""
		if cm.User != nil {
			author = cm.User.Login
		}
		comments = append(comments, types.Comment{Author: author, Body: cm.Body, CreatedAt: cm.CreatedAt})
	}
	return comments, nil
}

// OpenPullRequests lists open pull requests, newest first, without per-PR detail.
func (c *Client) OpenPullRequests(ctx context.Context, owner, repo string) ([]types.PullRequest, error) {
	cacheKey := fmt.Sprintf("open-prs:%s/%s", owner, repo)
	var prs []types.PullRequest
	if hit := cache.GetJSON(ctx, c.cache, cacheKey, &prs); hit != cache.Miss {
		return prs, nil
	}

	slog.Info("Fetching open PRs", "component", "api", "owner", owner, "repo", repo)
	type listed struct {
		UpdatedAt time.Time `json:"updated_at"`
		User      login     `json:"user"`
		Title     string    `json:"title"`
		HTMLURL   string    `json:"html_url"`
		Number    int       `json:"number"`
		Draft     bool      `json:"draft"`
	}
	raw, err := listAll[listed](ctx, c, owner, c.repoURL(owner, repo, "/pulls?state=open&sort=updated&direction=desc"))
	if err != nil {
		return nil, fmt.Errorf("failed to list PRs: %w", err)
	}

	prs = make([]types.PullRequest, 0, len(raw))
	for _, p := range raw {
		prs = append(prs, types.PullRequest{
			Number:     p.Number,
			Title:      p.Title,
			Author:     p.User.Login,
			URL:        p.HTMLURL,
			Owner:      owner,
			Repository: repo,
			State:      "open",
			Draft:      p.Draft,
			UpdatedAt:  p.UpdatedAt,
		})
	}
	cache.SetJSON(ctx, c.cache, cacheKey, prs, cache.TTLOpenPullRequests)
	return prs, nil
}
