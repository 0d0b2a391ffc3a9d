// Package gitlab builds readiness snapshots from GitLab merge requests.
package gitlab

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	gitlab "gitlab.com/gitlab-org/api/client-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/codeGROOVE-dev/merge-ready/pkg/cache"
	"github.com/codeGROOVE-dev/merge-ready/pkg/types"
)

const (
	perPage    = 100
	maxPages   = 30
	tracerName = "github.com/codeGROOVE-dev/merge-ready/pkg/gitlab"
)

// Sub-fetch names reported in RawSnapshot.Degraded.
const (
	PartApprovals = "approvals"
	PartStatuses  = "statuses"
	PartFiles     = "files"
	PartComments  = "comments"
)

// Merge statuses GitLab reports while it is still computing mergeability.
var pendingMergeStatuses = map[string]bool{
	"unchecked":         true,
	"checking":          true,
	"preparing":         true,
	"approvals_syncing": true,
}

// Config configures a GitLab source.
type Config struct {
	HTTPClient *http.Client
	Cache      cache.Store
	Token      string
	BaseURL    string // instance root such as https://gitlab.example.com; empty = gitlab.com
	FilesTTL   time.Duration
}

// Source fetches merge requests through the GitLab API.
type Source struct {
	client   *gitlab.Client
	cache    cache.Store
	tracer   trace.Tracer
	now      func() time.Time
	filesTTL time.Duration
}

// New creates a GitLab source.
func New(cfg Config) (*Source, error) {
	var opts []gitlab.ClientOptionFunc
	if cfg.BaseURL != "" {
		opts = append(opts, gitlab.WithBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")+"/api/v4"))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, gitlab.WithHTTPClient(cfg.HTTPClient))
	}
	client, err := gitlab.NewClient(cfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating gitlab client: %w", err)
	}
	filesTTL := cfg.FilesTTL
	if filesTTL <= 0 {
		filesTTL = cache.TTLFiles
	}
	return &Source{client: client, cache: cfg.Cache, tracer: otel.Tracer(tracerName), now: time.Now, filesTTL: filesTTL}, nil
}

func projectPath(namespace, project string) string {
	return namespace + "/" + project
}

func isNotFound(resp *gitlab.Response) bool {
	return resp != nil && resp.StatusCode == http.StatusNotFound
}

// collect drains a paginated listing. next returns one page and whether another follows.
func collect[T any](next func() ([]T, bool, error)) ([]T, error) {
	var all []T
	for range maxPages {
		items, more, err := next()
		if err != nil {
			return nil, err
		}
		all = append(all, items...)
		if !more {
			return all, nil
		}
	}
	slog.Warn("Pagination limit reached, results truncated", "component", "gitlab", "pages", maxPages)
	return all, nil
}

// PullRequest fetches merge request metadata. A missing MR wraps types.ErrPullRequestNotFound.
func (s *Source) PullRequest(ctx context.Context, namespace, project string, iid int) (*types.PullRequest, error) {
	slog.Info("Fetching MR metadata", "component", "gitlab", "project", projectPath(namespace, project), "mr", iid)

	mr, resp, err := s.client.MergeRequests.GetMergeRequest(projectPath(namespace, project), int64(iid), nil, gitlab.WithContext(ctx))
	if err != nil {
		if isNotFound(resp) {
			return nil, fmt.Errorf("%s!%d: %w", projectPath(namespace, project), iid, types.ErrPullRequestNotFound)
		}
		return nil, fmt.Errorf("fetching merge request from gitlab: %w", err)
	}

	pr := &types.PullRequest{
		Number:         iid,
		Title:          mr.Title,
		State:          mr.State,
		URL:            mr.WebURL,
		Owner:          namespace,
		Repository:     project,
		HeadSHA:        mr.SHA,
		Draft:          mr.Draft,
		MergeableState: mr.DetailedMergeStatus,
		Mergeable:      mergeable(mr.HasConflicts, mr.DetailedMergeStatus),
	}
	if mr.Author != nil {
		pr.Author = mr.Author.Username
	}
	for _, r := range mr.Reviewers {
		if r != nil {
			pr.RequestedReviewers = append(pr.RequestedReviewers, r.Username)
		}
	}
	if mr.CreatedAt != nil {
		pr.CreatedAt = *mr.CreatedAt
	}
	if mr.UpdatedAt != nil {
		pr.UpdatedAt = *mr.UpdatedAt
	}
	// "1000+" for very large merge requests; the file list is used instead.
	if n, err := strconv.Atoi(mr.ChangesCount); err == nil {
		pr.ChangedFiles = n
	}
	return pr, nil
}

// mergeable maps conflict state onto the tri-state signal. Nil means GitLab has not decided yet.
func mergeable(hasConflicts bool, detailedStatus string) *bool {
	if hasConflicts {
		v := false
		return &v
	}
	if detailedStatus == "" || pendingMergeStatuses[detailedStatus] {
		return nil
	}
	v := true
	return &v
}

// Approvals returns one APPROVED review per approving user.
func (s *Source) Approvals(ctx context.Context, namespace, project string, iid int) ([]types.Review, error) {
	cfg, _, err := s.client.MergeRequestApprovals.GetConfiguration(projectPath(namespace, project), int64(iid), gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("fetching approvals from gitlab: %w", err)
	}
	var reviews []types.Review
	for _, a := range cfg.ApprovedBy {
		if a == nil || a.User == nil {
			continue
		}
		reviews = append(reviews, types.Review{Reviewer: a.User.Username, State: types.ReviewApproved})
	}
	return reviews, nil
}

// CommitStatuses fetches pipeline job statuses for sha in check run vocabulary.
func (s *Source) CommitStatuses(ctx context.Context, namespace, project, sha string) ([]types.CheckRun, error) {
	opts := &gitlab.GetCommitStatusesOptions{ListOptions: gitlab.ListOptions{PerPage: perPage}}
	statuses, err := collect(func() ([]*gitlab.CommitStatus, bool, error) {
		page, resp, err := s.client.Commits.GetCommitStatuses(projectPath(namespace, project), sha, opts, gitlab.WithContext(ctx))
		if err != nil {
			return nil, false, fmt.Errorf("fetching commit statuses from gitlab: %w", err)
		}
		opts.Page = resp.NextPage
		return page, resp.NextPage != 0, nil
	})
	if err != nil {
		return nil, err
	}

	runs := make([]types.CheckRun, 0, len(statuses))
	for _, st := range statuses {
		if st == nil {
			continue
		}
		status, conclusion := checkState(st.Status, st.AllowFailure)
		runs = append(runs, types.CheckRun{Name: st.Name, Status: status, Conclusion: conclusion, DetailsURL: st.TargetURL})
	}
	return runs, nil
}

// checkState maps a GitLab job status onto check run status and conclusion.
// Failures of jobs marked allow_failure do not block and count as skipped.
func checkState(status string, allowFailure bool) (string, string) {
	switch status {
	case "success":
		return "completed", "success"
	case "failed":
		if allowFailure {
			return "completed", "skipped"
		}
		return "completed", "failure"
	case "canceled", "canceling":
		return "completed", "cancelled"
	case "skipped":
		return "completed", "skipped"
	default: // created, pending, running, manual, scheduled, waiting_for_resource, preparing
		return "in_progress", ""
	}
}

// ChangedFiles lists the MR diffs, cached by head SHA.
func (s *Source) ChangedFiles(ctx context.Context, namespace, project string, iid int, sha string) ([]types.ChangedFile, error) {
	cacheKey := fmt.Sprintf("mr-files:%s:%d:%s", projectPath(namespace, project), iid, sha)
	if sha != "" {
		var files []types.ChangedFile
		if hit := cache.GetJSON(ctx, s.cache, cacheKey, &files); hit != cache.Miss {
			return files, nil
		}
	}

	opts := &gitlab.ListMergeRequestDiffsOptions{ListOptions: gitlab.ListOptions{PerPage: perPage}}
	diffs, err := collect(func() ([]*gitlab.MergeRequestDiff, bool, error) {
		page, resp, err := s.client.MergeRequests.ListMergeRequestDiffs(projectPath(namespace, project), int64(iid), opts, gitlab.WithContext(ctx))
		if err != nil {
			return nil, false, fmt.Errorf("fetching merge request diffs from gitlab: %w", err)
		}
		opts.Page = resp.NextPage
		return page, resp.NextPage != 0, nil
	})
	if err != nil {
		return nil, err
	}

	files := make([]types.ChangedFile, 0, len(diffs))
	for _, d := range diffs {
		if d == nil {
			continue
		}
		f := types.ChangedFile{Filename: d.NewPath, Status: "modified"}
		switch {
		case d.NewFile:
			f.Status = "added"
		case d.DeletedFile:
			f.Status = "removed"
			f.Filename = d.OldPath
		case d.RenamedFile:
			f.Status = "renamed"
		}
		f.Additions, f.Deletions = countLines(d.Diff)
		files = append(files, f)
	}

	if sha != "" {
		cache.SetJSON(ctx, s.cache, cacheKey, files, s.filesTTL)
	}
	return files, nil
}

// countLines counts added and removed lines in an MR diff body. GitLab omits the
// ---/+++ file headers, so every +/- line is content.
func countLines(diff string) (additions, deletions int) {
	for line := range strings.SplitSeq(diff, "\n") {
		switch {
		case strings.HasPrefix(line, "@@"):
		case strings.HasPrefix(line, "+"):
			additions++
		case strings.HasPrefix(line, "-"):
			deletions++
		}
	}
	return additions, deletions
}

// Comments lists human notes on the MR. System notes are skipped.
func (s *Source) Comments(ctx context.Context, namespace, project string, iid int) ([]types.Comment, error) {
	opts := &gitlab.ListMergeRequestNotesOptions{ListOptions: gitlab.ListOptions{PerPage: perPage}}
	notes, err := collect(func() ([]*gitlab.Note, bool, error) {
		page, resp, err := s.client.Notes.ListMergeRequestNotes(projectPath(namespace, project), int64(iid), opts, gitlab.WithContext(ctx))
		if err != nil {
			return nil, false, fmt.Errorf("fetching notes from gitlab: %w", err)
		}
		opts.Page = resp.NextPage
		return page, resp.NextPage != 0, nil
	})
	if err != nil {
		return nil, err
	}

	var comments []types.Comment
	for _, n := range notes {
		if n == nil || n.System {
			continue
		}
		c := types.Comment{Author: n.Author.Username, Body: n.Body}
		if n.CreatedAt != nil {
			c.CreatedAt = *n.CreatedAt
		}
		comments = append(comments, c)
	}
	return comments, nil
}

// OpenPullRequests lists open merge requests, most recently updated first.
func (s *Source) OpenPullRequests(ctx context.Context, namespace, project string) ([]types.PullRequest, error) {
	opts := &gitlab.ListProjectMergeRequestsOptions{
		ListOptions: gitlab.ListOptions{PerPage: perPage},
		State:       gitlab.Ptr("opened"),
		OrderBy:     gitlab.Ptr("updated_at"),
	}
	mrs, err := collect(func() ([]*gitlab.BasicMergeRequest, bool, error) {
		page, resp, err := s.client.MergeRequests.ListProjectMergeRequests(projectPath(namespace, project), opts, gitlab.WithContext(ctx))
		if err != nil {
			return nil, false, fmt.Errorf("listing merge requests from gitlab: %w", err)
		}
		opts.Page = resp.NextPage
		return page, resp.NextPage != 0, nil
	})
	if err != nil {
		return nil, err
	}

	prs := make([]types.PullRequest, 0, len(mrs))
	for _, mr := range mrs {
		if mr == nil {
			continue
		}
		pr := types.PullRequest{
			Number:     int(mr.IID),
			Title:      mr.Title,
			State:      "open",
			URL:        mr.WebURL,
			Owner:      namespace,
			Repository: project,
			Draft:      mr.Draft,
		}
		if mr.Author != nil {
			pr.Author = mr.Author.Username
		}
		if mr.UpdatedAt != nil {
			pr.UpdatedAt = *mr.UpdatedAt
		}
		prs = append(prs, pr)
	}
	return prs, nil
}

// Snapshot fetches a merge request and its sub-resources. Sub-fetch failures degrade to empty.
func (s *Source) Snapshot(ctx context.Context, namespace, project string, iid int) (*types.RawSnapshot, error) {
	ctx, span := s.tracer.Start(ctx, "gitlab.snapshot", trace.WithAttributes(
		attribute.String("gitlab.project", projectPath(namespace, project)),
		attribute.Int("gitlab.mr", iid),
	))
	defer span.End()

	pr, err := s.PullRequest(ctx, namespace, project, iid)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "merge request")
		return nil, err
	}

	snap := &types.RawSnapshot{PullRequest: pr}
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed = map[string]bool{}
	)
	fetch := func(part string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				slog.Warn("Sub-fetch failed, continuing without it", "component", "gitlab", "part", part,
					"project", projectPath(namespace, project), "mr", iid, "error", err)
				mu.Lock()
				failed[part] = true
				mu.Unlock()
			}
		}()
	}

	fetch(PartApprovals, func() (err error) {
		snap.Reviews, err = s.Approvals(ctx, namespace, project, iid)
		return err
	})
	fetch(PartFiles, func() (err error) {
		snap.Files, err = s.ChangedFiles(ctx, namespace, project, iid, pr.HeadSHA)
		return err
	})
	fetch(PartComments, func() (err error) {
		snap.Comments, err = s.Comments(ctx, namespace, project, iid)
		return err
	})
	if pr.HeadSHA != "" {
		fetch(PartStatuses, func() (err error) {
			snap.CheckRuns, err = s.CommitStatuses(ctx, namespace, project, pr.HeadSHA)
			return err
		})
	}
	wg.Wait()

	for _, part := range []string{PartApprovals, PartStatuses, PartFiles, PartComments} {
		if failed[part] {
			snap.Degraded = append(snap.Degraded, part)
		}
	}
	if pr.Additions == 0 && pr.Deletions == 0 {
		for _, f := range snap.Files {
			pr.Additions += f.Additions
			pr.Deletions += f.Deletions
		}
	}
	snap.FetchedAt = s.now()
	return snap, nil
}
