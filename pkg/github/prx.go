package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/prx/pkg/prx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/codeGROOVE-dev/merge-ready/pkg/types"
)

// PRXFetcher is the part of prx.Client used by PRXSource.
type PRXFetcher interface {
	PullRequestWithReferenceTime(ctx context.Context, owner, repo string, prNumber int, referenceTime time.Time) (*prx.PullRequestData, error)
}

// NewPRXClient returns a prx client with its disk cache disabled. prx speaks to api.github.com only.
func NewPRXClient(token string, timeout time.Duration, logger *slog.Logger) *prx.Client {
	return prx.NewClient(token,
		prx.WithLogger(logger),
		prx.WithHTTPClient(&http.Client{Timeout: timeout}),
		prx.WithNoCache(),
	)
}

// PRXSource builds snapshots from prx's single GraphQL timeline fetch.
// prx does not list changed files, so those still come from the REST client.
type PRXSource struct {
	prx    PRXFetcher
	rest   *Client
	tracer trace.Tracer
	now    func() time.Time
}

// NewPRXSource pairs a prx fetcher with a REST client for files and open PR listings.
func NewPRXSource(fetcher PRXFetcher, rest *Client) *PRXSource {
	return &PRXSource{prx: fetcher, rest: rest, tracer: otel.Tracer(tracerName), now: time.Now}
}

// OpenPullRequests lists open PRs through the REST client.
func (s *PRXSource) OpenPullRequests(ctx context.Context, owner, repo string) ([]types.PullRequest, error) {
	return s.rest.OpenPullRequests(ctx, owner, repo)
}

// Snapshot fetches the PR and its events from prx, then the file list from REST.
// A failed file fetch degrades the snapshot.
func (s *PRXSource) Snapshot(ctx context.Context, owner, repo string, number int) (*types.RawSnapshot, error) {
	ctx, span := s.tracer.Start(ctx, "github.prx_snapshot")
	defer span.End()
	span.SetAttributes(
		attribute.String("github.owner", owner),
		attribute.String("github.repo", repo),
		attribute.Int("github.pr", number),
	)

	now := s.now()
	data, err := s.prx.PullRequestWithReferenceTime(ctx, owner, repo, number, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "pull request")
		if strings.Contains(err.Error(), "Could not resolve to a") {
			return nil, fmt.Errorf("%s/%s#%d: %w", owner, repo, number, types.ErrPullRequestNotFound)
		}
		return nil, fmt.Errorf("prx %s/%s#%d: %w", owner, repo, number, err)
	}
	if data == nil {
		return nil, fmt.Errorf("%s/%s#%d: %w", owner, repo, number, types.ErrPullRequestNotFound)
	}

	snap := fromPRX(owner, repo, data)
	snap.FetchedAt = now

	files, err := s.rest.ChangedFiles(ctx, owner, repo, number, snap.PullRequest.HeadSHA)
	if err != nil {
		slog.Warn("Sub-fetch failed, continuing without it", "component", "api",
			"part", PartFiles, "owner", owner, "repo", repo, "pr", number, "error", err)
		snap.Degraded = append(snap.Degraded, PartFiles)
	} else {
		snap.Files = files
	}

	span.SetAttributes(attribute.StringSlice("snapshot.degraded", snap.Degraded))
	return snap, nil
}

// fromPRX converts prx data. Events arrive oldest first.
func fromPRX(owner, repo string, data *prx.PullRequestData) *types.RawSnapshot {
	p := data.PullRequest
	pr := &types.PullRequest{
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
		Mergeable:      prxMergeable(p.MergeableState),
		Title:          p.Title,
		State:          p.State,
		Author:         p.Author,
		URL:            fmt.Sprintf("https://github.com/%s/%s/pull/%d", owner, repo, p.Number),
		Owner:          owner,
		Repository:     repo,
		HeadSHA:        p.HeadSHA,
		MergeableState: p.MergeableState,
		Number:         p.Number,
		Additions:      p.Additions,
		Deletions:      p.Deletions,
		ChangedFiles:   p.ChangedFiles,
		Draft:          p.Draft,
	}

	snap := &types.RawSnapshot{PullRequest: pr}
	var pending []string
	checks := map[string]int{}
	for _, e := range data.Events {
		switch e.Kind {
		case prx.EventKindReviewRequested:
			if e.Target != "" && !slices.Contains(pending, e.Target) {
				pending = append(pending, e.Target)
			}
		case prx.EventKindReviewRequestRemoved:
			pending = slices.DeleteFunc(pending, func(s string) bool { return s == e.Target })
		case prx.EventKindReview:
			// Submitting a review clears the reviewer's pending request.
			pending = slices.DeleteFunc(pending, func(s string) bool { return s == e.Actor })
			snap.Reviews = append(snap.Reviews, types.Review{
				SubmittedAt: e.Timestamp,
				Reviewer:    e.Actor,
				State:       strings.ToUpper(e.Outcome),
			})
		case prx.EventKindComment:
			snap.Comments = append(snap.Comments, types.Comment{CreatedAt: e.Timestamp, Author: e.Actor, Body: e.Body})
		case prx.EventKindCheckRun, prx.EventKindStatusCheck:
			run := prxCheck(e)
			if i, ok := checks[run.Name]; ok {
				snap.CheckRuns[i] = run
				continue
			}
			checks[run.Name] = len(snap.CheckRuns)
			snap.CheckRuns = append(snap.CheckRuns, run)
		}
	}
	pr.RequestedReviewers = pending
	return snap
}

// prxMergeable reads conflicts from the merge state alone. prx also reports
// blocked and unstable PRs as unmergeable, which are not conflicts.
func prxMergeable(state string) *bool {
	if state == "" || state == "unknown" {
		return nil
	}
	v := state != "dirty"
	return &v
}

// prxCheck maps a check event. Outcome holds the conclusion once a run completes, the status before.
func prxCheck(e prx.Event) types.CheckRun {
	if e.Kind == prx.EventKindStatusCheck {
		status, conclusion := statusToCheck(e.Outcome)
		return types.CheckRun{Name: e.Body, Status: status, Conclusion: conclusion}
	}
	switch e.Outcome {
	case "queued", "in_progress", "pending", "waiting", "requested":
		return types.CheckRun{Name: e.Body, Status: e.Outcome}
	default:
		return types.CheckRun{Name: e.Body, Status: "completed", Conclusion: e.Outcome}
	}
}

// errPRXAppAuth is returned by PRXToken for GitHub App clients.
var errPRXAppAuth = errors.New("prx source requires token authentication")

// PRXToken returns the personal token prx authenticates with.
func (c *Client) PRXToken() (string, error) {
	if c.isAppAuth {
		return "", errPRXAppAuth
	}
	return c.token, nil
}
