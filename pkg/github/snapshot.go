package github

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/codeGROOVE-dev/merge-ready/pkg/types"
)

// Sub-fetch names reported in RawSnapshot.Degraded.
const (
	PartReviews  = "reviews"
	PartChecks   = "check_runs"
	PartStatuses = "statuses"
	PartFiles    = "files"
	PartComments = "comments"
)

func isNotFound(err error) bool {
	return errors.Is(err, errNotFound)
}

// Snapshot fetches everything needed to judge a PR. Only a failure to fetch the PR itself is an error.
// The remaining reads run concurrently; each one that fails is logged and left empty.
func (c *Client) Snapshot(ctx context.Context, owner, repo string, number int) (*types.RawSnapshot, error) {
	ctx, span := c.tracer.Start(ctx, "github.snapshot")
	defer span.End()
	span.SetAttributes(
		attribute.String("github.owner", owner),
		attribute.String("github.repo", repo),
		attribute.Int("github.pr", number),
	)

	pr, err := c.PullRequest(ctx, owner, repo, number)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "pull request")
		return nil, err
	}

	snap := &types.RawSnapshot{PullRequest: pr}
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		failed   = map[string]bool{}
		runs     []types.CheckRun
		statuses []types.CheckRun
	)

	fetch := func(part string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				slog.Warn("Sub-fetch failed, continuing without it", "component", "api",
					"part", part, "owner", owner, "repo", repo, "pr", number, "error", err)
				mu.Lock()
				failed[part] = true
				mu.Unlock()
			}
		}()
	}

	fetch(PartReviews, func() (err error) {
		snap.Reviews, err = c.Reviews(ctx, owner, repo, number)
		return err
	})
	fetch(PartFiles, func() (err error) {
		snap.Files, err = c.ChangedFiles(ctx, owner, repo, number, pr.HeadSHA)
		return err
	})
	fetch(PartComments, func() (err error) {
		snap.Comments, err = c.Comments(ctx, owner, repo, number)
		return err
	})
	if pr.HeadSHA != "" {
		fetch(PartChecks, func() (err error) {
			runs, err = c.CheckRuns(ctx, owner, repo, pr.HeadSHA)
			return err
		})
		fetch(PartStatuses, func() (err error) {
			statuses, err = c.CommitStatuses(ctx, owner, repo, pr.HeadSHA)
			return err
		})
	}
	wg.Wait()

	snap.CheckRuns = append(runs, statuses...)
	for _, part := range []string{PartReviews, PartChecks, PartStatuses, PartFiles, PartComments} {
		if failed[part] {
			snap.Degraded = append(snap.Degraded, part)
		}
	}
	snap.FetchedAt = c.now()

	span.SetAttributes(attribute.StringSlice("snapshot.degraded", snap.Degraded))
	return snap, nil
}
