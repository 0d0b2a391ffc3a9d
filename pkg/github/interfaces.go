package github

import (
	"context"
	"net/http"

	"github.com/codeGROOVE-dev/merge-ready/pkg/types"
)

// HTTPDoer provides an interface for making HTTP requests.
// This allows us to mock HTTP calls in tests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// API defines the read operations used to build a snapshot.
type API interface {
	Snapshot(ctx context.Context, owner, repo string, number int) (*types.RawSnapshot, error)
	PullRequest(ctx context.Context, owner, repo string, number int) (*types.PullRequest, error)
	Reviews(ctx context.Context, owner, repo string, number int) ([]types.Review, error)
	CheckRuns(ctx context.Context, owner, repo, sha string) ([]types.CheckRun, error)
	CommitStatuses(ctx context.Context, owner, repo, sha string) ([]types.CheckRun, error)
	ChangedFiles(ctx context.Context, owner, repo string, number int, sha string) ([]types.ChangedFile, error)
	Comments(ctx context.Context, owner, repo string, number int) ([]types.Comment, error)
	OpenPullRequests(ctx context.Context, owner, repo string) ([]types.PullRequest, error)
}

var _ API = (*Client)(nil)
