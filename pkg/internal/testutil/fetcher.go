package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/codeGROOVE-dev/merge-ready/pkg/types"
)

// MockFetcher serves canned snapshots keyed by "owner/repo#number".
type MockFetcher struct {
	snapshots map[string]*types.RawSnapshot
	errors    map[string]error
	open      map[string][]types.PullRequest
	calls     []string
	mu        sync.Mutex
}

// NewMockFetcher creates an empty MockFetcher.
func NewMockFetcher() *MockFetcher {
	return &MockFetcher{
		snapshots: make(map[string]*types.RawSnapshot),
		errors:    make(map[string]error),
		open:      make(map[string][]types.PullRequest),
	}
}

func key(owner, repo string, number int) string {
	return fmt.Sprintf("%s/%s#%d", owner, repo, number)
}

// SetSnapshot configures the snapshot returned for a PR.
func (m *MockFetcher) SetSnapshot(owner, repo string, number int, snap *types.RawSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[key(owner, repo, number)] = snap
}

// SetError configures the error returned for a PR.
func (m *MockFetcher) SetError(owner, repo string, number int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[key(owner, repo, number)] = err
}

// SetOpenPullRequests configures the open PR list for a repository.
func (m *MockFetcher) SetOpenPullRequests(owner, repo string, prs []types.PullRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open[owner+"/"+repo] = prs
}

// Snapshot returns the configured snapshot, or an error wrapping types.ErrPullRequestNotFound.
func (m *MockFetcher) Snapshot(_ context.Context, owner, repo string, number int) (*types.RawSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key(owner, repo, number)
	m.calls = append(m.calls, k)
	if err, ok := m.errors[k]; ok {
		return nil, err
	}
	snap, ok := m.snapshots[k]
	if !ok {
		return nil, fmt.Errorf("%s: %w", k, types.ErrPullRequestNotFound)
	}
	return snap, nil
}

// OpenPullRequests returns the configured list for a repository.
func (m *MockFetcher) OpenPullRequests(_ context.Context, owner, repo string) ([]types.PullRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open[owner+"/"+repo], nil
}

// Calls returns the PR keys requested so far.
func (m *MockFetcher) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}
