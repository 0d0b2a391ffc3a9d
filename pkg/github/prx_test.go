package github

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"testing"
	"time"

	"github.com/codeGROOVE-dev/prx/pkg/prx"

	"github.com/codeGROOVE-dev/merge-ready/pkg/readiness"
	"github.com/codeGROOVE-dev/merge-ready/pkg/types"
)

type fakePRX struct {
	data *prx.PullRequestData
	err  error
}

func (f *fakePRX) PullRequestWithReferenceTime(context.Context, string, string, int, time.Time) (*prx.PullRequestData, error) {
	return f.data, f.err
}

func prxData() *prx.PullRequestData {
	at := func(m int) time.Time { return time.Date(2024, 5, 1, 10, m, 0, 0, time.UTC) }
	return &prx.PullRequestData{
		PullRequest: prx.PullRequest{
			Number:         123,
			Title:          "Add widgets",
			State:          "open",
			Author:         "octocat",
			HeadSHA:        "abc123",
			MergeableState: "blocked",
			Additions:      40,
			Deletions:      2,
			ChangedFiles:   1,
		},
		Events: []prx.Event{
			{Kind: prx.EventKindReviewRequested, Timestamp: at(1), Target: "alice"},
			{Kind: prx.EventKindReviewRequested, Timestamp: at(2), Target: "bob"},
			{Kind: prx.EventKindReviewRequested, Timestamp: at(3), Target: "carol"},
			{Kind: prx.EventKindReviewRequestRemoved, Timestamp: at(4), Target: "carol"},
			{Kind: prx.EventKindReview, Timestamp: at(5), Actor: "alice", Outcome: "approved"},
			{Kind: prx.EventKindComment, Timestamp: at(6), Actor: "dave", Body: "nice"},
			{Kind: prx.EventKindCheckRun, Timestamp: at(7), Body: "build", Outcome: "in_progress"},
			{Kind: prx.EventKindStatusCheck, Timestamp: at(8), Body: "ci/legacy", Outcome: "success"},
			{Kind: prx.EventKindCheckRun, Timestamp: at(9), Body: "build", Outcome: "success"},
		},
	}
}

func newTestPRXSource(t *testing.T, fetcher PRXFetcher, filesStatus int) *PRXSource {
	t.Helper()
	srv := newTestServer(t, map[string]http.HandlerFunc{
		"GET /repos/acme/widgets/pulls/123/files": func(w http.ResponseWriter, _ *http.Request) {
			if filesStatus != http.StatusOK {
				writeJSON(w, filesStatus, `{"message":"nope"}`)
				return
			}
			writeJSON(w, http.StatusOK, `[{"filename":"a.go","status":"modified","additions":40,"deletions":2}]`)
		},
	})
	c := newTestClient(t, srv)
	c.retryAttempts = 1
	return NewPRXSource(fetcher, c)
}

func TestPRXSource_Snapshot(t *testing.T) {
	s := newTestPRXSource(t, &fakePRX{data: prxData()}, http.StatusOK)

	snap, err := s.Snapshot(context.Background(), "acme", "widgets", 123)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	pr := snap.PullRequest
	if pr.URL != "https://github.com/acme/widgets/pull/123" || pr.HeadSHA != "abc123" {
		t.Errorf("PullRequest = %+v", pr)
	}
	// Blocked is not a conflict.
	if pr.Mergeable == nil || !*pr.Mergeable {
		t.Errorf("Mergeable = %v, want true", pr.Mergeable)
	}
	if want := []string{"bob"}; !reflect.DeepEqual(pr.RequestedReviewers, want) {
		t.Errorf("RequestedReviewers = %v, want %v", pr.RequestedReviewers, want)
	}
	if len(snap.Reviews) != 1 || snap.Reviews[0].State != types.ReviewApproved {
		t.Errorf("Reviews = %+v", snap.Reviews)
	}
	if len(snap.Comments) != 1 || snap.Comments[0].Author != "dave" {
		t.Errorf("Comments = %+v", snap.Comments)
	}
	wantRuns := []types.CheckRun{
		{Name: "build", Status: "completed", Conclusion: "success"},
		{Name: "ci/legacy", Status: "completed", Conclusion: "success"},
	}
	if !reflect.DeepEqual(snap.CheckRuns, wantRuns) {
		t.Errorf("CheckRuns = %+v", snap.CheckRuns)
	}
	if len(snap.Files) != 1 || len(snap.Degraded) != 0 {
		t.Errorf("files=%v degraded=%v", snap.Files, snap.Degraded)
	}

	// alice approved, bob is still requested: one of two.
	report, err := readiness.Evaluate(snap, readiness.Options{})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if report.Status != readiness.StatusPending || report.Summary.RequiredApprovals != 2 {
		t.Errorf("status=%s required=%d", report.Status, report.Summary.RequiredApprovals)
	}
}

func TestPRXSource_FilesDegrade(t *testing.T) {
	s := newTestPRXSource(t, &fakePRX{data: prxData()}, http.StatusForbidden)

	snap, err := s.Snapshot(context.Background(), "acme", "widgets", 123)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if !reflect.DeepEqual(snap.Degraded, []string{PartFiles}) {
		t.Errorf("Degraded = %v", snap.Degraded)
	}
}

func TestPRXSource_Errors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		notFound bool
	}{
		{"missing pr", errors.New("GraphQL query failed: GraphQL errors: [{Could not resolve to a PullRequest with the number of 9.}]"), true},
		{"missing repo", errors.New("GraphQL errors: [{Could not resolve to a Repository with the name 'acme/nope'.}]"), true},
		{"server error", errors.New("GraphQL request failed with status 502"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestPRXSource(t, &fakePRX{err: tt.err}, http.StatusOK)
			_, err := s.Snapshot(context.Background(), "acme", "widgets", 123)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errors.Is(err, types.ErrPullRequestNotFound); got != tt.notFound {
				t.Errorf("ErrPullRequestNotFound = %v, want %v (%v)", got, tt.notFound, err)
			}
		})
	}
}

func TestPRXMergeable(t *testing.T) {
	for state, want := range map[string]*bool{
		"dirty":    ptr(false),
		"clean":    ptr(true),
		"unstable": ptr(true),
		"blocked":  ptr(true),
		"unknown":  nil,
		"":         nil,
	} {
		if got := prxMergeable(state); !reflect.DeepEqual(got, want) {
			t.Errorf("prxMergeable(%q) = %v, want %v", state, got, want)
		}
	}
}

func TestClient_PRXToken(t *testing.T) {
	c := newClient(Config{})
	c.token = testToken
	if tok, err := c.PRXToken(); err != nil || tok != testToken {
		t.Errorf("PRXToken = %q, %v", tok, err)
	}
	c.isAppAuth = true
	if _, err := c.PRXToken(); err == nil {
		t.Error("expected error for app auth")
	}
	if NewPRXClient(testToken, time.Second, slog.Default()) == nil {
		t.Error("NewPRXClient returned nil")
	}
}

func ptr[T any](v T) *T { return &v }
