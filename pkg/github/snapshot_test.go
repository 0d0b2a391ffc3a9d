package github

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"testing"
	"time"

	"github.com/codeGROOVE-dev/merge-ready/pkg/readiness"
	"github.com/codeGROOVE-dev/merge-ready/pkg/types"
)

func snapshotRoutes() map[string]http.HandlerFunc {
	return map[string]http.HandlerFunc{
		"GET /repos/acme/widgets/pulls/123": func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, prJSON)
		},
		"GET /repos/acme/widgets/pulls/123/reviews": func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, `[{"user":{"login":"alice"},"state":"APPROVED"}]`)
		},
		"GET /repos/acme/widgets/commits/abc123/check-runs": func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, `{"check_runs":[{"name":"build","status":"completed","conclusion":"failure"}]}`)
		},
		"GET /repos/acme/widgets/commits/abc123/status": func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, `{"statuses":[{"context":"ci/legacy","state":"pending"}]}`)
		},
		"GET /repos/acme/widgets/pulls/123/files": func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, `[{"filename":"a.go","additions":1}]`)
		},
		"GET /repos/acme/widgets/issues/123/comments": func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, `[]`)
		},
	}
}

func TestClient_Snapshot(t *testing.T) {
	srv := newTestServer(t, snapshotRoutes())
	c := newTestClient(t, srv)
	fixed := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return fixed }

	snap, err := c.Snapshot(context.Background(), "acme", "widgets", 123)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	if snap.PullRequest == nil || snap.PullRequest.Number != 123 {
		t.Fatalf("PullRequest = %+v", snap.PullRequest)
	}
	if !snap.FetchedAt.Equal(fixed) {
		t.Errorf("FetchedAt = %v", snap.FetchedAt)
	}
	if len(snap.Reviews) != 1 || len(snap.Files) != 1 {
		t.Errorf("reviews=%d files=%d", len(snap.Reviews), len(snap.Files))
	}
	// Check runs come first, then legacy statuses.
	if len(snap.CheckRuns) != 2 || snap.CheckRuns[0].Name != "build" || snap.CheckRuns[1].Name != "ci/legacy" {
		t.Errorf("CheckRuns = %+v", snap.CheckRuns)
	}
	if len(snap.Degraded) != 0 {
		t.Errorf("Degraded = %v, want none", snap.Degraded)
	}

	report, err := readiness.Evaluate(snap, readiness.Options{})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if report.Status != readiness.StatusNotReady {
		t.Errorf("Status = %q, want not-ready", report.Status)
	}
	// alice, bob and the core team were requested; only alice approved.
	if report.Summary.RequiredApprovals != 3 || report.Summary.Approvals != 1 {
		t.Errorf("approvals = %d/%d", report.Summary.Approvals, report.Summary.RequiredApprovals)
	}
}

func TestClient_Snapshot_DegradesSubFetches(t *testing.T) {
	routes := snapshotRoutes()
	delete(routes, "GET /repos/acme/widgets/pulls/123/reviews")
	routes["GET /repos/acme/widgets/commits/abc123/status"] = func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusForbidden, `{"message":"nope"}`)
	}
	routes["GET /repos/acme/widgets/issues/123/comments"] = func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusInternalServerError, `{}`)
	}
	srv := newTestServer(t, routes)
	c := newTestClient(t, srv)

	snap, err := c.Snapshot(context.Background(), "acme", "widgets", 123)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	want := []string{PartReviews, PartStatuses, PartComments}
	if !reflect.DeepEqual(snap.Degraded, want) {
		t.Errorf("Degraded = %v, want %v", snap.Degraded, want)
	}
	if snap.Reviews != nil || snap.Comments != nil {
		t.Errorf("failed parts should be empty: reviews=%v comments=%v", snap.Reviews, snap.Comments)
	}
	if len(snap.CheckRuns) != 1 {
		t.Errorf("CheckRuns = %+v, want the check run only", snap.CheckRuns)
	}

	if _, err := readiness.Evaluate(snap, readiness.Options{}); err != nil {
		t.Errorf("a degraded snapshot must still evaluate: %v", err)
	}
}

func TestClient_Snapshot_MissingPR(t *testing.T) {
	srv := newTestServer(t, nil)
	c := newTestClient(t, srv)

	_, err := c.Snapshot(context.Background(), "acme", "widgets", 404)
	if !errors.Is(err, types.ErrPullRequestNotFound) {
		t.Errorf("error = %v, want ErrPullRequestNotFound", err)
	}
}

func TestClient_Snapshot_NoHeadSHASkipsChecks(t *testing.T) {
	srv := newTestServer(t, map[string]http.HandlerFunc{
		"GET /repos/acme/widgets/pulls/8": func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, `{"number":8}`)
		},
		"GET /repos/acme/widgets/pulls/8/reviews": func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, `[]`)
		},
		"GET /repos/acme/widgets/pulls/8/files": func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, `[]`)
		},
		"GET /repos/acme/widgets/issues/8/comments": func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, `[]`)
		},
	})
	c := newTestClient(t, srv)

	snap, err := c.Snapshot(context.Background(), "acme", "widgets", 8)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(snap.CheckRuns) != 0 || len(snap.Degraded) != 0 {
		t.Errorf("checks=%v degraded=%v", snap.CheckRuns, snap.Degraded)
	}
}
