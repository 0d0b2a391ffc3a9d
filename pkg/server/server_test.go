package server_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/codeGROOVE-dev/merge-ready/pkg/internal/testutil"
	"github.com/codeGROOVE-dev/merge-ready/pkg/server"
	"github.com/codeGROOVE-dev/merge-ready/pkg/types"
)

func boolPtr(b bool) *bool { return &b }

func readySnapshot(owner, repo string, number int) *types.RawSnapshot {
	return &types.RawSnapshot{
		FetchedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		PullRequest: &types.PullRequest{
			Owner: owner, Repository: repo, Number: number,
			Title: "Ship it", Author: "alice", State: "open",
			Mergeable:          boolPtr(true),
			RequestedReviewers: []string{"bob"},
		},
		Reviews:   []types.Review{{Reviewer: "bob", State: types.ReviewApproved}},
		CheckRuns: []types.CheckRun{{Name: "build", Status: "completed", Conclusion: "success"}},
	}
}

var _ = Describe("Server", func() {
	var (
		gh  *testutil.MockFetcher
		gl  *testutil.MockFetcher
		srv *server.Server
	)

	get := func(path string, header ...string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		for i := 0; i+1 < len(header); i += 2 {
			req.Header.Set(header[i], header[i+1])
		}
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, req)
		return w
	}

	decode := func(w *httptest.ResponseRecorder) map[string]any {
		var body map[string]any
		Expect(json.Unmarshal(w.Body.Bytes(), &body)).To(Succeed())
		return body
	}

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		gh = testutil.NewMockFetcher()
		gl = testutil.NewMockFetcher()
		var err error
		srv, err = server.New(server.Config{GitHub: gh, GitLab: gl, NodeID: 1})
		Expect(err).NotTo(HaveOccurred())
	})

	It("requires a GitHub fetcher", func() {
		_, err := server.New(server.Config{})
		Expect(err).To(HaveOccurred())
	})

	It("rejects an out-of-range snowflake node", func() {
		_, err := server.New(server.Config{GitHub: gh, NodeID: 5000})
		Expect(err).To(HaveOccurred())
	})

	Describe("GET /v1/github/:owner/:repo/pulls/:number/readiness", func() {
		It("returns the report", func() {
			gh.SetSnapshot("acme", "widgets", 42, readySnapshot("acme", "widgets", 42))

			w := get("/v1/github/acme/widgets/pulls/42/readiness")

			Expect(w.Code).To(Equal(http.StatusOK))
			body := decode(w)
			Expect(body["status"]).To(Equal("ready"))
			Expect(body["issues"]).To(BeEmpty())
			pr, ok := body["pull_request"].(map[string]any)
			Expect(ok).To(BeTrue())
			Expect(pr["number"]).To(Equal(float64(42)))
			Expect(gh.Calls()).To(Equal([]string{"acme/widgets#42"}))
		})

		It("returns 400 for a malformed number", func() {
			w := get("/v1/github/acme/widgets/pulls/abc/readiness")
			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(gh.Calls()).To(BeEmpty())

			Expect(get("/v1/github/acme/widgets/pulls/0/readiness").Code).To(Equal(http.StatusBadRequest))
		})

		It("returns 404 when the pull request cannot be fetched", func() {
			w := get("/v1/github/acme/widgets/pulls/7/readiness")
			Expect(w.Code).To(Equal(http.StatusNotFound))
			Expect(decode(w)["error"]).To(ContainSubstring("not found"))
		})

		It("returns 502 on upstream failure", func() {
			gh.SetError("acme", "widgets", 8, errors.New("connection reset"))
			w := get("/v1/github/acme/widgets/pulls/8/readiness")
			Expect(w.Code).To(Equal(http.StatusBadGateway))
			Expect(decode(w)["error"]).To(Equal("connection reset"))
		})

		It("returns 502 when the snapshot has no pull request", func() {
			gh.SetSnapshot("acme", "widgets", 9, &types.RawSnapshot{})
			Expect(get("/v1/github/acme/widgets/pulls/9/readiness").Code).To(Equal(http.StatusBadGateway))
		})
	})

	Describe("GET /v1/readiness", func() {
		It("routes GitLab references to the GitLab fetcher", func() {
			gl.SetSnapshot("group/sub", "proj", 3, readySnapshot("group/sub", "proj", 3))

			w := get("/v1/readiness?ref=group/sub/proj!3")

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(gl.Calls()).To(Equal([]string{"group/sub/proj#3"}))
			Expect(gh.Calls()).To(BeEmpty())
		})

		It("accepts GitHub URLs", func() {
			gh.SetSnapshot("acme", "widgets", 42, readySnapshot("acme", "widgets", 42))
			w := get("/v1/readiness?ref=https://github.com/acme/widgets/pull/42")
			Expect(w.Code).To(Equal(http.StatusOK))
		})

		It("returns 400 for an unparseable reference", func() {
			Expect(get("/v1/readiness?ref=widgets").Code).To(Equal(http.StatusBadRequest))
		})

		It("rejects references to a host the server does not serve", func() {
			gh.SetSnapshot("acme", "widgets", 42, readySnapshot("acme", "widgets", 42))

			w := get("/v1/readiness?ref=https://ghe.corp.example/acme/widgets/pull/42")

			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(decode(w)["error"]).To(ContainSubstring("ghe.corp.example"))
			Expect(gh.Calls()).To(BeEmpty())

			w = get("/v1/readiness?ref=https://gitlab.example.com/group/proj/-/merge_requests/3")
			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(gl.Calls()).To(BeEmpty())
		})

		It("serves the configured enterprise host and nothing else", func() {
			var err error
			srv, err = server.New(server.Config{GitHub: gh, GitHubHost: "ghe.corp.example", NodeID: 1})
			Expect(err).NotTo(HaveOccurred())
			gh.SetSnapshot("acme", "widgets", 42, readySnapshot("acme", "widgets", 42))

			Expect(get("/v1/readiness?ref=https://ghe.corp.example/acme/widgets/pull/42").Code).To(Equal(http.StatusOK))
			Expect(get("/v1/readiness?ref=https://github.com/acme/widgets/pull/42").Code).To(Equal(http.StatusBadRequest))
			Expect(get("/v1/readiness?ref=acme/widgets%2342").Code).To(Equal(http.StatusOK))
			Expect(gh.Calls()).To(Equal([]string{"acme/widgets#42", "acme/widgets#42"}))
		})

		It("returns 501 for GitLab when it is not configured", func() {
			var err error
			srv, err = server.New(server.Config{GitHub: gh})
			Expect(err).NotTo(HaveOccurred())
			Expect(get("/v1/readiness?ref=group/proj!1").Code).To(Equal(http.StatusNotImplemented))
		})
	})

	Describe("request IDs", func() {
		It("mints one when absent", func() {
			w := get("/healthz")
			Expect(w.Header().Get(server.RequestIDHeader)).NotTo(BeEmpty())
		})

		It("echoes a client-supplied ID", func() {
			w := get("/healthz", server.RequestIDHeader, "abc-123")
			Expect(w.Header().Get(server.RequestIDHeader)).To(Equal("abc-123"))
		})
	})

	Describe("GET /healthz", func() {
		It("reports evaluation counts", func() {
			gh.SetSnapshot("acme", "widgets", 42, readySnapshot("acme", "widgets", 42))
			get("/v1/github/acme/widgets/pulls/42/readiness")
			get("/v1/github/acme/widgets/pulls/42/readiness")
			get("/v1/github/acme/widgets/pulls/404/readiness")

			w := get("/healthz")
			Expect(w.Code).To(Equal(http.StatusOK))
			body := decode(w)
			Expect(body["status"]).To(Equal("ok"))
			stats, ok := body["stats"].(map[string]any)
			Expect(ok).To(BeTrue())
			Expect(stats["evaluations"]).To(Equal(float64(2)))
			Expect(stats["pull_requests"]).To(Equal(float64(1)))
			Expect(stats["failures"]).To(Equal(float64(1)))
			Expect(stats["by_status"]).To(HaveKeyWithValue("ready", float64(2)))
		})
	})
})
