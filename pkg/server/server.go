// Package server exposes readiness verdicts over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/codeGROOVE-dev/merge-ready/pkg/prref"
	"github.com/codeGROOVE-dev/merge-ready/pkg/readiness"
	"github.com/codeGROOVE-dev/merge-ready/pkg/types"
)

const (
	readHeaderTimeout = 10 * time.Second
	readTimeout       = 30 * time.Second
	writeTimeout      = 60 * time.Second
	idleTimeout       = 120 * time.Second
)

// Fetcher retrieves a raw snapshot of one pull request.
type Fetcher interface {
	Snapshot(ctx context.Context, owner, repo string, number int) (*types.RawSnapshot, error)
}

// Config configures a Server.
type Config struct {
	GitHub      Fetcher
	GitLab      Fetcher // nil disables GitLab references
	GitHubHost  string  // host the GitHub fetcher serves; empty = github.com
	GitLabHost  string  // host the GitLab fetcher serves; empty = gitlab.com
	ServiceName string
	NodeID      int64 // snowflake node, 0-1023
	TopFiles    int
	Tracing     bool
}

// Server serves readiness reports.
type Server struct {
	github  Fetcher
	gitlab  Fetcher
	hosts   map[prref.Platform]string
	metrics *Metrics
	node    *snowflake.Node
	router  *gin.Engine
	opts    readiness.Options
	service string
	tracing bool
}

// New builds a Server and its routes.
func New(cfg Config) (*Server, error) {
	if cfg.GitHub == nil {
		return nil, errors.New("github fetcher is required")
	}
	node, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		return nil, fmt.Errorf("request id node: %w", err)
	}
	s := &Server{
		github:  cfg.GitHub,
		gitlab:  cfg.GitLab,
		hosts:   map[prref.Platform]string{prref.GitHub: cfg.GitHubHost, prref.GitLab: cfg.GitLabHost},
		metrics: NewMetrics(),
		node:    node,
		opts:    readiness.Options{TopFiles: cfg.TopFiles},
		service: cfg.ServiceName,
		tracing: cfg.Tracing,
	}
	s.router = s.routes()
	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Metrics returns the collector behind /healthz.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	// Tracing first so the request ID and logs see the span.
	if s.tracing {
		r.Use(otelgin.Middleware(s.service))
	}
	r.Use(requestID(s.node), recovery(), logger())

	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "merge-ready\nHealth endpoint: /healthz\n")
	})
	r.GET("/healthz", s.health)
	r.GET("/v1/github/:owner/:repo/pulls/:number/readiness", s.githubReadiness)
	r.GET("/v1/readiness", s.refReadiness)
	return r
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "stats": s.metrics.Stats()})
}

func (s *Server) githubReadiness(c *gin.Context) {
	n, err := strconv.Atoi(c.Param("number"))
	if err != nil || n <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid pull request number %q", c.Param("number"))})
		return
	}
	s.evaluate(c, s.github, c.Param("owner"), c.Param("repo"), n)
}

// refReadiness accepts any reference prref.Parse understands in the ref query parameter.
// Shorthand refs go to the configured instance. URLs for any other host are rejected.
func (s *Server) refReadiness(c *gin.Context) {
	ref, err := prref.Parse(c.Query("ref"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if want := s.hosts[ref.Platform]; ref.FromURL && ref.Host != want {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("%s host %s is not served here (serving %s)",
			ref.Platform, displayHost(ref.Platform, ref.Host), displayHost(ref.Platform, want))})
		return
	}
	f := s.github
	if ref.Platform == prref.GitLab {
		if s.gitlab == nil {
			c.JSON(http.StatusNotImplemented, gin.H{"error": "gitlab is not configured"})
			return
		}
		f = s.gitlab
	}
	s.evaluate(c, f, ref.Owner, ref.Repo, ref.Number)
}

func displayHost(p prref.Platform, host string) string {
	switch {
	case host != "":
		return host
	case p == prref.GitLab:
		return "gitlab.com"
	default:
		return "github.com"
	}
}

func (s *Server) evaluate(c *gin.Context, f Fetcher, owner, repo string, number int) {
	ctx := c.Request.Context()
	snap, err := f.Snapshot(ctx, owner, repo, number)
	if err != nil {
		s.metrics.RecordFailure()
		_ = c.Error(err)
		if errors.Is(err, types.ErrPullRequestNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	report, err := readiness.Evaluate(snap, s.opts)
	if err != nil {
		s.metrics.RecordFailure()
		_ = c.Error(err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	s.metrics.RecordEvaluation(owner, repo, number, report.Status)
	c.JSON(http.StatusOK, report)
}

// Run serves on addr until ctx is cancelled, then drains within shutdownTimeout.
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.InfoContext(ctx, "HTTP server starting", "component", "server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Shutting down HTTP server", "component", "server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}
