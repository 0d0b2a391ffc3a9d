package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/codeGROOVE-dev/merge-ready/pkg/server"
	"github.com/codeGROOVE-dev/merge-ready/pkg/telemetry"
)

type serveCommand struct {
	app    *app
	addr   string
	nodeID int64
}

func (c *serveCommand) Register(parent *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve readiness reports over HTTP",
		Long: `Serve readiness reports over HTTP.

Endpoints:
  GET /v1/github/{owner}/{repo}/pulls/{number}/readiness
  GET /v1/readiness?ref=<owner/repo#N | group/project!N | URL>
  GET /healthz`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&c.addr, "addr", "", "Listen address (default server.host:server.port)")
	cmd.Flags().Int64Var(&c.nodeID, "node-id", 1, "Snowflake node ID for request IDs (0-1023)")
	parent.AddCommand(cmd)
}

// Run serves until SIGINT or SIGTERM.
func (c *serveCommand) Run(ctx context.Context) error {
	cfg := c.app.cfg
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.Setup(ctx, cfg.OTel)
	if err != nil {
		return err
	}
	defer func() {
		if err := tel.Shutdown(context.WithoutCancel(ctx)); err != nil {
			slog.Error("Telemetry shutdown failed", "component", "telemetry", "error", err)
		}
	}()
	slog.SetDefault(telemetry.NewLogger(os.Stdout, cfg.Logging, cfg.OTel))

	store, release, err := openCache(ctx, cfg.Cache)
	if err != nil {
		return err
	}
	defer release()

	gh, err := newGitHubSource(ctx, cfg, "", store)
	if err != nil {
		return err
	}
	var gl server.Fetcher
	if cfg.GitLab.Token != "" {
		src, err := newGitLab(cfg, "", store)
		if err != nil {
			return err
		}
		gl = src
	}

	gin.SetMode(gin.ReleaseMode)
	srv, err := server.New(server.Config{
		GitHub:      gh,
		GitLab:      gl,
		GitHubHost:  instanceHost(cfg.GitHub.APIURL, "github.com"),
		GitLabHost:  instanceHost(cfg.GitLab.URL, "gitlab.com"),
		ServiceName: cfg.OTel.ServiceName,
		NodeID:      c.nodeID,
		TopFiles:    cfg.Report.TopFiles,
		Tracing:     cfg.OTel.Enabled(),
	})
	if err != nil {
		return err
	}

	addr := c.addr
	if addr == "" {
		addr = cfg.ServerAddr()
	}
	return srv.Run(ctx, addr, cfg.Server.ShutdownTimeout)
}
