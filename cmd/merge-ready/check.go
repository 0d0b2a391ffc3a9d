package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codeGROOVE-dev/merge-ready/pkg/prref"
	"github.com/codeGROOVE-dev/merge-ready/pkg/readiness"
	"github.com/codeGROOVE-dev/merge-ready/pkg/render"
)

// Exit codes for check --exit-code.
const (
	exitNotReady = 2
	exitPending  = 3
)

type checkCommand struct {
	app      *app
	repo     string
	topFiles int
	json     bool
	gitlab   bool
	exitCode bool
}

func (c *checkCommand) Register(parent *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "check [PR]",
		Short: "Evaluate one pull or merge request",
		Long: `Evaluate one pull or merge request and print its readiness report.

Examples:
  merge-ready check owner/repo#123
  merge-ready check https://github.com/owner/repo/pull/123
  merge-ready check https://gitlab.example.com/group/project/-/merge_requests/7
  merge-ready check --repo owner/repo           # pick an open PR interactively
  merge-ready check owner/repo#123 --json --exit-code`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Run(cmd, args)
		},
	}
	cmd.Flags().BoolVar(&c.json, "json", false, "Print the report as JSON")
	cmd.Flags().StringVar(&c.repo, "repo", "", "Pick an open pull request from this repository")
	cmd.Flags().BoolVar(&c.gitlab, "gitlab", false, "Treat --repo as a GitLab project")
	cmd.Flags().IntVar(&c.topFiles, "files", 0, "Number of largest changed files to list (default from config)")
	cmd.Flags().BoolVar(&c.exitCode, "exit-code", false, "Exit 2 when not-ready and 3 when pending")
	parent.AddCommand(cmd)
}

// Run resolves the reference, fetches, evaluates and prints.
func (c *checkCommand) Run(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := c.app.cfg
	if !c.app.verbose && cfg.Logging.Level == "info" {
		// Keep fetch progress off the terminal unless asked for.
		cfg.Logging.Level = "warn"
		setLogger(cmd, cfg)
	}

	store, release, err := openCache(ctx, cfg.Cache)
	if err != nil {
		return err
	}
	defer release()

	ref, src, err := c.resolve(ctx, args, func(p prref.Platform, host string) (source, error) {
		return newSource(ctx, cfg, p, host, store)
	})
	if err != nil {
		return err
	}

	snap, err := src.Snapshot(ctx, ref.Owner, ref.Repo, ref.Number)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", ref, err)
	}

	topFiles := c.topFiles
	if topFiles <= 0 {
		topFiles = cfg.Report.TopFiles
	}
	report, err := readiness.Evaluate(snap, readiness.Options{TopFiles: topFiles})
	if err != nil {
		return fmt.Errorf("evaluate %s: %w", ref, err)
	}

	out := cmd.OutOrStdout()
	if c.json {
		err = render.JSON(out, report)
	} else {
		err = render.Terminal(out, report, render.WriterWidth(out))
	}
	if err != nil {
		return err
	}

	if code := exitCodeFor(report.Status); c.exitCode && code != 0 {
		return &exitError{code: code}
	}
	return nil
}

// resolve turns the argument or --repo picker choice into a reference and its source.
func (c *checkCommand) resolve(ctx context.Context, args []string, open func(prref.Platform, string) (source, error)) (prref.Ref, source, error) {
	switch {
	case c.repo != "" && len(args) > 0:
		return prref.Ref{}, nil, errors.New("pass either a pull request or --repo, not both")
	case c.repo != "":
		p := prref.GitHub
		if c.gitlab {
			p = prref.GitLab
		}
		owner, repo, err := prref.ParseRepo(c.repo, p)
		if err != nil {
			return prref.Ref{}, nil, err
		}
		src, err := open(p, "")
		if err != nil {
			return prref.Ref{}, nil, err
		}
		prs, err := src.OpenPullRequests(ctx, owner, repo)
		if err != nil {
			return prref.Ref{}, nil, fmt.Errorf("list open pull requests: %w", err)
		}
		pr, err := render.SelectPullRequest(prs)
		if err != nil {
			return prref.Ref{}, nil, err
		}
		return prref.Ref{Platform: p, Owner: owner, Repo: repo, Number: pr.Number}, src, nil
	case len(args) == 1:
		ref, err := prref.Parse(args[0])
		if err != nil {
			return prref.Ref{}, nil, err
		}
		host := ref.Host
		if ref.FromURL && host == "" {
			host = publicHost(ref.Platform)
		}
		src, err := open(ref.Platform, host)
		if err != nil {
			return prref.Ref{}, nil, err
		}
		return ref, src, nil
	default:
		return prref.Ref{}, nil, errors.New("missing pull request (owner/repo#N or URL), or use --repo")
	}
}

func exitCodeFor(s readiness.Status) int {
	switch s {
	case readiness.StatusNotReady:
		return exitNotReady
	case readiness.StatusPending:
		return exitPending
	default:
		return 0
	}
}
