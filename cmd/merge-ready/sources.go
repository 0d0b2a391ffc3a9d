package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/codeGROOVE-dev/merge-ready/pkg/cache"
	"github.com/codeGROOVE-dev/merge-ready/pkg/config"
	"github.com/codeGROOVE-dev/merge-ready/pkg/github"
	"github.com/codeGROOVE-dev/merge-ready/pkg/gitlab"
	"github.com/codeGROOVE-dev/merge-ready/pkg/prref"
	"github.com/codeGROOVE-dev/merge-ready/pkg/types"
)

// source is what the CLI needs from a platform.
type source interface {
	Snapshot(ctx context.Context, owner, repo string, number int) (*types.RawSnapshot, error)
	OpenPullRequests(ctx context.Context, owner, repo string) ([]types.PullRequest, error)
}

// openCache picks Redis, then disk, then memory. The returned func releases it.
func openCache(ctx context.Context, cfg config.CacheConfig) (cache.Store, func(), error) {
	if cfg.RedisURL != "" {
		client, err := cache.OpenRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("Using Redis cache", "component", "cache")
		return cache.NewRedisStore(client), func() { _ = client.Close() }, nil
	}
	dc, err := cache.NewDiskCache(cfg.Dir)
	if err != nil {
		return nil, nil, fmt.Errorf("cache: %w", err)
	}
	return dc, dc.Close, nil
}

// publicHost is the web host of a platform's public instance.
func publicHost(p prref.Platform) string {
	if p == prref.GitLab {
		return "gitlab.com"
	}
	return "github.com"
}

// newGitHub builds a client. An empty host uses the configured API; github.com the public one;
// any other host selects GitHub Enterprise at https://host/api/v3.
func newGitHub(ctx context.Context, cfg *config.Config, host string, store cache.Store) (*github.Client, error) {
	baseURL := cfg.GitHub.APIURL
	switch host {
	case "":
	case "github.com":
		baseURL = github.DefaultBaseURL
	default:
		baseURL = "https://" + host + "/api/v3"
	}
	client, err := github.New(ctx, github.Config{
		Cache:       store,
		BaseURL:     baseURL,
		AppID:       cfg.GitHub.AppID,
		AppKeyPath:  cfg.GitHub.AppKeyPath,
		Token:       cfg.GitHub.Token,
		HTTPTimeout: cfg.HTTP.Timeout,
		FilesTTL:    cfg.Cache.TTL,
		UseAppAuth:  cfg.GitHub.UseAppAuth(),
	})
	if err != nil {
		return nil, fmt.Errorf("github client: %w", err)
	}
	return client, nil
}

// newGitLab builds a source. A non-empty host overrides the configured instance.
func newGitLab(cfg *config.Config, host string, store cache.Store) (*gitlab.Source, error) {
	baseURL := cfg.GitLab.URL
	if host != "" {
		baseURL = "https://" + host
	}
	src, err := gitlab.New(gitlab.Config{
		HTTPClient: &http.Client{Timeout: cfg.HTTP.Timeout},
		Cache:      store,
		Token:      cfg.GitLab.Token,
		BaseURL:    baseURL,
		FilesTTL:   cfg.Cache.TTL,
	})
	if err != nil {
		return nil, fmt.Errorf("gitlab client: %w", err)
	}
	return src, nil
}

// newGitHubSource honours github.source: REST by default, or prx backed by REST for file lists.
func newGitHubSource(ctx context.Context, cfg *config.Config, host string, store cache.Store) (source, error) {
	if cfg.GitHub.Source == config.SourcePRX && host != "" && host != "github.com" {
		return nil, fmt.Errorf("github.source prx supports github.com only, not %s", host)
	}
	client, err := newGitHub(ctx, cfg, host, store)
	if err != nil {
		return nil, err
	}
	if cfg.GitHub.Source != config.SourcePRX {
		return client, nil
	}
	token, err := client.PRXToken()
	if err != nil {
		return nil, err
	}
	slog.Debug("Using prx for GitHub snapshots", "component", "api")
	return github.NewPRXSource(github.NewPRXClient(token, cfg.HTTP.Timeout, slog.Default()), client), nil
}

func newSource(ctx context.Context, cfg *config.Config, p prref.Platform, host string, store cache.Store) (source, error) {
	if p == prref.GitLab {
		return newGitLab(cfg, host, store)
	}
	return newGitHubSource(ctx, cfg, host, store)
}

// instanceHost returns the web host behind a configured API URL, as prref reports it:
// empty for the public instance.
func instanceHost(apiURL, public string) string {
	u, err := url.Parse(apiURL)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Host)
	switch host {
	case "", public, "www." + public, "api." + public:
		return ""
	}
	return host
}
