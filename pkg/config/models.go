package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config holds application configuration.
type Config struct {
	GitHub  GitHubConfig  `mapstructure:"github"`
	GitLab  GitLabConfig  `mapstructure:"gitlab"`
	Cache   CacheConfig   `mapstructure:"cache"`
	OTel    OTelConfig    `mapstructure:"otel"`
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Report  ReportConfig  `mapstructure:"report"`
}

// Validate checks value ranges. Credentials are checked when a client is built.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.HTTP.Timeout <= 0 {
		return errors.New("http.timeout must be positive")
	}
	if c.Report.TopFiles < 0 {
		return errors.New("report.top_files must not be negative")
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q must be text or json", c.Logging.Format)
	}
	switch c.GitHub.Source {
	case "", SourceREST:
	case SourcePRX:
		if c.GitHub.UseAppAuth() {
			return errors.New("github.source prx requires github.token, not app credentials")
		}
	default:
		return fmt.Errorf("github.source %q must be %s or %s", c.GitHub.Source, SourceREST, SourcePRX)
	}
	if c.Cache.RedisURL != "" && c.Cache.Dir != "" {
		return errors.New("cache.dir and cache.redis_url are mutually exclusive")
	}
	for _, u := range []struct{ key, val string }{{"github.api_url", c.GitHub.APIURL}, {"gitlab.url", c.GitLab.URL}} {
		if u.val == "" {
			continue
		}
		if p, err := url.Parse(u.val); err != nil || p.Scheme == "" || p.Host == "" {
			return fmt.Errorf("%s %q is not an absolute URL", u.key, u.val)
		}
	}
	return nil
}

// ServerAddr returns host:port for HTTP server binding.
func (c Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// GitHub fetch backends.
const (
	SourceREST = "rest"
	SourcePRX  = "prx" // one GraphQL timeline fetch via codeGROOVE-dev/prx; github.com only
)

// GitHubConfig holds GitHub credentials. AppID selects GitHub App authentication.
type GitHubConfig struct {
	Token      string `mapstructure:"token"`
	AppID      string `mapstructure:"app_id"`
	AppKeyPath string `mapstructure:"app_key_path"`
	APIURL     string `mapstructure:"api_url"`
	Source     string `mapstructure:"source"`
}

// UseAppAuth reports whether GitHub App credentials are configured.
func (g GitHubConfig) UseAppAuth() bool {
	return g.AppID != ""
}

// GitLabConfig holds GitLab credentials.
type GitLabConfig struct {
	Token string `mapstructure:"token"`
	URL   string `mapstructure:"url"`
}

// HTTPConfig contains transport settings.
type HTTPConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// CacheConfig selects the fetch cache backend: Redis, disk, or memory when both are empty.
type CacheConfig struct {
	Dir      string        `mapstructure:"dir"`
	RedisURL string        `mapstructure:"redis_url"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// ServerConfig contains HTTP server options.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig contains logger preferences.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// OTelConfig configures OTLP export. An empty Endpoint disables export.
type OTelConfig struct {
	Endpoint       string `mapstructure:"endpoint"`
	Headers        string `mapstructure:"headers"` // "k1=v1,k2=v2"
	ServiceName    string `mapstructure:"service_name"`
	ServiceVersion string `mapstructure:"service_version"`
}

// Enabled reports whether telemetry should be exported.
func (o OTelConfig) Enabled() bool {
	return o.Endpoint != ""
}

// HeaderMap parses Headers. Malformed pairs are skipped.
func (o OTelConfig) HeaderMap() map[string]string {
	m := make(map[string]string)
	for pair := range strings.SplitSeq(o.Headers, ",") {
		k, v, ok := strings.Cut(pair, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			continue
		}
		m[k] = strings.TrimSpace(v)
	}
	return m
}

// ReportConfig tunes report presentation.
type ReportConfig struct {
	TopFiles int `mapstructure:"top_files"`
}
