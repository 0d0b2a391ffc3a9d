// Package config loads merge-ready configuration from the environment and an optional .env file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultEnvFile is read when present. Real environment variables win over its values.
const DefaultEnvFile = ".env"

var keys = []string{
	"github.token",
	"github.app_id",
	"github.app_key_path",
	"github.api_url",
	"github.source",
	"gitlab.token",
	"gitlab.url",
	"http.timeout",
	"cache.dir",
	"cache.ttl",
	"cache.redis_url",
	"server.host",
	"server.port",
	"server.shutdown_timeout",
	"logging.level",
	"logging.format",
	"otel.endpoint",
	"otel.headers",
	"otel.service_name",
	"otel.service_version",
	"report.top_files",
}

// Load reads configuration. Precedence: environment, then envFile, then defaults.
// A missing envFile is not an error.
func Load(envFile string) (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if envFile != "" {
		fileVals, err := godotenv.Read(envFile)
		switch {
		case err == nil:
			applyEnvFile(v, fileVals)
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("read %s: %w", envFile, err)
		}
	}

	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("github.api_url", "https://api.github.com")
	v.SetDefault("github.source", SourceREST)
	v.SetDefault("gitlab.url", "https://gitlab.com")

	v.SetDefault("http.timeout", 30*time.Second)

	v.SetDefault("cache.ttl", 28*24*time.Hour)

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("otel.service_name", "merge-ready")
	v.SetDefault("otel.service_version", "dev")

	v.SetDefault("report.top_files", 5)
}

// applyEnvFile layers .env values between the real environment and the defaults.
func applyEnvFile(v *viper.Viper, fileVals map[string]string) {
	for _, k := range keys {
		name := envName(k)
		if _, set := os.LookupEnv(name); set {
			continue
		}
		if val, ok := fileVals[name]; ok {
			v.SetDefault(k, val)
		}
	}
}

// envName returns the environment variable for a key: "cache.redis_url" -> "CACHE_REDIS_URL".
func envName(key string) string {
	return strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}
