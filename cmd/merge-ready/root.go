package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/codeGROOVE-dev/merge-ready/pkg/config"
	"github.com/codeGROOVE-dev/merge-ready/pkg/telemetry"
)

// app carries state shared by all subcommands.
type app struct {
	cfg     *config.Config
	envFile string
	verbose bool
}

func newRootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "merge-ready",
		Short: "Report whether a pull request is ready to merge",
		Long: `merge-ready fetches a pull or merge request and classifies it as ready, pending or not-ready
from its conflicts, draft state, approvals and checks, with the next actions that would move it forward.

Credentials come from the environment or a .env file:
  GITHUB_TOKEN (or gh auth token), GITHUB_APP_ID + GITHUB_APP_KEY_PATH, GITLAB_TOKEN, GITLAB_URL`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(a.envFile)
			if err != nil {
				return err
			}
			if a.verbose {
				cfg.Logging.Level = "debug"
			}
			a.cfg = cfg
			setLogger(cmd, cfg)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVar(&a.envFile, "env-file", config.DefaultEnvFile, "Path to a .env file")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Debug logging")

	for _, c := range []interface{ Register(*cobra.Command) }{
		&checkCommand{app: a},
		&serveCommand{app: a},
		&schemaCommand{},
	} {
		c.Register(root)
	}
	return root
}

// setLogger installs the CLI logger on stderr. OTLP export is reserved for serve.
func setLogger(cmd *cobra.Command, cfg *config.Config) {
	slog.SetDefault(telemetry.NewLogger(cmd.ErrOrStderr(), cfg.Logging, config.OTelConfig{}))
}
