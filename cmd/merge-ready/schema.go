package main

import (
	"github.com/spf13/cobra"

	"github.com/codeGROOVE-dev/merge-ready/pkg/render"
)

type schemaCommand struct{}

func (*schemaCommand) Register(parent *cobra.Command) {
	parent.AddCommand(&cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema of the report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return render.Schema(cmd.OutOrStdout())
		},
	})
}
