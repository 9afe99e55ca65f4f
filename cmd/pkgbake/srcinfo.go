// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"github.com/spf13/cobra"
)

func newSrcinfoCommand(app *App, root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "srcinfo",
		Short: "Print .SRCINFO metadata for the build file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := app.loadConfig(cmd.Context(), root.cfgFile)
			if err != nil {
				return err
			}
			spec, err := app.pipeline(cfg).Load(cmd.Context(), root.buildFile)
			if err != nil {
				return app.fail(err)
			}
			return spec.WriteSRCINFO(app.stdout)
		},
	}
}
