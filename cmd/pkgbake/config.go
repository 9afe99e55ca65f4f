// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/pkgbake/pkgbake/internal/config"

	"github.com/spf13/cobra"
)

// newConfigCommand creates the `pkgbake config` command tree.
func newConfigCommand(app *App, root *rootFlags) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage pkgbake configuration",
		Long: `Manage pkgbake configuration.

Configuration is read from $XDG_CONFIG_HOME/pkgbake/config.cue. Any value
can be overridden with a PKGBAKE_ environment variable, for example
PKGBAKE_FETCH_MAX_PARALLEL=8.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration as CUE",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, file, err := app.loadConfig(cmd.Context(), root.cfgFile)
			if err != nil {
				return err
			}
			if file == "" {
				file = SubtitleStyle.Render("(using defaults)")
			}
			fmt.Fprintf(app.stderr, "%s: %s\n\n", CmdStyle.Render("Config file"), file)
			fmt.Fprint(app.stdout, config.GenerateCUE(cfg))
			return nil
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show the configuration file path",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := root.cfgFile
			if path == "" {
				var err error
				if path, err = config.ConfigFilePath(); err != nil {
					return err
				}
			}
			fmt.Fprintln(app.stdout, path)
			return nil
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create the default configuration file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := config.CreateDefaultConfig()
			if err != nil {
				return err
			}
			fmt.Fprintf(app.stdout, "%s %s\n", SuccessStyle.Render("Configuration written to"), path)
			return nil
		},
	})

	return cfgCmd
}
