// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"github.com/spf13/cobra"
)

func newRunCommand(app *App, root *rootFlags) *cobra.Command {
	flags := &runFlags{}
	c := &cobra.Command{
		Use:   "run <function>",
		Short: "Run a single build function in the source directory",
		Long: `Run a single build function such as prepare, build, check or package
in the source directory, with the same environment a full build gives it.
Sources are neither fetched nor unpacked. The exit code of the function
becomes the exit code of pkgbake.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := app.loadConfig(cmd.Context(), root.cfgFile)
			if err != nil {
				return err
			}
			code, err := app.pipeline(cfg).CallFunction(cmd.Context(), flags.options(root.buildFile, ""), args[0])
			if err != nil {
				if code == 0 {
					code = 1
				}
				return app.fail(&ExitError{Code: code, Err: err})
			}
			return nil
		},
	}
	fs := c.Flags()
	fs.StringVar(&flags.arch, "arch", "", "override CARCH")
	fs.BoolVarP(&flags.ignoreArch, "ignorearch", "A", false, "ignore an incomplete arch field")
	fs.StringVar(&flags.buildDir, "builddir", "", "root directory for build trees")
	return c
}
