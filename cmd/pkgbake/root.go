// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// rootFlags holds the persistent flags shared by every subcommand.
type rootFlags struct {
	verbose   bool
	cfgFile   string
	buildFile string
}

// NewRootCommand creates the pkgbake command tree bound to app.
func NewRootCommand(app *App) *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:   "pkgbake",
		Short: "Fetch, verify and build packages from PKGBUILD files",
		Long: TitleStyle.Render("pkgbake") + SubtitleStyle.Render(" - a PKGBUILD build orchestrator") + `

pkgbake reads a PKGBUILD through bash, downloads and verifies its sources
in parallel, unpacks them and runs the build functions in order.

` + SubtitleStyle.Render("Examples:") + `
  pkgbake build             Fetch, verify, unpack and build ./PKGBUILD
  pkgbake fetch -p foo/PKGBUILD
  pkgbake srcinfo > .SRCINFO
  pkgbake run build         Run build() on its own
  pkgbake config show       Show current configuration`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			setupLogging(app.stderr, flags.verbose)
		},
	}

	pf := root.PersistentFlags()
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug logging")
	pf.StringVar(&flags.cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/pkgbake/config.cue)")
	pf.StringVarP(&flags.buildFile, "file", "p", "PKGBUILD", "build file to read")

	root.AddCommand(
		newBuildCommand(app, flags),
		newFetchCommand(app, flags),
		newVerifyCommand(app, flags),
		newSrcinfoCommand(app, flags),
		newRunCommand(app, flags),
		newConfigCommand(app, flags),
	)
	return root
}

// setupLogging installs a charmbracelet/log handler as the slog default.
func setupLogging(w io.Writer, verbose bool) {
	logger := log.NewWithOptions(w, log.Options{
		Prefix:          "pkgbake",
		ReportTimestamp: verbose,
	})
	if verbose {
		logger.SetLevel(log.DebugLevel)
	} else {
		logger.SetLevel(log.WarnLevel)
	}
	slog.SetDefault(slog.New(logger))
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute runs the CLI. This is called by main.main().
func Execute() {
	root := NewRootCommand(NewApp(Dependencies{}))
	if err := fang.Execute(
		context.Background(),
		root,
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(int(exitErr.Code))
		}
		os.Exit(1)
	}
}
