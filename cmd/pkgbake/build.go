// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkgbake/pkgbake/internal/app/pipeline"
	"github.com/pkgbake/pkgbake/internal/config"
	"github.com/pkgbake/pkgbake/internal/report"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// runFlags are the pipeline options shared by build, fetch and verify.
type runFlags struct {
	format     string
	arch       string
	ignoreArch bool
	srcDest    string
	buildDir   string
	check      bool
	noCheck    bool
	noPrepare  bool
	noExtract  bool
	skipPGP    bool
	clean      bool
	reportFile string
}

func (f *runFlags) register(fs *pflag.FlagSet, full bool) {
	fs.StringVar(&f.format, "format", "", "report format: text, json or toml (default from config)")
	fs.StringVar(&f.reportFile, "report", "", "also write the report to this file")
	fs.StringVar(&f.arch, "arch", "", "override CARCH")
	fs.BoolVarP(&f.ignoreArch, "ignorearch", "A", false, "ignore an incomplete arch field")
	fs.StringVar(&f.srcDest, "srcdest", "", "directory for downloaded sources")
	fs.BoolVar(&f.skipPGP, "skippgpcheck", false, "do not verify source files with PGP signatures")
	if !full {
		return
	}
	fs.StringVar(&f.buildDir, "builddir", "", "root directory for build trees")
	fs.BoolVar(&f.check, "check", false, "run the check() function")
	fs.BoolVar(&f.noCheck, "nocheck", false, "do not run the check() function")
	fs.BoolVar(&f.noPrepare, "noprepare", false, "do not run the prepare() function")
	fs.BoolVarP(&f.noExtract, "noextract", "e", false, "reuse the existing source directory")
	fs.BoolVarP(&f.clean, "cleanbuild", "C", false, "remove srcdir before unpacking")
}

func (f *runFlags) options(buildFile string, stopAfter report.Phase) pipeline.Options {
	return pipeline.Options{
		BuildFile:  buildFile,
		StopAfter:  stopAfter,
		Arch:       f.arch,
		IgnoreArch: f.ignoreArch,
		SrcDest:    f.srcDest,
		BuildDir:   f.buildDir,
		RunCheck:   f.check,
		NoCheck:    f.noCheck,
		NoPrepare:  f.noPrepare,
		NoExtract:  f.noExtract,
		SkipPGP:    f.skipPGP,
		Clean:      f.clean,
	}
}

func newBuildCommand(app *App, root *rootFlags) *cobra.Command {
	flags := &runFlags{}
	c := &cobra.Command{
		Use:   "build",
		Short: "Fetch, verify, unpack and build the package",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.run(cmd, root, flags, "")
		},
	}
	flags.register(c.Flags(), true)
	return c
}

func newFetchCommand(app *App, root *rootFlags) *cobra.Command {
	flags := &runFlags{}
	c := &cobra.Command{
		Use:   "fetch",
		Short: "Download sources and check their digests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.run(cmd, root, flags, report.PhaseFetch)
		},
	}
	flags.register(c.Flags(), false)
	return c
}

func newVerifyCommand(app *App, root *rootFlags) *cobra.Command {
	flags := &runFlags{}
	c := &cobra.Command{
		Use:   "verify",
		Short: "Download sources and verify digests and signatures",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.run(cmd, root, flags, report.PhaseVerify)
		},
	}
	flags.register(c.Flags(), false)
	return c
}

// run executes the pipeline and prints its report. The report is printed
// for failed runs too.
func (a *App) run(cmd *cobra.Command, root *rootFlags, flags *runFlags, stopAfter report.Phase) error {
	ctx := cmd.Context()
	cfg, _, err := a.loadConfig(ctx, root.cfgFile)
	if err != nil {
		return err
	}
	format := cfg.Report.Format
	if flags.format != "" {
		format = config.ReportFormat(flags.format)
	}
	if ok, errs := format.IsValid(); !ok {
		return errs[0]
	}

	rep, runErr := a.pipeline(cfg).Run(ctx, flags.options(root.buildFile, stopAfter))
	if rep != nil {
		if err := writeReport(a.stdout, rep, format); err != nil {
			return err
		}
		if flags.reportFile != "" {
			if err := writeReportFile(flags.reportFile, rep); err != nil {
				return fmt.Errorf("write report: %w", err)
			}
		}
	}
	if runErr != nil {
		return a.fail(runErr)
	}
	return nil
}

// writeReportFile writes rep as json or toml, chosen by the file extension.
func writeReportFile(path string, rep *report.Report) error {
	format := strings.TrimPrefix(filepath.Ext(path), ".")
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := rep.Encode(f, format); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	return f.Close()
}
