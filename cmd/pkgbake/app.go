// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/pkgbake/pkgbake/internal/app/pipeline"
	"github.com/pkgbake/pkgbake/internal/config"
)

type (
	// App wires CLI services and shared dependencies. Cobra handlers receive
	// an App and delegate to it.
	App struct {
		Config config.Provider
		stdout io.Writer
		stderr io.Writer
		// lookup resolves makepkg.conf environment overrides.
		lookup func(string) (string, bool)
	}

	// Dependencies defines the injection points for building an App. Nil
	// fields are replaced with production defaults by NewApp.
	Dependencies struct {
		Config    config.Provider
		Stdout    io.Writer
		Stderr    io.Writer
		EnvLookup func(string) (string, bool)
	}
)

// NewApp creates an App with defaults for omitted dependencies.
func NewApp(deps Dependencies) *App {
	if deps.Stdout == nil {
		deps.Stdout = os.Stdout
	}
	if deps.Stderr == nil {
		deps.Stderr = os.Stderr
	}
	if deps.Config == nil {
		deps.Config = config.NewProvider()
	}
	if deps.EnvLookup == nil {
		deps.EnvLookup = os.LookupEnv
	}
	return &App{
		Config: deps.Config,
		stdout: deps.Stdout,
		stderr: deps.Stderr,
		lookup: deps.EnvLookup,
	}
}

// loadConfig resolves configuration for one command. Failures are rendered
// with the matching issue before being returned.
func (a *App) loadConfig(ctx context.Context, path string) (*config.Config, string, error) {
	cfg, file, err := a.Config.Resolve(ctx, config.LoadOptions{ConfigFilePath: path})
	if err != nil {
		return nil, "", a.fail(err)
	}
	return cfg, file, nil
}

// pipeline builds a pipeline for cfg. Stage output goes to stderr so that
// stdout carries only the report.
func (a *App) pipeline(cfg *config.Config) *pipeline.Pipeline {
	return pipeline.New(cfg,
		pipeline.WithOutput(a.stderr, a.stderr),
		pipeline.WithEnvLookup(a.lookup),
		pipeline.WithLogger(slog.Default()),
	)
}
