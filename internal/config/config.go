// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkgbake/pkgbake/internal/cueutil"
	"github.com/pkgbake/pkgbake/internal/issue"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

const (
	// AppName is the application name.
	AppName = "pkgbake"
	// ConfigFileName is the name of the config file (without extension).
	ConfigFileName = "config"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "cue"
	// EnvPrefix prefixes environment overrides, e.g. PKGBAKE_FETCH_MAX_PARALLEL.
	EnvPrefix = "PKGBAKE"
)

//go:embed config_schema.cue
var configSchema string

// ConfigDir returns the pkgbake configuration directory under the XDG
// config home.
//
//nolint:revive // ConfigDir is more descriptive than Dir for external callers
func ConfigDir() (string, error) {
	if configDirOverride != "" {
		return configDirOverride, nil
	}
	if xdg.ConfigHome == "" {
		return "", fmt.Errorf("failed to resolve config home")
	}
	return filepath.Join(xdg.ConfigHome, AppName), nil
}

// ConfigFilePath returns the default config file location.
func ConfigFilePath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ConfigFileName+"."+ConfigFileExt), nil
}

// loadWithOptions performs option-driven config loading. It returns the
// config and the path of the file it came from ("" for defaults only).
func loadWithOptions(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	resolvedPath := ""
	if opts.ConfigFilePath != "" {
		if !fileExists(opts.ConfigFilePath) {
			return nil, "", issue.NewErrorContext().
				ForIssue(issue.ConfigLoadFailedId).
				WithOperation("load configuration").
				WithResource(opts.ConfigFilePath).
				WithHint("Verify the file path is correct", "Use 'pkgbake config show' to see the default configuration").
				Wrap(fmt.Errorf("config file not found: %s", opts.ConfigFilePath)).
				BuildError()
		}
		resolvedPath = opts.ConfigFilePath
	} else {
		cfgDir, err := configDirWithOverride(opts.ConfigDirPath)
		if err != nil {
			return nil, "", err
		}
		if p := filepath.Join(cfgDir, ConfigFileName+"."+ConfigFileExt); fileExists(p) {
			resolvedPath = p
		}
	}

	if resolvedPath != "" {
		if err := loadCUEIntoViper(v, resolvedPath); err != nil {
			return nil, "", issue.NewErrorContext().
				ForIssue(issue.ConfigLoadFailedId).
				WithOperation("load configuration").
				WithResource(resolvedPath).
				WithHint("Check that the file contains valid CUE syntax", "Compare it with the output of 'pkgbake config show'").
				Wrap(err).
				BuildError()
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}
	if valid, errs := cfg.IsValid(); !valid {
		return nil, "", issue.NewErrorContext().
			ForIssue(issue.ConfigLoadFailedId).
			WithOperation("validate configuration").
			WithResource(resolvedPath).
			WithHint("Check the PKGBAKE_* environment variables").
			Wrap(errs[0]).
			BuildError()
	}
	return &cfg, resolvedPath, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("bash_path", d.BashPath)
	v.SetDefault("makepkg_conf", d.MakepkgConf)
	v.SetDefault("fetch.max_parallel", d.Fetch.MaxParallel)
	v.SetDefault("fetch.max_attempts", d.Fetch.MaxAttempts)
	v.SetDefault("fetch.backoff", d.Fetch.Backoff)
	v.SetDefault("fetch.workers", d.Fetch.Workers)
	v.SetDefault("fetch.requests_per_second", d.Fetch.RequestsPerSecond)
	v.SetDefault("fetch.user_agent", d.Fetch.UserAgent)
	v.SetDefault("fetch.timeout", d.Fetch.Timeout)
	v.SetDefault("s3.endpoint", d.S3.Endpoint)
	v.SetDefault("s3.region", d.S3.Region)
	v.SetDefault("s3.secure", d.S3.Secure)
	v.SetDefault("trust.keyring", d.Trust.Keyring)
	v.SetDefault("build.parallel_packages", d.Build.ParallelPackages)
	v.SetDefault("build.run_check", d.Build.RunCheck)
	v.SetDefault("build.clean_build", d.Build.CleanBuild)
	v.SetDefault("paths.srcdest", d.Paths.SrcDest)
	v.SetDefault("paths.builddir", d.Paths.BuildDir)
	v.SetDefault("report.format", d.Report.Format)
	v.SetDefault("metrics_file", d.MetricsFile)
}

// configDirWithOverride resolves the configuration directory, honoring
// explicit provider options before the XDG default.
func configDirWithOverride(configDirPath string) (string, error) {
	if configDirPath != "" {
		return configDirPath, nil
	}
	return ConfigDir()
}

// loadCUEIntoViper validates a CUE file against #Config and merges it into
// Viper. Unset fields are left to the defaults.
func loadCUEIntoViper(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	configMap, err := cueutil.Decode[map[string]any](configSchema, data, "#Config",
		cueutil.WithFilename(path),
		cueutil.WithConcrete(false),
	)
	if err != nil {
		return err
	}
	if err := v.MergeConfigMap(configMap); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}
	return nil
}

// fileExists checks if a file exists and is not a directory
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// CreateDefaultConfig writes the default config file unless one exists and
// returns its path.
func CreateDefaultConfig() (string, error) {
	cfgPath, err := ConfigFilePath()
	if err != nil {
		return "", err
	}
	if fileExists(cfgPath) {
		return cfgPath, nil
	}
	return cfgPath, Save(DefaultConfig())
}

// Save writes cfg to the default config file.
func Save(cfg *Config) error {
	cfgPath, err := ConfigFilePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(cfgPath), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(cfgPath, []byte(GenerateCUE(cfg)), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateCUE renders cfg as a config.cue document.
func GenerateCUE(cfg *Config) string {
	var sb strings.Builder

	sb.WriteString("// pkgbake configuration file\n\n")
	fmt.Fprintf(&sb, "bash_path: %q\n", cfg.BashPath)
	writeList(&sb, "", "makepkg_conf", cfg.MakepkgConf)
	if cfg.MetricsFile != "" {
		fmt.Fprintf(&sb, "metrics_file: %q\n", cfg.MetricsFile)
	}

	sb.WriteString("\nfetch: {\n")
	fmt.Fprintf(&sb, "\tmax_parallel:        %d\n", cfg.Fetch.MaxParallel)
	fmt.Fprintf(&sb, "\tmax_attempts:        %d\n", cfg.Fetch.MaxAttempts)
	fmt.Fprintf(&sb, "\tbackoff:             %q\n", cfg.Fetch.Backoff.String())
	fmt.Fprintf(&sb, "\tworkers:             %d\n", cfg.Fetch.Workers)
	fmt.Fprintf(&sb, "\trequests_per_second: %g\n", cfg.Fetch.RequestsPerSecond)
	fmt.Fprintf(&sb, "\tuser_agent:          %q\n", cfg.Fetch.UserAgent)
	fmt.Fprintf(&sb, "\ttimeout:             %q\n", cfg.Fetch.Timeout.String())
	sb.WriteString("}\n")

	sb.WriteString("\ns3: {\n")
	fmt.Fprintf(&sb, "\tendpoint: %q\n", cfg.S3.Endpoint)
	fmt.Fprintf(&sb, "\tregion:   %q\n", cfg.S3.Region)
	fmt.Fprintf(&sb, "\tsecure:   %v\n", cfg.S3.Secure)
	sb.WriteString("}\n")

	sb.WriteString("\ntrust: {\n")
	writeList(&sb, "\t", "keyring", cfg.Trust.Keyring)
	sb.WriteString("}\n")

	sb.WriteString("\nbuild: {\n")
	fmt.Fprintf(&sb, "\tparallel_packages: %v\n", cfg.Build.ParallelPackages)
	fmt.Fprintf(&sb, "\trun_check:         %v\n", cfg.Build.RunCheck)
	fmt.Fprintf(&sb, "\tclean_build:       %v\n", cfg.Build.CleanBuild)
	sb.WriteString("}\n")

	sb.WriteString("\npaths: {\n")
	fmt.Fprintf(&sb, "\tsrcdest:  %q\n", cfg.Paths.SrcDest)
	fmt.Fprintf(&sb, "\tbuilddir: %q\n", cfg.Paths.BuildDir)
	sb.WriteString("}\n")

	sb.WriteString("\nreport: {\n")
	fmt.Fprintf(&sb, "\tformat: %q\n", cfg.Report.Format)
	sb.WriteString("}\n")

	return sb.String()
}

func writeList(sb *strings.Builder, indent, name string, items []string) {
	if len(items) == 0 {
		fmt.Fprintf(sb, "%s%s: []\n", indent, name)
		return
	}
	fmt.Fprintf(sb, "%s%s: [\n", indent, name)
	for _, it := range items {
		fmt.Fprintf(sb, "%s\t%q,\n", indent, it)
	}
	fmt.Fprintf(sb, "%s]\n", indent)
}
