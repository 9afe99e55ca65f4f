// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pkgbake/pkgbake/internal/issue"
	"github.com/pkgbake/pkgbake/internal/testutil"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	if valid, errs := cfg.IsValid(); !valid {
		t.Fatalf("DefaultConfig() is invalid: %v", errs)
	}
	if cfg.Fetch.MaxAttempts != 3 || cfg.Fetch.Backoff != time.Second {
		t.Errorf("fetch defaults = %+v", cfg.Fetch)
	}
	if cfg.Report.Format != ReportText {
		t.Errorf("report format = %q, want text", cfg.Report.Format)
	}
	if cfg.MakepkgConf[0] != "/etc/makepkg.conf" {
		t.Errorf("makepkg_conf = %v", cfg.MakepkgConf)
	}
}

func TestConfigDirOverride(t *testing.T) {
	dir := t.TempDir()
	SetConfigDirOverride(dir)
	t.Cleanup(Reset)

	got, err := ConfigDir()
	if err != nil {
		t.Fatalf("ConfigDir() error = %v", err)
	}
	if got != dir {
		t.Errorf("ConfigDir() = %q, want %q", got, dir)
	}
	path, err := ConfigFilePath()
	if err != nil {
		t.Fatalf("ConfigFilePath() error = %v", err)
	}
	if path != filepath.Join(dir, "config.cue") {
		t.Errorf("ConfigFilePath() = %q", path)
	}
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, path, err := NewProvider().Resolve(context.Background(), LoadOptions{ConfigDirPath: t.TempDir()})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if path != "" {
		t.Errorf("resolved path = %q, want empty", path)
	}
	if cfg.Fetch.MaxParallel != DefaultConfig().Fetch.MaxParallel {
		t.Errorf("max_parallel = %d", cfg.Fetch.MaxParallel)
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.MustWriteFile(t, filepath.Join(dir, "config.cue"), `
bash_path: "/usr/local/bin/bash"
fetch: {
	max_parallel: 8
	backoff:      "250ms"
}
trust: keyring: ["/etc/pkgbake/trusted.gpg"]
build: run_check: true
report: format: "json"
`)

	cfg, path, err := NewProvider().Resolve(context.Background(), LoadOptions{ConfigDirPath: dir})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if path != filepath.Join(dir, "config.cue") {
		t.Errorf("resolved path = %q", path)
	}
	if cfg.BashPath != "/usr/local/bin/bash" {
		t.Errorf("bash_path = %q", cfg.BashPath)
	}
	if cfg.Fetch.MaxParallel != 8 || cfg.Fetch.Backoff != 250*time.Millisecond {
		t.Errorf("fetch = %+v", cfg.Fetch)
	}
	if cfg.Fetch.MaxAttempts != 3 {
		t.Errorf("unset max_attempts = %d, want default 3", cfg.Fetch.MaxAttempts)
	}
	if len(cfg.Trust.Keyring) != 1 || cfg.Trust.Keyring[0] != "/etc/pkgbake/trusted.gpg" {
		t.Errorf("keyring = %v", cfg.Trust.Keyring)
	}
	if !cfg.Build.RunCheck || cfg.Report.Format != ReportJSON {
		t.Errorf("build/report = %+v %+v", cfg.Build, cfg.Report)
	}
}

func TestLoadRejectsInvalidFiles(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"unknown key", "colour: \"red\"\n", "colour"},
		{"wrong type", "fetch: max_parallel: \"many\"\n", "fetch.max_parallel"},
		{"below minimum", "fetch: workers: 0\n", "fetch.workers"},
		{"bad duration", "fetch: backoff: \"soon\"\n", "fetch.backoff"},
		{"bad report format", "report: format: \"yaml\"\n", "report.format"},
		{"syntax error", "fetch: {\n", "config.cue"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			dir := t.TempDir()
			testutil.MustWriteFile(t, filepath.Join(dir, "config.cue"), tt.content)

			_, err := NewProvider().Load(context.Background(), LoadOptions{ConfigDirPath: dir})
			if err == nil {
				t.Fatal("Load() error = nil")
			}
			var ae *issue.ActionableError
			if !errors.As(err, &ae) {
				t.Errorf("error %T is not actionable", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	t.Parallel()

	missing := filepath.Join(t.TempDir(), "nope.cue")
	_, err := NewProvider().Load(context.Background(), LoadOptions{ConfigFilePath: missing})
	if err == nil || !strings.Contains(err.Error(), "config file not found") {
		t.Fatalf("Load() error = %v", err)
	}
}

func TestLoadCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewProvider().Load(ctx, LoadOptions{ConfigDirPath: t.TempDir()}); !errors.Is(err, context.Canceled) {
		t.Fatalf("Load() error = %v, want context.Canceled", err)
	}
}

func TestLoadEnvironmentOverride(t *testing.T) {
	t.Setenv("PKGBAKE_FETCH_MAX_ATTEMPTS", "7")
	t.Setenv("PKGBAKE_REPORT_FORMAT", "toml")

	cfg, err := NewProvider().Load(context.Background(), LoadOptions{ConfigDirPath: t.TempDir()})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Fetch.MaxAttempts != 7 {
		t.Errorf("max_attempts = %d, want 7", cfg.Fetch.MaxAttempts)
	}
	if cfg.Report.Format != ReportTOML {
		t.Errorf("report format = %q, want toml", cfg.Report.Format)
	}
}

func TestLoadEnvironmentOverrideValidated(t *testing.T) {
	t.Setenv("PKGBAKE_REPORT_FORMAT", "xml")

	_, err := NewProvider().Load(context.Background(), LoadOptions{ConfigDirPath: t.TempDir()})
	if !errors.Is(err, ErrInvalidReportFormat) {
		t.Fatalf("Load() error = %v, want ErrInvalidReportFormat", err)
	}
}

func TestCreateDefaultConfigRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), AppName)
	SetConfigDirOverride(dir)
	t.Cleanup(Reset)

	path, err := CreateDefaultConfig()
	if err != nil {
		t.Fatalf("CreateDefaultConfig() error = %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config not written: %v", err)
	}

	cfg, err := NewProvider().Load(context.Background(), LoadOptions{ConfigFilePath: path})
	if err != nil {
		t.Fatalf("Load() of generated config error = %v\n%s", err, testutil.MustReadFile(t, path))
	}
	want := DefaultConfig()
	if cfg.Fetch != want.Fetch || cfg.S3 != want.S3 || cfg.Report != want.Report {
		t.Errorf("round trip = %+v, want %+v", cfg, want)
	}

	// A second call keeps the existing file.
	cfg.Fetch.Workers = 9
	testutil.MustWriteFile(t, path, GenerateCUE(cfg))
	if _, err := CreateDefaultConfig(); err != nil {
		t.Fatalf("CreateDefaultConfig() error = %v", err)
	}
	if !strings.Contains(testutil.MustReadFile(t, path), "workers:             9") {
		t.Error("CreateDefaultConfig() overwrote an existing file")
	}
}
