// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
)

// Report formats.
const (
	ReportText ReportFormat = "text"
	ReportJSON ReportFormat = "json"
	ReportTOML ReportFormat = "toml"
)

var (
	// ErrInvalidReportFormat is the sentinel for InvalidReportFormatError.
	ErrInvalidReportFormat = errors.New("invalid report format")
	// ErrInvalidFetchConfig is the sentinel for InvalidFetchConfigError.
	ErrInvalidFetchConfig = errors.New("invalid fetch config")
	// ErrInvalidConfig is the sentinel for InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
)

type (
	// ReportFormat selects how run reports are printed.
	ReportFormat string

	// InvalidReportFormatError is returned for an unknown ReportFormat.
	// It wraps ErrInvalidReportFormat for errors.Is() compatibility.
	InvalidReportFormatError struct {
		Value ReportFormat
	}

	// InvalidFetchConfigError collects field errors of a FetchConfig.
	// It wraps ErrInvalidFetchConfig for errors.Is() compatibility.
	InvalidFetchConfigError struct {
		FieldErrors []error
	}

	// InvalidConfigError collects the field errors of a Config.
	// It wraps ErrInvalidConfig for errors.Is() compatibility.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// Config holds the application configuration.
	Config struct {
		// BashPath is the interpreter; empty means "bash" on PATH.
		BashPath string `json:"bash_path" mapstructure:"bash_path"`
		// MakepkgConf lists makepkg.conf files merged in order.
		MakepkgConf []string     `json:"makepkg_conf" mapstructure:"makepkg_conf"`
		Fetch       FetchConfig  `json:"fetch" mapstructure:"fetch"`
		S3          S3Config     `json:"s3" mapstructure:"s3"`
		Trust       TrustConfig  `json:"trust" mapstructure:"trust"`
		Build       BuildConfig  `json:"build" mapstructure:"build"`
		Paths       PathsConfig  `json:"paths" mapstructure:"paths"`
		Report      ReportConfig `json:"report" mapstructure:"report"`
		// MetricsFile receives a Prometheus textfile after fetching when set.
		MetricsFile string `json:"metrics_file" mapstructure:"metrics_file"`
	}

	// FetchConfig tunes the fetch scheduler.
	FetchConfig struct {
		MaxParallel       int           `json:"max_parallel" mapstructure:"max_parallel"`
		MaxAttempts       int           `json:"max_attempts" mapstructure:"max_attempts"`
		Backoff           time.Duration `json:"backoff" mapstructure:"backoff"`
		Workers           int           `json:"workers" mapstructure:"workers"`
		RequestsPerSecond float64       `json:"requests_per_second" mapstructure:"requests_per_second"`
		UserAgent         string        `json:"user_agent" mapstructure:"user_agent"`
		Timeout           time.Duration `json:"timeout" mapstructure:"timeout"`
	}

	// S3Config locates the object store serving s3:// sources.
	S3Config struct {
		Endpoint string `json:"endpoint" mapstructure:"endpoint"`
		Region   string `json:"region" mapstructure:"region"`
		Secure   bool   `json:"secure" mapstructure:"secure"`
	}

	// TrustConfig lists the OpenPGP keyring files used for signature checks.
	TrustConfig struct {
		Keyring []string `json:"keyring" mapstructure:"keyring"`
	}

	// BuildConfig sets build executor defaults.
	BuildConfig struct {
		ParallelPackages bool `json:"parallel_packages" mapstructure:"parallel_packages"`
		RunCheck         bool `json:"run_check" mapstructure:"run_check"`
		// CleanBuild removes srcdir before unpacking.
		CleanBuild bool `json:"clean_build" mapstructure:"clean_build"`
	}

	// PathsConfig overrides where sources are cached and where builds run.
	// Empty values fall back to makepkg.conf and then to the build file's
	// directory.
	PathsConfig struct {
		SrcDest  string `json:"srcdest" mapstructure:"srcdest"`
		BuildDir string `json:"builddir" mapstructure:"builddir"`
	}

	// ReportConfig selects the report encoding.
	ReportConfig struct {
		Format ReportFormat `json:"format" mapstructure:"format"`
	}
)

// String returns the string representation of the ReportFormat.
func (f ReportFormat) String() string { return string(f) }

// IsValid returns whether the ReportFormat is one of the defined formats,
// and a list of validation errors if it is not.
func (f ReportFormat) IsValid() (bool, []error) {
	switch f {
	case ReportText, ReportJSON, ReportTOML:
		return true, nil
	default:
		return false, []error{&InvalidReportFormatError{Value: f}}
	}
}

// Error implements the error interface for InvalidReportFormatError.
func (e *InvalidReportFormatError) Error() string {
	return fmt.Sprintf("invalid report format %q (valid: text, json, toml)", e.Value)
}

// Unwrap returns ErrInvalidReportFormat for errors.Is() compatibility.
func (e *InvalidReportFormatError) Unwrap() error { return ErrInvalidReportFormat }

// IsValid returns whether the FetchConfig has usable limits.
func (c FetchConfig) IsValid() (bool, []error) {
	var errs []error
	positive := func(name string, v int) {
		if v < 1 {
			errs = append(errs, fmt.Errorf("fetch.%s must be at least 1, got %d", name, v))
		}
	}
	positive("max_parallel", c.MaxParallel)
	positive("max_attempts", c.MaxAttempts)
	positive("workers", c.Workers)
	if c.Backoff < 0 {
		errs = append(errs, fmt.Errorf("fetch.backoff must not be negative, got %s", c.Backoff))
	}
	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("fetch.timeout must not be negative, got %s", c.Timeout))
	}
	if c.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("fetch.requests_per_second must not be negative, got %g", c.RequestsPerSecond))
	}
	if strings.TrimSpace(c.UserAgent) == "" {
		errs = append(errs, errors.New("fetch.user_agent must not be empty"))
	}
	if len(errs) > 0 {
		return false, []error{&InvalidFetchConfigError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface for InvalidFetchConfigError.
func (e *InvalidFetchConfigError) Error() string {
	return fmt.Sprintf("invalid fetch config: %s", errors.Join(e.FieldErrors...))
}

// Unwrap returns ErrInvalidFetchConfig for errors.Is() compatibility.
func (e *InvalidFetchConfigError) Unwrap() error { return ErrInvalidFetchConfig }

// IsValid returns whether the Config has valid fields.
func (c Config) IsValid() (bool, []error) {
	var errs []error
	if valid, fieldErrs := c.Fetch.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if valid, fieldErrs := c.Report.Format.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if len(errs) > 0 {
		return false, []error{&InvalidConfigError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface for InvalidConfigError.
func (e *InvalidConfigError) Error() string {
	if len(e.FieldErrors) == 1 {
		return "invalid config: " + e.FieldErrors[0].Error()
	}
	return fmt.Sprintf("invalid config: %d field errors", len(e.FieldErrors))
}

// Unwrap returns ErrInvalidConfig for errors.Is() compatibility.
func (e *InvalidConfigError) Unwrap() error { return ErrInvalidConfig }

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		BashPath:    "bash",
		MakepkgConf: []string{
			"/etc/makepkg.conf",
			filepath.Join(xdg.ConfigHome, "pacman", "makepkg.conf"),
		},
		Fetch: FetchConfig{
			MaxParallel:       4,
			MaxAttempts:       3,
			Backoff:           time.Second,
			Workers:           2,
			RequestsPerSecond: 0,
			UserAgent:         "pkgbake",
			Timeout:           0,
		},
		S3: S3Config{
			Endpoint: "s3.amazonaws.com",
			Secure:   true,
		},
		Trust:  TrustConfig{Keyring: []string{}},
		Report: ReportConfig{Format: ReportText},
	}
}
