// SPDX-License-Identifier: MPL-2.0

package build

import (
	"time"

	"github.com/pkgbake/pkgbake/internal/shell"
	"github.com/pkgbake/pkgbake/pkg/pkgbuild"
)

const (
	// KindPkgver computes the version from the sources.
	KindPkgver StageKind = "pkgver"
	// KindPrepare patches the sources.
	KindPrepare StageKind = "prepare"
	// KindBuild compiles.
	KindBuild StageKind = "build"
	// KindCheck runs the test suite.
	KindCheck StageKind = "check"
	// KindPackage installs one package into its staging directory.
	KindPackage StageKind = "package"
)

type (
	// StageKind classifies a stage.
	StageKind string

	// Stage is one planned function call.
	Stage struct {
		Kind StageKind
		// Function is the build-file function to call.
		Function string
		// Package is set for package stages.
		Package string
	}

	// StageResult is the outcome of one executed stage.
	StageResult struct {
		Stage    Stage
		ExitCode shell.ExitCode
		Duration time.Duration
		// PkgDir is the staging directory of a package stage.
		PkgDir string
		Err    error
	}

	// Result is the outcome of Executor.Run.
	Result struct {
		Stages []StageResult
		// Pkgver is the version reported by the pkgver stage, if it ran.
		Pkgver string
	}
)

// OK reports whether the stage succeeded.
func (r StageResult) OK() bool { return r.Err == nil }

// Plan returns the stages Run would execute for spec.
func (e *Executor) Plan(spec *pkgbuild.Spec) []Stage {
	var stages []Stage
	add := func(kind StageKind, fn string, enabled bool) {
		if enabled && spec.HasFunction(fn) {
			stages = append(stages, Stage{Kind: kind, Function: fn})
		}
	}
	add(KindPkgver, pkgbuild.FuncPkgver, e.updatePkgver)
	add(KindPrepare, pkgbuild.FuncPrepare, !e.noPrepare)
	add(KindBuild, pkgbuild.FuncBuild, true)
	add(KindCheck, pkgbuild.FuncCheck, e.runCheck)

	for _, name := range spec.SplitPackageNames() {
		if fn, ok := spec.PackageFunctionFor(name); ok {
			stages = append(stages, Stage{Kind: KindPackage, Function: fn, Package: name})
		}
	}
	return stages
}
