// SPDX-License-Identifier: MPL-2.0

//go:build !unix

package shell

import "os/exec"

func configureProcessGroup(*exec.Cmd) {}
