// SPDX-License-Identifier: MPL-2.0

package main

import "github.com/pkgbake/pkgbake/cmd/pkgbake"

func main() {
	cmd.Execute()
}
