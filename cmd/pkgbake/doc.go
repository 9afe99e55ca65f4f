// SPDX-License-Identifier: MPL-2.0

// Package cmd contains the pkgbake command line interface.
package cmd
